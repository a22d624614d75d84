// ABOUTME: Export and import functionality for geofence data
// ABOUTME: Supports YAML backup format and markdown export

package storage

import (
	"fmt"
	"strings"
	"time"

	"github.com/harper/geofence/internal/models"
	"gopkg.in/yaml.v3"
)

// BackupVersion is the current backup format version.
const BackupVersion = "1.0"

// backupTool identifies backups written by this tool.
const backupTool = "geofence"

// Backup represents the YAML backup format.
type Backup struct {
	Version     string              `yaml:"version"`
	ExportedAt  time.Time           `yaml:"exported_at"`
	Tool        string              `yaml:"tool"`
	Zones       []models.Zone       `yaml:"zones"`
	Transitions []models.Transition `yaml:"transitions"`
	History     []models.Sample     `yaml:"history,omitempty"`
}

// BackupSummary holds counts of exported or imported entities.
type BackupSummary struct {
	Zones       int
	Transitions int
	Samples     int
}

// ExportToYAML exports all collections to YAML format.
// History is included only when withHistory is set, since it dominates the file size.
func ExportToYAML(kv KV, withHistory bool) ([]byte, *BackupSummary, error) {
	zones, err := LoadZones(kv)
	if err != nil {
		return nil, nil, fmt.Errorf("load zones: %w", err)
	}

	transitions, err := LoadTransitions(kv)
	if err != nil {
		return nil, nil, fmt.Errorf("load transitions: %w", err)
	}

	backup := Backup{
		Version:     BackupVersion,
		ExportedAt:  time.Now().UTC(),
		Tool:        backupTool,
		Zones:       zones,
		Transitions: transitions,
	}

	if withHistory {
		history, err := LoadHistory(kv)
		if err != nil {
			return nil, nil, fmt.Errorf("load history: %w", err)
		}
		backup.History = history
	}

	data, err := yaml.Marshal(backup)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal backup: %w", err)
	}

	return data, &BackupSummary{
		Zones:       len(backup.Zones),
		Transitions: len(backup.Transitions),
		Samples:     len(backup.History),
	}, nil
}

// ImportFromYAML restores collections from a YAML backup, replacing what is stored.
// Every zone is validated before anything is written.
func ImportFromYAML(kv KV, data []byte) (*BackupSummary, error) {
	var backup Backup
	if err := yaml.Unmarshal(data, &backup); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	if backup.Version != BackupVersion {
		return nil, fmt.Errorf("unsupported backup version: %s (expected %s)", backup.Version, BackupVersion)
	}

	if backup.Tool != backupTool {
		return nil, fmt.Errorf("wrong tool: %s (expected %s)", backup.Tool, backupTool)
	}

	seen := make(map[string]bool, len(backup.Zones))
	for _, z := range backup.Zones {
		if z.ID == "" {
			return nil, fmt.Errorf("zone %q has no id", z.Name)
		}
		if seen[z.ID] {
			return nil, fmt.Errorf("duplicate zone id %s", z.ID)
		}
		seen[z.ID] = true
		if err := z.Validate(); err != nil {
			return nil, fmt.Errorf("zone %q: %w", z.Name, err)
		}
	}

	if err := SaveZones(kv, backup.Zones); err != nil {
		return nil, fmt.Errorf("save zones: %w", err)
	}
	if err := SaveTransitions(kv, backup.Transitions); err != nil {
		return nil, fmt.Errorf("save transitions: %w", err)
	}
	if backup.History != nil {
		if err := SaveHistory(kv, backup.History); err != nil {
			return nil, fmt.Errorf("save history: %w", err)
		}
	}

	return &BackupSummary{
		Zones:       len(backup.Zones),
		Transitions: len(backup.Transitions),
		Samples:     len(backup.History),
	}, nil
}

// ExportToMarkdown renders zones and transitions as a markdown report.
func ExportToMarkdown(zones []models.Zone, transitions []models.Transition) []byte {
	var sb strings.Builder

	now := time.Now().UTC()
	sb.WriteString(fmt.Sprintf("# Geofence Export - %s\n\n", now.Format("2006-01-02")))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", now.Format(time.RFC3339)))

	sb.WriteString("## Zones\n\n")
	if len(zones) == 0 {
		sb.WriteString("No zones defined.\n\n")
	} else {
		sb.WriteString("| Name | Category | Center | Radius | Enabled |\n")
		sb.WriteString("|------|----------|--------|--------|---------|\n")
		for _, z := range zones {
			sb.WriteString(fmt.Sprintf("| %s | %s | (%.4f, %.4f) | %.0fm | %t |\n",
				z.Name, z.Category, z.Latitude, z.Longitude, z.RadiusMeters, z.Enabled))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Transitions\n\n")
	if len(transitions) == 0 {
		sb.WriteString("No transitions recorded.\n")
		return []byte(sb.String())
	}

	sb.WriteString("| Date | Zone | Kind | Acknowledged |\n")
	sb.WriteString("|------|------|------|--------------|\n")
	for _, tr := range transitions {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %t |\n",
			tr.Time().UTC().Format("2006-01-02 15:04"), tr.ZoneName, tr.Kind, tr.Acknowledged))
	}

	return []byte(sb.String())
}
