// ABOUTME: Zone subcommands for managing geofence definitions
// ABOUTME: Provides add, list, show, update, remove, import, and export

package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/harper/geofence/internal/geojson"
	"github.com/harper/geofence/internal/models"
	"github.com/harper/geofence/internal/ui"
	"github.com/spf13/cobra"
)

var zoneCmd = &cobra.Command{
	Use:     "zone",
	Aliases: []string{"zones", "z"},
	Short:   "Manage geofence zones",
}

var zoneAddCmd = &cobra.Command{
	Use:     "add <name> <latitude> <longitude>",
	Aliases: []string{"a"},
	Short:   "Add a circular zone",
	Long: `Add a circular zone centered on a coordinate.

Examples:
  geofence zone add --radius 200 --category park "Dog Run" 40.7829 -73.9654
  geofence zone add -r 100 -c vet --no-exit "Emergency Vet" 40.7505 -73.9934

Flags go before the name so negative coordinates are not read as flags.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		lat, lng, err := parseCoords(args[1], args[2])
		if err != nil {
			return err
		}

		radius, _ := cmd.Flags().GetFloat64("radius")
		categoryStr, _ := cmd.Flags().GetString("category")
		category, err := models.ParseCategory(categoryStr)
		if err != nil {
			return err
		}

		def := models.NewZoneDef(args[0], lat, lng, radius, category)
		if disabled, _ := cmd.Flags().GetBool("disabled"); disabled {
			def.Enabled = false
		}
		if noEntry, _ := cmd.Flags().GetBool("no-entry"); noEntry {
			def.NotifyOnEntry = false
		}
		if noExit, _ := cmd.Flags().GetBool("no-exit"); noExit {
			def.NotifyOnExit = false
		}

		s, err := openStack()
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()

		id, err := s.registry.AddZone(def)
		if err != nil {
			return fmt.Errorf("failed to add zone: %w", err)
		}

		z, _ := s.registry.Zone(id)
		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintln(out, color.GreenString("✓ Added zone %s", z.Name))
		_, _ = fmt.Fprintf(out, "  %s\n", ui.FormatZone(z))
		return nil
	},
}

var zoneListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List zones",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStack()
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()

		zones := s.registry.Zones()
		if enabledOnly, _ := cmd.Flags().GetBool("enabled"); enabledOnly {
			zones = s.registry.EnabledZones()
		}

		out := cmd.OutOrStdout()
		if len(zones) == 0 {
			_, _ = fmt.Fprintln(out, "No zones defined yet. Use 'geofence zone add' to add one.")
			return nil
		}
		for _, z := range zones {
			_, _ = fmt.Fprintln(out, ui.FormatZone(z))
		}
		return nil
	},
}

var zoneShowCmd = &cobra.Command{
	Use:   "show <id-or-name>",
	Short: "Show every field of a zone",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStack()
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()

		z, err := findZone(s.registry.Zones(), args[0])
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), ui.FormatZoneDetail(z))
		return nil
	},
}

var zoneUpdateCmd = &cobra.Command{
	Use:   "update <id-or-name>",
	Short: "Change fields of a zone",
	Long: `Change one or more fields of a zone. Only the flags you pass are changed.

Examples:
  geofence zone update "Dog Run" --radius 250
  geofence zone update 0b6f2c1e --enabled=false
  geofence zone update "Emergency Vet" --notify-exit=false`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		patch, err := zonePatchFromFlags(cmd)
		if err != nil {
			return err
		}
		if patch.IsEmpty() {
			return fmt.Errorf("nothing to update; pass at least one field flag")
		}

		s, err := openStack()
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()

		z, err := findZone(s.registry.Zones(), args[0])
		if err != nil {
			return err
		}
		if _, err := s.registry.UpdateZone(z.ID, patch); err != nil {
			return fmt.Errorf("failed to update zone: %w", err)
		}

		updated, _ := s.registry.Zone(z.ID)
		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintln(out, color.GreenString("✓ Updated zone %s", updated.Name))
		_, _ = fmt.Fprintf(out, "  %s\n", ui.FormatZone(updated))
		return nil
	},
}

var zoneRemoveCmd = &cobra.Command{
	Use:     "remove <id-or-name>",
	Aliases: []string{"rm"},
	Short:   "Remove a zone",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStack()
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()

		z, err := findZone(s.registry.Zones(), args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			_, _ = fmt.Fprintf(out, "Remove zone '%s'? [y/N] ", z.Name)
			reader := bufio.NewReader(cmd.InOrStdin())
			response, _ := reader.ReadString('\n')
			response = strings.TrimSpace(strings.ToLower(response))
			if response != "y" && response != "yes" {
				_, _ = fmt.Fprintln(out, "Cancelled.")
				return nil
			}
		}

		if !s.registry.RemoveZone(z.ID) {
			return fmt.Errorf("zone '%s' not found", args[0])
		}
		_, _ = fmt.Fprintln(out, color.GreenString("✓ Removed %s", z.Name))
		return nil
	},
}

var zoneImportCmd = &cobra.Command{
	Use:   "import <file.geojson>",
	Short: "Import zones from a GeoJSON FeatureCollection",
	Long: `Import zones from Point features carrying a radius_meters property.

Optional properties: name, category, enabled, notify_on_entry, notify_on_exit.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0]) //#nosec G304 -- user-specified import file
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}
		defs, err := geojson.ParseZoneDefs(data)
		if err != nil {
			return err
		}

		s, err := openStack()
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()

		out := cmd.OutOrStdout()
		added := 0
		for _, def := range defs {
			if _, err := s.registry.AddZone(def); err != nil {
				_, _ = fmt.Fprintln(out, color.YellowString("⚠ Skipped %q: %v", def.Name, err))
				continue
			}
			added++
		}
		_, _ = fmt.Fprintln(out, color.GreenString("✓ Imported %d of %d zones", added, len(defs)))
		return nil
	},
}

var zoneExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export zones as a GeoJSON FeatureCollection",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStack()
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()

		data, err := geojson.ZonesFeatureCollection(s.registry.Zones()).ToJSONIndent()
		if err != nil {
			return fmt.Errorf("failed to encode zones: %w", err)
		}
		output, _ := cmd.Flags().GetString("output")
		return writeOutput(cmd, output, data)
	},
}

func init() {
	zoneAddCmd.Flags().Float64P("radius", "r", 100, "radius in meters")
	zoneAddCmd.Flags().StringP("category", "c", "custom", "park, vet, groomer, friend, or custom")
	zoneAddCmd.Flags().Bool("disabled", false, "create the zone disabled")
	zoneAddCmd.Flags().Bool("no-entry", false, "do not notify on entry")
	zoneAddCmd.Flags().Bool("no-exit", false, "do not notify on exit")
	zoneAddCmd.Flags().SetInterspersed(false)

	zoneListCmd.Flags().Bool("enabled", false, "only list enabled zones")

	zoneUpdateCmd.Flags().String("name", "", "new name")
	zoneUpdateCmd.Flags().Float64("lat", 0, "new center latitude")
	zoneUpdateCmd.Flags().Float64("lng", 0, "new center longitude")
	zoneUpdateCmd.Flags().Float64P("radius", "r", 0, "new radius in meters")
	zoneUpdateCmd.Flags().StringP("category", "c", "", "new category")
	zoneUpdateCmd.Flags().Bool("enabled", true, "enable or disable the zone")
	zoneUpdateCmd.Flags().Bool("notify-entry", true, "notify on entry")
	zoneUpdateCmd.Flags().Bool("notify-exit", true, "notify on exit")

	zoneRemoveCmd.Flags().Bool("confirm", false, "skip confirmation prompt")

	zoneExportCmd.Flags().StringP("output", "o", "", "output file (default: stdout)")

	zoneCmd.AddCommand(zoneAddCmd, zoneListCmd, zoneShowCmd, zoneUpdateCmd, zoneRemoveCmd, zoneImportCmd, zoneExportCmd)
	rootCmd.AddCommand(zoneCmd)
}

// zonePatchFromFlags builds a patch from the flags that were actually set.
func zonePatchFromFlags(cmd *cobra.Command) (models.ZonePatch, error) {
	var patch models.ZonePatch
	flags := cmd.Flags()

	if flags.Changed("name") {
		v, _ := flags.GetString("name")
		patch.Name = &v
	}
	if flags.Changed("lat") {
		v, _ := flags.GetFloat64("lat")
		patch.Latitude = &v
	}
	if flags.Changed("lng") {
		v, _ := flags.GetFloat64("lng")
		patch.Longitude = &v
	}
	if flags.Changed("radius") {
		v, _ := flags.GetFloat64("radius")
		patch.RadiusMeters = &v
	}
	if flags.Changed("category") {
		s, _ := flags.GetString("category")
		c, err := models.ParseCategory(s)
		if err != nil {
			return patch, err
		}
		patch.Category = &c
	}
	if flags.Changed("enabled") {
		v, _ := flags.GetBool("enabled")
		patch.Enabled = &v
	}
	if flags.Changed("notify-entry") {
		v, _ := flags.GetBool("notify-entry")
		patch.NotifyOnEntry = &v
	}
	if flags.Changed("notify-exit") {
		v, _ := flags.GetBool("notify-exit")
		patch.NotifyOnExit = &v
	}
	return patch, nil
}

// findZone resolves an ID, an ID prefix, or a case-insensitive name.
func findZone(zones []models.Zone, ref string) (models.Zone, error) {
	for _, z := range zones {
		if z.ID == ref {
			return z, nil
		}
	}

	var matches []models.Zone
	for _, z := range zones {
		if strings.EqualFold(z.Name, ref) || (len(ref) >= 6 && strings.HasPrefix(z.ID, ref)) {
			matches = append(matches, z)
		}
	}
	switch len(matches) {
	case 0:
		return models.Zone{}, fmt.Errorf("zone '%s' not found", ref)
	case 1:
		return matches[0], nil
	default:
		return models.Zone{}, fmt.Errorf("'%s' matches %d zones; use the zone ID", ref, len(matches))
	}
}

func parseCoords(latStr, lngStr string) (float64, float64, error) {
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid latitude: %w", err)
	}
	lng, err := strconv.ParseFloat(lngStr, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid longitude: %w", err)
	}
	if err := models.ValidateCoordinates(lat, lng); err != nil {
		return 0, 0, err
	}
	return lat, lng, nil
}

// writeOutput writes data to path, or to the command's stdout when path is empty.
func writeOutput(cmd *cobra.Command, path string, data []byte) error {
	if path == "" {
		_, err := cmd.OutOrStdout().Write(append(data, '\n'))
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil { //nolint:gosec // exports are meant to be shared
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	_, _ = fmt.Fprintln(cmd.ErrOrStderr(), color.GreenString("Wrote %s", path))
	return nil
}
