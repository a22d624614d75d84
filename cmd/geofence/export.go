// ABOUTME: Export command for human-readable reports
// ABOUTME: Renders zones and the transition log as Markdown or zones as GeoJSON

package main

import (
	"fmt"

	"github.com/harper/geofence/internal/geojson"
	"github.com/harper/geofence/internal/storage"
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export zones and transitions",
	Long: `Export zones and the transition log.

Formats:
  markdown  zones and transitions as tables (default)
  geojson   zones as a FeatureCollection
  yaml      the backup format, written to stdout

Examples:
  geofence export > geofence.md
  geofence export --format geojson -o zones.geojson`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")

		var data []byte
		switch format {
		case "markdown", "md":
			s, err := openStack()
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()
			data = storage.ExportToMarkdown(s.registry.Zones(), newestFirst(s.engine.Transitions(), false, 0))
		case "geojson":
			zones, err := storage.LoadZones(store)
			if err != nil {
				return fmt.Errorf("failed to load zones: %w", err)
			}
			if data, err = geojson.ZonesFeatureCollection(zones).ToJSONIndent(); err != nil {
				return fmt.Errorf("failed to encode zones: %w", err)
			}
		case "yaml":
			var err error
			if data, _, err = storage.ExportToYAML(store, false); err != nil {
				return fmt.Errorf("failed to export: %w", err)
			}
		default:
			return fmt.Errorf("unknown format %q: use markdown, geojson, or yaml", format)
		}

		return writeOutput(cmd, output, data)
	},
}

func init() {
	exportCmd.Flags().StringP("format", "f", "markdown", "markdown, geojson, or yaml")
	exportCmd.Flags().StringP("output", "o", "", "output file (default: stdout)")

	rootCmd.AddCommand(exportCmd)
}
