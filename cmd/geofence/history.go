// ABOUTME: Location history subcommands
// ABOUTME: Lists, clears, imports, and exports recorded samples

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/harper/geofence/internal/geojson"
	"github.com/harper/geofence/internal/location"
	"github.com/harper/geofence/internal/models"
	"github.com/harper/geofence/internal/storage"
	"github.com/harper/geofence/internal/ui"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:     "history",
	Aliases: []string{"h"},
	Short:   "Inspect recorded location history",
}

var historyListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List recent samples, oldest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStack()
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()

		samples, err := selectHistory(cmd, s.tracker.History, s.tracker.ActivityTrail)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(samples) == 0 {
			_, _ = fmt.Fprintln(out, "No location history recorded.")
			return nil
		}
		for _, sample := range samples {
			_, _ = fmt.Fprintln(out, ui.FormatSample(sample))
		}
		return nil
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all recorded samples",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStack()
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()

		n := len(s.tracker.History(0))
		s.tracker.ClearHistory()
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), color.GreenString("✓ Cleared %d sample(s)", n))
		return nil
	},
}

var historyExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export history as GeoJSON",
	Long: `Export recorded samples as a GeoJSON FeatureCollection.

Examples:
  geofence history export --shape line -o walk.geojson
  geofence history export --from 2026-06-01T00:00:00Z --to 2026-06-02T00:00:00Z`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStack()
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()

		samples, err := selectHistory(cmd, s.tracker.History, s.tracker.ActivityTrail)
		if err != nil {
			return err
		}

		shape, _ := cmd.Flags().GetString("shape")
		var fc *geojson.FeatureCollection
		switch shape {
		case "points":
			fc = geojson.SamplesToPoints(samples)
		case "line":
			fc = geojson.SamplesToLine(samples)
		default:
			return fmt.Errorf("unknown shape %q: use points or line", shape)
		}

		data, err := fc.ToJSONIndent()
		if err != nil {
			return fmt.Errorf("failed to encode history: %w", err)
		}
		output, _ := cmd.Flags().GetString("output")
		return writeOutput(cmd, output, data)
	},
}

var historyImportCmd = &cobra.Command{
	Use:   "import <file.geojson>",
	Short: "Append a recorded GeoJSON track to history",
	Long: `Append Point or LineString positions to the stored history without
evaluating zones. Use 'geofence run --replay' to evaluate a track.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0]) //#nosec G304 -- user-specified import file
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}
		samples, err := geojson.ParseSamples(data)
		if err != nil {
			return err
		}

		history, err := storage.LoadHistory(store)
		if err != nil {
			return fmt.Errorf("failed to load history: %w", err)
		}
		history = append(history, samples...)
		capacity := cfg.HistoryCapacity
		if capacity <= 0 {
			capacity = location.DefaultHistoryCapacity
		}
		if len(history) > capacity {
			history = history[len(history)-capacity:]
		}
		if err := storage.SaveHistory(store, history); err != nil {
			return fmt.Errorf("failed to save history: %w", err)
		}

		_, _ = fmt.Fprintln(cmd.OutOrStdout(), color.GreenString("✓ Imported %d sample(s)", len(samples)))
		return nil
	},
}

func init() {
	historyListCmd.Flags().IntP("limit", "n", 50, "most recent samples to show (0 for all)")
	historyExportCmd.Flags().IntP("limit", "n", 0, "most recent samples to export (0 for all)")
	for _, c := range []*cobra.Command{historyListCmd, historyExportCmd} {
		c.Flags().String("from", "", "start of range (RFC3339)")
		c.Flags().String("to", "", "end of range (RFC3339, default now)")
	}

	historyExportCmd.Flags().String("shape", "points", "points or line")
	historyExportCmd.Flags().StringP("output", "o", "", "output file (default: stdout)")

	historyCmd.AddCommand(historyListCmd, historyClearCmd, historyExportCmd, historyImportCmd)
	rootCmd.AddCommand(historyCmd)
}

// selectHistory applies --from/--to when given, otherwise --limit.
func selectHistory(cmd *cobra.Command, recent func(int) []models.Sample, trail func(from, to time.Time) []models.Sample) ([]models.Sample, error) {
	fromStr, _ := cmd.Flags().GetString("from")
	toStr, _ := cmd.Flags().GetString("to")
	if fromStr == "" && toStr == "" {
		limit, _ := cmd.Flags().GetInt("limit")
		return recent(limit), nil
	}

	from := time.Time{}
	to := time.Now()
	var err error
	if fromStr != "" {
		if from, err = time.Parse(time.RFC3339, fromStr); err != nil {
			return nil, fmt.Errorf("invalid --from (use RFC3339, e.g., 2026-06-01T15:00:00Z): %w", err)
		}
	}
	if toStr != "" {
		if to, err = time.Parse(time.RFC3339, toStr); err != nil {
			return nil, fmt.Errorf("invalid --to (use RFC3339, e.g., 2026-06-01T15:00:00Z): %w", err)
		}
	}
	if to.Before(from) {
		return nil, fmt.Errorf("--to must not be before --from")
	}
	return trail(from, to), nil
}
