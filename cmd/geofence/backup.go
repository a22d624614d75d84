// ABOUTME: Backup and restore commands using the YAML backup format
// ABOUTME: Creates portable backup files and restores them into the current backend

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/harper/geofence/internal/storage"
	"github.com/spf13/cobra"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Create a YAML backup of zones and transitions",
	Long: `Create a YAML backup file containing all zones and the transition log.
Location history is included with --history.

The backup file can be used to:
- Migrate data between machines
- Restore after data loss
- Import into a fresh backend

Examples:
  geofence backup --output zones.yaml
  geofence backup --history -o ~/backups/geofence-$(date +%Y%m%d).yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		withHistory, _ := cmd.Flags().GetBool("history")

		data, summary, err := storage.ExportToYAML(store, withHistory)
		if err != nil {
			return fmt.Errorf("failed to create backup: %w", err)
		}

		if output == "" {
			output = fmt.Sprintf("geofence-%s.yaml", time.Now().Format("20060102-150405"))
		}
		if err := os.WriteFile(output, data, 0644); err != nil { //nolint:gosec // 0644 is intentional for backup files
			return fmt.Errorf("failed to write backup: %w", err)
		}

		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintln(out, color.GreenString("Backup created: %s", output))
		_, _ = fmt.Fprintf(out, "  %d zones, %d transitions, %d samples\n", summary.Zones, summary.Transitions, summary.Samples)
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore <backup.yaml>",
	Short: "Restore zones and transitions from a YAML backup",
	Long: `Restore a backup created with 'geofence backup' into the configured backend.

Collections present in the backup replace the stored ones. Collections the
backup does not carry are left untouched.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0]) //#nosec G304 -- user-specified backup file
		if err != nil {
			return fmt.Errorf("failed to read backup: %w", err)
		}

		summary, err := storage.ImportFromYAML(store, data)
		if err != nil {
			return fmt.Errorf("failed to restore backup: %w", err)
		}

		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintln(out, color.GreenString("✓ Restored %s", args[0]))
		_, _ = fmt.Fprintf(out, "  %d zones, %d transitions, %d samples\n", summary.Zones, summary.Transitions, summary.Samples)
		return nil
	},
}

func init() {
	backupCmd.Flags().StringP("output", "o", "", "output file (default: geofence-YYYYMMDD-HHMMSS.yaml)")
	backupCmd.Flags().Bool("history", false, "include location history")

	rootCmd.AddCommand(backupCmd, restoreCmd)
}
