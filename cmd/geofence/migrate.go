// ABOUTME: Migration command for copying geofence data between storage backends
// ABOUTME: Copies zones, transitions, and history with a non-empty target check

package main

import (
	"fmt"
	"slices"

	"github.com/fatih/color"
	"github.com/harper/geofence/internal/config"
	"github.com/harper/geofence/internal/storage"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate data between storage backends",
	Long: `Copy all geofence data from the currently configured backend to a different backend.

Reads zones, transitions, and history from the current backend and writes them
to the target backend. Does NOT update the config file; verify the migration
was successful then update config.json manually.

Examples:
  geofence migrate --to badger
  geofence migrate --to sqlite --data-dir ~/geofence-sqlite
  geofence migrate --to redis --force`,
	RunE: runMigrate,
}

var (
	migrateTo      string
	migrateDataDir string
	migrateForce   bool
)

func init() {
	migrateCmd.Flags().StringVar(&migrateTo, "to", "", "target backend (sqlite, badger, charm, or redis)")
	migrateCmd.Flags().StringVar(&migrateDataDir, "data-dir", "", "target data directory (defaults to current config data_dir)")
	migrateCmd.Flags().BoolVar(&migrateForce, "force", false, "allow overwriting a target that already has zones")
	_ = migrateCmd.MarkFlagRequired("to")

	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	sourceBackend := cfg.GetBackend()

	target := *cfg
	target.Backend = migrateTo
	if migrateDataDir != "" {
		target.DataDir = config.ExpandPath(migrateDataDir)
	}
	targetBackend := target.GetBackend()

	if !slices.Contains(config.Backends, targetBackend) || targetBackend == "memory" {
		return fmt.Errorf("invalid target backend %q: must be sqlite, badger, charm, or redis", migrateTo)
	}
	if targetBackend == sourceBackend && target.GetDataDir() == cfg.GetDataDir() {
		return fmt.Errorf("target backend %q is the same as the current backend", targetBackend)
	}

	dst, err := target.OpenStore()
	if err != nil {
		return fmt.Errorf("open target storage (%s): %w", targetBackend, err)
	}
	defer func() {
		if cerr := dst.Close(); cerr != nil {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "warning: closing target storage: %v\n", cerr)
		}
	}()

	existing, err := storage.LoadZones(dst)
	if err != nil {
		return fmt.Errorf("check target storage: %w", err)
	}
	if len(existing) > 0 && !migrateForce {
		return fmt.Errorf("target %s storage already has %d zones; use --force to overwrite", targetBackend, len(existing))
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintln(out, color.YellowString("Migrating geofence data:"))
	_, _ = fmt.Fprintf(out, "  Source:  %s (%s)\n", sourceBackend, cfg.GetDataDir())
	_, _ = fmt.Fprintf(out, "  Target:  %s (%s)\n\n", targetBackend, target.GetDataDir())

	summary, err := storage.MigrateData(store, dst)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	_, _ = fmt.Fprintln(out, color.GreenString("Migration complete!"))
	_, _ = fmt.Fprintf(out, "  Zones:       %d\n", summary.Zones)
	_, _ = fmt.Fprintf(out, "  Transitions: %d\n", summary.Transitions)
	_, _ = fmt.Fprintf(out, "  Samples:     %d\n\n", summary.Samples)
	_, _ = fmt.Fprintln(out, color.YellowString("Note: config.json was NOT updated. To switch to the new backend, edit:"))
	_, _ = fmt.Fprintf(out, "  %s\n", config.GetConfigPath())
	_, _ = fmt.Fprintf(out, "  Set \"backend\": %q", targetBackend)
	if migrateDataDir != "" {
		_, _ = fmt.Fprintf(out, " and \"data_dir\": %q", migrateDataDir)
	}
	_, _ = fmt.Fprintln(out)
	return nil
}
