// ABOUTME: Sync subcommands for the remote location backend and Charm cloud
// ABOUTME: Provides init, status, push, and cloud commands

package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/harper/geofence/internal/charm"
	"github.com/harper/geofence/internal/storage"
	"github.com/harper/geofence/internal/sync"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Manage remote sync of location samples",
	Long: `Upload accepted location samples to a remote backend.

Commands:
  init    - Configure the backend URL and token
  status  - Show sync configuration
  push    - Upload stored history now
  cloud   - Force a Charm cloud sync (charm backend only)

While 'geofence run' is active, every accepted sample is uploaded in the
background once sync is configured.

Examples:
  geofence sync init --server https://api.example.com --token abc123
  geofence sync status
  geofence sync push --limit 100`,
}

var syncInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Configure remote sync",
	Annotations: map[string]string{
		skipStore: "true",
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		server, _ := cmd.Flags().GetString("server")
		token, _ := cmd.Flags().GetString("token")

		if sync.ConfigExists() {
			if force, _ := cmd.Flags().GetBool("force"); !force {
				return fmt.Errorf("sync already configured at %s; use --force to replace it", sync.ConfigPath())
			}
		}

		sc, err := sync.InitConfig(server, token)
		if err != nil {
			return fmt.Errorf("failed to write sync config: %w", err)
		}

		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintln(out, color.GreenString("✓ Sync config written to %s", sync.ConfigPath()))
		_, _ = fmt.Fprintf(out, "  Device ID: %s\n", sc.DeviceID)
		if !sc.IsConfigured() {
			_, _ = fmt.Fprintln(out, color.YellowString("  Server and token are required before samples are uploaded."))
		}
		return nil
	},
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync status",
	Annotations: map[string]string{
		skipStore: "true",
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		sc, err := sync.LoadConfig()
		if err != nil {
			return err
		}

		_, _ = fmt.Fprintf(out, "Config:    %s\n", sync.ConfigPath())
		_, _ = fmt.Fprintf(out, "Server:    %s\n", valueOr(sc.Server, "(not set)"))
		_, _ = fmt.Fprintf(out, "Token:     %s\n", maskToken(sc.Token))
		_, _ = fmt.Fprintf(out, "Device ID: %s\n", valueOr(sc.DeviceID, "(not set)"))
		_, _ = fmt.Fprintf(out, "Auto sync: %t\n", sc.AutoSync)

		if cfg.GetBackend() == "charm" {
			cc := charm.DefaultConfig()
			if cfg.Charm.Host != "" {
				cc.CharmHost = cfg.Charm.Host
			}
			_, _ = fmt.Fprintf(out, "\nCharm Host: %s\n", cc.CharmHost)
			_, _ = fmt.Fprintf(out, "Database:   %s\n", valueOr(cfg.Charm.DBName, charm.DBName))
		}

		_, _ = fmt.Fprintln(out)
		if sc.IsConfigured() {
			_, _ = fmt.Fprintln(out, color.GreenString("Status: Configured"))
		} else {
			_, _ = fmt.Fprintln(out, color.YellowString("Status: Not configured"))
			_, _ = fmt.Fprintln(out, "Run 'geofence sync init' to set up remote sync.")
		}
		return nil
	},
}

var syncPushCmd = &cobra.Command{
	Use:   "push",
	Short: "Upload stored history to the remote backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		sc, err := sync.LoadConfig()
		if err != nil {
			return err
		}
		syncer, err := sync.NewSyncer(sc, nil)
		if err != nil {
			return err
		}

		history, err := storage.LoadHistory(store)
		if err != nil {
			return fmt.Errorf("failed to load history: %w", err)
		}
		if limit, _ := cmd.Flags().GetInt("limit"); limit > 0 && limit < len(history) {
			history = history[len(history)-limit:]
		}

		uploaded := 0
		for _, s := range history {
			if err := syncer.Upload(cmd.Context(), s); err != nil {
				logger.Warn().Err(err).Int64("captured_at_ms", s.CapturedAt).Msg("upload failed")
				continue
			}
			uploaded++
		}

		out := cmd.OutOrStdout()
		if uploaded < len(history) {
			_, _ = fmt.Fprintln(out, color.YellowString("⚠ Uploaded %d of %d sample(s)", uploaded, len(history)))
			return nil
		}
		_, _ = fmt.Fprintln(out, color.GreenString("✓ Uploaded %d sample(s)", uploaded))
		return nil
	},
}

var syncCloudCmd = &cobra.Command{
	Use:   "cloud",
	Short: "Force a Charm cloud sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		ck, ok := store.(*charm.KV)
		if !ok {
			return fmt.Errorf("cloud sync needs the charm backend (current: %s)", cfg.GetBackend())
		}
		if err := ck.Sync(); err != nil {
			return fmt.Errorf("charm sync failed: %w", err)
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), color.GreenString("✓ Synced with Charm cloud"))
		return nil
	},
}

func init() {
	syncInitCmd.Flags().String("server", "", "remote backend base URL")
	syncInitCmd.Flags().String("token", "", "bearer token")
	syncInitCmd.Flags().Bool("force", false, "replace an existing sync config")
	syncPushCmd.Flags().IntP("limit", "n", 0, "most recent samples to upload (0 for all)")

	syncCmd.AddCommand(syncInitCmd, syncStatusCmd, syncPushCmd, syncCloudCmd)
	rootCmd.AddCommand(syncCmd)
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func maskToken(token string) string {
	switch {
	case token == "":
		return "(not set)"
	case len(token) <= 8:
		return "********"
	default:
		return token[:4] + "…" + token[len(token)-4:]
	}
}
