// ABOUTME: MCP serve command
// ABOUTME: Starts the MCP server for AI agent integration

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/harper/geofence/internal/mcp"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP server for AI agents",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStack()
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()

		server, err := mcp.NewServer(s.registry, s.engine)
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		return server.Serve(ctx)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
