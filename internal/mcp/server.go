// ABOUTME: MCP server initialization and configuration
// ABOUTME: Sets up server with zone and transition tools for AI agents

package mcp

import (
	"context"
	"fmt"

	"github.com/harper/geofence/internal/models"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ZoneService is satisfied by *geofence.Registry.
type ZoneService interface {
	Zones() []models.Zone
	Zone(id string) (models.Zone, bool)
	AddZone(def models.ZoneDef) (string, error)
	RemoveZone(id string) bool
}

// TransitionLog is satisfied by *geofence.Engine.
type TransitionLog interface {
	Transitions() []models.Transition
	Acknowledge(id string) bool
}

// Server wraps MCP server with the zone registry and transition log.
type Server struct {
	mcp         *mcp.Server
	zones       ZoneService
	transitions TransitionLog
}

// NewServer creates MCP server with all capabilities.
func NewServer(zones ZoneService, transitions TransitionLog) (*Server, error) {
	if zones == nil {
		return nil, fmt.Errorf("zone service is required")
	}
	if transitions == nil {
		return nil, fmt.Errorf("transition log is required")
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "geofence",
			Version: "1.0.0",
		},
		nil,
	)

	s := &Server{
		mcp:         mcpServer,
		zones:       zones,
		transitions: transitions,
	}

	s.registerTools()
	s.registerResources()

	return s, nil
}

// Serve starts the MCP server in stdio mode.
func (s *Server) Serve(ctx context.Context) error {
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}
