// ABOUTME: MCP resource definitions
// ABOUTME: Provides a read-only view of all zones for AI agents

package mcp

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const zonesURI = "geofence://zones"

func (s *Server) registerResources() {
	s.mcp.AddResource(&mcp.Resource{
		Name:        zonesURI,
		Description: "All geofence zones with their radius and notification settings",
		URI:         zonesURI,
		MIMEType:    "application/json",
	}, s.handleZonesResource)
}

func (s *Server) handleZonesResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	zones := s.zones.Zones()

	outputs := make([]ZoneOutput, len(zones))
	for i, z := range zones {
		outputs[i] = toZoneOutput(z)
	}

	output := ListZonesOutput{
		Zones: outputs,
		Count: len(outputs),
	}

	jsonBytes, _ := json.MarshalIndent(output, "", "  ") //nolint:errchkjson // output is always serializable

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      zonesURI,
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		},
	}, nil
}
