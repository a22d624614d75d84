// ABOUTME: MCP tool definitions and handlers
// ABOUTME: Lets AI agents manage zones and review zone transitions

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/harper/geofence/internal/models"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func (s *Server) registerTools() {
	s.registerListZonesTool()
	s.registerAddZoneTool()
	s.registerRemoveZoneTool()
	s.registerGetTransitionsTool()
	s.registerAcknowledgeTransitionTool()
}

func textResult(v any) *mcp.CallToolResult {
	jsonBytes, _ := json.MarshalIndent(v, "", "  ") //nolint:errchkjson // output is always serializable
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(jsonBytes)}},
	}
}

// ZoneOutput defines output for zone tools.
type ZoneOutput struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Latitude      float64   `json:"latitude"`
	Longitude     float64   `json:"longitude"`
	RadiusMeters  float64   `json:"radius_meters"`
	Category      string    `json:"category"`
	Enabled       bool      `json:"enabled"`
	NotifyOnEntry bool      `json:"notify_on_entry"`
	NotifyOnExit  bool      `json:"notify_on_exit"`
	CreatedAt     time.Time `json:"created_at"`
}

func toZoneOutput(z models.Zone) ZoneOutput {
	return ZoneOutput{
		ID:            z.ID,
		Name:          z.Name,
		Latitude:      z.Latitude,
		Longitude:     z.Longitude,
		RadiusMeters:  z.RadiusMeters,
		Category:      string(z.Category),
		Enabled:       z.Enabled,
		NotifyOnEntry: z.NotifyOnEntry,
		NotifyOnExit:  z.NotifyOnExit,
		CreatedAt:     time.UnixMilli(z.CreatedAt).UTC(),
	}
}

// ListZonesInput defines input for list_zones tool.
type ListZonesInput struct {
	EnabledOnly bool `json:"enabled_only,omitempty"`
}

// ListZonesOutput defines output for list_zones tool.
type ListZonesOutput struct {
	Zones []ZoneOutput `json:"zones"`
	Count int          `json:"count"`
}

func (s *Server) registerListZonesTool() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_zones",
		Description: "List geofence zones. Each zone is a circle around a point with a radius in meters.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"enabled_only": map[string]interface{}{
					"type":        "boolean",
					"description": "Only return zones that are currently evaluated",
				},
			},
		},
	}, s.handleListZones)
}

func (s *Server) handleListZones(_ context.Context, req *mcp.CallToolRequest, input ListZonesInput) (*mcp.CallToolResult, ListZonesOutput, error) {
	zones := s.zones.Zones()

	outputs := make([]ZoneOutput, 0, len(zones))
	for _, z := range zones {
		if input.EnabledOnly && !z.Enabled {
			continue
		}
		outputs = append(outputs, toZoneOutput(z))
	}

	output := ListZonesOutput{Zones: outputs, Count: len(outputs)}
	return textResult(output), output, nil
}

// AddZoneInput defines input for add_zone tool.
type AddZoneInput struct {
	Name          string  `json:"name"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	RadiusMeters  float64 `json:"radius_meters"`
	Category      string  `json:"category,omitempty"`
	NotifyOnEntry *bool   `json:"notify_on_entry,omitempty"`
	NotifyOnExit  *bool   `json:"notify_on_exit,omitempty"`
}

func (s *Server) registerAddZoneTool() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "add_zone",
		Description: "Create a geofence zone. Entering or leaving it produces a transition.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"name": map[string]interface{}{
					"type":        "string",
					"description": "Zone name (e.g., 'Central Park Dog Run')",
				},
				"latitude": map[string]interface{}{
					"type":        "number",
					"description": "Center latitude (-90 to 90)",
				},
				"longitude": map[string]interface{}{
					"type":        "number",
					"description": "Center longitude (-180 to 180)",
				},
				"radius_meters": map[string]interface{}{
					"type":        "number",
					"description": "Radius in meters, greater than zero",
				},
				"category": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"park", "vet", "groomer", "friend", "custom"},
					"description": "Zone category (default custom)",
				},
				"notify_on_entry": map[string]interface{}{
					"type":        "boolean",
					"description": "Notify when entering (default true)",
				},
				"notify_on_exit": map[string]interface{}{
					"type":        "boolean",
					"description": "Notify when leaving (default true)",
				},
			},
			"required": []string{"name", "latitude", "longitude", "radius_meters"},
		},
	}, s.handleAddZone)
}

func (s *Server) handleAddZone(_ context.Context, req *mcp.CallToolRequest, input AddZoneInput) (*mcp.CallToolResult, ZoneOutput, error) {
	def := models.NewZoneDef(input.Name, input.Latitude, input.Longitude, input.RadiusMeters, models.Category(input.Category))
	if input.NotifyOnEntry != nil {
		def.NotifyOnEntry = *input.NotifyOnEntry
	}
	if input.NotifyOnExit != nil {
		def.NotifyOnExit = *input.NotifyOnExit
	}

	id, err := s.zones.AddZone(def)
	if err != nil {
		return nil, ZoneOutput{}, err
	}
	z, ok := s.zones.Zone(id)
	if !ok {
		return nil, ZoneOutput{}, fmt.Errorf("zone %s vanished after creation", id)
	}

	output := toZoneOutput(z)
	return textResult(output), output, nil
}

// RemoveZoneInput defines input for remove_zone tool.
type RemoveZoneInput struct {
	ID string `json:"id"`
}

// RemoveZoneOutput defines output for remove_zone tool.
type RemoveZoneOutput struct {
	Removed bool   `json:"removed"`
	ID      string `json:"id"`
	Name    string `json:"name"`
}

func (s *Server) registerRemoveZoneTool() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "remove_zone",
		Description: "Delete a geofence zone by ID. No exit transition is produced for a removed zone.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"id": map[string]interface{}{
					"type":        "string",
					"description": "Zone ID from list_zones",
				},
			},
			"required": []string{"id"},
		},
	}, s.handleRemoveZone)
}

func (s *Server) handleRemoveZone(_ context.Context, req *mcp.CallToolRequest, input RemoveZoneInput) (*mcp.CallToolResult, RemoveZoneOutput, error) {
	z, ok := s.zones.Zone(input.ID)
	if !ok || !s.zones.RemoveZone(input.ID) {
		return nil, RemoveZoneOutput{}, fmt.Errorf("zone '%s' not found", input.ID)
	}

	output := RemoveZoneOutput{Removed: true, ID: z.ID, Name: z.Name}
	return textResult(output), output, nil
}

// GetTransitionsInput defines input for get_transitions tool.
type GetTransitionsInput struct {
	Limit              int  `json:"limit,omitempty"`
	UnacknowledgedOnly bool `json:"unacknowledged_only,omitempty"`
}

// TransitionOutput defines output for transition tools.
type TransitionOutput struct {
	ID           string    `json:"id"`
	ZoneID       string    `json:"zone_id"`
	ZoneName     string    `json:"zone_name"`
	Kind         string    `json:"kind"`
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	OccurredAt   time.Time `json:"occurred_at"`
	Acknowledged bool      `json:"acknowledged"`
}

// TransitionsOutput defines output for get_transitions tool.
type TransitionsOutput struct {
	Transitions []TransitionOutput `json:"transitions"`
	Count       int                `json:"count"`
}

func (s *Server) registerGetTransitionsTool() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_transitions",
		Description: "Get recent zone entries and exits, newest first.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of transitions to return (default all)",
				},
				"unacknowledged_only": map[string]interface{}{
					"type":        "boolean",
					"description": "Only return transitions nobody has acknowledged",
				},
			},
		},
	}, s.handleGetTransitions)
}

func (s *Server) handleGetTransitions(_ context.Context, req *mcp.CallToolRequest, input GetTransitionsInput) (*mcp.CallToolResult, TransitionsOutput, error) {
	if input.Limit < 0 {
		return nil, TransitionsOutput{}, fmt.Errorf("limit must not be negative")
	}

	log := s.transitions.Transitions()
	outputs := make([]TransitionOutput, 0, len(log))
	for i := len(log) - 1; i >= 0; i-- {
		tr := log[i]
		if input.UnacknowledgedOnly && tr.Acknowledged {
			continue
		}
		outputs = append(outputs, TransitionOutput{
			ID:           tr.ID,
			ZoneID:       tr.ZoneID,
			ZoneName:     tr.ZoneName,
			Kind:         string(tr.Kind),
			Latitude:     tr.Sample.Latitude,
			Longitude:    tr.Sample.Longitude,
			OccurredAt:   tr.Time().UTC(),
			Acknowledged: tr.Acknowledged,
		})
		if input.Limit > 0 && len(outputs) == input.Limit {
			break
		}
	}

	output := TransitionsOutput{Transitions: outputs, Count: len(outputs)}
	return textResult(output), output, nil
}

// AcknowledgeTransitionInput defines input for acknowledge_transition tool.
type AcknowledgeTransitionInput struct {
	ID string `json:"id"`
}

// AcknowledgeTransitionOutput defines output for acknowledge_transition tool.
type AcknowledgeTransitionOutput struct {
	Acknowledged bool   `json:"acknowledged"`
	ID           string `json:"id"`
}

func (s *Server) registerAcknowledgeTransitionTool() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "acknowledge_transition",
		Description: "Mark a zone transition as seen.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"id": map[string]interface{}{
					"type":        "string",
					"description": "Transition ID from get_transitions",
				},
			},
			"required": []string{"id"},
		},
	}, s.handleAcknowledgeTransition)
}

func (s *Server) handleAcknowledgeTransition(_ context.Context, req *mcp.CallToolRequest, input AcknowledgeTransitionInput) (*mcp.CallToolResult, AcknowledgeTransitionOutput, error) {
	if !s.transitions.Acknowledge(input.ID) {
		return nil, AcknowledgeTransitionOutput{}, fmt.Errorf("transition '%s' not found", input.ID)
	}

	output := AcknowledgeTransitionOutput{Acknowledged: true, ID: input.ID}
	return textResult(output), output, nil
}
