// ABOUTME: GeoJSON encoding and decoding for zones and location history
// ABOUTME: Zones become Point features with a radius, history becomes Points or a LineString

package geojson

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/harper/geofence/internal/models"
)

// FeatureCollection represents a GeoJSON FeatureCollection.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// Feature represents a GeoJSON Feature.
type Feature struct {
	Type       string                 `json:"type"`
	Geometry   Geometry               `json:"geometry"`
	Properties map[string]interface{} `json:"properties"`
}

// Geometry represents a GeoJSON Geometry.
type Geometry struct {
	Type        string      `json:"type"`
	Coordinates interface{} `json:"coordinates"`
}

// PointCoordinates represents [longitude, latitude] for a Point.
type PointCoordinates [2]float64

// LineCoordinates represents [[lng, lat], [lng, lat], ...] for a LineString.
type LineCoordinates []PointCoordinates

func newCollection(features []Feature) *FeatureCollection {
	return &FeatureCollection{
		Type:     "FeatureCollection",
		Features: features,
	}
}

// ZonesFeatureCollection converts zones to Point features. The radius and
// flags travel as properties.
func ZonesFeatureCollection(zones []models.Zone) *FeatureCollection {
	features := make([]Feature, 0, len(zones))
	for _, z := range zones {
		features = append(features, Feature{
			Type: "Feature",
			Geometry: Geometry{
				Type:        "Point",
				Coordinates: PointCoordinates{z.Longitude, z.Latitude},
			},
			Properties: map[string]interface{}{
				"id":              z.ID,
				"name":            z.Name,
				"category":        string(z.Category),
				"radius_meters":   z.RadiusMeters,
				"enabled":         z.Enabled,
				"notify_on_entry": z.NotifyOnEntry,
				"notify_on_exit":  z.NotifyOnExit,
			},
		})
	}
	return newCollection(features)
}

// SamplesToPoints converts samples to one Point feature each.
func SamplesToPoints(samples []models.Sample) *FeatureCollection {
	features := make([]Feature, 0, len(samples))
	for _, s := range samples {
		props := map[string]interface{}{}
		if t := s.Time(); !t.IsZero() {
			props["captured_at"] = t.UTC().Format(time.RFC3339)
		}
		if s.Accuracy != nil {
			props["accuracy"] = *s.Accuracy
		}
		features = append(features, Feature{
			Type: "Feature",
			Geometry: Geometry{
				Type:        "Point",
				Coordinates: PointCoordinates{s.Longitude, s.Latitude},
			},
			Properties: props,
		})
	}
	return newCollection(features)
}

// SamplesToLine converts samples to a single LineString feature.
// Fewer than two samples yield an empty collection.
func SamplesToLine(samples []models.Sample) *FeatureCollection {
	if len(samples) < 2 {
		return newCollection([]Feature{})
	}

	coords := make(LineCoordinates, len(samples))
	for i, s := range samples {
		coords[i] = PointCoordinates{s.Longitude, s.Latitude}
	}

	props := map[string]interface{}{
		"point_count": len(samples),
	}
	if first, last := samples[0].Time(), samples[len(samples)-1].Time(); !first.IsZero() && !last.IsZero() {
		props["started_at"] = first.UTC().Format(time.RFC3339)
		props["ended_at"] = last.UTC().Format(time.RFC3339)
	}

	return newCollection([]Feature{{
		Type: "Feature",
		Geometry: Geometry{
			Type:        "LineString",
			Coordinates: coords,
		},
		Properties: props,
	}})
}

// ToJSON serializes a FeatureCollection to JSON.
func (fc *FeatureCollection) ToJSON() ([]byte, error) {
	return json.Marshal(fc)
}

// ToJSONIndent serializes a FeatureCollection to indented JSON.
func (fc *FeatureCollection) ToJSONIndent() ([]byte, error) {
	return json.MarshalIndent(fc, "", "  ")
}

type rawCollection struct {
	Type     string       `json:"type"`
	Features []rawFeature `json:"features"`
}

type rawFeature struct {
	Geometry struct {
		Type        string          `json:"type"`
		Coordinates json.RawMessage `json:"coordinates"`
	} `json:"geometry"`
	Properties map[string]interface{} `json:"properties"`
}

func decodeCollection(data []byte) (*rawCollection, error) {
	var fc rawCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse geojson: %w", err)
	}
	if fc.Type != "FeatureCollection" {
		return nil, fmt.Errorf("parse geojson: expected FeatureCollection, got %q", fc.Type)
	}
	return &fc, nil
}

// ParseSamples reads a recorded track. Point features become one sample
// each and LineString features contribute every vertex, in document order.
// Point properties captured_at (RFC3339) and accuracy are honoured;
// LineString vertices carry no timestamp.
func ParseSamples(data []byte) ([]models.Sample, error) {
	fc, err := decodeCollection(data)
	if err != nil {
		return nil, err
	}

	var samples []models.Sample
	for i, f := range fc.Features {
		switch f.Geometry.Type {
		case "Point":
			var c []float64
			if err := json.Unmarshal(f.Geometry.Coordinates, &c); err != nil || len(c) < 2 {
				return nil, fmt.Errorf("feature %d: invalid point coordinates", i)
			}
			var captured time.Time
			if ts, ok := f.Properties["captured_at"].(string); ok {
				if captured, err = time.Parse(time.RFC3339, ts); err != nil {
					return nil, fmt.Errorf("feature %d: invalid captured_at: %w", i, err)
				}
			}
			s, err := sampleAt(c, captured)
			if err != nil {
				return nil, fmt.Errorf("feature %d: %w", i, err)
			}
			if acc, ok := f.Properties["accuracy"].(float64); ok {
				s.Accuracy = models.Float(acc)
			}
			samples = append(samples, s)

		case "LineString":
			var line [][]float64
			if err := json.Unmarshal(f.Geometry.Coordinates, &line); err != nil {
				return nil, fmt.Errorf("feature %d: invalid line coordinates", i)
			}
			for j, c := range line {
				if len(c) < 2 {
					return nil, fmt.Errorf("feature %d vertex %d: invalid coordinates", i, j)
				}
				s, err := sampleAt(c, time.Time{})
				if err != nil {
					return nil, fmt.Errorf("feature %d vertex %d: %w", i, j, err)
				}
				s.CapturedAt = 0
				samples = append(samples, s)
			}

		default:
			return nil, fmt.Errorf("feature %d: unsupported geometry %q", i, f.Geometry.Type)
		}
	}

	if len(samples) == 0 {
		return nil, errors.New("parse geojson: no positions in track")
	}
	return samples, nil
}

func sampleAt(c []float64, captured time.Time) (models.Sample, error) {
	s, err := models.NewSample(c[1], c[0], captured)
	if err != nil {
		return models.Sample{}, err
	}
	if captured.IsZero() {
		s.CapturedAt = 0
	}
	if len(c) > 2 {
		s.Altitude = models.Float(c[2])
	}
	return s, nil
}

// ParseZoneDefs reads Point features with a radius_meters property as zone
// definitions. Missing flags default to enabled with entry and exit
// notifications; validation is left to the registry.
func ParseZoneDefs(data []byte) ([]models.ZoneDef, error) {
	fc, err := decodeCollection(data)
	if err != nil {
		return nil, err
	}

	defs := make([]models.ZoneDef, 0, len(fc.Features))
	for i, f := range fc.Features {
		if f.Geometry.Type != "Point" {
			return nil, fmt.Errorf("feature %d: zones must be Point features", i)
		}
		var c []float64
		if err := json.Unmarshal(f.Geometry.Coordinates, &c); err != nil || len(c) < 2 {
			return nil, fmt.Errorf("feature %d: invalid point coordinates", i)
		}
		radius, ok := f.Properties["radius_meters"].(float64)
		if !ok {
			return nil, fmt.Errorf("feature %d: missing radius_meters", i)
		}
		name, _ := f.Properties["name"].(string)
		category, _ := f.Properties["category"].(string)

		def := models.NewZoneDef(name, c[1], c[0], radius, models.Category(category))
		def.Enabled = boolProp(f.Properties, "enabled", true)
		def.NotifyOnEntry = boolProp(f.Properties, "notify_on_entry", true)
		def.NotifyOnExit = boolProp(f.Properties, "notify_on_exit", true)
		defs = append(defs, def)
	}
	return defs, nil
}

func boolProp(props map[string]interface{}, key string, fallback bool) bool {
	if v, ok := props[key].(bool); ok {
		return v
	}
	return fallback
}
