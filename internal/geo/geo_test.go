// ABOUTME: Tests for Haversine distance and zone containment
// ABOUTME: Includes randomized containment checks and the exact-boundary case

package geo

import (
	"math"
	"math/rand"
	"testing"

	"github.com/harper/geofence/internal/models"
)

func TestDistanceMeters_SamePoint(t *testing.T) {
	if d := DistanceMeters(37.7749, -122.4194, 37.7749, -122.4194); d != 0 {
		t.Errorf("expected 0, got %f", d)
	}
}

func TestDistanceMeters_KnownDistances(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		want                   float64
		tolerance              float64
	}{
		// one degree of latitude is ~111.19km on a 6371km sphere
		{"one_degree_latitude", 0, 0, 1, 0, 111195, 5},
		{"one_degree_longitude_equator", 0, 0, 0, 1, 111195, 5},
		{"chicago_to_new_york", 41.8781, -87.6298, 40.7128, -74.0060, 1144000, 2000},
		{"antipodal", 0, 0, 0, 180, math.Pi * EarthRadiusMeters, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DistanceMeters(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			if math.Abs(got-tt.want) > tt.tolerance {
				t.Errorf("DistanceMeters = %f, want %f ± %f", got, tt.want, tt.tolerance)
			}
		})
	}
}

func TestDistanceMeters_Symmetric(t *testing.T) {
	a := DistanceMeters(-6.2088, 106.8456, -7.0, 107.0)
	b := DistanceMeters(-7.0, 107.0, -6.2088, 106.8456)
	if math.Abs(a-b) > 1e-6 {
		t.Errorf("expected symmetric distance, got %f and %f", a, b)
	}
}

func TestIsWithinZone_MatchesDistance(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 2000; i++ {
		zone := models.Zone{
			Latitude:     rng.Float64()*170 - 85,
			Longitude:    rng.Float64()*360 - 180,
			RadiusMeters: rng.Float64()*5000 + 1,
		}
		// Keep samples near the zone so both outcomes occur.
		sample := models.Sample{
			Latitude:  clamp(zone.Latitude+(rng.Float64()-0.5)*0.1, -90, 90),
			Longitude: clamp(zone.Longitude+(rng.Float64()-0.5)*0.1, -180, 180),
		}

		d := DistanceMeters(sample.Latitude, sample.Longitude, zone.Latitude, zone.Longitude)
		if got, want := IsWithinZone(sample, zone), d <= zone.RadiusMeters; got != want {
			t.Fatalf("IsWithinZone = %v, want %v (distance %f, radius %f)", got, want, d, zone.RadiusMeters)
		}
	}
}

func TestIsWithinZone_ExactBoundary(t *testing.T) {
	sample := models.Sample{Latitude: 37.7749, Longitude: -122.4194}
	zone := models.Zone{Latitude: 37.7759, Longitude: -122.4194}
	zone.RadiusMeters = SampleDistance(sample, zone)

	if !IsWithinZone(sample, zone) {
		t.Error("a sample exactly on the boundary must be inside")
	}

	zone.RadiusMeters = math.Nextafter(zone.RadiusMeters, 0)
	if IsWithinZone(sample, zone) {
		t.Error("a sample just beyond the boundary must be outside")
	}
}

func TestNearest(t *testing.T) {
	zones := []models.Zone{
		{ID: "far", Latitude: 10, Longitude: 10},
		{ID: "near", Latitude: 0.001, Longitude: 0.001},
		{ID: "mid", Latitude: 1, Longitude: 1},
	}

	z, d, ok := Nearest(0, 0, zones)
	if !ok {
		t.Fatal("expected a nearest zone")
	}
	if z.ID != "near" {
		t.Errorf("expected near, got %s", z.ID)
	}
	if d <= 0 || d > 200 {
		t.Errorf("unexpected distance %f", d)
	}

	if _, _, ok := Nearest(0, 0, nil); ok {
		t.Error("expected no nearest zone for empty input")
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
