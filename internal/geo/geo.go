// ABOUTME: Great-circle distance and circular containment math
// ABOUTME: Pure functions shared by the evaluator, providers, and CLI

package geo

import (
	"math"

	"github.com/harper/geofence/internal/models"
)

// EarthRadiusMeters is the mean Earth radius used by the Haversine formula.
const EarthRadiusMeters = 6371000

// DistanceMeters returns the Haversine distance between two coordinates.
func DistanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return EarthRadiusMeters * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// SampleDistance returns the distance from a sample to a zone center.
func SampleDistance(s models.Sample, z models.Zone) float64 {
	return DistanceMeters(s.Latitude, s.Longitude, z.Latitude, z.Longitude)
}

// IsWithinZone reports whether the sample lies inside the zone circle.
// The boundary itself counts as inside.
func IsWithinZone(s models.Sample, z models.Zone) bool {
	return SampleDistance(s, z) <= z.RadiusMeters
}

// Nearest returns the zone whose center is closest to the coordinate.
func Nearest(lat, lng float64, zones []models.Zone) (models.Zone, float64, bool) {
	var (
		best     models.Zone
		bestDist float64
		found    bool
	)
	for _, z := range zones {
		d := DistanceMeters(lat, lng, z.Latitude, z.Longitude)
		if !found || d < bestDist {
			best, bestDist, found = z, d, true
		}
	}
	return best, bestDist, found
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
