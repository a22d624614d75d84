// ABOUTME: Built-in zone definitions seeded on first initialization
// ABOUTME: Seeding is by name so a default only comes back if no zone has its name

package geofence

import "github.com/harper/geofence/internal/models"

// DefaultZones returns the built-in dog run and emergency vet zones.
func DefaultZones() []models.ZoneDef {
	return []models.ZoneDef{
		models.NewZoneDef("Central Park Dog Run", 40.7829, -73.9654, 200, models.CategoryPark),
		models.NewZoneDef("Emergency Vet Clinic", 40.7505, -73.9934, 100, models.CategoryVet),
	}
}
