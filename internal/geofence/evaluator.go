// ABOUTME: Membership diffing that turns one sample into zone transitions
// ABOUTME: Only reads its inputs; the caller owns the previous membership

package geofence

import (
	"time"

	"github.com/google/uuid"
	"github.com/harper/geofence/internal/geo"
	"github.com/harper/geofence/internal/models"
)

// Evaluate computes the zones containing sample and the transitions relative
// to previous. The returned membership ignores notify flags; transitions
// respect them. An empty previous membership turns every occupied zone into
// an entry.
//
// Exits are only reported for zones still in enabledZones. A zone that was
// disabled or removed leaves the membership silently. Exits are listed before
// entries.
func Evaluate(previous models.Membership, sample models.Sample, enabledZones []models.Zone) (models.Membership, []models.Transition) {
	current := make(models.Membership)
	byID := make(map[string]models.Zone, len(enabledZones))
	for _, z := range enabledZones {
		byID[z.ID] = z
		if geo.IsWithinZone(sample, z) {
			current[z.ID] = struct{}{}
		}
	}

	occurredAt := sample.CapturedAt
	if occurredAt == 0 {
		occurredAt = time.Now().UnixMilli()
	}

	var transitions []models.Transition
	for _, id := range previous.IDs() {
		if current.Contains(id) {
			continue
		}
		z, ok := byID[id]
		if !ok || !z.NotifyOnExit {
			continue
		}
		transitions = append(transitions, newTransition(z, models.TransitionExit, sample, occurredAt))
	}
	for _, z := range enabledZones {
		if !current.Contains(z.ID) || previous.Contains(z.ID) || !z.NotifyOnEntry {
			continue
		}
		transitions = append(transitions, newTransition(z, models.TransitionEntry, sample, occurredAt))
	}

	return current, transitions
}

func newTransition(z models.Zone, kind models.TransitionKind, s models.Sample, occurredAt int64) models.Transition {
	return models.Transition{
		ID:           uuid.NewString(),
		ZoneID:       z.ID,
		ZoneName:     z.Name,
		ZoneCategory: z.Category,
		Kind:         kind,
		Sample:       s,
		OccurredAt:   occurredAt,
	}
}
