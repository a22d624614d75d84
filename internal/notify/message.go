// ABOUTME: User-facing notification text for zone transitions
// ABOUTME: Title, body, and priority depend on the zone category and direction

package notify

import (
	"fmt"

	"github.com/harper/geofence/internal/models"
)

// Priority of a user-visible alert.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Message is the rendered alert for one transition.
type Message struct {
	Title    string   `json:"title"`
	Body     string   `json:"body"`
	Priority Priority `json:"priority"`
}

var entryBodies = map[models.Category]string{
	models.CategoryPark:    "This is a popular spot for pet activities. Look out for potential matches!",
	models.CategoryVet:     "Veterinary care is nearby if needed.",
	models.CategoryGroomer: "Your groomer is close by.",
	models.CategoryFriend:  "You're near a friend's place. Say hi!",
}

var exitBodies = map[models.Category]string{
	models.CategoryPark:    "Thanks for visiting this popular pet area!",
	models.CategoryVet:     "You've left the veterinary area.",
	models.CategoryGroomer: "You've left the groomer.",
	models.CategoryFriend:  "You've left your friend's place.",
}

// Compose renders the alert for a transition. Entries into vet zones are
// high priority, other entries medium, and exits low.
func Compose(tr models.Transition) Message {
	if tr.Kind == models.TransitionExit {
		body, ok := exitBodies[tr.ZoneCategory]
		if !ok {
			body = "You've left the marked area."
		}
		return Message{
			Title:    fmt.Sprintf("Left %s", tr.ZoneName),
			Body:     body,
			Priority: PriorityLow,
		}
	}

	body, ok := entryBodies[tr.ZoneCategory]
	if !ok {
		body = "You've entered a marked area."
	}
	priority := PriorityMedium
	if tr.ZoneCategory == models.CategoryVet {
		priority = PriorityHigh
	}
	return Message{
		Title:    fmt.Sprintf("Entered %s", tr.ZoneName),
		Body:     body,
		Priority: priority,
	}
}
