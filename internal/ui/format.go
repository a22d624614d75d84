// ABOUTME: Terminal UI formatting utilities
// ABOUTME: Provides human-readable output for zones, transitions, and samples

package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/harper/geofence/internal/models"
)

func faint(s string) string {
	return color.New(color.Faint).Sprint(s)
}

// FormatCoords formats a coordinate pair.
func FormatCoords(lat, lng float64) string {
	return fmt.Sprintf("(%.4f, %.4f)", lat, lng)
}

// FormatDistance formats meters, switching to kilometers above 1000.
func FormatDistance(meters float64) string {
	if meters < 1000 {
		return fmt.Sprintf("%.0fm", meters)
	}
	return fmt.Sprintf("%.1fkm", meters/1000)
}

// FormatZone formats a zone as a single list line.
func FormatZone(z models.Zone) string {
	name := color.GreenString(z.Name)
	if !z.Enabled {
		name = faint(z.Name + " (disabled)")
	}
	return fmt.Sprintf("%s [%s] %s r=%s %s",
		name,
		color.CyanString(string(z.Category)),
		FormatCoords(z.Latitude, z.Longitude),
		FormatDistance(z.RadiusMeters),
		faint(shortID(z.ID)))
}

// FormatZoneDetail formats every field of a zone on its own line.
func FormatZoneDetail(z models.Zone) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", color.GreenString(z.Name))
	fmt.Fprintf(&b, "  ID:       %s\n", z.ID)
	fmt.Fprintf(&b, "  Category: %s\n", z.Category)
	fmt.Fprintf(&b, "  Center:   %s\n", FormatCoords(z.Latitude, z.Longitude))
	fmt.Fprintf(&b, "  Radius:   %s\n", FormatDistance(z.RadiusMeters))
	fmt.Fprintf(&b, "  Enabled:  %s\n", yesNo(z.Enabled))
	fmt.Fprintf(&b, "  Notify:   entry=%s exit=%s\n", yesNo(z.NotifyOnEntry), yesNo(z.NotifyOnExit))
	fmt.Fprintf(&b, "  Created:  %s", FormatRelativeTime(time.UnixMilli(z.CreatedAt)))
	return b.String()
}

// FormatTransition formats a transition log entry.
func FormatTransition(tr models.Transition) string {
	var kind string
	switch tr.Kind {
	case models.TransitionEntry:
		kind = color.GreenString("→ entered")
	case models.TransitionExit:
		kind = color.YellowString("← left")
	default:
		kind = string(tr.Kind)
	}

	line := fmt.Sprintf("%s %s - %s %s",
		kind,
		color.CyanString(tr.ZoneName),
		tr.Time().Format("Jan 2, 3:04 PM"),
		faint(shortID(tr.ID)))
	if !tr.Acknowledged {
		line += " " + color.New(color.Bold).Sprint("*")
	}
	return line
}

// FormatSample formats a history entry.
func FormatSample(s models.Sample) string {
	out := color.CyanString(FormatCoords(s.Latitude, s.Longitude))
	if s.Accuracy != nil {
		out += faint(fmt.Sprintf(" ±%.0fm", *s.Accuracy))
	}
	if t := s.Time(); !t.IsZero() {
		out += " - " + faint(FormatRelativeTime(t))
	}
	return out
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// FormatRelativeTime formats a time as relative to now.
func FormatRelativeTime(t time.Time) string {
	diff := time.Since(t)

	// Handle future times (clock skew, bad data)
	if diff < 0 {
		return color.YellowString("in the future")
	}

	if diff < time.Minute {
		return "just now"
	}
	if diff < time.Hour {
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	}
	if diff < 24*time.Hour {
		hours := int(diff.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	}
	days := int(diff.Hours() / 24)
	if days == 1 {
		return "1 day ago"
	}
	return fmt.Sprintf("%d days ago", days)
}
