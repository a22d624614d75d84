// ABOUTME: Core data models for samples, zones, and transitions
// ABOUTME: Provides validated constructors for entities crossing package boundaries

package models

import (
	"math"
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

// ValidateCoordinates checks if latitude and longitude are within valid ranges.
func ValidateCoordinates(lat, lng float64) error {
	if math.IsNaN(lat) || math.IsNaN(lng) {
		return &ValidationError{Field: "coordinates", Reason: "cannot be NaN"}
	}
	if math.IsInf(lat, 0) || math.IsInf(lng, 0) {
		return &ValidationError{Field: "coordinates", Reason: "cannot be infinite"}
	}
	if lat < -90 || lat > 90 {
		return &ValidationError{Field: "latitude", Reason: "must be between -90 and 90"}
	}
	if lng < -180 || lng > 180 {
		return &ValidationError{Field: "longitude", Reason: "must be between -180 and 180"}
	}
	return nil
}

// MaxNameLength is the longest zone name accepted, in characters.
const MaxNameLength = 255

// ValidateName checks that name is not blank and at most MaxNameLength
// characters once surrounding whitespace is trimmed.
func ValidateName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return &ValidationError{Field: "name", Reason: "cannot be empty or whitespace"}
	}
	if utf8.RuneCountInString(trimmed) > MaxNameLength {
		return &ValidationError{Field: "name", Reason: "too long (max 255 characters)"}
	}
	return nil
}

// ValidateRadius rejects zero, negative, and non-finite radii.
func ValidateRadius(radius float64) error {
	if math.IsNaN(radius) || math.IsInf(radius, 0) {
		return &ValidationError{Field: "radius", Reason: "must be a finite number"}
	}
	if radius <= 0 {
		return &ValidationError{Field: "radius", Reason: "must be greater than zero"}
	}
	return nil
}

// Sample is one timestamped device position reading.
type Sample struct {
	Latitude   float64  `json:"latitude" yaml:"latitude"`
	Longitude  float64  `json:"longitude" yaml:"longitude"`
	Accuracy   *float64 `json:"accuracy,omitempty" yaml:"accuracy,omitempty"`
	Altitude   *float64 `json:"altitude,omitempty" yaml:"altitude,omitempty"`
	Heading    *float64 `json:"heading,omitempty" yaml:"heading,omitempty"`
	Speed      *float64 `json:"speed,omitempty" yaml:"speed,omitempty"`
	CapturedAt int64    `json:"captured_at_ms" yaml:"captured_at_ms"`
}

// NewSample creates a sample after validating its coordinates.
// A zero capturedAt is replaced with the current time.
func NewSample(lat, lng float64, capturedAt time.Time) (Sample, error) {
	if err := ValidateCoordinates(lat, lng); err != nil {
		return Sample{}, err
	}
	if capturedAt.IsZero() {
		capturedAt = time.Now()
	}
	return Sample{
		Latitude:   lat,
		Longitude:  lng,
		CapturedAt: capturedAt.UnixMilli(),
	}, nil
}

// Time returns the capture time, or the zero time if it was never set.
func (s Sample) Time() time.Time {
	if s.CapturedAt == 0 {
		return time.Time{}
	}
	return time.UnixMilli(s.CapturedAt)
}

// Float returns a pointer to v, for filling optional sample fields.
func Float(v float64) *float64 {
	return &v
}

// Category classifies a zone.
type Category string

const (
	CategoryPark    Category = "park"
	CategoryVet     Category = "vet"
	CategoryGroomer Category = "groomer"
	CategoryFriend  Category = "friend"
	CategoryCustom  Category = "custom"
)

// Categories lists every valid zone category.
var Categories = []Category{CategoryPark, CategoryVet, CategoryGroomer, CategoryFriend, CategoryCustom}

// ParseCategory converts a string into a Category, defaulting empty input to custom.
func ParseCategory(s string) (Category, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return CategoryCustom, nil
	}
	for _, c := range Categories {
		if string(c) == s {
			return c, nil
		}
	}
	return "", &ValidationError{Field: "category", Reason: "must be one of park, vet, groomer, friend, custom"}
}

// Zone is a circular geographic region.
type Zone struct {
	ID            string   `json:"id" yaml:"id"`
	Name          string   `json:"name" yaml:"name"`
	Latitude      float64  `json:"latitude" yaml:"latitude"`
	Longitude     float64  `json:"longitude" yaml:"longitude"`
	RadiusMeters  float64  `json:"radius_meters" yaml:"radius_meters"`
	Category      Category `json:"category" yaml:"category"`
	Enabled       bool     `json:"enabled" yaml:"enabled"`
	NotifyOnEntry bool     `json:"notify_on_entry" yaml:"notify_on_entry"`
	NotifyOnExit  bool     `json:"notify_on_exit" yaml:"notify_on_exit"`
	CreatedAt     int64    `json:"created_at_ms" yaml:"created_at_ms"`
}

// Validate checks every user-supplied field of the zone.
func (z Zone) Validate() error {
	if err := ValidateName(z.Name); err != nil {
		return err
	}
	if err := ValidateCoordinates(z.Latitude, z.Longitude); err != nil {
		return err
	}
	if err := ValidateRadius(z.RadiusMeters); err != nil {
		return err
	}
	if _, err := ParseCategory(string(z.Category)); err != nil {
		return err
	}
	return nil
}

// ZoneDef is the input for creating a zone.
type ZoneDef struct {
	Name          string   `json:"name" yaml:"name"`
	Latitude      float64  `json:"latitude" yaml:"latitude"`
	Longitude     float64  `json:"longitude" yaml:"longitude"`
	RadiusMeters  float64  `json:"radius_meters" yaml:"radius_meters"`
	Category      Category `json:"category" yaml:"category"`
	Enabled       bool     `json:"enabled" yaml:"enabled"`
	NotifyOnEntry bool     `json:"notify_on_entry" yaml:"notify_on_entry"`
	NotifyOnExit  bool     `json:"notify_on_exit" yaml:"notify_on_exit"`
}

// NewZoneDef returns an enabled definition that notifies on entry and exit.
func NewZoneDef(name string, lat, lng, radius float64, category Category) ZoneDef {
	return ZoneDef{
		Name:          name,
		Latitude:      lat,
		Longitude:     lng,
		RadiusMeters:  radius,
		Category:      category,
		Enabled:       true,
		NotifyOnEntry: true,
		NotifyOnExit:  true,
	}
}

// ZonePatch is a partial zone update. Nil fields are left unchanged.
type ZonePatch struct {
	Name          *string   `json:"name,omitempty"`
	Latitude      *float64  `json:"latitude,omitempty"`
	Longitude     *float64  `json:"longitude,omitempty"`
	RadiusMeters  *float64  `json:"radius_meters,omitempty"`
	Category      *Category `json:"category,omitempty"`
	Enabled       *bool     `json:"enabled,omitempty"`
	NotifyOnEntry *bool     `json:"notify_on_entry,omitempty"`
	NotifyOnExit  *bool     `json:"notify_on_exit,omitempty"`
}

// Apply returns a copy of z with the patch applied. The ID and creation time never change.
func (p ZonePatch) Apply(z Zone) Zone {
	if p.Name != nil {
		z.Name = strings.TrimSpace(*p.Name)
	}
	if p.Latitude != nil {
		z.Latitude = *p.Latitude
	}
	if p.Longitude != nil {
		z.Longitude = *p.Longitude
	}
	if p.RadiusMeters != nil {
		z.RadiusMeters = *p.RadiusMeters
	}
	if p.Category != nil {
		z.Category = *p.Category
	}
	if p.Enabled != nil {
		z.Enabled = *p.Enabled
	}
	if p.NotifyOnEntry != nil {
		z.NotifyOnEntry = *p.NotifyOnEntry
	}
	if p.NotifyOnExit != nil {
		z.NotifyOnExit = *p.NotifyOnExit
	}
	return z
}

// IsEmpty reports whether the patch changes nothing.
func (p ZonePatch) IsEmpty() bool {
	return p == ZonePatch{}
}

// Membership is the set of zone IDs containing a sample.
type Membership map[string]struct{}

// NewMembership builds a membership set from IDs.
func NewMembership(ids ...string) Membership {
	m := make(Membership, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return m
}

// Contains reports whether id is a member.
func (m Membership) Contains(id string) bool {
	_, ok := m[id]
	return ok
}

// Len returns the number of members.
func (m Membership) Len() int {
	return len(m)
}

// IDs returns the members sorted.
func (m Membership) IDs() []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Clone returns an independent copy.
func (m Membership) Clone() Membership {
	c := make(Membership, len(m))
	for id := range m {
		c[id] = struct{}{}
	}
	return c
}

// Equal reports whether both sets hold the same IDs.
func (m Membership) Equal(other Membership) bool {
	if len(m) != len(other) {
		return false
	}
	for id := range m {
		if !other.Contains(id) {
			return false
		}
	}
	return true
}

// TransitionKind is the direction of a zone transition.
type TransitionKind string

const (
	TransitionEntry TransitionKind = "entry"
	TransitionExit  TransitionKind = "exit"
)

// Transition is a detected entry into or exit from a single zone.
type Transition struct {
	ID           string         `json:"id" yaml:"id"`
	ZoneID       string         `json:"zone_id" yaml:"zone_id"`
	ZoneName     string         `json:"zone_name" yaml:"zone_name"`
	ZoneCategory Category       `json:"zone_category,omitempty" yaml:"zone_category,omitempty"`
	Kind         TransitionKind `json:"kind" yaml:"kind"`
	Sample       Sample         `json:"sample" yaml:"sample"`
	OccurredAt   int64          `json:"occurred_at_ms" yaml:"occurred_at_ms"`
	Acknowledged bool           `json:"acknowledged" yaml:"acknowledged"`
}

// Time returns when the transition occurred.
func (t Transition) Time() time.Time {
	return time.UnixMilli(t.OccurredAt)
}
