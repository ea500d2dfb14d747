package domain

import (
	"slices"
	"time"
)

// Priority bounds. Every mapping's priority lies in [MinPriority, MaxPriority].
const (
	MinPriority = 1
	MaxPriority = 10
)

// Featured placement slots on the site.
const (
	SpaceHomeFeatured        = "home-featured"
	SpaceProgramsFeatured    = "programs-featured"
	SpaceIndividualsFeatured = "individuals-featured"
	SpaceAboutFeatured       = "about-featured"
)

// Mapping associates one testimonial with its tags, destinations and priority.
// There is one mapping per testimonial; it is updated in place and never deleted implicitly.
type Mapping struct {
	TestimonialID  string    `json:"testimonial_id"`
	Tags           []string  `json:"tags"`
	Programs       []string  `json:"programs"`
	Experiences    []string  `json:"experiences"`
	Solutions      []string  `json:"solutions"`
	FeaturedSpaces []string  `json:"featured_spaces"`
	Priority       int       `json:"priority"`
	AutoTagged     bool      `json:"auto_tagged"`
	LastUpdated    time.Time `json:"last_updated"`
}

// NewMapping returns an empty auto-tagged mapping at the neutral priority.
func NewMapping(testimonialID string) *Mapping {
	return &Mapping{
		TestimonialID:  testimonialID,
		Tags:           []string{},
		Programs:       []string{},
		Experiences:    []string{},
		Solutions:      []string{},
		FeaturedSpaces: []string{},
		Priority:       5,
		AutoTagged:     true,
	}
}

// ClampPriority bounds p to [MinPriority, MaxPriority].
func ClampPriority(p int) int {
	return Clamp(p, MinPriority, MaxPriority)
}

// Touch advances LastUpdated to now, or one nanosecond past the previous value
// when the clock has not moved forward.
func (m *Mapping) Touch(now time.Time) {
	if !now.After(m.LastUpdated) {
		now = m.LastUpdated.Add(time.Nanosecond)
	}
	m.LastUpdated = now
}

// SameContent reports whether two mappings carry identical assignments, ignoring LastUpdated.
func (m *Mapping) SameContent(other *Mapping) bool {
	if other == nil {
		return false
	}
	return m.TestimonialID == other.TestimonialID &&
		m.Priority == other.Priority &&
		m.AutoTagged == other.AutoTagged &&
		slices.Equal(m.Tags, other.Tags) &&
		slices.Equal(m.Programs, other.Programs) &&
		slices.Equal(m.Experiences, other.Experiences) &&
		slices.Equal(m.Solutions, other.Solutions) &&
		slices.Equal(m.FeaturedSpaces, other.FeaturedSpaces)
}

// AllTags returns the flat tag list plus every destination and featured-space id, deduplicated.
func (m *Mapping) AllTags() []string {
	out := make([]string, 0, len(m.Tags)+len(m.Programs)+len(m.Experiences)+len(m.Solutions)+len(m.FeaturedSpaces))
	out = append(out, m.Tags...)
	out = append(out, m.Programs...)
	out = append(out, m.Experiences...)
	out = append(out, m.Solutions...)
	out = append(out, m.FeaturedSpaces...)
	return UniqueTags(out)
}
