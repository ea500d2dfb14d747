package domain

import (
	"slices"
	"time"
)

// TagType classifies what a tag points at on the site.
type TagType string

// Tag types. Program, experience and solution tags name a destination page;
// featured tags name a placement slot; custom tags are free-form.
const (
	TagTypeProgram    TagType = "program"
	TagTypeExperience TagType = "experience"
	TagTypeSolution   TagType = "solution"
	TagTypeFeatured   TagType = "featured"
	TagTypeCustom     TagType = "custom"
)

// TagTypes lists every valid tag type in display order.
var TagTypes = []TagType{TagTypeProgram, TagTypeExperience, TagTypeSolution, TagTypeFeatured, TagTypeCustom}

// Valid reports whether t is one of the known tag types.
func (t TagType) Valid() bool {
	return slices.Contains(TagTypes, t)
}

// IsDestination reports whether tags of this type get their own playlist.
func (t TagType) IsDestination() bool {
	return t == TagTypeProgram || t == TagTypeExperience || t == TagTypeSolution
}

// Tag is an admin-managed label that is also seeded with defaults.
// The ID is the canonical slug ("breathwork-facilitator-training").
type Tag struct {
	ID        string    `json:"id" validate:"required"`
	Name      string    `json:"name" validate:"required"`
	Type      TagType   `json:"type" validate:"required,oneof=program experience solution featured custom"`
	TargetID  string    `json:"target_id,omitempty"` // Page or slot on the site this tag routes to
	Order     int       `json:"order"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UniqueTags returns tags with duplicates removed, keeping first occurrences in order.
// Empty strings are dropped.
func UniqueTags(tags []string) []string {
	if len(tags) == 0 {
		return []string{}
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// AppendUnique appends values to tags that are not already present.
func AppendUnique(tags []string, values ...string) []string {
	for _, v := range values {
		if v == "" || slices.Contains(tags, v) {
			continue
		}
		tags = append(tags, v)
	}
	return tags
}
