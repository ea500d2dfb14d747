package domain

// PlaylistConfig is the static ranking configuration for one destination.
type PlaylistConfig struct {
	DestinationID string   `json:"destination_id" toml:"destination_id" validate:"required"`
	Name          string   `json:"name" toml:"name" validate:"required"`
	Type          TagType  `json:"type" toml:"type" validate:"required,oneof=program experience solution"`
	TargetTags    []string `json:"target_tags" toml:"target_tags" validate:"required,min=1"`
	MaxCount      int      `json:"max_count" toml:"max_count" validate:"gte=1"`
}

// GeneratedPlaylists is recomputed on every export and is not stored on its own.
type GeneratedPlaylists struct {
	Home            []string            `json:"home"`
	AllTestimonials []string            `json:"testimonials"`
	PerDestination  map[string][]string `json:"destinations"`
}
