package export

import (
	"time"

	"github.com/listenupapp/testimonials/internal/domain"
)

// FormatVersion is the artifact format version. Increment major on breaking changes.
const FormatVersion = "1.0"

// Artifact is the document the site build consumes.
type Artifact struct {
	Version      string              `json:"version"`
	RulesVersion string              `json:"rulesVersion"`
	GeneratedAt  time.Time           `json:"generatedAt"`
	Testimonials []Testimonial       `json:"testimonials"`
	Programs     map[string][]string `json:"programs"`
	Experiences  map[string][]string `json:"experiences"`
	Solutions    map[string][]string `json:"solutions"`
	Featured     map[string][]string `json:"featured"`
	Playlists    Playlists           `json:"playlists"`
}

// Testimonial is the published shape of one record.
type Testimonial struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Author    Author    `json:"author"`
	Rating    int       `json:"rating"`
	Verified  bool      `json:"verified"`
	Featured  bool      `json:"featured"`
	Tags      []string  `json:"tags"`
	CreatedAt Timestamp `json:"createdAt"`
	SourceURL string    `json:"sourceUrl,omitempty"`
}

// Author is the published author block.
type Author struct {
	Name    string  `json:"name"`
	Title   string  `json:"title,omitempty"`
	Company string  `json:"company,omitempty"`
	Avatar  *Avatar `json:"avatar,omitempty"`
}

// Avatar points at the stored image and carries what the site needs to paint a placeholder.
type Avatar struct {
	Src       string `json:"src"`
	Generated bool   `json:"generated"`
	Initials  string `json:"initials,omitempty"`
	Color     string `json:"color,omitempty"`
	BlurHash  string `json:"blurHash,omitempty"`
}

// Timestamp is the document-database timestamp shape the site expects.
type Timestamp struct {
	Seconds     int64 `json:"seconds"`
	Nanoseconds int   `json:"nanoseconds"`
}

// Playlists are the generated rankings.
type Playlists struct {
	Home         []string            `json:"home"`
	Testimonials []string            `json:"testimonials"`
	Destinations map[string][]string `json:"destinations"`
}

// NewTimestamp splits t into whole seconds and the nanosecond remainder. The zero time is {0, 0}.
func NewTimestamp(t time.Time) Timestamp {
	if t.IsZero() {
		return Timestamp{}
	}
	return Timestamp{Seconds: t.Unix(), Nanoseconds: t.Nanosecond()}
}

func newTestimonial(t *domain.Testimonial, tags []string) Testimonial {
	out := Testimonial{
		ID:   t.ID,
		Text: t.Text,
		Author: Author{
			Name:    t.Author.Name,
			Title:   t.Author.Title,
			Company: t.Author.Company,
		},
		Rating:    t.Rating,
		Verified:  t.Verified,
		Featured:  t.Featured,
		Tags:      tags,
		CreatedAt: NewTimestamp(t.CreatedAt),
		SourceURL: t.Source.URL,
	}
	if a := t.Author.Avatar; a != nil {
		out.Author.Avatar = &Avatar{
			Src:       a.Path,
			Generated: a.Generated,
			Initials:  a.Initials,
			Color:     a.Color,
			BlurHash:  a.BlurHash,
		}
	}
	return out
}
