package domain

import (
	"math"
	"time"
)

// Rating bounds. Every persisted rating lies in [MinRating, MaxRating].
const (
	MinRating = 1
	MaxRating = 5
)

// Sentiment is the coarse polarity of a testimonial's text.
type Sentiment string

// Sentiment values.
const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// Author describes who wrote a testimonial.
type Author struct {
	Name     string  `json:"name"`
	Title    string  `json:"title,omitempty"`
	Company  string  `json:"company,omitempty"`
	ImageURL string  `json:"image_url,omitempty"` // Source-provided image, if any
	Avatar   *Avatar `json:"avatar,omitempty"`
}

// Avatar is the resolved author image: either downloaded from the source or synthesized.
type Avatar struct {
	Path      string `json:"path"`
	Generated bool   `json:"generated"`
	Initials  string `json:"initials,omitempty"`
	Color     string `json:"color,omitempty"`
	BlurHash  string `json:"blur_hash,omitempty"`
	SourceURL string `json:"source_url,omitempty"`
}

// Source records where a testimonial came from.
// URL is provenance only. Several legitimate records may share one, so it never identifies a record.
type Source struct {
	Platform string `json:"platform" validate:"required"`
	ID       string `json:"id,omitempty"`
	URL      string `json:"url,omitempty"`
}

// Media is an attachment carried by the source record.
type Media struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// RawTestimonial is a source-provided record as produced by an adapter.
type RawTestimonial struct {
	ID        string    `json:"id,omitempty"`
	Author    Author    `json:"author"`
	Text      string    `json:"text" validate:"required"`
	Rating    float64   `json:"rating"`
	Verified  bool      `json:"verified"`
	Featured  bool      `json:"featured"`
	Source    Source    `json:"source"`
	Media     []Media   `json:"media,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Testimonial is the normalized record. Once it has passed through the store it is the
// canonical persisted form, keyed by its stable ID.
type Testimonial struct {
	ID         string    `json:"id"`
	Author     Author    `json:"author"`
	Text       string    `json:"text"`
	Rating     int       `json:"rating"`
	Verified   bool      `json:"verified"`
	Featured   bool      `json:"featured"`
	Source     Source    `json:"source"`
	Media      []Media   `json:"media,omitempty"`
	Tags       []string  `json:"tags"`
	Language   string    `json:"language"`
	Sentiment  Sentiment `json:"sentiment"`
	CreatedAt  time.Time `json:"created_at"`
	ImportedAt time.Time `json:"imported_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// CoerceRating rounds a raw rating half-up and clamps it to [MinRating, MaxRating].
// Missing (zero) and NaN ratings become MinRating.
func CoerceRating(r float64) int {
	if math.IsNaN(r) {
		return MinRating
	}
	return Clamp(int(math.Floor(r+0.5)), MinRating, MaxRating)
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// HasTag reports whether the testimonial carries tag.
func (t *Testimonial) HasTag(tag string) bool {
	for _, existing := range t.Tags {
		if existing == tag {
			return true
		}
	}
	return false
}

// Merge overlays the non-zero fields of update onto t, preserving everything update leaves unset.
// ImportedAt is never overwritten once set.
func (t *Testimonial) Merge(update *Testimonial) {
	if update.Author.Name != "" {
		t.Author.Name = update.Author.Name
	}
	if update.Author.Title != "" {
		t.Author.Title = update.Author.Title
	}
	if update.Author.Company != "" {
		t.Author.Company = update.Author.Company
	}
	if update.Author.ImageURL != "" {
		t.Author.ImageURL = update.Author.ImageURL
	}
	if update.Author.Avatar != nil {
		t.Author.Avatar = update.Author.Avatar
	}
	if update.Text != "" {
		t.Text = update.Text
	}
	if update.Rating != 0 {
		t.Rating = update.Rating
	}
	// Booleans only ever promote: a later source that omits the flag does not clear it.
	t.Verified = t.Verified || update.Verified
	t.Featured = t.Featured || update.Featured
	if update.Source.Platform != "" {
		t.Source.Platform = update.Source.Platform
	}
	if update.Source.ID != "" {
		t.Source.ID = update.Source.ID
	}
	if update.Source.URL != "" {
		t.Source.URL = update.Source.URL
	}
	if len(update.Media) > 0 {
		t.Media = update.Media
	}
	if len(update.Tags) > 0 {
		t.Tags = UniqueTags(update.Tags)
	}
	if update.Language != "" {
		t.Language = update.Language
	}
	if update.Sentiment != "" {
		t.Sentiment = update.Sentiment
	}
	if !update.CreatedAt.IsZero() {
		t.CreatedAt = update.CreatedAt
	}
	if t.ImportedAt.IsZero() {
		t.ImportedAt = update.ImportedAt
	}
	if !update.UpdatedAt.IsZero() {
		t.UpdatedAt = update.UpdatedAt
	}
}
