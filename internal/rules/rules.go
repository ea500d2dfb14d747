// Package rules holds the curation data tables: language word lists, the sentiment lexicon,
// quality bands, topics, name patterns, content targets, trusted platforms, default tags and
// playlist configuration. Tables are versioned TOML, validated on load and immutable afterwards.
package rules

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/pelletier/go-toml/v2"

	"github.com/listenupapp/testimonials/internal/domain"
	domainerrors "github.com/listenupapp/testimonials/internal/errors"
	"github.com/listenupapp/testimonials/internal/validation"
)

//go:embed rules.toml
var embedded []byte

// Language is a per-language word list used for detection.
type Language struct {
	Code  string   `toml:"code" validate:"required"`
	Words []string `toml:"words" validate:"required,min=1"`
}

// Sentiment is the weighted keyword and phrase lexicon.
type Sentiment struct {
	PhraseWeight     int      `toml:"phrase_weight" validate:"gte=1"`
	Margin           int      `toml:"margin" validate:"gte=0"`
	PositiveKeywords []string `toml:"positive_keywords" validate:"required,min=1"`
	NegativeKeywords []string `toml:"negative_keywords" validate:"required,min=1"`
	PositivePhrases  []string `toml:"positive_phrases"`
	NegativePhrases  []string `toml:"negative_phrases"`
}

// QualityBand maps a coerced rating to its quality tag.
type QualityBand struct {
	Rating int    `toml:"rating" validate:"gte=1,lte=5"`
	Tag    string `toml:"tag" validate:"required"`
}

// Topic maps keywords to a topic tag.
type Topic struct {
	Tag      string   `toml:"tag" validate:"required"`
	Keywords []string `toml:"keywords" validate:"required,min=1"`
}

// ContentTarget routes a keyword to destination tag ids.
type ContentTarget struct {
	Keyword string   `toml:"keyword" validate:"required"`
	Targets []string `toml:"targets" validate:"required,min=1"`
}

// Trust configures platform-based priority boosts.
type Trust struct {
	MostTrusted    string `toml:"most_trusted" validate:"required"`
	Primary        string `toml:"primary" validate:"required"`
	PrimaryBoost   int    `toml:"primary_boost"`
	Secondary      string `toml:"secondary"`
	SecondaryBoost int    `toml:"secondary_boost"`
}

// DefaultTag is a tag seeded by "tag init".
type DefaultTag struct {
	ID       string         `toml:"id" validate:"required"`
	Name     string         `toml:"name" validate:"required"`
	Type     domain.TagType `toml:"type" validate:"required,oneof=program experience solution featured custom"`
	TargetID string         `toml:"target_id"`
	Order    int            `toml:"order"`
}

// Playlists configures the generated playlists.
type Playlists struct {
	HomeCount      int                     `toml:"home_count" validate:"gte=1"`
	ExcellenceTags []string                `toml:"excellence_tags" validate:"required,min=1"`
	Destinations   []domain.PlaylistConfig `toml:"destinations" validate:"dive"`
}

// Set is one loaded, validated rules table.
type Set struct {
	Version            string          `toml:"version" validate:"required"`
	BaseLanguage       string          `toml:"base_language" validate:"required"`
	UnknownAuthor      string          `toml:"unknown_author" validate:"required"`
	PlaceholderAuthors []string        `toml:"placeholder_authors"`
	DetailedLength     int             `toml:"detailed_length" validate:"gte=1"`
	BriefLength        int             `toml:"brief_length" validate:"gte=1"`
	StarTagSuffix      string          `toml:"star_tag_suffix" validate:"required"`
	TopicalTags        []string        `toml:"topical_tags"`
	NamePatterns       []string        `toml:"name_patterns" validate:"required,min=1"`
	Languages          []Language      `toml:"languages" validate:"required,min=1,dive"`
	Sentiment          Sentiment       `toml:"sentiment"`
	QualityBands       []QualityBand   `toml:"quality_bands" validate:"len=5,dive"`
	Topics             []Topic         `toml:"topics" validate:"dive"`
	ContentTargets     []ContentTarget `toml:"content_targets" validate:"dive"`
	Trust              Trust           `toml:"trust"`
	DefaultTags        []DefaultTag    `toml:"default_tags" validate:"dive"`
	Playlists          Playlists       `toml:"playlists"`

	namePatterns []*regexp.Regexp
	bands        map[int]string
	bandTags     map[string]struct{}
	placeholders map[string]struct{}
	tagTypes     map[string]domain.TagType
}

// Default returns the embedded rules, parsed once per process.
var Default = sync.OnceValues(func() (*Set, error) {
	return Parse(embedded)
})

// MustDefault returns the embedded rules and panics if they are invalid.
func MustDefault() *Set {
	s, err := Default()
	if err != nil {
		panic(fmt.Sprintf("embedded rules: %v", err))
	}
	return s
}

// Load reads rules from path. An empty path returns the embedded defaults.
func Load(path string) (*Set, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules %s: %w", path, err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("rules %s: %w", path, err)
	}
	return s, nil
}

// Parse decodes and validates a TOML rules document.
func Parse(data []byte) (*Set, error) {
	var s Set
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeValidation, "decode rules")
	}
	if err := validation.Default().Validate(&s); err != nil {
		return nil, err
	}
	if err := s.compile(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Set) compile() error {
	s.namePatterns = make([]*regexp.Regexp, 0, len(s.NamePatterns))
	for i, p := range s.NamePatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return domainerrors.Validationf("name_patterns[%d]: %v", i, err)
		}
		if re.NumSubexp() < 1 {
			return domainerrors.Validationf("name_patterns[%d]: needs a capture group", i)
		}
		s.namePatterns = append(s.namePatterns, re)
	}

	s.bands = make(map[int]string, len(s.QualityBands))
	s.bandTags = make(map[string]struct{}, len(s.QualityBands))
	for _, b := range s.QualityBands {
		if _, dup := s.bands[b.Rating]; dup {
			return domainerrors.Validationf("quality_bands: rating %d listed twice", b.Rating)
		}
		if _, dup := s.bandTags[b.Tag]; dup {
			return domainerrors.Validationf("quality_bands: tag %q listed twice", b.Tag)
		}
		s.bands[b.Rating] = b.Tag
		s.bandTags[b.Tag] = struct{}{}
	}
	for r := domain.MinRating; r <= domain.MaxRating; r++ {
		if _, ok := s.bands[r]; !ok {
			return domainerrors.Validationf("quality_bands: no band for rating %d", r)
		}
	}

	s.placeholders = make(map[string]struct{}, len(s.PlaceholderAuthors)+1)
	for _, p := range s.PlaceholderAuthors {
		s.placeholders[strings.ToLower(strings.TrimSpace(p))] = struct{}{}
	}
	s.placeholders[strings.ToLower(s.UnknownAuthor)] = struct{}{}

	s.tagTypes = make(map[string]domain.TagType, len(s.DefaultTags))
	for _, t := range s.DefaultTags {
		if _, dup := s.tagTypes[t.ID]; dup {
			return domainerrors.Validationf("default_tags: id %q listed twice", t.ID)
		}
		s.tagTypes[t.ID] = t.Type
	}
	for _, ct := range s.ContentTargets {
		for _, target := range ct.Targets {
			if _, ok := s.tagTypes[target]; !ok {
				return domainerrors.Validationf("content_targets[%s]: unknown tag %q", ct.Keyword, target)
			}
		}
	}

	found := false
	for _, l := range s.Languages {
		if l.Code == s.BaseLanguage {
			found = true
			break
		}
	}
	if !found {
		return domainerrors.Validationf("base_language %q has no word list", s.BaseLanguage)
	}
	return nil
}

// BandFor returns the quality tag for a coerced rating.
func (s *Set) BandFor(rating int) string {
	return s.bands[domain.Clamp(rating, domain.MinRating, domain.MaxRating)]
}

// IsBandTag reports whether tag is one of the quality band tags.
func (s *Set) IsBandTag(tag string) bool {
	_, ok := s.bandTags[tag]
	return ok
}

// StarTag returns the star tag for a rating ("5-star").
func (s *Set) StarTag(rating int) string {
	return fmt.Sprintf("%d%s", domain.Clamp(rating, domain.MinRating, domain.MaxRating), s.StarTagSuffix)
}

// IsPlaceholderAuthor reports whether name is empty or a known stand-in such as "Anonymous".
func (s *Set) IsPlaceholderAuthor(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return true
	}
	_, ok := s.placeholders[name]
	return ok
}

// CompiledNamePatterns returns the name-introduction patterns in priority order.
func (s *Set) CompiledNamePatterns() []*regexp.Regexp {
	return s.namePatterns
}

// TagTypeOf returns the type of a seeded tag id.
func (s *Set) TagTypeOf(id string) (domain.TagType, bool) {
	t, ok := s.tagTypes[id]
	return t, ok
}

// Tags returns the default tags as domain tags, active and unstamped.
func (s *Set) Tags() []domain.Tag {
	out := make([]domain.Tag, 0, len(s.DefaultTags))
	for _, d := range s.DefaultTags {
		out = append(out, domain.Tag{
			ID:       d.ID,
			Name:     d.Name,
			Type:     d.Type,
			TargetID: d.TargetID,
			Order:    d.Order,
			Active:   true,
		})
	}
	return out
}
