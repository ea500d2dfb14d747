// Package scoring computes testimonial priority and assigns tags, destinations and
// featured spaces to mappings.
package scoring

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/listenupapp/testimonials/internal/content"
	"github.com/listenupapp/testimonials/internal/domain"
	"github.com/listenupapp/testimonials/internal/rules"
)

// Priority and featured-space thresholds.
const (
	basePriority       = 5
	neutralRating      = 3
	longTextLength     = 200
	veryLongTextLength = 500
	homeFeatureLength  = 100
	aboutPriority      = 8
)

// Tagger scores testimonials and builds their mappings.
// It is stateless apart from the tag types it was built with and safe for concurrent use.
type Tagger struct {
	rules    *rules.Set
	tagTypes map[string]domain.TagType
	inactive map[string]struct{}
	topics   map[string]map[string]struct{}
}

// NewTagger builds a tagger. Tag types come from tags (the stored tag set), falling back
// to the default tag table for ids the store does not know. Inactive tags are never assigned.
func NewTagger(r *rules.Set, tags []domain.Tag) *Tagger {
	t := &Tagger{
		rules:    r,
		tagTypes: make(map[string]domain.TagType, len(tags)),
		inactive: make(map[string]struct{}),
		topics:   make(map[string]map[string]struct{}, len(r.Topics)),
	}
	for _, tag := range tags {
		t.tagTypes[tag.ID] = tag.Type
		if !tag.Active {
			t.inactive[tag.ID] = struct{}{}
		}
	}
	for _, topic := range r.Topics {
		set := make(map[string]struct{}, len(topic.Keywords))
		for _, k := range topic.Keywords {
			set[strings.ToLower(k)] = struct{}{}
		}
		t.topics[topic.Tag] = set
	}
	return t
}

func (tg *Tagger) typeOf(id string) (domain.TagType, bool) {
	if _, off := tg.inactive[id]; off {
		return "", false
	}
	if typ, ok := tg.tagTypes[id]; ok {
		return typ, true
	}
	return tg.rules.TagTypeOf(id)
}

// CalculatePriority scores a testimonial on [MinPriority, MaxPriority].
func (tg *Tagger) CalculatePriority(t *domain.Testimonial) int {
	p := basePriority + (t.Rating - neutralRating)

	n := utf8.RuneCountInString(t.Text)
	if n > longTextLength {
		p++
	}
	if n > veryLongTextLength {
		p++
	}
	if t.Verified {
		p++
	}
	if t.Sentiment == domain.SentimentPositive {
		p++
	}
	if strings.EqualFold(t.Source.Platform, tg.rules.Trust.MostTrusted) {
		p++
	}
	return domain.ClampPriority(p)
}

// AutoTagByContent routes content keywords to destination buckets and adds topical and
// quality tags. A keyword hits when it is a word of the text or one of the record's tags.
func (tg *Tagger) AutoTagByContent(t *domain.Testimonial, m *domain.Mapping) {
	words := make(map[string]struct{})
	for _, w := range content.Tokens(t.Text) {
		words[w] = struct{}{}
	}
	hit := func(keyword string) bool {
		if _, ok := words[keyword]; ok {
			return true
		}
		return t.HasTag(keyword)
	}

	for _, ct := range tg.rules.ContentTargets {
		if !hit(strings.ToLower(ct.Keyword)) {
			continue
		}
		for _, target := range ct.Targets {
			typ, ok := tg.typeOf(target)
			if !ok {
				continue
			}
			switch typ {
			case domain.TagTypeProgram:
				m.Programs = domain.AppendUnique(m.Programs, target)
			case domain.TagTypeExperience:
				m.Experiences = domain.AppendUnique(m.Experiences, target)
			case domain.TagTypeSolution:
				m.Solutions = domain.AppendUnique(m.Solutions, target)
			default:
				continue
			}
			m.Tags = domain.AppendUnique(m.Tags, target)
		}
	}

	for _, tag := range tg.rules.TopicalTags {
		if hit(tag) || tg.topicHit(tag, words) {
			m.Tags = domain.AppendUnique(m.Tags, tag)
		}
	}

	if t.Rating >= domain.MaxRating {
		m.Tags = domain.AppendUnique(m.Tags, tg.rules.BandFor(domain.MaxRating))
	}
	if utf8.RuneCountInString(t.Text) > longTextLength {
		m.Tags = domain.AppendUnique(m.Tags, content.TagDetailed)
	}
	if t.Verified {
		m.Tags = domain.AppendUnique(m.Tags, content.TagVerified)
	}
}

func (tg *Tagger) topicHit(tag string, words map[string]struct{}) bool {
	for k := range tg.topics[tag] {
		if _, ok := words[k]; ok {
			return true
		}
	}
	return false
}

// SourceBoost returns the trust boost for a platform.
func (tg *Tagger) SourceBoost(platform string) int {
	trust := tg.rules.Trust
	switch {
	case strings.EqualFold(platform, trust.Primary):
		return trust.PrimaryBoost
	case trust.Secondary != "" && strings.EqualFold(platform, trust.Secondary):
		return trust.SecondaryBoost
	}
	return 0
}

// AutoTagBySource adds the platform trust boost to the mapping's current priority.
// Callers start from a freshly calculated priority, so repeated runs do not accumulate.
func (tg *Tagger) AutoTagBySource(t *domain.Testimonial, m *domain.Mapping) {
	m.Priority = domain.ClampPriority(m.Priority + tg.SourceBoost(t.Source.Platform))
}

// AutoTagForFeaturedSpaces applies every featured-space rule that holds.
func (tg *Tagger) AutoTagForFeaturedSpaces(t *domain.Testimonial, m *domain.Mapping) {
	if t.Rating >= domain.MaxRating && utf8.RuneCountInString(t.Text) > homeFeatureLength {
		m.FeaturedSpaces = domain.AppendUnique(m.FeaturedSpaces, domain.SpaceHomeFeatured)
	}
	if len(m.Programs) > 0 {
		m.FeaturedSpaces = domain.AppendUnique(m.FeaturedSpaces, domain.SpaceProgramsFeatured)
	}
	if len(m.Experiences) > 0 {
		m.FeaturedSpaces = domain.AppendUnique(m.FeaturedSpaces, domain.SpaceIndividualsFeatured)
	}
	if m.Priority >= aboutPriority {
		m.FeaturedSpaces = domain.AppendUnique(m.FeaturedSpaces, domain.SpaceAboutFeatured)
	}
}

// Build computes a mapping from scratch for t.
func (tg *Tagger) Build(t *domain.Testimonial) *domain.Mapping {
	m := domain.NewMapping(t.ID)
	m.Priority = tg.CalculatePriority(t)
	tg.AutoTagByContent(t, m)
	tg.AutoTagBySource(t, m)
	tg.AutoTagForFeaturedSpaces(t, m)
	return m
}

// ApplyOne returns the mapping t should have and whether it differs from existing.
// Admin-curated mappings (AutoTagged false) are returned untouched.
func (tg *Tagger) ApplyOne(t *domain.Testimonial, existing *domain.Mapping, now time.Time) (*domain.Mapping, bool) {
	if existing != nil && !existing.AutoTagged {
		return existing, false
	}
	m := tg.Build(t)
	if existing != nil {
		if existing.SameContent(m) {
			return existing, false
		}
		m.LastUpdated = existing.LastUpdated
	}
	m.Touch(now)
	return m, true
}

// Apply maps every testimonial in corpus and returns only the mappings that changed.
// Re-applying to an unchanged corpus with the previous result returns nothing.
func (tg *Tagger) Apply(corpus []*domain.Testimonial, existing map[string]*domain.Mapping, now time.Time) []*domain.Mapping {
	var changed []*domain.Mapping
	for _, t := range corpus {
		m, ok := tg.ApplyOne(t, existing[t.ID], now)
		if ok {
			changed = append(changed, m)
		}
	}
	return changed
}
