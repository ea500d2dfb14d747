// Package playlist ranks the persisted corpus into per-destination playlists.
package playlist

import (
	"cmp"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/listenupapp/testimonials/internal/domain"
	"github.com/listenupapp/testimonials/internal/rules"
)

// Relevance weights.
const (
	ratingWeight      = 2
	featuredBonus     = 5
	matchWeight       = 3
	verifiedBonus     = 1
	mediumTextLength  = 100
	mediumTextBonus   = 2
	longTextLength    = 200
	longTextBonus     = 3
	defaultMaxPerPage = 10
)

// Candidate is a testimonial as the ranker sees it: its own tags unioned with its mapping's
// tags and destinations. Featured is the record's own flag; a featured-space assignment only
// contributes its tag.
type Candidate struct {
	Testimonial *domain.Testimonial
	Tags        []string
	Featured    bool
}

// NewCandidate combines a testimonial with its mapping. m may be nil.
func NewCandidate(t *domain.Testimonial, m *domain.Mapping) Candidate {
	c := Candidate{Testimonial: t, Featured: t.Featured}
	tags := slices.Clone(t.Tags)
	if m != nil {
		tags = append(tags, m.AllTags()...)
	}
	c.Tags = domain.UniqueTags(tags)
	return c
}

// Candidates pairs every testimonial with its mapping by id.
func Candidates(corpus []*domain.Testimonial, mappings map[string]*domain.Mapping) []Candidate {
	out := make([]Candidate, 0, len(corpus))
	for _, t := range corpus {
		out = append(out, NewCandidate(t, mappings[t.ID]))
	}
	return out
}

// CalculateRelevanceScore scores a candidate against a destination's target tags.
func CalculateRelevanceScore(c Candidate, targetTags []string) int {
	t := c.Testimonial
	score := t.Rating * ratingWeight
	if c.Featured {
		score += featuredBonus
	}
	score += matchingTagCount(c.Tags, targetTags) * matchWeight

	n := utf8.RuneCountInString(t.Text)
	if n > mediumTextLength {
		score += mediumTextBonus
	}
	if n > longTextLength {
		score += longTextBonus
	}
	if t.Verified {
		score += verifiedBonus
	}
	return score
}

// matchingTagCount counts target tags that overlap some candidate tag, ignoring case,
// where one contains the other.
func matchingTagCount(tags, targets []string) int {
	n := 0
	for _, target := range targets {
		target = strings.ToLower(target)
		if target == "" {
			continue
		}
		for _, tag := range tags {
			tag = strings.ToLower(tag)
			if tag == "" {
				continue
			}
			if strings.Contains(tag, target) || strings.Contains(target, tag) {
				n++
				break
			}
		}
	}
	return n
}

// SelectBestTestimonials returns up to maxCount ids ranked by relevance.
// Equal scores keep corpus order.
func SelectBestTestimonials(corpus []Candidate, targetTags []string, maxCount int) []string {
	type scored struct {
		id    string
		score int
	}
	ranked := make([]scored, len(corpus))
	for i, c := range corpus {
		ranked[i] = scored{id: c.Testimonial.ID, score: CalculateRelevanceScore(c, targetTags)}
	}
	slices.SortStableFunc(ranked, func(a, b scored) int {
		return cmp.Compare(b.score, a.score)
	})

	if maxCount < 0 {
		maxCount = 0
	}
	ids := make([]string, 0, min(maxCount, len(ranked)))
	for _, r := range ranked[:min(maxCount, len(ranked))] {
		ids = append(ids, r.id)
	}
	return ids
}

// Generator builds the full playlist set.
type Generator struct {
	rules *rules.Set
}

// NewGenerator creates a generator over the playlist tables in r.
func NewGenerator(r *rules.Set) *Generator {
	return &Generator{rules: r}
}

// Configs returns the destination configurations in effect for the given stored tags.
// Configured destinations whose tag is stored inactive are dropped. Active destination
// tags without a configuration get one that targets the tag id itself.
func (g *Generator) Configs(tags []domain.Tag) []domain.PlaylistConfig {
	byID := make(map[string]domain.Tag, len(tags))
	for _, t := range tags {
		byID[t.ID] = t
	}

	configured := make(map[string]struct{}, len(g.rules.Playlists.Destinations))
	out := make([]domain.PlaylistConfig, 0, len(g.rules.Playlists.Destinations))
	for _, cfg := range g.rules.Playlists.Destinations {
		configured[cfg.DestinationID] = struct{}{}
		if t, ok := byID[cfg.DestinationID]; ok && !t.Active {
			continue
		}
		out = append(out, cfg)
	}

	for _, t := range tags {
		if _, ok := configured[t.ID]; ok || !t.Active || !t.Type.IsDestination() {
			continue
		}
		out = append(out, domain.PlaylistConfig{
			DestinationID: t.ID,
			Name:          t.Name,
			Type:          t.Type,
			TargetTags:    []string{t.ID},
			MaxCount:      defaultMaxPerPage,
		})
	}
	return out
}

// Generate ranks corpus for the home page and every destination. AllTestimonials lists
// every id in corpus order.
func (g *Generator) Generate(corpus []Candidate, tags []domain.Tag) domain.GeneratedPlaylists {
	out := domain.GeneratedPlaylists{
		Home:            SelectBestTestimonials(corpus, g.rules.Playlists.ExcellenceTags, g.rules.Playlists.HomeCount),
		AllTestimonials: make([]string, 0, len(corpus)),
		PerDestination:  make(map[string][]string),
	}
	for _, c := range corpus {
		out.AllTestimonials = append(out.AllTestimonials, c.Testimonial.ID)
	}
	for _, cfg := range g.Configs(tags) {
		out.PerDestination[cfg.DestinationID] = SelectBestTestimonials(corpus, cfg.TargetTags, cfg.MaxCount)
	}
	return out
}
