package scoring_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/testimonials/internal/domain"
	"github.com/listenupapp/testimonials/internal/rules"
	"github.com/listenupapp/testimonials/internal/scoring"
)

func newTagger(t *testing.T, tags ...domain.Tag) *scoring.Tagger {
	t.Helper()
	r, err := rules.Default()
	require.NoError(t, err)
	return scoring.NewTagger(r, tags)
}

func testimonial(id, text string, rating int, platform string) *domain.Testimonial {
	return &domain.Testimonial{
		ID:        id,
		Text:      text,
		Rating:    rating,
		Source:    domain.Source{Platform: platform},
		Sentiment: domain.SentimentNeutral,
		Tags:      []string{},
	}
}

func TestCalculatePriority(t *testing.T) {
	tg := newTagger(t)

	tests := []struct {
		name string
		t    *domain.Testimonial
		want int
	}{
		{"neutral baseline", testimonial("a", "ok", 3, "csv"), 5},
		{"low rating", testimonial("a", "meh", 1, "csv"), 3},
		{"long text", testimonial("a", strings.Repeat("x", 201), 3, "csv"), 6},
		{"very long text", testimonial("a", strings.Repeat("x", 501), 3, "csv"), 7},
		{"most trusted source", testimonial("a", "ok", 3, "google"), 6},
		{
			name: "everything clamps to max",
			t: func() *domain.Testimonial {
				x := testimonial("a", strings.Repeat("x", 600), 5, "google")
				x.Verified = true
				x.Sentiment = domain.SentimentPositive
				return x
			}(),
			want: 10,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tg.CalculatePriority(tt.t))
		})
	}
}

func TestCalculatePriority_AlwaysInRange(t *testing.T) {
	tg := newTagger(t)
	for rating := domain.MinRating; rating <= domain.MaxRating; rating++ {
		for _, n := range []int{0, 50, 201, 501, 5000} {
			for _, verified := range []bool{false, true} {
				for _, s := range []domain.Sentiment{domain.SentimentPositive, domain.SentimentNegative} {
					for _, platform := range []string{"google", "trustpilot", "csv"} {
						x := testimonial("a", strings.Repeat("y", n), rating, platform)
						x.Verified, x.Sentiment = verified, s
						p := tg.CalculatePriority(x)
						assert.GreaterOrEqual(t, p, domain.MinPriority)
						assert.LessOrEqual(t, p, domain.MaxPriority)

						m := tg.Build(x)
						assert.GreaterOrEqual(t, m.Priority, domain.MinPriority)
						assert.LessOrEqual(t, m.Priority, domain.MaxPriority)
					}
				}
			}
		}
	}
}

func TestAutoTagByContent(t *testing.T) {
	tg := newTagger(t)

	x := testimonial("a", "The facilitator training and the retreat eased my anxiety", 5, "csv")
	x.Verified = true
	x.Tags = []string{"breathwork"}
	m := domain.NewMapping(x.ID)
	tg.AutoTagByContent(x, m)

	assert.Equal(t, []string{"breathwork-facilitator-training"}, m.Programs)
	assert.Equal(t, []string{"immersive-retreat"}, m.Experiences)
	assert.Equal(t, []string{"stress-anxiety"}, m.Solutions)
	assert.Subset(t, m.Tags, []string{"breathwork-facilitator-training", "immersive-retreat", "stress-anxiety", "breathwork", "stress-relief", "excellent", "verified"})
	assert.NotContains(t, m.Tags, "detailed")
	assert.Equal(t, m.Tags, domain.UniqueTags(m.Tags))
}

func TestAutoTagByContent_SkipsInactiveTags(t *testing.T) {
	tg := newTagger(t, domain.Tag{ID: "immersive-retreat", Name: "Immersive Retreat", Type: domain.TagTypeExperience, Active: false})

	x := testimonial("a", "What a retreat", 4, "csv")
	m := domain.NewMapping(x.ID)
	tg.AutoTagByContent(x, m)

	assert.Empty(t, m.Experiences)
	assert.NotContains(t, m.Tags, "immersive-retreat")
}

func TestAutoTagByContent_StoredTypeWins(t *testing.T) {
	tg := newTagger(t, domain.Tag{ID: "online-journey", Name: "Online Journey", Type: domain.TagTypeProgram, Active: true})

	x := testimonial("a", "Loved the zoom sessions", 4, "csv")
	m := domain.NewMapping(x.ID)
	tg.AutoTagByContent(x, m)

	assert.Equal(t, []string{"online-journey"}, m.Programs)
	assert.Equal(t, []string{"private-sessions"}, m.Experiences)
}

func TestAutoTagBySource(t *testing.T) {
	tg := newTagger(t)

	m := &domain.Mapping{Priority: 5}
	tg.AutoTagBySource(testimonial("a", "x", 3, "google"), m)
	assert.Equal(t, 7, m.Priority)

	m = &domain.Mapping{Priority: 9}
	tg.AutoTagBySource(testimonial("a", "x", 3, "Trustpilot"), m)
	assert.Equal(t, 10, m.Priority)

	m = &domain.Mapping{Priority: 10}
	tg.AutoTagBySource(testimonial("a", "x", 3, "google"), m)
	assert.Equal(t, 10, m.Priority)
}

func TestAutoTagForFeaturedSpaces_AllRulesFire(t *testing.T) {
	tg := newTagger(t)

	x := testimonial("a", strings.Repeat("z", 120), 5, "csv")
	m := &domain.Mapping{Programs: []string{"p"}, Experiences: []string{"e"}, Priority: 8}
	tg.AutoTagForFeaturedSpaces(x, m)

	assert.Equal(t, []string{
		domain.SpaceHomeFeatured,
		domain.SpaceProgramsFeatured,
		domain.SpaceIndividualsFeatured,
		domain.SpaceAboutFeatured,
	}, m.FeaturedSpaces)

	short := testimonial("b", "short", 5, "csv")
	m = &domain.Mapping{Priority: 7}
	tg.AutoTagForFeaturedSpaces(short, m)
	assert.Empty(t, m.FeaturedSpaces)
}

func TestApply_IdempotentOnUnchangedCorpus(t *testing.T) {
	tg := newTagger(t)
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	a := testimonial("a", "Highly recommend this online training, it helped my sleep", 5, "google")
	a.Verified, a.Sentiment = true, domain.SentimentPositive
	b := testimonial("b", "Fine coaching session", 3, "trustpilot")
	corpus := []*domain.Testimonial{a, b}

	first := tg.Apply(corpus, nil, now)
	require.Len(t, first, 2)

	stored := map[string]*domain.Mapping{}
	for _, m := range first {
		stored[m.TestimonialID] = m
	}

	second := tg.Apply(corpus, stored, now.Add(time.Hour))
	assert.Empty(t, second, "unchanged corpus yields no writes")

	for _, x := range corpus {
		again := tg.Build(x)
		assert.True(t, again.SameContent(stored[x.ID]))
	}
	assert.Equal(t, 10, stored["a"].Priority, "boost computed fresh, not accumulated")
}

func TestApplyOne_RespectsCuratedAndAdvancesTimestamp(t *testing.T) {
	tg := newTagger(t)
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	x := testimonial("a", "Great retreat", 5, "csv")

	curated := &domain.Mapping{TestimonialID: "a", Priority: 2, AutoTagged: false, LastUpdated: now}
	got, changed := tg.ApplyOne(x, curated, now.Add(time.Hour))
	assert.False(t, changed)
	assert.Same(t, curated, got)

	stale := &domain.Mapping{TestimonialID: "a", Priority: 1, AutoTagged: true, LastUpdated: now}
	got, changed = tg.ApplyOne(x, stale, now)
	require.True(t, changed)
	assert.True(t, got.LastUpdated.After(stale.LastUpdated), "same clock still moves forward")
}
