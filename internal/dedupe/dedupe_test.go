package dedupe

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/testimonials/internal/domain"
)

var baseDate = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

func record(id, author, text string, rating int, platform string, created time.Time, tags ...string) *domain.Testimonial {
	return &domain.Testimonial{
		ID:        id,
		Author:    domain.Author{Name: author},
		Text:      text,
		Rating:    rating,
		Source:    domain.Source{Platform: platform},
		CreatedAt: created,
		Tags:      tags,
	}
}

func TestWeightsSumToOne(t *testing.T) {
	assert.InDelta(t, 1.0, WeightText+WeightAuthor+WeightRating+WeightSource+WeightDate+WeightTags, 1e-9)
}

func TestCalculateSimilarity_IdenticalIsOne(t *testing.T) {
	a := record("a", "Jane Doe", "The retreat changed how I breathe", 5, "google", baseDate, "excellent", "retreat")
	b := record("b", "Jane Doe", "The retreat changed how I breathe", 5, "google", baseDate, "excellent", "retreat")

	assert.InDelta(t, 1.0, CalculateSimilarity(a, b), 1e-9)

	res := FindDuplicates([]*domain.Testimonial{a, b}, Options{})
	require.Len(t, res.Duplicates, 1)
	assert.Same(t, a, res.Duplicates[0].Original)
	assert.Same(t, b, res.Duplicates[0].Duplicate)
	assert.Equal(t, []*domain.Testimonial{a}, res.Unique)
}

func TestCalculateSimilarity_DissimilarBottomsOutAtRatingFloor(t *testing.T) {
	a := record("a", "Jane Doe", "Wonderful breathing retreat", 5, "google", baseDate, "excellent")
	b := record("b", "Mark Ruiz", "Terrible parking downtown", 1, "trustpilot", baseDate.AddDate(0, 2, 0), "poor")

	// Ratings 5 and 1 still score 1-4/5 on the rating component, so the floor is 0.1*0.2.
	assert.InDelta(t, 0.02, CalculateSimilarity(a, b), 1e-9)

	res := FindDuplicates([]*domain.Testimonial{a, b}, Options{})
	assert.Empty(t, res.Duplicates)
	assert.Len(t, res.Unique, 2)
}

func TestCalculateSimilarity_NearDuplicateAuthors(t *testing.T) {
	text := "Amazing experience, highly recommend the facilitator training"
	a := record("a", "John Smith", text, 5, "google", baseDate, "excellent", "5-star")
	b := record("b", "John S.", text, 5, "google", baseDate.Add(48*time.Hour), "excellent", "5-star")

	br := Compare(a, b)
	assert.Equal(t, 1.0, br.Text)
	assert.Equal(t, 0.5, br.Author)
	assert.InDelta(t, 1-2.0/7, br.Date, 1e-9)

	score := CalculateSimilarity(a, b)
	assert.Greater(t, score, Threshold)

	res := FindDuplicates([]*domain.Testimonial{a, b}, Options{})
	require.Len(t, res.Duplicates, 1)
	assert.InDelta(t, score, res.Duplicates[0].Confidence, 1e-12)
}

func TestCalculateSimilarity_Symmetric(t *testing.T) {
	authors := []string{"", "Jane Doe", "jane", "J. Doe", "Jonathan Lee", "Jon Lee"}
	texts := []string{"", "great retreat", "Great retreat, loved it!", "sleep better now", "a an is"}
	platforms := []string{"google", "csv"}
	dates := []time.Time{{}, baseDate, baseDate.Add(36 * time.Hour), baseDate.AddDate(0, 0, 30)}
	tagSets := [][]string{nil, {"excellent"}, {"excellent", "sleep"}}

	var corpus []*domain.Testimonial
	n := 0
	for _, au := range authors {
		for _, tx := range texts {
			n++
			corpus = append(corpus, record(fmt.Sprint(n), au, tx, 1+n%5, platforms[n%2], dates[n%len(dates)], tagSets[n%len(tagSets)]...))
		}
	}

	for _, a := range corpus {
		for _, b := range corpus {
			ab, ba := CalculateSimilarity(a, b), CalculateSimilarity(b, a)
			assert.Equal(t, ab, ba, "%s vs %s", a.ID, b.ID)
			assert.GreaterOrEqual(t, ab, 0.0)
			assert.LessOrEqual(t, ab, 1.0)
		}
	}
}

func TestAuthorSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"Jane Doe", "jane doe", 1},
		{"", "", 1},
		{"Jane", "", 0},
		{"Jonathan Lee", "Jon Lee", 1},
		{"Al B", "Alan Bo", 0},
		{"Maria Lopez", "Maria", 2.0 / 3},
	}
	for _, tt := range tests {
		t.Run(tt.a+"|"+tt.b, func(t *testing.T) {
			assert.InDelta(t, tt.want, authorSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestDateProximity(t *testing.T) {
	assert.Equal(t, 1.0, dateProximity(time.Time{}, time.Time{}))
	assert.Equal(t, 0.0, dateProximity(baseDate, time.Time{}))
	assert.Equal(t, 1.0, dateProximity(baseDate, baseDate))
	assert.InDelta(t, 0.5, dateProximity(baseDate, baseDate.Add(84*time.Hour)), 1e-9)
	assert.Equal(t, 0.0, dateProximity(baseDate, baseDate.AddDate(0, 0, 8)))
}

func TestJaccard_EmptySets(t *testing.T) {
	assert.Equal(t, 1.0, jaccard(setOf(nil), setOf(nil)))
	assert.Equal(t, 0.0, jaccard(setOf([]string{"a"}), setOf(nil)))
}

func TestFindDuplicates_NoChains(t *testing.T) {
	text := "The online journey helped my sleep and calm"
	a := record("a", "Ana Ruiz", text, 5, "csv", baseDate, "sleep")
	b := record("b", "Ana Ruiz", text, 5, "csv", baseDate, "sleep")
	c := record("c", "Ana Ruiz", text, 5, "csv", baseDate, "sleep")

	res := FindDuplicates([]*domain.Testimonial{a, b, c}, Options{})
	require.Len(t, res.Duplicates, 2)
	for _, p := range res.Duplicates {
		assert.Same(t, a, p.Original, "every duplicate points at the first record")
	}
	assert.Equal(t, []*domain.Testimonial{a}, res.Unique)
}

func TestFindDuplicates_Blocking(t *testing.T) {
	text := "Best coaching certification I have taken"
	a := record("a", "Sam Poe", text, 5, "google", baseDate, "coaching")
	b := record("b", "Sam Poe", text, 5, "trustpilot", baseDate, "coaching")
	c := record("c", "Sam Poe", text, 5, "google", baseDate, "coaching")

	// Across platforms a and b still clear the threshold (0.9).
	all := FindDuplicates([]*domain.Testimonial{a, b, c}, Options{})
	assert.Len(t, all.Duplicates, 2)

	blocked := FindDuplicates([]*domain.Testimonial{a, b, c}, Options{Blocking: true})
	require.Len(t, blocked.Duplicates, 1)
	assert.Same(t, c, blocked.Duplicates[0].Duplicate)
	assert.Equal(t, []*domain.Testimonial{a, b}, blocked.Unique)
}

func TestFindDuplicates_Empty(t *testing.T) {
	res := FindDuplicates(nil, Options{})
	assert.Empty(t, res.Duplicates)
	assert.Empty(t, res.Unique)
}
