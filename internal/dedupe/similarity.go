// Package dedupe finds duplicate testimonials by weighted pairwise similarity.
package dedupe

import (
	"math"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/listenupapp/testimonials/internal/domain"
)

// Component weights. They sum to 1.0.
const (
	WeightText   = 0.4
	WeightAuthor = 0.2
	WeightRating = 0.1
	WeightSource = 0.1
	WeightDate   = 0.1
	WeightTags   = 0.1
)

// Threshold is the combined score a pair must exceed to be a duplicate.
const Threshold = 0.8

// DateWindow is the gap at which date proximity reaches zero.
const DateWindow = 7 * 24 * time.Hour

// minTextTokenLen drops short words ("a", "is") from the text comparison.
const minTextTokenLen = 3

// Breakdown holds each similarity component before weighting, all in [0,1].
type Breakdown struct {
	Text   float64
	Author float64
	Rating float64
	Source float64
	Date   float64
	Tags   float64
}

// Score combines the components with their weights.
func (b Breakdown) Score() float64 {
	s := WeightText*b.Text +
		WeightAuthor*b.Author +
		WeightRating*b.Rating +
		WeightSource*b.Source +
		WeightDate*b.Date +
		WeightTags*b.Tags
	return math.Min(1, math.Max(0, s))
}

// CalculateSimilarity returns the weighted similarity of a and b in [0,1].
// It is symmetric: CalculateSimilarity(a, b) == CalculateSimilarity(b, a).
func CalculateSimilarity(a, b *domain.Testimonial) float64 {
	return Compare(a, b).Score()
}

// Compare returns the unweighted component scores for a pair.
func Compare(a, b *domain.Testimonial) Breakdown {
	return Breakdown{
		Text:   jaccard(textTokens(a.Text), textTokens(b.Text)),
		Author: authorSimilarity(a.Author.Name, b.Author.Name),
		Rating: ratingSimilarity(a.Rating, b.Rating),
		Source: boolScore(strings.EqualFold(a.Source.Platform, b.Source.Platform)),
		Date:   dateProximity(a.CreatedAt, b.CreatedAt),
		Tags:   jaccard(setOf(a.Tags), setOf(b.Tags)),
	}
}

// textTokens lowercases text, strips punctuation and keeps words of three or more runes.
func textTokens(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range words(text) {
		if utf8.RuneCountInString(w) >= minTextTokenLen {
			set[w] = struct{}{}
		}
	}
	return set
}

func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func setOf(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[strings.ToLower(v)] = struct{}{}
	}
	return set
}

// jaccard is |a∩b| / |a∪b|. Two empty sets are identical.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := 0
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// authorSimilarity is 1 on an exact (normalized) match, otherwise the share of tokens on
// both sides that find a partner on the other side. Prefix partners count when both
// tokens are longer than two runes, so "Jon" pairs with "Jonathan" but "S" does not pair
// with "Smith".
func authorSimilarity(a, b string) float64 {
	ta, tb := words(a), words(b)
	if strings.Join(ta, " ") == strings.Join(tb, " ") {
		return 1
	}
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	matches := countMatching(ta, tb) + countMatching(tb, ta)
	return float64(matches) / float64(len(ta)+len(tb))
}

func countMatching(from, against []string) int {
	n := 0
	for _, x := range from {
		for _, y := range against {
			if tokensMatch(x, y) {
				n++
				break
			}
		}
	}
	return n
}

func tokensMatch(x, y string) bool {
	if x == y {
		return true
	}
	if utf8.RuneCountInString(x) <= 2 || utf8.RuneCountInString(y) <= 2 {
		return false
	}
	return strings.HasPrefix(x, y) || strings.HasPrefix(y, x)
}

// ratingSimilarity is 1-|a-b|/5. Ratings at opposite ends of the scale still score 0.2.
func ratingSimilarity(a, b int) float64 {
	diff := math.Abs(float64(a - b))
	return math.Max(0, 1-diff/float64(domain.MaxRating))
}

// dateProximity decays linearly to zero over DateWindow. Both dates missing counts as a
// match; one missing counts as no match.
func dateProximity(a, b time.Time) float64 {
	switch {
	case a.IsZero() && b.IsZero():
		return 1
	case a.IsZero() || b.IsZero():
		return 0
	}
	apart := a.Sub(b)
	if apart < 0 {
		apart = -apart
	}
	return math.Max(0, 1-apart.Hours()/DateWindow.Hours())
}

func boolScore(ok bool) float64 {
	if ok {
		return 1
	}
	return 0
}
