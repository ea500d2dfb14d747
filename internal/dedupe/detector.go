package dedupe

import (
	"github.com/listenupapp/testimonials/internal/domain"
)

// Pair is one detected duplicate. Original appears earlier in the corpus than Duplicate.
type Pair struct {
	Original   *domain.Testimonial
	Duplicate  *domain.Testimonial
	Confidence float64
}

// Result partitions a corpus. Unique keeps corpus order and includes every Original.
type Result struct {
	Duplicates []Pair
	Unique     []*domain.Testimonial
}

// Options tunes FindDuplicates.
type Options struct {
	// Blocking compares records only within the same source platform. The similarity
	// function and threshold are unchanged; it only skips pairs across platforms.
	Blocking bool
}

// FindDuplicates compares every pair in corpus order. A record matched as a duplicate is
// excluded from all later comparisons, so duplicate-of-duplicate chains never form.
func FindDuplicates(corpus []*domain.Testimonial, opts Options) Result {
	excluded := make([]bool, len(corpus))
	var pairs []Pair

	for _, block := range blocks(corpus, opts) {
		for bi, i := range block {
			if excluded[i] {
				continue
			}
			for _, j := range block[bi+1:] {
				if excluded[j] {
					continue
				}
				score := CalculateSimilarity(corpus[i], corpus[j])
				if score > Threshold {
					pairs = append(pairs, Pair{Original: corpus[i], Duplicate: corpus[j], Confidence: score})
					excluded[j] = true
				}
			}
		}
	}

	unique := make([]*domain.Testimonial, 0, len(corpus)-len(pairs))
	for i, t := range corpus {
		if !excluded[i] {
			unique = append(unique, t)
		}
	}
	return Result{Duplicates: pairs, Unique: unique}
}

// blocks returns index groups to compare within, each in corpus order.
func blocks(corpus []*domain.Testimonial, opts Options) [][]int {
	if !opts.Blocking {
		all := make([]int, len(corpus))
		for i := range corpus {
			all[i] = i
		}
		return [][]int{all}
	}

	var order []string
	byPlatform := make(map[string][]int)
	for i, t := range corpus {
		key := t.Source.Platform
		if _, ok := byPlatform[key]; !ok {
			order = append(order, key)
		}
		byPlatform[key] = append(byPlatform[key], i)
	}
	out := make([][]int, 0, len(order))
	for _, key := range order {
		out = append(out, byPlatform[key])
	}
	return out
}
