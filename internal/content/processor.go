// Package content cleans and classifies testimonial text: language, sentiment, tags and
// author-name backfill. Every classifier is a pure function of its input and the rules tables.
package content

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/listenupapp/testimonials/internal/domain"
	domainerrors "github.com/listenupapp/testimonials/internal/errors"
	"github.com/listenupapp/testimonials/internal/id"
	"github.com/listenupapp/testimonials/internal/rules"
	"github.com/listenupapp/testimonials/internal/util"
)

// Derived tags that do not come from the rules tables.
const (
	TagVerified = "verified"
	TagDetailed = "detailed"
	TagBrief    = "brief"
)

type language struct {
	code  string
	words map[string]struct{}
}

type topic struct {
	tag      string
	keywords map[string]struct{}
}

// Processor turns raw records into normalized testimonials.
type Processor struct {
	rules *rules.Set

	languages        []language
	positiveKeywords map[string]struct{}
	negativeKeywords map[string]struct{}
	positivePhrases  []string
	negativePhrases  []string
	topics           []topic
}

// NewProcessor builds a processor over a validated rules set.
func NewProcessor(r *rules.Set) *Processor {
	p := &Processor{
		rules:            r,
		positiveKeywords: wordSet(r.Sentiment.PositiveKeywords),
		negativeKeywords: wordSet(r.Sentiment.NegativeKeywords),
		positivePhrases:  phrases(r.Sentiment.PositivePhrases),
		negativePhrases:  phrases(r.Sentiment.NegativePhrases),
	}
	for _, l := range r.Languages {
		p.languages = append(p.languages, language{code: l.Code, words: wordSet(l.Words)})
	}
	for _, t := range r.Topics {
		p.topics = append(p.topics, topic{tag: t.Tag, keywords: wordSet(t.Keywords)})
	}
	return p
}

// Rules returns the tables the processor was built with.
func (p *Processor) Rules() *rules.Set {
	return p.rules
}

// DetectLanguage returns the language whose word list has the most hits in text.
// A tie for first place, or no hits at all, yields the base language.
func (p *Processor) DetectLanguage(text string) string {
	counts := make([]int, len(p.languages))
	for _, tok := range Tokens(text) {
		for i, l := range p.languages {
			if _, ok := l.words[tok]; ok {
				counts[i]++
			}
		}
	}

	best, bestCount, tied := "", 0, false
	for i, c := range counts {
		switch {
		case c > bestCount:
			best, bestCount, tied = p.languages[i].code, c, false
		case c == bestCount && c > 0:
			tied = true
		}
	}
	if bestCount == 0 || tied {
		return p.rules.BaseLanguage
	}
	return best
}

// AnalyzeSentiment scores keyword hits at 1 and phrase hits at the phrase weight, then
// classifies by whichever side leads by more than the margin.
func (p *Processor) AnalyzeSentiment(text string) domain.Sentiment {
	tokens := Tokens(text)
	padded := phraseText(tokens)

	var pos, neg int
	for _, tok := range tokens {
		if _, ok := p.positiveKeywords[tok]; ok {
			pos++
		}
		if _, ok := p.negativeKeywords[tok]; ok {
			neg++
		}
	}
	weight := p.rules.Sentiment.PhraseWeight
	pos += weight * countPhrases(padded, p.positivePhrases)
	neg += weight * countPhrases(padded, p.negativePhrases)

	margin := p.rules.Sentiment.Margin
	switch {
	case pos-neg > margin:
		return domain.SentimentPositive
	case neg-pos > margin:
		return domain.SentimentNegative
	default:
		return domain.SentimentNeutral
	}
}

// GenerateTags returns the quality band for rating, its star tag, every matching topic and a
// length band. The result never contains duplicates and always holds exactly one band tag.
func (p *Processor) GenerateTags(text string, rating int) []string {
	tags := []string{p.rules.BandFor(rating), p.rules.StarTag(rating)}

	tokens := wordSet(Tokens(text))
	for _, t := range p.topics {
		if intersects(tokens, t.keywords) {
			tags = domain.AppendUnique(tags, t.tag)
		}
	}

	switch n := utf8.RuneCountInString(text); {
	case n > p.rules.DetailedLength:
		tags = domain.AppendUnique(tags, TagDetailed)
	case n < p.rules.BriefLength:
		tags = domain.AppendUnique(tags, TagBrief)
	}
	return tags
}

// ExtractNameFromText returns the name introduced by the first matching pattern
// ("I'm Sarah", "my name is Sarah Lee"), or the unknown-author sentinel.
func (p *Processor) ExtractNameFromText(text string) string {
	for _, re := range p.rules.CompiledNamePatterns() {
		if name := firstCapture(re, text); name != "" {
			return name
		}
	}
	return p.rules.UnknownAuthor
}

// Process normalizes one raw record. It returns a RECORD_PROCESSING error when the record
// has no usable text; it never touches the store.
func (p *Processor) Process(raw *domain.RawTestimonial) (t *domain.Testimonial, err error) {
	defer func() {
		if r := recover(); r != nil {
			t, err = nil, domainerrors.RecordProcessingf("process %s: %v", rawLabel(raw), r)
		}
	}()

	text := CleanText(raw.Text)
	if text == "" {
		return nil, domainerrors.RecordProcessingf("process %s: empty text", rawLabel(raw))
	}

	rating := domain.CoerceRating(raw.Rating)
	author := raw.Author
	author.Name = CleanText(author.Name)
	author.Title = CleanText(author.Title)
	author.Company = CleanText(author.Company)
	author.Avatar = nil

	sourceID := raw.Source.ID
	if sourceID == "" {
		sourceID = raw.ID
	}

	t = &domain.Testimonial{
		ID:        id.Testimonial(raw.Source.Platform, sourceID, author.Name, text, raw.CreatedAt),
		Author:    author,
		Text:      text,
		Rating:    rating,
		Verified:  raw.Verified,
		Featured:  raw.Featured,
		Source:    domain.Source{Platform: util.Slug(raw.Source.Platform), ID: raw.Source.ID, URL: raw.Source.URL},
		Media:     raw.Media,
		Language:  p.DetectLanguage(text),
		Sentiment: p.AnalyzeSentiment(text),
		CreatedAt: raw.CreatedAt,
		UpdatedAt: raw.UpdatedAt,
	}

	tags := p.GenerateTags(text, rating)
	tags = domain.AppendUnique(tags, p.sourceTags(raw.Tags)...)
	if raw.Verified {
		tags = domain.AppendUnique(tags, TagVerified)
	}
	t.Tags = domain.UniqueTags(tags)

	if p.rules.IsPlaceholderAuthor(t.Author.Name) {
		t.Author.Name = p.ExtractNameFromText(text)
	}
	return t, nil
}

// sourceTags slugs source-supplied tags and drops quality band and star tags, which are
// derived from the coerced rating alone.
func (p *Processor) sourceTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range util.Slugs(tags) {
		if p.rules.IsBandTag(tag) || p.isStarTag(tag) {
			continue
		}
		out = append(out, tag)
	}
	return out
}

func (p *Processor) isStarTag(tag string) bool {
	for r := domain.MinRating; r <= domain.MaxRating; r++ {
		if tag == p.rules.StarTag(r) {
			return true
		}
	}
	return false
}

func rawLabel(raw *domain.RawTestimonial) string {
	switch {
	case raw.Source.ID != "":
		return fmt.Sprintf("%s/%s", raw.Source.Platform, raw.Source.ID)
	case raw.ID != "":
		return raw.ID
	default:
		return "record"
	}
}

func firstCapture(re *regexp.Regexp, text string) string {
	m := re.FindStringSubmatch(text)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

func wordSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[strings.ToLower(strings.TrimSpace(w))] = struct{}{}
	}
	return set
}

func phrases(list []string) []string {
	out := make([]string, 0, len(list))
	for _, ph := range list {
		if toks := Tokens(ph); len(toks) > 0 {
			out = append(out, phraseText(toks))
		}
	}
	return out
}

func countPhrases(padded string, list []string) int {
	n := 0
	for _, ph := range list {
		n += strings.Count(padded, ph)
	}
	return n
}

func intersects(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for k := range a {
		if _, ok := b[k]; ok {
			return true
		}
	}
	return false
}
