package content

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	markupTagRe = regexp.MustCompile(`<[^>]*>`)
	bangRunRe   = regexp.MustCompile(`!{2,}`)
	queryRunRe  = regexp.MustCompile(`\?{2,}`)
	dotRunRe    = regexp.MustCompile(`\.{3,}`)

	quoteReplacer = strings.NewReplacer(
		"‘", "'", "’", "'", "‚", "'", "‛", "'", "′", "'",
		"“", `"`, "”", `"`, "„", `"`, "‟", `"`, "″", `"`,
		"«", `"`, "»", `"`,
		"…", "...",
	)
)

// CleanText normalizes free text from a source. The result is trimmed, uses single spaces,
// carries no markup tags or control characters, uses ASCII quotes, is NFC-normalized, and has
// runs of "!", "?" and "." collapsed. CleanText(CleanText(x)) == CleanText(x).
func CleanText(text string) string {
	if text == "" {
		return ""
	}

	// Control characters go first so they cannot hide a tag or split a punctuation run.
	text = strings.Map(func(r rune) rune {
		switch {
		case r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f':
			return ' '
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, text)

	// Tags become spaces so "great<br>retreat" keeps its word boundary.
	text = markupTagRe.ReplaceAllString(text, " ")
	text = quoteReplacer.Replace(text)
	text = norm.NFC.String(text)

	text = bangRunRe.ReplaceAllString(text, "!")
	text = queryRunRe.ReplaceAllString(text, "?")
	text = dotRunRe.ReplaceAllString(text, "...")

	return strings.Join(strings.Fields(text), " ")
}

// Tokens splits text into lowercase words on any rune that is not a letter or digit.
func Tokens(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// phraseText joins tokens with single spaces and pads both ends, so a phrase
// " highly recommend " matches only on word boundaries.
func phraseText(tokens []string) string {
	return " " + strings.Join(tokens, " ") + " "
}
