package avatar

import (
	"fmt"
	"html"
	"strings"
	"unicode"

	"github.com/listenupapp/testimonials/internal/color"
)

// placeholderInitials is drawn when the author name has no letters or digits.
const placeholderInitials = "?"

// Initials returns up to two uppercase initials for name: the first letter of the
// first and last words, or the first two letters of a single-word name.
func Initials(name string) string {
	words := strings.FieldsFunc(name, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	switch len(words) {
	case 0:
		return placeholderInitials
	case 1:
		runes := []rune(words[0])
		if len(runes) > 2 {
			runes = runes[:2]
		}
		return strings.ToUpper(string(runes))
	default:
		first := []rune(words[0])[0]
		last := []rune(words[len(words)-1])[0]
		return strings.ToUpper(string([]rune{first, last}))
	}
}

// FallbackColor picks the palette color from the leading character of the initials,
// so the same author always gets the same background.
func FallbackColor(initials string) string {
	return color.ForName(initials)
}

// RenderSVG draws a circular avatar with white initials on the given background.
func RenderSVG(initials, background string) []byte {
	return fmt.Appendf(nil,
		`<svg xmlns="http://www.w3.org/2000/svg" width="128" height="128" viewBox="0 0 128 128">`+
			`<circle cx="64" cy="64" r="64" fill="%s"/>`+
			`<text x="64" y="64" dy=".35em" text-anchor="middle" font-family="Helvetica, Arial, sans-serif" font-size="52" font-weight="600" fill="#FFFFFF">%s</text>`+
			`</svg>`,
		html.EscapeString(background), html.EscapeString(initials))
}
