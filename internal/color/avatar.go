// Package color provides the fixed palette used for generated author avatars.
package color

import "fmt"

// paletteSize is the number of evenly spaced hues in Palette.
const paletteSize = 12

// Palette is the fixed set of avatar background colors, one per 30 degrees of hue.
// Saturation and lightness are fixed so white initials stay readable on every entry.
var Palette = buildPalette()

func buildPalette() []string {
	out := make([]string, paletteSize)
	step := 360.0 / paletteSize
	for i := range out {
		r, g, b := hslToRGB(float64(i)*step, 0.45, 0.45)
		out[i] = fmt.Sprintf("#%02X%02X%02X", r, g, b)
	}
	return out
}

// ForRune selects the palette entry for a leading character.
// The same rune always maps to the same color.
func ForRune(r rune) string {
	idx := int(r) % len(Palette)
	if idx < 0 {
		idx = -idx
	}
	return Palette[idx]
}

// ForName selects the palette entry for the first rune of name.
// An empty name uses the first palette entry.
func ForName(name string) string {
	for _, r := range name {
		return ForRune(r)
	}
	return Palette[0]
}

// hslToRGB converts HSL color space to RGB.
// h: hue (0-360), s: saturation (0-1), l: lightness (0-1)
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	h /= 360.0

	var r1, g1, b1 float64

	if s == 0 {
		r1, g1, b1 = l, l, l
	} else {
		var q float64
		if l < 0.5 {
			q = l * (1 + s)
		} else {
			q = l + s - l*s
		}
		p := 2*l - q

		r1 = hueToRGB(p, q, h+1.0/3.0)
		g1 = hueToRGB(p, q, h)
		b1 = hueToRGB(p, q, h-1.0/3.0)
	}

	r = uint8(r1 * 255)
	g = uint8(g1 * 255)
	b = uint8(b1 * 255)
	return
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t++
	}
	if t > 1 {
		t--
	}
	if t < 1.0/6.0 {
		return p + (q-p)*6*t
	}
	if t < 1.0/2.0 {
		return q
	}
	if t < 2.0/3.0 {
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}
