package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlug(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		// Basic normalization
		{"lowercase", "BREATHWORK", "breathwork"},
		{"spaces to dashes", "stress relief", "stress-relief"},
		{"underscores to dashes", "stress_relief", "stress-relief"},
		{"already normalized", "stress-relief", "stress-relief"},

		// Whitespace handling
		{"trim whitespace", "  sleep  ", "sleep"},
		{"tabs and spaces", "better\t sleep", "better-sleep"},

		// Special characters
		{"emoji removal", "🌬 Breathwork!", "breathwork"},
		{"ampersand", "Stress & Anxiety", "stress-anxiety"},
		{"accents folded", "Café Retreat", "cafe-retreat"},
		{"slash", "online/zoom", "online-zoom"},

		// Dash handling
		{"multiple dashes", "slow--burn", "slow-burn"},
		{"mixed dashes", "--google--abc--", "google-abc"},

		// Edge cases
		{"empty string", "", ""},
		{"only special chars", "!@#$%", ""},
		{"numbers allowed", "5 star", "5-star"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Slug(tt.input))
		})
	}
}

func TestSlug_Idempotent(t *testing.T) {
	for _, in := range []string{"Stress & Anxiety", "Café", "a__b", "ÅNGSTRÖM"} {
		once := Slug(in)
		assert.Equal(t, once, Slug(once), in)
	}
}

func TestSlugs(t *testing.T) {
	got := Slugs([]string{"Breathwork", "breathwork", "", "!!", "Sleep Better"})
	assert.Equal(t, []string{"breathwork", "sleep-better"}, got)
}
