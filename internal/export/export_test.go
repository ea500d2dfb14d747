package export

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/testimonials/internal/domain"
	"github.com/listenupapp/testimonials/internal/rules"
)

type fakeReader struct {
	testimonials []*domain.Testimonial
	mappings     map[string]*domain.Mapping
	tags         []*domain.Tag
	err          error
}

func (f *fakeReader) ListTestimonials(context.Context) ([]*domain.Testimonial, error) {
	return f.testimonials, f.err
}

func (f *fakeReader) ListMappings(context.Context) (map[string]*domain.Mapping, error) {
	return f.mappings, nil
}

func (f *fakeReader) ListTags(context.Context, domain.TagType) ([]*domain.Tag, error) {
	return f.tags, nil
}

func newFixture(t *testing.T) (*Exporter, *fakeReader) {
	t.Helper()
	r := rules.MustDefault()

	var tags []*domain.Tag
	for _, tag := range r.Tags() {
		if tag.ID == "better-sleep" {
			tag.Active = false
		}
		tags = append(tags, &tag)
	}

	created := time.Date(2024, 3, 1, 10, 0, 0, 500, time.UTC)
	reader := &fakeReader{
		testimonials: []*domain.Testimonial{
			{
				ID: "google-a", Text: "The retreat changed my life", Rating: 5, Verified: true,
				Author:    domain.Author{Name: "Jane Doe", Avatar: &domain.Avatar{Path: "/avatars/google-a.png", BlurHash: "LEHV6n"}},
				Source:    domain.Source{Platform: "google", URL: "https://g.co/r/a"},
				Tags:      []string{"excellent", "5-star", "verified", "retreat"},
				CreatedAt: created,
			},
			{
				ID: "csv-b", Text: "Slept better", Rating: 3,
				Author: domain.Author{Name: "Sam"},
				Source: domain.Source{Platform: "csv"},
				Tags:   []string{"good", "sleep"},
			},
		},
		mappings: map[string]*domain.Mapping{
			"google-a": {TestimonialID: "google-a", Experiences: []string{"immersive-retreat"}, FeaturedSpaces: []string{domain.SpaceHomeFeatured}, Priority: 9},
			"csv-b":    {TestimonialID: "csv-b", Experiences: []string{"immersive-retreat"}, Solutions: []string{"better-sleep"}, Priority: 4},
		},
		tags: tags,
	}

	e := New(reader, r, slog.New(slog.NewTextHandler(io.Discard, nil)))
	e.now = func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }
	return e, reader
}

func TestBuild(t *testing.T) {
	e, _ := newFixture(t)

	a, err := e.Build(context.Background())
	require.NoError(t, err)

	assert.Equal(t, FormatVersion, a.Version)
	assert.Equal(t, "2026.10.1", a.RulesVersion)
	require.Len(t, a.Testimonials, 2)

	first := a.Testimonials[0]
	assert.Equal(t, Timestamp{Seconds: 1709287200, Nanoseconds: 500}, first.CreatedAt)
	assert.Equal(t, "https://g.co/r/a", first.SourceURL)
	require.NotNil(t, first.Author.Avatar)
	assert.Equal(t, "/avatars/google-a.png", first.Author.Avatar.Src)
	assert.Contains(t, first.Tags, "immersive-retreat")
	assert.Contains(t, first.Tags, domain.SpaceHomeFeatured)

	assert.Equal(t, Timestamp{}, a.Testimonials[1].CreatedAt)
	assert.Nil(t, a.Testimonials[1].Author.Avatar)

	assert.Equal(t, []string{"google-a", "csv-b"}, a.Experiences["immersive-retreat"])
	assert.Equal(t, []string{"google-a"}, a.Featured[domain.SpaceHomeFeatured])
	assert.NotContains(t, a.Solutions, "better-sleep")

	assert.Equal(t, []string{"google-a", "csv-b"}, a.Playlists.Testimonials)
	assert.Equal(t, "google-a", a.Playlists.Home[0])
	assert.NotContains(t, a.Playlists.Destinations, "better-sleep")
	assert.Equal(t, []string{"google-a", "csv-b"}, a.Playlists.Destinations["immersive-retreat"])
}

func TestBuild_GroupsByPriority(t *testing.T) {
	e, reader := newFixture(t)
	reader.mappings["csv-b"].Priority = 10

	a, err := e.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"csv-b", "google-a"}, a.Experiences["immersive-retreat"])
}

func TestExport_WritesArtifact(t *testing.T) {
	e, _ := newFixture(t)
	out := filepath.Join(t.TempDir(), "site", "testimonials.json")

	res, err := e.Export(context.Background(), Options{OutputPath: out})
	require.NoError(t, err)
	assert.Equal(t, out, res.Path)
	assert.Equal(t, 2, res.Testimonials)
	assert.Len(t, res.Checksum, 64)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), res.Size)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	for _, key := range []string{"version", "generatedAt", "testimonials", "programs", "experiences", "solutions", "featured", "playlists"} {
		assert.Contains(t, doc, key)
	}
	first := doc["testimonials"].([]any)[0].(map[string]any)
	assert.Contains(t, first, "createdAt")
	assert.Contains(t, first, "sourceUrl")

	entries, err := os.ReadDir(filepath.Dir(out))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file should be renamed away")
}

func TestExport_Errors(t *testing.T) {
	e, reader := newFixture(t)

	_, err := e.Export(context.Background(), Options{})
	require.Error(t, err)

	reader.err = errors.New("db closed")
	_, err = e.Export(context.Background(), Options{OutputPath: filepath.Join(t.TempDir(), "out.json")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db closed")
}

func TestNewTimestamp(t *testing.T) {
	assert.Equal(t, Timestamp{}, NewTimestamp(time.Time{}))
	assert.Equal(t, Timestamp{Seconds: 1, Nanoseconds: 2}, NewTimestamp(time.Unix(1, 2)))
}
