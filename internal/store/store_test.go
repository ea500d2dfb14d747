package store_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/testimonials/internal/domain"
	domainerrors "github.com/listenupapp/testimonials/internal/errors"
	"github.com/listenupapp/testimonials/internal/store"
)

// fakeClock hands out strictly increasing times so stamps are predictable.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func setupTestStore(t *testing.T) (*store.Store, *fakeClock) {
	t.Helper()

	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	s, err := store.New(filepath.Join(t.TempDir(), "db"), nil, store.Options{Now: clock.Now})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, clock
}

func newTestimonial(id, platform, author string) *domain.Testimonial {
	return &domain.Testimonial{
		ID:        id,
		Author:    domain.Author{Name: author, Company: "Acme"},
		Text:      "Lovely retreat",
		Rating:    5,
		Source:    domain.Source{Platform: platform, ID: id, URL: "https://example.com/reviews"},
		Language:  "en",
		Sentiment: domain.SentimentPositive,
		Tags:      []string{"excellent", "5-star"},
	}
}

func TestUpsert_CreateThenUpdate(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	res, err := s.Upsert(ctx, newTestimonial("google-1", "google", "Jane"), true)
	require.NoError(t, err)
	assert.True(t, res.Created)
	importedAt := res.Testimonial.ImportedAt
	require.False(t, importedAt.IsZero())

	update := &domain.Testimonial{ID: "google-1", Text: "Lovely retreat, came back twice", Rating: 4, Tags: []string{"great"}}
	res, err = s.Upsert(ctx, update, true)
	require.NoError(t, err)
	assert.False(t, res.Created)

	got, err := s.GetByID(ctx, "google-1")
	require.NoError(t, err)
	assert.Equal(t, "Lovely retreat, came back twice", got.Text)
	assert.Equal(t, 4, got.Rating)
	assert.Equal(t, "Jane", got.Author.Name, "merge keeps unset fields")
	assert.Equal(t, "Acme", got.Author.Company)
	assert.Equal(t, "google", got.Source.Platform)
	assert.Equal(t, []string{"great"}, got.Tags)
	assert.Equal(t, importedAt, got.ImportedAt, "ImportedAt never moves")
	assert.True(t, got.UpdatedAt.After(importedAt))
}

func TestUpsert_ReplaceWithoutMerge(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	_, err := s.Upsert(ctx, newTestimonial("csv-1", "csv", "Jane"), false)
	require.NoError(t, err)

	res, err := s.Upsert(ctx, &domain.Testimonial{ID: "csv-1", Text: "Replaced", Rating: 2}, false)
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Empty(t, res.Testimonial.Author.Name)
	assert.False(t, res.Testimonial.ImportedAt.IsZero())
}

func TestUpsert_ReportsExistingAvatar(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	res, err := s.Upsert(ctx, newTestimonial("google-2", "google", "Jane"), true)
	require.NoError(t, err)
	assert.False(t, res.HadAvatar)

	withAvatar := newTestimonial("google-2", "google", "Jane")
	withAvatar.Author.Avatar = &domain.Avatar{Path: "google-2.svg", Generated: true}
	res, err = s.Upsert(ctx, withAvatar, true)
	require.NoError(t, err)
	assert.False(t, res.HadAvatar, "the stored record had none before this write")

	res, err = s.Upsert(ctx, withAvatar, true)
	require.NoError(t, err)
	assert.True(t, res.HadAvatar)
}

func TestUpsert_RequiresID(t *testing.T) {
	s, _ := setupTestStore(t)
	_, err := s.Upsert(context.Background(), &domain.Testimonial{Text: "x"}, true)
	assert.ErrorIs(t, err, store.ErrInvalidInput)
}

func TestUpsert_ConcurrentSameIDCreatesOnce(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	var created atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tm := newTestimonial("google-race", "google", fmt.Sprintf("Writer %d", i))
			res, err := s.Upsert(ctx, tm, true)
			if assert.NoError(t, err) && res.Created {
				created.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), created.Load())
	all, err := s.ListTestimonials(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestQueryByField(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	for _, tm := range []*domain.Testimonial{
		newTestimonial("g-1", "google", "Jane Doe"),
		newTestimonial("g-2", "google", "Sam Lee"),
		newTestimonial("t-1", "trustpilot", "jane doe"),
	} {
		_, err := s.Upsert(ctx, tm, true)
		require.NoError(t, err)
	}

	got, err := s.QueryByField(ctx, store.FieldPlatform, "Google")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = s.QueryByField(ctx, store.FieldAuthorName, "JANE DOE")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = s.QueryByField(ctx, store.FieldPlatform, "goo")
	require.NoError(t, err)
	assert.Empty(t, got, "index values match exactly, not by prefix")

	_, err = s.QueryByField(ctx, "source.url", "https://example.com/reviews")
	require.Error(t, err)
	assert.ErrorIs(t, err, domainerrors.ErrValidation)
}

func TestQueryByField_IndexFollowsUpdates(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	_, err := s.Upsert(ctx, newTestimonial("x-1", "csv", "Jane"), true)
	require.NoError(t, err)
	_, err = s.Upsert(ctx, &domain.Testimonial{ID: "x-1", Source: domain.Source{Platform: "json"}}, true)
	require.NoError(t, err)

	got, err := s.QueryByField(ctx, store.FieldPlatform, "csv")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = s.QueryByField(ctx, store.FieldPlatform, "json")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "x-1", got[0].ID)
}

func TestBatchDelete(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		_, err := s.Upsert(ctx, newTestimonial(id, "csv", "Jane"), true)
		require.NoError(t, err)
	}
	require.NoError(t, s.PutMapping(ctx, domain.NewMapping("a")))

	n, err := s.BatchDelete(ctx, []string{"a", "b", "missing"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = s.GetByID(ctx, "a")
	assert.ErrorIs(t, err, store.ErrNotFound)

	got, err := s.QueryByField(ctx, store.FieldPlatform, "csv")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "c", got[0].ID)

	_, err = s.GetMapping(ctx, "a")
	assert.NoError(t, err, "mappings are never deleted implicitly")
}

func TestTags_SeedListCreate(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	defaults := []domain.Tag{
		{ID: "home-featured", Name: "Home", Type: domain.TagTypeFeatured, Order: 1, Active: true},
		{ID: "b-program", Name: "B", Type: domain.TagTypeProgram, Order: 2, Active: true},
		{ID: "a-program", Name: "A", Type: domain.TagTypeProgram, Order: 1, Active: true},
	}
	n, err := s.SeedDefaultTags(ctx, defaults)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = s.SeedDefaultTags(ctx, defaults)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "seeding is idempotent")

	tags, err := s.ListTags(ctx, "")
	require.NoError(t, err)
	require.Len(t, tags, 3)
	assert.Equal(t, []string{"a-program", "b-program", "home-featured"}, []string{tags[0].ID, tags[1].ID, tags[2].ID})

	programs, err := s.ListTags(ctx, domain.TagTypeProgram)
	require.NoError(t, err)
	assert.Len(t, programs, 2)

	err = s.CreateTag(ctx, &domain.Tag{ID: "a-program", Name: "dup", Type: domain.TagTypeProgram})
	assert.ErrorIs(t, err, store.ErrAlreadyExists)

	err = s.CreateTag(ctx, &domain.Tag{ID: "bad", Name: "Bad", Type: "nope"})
	assert.ErrorIs(t, err, domainerrors.ErrValidation)

	tag, err := s.GetTag(ctx, "a-program")
	require.NoError(t, err)
	tag.Active = false
	require.NoError(t, s.UpdateTag(ctx, tag))
	tag, err = s.GetTag(ctx, "a-program")
	require.NoError(t, err)
	assert.False(t, tag.Active)
}

func TestPutMapping_MonotonicAndIndexed(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	m := domain.NewMapping("t-1")
	m.Programs = []string{"coaching-certification", "coaching-certification"}
	m.Priority = 42
	require.NoError(t, s.PutMapping(ctx, m))
	first := m.LastUpdated
	assert.Equal(t, domain.MaxPriority, m.Priority)
	assert.Equal(t, []string{"coaching-certification"}, m.Programs)

	// A stale clock on the caller's side still moves the stamp forward.
	stale := domain.NewMapping("t-1")
	stale.LastUpdated = first.Add(-time.Hour)
	require.NoError(t, s.PutMapping(ctx, stale))
	assert.True(t, stale.LastUpdated.After(first))

	got, err := s.GetMapping(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, stale.LastUpdated, got.LastUpdated)
	assert.Empty(t, got.Programs)

	byTag, err := s.MappingsByTag(ctx, "coaching-certification")
	require.NoError(t, err)
	assert.Empty(t, byTag, "old index entries are dropped on rewrite")

	m2 := domain.NewMapping("t-2")
	m2.FeaturedSpaces = []string{domain.SpaceHomeFeatured}
	require.NoError(t, s.PutMapping(ctx, m2))
	byTag, err = s.MappingsByTag(ctx, domain.SpaceHomeFeatured)
	require.NoError(t, err)
	require.Len(t, byTag, 1)
	assert.Equal(t, "t-2", byTag[0].TestimonialID)

	all, err := s.ListMappings(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestInMemoryStore(t *testing.T) {
	s, err := store.New("", nil, store.Options{InMemory: true})
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Upsert(context.Background(), newTestimonial("m-1", "csv", "Jane"), true)
	require.NoError(t, err)
	_, err = s.GetByID(context.Background(), "m-1")
	assert.NoError(t, err)
}
