package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/testimonials/internal/avatar"
	"github.com/listenupapp/testimonials/internal/domain"
	domainerrors "github.com/listenupapp/testimonials/internal/errors"
	"github.com/listenupapp/testimonials/internal/pipeline"
	"github.com/listenupapp/testimonials/internal/rules"
	"github.com/listenupapp/testimonials/internal/store"
)

type fakeSource struct {
	name       string
	records    []domain.RawTestimonial
	credsErr   error
	fetchErr   error
	afterFetch func()
	fetched    atomic.Int32
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) ValidateCredentials(context.Context) error { return f.credsErr }

func (f *fakeSource) Fetch(context.Context) ([]domain.RawTestimonial, error) {
	f.fetched.Add(1)
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if f.afterFetch != nil {
		f.afterFetch()
	}
	out := make([]domain.RawTestimonial, len(f.records))
	copy(out, f.records)
	return out, nil
}

type fakeLedger struct {
	mu   sync.Mutex
	runs []domain.RunReport
}

func (l *fakeLedger) SaveRun(_ context.Context, r *domain.RunReport) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.runs = append(l.runs, *r)
	return nil
}

// fakeAvatars generates an avatar for every record and fails for ids listed in failFor.
type fakeAvatars struct {
	failFor map[string]bool
}

func (a *fakeAvatars) Resolve(_ context.Context, t *domain.Testimonial) avatar.Result {
	av := &domain.Avatar{Path: "/avatars/" + t.ID + ".svg", Generated: true, Initials: avatar.Initials(t.Author.Name)}
	if a.failFor[t.ID] {
		return avatar.Result{Avatar: av, Failures: []error{domainerrors.Enrichmentf("download %s: status 404", t.ID)}}
	}
	return avatar.Result{Avatar: av}
}

// failingStore rejects upserts for chosen ids.
type failingStore struct {
	*store.Store
	failIDs map[string]bool
}

func (f *failingStore) Upsert(ctx context.Context, t *domain.Testimonial, merge bool) (store.UpsertResult, error) {
	if f.failIDs[t.ID] {
		return store.UpsertResult{}, domainerrors.Wrapf(errors.New("disk full"), domainerrors.CodePersistence, "upsert testimonial %s", t.ID)
	}
	return f.Store.Upsert(ctx, t, merge)
}

var day = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

func raw(platform, sourceID, author, text string, rating float64, created time.Time) domain.RawTestimonial {
	return domain.RawTestimonial{
		Author:    domain.Author{Name: author},
		Text:      text,
		Rating:    rating,
		Source:    domain.Source{Platform: platform, ID: sourceID, URL: "https://reviews.example.com/page"},
		CreatedAt: created,
	}
}

func batch() []domain.RawTestimonial {
	return []domain.RawTestimonial{
		raw("google", "r-1", "John Smith", "Amazing experience at the breathwork retreat, highly recommend!", 5, day),
		raw("google", "r-2", "John S.", "Amazing experience at the breathwork retreat, highly recommend!", 5, day.Add(48*time.Hour)),
		raw("trustpilot", "t-1", "Maria Lopez", "The online sessions helped my anxiety and sleep so much. Thank you for the calm guidance.", 4, day),
		raw("google", "r-3", "Empty Text", "<p> </p>", 3, day),
	}
}

func setup(t *testing.T) (*store.Store, *rules.Set) {
	t.Helper()
	r := rules.MustDefault()
	s, err := store.New("", slog.New(slog.DiscardHandler), store.Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	_, err = s.SeedDefaultTags(context.Background(), r.Tags())
	require.NoError(t, err)
	return s, r
}

func newOrchestrator(st pipeline.Store, ledger pipeline.Ledger, avatars pipeline.AvatarResolver, r *rules.Set) *pipeline.Orchestrator {
	return pipeline.New(st, ledger, avatars, r, pipeline.Options{Workers: 4}, slog.New(slog.DiscardHandler))
}

func TestRun_HappyPath(t *testing.T) {
	s, r := setup(t)
	ledger := &fakeLedger{}
	o := newOrchestrator(s, ledger, &fakeAvatars{}, r)

	report, err := o.Run(context.Background(), &fakeSource{name: "fake", records: batch()})
	require.NoError(t, err)

	assert.Equal(t, domain.RunStatusCompleted, report.Status)
	assert.Equal(t, 4, report.Fetched)
	assert.Equal(t, 2, report.Imported)
	assert.Equal(t, 0, report.Updated)
	assert.Equal(t, 1, report.Duplicates)
	assert.Equal(t, 1, report.FailedImports)
	assert.Equal(t, 2, report.NewAvatars)
	assert.Equal(t, 2, report.MappingsSaved)
	assert.NotEmpty(t, report.RunID)
	assert.False(t, report.FinishedAt.Before(report.StartedAt))

	require.Len(t, report.Errors, 1)
	assert.Equal(t, "google-r-3", report.Errors[0].ID)
	assert.Equal(t, pipeline.StageProcess, report.Errors[0].Stage)

	stored, err := s.ListTestimonials(context.Background())
	require.NoError(t, err)
	require.Len(t, stored, 2)

	first, err := s.GetByID(context.Background(), "google-r-1")
	require.NoError(t, err)
	assert.Equal(t, 5, first.Rating)
	assert.Contains(t, first.Tags, "excellent")
	assert.Contains(t, first.Tags, "5-star")
	assert.Equal(t, domain.SentimentPositive, first.Sentiment)
	require.NotNil(t, first.Author.Avatar)
	assert.Equal(t, "JS", first.Author.Avatar.Initials)

	m, err := s.GetMapping(context.Background(), "google-r-1")
	require.NoError(t, err)
	assert.Contains(t, m.Experiences, "immersive-retreat")
	assert.Contains(t, m.FeaturedSpaces, domain.SpaceIndividualsFeatured)
	assert.Contains(t, m.FeaturedSpaces, domain.SpaceAboutFeatured)
	assert.Equal(t, domain.MaxPriority, m.Priority)

	require.Len(t, ledger.runs, 1)
	assert.Equal(t, report.RunID, ledger.runs[0].RunID)
}

func TestRun_ReimportCountsAsUpdated(t *testing.T) {
	s, r := setup(t)
	o := newOrchestrator(s, &fakeLedger{}, &fakeAvatars{}, r)
	src := &fakeSource{name: "fake", records: batch()}

	_, err := o.Run(context.Background(), src)
	require.NoError(t, err)
	before, err := s.ListMappings(context.Background())
	require.NoError(t, err)

	report, err := o.Run(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, 0, report.Imported)
	assert.Equal(t, 2, report.Updated)
	assert.Equal(t, 0, report.NewAvatars, "records already stored with an avatar are not new")
	assert.Equal(t, 0, report.MappingsSaved, "auto-tagging an unchanged corpus changes nothing")

	stored, err := s.ListTestimonials(context.Background())
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	after, err := s.ListMappings(context.Background())
	require.NoError(t, err)
	for id, m := range before {
		assert.True(t, m.SameContent(after[id]), "mapping %s changed", id)
		assert.Equal(t, m.LastUpdated, after[id].LastUpdated)
	}
}

func TestRun_SameRecordTwiceInOneBatch(t *testing.T) {
	s, r := setup(t)
	o := newOrchestrator(s, &fakeLedger{}, nil, r)

	rec := raw("google", "r-9", "Ann Lee", "Wonderful calm session.", 5, day)
	edited := rec
	edited.Text = "Totally different words entirely, nothing shared whatsoever here."
	edited.Author.Name = "Someone Else"
	edited.Rating = 1
	edited.CreatedAt = day.AddDate(0, 3, 0)

	report, err := o.Run(context.Background(), &fakeSource{name: "fake", records: []domain.RawTestimonial{rec, edited}})
	require.NoError(t, err)

	assert.Equal(t, 0, report.Duplicates)
	assert.Equal(t, 1, report.Imported)
	assert.Equal(t, 1, report.Updated)

	stored, err := s.ListTestimonials(context.Background())
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestRun_CredentialFailureIsFatal(t *testing.T) {
	s, r := setup(t)
	ledger := &fakeLedger{}
	o := newOrchestrator(s, ledger, nil, r)
	src := &fakeSource{name: "fake", records: batch(), credsErr: errors.New("token expired")}

	report, err := o.Run(context.Background(), src)

	require.Error(t, err)
	assert.True(t, domainerrors.IsFatal(err))
	assert.Contains(t, err.Error(), "token expired")
	assert.Equal(t, domain.RunStatusFailed, report.Status)
	assert.NotEmpty(t, report.FatalError)
	assert.Equal(t, int32(0), src.fetched.Load(), "fetch never runs after a credential failure")
	require.Len(t, ledger.runs, 1)
	assert.Equal(t, domain.RunStatusFailed, ledger.runs[0].Status)
}

func TestRun_FetchFailureKeepsAdapterError(t *testing.T) {
	s, r := setup(t)
	o := newOrchestrator(s, nil, nil, r)
	fetchErr := domainerrors.Adapterf("fetch csv: status %d", 503)

	report, err := o.Run(context.Background(), &fakeSource{name: "csv", fetchErr: fetchErr})

	require.Error(t, err)
	assert.Same(t, fetchErr, err)
	assert.Equal(t, domain.RunStatusFailed, report.Status)
	assert.Equal(t, 0, report.Imported)
}

func TestRun_PersistenceFailureIsPartial(t *testing.T) {
	s, r := setup(t)
	st := &failingStore{Store: s, failIDs: map[string]bool{"google-r-1": true}}
	o := newOrchestrator(st, &fakeLedger{}, nil, r)

	report, err := o.Run(context.Background(), &fakeSource{name: "fake", records: batch()})
	require.NoError(t, err)

	assert.Equal(t, domain.RunStatusCompleted, report.Status)
	assert.Equal(t, 1, report.Imported)
	assert.Equal(t, 2, report.FailedImports, "one empty-text record plus one failed upsert")
	assert.Equal(t, 1, report.MappingsSaved)

	var upsertErrs []domain.RecordError
	for _, e := range report.Errors {
		if e.Stage == pipeline.StageUpsert {
			upsertErrs = append(upsertErrs, e)
		}
	}
	require.Len(t, upsertErrs, 1)
	assert.Equal(t, "google-r-1", upsertErrs[0].ID)
	assert.Contains(t, upsertErrs[0].Message, "disk full")
}

func TestRun_AvatarFailuresAreReportedNotFatal(t *testing.T) {
	s, r := setup(t)
	o := newOrchestrator(s, nil, &fakeAvatars{failFor: map[string]bool{"trustpilot-t-1": true}}, r)

	report, err := o.Run(context.Background(), &fakeSource{name: "fake", records: batch()})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Imported)
	var found bool
	for _, e := range report.Errors {
		if e.Stage == pipeline.StageEnrichAvatars {
			found = true
			assert.Equal(t, "trustpilot-t-1", e.ID)
		}
	}
	assert.True(t, found)
}

func TestRun_InvalidRawRecordsAreRejected(t *testing.T) {
	s, r := setup(t)
	o := newOrchestrator(s, nil, nil, r)

	noPlatform := raw("", "x-1", "Ann", "Lovely", 5, day)
	noText := raw("google", "x-2", "Ann", "", 5, day)

	report, err := o.Run(context.Background(), &fakeSource{name: "fake", records: []domain.RawTestimonial{noPlatform, noText}})
	require.NoError(t, err)

	assert.Equal(t, 2, report.FailedImports)
	require.Len(t, report.Errors, 2)
	assert.Contains(t, report.Errors[0].Message, "source.platform")
	assert.Contains(t, report.Errors[1].Message, "text")
}

func TestRun_CancellationStopsScheduling(t *testing.T) {
	s, r := setup(t)
	ledger := &fakeLedger{}
	o := newOrchestrator(s, ledger, nil, r)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := &fakeSource{name: "fake", records: batch(), afterFetch: cancel}

	report, err := o.Run(ctx, src)

	require.NoError(t, err, "cancellation is not fatal")
	assert.Equal(t, domain.RunStatusCanceled, report.Status)
	assert.Equal(t, 0, report.Imported)
	require.Len(t, ledger.runs, 1, "a canceled run is still recorded")
	assert.Equal(t, domain.RunStatusCanceled, ledger.runs[0].Status)
}

func TestRun_ParallelUpserts(t *testing.T) {
	s, r := setup(t)
	o := pipeline.New(s, nil, &fakeAvatars{}, r, pipeline.Options{Workers: 8}, slog.New(slog.DiscardHandler))

	var records []domain.RawTestimonial
	for i := range 40 {
		records = append(records, raw(
			"google",
			fmt.Sprintf("p-%d", i),
			fmt.Sprintf("Author%d Person%d", i, i),
			fmt.Sprintf("Review number %d mentions topic%d and word%d", i, i*7, i*13),
			float64(i%5+1),
			day.AddDate(0, 0, i*30),
		))
	}

	report, err := o.Run(context.Background(), &fakeSource{name: "fake", records: records})
	require.NoError(t, err)

	assert.Equal(t, 40, report.Imported+report.Duplicates)
	assert.Equal(t, report.Imported, report.NewAvatars)
	stored, err := s.ListTestimonials(context.Background())
	require.NoError(t, err)
	assert.Len(t, stored, report.Imported)
}
