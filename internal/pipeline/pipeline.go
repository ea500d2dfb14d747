// Package pipeline runs import runs: it pulls raw testimonials from a source and moves them
// through processing, duplicate detection, avatar enrichment, upsert and auto-tagging,
// producing a run report.
//
// Stage order is fixed:
//
//	ValidateCredentials → Fetch → Process → DetectDuplicates → EnrichAvatars →
//	Upsert → AutoTag → PersistMappings → Report
//
// Credentials are checked before anything is fetched, so a rejected source costs no download.
// Only the first two stages can fail a run. Every later failure is per record: it is logged,
// added to the report and the record drops out of the remaining stages.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/listenupapp/testimonials/internal/avatar"
	"github.com/listenupapp/testimonials/internal/content"
	"github.com/listenupapp/testimonials/internal/domain"
	domainerrors "github.com/listenupapp/testimonials/internal/errors"
	"github.com/listenupapp/testimonials/internal/id"
	"github.com/listenupapp/testimonials/internal/logger"
	"github.com/listenupapp/testimonials/internal/metrics"
	"github.com/listenupapp/testimonials/internal/rules"
	"github.com/listenupapp/testimonials/internal/store"
)

// Stage names, as they appear in logs, metrics and report errors.
const (
	StageValidateCredentials = "validate_credentials"
	StageFetch               = "fetch"
	StageProcess             = "process"
	StageDetectDuplicates    = "detect_duplicates"
	StageEnrichAvatars       = "enrich_avatars"
	StageUpsert              = "upsert"
	StageAutoTag             = "auto_tag"
	StagePersistMappings     = "persist_mappings"
	StageReport              = "report"
)

// Source is a testimonial adapter.
type Source interface {
	Name() string
	ValidateCredentials(ctx context.Context) error
	Fetch(ctx context.Context) ([]domain.RawTestimonial, error)
}

// Store is the persistence the orchestrator writes through.
type Store interface {
	Upsert(ctx context.Context, t *domain.Testimonial, merge bool) (store.UpsertResult, error)
	ListTags(ctx context.Context, typ domain.TagType) ([]*domain.Tag, error)
	ListMappings(ctx context.Context) (map[string]*domain.Mapping, error)
	PutMapping(ctx context.Context, m *domain.Mapping) error
}

// Ledger keeps finished run reports.
type Ledger interface {
	SaveRun(ctx context.Context, r *domain.RunReport) error
}

// AvatarResolver enriches a record with an author image. It must not fail.
type AvatarResolver interface {
	Resolve(ctx context.Context, t *domain.Testimonial) avatar.Result
}

// Options tunes an Orchestrator.
type Options struct {
	Workers         int  // Bound on concurrent avatar fetches and upserts
	Replace         bool // Replace stored records instead of merging into them
	Blocking        bool // Compare duplicates only within a source platform
	MetricsTextfile string
	Now             func() time.Time
}

// Orchestrator sequences the curation stages over one batch at a time.
// Each Run builds its own run context; nothing is shared between runs.
type Orchestrator struct {
	store     Store
	ledger    Ledger
	avatars   AvatarResolver
	rules     *rules.Set
	processor *content.Processor
	opts      Options
	logger    *slog.Logger
}

// New creates an orchestrator. ledger and avatars may be nil, which skips saving run
// reports and avatar enrichment respectively.
func New(st Store, ledger Ledger, avatars AvatarResolver, r *rules.Set, opts Options, log *slog.Logger) *Orchestrator {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		store:     st,
		ledger:    ledger,
		avatars:   avatars,
		rules:     r,
		processor: content.NewProcessor(r),
		opts:      opts,
		logger:    log,
	}
}

// Run executes one import run against src.
//
// The returned error is non-nil only for fatal failures (credential validation or fetch),
// and then carries the ADAPTER code. The report is always returned, and is saved to the
// ledger even when the run fails or is canceled.
func (o *Orchestrator) Run(ctx context.Context, src Source) (*domain.RunReport, error) {
	rc := o.newRunContext(src.Name())
	rc.logger.Info("import run started", "workers", o.opts.Workers)

	raws, err := o.fetch(ctx, rc, src)
	if err != nil {
		rc.fail(err)
		o.finish(ctx, rc)
		return rc.report, err
	}

	processed := o.process(ctx, rc, raws)
	unique := o.detectDuplicates(rc, processed)
	o.enrichAvatars(ctx, rc, unique)
	stored := o.upsert(ctx, rc, unique)
	changed := o.autoTag(ctx, rc, stored)
	o.persistMappings(ctx, rc, changed)

	o.finish(ctx, rc)
	return rc.report, nil
}

// fetch runs the two fatal stages.
func (o *Orchestrator) fetch(ctx context.Context, rc *runContext, src Source) ([]domain.RawTestimonial, error) {
	done := rc.stage(StageValidateCredentials)
	if err := src.ValidateCredentials(ctx); err != nil {
		done(1, 0, 1)
		return nil, asAdapterError(err, "validate credentials for %s", src.Name())
	}
	done(1, 1, 0)

	done = rc.stage(StageFetch)
	raws, err := src.Fetch(ctx)
	if err != nil {
		done(0, 0, 1)
		return nil, asAdapterError(err, "fetch from %s", src.Name())
	}
	rc.report.Fetched = len(raws)
	done(0, len(raws), 0)
	return raws, nil
}

// asAdapterError gives err the fatal ADAPTER code unless it already carries it.
func asAdapterError(err error, format string, args ...any) error {
	if domainerrors.IsFatal(err) {
		return err
	}
	return domainerrors.Wrapf(err, domainerrors.CodeAdapter, format, args...)
}

// finish stamps the terminal status and saves the report. Saving ignores cancellation so a
// canceled run still leaves a ledger entry.
func (o *Orchestrator) finish(ctx context.Context, rc *runContext) {
	done := rc.stage(StageReport)
	r := rc.report

	if r.Status == domain.RunStatusRunning {
		if ctx.Err() != nil {
			r.Status = domain.RunStatusCanceled
		} else {
			r.Status = domain.RunStatusCompleted
		}
	}
	r.FinishedAt = o.opts.Now()

	if o.ledger != nil {
		if err := o.ledger.SaveRun(context.WithoutCancel(ctx), r); err != nil {
			rc.logger.Error("failed to save run report", "error", err)
		}
	}

	metrics.ObserveRun(r)
	if err := metrics.WriteTextfile(o.opts.MetricsTextfile); err != nil {
		rc.logger.Warn("failed to write metrics textfile", "path", o.opts.MetricsTextfile, "error", err)
	}
	done(0, 0, 0)

	attrs := []any{
		"status", r.Status,
		"fetched", r.Fetched,
		"imported", r.Imported,
		"updated", r.Updated,
		"duplicates", r.Duplicates,
		"failed_imports", r.FailedImports,
		"new_avatars", r.NewAvatars,
		"mappings_saved", r.MappingsSaved,
		"errors", len(r.Errors),
		"duration", r.Duration(),
	}
	if r.Status == domain.RunStatusFailed {
		rc.logger.Error("import run failed", append(attrs, "error", r.FatalError)...)
		return
	}
	rc.logger.Info("import run finished", attrs...)
}

func (o *Orchestrator) newRunContext(source string) *runContext {
	runID := id.NewRunID()
	return &runContext{
		report: &domain.RunReport{
			RunID:     runID,
			Source:    source,
			Status:    domain.RunStatusRunning,
			StartedAt: o.opts.Now(),
			Errors:    []domain.RecordError{},
		},
		locks:  newIDLocks(),
		logger: logger.ForRun(o.logger, runID, source),
	}
}

// recordLabel identifies a raw record in logs and report errors before it has an id.
// Records carrying a source id get the id they would be stored under.
func recordLabel(raw *domain.RawTestimonial, index int) string {
	sourceID := raw.Source.ID
	if sourceID == "" {
		sourceID = raw.ID
	}
	if label := id.Testimonial(raw.Source.Platform, sourceID, "", "", time.Time{}); sourceID != "" && label != "" {
		return label
	}
	return fmt.Sprintf("#%d", index)
}
