package pipeline

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/listenupapp/testimonials/internal/dedupe"
	"github.com/listenupapp/testimonials/internal/domain"
	domainerrors "github.com/listenupapp/testimonials/internal/errors"
	"github.com/listenupapp/testimonials/internal/scoring"
	"github.com/listenupapp/testimonials/internal/validation"
)

// process validates and normalizes each raw record. Invalid or unprocessable records are
// reported and dropped.
func (o *Orchestrator) process(ctx context.Context, rc *runContext, raws []domain.RawTestimonial) []*domain.Testimonial {
	done := rc.stage(StageProcess)
	out := make([]*domain.Testimonial, 0, len(raws))
	failed := 0

	for i := range raws {
		if ctx.Err() != nil {
			rc.logger.Warn("run canceled, not scheduling further records", "stage", StageProcess, "remaining", len(raws)-i)
			break
		}

		raw := &raws[i]
		label := recordLabel(raw, i)

		if err := validation.Default().Validate(raw); err != nil {
			failed++
			rc.recordError(label, StageProcess, domainerrors.Wrapf(err, domainerrors.CodeRecordProcessing, "invalid record %s", label))
			continue
		}

		t, err := o.processor.Process(raw)
		if err != nil {
			failed++
			rc.recordError(label, StageProcess, err)
			continue
		}
		out = append(out, t)
	}

	rc.report.FailedImports += failed
	done(len(raws), len(out), failed)
	return out
}

// detectDuplicates drops in-batch duplicates, keeping the earliest record of each pair.
func (o *Orchestrator) detectDuplicates(rc *runContext, records []*domain.Testimonial) []*domain.Testimonial {
	done := rc.stage(StageDetectDuplicates)

	res := dedupe.FindDuplicates(records, dedupe.Options{Blocking: o.opts.Blocking})
	for _, p := range res.Duplicates {
		rc.logger.Debug("duplicate skipped",
			"testimonial_id", p.Duplicate.ID,
			"original_id", p.Original.ID,
			"confidence", p.Confidence,
		)
	}

	rc.report.Duplicates = len(res.Duplicates)
	done(len(records), len(res.Unique), 0)
	return res.Unique
}

// enrichAvatars resolves avatars on a bounded worker pool. The resolver never fails, so
// a record always continues to upsert; it just may carry no avatar.
func (o *Orchestrator) enrichAvatars(ctx context.Context, rc *runContext, records []*domain.Testimonial) {
	done := rc.stage(StageEnrichAvatars)
	if o.avatars == nil {
		done(len(records), len(records), 0)
		return
	}

	var (
		g      errgroup.Group
		failed int
	)
	g.SetLimit(o.opts.Workers)

	for _, t := range records {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res := o.avatars.Resolve(ctx, t)
			t.Author.Avatar = res.Avatar

			rc.mu.Lock()
			if len(res.Failures) > 0 {
				failed++
			}
			rc.mu.Unlock()

			for _, f := range res.Failures {
				rc.recordError(t.ID, StageEnrichAvatars, f)
			}
			return nil
		})
	}
	_ = g.Wait()

	done(len(records), len(records), failed)
}

// upsert writes each record by id on a bounded worker pool. Writes for the same id are
// serialized, and a started write always runs to completion even if the run is canceled.
func (o *Orchestrator) upsert(ctx context.Context, rc *runContext, records []*domain.Testimonial) []*domain.Testimonial {
	done := rc.stage(StageUpsert)

	var (
		g       errgroup.Group
		failed  int
		results = make([]*domain.Testimonial, len(records))
	)
	g.SetLimit(o.opts.Workers)

	for i, t := range records {
		if ctx.Err() != nil {
			rc.logger.Warn("run canceled, not scheduling further records", "stage", StageUpsert, "remaining", len(records)-i)
			break
		}
		g.Go(func() error {
			unlock := rc.locks.lock(t.ID)
			res, err := o.store.Upsert(context.WithoutCancel(ctx), t, !o.opts.Replace)
			unlock()

			if err != nil {
				rc.mu.Lock()
				rc.report.FailedImports++
				failed++
				rc.mu.Unlock()
				rc.recordError(t.ID, StageUpsert, err)
				return nil
			}

			rc.mu.Lock()
			if res.Created {
				rc.report.Imported++
			} else {
				rc.report.Updated++
			}
			if res.Testimonial.Author.Avatar != nil && !res.HadAvatar {
				rc.report.NewAvatars++
			}
			rc.mu.Unlock()
			results[i] = res.Testimonial
			return nil
		})
	}
	_ = g.Wait()

	stored := make([]*domain.Testimonial, 0, len(records))
	for _, t := range results {
		if t != nil {
			stored = append(stored, t)
		}
	}
	done(len(records), len(stored), failed)
	return stored
}

// autoTag builds mappings for the stored records from this run's tag and mapping cache and
// returns the ones that differ from what is stored.
func (o *Orchestrator) autoTag(ctx context.Context, rc *runContext, stored []*domain.Testimonial) []*domain.Mapping {
	done := rc.stage(StageAutoTag)
	if len(stored) == 0 || ctx.Err() != nil {
		done(len(stored), 0, 0)
		return nil
	}

	if err := rc.loadCache(ctx, o.store); err != nil {
		rc.recordError("", StageAutoTag, domainerrors.Wrap(err, domainerrors.CodePersistence, "auto-tag"))
		done(len(stored), 0, len(stored))
		return nil
	}

	tagger := scoring.NewTagger(o.rules, rc.tags)
	changed := tagger.Apply(stored, rc.mappings, o.opts.Now())

	done(len(stored), len(changed), 0)
	return changed
}

// persistMappings writes changed mappings one at a time, holding the record's id lock.
func (o *Orchestrator) persistMappings(ctx context.Context, rc *runContext, changed []*domain.Mapping) {
	done := rc.stage(StagePersistMappings)
	failed := 0

	for i, m := range changed {
		if ctx.Err() != nil {
			rc.logger.Warn("run canceled, not scheduling further records", "stage", StagePersistMappings, "remaining", len(changed)-i)
			break
		}

		unlock := rc.locks.lock(m.TestimonialID)
		err := o.store.PutMapping(context.WithoutCancel(ctx), m)
		unlock()

		if err != nil {
			failed++
			rc.recordError(m.TestimonialID, StagePersistMappings, domainerrors.Wrap(err, domainerrors.CodePersistence, "persist mapping"))
			continue
		}
		rc.mappings[m.TestimonialID] = m
		rc.report.MappingsSaved++
	}

	done(len(changed), rc.report.MappingsSaved, failed)
}
