package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/listenupapp/testimonials/internal/domain"
	"github.com/listenupapp/testimonials/internal/metrics"
)

// runContext is the state of a single run. It is built fresh by Run and dropped when the
// run ends, so the tag and mapping cache never outlives the run that loaded it.
type runContext struct {
	report *domain.RunReport
	locks  *idLocks
	logger *slog.Logger

	mu sync.Mutex // Guards report while record-level work runs in parallel

	tags     []domain.Tag
	mappings map[string]*domain.Mapping
}

// loadCache reads the tag set and existing mappings the auto-tag stage works from.
func (rc *runContext) loadCache(ctx context.Context, st Store) error {
	tags, err := st.ListTags(ctx, "")
	if err != nil {
		return fmt.Errorf("load tags: %w", err)
	}
	mappings, err := st.ListMappings(ctx)
	if err != nil {
		return fmt.Errorf("load mappings: %w", err)
	}

	rc.tags = make([]domain.Tag, 0, len(tags))
	for _, t := range tags {
		rc.tags = append(rc.tags, *t)
	}
	rc.mappings = mappings
	return nil
}

// recordError adds a per-record failure to the report and logs it.
func (rc *runContext) recordError(id, stage string, err error) {
	rc.mu.Lock()
	rc.report.AddError(id, stage, err.Error())
	rc.mu.Unlock()

	rc.logger.Warn("record failed",
		"testimonial_id", id,
		"stage", stage,
		"error", err,
	)
}

// fail marks the run as failed by a fatal error.
func (rc *runContext) fail(err error) {
	rc.report.Status = domain.RunStatusFailed
	rc.report.FatalError = err.Error()
}

// stage starts timing a stage. The returned func logs its one-line summary.
func (rc *runContext) stage(name string) func(in, out, failed int) {
	start := time.Now()
	return func(in, out, failed int) {
		elapsed := time.Since(start)
		metrics.ObserveStage(name, elapsed)
		rc.logger.Info("stage complete",
			"stage", name,
			"in", in,
			"out", out,
			"failed", failed,
			"duration", elapsed,
		)
	}
}
