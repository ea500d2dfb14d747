// Package store persists testimonials, tags and mappings in a Badger keyed document store.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/listenupapp/testimonials/internal/domain"
)

// Key prefixes.
const (
	testimonialPrefix = "testimonial:"
	tagPrefix         = "tag:"
	mappingPrefix     = "mapping:"
)

// Store wraps a Badger database instance.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
	now    func() time.Time

	Testimonials *Entity[domain.Testimonial]
	Tags         *Entity[domain.Tag]
	Mappings     *Entity[domain.Mapping]
}

// Options configures a Store.
type Options struct {
	// InMemory keeps everything in memory; path is ignored. Used by tests and dry runs.
	InMemory bool
	// Now overrides the clock used for ImportedAt/UpdatedAt stamps.
	Now func() time.Time
}

// New opens (or creates) the database at path.
func New(path string, logger *slog.Logger, opts Options) (*Store, error) {
	bopts := badger.DefaultOptions(path)
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	}
	bopts.Logger = nil                // Disable Badger's internal logging
	bopts.SyncWrites = !opts.InMemory // Ensure writes are synced to disk to prevent corruption on crashes
	bopts.CompactL0OnClose = true     // Compact L0 tables on close for faster startup

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	s := &Store{
		db:     db,
		logger: logger,
		now:    now,
	}
	s.initTestimonials()
	s.initTags()
	s.initMappings()

	logger.Info("Badger database opened successfully", "path", path, "in_memory", opts.InMemory)
	return s, nil
}

// Close gracefully closes the database connection.
func (s *Store) Close() error {
	s.logger.Info("Closing database connection")
	return s.db.Close()
}

// update runs fn in a read-write transaction, retrying when badger reports a conflict
// with a concurrent transaction.
func (s *Store) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt <= maxConflictRetries; attempt++ {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		s.logger.Debug("transaction conflict, retrying", "attempt", attempt+1)
	}
	return fmt.Errorf("transaction retries exhausted: %w", err)
}

func (s *Store) initTestimonials() {
	s.Testimonials = NewEntity[domain.Testimonial](s, testimonialPrefix).
		WithIndex(FieldPlatform, func(t *domain.Testimonial) []string {
			return []string{normalizeField(t.Source.Platform)}
		}).
		WithIndex(FieldLanguage, func(t *domain.Testimonial) []string {
			return []string{normalizeField(t.Language)}
		}).
		WithIndex(FieldSentiment, func(t *domain.Testimonial) []string {
			return []string{normalizeField(string(t.Sentiment))}
		}).
		WithIndexTransform(FieldAuthorName, func(t *domain.Testimonial) []string {
			return []string{normalizeField(t.Author.Name)}
		}, normalizeField)
}

func (s *Store) initTags() {
	s.Tags = NewEntity[domain.Tag](s, tagPrefix).
		WithIndex("type", func(t *domain.Tag) []string {
			return []string{string(t.Type)}
		})
}

func (s *Store) initMappings() {
	s.Mappings = NewEntity[domain.Mapping](s, mappingPrefix).
		WithIndex("tag", func(m *domain.Mapping) []string {
			return m.AllTags()
		})
}

func normalizeField(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}
