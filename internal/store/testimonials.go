package store

import (
	"context"
	"fmt"
	"slices"

	"github.com/listenupapp/testimonials/internal/domain"
	domainerrors "github.com/listenupapp/testimonials/internal/errors"
)

// Queryable testimonial fields. The source URL is deliberately absent: several distinct
// records may share one, so it is never a lookup key.
const (
	FieldPlatform   = "source.platform"
	FieldLanguage   = "language"
	FieldSentiment  = "sentiment"
	FieldAuthorName = "author.name"
)

// QueryFields lists the fields QueryByField accepts.
var QueryFields = []string{FieldPlatform, FieldLanguage, FieldSentiment, FieldAuthorName}

// UpsertResult reports what an upsert did.
type UpsertResult struct {
	Created     bool
	HadAvatar   bool // The record was already stored with an avatar
	Testimonial *domain.Testimonial
}

// GetByID returns the testimonial stored under id.
func (s *Store) GetByID(ctx context.Context, id string) (*domain.Testimonial, error) {
	t, err := s.Testimonials.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get testimonial %s: %w", id, err)
	}
	return t, nil
}

// Upsert creates or updates the testimonial with t.ID, atomically. Identity is the id only.
//
// With merge, fields t leaves unset keep their stored values; without it the stored record
// is replaced. Either way the original ImportedAt survives and UpdatedAt is stamped now.
func (s *Store) Upsert(ctx context.Context, t *domain.Testimonial, merge bool) (UpsertResult, error) {
	if t == nil || t.ID == "" {
		return UpsertResult{}, ErrInvalidInput.WithMessage("upsert: testimonial id is required")
	}

	var (
		stored    *domain.Testimonial
		hadAvatar bool
	)
	created, err := s.Testimonials.Mutate(ctx, t.ID, func(existing *domain.Testimonial) (*domain.Testimonial, error) {
		now := s.now()
		next := *t
		next.Tags = slices.Clone(t.Tags)
		hadAvatar = existing != nil && existing.Author.Avatar != nil

		if existing != nil {
			if merge {
				merged := *existing
				merged.Tags = slices.Clone(existing.Tags)
				merged.Merge(&next)
				next = merged
			}
			next.ImportedAt = existing.ImportedAt
		}
		if next.ImportedAt.IsZero() {
			next.ImportedAt = now
		}
		next.UpdatedAt = now
		next.Tags = domain.UniqueTags(next.Tags)

		stored = &next
		return &next, nil
	})
	if err != nil {
		return UpsertResult{}, domainerrors.Wrapf(err, domainerrors.CodePersistence, "upsert testimonial %s", t.ID)
	}
	return UpsertResult{Created: created, HadAvatar: hadAvatar, Testimonial: stored}, nil
}

// QueryByField returns testimonials whose field equals value, case-insensitively.
// Unknown fields are a VALIDATION error.
func (s *Store) QueryByField(ctx context.Context, field, value string) ([]*domain.Testimonial, error) {
	if !slices.Contains(QueryFields, field) {
		return nil, domainerrors.Validationf("query by field: unsupported field %q (supported: %v)", field, QueryFields)
	}
	out, err := s.Testimonials.ListByIndex(ctx, field, normalizeField(value))
	if err != nil {
		return nil, fmt.Errorf("query testimonials by %s: %w", field, err)
	}
	return out, nil
}

// BatchDelete removes the listed testimonials and returns how many existed.
// Their mappings are left in place: mappings are never deleted implicitly.
func (s *Store) BatchDelete(ctx context.Context, ids []string) (int, error) {
	n, err := s.Testimonials.BatchDelete(ctx, ids)
	if err != nil {
		return n, domainerrors.Wrap(err, domainerrors.CodePersistence, "batch delete testimonials")
	}
	return n, nil
}

// ListTestimonials returns every stored testimonial in key order.
func (s *Store) ListTestimonials(ctx context.Context) ([]*domain.Testimonial, error) {
	out, err := s.Testimonials.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("list testimonials: %w", err)
	}
	return out, nil
}
