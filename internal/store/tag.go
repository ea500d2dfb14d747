package store

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/listenupapp/testimonials/internal/domain"
	"github.com/listenupapp/testimonials/internal/validation"
)

// CreateTag stores a new tag. Returns ErrAlreadyExists if the id is taken.
func (s *Store) CreateTag(ctx context.Context, tag *domain.Tag) error {
	if err := validation.Default().Validate(tag); err != nil {
		return err
	}
	now := s.now()
	if tag.CreatedAt.IsZero() {
		tag.CreatedAt = now
	}
	tag.UpdatedAt = now

	if err := s.Tags.Create(ctx, tag.ID, tag); err != nil {
		return fmt.Errorf("create tag %s: %w", tag.ID, err)
	}
	return nil
}

// GetTag returns the tag with id.
func (s *Store) GetTag(ctx context.Context, id string) (*domain.Tag, error) {
	tag, err := s.Tags.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get tag %s: %w", id, err)
	}
	return tag, nil
}

// UpdateTag replaces a stored tag, keeping its CreatedAt.
func (s *Store) UpdateTag(ctx context.Context, tag *domain.Tag) error {
	if err := validation.Default().Validate(tag); err != nil {
		return err
	}
	_, err := s.Tags.Mutate(ctx, tag.ID, func(existing *domain.Tag) (*domain.Tag, error) {
		if existing == nil {
			return nil, ErrNotFound.WithMessage("tag " + tag.ID + " not found")
		}
		next := *tag
		next.CreatedAt = existing.CreatedAt
		next.UpdatedAt = s.now()
		return &next, nil
	})
	if err != nil {
		return fmt.Errorf("update tag %s: %w", tag.ID, err)
	}
	return nil
}

// SeedDefaultTags creates every tag in defaults that does not exist yet and returns how
// many were created. Existing tags are left alone so admin edits survive re-seeding.
func (s *Store) SeedDefaultTags(ctx context.Context, defaults []domain.Tag) (int, error) {
	created := 0
	for i := range defaults {
		tag := defaults[i]
		err := s.CreateTag(ctx, &tag)
		switch {
		case err == nil:
			created++
		case errors.Is(err, ErrAlreadyExists):
		default:
			return created, err
		}
	}
	s.logger.Info("seeded default tags", "created", created, "total", len(defaults))
	return created, nil
}

// ListTags returns stored tags ordered by type, then Order, then id.
// A non-empty typ filters to that type.
func (s *Store) ListTags(ctx context.Context, typ domain.TagType) ([]*domain.Tag, error) {
	var (
		tags []*domain.Tag
		err  error
	)
	if typ != "" {
		tags, err = s.Tags.ListByIndex(ctx, "type", string(typ))
	} else {
		tags, err = s.Tags.Collect(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}

	slices.SortFunc(tags, func(a, b *domain.Tag) int {
		return cmp.Or(
			cmp.Compare(slices.Index(domain.TagTypes, a.Type), slices.Index(domain.TagTypes, b.Type)),
			cmp.Compare(a.Order, b.Order),
			cmp.Compare(a.ID, b.ID),
		)
	})
	return tags, nil
}
