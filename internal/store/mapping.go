package store

import (
	"context"
	"fmt"

	"github.com/listenupapp/testimonials/internal/domain"
	domainerrors "github.com/listenupapp/testimonials/internal/errors"
)

// GetMapping returns the mapping for a testimonial.
func (s *Store) GetMapping(ctx context.Context, testimonialID string) (*domain.Mapping, error) {
	m, err := s.Mappings.Get(ctx, testimonialID)
	if err != nil {
		return nil, fmt.Errorf("get mapping %s: %w", testimonialID, err)
	}
	return m, nil
}

// PutMapping writes m in place of the stored mapping. LastUpdated always moves forward
// past the stored value, even when the caller's clock lags behind it; m is updated to
// what was written.
func (s *Store) PutMapping(ctx context.Context, m *domain.Mapping) error {
	if m == nil || m.TestimonialID == "" {
		return ErrInvalidInput.WithMessage("put mapping: testimonial id is required")
	}
	m.Priority = domain.ClampPriority(m.Priority)
	m.Tags = domain.UniqueTags(m.Tags)
	m.Programs = domain.UniqueTags(m.Programs)
	m.Experiences = domain.UniqueTags(m.Experiences)
	m.Solutions = domain.UniqueTags(m.Solutions)
	m.FeaturedSpaces = domain.UniqueTags(m.FeaturedSpaces)

	var written domain.Mapping
	_, err := s.Mappings.Mutate(ctx, m.TestimonialID, func(existing *domain.Mapping) (*domain.Mapping, error) {
		next := *m
		if existing != nil && !next.LastUpdated.After(existing.LastUpdated) {
			next.LastUpdated = existing.LastUpdated
			next.Touch(s.now())
		}
		if next.LastUpdated.IsZero() {
			next.Touch(s.now())
		}
		written = next
		return &next, nil
	})
	if err != nil {
		return domainerrors.Wrapf(err, domainerrors.CodePersistence, "put mapping %s", m.TestimonialID)
	}
	*m = written
	return nil
}

// ListMappings returns every stored mapping keyed by testimonial id.
func (s *Store) ListMappings(ctx context.Context) (map[string]*domain.Mapping, error) {
	all, err := s.Mappings.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("list mappings: %w", err)
	}
	out := make(map[string]*domain.Mapping, len(all))
	for _, m := range all {
		out[m.TestimonialID] = m
	}
	return out, nil
}

// MappingsByTag returns mappings that carry tag as a tag, destination or featured space.
func (s *Store) MappingsByTag(ctx context.Context, tag string) ([]*domain.Mapping, error) {
	out, err := s.Mappings.ListByIndex(ctx, "tag", tag)
	if err != nil {
		return nil, fmt.Errorf("mappings by tag %s: %w", tag, err)
	}
	return out, nil
}
