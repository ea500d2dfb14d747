// Package export writes the JSON artifact the site build reads: the published testimonials,
// their destination groupings and the generated playlists.
package export

import (
	"cmp"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/goccy/go-json"

	"github.com/listenupapp/testimonials/internal/domain"
	"github.com/listenupapp/testimonials/internal/playlist"
	"github.com/listenupapp/testimonials/internal/rules"
)

// Reader is the slice of the store the exporter reads.
type Reader interface {
	ListTestimonials(ctx context.Context) ([]*domain.Testimonial, error)
	ListMappings(ctx context.Context) (map[string]*domain.Mapping, error)
	ListTags(ctx context.Context, typ domain.TagType) ([]*domain.Tag, error)
}

// Options configures one export.
type Options struct {
	OutputPath string
}

// Result summarizes a written artifact.
type Result struct {
	Path         string
	Size         int64
	Testimonials int
	Destinations int
	Duration     time.Duration
	Checksum     string
}

// Exporter builds and writes artifacts.
type Exporter struct {
	reader    Reader
	rules     *rules.Set
	generator *playlist.Generator
	logger    *slog.Logger
	now       func() time.Time
}

// New creates an exporter over reader using the playlist tables in r.
func New(reader Reader, r *rules.Set, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{
		reader:    reader,
		rules:     r,
		generator: playlist.NewGenerator(r),
		logger:    logger,
		now:       time.Now,
	}
}

// Build reads the corpus and assembles the artifact without writing it.
func (e *Exporter) Build(ctx context.Context) (*Artifact, error) {
	corpus, err := e.reader.ListTestimonials(ctx)
	if err != nil {
		return nil, fmt.Errorf("load testimonials: %w", err)
	}
	mappings, err := e.reader.ListMappings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load mappings: %w", err)
	}
	storedTags, err := e.reader.ListTags(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("load tags: %w", err)
	}

	tags := make([]domain.Tag, 0, len(storedTags))
	inactive := make(map[string]struct{})
	for _, t := range storedTags {
		tags = append(tags, *t)
		if !t.Active {
			inactive[t.ID] = struct{}{}
		}
	}

	candidates := playlist.Candidates(corpus, mappings)
	generated := e.generator.Generate(candidates, tags)

	a := &Artifact{
		Version:      FormatVersion,
		RulesVersion: e.rules.Version,
		GeneratedAt:  e.now().UTC(),
		Testimonials: make([]Testimonial, 0, len(candidates)),
		Programs:     make(map[string][]string),
		Experiences:  make(map[string][]string),
		Solutions:    make(map[string][]string),
		Featured:     make(map[string][]string),
		Playlists: Playlists{
			Home:         generated.Home,
			Testimonials: generated.AllTestimonials,
			Destinations: generated.PerDestination,
		},
	}

	for _, c := range candidates {
		a.Testimonials = append(a.Testimonials, newTestimonial(c.Testimonial, c.Tags))
	}

	// Groups list ids by mapping priority, highest first; ties by id.
	byPriority := slices.Clone(corpus)
	slices.SortStableFunc(byPriority, func(x, y *domain.Testimonial) int {
		if c := cmp.Compare(priorityOf(mappings[y.ID]), priorityOf(mappings[x.ID])); c != 0 {
			return c
		}
		return cmp.Compare(x.ID, y.ID)
	})
	for _, t := range byPriority {
		m := mappings[t.ID]
		if m == nil {
			continue
		}
		group(a.Programs, m.Programs, t.ID, inactive)
		group(a.Experiences, m.Experiences, t.ID, inactive)
		group(a.Solutions, m.Solutions, t.ID, inactive)
		group(a.Featured, m.FeaturedSpaces, t.ID, inactive)
	}

	return a, nil
}

// Export builds the artifact and writes it atomically to opts.OutputPath.
func (e *Exporter) Export(ctx context.Context, opts Options) (*Result, error) {
	if opts.OutputPath == "" {
		return nil, fmt.Errorf("export: output path is required")
	}
	start := time.Now()

	a, err := e.Build(ctx)
	if err != nil {
		return nil, err
	}

	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode artifact: %w", err)
	}
	data = append(data, '\n')

	if err := writeAtomic(opts.OutputPath, data); err != nil {
		return nil, err
	}

	sum := sha256.Sum256(data)
	result := &Result{
		Path:         opts.OutputPath,
		Size:         int64(len(data)),
		Testimonials: len(a.Testimonials),
		Destinations: len(a.Playlists.Destinations),
		Duration:     time.Since(start),
		Checksum:     hex.EncodeToString(sum[:]),
	}

	e.logger.Info("export complete",
		"path", result.Path,
		"size", result.Size,
		"testimonials", result.Testimonials,
		"destinations", result.Destinations,
		"duration", result.Duration)
	return result, nil
}

func priorityOf(m *domain.Mapping) int {
	if m == nil {
		return domain.MinPriority
	}
	return m.Priority
}

func group(groups map[string][]string, keys []string, id string, inactive map[string]struct{}) {
	for _, k := range keys {
		if _, skip := inactive[k]; skip {
			continue
		}
		groups[k] = append(groups[k], id)
	}
}

// writeAtomic writes data next to path and renames it into place, so readers never see
// a partial artifact.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".export-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("chmod artifact: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename artifact: %w", err)
	}
	return nil
}
