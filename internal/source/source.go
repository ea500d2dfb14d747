// Package source provides the adapters that pull raw testimonials into an import run.
//
// Adapters only read and decode. Cleaning, classification and identity are the pipeline's job;
// the one thing an adapter adds is the configured platform for records that do not name one.
package source

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/listenupapp/testimonials/internal/domain"
	domainerrors "github.com/listenupapp/testimonials/internal/errors"
	"github.com/listenupapp/testimonials/internal/validation"
)

// Adapter kinds.
const (
	KindJSON = "json"
	KindCSV  = "csv"
	KindHTTP = "http"
)

// Adapter fetches raw testimonials from one source.
type Adapter interface {
	Name() string
	ValidateCredentials(ctx context.Context) error
	Fetch(ctx context.Context) ([]domain.RawTestimonial, error)
}

// Config selects and configures an adapter.
type Config struct {
	Kind     string `json:"kind" validate:"required"`
	Platform string `json:"platform"` // Default platform for records that omit one
	Path     string `json:"path" validate:"required_if=Kind json,required_if=Kind csv"`
	URL      string `json:"url" validate:"required_if=Kind http"`
	Token    string `json:"token"`
	MaxPages int    `json:"max_pages" validate:"gte=0"`
}

// Factory builds an adapter from validated config.
type Factory func(cfg Config, logger *slog.Logger) (Adapter, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{
		KindJSON: newJSONFile,
		KindCSV:  newCSVFile,
		KindHTTP: newHTTPAPI,
	}
)

// Register adds or replaces the factory for kind.
func Register(kind string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[strings.ToLower(kind)] = f
}

// Kinds lists the registered adapter kinds, sorted.
func Kinds() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	kinds := make([]string, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// New validates cfg and builds the adapter for its kind.
func New(cfg Config, logger *slog.Logger) (Adapter, error) {
	cfg.Kind = strings.ToLower(strings.TrimSpace(cfg.Kind))
	if err := validation.Default().Validate(cfg); err != nil {
		return nil, err
	}

	registryMu.RLock()
	factory, ok := registry[cfg.Kind]
	registryMu.RUnlock()
	if !ok {
		return nil, domainerrors.Validationf("unknown source kind %q (available: %s)", cfg.Kind, strings.Join(Kinds(), ", "))
	}

	if logger == nil {
		logger = slog.Default()
	}
	a, err := factory(cfg, logger.With("source", cfg.Kind))
	if err != nil {
		return nil, fmt.Errorf("create %s source: %w", cfg.Kind, err)
	}
	return a, nil
}

// defaultPlatform fills the platform on records that do not carry one.
func defaultPlatform(records []domain.RawTestimonial, platform string) {
	if platform == "" {
		return
	}
	for i := range records {
		if records[i].Source.Platform == "" {
			records[i].Source.Platform = platform
		}
	}
}

// splitTags parses a delimited tag cell. Both ';' and '|' separate tags.
func splitTags(cell string) []string {
	fields := strings.FieldsFunc(cell, func(r rune) bool { return r == ';' || r == '|' })
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" && !slices.Contains(out, f) {
			out = append(out, f)
		}
	}
	return out
}
