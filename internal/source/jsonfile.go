package source

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/listenupapp/testimonials/internal/domain"
	domainerrors "github.com/listenupapp/testimonials/internal/errors"
)

// jsonFile reads testimonials from a JSON export on disk.
type jsonFile struct {
	path     string
	platform string
	logger   *slog.Logger
}

func newJSONFile(cfg Config, logger *slog.Logger) (Adapter, error) {
	return &jsonFile{path: cfg.Path, platform: cfg.Platform, logger: logger}, nil
}

func (j *jsonFile) Name() string { return "json:" + j.path }

// ValidateCredentials checks that the export exists and is a readable file.
func (j *jsonFile) ValidateCredentials(_ context.Context) error {
	return checkReadable(j.path)
}

func (j *jsonFile) Fetch(ctx context.Context) ([]domain.RawTestimonial, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(j.path)
	if err != nil {
		return nil, domainerrors.Wrapf(err, domainerrors.CodeAdapter, "read %s", j.path)
	}

	records, _, err := decodeRecords(data)
	if err != nil {
		return nil, domainerrors.Wrapf(err, domainerrors.CodeAdapter, "parse %s", j.path)
	}
	defaultPlatform(records, j.platform)

	j.logger.Debug("read json export", "path", j.path, "records", len(records))
	return records, nil
}

// checkReadable reports an adapter error unless path is a regular file we can open.
func checkReadable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return domainerrors.Wrapf(err, domainerrors.CodeAdapter, "source file %s", path)
	}
	if info.IsDir() {
		return domainerrors.Adapterf("source file %s is a directory", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return domainerrors.Wrapf(err, domainerrors.CodeAdapter, "open %s", path)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}
