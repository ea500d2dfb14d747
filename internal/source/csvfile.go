package source

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/listenupapp/testimonials/internal/domain"
	domainerrors "github.com/listenupapp/testimonials/internal/errors"
)

// csvColumns are the recognized header names. Unknown columns are ignored.
var csvColumns = []string{
	"id", "author", "title", "company", "image_url", "text", "rating", "verified",
	"featured", "platform", "source_id", "source_url", "tags", "created_at",
}

// csvFile reads testimonials from a spreadsheet export with a header row.
type csvFile struct {
	path     string
	platform string
	logger   *slog.Logger
}

func newCSVFile(cfg Config, logger *slog.Logger) (Adapter, error) {
	return &csvFile{path: cfg.Path, platform: cfg.Platform, logger: logger}, nil
}

func (c *csvFile) Name() string { return "csv:" + c.path }

func (c *csvFile) ValidateCredentials(_ context.Context) error {
	return checkReadable(c.path)
}

func (c *csvFile) Fetch(ctx context.Context) ([]domain.RawTestimonial, error) {
	f, err := os.Open(c.path)
	if err != nil {
		return nil, domainerrors.Wrapf(err, domainerrors.CodeAdapter, "open %s", c.path)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, domainerrors.Adapterf("%s has no header row", c.path)
		}
		return nil, domainerrors.Wrapf(err, domainerrors.CodeAdapter, "read header of %s", c.path)
	}
	index := headerIndex(header)
	if _, ok := index["text"]; !ok {
		return nil, domainerrors.Adapterf("%s has no text column", c.path)
	}
	for name := range index {
		if !slices.Contains(csvColumns, name) {
			c.logger.Debug("ignoring unknown column", "column", name)
		}
	}

	var records []domain.RawTestimonial
	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, domainerrors.Wrapf(err, domainerrors.CodeAdapter, "read %s", c.path)
		}
		if blankRow(row) {
			continue
		}
		records = append(records, c.record(index, row, line))
	}
	defaultPlatform(records, c.platform)

	c.logger.Debug("read csv export", "path", c.path, "records", len(records))
	return records, nil
}

// record maps one row onto a raw testimonial. Unparseable cells are logged and left zero,
// so validation later decides the record's fate.
func (c *csvFile) record(index map[string]int, row []string, line int) domain.RawTestimonial {
	cell := func(name string) string {
		i, ok := index[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	raw := domain.RawTestimonial{
		ID: cell("id"),
		Author: domain.Author{
			Name:     cell("author"),
			Title:    cell("title"),
			Company:  cell("company"),
			ImageURL: cell("image_url"),
		},
		Text:     cell("text"),
		Verified: parseBool(cell("verified")),
		Featured: parseBool(cell("featured")),
		Source: domain.Source{
			Platform: cell("platform"),
			ID:       cell("source_id"),
			URL:      cell("source_url"),
		},
		Tags: splitTags(cell("tags")),
	}

	if v := cell("rating"); v != "" {
		rating, err := strconv.ParseFloat(v, 64)
		if err != nil {
			c.logger.Warn("invalid rating", "line", line, "value", v)
			rating = 0
		}
		raw.Rating = rating
	}
	if v := cell("created_at"); v != "" {
		created, err := parseTime(v)
		if err != nil {
			c.logger.Warn("invalid created_at", "line", line, "value", v)
		}
		raw.CreatedAt = created
	}
	return raw
}

// headerIndex maps normalized header names to column positions. The first occurrence wins.
func headerIndex(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		name = strings.ReplaceAll(name, " ", "_")
		if _, seen := index[name]; !seen {
			index[name] = i
		}
	}
	return index
}

func blankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func parseBool(s string) bool {
	switch strings.ToLower(s) {
	case "1", "true", "yes", "y", "x":
		return true
	}
	return false
}
