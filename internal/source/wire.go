package source

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/listenupapp/testimonials/internal/domain"
)

// timeLayouts are tried in order for string timestamps.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
}

// parseTime parses a timestamp in any of timeLayouts. Timestamps without a zone are UTC.
func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// flexTime accepts RFC 3339 and date strings, unix seconds, and {seconds, nanoseconds}
// objects as exported by document databases.
type flexTime struct {
	time.Time
}

func (ft *flexTime) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		ft.Time = time.Time{}
		return nil
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		t, err := parseTime(s)
		if err != nil {
			return err
		}
		ft.Time = t
		return nil
	case data[0] == '{':
		var obj struct {
			Seconds      *int64 `json:"seconds"`
			Nanoseconds  int64  `json:"nanoseconds"`
			USeconds     *int64 `json:"_seconds"`
			UNanoseconds int64  `json:"_nanoseconds"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		switch {
		case obj.Seconds != nil:
			ft.Time = time.Unix(*obj.Seconds, obj.Nanoseconds).UTC()
		case obj.USeconds != nil:
			ft.Time = time.Unix(*obj.USeconds, obj.UNanoseconds).UTC()
		default:
			return fmt.Errorf("timestamp object without seconds")
		}
		return nil
	default:
		secs, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			return fmt.Errorf("unrecognized timestamp %s", data)
		}
		ft.Time = time.Unix(int64(secs), 0).UTC()
		return nil
	}
}

// flexFloat accepts a JSON number or a numeric string. An empty string is zero.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		return f.parse(s)
	}
	return f.parse(string(data))
}

func (f *flexFloat) parse(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid rating %q", s)
	}
	*f = flexFloat(v)
	return nil
}

// wireRecord is the accepted JSON shape of one testimonial. It takes the domain field names
// plus a few common flat aliases.
type wireRecord struct {
	ID         string         `json:"id"`
	Author     domain.Author  `json:"author"`
	AuthorName string         `json:"author_name"`
	Text       string         `json:"text"`
	Content    string         `json:"content"`
	Rating     flexFloat      `json:"rating"`
	Verified   bool           `json:"verified"`
	Featured   bool           `json:"featured"`
	Source     domain.Source  `json:"source"`
	Platform   string         `json:"platform"`
	SourceURL  string         `json:"source_url"`
	Media      []domain.Media `json:"media"`
	Tags       []string       `json:"tags"`
	CreatedAt  flexTime       `json:"created_at"`
	UpdatedAt  flexTime       `json:"updated_at"`
}

func (w *wireRecord) raw() domain.RawTestimonial {
	r := domain.RawTestimonial{
		ID:        w.ID,
		Author:    w.Author,
		Text:      w.Text,
		Rating:    float64(w.Rating),
		Verified:  w.Verified,
		Featured:  w.Featured,
		Source:    w.Source,
		Media:     w.Media,
		Tags:      w.Tags,
		CreatedAt: w.CreatedAt.Time,
		UpdatedAt: w.UpdatedAt.Time,
	}
	if r.Author.Name == "" {
		r.Author.Name = w.AuthorName
	}
	if r.Text == "" {
		r.Text = w.Content
	}
	if r.Source.Platform == "" {
		r.Source.Platform = w.Platform
	}
	if r.Source.URL == "" {
		r.Source.URL = w.SourceURL
	}
	// Avatars are always resolved by the pipeline, never taken from the feed.
	r.Author.Avatar = nil
	return r
}

// decodeRecords decodes either a bare array of records or an object wrapping them under
// "testimonials" (with an optional "next" page link).
func decodeRecords(data []byte) (records []domain.RawTestimonial, next string, err error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, "", fmt.Errorf("empty document")
	}

	var wire []wireRecord
	if data[0] == '[' {
		if err := json.Unmarshal(data, &wire); err != nil {
			return nil, "", fmt.Errorf("decode records: %w", err)
		}
	} else {
		var page struct {
			Testimonials []wireRecord `json:"testimonials"`
			Next         string       `json:"next"`
		}
		if err := json.Unmarshal(data, &page); err != nil {
			return nil, "", fmt.Errorf("decode records: %w", err)
		}
		wire, next = page.Testimonials, page.Next
	}

	records = make([]domain.RawTestimonial, 0, len(wire))
	for i := range wire {
		records = append(records, wire[i].raw())
	}
	return records, next, nil
}
