package source

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/listenupapp/testimonials/internal/domain"
	domainerrors "github.com/listenupapp/testimonials/internal/errors"
)

const (
	defaultMaxPages    = 50
	maxPageBytes       = 32 << 20
	defaultHTTPTimeout = 30 * time.Second
)

// httpAPI reads testimonials from a JSON endpoint, following "next" links.
type httpAPI struct {
	base     *url.URL
	token    string
	platform string
	maxPages int
	client   *http.Client
	logger   *slog.Logger
}

func newHTTPAPI(cfg Config, logger *slog.Logger) (Adapter, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, domainerrors.Validationf("invalid source url %q: %v", cfg.URL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, domainerrors.Validationf("source url %q must be an absolute http(s) url", cfg.URL)
	}

	maxPages := cfg.MaxPages
	if maxPages == 0 {
		maxPages = defaultMaxPages
	}

	return &httpAPI{
		base:     u,
		token:    cfg.Token,
		platform: cfg.Platform,
		maxPages: maxPages,
		client:   &http.Client{Timeout: defaultHTTPTimeout},
		logger:   logger,
	}, nil
}

func (h *httpAPI) Name() string { return "http:" + h.base.Host }

// ValidateCredentials requests the first page and fails on any non-2xx answer.
func (h *httpAPI) ValidateCredentials(ctx context.Context) error {
	resp, err := h.get(ctx, h.base)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxPageBytes))
	return resp.Body.Close()
}

func (h *httpAPI) Fetch(ctx context.Context) ([]domain.RawTestimonial, error) {
	var all []domain.RawTestimonial
	seen := make(map[string]struct{})

	next := h.base
	for page := 1; next != nil; page++ {
		if page > h.maxPages {
			h.logger.Warn("page limit reached, stopping", "max_pages", h.maxPages)
			break
		}
		if _, dup := seen[next.String()]; dup {
			h.logger.Warn("pagination loop detected", "url", next.Redacted())
			break
		}
		seen[next.String()] = struct{}{}

		current := next
		records, link, err := h.fetchPage(ctx, current)
		if err != nil {
			return nil, err
		}
		all = append(all, records...)
		h.logger.Debug("fetched page", "page", page, "records", len(records))

		next = nil
		if link != "" {
			ref, err := url.Parse(link)
			if err != nil {
				return nil, domainerrors.Adapterf("invalid next link %q: %v", link, err)
			}
			next = current.ResolveReference(ref)
		}
	}

	defaultPlatform(all, h.platform)
	return all, nil
}

func (h *httpAPI) fetchPage(ctx context.Context, u *url.URL) ([]domain.RawTestimonial, string, error) {
	resp, err := h.get(ctx, u)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes+1))
	if err != nil {
		return nil, "", domainerrors.Wrapf(err, domainerrors.CodeAdapter, "read %s", u.Redacted())
	}
	if len(data) > maxPageBytes {
		return nil, "", domainerrors.Adapterf("page %s exceeds %d bytes", u.Redacted(), maxPageBytes)
	}

	records, next, err := decodeRecords(data)
	if err != nil {
		return nil, "", domainerrors.Wrapf(err, domainerrors.CodeAdapter, "parse %s", u.Redacted())
	}
	return records, next, nil
}

// get issues an authenticated GET. Any transport failure or non-2xx status is an adapter error;
// the caller owns the body on success.
func (h *httpAPI) get(ctx context.Context, u *url.URL) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, domainerrors.Wrapf(err, domainerrors.CodeAdapter, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, domainerrors.Wrapf(err, domainerrors.CodeAdapter, "request %s", u.Redacted())
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		resp.Body.Close()
		return nil, domainerrors.Adapterf("source rejected credentials: %s", resp.Status)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		resp.Body.Close()
		return nil, domainerrors.Adapterf("request %s: %s", u.Redacted(), resp.Status)
	}
	return resp, nil
}
