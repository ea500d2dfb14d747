// Package avatar resolves author images for testimonials.
//
// A record whose author carries an image URL gets that image downloaded, stored under a
// sanitized filename and summarized with a BlurHash. Any record without a usable image gets
// a deterministic SVG with the author's initials instead. Resolution is best-effort: the
// resolver never returns an error, it reports enrichment failures alongside whatever avatar
// it managed to produce.
package avatar

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/listenupapp/testimonials/internal/domain"
	domainerrors "github.com/listenupapp/testimonials/internal/errors"
	"github.com/listenupapp/testimonials/internal/metrics"
	"github.com/listenupapp/testimonials/internal/ratelimit"
)

// Options configures a Resolver.
type Options struct {
	Timeout         time.Duration // Per-fetch timeout
	MaxBytes        int64         // Largest accepted image body
	RatePerHost     float64       // Requests per second per remote host
	Burst           int
	BreakerFailures uint32        // Consecutive failures before a host's breaker opens
	BreakerCooldown time.Duration // How long an open breaker rejects before probing again
	PublicPath      string        // Prefix recorded in Avatar.Path
	HTTPClient      *http.Client
}

// DefaultOptions returns the options used when config leaves a value unset.
func DefaultOptions() Options {
	return Options{
		Timeout:         10 * time.Second,
		MaxBytes:        5 * 1024 * 1024,
		RatePerHost:     5,
		Burst:           2,
		BreakerFailures: 5,
		BreakerCooldown: time.Minute,
		PublicPath:      "/avatars",
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Timeout <= 0 {
		o.Timeout = d.Timeout
	}
	if o.MaxBytes <= 0 {
		o.MaxBytes = d.MaxBytes
	}
	if o.RatePerHost < 0 {
		o.RatePerHost = d.RatePerHost
	}
	if o.Burst <= 0 {
		o.Burst = d.Burst
	}
	if o.BreakerFailures == 0 {
		o.BreakerFailures = d.BreakerFailures
	}
	if o.BreakerCooldown <= 0 {
		o.BreakerCooldown = d.BreakerCooldown
	}
	if o.PublicPath == "" {
		o.PublicPath = d.PublicPath
	}
	return o
}

// Result is the outcome of resolving one record.
type Result struct {
	Avatar     *domain.Avatar // nil when neither download nor fallback succeeded
	Downloaded bool
	Failures   []error // Enrichment failures, in the order they happened
}

// download is a fetched image body and its media type.
type download struct {
	data        []byte
	contentType string
}

// rejectedError marks a response the host served correctly but that is unusable as an avatar.
// Rejections do not count against the host's circuit breaker.
type rejectedError struct {
	reason string
}

func (e *rejectedError) Error() string { return e.reason }

// Resolver fetches or synthesizes author avatars. Safe for concurrent use.
type Resolver struct {
	storage *Storage
	client  *http.Client
	limiter *ratelimit.KeyedRateLimiter
	opts    Options
	logger  *slog.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[download]
}

// NewResolver creates a resolver writing into storage.
func NewResolver(storage *Storage, opts Options, logger *slog.Logger) *Resolver {
	opts = opts.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	return &Resolver{
		storage:  storage,
		client:   client,
		limiter:  ratelimit.New(opts.RatePerHost, opts.Burst),
		opts:     opts,
		logger:   logger,
		breakers: make(map[string]*gobreaker.CircuitBreaker[download]),
	}
}

// Close releases the resolver's background resources.
func (r *Resolver) Close() {
	r.limiter.Stop()
}

// Resolve produces an avatar for t. It never fails: problems are returned in Result.Failures.
func (r *Resolver) Resolve(ctx context.Context, t *domain.Testimonial) Result {
	var res Result

	stem := SanitizeFilename(t.ID)
	initials := Initials(t.Author.Name)
	background := FallbackColor(initials)

	if t.Author.ImageURL != "" {
		av, err := r.download(ctx, stem, t.Author.ImageURL)
		if err == nil {
			av.Initials = initials
			av.Color = background
			res.Avatar = av
			res.Downloaded = true
			metrics.AvatarResults.WithLabelValues("downloaded").Inc()
			return res
		}

		res.Failures = append(res.Failures, err)
		r.logger.Warn("avatar download failed, generating fallback",
			"testimonial_id", t.ID,
			"error", err,
		)
	}

	name := stem + ".svg"
	if err := r.storage.Save(name, RenderSVG(initials, background)); err != nil {
		res.Failures = append(res.Failures, domainerrors.Wrapf(err, domainerrors.CodeEnrichment, "generate avatar for %s", t.ID))
		metrics.AvatarResults.WithLabelValues("failed").Inc()
		r.logger.Warn("avatar generation failed",
			"testimonial_id", t.ID,
			"error", err,
		)
		return res
	}

	res.Avatar = &domain.Avatar{
		Path:      path.Join(r.opts.PublicPath, name),
		Generated: true,
		Initials:  initials,
		Color:     background,
	}
	metrics.AvatarResults.WithLabelValues("generated").Inc()
	return res
}

// download validates rawURL, fetches it through the host's limiter and breaker, and stores it.
func (r *Resolver) download(ctx context.Context, stem, rawURL string) (*domain.Avatar, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeEnrichment, "parse avatar url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, domainerrors.Enrichmentf("unsupported avatar url scheme %q", u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return nil, domainerrors.Enrichmentf("avatar url has no host")
	}

	if err := r.limiter.Wait(ctx, host); err != nil {
		return nil, domainerrors.Wrapf(err, domainerrors.CodeEnrichment, "rate limit %s", host)
	}

	dl, err := r.breakerFor(host).Execute(func() (download, error) {
		return r.fetch(ctx, u.String())
	})
	if err != nil {
		return nil, domainerrors.Wrapf(err, domainerrors.CodeEnrichment, "fetch avatar from %s", host)
	}

	name := stem + extensionFor(dl.contentType)
	if err := r.storage.Save(name, dl.data); err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeEnrichment, "store avatar")
	}

	hash, err := ComputeBlurHash(dl.data)
	if err != nil {
		r.logger.Debug("blurhash skipped",
			"file", name,
			"content_type", dl.contentType,
			"error", err,
		)
	}

	r.logger.Debug("downloaded avatar",
		"file", name,
		"host", host,
		"size", len(dl.data),
	)

	return &domain.Avatar{
		Path:      path.Join(r.opts.PublicPath, name),
		BlurHash:  hash,
		SourceURL: rawURL,
	}, nil
}

// fetch performs one bounded GET and applies the status, content-type and size checks.
func (r *Resolver) fetch(ctx context.Context, target string) (download, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, target, nil)
	if err != nil {
		return download{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "image/*")

	resp, err := r.client.Do(req)
	if err != nil {
		return download{}, fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return download{}, fmt.Errorf("download failed: status %d", resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return download{}, &rejectedError{reason: fmt.Sprintf("download rejected: status %d", resp.StatusCode)}
	}

	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "image/") {
		return download{}, &rejectedError{reason: fmt.Sprintf("content type %q is not an image", resp.Header.Get("Content-Type"))}
	}
	// Remote SVG can carry script; only generated SVGs are ever written.
	if mediaType == "image/svg+xml" {
		return download{}, &rejectedError{reason: "remote svg avatars are not accepted"}
	}

	// Read one byte past the limit so an oversized body is detected rather than truncated.
	data, err := io.ReadAll(io.LimitReader(resp.Body, r.opts.MaxBytes+1))
	if err != nil {
		return download{}, fmt.Errorf("read data: %w", err)
	}
	if int64(len(data)) > r.opts.MaxBytes {
		return download{}, &rejectedError{reason: fmt.Sprintf("image exceeds %d bytes", r.opts.MaxBytes)}
	}
	if len(data) == 0 {
		return download{}, &rejectedError{reason: "empty image body"}
	}

	return download{data: data, contentType: mediaType}, nil
}

// breakerFor returns the circuit breaker guarding host, creating it on first use.
func (r *Resolver) breakerFor(host string) *gobreaker.CircuitBreaker[download] {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[host]; ok {
		return cb
	}

	name := "avatar:" + host
	metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(gobreaker.StateClosed))

	cb := gobreaker.NewCircuitBreaker[download](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     r.opts.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= r.opts.BreakerFailures
		},
		IsSuccessful: func(err error) bool {
			var rejected *rejectedError
			return err == nil || domainerrors.As(err, &rejected) || domainerrors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			r.logger.Info("avatar circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})
	r.breakers[host] = cb
	return cb
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// extensionFor maps an image media type onto a file extension.
func extensionFor(mediaType string) string {
	switch mediaType {
	case "image/jpeg", "image/jpg", "image/pjpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/avif":
		return ".avif"
	default:
		return ".img"
	}
}
