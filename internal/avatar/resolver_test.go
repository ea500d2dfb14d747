package avatar

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/testimonials/internal/domain"
	domainerrors "github.com/listenupapp/testimonials/internal/errors"
)

func TestResolve_DownloadsImage(t *testing.T) {
	img := testPNG(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(img)
	}))
	defer srv.Close()

	r, storage := newTestResolver(t, Options{})
	rec := testRecord("google-r-1", "Jane Doe", srv.URL+"/jane.png")

	res := r.Resolve(context.Background(), rec)

	require.NotNil(t, res.Avatar)
	assert.True(t, res.Downloaded)
	assert.Empty(t, res.Failures)
	assert.False(t, res.Avatar.Generated)
	assert.Equal(t, "/avatars/google-r-1.png", res.Avatar.Path)
	assert.Equal(t, srv.URL+"/jane.png", res.Avatar.SourceURL)
	assert.Equal(t, "JD", res.Avatar.Initials)
	assert.NotEmpty(t, res.Avatar.BlurHash)

	stored, err := storage.Get("google-r-1.png")
	require.NoError(t, err)
	assert.Equal(t, img, stored)
}

func TestResolve_GeneratesFallbackWithoutImage(t *testing.T) {
	r, storage := newTestResolver(t, Options{})
	rec := testRecord("csv/row 7", "John Smith", "")

	res := r.Resolve(context.Background(), rec)

	require.NotNil(t, res.Avatar)
	assert.False(t, res.Downloaded)
	assert.Empty(t, res.Failures)
	assert.True(t, res.Avatar.Generated)
	assert.Equal(t, "/avatars/csv-row-7.svg", res.Avatar.Path)
	assert.Equal(t, "JS", res.Avatar.Initials)
	assert.Equal(t, FallbackColor("JS"), res.Avatar.Color)
	assert.True(t, storage.Exists("csv-row-7.svg"))

	again := r.Resolve(context.Background(), rec)
	assert.Equal(t, res.Avatar, again.Avatar, "fallback is deterministic")
}

func TestResolve_RejectedDownloadsFallBack(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		url     func(base string) string
		wantMsg string
	}{
		{
			name: "not found",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.NotFound(w, nil)
			},
			wantMsg: "status 404",
		},
		{
			name: "html instead of image",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "text/html; charset=utf-8")
				w.Write([]byte("<html></html>"))
			},
			wantMsg: "is not an image",
		},
		{
			name: "remote svg",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "image/svg+xml")
				w.Write([]byte("<svg/>"))
			},
			wantMsg: "remote svg",
		},
		{
			name: "oversized body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "image/png")
				w.Write(bytes.Repeat([]byte{1}, 2048))
			},
			wantMsg: "exceeds 1024 bytes",
		},
		{
			name:    "file scheme",
			handler: func(w http.ResponseWriter, _ *http.Request) {},
			url:     func(string) string { return "file:///etc/passwd" },
			wantMsg: "unsupported avatar url scheme",
		},
		{
			name:    "data uri",
			handler: func(w http.ResponseWriter, _ *http.Request) {},
			url:     func(string) string { return "data:image/png;base64,AAAA" },
			wantMsg: "unsupported avatar url scheme",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			target := srv.URL + "/a.png"
			if tt.url != nil {
				target = tt.url(srv.URL)
			}

			r, _ := newTestResolver(t, Options{MaxBytes: 1024})
			res := r.Resolve(context.Background(), testRecord("r-1", "Ann Lee", target))

			require.NotNil(t, res.Avatar, "fetch failure falls back to a generated avatar")
			assert.True(t, res.Avatar.Generated)
			assert.False(t, res.Downloaded)
			require.Len(t, res.Failures, 1)
			assert.True(t, domainerrors.Is(res.Failures[0], domainerrors.ErrEnrichment))
			assert.Contains(t, res.Failures[0].Error(), tt.wantMsg)
		})
	}
}

func TestResolve_TimeoutDegrades(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	r, _ := newTestResolver(t, Options{Timeout: 50 * time.Millisecond})

	start := time.Now()
	res := r.Resolve(context.Background(), testRecord("slow", "Sam Slow", srv.URL+"/slow.png"))

	assert.Less(t, time.Since(start), 2*time.Second)
	require.Len(t, res.Failures, 1)
	require.NotNil(t, res.Avatar)
	assert.True(t, res.Avatar.Generated)
}

func TestResolve_CircuitBreakerOpensPerHost(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	r, _ := newTestResolver(t, Options{BreakerFailures: 2, BreakerCooldown: time.Hour})

	for i := range 4 {
		res := r.Resolve(context.Background(), testRecord("r", "Ann Lee", srv.URL+"/a.png"))
		require.Len(t, res.Failures, 1, "attempt %d", i)
	}

	assert.Equal(t, int32(2), hits.Load(), "open breaker stops further requests to the host")

	res := r.Resolve(context.Background(), testRecord("r", "Ann Lee", srv.URL+"/a.png"))
	assert.ErrorIs(t, res.Failures[0], gobreaker.ErrOpenState)
}

func TestResolve_RejectionsDoNotTripBreaker(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		http.NotFound(w, nil)
	}))
	defer srv.Close()

	r, _ := newTestResolver(t, Options{BreakerFailures: 2, BreakerCooldown: time.Hour})

	for range 5 {
		r.Resolve(context.Background(), testRecord("r", "Ann Lee", srv.URL+"/missing.png"))
	}

	assert.Equal(t, int32(5), hits.Load())
}

func TestResolve_CanceledContextStillGeneratesFallback(t *testing.T) {
	r, _ := newTestResolver(t, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := r.Resolve(ctx, testRecord("r-2", "Kim Park", "https://images.invalid/k.png"))

	require.NotNil(t, res.Avatar)
	assert.True(t, res.Avatar.Generated)
	assert.Len(t, res.Failures, 1)
}

func TestResolve_StorageFailureLeavesNoAvatar(t *testing.T) {
	r, storage := newTestResolver(t, Options{})
	require.NoError(t, os.RemoveAll(storage.Dir()))

	res := r.Resolve(context.Background(), testRecord("r-3", "Lee Ray", ""))

	assert.Nil(t, res.Avatar)
	require.Len(t, res.Failures, 1)
	assert.True(t, domainerrors.Is(res.Failures[0], domainerrors.ErrEnrichment))
}

func TestExtensionFor(t *testing.T) {
	assert.Equal(t, ".jpg", extensionFor("image/jpeg"))
	assert.Equal(t, ".webp", extensionFor("image/webp"))
	assert.Equal(t, ".img", extensionFor("image/x-unknown"))
}

func TestComputeBlurHash(t *testing.T) {
	hash, err := ComputeBlurHash(testPNG(t))
	require.NoError(t, err)
	assert.NotEmpty(t, hash)

	_, err = ComputeBlurHash([]byte("not an image"))
	assert.Error(t, err)
}

func newTestResolver(t *testing.T, opts Options) (*Resolver, *Storage) {
	t.Helper()
	storage := setupTestStorage(t)
	r := NewResolver(storage, opts, slog.New(slog.DiscardHandler))
	t.Cleanup(r.Close)
	return r, storage
}

func testRecord(id, name, imageURL string) *domain.Testimonial {
	return &domain.Testimonial{
		ID:     id,
		Author: domain.Author{Name: name, ImageURL: imageURL},
		Text:   "Wonderful session.",
		Rating: 5,
		Source: domain.Source{Platform: "google"},
	}
}

// testPNG encodes a small gradient so the blurhash has something to summarize.
func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 48, 48))
	for y := range 48 {
		for x := range 48 {
			img.Set(x, y, color.RGBA{R: uint8(x * 5), G: uint8(y * 5), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
