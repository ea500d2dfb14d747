// Package id generates and derives identifiers.
package id

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/listenupapp/testimonials/internal/util"
)

// testimonialNamespace scopes derived testimonial ids so they cannot collide with other UUIDv5 users.
var testimonialNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("testimonials:record"))

// Generate creates a prefixed unique ID using NanoID
// Format: prefix-nanoid (e.g., "tag-V1StGXR8_Z5jdHi6B-myT")
//
// Returns an error if the system has insufficient entropy for secure random generation.
func Generate(prefix string) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + id, nil
}

// MustGenerate is like Generate but panics if ID generation fails.
func MustGenerate(prefix string) string {
	id, err := Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("failed to generate ID: %v", err))
	}
	return id
}

// NewRunID returns a random id for an import run.
func NewRunID() string {
	return uuid.NewString()
}

// Testimonial returns the stable id for a source record.
//
// When the source supplies its own id the result is "{platform}-{sourceID}" slugged, so
// re-importing the same source record always lands on the same key. Otherwise the id is a
// UUIDv5 over platform, author, text and creation time. The source URL never takes part:
// distinct records can share one.
func Testimonial(platform, sourceID, author, text string, createdAt time.Time) string {
	platform = util.Slug(platform)
	if sid := util.Slug(sourceID); sid != "" {
		if platform == "" {
			return sid
		}
		return platform + "-" + sid
	}

	var created string
	if !createdAt.IsZero() {
		created = createdAt.UTC().Format(time.RFC3339Nano)
	}
	name := strings.Join([]string{platform, strings.TrimSpace(author), strings.TrimSpace(text), created}, "|")
	return uuid.NewSHA1(testimonialNamespace, []byte(name)).String()
}
