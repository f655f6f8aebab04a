// Package remote is the boundary to the repository host.
//
// Source is the collaborator the fetcher and the HTTP surface depend on.
// GitHubSource implements it on the GitHub REST API; MockSource is an
// in-memory implementation for tests.
package remote

import (
	"context"
	"errors"
	"time"

	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/repo"
)

// ErrNoRateLimit is returned when a source cannot report its quota.
var ErrNoRateLimit = errors.New("repository source does not report rate limits")

// Entry is one item of a directory listing.
type Entry struct {
	Name string
	Path string
	Kind repo.Kind
	Size int64
}

// RateLimit reports the host's request quota.
type RateLimit struct {
	Limit     int
	Remaining int
	Reset     time.Time
}

// Source lists and reads repository contents.
//
// Errors are classified by wrapping errors.ErrNotFound, errors.ErrAccessDenied
// or errors.ErrRateLimited from the internal errors package.
type Source interface {
	// ListContents lists the directory at path; "" and "." mean the root.
	ListContents(ctx context.Context, owner, name, path string) ([]Entry, error)

	// GetRawContent returns the raw bytes of the file at path.
	GetRawContent(ctx context.Context, owner, name, path string) ([]byte, error)

	// CheckRepo returns nil if the repository exists and is readable.
	CheckRepo(ctx context.Context, owner, name string) error
}

// RateLimiter is implemented by sources that can report their quota.
type RateLimiter interface {
	RateLimit(ctx context.Context) (*RateLimit, error)
}

// IsRoot reports whether path addresses the repository root.
func IsRoot(path string) bool {
	return path == "" || path == "." || path == "/"
}
