package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v66/github"

	ferrors "github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/repo"
)

// rawMediaType asks the contents API for the file body instead of JSON.
const rawMediaType = "application/vnd.github.raw"

// GitHubSource is a Source backed by the GitHub REST API.
type GitHubSource struct {
	client *github.Client
}

// GitHubOptions configures NewGitHubSource.
type GitHubOptions struct {
	// Token is an optional personal access token.
	Token string

	// BaseURL overrides the API root, for GitHub Enterprise or tests.
	BaseURL string

	// HTTPClient is the transport; nil uses http.DefaultClient.
	HTTPClient *http.Client
}

var (
	_ Source      = (*GitHubSource)(nil)
	_ RateLimiter = (*GitHubSource)(nil)
)

// NewGitHubSource creates a GitHub-backed Source.
func NewGitHubSource(opts GitHubOptions) (*GitHubSource, error) {
	client := github.NewClient(opts.HTTPClient)
	if opts.Token != "" {
		client = client.WithAuthToken(opts.Token)
	}
	if opts.BaseURL != "" {
		u, err := url.Parse(opts.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid GitHub base URL %q: %w", opts.BaseURL, err)
		}
		if !strings.HasSuffix(u.Path, "/") {
			u.Path += "/"
		}
		client.BaseURL = u
	}
	return &GitHubSource{client: client}, nil
}

// ListContents implements Source.
func (s *GitHubSource) ListContents(ctx context.Context, owner, name, path string) ([]Entry, error) {
	if IsRoot(path) {
		path = ""
	}

	file, dir, _, err := s.client.Repositories.GetContents(ctx, owner, name, path, nil)
	if err != nil {
		return nil, classify(owner, name, err)
	}

	if file != nil {
		return []Entry{toEntry(file)}, nil
	}

	entries := make([]Entry, 0, len(dir))
	for _, c := range dir {
		entries = append(entries, toEntry(c))
	}
	return entries, nil
}

// GetRawContent implements Source.
func (s *GitHubSource) GetRawContent(ctx context.Context, owner, name, path string) ([]byte, error) {
	u := fmt.Sprintf("repos/%s/%s/contents/%s", owner, name, escapePath(path))
	req, err := s.client.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", rawMediaType)

	var buf bytes.Buffer
	if _, err := s.client.Do(ctx, req, &buf); err != nil {
		return nil, classify(owner, name, err)
	}
	return buf.Bytes(), nil
}

// CheckRepo implements Source.
func (s *GitHubSource) CheckRepo(ctx context.Context, owner, name string) error {
	_, _, err := s.client.Repositories.Get(ctx, owner, name)
	if err != nil {
		return classify(owner, name, err)
	}
	return nil
}

// RateLimit implements RateLimiter using the core quota.
func (s *GitHubSource) RateLimit(ctx context.Context) (*RateLimit, error) {
	limits, _, err := s.client.RateLimit.Get(ctx)
	if err != nil {
		return nil, classify("", "", err)
	}
	core := limits.GetCore()
	if core == nil {
		return nil, fmt.Errorf("rate limit response has no core quota")
	}
	return &RateLimit{
		Limit:     core.Limit,
		Remaining: core.Remaining,
		Reset:     core.Reset.Time,
	}, nil
}

func toEntry(c *github.RepositoryContent) Entry {
	kind := repo.KindFile
	if c.GetType() == "dir" {
		kind = repo.KindDir
	}
	return Entry{
		Name: c.GetName(),
		Path: c.GetPath(),
		Kind: kind,
		Size: int64(c.GetSize()),
	}
}

func escapePath(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}

// classify maps go-github errors onto the sentinel causes.
func classify(owner, name string, err error) error {
	ref := owner + "/" + name

	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return ferrors.RateLimited(fmt.Errorf("%w: %v", ferrors.ErrRateLimited, err))
	}
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return ferrors.RateLimited(fmt.Errorf("%w: %v", ferrors.ErrRateLimited, err))
	}

	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		switch respErr.Response.StatusCode {
		case http.StatusNotFound:
			return ferrors.NotFound(ref)
		case http.StatusForbidden, http.StatusUnauthorized:
			return ferrors.AccessDenied(ref)
		case http.StatusTooManyRequests:
			return ferrors.RateLimited(fmt.Errorf("%w: %v", ferrors.ErrRateLimited, err))
		}
	}
	return err
}
