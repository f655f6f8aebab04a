package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	ferrors "github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/logging"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/metrics"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/remote"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/repo"
)

const (
	DefaultConcurrency = 4
	DefaultMaxDepth    = 32
	DefaultMaxFileSize = 1 << 20
)

// Options bounds a tree walk. Zero values select the defaults; a negative
// MaxFileSize disables the size limit.
type Options struct {
	Concurrency int
	MaxDepth    int
	MaxFileSize int64

	// OnError is called for every node that could not be fetched. The walk
	// continues regardless.
	OnError func(path string, err error)
}

// Fetcher walks a remote repository into a RepoNode tree.
type Fetcher struct {
	src  remote.Source
	opts Options
	log  *slog.Logger
}

// New creates a Fetcher reading from src.
func New(src remote.Source, opts Options) *Fetcher {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	if opts.MaxFileSize == 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	return &Fetcher{src: src, opts: opts, log: logging.With("component", "fetcher")}
}

// walk is the state of one FetchTree call.
type walk struct {
	*Fetcher
	owner, name string
	sem         *semaphore.Weighted
	limited     atomic.Bool
}

// FetchTree lists path (the root when empty or ".") and everything below it.
//
// Failures below the root never abort the walk: the node is kept with its
// content or children omitted and the error is reported through OnError.
// Once the host reports rate-limit exhaustion no further requests are made
// and every remaining node is marked failed. A failure listing path itself is
// returned.
func (f *Fetcher) FetchTree(ctx context.Context, owner, name, path string) ([]*repo.RepoNode, error) {
	w := &walk{
		Fetcher: f,
		owner:   owner,
		name:    name,
		sem:     semaphore.NewWeighted(int64(f.opts.Concurrency)),
	}

	entries, err := w.list(ctx, path)
	if err != nil {
		return nil, ferrors.FetchError(displayPath(path), err)
	}

	nodes := w.expand(ctx, entries, 1)
	files, dirs := repo.Count(nodes)
	f.log.Debug("fetched tree", "repo", owner+"/"+name, "files", files, "dirs", dirs)
	return nodes, nil
}

// expand turns a listing into nodes, recursing into directories. Children
// keep the listing order because each goroutine writes only its own slot.
func (w *walk) expand(ctx context.Context, entries []remote.Entry, depth int) []*repo.RepoNode {
	nodes := make([]*repo.RepoNode, len(entries))

	var g errgroup.Group
	g.SetLimit(w.opts.Concurrency)
	for i, e := range entries {
		g.Go(func() error {
			nodes[i] = w.node(ctx, e, depth)
			return nil
		})
	}
	_ = g.Wait()

	return nodes
}

func (w *walk) node(ctx context.Context, e remote.Entry, depth int) *repo.RepoNode {
	n := &repo.RepoNode{Name: e.Name, Path: e.Path, Kind: e.Kind}

	if e.Kind == repo.KindDir {
		n.Children = []*repo.RepoNode{}
		if depth >= w.opts.MaxDepth {
			w.fail(e.Path, fmt.Errorf("directory depth %d exceeds limit %d", depth, w.opts.MaxDepth))
			return n
		}
		entries, err := w.list(ctx, e.Path)
		if err != nil {
			w.fail(e.Path, err)
			return n
		}
		n.Children = w.expand(ctx, entries, depth+1)
		return n
	}

	if w.opts.MaxFileSize > 0 && e.Size > w.opts.MaxFileSize {
		w.fail(e.Path, fmt.Errorf("file size %d exceeds limit %d", e.Size, w.opts.MaxFileSize))
		return n
	}
	data, err := w.raw(ctx, e.Path)
	if err != nil {
		w.fail(e.Path, err)
		return n
	}
	content := string(data)
	n.Content = &content
	return n
}

func (w *walk) list(ctx context.Context, path string) ([]remote.Entry, error) {
	if err := w.acquire(ctx); err != nil {
		return nil, err
	}
	defer w.sem.Release(1)

	entries, err := w.src.ListContents(ctx, w.owner, w.name, path)
	metrics.RecordFetch("list", err)
	w.observe(err)
	return entries, err
}

func (w *walk) raw(ctx context.Context, path string) ([]byte, error) {
	if err := w.acquire(ctx); err != nil {
		return nil, err
	}
	defer w.sem.Release(1)

	data, err := w.src.GetRawContent(ctx, w.owner, w.name, path)
	metrics.RecordFetch("raw", err)
	w.observe(err)
	return data, err
}

// acquire takes a request slot unless the walk is cancelled or rate limited.
func (w *walk) acquire(ctx context.Context) error {
	if w.limited.Load() {
		return ferrors.RateLimited(nil)
	}
	if err := w.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	if w.limited.Load() {
		w.sem.Release(1)
		return ferrors.RateLimited(nil)
	}
	return nil
}

func (w *walk) observe(err error) {
	if err != nil && ferrors.Is(err, ferrors.ErrRateLimited) {
		if !w.limited.Swap(true) {
			w.log.Warn("rate limit exhausted, skipping remaining requests", "repo", w.owner+"/"+w.name)
		}
	}
}

func (w *walk) fail(path string, err error) {
	err = ferrors.FetchError(path, err)
	metrics.RecordFetchFailure()
	w.log.Warn("fetch failed", "path", path, "error", err)
	if w.opts.OnError != nil {
		w.opts.OnError(path, err)
	}
}

func displayPath(path string) string {
	if remote.IsRoot(path) {
		return "."
	}
	return path
}
