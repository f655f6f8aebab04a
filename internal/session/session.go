package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	ferrors "github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/events"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/logging"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/manifest"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/metrics"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/mount"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/process"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/repo"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/runtime"
)

const source = "session"

// ErrClosed is returned by operations on a closed session.
var ErrClosed = errors.New("session closed")

// TreeFetcher fetches a repository tree.
type TreeFetcher interface {
	FetchTree(ctx context.Context, owner, name, path string) ([]*repo.RepoNode, error)
}

// TreeCache stores fetched trees between sessions.
type TreeCache interface {
	Load(owner, name string) ([]*repo.RepoNode, bool, error)
	Store(owner, name string, tree []*repo.RepoNode) error
}

// Options configures a Session.
type Options struct {
	Owner string
	Repo  string

	Runtime runtime.Runtime
	Fetcher TreeFetcher

	// Cache is optional; a hit skips the fetch.
	Cache TreeCache

	// Commands defaults to process.DefaultCommands().
	Commands *process.Commands

	// FilterInstall forwards only install lines with added packages or
	// errors.
	FilterInstall bool

	// MountConcurrency bounds concurrent mounts within one depth level.
	MountConcurrency int

	// ReadyTimeout bounds the wait for the dev server; zero waits until
	// ctx ends.
	ReadyTimeout time.Duration
}

// Session is one preview of one repository in one sandbox instance.
type Session struct {
	ID      string
	Owner   string
	Repo    string
	Created time.Time

	opts Options
	bus  *events.Bus

	mu          sync.Mutex
	status      Status
	reason      string
	err         error
	changed     chan struct{}
	started     bool
	closed      bool
	inst        runtime.Instance
	sup         *process.Supervisor
	tree        []*repo.RepoNode
	mountResult *mount.Result
	previewURL  string
	readyOnce   bool
	unsubscribe func()
	shells      []*process.Shell
	dev         *process.Handle
}

// New creates a session in the Booting state. Run starts the pipeline.
func New(opts Options) *Session {
	s := &Session{
		ID:      uuid.NewString(),
		Owner:   opts.Owner,
		Repo:    opts.Repo,
		Created: time.Now(),
		opts:    opts,
		bus:     events.NewBus(),
		status:  StatusBooting,
		changed: make(chan struct{}),
	}
	metrics.SessionOpened()
	metrics.RecordSessionStatus(StatusBooting.String())
	return s
}

// Ref returns "owner/repo".
func (s *Session) Ref() string {
	return s.Owner + "/" + s.Repo
}

// Bus returns the session log.
func (s *Session) Bus() *events.Bus {
	return s.bus
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Status returns the current status and, when failed, the reason.
func (s *Session) Status() (Status, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, s.reason
}

// PreviewURL returns the bound preview address, empty until ready.
func (s *Session) PreviewURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.previewURL
}

// Tree returns a copy of the in-memory tree.
func (s *Session) Tree() []*repo.RepoNode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return repo.Clone(s.tree)
}

// MountResult returns the outcome of materializing the tree, nil until the
// mount step has run. Callers must not modify it.
func (s *Session) MountResult() *mount.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mountResult
}

// Changed returns a channel closed on the next status change or preview
// binding.
func (s *Session) Changed() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changed
}

// notify must be called with s.mu held.
func (s *Session) notify() {
	close(s.changed)
	s.changed = make(chan struct{})
}

func (s *Session) setStatus(st Status) bool {
	s.mu.Lock()
	if s.closed || s.status.Terminal() || s.status == st {
		s.mu.Unlock()
		return false
	}
	s.status = st
	s.notify()
	s.mu.Unlock()

	metrics.RecordSessionStatus(st.String())
	s.bus.Publish(events.Event{Kind: events.KindStatus, Source: source, Status: st.String(), Message: st.String()})
	logging.Debug("session status", "id", s.ID, "status", st.String())
	return true
}

// fail moves the session to Failed and returns err. A bound preview address
// is kept.
func (s *Session) fail(err error) error {
	s.mu.Lock()
	if s.closed || s.status.Terminal() {
		s.mu.Unlock()
		return err
	}
	s.status = StatusFailed
	s.reason = err.Error()
	s.err = err
	s.notify()
	s.mu.Unlock()

	metrics.RecordSessionStatus(StatusFailed.String())
	s.bus.Error(source, err)
	s.bus.Publish(events.Event{
		Kind:    events.KindStatus,
		Level:   events.LevelError,
		Source:  source,
		Status:  StatusFailed.String(),
		Message: StatusFailed.String() + ": " + err.Error(),
	})
	logging.Warn("session failed", "id", s.ID, "error", err)
	return err
}

// BindPreview records that a dev server is listening on port behind host.
// The composed address is logged and replaces any previous one; the session
// becomes Ready once the dev server has been started.
func (s *Session) BindPreview(port int, host string) string {
	url := PreviewURL(host, port)

	s.mu.Lock()
	s.previewURL = url
	first := !s.readyOnce
	s.readyOnce = true
	promote := s.status == StatusStarting
	s.notify()
	s.mu.Unlock()

	s.bus.Publish(events.Event{Kind: events.KindServerReady, Source: source, Port: port, URL: url})
	if first {
		metrics.RecordTimeToReady(time.Since(s.Created))
	}
	if promote {
		s.setStatus(StatusReady)
	}
	return url
}

// serverReady handles a notification from the sandbox. Ports that come up
// before the dev server is started belong to something else and are not
// bound.
func (s *Session) serverReady(port int, host string) {
	s.mu.Lock()
	st := s.status
	s.mu.Unlock()
	if st < StatusStarting {
		s.bus.Warn(source, fmt.Sprintf("ignoring server ready on port %d during %s", port, st))
		return
	}
	s.BindPreview(port, host)
}

// WaitReady blocks until a preview address is bound, the session fails or
// ctx ends.
func (s *Session) WaitReady(ctx context.Context) (string, error) {
	for {
		s.mu.Lock()
		url, st, err, closed, ch := s.previewURL, s.status, s.err, s.closed, s.changed
		s.mu.Unlock()

		switch {
		case url != "":
			return url, nil
		case st == StatusFailed:
			return "", err
		case closed:
			return "", ErrClosed
		}

		select {
		case <-ch:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// Run boots the sandbox and runs the preview pipeline: fetch, convert,
// mount, verify, install, start, then waits for the dev server. It returns
// the preview address.
func (s *Session) Run(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return "", errors.New("session already started")
	}
	if s.closed {
		s.mu.Unlock()
		return "", ErrClosed
	}
	s.started = true
	s.mu.Unlock()

	s.bus.Logf(source, "opening %s", s.Ref())

	inst, err := s.opts.Runtime.Boot(ctx)
	if err != nil {
		return "", s.fail(fmt.Errorf("failed to boot sandbox: %w", err))
	}
	sup := process.New(inst, s.bus, s.supervisorOptions()...)

	s.mu.Lock()
	s.inst = inst
	s.sup = sup
	closed := s.closed
	s.mu.Unlock()
	if closed {
		_ = inst.Teardown(context.Background())
		return "", ErrClosed
	}

	unsubscribe := inst.OnServerReady(s.serverReady)
	s.mu.Lock()
	s.unsubscribe = unsubscribe
	s.mu.Unlock()

	s.setStatus(StatusFetchingTree)
	tree, err := s.loadTree(ctx)
	if err != nil {
		return "", s.fail(err)
	}
	s.mu.Lock()
	s.tree = tree
	s.mu.Unlock()

	s.setStatus(StatusConverting)
	orch := mount.New(s.bus,
		mount.WithConcurrency(s.opts.MountConcurrency),
		mount.WithVerifier(sup),
		mount.WithPhaseHook(s.mountPhase),
	)
	res, err := orch.Materialize(ctx, tree, inst)
	s.mu.Lock()
	s.mountResult = res
	s.mu.Unlock()
	if err != nil {
		return "", s.fail(err)
	}

	s.setStatus(StatusInstalling)
	if _, err := sup.Install(ctx); err != nil && ctx.Err() != nil {
		return "", s.fail(ctx.Err())
	}

	s.setStatus(StatusStarting)
	dev, err := sup.StartDevServer(ctx)
	if err != nil {
		return "", s.fail(err)
	}
	s.mu.Lock()
	s.dev = dev
	bound := s.previewURL != ""
	s.mu.Unlock()
	if bound {
		s.setStatus(StatusReady)
	}

	return s.awaitReady(ctx, dev)
}

// mountPhase maps orchestrator phases onto the session status.
func (s *Session) mountPhase(p mount.Phase) {
	switch p {
	case mount.PhaseMountingRoots, mount.PhaseMountingFiles, mount.PhaseMountingNested:
		s.setStatus(StatusMounting)
	}
}

func (s *Session) supervisorOptions() []process.Option {
	var opts []process.Option
	if s.opts.Commands != nil {
		opts = append(opts, process.WithCommands(*s.opts.Commands))
	}
	if s.opts.FilterInstall {
		opts = append(opts, process.WithFilter(process.TagInstall, process.InstallFilter))
	}
	return opts
}

func (s *Session) loadTree(ctx context.Context) ([]*repo.RepoNode, error) {
	if s.opts.Cache != nil {
		tree, ok, err := s.opts.Cache.Load(s.Owner, s.Repo)
		switch {
		case err != nil:
			s.bus.Warn(source, "tree cache unavailable: "+err.Error())
		case ok:
			s.bus.Log(source, "using cached tree for "+s.Ref())
			return tree, nil
		}
	}

	if s.opts.Fetcher == nil {
		return nil, errors.New("no tree fetcher configured")
	}
	tree, err := s.opts.Fetcher.FetchTree(ctx, s.Owner, s.Repo, "")
	if err != nil {
		return nil, err
	}
	files, dirs := repo.Count(tree)
	s.bus.Logf(source, "fetched %d files in %d directories", files, dirs)

	if s.opts.Cache != nil {
		if err := s.opts.Cache.Store(s.Owner, s.Repo, tree); err != nil {
			s.bus.Warn(source, "failed to cache tree: "+err.Error())
		}
	}
	return tree, nil
}

// awaitReady waits for the first preview binding. The dev server exiting
// first, or the ready timeout elapsing, fails the session.
func (s *Session) awaitReady(ctx context.Context, dev *process.Handle) (string, error) {
	var (
		waitCtx context.Context
		cancel  context.CancelFunc
	)
	if s.opts.ReadyTimeout > 0 {
		waitCtx, cancel = context.WithTimeout(ctx, s.opts.ReadyTimeout)
	} else {
		waitCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	type result struct {
		url string
		err error
	}
	ready := make(chan result, 1)
	go func() {
		url, err := s.WaitReady(waitCtx)
		ready <- result{url, err}
	}()

	select {
	case r := <-ready:
		if r.err == nil {
			s.setStatus(StatusReady)
			s.bus.Log(source, "preview ready at "+r.url)
			return r.url, nil
		}
		if errors.Is(r.err, context.DeadlineExceeded) && ctx.Err() == nil {
			return "", s.fail(ferrors.ServerStartError(
				fmt.Sprintf("dev server not ready after %s", s.opts.ReadyTimeout), r.err))
		}
		return "", s.fail(r.err)
	case <-dev.Done():
		// A late binding may race the exit.
		if url := s.PreviewURL(); url != "" {
			s.setStatus(StatusReady)
			return url, nil
		}
		code, _ := dev.Wait(context.Background())
		return "", s.fail(ferrors.ServerStartError(
			fmt.Sprintf("dev server exited with code %d before it was ready", code), nil))
	}
}

func (s *Session) instance() (runtime.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.inst == nil {
		return nil, errors.New("sandbox not booted")
	}
	return s.inst, nil
}

// ReadFile reads path from the sandbox.
func (s *Session) ReadFile(ctx context.Context, path string) ([]byte, error) {
	inst, err := s.instance()
	if err != nil {
		return nil, err
	}
	return inst.FS().ReadFile(ctx, manifest.Sanitize(path))
}

// SaveFile stores an edit of path. The in-memory tree is updated first, so a
// failed write to the sandbox keeps the edit; the failure is logged and
// returned as a SaveError.
func (s *Session) SaveFile(ctx context.Context, path, content string) error {
	s.mu.Lock()
	err := repo.SetContent(s.tree, path, content)
	s.mu.Unlock()
	if err != nil {
		return ferrors.SaveError(path, err)
	}

	inst, err := s.instance()
	if err == nil {
		err = inst.FS().WriteFile(ctx, manifest.Sanitize(path), []byte(content))
	}
	if err != nil {
		serr := ferrors.SaveError(path, err)
		s.bus.Error(source, serr)
		return serr
	}
	s.bus.Log(source, "saved "+path)
	return nil
}

// OpenShell opens an interactive shell in the sandbox writing to terminal.
func (s *Session) OpenShell(ctx context.Context, size runtime.TerminalSize, terminal io.Writer) (*process.Shell, error) {
	s.mu.Lock()
	sup, closed := s.sup, s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	if sup == nil {
		return nil, errors.New("sandbox not booted")
	}

	sh, err := sup.OpenShell(ctx, size, terminal)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.shells = append(s.shells, sh)
	s.mu.Unlock()
	return sh, nil
}

// Close stops listening to the sandbox, closes shells and the session log,
// and tears the instance down. It is idempotent.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.notify()
	unsubscribe, shells, inst := s.unsubscribe, s.shells, s.inst
	s.unsubscribe, s.shells = nil, nil
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	for _, sh := range shells {
		_ = sh.Close()
	}

	var err error
	if inst != nil {
		err = inst.Teardown(ctx)
	}
	s.bus.Log(source, "session closed")
	s.bus.Close()

	metrics.SessionClosed()
	logging.Debug("session closed", "id", s.ID)
	return err
}
