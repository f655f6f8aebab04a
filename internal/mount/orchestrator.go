package mount

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	ferrors "github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/events"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/logging"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/manifest"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/metrics"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/repo"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/runtime"
)

const source = "mount"

// Verifier checks a mounted project, typically by listing its root.
type Verifier interface {
	Verify(ctx context.Context) error
}

// Failure is one rejected mount call.
type Failure struct {
	Key string
	Err error
}

// Result summarizes a materialization.
type Result struct {
	// Mounted lists the keys that mounted successfully, in issue order.
	Mounted []string

	// Failed lists rejected entries; Partial is set when it is non-empty.
	Failed  []Failure
	Partial bool

	// UsedScaffold is set when the scaffold replaced the converted tree.
	// ConversionErr holds the conversion failure that caused it, if any.
	UsedScaffold  bool
	ConversionErr error

	// WroteDescriptor is set when a minimal package descriptor was written.
	WroteDescriptor bool
}

// Orchestrator mounts manifests into sandbox instances.
type Orchestrator struct {
	bus         *events.Bus
	verifier    Verifier
	concurrency int
	onPhase     func(Phase)

	mu    sync.Mutex
	phase Phase
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithConcurrency sets how many mounts of one level run at once.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithVerifier sets the post-mount verification step.
func WithVerifier(v Verifier) Option {
	return func(o *Orchestrator) {
		o.verifier = v
	}
}

// WithPhaseHook calls fn on every phase change.
func WithPhaseHook(fn func(Phase)) Option {
	return func(o *Orchestrator) {
		o.onPhase = fn
	}
}

// New creates an Orchestrator that logs to bus.
func New(bus *events.Bus, opts ...Option) *Orchestrator {
	o := &Orchestrator{bus: bus, concurrency: 1}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Phase returns the current phase.
func (o *Orchestrator) Phase() Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

func (o *Orchestrator) setPhase(p Phase) {
	o.mu.Lock()
	changed := o.phase != p
	o.phase = p
	o.mu.Unlock()

	if !changed {
		return
	}
	logging.Debug("mount phase", "phase", p.String())
	if o.onPhase != nil {
		o.onPhase(p)
	}
}

// Prepare converts tree into a manifest. A conversion error or a tree with
// no surviving files is replaced by the scaffold; used reports the
// substitution and convErr the conversion failure, if any.
func (o *Orchestrator) Prepare(tree []*repo.RepoNode) (m manifest.Manifest, used bool, convErr error) {
	m, convErr = manifest.FromTree(tree)
	switch {
	case convErr != nil:
		o.bus.Warn(source, convErr.Error()+"; using minimal project")
	case m.FileCount() == 0:
		o.bus.Warn(source, "repository has no files to mount; using minimal project")
	default:
		return m, false, nil
	}
	metrics.RecordScaffoldFallback()
	return manifest.Scaffold(), true, convErr
}

// Mount mounts m into inst following PlanOrder. Entry failures never stop
// the sequence; only cancellation of ctx does.
func (o *Orchestrator) Mount(ctx context.Context, inst runtime.Instance, m manifest.Manifest) (*Result, error) {
	res := &Result{}
	for _, level := range PlanOrder(m) {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		o.setPhase(level.Phase)
		o.mountLevel(ctx, inst, m, level.Keys, res)
	}
	res.Partial = len(res.Failed) > 0
	if res.Partial {
		o.bus.Warn(source, "project partially mounted")
	}
	o.bus.Logf(source, "mounted %d of %d entries", len(res.Mounted), len(m))
	return res, nil
}

func (o *Orchestrator) mountLevel(ctx context.Context, inst runtime.Instance, m manifest.Manifest, keys []string, res *Result) {
	errs := make([]error, len(keys))

	var g errgroup.Group
	g.SetLimit(o.concurrency)
	for i, key := range keys {
		g.Go(func() error {
			entry := m[key]
			err := inst.Mount(ctx, manifest.Manifest{key: entry})
			metrics.RecordMount(entry.Kind().String(), err)
			errs[i] = err
			return nil
		})
	}
	_ = g.Wait()

	for i, key := range keys {
		if errs[i] == nil {
			res.Mounted = append(res.Mounted, key)
			continue
		}
		merr := ferrors.MountError(key, errs[i])
		o.bus.Warn(source, merr.Error())
		logging.Warn("mount failed", "key", key, "error", errs[i])
		res.Failed = append(res.Failed, Failure{Key: key, Err: merr})
	}
}

// Verify runs the verifier, if any. A failure is logged and not returned.
func (o *Orchestrator) Verify(ctx context.Context) {
	if o.verifier == nil {
		return
	}
	o.setPhase(PhaseVerifying)
	if err := o.verifier.Verify(ctx); err != nil {
		o.bus.Warn(source, "verification failed: "+err.Error())
	}
}

// EnsurePackageDescriptor writes a minimal package descriptor when none can
// be read from the sandbox root. It reports whether one was written.
func EnsurePackageDescriptor(ctx context.Context, fs runtime.FileSystem) (bool, error) {
	if _, err := fs.ReadFile(ctx, manifest.PackageDescriptor); err == nil {
		return false, nil
	}
	if err := fs.WriteFile(ctx, manifest.PackageDescriptor, []byte(manifest.MinimalPackageJSON)); err != nil {
		return false, ferrors.MountError(manifest.PackageDescriptor, err)
	}
	return true, nil
}

// Materialize prepares tree, mounts it into inst, verifies the result and
// ensures a package descriptor. The returned error is non-nil only when
// ctx is cancelled.
func (o *Orchestrator) Materialize(ctx context.Context, tree []*repo.RepoNode, inst runtime.Instance) (*Result, error) {
	m, used, convErr := o.Prepare(tree)

	res, err := o.Mount(ctx, inst, m)
	res.UsedScaffold = used
	res.ConversionErr = convErr
	if err != nil {
		return res, err
	}

	o.Verify(ctx)
	if err := ctx.Err(); err != nil {
		return res, err
	}

	wrote, err := EnsurePackageDescriptor(ctx, inst.FS())
	switch {
	case err != nil:
		o.bus.Warn(source, err.Error())
	case wrote:
		o.bus.Log(source, "wrote minimal "+manifest.PackageDescriptor)
	}
	res.WroteDescriptor = wrote

	o.setPhase(PhaseDone)
	return res, nil
}

// FailedKeys returns the keys of res.Failed.
func (r *Result) FailedKeys() []string {
	keys := make([]string, 0, len(r.Failed))
	for _, f := range r.Failed {
		keys = append(keys, f.Key)
	}
	return keys
}

// Err joins every mount failure, or returns nil.
func (r *Result) Err() error {
	errs := make([]error, 0, len(r.Failed))
	for _, f := range r.Failed {
		errs = append(errs, f.Err)
	}
	return errors.Join(errs...)
}
