package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	securejoin "github.com/cyphar/filepath-securejoin"

	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/health"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/logging"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/manifest"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/monitor"
)

// LocalOptions configures a LocalRuntime.
type LocalOptions struct {
	// WorkDir is where instance directories are created; empty uses the
	// system temp directory.
	WorkDir string

	// KeepWorkDir leaves the instance directory in place on teardown.
	KeepWorkDir bool

	// ReadyPorts are probed on 127.0.0.1; each one that starts accepting
	// connections after Boot produces a server-ready notification. A port
	// already in use at Boot only counts once it closes and opens again.
	ReadyPorts []int

	// ReadyHost is reported with server-ready notifications.
	ReadyHost string

	// ProbeInterval is the time between port probes.
	ProbeInterval time.Duration
}

// LocalRuntime runs sandboxes as directories and processes on the host.
type LocalRuntime struct {
	opts LocalOptions
}

var (
	_ Runtime    = (*LocalRuntime)(nil)
	_ Instance   = (*LocalInstance)(nil)
	_ FileSystem = (*LocalInstance)(nil)
)

// NewLocal creates a LocalRuntime.
func NewLocal(opts LocalOptions) *LocalRuntime {
	if opts.ReadyHost == "" {
		opts.ReadyHost = "http://localhost"
	}
	if opts.ProbeInterval <= 0 {
		opts.ProbeInterval = 500 * time.Millisecond
	}
	return &LocalRuntime{opts: opts}
}

// Name returns the runtime identifier
func (r *LocalRuntime) Name() string {
	return "local"
}

// Boot creates an empty instance directory, records which ReadyPorts are
// already in use and starts watching them.
func (r *LocalRuntime) Boot(ctx context.Context) (Instance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.opts.WorkDir != "" {
		if err := os.MkdirAll(r.opts.WorkDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create work dir: %w", err)
		}
	}
	root, err := os.MkdirTemp(r.opts.WorkDir, "forage-preview-")
	if err != nil {
		return nil, fmt.Errorf("failed to create sandbox dir: %w", err)
	}

	life, cancel := context.WithCancel(context.Background())
	inst := &LocalInstance{
		root:      root,
		opts:      r.opts,
		life:      life,
		cancel:    cancel,
		listeners: make(map[int]ReadyFunc),
		probeDone: make(chan struct{}),
	}

	if len(r.opts.ReadyPorts) > 0 {
		m := monitor.New(r.opts.ProbeInterval, r.opts.ReadyPorts, inst.portChanged)
		m.Baseline(ctx)
		go func() {
			defer close(inst.probeDone)
			_ = m.Run(life)
		}()
	} else {
		close(inst.probeDone)
	}

	logging.Debug("booted local sandbox", "root", root)
	return inst, nil
}

// LocalInstance is a sandbox rooted at a host directory.
type LocalInstance struct {
	root string
	opts LocalOptions

	life   context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	nextID    int
	listeners map[int]ReadyFunc
	torndown  bool

	probeDone chan struct{}
	procs     sync.WaitGroup
}

// ID returns the instance directory.
func (i *LocalInstance) ID() string {
	return i.root
}

// Root returns the host directory backing the sandbox.
func (i *LocalInstance) Root() string {
	return i.root
}

func (i *LocalInstance) resolve(path string) (string, error) {
	return securejoin.SecureJoin(i.root, filepath.FromSlash(path))
}

// Mount materializes entries in depth order. Directories are created with
// os.Mkdir and files with os.WriteFile, so an entry whose parent is missing
// fails like it would in any sandbox file system.
func (i *LocalInstance) Mount(ctx context.Context, m manifest.Manifest) error {
	keys := m.Keys()
	sort.SliceStable(keys, func(a, b int) bool {
		return manifest.Depth(keys[a]) < manifest.Depth(keys[b])
	})

	var errs []error
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		target, err := i.resolve(key)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			continue
		}
		switch e := m[key].(type) {
		case manifest.Directory:
			if err := os.Mkdir(target, 0o755); err != nil && !errors.Is(err, fs.ErrExist) {
				errs = append(errs, err)
			}
		case manifest.File:
			if err := os.WriteFile(target, e.Contents, 0o644); err != nil {
				errs = append(errs, err)
			}
		default:
			errs = append(errs, fmt.Errorf("%s: unsupported entry %T", key, e))
		}
	}
	return errors.Join(errs...)
}

// Spawn starts command in the sandbox root. Processes are killed, process
// group included, on Teardown.
func (i *LocalInstance) Spawn(ctx context.Context, command string, args []string, opts SpawnOptions) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	i.mu.Lock()
	torndown := i.torndown
	i.mu.Unlock()
	if torndown {
		return nil, fmt.Errorf("sandbox %s is torn down", i.root)
	}

	cmd := exec.CommandContext(i.life, command, args...)
	cmd.Dir = i.root
	cmd.Env = append(os.Environ(), opts.Env...)
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
	}
	cmd.WaitDelay = 5 * time.Second

	p := &localProcess{cmd: cmd, done: make(chan struct{})}

	if opts.Terminal != nil {
		tty, err := pty.StartWithSize(cmd, winsize(*opts.Terminal))
		if err != nil {
			return nil, err
		}
		p.tty = tty
		p.output = &ttyReader{f: tty}
		p.input = tty
	} else {
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
		pr, pw := io.Pipe()
		cmd.Stdout = pw
		cmd.Stderr = pw
		stdin, err := cmd.StdinPipe()
		if err != nil {
			return nil, err
		}
		if err := cmd.Start(); err != nil {
			return nil, err
		}
		p.output = pr
		p.input = stdin
		p.pipe = pw
	}

	i.procs.Add(1)
	go func() {
		defer i.procs.Done()
		p.wait()
	}()
	return p, nil
}

// FS returns the instance itself; paths are confined to the sandbox root.
func (i *LocalInstance) FS() FileSystem {
	return i
}

// ReadFile implements FileSystem.
func (i *LocalInstance) ReadFile(ctx context.Context, path string) ([]byte, error) {
	target, err := i.resolve(path)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(target)
}

// WriteFile implements FileSystem.
func (i *LocalInstance) WriteFile(ctx context.Context, path string, data []byte) error {
	target, err := i.resolve(path)
	if err != nil {
		return err
	}
	return os.WriteFile(target, data, 0o644)
}

// OnServerReady implements Instance.
func (i *LocalInstance) OnServerReady(fn ReadyFunc) func() {
	i.mu.Lock()
	defer i.mu.Unlock()
	id := i.nextID
	i.nextID++
	i.listeners[id] = fn
	return func() {
		i.mu.Lock()
		defer i.mu.Unlock()
		delete(i.listeners, id)
	}
}

func (i *LocalInstance) portChanged(port int, status health.Status) {
	if status != health.StatusUp {
		return
	}
	i.mu.Lock()
	fns := make([]ReadyFunc, 0, len(i.listeners))
	for _, fn := range i.listeners {
		fns = append(fns, fn)
	}
	i.mu.Unlock()

	for _, fn := range fns {
		fn(port, i.opts.ReadyHost)
	}
}

// Teardown kills running processes, stops the port monitor and removes the
// instance directory unless KeepWorkDir is set. It is idempotent.
func (i *LocalInstance) Teardown(ctx context.Context) error {
	i.mu.Lock()
	if i.torndown {
		i.mu.Unlock()
		return nil
	}
	i.torndown = true
	i.listeners = make(map[int]ReadyFunc)
	i.mu.Unlock()

	i.cancel()

	waited := make(chan struct{})
	go func() {
		<-i.probeDone
		i.procs.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-ctx.Done():
		return ctx.Err()
	}

	if i.opts.KeepWorkDir {
		return nil
	}
	return os.RemoveAll(i.root)
}

type localProcess struct {
	cmd    *exec.Cmd
	tty    *os.File
	pipe   *io.PipeWriter
	output io.Reader
	input  io.WriteCloser

	done     chan struct{}
	exitCode int
	err      error
}

func (p *localProcess) wait() {
	err := p.cmd.Wait()
	if p.pipe != nil {
		_ = p.pipe.Close()
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		p.exitCode = 0
	case errors.As(err, &exitErr):
		p.exitCode = exitErr.ExitCode()
	default:
		p.exitCode = -1
		p.err = err
	}
	close(p.done)
}

func (p *localProcess) Output() io.Reader {
	return p.output
}

func (p *localProcess) Input() io.WriteCloser {
	return p.input
}

func (p *localProcess) Wait(ctx context.Context) (int, error) {
	select {
	case <-p.done:
		return p.exitCode, p.err
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

func (p *localProcess) Resize(size TerminalSize) error {
	if p.tty == nil {
		return ErrNoTerminal
	}
	return pty.Setsize(p.tty, winsize(size))
}

// ttyReader reads a pty master until the terminal hangs up, then closes it.
// Linux reports the hangup as EIO once the buffered output is drained.
type ttyReader struct {
	f *os.File
}

func (r *ttyReader) Read(p []byte) (int, error) {
	n, err := r.f.Read(p)
	if err != nil {
		_ = r.f.Close()
		if errors.Is(err, syscall.EIO) || errors.Is(err, os.ErrClosed) {
			err = io.EOF
		}
	}
	return n, err
}

func winsize(size TerminalSize) *pty.Winsize {
	return &pty.Winsize{Rows: uint16(size.Rows), Cols: uint16(size.Cols)}
}
