package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	ferrors "github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/events"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/logging"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/metrics"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/runtime"
)

const chunkSize = 4096

// Supervisor runs commands in one sandbox instance.
type Supervisor struct {
	inst    runtime.Instance
	bus     *events.Bus
	cmds    Commands
	filters map[string]Filter
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithCommands replaces the default pipeline commands.
func WithCommands(cmds Commands) Option {
	return func(s *Supervisor) {
		s.cmds = cmds
	}
}

// WithFilter forwards only the output lines of tag accepted by f.
func WithFilter(tag string, f Filter) Option {
	return func(s *Supervisor) {
		s.filters[tag] = f
	}
}

// New creates a Supervisor for inst publishing to bus.
func New(inst runtime.Instance, bus *events.Bus, opts ...Option) *Supervisor {
	s := &Supervisor{
		inst:    inst,
		bus:     bus,
		cmds:    DefaultCommands(),
		filters: make(map[string]Filter),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Commands returns the configured pipeline commands.
func (s *Supervisor) Commands() Commands {
	return s.cmds
}

// Handle is a running command.
type Handle struct {
	Tag  string
	proc runtime.Process

	done     chan struct{}
	exitCode int
	err      error
}

// Spawn starts name with args and forwards its output to the bus tagged
// with name.
func (s *Supervisor) Spawn(ctx context.Context, name string, args ...string) (*Handle, error) {
	return s.start(ctx, name, append([]string{name}, args...))
}

func (s *Supervisor) start(ctx context.Context, tag string, argv []string) (*Handle, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("no command for %s", tag)
	}
	logging.Debug("spawning command", "tag", tag, "argv", argv)

	proc, err := s.inst.Spawn(ctx, argv[0], argv[1:], runtime.SpawnOptions{})
	if err != nil {
		return nil, err
	}

	h := &Handle{Tag: tag, proc: proc, done: make(chan struct{})}
	pumped := make(chan struct{})
	go func() {
		defer close(pumped)
		s.pump(tag, proc.Output())
	}()
	go func() {
		defer close(h.done)
		h.exitCode, h.err = proc.Wait(ctx)
		if h.err == nil {
			<-pumped
		}
		s.bus.Publish(events.Event{
			Kind:     events.KindProcessExit,
			Source:   tag,
			ExitCode: h.exitCode,
		})
		metrics.RecordProcessExit(tag, h.exitCode)
	}()
	return h, nil
}

// pump forwards output chunk by chunk, or line by line when tag has a
// filter.
func (s *Supervisor) pump(tag string, r io.Reader) {
	if r == nil {
		return
	}
	if f, ok := s.filters[tag]; ok {
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, chunkSize), 1<<20)
		for sc.Scan() {
			if line := sc.Text(); f(line) {
				s.bus.Log(tag, line)
			}
		}
		// Keep draining so the process never blocks on a full pipe.
		_, _ = io.Copy(io.Discard, r)
		return
	}

	buf := make([]byte, chunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			s.bus.Log(tag, string(buf[:n]))
		}
		if err != nil {
			return
		}
	}
}

// Wait blocks until the command exits and its output has been forwarded.
func (h *Handle) Wait(ctx context.Context) (int, error) {
	select {
	case <-h.done:
		return h.exitCode, h.err
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

// Done is closed once the command has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Verify lists the project root and forwards the listing to the bus.
func (s *Supervisor) Verify(ctx context.Context) error {
	h, err := s.start(ctx, TagVerify, s.cmds.Verify)
	if err != nil {
		return fmt.Errorf("failed to run verification: %w", err)
	}
	code, err := h.Wait(ctx)
	if err != nil {
		return err
	}
	if code != 0 {
		return fmt.Errorf("verification exited with code %d", code)
	}
	return nil
}

// Install runs the dependency install and returns its exit code. A non-zero
// exit is published as a warning and returned as an InstallError.
func (s *Supervisor) Install(ctx context.Context) (int, error) {
	h, err := s.start(ctx, TagInstall, s.cmds.Install)
	if err != nil {
		err = ferrors.Wrap(ferrors.ExitInstallFailed, "failed to start dependency install", err)
		s.bus.Warn(TagInstall, err.Error())
		return -1, err
	}
	code, err := h.Wait(ctx)
	if err != nil {
		return code, err
	}
	if code != 0 {
		ierr := ferrors.InstallError(code)
		s.bus.Warn(TagInstall, ierr.Error())
		logging.Warn("dependency install failed", "exit_code", code)
		return code, ierr
	}
	return 0, nil
}

// StartDevServer starts the development server without waiting for it.
func (s *Supervisor) StartDevServer(ctx context.Context) (*Handle, error) {
	h, err := s.start(ctx, TagDev, s.cmds.Dev)
	if err != nil {
		return nil, ferrors.ServerStartError("failed to start dev server", err)
	}
	return h, nil
}

// Shell is an interactive shell on a terminal.
type Shell struct {
	proc   runtime.Process
	in     io.WriteCloser
	cmds   Commands
	copied chan struct{}

	mu     sync.Mutex
	closed bool
}

// OpenShell starts the configured shell with a terminal of size. Output is
// copied to terminal; nil discards it.
func (s *Supervisor) OpenShell(ctx context.Context, size runtime.TerminalSize, terminal io.Writer) (*Shell, error) {
	argv := s.cmds.Shell
	if len(argv) == 0 {
		return nil, errors.New("no shell command configured")
	}
	if terminal == nil {
		terminal = io.Discard
	}

	proc, err := s.inst.Spawn(ctx, argv[0], argv[1:], runtime.SpawnOptions{Terminal: &size})
	if err != nil {
		return nil, fmt.Errorf("failed to open shell: %w", err)
	}

	sh := &Shell{proc: proc, in: proc.Input(), cmds: s.cmds, copied: make(chan struct{})}
	go func() {
		defer close(sh.copied)
		_, _ = io.Copy(terminal, proc.Output())
	}()
	s.bus.Log(TagShell, "shell opened: "+strings.Join(argv, " "))
	return sh, nil
}

// Write forwards p to the shell verbatim.
func (sh *Shell) Write(p []byte) (int, error) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if sh.closed {
		return 0, io.ErrClosedPipe
	}
	return sh.in.Write(p)
}

// RunCommand types line into the shell followed by a newline.
func (sh *Shell) RunCommand(line string) error {
	_, err := io.WriteString(sh, line+"\n")
	return err
}

// InstallDependencies types the install command into the shell.
func (sh *Shell) InstallDependencies() error {
	return sh.RunCommand(sh.cmds.ShellInstall)
}

// StartDev types the dev command into the shell.
func (sh *Shell) StartDev() error {
	return sh.RunCommand(sh.cmds.ShellDev)
}

// Resize forwards new terminal dimensions.
func (sh *Shell) Resize(cols, rows int) error {
	return sh.proc.Resize(runtime.TerminalSize{Cols: cols, Rows: rows})
}

// Wait blocks until the shell exits.
func (sh *Shell) Wait(ctx context.Context) (int, error) {
	return sh.proc.Wait(ctx)
}

// Done is closed once all shell output has been copied.
func (sh *Shell) Done() <-chan struct{} {
	return sh.copied
}

// Close closes the shell input. It is idempotent.
func (sh *Shell) Close() error {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if sh.closed {
		return nil
	}
	sh.closed = true
	return sh.in.Close()
}
