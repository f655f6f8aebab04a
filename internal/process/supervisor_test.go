package process

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/config"
	ferrors "github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/events"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/runtime"
)

func setup(t *testing.T, opts ...Option) (*runtime.MockRuntime, *runtime.MockInstance, *events.Bus, *Supervisor) {
	t.Helper()
	rt := runtime.NewMockRuntime()
	inst, err := rt.Boot(context.Background())
	if err != nil {
		t.Fatalf("Boot() error: %v", err)
	}
	bus := events.NewBus()
	t.Cleanup(bus.Close)
	return rt, inst.(*runtime.MockInstance), bus, New(inst, bus, opts...)
}

func logLines(bus *events.Bus, source string) []string {
	bus.Flush()
	var lines []string
	for _, e := range bus.History() {
		if e.Kind == events.KindLog && e.Source == source {
			lines = append(lines, e.Message)
		}
	}
	return lines
}

func TestCommandsFromConfig(t *testing.T) {
	cmds := DefaultCommands()

	tests := []struct {
		name string
		got  []string
		want string
	}{
		{"install", cmds.Install, "npm install"},
		{"dev", cmds.Dev, "npx next dev --hostname 0.0.0.0 --port 3000"},
		{"verify", cmds.Verify, "ls -la"},
		{"shell", cmds.Shell, "sh"},
		{"shell install", []string{cmds.ShellInstall}, "npm install"},
		{"shell dev", []string{cmds.ShellDev}, "npm run dev"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := strings.Join(tt.got, " "); got != tt.want {
				t.Errorf("%s = %q, want %q", tt.name, got, tt.want)
			}
		})
	}
}

func TestCommandsFromConfig_ShellDev(t *testing.T) {
	cfg := config.Default().Sandbox
	cfg.ShellDevCommand = "pnpm dev"

	cmds, err := CommandsFromConfig(cfg)
	if err != nil {
		t.Fatalf("CommandsFromConfig() error: %v", err)
	}
	if cmds.ShellDev != "pnpm dev" {
		t.Errorf("ShellDev = %q, want the configured command", cmds.ShellDev)
	}
}

func TestInstallFilter(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{"added 12 packages in 3s", true},
		{"npm error code ERESOLVE", true},
		{"npm warn deprecated inflight", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := InstallFilter(tt.line); got != tt.want {
			t.Errorf("InstallFilter(%q) = %v, want %v", tt.line, got, tt.want)
		}
	}
}

func TestSpawn_ForwardsOutputAndExit(t *testing.T) {
	rt, _, bus, sup := setup(t)
	rt.SetCommand("echo hello", &runtime.MockCommand{Output: "hello\n", ExitCode: 0})

	h, err := sup.Spawn(context.Background(), "echo", "hello")
	if err != nil {
		t.Fatalf("Spawn() error: %v", err)
	}
	code, err := h.Wait(context.Background())
	if err != nil || code != 0 {
		t.Fatalf("Wait() = %d, %v", code, err)
	}

	if got := logLines(bus, "echo"); len(got) != 1 || got[0] != "hello\n" {
		t.Errorf("log lines = %q", got)
	}

	var exit *events.Event
	for _, e := range bus.History() {
		if e.Kind == events.KindProcessExit {
			ev := e
			exit = &ev
		}
	}
	if exit == nil || exit.Source != "echo" || exit.ExitCode != 0 {
		t.Errorf("process-exit event = %+v", exit)
	}
}

func TestSpawn_StreamsOutputBeforeExit(t *testing.T) {
	rt, _, bus, sup := setup(t)
	pr, pw := io.Pipe()
	rt.SetCommand("npm run dev", &runtime.MockCommand{Block: true, Stream: pr})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h, err := sup.Spawn(ctx, "npm", "run", "dev")
	if err != nil {
		t.Fatalf("Spawn() error: %v", err)
	}

	if _, err := io.WriteString(pw, "compiling...\n"); err != nil {
		t.Fatalf("write output: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if got := logLines(bus, "npm"); len(got) == 1 && got[0] == "compiling...\n" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("log lines = %q, want the chunk while the process runs", logLines(bus, "npm"))
		}
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case <-h.Done():
		t.Fatal("process exited before its output was checked")
	default:
	}

	_ = pw.Close()
	cancel()
	<-h.Done()
}

func TestSpawn_Error(t *testing.T) {
	rt, _, _, sup := setup(t)
	rt.SetError("Spawn", errors.New("no such command"))

	if _, err := sup.Spawn(context.Background(), "missing"); err == nil {
		t.Error("Spawn() should return the runtime error")
	}
}

func TestInstall_NonZeroExitIsWarning(t *testing.T) {
	rt, _, bus, sup := setup(t)
	rt.SetCommand("npm install", &runtime.MockCommand{Output: "npm error peer dep\n", ExitCode: 1})

	code, err := sup.Install(context.Background())
	if code != 1 {
		t.Errorf("Install() code = %d, want 1", code)
	}
	if !ferrors.HasCode(err, ferrors.ExitInstallFailed) {
		t.Errorf("Install() error = %v, want InstallError", err)
	}

	bus.Flush()
	var warned bool
	for _, e := range bus.History() {
		if e.Source == TagInstall && e.Level == events.LevelWarn {
			warned = true
		}
	}
	if !warned {
		t.Error("expected an install warning on the bus")
	}
}

func TestInstall_Success(t *testing.T) {
	_, _, _, sup := setup(t)
	code, err := sup.Install(context.Background())
	if code != 0 || err != nil {
		t.Errorf("Install() = %d, %v; want 0, nil", code, err)
	}
}

func TestInstall_Filter(t *testing.T) {
	rt, _, bus, sup := setup(t, WithFilter(TagInstall, InstallFilter))
	rt.SetCommand("npm install", &runtime.MockCommand{
		Output: "npm warn deprecated a\nadded 3 packages\nnpm warn deprecated b\n",
	})

	if _, err := sup.Install(context.Background()); err != nil {
		t.Fatalf("Install() error: %v", err)
	}
	got := logLines(bus, TagInstall)
	if len(got) != 1 || got[0] != "added 3 packages" {
		t.Errorf("filtered lines = %q", got)
	}
}

func TestVerify(t *testing.T) {
	rt, _, bus, sup := setup(t)
	rt.SetCommand("ls -la", &runtime.MockCommand{Output: "package.json\n"})

	if err := sup.Verify(context.Background()); err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if got := logLines(bus, TagVerify); len(got) != 1 || got[0] != "package.json\n" {
		t.Errorf("verify output = %q", got)
	}

	rt.SetCommand("ls -la", &runtime.MockCommand{ExitCode: 2})
	if err := sup.Verify(context.Background()); err == nil {
		t.Error("Verify() should report a non-zero exit")
	}
}

func TestStartDevServer(t *testing.T) {
	rt, inst, _, sup := setup(t)
	rt.SetCommand("npx next dev --hostname 0.0.0.0 --port 3000", &runtime.MockCommand{Block: true})

	h, err := sup.StartDevServer(context.Background())
	if err != nil {
		t.Fatalf("StartDevServer() error: %v", err)
	}
	select {
	case <-h.Done():
		t.Fatal("dev server should keep running")
	case <-time.After(20 * time.Millisecond):
	}

	_ = inst.Teardown(context.Background())
	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("dev server not stopped by teardown")
	}
}

func TestStartDevServer_SpawnError(t *testing.T) {
	rt, _, _, sup := setup(t)
	rt.SetError("Spawn", errors.New("npx: not found"))

	_, err := sup.StartDevServer(context.Background())
	if !ferrors.HasCode(err, ferrors.ExitServerStartFailed) {
		t.Errorf("StartDevServer() error = %v, want ServerStartError", err)
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestOpenShell(t *testing.T) {
	rt, inst, bus, sup := setup(t)
	rt.SetCommand("sh", &runtime.MockCommand{Output: "$ "})

	var term syncBuffer
	sh, err := sup.OpenShell(context.Background(), runtime.TerminalSize{Cols: 80, Rows: 24}, &term)
	if err != nil {
		t.Fatalf("OpenShell() error: %v", err)
	}

	if _, err := sh.Write([]byte("\x03")); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	if err := sh.RunCommand("npm install"); err != nil {
		t.Fatalf("RunCommand() error: %v", err)
	}
	if err := sh.StartDev(); err != nil {
		t.Fatalf("StartDev() error: %v", err)
	}
	if err := sh.Resize(120, 40); err != nil {
		t.Fatalf("Resize() error: %v", err)
	}

	<-sh.Done()
	if term.String() != "$ " {
		t.Errorf("terminal output = %q, want %q", term.String(), "$ ")
	}

	proc := inst.Processes[0]
	if got := proc.Written(); got != "\x03npm install\nnpm run dev\n" {
		t.Errorf("shell input = %q", got)
	}
	if sizes := proc.Resizes(); len(sizes) != 1 || sizes[0].Rows != 40 {
		t.Errorf("resizes = %v", sizes)
	}

	spawn := rt.GetCallsFor("Spawn")[0]
	opts := spawn.Args[1].(runtime.SpawnOptions)
	if opts.Terminal == nil || opts.Terminal.Cols != 80 {
		t.Errorf("shell spawned without terminal: %+v", opts)
	}

	if err := sh.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if err := sh.Close(); err != nil {
		t.Errorf("second Close() error: %v", err)
	}
	if err := sh.RunCommand("ls"); err == nil {
		t.Error("RunCommand() after Close should fail")
	}

	// Shell output bypasses the event bus.
	for _, e := range bus.History() {
		if e.Kind == events.KindLog && e.Source == TagShell && e.Message == "$ " {
			t.Error("shell output should not reach the bus")
		}
	}
}
