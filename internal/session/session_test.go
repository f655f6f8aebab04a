package session

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/cache"
	ferrors "github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/events"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/fetcher"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/remote"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/repo"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/runtime"
)

const devLine = "npx next dev --hostname 0.0.0.0 --port 3000"

type staticTree []*repo.RepoNode

func (t staticTree) FetchTree(ctx context.Context, owner, name, path string) ([]*repo.RepoNode, error) {
	return repo.Clone(t), nil
}

func sampleSource() *remote.MockSource {
	src := remote.NewMockSource()
	src.AddFile("package.json", `{"name":"app"}`)
	src.AddFile("src/index.js", "x")
	return src
}

func newTestSession(t *testing.T, rt *runtime.MockRuntime, f TreeFetcher, mutate ...func(*Options)) *Session {
	t.Helper()
	opts := Options{
		Owner:        "octo",
		Repo:         "app",
		Runtime:      rt,
		Fetcher:      f,
		ReadyTimeout: time.Second,
	}
	for _, fn := range mutate {
		fn(&opts)
	}
	s := New(opts)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func readyDev(rt *runtime.MockRuntime) {
	rt.SetCommand(devLine, &runtime.MockCommand{
		Block:     true,
		ReadyPort: 3000,
		ReadyHost: "https://1-2-3.example.com",
	})
}

func eventsOf(s *Session, kind events.Kind) []events.Event {
	s.Bus().Flush()
	var out []events.Event
	for _, e := range s.Bus().History() {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func TestPreviewURL(t *testing.T) {
	tests := []struct {
		host string
		port int
		want string
	}{
		{"https://1-2-3.example.com", 3000, "https://1-2-3.example.com:3000"},
		{"1-2-3.example.com", 3000, "https://1-2-3.example.com:3000"},
		{"http://localhost", 3000, "http://localhost:3000"},
		{"https://preview.example.com/", 8080, "https://preview.example.com:8080"},
		{"https://preview.example.com:443", 3000, "https://preview.example.com:443"},
		{"example.com", 0, "https://example.com"},
		{"http://[::1]", 3000, "http://[::1]:3000"},
		{"::1", 3000, "https://[::1]:3000"},
		{"http://[::1]:8080", 3000, "http://[::1]:8080"},
	}
	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			if got := PreviewURL(tt.host, tt.port); got != tt.want {
				t.Errorf("PreviewURL(%q, %d) = %q, want %q", tt.host, tt.port, got, tt.want)
			}
		})
	}
}

func TestStatusString(t *testing.T) {
	want := []string{"booting", "fetching-tree", "converting", "mounting", "installing", "starting", "ready", "failed"}
	for i, w := range want {
		if got := Status(i).String(); got != w {
			t.Errorf("Status(%d).String() = %q, want %q", i, got, w)
		}
	}
	if !StatusFailed.Terminal() || StatusReady.Terminal() {
		t.Error("only failed is terminal")
	}
}

func TestRun_InstallFailureStillStartsDevServer(t *testing.T) {
	rt := runtime.NewMockRuntime()
	rt.SetCommand("npm install", &runtime.MockCommand{Output: "npm error peer dep\n", ExitCode: 1})
	readyDev(rt)
	s := newTestSession(t, rt, fetcher.New(sampleSource(), fetcher.Options{}))

	url, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if url != "https://1-2-3.example.com:3000" {
		t.Errorf("Run() url = %q", url)
	}
	if st, _ := s.Status(); st != StatusReady {
		t.Errorf("Status() = %v, want ready", st)
	}

	wantSpawned := []string{"ls -la", "npm install", devLine}
	if got := rt.Spawned(); !reflect.DeepEqual(got, wantSpawned) {
		t.Errorf("spawned = %v, want %v", got, wantSpawned)
	}

	var warned bool
	for _, e := range s.Bus().History() {
		if e.Source == "install" && e.Level == events.LevelWarn {
			warned = true
		}
	}
	if !warned {
		t.Error("install failure should be logged as a warning")
	}

	ready := eventsOf(s, events.KindServerReady)
	if len(ready) != 1 || ready[0].URL != url || ready[0].Port != 3000 {
		t.Errorf("server-ready events = %+v", ready)
	}

	var statuses []string
	for _, e := range eventsOf(s, events.KindStatus) {
		statuses = append(statuses, e.Status)
	}
	wantStatuses := []string{"fetching-tree", "converting", "mounting", "installing", "starting", "ready"}
	if !reflect.DeepEqual(statuses, wantStatuses) {
		t.Errorf("statuses = %v, want %v", statuses, wantStatuses)
	}

	if content, _ := rt.Last().File("src/index.js"); content != "x" {
		t.Errorf("src/index.js = %q", content)
	}
	if res := s.MountResult(); res == nil || res.Partial || res.UsedScaffold {
		t.Errorf("MountResult() = %+v, want a complete mount of the tree", res)
	}
}

func TestRun_PartialMountKeepsResult(t *testing.T) {
	rt := runtime.NewMockRuntime()
	readyDev(rt)
	rt.SetMountError("src/index.js", errors.New("disk full"))
	s := newTestSession(t, rt, fetcher.New(sampleSource(), fetcher.Options{}))

	if _, err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	res := s.MountResult()
	if res == nil {
		t.Fatal("MountResult() = nil after Run")
	}
	if !res.Partial || !reflect.DeepEqual(res.FailedKeys(), []string{"src/index.js"}) {
		t.Errorf("failed keys = %v, partial = %v", res.FailedKeys(), res.Partial)
	}
	if !ferrors.HasCode(res.Err(), ferrors.ExitMountFailed) {
		t.Errorf("Err() = %v, want MountError", res.Err())
	}
	if st, _ := s.Status(); st != StatusReady {
		t.Errorf("Status() = %v, want ready despite the failed entry", st)
	}
}

func TestRun_ConversionFailureUsesScaffold(t *testing.T) {
	rt := runtime.NewMockRuntime()
	readyDev(rt)
	tree := staticTree{repo.NewDir("/", "/", repo.NewFile("x.js", "//x.js", "x"))}
	s := newTestSession(t, rt, tree)

	if _, err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	inst := rt.Last()
	for _, key := range []string{"package.json", "next.config.js", "app/page.tsx", "app/layout.tsx"} {
		if _, ok := inst.File(key); !ok {
			t.Errorf("scaffold file %s not mounted", key)
		}
	}
	got := rt.Spawned()
	if len(got) != 3 || got[1] != "npm install" || got[2] != devLine {
		t.Errorf("spawned = %v, want install then dev server", got)
	}
	if res := s.MountResult(); res == nil || !res.UsedScaffold || res.ConversionErr == nil {
		t.Errorf("MountResult() = %+v, want the scaffold with its conversion error", res)
	}
}

func TestRun_FetchFailure(t *testing.T) {
	rt := runtime.NewMockRuntime()
	src := remote.NewMockSource()
	src.Missing = true
	s := newTestSession(t, rt, fetcher.New(src, fetcher.Options{}))

	_, err := s.Run(context.Background())
	if !ferrors.HasCode(err, ferrors.ExitFetchFailed) {
		t.Fatalf("Run() error = %v, want FetchError", err)
	}
	st, reason := s.Status()
	if st != StatusFailed || reason == "" {
		t.Errorf("Status() = %v, %q", st, reason)
	}
	if len(rt.Spawned()) != 0 {
		t.Errorf("nothing should be spawned after a fetch failure, got %v", rt.Spawned())
	}
	if _, err := s.WaitReady(context.Background()); err == nil {
		t.Error("WaitReady() on a failed session should return the failure")
	}
}

func TestRun_BootFailure(t *testing.T) {
	rt := runtime.NewMockRuntime()
	rt.SetError("Boot", errors.New("no sandbox"))
	s := newTestSession(t, rt, staticTree{})

	if _, err := s.Run(context.Background()); err == nil {
		t.Fatal("Run() should fail when boot fails")
	}
	if st, _ := s.Status(); st != StatusFailed {
		t.Errorf("Status() = %v, want failed", st)
	}
}

func TestRun_DevServerSpawnFailure(t *testing.T) {
	rt := runtime.NewMockRuntime()
	rt.SetError("Spawn:"+devLine, errors.New("npx: not found"))
	s := newTestSession(t, rt, fetcher.New(sampleSource(), fetcher.Options{}))

	_, err := s.Run(context.Background())
	if !ferrors.HasCode(err, ferrors.ExitServerStartFailed) {
		t.Errorf("Run() error = %v, want ServerStartError", err)
	}
}

func TestRun_DevServerExitsBeforeReady(t *testing.T) {
	rt := runtime.NewMockRuntime()
	rt.SetCommand(devLine, &runtime.MockCommand{Output: "Error: port in use\n", ExitCode: 1})
	s := newTestSession(t, rt, fetcher.New(sampleSource(), fetcher.Options{}))

	_, err := s.Run(context.Background())
	if !ferrors.HasCode(err, ferrors.ExitServerStartFailed) {
		t.Errorf("Run() error = %v, want ServerStartError", err)
	}
	if st, _ := s.Status(); st != StatusFailed {
		t.Errorf("Status() = %v, want failed", st)
	}
}

func TestRun_ReadyTimeout(t *testing.T) {
	rt := runtime.NewMockRuntime()
	rt.SetCommand(devLine, &runtime.MockCommand{Block: true})
	s := newTestSession(t, rt, fetcher.New(sampleSource(), fetcher.Options{}), func(o *Options) {
		o.ReadyTimeout = 30 * time.Millisecond
	})

	_, err := s.Run(context.Background())
	if !ferrors.HasCode(err, ferrors.ExitServerStartFailed) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run() error = %v, want ready timeout", err)
	}
}

func TestRun_Twice(t *testing.T) {
	rt := runtime.NewMockRuntime()
	readyDev(rt)
	s := newTestSession(t, rt, fetcher.New(sampleSource(), fetcher.Options{}))

	if _, err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if _, err := s.Run(context.Background()); err == nil {
		t.Error("second Run() should fail")
	}
}

func TestRun_UsesCache(t *testing.T) {
	rt := runtime.NewMockRuntime()
	readyDev(rt)
	c := cache.New(t.TempDir())
	src := sampleSource()

	first := newTestSession(t, rt, fetcher.New(src, fetcher.Options{}), func(o *Options) { o.Cache = c })
	if _, err := first.Run(context.Background()); err != nil {
		t.Fatalf("first Run() error: %v", err)
	}
	listed := len(src.GetCallsFor("ListContents"))

	second := newTestSession(t, rt, fetcher.New(src, fetcher.Options{}), func(o *Options) { o.Cache = c })
	if _, err := second.Run(context.Background()); err != nil {
		t.Fatalf("second Run() error: %v", err)
	}
	if got := len(src.GetCallsFor("ListContents")); got != listed {
		t.Errorf("cache hit still listed contents: %d calls, want %d", got, listed)
	}
	if !reflect.DeepEqual(second.Tree(), first.Tree()) {
		t.Error("cached tree differs from fetched tree")
	}
}

func TestBindPreview_LastWriteWins(t *testing.T) {
	rt := runtime.NewMockRuntime()
	readyDev(rt)
	s := newTestSession(t, rt, fetcher.New(sampleSource(), fetcher.Options{}))

	if _, err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	changed := s.Changed()
	rt.Last().EmitServerReady(3001, "https://4-5-6.example.com")
	select {
	case <-changed:
	case <-time.After(time.Second):
		t.Fatal("Changed() not signalled by a new binding")
	}
	if got := s.PreviewURL(); got != "https://4-5-6.example.com:3001" {
		t.Errorf("PreviewURL() = %q after rebinding", got)
	}

	// Exits and errors after readiness keep the bound address.
	s.Bus().Error("dev", errors.New("HMR failed"))
	_ = s.fail(errors.New("late failure"))
	if got := s.PreviewURL(); got != "https://4-5-6.example.com:3001" {
		t.Errorf("PreviewURL() = %q after failure", got)
	}
}

func TestBindPreview_BeforeStartDoesNotSkipPipeline(t *testing.T) {
	s := New(Options{Owner: "octo", Repo: "app"})
	defer s.Close(context.Background())

	url := s.BindPreview(3000, "https://1-2-3.example.com")
	if url != "https://1-2-3.example.com:3000" {
		t.Errorf("BindPreview() = %q", url)
	}
	if st, _ := s.Status(); st != StatusBooting {
		t.Errorf("Status() = %v, want booting", st)
	}
	got, err := s.WaitReady(context.Background())
	if err != nil || got != url {
		t.Errorf("WaitReady() = %q, %v", got, err)
	}
}

func TestRun_IgnoresServerReadyBeforeDevStart(t *testing.T) {
	rt := runtime.NewMockRuntime()
	rt.SetCommand("npm install", &runtime.MockCommand{
		ReadyPort: 3000,
		ReadyHost: "https://stale.example.com",
	})
	rt.SetCommand(devLine, &runtime.MockCommand{Block: true})
	s := newTestSession(t, rt, fetcher.New(sampleSource(), fetcher.Options{}), func(o *Options) {
		o.ReadyTimeout = 50 * time.Millisecond
	})

	_, err := s.Run(context.Background())
	if !ferrors.HasCode(err, ferrors.ExitServerStartFailed) {
		t.Fatalf("Run() error = %v, want ServerStartError", err)
	}
	if got := s.PreviewURL(); got != "" {
		t.Errorf("PreviewURL() = %q, want nothing bound from before the dev server started", got)
	}
	if got := eventsOf(s, events.KindServerReady); len(got) != 0 {
		t.Errorf("server-ready events = %+v, want none", got)
	}
}

func TestSaveFile(t *testing.T) {
	rt := runtime.NewMockRuntime()
	readyDev(rt)
	s := newTestSession(t, rt, fetcher.New(sampleSource(), fetcher.Options{}))
	ctx := context.Background()

	if _, err := s.Run(ctx); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if err := s.SaveFile(ctx, "src/index.js", "edited"); err != nil {
		t.Fatalf("SaveFile() error: %v", err)
	}
	data, err := s.ReadFile(ctx, "src/index.js")
	if err != nil || string(data) != "edited" {
		t.Errorf("ReadFile() = %q, %v", data, err)
	}

	rt.SetError("WriteFile", errors.New("read-only file system"))
	err = s.SaveFile(ctx, "src/index.js", "unsaved")
	if !ferrors.HasCode(err, ferrors.ExitSaveFailed) {
		t.Errorf("SaveFile() error = %v, want SaveError", err)
	}
	node := repo.Find(s.Tree(), "src/index.js")
	if node == nil || node.Content == nil || *node.Content != "unsaved" {
		t.Error("failed save should keep the edit in the tree")
	}

	if err := s.SaveFile(ctx, "missing.js", "x"); err == nil {
		t.Error("SaveFile() of an unknown path should fail")
	}
}

func TestOpenShell(t *testing.T) {
	rt := runtime.NewMockRuntime()
	readyDev(rt)
	s := newTestSession(t, rt, fetcher.New(sampleSource(), fetcher.Options{}))
	ctx := context.Background()

	if _, err := s.OpenShell(ctx, runtime.TerminalSize{Cols: 80, Rows: 24}, nil); err == nil {
		t.Error("OpenShell() before boot should fail")
	}
	if _, err := s.Run(ctx); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	sh, err := s.OpenShell(ctx, runtime.TerminalSize{Cols: 80, Rows: 24}, nil)
	if err != nil {
		t.Fatalf("OpenShell() error: %v", err)
	}
	if err := sh.InstallDependencies(); err != nil {
		t.Fatalf("InstallDependencies() error: %v", err)
	}

	inst := rt.Last()
	shell := inst.Processes[len(inst.Processes)-1]
	if shell.Written() != "npm install\n" {
		t.Errorf("shell input = %q", shell.Written())
	}

	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if !shell.InputClosed() {
		t.Error("Close() should close open shells")
	}
}

func TestClose(t *testing.T) {
	rt := runtime.NewMockRuntime()
	readyDev(rt)
	s := newTestSession(t, rt, fetcher.New(sampleSource(), fetcher.Options{}))
	ctx := context.Background()

	if _, err := s.Run(ctx); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	inst := rt.Last()

	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if err := s.Close(ctx); err != nil {
		t.Errorf("second Close() error: %v", err)
	}
	if !inst.TornDown || inst.Listeners() != 0 {
		t.Errorf("TornDown = %v, Listeners = %d", inst.TornDown, inst.Listeners())
	}
	if !s.Closed() {
		t.Error("Closed() = false")
	}
	if st, _ := s.Status(); st != StatusReady {
		t.Errorf("Status() = %v, Close should not rewrite the last status", st)
	}
	if _, err := s.ReadFile(ctx, "package.json"); !errors.Is(err, ErrClosed) {
		t.Errorf("ReadFile() after Close = %v, want ErrClosed", err)
	}
	if got := len(rt.GetCallsFor("Teardown")); got != 1 {
		t.Errorf("Teardown calls = %d, want 1", got)
	}
}

func TestWaitReady_Cancelled(t *testing.T) {
	s := New(Options{Owner: "octo", Repo: "app"})
	defer s.Close(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := s.WaitReady(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitReady() = %v, want deadline exceeded", err)
	}
}

func TestManager_Restart(t *testing.T) {
	rt := runtime.NewMockRuntime()
	readyDev(rt)
	m := NewManager(Options{
		Runtime:      rt,
		Fetcher:      fetcher.New(sampleSource(), fetcher.Options{}),
		ReadyTimeout: time.Second,
	})
	ctx := context.Background()
	defer m.Close(ctx)

	if s, err := m.Restart(ctx); s != nil || err != nil {
		t.Errorf("Restart() without a session = %v, %v", s, err)
	}

	first, err := m.Open(ctx, "octo", "app")
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if _, err := first.Run(ctx); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	second, err := m.Restart(ctx)
	if err != nil {
		t.Fatalf("Restart() error: %v", err)
	}
	if second == first || second.ID == first.ID {
		t.Error("Restart() should create a new session")
	}
	if second.Ref() != "octo/app" {
		t.Errorf("Ref() = %q", second.Ref())
	}
	if !first.Closed() || !rt.Instances[0].TornDown {
		t.Error("Restart() should close the previous session")
	}
	if _, err := second.Run(ctx); err != nil {
		t.Fatalf("Run() after restart error: %v", err)
	}
	if m.Current() != second {
		t.Error("Current() should be the restarted session")
	}
}
