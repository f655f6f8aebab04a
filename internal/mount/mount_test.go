package mount

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	ferrors "github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/events"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/manifest"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/repo"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/runtime"
)

func setup(t *testing.T) (*runtime.MockRuntime, *runtime.MockInstance, *events.Bus) {
	t.Helper()
	rt := runtime.NewMockRuntime()
	inst, err := rt.Boot(context.Background())
	if err != nil {
		t.Fatalf("Boot() error: %v", err)
	}
	bus := events.NewBus()
	t.Cleanup(bus.Close)
	return rt, inst.(*runtime.MockInstance), bus
}

func TestPlanOrder(t *testing.T) {
	m := manifest.Manifest{
		"src/lib/index.js": manifest.File{},
		"README.md":        manifest.File{},
		"src/lib":          manifest.Directory{},
		"src":              manifest.Directory{},
	}

	levels := PlanOrder(m)
	var depths []int
	for _, key := range Flatten(levels) {
		depths = append(depths, manifest.Depth(key))
	}
	if want := []int{0, 0, 1, 2}; !reflect.DeepEqual(depths, want) {
		t.Errorf("mount depths = %v, want %v", depths, want)
	}

	wantPhases := []Phase{PhaseMountingRoots, PhaseMountingFiles, PhaseMountingNested, PhaseMountingNested}
	for i, l := range levels {
		if l.Phase != wantPhases[i] {
			t.Errorf("level %d phase = %v, want %v", i, l.Phase, wantPhases[i])
		}
	}
	if levels[0].Keys[0] != "src" || levels[1].Keys[0] != "README.md" {
		t.Errorf("root levels = %v", levels[:2])
	}
}

func TestPlanOrder_TiesSortedByKey(t *testing.T) {
	m := manifest.Manifest{
		"b":   manifest.Directory{},
		"a":   manifest.Directory{},
		"b/z": manifest.File{},
		"a/y": manifest.File{},
		"b/c": manifest.Directory{},
	}
	got := Flatten(PlanOrder(m))
	want := []string{"a", "b", "a/y", "b/c", "b/z"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestPlanOrder_Empty(t *testing.T) {
	if levels := PlanOrder(manifest.Manifest{}); len(levels) != 0 {
		t.Errorf("PlanOrder(empty) = %v", levels)
	}
}

func TestPhaseString(t *testing.T) {
	tests := []struct {
		p    Phase
		want string
	}{
		{PhaseIdle, "idle"},
		{PhaseMountingRoots, "mounting-roots"},
		{PhaseMountingFiles, "mounting-files"},
		{PhaseMountingNested, "mounting-nested"},
		{PhaseVerifying, "verifying"},
		{PhaseDone, "done"},
		{Phase(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.p.String(); got != tt.want {
			t.Errorf("Phase(%d).String() = %q, want %q", tt.p, got, tt.want)
		}
	}
}

func TestMount_OneCallPerEntry(t *testing.T) {
	rt, inst, bus := setup(t)
	o := New(bus)

	m := manifest.Manifest{
		"src":          manifest.Directory{},
		"src/index.js": manifest.File{Contents: []byte("x")},
	}
	res, err := o.Mount(context.Background(), inst, m)
	if err != nil {
		t.Fatalf("Mount() error: %v", err)
	}
	if !reflect.DeepEqual(res.Mounted, []string{"src", "src/index.js"}) {
		t.Errorf("Mounted = %v", res.Mounted)
	}
	if res.Partial {
		t.Error("Partial should be false")
	}
	if got := len(rt.GetCallsFor("Mount")); got != 2 {
		t.Errorf("Mount calls = %d, want 2", got)
	}
	if content, _ := inst.File("src/index.js"); content != "x" {
		t.Errorf("src/index.js = %q", content)
	}
}

func TestMount_FailureDoesNotAbort(t *testing.T) {
	rt, inst, bus := setup(t)
	rt.SetMountError("b.txt", errors.New("quota exceeded"))
	o := New(bus, WithConcurrency(4))

	m := manifest.Manifest{
		"a.txt": manifest.File{},
		"b.txt": manifest.File{},
		"c.txt": manifest.File{},
	}
	res, err := o.Mount(context.Background(), inst, m)
	if err != nil {
		t.Fatalf("Mount() error: %v", err)
	}
	if !reflect.DeepEqual(res.Mounted, []string{"a.txt", "c.txt"}) {
		t.Errorf("Mounted = %v", res.Mounted)
	}
	if !res.Partial || !reflect.DeepEqual(res.FailedKeys(), []string{"b.txt"}) {
		t.Errorf("Failed = %v, Partial = %v", res.FailedKeys(), res.Partial)
	}
	if !ferrors.HasCode(res.Err(), ferrors.ExitMountFailed) {
		t.Errorf("Err() = %v, want MountError", res.Err())
	}
}

func TestMount_Cancelled(t *testing.T) {
	_, inst, bus := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(bus).Mount(ctx, inst, manifest.Manifest{"a": manifest.Directory{}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Mount() error = %v, want context.Canceled", err)
	}
}

func TestPrepare(t *testing.T) {
	_, _, bus := setup(t)
	o := New(bus)

	tests := []struct {
		name     string
		tree     []*repo.RepoNode
		scaffold bool
		convErr  bool
	}{
		{
			name:     "regular tree",
			tree:     []*repo.RepoNode{repo.NewDir("src", "src", repo.NewFile("index.js", "src/index.js", "x"))},
			scaffold: false,
		},
		{
			name:     "only excluded files",
			tree:     []*repo.RepoNode{repo.NewFile(".gitignore", ".gitignore", "node_modules")},
			scaffold: true,
		},
		{
			name:     "empty tree",
			tree:     nil,
			scaffold: true,
		},
		{
			name:     "conversion failure",
			tree:     []*repo.RepoNode{repo.NewDir("/", "/", repo.NewFile("x.js", "//x.js", "x"))},
			scaffold: true,
			convErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, used, convErr := o.Prepare(tt.tree)
			if used != tt.scaffold {
				t.Errorf("used scaffold = %v, want %v", used, tt.scaffold)
			}
			if (convErr != nil) != tt.convErr {
				t.Errorf("convErr = %v, want error %v", convErr, tt.convErr)
			}
			if used && !reflect.DeepEqual(m.Keys(), manifest.Scaffold().Keys()) {
				t.Errorf("keys = %v, want scaffold", m.Keys())
			}
		})
	}
}

type fakeVerifier struct {
	calls int
	err   error
}

func (v *fakeVerifier) Verify(ctx context.Context) error {
	v.calls++
	return v.err
}

func TestMaterialize_ConversionFailureUsesScaffold(t *testing.T) {
	_, inst, bus := setup(t)
	v := &fakeVerifier{}

	var phases []Phase
	o := New(bus, WithVerifier(v), WithPhaseHook(func(p Phase) { phases = append(phases, p) }))

	tree := []*repo.RepoNode{repo.NewDir("/", "/", repo.NewFile("x.js", "//x.js", "x"))}
	res, err := o.Materialize(context.Background(), tree, inst)
	if err != nil {
		t.Fatalf("Materialize() error: %v", err)
	}

	if !res.UsedScaffold || res.ConversionErr == nil {
		t.Errorf("UsedScaffold = %v, ConversionErr = %v", res.UsedScaffold, res.ConversionErr)
	}
	for _, key := range manifest.Scaffold().Keys() {
		if key == "app" {
			continue
		}
		if _, ok := inst.File(key); !ok {
			t.Errorf("scaffold file %s not mounted", key)
		}
	}
	if res.WroteDescriptor {
		t.Error("scaffold already has a package descriptor")
	}
	if v.calls != 1 {
		t.Errorf("verifier calls = %d, want 1", v.calls)
	}
	if o.Phase() != PhaseDone {
		t.Errorf("Phase() = %v, want done", o.Phase())
	}
	want := []Phase{PhaseMountingRoots, PhaseMountingFiles, PhaseMountingNested, PhaseVerifying, PhaseDone}
	if !reflect.DeepEqual(phases, want) {
		t.Errorf("phases = %v, want %v", phases, want)
	}
}

func TestMaterialize_WritesMissingDescriptor(t *testing.T) {
	_, inst, bus := setup(t)
	o := New(bus, WithVerifier(&fakeVerifier{err: errors.New("ls failed")}))

	tree := []*repo.RepoNode{repo.NewFile("index.html", "index.html", "<h1>hi</h1>")}
	res, err := o.Materialize(context.Background(), tree, inst)
	if err != nil {
		t.Fatalf("Materialize() error: %v", err)
	}
	if res.UsedScaffold {
		t.Error("regular tree should not use the scaffold")
	}
	if !res.WroteDescriptor {
		t.Error("expected a minimal package descriptor to be written")
	}
	content, ok := inst.File(manifest.PackageDescriptor)
	if !ok || content != manifest.MinimalPackageJSON {
		t.Errorf("package.json = %q", content)
	}

	bus.Flush()
	var warned bool
	for _, e := range bus.History() {
		if e.Level == events.LevelWarn && strings.Contains(e.Message, "verification failed") {
			warned = true
		}
	}
	if !warned {
		t.Error("verification failure should be logged")
	}
}

func TestEnsurePackageDescriptor_Existing(t *testing.T) {
	_, inst, _ := setup(t)
	ctx := context.Background()
	_ = inst.FS().WriteFile(ctx, manifest.PackageDescriptor, []byte(`{"name":"app"}`))

	wrote, err := EnsurePackageDescriptor(ctx, inst.FS())
	if err != nil || wrote {
		t.Errorf("EnsurePackageDescriptor() = %v, %v; want false, nil", wrote, err)
	}
	if content, _ := inst.File(manifest.PackageDescriptor); content != `{"name":"app"}` {
		t.Errorf("existing descriptor overwritten: %q", content)
	}
}
