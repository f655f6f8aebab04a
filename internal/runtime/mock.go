package runtime

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/manifest"
)

// MockCommand scripts the behaviour of a spawned command.
type MockCommand struct {
	Output   string
	ExitCode int

	// Stream, when set, replaces Output so a test can feed output while
	// the process runs.
	Stream io.Reader

	// Block makes Wait block until the context ends or the instance is torn
	// down, like a long-running server.
	Block bool

	// ReadyPort, when set, emits a server-ready notification for
	// ReadyPort/ReadyHost right after the spawn.
	ReadyPort int
	ReadyHost string
}

// MockRuntime is a mock implementation of Runtime for testing
type MockRuntime struct {
	mu sync.RWMutex

	// Commands maps a command line ("npm install") to its scripted result.
	// Unknown commands exit 0 with no output.
	Commands map[string]*MockCommand

	// MountErrors injects failures for specific manifest keys.
	MountErrors map[string]error

	// Errors allows injecting errors for specific operations
	Errors map[string]error

	// CallLog records all method calls for verification
	CallLog []MockCall

	// Instances holds every booted instance in boot order.
	Instances []*MockInstance
}

// MockCall represents a recorded method call
type MockCall struct {
	Method string
	Args   []interface{}
}

var (
	_ Runtime  = (*MockRuntime)(nil)
	_ Instance = (*MockInstance)(nil)
	_ Process  = (*MockProcess)(nil)
)

// NewMockRuntime creates a new mock runtime
func NewMockRuntime() *MockRuntime {
	return &MockRuntime{
		Commands:    make(map[string]*MockCommand),
		MountErrors: make(map[string]error),
		Errors:      make(map[string]error),
		CallLog:     make([]MockCall, 0),
	}
}

func (m *MockRuntime) record(method string, args ...interface{}) {
	m.CallLog = append(m.CallLog, MockCall{Method: method, Args: args})
}

// SetError sets an error to be returned for a specific operation
func (m *MockRuntime) SetError(operation string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Errors[operation] = err
}

// SetCommand scripts the command line cmd.
func (m *MockRuntime) SetCommand(cmd string, c *MockCommand) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Commands[cmd] = c
}

// SetMountError makes mounting key fail with err.
func (m *MockRuntime) SetMountError(key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MountErrors[key] = err
}

// GetCalls returns all recorded calls
func (m *MockRuntime) GetCalls() []MockCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	calls := make([]MockCall, len(m.CallLog))
	copy(calls, m.CallLog)
	return calls
}

// GetCallsFor returns all calls for a specific method
func (m *MockRuntime) GetCallsFor(method string) []MockCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var calls []MockCall
	for _, call := range m.CallLog {
		if call.Method == method {
			calls = append(calls, call)
		}
	}
	return calls
}

// Spawned returns the command lines spawned so far, in order.
func (m *MockRuntime) Spawned() []string {
	var out []string
	for _, call := range m.GetCallsFor("Spawn") {
		out = append(out, call.Args[0].(string))
	}
	return out
}

// Last returns the most recently booted instance.
func (m *MockRuntime) Last() *MockInstance {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.Instances) == 0 {
		return nil
	}
	return m.Instances[len(m.Instances)-1]
}

// Name returns the runtime identifier
func (m *MockRuntime) Name() string {
	return "mock"
}

// Boot creates a new in-memory instance
func (m *MockRuntime) Boot(ctx context.Context) (Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Boot")

	if err, ok := m.Errors["Boot"]; ok {
		return nil, err
	}

	inst := &MockInstance{
		rt:        m,
		id:        fmt.Sprintf("mock-%d", len(m.Instances)+1),
		Dirs:      make(map[string]bool),
		Files:     make(map[string][]byte),
		listeners: make(map[int]ReadyFunc),
		stop:      make(chan struct{}),
	}
	m.Instances = append(m.Instances, inst)
	return inst, nil
}

// MockInstance is an in-memory sandbox.
type MockInstance struct {
	rt *MockRuntime
	id string

	// Mounted lists mounted keys in mount order.
	Mounted []string

	// Dirs and Files hold the sandbox file system.
	Dirs  map[string]bool
	Files map[string][]byte

	// Processes holds every spawned process in spawn order.
	Processes []*MockProcess

	// TornDown is set by Teardown.
	TornDown bool

	nextID    int
	listeners map[int]ReadyFunc
	stop      chan struct{}
}

// ID returns the instance identifier
func (i *MockInstance) ID() string {
	return i.id
}

// Mount records entries in depth order. A nested entry whose parent is not
// mounted fails.
func (i *MockInstance) Mount(ctx context.Context, m manifest.Manifest) error {
	keys := m.Keys()
	sort.SliceStable(keys, func(a, b int) bool {
		return manifest.Depth(keys[a]) < manifest.Depth(keys[b])
	})

	i.rt.mu.Lock()
	defer i.rt.mu.Unlock()
	i.rt.record("Mount", i.id, keys)

	if err, ok := i.rt.Errors["Mount"]; ok {
		return err
	}

	for _, key := range keys {
		if err, ok := i.rt.MountErrors[key]; ok {
			return err
		}
		if parent := path.Dir(key); parent != "." && !i.Dirs[parent] {
			return fmt.Errorf("mount %s: parent directory %s does not exist", key, parent)
		}
		switch e := m[key].(type) {
		case manifest.Directory:
			i.Dirs[key] = true
		case manifest.File:
			i.Files[key] = append([]byte(nil), e.Contents...)
		}
		i.Mounted = append(i.Mounted, key)
	}
	return nil
}

// Spawn starts a scripted process
func (i *MockInstance) Spawn(ctx context.Context, command string, args []string, opts SpawnOptions) (Process, error) {
	line := strings.Join(append([]string{command}, args...), " ")

	i.rt.mu.Lock()
	i.rt.record("Spawn", line, opts)
	if err, ok := i.rt.Errors["Spawn"]; ok {
		i.rt.mu.Unlock()
		return nil, err
	}
	if err, ok := i.rt.Errors["Spawn:"+line]; ok {
		i.rt.mu.Unlock()
		return nil, err
	}
	script := MockCommand{}
	if c, ok := i.rt.Commands[line]; ok {
		script = *c
	}
	var output io.Reader = strings.NewReader(script.Output)
	if script.Stream != nil {
		output = script.Stream
	}
	p := &MockProcess{
		Command: line,
		script:  script,
		output:  output,
		stop:    i.stop,
	}
	i.Processes = append(i.Processes, p)
	i.rt.mu.Unlock()

	if script.ReadyPort != 0 {
		i.EmitServerReady(script.ReadyPort, script.ReadyHost)
	}
	return p, nil
}

// FS returns the in-memory file system
func (i *MockInstance) FS() FileSystem {
	return mockFS{i}
}

// OnServerReady registers a ready listener
func (i *MockInstance) OnServerReady(fn ReadyFunc) func() {
	i.rt.mu.Lock()
	defer i.rt.mu.Unlock()
	id := i.nextID
	i.nextID++
	i.listeners[id] = fn
	return func() {
		i.rt.mu.Lock()
		defer i.rt.mu.Unlock()
		delete(i.listeners, id)
	}
}

// Listeners returns the number of registered ready listeners.
func (i *MockInstance) Listeners() int {
	i.rt.mu.RLock()
	defer i.rt.mu.RUnlock()
	return len(i.listeners)
}

// EmitServerReady notifies every registered listener.
func (i *MockInstance) EmitServerReady(port int, host string) {
	i.rt.mu.RLock()
	fns := make([]ReadyFunc, 0, len(i.listeners))
	ids := make([]int, 0, len(i.listeners))
	for id := range i.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		fns = append(fns, i.listeners[id])
	}
	i.rt.mu.RUnlock()

	for _, fn := range fns {
		fn(port, host)
	}
}

// Teardown stops blocked processes and drops listeners
func (i *MockInstance) Teardown(ctx context.Context) error {
	i.rt.mu.Lock()
	defer i.rt.mu.Unlock()
	i.rt.record("Teardown", i.id)

	if err, ok := i.rt.Errors["Teardown"]; ok {
		return err
	}
	if !i.TornDown {
		i.TornDown = true
		close(i.stop)
		i.listeners = make(map[int]ReadyFunc)
	}
	return nil
}

// File returns the content of a file in the instance.
func (i *MockInstance) File(key string) (string, bool) {
	i.rt.mu.RLock()
	defer i.rt.mu.RUnlock()
	data, ok := i.Files[key]
	return string(data), ok
}

// MountOrder returns the mounted keys in order.
func (i *MockInstance) MountOrder() []string {
	i.rt.mu.RLock()
	defer i.rt.mu.RUnlock()
	return append([]string(nil), i.Mounted...)
}

type mockFS struct {
	i *MockInstance
}

func (f mockFS) ReadFile(ctx context.Context, p string) ([]byte, error) {
	f.i.rt.mu.Lock()
	defer f.i.rt.mu.Unlock()
	f.i.rt.record("ReadFile", p)

	if err, ok := f.i.rt.Errors["ReadFile"]; ok {
		return nil, err
	}
	data, ok := f.i.Files[p]
	if !ok {
		return nil, fmt.Errorf("open %s: no such file or directory", p)
	}
	return append([]byte(nil), data...), nil
}

func (f mockFS) WriteFile(ctx context.Context, p string, data []byte) error {
	f.i.rt.mu.Lock()
	defer f.i.rt.mu.Unlock()
	f.i.rt.record("WriteFile", p)

	if err, ok := f.i.rt.Errors["WriteFile"]; ok {
		return err
	}
	if parent := path.Dir(p); parent != "." && !f.i.Dirs[parent] {
		return fmt.Errorf("write %s: parent directory %s does not exist", p, parent)
	}
	f.i.Files[p] = append([]byte(nil), data...)
	return nil
}

// MockProcess is a scripted process.
type MockProcess struct {
	Command string

	script MockCommand
	output io.Reader
	stop   chan struct{}

	mu      sync.Mutex
	input   bytes.Buffer
	closed  bool
	resizes []TerminalSize
}

// Output returns the scripted output
func (p *MockProcess) Output() io.Reader {
	return p.output
}

// Input returns a writer recording everything written
func (p *MockProcess) Input() io.WriteCloser {
	return mockInput{p}
}

// Wait returns the scripted exit code
func (p *MockProcess) Wait(ctx context.Context) (int, error) {
	if !p.script.Block {
		return p.script.ExitCode, nil
	}
	select {
	case <-p.stop:
		return -1, nil
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

// Resize records the new size
func (p *MockProcess) Resize(size TerminalSize) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resizes = append(p.resizes, size)
	return nil
}

// Written returns everything written to the process input.
func (p *MockProcess) Written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.input.String()
}

// Resizes returns every size passed to Resize.
func (p *MockProcess) Resizes() []TerminalSize {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]TerminalSize(nil), p.resizes...)
}

// InputClosed reports whether the input was closed.
func (p *MockProcess) InputClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

type mockInput struct {
	p *MockProcess
}

func (w mockInput) Write(b []byte) (int, error) {
	w.p.mu.Lock()
	defer w.p.mu.Unlock()
	if w.p.closed {
		return 0, io.ErrClosedPipe
	}
	return w.p.input.Write(b)
}

func (w mockInput) Close() error {
	w.p.mu.Lock()
	defer w.p.mu.Unlock()
	w.p.closed = true
	return nil
}
