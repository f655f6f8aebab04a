package remote

import (
	"context"
	"fmt"
	"path"
	"sync"

	ferrors "github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/repo"
)

// MockSource is an in-memory Source for testing.
type MockSource struct {
	mu sync.RWMutex

	// Dirs maps a directory path ("" for the root) to its listing.
	Dirs map[string][]Entry

	// Files maps a file path to its raw content.
	Files map[string][]byte

	// Errors injects failures keyed by "list:<path>", "raw:<path>" or "check".
	Errors map[string]error

	// Missing makes CheckRepo and root listings report ErrNotFound.
	Missing bool

	// CallLog records all method calls for verification
	CallLog []MockCall

	// Limit is returned by RateLimit.
	Limit RateLimit
}

// MockCall represents a recorded method call
type MockCall struct {
	Method string
	Path   string
}

var (
	_ Source      = (*MockSource)(nil)
	_ RateLimiter = (*MockSource)(nil)
)

// NewMockSource creates an empty mock repository.
func NewMockSource() *MockSource {
	return &MockSource{
		Dirs:    map[string][]Entry{"": {}},
		Files:   make(map[string][]byte),
		Errors:  make(map[string]error),
		CallLog: make([]MockCall, 0),
		Limit:   RateLimit{Limit: 5000, Remaining: 5000},
	}
}

// AddFile adds a file and any missing parent directories, appending each new
// entry to its parent's listing in call order.
func (m *MockSource) AddFile(p string, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureDir(path.Dir(p))
	m.appendEntry(Entry{Name: path.Base(p), Path: p, Kind: repo.KindFile, Size: int64(len(content))})
	m.Files[p] = []byte(content)
}

// AddDir adds an empty directory and any missing parents.
func (m *MockSource) AddDir(p string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureDir(p)
}

func (m *MockSource) ensureDir(p string) {
	if p == "." || p == "" {
		return
	}
	if _, ok := m.Dirs[p]; ok {
		return
	}
	m.ensureDir(path.Dir(p))
	m.Dirs[p] = []Entry{}
	m.appendEntry(Entry{Name: path.Base(p), Path: p, Kind: repo.KindDir})
}

func (m *MockSource) appendEntry(e Entry) {
	parent := path.Dir(e.Path)
	if parent == "." {
		parent = ""
	}
	m.Dirs[parent] = append(m.Dirs[parent], e)
}

// SetError sets an error to be returned for a specific operation
func (m *MockSource) SetError(operation string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Errors[operation] = err
}

func (m *MockSource) record(method, p string) {
	m.CallLog = append(m.CallLog, MockCall{Method: method, Path: p})
}

// ListContents implements Source.
func (m *MockSource) ListContents(ctx context.Context, owner, name, p string) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if IsRoot(p) {
		p = ""
	}
	m.record("ListContents", p)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := m.Errors["list:"+p]; err != nil {
		return nil, err
	}
	if m.Missing {
		return nil, ferrors.NotFound(owner + "/" + name)
	}
	if content, ok := m.Files[p]; ok {
		return []Entry{{Name: path.Base(p), Path: p, Kind: repo.KindFile, Size: int64(len(content))}}, nil
	}
	entries, ok := m.Dirs[p]
	if !ok {
		return nil, ferrors.NotFound(owner + "/" + name + "/" + p)
	}
	return append([]Entry(nil), entries...), nil
}

// GetRawContent implements Source.
func (m *MockSource) GetRawContent(ctx context.Context, owner, name, p string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("GetRawContent", p)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := m.Errors["raw:"+p]; err != nil {
		return nil, err
	}
	content, ok := m.Files[p]
	if !ok {
		return nil, ferrors.NotFound(fmt.Sprintf("%s/%s/%s", owner, name, p))
	}
	return append([]byte(nil), content...), nil
}

// CheckRepo implements Source.
func (m *MockSource) CheckRepo(ctx context.Context, owner, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("CheckRepo", "")

	if err := m.Errors["check"]; err != nil {
		return err
	}
	if m.Missing {
		return ferrors.NotFound(owner + "/" + name)
	}
	return nil
}

// RateLimit implements RateLimiter.
func (m *MockSource) RateLimit(ctx context.Context) (*RateLimit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("RateLimit", "")

	if err := m.Errors["ratelimit"]; err != nil {
		return nil, err
	}
	limit := m.Limit
	return &limit, nil
}

// GetCallsFor returns all calls for a specific method
func (m *MockSource) GetCallsFor(method string) []MockCall {
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
