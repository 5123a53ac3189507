package testutil

import (
	"context"
	"errors"
	"io"
	"sync"

	"chunkvault/internal/backend"
	"chunkvault/internal/cv"
)

// NewTestBackend creates a new in-memory backend for testing.
func NewTestBackend() *backend.MemoryBackend {
	return backend.NewMemoryBackend("test-backend")
}

// ErrTransient is the failure FlakyBackend reports as transient.
var ErrTransient = errors.New("injected transient failure")

// Operation names understood by FlakyBackend.
const (
	OpSave   = "save"
	OpLoad   = "load"
	OpList   = "list"
	OpRemove = "remove"
)

// FlakyBackend wraps a Backend, injects failures and counts calls per operation.
// Safe for concurrent use.
type FlakyBackend struct {
	cv.Backend

	mu        sync.Mutex
	calls     map[string]int
	remaining map[string]int
	errs      map[string]error
	loadErrs  map[string]error // handle path -> error returned on every load
}

func NewFlakyBackend(inner cv.Backend) *FlakyBackend {
	return &FlakyBackend{
		Backend:   inner,
		calls:     make(map[string]int),
		remaining: make(map[string]int),
		errs:      make(map[string]error),
		loadErrs:  make(map[string]error),
	}
}

// FailNext makes the next n calls of op fail with err.
func (f *FlakyBackend) FailNext(op string, n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.remaining[op] = n
	f.errs[op] = err
}

// FailLoad makes every load of h fail with err.
func (f *FlakyBackend) FailLoad(h cv.FileHandle, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loadErrs[h.Path()] = err
}

// Calls returns how often op was invoked.
func (f *FlakyBackend) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// ResetCalls zeroes all call counters.
func (f *FlakyBackend) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = make(map[string]int)
}

func (f *FlakyBackend) next(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	if f.remaining[op] > 0 {
		f.remaining[op]--
		return f.errs[op]
	}
	return nil
}

func (f *FlakyBackend) Save(ctx context.Context, h cv.FileHandle, s cv.Saver) (int64, error) {
	if err := f.next(OpSave); err != nil {
		// An upload that broke halfway still consumed the saver.
		s.Save(io.Discard)
		return 0, err
	}
	return f.Backend.Save(ctx, h, s)
}

func (f *FlakyBackend) Load(ctx context.Context, h cv.FileHandle) (io.ReadCloser, error) {
	if err := f.next(OpLoad); err != nil {
		return nil, err
	}
	f.mu.Lock()
	err := f.loadErrs[h.Path()]
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.Backend.Load(ctx, h)
}

func (f *FlakyBackend) List(ctx context.Context, folder cv.TopLevelFolder, types []cv.FileType, fn func(cv.FileInfo) error) error {
	if err := f.next(OpList); err != nil {
		return err
	}
	return f.Backend.List(ctx, folder, types, fn)
}

func (f *FlakyBackend) Remove(ctx context.Context, h cv.FileHandle) error {
	if err := f.next(OpRemove); err != nil {
		return err
	}
	return f.Backend.Remove(ctx, h)
}

func (f *FlakyBackend) IsTransient(err error) bool {
	return errors.Is(err, ErrTransient) || f.Backend.IsTransient(err)
}

// StubBackendManager exposes a fixed backend with settable properties.
type StubBackendManager struct {
	B         cv.Backend
	Network   bool
	Removable bool

	mu        sync.Mutex
	cannot    bool
	afterCall int // CanDoBackupNow turns false after this many calls when > 0
	checks    int
}

func NewStubBackendManager(b cv.Backend) *StubBackendManager {
	return &StubBackendManager{B: b}
}

func (m *StubBackendManager) Backend() cv.Backend      { return m.B }
func (m *StubBackendManager) RequiresNetwork() bool    { return m.Network }
func (m *StubBackendManager) IsOnRemovableDrive() bool { return m.Removable }

func (m *StubBackendManager) CanDoBackupNow() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks++
	if m.afterCall > 0 && m.checks > m.afterCall {
		return false
	}
	return !m.cannot
}

// SetCanBackup switches the backup precondition.
func (m *StubBackendManager) SetCanBackup(ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cannot = !ok
}

// ForbidAfter lets the first n precondition checks pass and fails every later one,
// like a drive unplugged in the middle of a run.
func (m *StubBackendManager) ForbidAfter(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.afterCall = n
	m.checks = 0
}

var _ cv.BackendManager = (*StubBackendManager)(nil)
