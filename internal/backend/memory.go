package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"chunkvault/internal/cv"
)

// MemoryBackend is an in-memory implementation of the Backend interface.
// It stores objects keyed by their handle path, making it useful for testing.
// This implementation is safe for concurrent use.
type MemoryBackend struct {
	name    string
	objects map[string][]byte // handle path -> bytes
	mu      sync.RWMutex
}

// NewMemoryBackend creates a new in-memory backend with the given name.
func NewMemoryBackend(name string) *MemoryBackend {
	return &MemoryBackend{
		name:    name,
		objects: make(map[string][]byte),
	}
}

// Test always succeeds for the in-memory backend.
func (m *MemoryBackend) Test(ctx context.Context) (bool, error) {
	return true, nil
}

// FreeSpace is unknown for the in-memory backend.
func (m *MemoryBackend) FreeSpace(ctx context.Context) (int64, bool, error) {
	return 0, false, nil
}

func (m *MemoryBackend) Save(ctx context.Context, h cv.FileHandle, s cv.Saver) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var buf bytes.Buffer
	written, err := s.Save(&buf)
	if err != nil {
		return 0, fmt.Errorf("failed to read content: %w", err)
	}
	if written != s.Size() {
		return 0, fmt.Errorf("size mismatch: expected %d bytes, got %d", s.Size(), written)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[h.Path()] = buf.Bytes()
	return written, nil
}

func (m *MemoryBackend) Load(ctx context.Context, h cv.FileHandle) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.objects[h.Path()]
	if !ok {
		return nil, fmt.Errorf("%s: %w", h.Path(), cv.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// List calls fn in path order. The callback runs without the lock held,
// so it may call back into the backend.
func (m *MemoryBackend) List(ctx context.Context, folder cv.TopLevelFolder, types []cv.FileType, fn func(cv.FileInfo) error) error {
	prefix := folder.Name + "/"

	m.mu.RLock()
	var infos []cv.FileInfo
	for p, data := range m.objects {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		h, ok := cv.ParseHandle(p)
		if !ok || !cv.MatchesTypes(types, h.Type) {
			continue
		}
		infos = append(infos, cv.FileInfo{Handle: h, Size: int64(len(data))})
	}
	m.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].Handle.Path() < infos[j].Handle.Path() })
	for _, fi := range infos {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(fi); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryBackend) Remove(ctx context.Context, h cv.FileHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.objects[h.Path()]; !ok {
		return fmt.Errorf("%s: %w", h.Path(), cv.ErrNotFound)
	}
	delete(m.objects, h.Path())
	return nil
}

func (m *MemoryBackend) Rename(ctx context.Context, from, to cv.TopLevelFolder) error {
	if from == to {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	prefix := from.Name + "/"
	for p, data := range m.objects {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		m.objects[to.Name+"/"+strings.TrimPrefix(p, prefix)] = data
		delete(m.objects, p)
	}
	return nil
}

func (m *MemoryBackend) RemoveAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects = make(map[string][]byte)
	return nil
}

// IsTransient is always false: nothing in memory goes away on retry.
func (m *MemoryBackend) IsTransient(err error) bool {
	return false
}

// Put stores raw bytes under h, bypassing any saver. Used by tests to plant
// corrupted or foreign objects.
func (m *MemoryBackend) Put(h cv.FileHandle, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[h.Path()] = bytes.Clone(data)
}

// Compile-time check that MemoryBackend implements cv.Backend interface
var _ cv.Backend = (*MemoryBackend)(nil)
