package testutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"sync"
	"time"

	"chunkvault/internal/cv"
	"chunkvault/internal/model"
)

// MockFile is a file of the mock scanner.
type MockFile struct {
	Content []byte
	ModTime time.Time
	Kind    model.FileKind
	OpenErr error // returned by Open when set
}

// MockScanner is an in-memory cv.FileScanner. Paths are slash-separated and
// the first element is the root, e.g. "/docs/sub/a.txt" has root "/docs".
type MockScanner struct {
	mu    sync.Mutex
	files map[string]*MockFile
	opens map[string]int
}

func NewMockScanner() *MockScanner {
	return &MockScanner{
		files: make(map[string]*MockFile),
		opens: make(map[string]int),
	}
}

// AddFile adds or replaces a document file modified at modTime.
func (m *MockScanner) AddFile(p string, content []byte, modTime time.Time) *MockFile {
	m.mu.Lock()
	defer m.mu.Unlock()
	f := &MockFile{Content: content, ModTime: modTime, Kind: model.KindDocument}
	m.files[p] = f
	return f
}

// RemoveFile deletes a file.
func (m *MockScanner) RemoveFile(p string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, p)
}

// Opens returns how often the file at p was opened.
func (m *MockScanner) Opens(p string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens[p]
}

func (m *MockScanner) Scan(ctx context.Context) ([]cv.ScannedFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var files []cv.ScannedFile
	for p, f := range m.files {
		root, rel, name := splitMockPath(p)
		files = append(files, cv.ScannedFile{
			Path:         p,
			Root:         root,
			RelativePath: rel,
			Name:         name,
			Size:         int64(len(f.Content)),
			LastModified: f.ModTime,
			Kind:         f.Kind,
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func (m *MockScanner) Open(f cv.ScannedFile) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opens[f.Path]++
	file, ok := m.files[f.Path]
	if !ok {
		return nil, fmt.Errorf("file not found: %s", f.Path)
	}
	if file.OpenErr != nil {
		return nil, file.OpenErr
	}
	return io.NopCloser(bytes.NewReader(file.Content)), nil
}

func splitMockPath(p string) (root, rel, name string) {
	dir, name := path.Split(path.Clean("/" + p))
	dir = path.Clean(dir)
	if dir == "/" {
		return "/", "", name
	}
	// "/docs/sub" -> root "/docs", rel "sub"
	rest := dir[1:]
	for i := 0; i < len(rest); i++ {
		if rest[i] == '/' {
			return "/" + rest[:i], rest[i+1:], name
		}
	}
	return "/" + rest, "", name
}

var _ cv.FileScanner = (*MockScanner)(nil)
