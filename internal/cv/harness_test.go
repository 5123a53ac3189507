package cv_test

import (
	"bytes"
	"context"
	"math/rand"
	"testing"
	"time"

	"chunkvault/internal/backend"
	"chunkvault/internal/chunker"
	"chunkvault/internal/cv"
	"chunkvault/internal/model"
	"chunkvault/internal/testutil"
)

// harness wires a complete chunk store over an in-memory backend:
// memory -> flaky (fault injection) -> retry (1ms base delay).
type harness struct {
	t         *testing.T
	store     *cv.Store
	mgr       *testutil.StubBackendManager
	mem       *backend.MemoryBackend
	flaky     *testutil.FlakyBackend
	scanner   *testutil.MockScanner
	clock     *testutil.StubClock
	writer    *cv.ChunkWriter
	snapshots *cv.SnapshotRetriever
	repop     *cv.Repopulater
	backup    *cv.Backup
	checker   *cv.Checker
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessOn(t, testutil.NewTestBackend(), cv.BackupOptions{Name: "test backup"})
}

// newHarnessOn builds a harness over an existing backend with a fresh, empty database,
// like a reinstall on the same host.
func newHarnessOn(t *testing.T, mem *backend.MemoryBackend, opts cv.BackupOptions) *harness {
	t.Helper()
	flaky := testutil.NewFlakyBackend(mem)
	retrying := backend.NewRetryBackend(flaky, backend.RetryOptions{Delay: time.Millisecond}, nil, nil)
	store, mgr := testutil.NewTestStore(t, retrying)
	clock := store.Clock.(*testutil.StubClock)

	if opts.ChunkSizeMax == 0 {
		opts.ChunkSizeMax = cv.ChunkSizeMax
	}
	ch, err := chunker.New(store.Addresser, opts.ChunkSizeMax)
	if err != nil {
		t.Fatalf("chunker.New() error = %v", err)
	}

	h := &harness{
		t:       t,
		store:   store,
		mgr:     mgr,
		mem:     mem,
		flaky:   flaky,
		scanner: testutil.NewMockScanner(),
		clock:   clock,
	}
	h.writer = cv.NewChunkWriter(store)
	h.snapshots = cv.NewSnapshotRetriever(store)
	h.repop = cv.NewRepopulater(store, h.snapshots)
	h.backup = cv.NewBackup(store, h.scanner, ch, h.writer, h.repop, opts)
	h.checker = cv.NewChecker(store, h.snapshots, h.repop, 0)
	return h
}

// runBackup runs a backup and advances the clock so the next one gets its own snapshot.
func (h *harness) runBackup() *cv.BackupResult {
	h.t.Helper()
	res, err := h.backup.Run(context.Background())
	if err != nil {
		h.t.Fatalf("Run() error = %v", err)
	}
	h.clock.Advance(time.Minute)
	return res
}

// available lists the stored blobs and their sizes.
func (h *harness) available() map[string]int64 {
	h.t.Helper()
	avail := make(map[string]int64)
	err := h.mem.List(context.Background(), h.store.Folder, []cv.FileType{cv.FileTypeBlob}, func(fi cv.FileInfo) error {
		avail[fi.Handle.Name] = fi.Size
		return nil
	})
	if err != nil {
		h.t.Fatalf("List() error = %v", err)
	}
	return avail
}

func (h *harness) blob(id string) []byte {
	h.t.Helper()
	rc, err := h.mem.Load(context.Background(), cv.BlobHandle(h.store.Folder, id))
	if err != nil {
		h.t.Fatalf("Load(%s) error = %v", id, err)
	}
	defer rc.Close()
	var buf bytes.Buffer
	buf.ReadFrom(rc)
	return buf.Bytes()
}

func (h *harness) chunk(id string) *model.CachedChunk {
	h.t.Helper()
	c, err := h.store.DB.GetEvenIfCorrupted(id)
	if err != nil {
		h.t.Fatalf("GetEvenIfCorrupted(%s) error = %v", id, err)
	}
	return c
}

func randomBytes(seed int64, n int) []byte {
	data := make([]byte, n)
	rand.New(rand.NewSource(seed)).Read(data)
	return data
}

var modTime = time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC)
