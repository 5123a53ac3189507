package cv_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"chunkvault/internal/crypto"
	"chunkvault/internal/cv"
	"chunkvault/internal/model"
)

// withOrphan stores one blob that no snapshot references.
func withOrphan(t *testing.T, h *harness) string {
	t.Helper()
	data := []byte("nobody references me")
	id := h.store.Addresser.ContentAddress(data)
	chunks := []model.Chunk{{ID: id, PlaintextSize: int64(len(data))}}
	if _, err := h.writer.WriteChunks(context.Background(), bytes.NewReader(data), chunks, nil); err != nil {
		t.Fatalf("WriteChunks() error = %v", err)
	}
	return id
}

func TestRepopulate_RebuildsRefCounts(t *testing.T) {
	h := newHarness(t)
	h.scanner.AddFile("/docs/a.bin", randomBytes(30, largeFileSize), modTime)
	first := h.runBackup()
	h.scanner.AddFile("/docs/b.bin", randomBytes(31, largeFileSize), modTime)
	second := h.runBackup()

	fresh := newHarnessOn(t, h.mem, cv.BackupOptions{})
	if err := fresh.repop.Repopulate(context.Background(), fresh.available()); err != nil {
		t.Fatalf("Repopulate() error = %v", err)
	}

	want := make(map[string]int64)
	for _, s := range []*model.BackupSnapshot{first.Snapshot, second.Snapshot} {
		for _, id := range s.ChunkIDs() {
			want[id]++
		}
	}
	for id, refs := range want {
		c := fresh.chunk(id)
		if c == nil {
			t.Errorf("chunk %s not cached", id)
			continue
		}
		if c.RefCount != refs {
			t.Errorf("chunk %s ref count = %d, want %d", id, c.RefCount, refs)
		}
		if c.Size != fresh.available()[id] {
			t.Errorf("chunk %s size = %d, want stored size %d", id, c.Size, fresh.available()[id])
		}
	}
}

func TestRepopulate_DeletesOrphans(t *testing.T) {
	h := newHarness(t)
	h.scanner.AddFile("/docs/a.txt", []byte("alpha"), modTime)
	res := h.runBackup()
	orphan := withOrphan(t, h)

	if err := h.repop.Repopulate(context.Background(), h.available()); err != nil {
		t.Fatalf("Repopulate() error = %v", err)
	}
	avail := h.available()
	if _, ok := avail[orphan]; ok {
		t.Error("orphaned blob still stored")
	}
	if h.chunk(orphan) != nil {
		t.Error("orphaned chunk still cached")
	}
	for _, id := range res.Snapshot.ChunkIDs() {
		if _, ok := avail[id]; !ok {
			t.Errorf("referenced chunk %s deleted", id)
		}
	}
}

func TestRepopulate_NoSnapshotsDeletesEverything(t *testing.T) {
	h := newHarness(t)
	orphan := withOrphan(t, h)

	if err := h.repop.Repopulate(context.Background(), h.available()); err != nil {
		t.Fatalf("Repopulate() error = %v", err)
	}
	if _, ok := h.available()[orphan]; ok {
		t.Error("orphaned blob still stored")
	}
}

func TestRepopulate_SkipsGarbageSnapshot(t *testing.T) {
	h := newHarness(t)
	h.scanner.AddFile("/docs/a.txt", []byte("alpha"), modTime)
	res := h.runBackup()
	h.mem.Put(cv.SnapshotHandle(h.store.Folder, 42), randomBytes(32, 200))
	orphan := withOrphan(t, h)

	if err := h.repop.Repopulate(context.Background(), h.available()); err != nil {
		t.Fatalf("Repopulate() error = %v", err)
	}
	for _, id := range res.Snapshot.ChunkIDs() {
		if c := h.chunk(id); c == nil || c.RefCount != 1 {
			t.Errorf("chunk %s = %+v, want ref count 1", id, c)
		}
	}
	if _, ok := h.available()[orphan]; ok {
		t.Error("orphan survived although one snapshot was readable")
	}
}

func TestRepopulate_WrongKeyKeepsBlobs(t *testing.T) {
	h := newHarness(t)
	h.scanner.AddFile("/docs/a.txt", []byte("alpha"), modTime)
	h.runBackup()
	before := h.available()

	other, err := crypto.DeriveKeys(bytes.Repeat([]byte{0x17}, 32))
	if err != nil {
		t.Fatalf("DeriveKeys() error = %v", err)
	}
	h.store.Crypto, h.store.Addresser = other.Stream, other.Addresser

	if err := h.repop.Repopulate(context.Background(), before); err != nil {
		t.Fatalf("Repopulate() error = %v", err)
	}
	if got := len(h.available()); got != len(before) {
		t.Errorf("%d blobs left of %d, want none deleted", got, len(before))
	}
}

func TestRepopulate_TransientSnapshotFailureAborts(t *testing.T) {
	h := newHarness(t)
	h.scanner.AddFile("/docs/a.txt", []byte("alpha"), modTime)
	res := h.runBackup()
	orphan := withOrphan(t, h)

	boom := errors.New("connection reset by peer")
	h.flaky.FailLoad(cv.SnapshotHandle(h.store.Folder, res.Snapshot.TimeStart), boom)

	err := h.repop.Repopulate(context.Background(), h.available())
	if !errors.Is(err, boom) {
		t.Fatalf("Repopulate() error = %v, want %v", err, boom)
	}
	if _, ok := h.available()[orphan]; !ok {
		t.Error("orphan deleted although repopulation aborted")
	}
	if h.chunk(orphan) == nil {
		t.Error("cache was cleared although repopulation aborted")
	}
}

func TestIsPermanentReadError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"decrypt", cv.ErrDecrypt, true},
		{"wrapped malformed", errors.Join(errors.New("parsing"), cv.ErrMalformed), true},
		{"empty", cv.ErrFileEmpty, true},
		{"not found", cv.ErrNotFound, true},
		{"newer version", &cv.UnsupportedVersionError{Version: 9}, true},
		{"network", errors.New("connection refused"), false},
		{"cancelled", context.Canceled, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cv.IsPermanentReadError(tt.err); got != tt.want {
				t.Errorf("IsPermanentReadError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
