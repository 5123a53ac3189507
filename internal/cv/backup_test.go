package cv_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"chunkvault/internal/cv"
	"chunkvault/internal/model"
	"chunkvault/internal/testutil"
)

const largeFileSize = 5 * 1024 * 1024

func filesByName(s *model.BackupSnapshot) map[string]*model.BackupFile {
	m := make(map[string]*model.BackupFile)
	for _, f := range s.Files() {
		m[f.Name] = f
	}
	return m
}

func TestBackup_UnchangedFileIsReferencedAgain(t *testing.T) {
	h := newHarness(t)
	h.scanner.AddFile("/docs/big.bin", randomBytes(10, largeFileSize), modTime)

	first := h.runBackup()
	if first.Snapshot == nil {
		t.Fatal("first backup wrote no snapshot")
	}
	if first.ChunksWritten == 0 {
		t.Fatal("first backup wrote no chunks")
	}
	ids := first.Snapshot.ChunkIDs()

	h.flaky.ResetCalls()
	second := h.runBackup()
	if second.ChunksWritten != 0 {
		t.Errorf("second backup wrote %d chunks, want 0", second.ChunksWritten)
	}
	if second.FilesReused != 1 {
		t.Errorf("FilesReused = %d, want 1", second.FilesReused)
	}
	if got := h.flaky.Calls(testutil.OpSave); got != 1 {
		t.Errorf("second backup saved %d objects, want only the snapshot", got)
	}
	if h.scanner.Opens("/docs/big.bin") != 2 {
		t.Errorf("file opened %d times, want 2 (chunking and upload of the first run)", h.scanner.Opens("/docs/big.bin"))
	}

	for _, id := range ids {
		if c := h.chunk(id); c == nil || c.RefCount != 2 {
			t.Errorf("chunk %s = %+v, want ref count 2", id, c)
		}
	}
	if len(h.available()) != len(ids) {
		t.Errorf("stored %d blobs, want %d", len(h.available()), len(ids))
	}
}

func TestBackup_DeduplicatesAcrossPaths(t *testing.T) {
	h := newHarness(t)
	data := randomBytes(11, largeFileSize)
	h.scanner.AddFile("/docs/a.bin", data, modTime)
	h.scanner.AddFile("/docs/copy/a.bin", data, modTime)

	res := h.runBackup()
	if res.FilesBackedUp != 2 {
		t.Fatalf("FilesBackedUp = %d, want 2", res.FilesBackedUp)
	}
	files := res.Snapshot.Files()
	if len(files) != 2 {
		t.Fatalf("snapshot has %d files, want 2", len(files))
	}
	ids := res.Snapshot.ChunkIDs()
	if res.ChunksWritten != len(ids) {
		t.Errorf("ChunksWritten = %d, want %d", res.ChunksWritten, len(ids))
	}
	for _, id := range ids {
		if c := h.chunk(id); c.RefCount != 1 {
			t.Errorf("chunk %s ref count = %d, want 1 per snapshot", id, c.RefCount)
		}
	}
}

func TestBackup_SmallFilesShareZipChunk(t *testing.T) {
	h := newHarness(t)
	h.scanner.AddFile("/docs/a.txt", []byte("alpha"), modTime)
	h.scanner.AddFile("/docs/b.txt", []byte("beta"), modTime)
	h.scanner.AddFile("/photos/c.jpg", []byte("gamma"), modTime).Kind = model.KindMedia

	res := h.runBackup()
	if res.ChunksWritten != 1 {
		t.Errorf("ChunksWritten = %d, want 1", res.ChunksWritten)
	}
	if len(res.Snapshot.MediaFiles) != 1 || len(res.Snapshot.DocumentFiles) != 2 {
		t.Errorf("media = %d, documents = %d, want 1 and 2", len(res.Snapshot.MediaFiles), len(res.Snapshot.DocumentFiles))
	}

	indexes := make(map[int32]bool)
	var id string
	for _, f := range res.Snapshot.Files() {
		if len(f.ChunkIDs) != 1 {
			t.Fatalf("%s references %d chunks, want 1", f.Name, len(f.ChunkIDs))
		}
		if id != "" && f.ChunkIDs[0] != id {
			t.Errorf("%s is in zip chunk %s, want %s", f.Name, f.ChunkIDs[0], id)
		}
		id = f.ChunkIDs[0]
		if f.ZipIndex < 1 || indexes[f.ZipIndex] {
			t.Errorf("%s has zip index %d, want a unique index >= 1", f.Name, f.ZipIndex)
		}
		indexes[f.ZipIndex] = true
	}
	if res.BytesWritten != int64(len(h.blob(id))) {
		t.Errorf("BytesWritten = %d, want the zip chunk's %d", res.BytesWritten, len(h.blob(id)))
	}
	if res.Snapshot.Size != int64(len("alpha")+len("beta")+len("gamma")) {
		t.Errorf("snapshot size = %d", res.Snapshot.Size)
	}

	again := h.runBackup()
	if again.FilesReused != 3 || again.ChunksWritten != 0 {
		t.Errorf("second run reused %d and wrote %d chunks, want 3 and 0", again.FilesReused, again.ChunksWritten)
	}
}

func TestBackup_ModifiedFileIsRead(t *testing.T) {
	h := newHarness(t)
	h.scanner.AddFile("/docs/a.txt", []byte("one"), modTime)
	h.runBackup()

	h.scanner.AddFile("/docs/a.txt", []byte("two!"), modTime.Add(time.Second))
	h.scanner.AddFile("/docs/b.txt", []byte("new"), modTime)
	res := h.runBackup()
	if res.FilesReused != 0 || res.FilesBackedUp != 2 {
		t.Errorf("reused %d, backed up %d, want 0 and 2", res.FilesReused, res.FilesBackedUp)
	}
}

func TestBackup_ReuploadsChunkDeletedRemotely(t *testing.T) {
	h := newHarness(t)
	h.scanner.AddFile("/docs/big.bin", randomBytes(12, largeFileSize), modTime)
	first := h.runBackup()

	lost := first.Snapshot.ChunkIDs()[0]
	if err := h.mem.Remove(context.Background(), cv.BlobHandle(h.store.Folder, lost)); err != nil {
		t.Fatal(err)
	}

	res := h.runBackup()
	if res.FilesReused != 0 {
		t.Errorf("FilesReused = %d, want 0 with a chunk missing", res.FilesReused)
	}
	if res.ChunksWritten != 1 {
		t.Errorf("ChunksWritten = %d, want 1", res.ChunksWritten)
	}
	if _, ok := h.available()[lost]; !ok {
		t.Error("lost chunk was not uploaded again")
	}
}

func TestBackup_CannotBackupNow(t *testing.T) {
	tests := []struct {
		name  string
		setup func(m *testutil.StubBackendManager)
	}{
		{name: "before start", setup: func(m *testutil.StubBackendManager) { m.SetCanBackup(false) }},
		{name: "during run", setup: func(m *testutil.StubBackendManager) { m.ForbidAfter(2) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.scanner.AddFile("/docs/a.txt", []byte("alpha"), modTime)
			h.scanner.AddFile("/docs/big.bin", randomBytes(13, largeFileSize), modTime)
			tt.setup(h.mgr)

			res, err := h.backup.Run(context.Background())
			if !errors.Is(err, cv.ErrCannotBackupNow) {
				t.Fatalf("Run() error = %v, want ErrCannotBackupNow", err)
			}
			if res != nil {
				t.Errorf("Run() result = %+v, want nil", res)
			}
			stored, err := h.snapshots.List(context.Background())
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(stored) != 0 {
				t.Errorf("%d snapshots written, want 0", len(stored))
			}
		})
	}
}

func TestBackup_UnreadableFilesAreSkipped(t *testing.T) {
	h := newHarness(t)
	h.scanner.AddFile("/docs/a.txt", []byte("alpha"), modTime)
	h.scanner.AddFile("/docs/locked.txt", []byte("secret"), modTime).OpenErr = errors.New("permission denied")
	h.scanner.AddFile("/docs/locked.bin", randomBytes(14, largeFileSize), modTime).OpenErr = errors.New("permission denied")

	res := h.runBackup()
	if res.FilesFailed != 2 {
		t.Errorf("FilesFailed = %d, want 2", res.FilesFailed)
	}
	if res.FilesBackedUp != 1 {
		t.Errorf("FilesBackedUp = %d, want 1", res.FilesBackedUp)
	}
	if _, ok := filesByName(res.Snapshot)["a.txt"]; !ok {
		t.Error("a.txt missing from snapshot")
	}
}

func TestBackup_NothingToBackUp(t *testing.T) {
	h := newHarness(t)
	h.scanner.AddFile("/docs/locked.txt", []byte("secret"), modTime).OpenErr = errors.New("permission denied")

	res := h.runBackup()
	if res.Snapshot != nil {
		t.Error("snapshot written although no file could be backed up")
	}
	if len(h.available()) != 0 {
		t.Errorf("%d blobs stored, want 0", len(h.available()))
	}
}

func TestBackup_RebuildsCacheOnFreshDatabase(t *testing.T) {
	h := newHarness(t)
	h.scanner.AddFile("/docs/big.bin", randomBytes(15, largeFileSize), modTime)
	first := h.runBackup()

	fresh := newHarnessOn(t, h.mem, cv.BackupOptions{Name: "reinstalled"})
	fresh.clock.Advance(time.Hour)
	fresh.scanner.AddFile("/docs/big.bin", randomBytes(15, largeFileSize), modTime)

	res := fresh.runBackup()
	if res.ChunksWritten != 0 {
		t.Errorf("ChunksWritten = %d after cache rebuild, want 0", res.ChunksWritten)
	}
	for _, id := range first.Snapshot.ChunkIDs() {
		if c := fresh.chunk(id); c == nil || c.RefCount != 2 {
			t.Errorf("chunk %s = %+v, want ref count 2", id, c)
		}
	}
}
