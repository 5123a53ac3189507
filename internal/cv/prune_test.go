package cv_test

import (
	"context"
	"errors"
	"testing"

	"chunkvault/internal/cv"
)

func TestPruner_RemoveSnapshot(t *testing.T) {
	h := newHarness(t)
	h.scanner.AddFile("/docs/a.bin", randomBytes(40, largeFileSize), modTime)
	h.scanner.AddFile("/docs/b.bin", randomBytes(41, largeFileSize), modTime)
	first := h.runBackup()

	h.scanner.RemoveFile("/docs/b.bin")
	h.scanner.AddFile("/docs/c.bin", randomBytes(42, largeFileSize), modTime)
	second := h.runBackup()

	files := filesByName(first.Snapshot)
	aIDs, bIDs := files["a.bin"].ChunkIDs, files["b.bin"].ChunkIDs
	cIDs := filesByName(second.Snapshot)["c.bin"].ChunkIDs

	pruner := cv.NewPruner(h.store, h.snapshots)
	res, err := pruner.RemoveSnapshot(context.Background(), first.Snapshot.TimeStart)
	if err != nil {
		t.Fatalf("RemoveSnapshot() error = %v", err)
	}
	if res.ChunksRemoved != len(bIDs) {
		t.Errorf("ChunksRemoved = %d, want %d", res.ChunksRemoved, len(bIDs))
	}

	avail := h.available()
	for _, id := range bIDs {
		if _, ok := avail[id]; ok {
			t.Errorf("chunk %s of b.bin still stored", id)
		}
		if h.chunk(id) != nil {
			t.Errorf("chunk %s of b.bin still cached", id)
		}
	}
	for _, id := range aIDs {
		if _, ok := avail[id]; !ok {
			t.Errorf("chunk %s of a.bin removed", id)
		}
		if c := h.chunk(id); c == nil || c.RefCount != 1 {
			t.Errorf("chunk %s of a.bin = %+v, want ref count 1", id, c)
		}
	}
	for _, id := range cIDs {
		if _, ok := avail[id]; !ok {
			t.Errorf("chunk %s of c.bin removed", id)
		}
	}

	stored, err := h.snapshots.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(stored) != 1 || stored[0].Time != second.Snapshot.TimeStart {
		t.Errorf("List() = %v, want only the second snapshot", stored)
	}
	if got := h.checker.Check(context.Background(), 100, nil); got.Status != cv.CheckSuccess {
		t.Errorf("Check() after prune = %v (missing %v)", got.Status, got.MissingChunkIDs)
	}
}

func TestPruner_UnknownSnapshot(t *testing.T) {
	h := newHarness(t)
	_, err := cv.NewPruner(h.store, h.snapshots).RemoveSnapshot(context.Background(), 12345)
	if !errors.Is(err, cv.ErrNotFound) {
		t.Errorf("RemoveSnapshot() error = %v, want ErrNotFound", err)
	}
}
