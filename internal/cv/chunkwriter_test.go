package cv_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"chunkvault/internal/cv"
	"chunkvault/internal/model"
	"chunkvault/internal/testutil"
)

// planChunks splits data at the given sizes and computes ids like a chunker would.
func planChunks(h *harness, data []byte, sizes ...int) []model.Chunk {
	var chunks []model.Chunk
	var off int
	for _, n := range sizes {
		chunks = append(chunks, model.Chunk{
			ID:            h.store.Addresser.ContentAddress(data[off : off+n]),
			Offset:        int64(off),
			PlaintextSize: int64(n),
		})
		off += n
	}
	return chunks
}

func TestChunkWriter_WritesEachChunkOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	data := randomBytes(1, 3000)
	chunks := planChunks(h, data, 1000, 1000, 1000)

	res, err := h.writer.WriteChunks(ctx, bytes.NewReader(data), chunks, nil)
	if err != nil {
		t.Fatalf("WriteChunks() error = %v", err)
	}
	if res.ChunksWritten != 3 {
		t.Errorf("ChunksWritten = %d, want 3", res.ChunksWritten)
	}
	for _, c := range chunks {
		row := h.chunk(c.ID)
		if row == nil {
			t.Fatalf("chunk %s not cached", c.ID)
		}
		if row.RefCount != 0 {
			t.Errorf("RefCount = %d, want 0 for a fresh chunk", row.RefCount)
		}
		if got := int64(len(h.blob(c.ID))); got != row.Size {
			t.Errorf("cached size = %d, stored size = %d", row.Size, got)
		}
	}

	h.flaky.ResetCalls()
	res, err = h.writer.WriteChunks(ctx, bytes.NewReader(data), chunks, nil)
	if err != nil {
		t.Fatalf("WriteChunks() second call error = %v", err)
	}
	if res.ChunksWritten != 0 || h.flaky.Calls(testutil.OpSave) != 0 {
		t.Errorf("second write uploaded %d chunks (%d saves), want 0", res.ChunksWritten, h.flaky.Calls(testutil.OpSave))
	}
}

func TestChunkWriter_DuplicateChunkInOneStream(t *testing.T) {
	h := newHarness(t)
	part := randomBytes(2, 500)
	data := append(append([]byte{}, part...), part...)
	chunks := planChunks(h, data, 500, 500)

	res, err := h.writer.WriteChunks(context.Background(), bytes.NewReader(data), chunks, nil)
	if err != nil {
		t.Fatalf("WriteChunks() error = %v", err)
	}
	if res.ChunksWritten != 1 {
		t.Errorf("ChunksWritten = %d, want 1", res.ChunksWritten)
	}
}

func TestChunkWriter_ReuploadsMissingChunks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	data := randomBytes(3, 2000)
	chunks := planChunks(h, data, 1000, 1000)

	if _, err := h.writer.WriteChunks(ctx, bytes.NewReader(data), chunks, nil); err != nil {
		t.Fatalf("WriteChunks() error = %v", err)
	}
	if err := h.mem.Remove(ctx, cv.BlobHandle(h.store.Folder, chunks[1].ID)); err != nil {
		t.Fatal(err)
	}

	missing := map[string]struct{}{chunks[1].ID: {}}
	res, err := h.writer.WriteChunks(ctx, bytes.NewReader(data), chunks, missing)
	if err != nil {
		t.Fatalf("WriteChunks() error = %v", err)
	}
	if res.ChunksWritten != 1 {
		t.Errorf("ChunksWritten = %d, want 1", res.ChunksWritten)
	}
	if len(h.blob(chunks[1].ID)) == 0 {
		t.Error("missing chunk was not uploaded again")
	}
}

func TestChunkWriter_StreamDesync(t *testing.T) {
	tests := []struct {
		name  string
		data  int
		sizes []int
		write bool // first chunk already cached, so it is skipped rather than read
	}{
		{name: "stream longer than plan", data: 3000, sizes: []int{1000, 1000}},
		{name: "stream shorter than plan", data: 1500, sizes: []int{1000, 1000}},
		{name: "skip past end of stream", data: 500, sizes: []int{1000}, write: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()
			data := randomBytes(4, tt.data)
			full := append(append([]byte{}, data...), make([]byte, 2000)...)
			chunks := planChunks(h, full, tt.sizes...)

			if tt.write {
				if _, err := h.writer.WriteChunks(ctx, bytes.NewReader(full[:tt.sizes[0]]), chunks[:1], nil); err != nil {
					t.Fatalf("WriteChunks() setup error = %v", err)
				}
			}

			_, err := h.writer.WriteChunks(ctx, bytes.NewReader(data), chunks, nil)
			if !errors.Is(err, cv.ErrStreamDesync) {
				t.Errorf("WriteChunks() error = %v, want ErrStreamDesync", err)
			}
		})
	}
}

func TestChunkWriter_RetriedSaveWritesIdenticalBytes(t *testing.T) {
	data := randomBytes(5, 4096)

	clean := newHarness(t)
	chunks := planChunks(clean, data, 4096)
	if _, err := clean.writer.WriteChunks(context.Background(), bytes.NewReader(data), chunks, nil); err != nil {
		t.Fatalf("WriteChunks() error = %v", err)
	}

	for _, failures := range []int{1, 2, 4} {
		flaky := newHarness(t)
		flaky.flaky.FailNext(testutil.OpSave, failures, testutil.ErrTransient)
		res, err := flaky.writer.WriteChunks(context.Background(), bytes.NewReader(data), chunks, nil)
		if err != nil {
			t.Fatalf("WriteChunks() with %d failures error = %v", failures, err)
		}
		if got := flaky.flaky.Calls(testutil.OpSave); got != failures+1 {
			t.Errorf("save attempts = %d, want %d", got, failures+1)
		}
		if !bytes.Equal(flaky.blob(chunks[0].ID), clean.blob(chunks[0].ID)) {
			t.Errorf("ciphertext after %d failures differs from a clean write", failures)
		}
		if res.BytesWritten != int64(len(clean.blob(chunks[0].ID))) {
			t.Errorf("BytesWritten = %d, want %d", res.BytesWritten, len(clean.blob(chunks[0].ID)))
		}
	}
}

func TestChunkWriter_SaveFailureAfterRetries(t *testing.T) {
	h := newHarness(t)
	h.flaky.FailNext(testutil.OpSave, 100, testutil.ErrTransient)
	data := randomBytes(6, 100)
	chunks := planChunks(h, data, 100)

	_, err := h.writer.WriteChunks(context.Background(), bytes.NewReader(data), chunks, nil)
	if !errors.Is(err, testutil.ErrTransient) {
		t.Errorf("WriteChunks() error = %v, want ErrTransient", err)
	}
	if got := h.flaky.Calls(testutil.OpSave); got != 5 {
		t.Errorf("save attempts = %d, want 5", got)
	}
	if h.chunk(chunks[0].ID) != nil {
		t.Error("chunk cached although its upload failed")
	}
}

func TestChunkWriter_HealsCorruptedChunk(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	data := randomBytes(7, 100)
	chunks := planChunks(h, data, 100)

	if _, err := h.writer.WriteChunks(ctx, bytes.NewReader(data), chunks, nil); err != nil {
		t.Fatalf("WriteChunks() error = %v", err)
	}
	if err := h.store.DB.MarkCorrupted(chunks[0].ID); err != nil {
		t.Fatalf("MarkCorrupted() error = %v", err)
	}

	res, err := h.writer.WriteChunks(ctx, bytes.NewReader(data), chunks, nil)
	if err != nil {
		t.Fatalf("WriteChunks() error = %v", err)
	}
	if res.ChunksWritten != 1 {
		t.Errorf("ChunksWritten = %d, want 1", res.ChunksWritten)
	}
	if row := h.chunk(chunks[0].ID); row == nil || row.Corrupted {
		t.Errorf("chunk = %+v, want corruption flag cleared", row)
	}
}

func TestChunkWriter_ReuploadRefreshesCachedSize(t *testing.T) {
	h := newHarness(t)
	data := randomBytes(8, 300)
	chunks := planChunks(h, data, 300)
	id := chunks[0].ID

	// Row left over from an older upload whose blob no longer exists.
	if err := h.store.DB.Insert(model.CachedChunk{ID: id, RefCount: 1, Size: 3}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	res, err := h.writer.WriteChunks(context.Background(), bytes.NewReader(data), chunks, map[string]struct{}{id: {}})
	if err != nil {
		t.Fatalf("WriteChunks() error = %v", err)
	}
	stored := int64(len(h.blob(id)))
	if res.BytesWritten != stored {
		t.Errorf("BytesWritten = %d, want %d", res.BytesWritten, stored)
	}
	row := h.chunk(id)
	if row == nil {
		t.Fatal("chunk row disappeared")
	}
	if row.Size != stored || row.Version != cv.Version || row.RefCount != 1 {
		t.Errorf("chunk = %+v, want size %d, version %d, ref count 1", row, stored, cv.Version)
	}
}
