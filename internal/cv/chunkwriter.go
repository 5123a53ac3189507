package cv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"chunkvault/internal/model"
)

// ChunkWriterResult counts what a write actually uploaded.
type ChunkWriterResult struct {
	ChunksWritten int
	BytesWritten  int64
}

// ChunkWriter uploads chunk ciphertext at most once per chunk id and records it in the chunk cache.
// One plaintext buffer is shared, so large-chunk writes are serialized.
type ChunkWriter struct {
	store *Store

	mu  sync.Mutex
	buf bytes.Buffer
}

func NewChunkWriter(store *Store) *ChunkWriter {
	return &ChunkWriter{store: store}
}

// WriteChunks consumes r strictly left to right following chunks.
// A chunk is uploaded if the cache does not know it or if its id is in missing
// (cached, but absent from the remote listing). Other chunks are skipped in the stream.
// The stream must end exactly after the last chunk; otherwise ErrStreamDesync is returned.
func (w *ChunkWriter) WriteChunks(ctx context.Context, r io.Reader, chunks []model.Chunk, missing map[string]struct{}) (ChunkWriterResult, error) {
	var res ChunkWriterResult
	written := make(map[string]struct{})

	for _, c := range chunks {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		cached, err := w.store.DB.Get(c.ID)
		if err != nil {
			return res, fatal(fmt.Errorf("looking up chunk %s: %w", c.ID, err))
		}
		_, isMissing := missing[c.ID]
		_, done := written[c.ID]
		if isMissing {
			w.store.Logger.Warn("chunk is missing remotely", "chunk", c.ID, "cached", cached != nil)
		}

		if (cached == nil || isMissing) && !done {
			size, err := w.writeFromStream(ctx, r, c)
			if err != nil {
				return res, err
			}
			if err := w.record(cached, c.ID, size); err != nil {
				return res, err
			}
			written[c.ID] = struct{}{}
			res.ChunksWritten++
			res.BytesWritten += size
			continue
		}

		skipped, err := io.CopyN(io.Discard, r, c.PlaintextSize)
		if err != nil && !errors.Is(err, io.EOF) {
			return res, fmt.Errorf("skipping chunk %s: %w", c.ID, err)
		}
		if skipped != c.PlaintextSize {
			return res, fmt.Errorf("%w: skipped %d of %d bytes for chunk %s", ErrStreamDesync, skipped, c.PlaintextSize, c.ID)
		}
	}

	var end [1]byte
	n, err := io.ReadFull(r, end[:])
	if n > 0 {
		return res, fmt.Errorf("%w: stream continues after last chunk", ErrStreamDesync)
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return res, fmt.Errorf("reading end of stream: %w", err)
	}
	return res, nil
}

// WriteZipChunk uploads a zip chunk unless it is already stored.
// It reports whether it uploaded and the stored size.
func (w *ChunkWriter) WriteZipChunk(ctx context.Context, id string, zip []byte, missing map[string]struct{}) (bool, int64, error) {
	cached, err := w.store.DB.Get(id)
	if err != nil {
		return false, 0, fatal(fmt.Errorf("looking up zip chunk %s: %w", id, err))
	}
	_, isMissing := missing[id]
	if isMissing {
		w.store.Logger.Warn("zip chunk is missing remotely", "chunk", id, "cached", cached != nil)
	}
	if cached != nil && !isMissing {
		return false, 0, nil
	}

	size, err := w.save(ctx, id, zip)
	if err != nil {
		return false, 0, err
	}
	if err := w.record(cached, id, size); err != nil {
		return false, 0, err
	}
	return true, size, nil
}

// record caches a freshly uploaded chunk. A row that already existed keeps its
// ref count but takes the new size, since the previous blob is gone.
func (w *ChunkWriter) record(cached *model.CachedChunk, id string, size int64) error {
	if cached == nil {
		if err := w.store.DB.Insert(cachedChunk(id, size)); err != nil {
			return fatal(fmt.Errorf("caching chunk %s: %w", id, err))
		}
		return nil
	}
	if err := w.store.DB.UpdateSize(id, size, Version); err != nil {
		return fatal(fmt.Errorf("updating cached chunk %s: %w", id, err))
	}
	return nil
}

func (w *ChunkWriter) writeFromStream(ctx context.Context, r io.Reader, c model.Chunk) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Reset()
	n, err := io.CopyN(&w.buf, r, c.PlaintextSize)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("reading chunk %s: %w", c.ID, err)
	}
	if n != c.PlaintextSize {
		return 0, fmt.Errorf("%w: unexpected end of stream for chunk %s (%d of %d bytes)", ErrStreamDesync, c.ID, n, c.PlaintextSize)
	}
	defer w.buf.Reset()
	return w.save(ctx, c.ID, w.buf.Bytes())
}

// save encrypts plaintext and stores it. The sealed bytes are fixed before the first
// attempt, so a retried save writes the same bytes again.
func (w *ChunkWriter) save(ctx context.Context, id string, plaintext []byte) (int64, error) {
	blob, err := sealBlob(w.store.Crypto, plaintext, ChunkAssociatedData(id, Version))
	if err != nil {
		return 0, fatal(fmt.Errorf("sealing chunk %s: %w", id, err))
	}
	n, err := w.store.backend().Save(ctx, BlobHandle(w.store.Folder, id), NewBufferSaver(blob))
	if err != nil {
		return 0, fmt.Errorf("saving chunk %s: %w", id, err)
	}
	w.store.Metrics.ChunkUploaded(n)
	w.store.Logger.Debug("uploaded chunk", "chunk", id, "size", n)
	return n, nil
}

func cachedChunk(id string, size int64) model.CachedChunk {
	return model.CachedChunk{ID: id, RefCount: 0, Size: size, Version: Version}
}
