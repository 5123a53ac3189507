package cv

import (
	"context"
	"io"
	"time"

	"chunkvault/internal/model"
)

// ScannedFile is a candidate file found by a FileScanner.
type ScannedFile struct {
	Path         string // unique key, used by the files cache
	Root         string
	RelativePath string // directory relative to Root
	Name         string
	Size         int64
	LastModified time.Time
	Kind         model.FileKind
}

// FileScanner enumerates candidate files and opens them for reading.
type FileScanner interface {
	Scan(ctx context.Context) ([]ScannedFile, error)
	Open(f ScannedFile) (io.ReadCloser, error)
}

// Chunker splits a stream into content-defined chunks.
// The ids are content addresses of the chunk bytes, in stream order.
type Chunker interface {
	Chunk(r io.Reader) ([]model.Chunk, error)
}
