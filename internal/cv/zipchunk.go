package cv

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"

	"chunkvault/internal/model"
)

// ZipChunk is a group of small files stored as one blob.
type ZipChunk struct {
	ID      string
	Files   []*model.BackupFile
	Written bool
	Size    int64 // stored size, set when Written
}

// ZipChunker packs small files into a deterministic zip archive.
// Entries are named by a 1-based counter and carry no timestamps, so the same
// contents in the same order always give the same bytes and the same chunk id.
type ZipChunker struct {
	writer    *ChunkWriter
	addresser ContentAddresser
	sizeMax   int64

	buf     bytes.Buffer
	zw      *zip.Writer
	counter int32
	pending int64
	files   []*model.BackupFile
}

func NewZipChunker(writer *ChunkWriter, addresser ContentAddresser, sizeMax int64) *ZipChunker {
	z := &ZipChunker{writer: writer, addresser: addresser, sizeMax: sizeMax}
	z.reset()
	return z
}

func (z *ZipChunker) reset() {
	z.buf.Reset()
	z.zw = zip.NewWriter(&z.buf)
	z.counter = 0
	z.pending = 0
	z.files = nil
}

// Empty reports whether no file has been added since the last flush.
func (z *ZipChunker) Empty() bool { return len(z.files) == 0 }

// Fits reports whether a file of size can join the current archive.
// An empty archive accepts anything.
func (z *ZipChunker) Fits(size int64) bool {
	return z.counter == 0 || z.pending+size <= z.sizeMax
}

// AddFile appends r as the next entry and assigns file.ZipIndex.
// A failed copy still consumes its counter value, so later indexes stay unique.
func (z *ZipChunker) AddFile(file *model.BackupFile, r io.Reader) error {
	z.counter++
	hdr := &zip.FileHeader{Name: strconv.Itoa(int(z.counter)), Method: zip.Deflate}
	ew, err := z.zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("creating zip entry: %w", err)
	}
	n, err := io.Copy(ew, r)
	if err != nil {
		return fmt.Errorf("copying %s into zip: %w", file.Name, err)
	}
	file.ZipIndex = z.counter
	z.pending += n
	z.files = append(z.files, file)
	return nil
}

// Flush finishes the archive, uploads it if needed and resets the chunker.
// present holds ids known to exist remotely; the zip is re-uploaded when its id is cached but not present.
// On success every file of the chunk references the zip's id.
func (z *ZipChunker) Flush(ctx context.Context, present map[string]struct{}) (*ZipChunk, error) {
	defer z.reset()

	if err := z.zw.Close(); err != nil {
		return nil, fmt.Errorf("closing zip: %w", err)
	}
	data := z.buf.Bytes()
	id := z.addresser.ContentAddress(data)

	var missing map[string]struct{}
	if _, ok := present[id]; !ok {
		missing = map[string]struct{}{id: {}}
	}
	written, size, err := z.writer.WriteZipChunk(ctx, id, data, missing)
	if err != nil {
		return nil, err
	}
	for _, f := range z.files {
		f.ChunkIDs = []string{id}
	}
	return &ZipChunk{ID: id, Files: z.files, Written: written, Size: size}, nil
}
