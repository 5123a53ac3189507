// Package chunker splits streams into content-defined chunks with a rolling Rabin fingerprint.
package chunker

import (
	"errors"
	"fmt"
	"io"

	"github.com/restic/chunker"

	"chunkvault/internal/cv"
	"chunkvault/internal/model"
)

// Polynomial is fixed so that equal content produces equal boundaries on every
// host and in every run. Changing it would stop all deduplication against older snapshots.
const Polynomial = chunker.Pol(0x3DA3358B4DC173)

// MinSize is the smallest chunk cut before the end of a stream.
const MinSize = chunker.MinSize

// RabinChunker implements cv.Chunker.
type RabinChunker struct {
	addresser cv.ContentAddresser
	min, max  uint
}

var _ cv.Chunker = (*RabinChunker)(nil)

// New returns a chunker whose chunks never exceed maxSize bytes.
func New(addresser cv.ContentAddresser, maxSize int64) (*RabinChunker, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("invalid chunk size max %d", maxSize)
	}
	maxSz := uint(maxSize)
	minSz := uint(MinSize)
	if minSz >= maxSz {
		minSz = maxSz / 2
	}
	return &RabinChunker{addresser: addresser, min: minSz, max: maxSz}, nil
}

// Chunk reads r to the end. An empty stream yields no chunks.
func (c *RabinChunker) Chunk(r io.Reader) ([]model.Chunk, error) {
	ch := chunker.NewWithBoundaries(r, Polynomial, c.min, c.max)
	buf := make([]byte, c.max)

	var chunks []model.Chunk
	var offset int64
	for {
		next, err := ch.Next(buf)
		if errors.Is(err, io.EOF) {
			return chunks, nil
		}
		if err != nil {
			return nil, fmt.Errorf("chunking at offset %d: %w", offset, err)
		}
		chunks = append(chunks, model.Chunk{
			ID:            c.addresser.ContentAddress(next.Data),
			Offset:        offset,
			PlaintextSize: int64(next.Length),
		})
		offset += int64(next.Length)
	}
}
