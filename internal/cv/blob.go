package cv

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
)

// Version is the format version written in front of every blob and snapshot.
const Version byte = 0

// MaxVersion is the highest format version this build can read.
const MaxVersion = Version

const (
	adTypeChunk    byte = 0x00
	adTypeSnapshot byte = 0x01
)

// ChunkAssociatedData binds a blob's ciphertext to its chunk id and format version.
func ChunkAssociatedData(chunkID string, version byte) []byte {
	ad := make([]byte, 0, 2+len(chunkID))
	ad = append(ad, version, adTypeChunk)
	return append(ad, chunkID...)
}

// SnapshotAssociatedData binds a snapshot's ciphertext to its owner folder and start time.
func SnapshotAssociatedData(folder string, startTime int64, version byte) []byte {
	ad := make([]byte, 0, 3+len(folder)+8)
	ad = append(ad, version, adTypeSnapshot)
	ad = append(ad, folder...)
	ad = append(ad, 0x00)
	return binary.BigEndian.AppendUint64(ad, uint64(startTime))
}

// ReadVersion consumes the leading version byte of a stored object.
// If expected is non-nil the byte must match it.
func ReadVersion(r io.Reader, expected *byte) (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		if err == io.EOF {
			return 0, ErrFileEmpty
		}
		return 0, fmt.Errorf("reading version: %w", err)
	}
	v := b[0]
	if v > MaxVersion {
		return 0, &UnsupportedVersionError{Version: v}
	}
	if expected != nil && v != *expected {
		return 0, fmt.Errorf("%w: expected version %d, not %d", ErrDecrypt, *expected, v)
	}
	return v, nil
}

// sealBlob returns version || ciphertext.
func sealBlob(crypto StreamCrypto, plaintext, ad []byte) ([]byte, error) {
	ct, err := crypto.Encrypt(plaintext, ad)
	if err != nil {
		return nil, fmt.Errorf("encrypting: %w", err)
	}
	blob := make([]byte, 0, 1+len(ct))
	blob = append(blob, Version)
	return append(blob, ct...), nil
}

// openBlob reads a stored object and decrypts it. ad builds the associated data
// from the version byte actually read.
func openBlob(r io.Reader, crypto StreamCrypto, expected *byte, ad func(version byte) []byte) ([]byte, int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, 0, fmt.Errorf("reading blob: %w", err)
	}
	version, err := ReadVersion(bytes.NewReader(data), expected)
	if err != nil {
		return nil, int64(len(data)), err
	}
	plaintext, err := crypto.Decrypt(data[1:], ad(version))
	if err != nil {
		return nil, int64(len(data)), err
	}
	return plaintext, int64(len(data)), nil
}

// readChunk downloads and decrypts one blob. It returns the plaintext and the stored size.
func readChunk(ctx context.Context, s *Store, id string, expected *byte) ([]byte, int64, error) {
	rc, err := s.backend().Load(ctx, BlobHandle(s.Folder, id))
	if err != nil {
		return nil, 0, fmt.Errorf("loading chunk %s: %w", id, err)
	}
	defer rc.Close()

	plaintext, size, err := openBlob(rc, s.Crypto, expected, func(v byte) []byte {
		return ChunkAssociatedData(id, v)
	})
	if err != nil {
		return nil, size, fmt.Errorf("opening chunk %s: %w", id, err)
	}
	return plaintext, size, nil
}
