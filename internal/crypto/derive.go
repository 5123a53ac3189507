package crypto

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// KeySize is the size of the main key and of every derived key.
const KeySize = 32

const (
	infoStreamKey  = "stream key"
	infoChunkIDKey = "chunk id key"
)

// deriveKey expands mainKey into a KeySize subkey bound to info.
func deriveKey(mainKey []byte, info string) ([]byte, error) {
	if len(mainKey) != KeySize {
		return nil, fmt.Errorf("main key has %d bytes, want %d", len(mainKey), KeySize)
	}
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, mainKey, nil, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("deriving %s: %w", info, err)
	}
	return key, nil
}
