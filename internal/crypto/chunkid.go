package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"chunkvault/internal/cv"
)

// ChunkIDAddresser computes chunk ids as hex(HMAC-SHA256(chunkIDKey, plaintext)).
type ChunkIDAddresser struct {
	key []byte
}

var _ cv.ContentAddresser = (*ChunkIDAddresser)(nil)

func NewChunkIDAddresser(mainKey []byte) (*ChunkIDAddresser, error) {
	key, err := deriveKey(mainKey, infoChunkIDKey)
	if err != nil {
		return nil, err
	}
	return &ChunkIDAddresser{key: key}, nil
}

// ContentAddress is safe for concurrent use; each call uses its own MAC.
func (a *ChunkIDAddresser) ContentAddress(plaintext []byte) string {
	mac := hmac.New(sha256.New, a.key)
	mac.Write(plaintext)
	return hex.EncodeToString(mac.Sum(nil))
}
