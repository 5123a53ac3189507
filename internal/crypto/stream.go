package crypto

import (
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"chunkvault/internal/cv"
)

// StreamCrypto is a deterministic AEAD: XChaCha20-Poly1305 with a synthetic nonce
// computed as HMAC-SHA256(nonceKey, ad || plaintext). Output is nonce || sealed.
type StreamCrypto struct {
	aead     cipher.AEAD
	nonceKey []byte
}

var _ cv.StreamCrypto = (*StreamCrypto)(nil)

// NewStreamCrypto derives the stream key from mainKey and splits it into
// an encryption key and a nonce key.
func NewStreamCrypto(mainKey []byte) (*StreamCrypto, error) {
	streamKey, err := deriveKey(mainKey, infoStreamKey)
	if err != nil {
		return nil, err
	}
	keys := make([]byte, 2*KeySize)
	if _, err := io.ReadFull(hkdf.Expand(sha256.New, streamKey, []byte("split")), keys); err != nil {
		return nil, fmt.Errorf("splitting stream key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(keys[:KeySize])
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	return &StreamCrypto{aead: aead, nonceKey: keys[KeySize:]}, nil
}

func (c *StreamCrypto) nonce(plaintext, associatedData []byte) []byte {
	mac := hmac.New(sha256.New, c.nonceKey)
	mac.Write(associatedData)
	mac.Write(plaintext)
	return mac.Sum(nil)[:c.aead.NonceSize()]
}

func (c *StreamCrypto) Encrypt(plaintext, associatedData []byte) ([]byte, error) {
	nonce := c.nonce(plaintext, associatedData)
	out := make([]byte, 0, len(nonce)+len(plaintext)+c.aead.Overhead())
	out = append(out, nonce...)
	return c.aead.Seal(out, nonce, plaintext, associatedData), nil
}

func (c *StreamCrypto) Decrypt(ciphertext, associatedData []byte) ([]byte, error) {
	n := c.aead.NonceSize()
	if len(ciphertext) < n+c.aead.Overhead() {
		return nil, fmt.Errorf("%w: ciphertext too short (%d bytes)", cv.ErrDecrypt, len(ciphertext))
	}
	plaintext, err := c.aead.Open(nil, ciphertext[:n], ciphertext[n:], associatedData)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", cv.ErrDecrypt, err)
	}
	return plaintext, nil
}
