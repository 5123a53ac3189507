package cv

// StreamCrypto encrypts whole objects with associated data.
// Encryption must be deterministic: equal plaintext and associated data give equal bytes,
// which is what makes re-invoked savers produce identical output.
type StreamCrypto interface {
	Encrypt(plaintext, associatedData []byte) ([]byte, error)
	// Decrypt returns an error wrapping ErrDecrypt when authentication fails.
	Decrypt(ciphertext, associatedData []byte) ([]byte, error)
}

// ContentAddresser derives a chunk id from plaintext with a keyed hash.
// Implementations must be safe for concurrent use.
type ContentAddresser interface {
	ContentAddress(plaintext []byte) string
}
