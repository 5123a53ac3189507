package crypto

import (
	"fmt"

	"chunkvault/internal/config"
)

// NewKeyStoreFromConfig creates a KeyStore based on the configuration type.
func NewKeyStoreFromConfig(cfg config.EncryptionConfig) (KeyStore, error) {
	switch cfg.Type {
	case "age", "":
		if cfg.KeyPath == "" {
			return nil, fmt.Errorf("encryption key_path is not set")
		}
		return NewAgeKeyStore(cfg.KeyPath), nil
	case "test":
		return TestKeyStore{}, nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}

// Keys holds everything derived from an unlocked main key.
type Keys struct {
	Stream    *StreamCrypto
	Addresser *ChunkIDAddresser
}

// DeriveKeys computes the stream and chunk id keys once, for the lifetime of an operation.
func DeriveKeys(mainKey []byte) (*Keys, error) {
	stream, err := NewStreamCrypto(mainKey)
	if err != nil {
		return nil, err
	}
	addresser, err := NewChunkIDAddresser(mainKey)
	if err != nil {
		return nil, err
	}
	return &Keys{Stream: stream, Addresser: addresser}, nil
}

// NewTestKeys derives keys from the fixed test key.
func NewTestKeys() *Keys {
	keys, err := DeriveKeys(testKey)
	if err != nil {
		panic(err)
	}
	return keys
}
