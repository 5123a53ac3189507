package testutil

import "chunkvault/internal/crypto"

// NewTestCrypto returns stream crypto and content addressing derived from a fixed key.
func NewTestCrypto() *crypto.Keys {
	return crypto.NewTestKeys()
}
