package testutil

import (
	"testing"

	"chunkvault/internal/cv"
)

// TestHostID owns the folder test stores write to.
const TestHostID = "test-host"

// NewTestStore wires a Store over b with an in-memory database, fixed test keys,
// a fixed clock and no logging.
func NewTestStore(t *testing.T, b cv.Backend) (*cv.Store, *StubBackendManager) {
	t.Helper()
	keys := NewTestCrypto()
	mgr := NewStubBackendManager(b)
	return &cv.Store{
		DB:        NewTestDatabase(t),
		Backends:  mgr,
		Folder:    cv.FolderForHost(TestHostID),
		Crypto:    keys.Stream,
		Addresser: keys.Addresser,
		Clock:     FixedClock(),
		Logger:    cv.NewNopLogger(),
		Metrics:   cv.NopMetrics{},
	}, mgr
}
