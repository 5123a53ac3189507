package backend

import (
	"os"

	"chunkvault/internal/cv"
)

// Manager exposes the active backend and what the app knows about where it lives.
type Manager struct {
	backend         cv.Backend
	requiresNetwork bool
	removable       bool
	root            string // only set for filesystem backends
}

func NewManager(backend cv.Backend, requiresNetwork, removable bool, root string) *Manager {
	return &Manager{
		backend:         backend,
		requiresNetwork: requiresNetwork,
		removable:       removable,
		root:            root,
	}
}

func (m *Manager) Backend() cv.Backend      { return m.backend }
func (m *Manager) RequiresNetwork() bool    { return m.requiresNetwork }
func (m *Manager) IsOnRemovableDrive() bool { return m.removable }

// CanDoBackupNow reports false while a removable drive is not mounted.
// Network backends always allow a backup; failures surface through the retry path.
func (m *Manager) CanDoBackupNow() bool {
	if !m.removable {
		return true
	}
	info, err := os.Stat(m.root)
	return err == nil && info.IsDir()
}

// Compile-time check that Manager implements cv.BackendManager interface
var _ cv.BackendManager = (*Manager)(nil)
