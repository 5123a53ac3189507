package cv

// Store bundles the collaborators shared by all chunk store components.
// Derived keys inside Crypto and Addresser are computed once at startup.
type Store struct {
	DB        Database
	Backends  BackendManager
	Folder    TopLevelFolder
	Crypto    StreamCrypto
	Addresser ContentAddresser
	Clock     Clock
	Logger    Logger
	Metrics   Metrics
}

func (s *Store) backend() Backend { return s.Backends.Backend() }
