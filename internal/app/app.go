package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"chunkvault/internal/backend"
	"chunkvault/internal/chunker"
	"chunkvault/internal/config"
	"chunkvault/internal/crypto"
	"chunkvault/internal/cv"
	"chunkvault/internal/database"
	"chunkvault/internal/fs"
	"chunkvault/internal/metrics"
	"chunkvault/internal/model"
)

// CVApp is the application layer between the CLI and the chunk store.
// It constructs all dependencies from config, exposes high-level operations
// and manages the DB lifecycle on Close.
//
// The main key is only unlocked by operations that read or write stored objects.
type CVApp struct {
	cfg        *config.Config
	db         *database.SQLiteDatabase
	backends   *backend.Manager
	metrics    *metrics.Collector
	logger     cv.Logger
	logCloser  io.Closer
	clock      cv.Clock
	passphrase PassphraseFunc
	op         *Operation

	store     *cv.Store
	snapshots *cv.SnapshotRetriever
}

// Options tune NewCVApp. Zero values select the defaults.
type Options struct {
	// Passphrase unlocks the main key. Defaults to PromptPassphrase.
	Passphrase PassphraseFunc
	// Stderr receives log output next to the log file. Defaults to os.Stderr.
	Stderr io.Writer
	Clock  cv.Clock
}

// NewCVApp creates a fully wired CVApp from the given config.
// operation identifies the CLI command being run (e.g. "Backup", "Check").
// The caller must call Close when done.
func NewCVApp(ctx context.Context, cfg *config.Config, operation, parameters string, opts Options) (*CVApp, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if opts.Passphrase == nil {
		opts.Passphrase = PromptPassphrase("Passphrase: ")
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Clock == nil {
		opts.Clock = cv.RealClock{}
	}

	opID := opts.Clock.Now().UTC().Format("20060102T150405Z")
	l, logCloser, err := newLogger(cfg.LogDir, cfg.Log, opID, opts.Stderr)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: l}

	db, err := database.NewDatabaseFromConfig(cfg.Database, cfg.HostID, logger, opts.Clock)
	if err != nil {
		logCloser.Close()
		return nil, fmt.Errorf("creating database: %w", err)
	}
	if err := db.CheckMigrations(); err != nil {
		db.Close()
		logCloser.Close()
		return nil, fmt.Errorf("database schema out of date, run `cv db migrate`: %w", err)
	}

	collector := metrics.NewCollector()
	// Backups go to the first configured backend.
	mgr, err := backend.NewBackendFromConfig(ctx, cfg.Backends[0], cfg.Retry, logger, collector)
	if err != nil {
		db.Close()
		logCloser.Close()
		return nil, fmt.Errorf("creating backend: %w", err)
	}

	return &CVApp{
		cfg:        cfg,
		db:         db,
		backends:   mgr,
		metrics:    collector,
		logger:     logger,
		logCloser:  logCloser,
		clock:      opts.Clock,
		passphrase: opts.Passphrase,
		op:         NewOperation(operation, parameters),
	}, nil
}

// unlock derives the keys and builds the store on first use.
func (a *CVApp) unlock() (*cv.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	ks, err := crypto.NewKeyStoreFromConfig(a.cfg.Encryption)
	if err != nil {
		return nil, fmt.Errorf("creating key store: %w", err)
	}
	if !ks.IsConfigured() {
		return nil, fmt.Errorf("no main key found, run `cv key init`")
	}
	passphrase, err := a.passphrase()
	if err != nil {
		return nil, err
	}
	mainKey, err := ks.Unlock(passphrase)
	if err != nil {
		return nil, fmt.Errorf("unlocking main key: %w", err)
	}
	keys, err := crypto.DeriveKeys(mainKey)
	clear(mainKey)
	if err != nil {
		return nil, fmt.Errorf("deriving keys: %w", err)
	}

	a.store = &cv.Store{
		DB:        a.db,
		Backends:  a.backends,
		Folder:    cv.FolderForHost(a.cfg.HostID),
		Crypto:    keys.Stream,
		Addresser: keys.Addresser,
		Clock:     a.clock,
		Logger:    a.logger,
		Metrics:   a.metrics,
	}
	a.snapshots = cv.NewSnapshotRetriever(a.store)
	return a.store, nil
}

// persistOperation saves the operation to the database, giving it an auto-increment ID.
// This should only be called for DB-mutating commands.
func (a *CVApp) persistOperation() error {
	if a.op.Persisted() {
		return nil
	}
	dbOp, err := a.db.CreateOperation(a.op.Operation, a.op.Parameters)
	if err != nil {
		return fmt.Errorf("persisting operation: %w", err)
	}
	a.op.ID = dbOp.ID
	return nil
}

// Backup scans the configured roots and backs up everything that changed.
func (a *CVApp) Backup(ctx context.Context) (*cv.BackupResult, error) {
	if err := a.persistOperation(); err != nil {
		return nil, err
	}
	store, err := a.unlock()
	if err != nil {
		return nil, a.op.Record(err)
	}

	ch, err := chunker.New(store.Addresser, a.cfg.Backup.ChunkSizeMax)
	if err != nil {
		return nil, a.op.Record(fmt.Errorf("creating chunker: %w", err))
	}
	roots := make([]fs.Root, len(a.cfg.Filesystem.Roots))
	for i, r := range a.cfg.Filesystem.Roots {
		roots[i] = fs.Root{Path: r.Path, Kind: model.ParseFileKind(r.Kind)}
	}
	scanner := fs.NewOSScanner(roots, a.cfg.Filesystem.Ignore, a.logger)

	writer := cv.NewChunkWriter(store)
	b := cv.NewBackup(store, scanner, ch, writer, cv.NewRepopulater(store, a.snapshots), cv.BackupOptions{
		ChunkSizeMax:     a.cfg.Backup.ChunkSizeMax,
		SmallFileSizeMax: a.cfg.Backup.SmallFileMax,
	})
	res, err := b.Run(ctx)
	if err != nil {
		return nil, a.op.Record(err)
	}
	if res.FilesFailed > 0 {
		a.op.Record(fmt.Errorf("%d files failed", res.FilesFailed))
	} else {
		a.metrics.Succeeded("backup", a.clock.Now().Unix())
	}
	return res, nil
}

// Check verifies percent of the backup. percent <= 0 selects the configured default.
func (a *CVApp) Check(ctx context.Context, percent int, observer cv.CheckObserver) (*cv.CheckResult, error) {
	if err := a.persistOperation(); err != nil {
		return nil, err
	}
	store, err := a.unlock()
	if err != nil {
		return nil, a.op.Record(err)
	}
	if percent <= 0 {
		percent = a.cfg.Check.Percent
	}

	checker := cv.NewChecker(store, a.snapshots, cv.NewRepopulater(store, a.snapshots), a.cfg.Check.NetworkConcurrency)
	res := checker.Check(ctx, percent, observer)
	switch res.Status {
	case cv.CheckSuccess:
		a.metrics.Succeeded("check", a.clock.Now().Unix())
	case cv.CheckError:
		a.op.Record(errors.New("check found errors"))
	case cv.CheckGeneralError:
		a.op.Record(res.Err)
	}
	return res, nil
}

// SnapshotInfo is one entry of ListSnapshots. Snapshot is nil when it could not be read.
type SnapshotInfo struct {
	Stored   model.StoredSnapshot
	Snapshot *model.BackupSnapshot
	Err      error
}

// ListSnapshots returns all stored snapshots of this host, newest first.
func (a *CVApp) ListSnapshots(ctx context.Context) ([]SnapshotInfo, error) {
	if _, err := a.unlock(); err != nil {
		return nil, err
	}
	stored, err := a.snapshots.List(ctx)
	if err != nil {
		return nil, err
	}
	infos := make([]SnapshotInfo, len(stored))
	for i, st := range stored {
		infos[i].Stored = st
		infos[i].Snapshot, infos[i].Err = a.snapshots.Load(ctx, st)
	}
	return infos, nil
}

// RemoveSnapshot prunes the snapshot started at startTime (unix millis).
func (a *CVApp) RemoveSnapshot(ctx context.Context, startTime int64) (*cv.PruneResult, error) {
	if err := a.persistOperation(); err != nil {
		return nil, err
	}
	store, err := a.unlock()
	if err != nil {
		return nil, a.op.Record(err)
	}
	res, err := cv.NewPruner(store, a.snapshots).RemoveSnapshot(ctx, startTime)
	return res, a.op.Record(err)
}

// Restore writes the snapshot started at startTime below destDir.
func (a *CVApp) Restore(ctx context.Context, startTime int64, destDir string) (*cv.RestoreResult, error) {
	if err := a.persistOperation(); err != nil {
		return nil, err
	}
	store, err := a.unlock()
	if err != nil {
		return nil, a.op.Record(err)
	}
	res, err := cv.NewRestorer(store, a.snapshots).Restore(ctx, startTime, destDir)
	if err == nil && res.FilesFailed > 0 {
		a.op.Record(fmt.Errorf("%d files failed", res.FilesFailed))
	}
	return res, a.op.Record(err)
}

// BackupSize is the stored size of all referenced chunks according to the local cache.
func (a *CVApp) BackupSize() (int64, error) {
	return a.db.SizeOfCachedChunks()
}

// GetHistory returns the most recent operations.
func (a *CVApp) GetHistory(limit int) ([]*model.Operation, error) {
	return a.db.ListOperations(limit)
}

// Close finalizes the operation and closes all resources.
// Metrics are written to the configured textfile even when the operation failed.
func (a *CVApp) Close() error {
	var errs []error

	if a.op.Persisted() {
		if err := a.db.FinishOperation(a.op.ID, a.op.Status); err != nil {
			errs = append(errs, fmt.Errorf("finishing operation: %w", err))
		}
	}
	if a.cfg.MetricsFile != "" {
		if err := a.metrics.WriteToTextfile(a.cfg.MetricsFile); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing database: %w", err))
	}
	if a.logCloser != nil {
		a.logCloser.Close()
	}
	return errors.Join(errs...)
}

// InitKey creates the passphrase-protected main key.
func InitKey(cfg *config.Config, passphrase string) error {
	ks, err := crypto.NewKeyStoreFromConfig(cfg.Encryption)
	if err != nil {
		return fmt.Errorf("creating key store: %w", err)
	}
	return ks.Setup(passphrase)
}

// MigrateDatabase applies pending migrations to the configured database.
func MigrateDatabase(cfg *config.Config) error {
	db, err := database.NewDatabaseFromConfig(cfg.Database, cfg.HostID, nil, nil)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()
	return db.Migrate()
}

// DatabaseSchema returns the schema of the configured database.
func DatabaseSchema(cfg *config.Config) (string, error) {
	db, err := database.NewDatabaseFromConfig(cfg.Database, cfg.HostID, nil, nil)
	if err != nil {
		return "", fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()
	return db.Schema()
}
