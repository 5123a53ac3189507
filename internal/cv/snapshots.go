package cv

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"chunkvault/internal/model"
)

// remoteState is one listing of the owner folder.
type remoteState struct {
	snapshots []model.StoredSnapshot
	available map[string]int64 // chunk id -> stored size
}

func (st *remoteState) availableIDs() []string {
	ids := make([]string, 0, len(st.available))
	for id := range st.available {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// listRemote lists snapshots and/or blobs of the store's folder.
func listRemote(ctx context.Context, s *Store, types ...FileType) (*remoteState, error) {
	st := &remoteState{available: make(map[string]int64)}
	err := s.backend().List(ctx, s.Folder, types, func(fi FileInfo) error {
		switch fi.Handle.Type {
		case FileTypeSnapshot:
			t, err := fi.Handle.SnapshotTime()
			if err != nil {
				s.Logger.Warn("ignoring snapshot with invalid name", "name", fi.Handle.Name)
				return nil
			}
			st.snapshots = append(st.snapshots, model.StoredSnapshot{Folder: fi.Handle.Folder.Name, Time: t})
		case FileTypeBlob:
			st.available[fi.Handle.Name] = fi.Size
		default:
			return fmt.Errorf("unexpected file handle: %s", fi.Handle.Path())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(st.snapshots, func(i, j int) bool { return st.snapshots[i].Time > st.snapshots[j].Time })
	return st, nil
}

// SnapshotRetriever lists and decrypts snapshot manifests.
type SnapshotRetriever struct {
	store *Store
}

func NewSnapshotRetriever(store *Store) *SnapshotRetriever {
	return &SnapshotRetriever{store: store}
}

// List returns the stored snapshots, newest first.
func (r *SnapshotRetriever) List(ctx context.Context) ([]model.StoredSnapshot, error) {
	st, err := listRemote(ctx, r.store, FileTypeSnapshot)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	return st.snapshots, nil
}

// Load downloads, decrypts and parses one snapshot.
func (r *SnapshotRetriever) Load(ctx context.Context, stored model.StoredSnapshot) (*model.BackupSnapshot, error) {
	folder := TopLevelFolder{Name: stored.Folder}
	rc, err := r.store.backend().Load(ctx, SnapshotHandle(folder, stored.Time))
	if err != nil {
		return nil, fmt.Errorf("loading snapshot %d: %w", stored.Time, err)
	}
	defer rc.Close()

	plaintext, _, err := openBlob(rc, r.store.Crypto, nil, func(v byte) []byte {
		return SnapshotAssociatedData(stored.Folder, stored.Time, v)
	})
	if err != nil {
		return nil, fmt.Errorf("opening snapshot %d: %w", stored.Time, err)
	}
	snapshot, err := model.UnmarshalSnapshot(plaintext)
	if err != nil {
		return nil, fmt.Errorf("parsing snapshot %d: %w: %w", stored.Time, ErrMalformed, err)
	}
	return snapshot, nil
}

// loadAll loads every stored snapshot, skipping unreadable ones.
// Permanent failures (wrong key, corruption, empty file, newer version, vanished object) are
// skipped with a warning. Any other failure is returned, since it may be transient.
func (r *SnapshotRetriever) loadAll(ctx context.Context, stored []model.StoredSnapshot) ([]*model.BackupSnapshot, error) {
	var snapshots []*model.BackupSnapshot
	for _, st := range stored {
		snapshot, err := r.Load(ctx, st)
		if err != nil {
			if !IsPermanentReadError(err) {
				return nil, err
			}
			r.store.Logger.Warn("skipping unreadable snapshot", "snapshot", st.Time, "error", err)
			continue
		}
		snapshots = append(snapshots, snapshot)
	}
	return snapshots, nil
}

// IsPermanentReadError reports whether reading an object failed in a way retrying cannot fix.
func IsPermanentReadError(err error) bool {
	var uv *UnsupportedVersionError
	return errors.Is(err, ErrDecrypt) ||
		errors.Is(err, ErrMalformed) ||
		errors.Is(err, ErrFileEmpty) ||
		errors.Is(err, ErrNotFound) ||
		errors.As(err, &uv)
}

// saveSnapshot encrypts and stores a snapshot under its start time.
func saveSnapshot(ctx context.Context, s *Store, snapshot *model.BackupSnapshot) (int64, error) {
	ad := SnapshotAssociatedData(s.Folder.Name, snapshot.TimeStart, Version)
	plaintext, err := model.MarshalSnapshot(snapshot)
	if err != nil {
		return 0, err
	}
	blob, err := sealBlob(s.Crypto, plaintext, ad)
	if err != nil {
		return 0, fmt.Errorf("sealing snapshot: %w", err)
	}
	n, err := s.backend().Save(ctx, SnapshotHandle(s.Folder, snapshot.TimeStart), NewBufferSaver(blob))
	if err != nil {
		return 0, fmt.Errorf("saving snapshot: %w", err)
	}
	s.Metrics.SnapshotWritten()
	return n, nil
}
