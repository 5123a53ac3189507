package cv

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"path"
	"slices"
	"strconv"
	"strings"
)

// FileType distinguishes the two kinds of objects a backend stores per owner.
type FileType int

const (
	FileTypeBlob FileType = iota
	FileTypeSnapshot
)

func (t FileType) String() string {
	switch t {
	case FileTypeBlob:
		return "blob"
	case FileTypeSnapshot:
		return "snapshot"
	default:
		return fmt.Sprintf("FileType(%d)", int(t))
	}
}

const (
	folderSuffix   = ".cv"
	snapshotSuffix = ".snapshot"
)

// TopLevelFolder is the per-owner namespace on a backend.
type TopLevelFolder struct {
	Name string
}

// FolderForHost returns the namespace folder of a host.
func FolderForHost(hostID string) TopLevelFolder {
	return TopLevelFolder{Name: hostID + folderSuffix}
}

// FileHandle names one object on a backend.
type FileHandle struct {
	Type   FileType
	Folder TopLevelFolder
	Name   string
}

// BlobHandle returns the handle of the blob storing chunkID.
func BlobHandle(folder TopLevelFolder, chunkID string) FileHandle {
	return FileHandle{Type: FileTypeBlob, Folder: folder, Name: chunkID}
}

// SnapshotHandle returns the handle of the snapshot started at startTime (unix millis).
func SnapshotHandle(folder TopLevelFolder, startTime int64) FileHandle {
	return FileHandle{Type: FileTypeSnapshot, Folder: folder, Name: strconv.FormatInt(startTime, 10) + snapshotSuffix}
}

// SnapshotTime returns the start time encoded in a snapshot handle's name.
func (h FileHandle) SnapshotTime() (int64, error) {
	if h.Type != FileTypeSnapshot {
		return 0, fmt.Errorf("not a snapshot handle: %s", h.Path())
	}
	return strconv.ParseInt(strings.TrimSuffix(h.Name, snapshotSuffix), 10, 64)
}

// Path returns the slash-separated object path relative to the backend root.
// Blobs are sharded by the first two characters of their id:
//
//	<folder>/<id[0:2]>/<id>
//	<folder>/<start>.snapshot
func (h FileHandle) Path() string {
	if h.Type == FileTypeBlob && len(h.Name) >= 2 {
		return path.Join(h.Folder.Name, h.Name[:2], h.Name)
	}
	return path.Join(h.Folder.Name, h.Name)
}

// ParseHandle maps an object path relative to the backend root back to a handle.
// It returns false for paths that are not chunk store objects (temp files, foreign data).
func ParseHandle(p string) (FileHandle, bool) {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	if len(parts) == 0 || !strings.HasSuffix(parts[0], folderSuffix) {
		return FileHandle{}, false
	}
	folder := TopLevelFolder{Name: parts[0]}

	switch len(parts) {
	case 2:
		name := parts[1]
		if !strings.HasSuffix(name, snapshotSuffix) {
			return FileHandle{}, false
		}
		if _, err := strconv.ParseInt(strings.TrimSuffix(name, snapshotSuffix), 10, 64); err != nil {
			return FileHandle{}, false
		}
		return FileHandle{Type: FileTypeSnapshot, Folder: folder, Name: name}, true
	case 3:
		shard, name := parts[1], parts[2]
		if len(name) < 2 || name[:2] != shard || !isHex(name) {
			return FileHandle{}, false
		}
		return FileHandle{Type: FileTypeBlob, Folder: folder, Name: name}, true
	default:
		return FileHandle{}, false
	}
}

func isHex(s string) bool {
	_, err := hex.DecodeString(s)
	return err == nil
}

// FileInfo is one entry of a backend listing. Listings are the ground truth of what exists remotely.
type FileInfo struct {
	Handle FileHandle
	Size   int64
}

// Saver produces the bytes of one object. Backends may invoke Save more than once
// when an attempt fails, so every invocation must write identical bytes.
type Saver interface {
	Size() int64
	// SHA256 returns the hex digest of the bytes, or "" when unknown.
	SHA256() string
	Save(w io.Writer) (int64, error)
}

// BufferSaver is a re-invocable Saver over an in-memory byte slice.
type BufferSaver struct {
	data []byte
	sum  string
}

// NewBufferSaver returns a Saver over data. The slice must not be modified afterwards.
func NewBufferSaver(data []byte) *BufferSaver {
	sum := sha256.Sum256(data)
	return &BufferSaver{data: data, sum: hex.EncodeToString(sum[:])}
}

func (s *BufferSaver) Size() int64    { return int64(len(s.data)) }
func (s *BufferSaver) SHA256() string { return s.sum }

func (s *BufferSaver) Save(w io.Writer) (int64, error) {
	return io.Copy(w, bytes.NewReader(s.data))
}

// Backend is a remote object store keyed by typed file handles.
// All methods except IsTransient may block on I/O.
type Backend interface {
	// Test reports whether the backend is reachable and usable.
	Test(ctx context.Context) (bool, error)

	// FreeSpace returns the available space in bytes. ok is false when the backend cannot tell.
	FreeSpace(ctx context.Context) (free int64, ok bool, err error)

	// Save stores the saver's bytes under h, replacing any existing object atomically.
	// It returns the number of bytes written.
	Save(ctx context.Context, h FileHandle, s Saver) (int64, error)

	// Load opens the object stored under h. Missing objects yield an error wrapping ErrNotFound.
	Load(ctx context.Context, h FileHandle) (io.ReadCloser, error)

	// List calls fn once per object in folder whose type is in types.
	List(ctx context.Context, folder TopLevelFolder, types []FileType, fn func(FileInfo) error) error

	// Remove deletes the object stored under h.
	Remove(ctx context.Context, h FileHandle) error

	// Rename moves every object of one folder into another.
	Rename(ctx context.Context, from, to TopLevelFolder) error

	// RemoveAll deletes everything the backend stores. Used by tests.
	RemoveAll(ctx context.Context) error

	// IsTransient reports whether err is likely to go away on retry.
	IsTransient(err error) bool
}

// BackendManager exposes the active backend together with its properties.
type BackendManager interface {
	Backend() Backend
	RequiresNetwork() bool
	IsOnRemovableDrive() bool
	// CanDoBackupNow is cheap and may change between calls.
	CanDoBackupNow() bool
}

// MatchesTypes reports whether t passes a List type filter. An empty filter matches everything.
func MatchesTypes(types []FileType, t FileType) bool {
	return len(types) == 0 || slices.Contains(types, t)
}
