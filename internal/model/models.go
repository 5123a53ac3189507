package model

import (
	"database/sql"
	"sort"
	"time"
)

// Chunk is a content-defined slice of a file as produced by the chunker.
// ID is the keyed content address of the chunk's plaintext.
type Chunk struct {
	ID            string
	Offset        int64
	PlaintextSize int64
}

// CachedChunk is a row of the local chunk cache.
// Size is the stored blob length including the leading version byte.
type CachedChunk struct {
	ID        string
	RefCount  int64
	Size      int64
	Version   byte
	Corrupted bool
}

// CachedFile remembers how a local file was chunked the last time it was backed up,
// so unchanged files can be referenced again without re-reading them.
type CachedFile struct {
	Path         string
	Size         int64
	LastModified int64 // unix millis
	ChunkIDs     []string
	ZipIndex     int32 // 0 when the file is not part of a zip chunk
	LastSeen     int64 // unix millis
}

// FileKind separates the two file lists a snapshot carries.
type FileKind int

const (
	KindDocument FileKind = iota
	KindMedia
)

func (k FileKind) String() string {
	if k == KindMedia {
		return "media"
	}
	return "document"
}

// ParseFileKind maps a config value to a FileKind. Unknown values are documents.
func ParseFileKind(s string) FileKind {
	if s == "media" {
		return KindMedia
	}
	return KindDocument
}

// BackupFile is one file entry of a snapshot.
type BackupFile struct {
	Name         string
	RelativePath string
	Root         string
	Size         int64
	LastModified int64
	ChunkIDs     []string
	ZipIndex     int32
}

// BackupSnapshot is the manifest of one backup run. Snapshots are write-once.
type BackupSnapshot struct {
	Version       int32
	Name          string
	MediaFiles    []*BackupFile
	DocumentFiles []*BackupFile
	Size          int64
	TimeStart     int64 // unix millis, also the snapshot's identity
	TimeEnd       int64
}

// Files returns media files followed by document files.
func (s *BackupSnapshot) Files() []*BackupFile {
	files := make([]*BackupFile, 0, len(s.MediaFiles)+len(s.DocumentFiles))
	files = append(files, s.MediaFiles...)
	return append(files, s.DocumentFiles...)
}

// ChunkIDs returns the distinct chunk ids referenced by the snapshot, sorted.
func (s *BackupSnapshot) ChunkIDs() []string {
	seen := make(map[string]struct{})
	for _, f := range s.Files() {
		for _, id := range f.ChunkIDs {
			seen[id] = struct{}{}
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// StoredSnapshot identifies a snapshot on a backend.
type StoredSnapshot struct {
	Folder string
	Time   int64
}

// Operation is a recorded CLI operation.
type Operation struct {
	ID         int64
	Operation  string
	Parameters string
	StartedAt  time.Time
	FinishedAt sql.NullTime
	Status     string
}
