package cv

import "chunkvault/internal/model"

// ChunkCache is the persistent local index of known chunks.
// Every method is atomic on its own.
type ChunkCache interface {
	// Get returns the chunk, or nil if it is absent or marked corrupted.
	Get(id string) (*model.CachedChunk, error)

	// GetEvenIfCorrupted returns the chunk regardless of its corruption flag, or nil if absent.
	GetEvenIfCorrupted(id string) (*model.CachedChunk, error)

	// Insert adds a chunk. An existing row is left alone unless it is corrupted,
	// in which case the flag is cleared.
	Insert(chunk model.CachedChunk) error

	// IncrementRefCount and DecrementRefCount adjust ref counts in bounded batches.
	IncrementRefCount(ids []string) error
	DecrementRefCount(ids []string) error

	// UpdateSize overwrites size and version after a chunk was uploaded again.
	// Unknown ids are ignored.
	UpdateSize(id string, size int64, version byte) error

	// MarkCorrupted flags a chunk. Unknown ids are ignored.
	MarkCorrupted(id string) error

	// UnreferencedChunks returns chunks with a ref count <= 0.
	UnreferencedChunks() ([]model.CachedChunk, error)

	// AreAllAvailableChunksCached reports whether every id has a row, corrupted or not.
	AreAllAvailableChunksCached(ids []string) (bool, error)

	HasCorruptedChunks(ids []string) (bool, error)
	NumberOfCachedChunks(ids []string) (int, error)

	// SizeOfCachedChunks sums the size of all referenced chunks. This is the reported backup size.
	SizeOfCachedChunks() (int64, error)

	// ClearAndRepopulate replaces all rows with chunks in one transaction.
	ClearAndRepopulate(chunks []model.CachedChunk) error

	// DeleteChunks removes rows, used after their blobs were deleted remotely.
	DeleteChunks(ids []string) error
}

// FilesCache remembers how files were chunked last time.
type FilesCache interface {
	GetFile(path string) (*model.CachedFile, error)
	UpsertFile(file model.CachedFile) error
	UpdateLastSeen(paths []string, lastSeen int64) error
	// DeleteFilesNotSeenSince drops rows of files that have not been scanned since before.
	DeleteFilesNotSeenSince(before int64) (int64, error)
}

// OperationLog records CLI operations.
type OperationLog interface {
	CreateOperation(operation, parameters string) (*model.Operation, error)
	FinishOperation(id int64, status string) error
	ListOperations(limit int) ([]*model.Operation, error)
}

// Database bundles all local persistence.
type Database interface {
	ChunkCache
	FilesCache
	OperationLog

	// CheckMigrations verifies the schema is at the latest version.
	CheckMigrations() error

	Close() error
}
