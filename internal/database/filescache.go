package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"chunkvault/internal/model"
)

// Chunk ids are hex, so a comma is a safe separator.
const chunkIDSeparator = ","

func (s *SQLiteDatabase) GetFile(path string) (*model.CachedFile, error) {
	var f model.CachedFile
	var ids string
	err := s.db.QueryRow(
		"SELECT path, size, last_modified, chunk_ids, zip_index, last_seen FROM cached_files WHERE path = ?", path,
	).Scan(&f.Path, &f.Size, &f.LastModified, &ids, &f.ZipIndex, &f.LastSeen)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("getting cached file %s: %w", path, err)
	}
	if ids != "" {
		f.ChunkIDs = strings.Split(ids, chunkIDSeparator)
	}
	return &f, nil
}

// UpsertFile stores how a file was chunked. last_seen never moves backwards.
func (s *SQLiteDatabase) UpsertFile(file model.CachedFile) error {
	_, err := s.db.Exec(`
		INSERT INTO cached_files (path, size, last_modified, chunk_ids, zip_index, last_seen)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			size = excluded.size,
			last_modified = excluded.last_modified,
			chunk_ids = excluded.chunk_ids,
			zip_index = excluded.zip_index,
			last_seen = MAX(last_seen, excluded.last_seen)`,
		file.Path, file.Size, file.LastModified, strings.Join(file.ChunkIDs, chunkIDSeparator), file.ZipIndex, file.LastSeen)
	if err != nil {
		return fmt.Errorf("upserting cached file %s: %w", file.Path, err)
	}
	return nil
}

func (s *SQLiteDatabase) UpdateLastSeen(paths []string, lastSeen int64) error {
	return s.inTx(func(tx *sql.Tx) error {
		return inBatches(paths, func(batch []string) error {
			q := "UPDATE cached_files SET last_seen = ? WHERE path IN (" + placeholders(len(batch)) + ")"
			if _, err := tx.Exec(q, args(batch, lastSeen)...); err != nil {
				return fmt.Errorf("updating last seen: %w", err)
			}
			return nil
		})
	})
}

func (s *SQLiteDatabase) DeleteFilesNotSeenSince(before int64) (int64, error) {
	res, err := s.db.Exec("DELETE FROM cached_files WHERE last_seen < ?", before)
	if err != nil {
		return 0, fmt.Errorf("deleting unseen files: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting deleted files: %w", err)
	}
	return n, nil
}
