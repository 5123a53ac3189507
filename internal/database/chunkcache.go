package database

import (
	"database/sql"
	"errors"
	"fmt"

	"chunkvault/internal/model"
)

const chunkColumns = "id, ref_count, size, version, corrupted"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChunk(row rowScanner) (*model.CachedChunk, error) {
	var c model.CachedChunk
	var version int64
	if err := row.Scan(&c.ID, &c.RefCount, &c.Size, &version, &c.Corrupted); err != nil {
		return nil, err
	}
	c.Version = byte(version)
	return &c, nil
}

func (s *SQLiteDatabase) getChunk(query, id string) (*model.CachedChunk, error) {
	c, err := scanChunk(s.db.QueryRow(query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("getting chunk %s: %w", id, err)
	}
	return c, nil
}

func (s *SQLiteDatabase) Get(id string) (*model.CachedChunk, error) {
	return s.getChunk("SELECT "+chunkColumns+" FROM cached_chunks WHERE id = ? AND corrupted = 0", id)
}

func (s *SQLiteDatabase) GetEvenIfCorrupted(id string) (*model.CachedChunk, error) {
	return s.getChunk("SELECT "+chunkColumns+" FROM cached_chunks WHERE id = ?", id)
}

// Insert adds a chunk or, if a corrupted row exists for its id, clears the flag.
// A re-uploaded chunk replaces the size and version of the corrupted row.
func (s *SQLiteDatabase) Insert(chunk model.CachedChunk) error {
	return s.inTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(
			"INSERT OR IGNORE INTO cached_chunks ("+chunkColumns+") VALUES (?, ?, ?, ?, 0)",
			chunk.ID, chunk.RefCount, chunk.Size, int64(chunk.Version))
		if err != nil {
			return fmt.Errorf("inserting chunk %s: %w", chunk.ID, err)
		}
		if n, err := res.RowsAffected(); err != nil || n > 0 {
			return err
		}

		existing, err := scanChunk(tx.QueryRow("SELECT "+chunkColumns+" FROM cached_chunks WHERE id = ?", chunk.ID))
		if err != nil {
			return fmt.Errorf("reading existing chunk %s: %w", chunk.ID, err)
		}
		if existing.Size != chunk.Size {
			s.logger.Warn("inserted chunk with different size", "chunk", chunk.ID,
				"cached_size", existing.Size, "size", chunk.Size, "corrupted", existing.Corrupted)
		}
		if !existing.Corrupted {
			return nil
		}
		_, err = tx.Exec("UPDATE cached_chunks SET corrupted = 0, size = ?, version = ? WHERE id = ?",
			chunk.Size, int64(chunk.Version), chunk.ID)
		if err != nil {
			return fmt.Errorf("clearing corrupted flag of %s: %w", chunk.ID, err)
		}
		s.logger.Info("cleared corrupted flag", "chunk", chunk.ID)
		return nil
	})
}

func (s *SQLiteDatabase) IncrementRefCount(ids []string) error {
	return s.adjustRefCount(ids, "+")
}

func (s *SQLiteDatabase) DecrementRefCount(ids []string) error {
	return s.adjustRefCount(ids, "-")
}

func (s *SQLiteDatabase) adjustRefCount(ids []string, op string) error {
	ids = distinct(ids)
	return s.inTx(func(tx *sql.Tx) error {
		return inBatches(ids, func(batch []string) error {
			q := "UPDATE cached_chunks SET ref_count = ref_count " + op + " 1 WHERE id IN (" + placeholders(len(batch)) + ")"
			if _, err := tx.Exec(q, args(batch)...); err != nil {
				return fmt.Errorf("updating ref counts: %w", err)
			}
			return nil
		})
	})
}

func (s *SQLiteDatabase) UpdateSize(id string, size int64, version byte) error {
	if _, err := s.db.Exec("UPDATE cached_chunks SET size = ?, version = ? WHERE id = ?", size, int64(version), id); err != nil {
		return fmt.Errorf("updating size of chunk %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteDatabase) MarkCorrupted(id string) error {
	if _, err := s.db.Exec("UPDATE cached_chunks SET corrupted = 1 WHERE id = ?", id); err != nil {
		return fmt.Errorf("marking chunk %s corrupted: %w", id, err)
	}
	return nil
}

func (s *SQLiteDatabase) UnreferencedChunks() ([]model.CachedChunk, error) {
	rows, err := s.db.Query("SELECT " + chunkColumns + " FROM cached_chunks WHERE ref_count <= 0 ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("listing unreferenced chunks: %w", err)
	}
	defer rows.Close()

	var chunks []model.CachedChunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		chunks = append(chunks, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing unreferenced chunks: %w", err)
	}
	return chunks, nil
}

// countIn counts rows of cached_chunks whose id is in ids, with an optional extra condition.
func (s *SQLiteDatabase) countIn(ids []string, cond string) (int, error) {
	total := 0
	err := inBatches(ids, func(batch []string) error {
		q := "SELECT COUNT(*) FROM cached_chunks WHERE id IN (" + placeholders(len(batch)) + ")" + cond
		var n int
		if err := s.db.QueryRow(q, args(batch)...).Scan(&n); err != nil {
			return err
		}
		total += n
		return nil
	})
	return total, err
}

// AreAllAvailableChunksCached counts corrupted rows too: only a missing row means the cache is stale.
func (s *SQLiteDatabase) AreAllAvailableChunksCached(ids []string) (bool, error) {
	ids = distinct(ids)
	n, err := s.countIn(ids, "")
	if err != nil {
		return false, fmt.Errorf("counting cached chunks: %w", err)
	}
	return n == len(ids), nil
}

func (s *SQLiteDatabase) HasCorruptedChunks(ids []string) (bool, error) {
	n, err := s.countIn(distinct(ids), " AND corrupted = 1")
	if err != nil {
		return false, fmt.Errorf("counting corrupted chunks: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteDatabase) NumberOfCachedChunks(ids []string) (int, error) {
	n, err := s.countIn(distinct(ids), "")
	if err != nil {
		return 0, fmt.Errorf("counting cached chunks: %w", err)
	}
	return n, nil
}

func (s *SQLiteDatabase) SizeOfCachedChunks() (int64, error) {
	var size int64
	if err := s.db.QueryRow("SELECT COALESCE(SUM(size), 0) FROM cached_chunks WHERE ref_count > 0").Scan(&size); err != nil {
		return 0, fmt.Errorf("summing chunk sizes: %w", err)
	}
	return size, nil
}

// ClearAndRepopulate replaces the whole table in one transaction,
// so readers see either the old or the new contents.
func (s *SQLiteDatabase) ClearAndRepopulate(chunks []model.CachedChunk) error {
	return s.inTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM cached_chunks"); err != nil {
			return fmt.Errorf("clearing chunk cache: %w", err)
		}
		stmt, err := tx.Prepare("INSERT INTO cached_chunks (" + chunkColumns + ") VALUES (?, ?, ?, ?, ?)")
		if err != nil {
			return fmt.Errorf("preparing insert: %w", err)
		}
		defer stmt.Close()

		for _, c := range chunks {
			if _, err := stmt.Exec(c.ID, c.RefCount, c.Size, int64(c.Version), c.Corrupted); err != nil {
				return fmt.Errorf("inserting chunk %s: %w", c.ID, err)
			}
		}
		return nil
	})
}

func (s *SQLiteDatabase) DeleteChunks(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.inTx(func(tx *sql.Tx) error {
		return inBatches(distinct(ids), func(batch []string) error {
			q := "DELETE FROM cached_chunks WHERE id IN (" + placeholders(len(batch)) + ")"
			if _, err := tx.Exec(q, args(batch)...); err != nil {
				return fmt.Errorf("deleting chunks: %w", err)
			}
			return nil
		})
	})
}
