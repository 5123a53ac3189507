package cv

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"chunkvault/internal/model"
)

// RestoreResult lists what Restore wrote.
type RestoreResult struct {
	Restored    []string
	FilesFailed int
	Size        int64
}

// Restorer writes the files of a snapshot back to disk.
type Restorer struct {
	store     *Store
	snapshots *SnapshotRetriever

	// last decrypted zip chunk, since consecutive small files usually share one
	zipID string
	zip   *zip.Reader
}

func NewRestorer(store *Store, snapshots *SnapshotRetriever) *Restorer {
	return &Restorer{store: store, snapshots: snapshots}
}

// Restore writes every file of the snapshot started at startTime below destDir,
// as destDir/<root base>/<relative path>/<name>. Existing files are never overwritten.
// Per-file failures are logged and counted.
func (r *Restorer) Restore(ctx context.Context, startTime int64, destDir string) (*RestoreResult, error) {
	log := r.store.Logger
	log.Info("restore started", "snapshot", startTime, "dest", destDir)

	stored := model.StoredSnapshot{Folder: r.store.Folder.Name, Time: startTime}
	snapshot, err := r.snapshots.Load(ctx, stored)
	if err != nil {
		return nil, err
	}
	defer func() { r.zipID, r.zip = "", nil }()

	res := &RestoreResult{}
	for _, f := range snapshot.Files() {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		outPath, err := buildRestorePath(destDir, f)
		if err == nil {
			err = r.restoreFile(ctx, f, outPath)
		}
		if err != nil {
			if isFatal(err) {
				return res, err
			}
			log.Error("restoring file", "name", f.Name, "root", f.Root, "error", err)
			res.FilesFailed++
			continue
		}
		log.Debug("file restored", "path", outPath)
		res.Restored = append(res.Restored, outPath)
		res.Size += f.Size
	}
	log.Info("restore finished", "restored", len(res.Restored), "failed", res.FilesFailed)
	return res, nil
}

func (r *Restorer) restoreFile(ctx context.Context, f *model.BackupFile, outPath string) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return fmt.Errorf("creating parent directory: %w", err)
	}
	out, err := os.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}

	if f.ZipIndex > 0 {
		err = r.writeZipEntry(ctx, f, out)
	} else {
		err = r.writeChunks(ctx, f, out)
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(outPath)
		return err
	}

	if f.LastModified > 0 {
		mtime := time.UnixMilli(f.LastModified)
		if err := os.Chtimes(outPath, mtime, mtime); err != nil {
			return fmt.Errorf("setting file times: %w", err)
		}
	}
	return nil
}

func (r *Restorer) writeChunks(ctx context.Context, f *model.BackupFile, w io.Writer) error {
	var written int64
	for _, id := range f.ChunkIDs {
		plaintext, err := r.readVerified(ctx, id)
		if err != nil {
			return err
		}
		n, err := w.Write(plaintext)
		if err != nil {
			return fmt.Errorf("writing chunk %s: %w", id, err)
		}
		written += int64(n)
	}
	if written != f.Size {
		return fmt.Errorf("restored %d bytes, expected %d", written, f.Size)
	}
	return nil
}

func (r *Restorer) writeZipEntry(ctx context.Context, f *model.BackupFile, w io.Writer) error {
	if len(f.ChunkIDs) != 1 {
		return fmt.Errorf("%w: zipped file references %d chunks", ErrMalformed, len(f.ChunkIDs))
	}
	id := f.ChunkIDs[0]
	if r.zipID != id {
		plaintext, err := r.readVerified(ctx, id)
		if err != nil {
			return err
		}
		zr, err := zip.NewReader(bytes.NewReader(plaintext), int64(len(plaintext)))
		if err != nil {
			return fmt.Errorf("%w: opening zip chunk %s: %w", ErrMalformed, id, err)
		}
		r.zipID, r.zip = id, zr
	}

	name := strconv.Itoa(int(f.ZipIndex))
	rc, err := r.zip.Open(name)
	if err != nil {
		return fmt.Errorf("opening entry %s of zip chunk %s: %w", name, id, err)
	}
	defer rc.Close()
	if _, err := io.Copy(w, rc); err != nil {
		return fmt.Errorf("extracting entry %s of zip chunk %s: %w", name, id, err)
	}
	return nil
}

func (r *Restorer) readVerified(ctx context.Context, id string) ([]byte, error) {
	plaintext, _, err := readChunk(ctx, r.store, id, nil)
	if err != nil {
		return nil, err
	}
	if got := r.store.Addresser.ContentAddress(plaintext); got != id {
		return nil, fmt.Errorf("chunk %s: content address mismatch: got %s", id, got)
	}
	return plaintext, nil
}

// buildRestorePath places a file below destDir, rejecting names that would escape it.
func buildRestorePath(destDir string, f *model.BackupFile) (string, error) {
	rel := filepath.Join(filepath.Base(f.Root), filepath.FromSlash(f.RelativePath), f.Name)
	if f.Name == "" || !filepath.IsLocal(rel) {
		return "", fmt.Errorf("invalid restore path %q", rel)
	}
	return filepath.Join(destDir, rel), nil
}
