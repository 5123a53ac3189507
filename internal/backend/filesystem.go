package backend

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"

	"chunkvault/internal/cv"
)

// FileSystemBackend is a filesystem-based implementation of the Backend interface.
// Objects are stored as files below root using their handle paths:
//
//	<root>/
//	  <host>.cv/
//	    <id[0:2]>/<id>        (blobs)
//	    <start>.snapshot      (snapshots)
type FileSystemBackend struct {
	name string
	root string
}

// NewFileSystemBackend creates a new filesystem backend rooted at the given path.
// The root is not created here: a removable drive that is not mounted must not
// be replaced by an empty local directory.
func NewFileSystemBackend(name, root string) *FileSystemBackend {
	return &FileSystemBackend{name: name, root: root}
}

// Root returns the directory holding the backend's objects.
func (v *FileSystemBackend) Root() string { return v.root }

// Test verifies that the root is an accessible directory.
func (v *FileSystemBackend) Test(ctx context.Context) (bool, error) {
	info, err := os.Stat(v.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("backend root not accessible: %w", err)
	}
	return info.IsDir(), nil
}

func (v *FileSystemBackend) FreeSpace(ctx context.Context) (int64, bool, error) {
	free, err := freeSpace(v.root)
	if err != nil {
		return 0, false, fmt.Errorf("reading free space of %s: %w", v.root, err)
	}
	return free, true, nil
}

func (v *FileSystemBackend) Save(ctx context.Context, h cv.FileHandle, s cv.Saver) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	destPath := v.path(h)
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return 0, fmt.Errorf("failed to create directory: %w", err)
	}
	return writeFile(destPath, s)
}

func (v *FileSystemBackend) Load(ctx context.Context, h cv.FileHandle) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(v.path(h))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", h.Path(), cv.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return f, nil
}

// List walks the folder. Files that do not parse as handles (temp files,
// foreign data) are skipped.
func (v *FileSystemBackend) List(ctx context.Context, folder cv.TopLevelFolder, types []cv.FileType, fn func(cv.FileInfo) error) error {
	dir := filepath.Join(v.root, folder.Name)
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == dir && errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(v.root, p)
		if err != nil {
			return err
		}
		h, ok := cv.ParseHandle(filepath.ToSlash(rel))
		if !ok || !cv.MatchesTypes(types, h.Type) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil // removed while walking
			}
			return err
		}
		return fn(cv.FileInfo{Handle: h, Size: info.Size()})
	})
	if err != nil {
		return fmt.Errorf("listing %s: %w", folder.Name, err)
	}
	return nil
}

func (v *FileSystemBackend) Remove(ctx context.Context, h cv.FileHandle) error {
	if err := os.Remove(v.path(h)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%s: %w", h.Path(), cv.ErrNotFound)
		}
		return fmt.Errorf("failed to remove file: %w", err)
	}
	return nil
}

// Rename moves a folder. When the destination already exists the objects are
// moved one by one, replacing files of the same name.
func (v *FileSystemBackend) Rename(ctx context.Context, from, to cv.TopLevelFolder) error {
	if from == to {
		return nil
	}
	src := filepath.Join(v.root, from.Name)
	dst := filepath.Join(v.root, to.Name)
	if _, err := os.Stat(dst); errors.Is(err, fs.ErrNotExist) {
		if err := os.Rename(src, dst); err != nil {
			return fmt.Errorf("failed to rename folder: %w", err)
		}
		return nil
	}

	err := filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		return os.Rename(p, target)
	})
	if err != nil {
		return fmt.Errorf("failed to merge folder %s into %s: %w", from.Name, to.Name, err)
	}
	return os.RemoveAll(src)
}

// RemoveAll deletes everything below root but keeps root itself.
func (v *FileSystemBackend) RemoveAll(ctx context.Context) error {
	entries, err := os.ReadDir(v.root)
	if err != nil {
		return fmt.Errorf("reading backend root: %w", err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(v.root, e.Name())); err != nil {
			return fmt.Errorf("removing %s: %w", e.Name(), err)
		}
	}
	return nil
}

// IsTransient treats interrupted and busy system calls as transient. A missing
// drive, a full disk or a permission problem will not fix itself within a retry.
func (v *FileSystemBackend) IsTransient(err error) bool {
	return errors.Is(err, syscall.EINTR) ||
		errors.Is(err, syscall.EAGAIN) ||
		errors.Is(err, syscall.EBUSY) ||
		errors.Is(err, syscall.ETIMEDOUT)
}

func (v *FileSystemBackend) path(h cv.FileHandle) string {
	return filepath.Join(v.root, filepath.FromSlash(h.Path()))
}

// writeFile writes the saver's bytes to destPath using atomic write (temp file + rename).
// The size and, when the saver knows it, the SHA-256 of the written bytes are verified
// before the rename, so a reader never sees a partial or mangled object.
func writeFile(destPath string, s cv.Saver) (int64, error) {
	// Create temp file in the same directory to ensure atomic rename works
	dir := filepath.Dir(destPath)
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	// Clean up temp file on failure
	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	hash := sha256.New()
	written, err := s.Save(io.MultiWriter(tmpFile, hash))
	if err != nil {
		tmpFile.Close()
		return 0, fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return 0, fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return 0, fmt.Errorf("failed to close temp file: %w", err)
	}

	if written != s.Size() {
		return 0, fmt.Errorf("size mismatch: expected %d bytes, got %d", s.Size(), written)
	}
	if want := s.SHA256(); want != "" {
		if got := hex.EncodeToString(hash.Sum(nil)); got != want {
			return 0, fmt.Errorf("checksum mismatch: expected %s, got %s", want, got)
		}
	}

	// Atomic rename
	if err := os.Rename(tmpPath, destPath); err != nil {
		return 0, fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return written, nil
}

// Compile-time check that FileSystemBackend implements cv.Backend interface
var _ cv.Backend = (*FileSystemBackend)(nil)
