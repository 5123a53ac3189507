package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"chunkvault/internal/cv"
	"chunkvault/internal/model"
)

// Root is a directory to back up.
type Root struct {
	Path string
	Kind model.FileKind
}

// OSScanner is the real filesystem implementation of cv.FileScanner.
// It walks each root and reports regular files that are not ignored.
type OSScanner struct {
	roots  []Root
	ignore []string
	logger cv.Logger
}

// NewOSScanner creates a scanner over roots. ignore holds patterns applied to every root
// in addition to the root's own .cvignore file.
func NewOSScanner(roots []Root, ignore []string, logger cv.Logger) *OSScanner {
	if logger == nil {
		logger = cv.NewNopLogger()
	}
	return &OSScanner{roots: roots, ignore: ignore, logger: logger}
}

// Scan returns the files of all roots in a stable order. Unreadable directories
// and missing roots are logged and skipped.
func (m *OSScanner) Scan(ctx context.Context) ([]cv.ScannedFile, error) {
	var files []cv.ScannedFile
	for _, root := range m.roots {
		found, err := m.scanRoot(ctx, root)
		if err != nil {
			return nil, err
		}
		files = append(files, found...)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func (m *OSScanner) scanRoot(ctx context.Context, root Root) ([]cv.ScannedFile, error) {
	absRoot, err := filepath.Abs(root.Path)
	if err != nil {
		return nil, fmt.Errorf("resolving absolute path: %w", err)
	}

	extra, err := ReadIgnoreFile(filepath.Join(absRoot, IgnoreFileName))
	if err != nil {
		return nil, err
	}
	rules := append(append(append([]string{}, defaultIgnoreRules...), m.ignore...), extra...)
	matcher, err := NewIgnoreMatcher(rules)
	if err != nil {
		return nil, fmt.Errorf("ignore rules of %s: %w", absRoot, err)
	}

	var files []cv.ScannedFile
	err = filepath.WalkDir(absRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == absRoot {
				if errors.Is(err, fs.ErrNotExist) {
					m.logger.Warn("backup root does not exist", "root", absRoot)
					return fs.SkipAll
				}
				return err
			}
			m.logger.Warn("skipping unreadable path", "path", p, "error", err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p == absRoot {
			return nil
		}

		rel, err := filepath.Rel(absRoot, p)
		if err != nil {
			return err
		}
		if matcher.Match(rel, d.IsDir()) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		// Symlinks, devices, pipes and sockets are not backed up.
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil // removed while walking
			}
			return fmt.Errorf("stat %s: %w", p, err)
		}
		dir := filepath.Dir(rel)
		if dir == "." {
			dir = ""
		}
		files = append(files, cv.ScannedFile{
			Path:         p,
			Root:         absRoot,
			RelativePath: filepath.ToSlash(dir),
			Name:         d.Name(),
			Size:         info.Size(),
			LastModified: info.ModTime(),
			Kind:         root.Kind,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", absRoot, err)
	}
	return files, nil
}

// Open opens a scanned file for reading.
func (m *OSScanner) Open(f cv.ScannedFile) (io.ReadCloser, error) {
	return os.Open(f.Path)
}

// Compile-time check that OSScanner implements cv.FileScanner interface
var _ cv.FileScanner = (*OSScanner)(nil)
