package fs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"chunkvault/internal/model"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestOSScanner_Scan(t *testing.T) {
	docs := t.TempDir()
	photos := t.TempDir()

	writeFile(t, filepath.Join(docs, "a.txt"), "alpha")
	writeFile(t, filepath.Join(docs, "sub", "b.txt"), "bravo!")
	writeFile(t, filepath.Join(docs, "sub", "debug.log"), "noise")
	writeFile(t, filepath.Join(docs, "cache", "blob"), "cached")
	writeFile(t, filepath.Join(docs, IgnoreFileName), "cache/\n")
	writeFile(t, filepath.Join(photos, "2024", "img.jpg"), "jpeg")
	if err := os.Symlink(filepath.Join(docs, "a.txt"), filepath.Join(docs, "link.txt")); err != nil {
		t.Fatal(err)
	}

	s := NewOSScanner([]Root{
		{Path: docs, Kind: model.KindDocument},
		{Path: photos, Kind: model.KindMedia},
	}, []string{"*.log"}, nil)

	files, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	got := make(map[string]bool)
	for _, f := range files {
		got[f.Path] = true
	}
	want := []string{
		filepath.Join(docs, "a.txt"),
		filepath.Join(docs, "sub", "b.txt"),
		filepath.Join(photos, "2024", "img.jpg"),
	}
	if len(files) != len(want) {
		t.Errorf("Scan() returned %d files, want %d: %+v", len(files), len(want), files)
	}
	for _, w := range want {
		if !got[w] {
			t.Errorf("Scan() missing %s", w)
		}
	}

	for _, f := range files {
		if f.Path != filepath.Join(photos, "2024", "img.jpg") {
			continue
		}
		if f.Kind != model.KindMedia {
			t.Errorf("Kind = %v, want media", f.Kind)
		}
		if f.RelativePath != "2024" || f.Name != "img.jpg" || f.Size != 4 {
			t.Errorf("scanned file = %+v", f)
		}
	}
}

func TestOSScanner_TopLevelFileHasEmptyRelativePath(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "top.txt"), "x")

	files, err := NewOSScanner([]Root{{Path: root}}, nil, nil).Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(files) != 1 || files[0].RelativePath != "" {
		t.Errorf("Scan() = %+v, want one file with empty relative path", files)
	}
}

func TestOSScanner_MissingRoot(t *testing.T) {
	s := NewOSScanner([]Root{{Path: filepath.Join(t.TempDir(), "gone")}}, nil, nil)
	files, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(files) != 0 {
		t.Errorf("Scan() returned %d files, want 0", len(files))
	}
}

func TestOSScanner_Cancelled(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "x")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewOSScanner([]Root{{Path: root}}, nil, nil).Scan(ctx); err == nil {
		t.Error("Scan() expected error for cancelled context, got nil")
	}
}

func TestOSScanner_Open(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "alpha")

	s := NewOSScanner([]Root{{Path: root}}, nil, nil)
	files, err := s.Scan(context.Background())
	if err != nil || len(files) != 1 {
		t.Fatalf("Scan() = %v, %v", files, err)
	}
	rc, err := s.Open(files[0])
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "alpha" {
		t.Errorf("Open() read %q, want %q", data, "alpha")
	}
}

func TestOSScanner_BadIgnoreRule(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "x")
	writeFile(t, filepath.Join(root, IgnoreFileName), "[broken\n")

	s := NewOSScanner([]Root{{Path: root, Kind: model.KindDocument}}, nil, nil)
	if _, err := s.Scan(context.Background()); err == nil {
		t.Error("Scan() expected error for malformed ignore rule, got nil")
	}
}
