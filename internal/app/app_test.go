package app

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"chunkvault/internal/config"
	"chunkvault/internal/cv"
)

// newTestConfig returns a config backed by a filesystem backend and a SQLite database
// below a temp dir, so state survives between CVApp instances.
func newTestConfig(t *testing.T) (*config.Config, string) {
	t.Helper()
	base := t.TempDir()
	root := filepath.Join(base, "docs")
	if err := os.MkdirAll(filepath.Join(root, "sub"), 0755); err != nil {
		t.Fatal(err)
	}
	for name, data := range map[string]string{"a.txt": "alpha", "sub/b.txt": "beta"} {
		if err := os.WriteFile(filepath.Join(root, name), []byte(data), 0644); err != nil {
			t.Fatal(err)
		}
	}

	cfg := config.NewConfig("test-host", base)
	cfg.MetricsFile = filepath.Join(base, "cv.prom")
	cfg.Encryption = config.EncryptionConfig{Type: "test"}
	cfg.Filesystem.Roots = []config.RootConfig{{Path: root}}
	cfg.Retry.InitialDelayMS = 1
	if err := MigrateDatabase(cfg); err != nil {
		t.Fatalf("MigrateDatabase() error = %v", err)
	}
	return cfg, root
}

func openApp(t *testing.T, cfg *config.Config, operation string) *CVApp {
	t.Helper()
	a, err := NewCVApp(context.Background(), cfg, operation, "", Options{
		Passphrase: StaticPassphrase(""),
		Stderr:     io.Discard,
	})
	if err != nil {
		t.Fatalf("NewCVApp() error = %v", err)
	}
	return a
}

func TestCVApp_BackupCheckRestorePrune(t *testing.T) {
	ctx := context.Background()
	cfg, _ := newTestConfig(t)

	a := openApp(t, cfg, "Backup")
	res, err := a.Backup(ctx)
	if err != nil {
		t.Fatalf("Backup() error = %v", err)
	}
	if res.FilesBackedUp != 2 || res.Snapshot == nil {
		t.Fatalf("Backup() = %+v, want 2 files and a snapshot", res)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	prom, err := os.ReadFile(cfg.MetricsFile)
	if err != nil {
		t.Fatalf("reading metrics file: %v", err)
	}
	if !strings.Contains(string(prom), "chunkvault_snapshots_written_total 1") {
		t.Errorf("metrics file does not count the snapshot:\n%s", prom)
	}

	a = openApp(t, cfg, "Check")
	check, err := a.Check(ctx, 100, nil)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if check.Status != cv.CheckSuccess {
		t.Errorf("Check() status = %v (err %v), want success", check.Status, check.Err)
	}

	snapshots, err := a.ListSnapshots(ctx)
	if err != nil {
		t.Fatalf("ListSnapshots() error = %v", err)
	}
	if len(snapshots) != 1 || snapshots[0].Snapshot == nil {
		t.Fatalf("ListSnapshots() = %+v, want one readable snapshot", snapshots)
	}
	start := snapshots[0].Stored.Time

	dest := t.TempDir()
	restored, err := a.Restore(ctx, start, dest)
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if len(restored.Restored) != 2 {
		t.Errorf("restored %d files, want 2", len(restored.Restored))
	}
	if data, err := os.ReadFile(filepath.Join(dest, "docs", "sub", "b.txt")); err != nil || string(data) != "beta" {
		t.Errorf("restored b.txt = %q, %v", data, err)
	}

	ops, err := a.GetHistory(10)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(ops) != 2 || ops[0].Operation != "Check" || ops[1].Operation != "Backup" || ops[1].Status != StatusSuccess {
		t.Errorf("GetHistory() = %+v", ops)
	}
	a.Close()

	a = openApp(t, cfg, "RemoveSnapshot")
	defer a.Close()
	if _, err := a.RemoveSnapshot(ctx, start); err != nil {
		t.Fatalf("RemoveSnapshot() error = %v", err)
	}
	snapshots, err = a.ListSnapshots(ctx)
	if err != nil {
		t.Fatalf("ListSnapshots() error = %v", err)
	}
	if len(snapshots) != 0 {
		t.Errorf("ListSnapshots() after prune = %+v, want none", snapshots)
	}
	if size, err := a.BackupSize(); err != nil || size != 0 {
		t.Errorf("BackupSize() = %d, %v, want 0", size, err)
	}
}

func TestCVApp_MissingKeyFailsOperation(t *testing.T) {
	cfg, _ := newTestConfig(t)
	cfg.Encryption = config.EncryptionConfig{Type: "age", KeyPath: filepath.Join(t.TempDir(), "missing.key")}

	a := openApp(t, cfg, "Backup")
	if _, err := a.Backup(context.Background()); err == nil || !strings.Contains(err.Error(), "cv key init") {
		t.Errorf("Backup() error = %v, want a hint to create the key", err)
	}
	a.Close()

	a = openApp(t, cfg, "History")
	defer a.Close()
	ops, err := a.GetHistory(1)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(ops) != 1 || ops[0].Status != StatusError {
		t.Errorf("GetHistory() = %+v, want the failed backup", ops)
	}
}

func TestCVApp_AgeKey(t *testing.T) {
	cfg, _ := newTestConfig(t)
	cfg.Encryption = config.EncryptionConfig{Type: "age", KeyPath: filepath.Join(t.TempDir(), "cv.key")}
	if err := InitKey(cfg, "correct horse"); err != nil {
		t.Fatalf("InitKey() error = %v", err)
	}
	if err := InitKey(cfg, "other"); err == nil {
		t.Error("InitKey() overwrote an existing key")
	}

	a, err := NewCVApp(context.Background(), cfg, "Backup", "", Options{
		Passphrase: StaticPassphrase("wrong"),
		Stderr:     io.Discard,
	})
	if err != nil {
		t.Fatalf("NewCVApp() error = %v", err)
	}
	if _, err := a.Backup(context.Background()); err == nil {
		t.Error("Backup() with a wrong passphrase succeeded")
	}
	a.Close()

	a, err = NewCVApp(context.Background(), cfg, "Backup", "", Options{
		Passphrase: StaticPassphrase("correct horse"),
		Stderr:     io.Discard,
	})
	if err != nil {
		t.Fatalf("NewCVApp() error = %v", err)
	}
	defer a.Close()
	if _, err := a.Backup(context.Background()); err != nil {
		t.Errorf("Backup() error = %v", err)
	}
}

func TestNewCVApp_RequiresMigratedDatabase(t *testing.T) {
	base := t.TempDir()
	cfg := config.NewConfig("test-host", base)
	cfg.Encryption = config.EncryptionConfig{Type: "test"}

	_, err := NewCVApp(context.Background(), cfg, "Backup", "", Options{Stderr: io.Discard})
	if err == nil || !strings.Contains(err.Error(), "cv db migrate") {
		t.Errorf("NewCVApp() error = %v, want a hint to migrate", err)
	}
}

func TestDatabaseSchema(t *testing.T) {
	cfg, _ := newTestConfig(t)
	schema, err := DatabaseSchema(cfg)
	if err != nil {
		t.Fatalf("DatabaseSchema() error = %v", err)
	}
	for _, table := range []string{"cached_chunks", "cached_files", "operations"} {
		if !strings.Contains(schema, table) {
			t.Errorf("schema lacks table %s:\n%s", table, schema)
		}
	}
}
