package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollector_Counts(t *testing.T) {
	c := NewCollector()
	c.ChunkUploaded(100)
	c.ChunkUploaded(50)
	c.ChunkChecked(10, true)
	c.ChunkChecked(20, false)
	c.ChunkChecked(30, false)
	c.SnapshotWritten()
	c.Retried()

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"chunks uploaded", testutil.ToFloat64(c.chunksUploaded), 2},
		{"bytes uploaded", testutil.ToFloat64(c.bytesUploaded), 150},
		{"chunks checked ok", testutil.ToFloat64(c.chunksChecked.WithLabelValues("ok")), 1},
		{"chunks checked bad", testutil.ToFloat64(c.chunksChecked.WithLabelValues("bad")), 2},
		{"bytes checked", testutil.ToFloat64(c.bytesChecked), 60},
		{"snapshots written", testutil.ToFloat64(c.snapshotsWritten), 1},
		{"retries", testutil.ToFloat64(c.retries), 1},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestCollector_WriteToTextfile(t *testing.T) {
	c := NewCollector()
	c.ChunkUploaded(42)
	c.Succeeded("backup", 1700000000)

	path := filepath.Join(t.TempDir(), "cv.prom")
	if err := c.WriteToTextfile(path); err != nil {
		t.Fatalf("WriteToTextfile() error = %v", err)
	}
	// Writing twice must not fail on re-registration.
	if err := c.WriteToTextfile(path); err != nil {
		t.Fatalf("WriteToTextfile() second call error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	for _, want := range []string{
		"chunkvault_chunks_uploaded_total 1",
		"chunkvault_uploaded_bytes_total 42",
		`chunkvault_last_success_timestamp_seconds{operation="backup"}`,
	} {
		if !strings.Contains(string(data), want) {
			t.Errorf("textfile missing %q:\n%s", want, data)
		}
	}
}
