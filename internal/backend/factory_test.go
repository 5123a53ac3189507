package backend

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"chunkvault/internal/config"
)

func TestNewBackendFromConfig(t *testing.T) {
	tests := []struct {
		name        string
		cfg         config.BackendConfig
		wantErr     bool
		wantNetwork bool
	}{
		{
			name: "memory backend",
			cfg:  config.BackendConfig{Type: "memory", Name: "test-memory"},
		},
		{
			name: "filesystem backend",
			cfg: config.BackendConfig{
				Type:   "filesystem",
				Name:   "test-fs",
				FSRoot: filepath.Join(t.TempDir(), "storage"),
			},
		},
		{
			name:    "filesystem backend without root",
			cfg:     config.BackendConfig{Type: "filesystem", Name: "test-fs"},
			wantErr: true,
		},
		{
			name:    "s3 backend without bucket",
			cfg:     config.BackendConfig{Type: "s3", Name: "test-s3"},
			wantErr: true,
		},
		{
			name:    "gcs backend without bucket",
			cfg:     config.BackendConfig{Type: "gcs", Name: "test-gcs"},
			wantErr: true,
		},
		{
			name:    "unknown backend type",
			cfg:     config.BackendConfig{Type: "unknown", Name: "test-unknown"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewBackendFromConfig(context.Background(), tt.cfg, config.RetryConfig{}, nil, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewBackendFromConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if got != nil {
					t.Error("NewBackendFromConfig() should return nil on error")
				}
				return
			}
			if got.RequiresNetwork() != tt.wantNetwork {
				t.Errorf("RequiresNetwork() = %v, want %v", got.RequiresNetwork(), tt.wantNetwork)
			}
			if _, ok := got.Backend().(*RetryBackend); !ok {
				t.Errorf("Backend() = %T, want *RetryBackend", got.Backend())
			}
		})
	}

	t.Run("fixed filesystem root is created", func(t *testing.T) {
		root := filepath.Join(t.TempDir(), "storage")
		cfg := config.BackendConfig{Type: "filesystem", Name: "local", FSRoot: root}
		if _, err := NewBackendFromConfig(context.Background(), cfg, config.RetryConfig{}, nil, nil); err != nil {
			t.Fatalf("NewBackendFromConfig() error = %v", err)
		}
		if _, err := os.Stat(root); err != nil {
			t.Errorf("root not created: %v", err)
		}
	})

	t.Run("removable filesystem root is not created", func(t *testing.T) {
		root := filepath.Join(t.TempDir(), "drive")
		cfg := config.BackendConfig{Type: "filesystem", Name: "usb", FSRoot: root, Removable: true}
		m, err := NewBackendFromConfig(context.Background(), cfg, config.RetryConfig{}, nil, nil)
		if err != nil {
			t.Fatalf("NewBackendFromConfig() error = %v", err)
		}
		if _, err := os.Stat(root); !os.IsNotExist(err) {
			t.Errorf("removable root should not be created, stat error = %v", err)
		}
		if m.CanDoBackupNow() {
			t.Error("CanDoBackupNow() = true for unplugged drive")
		}
	})
}

func TestNormalizePrefix(t *testing.T) {
	tests := map[string]string{
		"":          "",
		"/":         "",
		"backups":   "backups/",
		"/backups/": "backups/",
		"a/b":       "a/b/",
	}
	for in, want := range tests {
		if got := normalizePrefix(in); got != want {
			t.Errorf("normalizePrefix(%q) = %q, want %q", in, got, want)
		}
	}
}
