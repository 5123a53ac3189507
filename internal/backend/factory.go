package backend

import (
	"context"
	"fmt"
	"os"
	"time"

	"chunkvault/internal/config"
	"chunkvault/internal/cv"
)

// NewBackendFromConfig creates the backend described by cfg, wrapped in a RetryBackend,
// and returns it through a Manager that knows how it may be used.
func NewBackendFromConfig(ctx context.Context, cfg config.BackendConfig, retryCfg config.RetryConfig, logger cv.Logger, metrics cv.Metrics) (*Manager, error) {
	var (
		b               cv.Backend
		requiresNetwork bool
		root            string
	)
	switch cfg.Type {
	case "memory":
		b = NewMemoryBackend(cfg.Name)
	case "filesystem":
		if cfg.FSRoot == "" {
			return nil, fmt.Errorf("filesystem backend requires fs_root to be set")
		}
		// A removable drive's root only exists while the drive is mounted.
		if !cfg.Removable {
			if err := os.MkdirAll(cfg.FSRoot, 0755); err != nil {
				return nil, fmt.Errorf("failed to create backend root: %w", err)
			}
		}
		b = NewFileSystemBackend(cfg.Name, cfg.FSRoot)
		root = cfg.FSRoot
	case "s3":
		s3b, err := NewS3Backend(ctx, cfg.Name, S3Options{
			Bucket:          cfg.S3Bucket,
			Prefix:          cfg.S3Prefix,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		})
		if err != nil {
			return nil, err
		}
		b, requiresNetwork = s3b, true
	case "gcs":
		gb, err := NewGCSBackend(ctx, cfg.Name, cfg.GCSBucket, cfg.GCSPrefix)
		if err != nil {
			return nil, err
		}
		b, requiresNetwork = gb, true
	default:
		return nil, fmt.Errorf("unknown backend type: %s", cfg.Type)
	}

	retrying := NewRetryBackend(b, RetryOptions{
		Attempts: retryCfg.Attempts,
		Delay:    time.Duration(retryCfg.InitialDelayMS) * time.Millisecond,
	}, logger, metrics)
	return NewManager(retrying, requiresNetwork, cfg.Removable, root), nil
}
