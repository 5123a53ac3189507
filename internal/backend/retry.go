package backend

import (
	"bytes"
	"context"
	"errors"
	"io"
	"time"

	"github.com/juju/clock"
	"github.com/juju/retry"

	"chunkvault/internal/cv"
)

const (
	DefaultRetryAttempts = 5
	DefaultRetryDelay    = time.Second
)

// RetryOptions controls how often and how patiently failed calls are repeated.
type RetryOptions struct {
	Attempts int           // total attempts per call, including the first
	Delay    time.Duration // wait before the second attempt; doubled after each retry
	Clock    clock.Clock
}

// RetryBackend wraps a Backend and repeats calls that fail with a transient error.
// Non-transient errors are returned unchanged after a single attempt, and so is the
// last transient error once all attempts are used.
type RetryBackend struct {
	inner   cv.Backend
	opts    RetryOptions
	logger  cv.Logger
	metrics cv.Metrics
}

// NewRetryBackend wraps inner. Zero options fall back to the defaults.
func NewRetryBackend(inner cv.Backend, opts RetryOptions, logger cv.Logger, metrics cv.Metrics) *RetryBackend {
	if opts.Attempts <= 0 {
		opts.Attempts = DefaultRetryAttempts
	}
	if opts.Delay <= 0 {
		opts.Delay = DefaultRetryDelay
	}
	if opts.Clock == nil {
		opts.Clock = clock.WallClock
	}
	if logger == nil {
		logger = cv.NewNopLogger()
	}
	if metrics == nil {
		metrics = cv.NopMetrics{}
	}
	return &RetryBackend{inner: inner, opts: opts, logger: logger, metrics: metrics}
}

// Unwrap returns the wrapped backend.
func (b *RetryBackend) Unwrap() cv.Backend { return b.inner }

// call runs f until it succeeds, fails permanently, runs out of attempts or ctx is done.
func (b *RetryBackend) call(ctx context.Context, op string, f func() error) error {
	var lastErr error
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			lastErr = f()
			return lastErr
		},
		IsFatalError: func(err error) bool {
			return ctx.Err() != nil || !b.inner.IsTransient(err)
		},
		NotifyFunc: func(err error, attempt int) {
			if attempt >= b.opts.Attempts {
				return
			}
			b.metrics.Retried()
			b.logger.Warn("retrying backend call", "op", op, "attempt", attempt, "error", err)
		},
		Attempts:    b.opts.Attempts,
		Delay:       b.opts.Delay,
		BackoffFunc: retry.DoubleDelay,
		Clock:       b.opts.Clock,
		Stop:        ctx.Done(),
	})
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		if lastErr != nil && !errors.Is(lastErr, ctxErr) {
			return errors.Join(ctxErr, lastErr)
		}
		return ctxErr
	}
	if lastErr != nil {
		return lastErr
	}
	return err
}

func (b *RetryBackend) Test(ctx context.Context) (bool, error) {
	var ok bool
	err := b.call(ctx, "test", func() error {
		var err error
		ok, err = b.inner.Test(ctx)
		return err
	})
	return ok, err
}

func (b *RetryBackend) FreeSpace(ctx context.Context) (int64, bool, error) {
	var free int64
	var known bool
	err := b.call(ctx, "free space", func() error {
		var err error
		free, known, err = b.inner.FreeSpace(ctx)
		return err
	})
	return free, known, err
}

// Save relies on the saver being re-invocable: every attempt writes from scratch.
func (b *RetryBackend) Save(ctx context.Context, h cv.FileHandle, s cv.Saver) (int64, error) {
	var n int64
	err := b.call(ctx, "save "+h.Path(), func() error {
		var err error
		n, err = b.inner.Save(ctx, h, s)
		return err
	})
	return n, err
}

// Load reads the whole object inside the retry loop, so a connection dropped
// halfway through the body is retried too.
func (b *RetryBackend) Load(ctx context.Context, h cv.FileHandle) (io.ReadCloser, error) {
	var data []byte
	err := b.call(ctx, "load "+h.Path(), func() error {
		rc, err := b.inner.Load(ctx, h)
		if err != nil {
			return err
		}
		defer rc.Close()
		data, err = io.ReadAll(rc)
		return err
	})
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// List collects the whole listing before calling fn, so a retried listing
// never reports an object twice.
func (b *RetryBackend) List(ctx context.Context, folder cv.TopLevelFolder, types []cv.FileType, fn func(cv.FileInfo) error) error {
	var infos []cv.FileInfo
	err := b.call(ctx, "list "+folder.Name, func() error {
		infos = infos[:0]
		return b.inner.List(ctx, folder, types, func(fi cv.FileInfo) error {
			infos = append(infos, fi)
			return nil
		})
	})
	if err != nil {
		return err
	}
	for _, fi := range infos {
		if err := fn(fi); err != nil {
			return err
		}
	}
	return nil
}

func (b *RetryBackend) Remove(ctx context.Context, h cv.FileHandle) error {
	return b.call(ctx, "remove "+h.Path(), func() error {
		return b.inner.Remove(ctx, h)
	})
}

func (b *RetryBackend) Rename(ctx context.Context, from, to cv.TopLevelFolder) error {
	return b.call(ctx, "rename "+from.Name, func() error {
		return b.inner.Rename(ctx, from, to)
	})
}

func (b *RetryBackend) RemoveAll(ctx context.Context) error {
	return b.call(ctx, "remove all", func() error {
		return b.inner.RemoveAll(ctx)
	})
}

func (b *RetryBackend) IsTransient(err error) bool {
	return b.inner.IsTransient(err)
}

// Compile-time check that RetryBackend implements cv.Backend interface
var _ cv.Backend = (*RetryBackend)(nil)
