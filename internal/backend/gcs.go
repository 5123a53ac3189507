package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"net"
	"strings"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"

	"chunkvault/internal/cv"
)

var castagnoliTable = crc32.MakeTable(crc32.Castagnoli)

// GCSBackend stores objects in a Google Cloud Storage bucket under an optional prefix.
// Credentials come from the application default chain.
type GCSBackend struct {
	name   string
	prefix string
	client *gcs.Client
	bucket *gcs.BucketHandle
}

func NewGCSBackend(ctx context.Context, name, bucket, prefix string) (*GCSBackend, error) {
	if bucket == "" {
		return nil, fmt.Errorf("gcs backend requires gcs_bucket to be set")
	}
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating gcs client: %w", err)
	}
	return &GCSBackend{
		name:   name,
		prefix: normalizePrefix(prefix),
		client: client,
		bucket: client.Bucket(bucket),
	}, nil
}

// Close releases the client's connections.
func (g *GCSBackend) Close() error { return g.client.Close() }

func (g *GCSBackend) object(h cv.FileHandle) *gcs.ObjectHandle {
	return g.bucket.Object(g.prefix + h.Path())
}

func (g *GCSBackend) Test(ctx context.Context) (bool, error) {
	if _, err := g.bucket.Attrs(ctx); err != nil {
		if errors.Is(err, gcs.ErrBucketNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("checking bucket: %w", err)
	}
	return true, nil
}

// FreeSpace is unknown for object stores.
func (g *GCSBackend) FreeSpace(ctx context.Context) (int64, bool, error) {
	return 0, false, nil
}

// Save uploads the buffered bytes and lets the server check them against the
// locally computed CRC32C.
func (g *GCSBackend) Save(ctx context.Context, h cv.FileHandle, s cv.Saver) (int64, error) {
	var buf bytes.Buffer
	written, err := s.Save(&buf)
	if err != nil {
		return 0, fmt.Errorf("failed to read content: %w", err)
	}
	if written != s.Size() {
		return 0, fmt.Errorf("size mismatch: expected %d bytes, got %d", s.Size(), written)
	}

	w := g.object(h).NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	w.CRC32C = crc32.Checksum(buf.Bytes(), castagnoliTable)
	w.SendCRC32C = true
	if _, err := io.Copy(w, &buf); err != nil {
		w.Close()
		return 0, fmt.Errorf("uploading %s: %w", h.Path(), err)
	}
	if err := w.Close(); err != nil {
		return 0, fmt.Errorf("uploading %s: %w", h.Path(), err)
	}
	return written, nil
}

func (g *GCSBackend) Load(ctx context.Context, h cv.FileHandle) (io.ReadCloser, error) {
	r, err := g.object(h).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return nil, fmt.Errorf("%s: %w", h.Path(), cv.ErrNotFound)
		}
		return nil, fmt.Errorf("downloading %s: %w", h.Path(), err)
	}
	return r, nil
}

func (g *GCSBackend) List(ctx context.Context, folder cv.TopLevelFolder, types []cv.FileType, fn func(cv.FileInfo) error) error {
	return g.listObjects(ctx, g.prefix+folder.Name+"/", func(attrs *gcs.ObjectAttrs) error {
		h, ok := cv.ParseHandle(strings.TrimPrefix(attrs.Name, g.prefix))
		if !ok || !cv.MatchesTypes(types, h.Type) {
			return nil
		}
		return fn(cv.FileInfo{Handle: h, Size: attrs.Size})
	})
}

func (g *GCSBackend) listObjects(ctx context.Context, prefix string, fn func(*gcs.ObjectAttrs) error) error {
	it := g.bucket.Objects(ctx, &gcs.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			return nil
		}
		if err != nil {
			return fmt.Errorf("listing %s: %w", prefix, err)
		}
		if err := fn(attrs); err != nil {
			return err
		}
	}
}

func (g *GCSBackend) Remove(ctx context.Context, h cv.FileHandle) error {
	if err := g.object(h).Delete(ctx); err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return fmt.Errorf("%s: %w", h.Path(), cv.ErrNotFound)
		}
		return fmt.Errorf("deleting %s: %w", h.Path(), err)
	}
	return nil
}

// Rename copies every object of the folder to its new name and deletes the original.
func (g *GCSBackend) Rename(ctx context.Context, from, to cv.TopLevelFolder) error {
	if from == to {
		return nil
	}
	src := g.prefix + from.Name + "/"
	dst := g.prefix + to.Name + "/"

	var names []string
	if err := g.listObjects(ctx, src, func(attrs *gcs.ObjectAttrs) error {
		names = append(names, attrs.Name)
		return nil
	}); err != nil {
		return err
	}
	for _, name := range names {
		srcObj := g.bucket.Object(name)
		dstObj := g.bucket.Object(dst + strings.TrimPrefix(name, src))
		if _, err := dstObj.CopierFrom(srcObj).Run(ctx); err != nil {
			return fmt.Errorf("copying %s: %w", name, err)
		}
		if err := srcObj.Delete(ctx); err != nil {
			return fmt.Errorf("deleting %s: %w", name, err)
		}
	}
	return nil
}

// RemoveAll deletes every object below the prefix.
func (g *GCSBackend) RemoveAll(ctx context.Context) error {
	var names []string
	if err := g.listObjects(ctx, g.prefix, func(attrs *gcs.ObjectAttrs) error {
		names = append(names, attrs.Name)
		return nil
	}); err != nil {
		return err
	}
	for _, name := range names {
		if err := g.bucket.Object(name).Delete(ctx); err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
			return fmt.Errorf("deleting %s: %w", name, err)
		}
	}
	return nil
}

// IsTransient treats rate limiting, server errors and network timeouts as transient.
func (g *GCSBackend) IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == 429 || apiErr.Code >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF)
}

// Compile-time check that GCSBackend implements cv.Backend interface
var _ cv.Backend = (*GCSBackend)(nil)
