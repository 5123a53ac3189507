package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsretry "github.com/aws/aws-sdk-go-v2/aws/retry"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"chunkvault/internal/cv"
)

// S3Options configures an S3 (or S3-compatible) backend.
type S3Options struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string // for S3-compatible stores; enables path-style addressing
	AccessKeyID     string // static credentials; the default chain is used when empty
	SecretAccessKey string
}

// S3Backend stores objects in an S3 bucket under an optional key prefix.
// The SDK's own retryer is disabled; RetryBackend decides what to repeat.
type S3Backend struct {
	name     string
	bucket   string
	prefix   string
	client   *s3.Client
	uploader *manager.Uploader
}

// NewS3Backend loads the AWS configuration and creates the client.
func NewS3Backend(ctx context.Context, name string, opts S3Options) (*S3Backend, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 backend requires s3_bucket to be set")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRetryer(func() aws.Retryer { return aws.NopRetryer{} }),
	}
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Backend{
		name:     name,
		bucket:   opts.Bucket,
		prefix:   normalizePrefix(opts.Prefix),
		client:   client,
		uploader: manager.NewUploader(client),
	}, nil
}

// normalizePrefix returns "" or a prefix ending in exactly one slash.
func normalizePrefix(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}

func (b *S3Backend) key(h cv.FileHandle) string { return b.prefix + h.Path() }

func (b *S3Backend) Test(ctx context.Context) (bool, error) {
	if _, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(b.bucket)}); err != nil {
		return false, fmt.Errorf("checking bucket %s: %w", b.bucket, err)
	}
	return true, nil
}

// FreeSpace is unknown for object stores.
func (b *S3Backend) FreeSpace(ctx context.Context) (int64, bool, error) {
	return 0, false, nil
}

// Save buffers the saver's output so the upload body is seekable and its
// length known up front.
func (b *S3Backend) Save(ctx context.Context, h cv.FileHandle, s cv.Saver) (int64, error) {
	var buf bytes.Buffer
	buf.Grow(int(s.Size()))
	written, err := s.Save(&buf)
	if err != nil {
		return 0, fmt.Errorf("failed to read content: %w", err)
	}
	if written != s.Size() {
		return 0, fmt.Errorf("size mismatch: expected %d bytes, got %d", s.Size(), written)
	}

	_, err = b.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(h)),
		Body:   bytes.NewReader(buf.Bytes()),
	})
	if err != nil {
		return 0, fmt.Errorf("uploading %s: %w", h.Path(), err)
	}
	return written, nil
}

func (b *S3Backend) Load(ctx context.Context, h cv.FileHandle) (io.ReadCloser, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(h)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%s: %w", h.Path(), cv.ErrNotFound)
		}
		return nil, fmt.Errorf("downloading %s: %w", h.Path(), err)
	}
	return out.Body, nil
}

func (b *S3Backend) List(ctx context.Context, folder cv.TopLevelFolder, fileTypes []cv.FileType, fn func(cv.FileInfo) error) error {
	return b.listKeys(ctx, b.prefix+folder.Name+"/", func(key string, size int64) error {
		h, ok := cv.ParseHandle(strings.TrimPrefix(key, b.prefix))
		if !ok || !cv.MatchesTypes(fileTypes, h.Type) {
			return nil
		}
		return fn(cv.FileInfo{Handle: h, Size: size})
	})
}

func (b *S3Backend) listKeys(ctx context.Context, prefix string, fn func(key string, size int64) error) error {
	p := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("listing %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			if err := fn(aws.ToString(obj.Key), aws.ToInt64(obj.Size)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *S3Backend) Remove(ctx context.Context, h cv.FileHandle) error {
	return b.deleteKey(ctx, b.key(h))
}

func (b *S3Backend) deleteKey(ctx context.Context, key string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

// Rename copies every object of the folder to its new key and deletes the original.
func (b *S3Backend) Rename(ctx context.Context, from, to cv.TopLevelFolder) error {
	if from == to {
		return nil
	}
	src := b.prefix + from.Name + "/"
	dst := b.prefix + to.Name + "/"

	var keys []string
	if err := b.listKeys(ctx, src, func(key string, _ int64) error {
		keys = append(keys, key)
		return nil
	}); err != nil {
		return err
	}
	for _, key := range keys {
		_, err := b.client.CopyObject(ctx, &s3.CopyObjectInput{
			Bucket:     aws.String(b.bucket),
			CopySource: aws.String((&url.URL{Path: b.bucket + "/" + key}).EscapedPath()),
			Key:        aws.String(dst + strings.TrimPrefix(key, src)),
		})
		if err != nil {
			return fmt.Errorf("copying %s: %w", key, err)
		}
		if err := b.deleteKey(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// RemoveAll deletes every object below the prefix.
func (b *S3Backend) RemoveAll(ctx context.Context) error {
	var keys []string
	if err := b.listKeys(ctx, b.prefix, func(key string, _ int64) error {
		keys = append(keys, key)
		return nil
	}); err != nil {
		return err
	}
	for _, key := range keys {
		if err := b.deleteKey(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// IsTransient uses the SDK's own classification of retryable errors
// (throttling, timeouts, connection resets, 5xx responses).
func (b *S3Backend) IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	return awsretry.IsErrorRetryables(awsretry.DefaultRetryables).IsErrorRetryable(err) == aws.TrueTernary
}

// Compile-time check that S3Backend implements cv.Backend interface
var _ cv.Backend = (*S3Backend)(nil)
