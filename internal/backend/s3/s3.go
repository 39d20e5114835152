// Package s3 provides a filesystem backend over an S3 bucket, with an
// optional key prefix. Directories are implicit: a path is a directory
// when at least one key lives under it.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/strata-fs/strata/internal/logging"
	"github.com/strata-fs/strata/internal/metrics"
	"github.com/strata-fs/strata/internal/vfs"
)

// transientRetryAttempts is how often the SDK retries a throttled or
// failed call before the error surfaces to callers.
const transientRetryAttempts = 3

// Options configures an S3 backend.
type Options struct {
	Bucket    string
	Prefix    string
	Endpoint  string // optional, for S3-compatible stores
	AccessKey string // optional, ambient credentials used when empty
	SecretKey string
	Region    string
}

// Backend implements vfs.Filesystem on an S3 bucket.
type Backend struct {
	client *awss3.Client
	bucket string
	prefix string
}

// New creates an S3 backend.
func New(ctx context.Context, opts Options) (*Backend, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 backend: bucket is required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
		awsconfig.WithRetryMaxAttempts(transientRetryAttempts),
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}
	if opts.Endpoint != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(
			func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				return aws.Endpoint{
					URL:               opts.Endpoint,
					HostnameImmutable: true,
				}, nil
			},
		)
		loadOpts = append(loadOpts, awsconfig.WithEndpointResolverWithOptions(resolver))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		o.UsePathStyle = opts.Endpoint != ""
	})

	return &Backend{
		client: client,
		bucket: opts.Bucket,
		prefix: vfs.NormalizePath(opts.Prefix),
	}, nil
}

func (b *Backend) key(path string) string {
	return vfs.JoinPath(b.prefix, path)
}

func isNoSuchKey(err error) bool {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noKey) || errors.As(err, &notFound)
}

// Open opens an object for reading.
func (b *Backend) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	start := time.Now()
	result, err := b.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(path)),
	})
	metrics.RecordBackendOp("s3", "get_object", time.Since(start), err == nil)
	if err != nil {
		if isNoSuchKey(err) {
			return nil, vfs.NotFound(path)
		}
		return nil, fmt.Errorf("get object %s: %w", path, err)
	}
	return result.Body, nil
}

// OpenWrite buffers content and uploads it as a single PutObject on
// Close. Append mode is unsupported: S3 objects are immutable.
func (b *Backend) OpenWrite(ctx context.Context, path string, mode vfs.WriteMode) (io.WriteCloser, error) {
	if mode == vfs.WriteAppend {
		return nil, vfs.Unsupported("append", path)
	}
	return &objectWriter{ctx: ctx, backend: b, path: path}, nil
}

func (b *Backend) put(ctx context.Context, path string, body []byte) error {
	start := time.Now()
	_, err := b.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(b.key(path)),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
	})
	metrics.RecordBackendOp("s3", "put_object", time.Since(start), err == nil)
	if err != nil {
		return fmt.Errorf("put object %s: %w", path, err)
	}
	logging.Debug("s3 put object",
		zap.String("key", b.key(path)), zap.Int("size", len(body)))
	return nil
}

func (b *Backend) head(ctx context.Context, path string) (*awss3.HeadObjectOutput, error) {
	start := time.Now()
	out, err := b.client.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(path)),
	})
	metrics.RecordBackendOp("s3", "head_object", time.Since(start), err == nil || isNoSuchKey(err))
	return out, err
}

// hasChildren reports whether any key lives under path.
func (b *Backend) hasChildren(ctx context.Context, path string) (bool, error) {
	prefix := b.key(path)
	if prefix != "" {
		prefix += "/"
	}
	start := time.Now()
	out, err := b.client.ListObjectsV2(ctx, &awss3.ListObjectsV2Input{
		Bucket:  aws.String(b.bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(1),
	})
	metrics.RecordBackendOp("s3", "list_objects", time.Since(start), err == nil)
	if err != nil {
		return false, fmt.Errorf("list %s: %w", path, err)
	}
	return len(out.Contents) > 0, nil
}

// Exists reports whether an object or prefix exists at path.
func (b *Backend) Exists(ctx context.Context, path string) (bool, error) {
	if vfs.NormalizePath(path) == "" {
		return true, nil
	}
	if _, err := b.head(ctx, path); err == nil {
		return true, nil
	} else if !isNoSuchKey(err) {
		return false, fmt.Errorf("head %s: %w", path, err)
	}
	return b.hasChildren(ctx, path)
}

// IsDir reports whether path is a (virtual) directory.
func (b *Backend) IsDir(ctx context.Context, path string) (bool, error) {
	if vfs.NormalizePath(path) == "" {
		return true, nil
	}
	return b.hasChildren(ctx, path)
}

// IsFile reports whether an object exists at path.
func (b *Backend) IsFile(ctx context.Context, path string) (bool, error) {
	if _, err := b.head(ctx, path); err != nil {
		if isNoSuchKey(err) {
			return false, nil
		}
		return false, fmt.Errorf("head %s: %w", path, err)
	}
	return true, nil
}

// Info returns size and modified time for the object at path.
func (b *Backend) Info(ctx context.Context, path string) (vfs.FileInfo, error) {
	out, err := b.head(ctx, path)
	if err != nil {
		if isNoSuchKey(err) {
			return vfs.FileInfo{}, vfs.NotFound(path)
		}
		return vfs.FileInfo{}, fmt.Errorf("head %s: %w", path, err)
	}
	info := vfs.FileInfo{}
	if out.ContentLength != nil {
		info.Size = *out.ContentLength
	}
	if out.LastModified != nil {
		info.ModTime = *out.LastModified
	}
	return info, nil
}

// MakeDir is a no-op: S3 has no directories, prefixes materialize with
// their first object.
func (b *Backend) MakeDir(_ context.Context, _ string, _, _ bool) error {
	return nil
}

// Remove deletes the object at path. S3 deletes are idempotent, so
// removing a missing object succeeds.
func (b *Backend) Remove(ctx context.Context, path string) error {
	start := time.Now()
	_, err := b.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(path)),
	})
	metrics.RecordBackendOp("s3", "delete_object", time.Since(start), err == nil)
	if err != nil {
		return fmt.Errorf("delete object %s: %w", path, err)
	}
	return nil
}

// List returns the immediate children of path, using '/' as the
// listing delimiter so nested keys appear as directories.
func (b *Backend) List(ctx context.Context, path string) ([]vfs.Entry, error) {
	prefix := b.key(path)
	if prefix != "" {
		prefix += "/"
	}

	var entries []vfs.Entry
	var continuation *string
	for {
		start := time.Now()
		out, err := b.client.ListObjectsV2(ctx, &awss3.ListObjectsV2Input{
			Bucket:            aws.String(b.bucket),
			Prefix:            aws.String(prefix),
			Delimiter:         aws.String("/"),
			ContinuationToken: continuation,
		})
		metrics.RecordBackendOp("s3", "list_objects", time.Since(start), err == nil)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", path, err)
		}

		for _, cp := range out.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(*cp.Prefix, prefix), "/")
			if name != "" {
				entries = append(entries, vfs.Entry{Name: name, IsDir: true})
			}
		}
		for _, obj := range out.Contents {
			name := strings.TrimPrefix(*obj.Key, prefix)
			if name == "" || strings.HasSuffix(name, "/") {
				continue // directory marker objects
			}
			e := vfs.Entry{Name: name}
			if obj.Size != nil {
				e.Size = *obj.Size
			}
			if obj.LastModified != nil {
				e.ModTime = *obj.LastModified
			}
			entries = append(entries, e)
		}

		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		continuation = out.NextContinuationToken
	}

	if len(entries) == 0 && vfs.NormalizePath(path) != "" {
		exists, err := b.hasChildren(ctx, path)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, vfs.NotFound(path)
		}
	}
	return entries, nil
}

// Name returns the backend identifier.
func (b *Backend) Name() string {
	if b.prefix != "" {
		return "s3:" + b.bucket + "/" + b.prefix
	}
	return "s3:" + b.bucket
}

// Close is a no-op: the SDK client holds no persistent connections
// that outlive its transport pool.
func (b *Backend) Close() error { return nil }

// objectWriter buffers writes and uploads on Close.
type objectWriter struct {
	ctx     context.Context
	backend *Backend
	path    string
	buf     bytes.Buffer
	closed  bool
}

func (w *objectWriter) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

func (w *objectWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.backend.put(w.ctx, w.path, w.buf.Bytes())
}
