package s3client

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned when the requested key does not exist.
var ErrNotFound = errors.New("s3client: object not found")

type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
	ETag         string
	// Metadata holds user metadata with lower-cased keys. Only HeadObject
	// fills it in.
	Metadata map[string]string
}

// Client is the read-only subset of S3 the dtool storage back-end needs.
type Client interface {
	ListObjects(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error)
	ListPrefixes(ctx context.Context, bucket, prefix string) ([]string, error)
	HeadObject(ctx context.Context, bucket, key string) (*ObjectInfo, error)
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	Download(ctx context.Context, bucket, key string, w io.WriterAt) (int64, error)
}
