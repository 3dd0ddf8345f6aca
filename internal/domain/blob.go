package domain

import (
	"context"
	"io"
	"time"
)

// BlobWriter uploads objects to blob storage. Put covers the common
// single-shot case; PutMultipart streams large payloads through the
// backend's multipart machinery.
type BlobWriter interface {
	Put(ctx context.Context, key string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, key string, data io.Reader, partSize int64) error
}

// BlobReader reads exported snapshots back out of blob storage.
type BlobReader interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
}

// BlobInfo is one object as listed from blob storage.
type BlobInfo struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
}
