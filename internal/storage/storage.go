package storage

import (
	"context"
	"io"
)

// ObjectStorage defines the object operations the avatar store needs
// across backends. Objects are served to browsers directly, so each
// backend maps a key to a public URL.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
	PublicURL(key string) string
	Bucket() string
}
