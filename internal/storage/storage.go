package storage

import "context"

// BlobStore persists image bytes under a caller-chosen key and serves them
// back byte-identical. Write returns the durable, publicly fetchable URL for
// the stored object. Writing the same key twice overwrites the object, which
// keeps upload retries free of orphans.
type BlobStore interface {
	Write(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Read(ctx context.Context, key string) ([]byte, error)
}
