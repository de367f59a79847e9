package storage

import (
	"context"
	"errors"
	"time"
)

// ErrBlobNotFound is returned by backends when a path does not exist inside
// its container. The store maps it onto the public error taxonomy.
var ErrBlobNotFound = errors.New("blob not found")

// Backend is the uniform surface over an object-storage service: byte-level
// put/get/delete by path within a named container, plus the signing primitive
// that produces a time-limited read URL. Listing is not a backend concern;
// artifact metadata lives in the repository.
type Backend interface {
	Put(ctx context.Context, container, path string, data []byte, contentType string) error
	Get(ctx context.Context, container, path string) ([]byte, error)
	Delete(ctx context.Context, container, path string) error
	SignReadURL(container, path string, expiresAt time.Time) (string, error)
}
