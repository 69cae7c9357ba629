package storage

import (
	"context"
	"errors"
	"io"
)

var (
	ErrBadKey   = errors.New("storage: invalid key")
	ErrTooLarge = errors.New("storage: object too large")
	ErrNotFound = errors.New("storage: object not found")
)

// BlobStore holds uploaded media under slash-separated keys.
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader) (string, error) // returns canonical key
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	URL(key string) string
}
