package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound signals that no object is stored under the key.
var ErrNotFound = errors.New("storage: object not found")

// ErrInvalidKey signals a key that would escape the store root.
var ErrInvalidKey = errors.New("storage: invalid key")

// DocumentStore persists uploaded professional documents. Keys are slash
// separated relative paths chosen by the caller.
type DocumentStore interface {
	Save(ctx context.Context, key string, r io.Reader) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}
