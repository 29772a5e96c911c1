// Package blob abstracts opaque asset storage. The registry core never
// interprets blob contents; it only records references handed back by Put.
package blob

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a ref does not resolve to stored bytes.
var ErrNotFound = errors.New("blob not found")

// Store is the collaborator interface the registry writes assets through.
type Store interface {
	// Put stores data under key and returns the ref to read it back.
	Put(ctx context.Context, key string, data []byte) (string, error)
	// Get reads the bytes a ref points at.
	Get(ctx context.Context, ref string) ([]byte, error)
	// Delete removes the bytes a ref points at. Deleting a missing ref
	// is not an error.
	Delete(ctx context.Context, ref string) error
}
