// Package remote provides access to the object store the tree is synced to.
//
// Store is the backend contract (one request per call); Bucket layers the
// upload prefix, content-type detection and delete batching on top of it.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrNotFound is returned by Store.Get when the object does not exist
var ErrNotFound = errors.New("object not found")

// Store is the minimal object store capability used for syncing
type Store interface {
	// Get opens the object at key. A missing object yields ErrNotFound.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Put writes body to key, replacing any existing object
	Put(ctx context.Context, key string, body io.ReadSeeker, size int64, contentType string) error
	// DeleteMany deletes keys in a single request
	DeleteMany(ctx context.Context, keys []string) error
}

// OpError adds the operation and key to a store error
type OpError struct {
	Op  string
	Key string
	Err error
}

func (e *OpError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}
