package remote

import (
	"bytes"
	"context"
	"fmt"
	"strings"
)

// PointerName is the object, relative to the upload prefix, holding the last synced tree hash
const PointerName = ".s3git-rev"

// PointerStore reads and writes the "last synced" marker
type PointerStore struct {
	bucket *Bucket
}

// NewPointerStore returns a pointer store inside bucket
func NewPointerStore(bucket *Bucket) *PointerStore {
	return &PointerStore{bucket: bucket}
}

// Read returns the stored hash. ok is false when no pointer exists or it is empty.
func (p *PointerStore) Read(ctx context.Context) (hash string, ok bool, err error) {
	data, found, err := p.bucket.Fetch(ctx, PointerName)
	if err != nil {
		return "", false, fmt.Errorf("failed to read sync pointer: %w", err)
	}
	if !found {
		return "", false, nil
	}

	// only the first line is meaningful
	line, _, _ := strings.Cut(string(data), "\n")
	hash = strings.TrimSpace(line)
	if hash == "" {
		return "", false, nil
	}
	return hash, true, nil
}

// Write overwrites the pointer with hash
func (p *PointerStore) Write(ctx context.Context, hash string) error {
	if err := p.bucket.Upload(ctx, PointerName, bytes.NewReader([]byte(hash))); err != nil {
		return fmt.Errorf("failed to write sync pointer: %w", err)
	}
	return nil
}
