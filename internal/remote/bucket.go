package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultDeleteBatchSize is the largest number of keys S3 accepts per DeleteObjects request
	DefaultDeleteBatchSize = 1000

	// DefaultSniffSize is how many leading bytes are read to detect the content type
	DefaultSniffSize = 1024
)

// BucketOptions tunes a Bucket
type BucketOptions struct {
	// Prefix is prepended to every path (S3_UPLOAD_LOCATION)
	Prefix string
	// DeleteBatchSize caps the keys per delete request
	DeleteBatchSize int
	// DeleteParallelism is how many delete requests may run at once
	DeleteParallelism int
	// SniffSize is the number of bytes inspected for content detection
	SniffSize int
}

func (o *BucketOptions) applyDefaults() {
	if o.DeleteBatchSize <= 0 {
		o.DeleteBatchSize = DefaultDeleteBatchSize
	}
	if o.DeleteParallelism <= 0 {
		o.DeleteParallelism = 1
	}
	if o.SniffSize <= 0 {
		o.SniffSize = DefaultSniffSize
	}
}

// Bucket addresses repository paths inside a Store
type Bucket struct {
	store Store
	opts  BucketOptions
}

// NewBucket wraps store. Zero option values fall back to defaults.
func NewBucket(store Store, opts BucketOptions) *Bucket {
	opts.applyDefaults()
	opts.Prefix = strings.Trim(opts.Prefix, "/")
	return &Bucket{store: store, opts: opts}
}

// Key returns the object key for a repository-relative path
func (b *Bucket) Key(p string) string {
	if b.opts.Prefix == "" {
		return p
	}
	return path.Join(b.opts.Prefix, p)
}

// Upload sniffs the content type of body, rewinds it and stores the full content at p
func (b *Bucket) Upload(ctx context.Context, p string, body io.ReadSeeker) error {
	key := b.Key(p)

	contentType, err := b.detectContentType(body)
	if err != nil {
		return &OpError{Op: "upload", Key: key, Err: err}
	}

	size, err := body.Seek(0, io.SeekEnd)
	if err != nil {
		return &OpError{Op: "upload", Key: key, Err: err}
	}
	if _, err := body.Seek(0, io.SeekStart); err != nil {
		return &OpError{Op: "upload", Key: key, Err: err}
	}

	if err := b.store.Put(ctx, key, body, size, contentType); err != nil {
		return &OpError{Op: "upload", Key: key, Err: err}
	}
	return nil
}

// Fetch reads the object at p. found is false when the object does not exist.
func (b *Bucket) Fetch(ctx context.Context, p string) (data []byte, found bool, err error) {
	key := b.Key(p)

	rc, err := b.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, &OpError{Op: "fetch", Key: key, Err: err}
	}
	defer func() {
		_ = rc.Close()
	}()

	data, err = io.ReadAll(rc)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, &OpError{Op: "fetch", Key: key, Err: err}
	}
	return data, true, nil
}

// Delete removes paths in batches of at most DeleteBatchSize keys.
// It returns the number of requests issued.
func (b *Bucket) Delete(ctx context.Context, paths []string) (int, error) {
	if len(paths) == 0 {
		return 0, nil
	}

	keys := make([]string, len(paths))
	for i, p := range paths {
		keys[i] = b.Key(p)
	}
	batches := SplitBatches(keys, b.opts.DeleteBatchSize)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.DeleteParallelism)
	for _, batch := range batches {
		g.Go(func() error {
			if err := b.store.DeleteMany(gctx, batch); err != nil {
				return &OpError{Op: "delete", Key: fmt.Sprintf("%d keys from %s", len(batch), batch[0]), Err: err}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return len(batches), err
	}
	return len(batches), nil
}

// detectContentType reads the leading bytes of body and rewinds it
func (b *Bucket) detectContentType(body io.ReadSeeker) (string, error) {
	buf := make([]byte, b.opts.SniffSize)
	n, err := io.ReadFull(body, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read content: %w", err)
	}
	if _, err := body.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("failed to rewind content: %w", err)
	}
	return mimetype.Detect(buf[:n]).String(), nil
}

// SplitBatches slices keys into consecutive batches of at most size keys
func SplitBatches(keys []string, size int) [][]string {
	if size <= 0 {
		size = DefaultDeleteBatchSize
	}

	batches := make([][]string, 0, (len(keys)+size-1)/size)
	for i := 0; i < len(keys); i += size {
		end := i + size
		if end > len(keys) {
			end = len(keys)
		}
		batches = append(batches, keys[i:end])
	}
	return batches
}
