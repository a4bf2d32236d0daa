package remote

import (
	"context"
	"fmt"
	"io"
	"net/url"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioAPI is the subset of the MinIO client used by MinioStore
type MinioAPI interface {
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (*minio.Object, error)
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	RemoveObjects(ctx context.Context, bucketName string, objectsCh <-chan minio.ObjectInfo, opts minio.RemoveObjectsOptions) <-chan minio.RemoveObjectError
}

// NewMinioClient builds a MinIO client. endpoint is a URL such as
// http://localhost:9000; the scheme decides whether TLS is used.
func NewMinioClient(endpoint, accessKeyID, secretAccessKey, region string) (*minio.Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid minio endpoint %q", endpoint)
	}

	client, err := minio.New(u.Host, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKeyID, secretAccessKey, ""),
		Secure: u.Scheme == "https",
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return client, nil
}

// MinioStore implements Store against a MinIO (or other S3-compatible) bucket
type MinioStore struct {
	client MinioAPI
	bucket string
}

// NewMinioStore returns a Store for bucket
func NewMinioStore(client MinioAPI, bucket string) *MinioStore {
	return &MinioStore{client: client, bucket: bucket}
}

// Get implements Store. minio fetches lazily, so the object is stat'ed first
// to surface a missing key before the caller starts reading.
func (m *MinioStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		if isMinioNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("minio get %s/%s: %w", m.bucket, key, err)
	}

	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		if isMinioNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("minio stat %s/%s: %w", m.bucket, key, err)
	}
	return obj, nil
}

// Put implements Store
func (m *MinioStore) Put(ctx context.Context, key string, body io.ReadSeeker, size int64, contentType string) error {
	_, err := m.client.PutObject(ctx, m.bucket, key, body, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("minio put %s/%s: %w", m.bucket, key, err)
	}
	return nil
}

// DeleteMany implements Store
func (m *MinioStore) DeleteMany(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	objects := make(chan minio.ObjectInfo, len(keys))
	for _, key := range keys {
		objects <- minio.ObjectInfo{Key: key}
	}
	close(objects)

	var (
		failed   int
		firstErr error
	)
	for rerr := range m.client.RemoveObjects(ctx, m.bucket, objects, minio.RemoveObjectsOptions{}) {
		failed++
		if firstErr == nil {
			firstErr = fmt.Errorf("%s: %w", rerr.ObjectName, rerr.Err)
		}
	}
	if firstErr != nil {
		return fmt.Errorf("minio delete objects in %s: %d of %d keys failed, first %w", m.bucket, failed, len(keys), firstErr)
	}
	return nil
}

func isMinioNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}

var _ Store = (*MinioStore)(nil)
