//go:build integration

// Package integration runs the sync engine against real S3-compatible stores
// started with testcontainers. Docker must be available.
//
//	go test -tags=integration ./integration/...
package integration

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/docker/go-connections/nat"
	"github.com/minio/minio-go/v7"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/localstack"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/nyankiyoshi/s3git/internal/remote"
)

const (
	localstackImage = "localstack/localstack:latest"
	minioImage      = "minio/minio:latest"
	accessKeyID     = "s3git-test"
	secretKey       = "s3git-test-secret"
	testBucket      = "s3git-integration"
	startupTimeout  = 2 * time.Minute
)

// keepOnFail leaves containers running after a failed test for inspection
func keepOnFail() bool {
	return os.Getenv("INTEGRATION_KEEP_CONTAINER") == "1"
}

func terminate(t *testing.T, c testcontainers.Container) {
	t.Helper()
	t.Cleanup(func() {
		if t.Failed() && keepOnFail() {
			t.Logf("keeping container %s", c.GetContainerID())
			return
		}
		if err := c.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})
}

// startLocalStack returns a Store backed by a fresh LocalStack bucket
func startLocalStack(ctx context.Context, t *testing.T) remote.Store {
	t.Helper()

	container, err := localstack.Run(ctx, localstackImage,
		testcontainers.WithWaitStrategy(
			wait.ForHTTP("/_localstack/health").
				WithPort("4566").
				WithStartupTimeout(startupTimeout),
		),
	)
	if err != nil {
		t.Fatalf("failed to start LocalStack container: %v", err)
	}
	terminate(t, container)

	endpoint, err := endpointURL(ctx, container, "4566")
	if err != nil {
		t.Fatal(err)
	}

	client, err := remote.NewS3Client(ctx, remote.S3Credentials{
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		Region:          remote.DefaultRegion,
		Endpoint:        endpoint,
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(testBucket)}); err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}

	return remote.NewS3Store(client, testBucket)
}

// startMinio returns a Store backed by a fresh MinIO bucket
func startMinio(ctx context.Context, t *testing.T) remote.Store {
	t.Helper()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        minioImage,
			ExposedPorts: []string{"9000/tcp"},
			Cmd:          []string{"server", "/data"},
			Env: map[string]string{
				"MINIO_ROOT_USER":     accessKeyID,
				"MINIO_ROOT_PASSWORD": secretKey,
			},
			WaitingFor: wait.ForHTTP("/minio/health/live").
				WithPort("9000/tcp").
				WithStartupTimeout(startupTimeout),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("failed to start MinIO container: %v", err)
	}
	terminate(t, container)

	endpoint, err := endpointURL(ctx, container, "9000/tcp")
	if err != nil {
		t.Fatal(err)
	}

	client, err := remote.NewMinioClient(endpoint, accessKeyID, secretKey, "")
	if err != nil {
		t.Fatal(err)
	}
	if err := client.MakeBucket(ctx, testBucket, minio.MakeBucketOptions{}); err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}

	return remote.NewMinioStore(client, testBucket)
}

func endpointURL(ctx context.Context, c testcontainers.Container, port nat.Port) (string, error) {
	host, err := c.Host(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get container host: %w", err)
	}
	mapped, err := c.MappedPort(ctx, port)
	if err != nil {
		return "", fmt.Errorf("failed to get container port: %w", err)
	}
	return fmt.Sprintf("http://%s:%s", host, mapped.Port()), nil
}
