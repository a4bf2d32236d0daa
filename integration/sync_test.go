//go:build integration

package integration

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nyankiyoshi/s3git/internal/git"
	"github.com/nyankiyoshi/s3git/internal/ignore"
	"github.com/nyankiyoshi/s3git/internal/remote"
	"github.com/nyankiyoshi/s3git/internal/sync"
	"github.com/nyankiyoshi/s3git/internal/testutil"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestSync_LocalStack(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	runScenario(ctx, t, startLocalStack(ctx, t))
}

func TestSync_Minio(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	runScenario(ctx, t, startMinio(ctx, t))
}

// runScenario performs a full upload, an incremental sync and a no-op sync
func runScenario(ctx context.Context, t *testing.T, store remote.Store) {
	t.Helper()

	bucket := remote.NewBucket(store, remote.BucketOptions{Prefix: "site", DeleteBatchSize: 2})
	pointer := remote.NewPointerStore(bucket)

	rules, err := ignore.Parse(strings.NewReader(`^.*\.ignorefile$`), ignore.Literal)
	require.NoError(t, err)

	repo := testutil.NewRepo(t)
	repo.Write("index.html", "<!DOCTYPE html><html><body>v1</body></html>")
	repo.Write("b.txt", "beta")
	repo.Write(".ignorefile", `^.*\.ignorefile$`)
	for i := 0; i < 5; i++ {
		repo.Write(fmt.Sprintf("old/%d.txt", i), "old")
	}
	first := repo.Commit("initial")

	runSync := func() (*sync.Report, error) {
		r, err := git.Open(repo.Dir)
		require.NoError(t, err)

		res := sync.NewResolver(r, pointer, testLogger())
		target, err := res.ResolveTarget(ctx, "")
		require.NoError(t, err)
		old, err := res.ResolveOld(ctx, false)
		require.NoError(t, err)

		return sync.NewEngine(r, bucket, pointer, rules.Predicate(), testLogger(), false).Synchronize(ctx, old, target)
	}

	report, err := runSync()
	require.NoError(t, err)
	assert.Len(t, report.Uploaded, 7)
	assertObject(ctx, t, store, "site/.s3git-rev", first)

	_, err = store.Get(ctx, "site/.ignorefile")
	assert.ErrorIs(t, err, remote.ErrNotFound)

	repo.Write("index.html", "<!DOCTYPE html><html><body>v2</body></html>")
	repo.Remove("b.txt")
	for i := 0; i < 5; i++ {
		repo.Remove(fmt.Sprintf("old/%d.txt", i))
	}
	repo.Write("c.txt", "gamma")
	second := repo.Commit("second")

	report, err = runSync()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"index.html", "c.txt"}, report.Uploaded)
	assert.Len(t, report.Deleted, 6)
	assert.Equal(t, 3, report.DeleteRequests)

	assertObject(ctx, t, store, "site/.s3git-rev", second)
	assertObject(ctx, t, store, "site/index.html", "<!DOCTYPE html><html><body>v2</body></html>")
	assertObject(ctx, t, store, "site/c.txt", "gamma")
	_, err = store.Get(ctx, "site/b.txt")
	assert.ErrorIs(t, err, remote.ErrNotFound)
	_, err = store.Get(ctx, "site/old/3.txt")
	assert.ErrorIs(t, err, remote.ErrNotFound)

	_, err = runSync()
	assert.ErrorIs(t, err, sync.ErrRemoteUpToDate)
}

func assertObject(ctx context.Context, t *testing.T, store remote.Store, key, want string) {
	t.Helper()

	rc, err := store.Get(ctx, key)
	require.NoError(t, err, key)
	defer func() {
		_ = rc.Close()
	}()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, want, string(data), key)
}
