package sync

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/nyankiyoshi/s3git/internal/git"
	"github.com/nyankiyoshi/s3git/internal/remote"
)

// Source is the read side of the repository used while syncing
type Source interface {
	ChangeLister
	Open(ctx context.Context, tree git.TreeHandle, path string) (io.ReadCloser, error)
}

// Engine applies tree diffs to a bucket and advances the remote pointer
type Engine struct {
	source  Source
	bucket  *remote.Bucket
	pointer *remote.PointerStore
	ignored func(string) bool
	logger  *slog.Logger
	dryRun  bool
}

// NewEngine creates a new sync engine. ignored may be nil.
func NewEngine(source Source, bucket *remote.Bucket, pointer *remote.PointerStore, ignored func(string) bool, logger *slog.Logger, dryRun bool) *Engine {
	return &Engine{
		source:  source,
		bucket:  bucket,
		pointer: pointer,
		ignored: ignored,
		logger:  logger,
		dryRun:  dryRun,
	}
}

// Synchronize uploads added and modified paths, deletes removed ones and
// finally records target as the last synced tree. The pointer is left
// untouched when any step fails, so a rerun recomputes the same diff.
func (e *Engine) Synchronize(ctx context.Context, old, target git.TreeHandle) (*Report, error) {
	e.logger.Info("starting sync",
		"from", old.String(),
		"to", target.String(),
		"dry_run", e.dryRun)

	if old == target {
		return nil, ErrRemoteUpToDate
	}

	diff, err := Diff(ctx, e.source, old, target, e.skip)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Old:    old,
		Target: target,
		Diff:   diff,
		DryRun: e.dryRun,
	}

	for _, status := range statusOrder {
		for _, p := range diff.Paths(status) {
			e.logger.Info(fmt.Sprintf("[%s] %s", status, p))
		}
	}

	if diff.Empty() {
		e.logger.Info("no file changes to apply, only the sync pointer will move")
	}

	e.logger.Info("sync plan",
		"add", len(diff.Paths(git.Added)),
		"update", len(diff.Paths(git.Modified)),
		"delete", len(diff.Paths(git.Deleted)))

	// check for dry-run mode
	if e.dryRun {
		e.logger.Info("dry-run complete, no changes applied")
		return report, nil
	}

	for _, status := range []git.Status{git.Added, git.Modified} {
		for _, p := range diff.Paths(status) {
			if err := e.upload(ctx, target, p); err != nil {
				return report, err
			}
			report.Uploaded = append(report.Uploaded, p)
		}
	}

	if deleted := diff.Paths(git.Deleted); len(deleted) > 0 {
		e.logger.Info("instructing to delete files", "count", len(deleted))
		requests, err := e.bucket.Delete(ctx, deleted)
		report.DeleteRequests = requests
		if err != nil {
			return report, fmt.Errorf("failed to delete files: %w", err)
		}
		report.Deleted = append(report.Deleted, deleted...)
	}

	if err := e.pointer.Write(ctx, target.String()); err != nil {
		return report, err
	}

	e.logger.Info("sync completed successfully",
		"uploaded", len(report.Uploaded),
		"deleted", len(report.Deleted),
		"delete_requests", report.DeleteRequests)
	return report, nil
}

// skip reports whether p must stay out of the diff. The pointer object lives
// at the root of the upload location, so a tracked file with the same name
// is never uploaded or deleted.
func (e *Engine) skip(p string) bool {
	if p == remote.PointerName {
		e.logger.Warn("skipping path reserved for the sync pointer", "path", p)
		return true
	}
	return e.ignored != nil && e.ignored(p)
}

// upload copies the blob at p in tree to the bucket. The content is
// buffered so the bucket can rewind it after sniffing the content type.
func (e *Engine) upload(ctx context.Context, tree git.TreeHandle, p string) error {
	rc, err := e.source.Open(ctx, tree, p)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", p, err)
	}
	defer func() {
		_ = rc.Close()
	}()

	data, err := io.ReadAll(rc)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", p, err)
	}

	if err := e.bucket.Upload(ctx, p, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to upload %s: %w", p, err)
	}
	return nil
}
