package sync

import (
	"context"
	"fmt"

	"github.com/nyankiyoshi/s3git/internal/git"
)

// ChangeLister compares two trees
type ChangeLister interface {
	Changes(ctx context.Context, from, to git.TreeHandle) ([]git.Change, error)
}

// Diff classifies the changes between old and target. Entries for which
// ignored returns true are dropped. A nil ignored keeps every entry.
func Diff(ctx context.Context, source ChangeLister, old, target git.TreeHandle, ignored func(string) bool) (DiffResult, error) {
	changes, err := source.Changes(ctx, old, target)
	if err != nil {
		return nil, fmt.Errorf("failed to compute diff: %w", err)
	}

	result := make(DiffResult)
	for _, c := range changes {
		switch c.Status {
		case git.Added, git.Modified, git.Deleted:
		default:
			return nil, &UnexpectedStatusError{Status: c.Status, Path: c.Path}
		}

		if ignored != nil && ignored(c.Path) {
			continue
		}
		result.add(c.Status, c.Path)
	}
	return result, nil
}
