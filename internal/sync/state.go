package sync

import (
	"errors"
	"fmt"

	"github.com/nyankiyoshi/s3git/internal/git"
)

// ErrRemoteUpToDate is returned when the remote already holds the target tree.
// It signals that there is nothing to do, not a failure.
var ErrRemoteUpToDate = errors.New("remote repository is up to date")

// UnexpectedStatusError is returned when the tree comparison yields a status
// other than added, modified or deleted
type UnexpectedStatusError struct {
	Status git.Status
	Path   string
}

func (e *UnexpectedStatusError) Error() string {
	return fmt.Sprintf("received an unexpected diff status (%s) for %s; this may be a bug, please report it", e.Status, e.Path)
}

// statusOrder is the order in which groups are logged and applied
var statusOrder = []git.Status{git.Added, git.Modified, git.Deleted}

// DiffResult groups changed paths by status. Statuses without paths are absent.
// Within a status, paths keep the order of the tree comparison.
type DiffResult map[git.Status][]string

// Paths returns the paths recorded for status
func (d DiffResult) Paths(status git.Status) []string {
	return d[status]
}

// Len returns the number of paths across all statuses
func (d DiffResult) Len() int {
	n := 0
	for _, paths := range d {
		n += len(paths)
	}
	return n
}

// Empty reports whether the result holds no paths
func (d DiffResult) Empty() bool {
	return d.Len() == 0
}

func (d DiffResult) add(status git.Status, path string) {
	d[status] = append(d[status], path)
}

// Report summarizes a synchronization run
type Report struct {
	Old    git.TreeHandle
	Target git.TreeHandle
	Diff   DiffResult
	// Uploaded lists the paths written, in upload order
	Uploaded []string
	// Deleted lists the paths submitted for deletion
	Deleted []string
	// DeleteRequests is the number of batched delete requests issued
	DeleteRequests int
	DryRun         bool
}
