package git

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/utils/merkletrie"
)

// EmptyTreeHash is the hash git assigns to a tree without entries
const EmptyTreeHash = "4b825dc642cb6eb9a060e54bf8d69288fbee4904"

// EmptyTree is the handle of the empty tree, used when nothing was synced yet
var EmptyTree = TreeHandle{hash: plumbing.NewHash(EmptyTreeHash)}

// TreeHandle identifies an immutable snapshot of the tracked tree.
// Two handles are equal iff they name the same tree hash.
type TreeHandle struct {
	hash plumbing.Hash
}

// ParseTreeHandle parses a hex tree hash
func ParseTreeHandle(s string) (TreeHandle, error) {
	s = strings.TrimSpace(s)
	if !plumbing.IsHash(s) {
		return TreeHandle{}, fmt.Errorf("invalid tree hash %q", s)
	}
	h := plumbing.NewHash(s)
	if h.IsZero() {
		return TreeHandle{}, fmt.Errorf("invalid tree hash %q", s)
	}
	return TreeHandle{hash: h}, nil
}

// String returns the hex hash
func (t TreeHandle) String() string {
	return t.hash.String()
}

// IsEmpty reports whether the handle names the empty tree
func (t TreeHandle) IsEmpty() bool {
	return t == EmptyTree
}

// Status classifies a change between two trees
type Status string

const (
	Added    Status = "A"
	Modified Status = "M"
	Deleted  Status = "D"
)

// Change is a single path-level difference between two trees
type Change struct {
	Status Status
	Path   string
}

// InvalidSourceError is returned when no repository can be opened at a directory
type InvalidSourceError struct {
	Dir string
	Err error
}

func (e *InvalidSourceError) Error() string {
	return fmt.Sprintf("the directory %s does not contain a valid git repository", e.Dir)
}

func (e *InvalidSourceError) Unwrap() error {
	return e.Err
}

// Client provides the read-only repository operations needed for syncing
type Client interface {
	// ResolveTarget resolves a branch, tag or commit (HEAD when empty) to its tree
	ResolveTarget(ctx context.Context, ref string) (TreeHandle, error)
	// LookupTree checks that a tree hash exists in the repository
	LookupTree(ctx context.Context, hash string) (TreeHandle, error)
	// IsDirty reports uncommitted worktree modifications
	IsDirty(ctx context.Context) (bool, error)
	// Changes lists the path-level differences between two trees
	Changes(ctx context.Context, from, to TreeHandle) ([]Change, error)
	// Open returns the content of path inside tree
	Open(ctx context.Context, tree TreeHandle, path string) (io.ReadCloser, error)
}

// Repository implements Client on top of go-git
type Repository struct {
	repo *gogit.Repository
	dir  string
}

var _ Client = (*Repository)(nil)

// Open opens the repository containing dir, looking for .git in parent directories
func Open(dir string) (*Repository, error) {
	repo, err := gogit.PlainOpenWithOptions(dir, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, &InvalidSourceError{Dir: dir, Err: err}
	}
	return &Repository{repo: repo, dir: dir}, nil
}

// Root returns the top-level directory of the worktree. Bare repositories
// report the directory given to Open.
func (r *Repository) Root() string {
	wt, err := r.repo.Worktree()
	if err != nil {
		return r.dir
	}
	return wt.Filesystem.Root()
}

// CurrentBranch returns the short name of the checked-out branch, or "" when HEAD is detached
func (r *Repository) CurrentBranch() (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", fmt.Errorf("failed to read HEAD: %w", err)
	}
	if !head.Name().IsBranch() {
		return "", nil
	}
	return head.Name().Short(), nil
}

// ResolveTarget resolves ref to the tree of the commit it points at
func (r *Repository) ResolveTarget(ctx context.Context, ref string) (TreeHandle, error) {
	if err := ctx.Err(); err != nil {
		return TreeHandle{}, err
	}

	var commitHash plumbing.Hash
	if ref == "" {
		head, err := r.repo.Head()
		if err != nil {
			return TreeHandle{}, fmt.Errorf("failed to read HEAD: %w", err)
		}
		commitHash = head.Hash()
	} else {
		h, err := r.repo.ResolveRevision(plumbing.Revision(ref))
		if err != nil {
			return TreeHandle{}, fmt.Errorf("failed to resolve revision %q: %w", ref, err)
		}
		commitHash = *h
	}

	commit, err := r.repo.CommitObject(commitHash)
	if err != nil {
		return TreeHandle{}, fmt.Errorf("failed to get commit %s: %w", commitHash, err)
	}
	return TreeHandle{hash: commit.TreeHash}, nil
}

// LookupTree parses hash and verifies the tree object exists
func (r *Repository) LookupTree(ctx context.Context, hash string) (TreeHandle, error) {
	if err := ctx.Err(); err != nil {
		return TreeHandle{}, err
	}

	handle, err := ParseTreeHandle(hash)
	if err != nil {
		return TreeHandle{}, err
	}
	if handle.IsEmpty() {
		return handle, nil
	}
	if _, err := r.repo.TreeObject(handle.hash); err != nil {
		return TreeHandle{}, fmt.Errorf("failed to find tree %s: %w", handle, err)
	}
	return handle, nil
}

// IsDirty reports whether tracked files have uncommitted changes.
// Untracked files are not counted and bare repositories are never dirty.
func (r *Repository) IsDirty(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	wt, err := r.repo.Worktree()
	if err != nil {
		if errors.Is(err, gogit.ErrIsBareRepository) {
			return false, nil
		}
		return false, fmt.Errorf("failed to open worktree: %w", err)
	}

	status, err := wt.Status()
	if err != nil {
		return false, fmt.Errorf("failed to read worktree status: %w", err)
	}

	for _, fs := range status {
		if fs.Staging == gogit.Untracked && fs.Worktree == gogit.Untracked {
			continue
		}
		if fs.Staging != gogit.Unmodified || fs.Worktree != gogit.Unmodified {
			return true, nil
		}
	}
	return false, nil
}

// Changes compares two trees without rename detection, so a rename shows up
// as a deletion and an addition. Order follows the tree walk.
func (r *Repository) Changes(ctx context.Context, from, to TreeHandle) ([]Change, error) {
	fromTree, err := r.tree(from)
	if err != nil {
		return nil, err
	}
	toTree, err := r.tree(to)
	if err != nil {
		return nil, err
	}

	changes, err := object.DiffTreeWithOptions(ctx, fromTree, toTree, &object.DiffTreeOptions{DetectRenames: false})
	if err != nil {
		return nil, fmt.Errorf("failed to compare trees %s and %s: %w", from, to, err)
	}

	result := make([]Change, 0, len(changes))
	for _, c := range changes {
		result = append(result, toChange(c))
	}
	return result, nil
}

// Open returns a reader for the blob at path in tree
func (r *Repository) Open(ctx context.Context, tree TreeHandle, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t, err := r.tree(tree)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("file %s: %w", path, object.ErrFileNotFound)
	}

	f, err := t.File(path)
	if err != nil {
		return nil, fmt.Errorf("file %s in tree %s: %w", path, tree, err)
	}
	return f.Reader()
}

// tree loads the tree object for handle. The empty tree maps to nil,
// which go-git diffs as a tree without entries.
func (r *Repository) tree(handle TreeHandle) (*object.Tree, error) {
	if handle.IsEmpty() {
		return nil, nil
	}
	t, err := r.repo.TreeObject(handle.hash)
	if err != nil {
		return nil, fmt.Errorf("failed to load tree %s: %w", handle, err)
	}
	return t, nil
}

// toChange maps a go-git change onto a status and path. Actions outside
// insert/modify/delete are passed through so callers can reject them.
func toChange(c *object.Change) Change {
	action, err := c.Action()
	if err != nil {
		return Change{Status: Status("?"), Path: changePath(c)}
	}

	switch action {
	case merkletrie.Insert:
		return Change{Status: Added, Path: c.To.Name}
	case merkletrie.Delete:
		return Change{Status: Deleted, Path: c.From.Name}
	case merkletrie.Modify:
		return Change{Status: Modified, Path: c.To.Name}
	default:
		return Change{Status: Status(action.String()), Path: changePath(c)}
	}
}

func changePath(c *object.Change) string {
	if c.To.Name != "" {
		return c.To.Name
	}
	return c.From.Name
}
