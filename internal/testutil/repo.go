package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Repo is a throwaway git repository on disk for tests
type Repo struct {
	t    *testing.T
	Dir  string
	Repo *gogit.Repository
}

// NewRepo initializes an empty non-bare repository in a temp directory
func NewRepo(t *testing.T) *Repo {
	t.Helper()

	dir := t.TempDir()
	repo, err := gogit.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("git init: %v", err)
	}
	return &Repo{t: t, Dir: dir, Repo: repo}
}

// Write creates or overwrites a file in the worktree and stages it
func (r *Repo) Write(path, content string) {
	r.t.Helper()

	full := filepath.Join(r.Dir, filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		r.t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		r.t.Fatal(err)
	}

	wt := r.worktree()
	if _, err := wt.Add(path); err != nil {
		r.t.Fatalf("git add %s: %v", path, err)
	}
}

// Remove deletes a file from the worktree and the index
func (r *Repo) Remove(path string) {
	r.t.Helper()

	wt := r.worktree()
	if _, err := wt.Remove(path); err != nil {
		r.t.Fatalf("git rm %s: %v", path, err)
	}
}

// Commit records the staged changes and returns the tree hash of the new commit
func (r *Repo) Commit(msg string) string {
	r.t.Helper()

	wt := r.worktree()
	hash, err := wt.Commit(msg, &gogit.CommitOptions{
		Author: &object.Signature{
			Name:  "Test",
			Email: "test@test.com",
			When:  time.Now(),
		},
	})
	if err != nil {
		r.t.Fatalf("git commit: %v", err)
	}

	commit, err := r.Repo.CommitObject(hash)
	if err != nil {
		r.t.Fatalf("read commit: %v", err)
	}
	return commit.TreeHash.String()
}

// Head returns the commit hash HEAD points at
func (r *Repo) Head() string {
	r.t.Helper()

	head, err := r.Repo.Head()
	if err != nil {
		r.t.Fatalf("read HEAD: %v", err)
	}
	return head.Hash().String()
}

// Branch creates a branch pointing at the current HEAD commit
func (r *Repo) Branch(name string) {
	r.t.Helper()

	ref := plumbing.NewHashReference(plumbing.NewBranchReferenceName(name), plumbing.NewHash(r.Head()))
	if err := r.Repo.Storer.SetReference(ref); err != nil {
		r.t.Fatalf("create branch %s: %v", name, err)
	}
}

// Tag creates a lightweight tag at the current HEAD commit
func (r *Repo) Tag(name string) {
	r.t.Helper()

	if _, err := r.Repo.CreateTag(name, plumbing.NewHash(r.Head()), nil); err != nil {
		r.t.Fatalf("create tag %s: %v", name, err)
	}
}

func (r *Repo) worktree() *gogit.Worktree {
	r.t.Helper()

	wt, err := r.Repo.Worktree()
	if err != nil {
		r.t.Fatalf("open worktree: %v", err)
	}
	return wt
}
