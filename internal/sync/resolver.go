package sync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nyankiyoshi/s3git/internal/git"
)

// TreeResolver is the part of git.Client the resolver needs
type TreeResolver interface {
	ResolveTarget(ctx context.Context, ref string) (git.TreeHandle, error)
	LookupTree(ctx context.Context, hash string) (git.TreeHandle, error)
	IsDirty(ctx context.Context) (bool, error)
}

// PointerReader reads the last synced tree hash
type PointerReader interface {
	Read(ctx context.Context) (hash string, ok bool, err error)
}

// Resolver turns references and the remote pointer into tree handles
type Resolver struct {
	repo    TreeResolver
	pointer PointerReader
	logger  *slog.Logger
}

// NewResolver creates a new resolver
func NewResolver(repo TreeResolver, pointer PointerReader, logger *slog.Logger) *Resolver {
	return &Resolver{
		repo:    repo,
		pointer: pointer,
		logger:  logger,
	}
}

// ResolveTarget resolves ref (the checked-out branch when empty) to its tree.
// Uncommitted changes are reported but never synced.
func (r *Resolver) ResolveTarget(ctx context.Context, ref string) (git.TreeHandle, error) {
	dirty, err := r.repo.IsDirty(ctx)
	if err != nil {
		r.logger.Warn("failed to check worktree status", "error", err)
	} else if dirty {
		r.logger.Warn("the repository contains uncommitted changes that will not be synced")
	}

	tree, err := r.repo.ResolveTarget(ctx, ref)
	if err != nil {
		return git.TreeHandle{}, err
	}
	return tree, nil
}

// ResolveOld returns the tree last synced to the remote, or the empty tree
// when force is set or no pointer exists
func (r *Resolver) ResolveOld(ctx context.Context, force bool) (git.TreeHandle, error) {
	if force {
		r.logger.Info("forcing a full reupload")
		return git.EmptyTree, nil
	}

	hash, ok, err := r.pointer.Read(ctx)
	if err != nil {
		return git.TreeHandle{}, err
	}
	if !ok {
		r.logger.Info("remote has no sync pointer, starting from the empty tree")
		return git.EmptyTree, nil
	}

	tree, err := r.repo.LookupTree(ctx, hash)
	if err != nil {
		return git.TreeHandle{}, fmt.Errorf("remote points at unknown tree %s (use --force to reupload everything): %w", hash, err)
	}
	return tree, nil
}
