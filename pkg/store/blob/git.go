// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package blob

import (
	"context"
	"io"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/ldproxy/ldproxy-cfg/pkg/store"
	"github.com/pkg/errors"
)

// Git is a read-only Source over the tree of one commit.
type Git struct {
	*index
	Commit plumbing.Hash
}

// NewGit indexes the tree at the repository's HEAD.
func NewGit(repo *git.Repository) (*Git, error) {
	head, err := repo.Head()
	if err != nil {
		return nil, store.IO("resolve HEAD", "", err)
	}
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return nil, store.IO("read commit", head.Hash().String(), err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, store.IO("read tree", head.Hash().String(), err)
	}
	g := &Git{index: newIndex(), Commit: commit.Hash}
	err = tree.Files().ForEach(func(f *object.File) error {
		return g.add(f.Name, leaf{
			size: f.Size,
			open: func() (io.ReadCloser, error) { return f.Reader() },
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "indexing tree")
	}
	return g, nil
}

// CloneGit clones url into memory and indexes the tip of branch, or of the
// default branch if branch is empty.
func CloneGit(ctx context.Context, url, branch string) (*Git, error) {
	opts := &git.CloneOptions{URL: url, SingleBranch: true, NoCheckout: true}
	if branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(branch)
	}
	repo, err := git.CloneContext(ctx, memory.NewStorage(), nil, opts)
	if err != nil {
		return nil, store.IO("clone", url, err)
	}
	return NewGit(repo)
}

var _ Source = &Git{}
