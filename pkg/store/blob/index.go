// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package blob

import (
	"context"
	"io"
	"iter"
	"path"
	"sort"

	"github.com/ldproxy/ldproxy-cfg/pkg/store"
	"github.com/pkg/errors"
)

type leaf struct {
	size int64
	open func() (io.ReadCloser, error)
}

// index is a read-only Source over a fixed set of leaves, as found in
// archives and git trees. Directories are implied by leaf paths.
type index struct {
	leaves   map[string]leaf
	children map[string]map[string]bool // dir -> child name -> isDir
}

func newIndex() *index {
	return &index{
		leaves:   make(map[string]leaf),
		children: map[string]map[string]bool{"": {}},
	}
}

func (x *index) addDir(p string) {
	if _, ok := x.children[p]; ok {
		return
	}
	x.children[p] = make(map[string]bool)
	parent := parentDir(p)
	x.addDir(parent)
	x.children[parent][path.Base(p)] = true
}

func parentDir(p string) string {
	if parent := path.Dir(p); parent != "." {
		return parent
	}
	return ""
}

func (x *index) add(p string, l leaf) error {
	p, err := Clean(p)
	if err != nil {
		return err
	}
	if p == "" {
		return nil
	}
	parent := parentDir(p)
	x.addDir(parent)
	x.leaves[p] = l
	x.children[parent][path.Base(p)] = false
	return nil
}

func (x *index) Has(ctx context.Context, p string) (bool, error) {
	p, err := Clean(p)
	if err != nil {
		return false, err
	}
	if _, ok := x.leaves[p]; ok {
		return true, nil
	}
	_, ok := x.children[p]
	return ok, nil
}

func (x *index) Size(ctx context.Context, p string) (int64, error) {
	p, err := Clean(p)
	if err != nil {
		return 0, err
	}
	if l, ok := x.leaves[p]; ok {
		return l.size, nil
	}
	if _, ok := x.children[p]; !ok {
		return 0, errors.Wrap(store.ErrNotFound, p)
	}
	return sumValues(ctx, x, p)
}

func (x *index) list(dir string) ([]entry, error) {
	kids, ok := x.children[dir]
	if !ok {
		return nil, errors.Wrap(store.ErrNotFound, dir)
	}
	entries := make([]entry, 0, len(kids))
	for name, isDir := range kids {
		e := entry{name: name, attrs: Attributes{Dir: isDir}}
		if !isDir {
			e.attrs.Size = x.leaves[path.Join(dir, name)].size
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })
	return entries, nil
}

func (x *index) Walk(ctx context.Context, root string, maxDepth int, match Matcher) iter.Seq2[string, error] {
	return walkTree(ctx, x.list, root, maxDepth, match)
}

func (x *index) Get(ctx context.Context, p string) (io.ReadCloser, error) {
	p, err := Clean(p)
	if err != nil {
		return nil, err
	}
	l, ok := x.leaves[p]
	if !ok {
		return nil, errors.Wrap(store.ErrNotFound, p)
	}
	r, err := l.open()
	if err != nil {
		return nil, store.IO("open", p, err)
	}
	return r, nil
}

func (x *index) Put(ctx context.Context, p string, r io.Reader) error {
	return errors.Wrap(store.ErrReadOnly, p)
}

func (x *index) Delete(ctx context.Context, p string) error {
	return errors.Wrap(store.ErrReadOnly, p)
}

func (x *index) Writable() bool { return false }
