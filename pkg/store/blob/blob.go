// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Package blob provides byte-addressable storage under a relative path namespace.
//
// Every Source resolves paths relative to its own root. Paths use "/" as the
// separator; absolute paths and paths escaping the root are rejected.
package blob

import (
	"context"
	"io"
	"iter"
	"path"
	"slices"
	"strings"

	"github.com/ldproxy/ldproxy-cfg/pkg/store"
	"github.com/pkg/errors"
)

// DefaultMaxDepth bounds walks over store content.
const DefaultMaxDepth = 16

// Attributes describe one walked entry.
type Attributes struct {
	Dir  bool
	Size int64
}

// IsValue reports whether the entry is a leaf holding bytes.
func (a Attributes) IsValue() bool { return !a.Dir }

// Matcher selects which walked entries are yielded. Directories are descended
// into regardless of whether they match.
type Matcher func(p string, a Attributes) bool

// All matches every entry.
func All(string, Attributes) bool { return true }

// Values matches leaf entries that are not hidden.
func Values(p string, a Attributes) bool { return a.IsValue() && !IsHidden(p) }

// Dirs matches directories.
func Dirs(_ string, a Attributes) bool { return a.Dir }

// WithExtensions matches non-hidden leaf entries carrying one of exts (".yml").
func WithExtensions(exts ...string) Matcher {
	return func(p string, a Attributes) bool {
		return Values(p, a) && slices.Contains(exts, path.Ext(p))
	}
}

// IsHidden reports whether any segment of p starts with a dot.
func IsHidden(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if strings.HasPrefix(seg, ".") && seg != "." && seg != ".." {
			return true
		}
	}
	return false
}

// ReadOnlySource is the read half of a Source.
type ReadOnlySource interface {
	// Has reports whether p exists. Has(ctx, "") reports whether the root exists.
	Has(ctx context.Context, p string) (bool, error)
	// Size returns the byte size of p, summed over leaves for directories.
	Size(ctx context.Context, p string) (int64, error)
	// Walk lazily enumerates entries below root down to maxDepth segments.
	// Yielded paths are relative to root. Each call re-enumerates.
	Walk(ctx context.Context, root string, maxDepth int, match Matcher) iter.Seq2[string, error]
	// Get opens p for reading. Returns store.ErrNotFound if absent.
	Get(ctx context.Context, p string) (io.ReadCloser, error)
}

// Source is a readable and writable blob store.
type Source interface {
	ReadOnlySource
	// Put replaces the content of p.
	Put(ctx context.Context, p string, r io.Reader) error
	// Delete removes a leaf or an empty directory. Deleting a missing path is not an error.
	Delete(ctx context.Context, p string) error
	// Writable reports whether Put and Delete can succeed.
	Writable() bool
}

// Content reads all of p.
func Content(ctx context.Context, src ReadOnlySource, p string) ([]byte, error) {
	r, err := src.Get(ctx, p)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, store.IO("read", p, err)
	}
	return b, nil
}

// Clean validates p and normalizes it to a root-relative form, "" being the root.
func Clean(p string) (string, error) {
	p = strings.ReplaceAll(p, "\\", "/")
	if strings.HasPrefix(p, "/") {
		return "", errors.Wrapf(store.ErrInvalidArgument, "absolute path %q", p)
	}
	c := path.Clean(p)
	if c == "." {
		return "", nil
	}
	if c == ".." || strings.HasPrefix(c, "../") {
		return "", errors.Wrapf(store.ErrInvalidArgument, "path %q escapes the source root", p)
	}
	return c, nil
}

// Depth returns the number of segments in a clean relative path.
func Depth(p string) int {
	if p == "" {
		return 0
	}
	return strings.Count(p, "/") + 1
}

type entry struct {
	name  string
	attrs Attributes
}

// listFunc lists the direct children of a clean relative directory, sorted by name.
// It returns store.ErrNotFound if dir does not exist.
type listFunc func(dir string) ([]entry, error)

// walkTree implements Walk for hierarchical sources.
func walkTree(ctx context.Context, list listFunc, root string, maxDepth int, match Matcher) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		root, err := Clean(root)
		if err != nil {
			yield("", err)
			return
		}
		var visit func(rel string, depth int) bool
		visit = func(rel string, depth int) bool {
			if err := ctx.Err(); err != nil {
				yield("", err)
				return false
			}
			entries, err := list(path.Join(root, rel))
			if errors.Is(err, store.ErrNotFound) && depth == 0 {
				return false
			} else if err != nil {
				yield("", err)
				return false
			}
			for _, e := range entries {
				p := path.Join(rel, e.name)
				if match(p, e.attrs) && !yield(p, nil) {
					return false
				}
				if e.attrs.Dir && depth+1 < maxDepth {
					if !visit(p, depth+1) {
						return false
					}
				}
			}
			return true
		}
		if maxDepth > 0 {
			visit("", 0)
		}
	}
}

// sumValues totals the sizes of the leaves below root.
func sumValues(ctx context.Context, src ReadOnlySource, root string) (int64, error) {
	var total, last int64
	for _, err := range src.Walk(ctx, root, DefaultMaxDepth, func(_ string, a Attributes) bool {
		last = a.Size
		return a.IsValue()
	}) {
		if err != nil {
			return 0, err
		}
		total += last
	}
	return total, nil
}

// Sub returns a view of src rooted at prefix.
func Sub(src Source, prefix string) (Source, error) {
	prefix, err := Clean(prefix)
	if err != nil {
		return nil, err
	}
	if prefix == "" {
		return src, nil
	}
	return &sub{src: src, prefix: prefix}, nil
}

type sub struct {
	src    Source
	prefix string
}

func (s *sub) resolve(p string) (string, error) {
	p, err := Clean(p)
	if err != nil {
		return "", err
	}
	return path.Join(s.prefix, p), nil
}

func (s *sub) Has(ctx context.Context, p string) (bool, error) {
	full, err := s.resolve(p)
	if err != nil {
		return false, err
	}
	return s.src.Has(ctx, full)
}

func (s *sub) Size(ctx context.Context, p string) (int64, error) {
	full, err := s.resolve(p)
	if err != nil {
		return 0, err
	}
	return s.src.Size(ctx, full)
}

func (s *sub) Walk(ctx context.Context, root string, maxDepth int, match Matcher) iter.Seq2[string, error] {
	full, err := s.resolve(root)
	if err != nil {
		return func(yield func(string, error) bool) { yield("", err) }
	}
	return s.src.Walk(ctx, full, maxDepth, match)
}

func (s *sub) Get(ctx context.Context, p string) (io.ReadCloser, error) {
	full, err := s.resolve(p)
	if err != nil {
		return nil, err
	}
	return s.src.Get(ctx, full)
}

func (s *sub) Put(ctx context.Context, p string, r io.Reader) error {
	full, err := s.resolve(p)
	if err != nil {
		return err
	}
	return s.src.Put(ctx, full, r)
}

func (s *sub) Delete(ctx context.Context, p string) error {
	full, err := s.resolve(p)
	if err != nil {
		return err
	}
	return s.src.Delete(ctx, full)
}

func (s *sub) Writable() bool { return s.src.Writable() }

var _ Source = &sub{}
