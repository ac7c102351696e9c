// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package blob

import (
	"context"
	"io"
	"io/fs"
	"iter"
	"os"
	"path"
	"path/filepath"
	"sort"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/google/uuid"
	"github.com/ldproxy/ldproxy-cfg/pkg/store"
	"github.com/pkg/errors"
)

// FS is a Source backed by a billy.Filesystem.
type FS struct {
	fs       billy.Filesystem
	readOnly bool
	// mu serializes access to the filesystem metadata. memfs is not safe for
	// concurrent use and osfs does not mind.
	mu sync.RWMutex
}

// NewFS creates a writable FS.
func NewFS(fs billy.Filesystem) *FS {
	return &FS{fs: fs}
}

// NewReadOnlyFS creates an FS that rejects writes.
func NewReadOnlyFS(fs billy.Filesystem) *FS {
	return &FS{fs: fs, readOnly: true}
}

// NewMemory creates an empty in-memory FS.
func NewMemory() *FS {
	return NewFS(memfs.New())
}

// OpenDir creates an FS rooted at the absolute directory dir.
func OpenDir(dir string) (*FS, error) {
	if !filepath.IsAbs(dir) {
		return nil, errors.Wrapf(store.ErrInvalidArgument, "directory %q is not absolute", dir)
	}
	return NewFS(osfs.New(dir)), nil
}

// Filesystem exposes the underlying filesystem.
func (f *FS) Filesystem() billy.Filesystem { return f.fs }

// Writable reports whether the source accepts writes.
func (f *FS) Writable() bool { return !f.readOnly }

// billy resolves "/" against its own root for every implementation we use.
func abs(p string) string { return "/" + p }

func (f *FS) stat(p string) (os.FileInfo, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.fs.Stat(abs(p))
}

// Has reports whether p exists.
func (f *FS) Has(ctx context.Context, p string) (bool, error) {
	p, err := Clean(p)
	if err != nil {
		return false, err
	}
	if _, err := f.stat(p); errors.Is(err, fs.ErrNotExist) {
		return false, nil
	} else if err != nil {
		return false, store.IO("stat", p, err)
	}
	return true, nil
}

// Size returns the size of a leaf or the summed size of a directory.
func (f *FS) Size(ctx context.Context, p string) (int64, error) {
	p, err := Clean(p)
	if err != nil {
		return 0, err
	}
	info, err := f.stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, errors.Wrap(store.ErrNotFound, p)
	} else if err != nil {
		return 0, store.IO("stat", p, err)
	}
	if !info.IsDir() {
		return info.Size(), nil
	}
	return sumValues(ctx, f, p)
}

func (f *FS) list(dir string) ([]entry, error) {
	f.mu.RLock()
	infos, err := f.fs.ReadDir(abs(dir))
	f.mu.RUnlock()
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errors.Wrap(store.ErrNotFound, dir)
	} else if err != nil {
		return nil, store.IO("readdir", dir, err)
	}
	entries := make([]entry, 0, len(infos))
	for _, info := range infos {
		// Symlinks are reported as non-directories and never descended into.
		entries = append(entries, entry{
			name:  info.Name(),
			attrs: Attributes{Dir: info.IsDir(), Size: info.Size()},
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })
	return entries, nil
}

// Walk enumerates entries below root.
func (f *FS) Walk(ctx context.Context, root string, maxDepth int, match Matcher) iter.Seq2[string, error] {
	return walkTree(ctx, f.list, root, maxDepth, match)
}

// Get opens p for reading.
func (f *FS) Get(ctx context.Context, p string) (io.ReadCloser, error) {
	p, err := Clean(p)
	if err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	file, err := f.fs.Open(abs(p))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errors.Wrap(store.ErrNotFound, p)
	} else if err != nil {
		return nil, store.IO("open", p, err)
	}
	return file, nil
}

// Put writes r to p by way of a hidden temporary file renamed into place.
func (f *FS) Put(ctx context.Context, p string, r io.Reader) error {
	if f.readOnly {
		return errors.Wrap(store.ErrReadOnly, p)
	}
	p, err := Clean(p)
	if err != nil {
		return err
	}
	if p == "" {
		return errors.Wrap(store.ErrInvalidArgument, "cannot write to the source root")
	}
	dir, name := path.Split(p)
	tmp := path.Join(dir, "."+name+"."+uuid.NewString()+".tmp")
	f.mu.Lock()
	defer f.mu.Unlock()
	if dir != "" {
		if err := f.fs.MkdirAll(abs(path.Clean(dir)), 0755); err != nil {
			return store.IO("mkdir", dir, err)
		}
	}
	file, err := f.fs.Create(abs(tmp))
	if err != nil {
		return store.IO("create", p, err)
	}
	_, copyErr := io.Copy(file, r)
	closeErr := file.Close()
	if err := firstErr(copyErr, closeErr); err != nil {
		f.fs.Remove(abs(tmp))
		return store.IO("write", p, err)
	}
	if err := f.fs.Rename(abs(tmp), abs(p)); err != nil {
		f.fs.Remove(abs(tmp))
		return store.IO("rename", p, err)
	}
	return nil
}

// Delete removes a leaf or an empty directory.
func (f *FS) Delete(ctx context.Context, p string) error {
	if f.readOnly {
		return errors.Wrap(store.ErrReadOnly, p)
	}
	p, err := Clean(p)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fs.Remove(abs(p)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return store.IO("remove", p, err)
	}
	return nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

var _ Source = &FS{}
