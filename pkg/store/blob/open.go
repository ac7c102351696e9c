// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package blob

import (
	"context"
	"io"
	"strings"

	"github.com/ldproxy/ldproxy-cfg/pkg/store"
	"github.com/ldproxy/ldproxy-cfg/pkg/store/source"
	"github.com/pkg/errors"
	"google.golang.org/api/option"
)

// Opened is a Source together with a function releasing it.
type Opened struct {
	Source
	io.Closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open constructs the blob source for src, rooted at src.Root().
func Open(ctx context.Context, src source.Source, gcsOpts ...option.ClientOption) (*Opened, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}
	var base Source
	var closer io.Closer = nopCloser{}
	switch src.Type {
	case source.FS:
		fs, err := OpenDir(src.Src)
		if err != nil {
			return nil, err
		}
		if !src.Writable() {
			fs.readOnly = true
		}
		base = fs
	case source.ZIP:
		z, err := OpenZip(src.Src)
		if err != nil {
			return nil, err
		}
		base, closer = z, z
	case source.GIT:
		g, err := CloneGit(ctx, src.Src, src.Ref)
		if err != nil {
			return nil, err
		}
		base = g
	case source.GCS:
		g, err := NewGCS(ctx, src.Src, gcsOpts...)
		if err != nil {
			return nil, err
		}
		base, closer = g, g
	default:
		return nil, errors.Wrapf(store.ErrInvalidArgument, "unknown source type %q", src.Type)
	}
	rooted, err := Sub(base, src.Prefix)
	if err != nil {
		closer.Close()
		return nil, err
	}
	if src.Mode == source.RO && rooted.Writable() {
		rooted = readOnly{rooted}
	}
	return &Opened{Source: rooted, Closer: closer}, nil
}

type readOnly struct{ Source }

func (r readOnly) Put(ctx context.Context, p string, _ io.Reader) error {
	return errors.Wrap(store.ErrReadOnly, p)
}

func (r readOnly) Delete(ctx context.Context, p string) error {
	return errors.Wrap(store.ErrReadOnly, p)
}

func (r readOnly) Writable() bool { return false }

// Part is one single-content part of an opened source.
type Part struct {
	Source source.Source
	Blob   Source
}

// OpenParts opens src once and returns a view per content kind it serves.
func OpenParts(ctx context.Context, src source.Source, gcsOpts ...option.ClientOption) ([]Part, io.Closer, error) {
	opened, err := Open(ctx, src, gcsOpts...)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "opening %s", src.Label())
	}
	parts, err := Split(opened.Source, src)
	if err != nil {
		opened.Close()
		return nil, nil, err
	}
	return parts, opened, nil
}

// Split divides root, the opened blob source of src, into one view per
// content kind src serves.
func Split(root Source, src source.Source) ([]Part, error) {
	var parts []Part
	for _, sub := range src.Explode() {
		rel := strings.TrimPrefix(strings.TrimPrefix(sub.Prefix, src.Prefix), "/")
		b, err := Sub(root, rel)
		if err != nil {
			return nil, err
		}
		parts = append(parts, Part{Source: sub, Blob: b})
	}
	return parts, nil
}
