// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package blob

import (
	"context"
	"io"
	"iter"
	"path"
	"strings"

	gcs "cloud.google.com/go/storage"
	"github.com/ldproxy/ldproxy-cfg/internal/iterx"
	"github.com/ldproxy/ldproxy-cfg/pkg/store"
	"github.com/pkg/errors"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCS is a Source over the objects below a bucket prefix.
//
// Buckets have no directories: they are implied by object names, are
// reported by Walk, and deleting one is a no-op.
type GCS struct {
	client *gcs.Client
	bucket string
	prefix string
}

// NewGCS creates a GCS source for a "gs://bucket/prefix" URI.
func NewGCS(ctx context.Context, uri string, opts ...option.ClientOption) (*GCS, error) {
	if !strings.HasPrefix(uri, "gs://") {
		return nil, errors.Wrapf(store.ErrInvalidArgument, "not a gs:// URI: %q", uri)
	}
	bucket, prefix, _ := strings.Cut(strings.TrimPrefix(uri, "gs://"), "/")
	if bucket == "" {
		return nil, errors.Wrapf(store.ErrInvalidArgument, "no bucket in %q", uri)
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "creating GCS client")
	}
	return &GCS{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}, nil
}

// Close releases the client.
func (s *GCS) Close() error { return s.client.Close() }

func (s *GCS) name(p string) (string, error) {
	p, err := Clean(p)
	if err != nil {
		return "", err
	}
	return path.Join(s.prefix, p), nil
}

func (s *GCS) hasPrefix(ctx context.Context, name string) (bool, error) {
	q := &gcs.Query{}
	if name != "" {
		q.Prefix = name + "/"
	}
	_, err := s.client.Bucket(s.bucket).Objects(ctx, q).Next()
	if err == iterator.Done {
		return false, nil
	} else if err != nil {
		return false, store.IO("list", name, err)
	}
	return true, nil
}

// Has reports whether an object or an object prefix exists at p.
func (s *GCS) Has(ctx context.Context, p string) (bool, error) {
	name, err := s.name(p)
	if err != nil {
		return false, err
	}
	if name != "" {
		_, err := s.client.Bucket(s.bucket).Object(name).Attrs(ctx)
		if err == nil {
			return true, nil
		} else if !errors.Is(err, gcs.ErrObjectNotExist) {
			return false, store.IO("stat", name, err)
		}
	}
	return s.hasPrefix(ctx, name)
}

// Size returns the object size, or the summed size of objects below p.
func (s *GCS) Size(ctx context.Context, p string) (int64, error) {
	name, err := s.name(p)
	if err != nil {
		return 0, err
	}
	if name != "" {
		attrs, err := s.client.Bucket(s.bucket).Object(name).Attrs(ctx)
		if err == nil {
			return attrs.Size, nil
		} else if !errors.Is(err, gcs.ErrObjectNotExist) {
			return 0, store.IO("stat", name, err)
		}
	}
	if ok, err := s.hasPrefix(ctx, name); err != nil {
		return 0, err
	} else if !ok {
		return 0, errors.Wrap(store.ErrNotFound, p)
	}
	return sumValues(ctx, s, p)
}

// Walk lists objects below root, synthesizing their parent directories.
func (s *GCS) Walk(ctx context.Context, root string, maxDepth int, match Matcher) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		base, err := s.name(root)
		if err != nil {
			yield("", err)
			return
		}
		q := &gcs.Query{}
		if base != "" {
			q.Prefix = base + "/"
		}
		it := s.client.Bucket(s.bucket).Objects(ctx, q)
		seen := make(map[string]bool)
		for attrs, err := range iterx.Seq2[*gcs.ObjectAttrs](it, iterator.Done) {
			if err != nil {
				yield("", store.IO("list", base, err))
				return
			}
			rel := strings.TrimPrefix(attrs.Name, q.Prefix)
			if rel == "" || strings.HasSuffix(rel, "/") {
				// Folder placeholder objects.
				continue
			}
			segs := strings.Split(rel, "/")
			for i := 1; i < len(segs) && i <= maxDepth; i++ {
				dir := strings.Join(segs[:i], "/")
				if seen[dir] {
					continue
				}
				seen[dir] = true
				if match(dir, Attributes{Dir: true}) && !yield(dir, nil) {
					return
				}
			}
			if len(segs) > maxDepth {
				continue
			}
			if match(rel, Attributes{Size: attrs.Size}) && !yield(rel, nil) {
				return
			}
		}
	}
}

// Get opens the object at p.
func (s *GCS) Get(ctx context.Context, p string) (io.ReadCloser, error) {
	name, err := s.name(p)
	if err != nil {
		return nil, err
	}
	r, err := s.client.Bucket(s.bucket).Object(name).NewReader(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil, errors.Wrap(store.ErrNotFound, p)
	} else if err != nil {
		return nil, store.IO("open", name, err)
	}
	return r, nil
}

// Put uploads r to p. The object only becomes visible once fully written.
func (s *GCS) Put(ctx context.Context, p string, r io.Reader) error {
	name, err := s.name(p)
	if err != nil {
		return err
	}
	w := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return store.IO("write", name, err)
	}
	return store.IO("write", name, w.Close())
}

// Delete removes the object at p.
func (s *GCS) Delete(ctx context.Context, p string) error {
	name, err := s.name(p)
	if err != nil {
		return err
	}
	err = s.client.Bucket(s.bucket).Object(name).Delete(ctx)
	if err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return store.IO("delete", name, err)
	}
	return nil
}

// Writable is always true; permissions are enforced by the bucket.
func (s *GCS) Writable() bool { return true }

var _ Source = &GCS{}
