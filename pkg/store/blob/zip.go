// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package blob

import (
	"archive/zip"
	"io"
	"strings"

	"github.com/ldproxy/ldproxy-cfg/pkg/store"
	"github.com/pkg/errors"
)

// Zip is a read-only Source over the entries of a zip archive.
type Zip struct {
	*index
	closer io.Closer
}

// NewZip indexes the archive in r.
func NewZip(r io.ReaderAt, size int64) (*Zip, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, store.IO("open zip", "", err)
	}
	return newZip(zr, nil)
}

// OpenZip opens and indexes the archive at name. The caller must Close it.
func OpenZip(name string) (*Zip, error) {
	rc, err := zip.OpenReader(name)
	if err != nil {
		return nil, store.IO("open zip", name, err)
	}
	z, err := newZip(&rc.Reader, rc)
	if err != nil {
		rc.Close()
		return nil, err
	}
	return z, nil
}

func newZip(zr *zip.Reader, closer io.Closer) (*Zip, error) {
	z := &Zip{index: newIndex(), closer: closer}
	for _, f := range zr.File {
		if strings.HasSuffix(f.Name, "/") {
			p, err := Clean(strings.TrimSuffix(f.Name, "/"))
			if err != nil {
				return nil, errors.Wrapf(err, "zip entry %q", f.Name)
			}
			z.addDir(p)
			continue
		}
		err := z.add(f.Name, leaf{
			size: int64(f.UncompressedSize64),
			open: f.Open,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "zip entry %q", f.Name)
		}
	}
	return z, nil
}

// Close releases the archive if it was opened by OpenZip.
func (z *Zip) Close() error {
	if z.closer == nil {
		return nil
	}
	return z.closer.Close()
}

var _ Source = &Zip{}
