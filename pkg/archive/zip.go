// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/ldproxy/ldproxy-cfg/pkg/store/blob"
	"github.com/pkg/errors"
)

// ZipEntry represents an entry in a zip archive.
type ZipEntry struct {
	*zip.FileHeader
	Body []byte
}

// WriteTo writes the ZipEntry to a zip writer.
func (e ZipEntry) WriteTo(zw *zip.Writer) error {
	fw, err := zw.CreateHeader(e.FileHeader)
	if err != nil {
		return err
	}
	if _, err := io.Copy(fw, bytes.NewReader(e.Body)); err != nil {
		return err
	}
	return nil
}

// ZipOpts configures WriteZip.
type ZipOpts struct {
	// Prefix is prepended to every entry name.
	Prefix string
	// Modified is the modification time of every entry. The zero value
	// stamps entries with the Unix epoch so that equal trees produce
	// identical archives.
	Modified time.Time
}

type treeFile struct {
	// path is the location in the source, name the entry name.
	path, name string
}

// ErrTooDeep is returned for trees nested deeper than blob.DefaultMaxDepth.
var ErrTooDeep = errors.Errorf("tree is nested deeper than %d levels", blob.DefaultMaxDepth)

// treeFiles lists the non-hidden files below root in name order. It fails
// rather than leave out content below the depth bound of the walk.
func treeFiles(ctx context.Context, src blob.ReadOnlySource, root string) ([]treeFile, error) {
	var files []treeFile
	var tooDeep string
	match := func(p string, a blob.Attributes) bool {
		if a.Dir && blob.Depth(p) == blob.DefaultMaxDepth && !blob.IsHidden(p) && tooDeep == "" {
			tooDeep = p
		}
		return blob.Values(p, a)
	}
	for rel, err := range src.Walk(ctx, root, blob.DefaultMaxDepth, match) {
		if err != nil {
			return nil, errors.Wrap(err, "listing files")
		}
		files = append(files, treeFile{path: path.Join(root, rel), name: rel})
	}
	if tooDeep != "" {
		return nil, errors.Wrapf(ErrTooDeep, "below %s", path.Join(root, tooDeep))
	}
	slices.SortFunc(files, func(a, b treeFile) int { return strings.Compare(a.name, b.name) })
	return files, nil
}

// WriteZip writes the files below root to w as a zip archive. Entry names are
// relative to root; hidden files are left out.
func WriteZip(ctx context.Context, src blob.ReadOnlySource, root string, w io.Writer, opts ZipOpts) error {
	files, err := treeFiles(ctx, src, root)
	if err != nil {
		return err
	}
	modified := opts.Modified
	if modified.IsZero() {
		modified = time.UnixMilli(0)
	}
	zw := zip.NewWriter(w)
	for _, f := range files {
		rc, err := src.Get(ctx, f.path)
		if err != nil {
			return err
		}
		fw, err := zw.CreateHeader(&zip.FileHeader{
			Name:     path.Join(opts.Prefix, f.name),
			Method:   zip.Deflate,
			Modified: modified,
		})
		if err == nil {
			_, err = io.Copy(fw, rc)
		}
		rc.Close()
		if err != nil {
			return errors.Wrapf(err, "writing %s", f.name)
		}
	}
	return errors.Wrap(zw.Close(), "finishing zip")
}

// ToZipCompatibleReader coerces an io.Reader into an io.ReaderAt required to construct a zip.Reader.
func ToZipCompatibleReader(r io.Reader) (io.ReaderAt, int64, error) {
	seeker, seekerOK := r.(io.Seeker)
	readerAt, readerOK := r.(io.ReaderAt)
	if seekerOK && readerOK {
		pos, err := seeker.Seek(0, io.SeekCurrent)
		if err != nil {
			return nil, 0, errors.Wrap(err, "locating reader position")
		}
		size, err := seeker.Seek(0, io.SeekEnd)
		if err != nil {
			return nil, 0, errors.Wrap(err, "retrieving size")
		}
		if _, err := seeker.Seek(pos, io.SeekStart); err != nil {
			return nil, 0, errors.Wrap(err, "restoring reader position")
		}
		return readerAt, size, nil
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, 0, errors.New("unsupported reader")
	}
	return bytes.NewReader(b), int64(len(b)), nil
}

// NewContentSummaryFromZip summarizes the files of a zip archive read from r.
func NewContentSummaryFromZip(r io.Reader) (*ContentSummary, error) {
	ra, size, err := ToZipCompatibleReader(r)
	if err != nil {
		return nil, err
	}
	zr, err := zip.NewReader(ra, size)
	if err != nil {
		return nil, errors.Wrap(err, "initializing zip reader")
	}
	files := slices.Clone(zr.File)
	slices.SortFunc(files, func(a, b *zip.File) int { return strings.Compare(a.Name, b.Name) })
	var cs ContentSummary
	for _, f := range files {
		if f.FileInfo().IsDir() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		err = cs.add(f.Name, rc)
		rc.Close()
		if err != nil {
			return nil, err
		}
	}
	return &cs, nil
}
