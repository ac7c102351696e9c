// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package archive_test

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/google/go-cmp/cmp"
	"github.com/ldproxy/ldproxy-cfg/pkg/archive"
	"github.com/ldproxy/ldproxy-cfg/pkg/archive/archivetest"
	"github.com/ldproxy/ldproxy-cfg/pkg/store/blob"
	"github.com/pkg/errors"
)

func tree(t *testing.T) *blob.FS {
	t.Helper()
	fs := memfs.New()
	for name, content := range map[string]string{
		"data/store/entities/instances/services/a.yml": "id: a\n",
		"data/store/values/styles/s.json":              "{}",
		"data/store/.git/HEAD":                         "ref",
		"data/.hidden":                                 "x",
		"data/cfg.yml":                                 "store: {}\n",
	} {
		if err := util.WriteFile(fs, name, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return blob.NewFS(fs)
}

func TestWriteZip(t *testing.T) {
	ctx := context.Background()
	src := tree(t)
	var buf bytes.Buffer
	if err := archive.WriteZip(ctx, src, "data", &buf, archive.ZipOpts{}); err != nil {
		t.Fatal(err)
	}
	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
		if !f.Modified.Equal(time.UnixMilli(0)) {
			t.Errorf("%s modified = %v", f.Name, f.Modified)
		}
	}
	want := []string{
		"cfg.yml",
		"store/entities/instances/services/a.yml",
		"store/values/styles/s.json",
	}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}

	var again bytes.Buffer
	if err := archive.WriteZip(ctx, src, "data", &again, archive.ZipOpts{}); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf.Bytes(), again.Bytes()) {
		t.Error("archives of the same tree differ")
	}

	fromTree, err := archive.NewContentSummaryFromTree(ctx, src, "data")
	if err != nil {
		t.Fatal(err)
	}
	fromZip, err := archive.NewContentSummaryFromZip(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(fromTree, fromZip); diff != "" {
		t.Errorf("summary mismatch (-tree +zip):\n%s", diff)
	}
}

func TestContentSummaryDiff(t *testing.T) {
	left, err := archivetest.ZipFile([]archive.ZipEntry{
		{FileHeader: &zip.FileHeader{Name: "a"}, Body: []byte("a")},
		{FileHeader: &zip.FileHeader{Name: "b"}, Body: []byte("b")},
		{FileHeader: &zip.FileHeader{Name: "c"}, Body: []byte("c")},
	})
	if err != nil {
		t.Fatal(err)
	}
	right, err := archivetest.ZipFile([]archive.ZipEntry{
		{FileHeader: &zip.FileHeader{Name: "d"}, Body: []byte("d")},
		{FileHeader: &zip.FileHeader{Name: "b"}, Body: []byte("changed")},
		{FileHeader: &zip.FileHeader{Name: "c"}, Body: []byte("c")},
	})
	if err != nil {
		t.Fatal(err)
	}
	l, err := archive.NewContentSummaryFromZip(left)
	if err != nil {
		t.Fatal(err)
	}
	r, err := archive.NewContentSummaryFromZip(right)
	if err != nil {
		t.Fatal(err)
	}
	leftOnly, diffs, rightOnly := l.Diff(r)
	if diff := cmp.Diff([][]string{{"a"}, {"b"}, {"d"}}, [][]string{leftOnly, diffs, rightOnly}); diff != "" {
		t.Errorf("Diff() mismatch (-want +got):\n%s", diff)
	}
}

type noSeekReaderAt struct {
	io.ReaderAt
	r io.Reader
}

func (ns *noSeekReaderAt) Read(p []byte) (int, error) { return ns.r.Read(p) }

type onlyReader struct{ io.Reader }

func TestToZipCompatibleReader(t *testing.T) {
	data := []byte("test data")
	for _, tc := range []struct {
		name  string
		input io.Reader
	}{
		{"seekable ReaderAt", bytes.NewReader(data)},
		{"non-seekable ReaderAt", &noSeekReaderAt{bytes.NewReader(data), bytes.NewReader(data)}},
		{"plain Reader", onlyReader{bytes.NewReader(data)}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ra, size, err := archive.ToZipCompatibleReader(tc.input)
			if err != nil {
				t.Fatal(err)
			}
			if size != int64(len(data)) {
				t.Errorf("size = %d, want %d", size, len(data))
			}
			got := make([]byte, size)
			if _, err := ra.ReadAt(got, 0); err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(got, data) {
				t.Errorf("content = %q", got)
			}
		})
	}
}

func TestWriteZipTooDeep(t *testing.T) {
	ctx := context.Background()
	deep := strings.Repeat("d/", blob.DefaultMaxDepth) + "f.yml"
	for _, tc := range []struct {
		name    string
		files   []string
		wantErr bool
	}{
		{"visible", []string{"a.yml", deep}, true},
		{"hidden", []string{"a.yml", ".cache/" + deep}, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			fs := memfs.New()
			for _, name := range tc.files {
				if err := util.WriteFile(fs, name, []byte("x"), 0644); err != nil {
					t.Fatal(err)
				}
			}
			src := blob.NewFS(fs)
			err := archive.WriteZip(ctx, src, "", io.Discard, archive.ZipOpts{})
			if got := errors.Is(err, archive.ErrTooDeep); got != tc.wantErr {
				t.Errorf("WriteZip() = %v, want ErrTooDeep: %v", err, tc.wantErr)
			}
			_, err = archive.NewContentSummaryFromTree(ctx, src, "")
			if got := errors.Is(err, archive.ErrTooDeep); got != tc.wantErr {
				t.Errorf("NewContentSummaryFromTree() = %v, want ErrTooDeep: %v", err, tc.wantErr)
			}
		})
	}
}
