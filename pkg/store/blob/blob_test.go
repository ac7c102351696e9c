// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package blob

import (
	"archive/zip"
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/google/go-cmp/cmp"
	"github.com/ldproxy/ldproxy-cfg/pkg/store"
	"github.com/pkg/errors"
)

var fixture = map[string]string{
	"store/entities/instances/providers/a.yml": "id: a\n",
	"store/entities/instances/providers/b.yml": "id: b\n",
	"store/entities/instances/services/a.yml":  "id: a\n",
	"store/values/maplibre-styles/a/s.json":    "{}",
	"store/.hidden/x.yml":                      "x",
}

func memFixture(t *testing.T) *FS {
	t.Helper()
	fs := memfs.New()
	for name, content := range fixture {
		if err := util.WriteFile(fs, name, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return NewFS(fs)
}

func zipFixture(t *testing.T) *Zip {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range fixture {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		w.Write([]byte(content))
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	z, err := NewZip(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatal(err)
	}
	return z
}

func gitFixture(t *testing.T) *Git {
	t.Helper()
	wt := memfs.New()
	repo, err := git.Init(memory.NewStorage(), wt)
	if err != nil {
		t.Fatal(err)
	}
	w, err := repo.Worktree()
	if err != nil {
		t.Fatal(err)
	}
	for name, content := range fixture {
		if err := util.WriteFile(wt, name, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := w.Add(name); err != nil {
			t.Fatal(err)
		}
	}
	_, err = w.Commit("fixture", &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Unix(0, 0)},
	})
	if err != nil {
		t.Fatal(err)
	}
	g, err := NewGit(repo)
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func collect(t *testing.T, src ReadOnlySource, root string, depth int, m Matcher) []string {
	t.Helper()
	var got []string
	for p, err := range src.Walk(context.Background(), root, depth, m) {
		if err != nil {
			t.Fatalf("Walk(%q) error: %v", root, err)
		}
		got = append(got, p)
	}
	return got
}

func TestReadOnlyContract(t *testing.T) {
	ctx := context.Background()
	sources := map[string]func(*testing.T) ReadOnlySource{
		"fs":  func(t *testing.T) ReadOnlySource { return memFixture(t) },
		"zip": func(t *testing.T) ReadOnlySource { return zipFixture(t) },
		"git": func(t *testing.T) ReadOnlySource { return gitFixture(t) },
	}
	for name, mk := range sources {
		t.Run(name, func(t *testing.T) {
			src := mk(t)
			for _, tc := range []struct {
				path string
				want bool
			}{
				{"", true},
				{"store/entities", true},
				{"store/entities/instances/providers/a.yml", true},
				{"store/entities/instances/providers/c.yml", false},
				{"store/resources", false},
			} {
				got, err := src.Has(ctx, tc.path)
				if err != nil {
					t.Fatalf("Has(%q) error: %v", tc.path, err)
				}
				if got != tc.want {
					t.Errorf("Has(%q) = %v, want %v", tc.path, got, tc.want)
				}
			}
			size, err := src.Size(ctx, "store/entities")
			if err != nil {
				t.Fatalf("Size() error: %v", err)
			}
			if size != 18 {
				t.Errorf("Size(store/entities) = %d, want 18", size)
			}
			if _, err := src.Size(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
				t.Errorf("Size(missing) error = %v, want ErrNotFound", err)
			}
			got := collect(t, src, "store", DefaultMaxDepth, WithExtensions(".yml"))
			want := []string{
				"entities/instances/providers/a.yml",
				"entities/instances/providers/b.yml",
				"entities/instances/services/a.yml",
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("Walk() mismatch (-want +got):\n%s", diff)
			}
			content, err := Content(ctx, src, "store/values/maplibre-styles/a/s.json")
			if err != nil {
				t.Fatalf("Content() error: %v", err)
			}
			if string(content) != "{}" {
				t.Errorf("Content() = %q, want {}", content)
			}
			if _, err := src.Get(ctx, "nope.yml"); !errors.Is(err, store.ErrNotFound) {
				t.Errorf("Get(nope.yml) error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestWalkDepth(t *testing.T) {
	src := memFixture(t)
	got := collect(t, src, "store/entities", 2, All)
	want := []string{"instances", "instances/providers", "instances/services"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Walk(depth=2) mismatch (-want +got):\n%s", diff)
	}
	if got := collect(t, src, "does/not/exist", DefaultMaxDepth, All); len(got) != 0 {
		t.Errorf("Walk(missing) = %v, want empty", got)
	}
}

func TestWalkEarlyExit(t *testing.T) {
	src := memFixture(t)
	var n int
	for range src.Walk(context.Background(), "", DefaultMaxDepth, Values) {
		n++
		if n == 2 {
			break
		}
	}
	if n != 2 {
		t.Errorf("iterations = %d, want 2", n)
	}
	// Restartable.
	if got := collect(t, src, "", DefaultMaxDepth, Values); len(got) != 4 {
		t.Errorf("second Walk() = %v, want 4 entries", got)
	}
}

func TestAbsolutePathsRejected(t *testing.T) {
	ctx := context.Background()
	src := memFixture(t)
	for _, p := range []string{"/etc/passwd", "../outside", "a/../../b"} {
		if _, err := src.Has(ctx, p); !errors.Is(err, store.ErrInvalidArgument) {
			t.Errorf("Has(%q) error = %v, want ErrInvalidArgument", p, err)
		}
		if err := src.Put(ctx, p, strings.NewReader("x")); !errors.Is(err, store.ErrInvalidArgument) {
			t.Errorf("Put(%q) error = %v, want ErrInvalidArgument", p, err)
		}
	}
}

func TestPutDelete(t *testing.T) {
	ctx := context.Background()
	src := NewMemory()
	if err := src.Put(ctx, "a/b/c.yml", strings.NewReader("one")); err != nil {
		t.Fatalf("Put() error: %v", err)
	}
	if err := src.Put(ctx, "a/b/c.yml", strings.NewReader("two")); err != nil {
		t.Fatalf("Put() overwrite error: %v", err)
	}
	got, err := Content(ctx, src, "a/b/c.yml")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "two" {
		t.Errorf("Content() = %q, want two", got)
	}
	if all := collect(t, src, "", DefaultMaxDepth, func(string, Attributes) bool { return true }); len(all) != 3 {
		t.Errorf("leftover temp files: %v", all)
	}
	if err := src.Delete(ctx, "a/b"); err == nil {
		t.Error("Delete(non-empty dir) succeeded, want error")
	}
	for _, p := range []string{"a/b/c.yml", "a/b", "a", "a"} {
		if err := src.Delete(ctx, p); err != nil {
			t.Errorf("Delete(%q) error: %v", p, err)
		}
	}
	if ok, _ := src.Has(ctx, "a"); ok {
		t.Error("Has(a) = true after delete")
	}
}

func TestReadOnly(t *testing.T) {
	ctx := context.Background()
	for name, src := range map[string]Source{
		"fs":  NewReadOnlyFS(memfs.New()),
		"zip": zipFixture(t),
	} {
		if src.Writable() {
			t.Errorf("%s: Writable() = true", name)
		}
		if err := src.Put(ctx, "x.yml", strings.NewReader("x")); !errors.Is(err, store.ErrReadOnly) {
			t.Errorf("%s: Put() error = %v, want ErrReadOnly", name, err)
		}
	}
}

func TestSub(t *testing.T) {
	ctx := context.Background()
	src, err := Sub(memFixture(t), "store/entities/instances")
	if err != nil {
		t.Fatal(err)
	}
	got := collect(t, src, "providers", DefaultMaxDepth, Values)
	if diff := cmp.Diff([]string{"a.yml", "b.yml"}, got); diff != "" {
		t.Errorf("Walk() mismatch (-want +got):\n%s", diff)
	}
	if err := src.Put(ctx, "codelists/c.yml", strings.NewReader("id: c")); err != nil {
		t.Fatal(err)
	}
	if ok, _ := src.Has(ctx, "codelists/c.yml"); !ok {
		t.Error("Has(codelists/c.yml) = false after Put")
	}
}

func TestIsHidden(t *testing.T) {
	for p, want := range map[string]bool{
		"a/b.yml":       false,
		".git/config":   true,
		"a/.b.yml.tmp":  true,
		"a/./b.yml":     false,
		"store/x/y.yml": false,
	} {
		if got := IsHidden(p); got != want {
			t.Errorf("IsHidden(%q) = %v, want %v", p, got, want)
		}
	}
}
