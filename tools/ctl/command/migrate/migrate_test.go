// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package migrate

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/ldproxy/ldproxy-cfg/pkg/act/cli"
	"github.com/ldproxy/ldproxy-cfg/pkg/store"
	"github.com/ldproxy/ldproxy-cfg/pkg/store/layout"
)

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name:    "missing dir",
			cfg:     Config{},
			wantErr: true,
		},
		{
			name:    "unknown migration",
			cfg:     Config{Dir: "/data", Migrations: []string{"v1-v2"}},
			wantErr: true,
		},
		{
			name:    "valid config",
			cfg:     Config{Dir: "/data", Migrations: []string{"v3-v4-entities"}},
			wantErr: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Config.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func v3Dir(t *testing.T) string {
	t.Helper()
	return writeDir(t, map[string]string{
		"store/entities/services/a.yml": "id: a\n",
		"store/defaults/services.yml":   "enabled: true\n",
	})
}

func writeDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestHandlerDryRun(t *testing.T) {
	dir := v3Dir(t)
	var out bytes.Buffer
	deps := &Deps{IO: cli.IO{Out: &out, Err: &bytes.Buffer{}}}
	if _, err := Handler(context.Background(), Config{Dir: dir, DryRun: true, Migrations: []string{"v3-v4-entities"}}, deps); err != nil {
		t.Fatal(err)
	}
	want := "# v3-v4-entities: Move entity instances from store/entities to store/entities/instances\n" +
		"store/entities/services/a.yml -> store/entities/instances/services/a.yml\n"
	if diff := cmp.Diff(want, out.String()); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
	if _, err := os.Stat(filepath.Join(dir, "store", "entities", "services", "a.yml")); err != nil {
		t.Errorf("dry run moved files: %v", err)
	}
}

func TestHandler(t *testing.T) {
	dir := v3Dir(t)
	deps := &Deps{IO: cli.IO{Out: &bytes.Buffer{}, Err: &bytes.Buffer{}}}
	if _, err := Handler(context.Background(), Config{Dir: dir}, deps); err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{
		"store/entities/instances/services/a.yml",
		"store/entities/defaults/services.yml",
	} {
		if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(p))); err != nil {
			t.Errorf("%s missing after migration: %v", p, err)
		}
	}
	for _, p := range []string{"store/entities/services", "store/defaults"} {
		if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(p))); !os.IsNotExist(err) {
			t.Errorf("%s left behind: %v", p, err)
		}
	}
}

func pendingIDs(t *testing.T, dir string) []string {
	t.Helper()
	l, err := layout.Of(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	migs, err := l.Migrations(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, mig := range migs {
		ids = append(ids, mig.ID)
	}
	return ids
}

func TestHandlerResumesSelectiveRun(t *testing.T) {
	ctx := context.Background()
	dir := v3Dir(t)
	deps := &Deps{IO: cli.IO{Out: &bytes.Buffer{}, Err: &bytes.Buffer{}}}
	if _, err := Handler(ctx, Config{Dir: dir, Migrations: []string{"v3-v4-entities"}}, deps); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"v3-v4-defaults"}, pendingIDs(t, dir)); diff != "" {
		t.Errorf("pending after selective run mismatch (-want +got):\n%s", diff)
	}
	if _, err := Handler(ctx, Config{Dir: dir}, deps); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "store", "entities", "defaults", "services.yml")); err != nil {
		t.Errorf("defaults not migrated on second run: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "store", "defaults")); !os.IsNotExist(err) {
		t.Errorf("store/defaults left behind: %v", err)
	}
	if got := pendingIDs(t, dir); len(got) != 0 {
		t.Errorf("pending after full run = %v", got)
	}
}

func TestHandlerContinuesAfterFailure(t *testing.T) {
	ctx := context.Background()
	dir := writeDir(t, map[string]string{
		"store/entities/services/a.yml":           "id: a\n",
		"store/defaults/services.yml":             "enabled: true\n",
		"store/overrides/services/a.yml":          "label: new\n",
		"store/entities/overrides/services/a.yml": "label: old\n",
		"api-resources/styles/s.json":             "{}",
	})
	deps := &Deps{IO: cli.IO{Out: &bytes.Buffer{}, Err: &bytes.Buffer{}}}
	_, err := Handler(ctx, Config{Dir: dir}, deps)
	if store.Classify(err) != store.KindIO {
		t.Fatalf("Handler() = %v, want an io error", err)
	}
	for _, p := range []string{
		"store/entities/instances/services/a.yml",
		"store/entities/defaults/services.yml",
		"store/resources/styles/s.json",
	} {
		if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(p))); err != nil {
			t.Errorf("%s missing after migration: %v", p, err)
		}
	}
	if diff := cmp.Diff([]string{"v3-v4-overrides"}, pendingIDs(t, dir)); diff != "" {
		t.Errorf("pending mismatch (-want +got):\n%s", diff)
	}
}
