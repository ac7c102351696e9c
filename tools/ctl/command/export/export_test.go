// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package export

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/ldproxy/ldproxy-cfg/pkg/act/cli"
)

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name:    "missing output",
			cfg:     Config{Dir: "/data"},
			wantErr: true,
		},
		{
			name:    "output inside data directory",
			cfg:     Config{Dir: "/data", Output: "/data/store.zip"},
			wantErr: true,
		},
		{
			name:    "valid config",
			cfg:     Config{Dir: "/data", Output: "/tmp/store.zip"},
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

func TestHandler(t *testing.T) {
	dir := t.TempDir()
	for name, content := range map[string]string{
		"store/entities/instances/services/a.yml": "id: a\nserviceType: OGC_API\n",
		"store/values/styles/a/default.json":      "{}",
		"store/.git/config":                       "x",
	} {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	out := filepath.Join(t.TempDir(), "store.zip")
	var stdout bytes.Buffer
	deps := &Deps{IO: cli.IO{Out: &stdout, Err: &bytes.Buffer{}}}
	if _, err := Handler(context.Background(), Config{Dir: dir, Output: out}, deps); err != nil {
		t.Fatal(err)
	}
	zr, err := zip.OpenReader(out)
	if err != nil {
		t.Fatal(err)
	}
	defer zr.Close()
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	want := []string{
		"store/entities/instances/services/a.yml",
		"store/values/styles/a/default.json",
	}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}
	if got, want := stdout.String(), "Exported 2 files to "+out+"\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}
