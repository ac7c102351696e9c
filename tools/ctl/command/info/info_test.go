// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package info

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/google/go-cmp/cmp"
	"github.com/ldproxy/ldproxy-cfg/pkg/act/cli"
)

func writeTree(t *testing.T, files map[string]string) string {
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

func TestHandler(t *testing.T) {
	color.NoColor = true
	tests := []struct {
		name  string
		files map[string]string
		want  func(dir string) string
	}{
		{
			name: "v4",
			files: map[string]string{
				"store/entities/instances/services/a.yml":  "id: a\n",
				"store/entities/instances/providers/a.yml": "id: a\n",
				"store/values/maplibre-styles/a/s.json":    "{}",
			},
			want: func(dir string) string {
				return "Path:      " + dir + "\n" +
					"Store:     V4 (FS[" + filepath.Join(dir, "store") + "])\n" +
					"Size:      0KB\n" +
					"Entities:  providers: 1, services: 1\n" +
					"Values:    maplibre-styles: 1\n" +
					"Resources: \n" +
					"Upgrade:   up to date\n"
			},
		},
		{
			name: "v3",
			files: map[string]string{
				"store/entities/services/a.yml": "id: a\n",
				"store/defaults/services.yml":   "enabled: true\n",
			},
			want: func(dir string) string {
				return "Path:      " + dir + "\n" +
					"Store:     V3 (FS[" + dir + "] (v3))\n" +
					"Size:      0KB\n" +
					"Entities:  services: 1\n" +
					"Values:    \n" +
					"Resources: \n" +
					"Upgrade:   v3-v4-defaults, v3-v4-entities\n"
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeTree(t, tt.files)
			var out bytes.Buffer
			deps := &Deps{IO: cli.IO{Out: &out, Err: &bytes.Buffer{}}}
			if _, err := Handler(context.Background(), Config{Dir: dir}, deps); err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want(dir), out.String()); diff != "" {
				t.Errorf("output mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseArgs(t *testing.T) {
	var cfg Config
	if err := parseArgs(&cfg, nil); err == nil {
		t.Error("parseArgs() = nil without a data directory")
	}
	if err := parseArgs(&cfg, []string{"data"}); err != nil {
		t.Fatal(err)
	}
	if !filepath.IsAbs(cfg.Dir) {
		t.Errorf("Dir = %q, want an absolute path", cfg.Dir)
	}
}
