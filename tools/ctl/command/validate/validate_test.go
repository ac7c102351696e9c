// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package validate

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/google/go-cmp/cmp"
	"github.com/ldproxy/ldproxy-cfg/pkg/act/cli"
	"github.com/ldproxy/ldproxy-cfg/pkg/store"
)

var validFiles = map[string]string{
	"store/entities/instances/services/a.yml": "id: a\nserviceType: OGC_API\n",
	"store/entities/instances/services/b.yml": "id: b\nserviceType: OGC_API\nautoPersist: true\n",
}

func dataDir(t *testing.T) string {
	t.Helper()
	return writeDir(t, validFiles)
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

func TestHandler(t *testing.T) {
	color.NoColor = true
	tests := []struct {
		name    string
		strict  bool
		want    string
		wantErr bool
	}{
		{
			name: "warnings pass",
			want: "OK   services/a\n" +
				"WARN services/b\n" +
				"  WARNING $.autoPersist: deprecated and will be removed in a future version\n",
		},
		{
			name:   "strict",
			strict: true,
			want: "OK   services/a\n" +
				"FAIL services/b\n" +
				"  WARNING $.autoPersist: deprecated and will be removed in a future version\n",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			deps := &Deps{IO: cli.IO{Out: &out, Err: &bytes.Buffer{}}}
			_, err := Handler(context.Background(), Config{Dir: dataDir(t), Strict: tt.strict}, deps)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Handler() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && store.Classify(err) != store.KindEntity {
				t.Errorf("Classify() = %v, want entity", store.Classify(err))
			}
			if diff := cmp.Diff(tt.want, out.String()); diff != "" {
				t.Errorf("output mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestValidation(t *testing.T) {
	if err := (Config{}).Validate(); err == nil {
		t.Error("Config.Validate() = nil for a missing data directory")
	}
	if err := (Config{Dir: "/data"}).Validate(); err != nil {
		t.Errorf("Config.Validate() = %v", err)
	}
}

func TestHandlerUnreadableFile(t *testing.T) {
	color.NoColor = true
	dir := writeDir(t, map[string]string{
		"store/entities/instances/services/a.yml": "id: a\nserviceType: OGC_API\n",
		"store/entities/instances/services/c.yml": "id: c\nlabel: [unclosed\n",
	})
	var out bytes.Buffer
	deps := &Deps{IO: cli.IO{Out: &out, Err: &bytes.Buffer{}}}
	_, err := Handler(context.Background(), Config{Dir: dir}, deps)
	if store.Classify(err) != store.KindEntity {
		t.Fatalf("Handler() = %v, want an entity error", err)
	}
	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	if len(lines) != 3 || lines[0] != "OK   services/a" || lines[1] != "FAIL services/c" || !strings.HasPrefix(lines[2], "  ERROR $: ") {
		t.Errorf("output:\n%s", out.String())
	}
}
