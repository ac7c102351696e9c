// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package entity

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ldproxy/ldproxy-cfg/pkg/act/cli"
	"github.com/ldproxy/ldproxy-cfg/pkg/store"
)

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name:    "missing dir",
			cfg:     Config{File: "a.yml"},
			wantErr: true,
		},
		{
			name:    "missing file",
			cfg:     Config{Dir: "/data"},
			wantErr: true,
		},
		{
			name:    "unknown type",
			cfg:     Config{Dir: "/data", File: "a.yml", Type: "layers"},
			wantErr: true,
		},
		{
			name:    "valid config",
			cfg:     Config{Dir: "/data", File: "a.yml", Type: "providers"},
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

func writeFile(t *testing.T, p, content string) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestHandler(t *testing.T) {
	src := t.TempDir()
	dir := t.TempDir()
	file := writeFile(t, filepath.Join(src, "providers", "db.yml"), "providerType: FEATURE\nproviderSubType: SQL\nconnectionInfo:\n  host: localhost\n")
	patch := writeFile(t, filepath.Join(src, "patch.yml"), "label: Database\n")
	var out bytes.Buffer
	deps := &Deps{IO: cli.IO{Out: &out, Err: &bytes.Buffer{}}}
	cfg := Config{Dir: dir, File: file, Patches: []string{patch}}
	if _, err := Handler(context.Background(), cfg, deps); err != nil {
		t.Fatal(err)
	}
	if got, want := out.String(), "Wrote providers/db\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
	b, err := os.ReadFile(filepath.Join(dir, "store", "entities", "instances", "providers", "db.yml"))
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"id: db\n", "providerSubType: SQL\n", "label: Database\n", "host: localhost\n"} {
		if !strings.Contains(string(b), want) {
			t.Errorf("entity file lacks %q:\n%s", want, b)
		}
	}
}

func TestHandlerUnknownSubtype(t *testing.T) {
	file := writeFile(t, filepath.Join(t.TempDir(), "services", "x.yml"), "serviceType: WMS\n")
	deps := &Deps{IO: cli.IO{Out: &bytes.Buffer{}, Err: &bytes.Buffer{}}}
	_, err := Handler(context.Background(), Config{Dir: t.TempDir(), File: file}, deps)
	if store.Classify(err) != store.KindConfig {
		t.Errorf("Handler() = %v, want a config error", err)
	}
}
