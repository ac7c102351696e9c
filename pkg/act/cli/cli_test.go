// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"context"
	"testing"

	"github.com/ldproxy/ldproxy-cfg/pkg/act"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type TestConfig struct {
	Name string
}

func (c TestConfig) Validate() error {
	if c.Name == "" {
		return errors.New("name is required")
	}
	return nil
}

type TestDeps struct {
	IO IO
}

func (d *TestDeps) SetIO(cio IO) { d.IO = cio }

func testAction(ctx context.Context, cfg TestConfig, deps *TestDeps) (*act.NoOutput, error) {
	deps.IO.Out.Write([]byte("Hello " + cfg.Name))
	return &act.NoOutput{}, nil
}

func testInitDeps(ctx context.Context) (*TestDeps, error) {
	return &TestDeps{}, nil
}

func parseName(cfg *TestConfig, args []string) error {
	if len(args) > 0 {
		cfg.Name = args[0]
	}
	return nil
}

func TestSkipArgs(t *testing.T) {
	cfg := &TestConfig{}
	if err := SkipArgs(cfg, []string{"ignored"}); err != nil {
		t.Errorf("SkipArgs() error = %v", err)
	}
	if cfg.Name != "" {
		t.Errorf("SkipArgs() set Name = %q", cfg.Name)
	}
}

func TestRunE(t *testing.T) {
	cfg := TestConfig{}
	cmd := &cobra.Command{
		Use:  "test",
		RunE: RunE(&cfg, parseName, testInitDeps, testAction),
	}
	var outBuf bytes.Buffer
	cmd.SetOut(&outBuf)
	cmd.SetArgs([]string{"World"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got, want := outBuf.String(), "Hello World"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestExecute(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want int
	}{
		{"success", []string{"World"}, 0},
		{"invalid config", nil, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := TestConfig{}
			cmd := &cobra.Command{
				Use:  "test",
				RunE: RunE(&cfg, parseName, testInitDeps, testAction),
			}
			var out bytes.Buffer
			cmd.SetOut(&out)
			cmd.SetErr(&out)
			cmd.SetArgs(tt.args)
			got := Execute(context.Background(), cmd, func(error) int { return 7 })
			if got != tt.want {
				t.Errorf("Execute() = %d, want %d", got, tt.want)
			}
		})
	}
}
