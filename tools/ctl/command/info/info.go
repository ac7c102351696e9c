// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package info

import (
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/ldproxy/ldproxy-cfg/pkg/act"
	"github.com/ldproxy/ldproxy-cfg/pkg/act/cli"
	"github.com/ldproxy/ldproxy-cfg/pkg/store/layout"
	"github.com/ldproxy/ldproxy-cfg/tools/ctl/command/internal/datadir"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	bold   = color.New(color.Bold).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
)

// Config holds all configuration for the info command.
type Config struct {
	Dir string
}

// Validate ensures the configuration is valid.
func (c Config) Validate() error {
	if c.Dir == "" {
		return errors.New("data directory is required")
	}
	return nil
}

// Deps holds dependencies for the command.
type Deps struct {
	IO cli.IO
}

func (d *Deps) SetIO(cio cli.IO) { d.IO = cio }

// InitDeps initializes Deps.
func InitDeps(context.Context) (*Deps, error) {
	return &Deps{}, nil
}

func parseArgs(cfg *Config, args []string) error {
	if len(args) != 1 {
		return errors.New("expected exactly 1 argument: data directory")
	}
	dir, err := datadir.Abs(args[0])
	if err != nil {
		return err
	}
	cfg.Dir = dir
	return nil
}

// Handler prints the layout, size and content of a data directory.
func Handler(ctx context.Context, cfg Config, deps *Deps) (*act.NoOutput, error) {
	l, err := layout.Of(ctx, cfg.Dir)
	if err != nil {
		return nil, err
	}
	info, err := l.Info(ctx)
	if err != nil {
		return nil, err
	}
	migrations, err := l.Migrations(ctx)
	if err != nil {
		return nil, err
	}
	var pending []string
	for _, mig := range migrations {
		pending = append(pending, mig.ID)
	}
	w := deps.IO.Out
	fmt.Fprintf(w, "%s %s\n", bold("Path:     "), info.Path)
	fmt.Fprintf(w, "%s %s (%s)\n", bold("Store:    "), info.Version, info.Label)
	fmt.Fprintf(w, "%s %s\n", bold("Size:     "), info.Size())
	fmt.Fprintf(w, "%s %s\n", bold("Entities: "), layout.Format(info.Entities))
	fmt.Fprintf(w, "%s %s\n", bold("Values:   "), layout.Format(info.Values))
	fmt.Fprintf(w, "%s %s\n", bold("Resources:"), layout.Format(info.Resources))
	if len(pending) > 0 {
		fmt.Fprintf(w, "%s %s\n", bold("Upgrade:  "), yellow(strings.Join(pending, ", ")))
	} else {
		fmt.Fprintf(w, "%s %s\n", bold("Upgrade:  "), green("up to date"))
	}
	return &act.NoOutput{}, nil
}

// Command creates a new info command instance.
func Command() *cobra.Command {
	cfg := Config{}
	return &cobra.Command{
		Use:   "info <dir>",
		Short: "Describe the store of a data directory",
		Args:  cobra.ExactArgs(1),
		RunE: cli.RunE(
			&cfg,
			parseArgs,
			InitDeps,
			Handler,
		),
	}
}
