// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package export

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/ldproxy/ldproxy-cfg/pkg/act"
	"github.com/ldproxy/ldproxy-cfg/pkg/act/cli"
	"github.com/ldproxy/ldproxy-cfg/pkg/archive"
	ldcfg "github.com/ldproxy/ldproxy-cfg/pkg/cfg"
	"github.com/ldproxy/ldproxy-cfg/pkg/store"
	"github.com/ldproxy/ldproxy-cfg/pkg/store/blob"
	"github.com/ldproxy/ldproxy-cfg/tools/ctl/command/internal/datadir"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// Config holds all configuration for the export command.
type Config struct {
	Dir    string
	Output string
}

// Validate ensures the configuration is valid.
func (c Config) Validate() error {
	if c.Dir == "" {
		return errors.New("data directory is required")
	}
	if c.Output == "" {
		return errors.New("output file is required")
	}
	if rel, err := filepath.Rel(c.Dir, c.Output); err == nil && !strings.HasPrefix(rel, "..") {
		return errors.Wrapf(store.ErrInvalidArgument, "output %s is inside the data directory", c.Output)
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
	if len(args) != 2 {
		return errors.New("expected exactly 2 arguments: data directory and output file")
	}
	dir, err := datadir.Abs(args[0])
	if err != nil {
		return err
	}
	out, err := filepath.Abs(args[1])
	if err != nil {
		return errors.Wrapf(err, "resolving %s", args[1])
	}
	cfg.Dir, cfg.Output = dir, out
	return nil
}

// Handler writes the data directory to a zip file and checks the archive
// against the directory.
func Handler(ctx context.Context, cfg Config, deps *Deps) (*act.NoOutput, error) {
	c, err := ldcfg.New(ctx, cfg.Dir, ldcfg.Options{})
	if err != nil {
		return nil, err
	}
	defer c.Close()
	f, err := os.Create(cfg.Output)
	if err != nil {
		return nil, store.IO("create", cfg.Output, err)
	}
	defer f.Close()
	if err := c.WriteZippedStore(ctx, f); err != nil {
		return nil, err
	}
	if _, err := f.Seek(0, 0); err != nil {
		return nil, store.IO("seek", cfg.Output, err)
	}
	zipped, err := archive.NewContentSummaryFromZip(f)
	if err != nil {
		return nil, errors.Wrap(err, "reading back archive")
	}
	root, err := blob.OpenDir(cfg.Dir)
	if err != nil {
		return nil, err
	}
	tree, err := archive.NewContentSummaryFromTree(ctx, root, "")
	if err != nil {
		return nil, err
	}
	if missing, changed, extra := tree.Diff(zipped); len(missing)+len(changed)+len(extra) > 0 {
		log.Printf("Archive differs from %s: %d missing, %d changed, %d unexpected", cfg.Dir, len(missing), len(changed), len(extra))
		return nil, store.IO("verify", cfg.Output, errors.New("archive does not match the data directory"))
	}
	fmt.Fprintf(deps.IO.Out, "Exported %d files to %s\n", len(zipped.Files), cfg.Output)
	return &act.NoOutput{}, nil
}

// Command creates a new export command instance.
func Command() *cobra.Command {
	cfg := Config{}
	return &cobra.Command{
		Use:   "export <dir> <out.zip>",
		Short: "Export a data directory as a zip archive",
		Args:  cobra.ExactArgs(2),
		RunE: cli.RunE(
			&cfg,
			parseArgs,
			InitDeps,
			Handler,
		),
	}
}
