// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package migrate

import (
	"context"
	stderrors "errors"
	"flag"
	"fmt"
	"log"
	"slices"

	"github.com/cheggaaa/pb"
	"github.com/ldproxy/ldproxy-cfg/pkg/act"
	"github.com/ldproxy/ldproxy-cfg/pkg/act/cli"
	"github.com/ldproxy/ldproxy-cfg/pkg/store"
	"github.com/ldproxy/ldproxy-cfg/pkg/store/blob"
	"github.com/ldproxy/ldproxy-cfg/pkg/store/layout"
	"github.com/ldproxy/ldproxy-cfg/pkg/store/migrate"
	"github.com/ldproxy/ldproxy-cfg/tools/ctl/command/internal/datadir"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// Config holds all configuration for the migrate command.
type Config struct {
	Dir    string
	DryRun bool
	// Migrations restricts the run to these IDs. Empty runs all that apply.
	Migrations []string
}

// Validate ensures the configuration is valid.
func (c Config) Validate() error {
	if c.Dir == "" {
		return errors.New("data directory is required")
	}
	for _, id := range c.Migrations {
		if _, ok := migrate.All[id]; !ok {
			return errors.Wrapf(store.ErrInvalidArgument, "unknown migration: %s", id)
		}
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
	if len(args) < 1 {
		return errors.New("expected at least 1 argument: data directory")
	}
	dir, err := datadir.Abs(args[0])
	if err != nil {
		return err
	}
	cfg.Dir = dir
	cfg.Migrations = args[1:]
	return nil
}

// Handler runs the pending migrations of a data directory, or lists the moves
// they would make with --dryrun. A migration with files that failed to move
// does not stop the ones after it; running the command again picks up what is
// left.
func Handler(ctx context.Context, cfg Config, deps *Deps) (*act.NoOutput, error) {
	l, err := layout.Of(ctx, cfg.Dir)
	if err != nil {
		return nil, err
	}
	pending, err := l.Migrations(ctx)
	if err != nil {
		return nil, err
	}
	root, err := blob.OpenDir(cfg.Dir)
	if err != nil {
		return nil, err
	}
	m := migrate.New(root, nil)
	var ran int
	var failed []error
	for _, mig := range pending {
		if len(cfg.Migrations) > 0 && !slices.Contains(cfg.Migrations, mig.ID) {
			continue
		}
		ran++
		if cfg.DryRun {
			lines, err := m.Preview(ctx, mig)
			if err != nil {
				return nil, err
			}
			fmt.Fprintf(deps.IO.Out, "# %s: %s\n", mig.ID, mig.Description)
			for _, line := range lines {
				fmt.Fprintln(deps.IO.Out, line)
			}
			continue
		}
		var bar *pb.ProgressBar
		m.Progress = func(done, total int) {
			if bar == nil {
				bar = pb.New(total)
				bar.Output = deps.IO.Err
				bar.ShowTimeLeft = true
				bar.Start()
			}
			bar.Set(done)
		}
		report, err := m.Execute(ctx, mig)
		if bar != nil {
			bar.Finish()
		}
		if err != nil {
			return nil, errors.Wrapf(err, "running %s", mig.ID)
		}
		if err := report.Err(); err != nil {
			log.Printf("Migration %s is incomplete: %v", mig.ID, err)
			failed = append(failed, errors.Wrap(err, mig.ID))
		}
	}
	for _, id := range cfg.Migrations {
		if !slices.ContainsFunc(pending, func(mig migrate.Migration) bool { return mig.ID == id }) {
			log.Printf("Skipping %s: nothing to migrate", id)
		}
	}
	if len(failed) > 0 {
		return nil, store.IO("migrate", cfg.Dir, stderrors.Join(failed...))
	}
	if ran == 0 {
		log.Printf("Store in %s is up to date", cfg.Dir)
	}
	return &act.NoOutput{}, nil
}

// Command creates a new migrate command instance.
func Command() *cobra.Command {
	cfg := Config{}
	cmd := &cobra.Command{
		Use:   "migrate [--dryrun] <dir> [migration...]",
		Short: "Upgrade the store layout of a data directory",
		Args:  cobra.MinimumNArgs(1),
		RunE: cli.RunE(
			&cfg,
			parseArgs,
			InitDeps,
			Handler,
		),
	}
	cmd.Flags().AddGoFlagSet(flagSet(cmd.Name(), &cfg))
	return cmd
}

// flagSet returns the command-line flags for the Config struct.
func flagSet(name string, cfg *Config) *flag.FlagSet {
	set := flag.NewFlagSet(name, flag.ContinueOnError)
	set.BoolVar(&cfg.DryRun, "dryrun", false, "list the moves without changing anything")
	return set
}
