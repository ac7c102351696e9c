// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package validate

import (
	"context"
	"flag"
	"fmt"

	"github.com/fatih/color"
	"github.com/ldproxy/ldproxy-cfg/pkg/act"
	"github.com/ldproxy/ldproxy-cfg/pkg/act/cli"
	ldcfg "github.com/ldproxy/ldproxy-cfg/pkg/cfg"
	"github.com/ldproxy/ldproxy-cfg/pkg/store"
	"github.com/ldproxy/ldproxy-cfg/pkg/store/entity"
	"github.com/ldproxy/ldproxy-cfg/tools/ctl/command/internal/datadir"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
)

// Config holds all configuration for the validate command.
type Config struct {
	Dir string
	// Strict treats warnings as failures.
	Strict bool
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

func failed(msgs []entity.Message, strict bool) bool {
	return entity.HasErrors(msgs) || (strict && len(msgs) > 0)
}

// Handler validates every entity of a data directory and prints the findings.
func Handler(ctx context.Context, cfg Config, deps *Deps) (*act.NoOutput, error) {
	c, err := ldcfg.New(ctx, cfg.Dir, ldcfg.Options{})
	if err != nil {
		return nil, err
	}
	defer c.Close()
	results, err := c.ValidateAll(ctx)
	if err != nil {
		return nil, err
	}
	var bad []store.Identifier
	for _, id := range ldcfg.Sorted(results) {
		msgs := results[id]
		if len(msgs) == 0 {
			fmt.Fprintf(deps.IO.Out, "%s %s\n", green("OK  "), id)
			continue
		}
		if failed(msgs, cfg.Strict) {
			bad = append(bad, id)
			fmt.Fprintf(deps.IO.Out, "%s %s\n", red("FAIL"), id)
		} else {
			fmt.Fprintf(deps.IO.Out, "%s %s\n", yellow("WARN"), id)
		}
		for _, m := range msgs {
			sev := yellow(m.Severity)
			if m.Severity == entity.SeverityError {
				sev = red(m.Severity)
			}
			fmt.Fprintf(deps.IO.Out, "  %s %s: %s\n", sev, m.Path, m.Text)
		}
	}
	if len(bad) > 0 {
		return nil, &store.EntityError{ID: bad[0], Err: errors.Errorf("%d of %d entities are invalid", len(bad), len(results))}
	}
	return &act.NoOutput{}, nil
}

// Command creates a new validate command instance.
func Command() *cobra.Command {
	cfg := Config{}
	cmd := &cobra.Command{
		Use:   "validate [--strict] <dir>",
		Short: "Validate the entities of a data directory against their schemas",
		Args:  cobra.ExactArgs(1),
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
	set.BoolVar(&cfg.Strict, "strict", false, "fail on warnings")
	return set
}
