// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package entity

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/ldproxy/ldproxy-cfg/pkg/act"
	"github.com/ldproxy/ldproxy-cfg/pkg/act/cli"
	ldcfg "github.com/ldproxy/ldproxy-cfg/pkg/cfg"
	"github.com/ldproxy/ldproxy-cfg/pkg/store"
	"github.com/ldproxy/ldproxy-cfg/pkg/store/entity"
	"github.com/ldproxy/ldproxy-cfg/tools/ctl/command/internal/datadir"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// Config holds all configuration for the entity write command.
type Config struct {
	Dir string
	// Type is the entity category. Empty derives it from the name of the
	// directory holding File.
	Type    string
	File    string
	Patches []string
}

// Validate ensures the configuration is valid.
func (c Config) Validate() error {
	if c.Dir == "" {
		return errors.New("data directory is required")
	}
	if c.File == "" {
		return errors.New("entity file is required")
	}
	if c.Type != "" && !slices.Contains(entity.DefaultRegistry().Types(), c.Type) {
		return errors.Wrapf(store.ErrInvalidArgument, "unknown entity type %q", c.Type)
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
	if len(args) < 2 {
		return errors.New("expected at least 2 arguments: data directory and entity file")
	}
	dir, err := datadir.Abs(args[0])
	if err != nil {
		return err
	}
	cfg.Dir = dir
	cfg.File = args[1]
	cfg.Patches = args[2:]
	return nil
}

func format(file string) string {
	return strings.TrimPrefix(filepath.Ext(file), ".")
}

// read decodes an entity file. The id defaults to the file name.
func read(reg *entity.Registry, typ, file string) (entity.Data, error) {
	b, err := os.ReadFile(file)
	if err != nil {
		return nil, store.IO("read", file, err)
	}
	doc, err := entity.Decode(format(file), b)
	if err != nil {
		return nil, errors.Wrapf(store.ErrInvalidArgument, "%s: %v", file, err)
	}
	if typ == "" {
		typ = filepath.Base(filepath.Dir(file))
	}
	id, _ := doc["id"].(string)
	if id == "" {
		id = strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	}
	spec, err := reg.Resolve(typ, doc)
	if err != nil {
		return nil, errors.Wrapf(store.ErrInvalidArgument, "%s: %v", file, err)
	}
	builder, err := reg.Builder(store.Identifier{Type: typ, Subtype: spec.Subtype, ID: id})
	if err != nil {
		return nil, err
	}
	return builder.Merge(doc).Build()
}

// Handler writes an entity file, with patches applied in order, to the store.
func Handler(ctx context.Context, cfg Config, deps *Deps) (*act.NoOutput, error) {
	reg := entity.DefaultRegistry()
	data, err := read(reg, cfg.Type, cfg.File)
	if err != nil {
		return nil, err
	}
	var patches [][]byte
	for _, p := range cfg.Patches {
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, store.IO("read", p, err)
		}
		patches = append(patches, b)
	}
	c, err := ldcfg.New(ctx, cfg.Dir, ldcfg.Options{Registry: reg})
	if err != nil {
		return nil, err
	}
	defer c.Close()
	if err := c.WriteEntity(ctx, data, patches...); err != nil {
		return nil, err
	}
	fmt.Fprintf(deps.IO.Out, "Wrote %s\n", data.Identifier().Key())
	return &act.NoOutput{}, nil
}

// Command creates a new entity command with its subcommands.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entity",
		Short: "Manage entities of a data directory",
	}
	cmd.AddCommand(writeCommand())
	return cmd
}

func writeCommand() *cobra.Command {
	cfg := Config{}
	cmd := &cobra.Command{
		Use:   "write [--type <type>] <dir> <file> [patch...]",
		Short: "Write an entity from a YAML or JSON file, applying patches in order",
		Args:  cobra.MinimumNArgs(2),
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
	set.StringVar(&cfg.Type, "type", "", "the entity type; defaults to the name of the file's directory")
	return set
}
