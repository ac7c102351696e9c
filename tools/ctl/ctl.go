// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/ldproxy/ldproxy-cfg/pkg/act/cli"
	"github.com/ldproxy/ldproxy-cfg/pkg/store"
	"github.com/ldproxy/ldproxy-cfg/tools/ctl/command/entity"
	"github.com/ldproxy/ldproxy-cfg/tools/ctl/command/export"
	"github.com/ldproxy/ldproxy-cfg/tools/ctl/command/info"
	"github.com/ldproxy/ldproxy-cfg/tools/ctl/command/migrate"
	"github.com/ldproxy/ldproxy-cfg/tools/ctl/command/validate"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ctl",
	Short: "An operator tool for ldproxy data directories",
}

// exitCode maps failures onto the process exit code.
func exitCode(err error) int {
	switch store.Classify(err) {
	case store.KindConfig:
		return 2
	case store.KindIO:
		return 3
	case store.KindEntity:
		return 4
	default:
		return 1
	}
}

func init() {
	rootCmd.AddCommand(info.Command())
	rootCmd.AddCommand(migrate.Command())
	rootCmd.AddCommand(entity.Command())
	rootCmd.AddCommand(export.Command())
	rootCmd.AddCommand(validate.Command())
}

func main() {
	flag.Parse()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := cli.Execute(ctx, rootCmd, exitCode)
	stop()
	os.Exit(code)
}
