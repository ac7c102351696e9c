// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Package datadir resolves the data directory argument shared by commands.
package datadir

import (
	"path/filepath"

	"github.com/pkg/errors"
)

// Abs resolves arg against the working directory.
func Abs(arg string) (string, error) {
	if arg == "" {
		return "", errors.New("data directory is required")
	}
	dir, err := filepath.Abs(arg)
	if err != nil {
		return "", errors.Wrapf(err, "resolving %s", arg)
	}
	return dir, nil
}
