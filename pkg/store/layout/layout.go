// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Package layout detects the store structure of a data directory and
// reports on its content.
package layout

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/ldproxy/ldproxy-cfg/pkg/store"
	"github.com/ldproxy/ldproxy-cfg/pkg/store/blob"
	"github.com/ldproxy/ldproxy-cfg/pkg/store/migrate"
	"github.com/ldproxy/ldproxy-cfg/pkg/store/source"
	"github.com/pkg/errors"
)

// Marker directories, relative to the data directory.
var (
	v4Markers = []string{"store/entities/instances", "store/values", "store/resources"}
	v3Markers = []string{"store/entities", "store/defaults", "store/overrides", "api-resources"}
)

// Layout is the detected store structure of one data directory.
type Layout struct {
	dir     string
	sources []source.Source
}

// Of detects the layout of dir, which must be absolute. Sources declared in
// dir/cfg.yml take precedence over detection.
func Of(ctx context.Context, dir string) (*Layout, error) {
	if !filepath.IsAbs(dir) {
		return nil, errors.Wrapf(store.ErrInvalidArgument, "data directory %q is not absolute", dir)
	}
	sources, err := source.ReadConfig(dir)
	if err != nil {
		return nil, err
	}
	if len(sources) > 0 {
		return &Layout{dir: dir, sources: sources}, nil
	}
	src, err := detect(ctx, dir)
	if err != nil {
		return nil, err
	}
	return &Layout{dir: dir, sources: []source.Source{src}}, nil
}

func detect(ctx context.Context, dir string) (source.Source, error) {
	fs, err := blob.OpenDir(dir)
	if err != nil {
		return source.Source{}, err
	}
	anyOf := func(paths []string) (bool, error) {
		for _, p := range paths {
			if ok, err := fs.Has(ctx, p); err != nil || ok {
				return ok, err
			}
		}
		return false, nil
	}
	if ok, err := anyOf(v4Markers); err != nil {
		return source.Source{}, err
	} else if ok {
		return source.V4Store(dir), nil
	}
	if ok, err := anyOf(v3Markers); err != nil {
		return source.Source{}, err
	} else if ok {
		return source.V3Store(dir), nil
	}
	// An empty store folder is a fresh V4 store.
	if ok, err := fs.Has(ctx, "store"); err != nil {
		return source.Source{}, err
	} else if ok {
		return source.V4Store(dir), nil
	}
	return source.Source{}, errors.Wrapf(store.ErrNoStoreSource, "in %s", dir)
}

// Dir returns the data directory.
func (l *Layout) Dir() string { return l.dir }

// Sources returns the store sources in priority order.
func (l *Layout) Sources() []source.Source { return l.sources }

// Version is the layout version of the primary source.
func (l *Layout) Version() source.Version { return l.sources[0].Version }

// Migrations lists the known migrations that still have content to move in
// the data directory, ordered by ID. The directory itself is inspected rather
// than the detected version, so a partly migrated store still lists what is
// left even though it already detects as V4.
func (l *Layout) Migrations(ctx context.Context) ([]migrate.Migration, error) {
	root, err := blob.OpenDir(l.dir)
	if err != nil {
		return nil, err
	}
	m := migrate.New(root, nil)
	var pending []migrate.Migration
	for _, mig := range migrate.Sorted() {
		ok, err := m.IsApplicable(ctx, mig)
		if err != nil {
			return nil, errors.Wrapf(err, "checking %s", mig.ID)
		}
		if ok {
			pending = append(pending, mig)
		}
	}
	return pending, nil
}

// FormatSize renders a byte count with binary units: KB up to 1 MiB, MB up
// to 1 GiB and GB beyond.
func FormatSize(n int64) string {
	switch {
	case n <= 1<<20:
		return fmt.Sprintf("%dKB", n/(1<<10))
	case n <= 1<<30:
		return fmt.Sprintf("%dMB", n/(1<<20))
	default:
		return fmt.Sprintf("%dGB", n/(1<<30))
	}
}
