// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package migrate

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"log"
	"path"
	"slices"

	"github.com/ldproxy/ldproxy-cfg/pkg/store"
	"github.com/ldproxy/ldproxy-cfg/pkg/store/blob"
	"github.com/pkg/errors"
)

// ErrUnsupported is returned for migrations of a kind that cannot be run.
var ErrUnsupported = errors.New("migration kind not supported")

// Failure is a file that could not be moved.
type Failure struct {
	Path string
	Err  error
}

// Report lists the outcome of every file of an executed migration.
type Report struct {
	Moved   []string
	Skipped []string
	Failed  []Failure
}

// Err summarizes the failures, or returns nil if there were none.
func (r Report) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	return errors.Errorf("%d of %d files failed to move, first: %s: %v",
		len(r.Failed), len(r.Moved)+len(r.Skipped)+len(r.Failed), r.Failed[0].Path, r.Failed[0].Err)
}

// Migrator runs migrations against a data directory. Migrations are offline
// operations: no event store may be running on the same directory.
type Migrator struct {
	root   blob.Source
	logger *log.Logger
	// Progress, if set, is called after each file with the files done and total.
	Progress func(done, total int)
}

// New returns a migrator for the data directory root.
func New(root blob.Source, logger *log.Logger) *Migrator {
	if logger == nil {
		logger = log.Default()
	}
	return &Migrator{root: root, logger: logger}
}

// files lists the leaves of a move, relative to its From.
func (m *Migrator) files(ctx context.Context, mv Move) ([]string, error) {
	var out []string
	for rel, err := range m.root.Walk(ctx, mv.From, blob.DefaultMaxDepth, blob.Values) {
		if err != nil {
			return nil, err
		}
		if !mv.excluded(rel) {
			out = append(out, rel)
		}
	}
	return out, nil
}

// IsApplicable reports whether any move of mig has content to move.
func (m *Migrator) IsApplicable(ctx context.Context, mig Migration) (bool, error) {
	if mig.Kind != KindBlob {
		return false, nil
	}
	for _, mv := range mig.Moves {
		ok, err := m.root.Has(ctx, mv.From)
		if err != nil {
			return false, err
		}
		if !ok {
			continue
		}
		files, err := m.files(ctx, mv)
		if err != nil {
			return false, err
		}
		if len(files) > 0 {
			return true, nil
		}
	}
	return false, nil
}

// Preview lists every move of mig as "from -> to" without changing anything.
func (m *Migrator) Preview(ctx context.Context, mig Migration) ([]string, error) {
	if mig.Kind != KindBlob {
		return nil, errors.Wrapf(ErrUnsupported, "%s is an %s migration", mig.ID, mig.Kind)
	}
	var lines []string
	for _, mv := range mig.Moves {
		files, err := m.files(ctx, mv)
		if err != nil {
			return nil, err
		}
		for _, rel := range files {
			lines = append(lines, fmt.Sprintf("%s -> %s", path.Join(mv.From, rel), mv.target(rel)))
		}
	}
	return lines, nil
}

// Execute moves every file of mig. A file already present at its destination
// with equal content only has its source removed, so running a migration
// again completes an interrupted run. Per-file failures are collected in the
// report and do not stop the migration. Directories emptied by the move are
// removed deepest first.
func (m *Migrator) Execute(ctx context.Context, mig Migration) (Report, error) {
	var r Report
	if mig.Kind != KindBlob {
		return r, errors.Wrapf(ErrUnsupported, "%s is an %s migration", mig.ID, mig.Kind)
	}
	if !m.root.Writable() {
		return r, errors.Wrap(store.ErrReadOnly, "migration target")
	}
	type job struct {
		mv  Move
		rel string
	}
	var jobs []job
	for _, mv := range mig.Moves {
		files, err := m.files(ctx, mv)
		if err != nil {
			return r, err
		}
		for _, rel := range files {
			jobs = append(jobs, job{mv, rel})
		}
	}
	for i, j := range jobs {
		if err := ctx.Err(); err != nil {
			return r, err
		}
		from := path.Join(j.mv.From, j.rel)
		moved, err := m.move(ctx, from, j.mv.target(j.rel))
		switch {
		case err != nil:
			m.logger.Printf("Moving %s failed: %v", from, err)
			r.Failed = append(r.Failed, Failure{Path: from, Err: err})
		case moved:
			r.Moved = append(r.Moved, from)
		default:
			r.Skipped = append(r.Skipped, from)
		}
		if m.Progress != nil {
			m.Progress(i+1, len(jobs))
		}
	}
	for _, mv := range mig.Moves {
		if err := m.prune(ctx, mv); err != nil {
			m.logger.Printf("Cleaning up %s failed: %v", mv.From, err)
		}
	}
	m.logger.Printf("Migration %s: %d moved, %d already in place, %d failed", mig.ID, len(r.Moved), len(r.Skipped), len(r.Failed))
	return r, nil
}

// move copies from to to and removes from. It reports false if to already
// held the same content.
func (m *Migrator) move(ctx context.Context, from, to string) (bool, error) {
	content, err := blob.Content(ctx, m.root, from)
	if err != nil {
		return false, err
	}
	exists, err := m.root.Has(ctx, to)
	if err != nil {
		return false, err
	}
	if exists {
		existing, err := blob.Content(ctx, m.root, to)
		if err != nil {
			return false, err
		}
		if !bytes.Equal(existing, content) {
			return false, errors.Errorf("%s exists with different content", to)
		}
		return false, m.root.Delete(ctx, from)
	}
	if err := m.root.Put(ctx, to, bytes.NewReader(content)); err != nil {
		return false, err
	}
	return true, m.root.Delete(ctx, from)
}

// prune removes the empty directories below and including mv.From,
// deepest first.
func (m *Migrator) prune(ctx context.Context, mv Move) error {
	ok, err := m.root.Has(ctx, mv.From)
	if err != nil || !ok {
		return err
	}
	dirs := []string{mv.From}
	for rel, err := range m.root.Walk(ctx, mv.From, blob.DefaultMaxDepth, blob.Dirs) {
		if err != nil {
			return err
		}
		dirs = append(dirs, path.Join(mv.From, rel))
	}
	slices.SortStableFunc(dirs, func(a, b string) int {
		return cmp.Compare(blob.Depth(b), blob.Depth(a))
	})
	for _, d := range dirs {
		empty := true
		for _, err := range m.root.Walk(ctx, d, 1, blob.All) {
			if err != nil {
				return err
			}
			empty = false
			break
		}
		if !empty {
			continue
		}
		if err := m.root.Delete(ctx, d); err != nil {
			return err
		}
	}
	return nil
}
