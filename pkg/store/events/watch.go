// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/ldproxy/ldproxy-cfg/pkg/store/blob"
	"github.com/ldproxy/ldproxy-cfg/pkg/store/source"
	"github.com/pkg/errors"
)

// Watch turns external edits of FS parts into replay events until ctx is done.
// Changes whose content matches what the store already knows, including the
// store's own writes, are not emitted again.
func (s *Store) Watch(ctx context.Context) error {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		return errors.New("event store not started")
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "creating watcher")
	}
	roots := make(map[string]Part)
	for _, p := range s.parts {
		if !holdsEvents(p) || p.Source.Type != source.FS {
			continue
		}
		root := p.Source.Root()
		if err := addTree(w, root); err != nil {
			w.Close()
			return err
		}
		roots[root] = p
	}
	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				s.handle(ctx, w, roots, ev)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				s.logger.Printf("Watcher error: %v", err)
			}
		}
	}()
	return nil
}

func addTree(w *fsnotify.Watcher, root string) error {
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(p)
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return errors.Wrapf(err, "watching %s", root)
}

func (s *Store) handle(ctx context.Context, w *fsnotify.Watcher, roots map[string]Part, ev fsnotify.Event) {
	if ev.Has(fsnotify.Create) {
		if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
			if err := addTree(w, ev.Name); err != nil {
				s.logger.Printf("Watcher: %v", err)
			}
			return
		}
	}
	for root, p := range roots {
		rel, err := filepath.Rel(root, ev.Name)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		rel = filepath.ToSlash(rel)
		if blob.IsHidden(rel) {
			return
		}
		e, ok := Resolve(p.Source.Content, rel)
		if !ok {
			return
		}
		e.Source = p.Source.Label()
		switch {
		case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
			e.Deleted = true
		case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
			payload, err := blob.Content(ctx, p.Blob, rel)
			if err != nil {
				s.logger.Printf("Watcher: reading %s: %v", rel, err)
				return
			}
			e.Payload = payload
		default:
			return
		}
		if !s.remember(e) {
			return
		}
		if err := s.subs.Emit(e); err != nil {
			s.logger.Printf("Watcher: delivering %s: %v", e.AsPath(), err)
		}
		return
	}
}
