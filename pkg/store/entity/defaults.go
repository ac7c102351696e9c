// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package entity

import (
	"context"
	"log"
	"maps"
	"path"
	"slices"
	"strings"
	"sync"

	"github.com/ldproxy/ldproxy-cfg/internal/syncx"
	"github.com/ldproxy/ldproxy-cfg/pkg/store"
	"github.com/ldproxy/ldproxy-cfg/pkg/store/events"
	"github.com/pkg/errors"
)

// Pusher persists and emits events. *events.Store implements it.
type Pusher interface {
	Push(ctx context.Context, e events.ReplayEvent) error
}

// DefaultsStore holds the defaults documents keyed by (type, subtype).
//
// Defaults apply hierarchically: for "providers/feature/sql" the built-in
// defaults of the spec are overlaid by the files for "providers",
// "providers/feature" and "providers/feature/sql", in that order.
type DefaultsStore struct {
	reg    *Registry
	pusher Pusher
	logger *log.Logger
	locks  syncx.KeyedMutex[store.Identifier]

	mu        sync.RWMutex
	docs      map[store.Identifier]map[string]any
	listening bool
}

// NewDefaultsStore creates an empty defaults store. It receives content
// once subscribed to an event store.
func NewDefaultsStore(reg *Registry, pusher Pusher, logger *log.Logger) *DefaultsStore {
	if logger == nil {
		logger = log.Default()
	}
	return &DefaultsStore{
		reg:    reg,
		pusher: pusher,
		logger: logger,
		docs:   make(map[store.Identifier]map[string]any),
	}
}

func (d *DefaultsStore) EventTypes() []events.Type { return []events.Type{events.Defaults} }

func (d *DefaultsStore) OnEmit(e events.Event) error {
	switch e := e.(type) {
	case events.StateChangeEvent:
		if e.State == events.Listening {
			d.mu.Lock()
			d.listening = true
			d.mu.Unlock()
		}
		return nil
	case events.ReplayEvent:
		key := defaultsKey(e.Identifier)
		if e.Deleted {
			d.mu.Lock()
			delete(d.docs, key)
			d.mu.Unlock()
			return nil
		}
		doc, err := Decode(e.Format, e.Payload)
		if err != nil {
			return &store.EntityError{ID: key, Err: errors.Wrapf(err, "reading defaults from %s", e.Source)}
		}
		d.mu.Lock()
		d.docs[key] = doc
		d.mu.Unlock()
		return nil
	default:
		return nil
	}
}

// Ready reports whether replay of defaults has finished.
func (d *DefaultsStore) Ready() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.listening
}

func defaultsKey(id store.Identifier) store.Identifier {
	return store.Identifier{Type: id.Type, Subtype: id.Subtype}
}

// Keys lists the (type, subtype) pairs with a defaults document.
func (d *DefaultsStore) Keys() []store.Identifier {
	d.mu.RLock()
	defer d.mu.RUnlock()
	keys := slices.Collect(maps.Keys(d.docs))
	slices.SortFunc(keys, store.Compare)
	return keys
}

// Raw returns the defaults document stored for exactly (typ, subtype).
func (d *DefaultsStore) Raw(typ, subtype string) (map[string]any, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	doc, ok := d.docs[store.Identifier{Type: typ, Subtype: subtype}]
	if !ok {
		return nil, false
	}
	return maps.Clone(doc), true
}

// Get returns the effective defaults of (typ, subtype).
func (d *DefaultsStore) Get(typ, subtype string) (map[string]any, error) {
	var merged map[string]any
	if s, ok := d.reg.Lookup(typ, subtype); ok {
		var err error
		if merged, err = Normalize(s.Defaults); err != nil {
			return nil, err
		}
	}
	d.mu.RLock()
	var layers []map[string]any
	if doc, ok := d.docs[store.Identifier{Type: typ}]; ok {
		layers = append(layers, doc)
	}
	if subtype != "" {
		segs := strings.Split(subtype, "/")
		for i := range segs {
			if doc, ok := d.docs[store.Identifier{Type: typ, Subtype: path.Join(segs[:i+1]...)}]; ok {
				layers = append(layers, doc)
			}
		}
	}
	d.mu.RUnlock()
	for _, l := range layers {
		var err error
		if merged, err = Merge(merged, l); err != nil {
			return nil, err
		}
	}
	if merged == nil {
		merged = map[string]any{}
	}
	return merged, nil
}

// Builder returns a builder for id seeded with the effective defaults of its
// type and subtype.
func (d *DefaultsStore) Builder(id store.Identifier) (*Builder, error) {
	b, err := d.reg.Builder(id)
	if err != nil {
		return nil, err
	}
	defaults, err := d.Get(id.Type, id.Subtype)
	if err != nil {
		return nil, err
	}
	return b.Merge(defaults), nil
}

// AsMap converts data into the document form used for persistence.
func (d *DefaultsStore) AsMap(_ store.Identifier, data Data) (map[string]any, error) {
	return AsMap(data)
}

// SubtractDefaults removes from full every value equal to the effective
// defaults of (id.Type, subtype), keeping the top-level keys in alwaysKeep.
func (d *DefaultsStore) SubtractDefaults(id store.Identifier, subtype string, full map[string]any, alwaysKeep []string) (map[string]any, error) {
	defaults, err := d.Get(id.Type, subtype)
	if err != nil {
		return nil, err
	}
	norm, err := Normalize(full)
	if err != nil {
		return nil, err
	}
	return Subtract(norm, defaults, alwaysKeep), nil
}

// Patch merges diff into the defaults file of (id.Type, id.Subtype) and
// persists the result. The stored document reflects it once Patch returns.
func (d *DefaultsStore) Patch(ctx context.Context, id store.Identifier, diff map[string]any) (map[string]any, error) {
	return d.PatchFunc(ctx, id, func(map[string]any) (map[string]any, error) { return diff, nil })
}

// PatchFunc is Patch with the diff computed by diffFor from the effective
// defaults of (id.Type, id.Subtype). Patches of one defaults file are
// serialized, so diffFor sees every earlier patch.
func (d *DefaultsStore) PatchFunc(ctx context.Context, id store.Identifier, diffFor func(effective map[string]any) (map[string]any, error)) (map[string]any, error) {
	key := defaultsKey(id)
	if err := key.Validate(); err != nil {
		return nil, err
	}
	unlock := d.locks.Lock(key)
	defer unlock()
	effective, err := d.Get(key.Type, key.Subtype)
	if err != nil {
		return nil, &store.EntityError{ID: key, Err: err}
	}
	diff, err := diffFor(effective)
	if err != nil {
		return nil, err
	}
	current, _ := d.Raw(key.Type, key.Subtype)
	merged, err := Merge(current, diff)
	if err != nil {
		return nil, &store.EntityError{ID: key, Err: err}
	}
	payload, err := EncodeYAML(merged)
	if err != nil {
		return nil, &store.EntityError{ID: key, Err: err}
	}
	err = d.pusher.Push(ctx, events.ReplayEvent{
		Type:       events.Defaults,
		Identifier: key,
		Format:     "yml",
		Payload:    payload,
	})
	if err != nil {
		d.logger.Printf("Patching defaults %s failed: %v", key, err)
		return nil, err
	}
	return merged, nil
}
