// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package entity

import (
	"context"
	"log"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/ldproxy/ldproxy-cfg/internal/syncx"
	"github.com/ldproxy/ldproxy-cfg/pkg/store"
	"github.com/ldproxy/ldproxy-cfg/pkg/store/events"
	"github.com/pkg/errors"
)

// AlwaysKeep lists the keys persisted even when they equal their default.
var AlwaysKeep = []string{"id", "enabled"}

// Store materializes entities from entity and override events and persists
// changes through the event store. Writes to one identifier are serialized.
type Store struct {
	reg      *Registry
	defaults *DefaultsStore
	pusher   Pusher
	logger   *log.Logger
	now      func() time.Time
	locks    syncx.KeyedMutex[store.Identifier]

	mu        sync.RWMutex
	entities  map[store.Identifier]map[string]any
	overrides map[store.Identifier]map[string]any
	listening map[events.Type]bool
}

// NewStore creates an empty entity store. It receives content once
// subscribed to an event store.
func NewStore(reg *Registry, defaults *DefaultsStore, pusher Pusher, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.Default()
	}
	return &Store{
		reg:       reg,
		defaults:  defaults,
		pusher:    pusher,
		logger:    logger,
		now:       time.Now,
		entities:  make(map[store.Identifier]map[string]any),
		overrides: make(map[store.Identifier]map[string]any),
		listening: make(map[events.Type]bool),
	}
}

func (s *Store) EventTypes() []events.Type {
	return []events.Type{events.Entities, events.Overrides}
}

func (s *Store) OnEmit(e events.Event) error {
	switch e := e.(type) {
	case events.StateChangeEvent:
		s.mu.Lock()
		s.listening[e.Type] = e.State == events.Listening
		s.mu.Unlock()
		return nil
	case events.ReplayEvent:
		target := s.entities
		if e.Type == events.Overrides {
			target = s.overrides
		}
		key := e.Identifier.Key()
		if e.Deleted {
			s.mu.Lock()
			delete(target, key)
			s.mu.Unlock()
			return nil
		}
		doc, err := Decode(e.Format, e.Payload)
		if err != nil {
			return &store.EntityError{ID: key, Err: errors.Wrapf(err, "reading %s from %s", e.Type, e.Source)}
		}
		s.mu.Lock()
		target[key] = doc
		s.mu.Unlock()
		return nil
	default:
		return nil
	}
}

// Ready reports whether replay of entities and overrides has finished.
func (s *Store) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listening[events.Entities] && s.listening[events.Overrides]
}

// Has reports whether an entity file exists for id.
func (s *Store) Has(id store.Identifier) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entities[id.Key()]
	return ok
}

// Identifiers lists the stored entities of typ, or of all types if typ is empty.
func (s *Store) Identifiers(typ string) []store.Identifier {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.Identifier
	for id := range s.entities {
		if typ == "" || id.Type == typ {
			out = append(out, id)
		}
	}
	slices.SortFunc(out, store.Compare)
	return out
}

// raw returns copies of the entity and override documents of id.
func (s *Store) raw(id store.Identifier) (entity, override map[string]any, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[id.Key()]
	if !ok {
		return nil, nil, false
	}
	return maps.Clone(e), maps.Clone(s.overrides[id.Key()]), true
}

// subtypeOf determines the subtype of a stored document, consulting the
// type-level defaults for discriminators the document omits.
func (s *Store) subtypeOf(typ string, doc map[string]any) (Spec, error) {
	typeDefaults, err := s.defaults.Get(typ, "")
	if err != nil {
		return Spec{}, err
	}
	withDefaults, err := Merge(typeDefaults, doc)
	if err != nil {
		return Spec{}, err
	}
	return s.reg.Resolve(typ, withDefaults)
}

// Document returns the effective document of id: defaults, then the entity
// file, then its override. It reports false if there is no entity file.
func (s *Store) Document(id store.Identifier) (map[string]any, Spec, bool, error) {
	key := id.Key()
	doc, override, ok := s.raw(key)
	if !ok {
		return nil, Spec{}, false, nil
	}
	spec, err := s.subtypeOf(key.Type, doc)
	if err != nil {
		return nil, Spec{}, true, &store.EntityError{ID: key, Err: err}
	}
	b, err := s.defaults.Builder(key.WithSubtype(spec.Subtype))
	if err != nil {
		return nil, Spec{}, true, err
	}
	full, err := b.Merge(doc).Merge(override).BuildDoc()
	if err != nil {
		return nil, Spec{}, true, err
	}
	return full, spec, true, nil
}

// Get returns the materialized entity. A missing entity is reported by
// false, not by an error.
func (s *Store) Get(id store.Identifier) (Data, bool, error) {
	full, spec, ok, err := s.Document(id)
	if !ok || err != nil {
		return nil, ok, err
	}
	d, err := decodeInto(spec, full)
	if err != nil {
		return nil, true, &store.EntityError{ID: id.Key(), Err: err}
	}
	return d, true, nil
}

// Builder returns a builder for id and subtype seeded with the defaults and,
// if the entity exists, with its current stored content.
func (s *Store) Builder(id store.Identifier, subtype string) (*Builder, error) {
	key := id.Key()
	b, err := s.defaults.Builder(key.WithSubtype(subtype))
	if err != nil {
		return nil, err
	}
	if doc, _, ok := s.raw(key); ok {
		b.Merge(doc)
	}
	return b, nil
}

// Put persists data, storing only what differs from its defaults.
func (s *Store) Put(ctx context.Context, data Data) error {
	id := data.Identifier()
	if err := id.Validate(); err != nil {
		return &store.EntityError{ID: id, Err: err}
	}
	unlock := s.locks.Lock(id.Key())
	defer unlock()
	full, err := AsMap(data)
	if err != nil {
		return &store.EntityError{ID: id, Err: err}
	}
	s.stamp(id, full)
	return s.persist(ctx, id, full)
}

// stamp sets lastModified and carries over or initializes createdAt.
func (s *Store) stamp(id store.Identifier, full map[string]any) {
	now := float64(s.now().UnixMilli())
	if prev, _, ok := s.raw(id.Key()); ok {
		if created, ok := prev["createdAt"]; ok {
			full["createdAt"] = created
		}
	}
	if c, ok := full["createdAt"]; !ok || c == float64(0) {
		full["createdAt"] = now
	}
	full["lastModified"] = now
}

// persist reduces and writes a full document. Callers hold the lock of id.
func (s *Store) persist(ctx context.Context, id store.Identifier, full map[string]any) error {
	spec, ok := s.reg.Lookup(id.Type, id.Subtype)
	if !ok {
		return errors.Wrapf(store.ErrInvalidArgument, "unknown entity type %s", store.Identifier{Type: id.Type, Subtype: id.Subtype})
	}
	keep := append(slices.Clone(AlwaysKeep), "createdAt", "lastModified")
	for k := range spec.Discriminator {
		keep = append(keep, k)
	}
	diff, err := s.defaults.SubtractDefaults(id, id.Subtype, full, keep)
	if err != nil {
		return &store.EntityError{ID: id, Err: err}
	}
	payload, err := EncodeYAML(diff)
	if err != nil {
		return &store.EntityError{ID: id, Err: err}
	}
	err = s.pusher.Push(ctx, events.ReplayEvent{
		Type:       events.Entities,
		Identifier: id.Key(),
		Format:     "yml",
		Payload:    payload,
	})
	if err != nil {
		s.logger.Printf("Writing %s failed: %v", id, err)
		return err
	}
	return nil
}

// Patch merges patch into the stored entity and persists the result. With
// useDefaults the patch is applied to the effective document, so that
// defaults resolve before the result is reduced again; otherwise it is
// applied to the stored file content only.
func (s *Store) Patch(ctx context.Context, id store.Identifier, patch map[string]any, useDefaults bool) (Data, error) {
	key := id.Key()
	unlock := s.locks.Lock(key)
	defer unlock()
	doc, _, ok := s.raw(key)
	if !ok {
		return nil, &store.EntityError{ID: key, Err: store.ErrNotFound}
	}
	spec, err := s.subtypeOf(key.Type, doc)
	if err != nil {
		return nil, &store.EntityError{ID: key, Err: err}
	}
	id = key.WithSubtype(spec.Subtype)
	var b *Builder
	if useDefaults {
		if b, err = s.defaults.Builder(id); err != nil {
			return nil, err
		}
	} else if b, err = s.reg.Builder(id); err != nil {
		return nil, err
	}
	full, err := b.Merge(doc).Merge(patch).BuildDoc()
	if err != nil {
		return nil, err
	}
	s.stamp(id, full)
	data, err := decodeInto(spec, full)
	if err != nil {
		return nil, &store.EntityError{ID: id, Err: err}
	}
	if err := s.persist(ctx, id, full); err != nil {
		return nil, err
	}
	return data, nil
}

// Delete removes the entity file of id. Overrides are left in place.
func (s *Store) Delete(ctx context.Context, id store.Identifier) error {
	key := id.Key()
	unlock := s.locks.Lock(key)
	defer unlock()
	if !s.Has(key) {
		return &store.EntityError{ID: key, Err: store.ErrNotFound}
	}
	return s.pusher.Push(ctx, events.ReplayEvent{Type: events.Entities, Identifier: key, Deleted: true})
}
