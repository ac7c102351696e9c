// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"bytes"
	"cmp"
	"context"
	"crypto/sha256"
	"io"
	"log"
	"slices"
	"sync"

	"github.com/ldproxy/ldproxy-cfg/pkg/store"
	"github.com/ldproxy/ldproxy-cfg/pkg/store/blob"
	"github.com/ldproxy/ldproxy-cfg/pkg/store/source"
	"github.com/pkg/errors"
)

// Part is one single-content source of the event store.
type Part = blob.Part

func holdsEvents(p Part) bool {
	switch p.Source.Content {
	case source.Entities, source.Instances, source.InstancesOld, source.Defaults, source.Overrides:
		return true
	default:
		return false
	}
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for replay and delivery messages.
func WithLogger(l *log.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store replays event-holding sources on Start and persists pushed events.
type Store struct {
	logger  *log.Logger
	parts   []Part
	closers []io.Closer
	subs    *Subscriptions

	mu      sync.Mutex
	started bool
	// known holds the digest of the last payload seen per event path.
	known map[string][sha256.Size]byte
	// replayErrs holds what subscribers rejected during Start.
	replayErrs []error
}

// New creates a store over already opened parts, in priority order: content
// of later parts is replayed after, and thus overrides, earlier parts.
func New(parts []Part, opts ...Option) *Store {
	s := &Store{
		logger: log.Default(),
		parts:  parts,
		known:  make(map[string][sha256.Size]byte),
	}
	for _, o := range opts {
		o(s)
	}
	s.subs = NewSubscriptions(s.logger)
	return s
}

// Open opens every source, exploding multi-content sources into their parts.
func Open(ctx context.Context, sources []source.Source, opts ...Option) (*Store, error) {
	var parts []Part
	var closers []io.Closer
	for _, src := range sources {
		ps, closer, err := blob.OpenParts(ctx, src)
		if err != nil {
			for _, c := range closers {
				c.Close()
			}
			return nil, err
		}
		closers = append(closers, closer)
		parts = append(parts, ps...)
	}
	s := New(parts, opts...)
	s.closers = closers
	return s, nil
}

// Close releases the underlying sources.
func (s *Store) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Parts returns the single-content parts in priority order.
func (s *Store) Parts() []Part { return s.parts }

// Subscribe registers sub, delivering everything emitted so far before returning.
func (s *Store) Subscribe(sub Subscriber) error {
	return s.subs.AddSubscriber(sub)
}

// Filter returns the filter applied before delivery.
func (s *Store) Filter() *Filter { return s.subs.Filter() }

// Start replays all persisted events in type order and switches every type to
// listening. It fails on the first read error and may only be called once.
// Errors of subscribers do not stop replay; see ReplayErrors.
func (s *Store) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return store.ErrAlreadyStarted
	}
	s.started = true
	s.mu.Unlock()

	var replay []ReplayEvent
	for _, p := range s.parts {
		if !holdsEvents(p) {
			continue
		}
		evs, err := s.read(ctx, p)
		if err != nil {
			return err
		}
		replay = append(replay, evs...)
	}
	slices.SortStableFunc(replay, func(a, b ReplayEvent) int {
		return cmp.Or(
			cmp.Compare(slices.Index(replayOrder, a.Type), slices.Index(replayOrder, b.Type)),
			store.Compare(a.Identifier, b.Identifier),
		)
	})
	counts := make(map[Type]int)
	var errs []error
	for _, e := range replay {
		counts[e.Type]++
		s.remember(e)
		if err := s.subs.Emit(e); err != nil {
			errs = append(errs, flatten(err)...)
		}
	}
	// Make sure every type has a stream so that it is announced as listening.
	s.subs.mu.Lock()
	for _, t := range replayOrder {
		s.subs.stream(t)
	}
	s.subs.mu.Unlock()
	if err := s.subs.StartListening(); err != nil {
		errs = append(errs, flatten(err)...)
	}
	for _, t := range replayOrder {
		s.logger.Printf("Replayed %d %s", counts[t], t)
	}
	if len(errs) > 0 {
		s.logger.Printf("%d subscriber errors during replay", len(errs))
	}
	s.mu.Lock()
	s.replayErrs = errs
	s.mu.Unlock()
	return nil
}

// flatten splits joined errors into their parts.
func flatten(err error) []error {
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		return []error{err}
	}
	var out []error
	for _, e := range joined.Unwrap() {
		out = append(out, flatten(e)...)
	}
	return out
}

// ReplayErrors returns the errors subscribers reported while Start replayed
// the stored events, e.g. for files that do not decode. Replay continues past
// them, so the affected events are missing from the subscribers' state.
func (s *Store) ReplayErrors() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.replayErrs)
}

func (s *Store) read(ctx context.Context, p Part) ([]ReplayEvent, error) {
	var out []ReplayEvent
	for rel, err := range p.Blob.Walk(ctx, "", blob.DefaultMaxDepth, blob.WithExtensions(Extensions...)) {
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s", p.Source.Label())
		}
		e, ok := Resolve(p.Source.Content, rel)
		if !ok {
			s.logger.Printf("Skipping %s in %s: not an event path", rel, p.Source.Label())
			continue
		}
		payload, err := blob.Content(ctx, p.Blob, rel)
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s", p.Source.Label())
		}
		e.Payload = payload
		e.Source = p.Source.Label()
		out = append(out, e)
	}
	return out, nil
}

func (s *Store) remember(e ReplayEvent) (changed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := e.AsPath()
	if e.Deleted {
		_, ok := s.known[key]
		delete(s.known, key)
		return ok
	}
	sum := sha256.Sum256(e.Payload)
	prev, ok := s.known[key]
	s.known[key] = sum
	return !ok || prev != sum
}

// target is the writable part that receives pushed events of type t.
func (s *Store) target(t Type, id store.Identifier, format string) (Part, string, error) {
	for i := len(s.parts) - 1; i >= 0; i-- {
		p := s.parts[i]
		if !p.Blob.Writable() {
			continue
		}
		if rel, ok := PathFor(p.Source.Content, t, id, format); ok {
			return p, rel, nil
		}
	}
	return Part{}, "", errors.Wrapf(store.ErrReadOnly, "no writable source for %s", t)
}

// Push persists e and then delivers it. A persistence failure is returned
// without delivering; subscriber failures are returned after delivery.
func (s *Store) Push(ctx context.Context, e ReplayEvent) error {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		return errors.New("event store not started")
	}
	if err := e.Identifier.Validate(); err != nil {
		return err
	}
	p, rel, err := s.target(e.Type, e.Identifier, e.Format)
	if err != nil {
		return err
	}
	if e.Deleted {
		err = s.deleteAll(ctx, p, e)
	} else {
		err = p.Blob.Put(ctx, rel, bytes.NewReader(e.Payload))
	}
	if err != nil {
		return &store.EntityError{ID: e.Identifier, Err: err}
	}
	e.Source = p.Source.Label()
	s.remember(e)
	return s.subs.Emit(e)
}

// deleteAll removes id's file in every format unless e names one.
func (s *Store) deleteAll(ctx context.Context, p Part, e ReplayEvent) error {
	formats := []string{e.Format}
	if e.Format == "" {
		formats = []string{"yml", "yaml", "json"}
	}
	for _, f := range formats {
		rel, ok := PathFor(p.Source.Content, e.Type, e.Identifier, f)
		if !ok {
			continue
		}
		if err := p.Blob.Delete(ctx, rel); err != nil {
			return err
		}
	}
	return nil
}

// Delete pushes a deletion of id.
func (s *Store) Delete(ctx context.Context, t Type, id store.Identifier) error {
	return s.Push(ctx, ReplayEvent{Type: t, Identifier: id, Deleted: true})
}
