// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package events

import (
	stderrors "errors"
	"log"
	"slices"
	"sync"

	"github.com/ldproxy/ldproxy-cfg/pkg/store"
	"github.com/pkg/errors"
)

// Filter drops replay events before they reach any subscriber.
//
// Ignored identifiers are never delivered. If an allow-list is set for a
// type, only the listed identifiers of that type are delivered.
type Filter struct {
	mu      sync.RWMutex
	ignored map[Type]map[store.Identifier]bool
	only    map[Type]map[store.Identifier]bool
}

// Ignore suppresses delivery of id's events of type t.
func (f *Filter) Ignore(t Type, id store.Identifier) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ignored == nil {
		f.ignored = make(map[Type]map[store.Identifier]bool)
	}
	if f.ignored[t] == nil {
		f.ignored[t] = make(map[store.Identifier]bool)
	}
	f.ignored[t][id] = true
}

// Only restricts delivery of type t to ids.
func (f *Filter) Only(t Type, ids ...store.Identifier) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.only == nil {
		f.only = make(map[Type]map[store.Identifier]bool)
	}
	allowed := make(map[store.Identifier]bool, len(ids))
	for _, id := range ids {
		allowed[id] = true
	}
	f.only[t] = allowed
}

// Allows reports whether e passes the filter. State changes always pass.
func (f *Filter) Allows(e Event) bool {
	re, ok := e.(ReplayEvent)
	if !ok {
		return true
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.ignored[re.Type][re.Identifier] {
		return false
	}
	if allowed, ok := f.only[re.Type]; ok && !allowed[re.Identifier] {
		return false
	}
	return true
}

type stream struct {
	backlog   []Event
	listening bool
}

// Subscriptions is a synchronous fan-out of events to subscribers.
//
// Every event type stream starts with one REPLAYING marker if it receives
// events before listening starts, and carries exactly one LISTENING marker
// once StartListening is called. One mutex covers all deliveries: a
// subscriber never receives two events concurrently and sees each type's
// events in emission order.
type Subscriptions struct {
	mu          sync.Mutex
	logger      *log.Logger
	filter      *Filter
	subscribers []Subscriber
	streams     map[Type]*stream
	listening   bool
}

// NewSubscriptions creates an empty fan-out. A nil logger uses log.Default().
func NewSubscriptions(logger *log.Logger) *Subscriptions {
	if logger == nil {
		logger = log.Default()
	}
	return &Subscriptions{
		logger:  logger,
		filter:  &Filter{},
		streams: make(map[Type]*stream),
	}
}

// Filter returns the filter applied before dispatch.
func (s *Subscriptions) Filter() *Filter { return s.filter }

func (s *Subscriptions) stream(t Type) *stream {
	st, ok := s.streams[t]
	if !ok {
		st = &stream{}
		s.streams[t] = st
	}
	return st
}

// deliver hands e to sub, converting panics to errors.
func (s *Subscriptions) deliver(sub Subscriber, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("subscriber panicked: %v", r)
		}
	}()
	return sub.OnEmit(e)
}

// publish appends e to its stream and delivers it to every subscriber of its type.
func (s *Subscriptions) publish(st *stream, e Event) error {
	st.backlog = append(st.backlog, e)
	var errs []error
	for _, sub := range s.subscribers {
		if !slices.Contains(sub.EventTypes(), e.EventType()) {
			continue
		}
		if err := s.deliver(sub, e); err != nil {
			s.logger.Printf("Delivering %s to %T failed: %v", describe(e), sub, err)
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

// AddSubscriber registers sub and synchronously delivers the backlog of every
// type it subscribes to before returning.
func (s *Subscriptions) AddSubscriber(sub Subscriber) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, sub)
	var errs []error
	for _, t := range sub.EventTypes() {
		st := s.stream(t)
		if s.listening && !st.listening {
			// First interest in this type after start: it has nothing to replay.
			st.listening = true
			st.backlog = append(st.backlog, StateChangeEvent{Type: t, State: Listening})
		}
		for _, e := range st.backlog {
			if err := s.deliver(sub, e); err != nil {
				s.logger.Printf("Replaying %s to %T failed: %v", describe(e), sub, err)
				errs = append(errs, err)
			}
		}
	}
	return stderrors.Join(errs...)
}

// Emit appends and delivers a replay event.
func (s *Subscriptions) Emit(e ReplayEvent) error {
	if !s.filter.Allows(e) {
		s.logger.Printf("Ignoring %s", e.AsPath())
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stream(e.Type)
	// A failed marker delivery must not cost anyone the event itself.
	var markerErr error
	switch {
	case st.listening:
	case s.listening:
		st.listening = true
		markerErr = s.publish(st, StateChangeEvent{Type: e.Type, State: Listening})
	case len(st.backlog) == 0:
		markerErr = s.publish(st, StateChangeEvent{Type: e.Type, State: Replaying})
	}
	return stderrors.Join(markerErr, s.publish(st, e))
}

// StartListening ends replay: every known type receives its LISTENING marker.
// Calling it again has no effect.
func (s *Subscriptions) StartListening() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listening {
		return nil
	}
	s.listening = true
	types := make([]Type, 0, len(s.streams))
	for t := range s.streams {
		types = append(types, t)
	}
	slices.Sort(types)
	var errs []error
	for _, t := range types {
		st := s.streams[t]
		st.listening = true
		if err := s.publish(st, StateChangeEvent{Type: t, State: Listening}); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

// IsListening reports whether StartListening has been called.
func (s *Subscriptions) IsListening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listening
}

func describe(e Event) string {
	switch e := e.(type) {
	case ReplayEvent:
		return e.AsPath()
	case StateChangeEvent:
		return string(e.Type) + ":" + e.State.String()
	default:
		return string(e.EventType())
	}
}
