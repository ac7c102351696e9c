// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Package events replays persisted store content as typed events and fans
// them out to subscribers.
package events

import (
	"path"

	"github.com/ldproxy/ldproxy-cfg/pkg/store"
)

// Type is a logical event channel.
type Type string

const (
	Entities  Type = "entities"
	Overrides Type = "overrides"
	Defaults  Type = "defaults"
)

// replayOrder is the order in which types are replayed on start. Defaults
// come first so that entity subscribers see them before the entities they apply to.
var replayOrder = []Type{Defaults, Entities, Overrides}

// Event is either a ReplayEvent or a StateChangeEvent.
type Event interface {
	EventType() Type
}

// ReplayEvent carries the content of one persisted file.
type ReplayEvent struct {
	Type       Type
	Identifier store.Identifier
	// Format is the serialization of Payload, e.g. "yml".
	Format  string
	Payload []byte
	// Deleted marks removal of the identifier.
	Deleted bool
	// Source is the label of the source the event was read from.
	Source string
}

func (e ReplayEvent) EventType() Type { return e.Type }

// AsPath describes the event as a path: type/identifier.
func (e ReplayEvent) AsPath() string {
	return path.Join(string(e.Type), e.Identifier.String())
}

// State is the replay state of one event type.
type State int

const (
	// Replaying means historical events are being delivered.
	Replaying State = iota
	// Listening means replay has finished and only live events follow.
	Listening
)

func (s State) String() string {
	if s == Listening {
		return "LISTENING"
	}
	return "REPLAYING"
}

// StateChangeEvent marks a transition of one event type's stream.
type StateChangeEvent struct {
	Type  Type
	State State
}

func (e StateChangeEvent) EventType() Type { return e.Type }

// Subscriber consumes events of the types it declares.
type Subscriber interface {
	EventTypes() []Type
	OnEmit(Event) error
}
