// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Package migrate moves store content between layout versions.
package migrate

import (
	"maps"
	"path"
	"slices"
	"strings"

	"github.com/ldproxy/ldproxy-cfg/pkg/store/source"
)

// Kind is how a migration operates.
type Kind int

const (
	// KindBlob migrations move files.
	KindBlob Kind = iota
	// KindEvent migrations rewrite event payloads. None are implemented.
	KindEvent
)

func (k Kind) String() string {
	if k == KindEvent {
		return "EVENT"
	}
	return "BLOB"
}

// Move relocates everything below From to below To. Paths are relative to
// the data directory.
type Move struct {
	From string
	To   string
	// Content is the kind of content moved. RESOURCES content is placed
	// under its folder name below To.
	Content source.Content
	// Exclude names top-level entries below From that stay in place.
	Exclude []string
}

// target maps a path relative to From onto its destination.
func (m Move) target(rel string) string {
	if m.Content == source.Resources {
		return path.Join(m.To, m.Content.Folder(), rel)
	}
	return path.Join(m.To, rel)
}

func (m Move) excluded(rel string) bool {
	top, _, _ := strings.Cut(rel, "/")
	return slices.Contains(m.Exclude, top)
}

// Migration is a named, versioned set of moves.
type Migration struct {
	ID          string
	Description string
	Kind        Kind
	// From is the layout version the migration applies to.
	From  source.Version
	Moves []Move
}

// All holds the known migrations by ID.
var All = map[string]Migration{
	"v3-v4-entities": {
		ID:          "v3-v4-entities",
		Description: "Move entity instances from store/entities to store/entities/instances",
		Kind:        KindBlob,
		From:        source.V3,
		Moves: []Move{{
			From:    "store/entities",
			To:      "store/entities/instances",
			Content: source.InstancesOld,
			Exclude: []string{"instances", "defaults", "overrides"},
		}},
	},
	"v3-v4-defaults": {
		ID:          "v3-v4-defaults",
		Description: "Move defaults from store/defaults to store/entities/defaults",
		Kind:        KindBlob,
		From:        source.V3,
		Moves:       []Move{{From: "store/defaults", To: "store/entities/defaults", Content: source.Defaults}},
	},
	"v3-v4-overrides": {
		ID:          "v3-v4-overrides",
		Description: "Move overrides from store/overrides to store/entities/overrides",
		Kind:        KindBlob,
		From:        source.V3,
		Moves:       []Move{{From: "store/overrides", To: "store/entities/overrides", Content: source.Overrides}},
	},
	"v3-v4-resources": {
		ID:          "v3-v4-resources",
		Description: "Move API resources from api-resources to store/resources",
		Kind:        KindBlob,
		From:        source.V3,
		Moves:       []Move{{From: "api-resources", To: "store", Content: source.Resources}},
	},
}

// Sorted returns all known migrations ordered by ID.
func Sorted() []Migration {
	var out []Migration
	for _, id := range slices.Sorted(maps.Keys(All)) {
		out = append(out, All[id])
	}
	return out
}

// For returns the migrations that apply to layout version v, ordered by ID.
func For(v source.Version) []Migration {
	var out []Migration
	for _, mig := range Sorted() {
		if mig.From == v {
			out = append(out, mig)
		}
	}
	return out
}
