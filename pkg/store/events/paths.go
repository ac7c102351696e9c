// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"path"
	"strings"

	"github.com/ldproxy/ldproxy-cfg/pkg/store"
	"github.com/ldproxy/ldproxy-cfg/pkg/store/source"
)

// Extensions are the file extensions replayed as events.
var Extensions = []string{".yml", ".yaml", ".json"}

func formatOf(name string) (string, bool) {
	switch ext := path.Ext(name); ext {
	case ".yml", ".yaml", ".json":
		return ext[1:], true
	default:
		return "", false
	}
}

// Resolve maps a path relative to a single-content source onto the event it
// represents. It reports false for paths that hold no event.
func Resolve(c source.Content, rel string) (ReplayEvent, bool) {
	format, ok := formatOf(rel)
	if !ok {
		return ReplayEvent{}, false
	}
	segs := strings.Split(strings.TrimSuffix(rel, path.Ext(rel)), "/")
	var t Type
	switch c {
	case source.Entities:
		if len(segs) < 2 {
			return ReplayEvent{}, false
		}
		switch segs[0] {
		case "instances":
			t = Entities
		case "defaults":
			t = Defaults
		case "overrides":
			t = Overrides
		default:
			return ReplayEvent{}, false
		}
		segs = segs[1:]
	case source.Instances, source.InstancesOld:
		t = Entities
	case source.Defaults:
		t = Defaults
	case source.Overrides:
		t = Overrides
	default:
		return ReplayEvent{}, false
	}
	for _, s := range segs {
		if s == "" {
			return ReplayEvent{}, false
		}
	}
	var id store.Identifier
	switch {
	case t == Defaults && len(segs) == 1:
		id = store.Identifier{Type: segs[0]}
	case t == Defaults:
		id = store.Identifier{Type: segs[0], Subtype: strings.Join(segs[1:], "/")}
	case len(segs) == 2:
		id = store.Identifier{Type: segs[0], ID: segs[1]}
	default:
		return ReplayEvent{}, false
	}
	if id.Validate() != nil {
		return ReplayEvent{}, false
	}
	return ReplayEvent{Type: t, Identifier: id, Format: format}, true
}

// PathFor is the inverse of Resolve: the path below a source of content c
// holding events of type t for id. It reports false if c cannot hold t.
func PathFor(c source.Content, t Type, id store.Identifier, format string) (string, bool) {
	if format == "" {
		format = "yml"
	}
	var name string
	switch t {
	case Defaults:
		name = path.Join(id.Type, id.Subtype)
	case Entities, Overrides:
		if id.ID == "" {
			return "", false
		}
		name = path.Join(id.Type, id.ID)
	default:
		return "", false
	}
	name += "." + format
	switch {
	case c == source.Entities && t == Entities:
		return path.Join("instances", name), true
	case c == source.Entities:
		return path.Join(string(t), name), true
	case (c == source.Instances || c == source.InstancesOld) && t == Entities,
		c == source.Defaults && t == Defaults,
		c == source.Overrides && t == Overrides:
		return name, true
	default:
		return "", false
	}
}
