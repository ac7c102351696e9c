// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Package source describes where store content lives and in which layout.
package source

import (
	"fmt"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/ldproxy/ldproxy-cfg/pkg/store"
	"github.com/pkg/errors"
)

// Content is the kind of content a source serves.
type Content string

const (
	// Entities is a V4 entities folder holding instances/, defaults/ and overrides/.
	Entities Content = "ENTITIES"
	// Defaults holds per-type default files (V3 store/defaults).
	Defaults Content = "DEFAULTS"
	// Overrides holds per-instance override files (V3 store/overrides).
	Overrides Content = "OVERRIDES"
	// Values holds typed values such as styles and queries.
	Values Content = "VALUES"
	// Resources holds opaque files served by APIs.
	Resources Content = "RESOURCES"
	// Instances directly holds <type>/<id>.yml entity files.
	Instances Content = "INSTANCES"
	// InstancesOld is the V3 store/entities folder.
	InstancesOld Content = "INSTANCES_OLD"
	// Multi is a store root serving several content kinds.
	Multi Content = "MULTI"
)

// AllContent lists every content kind.
var AllContent = []Content{Entities, Defaults, Overrides, Values, Resources, Instances, InstancesOld, Multi}

// Folder is the directory name the content kind is conventionally stored under.
func (c Content) Folder() string {
	switch c {
	case Entities, InstancesOld:
		return "entities"
	case Defaults:
		return "defaults"
	case Overrides:
		return "overrides"
	case Values:
		return "values"
	case Resources:
		return "resources"
	case Instances:
		return "instances"
	default:
		return ""
	}
}

// Type is the storage backend of a source.
type Type string

const (
	FS  Type = "FS"
	ZIP Type = "ZIP"
	GCS Type = "GCS"
	GIT Type = "GIT"
)

// Mode restricts writes.
type Mode string

const (
	RW Mode = "RW"
	RO Mode = "RO"
)

// Version is the store layout version.
type Version int

const (
	V3 Version = 3
	V4 Version = 4
)

func (v Version) String() string { return fmt.Sprintf("V%d", int(v)) }

// Source describes one storage location.
type Source struct {
	Type    Type    `yaml:"type"`
	Src     string  `yaml:"src"`
	Content Content `yaml:"content"`
	Prefix  string  `yaml:"prefix,omitempty"`
	Mode    Mode    `yaml:"mode,omitempty"`
	// Ref is the branch of a GIT source.
	Ref     string  `yaml:"ref,omitempty"`
	Version Version `yaml:"version,omitempty"`
}

// V4Store is the source of a V4 data directory: everything below dir/store.
func V4Store(dir string) Source {
	return Source{Type: FS, Src: dir, Content: Multi, Prefix: "store", Mode: RW, Version: V4}
}

// V3Store is the source of a legacy V3 data directory.
func V3Store(dir string) Source {
	return Source{Type: FS, Src: dir, Content: Multi, Mode: RW, Version: V3}
}

// Validate checks the description is usable.
func (s Source) Validate() error {
	if !slices.Contains(AllContent, s.Content) {
		return errors.Wrapf(store.ErrInvalidArgument, "unknown content %q", s.Content)
	}
	switch s.Type {
	case FS:
		if !filepath.IsAbs(s.Src) {
			return errors.Wrapf(store.ErrInvalidArgument, "FS source %q is not absolute", s.Src)
		}
	case ZIP, GIT:
		if s.Mode == RW {
			return errors.Wrapf(store.ErrInvalidArgument, "%s source %q cannot be writable", s.Type, s.Src)
		}
	case GCS:
		if !strings.HasPrefix(s.Src, "gs://") {
			return errors.Wrapf(store.ErrInvalidArgument, "GCS source %q is not a gs:// URI", s.Src)
		}
	default:
		return errors.Wrapf(store.ErrInvalidArgument, "unknown source type %q", s.Type)
	}
	if strings.HasPrefix(s.Prefix, "/") || slices.Contains(strings.Split(s.Prefix, "/"), "..") {
		return errors.Wrapf(store.ErrInvalidArgument, "prefix %q must be relative", s.Prefix)
	}
	switch s.Version {
	case 0, V3, V4:
	default:
		return errors.Wrapf(store.ErrInvalidArgument, "unknown layout version %d", s.Version)
	}
	return nil
}

// Writable reports whether the source may be written to.
func (s Source) Writable() bool {
	return s.Mode != RO && s.Type != ZIP && s.Type != GIT
}

// IsSingleContent reports whether the source serves exactly one content kind.
func (s Source) IsSingleContent() bool { return s.Content != Multi }

// Root is the location of the source's content, including its prefix.
func (s Source) Root() string {
	if s.Prefix == "" {
		return s.Src
	}
	if s.Type == FS {
		return filepath.Join(s.Src, filepath.FromSlash(s.Prefix))
	}
	return s.Src + "!" + s.Prefix
}

// Label is a human-readable description.
func (s Source) Label() string {
	label := fmt.Sprintf("%s[%s]", s.Type, s.Root())
	if s.Content != Multi {
		label += " " + strings.ToLower(string(s.Content))
	}
	if s.Version == V3 {
		label += " (v3)"
	}
	return label
}

type part struct {
	content Content
	folder  string
}

var (
	v4Parts = []part{
		{Entities, "entities"},
		{Values, "values"},
		{Resources, "resources"},
	}
	v3Parts = []part{
		{InstancesOld, "store/entities"},
		{Defaults, "store/defaults"},
		{Overrides, "store/overrides"},
		{Resources, "api-resources"},
	}
)

// Explode splits a Multi source into one single-content source per kind it
// serves. Single-content sources explode into themselves.
func (s Source) Explode() []Source {
	if s.IsSingleContent() {
		return []Source{s}
	}
	parts := v4Parts
	if s.Version == V3 {
		parts = v3Parts
	}
	out := make([]Source, 0, len(parts))
	for _, p := range parts {
		sub := s
		sub.Content = p.content
		sub.Prefix = path.Join(s.Prefix, p.folder)
		out = append(out, sub)
	}
	return out
}

// Serves reports whether the source, after exploding, serves content c.
func (s Source) Serves(c Content) bool {
	for _, sub := range s.Explode() {
		if sub.Content == c {
			return true
		}
	}
	return false
}
