// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Package store holds the types shared by every layer of the configuration
// store: entity identifiers and the error taxonomy.
package store

import (
	"cmp"
	"strings"

	"github.com/pkg/errors"
)

// Identifier names one entity instance within a type namespace.
//
// Type is the entity category ("services", "providers", "codelists"), Subtype
// the optional schema variant ("feature/sql"), and ID the instance name.
// Defaults are keyed by Type and Subtype with an empty ID.
type Identifier struct {
	Type    string
	Subtype string
	ID      string
}

// String returns type[/subtype]/id.
func (i Identifier) String() string {
	parts := []string{i.Type}
	if i.Subtype != "" {
		parts = append(parts, i.Subtype)
	}
	if i.ID != "" {
		parts = append(parts, i.ID)
	}
	return strings.Join(parts, "/")
}

// WithSubtype returns a copy of i with the subtype set.
func (i Identifier) WithSubtype(subtype string) Identifier {
	i.Subtype = subtype
	return i
}

// Key returns the identifier without its subtype, which is how instances are
// correlated across events: an entity file does not encode its subtype in its path.
func (i Identifier) Key() Identifier {
	i.Subtype = ""
	return i
}

// Validate checks that the identifier can be mapped onto a store path.
func (i Identifier) Validate() error {
	if i.Type == "" {
		return errors.Wrap(ErrInvalidArgument, "identifier has no type")
	}
	if strings.ContainsAny(i.Type, "/\\") {
		return errors.Wrapf(ErrInvalidArgument, "identifier type %q contains a path separator", i.Type)
	}
	if strings.ContainsAny(i.ID, "/\\") || strings.HasPrefix(i.ID, ".") {
		return errors.Wrapf(ErrInvalidArgument, "identifier id %q is not a valid file name", i.ID)
	}
	for _, seg := range strings.Split(i.Subtype, "/") {
		if seg == "." || seg == ".." {
			return errors.Wrapf(ErrInvalidArgument, "identifier subtype %q is not a valid path", i.Subtype)
		}
	}
	return nil
}

// Compare orders identifiers by type, then subtype, then id.
func Compare(a, b Identifier) int {
	return cmp.Or(
		cmp.Compare(a.Type, b.Type),
		cmp.Compare(a.Subtype, b.Subtype),
		cmp.Compare(a.ID, b.ID),
	)
}

// ParseIdentifier parses the form produced by Identifier.String for instances:
// "type/id" or "type/sub/type/id".
func ParseIdentifier(s string) (Identifier, error) {
	parts := strings.Split(strings.Trim(s, "/"), "/")
	if len(parts) < 2 {
		return Identifier{}, errors.Wrapf(ErrInvalidArgument, "identifier %q needs at least a type and an id", s)
	}
	id := Identifier{
		Type:    parts[0],
		Subtype: strings.Join(parts[1:len(parts)-1], "/"),
		ID:      parts[len(parts)-1],
	}
	return id, id.Validate()
}
