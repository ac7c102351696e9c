// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package entity

import (
	"embed"
	"fmt"
	"slices"
	"strings"

	"github.com/ldproxy/ldproxy-cfg/pkg/store"
	"github.com/pkg/errors"
)

// Placeholder is filled into required string fields that are unset.
const Placeholder = "{{placeholder}}"

// Spec describes one (type, subtype) of entity.
type Spec struct {
	Type    string
	Subtype string
	// New returns an empty instance to decode into.
	New func() Data
	// Discriminator holds the document fields that select this subtype.
	// They are written into every document built for it.
	Discriminator map[string]string
	// Required maps required top-level fields to the placeholder used when
	// FillRequiredFieldsWithPlaceholders finds them unset.
	Required map[string]any
	// Defaults are the built-in defaults, overlaid by defaults files.
	Defaults map[string]any
	// Schema is a JSON schema for the document; may be empty.
	Schema []byte
}

func (s Spec) key() store.Identifier {
	return store.Identifier{Type: s.Type, Subtype: s.Subtype}
}

// matches reports whether doc selects s, comparing discriminators case-insensitively.
func (s Spec) matches(doc map[string]any) bool {
	for k, want := range s.Discriminator {
		got, ok := doc[k].(string)
		if !ok || !strings.EqualFold(got, want) {
			return false
		}
	}
	return true
}

// Registry maps entity types and subtypes onto their specs. It is immutable
// once constructed.
type Registry struct {
	specs map[store.Identifier]Spec
	types []string
}

// NewRegistry builds a registry. Duplicate (type, subtype) pairs are rejected.
func NewRegistry(specs ...Spec) (*Registry, error) {
	r := &Registry{specs: make(map[store.Identifier]Spec, len(specs))}
	for _, s := range specs {
		if s.Type == "" || s.New == nil {
			return nil, errors.Wrapf(store.ErrInvalidArgument, "incomplete spec for %q", s.Type)
		}
		if _, ok := r.specs[s.key()]; ok {
			return nil, errors.Wrapf(store.ErrInvalidArgument, "duplicate spec for %s", s.key())
		}
		r.specs[s.key()] = s
		if !slices.Contains(r.types, s.Type) {
			r.types = append(r.types, s.Type)
		}
	}
	slices.Sort(r.types)
	return r, nil
}

// Types lists the registered entity types.
func (r *Registry) Types() []string { return slices.Clone(r.types) }

// Lookup returns the spec of (typ, subtype).
func (r *Registry) Lookup(typ, subtype string) (Spec, bool) {
	s, ok := r.specs[store.Identifier{Type: typ, Subtype: subtype}]
	return s, ok
}

// Subtypes lists the registered subtypes of typ in order.
func (r *Registry) Subtypes(typ string) []string {
	var out []string
	for k := range r.specs {
		if k.Type == typ {
			out = append(out, k.Subtype)
		}
	}
	slices.Sort(out)
	return out
}

// Resolve determines which spec of typ a document belongs to.
func (r *Registry) Resolve(typ string, doc map[string]any) (Spec, error) {
	var found []Spec
	for _, sub := range r.Subtypes(typ) {
		if s := r.specs[store.Identifier{Type: typ, Subtype: sub}]; s.matches(doc) {
			found = append(found, s)
		}
	}
	switch len(found) {
	case 0:
		return Spec{}, errors.Errorf("no %s subtype matches the document", typ)
	case 1:
		return found[0], nil
	default:
		// The most specific discriminator wins.
		slices.SortStableFunc(found, func(a, b Spec) int {
			return len(b.Discriminator) - len(a.Discriminator)
		})
		if len(found[0].Discriminator) == len(found[1].Discriminator) {
			return Spec{}, errors.Errorf("ambiguous %s subtype: %s or %s", typ, found[0].Subtype, found[1].Subtype)
		}
		return found[0], nil
	}
}

//go:embed schemas/*.json
var schemas embed.FS

func mustSchema(name string) []byte {
	b, err := schemas.ReadFile("schemas/" + name + ".json")
	if err != nil {
		panic(fmt.Sprintf("missing embedded schema %s: %v", name, err))
	}
	return b
}

func providerSpec(subtype string) Spec {
	return Spec{
		Type:          string(Providers),
		Subtype:       "feature/" + strings.ToLower(subtype),
		New:           func() Data { return &ProviderData{} },
		Discriminator: map[string]string{"providerType": "FEATURE", "providerSubType": subtype},
		Required:      map[string]any{"id": Placeholder},
		Defaults: map[string]any{
			"enabled": true,
			"auto":    false,
		},
		Schema: mustSchema("providers"),
	}
}

// DefaultRegistry returns a registry of the built-in entity kinds.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(
		Spec{
			Type:          string(Services),
			Subtype:       "ogc_api",
			New:           func() Data { return &ServiceData{} },
			Discriminator: map[string]string{"serviceType": "OGC_API"},
			Required:      map[string]any{"id": Placeholder},
			Defaults: map[string]any{
				"enabled": true,
				"auto":    false,
			},
			Schema: mustSchema("services"),
		},
		providerSpec("SQL"),
		providerSpec("WFS"),
		providerSpec("GRAPHQL"),
		Spec{
			Type:     string(Codelists),
			New:      func() Data { return &CodelistData{} },
			Required: map[string]any{"id": Placeholder},
			Defaults: map[string]any{
				"enabled":    true,
				"sourceType": "TEMPLATES",
			},
			Schema: mustSchema("codelists"),
		},
	)
	if err != nil {
		panic(err)
	}
	return r
}
