// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package entity

import (
	"slices"
	"strings"

	"github.com/ldproxy/ldproxy-cfg/pkg/store"
	"github.com/pkg/errors"
)

// Builder composes an entity document from a base, patches and defaults and
// decodes it into typed Data once. The first error sticks and is returned by Build.
type Builder struct {
	spec Spec
	id   store.Identifier
	doc  map[string]any
	err  error
}

// Builder returns an empty builder for id, whose Subtype selects the spec.
func (r *Registry) Builder(id store.Identifier) (*Builder, error) {
	s, ok := r.Lookup(id.Type, id.Subtype)
	if !ok {
		return nil, errors.Wrapf(store.ErrInvalidArgument, "unknown entity type %s", store.Identifier{Type: id.Type, Subtype: id.Subtype})
	}
	return &Builder{spec: s, id: id, doc: map[string]any{}}, nil
}

// Spec returns the spec the builder builds for.
func (b *Builder) Spec() Spec { return b.spec }

// From seeds the builder with d, replacing anything set so far.
func (b *Builder) From(d Data) *Builder {
	if b.err != nil {
		return b
	}
	doc, err := AsMap(d)
	if err != nil {
		b.err = err
		return b
	}
	b.doc = doc
	return b
}

// Merge applies a partial document. Fields absent from patch are untouched.
func (b *Builder) Merge(patch map[string]any) *Builder {
	if b.err != nil {
		return b
	}
	b.doc, b.err = Merge(b.doc, patch)
	return b
}

// Patch applies a YAML patch file.
func (b *Builder) Patch(yml []byte) *Builder {
	if b.err != nil {
		return b
	}
	patch, err := DecodeYAML(yml)
	if err != nil {
		b.err = errors.Wrap(err, "reading patch")
		return b
	}
	return b.Merge(patch)
}

// FillRequiredFieldsWithPlaceholders sets every required field that is still
// unset to its placeholder so that partial documents such as defaults build.
func (b *Builder) FillRequiredFieldsWithPlaceholders() *Builder {
	if b.err != nil {
		return b
	}
	for k, v := range b.spec.Required {
		if _, ok := b.doc[k]; !ok {
			b.doc[k] = v
		}
	}
	return b
}

// Doc returns a copy of the current document.
func (b *Builder) Doc() (map[string]any, error) {
	if b.err != nil {
		return nil, b.err
	}
	return Normalize(b.doc)
}

// document returns the current document with identity fields applied.
func (b *Builder) document() (map[string]any, error) {
	doc, err := b.Doc()
	if err != nil {
		return nil, err
	}
	if b.id.ID != "" {
		doc["id"] = b.id.ID
	}
	for k, v := range b.spec.Discriminator {
		doc[k] = v
	}
	var missing []string
	for k := range b.spec.Required {
		if _, ok := doc[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return nil, errors.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}
	return doc, nil
}

// Build decodes the document into typed Data.
func (b *Builder) Build() (Data, error) {
	doc, err := b.document()
	if err != nil {
		return nil, &store.EntityError{ID: b.id, Err: err}
	}
	d, err := decodeInto(b.spec, doc)
	if err != nil {
		return nil, &store.EntityError{ID: b.id, Err: err}
	}
	return d, nil
}

// BuildDoc returns the document Build would decode.
func (b *Builder) BuildDoc() (map[string]any, error) {
	doc, err := b.document()
	if err != nil {
		return nil, &store.EntityError{ID: b.id, Err: err}
	}
	return doc, nil
}
