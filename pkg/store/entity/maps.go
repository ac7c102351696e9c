// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package entity

import (
	"bytes"
	"cmp"
	"encoding/json"
	"math"
	"reflect"
	"slices"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// AsMap converts d into its document form, the shape used for persistence.
func AsMap(d Data) (map[string]any, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return nil, errors.Wrap(err, "encoding entity")
	}
	var doc map[string]any
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, errors.Wrap(err, "decoding entity")
	}
	return doc, nil
}

// Normalize converts a document from any decoder into plain JSON types so
// that equal documents compare equal.
func Normalize(doc map[string]any) (map[string]any, error) {
	if doc == nil {
		return map[string]any{}, nil
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.Wrap(err, "normalizing document")
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, errors.Wrap(err, "normalizing document")
	}
	return out, nil
}

// Merge applies patch onto base with JSON merge-patch semantics: maps merge
// recursively, null values delete, everything else is replaced.
func Merge(base, patch map[string]any) (map[string]any, error) {
	if base == nil {
		base = map[string]any{}
	}
	if patch == nil {
		return Normalize(base)
	}
	b, err := json.Marshal(base)
	if err != nil {
		return nil, errors.Wrap(err, "encoding merge base")
	}
	p, err := json.Marshal(patch)
	if err != nil {
		return nil, errors.Wrap(err, "encoding merge patch")
	}
	merged, err := jsonpatch.MergePatch(b, p)
	if err != nil {
		return nil, errors.Wrap(err, "applying merge patch")
	}
	var out map[string]any
	if err := json.Unmarshal(merged, &out); err != nil {
		return nil, errors.Wrap(err, "decoding merge result")
	}
	return out, nil
}

// Subtract returns the entries of full that differ from defaults, recursing
// into nested maps. Top-level keys in alwaysKeep are retained even when they
// equal their default. Both arguments must be normalized.
func Subtract(full, defaults map[string]any, alwaysKeep []string) map[string]any {
	out := subtract(full, defaults)
	for _, k := range alwaysKeep {
		if v, ok := full[k]; ok {
			out[k] = v
		}
	}
	return out
}

func subtract(full, defaults map[string]any) map[string]any {
	out := make(map[string]any)
	for k, v := range full {
		d, ok := defaults[k]
		if !ok {
			out[k] = v
			continue
		}
		vm, vIsMap := v.(map[string]any)
		dm, dIsMap := d.(map[string]any)
		switch {
		case vIsMap && dIsMap:
			if diff := subtract(vm, dm); len(diff) > 0 {
				out[k] = diff
			}
		case !reflect.DeepEqual(v, d):
			out[k] = v
		}
	}
	return out
}

// DecodeYAML parses a YAML document into normalized form. An empty input
// yields an empty document.
func DecodeYAML(b []byte) (map[string]any, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, errors.Wrap(err, "parsing yaml")
	}
	return Normalize(doc)
}

// Decode parses a payload in the given format ("yml", "yaml" or "json").
func Decode(format string, b []byte) (map[string]any, error) {
	if format != "json" {
		return DecodeYAML(b)
	}
	var doc map[string]any
	if len(bytes.TrimSpace(b)) == 0 {
		return map[string]any{}, nil
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, errors.Wrap(err, "parsing json")
	}
	return doc, nil
}

// EncodeYAML renders doc as YAML with the identifying keys first and the
// remaining keys sorted.
func EncodeYAML(doc map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(orderedNode(doc)); err != nil {
		return nil, errors.Wrap(err, "encoding yaml")
	}
	if err := enc.Close(); err != nil {
		return nil, errors.Wrap(err, "encoding yaml")
	}
	return buf.Bytes(), nil
}

var leadingKeys = []string{"id", "createdAt", "lastModified", "serviceType", "providerType", "providerSubType", "enabled", "label", "description"}

// orderedNode builds a yaml mapping node whose top-level key order is stable
// and readable; nested maps are left to the encoder, which sorts them.
func orderedNode(doc map[string]any) *yaml.Node {
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b string) int {
		ia, ib := slices.Index(leadingKeys, a), slices.Index(leadingKeys, b)
		switch {
		case ia >= 0 && ib >= 0:
			return ia - ib
		case ia >= 0:
			return -1
		case ib >= 0:
			return 1
		default:
			return cmp.Compare(a, b)
		}
	})
	n := &yaml.Node{Kind: yaml.MappingNode}
	for _, k := range keys {
		var v yaml.Node
		if err := v.Encode(integral(doc[k])); err != nil {
			v = yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null"}
		}
		n.Content = append(n.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: k}, &v)
	}
	return n
}

// integral turns whole float64 values back into integers so that they are
// not rendered in exponent notation.
func integral(v any) any {
	switch v := v.(type) {
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1<<53 {
			return int64(v)
		}
		return v
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[k] = integral(e)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = integral(e)
		}
		return out
	default:
		return v
	}
}

// decodeInto decodes a normalized document into a fresh instance of s.
func decodeInto(s Spec, doc map[string]any) (Data, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.Wrap(err, "encoding document")
	}
	d := s.New()
	dec := json.NewDecoder(bytes.NewReader(b))
	if err := dec.Decode(d); err != nil {
		return nil, errors.Wrapf(err, "decoding %s", s.key())
	}
	return d, nil
}
