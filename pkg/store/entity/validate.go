// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package entity

import (
	"cmp"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/ldproxy/ldproxy-cfg/pkg/store"
	"github.com/pkg/errors"
	"github.com/xeipuuv/gojsonschema"
)

// Severity grades a validation message.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	if s == SeverityWarning {
		return "WARNING"
	}
	return "ERROR"
}

// CodeDeprecated marks use of a field the schema flags as deprecated.
const CodeDeprecated = "deprecated"

// Message is one finding of a validation.
type Message struct {
	// Path locates the value in the document, "$" being the root.
	Path     string
	Code     string
	Text     string
	Severity Severity
}

func (m Message) String() string {
	return fmt.Sprintf("%s %s: %s (%s)", m.Severity, m.Path, m.Text, m.Code)
}

// HasErrors reports whether any message is an error.
func HasErrors(msgs []Message) bool {
	return slices.ContainsFunc(msgs, func(m Message) bool { return m.Severity == SeverityError })
}

type compiled struct {
	schema *gojsonschema.Schema
	raw    map[string]any
}

// Validator checks documents against the JSON schemas of their specs.
// Compiled schemas are cached per spec.
type Validator struct {
	mu    sync.Mutex
	cache map[store.Identifier]*compiled
}

// NewValidator returns a validator with an empty cache.
func NewValidator() *Validator {
	return &Validator{cache: make(map[store.Identifier]*compiled)}
}

func (v *Validator) compile(s Spec) (*compiled, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if c, ok := v.cache[s.key()]; ok {
		return c, nil
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(s.Schema))
	if err != nil {
		return nil, errors.Wrapf(err, "compiling schema of %s", s.key())
	}
	var raw map[string]any
	if err := json.Unmarshal(s.Schema, &raw); err != nil {
		return nil, errors.Wrapf(err, "reading schema of %s", s.key())
	}
	c := &compiled{schema: schema, raw: raw}
	v.cache[s.key()] = c
	return c, nil
}

// Validate checks doc against the schema of s. Findings are returned as
// messages; the error is only set if validation itself could not run.
func (v *Validator) Validate(s Spec, doc map[string]any) ([]Message, error) {
	if len(s.Schema) == 0 {
		return nil, nil
	}
	c, err := v.compile(s)
	if err != nil {
		return nil, err
	}
	res, err := c.schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, errors.Wrap(err, "validating document")
	}
	var msgs []Message
	for _, re := range res.Errors() {
		msgs = append(msgs, Message{
			Path:     jsonPath(re.Field()),
			Code:     re.Type(),
			Text:     re.Description(),
			Severity: SeverityError,
		})
	}
	msgs = append(msgs, deprecations(c.raw, doc, "$")...)
	slices.SortFunc(msgs, func(a, b Message) int {
		return cmp.Or(cmp.Compare(a.Path, b.Path), cmp.Compare(a.Code, b.Code))
	})
	return msgs, nil
}

func jsonPath(field string) string {
	if field == "" || field == gojsonschema.STRING_CONTEXT_ROOT {
		return "$"
	}
	return "$." + strings.TrimPrefix(field, gojsonschema.STRING_CONTEXT_ROOT+".")
}

// deprecations walks schema and value in parallel and reports every present
// value whose schema carries "deprecated": true.
func deprecations(schema map[string]any, value any, at string) []Message {
	var out []Message
	if dep, _ := schema["deprecated"].(bool); dep {
		out = append(out, Message{
			Path:     at,
			Code:     CodeDeprecated,
			Text:     "deprecated and will be removed in a future version",
			Severity: SeverityWarning,
		})
	}
	switch value := value.(type) {
	case map[string]any:
		props, _ := schema["properties"].(map[string]any)
		additional, _ := schema["additionalProperties"].(map[string]any)
		for k, e := range value {
			sub, ok := props[k].(map[string]any)
			if !ok {
				sub = additional
			}
			if sub != nil {
				out = append(out, deprecations(sub, e, at+"."+k)...)
			}
		}
	case []any:
		if items, ok := schema["items"].(map[string]any); ok {
			for i, e := range value {
				out = append(out, deprecations(items, e, fmt.Sprintf("%s[%d]", at, i))...)
			}
		}
	}
	return out
}
