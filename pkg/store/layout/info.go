// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package layout

import (
	"context"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/ldproxy/ldproxy-cfg/pkg/store"
	"github.com/ldproxy/ldproxy-cfg/pkg/store/blob"
	"github.com/ldproxy/ldproxy-cfg/pkg/store/source"
	"github.com/pkg/errors"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Counts maps collection names onto item counts, ordered by name.
type Counts = orderedmap.OrderedMap[string, int]

// Info describes the content of a layout.
type Info struct {
	Path      string
	Label     string
	Version   source.Version
	SizeBytes int64
	Entities  *Counts
	Values    *Counts
	Resources *Counts
}

// Size is the formatted total size of all files.
func (i *Info) Size() string { return FormatSize(i.SizeBytes) }

var (
	entityExtensions = []string{".yml"}
	valueExtensions  = []string{".yml", ".yaml", ".json", ".mbs", ".3dtiles"}
)

// counter selects and counts the files of one content category.
type counter struct {
	// folder is the pseudo-key of the container itself, never reported.
	folder string
	// root returns the directory to count below in a part, or false if the
	// part does not hold the category.
	root  func(c source.Content) (string, bool)
	match blob.Matcher
}

var (
	entityCounter = counter{
		folder: "entities",
		root: func(c source.Content) (string, bool) {
			switch c {
			case source.Entities:
				return "instances", true
			case source.Instances, source.InstancesOld:
				return "", true
			default:
				return "", false
			}
		},
		match: blob.WithExtensions(entityExtensions...),
	}
	valueCounter = counter{
		folder: source.Values.Folder(),
		root: func(c source.Content) (string, bool) {
			return "", c == source.Values
		},
		match: blob.WithExtensions(valueExtensions...),
	}
	resourceCounter = counter{
		folder: source.Resources.Folder(),
		root: func(c source.Content) (string, bool) {
			return "", c == source.Resources
		},
		match: blob.Values,
	}
)

// count accumulates the per-collection counts of c over parts into sums.
func (c counter) count(ctx context.Context, parts []blob.Part, sums map[string]int) error {
	for _, p := range parts {
		root, ok := c.root(p.Source.Content)
		if !ok {
			continue
		}
		for rel, err := range p.Blob.Walk(ctx, root, blob.DefaultMaxDepth, c.match) {
			if err != nil {
				return errors.Wrapf(err, "counting %s", p.Source.Label())
			}
			key, rest, nested := strings.Cut(rel, "/")
			if !nested || rest == "" || key == c.folder {
				continue
			}
			sums[key]++
		}
	}
	return nil
}

func ordered(sums map[string]int) *Counts {
	out := orderedmap.New[string, int]()
	for _, k := range slices.Sorted(maps.Keys(sums)) {
		out.Set(k, sums[k])
	}
	return out
}

// Info walks all sources and reports their content. Each walk is bounded to
// blob.DefaultMaxDepth levels.
func (l *Layout) Info(ctx context.Context) (*Info, error) {
	info := &Info{
		Path:    l.dir,
		Label:   l.sources[0].Label(),
		Version: l.Version(),
	}
	var parts []blob.Part
	for _, src := range l.sources {
		opened, err := blob.Open(ctx, src)
		if err != nil {
			return nil, errors.Wrapf(err, "opening %s", src.Label())
		}
		defer opened.Close()
		size, err := opened.Size(ctx, "")
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, errors.Wrapf(err, "sizing %s", src.Label())
		}
		info.SizeBytes += size
		ps, err := blob.Split(opened.Source, src)
		if err != nil {
			return nil, err
		}
		parts = append(parts, ps...)
	}
	for _, c := range []struct {
		counter counter
		into    **Counts
	}{
		{entityCounter, &info.Entities},
		{valueCounter, &info.Values},
		{resourceCounter, &info.Resources},
	} {
		sums := make(map[string]int)
		if err := c.counter.count(ctx, parts, sums); err != nil {
			return nil, err
		}
		*c.into = ordered(sums)
	}
	return info, nil
}

// Keys returns the keys of counts in order.
func Keys(counts *Counts) []string {
	var out []string
	for p := counts.Oldest(); p != nil; p = p.Next() {
		out = append(out, p.Key)
	}
	return out
}

// Format renders counts as "key: n" pairs.
func Format(counts *Counts) string {
	var parts []string
	for p := counts.Oldest(); p != nil; p = p.Next() {
		parts = append(parts, p.Key+": "+strconv.Itoa(p.Value))
	}
	return strings.Join(parts, ", ")
}
