// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Package cfg is the programmatic API for authoring the configuration store
// of a data directory.
package cfg

import (
	"context"
	"io"
	"log"
	"maps"
	"slices"
	"strings"

	"github.com/ldproxy/ldproxy-cfg/pkg/archive"
	"github.com/ldproxy/ldproxy-cfg/pkg/store"
	"github.com/ldproxy/ldproxy-cfg/pkg/store/blob"
	"github.com/ldproxy/ldproxy-cfg/pkg/store/entity"
	"github.com/ldproxy/ldproxy-cfg/pkg/store/events"
	"github.com/ldproxy/ldproxy-cfg/pkg/store/layout"
	"github.com/pkg/errors"
)

// freshStore is created in a data directory without any store.
const freshStore = "store/entities/instances"

// CodeUnreadable marks a stored file that does not decode.
const CodeUnreadable = "unreadable"

// Options configures New.
type Options struct {
	// Logger defaults to log.Default().
	Logger *log.Logger
	// Registry defaults to entity.DefaultRegistry().
	Registry *entity.Registry
}

// Cfg reads and writes the entities and defaults of one data directory.
type Cfg struct {
	layout    *layout.Layout
	events    *events.Store
	defaults  *entity.DefaultsStore
	entities  *entity.Store
	reg       *entity.Registry
	validator *entity.Validator
	logger    *log.Logger
}

// New opens the store of dataDir, creating an empty one if there is none, and
// replays its content.
func New(ctx context.Context, dataDir string, opts Options) (*Cfg, error) {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Registry == nil {
		opts.Registry = entity.DefaultRegistry()
	}
	l, err := layout.Of(ctx, dataDir)
	if errors.Is(err, store.ErrNoStoreSource) {
		if err := initStore(dataDir); err != nil {
			return nil, err
		}
		opts.Logger.Printf("Initialized empty store in %s", dataDir)
		l, err = layout.Of(ctx, dataDir)
	}
	if err != nil {
		return nil, err
	}
	es, err := events.Open(ctx, l.Sources(), events.WithLogger(opts.Logger))
	if err != nil {
		return nil, err
	}
	c := &Cfg{
		layout:    l,
		events:    es,
		reg:       opts.Registry,
		validator: entity.NewValidator(),
		logger:    opts.Logger,
	}
	c.defaults = entity.NewDefaultsStore(c.reg, es, opts.Logger)
	c.entities = entity.NewStore(c.reg, c.defaults, es, opts.Logger)
	for _, sub := range []events.Subscriber{c.defaults, c.entities} {
		if err := es.Subscribe(sub); err != nil {
			es.Close()
			return nil, err
		}
	}
	if err := es.Start(ctx); err != nil {
		es.Close()
		return nil, err
	}
	for _, err := range es.ReplayErrors() {
		opts.Logger.Printf("Skipped while loading: %v", err)
	}
	return c, nil
}

func initStore(dataDir string) error {
	fs, err := blob.OpenDir(dataDir)
	if err != nil {
		return err
	}
	if err := fs.Filesystem().MkdirAll(freshStore, 0o755); err != nil {
		return store.IO("mkdir", freshStore, err)
	}
	return nil
}

// Close releases the store sources.
func (c *Cfg) Close() error { return c.events.Close() }

// Layout returns the detected layout of the data directory.
func (c *Cfg) Layout() *layout.Layout { return c.layout }

// Entities exposes the entity store.
func (c *Cfg) Entities() *entity.Store { return c.entities }

// Defaults exposes the defaults store.
func (c *Cfg) Defaults() *entity.DefaultsStore { return c.defaults }

// Watch delivers external edits of filesystem sources until ctx is done.
func (c *Cfg) Watch(ctx context.Context) error { return c.events.Watch(ctx) }

// Identifiers lists every stored entity, by type in registry order.
func (c *Cfg) Identifiers() []store.Identifier {
	var ids []store.Identifier
	for _, typ := range c.reg.Types() {
		ids = append(ids, c.entities.Identifiers(typ)...)
	}
	return ids
}

// WriteEntity applies the YAML patches to data in order and persists the
// result.
func (c *Cfg) WriteEntity(ctx context.Context, data entity.Data, patches ...[]byte) error {
	b, err := c.reg.Builder(data.Identifier())
	if err != nil {
		return err
	}
	b.From(data)
	for _, p := range patches {
		b.Patch(p)
	}
	d, err := b.Build()
	if err != nil {
		return err
	}
	return c.entities.Put(ctx, d)
}

// ReadEntity returns the materialized entity id, or false if it does not exist.
func (c *Cfg) ReadEntity(_ context.Context, id store.Identifier) (entity.Data, bool, error) {
	return c.entities.Get(id)
}

// WriteDefaults stores the fields of data as defaults. Each of defaultsFiles
// names a defaults file as "type" or "type/subtype"; without any, the file of
// data's own type and subtype is written. Fields equal to the defaults already
// in effect are left out.
func (c *Cfg) WriteDefaults(ctx context.Context, data entity.Data, defaultsFiles ...string) error {
	id := data.Identifier()
	spec, ok := c.reg.Lookup(id.Type, id.Subtype)
	if !ok {
		return errors.Wrapf(store.ErrInvalidArgument, "unknown entity type %s", id.Key().WithSubtype(id.Subtype))
	}
	doc, err := entity.AsMap(data)
	if err != nil {
		return &store.EntityError{ID: id, Err: err}
	}
	for _, k := range []string{"id", "createdAt", "lastModified"} {
		delete(doc, k)
	}
	for k := range spec.Discriminator {
		delete(doc, k)
	}
	keys := []store.Identifier{{Type: id.Type, Subtype: id.Subtype}}
	if len(defaultsFiles) > 0 {
		keys = keys[:0]
		for _, f := range defaultsFiles {
			key, err := parseDefaultsFile(f)
			if err != nil {
				return err
			}
			keys = append(keys, key)
		}
	}
	for _, key := range keys {
		_, err := c.defaults.PatchFunc(ctx, key, func(current map[string]any) (map[string]any, error) {
			return entity.Subtract(doc, current, nil), nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func parseDefaultsFile(f string) (store.Identifier, error) {
	f = strings.TrimSuffix(strings.Trim(f, "/"), ".yml")
	typ, subtype, _ := strings.Cut(f, "/")
	key := store.Identifier{Type: typ, Subtype: subtype}
	return key, key.Validate()
}

// WriteZippedStore writes the data directory to w as a zip archive whose
// entries are relative to the data directory.
func (c *Cfg) WriteZippedStore(ctx context.Context, w io.Writer) error {
	fs, err := blob.OpenDir(c.layout.Dir())
	if err != nil {
		return err
	}
	return archive.WriteZip(ctx, fs, "", w, archive.ZipOpts{})
}

// Validate checks the effective document of id against its schema.
func (c *Cfg) Validate(_ context.Context, id store.Identifier) ([]entity.Message, error) {
	doc, spec, ok, err := c.entities.Document(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &store.EntityError{ID: id.Key(), Err: store.ErrNotFound}
	}
	return c.validator.Validate(spec, doc)
}

// ValidateAll validates every stored entity. Entity and defaults files that
// could not be read when the store was opened are reported as errors too.
func (c *Cfg) ValidateAll(ctx context.Context) (map[store.Identifier][]entity.Message, error) {
	results := make(map[store.Identifier][]entity.Message)
	for _, err := range c.events.ReplayErrors() {
		var ee *store.EntityError
		if !errors.As(err, &ee) {
			continue
		}
		results[ee.ID] = append(results[ee.ID], entity.Message{
			Path:     "$",
			Code:     CodeUnreadable,
			Text:     ee.Err.Error(),
			Severity: entity.SeverityError,
		})
	}
	for _, id := range c.Identifiers() {
		msgs, err := c.Validate(ctx, id)
		if err != nil {
			return nil, err
		}
		results[id] = append(results[id], msgs...)
	}
	return results, nil
}

// Sorted returns the keys of results in identifier order.
func Sorted(results map[store.Identifier][]entity.Message) []store.Identifier {
	return slices.SortedFunc(maps.Keys(results), store.Compare)
}
