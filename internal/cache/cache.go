// Package cache implements the normalized client-side result cache.
//
// Query results are stored under their operation key. Every object inside a
// written value that has an identity (see KeyFunc) is also merged into an
// entity record, and the new field values are copied into every other
// cached value holding the same entity. Two queries that fetch the same
// movie therefore always agree on its fields.
//
// Values are the generic JSON shapes produced by encoding/json
// (map[string]any, []any, string, float64 or json.Number, bool and nil). The cache keeps
// private copies; values passed in or returned are never shared.
//
// There is no eviction. Concurrent writes to one key resolve as last write
// wins.
package cache

import (
	"context"
	"reflect"
	"sync"

	"github.com/feenthu/movie-tracker-web-sub001/internal/eventbus"
	"github.com/feenthu/movie-tracker-web-sub001/internal/events"
)

// Store is the cache contract used by the client.
type Store interface {
	// Read returns the value cached under key. Unknown keys report false.
	Read(key string) (any, bool)
	// Write merges incoming into the value under key. It never fails.
	Write(key string, incoming any)
	// WriteEntities merges the identified objects found in data without
	// storing data itself.
	WriteEntities(data any)
	// Watch calls fn with the latest value every time key is written or an
	// entity it contains changes.
	Watch(key string, fn WatchFunc) (cancel func())
	// Reset drops every entry.
	Reset()
}

// WatchFunc receives the latest value for a watched key; ok is false once
// the key has been dropped.
type WatchFunc func(value any, ok bool)

// Option configures a Cache.
type Option func(*Cache)

// WithPolicies sets per-field merge policies.
func WithPolicies(p Policies) Option {
	return func(c *Cache) {
		for k, v := range p {
			c.policies[k] = v
		}
	}
}

// WithKeyFunc replaces DefaultKey.
func WithKeyFunc(f KeyFunc) Option { return func(c *Cache) { c.identify = f } }

// Cache is the in-memory Store.
type Cache struct {
	policies Policies
	identify KeyFunc

	mu       sync.Mutex
	version  uint64
	records  map[string]any
	entities map[string]map[string]any
	nextID   uint64
	watchers map[string]map[uint64]*watcher
}

type watcher struct {
	fn WatchFunc

	mu       sync.Mutex
	queued   uint64
	pending  *snapshot
	draining bool
}

type snapshot struct {
	value any
	ok    bool
}

// New returns an empty Cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		policies: Policies{},
		identify: DefaultKey,
		records:  map[string]any{},
		entities: map[string]map[string]any{},
		watchers: map[string]map[uint64]*watcher{},
	}
	for _, f := range opts {
		f(c)
	}
	return c
}

var _ Store = (*Cache)(nil)

func (c *Cache) Read(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.read(key)
}

func (c *Cache) read(key string) (any, bool) {
	if v, ok := c.records[key]; ok {
		return deepCopy(v), true
	}
	if e, ok := c.entities[key]; ok {
		return deepCopy(e), true
	}
	return nil, false
}

func (c *Cache) Write(key string, incoming any) {
	incoming = deepCopy(incoming)

	c.mu.Lock()
	changed := map[string]struct{}{key: {}}
	if obj, ok := incoming.(map[string]any); ok {
		if id, ok := c.identify(obj); ok && id == key {
			c.normalize(incoming, changed)
			c.commit(changed)
			return
		}
	}
	if obj, ok := incoming.(map[string]any); ok {
		if prev, ok := c.records[key].(map[string]any); ok {
			incoming = c.mergeObject(prev, obj)
		}
	}
	c.records[key] = incoming
	c.normalize(incoming, changed)
	c.commit(changed)
}

func (c *Cache) WriteEntities(data any) {
	data = deepCopy(data)
	c.mu.Lock()
	changed := map[string]struct{}{}
	c.normalize(data, changed)
	c.commit(changed)
}

// normalize merges every identified object in v into its entity record and
// propagates the touched fields to all cached values. Keys whose value
// changed are added to changed. c.mu must be held.
func (c *Cache) normalize(v any, changed map[string]struct{}) {
	touched := map[string]map[string]any{}
	var order []string
	c.collect(v, touched, &order)
	if len(order) == 0 {
		return
	}
	for _, id := range order {
		prev := c.entities[id]
		next := c.mergeObject(prev, touched[id])
		if !reflect.DeepEqual(prev, next) {
			changed[id] = struct{}{}
		}
		c.entities[id] = next
	}
	for key, rec := range c.records {
		if patched, ok := c.patch(rec, touched); ok {
			c.records[key] = patched
			changed[key] = struct{}{}
		}
	}
	for id, ent := range c.entities {
		if patched, ok := c.patchFields(ent, touched); ok {
			c.entities[id] = patched
			changed[id] = struct{}{}
		}
	}
}

// collect gathers the fields of every identified object in v, in document
// order. Later occurrences of an entity override earlier ones.
func (c *Cache) collect(v any, touched map[string]map[string]any, order *[]string) {
	switch t := v.(type) {
	case map[string]any:
		if id, ok := c.identify(t); ok {
			fields, seen := touched[id]
			if !seen {
				fields = map[string]any{}
				touched[id] = fields
				*order = append(*order, id)
			}
			for k, fv := range t {
				fields[k] = fv
			}
		}
		for _, fv := range t {
			c.collect(fv, touched, order)
		}
	case []any:
		for _, item := range t {
			c.collect(item, touched, order)
		}
	}
}

// patch rewrites identified objects inside v whose entity was touched so
// their fields match the entity record. Only fields the object already has
// are rewritten, so each cached value keeps its own shape.
func (c *Cache) patch(v any, touched map[string]map[string]any) (any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return c.patchFields(t, touched)
	case []any:
		var out []any
		for i, item := range t {
			p, ok := c.patch(item, touched)
			if !ok {
				continue
			}
			if out == nil {
				out = append([]any(nil), t...)
			}
			out[i] = p
		}
		if out == nil {
			return v, false
		}
		return out, true
	}
	return v, false
}

func (c *Cache) patchFields(obj map[string]any, touched map[string]map[string]any) (map[string]any, bool) {
	var out map[string]any
	set := func(k string, v any) {
		if out == nil {
			out = make(map[string]any, len(obj))
			for ok, ov := range obj {
				out[ok] = ov
			}
		}
		out[k] = v
	}
	if id, ok := c.identify(obj); ok {
		if fields, ok := touched[id]; ok {
			ent := c.entities[id]
			for k := range fields {
				cur, has := obj[k]
				if !has {
					continue
				}
				if next := c.project(cur, ent[k]); !reflect.DeepEqual(cur, next) {
					set(k, next)
				}
			}
		}
	}
	for k, fv := range obj {
		if out != nil {
			fv = out[k]
		}
		if p, ok := c.patch(fv, touched); ok {
			set(k, p)
		}
	}
	if out == nil {
		return obj, false
	}
	return out, true
}

// project returns next trimmed to the fields cur selects. Objects with a
// different identity, and values of a different kind, are taken as is.
func (c *Cache) project(cur, next any) any {
	switch cv := cur.(type) {
	case map[string]any:
		nv, ok := next.(map[string]any)
		if !ok {
			return deepCopy(next)
		}
		curID, curOK := c.identify(cv)
		nextID, nextOK := c.identify(nv)
		if curOK != nextOK || curID != nextID {
			return deepCopy(next)
		}
		out := make(map[string]any, len(cv))
		for k, f := range cv {
			if n, has := nv[k]; has {
				out[k] = c.project(f, n)
			} else {
				out[k] = f
			}
		}
		return out
	case []any:
		nv, ok := next.([]any)
		if !ok {
			return deepCopy(next)
		}
		byID := map[string]any{}
		for _, item := range cv {
			if obj, ok := item.(map[string]any); ok {
				if id, ok := c.identify(obj); ok {
					byID[id] = item
				}
			}
		}
		out := make([]any, len(nv))
		for i, item := range nv {
			out[i] = deepCopy(item)
			obj, isObj := item.(map[string]any)
			if !isObj {
				continue
			}
			if id, ok := c.identify(obj); ok {
				if prev, ok := byID[id]; ok {
					out[i] = c.project(prev, item)
				}
				continue
			}
			// Objects without identity are matched by position.
			if i < len(cv) {
				if prev, ok := cv[i].(map[string]any); ok {
					if _, hasID := c.identify(prev); !hasID {
						out[i] = c.project(prev, item)
					}
				}
			}
		}
		return out
	}
	return deepCopy(next)
}

type delivery struct {
	w     *watcher
	value any
	ok    bool
}

// commit bumps the version, snapshots values for the watchers of changed
// keys, releases c.mu and delivers them.
func (c *Cache) commit(changed map[string]struct{}) {
	c.version++
	ver := c.version
	var ds []delivery
	for key := range changed {
		ws := c.watchers[key]
		if len(ws) == 0 {
			continue
		}
		v, ok := c.read(key)
		for _, w := range ws {
			ds = append(ds, delivery{w: w, value: deepCopy(v), ok: ok})
		}
	}
	c.mu.Unlock()

	for key := range changed {
		eventbus.Publish(context.Background(), events.CacheWrite{Key: key})
	}
	for _, d := range ds {
		d.w.deliver(ver, d.value, d.ok)
	}
}

// deliver hands a snapshot to the watcher. Snapshots older than one already
// queued are dropped. Only one goroutine runs fn at a time and it does so
// with no lock held, so fn may write to the cache; such a nested delivery
// is queued and run by the outer call once fn returns.
func (w *watcher) deliver(ver uint64, v any, ok bool) {
	w.mu.Lock()
	if ver <= w.queued {
		w.mu.Unlock()
		return
	}
	w.queued = ver
	w.pending = &snapshot{value: v, ok: ok}
	if w.draining {
		w.mu.Unlock()
		return
	}
	w.draining = true
	for w.pending != nil {
		next := w.pending
		w.pending = nil
		w.mu.Unlock()
		w.fn(next.value, next.ok)
		w.mu.Lock()
	}
	w.draining = false
	w.mu.Unlock()
}

func (c *Cache) Watch(key string, fn WatchFunc) (cancel func()) {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	if c.watchers[key] == nil {
		c.watchers[key] = map[uint64]*watcher{}
	}
	c.watchers[key][id] = &watcher{fn: fn}
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			delete(c.watchers[key], id)
			if len(c.watchers[key]) == 0 {
				delete(c.watchers, key)
			}
		})
	}
}

func (c *Cache) Reset() {
	c.mu.Lock()
	changed := map[string]struct{}{}
	for k := range c.records {
		changed[k] = struct{}{}
	}
	for k := range c.entities {
		changed[k] = struct{}{}
	}
	c.records = map[string]any{}
	c.entities = map[string]map[string]any{}
	c.commit(changed)
}

// Len returns the number of operation and entity entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records) + len(c.entities)
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, fv := range t {
			out[k] = deepCopy(fv)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = deepCopy(item)
		}
		return out
	}
	return v
}
