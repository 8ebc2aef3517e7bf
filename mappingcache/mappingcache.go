// Package mappingcache memoizes TableMapping construction per (tenant,
// virtual table): a bounded map with at-most-one concurrent build per key.
package mappingcache

import (
	"container/list"
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/acksell/sharedtable/mapping"
	"github.com/acksell/sharedtable/schema"
	"github.com/acksell/sharedtable/tenant"
)

// Factory builds a TableMapping on a cache miss.
type Factory interface {
	Build(ctx context.Context, virtual schema.VirtualTableDescription) (*mapping.TableMapping, error)
}

// Options configures a Cache.
type Options struct {
	// MaxEntries bounds the total number of cached mappings across all
	// tenants. Zero (the default) means unbounded.
	MaxEntries int
}

type cacheKey struct {
	tenant       tenant.ID
	virtualTable string
}

// Cache memoizes TableMapping construction per (tenant, virtual table).
// Safe for concurrent use.
type Cache struct {
	factory Factory
	opts    Options

	mu      sync.Mutex
	entries map[cacheKey]*list.Element // list.Element.Value is *entry
	order   *list.List                 // most-recently-used at the front

	sf singleflight.Group
}

type entry struct {
	key     cacheKey
	mapping *mapping.TableMapping
}

// New constructs a Cache backed by factory.
func New(factory Factory, opts Options) *Cache {
	return &Cache{
		factory: factory,
		opts:    opts,
		entries: make(map[cacheKey]*list.Element),
		order:   list.New(),
	}
}

// GetOrCompute returns the cached TableMapping for the ctx's current tenant
// and virtualTable, building it via the factory on a miss. Concurrent
// callers for the same key share a single in-flight build and its result.
// A failed build (including one cut short by the building caller's
// cancelled ctx) is returned to every caller sharing it but is never
// stored, so the next caller retries the build.
func (c *Cache) GetOrCompute(ctx context.Context, virtual schema.VirtualTableDescription) (*mapping.TableMapping, error) {
	t, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	key := cacheKey{tenant: t, virtualTable: virtual.TableName}

	if tm, ok := c.lookup(key); ok {
		return tm, nil
	}

	sfKey := fmt.Sprintf("%s/%s", t, virtual.TableName)
	v, err, _ := c.sf.Do(sfKey, func() (any, error) {
		// Re-check under the single-flight key: another caller may have
		// populated the cache while we waited to enter Do.
		if tm, ok := c.lookup(key); ok {
			return tm, nil
		}
		tm, err := c.factory.Build(ctx, virtual)
		if err != nil {
			return nil, err
		}
		c.store(key, tm)
		return tm, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*mapping.TableMapping), nil
}

// Entries returns a snapshot of every currently cached TableMapping, in
// most-recently-used-first order. Used by operations that must enumerate
// every mapping the cache currently holds across tenants, such as the
// router's stream enumeration, rather than resolving one (tenant, virtual
// table) at a time.
func (c *Cache) Entries() []*mapping.TableMapping {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*mapping.TableMapping, 0, len(c.entries))
	for el := c.order.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(*entry).mapping)
	}
	return out
}

// Drop removes the cached mapping for (tenant, virtualTable), if any. Used
// on deleteTable so the cache never serves a mapping for a table whose
// virtual description has been removed.
func (c *Cache) Drop(t tenant.ID, virtualTable string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := cacheKey{tenant: t, virtualTable: virtualTable}
	if el, ok := c.entries[key]; ok {
		c.order.Remove(el)
		delete(c.entries, key)
	}
}

func (c *Cache) lookup(key cacheKey) (*mapping.TableMapping, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*entry).mapping, true
}

func (c *Cache) store(key cacheKey, tm *mapping.TableMapping) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		el.Value.(*entry).mapping = tm
		c.order.MoveToFront(el)
		return
	}
	el := c.order.PushFront(&entry{key: key, mapping: tm})
	c.entries[key] = el

	if c.opts.MaxEntries > 0 {
		for len(c.entries) > c.opts.MaxEntries {
			oldest := c.order.Back()
			if oldest == nil {
				break
			}
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*entry).key)
		}
	}
}
