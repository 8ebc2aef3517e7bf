// Package router is the shared-table virtualization layer's outward API:
// the entry point a tenant's client calls, translating every virtual-table
// operation into one or more calls against a shared physical backend. It
// is the orchestration point wiring tenant, prefix, schema, indexmap,
// mapping, fieldcodec, itemmap, querymap, mappingcache, metadata, backend,
// and stream together.
package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/acksell/sharedtable/backend"
	"github.com/acksell/sharedtable/indexmap"
	"github.com/acksell/sharedtable/mapping"
	"github.com/acksell/sharedtable/mappingcache"
	"github.com/acksell/sharedtable/metadata"
	"github.com/acksell/sharedtable/prefix"
	"github.com/acksell/sharedtable/tenant"
)

// ErrReservedDelimiter is returned when a tenant id or virtual table name
// contains the codec's delimiter. The delimiter is reserved: a prefix
// encoded from such a value would decode to the wrong tenant or table,
// leaking rows across tenants.
var ErrReservedDelimiter = errors.New("sharedtable/router: tenant id and table name must not contain the delimiter")

// Option configures a Router at construction time.
type Option func(*options)

type options struct {
	codec                 *prefix.Codec
	cacheOptions          mappingcache.Options
	truncateOnDeleteTable bool
	deleteTableAsync      bool
}

// WithDelimiter overrides the Field-Prefix Codec's delimiter (default ".").
func WithDelimiter(delim string) Option {
	return func(o *options) { o.codec = prefix.New(delim) }
}

// WithMappingCacheOptions configures the table-mapping cache, e.g. its LRU
// bound.
func WithMappingCacheOptions(cacheOpts mappingcache.Options) Option {
	return func(o *options) { o.cacheOptions = cacheOpts }
}

// WithTruncateOnDeleteTable makes DeleteTable also delete every item still
// stored under the deleted virtual table's prefix. By default this runs
// synchronously, so DeleteTable does not return until every item is gone;
// pair with WithDeleteTableAsync to background it instead.
func WithTruncateOnDeleteTable(truncate bool) Option {
	return func(o *options) { o.truncateOnDeleteTable = truncate }
}

// WithDeleteTableAsync makes truncation (when WithTruncateOnDeleteTable is
// also set) run detached from the DeleteTable call that triggered it,
// instead of blocking the caller until every item is scanned and deleted.
// Has no effect unless truncation is also enabled.
func WithDeleteTableAsync(async bool) Option {
	return func(o *options) { o.deleteTableAsync = async }
}

// Router is the shared-table virtualization layer's entry point.
type Router struct {
	metadata              metadata.Repo
	backend               backend.Client
	factory               mapping.CreateTableRequestFactory
	codec                 *prefix.Codec
	cache                 *mappingcache.Cache
	truncateOnDeleteTable bool
	deleteTableAsync      bool
}

// New constructs a Router. factory resolves which physical table a virtual
// table's mapping should target; indexMapper resolves which physical
// secondary index a virtual one should target.
func New(metadataRepo metadata.Repo, backendClient backend.Client, factory mapping.CreateTableRequestFactory, indexMapper indexmap.Mapper, opts ...Option) *Router {
	o := options{codec: prefix.New(prefix.DefaultDelimiter)}
	for _, opt := range opts {
		opt(&o)
	}
	builder := mapping.NewBuilder(factory, indexMapper, o.codec.Delimiter())
	cache := mappingcache.New(builder, o.cacheOptions)
	return &Router{
		metadata:              metadataRepo,
		backend:               backendClient,
		factory:               factory,
		codec:                 o.codec,
		cache:                 cache,
		truncateOnDeleteTable: o.truncateOnDeleteTable,
		deleteTableAsync:      o.deleteTableAsync,
	}
}

// validateScope rejects tenant ids and virtual table names the prefix
// codec cannot encode unambiguously. Every tenant-scoped router operation
// (table lifecycle and data plane) passes through here before touching
// metadata or the backend; PrecreateTables and ListStreams do not.
func (r *Router) validateScope(ctx context.Context, virtualTableName string) error {
	t, err := tenant.FromContext(ctx)
	if err != nil {
		return err
	}
	if r.codec.ContainsDelimiter(string(t)) {
		return fmt.Errorf("%w: tenant id %q", ErrReservedDelimiter, t)
	}
	if r.codec.ContainsDelimiter(virtualTableName) {
		return fmt.Errorf("%w: table name %q", ErrReservedDelimiter, virtualTableName)
	}
	return nil
}

// resolveMapping fetches the named virtual table's description and resolves
// (or reuses) its table mapping, the two steps almost every router
// operation needs before it can touch the backend.
func (r *Router) resolveMapping(ctx context.Context, virtualTableName string) (*mapping.TableMapping, error) {
	if err := r.validateScope(ctx, virtualTableName); err != nil {
		return nil, err
	}
	virtual, err := r.metadata.GetTableDescription(ctx, virtualTableName)
	if err != nil {
		return nil, err
	}
	tm, err := r.cache.GetOrCompute(ctx, virtual)
	if err != nil {
		return nil, fmt.Errorf("resolve table mapping for %q: %w", virtualTableName, err)
	}
	return tm, nil
}

// ResolveMapping exposes resolveMapping for callers that need to inspect how
// a virtual table's fields currently resolve onto the physical table (e.g.
// operational tooling), without performing any data-plane operation.
func (r *Router) ResolveMapping(ctx context.Context, virtualTableName string) (*mapping.TableMapping, error) {
	return r.resolveMapping(ctx, virtualTableName)
}
