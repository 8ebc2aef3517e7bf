package router

import (
	"context"

	"github.com/acksell/sharedtable/backend"
	"github.com/acksell/sharedtable/stream"
)

// StreamHandle is one streaming-enabled physical table's change-capture
// shards, alongside the stream.Adapter that relabels its records back to
// each record's owning tenant and virtual table.
type StreamHandle struct {
	PhysicalTable string
	Shards        []backend.PhysicalStream
	Adapter       *stream.Adapter
}

// ListStreams enumerates every physical table, among those backing a
// mapping the cache currently holds, that has streaming enabled, and
// returns one StreamHandle per such table. A physical table shared
// by several virtual tables or tenants surfaces once, not once per mapping:
// its shards carry records for every tenant that writes to it, and a single
// stream.Adapter already relabels each record against whichever (tenant,
// virtual table) it actually belongs to by consulting the metadata repo and
// cache at decode time, so handing back the same table twice would just
// mean two callers draining the same shard.
func (r *Router) ListStreams(ctx context.Context, handler stream.Handler, opts ...stream.Option) ([]StreamHandle, error) {
	seen := make(map[string]bool)
	var handles []StreamHandle
	for _, tm := range r.cache.Entries() {
		phys := tm.PhysicalTable()
		if phys.Stream == nil || seen[phys.TableName] {
			continue
		}
		seen[phys.TableName] = true

		shards, err := r.backend.Streams(ctx, phys.TableName)
		if err != nil {
			return nil, err
		}
		adapter := stream.NewAdapter(phys.PrimaryKey.HashKey, r.codec, r.metadata, r.cache, handler, opts...)
		handles = append(handles, StreamHandle{
			PhysicalTable: phys.TableName,
			Shards:        shards,
			Adapter:       adapter,
		})
	}
	return handles, nil
}
