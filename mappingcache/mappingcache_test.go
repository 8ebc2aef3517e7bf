package mappingcache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acksell/sharedtable/mapping"
	"github.com/acksell/sharedtable/schema"
	"github.com/acksell/sharedtable/tenant"
)

type countingFactory struct {
	builds int32
	ready  chan struct{}
}

func (f *countingFactory) Build(ctx context.Context, virtual schema.VirtualTableDescription) (*mapping.TableMapping, error) {
	atomic.AddInt32(&f.builds, 1)
	if f.ready != nil {
		<-f.ready
	}
	return &mapping.TableMapping{Virtual: virtual}, nil
}

func ctxFor(id string) context.Context {
	return tenant.WithID(context.Background(), tenant.ID(id))
}

func TestGetOrCompute_CachesAcrossCalls(t *testing.T) {
	f := &countingFactory{}
	c := New(f, Options{})
	virtual := schema.VirtualTableDescription{TableName: "table1"}
	ctx := ctxFor("ctx1")

	_, err := c.GetOrCompute(ctx, virtual)
	require.NoError(t, err)
	_, err = c.GetOrCompute(ctx, virtual)
	require.NoError(t, err)

	assert.EqualValues(t, 1, atomic.LoadInt32(&f.builds))
}

func TestGetOrCompute_SingleFlightPerKey(t *testing.T) {
	f := &countingFactory{ready: make(chan struct{})}
	c := New(f, Options{})
	virtual := schema.VirtualTableDescription{TableName: "table1"}
	ctx := ctxFor("ctx1")

	var wg sync.WaitGroup
	results := make([]*mapping.TableMapping, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tm, err := c.GetOrCompute(ctx, virtual)
			assert.NoError(t, err)
			results[i] = tm
		}(i)
	}
	close(f.ready)
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(&f.builds))
	for _, tm := range results {
		assert.Same(t, results[0], tm)
	}
}

func TestGetOrCompute_DistinctTenantsBuildIndependently(t *testing.T) {
	f := &countingFactory{}
	c := New(f, Options{})
	virtual := schema.VirtualTableDescription{TableName: "table1"}

	_, err := c.GetOrCompute(ctxFor("ctx1"), virtual)
	require.NoError(t, err)
	_, err = c.GetOrCompute(ctxFor("ctx2"), virtual)
	require.NoError(t, err)

	assert.EqualValues(t, 2, atomic.LoadInt32(&f.builds))
}

func TestDrop_ForcesRebuild(t *testing.T) {
	f := &countingFactory{}
	c := New(f, Options{})
	virtual := schema.VirtualTableDescription{TableName: "table1"}
	ctx := ctxFor("ctx1")

	_, err := c.GetOrCompute(ctx, virtual)
	require.NoError(t, err)
	c.Drop(tenant.ID("ctx1"), "table1")
	_, err = c.GetOrCompute(ctx, virtual)
	require.NoError(t, err)

	assert.EqualValues(t, 2, atomic.LoadInt32(&f.builds))
}

func TestGetOrCompute_RequiresTenant(t *testing.T) {
	f := &countingFactory{}
	c := New(f, Options{})
	_, err := c.GetOrCompute(context.Background(), schema.VirtualTableDescription{TableName: "t"})
	assert.ErrorIs(t, err, tenant.ErrUnset)
}

func TestMaxEntries_EvictsLeastRecentlyUsed(t *testing.T) {
	f := &countingFactory{}
	c := New(f, Options{MaxEntries: 1})
	ctx := ctxFor("ctx1")

	_, err := c.GetOrCompute(ctx, schema.VirtualTableDescription{TableName: "table1"})
	require.NoError(t, err)
	_, err = c.GetOrCompute(ctx, schema.VirtualTableDescription{TableName: "table2"})
	require.NoError(t, err)

	// table1 should have been evicted; re-fetching it rebuilds.
	_, err = c.GetOrCompute(ctx, schema.VirtualTableDescription{TableName: "table1"})
	require.NoError(t, err)

	assert.EqualValues(t, 3, atomic.LoadInt32(&f.builds))
}
