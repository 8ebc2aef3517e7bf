package metadata

import (
	"context"
	"sync"

	"github.com/acksell/sharedtable/schema"
	"github.com/acksell/sharedtable/tenant"
)

// MemoryRepo is an in-memory Repo, scoped per tenant via ctx, used by this
// repo's tests. The cmd tool does not use it; it always wires a DynamoRepo.
type MemoryRepo struct {
	mu     sync.Mutex
	tables map[tenant.ID]map[string]schema.VirtualTableDescription
}

var _ Repo = (*MemoryRepo)(nil)

// NewMemoryRepo constructs an empty MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{tables: make(map[tenant.ID]map[string]schema.VirtualTableDescription)}
}

func (r *MemoryRepo) CreateTable(ctx context.Context, virtual schema.VirtualTableDescription) (schema.VirtualTableDescription, error) {
	t, err := tenant.FromContext(ctx)
	if err != nil {
		return schema.VirtualTableDescription{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tables[t] == nil {
		r.tables[t] = make(map[string]schema.VirtualTableDescription)
	}
	r.tables[t][virtual.TableName] = virtual.Clone()
	return virtual, nil
}

func (r *MemoryRepo) GetTableDescription(ctx context.Context, name string) (schema.VirtualTableDescription, error) {
	t, err := tenant.FromContext(ctx)
	if err != nil {
		return schema.VirtualTableDescription{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	desc, ok := r.tables[t][name]
	if !ok {
		return schema.VirtualTableDescription{}, noSuchTable(name)
	}
	return desc, nil
}

func (r *MemoryRepo) DeleteTable(ctx context.Context, name string) (schema.VirtualTableDescription, error) {
	t, err := tenant.FromContext(ctx)
	if err != nil {
		return schema.VirtualTableDescription{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	desc, ok := r.tables[t][name]
	if !ok {
		return schema.VirtualTableDescription{}, noSuchTable(name)
	}
	delete(r.tables[t], name)
	return desc, nil
}
