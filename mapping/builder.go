// Package mapping builds and validates the per-virtual-table TableMapping
// artifact and defines the FieldMapping/TableMapping types it produces.
package mapping

import (
	"context"
	"fmt"

	"github.com/acksell/sharedtable/indexmap"
	"github.com/acksell/sharedtable/schema"
	"github.com/acksell/sharedtable/tenant"
)

// CreateTableRequestFactory resolves (or lazily creates) the physical table
// template backing a virtual table. GetCreateTableRequest returns nil, nil
// when no template exists for virtual.
type CreateTableRequestFactory interface {
	PrecreateTables(ctx context.Context) ([]schema.PhysicalTableDescription, error)
	GetCreateTableRequest(ctx context.Context, virtual schema.VirtualTableDescription) (*schema.PhysicalTableDescription, error)
}

// Builder builds TableMapping artifacts. It holds no per-tenant state; the
// tenant is supplied per Build call via ctx.
type Builder struct {
	factory     CreateTableRequestFactory
	indexMapper indexmap.Mapper
	delimiter   string
	// AllowMissingTenant permits Build to proceed without a tenant set on
	// ctx, for precreation call sites that build physical templates ahead
	// of any tenant traffic. When false (default), Build requires a tenant.
	AllowMissingTenant bool
}

// NewBuilder constructs a Builder. The delimiter is stored but Build does
// not use it; callers normally pass the same delimiter used by the
// prefix.Codec. A nil indexMapper defaults to indexmap.ByType.
func NewBuilder(factory CreateTableRequestFactory, indexMapper indexmap.Mapper, delimiter string) *Builder {
	if indexMapper == nil {
		indexMapper = indexmap.ByType{}
	}
	return &Builder{factory: factory, indexMapper: indexMapper, delimiter: delimiter}
}

// Build resolves the physical template, validates compatibility, and
// constructs the complete TableMapping for virtual under the ctx's current
// tenant (or with an empty tenant when AllowMissingTenant is set).
func (b *Builder) Build(ctx context.Context, virtual schema.VirtualTableDescription) (*TableMapping, error) {
	var tid tenant.ID
	if !b.AllowMissingTenant {
		id, err := tenant.FromContext(ctx)
		if err != nil {
			return nil, err
		}
		tid = id
	} else if id, err := tenant.FromContext(ctx); err == nil {
		tid = id
	}

	physical, err := b.factory.GetCreateTableRequest(ctx, virtual)
	if err != nil {
		return nil, fmt.Errorf("resolve physical template for %q: %w", virtual.TableName, err)
	}
	if physical == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedVirtualTable, virtual.TableName)
	}

	if err := validatePhysicalHashKeysAreString(*physical); err != nil {
		return nil, err
	}

	if err := compatiblePrimaryKeys(virtual.PrimaryKey, physical.PrimaryKey); err != nil {
		return nil, invalidMapping(virtual.TableName, physical.TableName, err.Error())
	}

	tableFields, err := buildPrimaryKeyFieldMappings(virtual.PrimaryKey, physical.PrimaryKey, ScopeTable, "", "")
	if err != nil {
		return nil, invalidMapping(virtual.TableName, physical.TableName, err.Error())
	}

	allFields := append([]FieldMapping(nil), tableFields...)

	secondaryIdx := make([]IndexFieldMappings, 0, len(virtual.SecondaryIndexes))
	claimedLSI := make(map[string]string) // physical LSI name -> virtual index name that claimed it

	for _, vidx := range virtual.SecondaryIndexes {
		candidates := unclaimedPhysicalIndexes(physical.SecondaryIndexes, claimedLSI, vidx.Kind)
		pidx, err := b.indexMapper.MapIndex(vidx, candidates)
		if err != nil {
			return nil, fmt.Errorf("map virtual index %q on table %q: %w", vidx.Name, virtual.TableName, err)
		}

		if vidx.Kind == schema.LSI {
			if owner, already := claimedLSI[pidx.Name]; already {
				return nil, invalidIndexMapping(virtual.TableName, physical.TableName, vidx.Name, pidx.Name,
					fmt.Sprintf("physical LSI %q already mapped by virtual index %q", pidx.Name, owner))
			}
			claimedLSI[pidx.Name] = vidx.Name
		}

		if err := compatiblePrimaryKeys(vidx.PrimaryKey, pidx.PrimaryKey); err != nil {
			return nil, invalidIndexMapping(virtual.TableName, physical.TableName, vidx.Name, pidx.Name, err.Error())
		}

		// For LSIs, the hash-field mapping shares the table's partition key
		// (indexScope=TABLE); only the range mapping is index-scoped.
		hashScope := ScopeSecondaryIndex
		if vidx.Kind == schema.LSI {
			hashScope = ScopeTable
		}

		idxFields, err := buildPrimaryKeyFieldMappings(vidx.PrimaryKey, pidx.PrimaryKey, hashScope, vidx.Name, pidx.Name)
		if err != nil {
			return nil, invalidIndexMapping(virtual.TableName, physical.TableName, vidx.Name, pidx.Name, err.Error())
		}
		// Secondary-index range-key mappings are always index-scoped.
		for i := range idxFields {
			if !idxFields[i].ContextAware {
				idxFields[i].IndexScope = ScopeSecondaryIndex
			}
		}

		secondaryIdx = append(secondaryIdx, IndexFieldMappings{
			VirtualIndexName:  vidx.Name,
			PhysicalIndexName: pidx.Name,
			Fields:            idxFields,
		})
		allFields = append(allFields, idxFields...)
	}

	tm := &TableMapping{
		Tenant:            tid,
		Virtual:           virtual.Clone(),
		Physical:          physical.Clone(),
		VirtualToPhysical: indexByVirtualMapping(allFields),
		PhysicalToVirtual: indexByPhysicalMapping(allFields),
		SecondaryIndexes:  secondaryIdx,
	}
	return tm, nil
}

func validatePhysicalHashKeysAreString(p schema.PhysicalTableDescription) error {
	if p.PrimaryKey.HashKeyType != schema.KeyTypeString {
		return invalidMapping(p.TableName, p.TableName, fmt.Sprintf("physical table hash key %q must be type S, got %s", p.PrimaryKey.HashKey, p.PrimaryKey.HashKeyType))
	}
	for _, idx := range p.SecondaryIndexes {
		if idx.PrimaryKey.HashKeyType != schema.KeyTypeString {
			return invalidIndexMapping(p.TableName, p.TableName, "", idx.Name, fmt.Sprintf("physical index hash key %q must be type S, got %s", idx.PrimaryKey.HashKey, idx.PrimaryKey.HashKeyType))
		}
	}
	return nil
}

// compatiblePrimaryKeys checks key-schema compatibility: virtual hash present;
// physical hash present and type S; if virtual has a range key, physical
// must too with an exactly matching type.
func compatiblePrimaryKeys(v, p schema.PrimaryKey) error {
	if v.HashKey == "" {
		return fmt.Errorf("virtual primary hash key is required")
	}
	if p.HashKey == "" || p.HashKeyType != schema.KeyTypeString {
		return fmt.Errorf("physical primary hash key must be present and type S")
	}
	if v.HasRangeKey() {
		if !p.HasRangeKey() {
			return fmt.Errorf("virtual range key %q has no physical counterpart", v.RangeKey)
		}
		if v.RangeKeyType != p.RangeKeyType {
			return fmt.Errorf("virtual range key %q type %s does not match physical range key %q type %s", v.RangeKey, v.RangeKeyType, p.RangeKey, p.RangeKeyType)
		}
	}
	return nil
}

// buildPrimaryKeyFieldMappings builds the hash (and, if present, range)
// FieldMapping for a primary key pair. The hash mapping is always context-
// aware; the range mapping never is.
func buildPrimaryKeyFieldMappings(v, p schema.PrimaryKey, scope IndexScope, virtualIndexName, physicalIndexName string) ([]FieldMapping, error) {
	out := []FieldMapping{{
		SourceField:       v.HashKey,
		TargetField:       p.HashKey,
		VirtualIndexName:  virtualIndexName,
		PhysicalIndexName: physicalIndexName,
		IndexScope:        scope,
		ContextAware:      true,
	}}
	if v.HasRangeKey() {
		out = append(out, FieldMapping{
			SourceField:       v.RangeKey,
			TargetField:       p.RangeKey,
			VirtualIndexName:  virtualIndexName,
			PhysicalIndexName: physicalIndexName,
			IndexScope:        scope,
			ContextAware:      false,
		})
	}
	return out, nil
}

// unclaimedPhysicalIndexes filters physical to the given kind, excluding
// any LSI already claimed by a previous virtual index.
func unclaimedPhysicalIndexes(physical []schema.SecondaryIndex, claimedLSI map[string]string, kind schema.IndexKind) []schema.SecondaryIndex {
	out := make([]schema.SecondaryIndex, 0, len(physical))
	for _, p := range physical {
		if p.Kind != kind {
			continue
		}
		if p.Kind == schema.LSI {
			if _, claimed := claimedLSI[p.Name]; claimed {
				continue
			}
		}
		out = append(out, p)
	}
	return out
}
