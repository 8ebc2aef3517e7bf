package mapping

import (
	"sync"

	"github.com/acksell/sharedtable/schema"
	"github.com/acksell/sharedtable/tenant"
)

// IndexFieldMappings groups a secondary index's field mappings alongside
// which virtual and physical index they were resolved against.
type IndexFieldMappings struct {
	VirtualIndexName  string
	PhysicalIndexName string
	Fields            []FieldMapping
}

// TableMapping is the core per-(tenant, virtual table) artifact: the
// virtual description, the resolved physical description, and every field
// mapping keyed both virtual->physical and physical->virtual. It is
// immutable after construction except for the one-time physical-table
// refresh RefreshPhysicalTable performs to capture backend-assigned fields
// (e.g. a stream ARN handed back by CreateTable).
type TableMapping struct {
	Tenant   tenant.ID
	Virtual  schema.VirtualTableDescription
	Physical schema.PhysicalTableDescription

	// VirtualToPhysical/PhysicalToVirtual are keyed by FieldMapping.SourceField.
	// A virtual source field may have more than one physical target (a hash
	// key that also feeds one or more secondary-index hash fields), so each
	// key maps to a slice.
	VirtualToPhysical map[string][]FieldMapping
	PhysicalToVirtual map[string][]FieldMapping

	// SecondaryIndexes holds the resolved mapping for each virtual
	// secondary index, in declaration order.
	SecondaryIndexes []IndexFieldMappings

	mu sync.Mutex
}

// RefreshPhysicalTable installs an updated physical table description,
// e.g. after the backend has assigned a stream ARN on first create. It is
// the only mutation TableMapping permits after construction.
func (m *TableMapping) RefreshPhysicalTable(physical schema.PhysicalTableDescription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Physical = physical
}

// TableFields returns the table-level primary-key field mappings (hash and,
// if present, range), excluding any secondary-index field mappings.
func (m *TableMapping) TableFields() []FieldMapping {
	var out []FieldMapping
	seen := make(map[string]bool)
	for _, fields := range m.VirtualToPhysical {
		for _, f := range fields {
			if f.VirtualIndexName == "" && f.PhysicalIndexName == "" && !seen[f.SourceField] {
				out = append(out, f)
				seen[f.SourceField] = true
			}
		}
	}
	return out
}

// IndexFields returns the field mappings for the named virtual secondary
// index, plus the physical index name it resolved to, or ok=false if no
// such virtual index exists on this mapping.
func (m *TableMapping) IndexFields(virtualIndexName string) (fields []FieldMapping, physicalIndexName string, ok bool) {
	for _, idx := range m.SecondaryIndexes {
		if idx.VirtualIndexName == virtualIndexName {
			return idx.Fields, idx.PhysicalIndexName, true
		}
	}
	return nil, "", false
}

// PhysicalTable returns the current physical table description.
func (m *TableMapping) PhysicalTable() schema.PhysicalTableDescription {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Physical
}

// indexByVirtualMapping groups fields by (source field), appending rather
// than overwriting, since one virtual field may map to several physical
// targets.
func indexByVirtualMapping(fields []FieldMapping) map[string][]FieldMapping {
	out := make(map[string][]FieldMapping, len(fields))
	for _, f := range fields {
		out[f.SourceField] = append(out[f.SourceField], f)
	}
	return out
}

func indexByPhysicalMapping(fields []FieldMapping) map[string][]FieldMapping {
	out := make(map[string][]FieldMapping, len(fields))
	for _, f := range fields {
		r := f.reversed()
		out[r.SourceField] = append(out[r.SourceField], r)
	}
	return out
}
