package mapping

// IndexScope says whether a FieldMapping belongs to the table's own primary
// key or to one secondary index's key schema.
type IndexScope string

const (
	ScopeTable          IndexScope = "TABLE"
	ScopeSecondaryIndex IndexScope = "SECONDARY_INDEX"
)

// FieldMapping is one attribute rewrite rule between a virtual and a
// physical field.
type FieldMapping struct {
	SourceField       string
	TargetField       string
	VirtualIndexName  string
	PhysicalIndexName string
	IndexScope        IndexScope
	// ContextAware is true iff this field participates in the tenant/
	// virtual-table prefix, i.e. it is a hash key.
	ContextAware bool
}

// reversed returns the FieldMapping with source and target swapped, used to
// build the physical->virtual map from the virtual->physical one.
func (f FieldMapping) reversed() FieldMapping {
	r := f
	r.SourceField, r.TargetField = f.TargetField, f.SourceField
	return r
}
