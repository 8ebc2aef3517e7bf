// Package schema defines typed descriptions of virtual and physical tables:
// their primary keys and secondary indexes. These types are pure data, no
// methods beyond simple accessors.
package schema

// KeyType is a DynamoDB scalar attribute type usable as a key.
type KeyType string

const (
	KeyTypeString KeyType = "S"
	KeyTypeNumber KeyType = "N"
	KeyTypeBinary KeyType = "B"
)

// IndexKind distinguishes global from local secondary indexes.
type IndexKind string

const (
	GSI IndexKind = "GSI"
	LSI IndexKind = "LSI"
)

// PrimaryKey describes a table's or index's key schema. RangeKey is empty
// when the table/index has a hash-only key.
type PrimaryKey struct {
	HashKey      string
	HashKeyType  KeyType
	RangeKey     string
	RangeKeyType KeyType
}

// HasRangeKey reports whether this key schema includes a range key.
func (k PrimaryKey) HasRangeKey() bool { return k.RangeKey != "" }

// ProjectionType mirrors DynamoDB's secondary-index projection modes.
type ProjectionType string

const (
	ProjectKeysOnly ProjectionType = "KEYS_ONLY"
	ProjectInclude  ProjectionType = "INCLUDE"
	ProjectAll      ProjectionType = "ALL"
)

// Projection describes which attributes a secondary index carries.
type Projection struct {
	Type             ProjectionType
	NonKeyAttributes []string
}

// SecondaryIndex describes one GSI or LSI on a table.
type SecondaryIndex struct {
	Name       string
	Kind       IndexKind
	PrimaryKey PrimaryKey
	Projection Projection
}

// StreamSpec describes an enabled change-data-capture stream on a physical
// table. Absent (nil) means streaming is not enabled.
type StreamSpec struct {
	// StreamARN is populated by the backend once the table/stream exists;
	// it is empty until TableMapping's one-time physical-table refresh.
	StreamARN string
	ViewType  string // e.g. NEW_AND_OLD_IMAGES
}

// VirtualTableDescription is the tenant-visible shape of a table, as stored
// by the metadata repository.
type VirtualTableDescription struct {
	TableName        string
	PrimaryKey       PrimaryKey
	SecondaryIndexes []SecondaryIndex
	Stream           *StreamSpec
	// Status is stored as the caller supplied it; the router always reports
	// ACTIVE from CreateTable and DescribeTable.
	Status string
}

// PhysicalTableDescription is the shape of a shared backend table onto
// which one or more virtual tables are multiplexed. Invariant: every hash
// key (table-level and on every secondary index) has type S.
type PhysicalTableDescription struct {
	TableName        string
	PrimaryKey       PrimaryKey
	SecondaryIndexes []SecondaryIndex
	Stream           *StreamSpec
}

// Clone returns a deep-enough copy of d for safe independent mutation
// (slices are copied; PrimaryKey/Projection are copied by value).
func (d VirtualTableDescription) Clone() VirtualTableDescription {
	out := d
	if d.SecondaryIndexes != nil {
		out.SecondaryIndexes = append([]SecondaryIndex(nil), d.SecondaryIndexes...)
	}
	if d.Stream != nil {
		s := *d.Stream
		out.Stream = &s
	}
	return out
}

// Clone returns a deep-enough copy of d for safe independent mutation.
func (d PhysicalTableDescription) Clone() PhysicalTableDescription {
	out := d
	if d.SecondaryIndexes != nil {
		out.SecondaryIndexes = append([]SecondaryIndex(nil), d.SecondaryIndexes...)
	}
	if d.Stream != nil {
		s := *d.Stream
		out.Stream = &s
	}
	return out
}
