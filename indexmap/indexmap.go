// Package indexmap pairs each virtual secondary index with a compatible
// physical secondary index on the shared table.
package indexmap

import (
	"errors"
	"fmt"

	"github.com/acksell/sharedtable/schema"
)

// ErrUnmappableIndex is returned when no physical index of the required
// kind and compatible key schema remains available.
var ErrUnmappableIndex = errors.New("sharedtable/indexmap: no compatible physical index available")

// Mapper chooses, for a virtual secondary index, a physical secondary index
// of the same kind and a compatible key schema.
type Mapper interface {
	// MapIndex returns the physical index matched to virtual, given the
	// physical indexes not yet claimed by an earlier virtual index in this
	// same build (used to enforce LSI uniqueness in the caller).
	MapIndex(virtual schema.SecondaryIndex, physical []schema.SecondaryIndex) (schema.SecondaryIndex, error)
}

// ByType partitions physical indexes by kind, then matches in declaration
// order by key-schema compatibility. The first compatible candidate wins
// (tie-break by declaration order); callers are responsible for excluding
// physical indexes already claimed by another virtual index.
type ByType struct{}

var _ Mapper = ByType{}

func (ByType) MapIndex(virtual schema.SecondaryIndex, physical []schema.SecondaryIndex) (schema.SecondaryIndex, error) {
	for _, p := range physical {
		if p.Kind != virtual.Kind {
			continue
		}
		if compatible(virtual.PrimaryKey, p.PrimaryKey) {
			return p, nil
		}
	}
	return schema.SecondaryIndex{}, fmt.Errorf("%w: virtual index %q (kind %s)", ErrUnmappableIndex, virtual.Name, virtual.Kind)
}

// compatible mirrors the builder's key-compatibility rule: physical hash
// key present and type S; if virtual has a range key, physical must too,
// with exactly matching types.
func compatible(v, p schema.PrimaryKey) bool {
	if p.HashKey == "" || p.HashKeyType != schema.KeyTypeString {
		return false
	}
	if v.HashKey == "" {
		return false
	}
	if v.HasRangeKey() {
		if !p.HasRangeKey() {
			return false
		}
		if v.RangeKeyType != p.RangeKeyType {
			return false
		}
	}
	return true
}
