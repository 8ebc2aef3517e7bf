// Package itemmap rewrites a DynamoDB item's attribute map between virtual
// and physical form using a TableMapping's field mappings.
package itemmap

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/acksell/sharedtable/fieldcodec"
	"github.com/acksell/sharedtable/mapping"
)

// Item is a DynamoDB-style attribute map.
type Item = map[string]types.AttributeValue

// Mapper rewrites items for one TableMapping.
type Mapper struct {
	tm     *mapping.TableMapping
	fields *fieldcodec.Mapper
}

// New constructs an item Mapper for tm, using fields to rewrite individual
// attribute values.
func New(tm *mapping.TableMapping, fields *fieldcodec.Mapper) *Mapper {
	return &Mapper{tm: tm, fields: fields}
}

// Apply rewrites a virtual item into physical form. For each attribute in
// item: if the virtual name appears as a source in the virtual->physical
// map, a physical attribute is emitted for every target (independently
// encoded); unknown attributes pass through unchanged.
func (m *Mapper) Apply(ctx context.Context, item Item) (Item, error) {
	if len(item) == 0 {
		return item, nil
	}
	out := make(Item, len(item))
	for name, v := range item {
		targets, known := m.tm.VirtualToPhysical[name]
		if !known {
			out[name] = v
			continue
		}
		for _, fm := range targets {
			pv, err := m.fields.Apply(ctx, fm, v)
			if err != nil {
				return nil, fmt.Errorf("itemmap: apply attribute %q: %w", name, err)
			}
			out[fm.TargetField] = pv
		}
	}
	return out, nil
}

// Reverse rewrites a physical item back into virtual form, the inverse of
// Apply. A nil or empty item is returned unchanged.
func (m *Mapper) Reverse(item Item) (Item, error) {
	if len(item) == 0 {
		return item, nil
	}
	out := make(Item, len(item))
	for name, v := range item {
		mappings, known := m.tm.PhysicalToVirtual[name]
		if !known {
			out[name] = v
			continue
		}
		for _, fm := range mappings {
			vv, err := m.fields.Reverse(fm, v)
			if err != nil {
				return nil, fmt.Errorf("itemmap: reverse attribute %q: %w", name, err)
			}
			out[fm.TargetField] = vv
		}
	}
	return out, nil
}
