// Package fieldcodec rewrites one attribute value at a time between
// virtual and physical form, according to a mapping.FieldMapping. A Mapper
// is constructed with the prefix codec and virtual table name rather than
// a back-reference to the TableMapping that owns it, which keeps the two
// packages free of an import cycle.
package fieldcodec

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/acksell/sharedtable/mapping"
	"github.com/acksell/sharedtable/prefix"
	"github.com/acksell/sharedtable/tenant"
)

// Mapper rewrites one attribute value according to a mapping.FieldMapping.
type Mapper struct {
	codec        *prefix.Codec
	virtualTable string
}

// New constructs a Mapper scoped to one virtual table, sharing codec with
// every other mapper/component that needs to encode/decode prefixed values
// with the same delimiter.
func New(codec *prefix.Codec, virtualTable string) *Mapper {
	return &Mapper{codec: codec, virtualTable: virtualTable}
}

// Apply converts a virtual attribute value to its physical form. For
// context-aware fields this always yields an S value carrying the tenant/
// virtual-table prefix; for non-context-aware fields it is the identity.
func (m *Mapper) Apply(ctx context.Context, field mapping.FieldMapping, v types.AttributeValue) (types.AttributeValue, error) {
	if !field.ContextAware {
		return v, nil
	}
	t, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := stringify(v)
	if err != nil {
		return nil, fmt.Errorf("apply field mapping %q: %w", field.SourceField, err)
	}
	qualified := m.codec.Apply(t, m.virtualTable, raw)
	return &types.AttributeValueMemberS{Value: qualified.Qualified}, nil
}

// Reverse converts a physical attribute value back to virtual form. For
// context-aware fields it parses the prefix and returns the original value
// as an S, preserving string form even when the virtual field was numeric
// or binary; callers needing the original type must re-coerce by
// consulting the virtual schema.
func (m *Mapper) Reverse(field mapping.FieldMapping, v types.AttributeValue) (types.AttributeValue, error) {
	if !field.ContextAware {
		return v, nil
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return nil, fmt.Errorf("reverse field mapping %q: expected physical S value, got %T", field.SourceField, v)
	}
	decoded, err := m.codec.Reverse(s.Value)
	if err != nil {
		return nil, fmt.Errorf("reverse field mapping %q: %w", field.SourceField, err)
	}
	return &types.AttributeValueMemberS{Value: decoded.Original}, nil
}

// stringify coerces a scalar AttributeValue (S, N, or B) to its string form
// prior to prefixing.
func stringify(v types.AttributeValue) (string, error) {
	switch tv := v.(type) {
	case *types.AttributeValueMemberS:
		return tv.Value, nil
	case *types.AttributeValueMemberN:
		return tv.Value, nil
	case *types.AttributeValueMemberB:
		return string(tv.Value), nil
	default:
		return "", fmt.Errorf("unsupported attribute type %T for context-aware field", v)
	}
}
