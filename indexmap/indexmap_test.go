package indexmap

import (
	"testing"

	"github.com/acksell/sharedtable/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByType_MatchesSameKindCompatibleShape(t *testing.T) {
	virtual := schema.SecondaryIndex{
		Name: "by-status",
		Kind: schema.GSI,
		PrimaryKey: schema.PrimaryKey{
			HashKey: "status", HashKeyType: schema.KeyTypeString,
		},
	}
	physical := []schema.SecondaryIndex{
		{Name: "gsi1", Kind: schema.LSI, PrimaryKey: schema.PrimaryKey{HashKey: "pk", HashKeyType: schema.KeyTypeString}},
		{Name: "gsi2", Kind: schema.GSI, PrimaryKey: schema.PrimaryKey{HashKey: "pk", HashKeyType: schema.KeyTypeString}},
	}

	got, err := ByType{}.MapIndex(virtual, physical)
	require.NoError(t, err)
	assert.Equal(t, "gsi2", got.Name)
}

func TestByType_RangeKeyTypeMustMatchExactly(t *testing.T) {
	virtual := schema.SecondaryIndex{
		Kind: schema.GSI,
		PrimaryKey: schema.PrimaryKey{
			HashKey: "status", HashKeyType: schema.KeyTypeString,
			RangeKey: "ts", RangeKeyType: schema.KeyTypeNumber,
		},
	}
	physical := []schema.SecondaryIndex{
		{Name: "gsi-wrong", Kind: schema.GSI, PrimaryKey: schema.PrimaryKey{
			HashKey: "pk", HashKeyType: schema.KeyTypeString,
			RangeKey: "sk", RangeKeyType: schema.KeyTypeString,
		}},
		{Name: "gsi-right", Kind: schema.GSI, PrimaryKey: schema.PrimaryKey{
			HashKey: "pk", HashKeyType: schema.KeyTypeString,
			RangeKey: "sk", RangeKeyType: schema.KeyTypeNumber,
		}},
	}

	got, err := ByType{}.MapIndex(virtual, physical)
	require.NoError(t, err)
	assert.Equal(t, "gsi-right", got.Name)
}

func TestByType_NoCompatiblePhysicalIndex(t *testing.T) {
	virtual := schema.SecondaryIndex{Kind: schema.LSI, PrimaryKey: schema.PrimaryKey{HashKey: "pk", HashKeyType: schema.KeyTypeString}}
	_, err := ByType{}.MapIndex(virtual, nil)
	assert.ErrorIs(t, err, ErrUnmappableIndex)
}

func TestByType_NonStringPhysicalHashIsIncompatible(t *testing.T) {
	virtual := schema.SecondaryIndex{Kind: schema.GSI, PrimaryKey: schema.PrimaryKey{HashKey: "pk", HashKeyType: schema.KeyTypeString}}
	physical := []schema.SecondaryIndex{
		{Name: "gsi1", Kind: schema.GSI, PrimaryKey: schema.PrimaryKey{HashKey: "pk", HashKeyType: schema.KeyTypeNumber}},
	}
	_, err := ByType{}.MapIndex(virtual, physical)
	assert.ErrorIs(t, err, ErrUnmappableIndex)
}
