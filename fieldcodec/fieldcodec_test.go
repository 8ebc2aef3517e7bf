package fieldcodec

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acksell/sharedtable/mapping"
	"github.com/acksell/sharedtable/prefix"
	"github.com/acksell/sharedtable/tenant"
)

func TestApply_ContextAware(t *testing.T) {
	m := New(prefix.New("."), "table1")
	ctx := tenant.WithID(context.Background(), tenant.ID("ctx1"))

	got, err := m.Apply(ctx, mapping.FieldMapping{SourceField: "hashKeyField", TargetField: "pk", ContextAware: true}, &types.AttributeValueMemberS{Value: "1"})
	require.NoError(t, err)
	assert.Equal(t, &types.AttributeValueMemberS{Value: "ctx1.table1.1"}, got)
}

func TestApply_NotContextAware_Identity(t *testing.T) {
	m := New(prefix.New("."), "table1")
	v := &types.AttributeValueMemberN{Value: "42"}
	got, err := m.Apply(context.Background(), mapping.FieldMapping{SourceField: "rk", TargetField: "sk", ContextAware: false}, v)
	require.NoError(t, err)
	assert.Equal(t, v, got)
}

func TestApply_RequiresTenant(t *testing.T) {
	m := New(prefix.New("."), "table1")
	_, err := m.Apply(context.Background(), mapping.FieldMapping{SourceField: "hk", ContextAware: true}, &types.AttributeValueMemberS{Value: "1"})
	assert.ErrorIs(t, err, tenant.ErrUnset)
}

func TestReverse_RoundTrip(t *testing.T) {
	m := New(prefix.New("."), "table1")
	ctx := tenant.WithID(context.Background(), tenant.ID("ctx1"))
	fm := mapping.FieldMapping{SourceField: "hashKeyField", TargetField: "pk", ContextAware: true}

	physical, err := m.Apply(ctx, fm, &types.AttributeValueMemberN{Value: "1"})
	require.NoError(t, err)

	virtual, err := m.Reverse(fm, physical)
	require.NoError(t, err)
	assert.Equal(t, &types.AttributeValueMemberS{Value: "1"}, virtual)
}

func TestReverse_MalformedPhysicalValue(t *testing.T) {
	m := New(prefix.New("."), "table1")
	fm := mapping.FieldMapping{ContextAware: true}
	_, err := m.Reverse(fm, &types.AttributeValueMemberN{Value: "1"})
	assert.Error(t, err)
}
