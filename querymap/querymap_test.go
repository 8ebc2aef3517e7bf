package querymap

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acksell/sharedtable/fieldcodec"
	"github.com/acksell/sharedtable/indexmap"
	"github.com/acksell/sharedtable/mapping"
	"github.com/acksell/sharedtable/prefix"
	"github.com/acksell/sharedtable/schema"
	"github.com/acksell/sharedtable/tenant"
)

type staticFactory struct{ physical *schema.PhysicalTableDescription }

func (f staticFactory) PrecreateTables(ctx context.Context) ([]schema.PhysicalTableDescription, error) {
	return nil, nil
}
func (f staticFactory) GetCreateTableRequest(ctx context.Context, virtual schema.VirtualTableDescription) (*schema.PhysicalTableDescription, error) {
	return f.physical, nil
}

func newMapper(t *testing.T) (*Mapper, context.Context) {
	t.Helper()
	physical := &schema.PhysicalTableDescription{
		TableName:  "shared-1",
		PrimaryKey: schema.PrimaryKey{HashKey: "pk", HashKeyType: schema.KeyTypeString, RangeKey: "sk", RangeKeyType: schema.KeyTypeString},
	}
	virtual := schema.VirtualTableDescription{
		TableName:  "table1",
		PrimaryKey: schema.PrimaryKey{HashKey: "hashKeyField", HashKeyType: schema.KeyTypeString, RangeKey: "rangeKeyField", RangeKeyType: schema.KeyTypeString},
	}
	ctx := tenant.WithID(context.Background(), tenant.ID("ctx1"))
	b := mapping.NewBuilder(staticFactory{physical: physical}, indexmap.ByType{}, ".")
	tm, err := b.Build(ctx, virtual)
	require.NoError(t, err)

	codec := prefix.New(".")
	fm := fieldcodec.New(codec, virtual.TableName)
	return New(tm, fm, codec), ctx
}

func TestRewriteQuery_EqualityOnHashOnly(t *testing.T) {
	m, ctx := newMapper(t)
	expr := "hashKeyField = :v"
	input := &dynamodb.QueryInput{
		TableName:                 strptr("table1"),
		KeyConditionExpression:    &expr,
		ExpressionAttributeValues: map[string]types.AttributeValue{":v": &types.AttributeValueMemberS{Value: "1"}},
	}

	out, err := m.RewriteQuery(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, "shared-1", *out.TableName)
	assert.Nil(t, out.IndexName)

	var foundPK bool
	for _, v := range out.ExpressionAttributeValues {
		if sv, ok := v.(*types.AttributeValueMemberS); ok && sv.Value == "ctx1.table1.1" {
			foundPK = true
		}
	}
	assert.True(t, foundPK)
}

func TestRewriteQuery_EqualityOnHashAndRange(t *testing.T) {
	m, ctx := newMapper(t)
	expr := "hashKeyField = :h AND rangeKeyField = :r"
	input := &dynamodb.QueryInput{
		KeyConditionExpression: &expr,
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":h": &types.AttributeValueMemberS{Value: "1"},
			":r": &types.AttributeValueMemberS{Value: "abc"},
		},
	}
	out, err := m.RewriteQuery(ctx, input)
	require.NoError(t, err)
	assert.Contains(t, *out.KeyConditionExpression, "AND")
}

func TestRewriteQuery_DropsConsumedPlaceholders(t *testing.T) {
	m, ctx := newMapper(t)
	expr := "#h = :h"
	input := &dynamodb.QueryInput{
		KeyConditionExpression:    &expr,
		ExpressionAttributeNames:  map[string]string{"#h": "hashKeyField"},
		ExpressionAttributeValues: map[string]types.AttributeValue{":h": &types.AttributeValueMemberS{Value: "1"}},
	}
	out, err := m.RewriteQuery(ctx, input)
	require.NoError(t, err)

	// the rebuilt key condition uses generated placeholders; the caller's
	// originals would be rejected as unused if left behind
	_, hasName := out.ExpressionAttributeNames["#h"]
	assert.False(t, hasName)
	_, hasValue := out.ExpressionAttributeValues[":h"]
	assert.False(t, hasValue)
}

func TestRewriteQuery_NonEqualityRejected(t *testing.T) {
	m, ctx := newMapper(t)
	expr := "hashKeyField = :h AND rangeKeyField > :r"
	input := &dynamodb.QueryInput{
		KeyConditionExpression: &expr,
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":h": &types.AttributeValueMemberS{Value: "1"},
			":r": &types.AttributeValueMemberS{Value: "abc"},
		},
	}
	_, err := m.RewriteQuery(ctx, input)
	assert.ErrorIs(t, err, ErrUnsupportedPredicate)
}

func TestRewriteQuery_BeginsWithRejected(t *testing.T) {
	m, ctx := newMapper(t)
	expr := "hashKeyField = :h AND begins_with(rangeKeyField, :r)"
	input := &dynamodb.QueryInput{
		KeyConditionExpression: &expr,
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":h": &types.AttributeValueMemberS{Value: "1"},
			":r": &types.AttributeValueMemberS{Value: "abc"},
		},
	}
	_, err := m.RewriteQuery(ctx, input)
	assert.ErrorIs(t, err, ErrUnsupportedPredicate)
}

func TestRewriteScan_AddsBeginsWithScope(t *testing.T) {
	m, ctx := newMapper(t)
	input := &dynamodb.ScanInput{}
	out, err := m.RewriteScan(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, "shared-1", *out.TableName)
	require.NotNil(t, out.FilterExpression)
	assert.Contains(t, *out.FilterExpression, "begins_with")

	var foundPrefix bool
	for _, v := range out.ExpressionAttributeValues {
		if sv, ok := v.(*types.AttributeValueMemberS); ok && sv.Value == "ctx1.table1." {
			foundPrefix = true
		}
	}
	assert.True(t, foundPrefix)
}

func TestRewriteScan_CombinesWithExistingFilter(t *testing.T) {
	m, ctx := newMapper(t)
	userFilter := "#st = :active"
	input := &dynamodb.ScanInput{
		FilterExpression:          &userFilter,
		ExpressionAttributeNames:  map[string]string{"#st": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{":active": &types.AttributeValueMemberS{Value: "ACTIVE"}},
	}
	out, err := m.RewriteScan(ctx, input)
	require.NoError(t, err)
	assert.Contains(t, *out.FilterExpression, "begins_with")
	assert.Contains(t, *out.FilterExpression, "#st = :active")
	assert.Equal(t, "status", out.ExpressionAttributeNames["#st"])
}

func TestRewriteQuery_UnknownIndex(t *testing.T) {
	m, ctx := newMapper(t)
	expr := "hashKeyField = :v"
	idxName := "no-such-index"
	input := &dynamodb.QueryInput{
		IndexName:                 &idxName,
		KeyConditionExpression:    &expr,
		ExpressionAttributeValues: map[string]types.AttributeValue{":v": &types.AttributeValueMemberS{Value: "1"}},
	}
	_, err := m.RewriteQuery(ctx, input)
	assert.ErrorIs(t, err, ErrUnknownIndex)
}

func strptr(s string) *string { return &s }
