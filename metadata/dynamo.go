package metadata

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/acksell/sharedtable/backend"
	"github.com/acksell/sharedtable/schema"
	"github.com/acksell/sharedtable/tenant"
)

// metadataKeyAttr/metadataRangeAttr are the key-schema attributes of the
// physical table backing DynamoRepo: one item per (tenant, virtual table),
// hash-keyed on the tenant so ListTables can enumerate every virtual table
// a tenant owns with a single Query. Neither is exposed through the schema
// package since they're an artifact of this Repo implementation, not part
// of a virtual table's shape.
const (
	metadataKeyAttr   = "pk"
	metadataRangeAttr = "sk"
)

// DynamoRepo is a Repo backed by a single physical DynamoDB-shaped table,
// one item per (tenant, virtual table), marshaled with attributevalue.
type DynamoRepo struct {
	client    backend.Client
	tableName string
}

var _ Repo = (*DynamoRepo)(nil)

// NewDynamoRepo constructs a DynamoRepo storing metadata items in
// tableName via client.
func NewDynamoRepo(client backend.Client, tableName string) *DynamoRepo {
	return &DynamoRepo{client: client, tableName: tableName}
}

func metadataKey(t tenant.ID, virtualTable string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		metadataKeyAttr:   &types.AttributeValueMemberS{Value: string(t)},
		metadataRangeAttr: &types.AttributeValueMemberS{Value: virtualTable},
	}
}

func (r *DynamoRepo) CreateTable(ctx context.Context, virtual schema.VirtualTableDescription) (schema.VirtualTableDescription, error) {
	t, err := tenant.FromContext(ctx)
	if err != nil {
		return schema.VirtualTableDescription{}, err
	}
	item, err := attributevalue.MarshalMap(virtual)
	if err != nil {
		return schema.VirtualTableDescription{}, fmt.Errorf("marshal virtual table description: %w", err)
	}
	for k, v := range metadataKey(t, virtual.TableName) {
		item[k] = v
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &r.tableName,
		Item:      item,
	})
	if err != nil {
		return schema.VirtualTableDescription{}, backend.Wrap("metadata.CreateTable", err)
	}
	return virtual, nil
}

func (r *DynamoRepo) GetTableDescription(ctx context.Context, name string) (schema.VirtualTableDescription, error) {
	t, err := tenant.FromContext(ctx)
	if err != nil {
		return schema.VirtualTableDescription{}, err
	}
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &r.tableName,
		Key:       metadataKey(t, name),
	})
	if err != nil {
		return schema.VirtualTableDescription{}, backend.Wrap("metadata.GetTableDescription", err)
	}
	if out.Item == nil {
		return schema.VirtualTableDescription{}, noSuchTable(name)
	}
	var desc schema.VirtualTableDescription
	if err := attributevalue.UnmarshalMap(out.Item, &desc); err != nil {
		return schema.VirtualTableDescription{}, fmt.Errorf("unmarshal virtual table description: %w", err)
	}
	return desc, nil
}

func (r *DynamoRepo) DeleteTable(ctx context.Context, name string) (schema.VirtualTableDescription, error) {
	desc, err := r.GetTableDescription(ctx, name)
	if err != nil {
		return schema.VirtualTableDescription{}, err
	}
	t, err := tenant.FromContext(ctx)
	if err != nil {
		return schema.VirtualTableDescription{}, err
	}
	_, err = r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: &r.tableName,
		Key:       metadataKey(t, name),
	})
	if err != nil {
		return schema.VirtualTableDescription{}, backend.Wrap("metadata.DeleteTable", err)
	}
	return desc, nil
}

// ListTables enumerates every virtual table the ctx's current tenant has
// created, querying the metadata table's hash key (the tenant) rather than
// scanning it. This is the operational counterpart to the single-table
// lookups above and is the natural place, among this repo's methods, for an
// actual key-condition expression: GetTableDescription/DeleteTable pin both
// key attributes via GetItem/DeleteItem's direct Key map and never need
// one.
func (r *DynamoRepo) ListTables(ctx context.Context) ([]schema.VirtualTableDescription, error) {
	t, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	keyCond := expression.Key(metadataKeyAttr).Equal(expression.Value(string(t)))
	builtExpr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("metadata.ListTables: build key condition expression: %w", err)
	}

	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 &r.tableName,
		KeyConditionExpression:    builtExpr.KeyCondition(),
		ExpressionAttributeNames:  builtExpr.Names(),
		ExpressionAttributeValues: builtExpr.Values(),
	})
	if err != nil {
		return nil, backend.Wrap("metadata.ListTables", err)
	}

	descs := make([]schema.VirtualTableDescription, len(out.Items))
	for i, item := range out.Items {
		if err := attributevalue.UnmarshalMap(item, &descs[i]); err != nil {
			return nil, fmt.Errorf("metadata.ListTables: unmarshal virtual table description %d: %w", i, err)
		}
	}
	return descs, nil
}
