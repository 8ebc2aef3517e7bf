package router

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/acksell/sharedtable/backend"
	"github.com/acksell/sharedtable/mapping"
	"github.com/acksell/sharedtable/schema"
)

// PrecreateTables idempotently creates every physical table in the
// factory's precreation pool, so the shared pool exists before any tenant
// traffic arrives. No tenant needs to be set on ctx.
func (r *Router) PrecreateTables(ctx context.Context) error {
	pool, err := r.factory.PrecreateTables(ctx)
	if err != nil {
		return fmt.Errorf("resolve precreation pool: %w", err)
	}
	for _, physical := range pool {
		if err := EnsurePhysicalTable(ctx, r.backend, physical); err != nil {
			return fmt.Errorf("precreate %q: %w", physical.TableName, err)
		}
	}
	return nil
}

// ensurePhysicalTable creates physical's backend table if it doesn't exist
// yet and reports the backend's own description of it. Several virtual
// tables share one physical table, so this must be idempotent: an existing
// table is described, not recreated.
func ensurePhysicalTable(ctx context.Context, client backend.Client, physical schema.PhysicalTableDescription) (*types.TableDescription, error) {
	out, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: &physical.TableName})
	if err == nil {
		return out.Table, nil
	}
	created, err := client.CreateTable(ctx, buildCreateTableInput(physical))
	if err != nil {
		return nil, backend.Wrap("ensurePhysicalTable", err)
	}
	return created.TableDescription, nil
}

// EnsurePhysicalTable creates physical's table on client if it doesn't exist
// yet, exported so operational tooling (cmd/sharedtable precreate) can drive
// table creation without constructing a full Router.
func EnsurePhysicalTable(ctx context.Context, client backend.Client, physical schema.PhysicalTableDescription) error {
	_, err := ensurePhysicalTable(ctx, client, physical)
	return err
}

// refreshStreamARN installs the backend-assigned stream identifier on the
// mapping's physical description, the one field only the backend knows.
// This is the single post-construction mutation TableMapping permits.
func refreshStreamARN(tm *mapping.TableMapping, desc *types.TableDescription) {
	if desc == nil || desc.LatestStreamArn == nil || *desc.LatestStreamArn == "" {
		return
	}
	physical := tm.PhysicalTable().Clone()
	if physical.Stream == nil || physical.Stream.StreamARN == *desc.LatestStreamArn {
		return
	}
	physical.Stream.StreamARN = *desc.LatestStreamArn
	tm.RefreshPhysicalTable(physical)
}

func scalarType(t schema.KeyType) types.ScalarAttributeType {
	return types.ScalarAttributeType(t)
}

// buildCreateTableInput converts a physical table description into the
// dynamodb.CreateTableInput the backend's CreateTable expects, collecting
// one AttributeDefinition per distinct key attribute across the table and
// its secondary indexes.
func buildCreateTableInput(physical schema.PhysicalTableDescription) *dynamodb.CreateTableInput {
	attrTypes := map[string]types.ScalarAttributeType{
		physical.PrimaryKey.HashKey: scalarType(physical.PrimaryKey.HashKeyType),
	}
	keySchema := []types.KeySchemaElement{
		{AttributeName: strPtr(physical.PrimaryKey.HashKey), KeyType: types.KeyTypeHash},
	}
	if physical.PrimaryKey.HasRangeKey() {
		attrTypes[physical.PrimaryKey.RangeKey] = scalarType(physical.PrimaryKey.RangeKeyType)
		keySchema = append(keySchema, types.KeySchemaElement{AttributeName: strPtr(physical.PrimaryKey.RangeKey), KeyType: types.KeyTypeRange})
	}

	var gsis []types.GlobalSecondaryIndex
	var lsis []types.LocalSecondaryIndex
	for _, idx := range physical.SecondaryIndexes {
		attrTypes[idx.PrimaryKey.HashKey] = scalarType(idx.PrimaryKey.HashKeyType)
		idxKeySchema := []types.KeySchemaElement{
			{AttributeName: strPtr(idx.PrimaryKey.HashKey), KeyType: types.KeyTypeHash},
		}
		if idx.PrimaryKey.HasRangeKey() {
			attrTypes[idx.PrimaryKey.RangeKey] = scalarType(idx.PrimaryKey.RangeKeyType)
			idxKeySchema = append(idxKeySchema, types.KeySchemaElement{AttributeName: strPtr(idx.PrimaryKey.RangeKey), KeyType: types.KeyTypeRange})
		}
		projection := &types.Projection{ProjectionType: types.ProjectionType(idx.Projection.Type)}
		if projection.ProjectionType == "" {
			projection.ProjectionType = types.ProjectionTypeAll
		}
		switch idx.Kind {
		case schema.GSI:
			gsis = append(gsis, types.GlobalSecondaryIndex{
				IndexName:  strPtr(idx.Name),
				KeySchema:  idxKeySchema,
				Projection: projection,
			})
		case schema.LSI:
			lsis = append(lsis, types.LocalSecondaryIndex{
				IndexName:  strPtr(idx.Name),
				KeySchema:  idxKeySchema,
				Projection: projection,
			})
		}
	}

	attrDefs := make([]types.AttributeDefinition, 0, len(attrTypes))
	for name, t := range attrTypes {
		attrDefs = append(attrDefs, types.AttributeDefinition{AttributeName: strPtr(name), AttributeType: t})
	}

	input := &dynamodb.CreateTableInput{
		TableName:              strPtr(physical.TableName),
		AttributeDefinitions:   attrDefs,
		KeySchema:              keySchema,
		GlobalSecondaryIndexes: gsis,
		LocalSecondaryIndexes:  lsis,
		BillingMode:            types.BillingModePayPerRequest,
	}
	if physical.Stream != nil {
		input.StreamSpecification = &types.StreamSpecification{
			StreamEnabled:  boolPtr(true),
			StreamViewType: types.StreamViewType(physical.Stream.ViewType),
		}
	}
	return input
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }
