package backend

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func str(s string) *string { return &s }

func newTestTable(t *testing.T, c *MemoryClient) {
	t.Helper()
	_, err := c.CreateTable(context.Background(), &dynamodb.CreateTableInput{
		TableName: str("shared-1"),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: str("pk"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: str("sk"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: str("gsi1pk"), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: str("pk"), KeyType: types.KeyTypeHash},
			{AttributeName: str("sk"), KeyType: types.KeyTypeRange},
		},
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
			{
				IndexName: str("gsi1"),
				KeySchema: []types.KeySchemaElement{
					{AttributeName: str("gsi1pk"), KeyType: types.KeyTypeHash},
				},
			},
		},
		StreamSpecification: &types.StreamSpecification{
			StreamEnabled:  boolPtr(true),
			StreamViewType: types.StreamViewTypeNewAndOldImages,
		},
	})
	require.NoError(t, err)
}

func boolPtr(b bool) *bool { return &b }

func TestMemoryClient_PutAndGetItem(t *testing.T) {
	c := NewMemoryClient()
	newTestTable(t, c)
	ctx := context.Background()

	item := map[string]types.AttributeValue{
		"pk":     &types.AttributeValueMemberS{Value: "ctx1.table1.1"},
		"sk":     &types.AttributeValueMemberS{Value: "profile"},
		"gsi1pk": &types.AttributeValueMemberS{Value: "ctx1.table1.a@example.com"},
	}
	_, err := c.PutItem(ctx, &dynamodb.PutItemInput{TableName: str("shared-1"), Item: item})
	require.NoError(t, err)

	out, err := c.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: str("shared-1"),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: "ctx1.table1.1"},
			"sk": &types.AttributeValueMemberS{Value: "profile"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, item, out.Item)
}

func TestMemoryClient_GetItem_NotFound(t *testing.T) {
	c := NewMemoryClient()
	newTestTable(t, c)
	out, err := c.GetItem(context.Background(), &dynamodb.GetItemInput{
		TableName: str("shared-1"),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: "nope"},
			"sk": &types.AttributeValueMemberS{Value: "nope"},
		},
	})
	require.NoError(t, err)
	assert.Nil(t, out.Item)
}

func TestMemoryClient_DeleteItem(t *testing.T) {
	c := NewMemoryClient()
	newTestTable(t, c)
	ctx := context.Background()
	key := map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: "ctx1.table1.1"},
		"sk": &types.AttributeValueMemberS{Value: "profile"},
	}
	_, err := c.PutItem(ctx, &dynamodb.PutItemInput{TableName: str("shared-1"), Item: key})
	require.NoError(t, err)

	_, err = c.DeleteItem(ctx, &dynamodb.DeleteItemInput{TableName: str("shared-1"), Key: key})
	require.NoError(t, err)

	out, err := c.GetItem(ctx, &dynamodb.GetItemInput{TableName: str("shared-1"), Key: key})
	require.NoError(t, err)
	assert.Nil(t, out.Item)
}

func TestMemoryClient_UpdateItem_SetAndRemove(t *testing.T) {
	c := NewMemoryClient()
	newTestTable(t, c)
	ctx := context.Background()
	key := map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: "ctx1.table1.1"},
		"sk": &types.AttributeValueMemberS{Value: "profile"},
	}

	_, err := c.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        str("shared-1"),
		Key:              key,
		UpdateExpression: str("SET #n = :n REMOVE #g"),
		ExpressionAttributeNames: map[string]string{
			"#n": "name",
			"#g": "gsi1pk",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":n": &types.AttributeValueMemberS{Value: "alice"},
		},
	})
	require.NoError(t, err)

	out, err := c.GetItem(ctx, &dynamodb.GetItemInput{TableName: str("shared-1"), Key: key})
	require.NoError(t, err)
	require.NotNil(t, out.Item)
	assert.Equal(t, "alice", out.Item["name"].(*types.AttributeValueMemberS).Value)
	_, hasGsiAttr := out.Item["gsi1pk"]
	assert.False(t, hasGsiAttr)
}

func TestMemoryClient_Query_EqualityOnHashKey(t *testing.T) {
	c := NewMemoryClient()
	newTestTable(t, c)
	ctx := context.Background()

	_, err := c.PutItem(ctx, &dynamodb.PutItemInput{TableName: str("shared-1"), Item: map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: "ctx1.table1.1"},
		"sk": &types.AttributeValueMemberS{Value: "profile"},
	}})
	require.NoError(t, err)
	_, err = c.PutItem(ctx, &dynamodb.PutItemInput{TableName: str("shared-1"), Item: map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: "ctx1.table1.1"},
		"sk": &types.AttributeValueMemberS{Value: "order#1"},
	}})
	require.NoError(t, err)
	_, err = c.PutItem(ctx, &dynamodb.PutItemInput{TableName: str("shared-1"), Item: map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: "ctx1.table2.9"},
		"sk": &types.AttributeValueMemberS{Value: "profile"},
	}})
	require.NoError(t, err)

	out, err := c.Query(ctx, &dynamodb.QueryInput{
		TableName:              str("shared-1"),
		KeyConditionExpression: str("#pk = :pk"),
		ExpressionAttributeNames: map[string]string{
			"#pk": "pk",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: "ctx1.table1.1"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int32(2), out.Count)
}

func TestMemoryClient_Scan_FilterExpression(t *testing.T) {
	c := NewMemoryClient()
	newTestTable(t, c)
	ctx := context.Background()

	for _, pk := range []string{"ctx1.table1.1", "ctx1.table1.2", "ctx2.table1.9"} {
		_, err := c.PutItem(ctx, &dynamodb.PutItemInput{TableName: str("shared-1"), Item: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: pk},
			"sk": &types.AttributeValueMemberS{Value: "profile"},
		}})
		require.NoError(t, err)
	}

	out, err := c.Scan(ctx, &dynamodb.ScanInput{
		TableName:        str("shared-1"),
		FilterExpression: str("begins_with(#pk, :prefix)"),
		ExpressionAttributeNames: map[string]string{
			"#pk": "pk",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":prefix": &types.AttributeValueMemberS{Value: "ctx1.table1."},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int32(2), out.Count)
}

func TestMemoryClient_Query_UnknownIndex(t *testing.T) {
	c := NewMemoryClient()
	newTestTable(t, c)
	_, err := c.Query(context.Background(), &dynamodb.QueryInput{
		TableName:              str("shared-1"),
		IndexName:              str("nope"),
		KeyConditionExpression: str("pk = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: "x"},
		},
	})
	assert.Error(t, err)
}

func TestMemoryClient_Streams_DeliversRecords(t *testing.T) {
	c := NewMemoryClient()
	newTestTable(t, c)
	ctx := context.Background()

	streams, err := c.Streams(ctx, "shared-1")
	require.NoError(t, err)
	require.Len(t, streams, 1)

	sub, cancel := context.WithCancel(ctx)
	defer cancel()

	received := make(chan Record, 1)
	factory := &testProcessorFactory{received: received}
	go func() {
		_ = streams[0].Subscribe(sub, factory)
	}()

	_, err = c.PutItem(ctx, &dynamodb.PutItemInput{TableName: str("shared-1"), Item: map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: "ctx1.table1.1"},
		"sk": &types.AttributeValueMemberS{Value: "profile"},
	}})
	require.NoError(t, err)

	select {
	case r := <-received:
		assert.Equal(t, "INSERT", r.EventName)
		assert.Equal(t, "shared-1", r.TableName)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for record")
	}
}

type testProcessorFactory struct {
	received chan Record
}

func (f *testProcessorFactory) NewProcessor(shardID string) RecordProcessor {
	return &testProcessor{received: f.received}
}

type testProcessor struct {
	received chan Record
}

func (p *testProcessor) ProcessRecords(ctx context.Context, records []Record) error {
	for _, r := range records {
		p.received <- r
	}
	return nil
}

func (p *testProcessor) Shutdown(ctx context.Context, reason string) error { return nil }
