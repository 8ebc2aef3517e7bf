package stream

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acksell/sharedtable/backend"
	"github.com/acksell/sharedtable/fieldcodec"
	"github.com/acksell/sharedtable/indexmap"
	"github.com/acksell/sharedtable/itemmap"
	"github.com/acksell/sharedtable/mapping"
	"github.com/acksell/sharedtable/mappingcache"
	"github.com/acksell/sharedtable/metadata"
	"github.com/acksell/sharedtable/prefix"
	"github.com/acksell/sharedtable/schema"
	"github.com/acksell/sharedtable/tenant"
)

func str(s string) *string { return &s }
func boolPtr(b bool) *bool { return &b }

type staticFactory struct {
	physical *schema.PhysicalTableDescription
}

func (f staticFactory) PrecreateTables(ctx context.Context) ([]schema.PhysicalTableDescription, error) {
	return []schema.PhysicalTableDescription{*f.physical}, nil
}

func (f staticFactory) GetCreateTableRequest(ctx context.Context, virtual schema.VirtualTableDescription) (*schema.PhysicalTableDescription, error) {
	return f.physical, nil
}

type capturingHandler struct {
	received chan Labeled
}

func (h *capturingHandler) HandleRecord(ctx context.Context, rec Labeled) error {
	h.received <- rec
	return nil
}

func TestAdapter_RelabelsRecordToVirtualForm(t *testing.T) {
	codec := prefix.New(prefix.DefaultDelimiter)
	physical := &schema.PhysicalTableDescription{
		TableName: "shared-1",
		PrimaryKey: schema.PrimaryKey{
			HashKey: "pk", HashKeyType: schema.KeyTypeString,
			RangeKey: "sk", RangeKeyType: schema.KeyTypeString,
		},
	}
	builder := mapping.NewBuilder(staticFactory{physical: physical}, indexmap.ByType{}, codec.Delimiter())
	cache := mappingcache.New(builder, mappingcache.Options{})
	repo := metadata.NewMemoryRepo()

	ctx := tenant.WithID(context.Background(), tenant.ID("ctx1"))
	virtual := schema.VirtualTableDescription{
		TableName: "orders",
		PrimaryKey: schema.PrimaryKey{
			HashKey: "userID", HashKeyType: schema.KeyTypeString,
			RangeKey: "orderID", RangeKeyType: schema.KeyTypeString,
		},
	}
	_, err := repo.CreateTable(ctx, virtual)
	require.NoError(t, err)

	tm, err := cache.GetOrCompute(ctx, virtual)
	require.NoError(t, err)
	im := itemmap.New(tm, fieldcodec.New(codec, virtual.TableName))

	virtualItem := itemmap.Item{
		"userID":  &types.AttributeValueMemberS{Value: "u1"},
		"orderID": &types.AttributeValueMemberS{Value: "o1"},
		"total":   &types.AttributeValueMemberN{Value: "42"},
	}
	physItem, err := im.Apply(ctx, virtualItem)
	require.NoError(t, err)

	backendClient := backend.NewMemoryClient()
	_, err = backendClient.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: str("shared-1"),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: str("pk"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: str("sk"), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: str("pk"), KeyType: types.KeyTypeHash},
			{AttributeName: str("sk"), KeyType: types.KeyTypeRange},
		},
		StreamSpecification: &types.StreamSpecification{
			StreamEnabled:  boolPtr(true),
			StreamViewType: types.StreamViewTypeNewAndOldImages,
		},
	})
	require.NoError(t, err)

	handler := &capturingHandler{received: make(chan Labeled, 1)}
	adapter := NewAdapter("pk", codec, repo, cache, handler)

	streams, err := backendClient.Streams(ctx, "shared-1")
	require.NoError(t, err)
	require.Len(t, streams, 1)

	subCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = streams[0].Subscribe(subCtx, adapter)
	}()

	_, err = backendClient.PutItem(ctx, &dynamodb.PutItemInput{TableName: str("shared-1"), Item: physItem})
	require.NoError(t, err)

	select {
	case rec := <-handler.received:
		assert.Equal(t, tenant.ID("ctx1"), rec.Tenant)
		assert.Equal(t, "orders", rec.VirtualTable)
		assert.Equal(t, "INSERT", rec.EventName)
		assert.Equal(t, "u1", rec.Keys["userID"].(*types.AttributeValueMemberS).Value)
		assert.Equal(t, "o1", rec.Keys["orderID"].(*types.AttributeValueMemberS).Value)
		assert.Equal(t, "42", rec.NewImage["total"].(*types.AttributeValueMemberN).Value)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for relabeled record")
	}
}

func TestAdapter_UnmappableHashAttribute(t *testing.T) {
	codec := prefix.New(prefix.DefaultDelimiter)
	builder := mapping.NewBuilder(staticFactory{physical: &schema.PhysicalTableDescription{
		TableName:  "shared-1",
		PrimaryKey: schema.PrimaryKey{HashKey: "pk", HashKeyType: schema.KeyTypeString},
	}}, indexmap.ByType{}, codec.Delimiter())
	cache := mappingcache.New(builder, mappingcache.Options{})
	repo := metadata.NewMemoryRepo()
	handler := &capturingHandler{received: make(chan Labeled, 1)}
	adapter := NewAdapter("pk", codec, repo, cache, handler)

	proc := adapter.NewProcessor("shard-1")
	err := proc.ProcessRecords(context.Background(), []backend.Record{
		{TableName: "shared-1", EventName: "INSERT", Keys: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: "not-a-qualified-value"},
		}},
	})
	assert.Error(t, err)
	assert.Contains(t, fmt.Sprint(err), "relabel record")
}
