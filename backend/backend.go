// Package backend defines Client, the subset of the wide-column database
// API the router depends on: item CRUD, query/scan, table lifecycle, and
// streaming change capture.
package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// ErrBackend wraps every failure Client implementations surface from the
// underlying database.
var ErrBackend = errors.New("sharedtable/backend: backend error")

// Wrap tags err as a BackendError while preserving it for errors.Is/As.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrBackend, op, err)
}

// Client is the backend capability the router depends on. It is satisfied
// both by a thin wrapper around *dynamodb.Client and by the in-memory fake
// in this package, so router tests never touch a real account.
type Client interface {
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput) (*dynamodb.CreateTableOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput) (*dynamodb.DescribeTableOutput, error)
	DeleteTable(ctx context.Context, params *dynamodb.DeleteTableInput) (*dynamodb.DeleteTableOutput, error)

	GetItem(ctx context.Context, params *dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput) (*dynamodb.DeleteItemOutput, error)

	Query(ctx context.Context, params *dynamodb.QueryInput) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput) (*dynamodb.ScanOutput, error)

	// Streams enumerates the change-capture feeds available for tableName,
	// one per shard/partition the backend happens to expose them as.
	Streams(ctx context.Context, tableName string) ([]PhysicalStream, error)
}

// Record is one change-capture record as delivered by the backend, in
// physical (pre-Stream-Adapter) form.
type Record struct {
	TableName      string
	ShardID        string
	SequenceNumber string
	EventName      string // INSERT, MODIFY, REMOVE
	Keys           map[string]types.AttributeValue
	OldImage       map[string]types.AttributeValue
	NewImage       map[string]types.AttributeValue
}

// RecordProcessor consumes change records for one shard.
type RecordProcessor interface {
	ProcessRecords(ctx context.Context, records []Record) error
	// Shutdown is called when the shard feed ends or the caller cancels.
	Shutdown(ctx context.Context, reason string) error
}

// RecordProcessorFactory creates one RecordProcessor per shard, the usual
// shape for a Kinesis/DynamoDB-Streams style consumer.
type RecordProcessorFactory interface {
	NewProcessor(shardID string) RecordProcessor
}

// PhysicalStream is one subscribable feed of change records for a physical
// table's shard.
type PhysicalStream interface {
	ShardID() string
	// Subscribe blocks, delivering records to a processor obtained from
	// factory, until ctx is cancelled or the shard feed ends.
	Subscribe(ctx context.Context, factory RecordProcessorFactory) error
}
