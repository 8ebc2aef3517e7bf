package backend

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// memShard is the single in-process shard a memTable's change feed is
// delivered through. Real DynamoDB Streams shard the feed by physical
// partition; this fake keeps one shard per table, which is enough to
// exercise the Stream Adapter's per-record relabeling logic without needing
// a live Kinesis-style consumer loop.
type memShard struct {
	tableName string
	mu        sync.Mutex
	nextSeq   int64
	buf       []Record
}

func newMemShard(tableName string) *memShard {
	return &memShard{tableName: tableName}
}

func (s *memShard) push(r Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSeq++
	r.SequenceNumber = strconv.FormatInt(s.nextSeq, 10)
	r.ShardID = s.tableName
	s.buf = append(s.buf, r)
}

func (t *memTable) emit(eventName string, newImage, key, oldImage map[string]types.AttributeValue) {
	if !t.streamEnabled || t.shard == nil {
		return
	}
	t.shard.push(Record{
		TableName: t.name,
		EventName: eventName,
		Keys:      key,
		OldImage:  oldImage,
		NewImage:  newImage,
	})
}

// Streams reports the one in-process shard backing tableName's change feed,
// if streaming was enabled at CreateTable time.
func (c *MemoryClient) Streams(ctx context.Context, tableName string) ([]PhysicalStream, error) {
	tbl, err := c.getTable(&tableName)
	if err != nil {
		return nil, err
	}
	if !tbl.streamEnabled {
		return nil, nil
	}
	return []PhysicalStream{&memStream{shard: tbl.shard}}, nil
}

type memStream struct {
	shard *memShard
}

func (s *memStream) ShardID() string {
	return s.shard.tableName
}

// Subscribe delivers buffered records to factory's processor until ctx is
// cancelled. It polls rather than blocking on a true push subscription,
// which is adequate for a test double and keeps it free of any background
// goroutine leaked past the caller's control.
func (s *memStream) Subscribe(ctx context.Context, factory RecordProcessorFactory) error {
	proc := factory.NewProcessor(s.ShardID())
	cursor := 0
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return proc.Shutdown(context.Background(), "context cancelled")
		case <-ticker.C:
		}
		s.shard.mu.Lock()
		pending := append([]Record(nil), s.shard.buf[cursor:]...)
		cursor = len(s.shard.buf)
		s.shard.mu.Unlock()
		if len(pending) == 0 {
			continue
		}
		if err := proc.ProcessRecords(ctx, pending); err != nil {
			return fmt.Errorf("process records: %w", err)
		}
	}
}
