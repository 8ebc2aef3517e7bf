package router

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/acksell/sharedtable/fieldcodec"
	"github.com/acksell/sharedtable/itemmap"
	"github.com/acksell/sharedtable/mapping"
)

// itemMapperFor builds the item mapper for virtualTable, resolving (or
// reusing) its TableMapping first.
func (r *Router) itemMapperFor(ctx context.Context, virtualTable string) (*mapping.TableMapping, *itemmap.Mapper, error) {
	tm, err := r.resolveMapping(ctx, virtualTable)
	if err != nil {
		return nil, nil, err
	}
	fields := fieldcodec.New(r.codec, virtualTable)
	return tm, itemmap.New(tm, fields), nil
}

// GetItem fetches one item from a virtual table, field-mapping the key into
// physical form and reverse-mapping the returned item back.
func (r *Router) GetItem(ctx context.Context, virtualTable string, key itemmap.Item) (itemmap.Item, error) {
	tm, mapper, err := r.itemMapperFor(ctx, virtualTable)
	if err != nil {
		return nil, err
	}
	physicalKey, err := mapper.Apply(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("map key for GetItem on %q: %w", virtualTable, err)
	}
	out, err := r.backend.GetItem(ctx, &dynamodb.GetItemInput{TableName: &tm.Physical.TableName, Key: physicalKey})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, nil
	}
	return mapper.Reverse(out.Item)
}

// PutItem writes item (virtual form) to the backing physical table.
func (r *Router) PutItem(ctx context.Context, virtualTable string, item itemmap.Item) error {
	tm, mapper, err := r.itemMapperFor(ctx, virtualTable)
	if err != nil {
		return err
	}
	physical, err := mapper.Apply(ctx, item)
	if err != nil {
		return fmt.Errorf("map item for PutItem on %q: %w", virtualTable, err)
	}
	_, err = r.backend.PutItem(ctx, &dynamodb.PutItemInput{TableName: &tm.Physical.TableName, Item: physical})
	return err
}

// DeleteItem removes one item from a virtual table by key.
func (r *Router) DeleteItem(ctx context.Context, virtualTable string, key itemmap.Item) error {
	tm, mapper, err := r.itemMapperFor(ctx, virtualTable)
	if err != nil {
		return err
	}
	physicalKey, err := mapper.Apply(ctx, key)
	if err != nil {
		return fmt.Errorf("map key for DeleteItem on %q: %w", virtualTable, err)
	}
	_, err = r.backend.DeleteItem(ctx, &dynamodb.DeleteItemInput{TableName: &tm.Physical.TableName, Key: physicalKey})
	return err
}

// UpdateItem applies an UpdateExpression to one item, field-mapping only the
// key. The expression itself is passed through as the caller wrote it, so
// attribute names and values it references must be virtual field names that
// are not context-aware (context-aware fields live only in the key).
func (r *Router) UpdateItem(ctx context.Context, virtualTable string, key itemmap.Item, update *dynamodb.UpdateItemInput) error {
	tm, mapper, err := r.itemMapperFor(ctx, virtualTable)
	if err != nil {
		return err
	}
	physicalKey, err := mapper.Apply(ctx, key)
	if err != nil {
		return fmt.Errorf("map key for UpdateItem on %q: %w", virtualTable, err)
	}
	in := *update
	in.TableName = &tm.Physical.TableName
	in.Key = physicalKey
	_, err = r.backend.UpdateItem(ctx, &in)
	return err
}
