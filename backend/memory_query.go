package backend

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/btree"
)

func (t *memTable) indexStore(indexName *string) (map[string]*btree.BTreeG[*memDoc], error) {
	if indexName == nil {
		return t.store, nil
	}
	store, ok := t.secondary[*indexName]
	if !ok {
		return nil, fmt.Errorf("index not found: %s", *indexName)
	}
	return store, nil
}

// Query evaluates KeyConditionExpression (and, if present, FilterExpression)
// against every item in the chosen table or index. This in-memory backend
// never needs the partition lookup a real table would use for efficiency;
// correctness only requires evaluating the same boolean expression querymap
// produces, which is already a conjunction of equality/range clauses.
func (c *MemoryClient) Query(ctx context.Context, params *dynamodb.QueryInput) (*dynamodb.QueryOutput, error) {
	tbl, err := c.getTable(params.TableName)
	if err != nil {
		return nil, err
	}
	if params.KeyConditionExpression == nil {
		return nil, fmt.Errorf("key condition expression is required")
	}
	tbl.mu.Lock()
	store, err := tbl.indexStore(params.IndexName)
	if err != nil {
		tbl.mu.Unlock()
		return nil, err
	}
	docs := allItems(store)
	tbl.mu.Unlock()

	names := params.ExpressionAttributeNames
	values := params.ExpressionAttributeValues

	var matched []map[string]types.AttributeValue
	for _, d := range docs {
		ok, err := evalExpression(*params.KeyConditionExpression, names, values, d.item)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if params.FilterExpression != nil {
			fok, err := evalExpression(*params.FilterExpression, names, values, d.item)
			if err != nil {
				return nil, err
			}
			if !fok {
				continue
			}
		}
		matched = append(matched, d.item)
	}
	if params.ScanIndexForward != nil && !*params.ScanIndexForward {
		reverseItems(matched)
	}
	return paginate(matched, params.ExclusiveStartKey, params.Limit, tbl)
}

// Scan evaluates FilterExpression (if any) against every item in the chosen
// table or index and applies the prefix-scoping predicate baked in by
// querymap, exactly as Query does for key conditions.
func (c *MemoryClient) Scan(ctx context.Context, params *dynamodb.ScanInput) (*dynamodb.ScanOutput, error) {
	tbl, err := c.getTable(params.TableName)
	if err != nil {
		return nil, err
	}
	tbl.mu.Lock()
	store, err := tbl.indexStore(params.IndexName)
	if err != nil {
		tbl.mu.Unlock()
		return nil, err
	}
	docs := allItems(store)
	tbl.mu.Unlock()

	names := params.ExpressionAttributeNames
	values := params.ExpressionAttributeValues

	var matched []map[string]types.AttributeValue
	for _, d := range docs {
		if params.FilterExpression != nil {
			ok, err := evalExpression(*params.FilterExpression, names, values, d.item)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		matched = append(matched, d.item)
	}
	out, err := paginate(matched, params.ExclusiveStartKey, params.Limit, tbl)
	if err != nil {
		return nil, err
	}
	return &dynamodb.ScanOutput{
		Items:            out.Items,
		Count:            out.Count,
		ScannedCount:     out.Count,
		LastEvaluatedKey: out.LastEvaluatedKey,
	}, nil
}

func reverseItems(items []map[string]types.AttributeValue) {
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
}

// paginate applies ExclusiveStartKey and Limit over an already-ordered,
// already-filtered result set, matching the pass-through pagination-token
// contract the router relies on.
func paginate(items []map[string]types.AttributeValue, startKey map[string]types.AttributeValue, limit *int32, tbl *memTable) (*dynamodb.QueryOutput, error) {
	start := 0
	if len(startKey) > 0 {
		found := false
		for i, item := range items {
			if sameKey(item, startKey, tbl) {
				start = i + 1
				found = true
				break
			}
		}
		if !found {
			start = len(items)
		}
	}
	items = items[start:]
	var lastKey map[string]types.AttributeValue
	if limit != nil && int(*limit) < len(items) {
		items = items[:*limit]
		lastKey = keyOf(tbl, items[len(items)-1])
	}
	count := int32(len(items))
	return &dynamodb.QueryOutput{
		Items:            items,
		Count:            count,
		ScannedCount:     count,
		LastEvaluatedKey: lastKey,
	}, nil
}

func sameKey(item, key map[string]types.AttributeValue, tbl *memTable) bool {
	hv, err := attrValueString(item[tbl.hash.name])
	if err != nil {
		return false
	}
	kv, err := attrValueString(key[tbl.hash.name])
	if err != nil || hv != kv {
		return false
	}
	if tbl.rng == nil {
		return true
	}
	rv, err := attrValueString(item[tbl.rng.name])
	if err != nil {
		return false
	}
	krv, err := attrValueString(key[tbl.rng.name])
	if err != nil {
		return false
	}
	return rv == krv
}
