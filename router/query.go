package router

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/acksell/sharedtable/fieldcodec"
	"github.com/acksell/sharedtable/itemmap"
	"github.com/acksell/sharedtable/querymap"
)

// Query runs a key-condition query against a virtual table, rewriting the
// request to target the shared physical table/index and reverse-mapping
// every returned item back to virtual form. LastEvaluatedKey is passed
// through untouched: it is an opaque pagination token as far as a caller is
// concerned, and is only ever valid when fed back in as ExclusiveStartKey on
// the same (already physical-form) backend call, not through field mapping.
func (r *Router) Query(ctx context.Context, virtualTable string, input *dynamodb.QueryInput) (*dynamodb.QueryOutput, error) {
	tm, err := r.resolveMapping(ctx, virtualTable)
	if err != nil {
		return nil, err
	}
	fields := fieldcodec.New(r.codec, virtualTable)
	qm := querymap.New(tm, fields, r.codec)
	itemMapper := itemmap.New(tm, fields)

	rewritten, err := qm.RewriteQuery(ctx, input)
	if err != nil {
		return nil, err
	}
	out, err := r.backend.Query(ctx, rewritten)
	if err != nil {
		return nil, err
	}
	return reverseQueryOutput(out, itemMapper)
}

// Scan runs a full scan against a virtual table, scoped implicitly to the
// current tenant and virtual table by querymap, and reverse-maps results
// the same way Query does, leaving LastEvaluatedKey opaque.
func (r *Router) Scan(ctx context.Context, virtualTable string, input *dynamodb.ScanInput) (*dynamodb.ScanOutput, error) {
	tm, err := r.resolveMapping(ctx, virtualTable)
	if err != nil {
		return nil, err
	}
	fields := fieldcodec.New(r.codec, virtualTable)
	qm := querymap.New(tm, fields, r.codec)
	itemMapper := itemmap.New(tm, fields)

	rewritten, err := qm.RewriteScan(ctx, input)
	if err != nil {
		return nil, err
	}
	out, err := r.backend.Scan(ctx, rewritten)
	if err != nil {
		return nil, err
	}
	return reverseScanOutput(out, itemMapper)
}

func reverseQueryOutput(out *dynamodb.QueryOutput, mapper *itemmap.Mapper) (*dynamodb.QueryOutput, error) {
	items := make([]itemmap.Item, len(out.Items))
	for i, item := range out.Items {
		reversed, err := mapper.Reverse(item)
		if err != nil {
			return nil, fmt.Errorf("reverse query result item %d: %w", i, err)
		}
		items[i] = reversed
	}
	result := *out
	result.Items = items
	// LastEvaluatedKey is passed through byte-for-byte in physical form: the
	// router forwards it unchanged to/from the backend on the next page.
	return &result, nil
}

func reverseScanOutput(out *dynamodb.ScanOutput, mapper *itemmap.Mapper) (*dynamodb.ScanOutput, error) {
	items := make([]itemmap.Item, len(out.Items))
	for i, item := range out.Items {
		reversed, err := mapper.Reverse(item)
		if err != nil {
			return nil, fmt.Errorf("reverse scan result item %d: %w", i, err)
		}
		items[i] = reversed
	}
	result := *out
	result.Items = items
	return &result, nil
}
