package router

import (
	"context"
	"fmt"
	"log"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/acksell/sharedtable/fieldcodec"
	"github.com/acksell/sharedtable/mapping"
	"github.com/acksell/sharedtable/querymap"
	"github.com/acksell/sharedtable/schema"
	"github.com/acksell/sharedtable/tenant"
)

// CreateTable registers a new virtual table for the ctx's current tenant,
// resolving its physical template and creating the shared backend table on
// first use by any virtual table routed to it. A failure after the metadata
// write rolls the metadata back so a retry doesn't find a half-created
// table stuck in the repo.
func (r *Router) CreateTable(ctx context.Context, virtual schema.VirtualTableDescription) (schema.VirtualTableDescription, error) {
	if err := r.validateScope(ctx, virtual.TableName); err != nil {
		return schema.VirtualTableDescription{}, err
	}

	stored, err := r.metadata.CreateTable(ctx, virtual)
	if err != nil {
		return schema.VirtualTableDescription{}, err
	}

	tm, err := r.cache.GetOrCompute(ctx, stored)
	if err != nil {
		r.rollbackCreate(ctx, stored.TableName)
		return schema.VirtualTableDescription{}, err
	}

	desc, err := ensurePhysicalTable(ctx, r.backend, tm.Physical)
	if err != nil {
		r.rollbackCreate(ctx, stored.TableName)
		return schema.VirtualTableDescription{}, err
	}
	refreshStreamARN(tm, desc)

	stored.Status = "ACTIVE"
	return stored, nil
}

func (r *Router) rollbackCreate(ctx context.Context, virtualTableName string) {
	if t, err := tenant.FromContext(ctx); err == nil {
		r.cache.Drop(t, virtualTableName)
	}
	if _, err := r.metadata.DeleteTable(ctx, virtualTableName); err != nil {
		log.Printf("sharedtable: rollback CreateTable %q: %v", virtualTableName, err)
	}
}

// DescribeTable returns the tenant's view of a virtual table. Status always
// reports ACTIVE: this layer has no notion of a table stuck mid-creation,
// since CreateTable either fully succeeds or fully rolls back.
func (r *Router) DescribeTable(ctx context.Context, name string) (schema.VirtualTableDescription, error) {
	if err := r.validateScope(ctx, name); err != nil {
		return schema.VirtualTableDescription{}, err
	}
	virtual, err := r.metadata.GetTableDescription(ctx, name)
	if err != nil {
		return schema.VirtualTableDescription{}, err
	}
	virtual.Status = "ACTIVE"
	return virtual, nil
}

// DeleteTable removes a virtual table's metadata and evicts its cached
// mapping. When the Router was constructed with WithTruncateOnDeleteTable,
// every item still stored under the deleted table's prefix is also removed:
// by default this happens synchronously, so DeleteTable does not return
// until the physical table has been fully scanned and every matching item
// deleted; WithDeleteTableAsync backgrounds that work instead, so the call
// returns as soon as the table stops being addressable.
func (r *Router) DeleteTable(ctx context.Context, name string) (schema.VirtualTableDescription, error) {
	if err := r.validateScope(ctx, name); err != nil {
		return schema.VirtualTableDescription{}, err
	}

	tm, mapErr := r.resolveMapping(ctx, name)

	deleted, err := r.metadata.DeleteTable(ctx, name)
	if err != nil {
		return schema.VirtualTableDescription{}, err
	}

	if t, err := tenant.FromContext(ctx); err == nil {
		r.cache.Drop(t, name)
	}

	if r.truncateOnDeleteTable && mapErr == nil {
		if r.deleteTableAsync {
			go func() {
				if err := r.truncateTable(context.WithoutCancel(ctx), tm); err != nil {
					log.Printf("sharedtable: deleteTableAsync %q: %v", tm.Virtual.TableName, err)
				}
			}()
		} else if err := r.truncateTable(ctx, tm); err != nil {
			return schema.VirtualTableDescription{}, fmt.Errorf("truncate deleted table %q: %w", name, err)
		}
	}

	return deleted, nil
}

// truncateTable scans the physical table for every item still carrying the
// deleted virtual table's prefix and removes them page by page. Called
// synchronously from DeleteTable by default, in which case its error is
// returned to the caller; when WithDeleteTableAsync is set it instead runs
// detached from the request that triggered DeleteTable, with the caller
// responsible for logging the returned error since there is no request left
// to report it to.
func (r *Router) truncateTable(ctx context.Context, tm *mapping.TableMapping) error {
	fields := fieldcodec.New(r.codec, tm.Virtual.TableName)
	qm := querymap.New(tm, fields, r.codec)

	physicalHash := tm.Physical.PrimaryKey.HashKey
	physicalRange := tm.Physical.PrimaryKey.RangeKey

	scan := &dynamodb.ScanInput{
		ExpressionAttributeNames:  map[string]string{},
		ExpressionAttributeValues: map[string]types.AttributeValue{},
	}
	var startKey map[string]types.AttributeValue
	for {
		scan.ExclusiveStartKey = startKey
		rewritten, err := qm.RewriteScan(ctx, scan)
		if err != nil {
			return fmt.Errorf("rewrite scan: %w", err)
		}
		out, err := r.backend.Scan(ctx, rewritten)
		if err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		for _, item := range out.Items {
			key := map[string]types.AttributeValue{physicalHash: item[physicalHash]}
			if physicalRange != "" {
				key[physicalRange] = item[physicalRange]
			}
			if _, err := r.backend.DeleteItem(ctx, &dynamodb.DeleteItemInput{TableName: &tm.Physical.TableName, Key: key}); err != nil {
				return fmt.Errorf("delete item: %w", err)
			}
		}
		if out.LastEvaluatedKey == nil {
			return nil
		}
		startKey = out.LastEvaluatedKey
	}
}
