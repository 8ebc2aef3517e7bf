// Package metadata defines Repo, the durable store of virtual-table
// descriptions consulted by the router, plus an in-memory implementation
// for tests, a DynamoDB-table-backed implementation for production use,
// and an embedded BadgerDB implementation for fully local deployments.
package metadata

import (
	"context"
	"errors"
	"fmt"

	"github.com/acksell/sharedtable/schema"
)

// ErrNoSuchVirtualTable is returned by GetTableDescription and DeleteTable
// when no virtual table with the given name has been created.
var ErrNoSuchVirtualTable = errors.New("sharedtable/metadata: no such virtual table")

// Repo is the durable store of virtual-table descriptions.
type Repo interface {
	CreateTable(ctx context.Context, virtual schema.VirtualTableDescription) (schema.VirtualTableDescription, error)
	GetTableDescription(ctx context.Context, name string) (schema.VirtualTableDescription, error)
	DeleteTable(ctx context.Context, name string) (schema.VirtualTableDescription, error)
}

func noSuchTable(name string) error {
	return fmt.Errorf("%w: %q", ErrNoSuchVirtualTable, name)
}
