package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/acksell/sharedtable/schema"
	"github.com/acksell/sharedtable/tenant"
)

// BadgerRepo is a Repo backed by an embedded BadgerDB instance, so the whole
// shared-table stack can run with no AWS account at all. Each (tenant,
// virtual table) pair stores one JSON-encoded description under a single
// composite key.
type BadgerRepo struct {
	db *badger.DB
}

var _ Repo = (*BadgerRepo)(nil)

// BadgerOptions configures a BadgerRepo.
type BadgerOptions struct {
	// Path to the database directory. Empty means in-memory mode.
	Path string
	// InMemory forces in-memory mode even if Path is set.
	InMemory bool
	// Logger for BadgerDB. If nil, logging is disabled.
	Logger badger.Logger
}

// NewBadgerRepo opens (or creates) a BadgerDB-backed Repo.
func NewBadgerRepo(opts BadgerOptions) (*BadgerRepo, error) {
	badgerOpts := badger.DefaultOptions(opts.Path)
	if opts.Path == "" || opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true)
	}
	if opts.Logger != nil {
		badgerOpts = badgerOpts.WithLogger(opts.Logger)
	} else {
		badgerOpts = badgerOpts.WithLogger(nil)
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}
	return &BadgerRepo{db: db}, nil
}

// Close releases the underlying BadgerDB handle.
func (r *BadgerRepo) Close() error {
	return r.db.Close()
}

func badgerMetadataKey(t tenant.ID, virtualTable string) []byte {
	return []byte(fmt.Sprintf("%s#%s", t, virtualTable))
}

func (r *BadgerRepo) CreateTable(ctx context.Context, virtual schema.VirtualTableDescription) (schema.VirtualTableDescription, error) {
	t, err := tenant.FromContext(ctx)
	if err != nil {
		return schema.VirtualTableDescription{}, err
	}
	value, err := json.Marshal(virtual)
	if err != nil {
		return schema.VirtualTableDescription{}, fmt.Errorf("marshal virtual table description: %w", err)
	}
	key := badgerMetadataKey(t, virtual.TableName)
	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
	if err != nil {
		return schema.VirtualTableDescription{}, fmt.Errorf("metadata.BadgerRepo: put %q: %w", virtual.TableName, err)
	}
	return virtual, nil
}

func (r *BadgerRepo) GetTableDescription(ctx context.Context, name string) (schema.VirtualTableDescription, error) {
	t, err := tenant.FromContext(ctx)
	if err != nil {
		return schema.VirtualTableDescription{}, err
	}
	key := badgerMetadataKey(t, name)

	var desc schema.VirtualTableDescription
	err = r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return noSuchTable(name)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &desc)
		})
	})
	if err != nil {
		if errors.Is(err, ErrNoSuchVirtualTable) {
			return schema.VirtualTableDescription{}, err
		}
		return schema.VirtualTableDescription{}, fmt.Errorf("metadata.BadgerRepo: get %q: %w", name, err)
	}
	return desc, nil
}

func (r *BadgerRepo) DeleteTable(ctx context.Context, name string) (schema.VirtualTableDescription, error) {
	desc, err := r.GetTableDescription(ctx, name)
	if err != nil {
		return schema.VirtualTableDescription{}, err
	}
	t, err := tenant.FromContext(ctx)
	if err != nil {
		return schema.VirtualTableDescription{}, err
	}
	key := badgerMetadataKey(t, name)
	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
	if err != nil {
		return schema.VirtualTableDescription{}, fmt.Errorf("metadata.BadgerRepo: delete %q: %w", name, err)
	}
	return desc, nil
}
