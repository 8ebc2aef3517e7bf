package metadata

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acksell/sharedtable/schema"
	"github.com/acksell/sharedtable/tenant"
)

func newTestBadgerRepo(t *testing.T) *BadgerRepo {
	t.Helper()
	repo, err := NewBadgerRepo(BadgerOptions{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestBadgerRepo_CreateGetDelete(t *testing.T) {
	repo := newTestBadgerRepo(t)
	ctx := tenant.WithID(context.Background(), tenant.ID("ctx1"))
	virtual := schema.VirtualTableDescription{TableName: "orders", PrimaryKey: schema.PrimaryKey{HashKey: "id", HashKeyType: schema.KeyTypeString}}

	_, err := repo.CreateTable(ctx, virtual)
	require.NoError(t, err)

	got, err := repo.GetTableDescription(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, virtual, got)

	_, err = repo.DeleteTable(ctx, "orders")
	require.NoError(t, err)

	_, err = repo.GetTableDescription(ctx, "orders")
	assert.ErrorIs(t, err, ErrNoSuchVirtualTable)
}

func TestBadgerRepo_IsolatedPerTenant(t *testing.T) {
	repo := newTestBadgerRepo(t)
	virtual := schema.VirtualTableDescription{TableName: "orders"}
	_, err := repo.CreateTable(tenant.WithID(context.Background(), tenant.ID("ctx1")), virtual)
	require.NoError(t, err)

	_, err = repo.GetTableDescription(tenant.WithID(context.Background(), tenant.ID("ctx2")), "orders")
	assert.ErrorIs(t, err, ErrNoSuchVirtualTable)
}
