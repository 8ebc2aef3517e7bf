package metadata

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acksell/sharedtable/schema"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "tables.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFileCreateTableRequestFactory(t *testing.T) {
	path := writeConfig(t, `
tables:
  - name: shared-1
    hashKey: pk
    rangeKey: sk
    stream: true
    secondaryIndexes:
      - name: gsi1
        kind: GSI
        hashKey: gsi1pk
  - name: shared-2
    hashKey: pk
    rangeKey: sk
`)
	f, err := LoadFileCreateTableRequestFactory(path)
	require.NoError(t, err)

	tables, err := f.PrecreateTables(context.Background())
	require.NoError(t, err)
	require.Len(t, tables, 2)
	assert.Equal(t, "shared-1", tables[0].TableName)
	assert.Equal(t, schema.KeyTypeString, tables[0].PrimaryKey.HashKeyType)
	require.Len(t, tables[0].SecondaryIndexes, 1)
	assert.Equal(t, schema.GSI, tables[0].SecondaryIndexes[0].Kind)
	require.NotNil(t, tables[0].Stream)
}

func TestFileCreateTableRequestFactory_GetCreateTableRequest_Deterministic(t *testing.T) {
	path := writeConfig(t, `
tables:
  - name: shared-1
    hashKey: pk
  - name: shared-2
    hashKey: pk
`)
	f, err := LoadFileCreateTableRequestFactory(path)
	require.NoError(t, err)

	virtual := schema.VirtualTableDescription{TableName: "orders"}
	first, err := f.GetCreateTableRequest(context.Background(), virtual)
	require.NoError(t, err)
	second, err := f.GetCreateTableRequest(context.Background(), virtual)
	require.NoError(t, err)
	assert.Equal(t, first.TableName, second.TableName)
}

func TestFileCreateTableRequestFactory_NoTablesConfigured(t *testing.T) {
	path := writeConfig(t, "tables: []\n")
	f, err := LoadFileCreateTableRequestFactory(path)
	require.NoError(t, err)
	_, err = f.GetCreateTableRequest(context.Background(), schema.VirtualTableDescription{TableName: "orders"})
	assert.Error(t, err)
}
