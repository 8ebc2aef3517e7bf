package metadata

import (
	"context"
	"fmt"
	"hash/fnv"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/acksell/sharedtable/schema"
)

// FileCreateTableRequestFactory is a mapping.CreateTableRequestFactory that
// reads its pool of shared physical table templates from a YAML file. It
// spreads virtual tables across the configured pool by a stable hash of the
// virtual table name, so precreating N physical tables lets the router
// shard virtual tables across them deterministically.
type FileCreateTableRequestFactory struct {
	tables []schema.PhysicalTableDescription
}

type fileConfig struct {
	Tables []fileTableSpec `yaml:"tables"`
}

type fileTableSpec struct {
	Name             string          `yaml:"name"`
	HashKey          string          `yaml:"hashKey"`
	HashKeyType      string          `yaml:"hashKeyType"`
	RangeKey         string          `yaml:"rangeKey"`
	RangeKeyType     string          `yaml:"rangeKeyType"`
	SecondaryIndexes []fileIndexSpec `yaml:"secondaryIndexes"`
	Stream           bool            `yaml:"stream"`
}

type fileIndexSpec struct {
	Name         string `yaml:"name"`
	Kind         string `yaml:"kind"`
	HashKey      string `yaml:"hashKey"`
	HashKeyType  string `yaml:"hashKeyType"`
	RangeKey     string `yaml:"rangeKey"`
	RangeKeyType string `yaml:"rangeKeyType"`
}

func keyTypeOrDefault(t string) schema.KeyType {
	if t == "" {
		return schema.KeyTypeString
	}
	return schema.KeyType(t)
}

func (s fileTableSpec) toPhysical() schema.PhysicalTableDescription {
	pk := schema.PrimaryKey{
		HashKey:      s.HashKey,
		HashKeyType:  keyTypeOrDefault(s.HashKeyType),
		RangeKey:     s.RangeKey,
		RangeKeyType: keyTypeOrDefault(s.RangeKeyType),
	}
	desc := schema.PhysicalTableDescription{TableName: s.Name, PrimaryKey: pk}
	for _, idx := range s.SecondaryIndexes {
		desc.SecondaryIndexes = append(desc.SecondaryIndexes, schema.SecondaryIndex{
			Name: idx.Name,
			Kind: schema.IndexKind(idx.Kind),
			PrimaryKey: schema.PrimaryKey{
				HashKey:      idx.HashKey,
				HashKeyType:  keyTypeOrDefault(idx.HashKeyType),
				RangeKey:     idx.RangeKey,
				RangeKeyType: keyTypeOrDefault(idx.RangeKeyType),
			},
		})
	}
	if s.Stream {
		desc.Stream = &schema.StreamSpec{ViewType: "NEW_AND_OLD_IMAGES"}
	}
	return desc
}

// LoadFileCreateTableRequestFactory reads and parses path.
func LoadFileCreateTableRequestFactory(path string) (*FileCreateTableRequestFactory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read physical table config %s: %w", path, err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse physical table config %s: %w", path, err)
	}
	f := &FileCreateTableRequestFactory{}
	for _, t := range cfg.Tables {
		f.tables = append(f.tables, t.toPhysical())
	}
	return f, nil
}

func (f *FileCreateTableRequestFactory) PrecreateTables(ctx context.Context) ([]schema.PhysicalTableDescription, error) {
	return append([]schema.PhysicalTableDescription(nil), f.tables...), nil
}

func (f *FileCreateTableRequestFactory) GetCreateTableRequest(ctx context.Context, virtual schema.VirtualTableDescription) (*schema.PhysicalTableDescription, error) {
	if len(f.tables) == 0 {
		return nil, fmt.Errorf("no physical tables configured")
	}
	idx := stableIndex(virtual.TableName, len(f.tables))
	desc := f.tables[idx]
	return &desc, nil
}

func stableIndex(name string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	return int(h.Sum32()) % n
}
