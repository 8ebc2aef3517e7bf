package backend

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/btree"
)

// MemoryClient is an in-memory Client: a btree-backed fake that keeps one
// shared physical table space per process, which is exactly the topology
// the router multiplexes virtual tables onto, so it doubles as the
// reference physical backend for router and stream tests.
type MemoryClient struct {
	mu     sync.Mutex
	tables map[string]*memTable
}

var _ Client = (*MemoryClient)(nil)

// NewMemoryClient constructs an empty MemoryClient.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{tables: make(map[string]*memTable)}
}

type keyDef struct {
	name    string
	keyType types.ScalarAttributeType
}

type indexDef struct {
	name  string
	hash  keyDef
	rng   *keyDef
	isLSI bool
}

type memTable struct {
	mu   sync.Mutex
	name string
	hash keyDef
	rng  *keyDef
	gsis []indexDef
	lsis []indexDef

	store map[string]*btree.BTreeG[*memDoc] // keyed by hash value

	// secondary[indexName][hashValue] holds the btree for that index.
	secondary map[string]map[string]*btree.BTreeG[*memDoc]

	streamEnabled  bool
	streamViewType types.StreamViewType
	shard          *memShard
}

type memDoc struct {
	hashValue string
	rngValue  string
	rngType   types.ScalarAttributeType
	item      map[string]types.AttributeValue
}

func docLess(a, b *memDoc) bool {
	if a.rngType == types.ScalarAttributeTypeN {
		af, _ := strconv.ParseFloat(a.rngValue, 64)
		bf, _ := strconv.ParseFloat(b.rngValue, 64)
		return af < bf
	}
	return a.rngValue < b.rngValue
}

func newMemTable(name string, hash keyDef, rng *keyDef) *memTable {
	return &memTable{
		name:      name,
		hash:      hash,
		rng:       rng,
		store:     make(map[string]*btree.BTreeG[*memDoc]),
		secondary: make(map[string]map[string]*btree.BTreeG[*memDoc]),
	}
}

func (t *memTable) bucket(store map[string]*btree.BTreeG[*memDoc], hashValue string) *btree.BTreeG[*memDoc] {
	b, ok := store[hashValue]
	if !ok {
		b = btree.NewG(2, docLess)
		store[hashValue] = b
	}
	return b
}

func attrValueString(v types.AttributeValue) (string, error) {
	switch tv := v.(type) {
	case *types.AttributeValueMemberS:
		return tv.Value, nil
	case *types.AttributeValueMemberN:
		return tv.Value, nil
	case *types.AttributeValueMemberB:
		return string(tv.Value), nil
	default:
		return "", fmt.Errorf("unsupported key attribute value type %T", v)
	}
}

func (t *memTable) extractDoc(item map[string]types.AttributeValue) (*memDoc, error) {
	hv, ok := item[t.hash.name]
	if !ok {
		return nil, fmt.Errorf("item missing hash key %q", t.hash.name)
	}
	hs, err := attrValueString(hv)
	if err != nil {
		return nil, err
	}
	d := &memDoc{hashValue: hs, item: item}
	if t.rng != nil {
		rv, ok := item[t.rng.name]
		if !ok {
			return nil, fmt.Errorf("item missing range key %q", t.rng.name)
		}
		rs, err := attrValueString(rv)
		if err != nil {
			return nil, err
		}
		d.rngValue = rs
		d.rngType = t.rng.keyType
	}
	return d, nil
}

func (t *memTable) extractDocFromKey(key map[string]types.AttributeValue) (*memDoc, error) {
	return t.extractDoc(key)
}

func tableFromCreateInput(params *dynamodb.CreateTableInput) (*memTable, error) {
	attrTypes := make(map[string]types.ScalarAttributeType)
	for _, ad := range params.AttributeDefinitions {
		attrTypes[*ad.AttributeName] = ad.AttributeType
	}
	hash, rng, err := keysFromSchema(params.KeySchema, attrTypes)
	if err != nil {
		return nil, err
	}
	tbl := newMemTable(*params.TableName, hash, rng)
	for _, gsi := range params.GlobalSecondaryIndexes {
		h, r, err := keysFromSchema(gsi.KeySchema, attrTypes)
		if err != nil {
			return nil, fmt.Errorf("gsi %s: %w", *gsi.IndexName, err)
		}
		tbl.gsis = append(tbl.gsis, indexDef{name: *gsi.IndexName, hash: h, rng: r})
		tbl.secondary[*gsi.IndexName] = make(map[string]*btree.BTreeG[*memDoc])
	}
	for _, lsi := range params.LocalSecondaryIndexes {
		h, r, err := keysFromSchema(lsi.KeySchema, attrTypes)
		if err != nil {
			return nil, fmt.Errorf("lsi %s: %w", *lsi.IndexName, err)
		}
		tbl.lsis = append(tbl.lsis, indexDef{name: *lsi.IndexName, hash: h, rng: r, isLSI: true})
		tbl.secondary[*lsi.IndexName] = make(map[string]*btree.BTreeG[*memDoc])
	}
	if params.StreamSpecification != nil && params.StreamSpecification.StreamEnabled != nil && *params.StreamSpecification.StreamEnabled {
		tbl.streamEnabled = true
		tbl.streamViewType = params.StreamSpecification.StreamViewType
		tbl.shard = newMemShard(tbl.name)
	}
	return tbl, nil
}

func keysFromSchema(schema []types.KeySchemaElement, attrTypes map[string]types.ScalarAttributeType) (keyDef, *keyDef, error) {
	var hash keyDef
	var rng *keyDef
	for _, k := range schema {
		kd := keyDef{name: *k.AttributeName, keyType: attrTypes[*k.AttributeName]}
		switch k.KeyType {
		case types.KeyTypeHash:
			hash = kd
		case types.KeyTypeRange:
			r := kd
			rng = &r
		}
	}
	if hash.name == "" {
		return keyDef{}, nil, fmt.Errorf("key schema missing hash key")
	}
	return hash, rng, nil
}

func (c *MemoryClient) CreateTable(ctx context.Context, params *dynamodb.CreateTableInput) (*dynamodb.CreateTableOutput, error) {
	if params == nil || params.TableName == nil {
		return nil, fmt.Errorf("table name is required")
	}
	tbl, err := tableFromCreateInput(params)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.tables[tbl.name]; exists {
		return nil, fmt.Errorf("table %q already exists", tbl.name)
	}
	c.tables[tbl.name] = tbl
	return &dynamodb.CreateTableOutput{TableDescription: tbl.describe()}, nil
}

func (c *MemoryClient) getTable(name *string) (*memTable, error) {
	if name == nil {
		return nil, fmt.Errorf("table name is required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	tbl, ok := c.tables[*name]
	if !ok {
		return nil, fmt.Errorf("table not found: %s", *name)
	}
	return tbl, nil
}

func (c *MemoryClient) DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput) (*dynamodb.DescribeTableOutput, error) {
	tbl, err := c.getTable(params.TableName)
	if err != nil {
		return nil, err
	}
	return &dynamodb.DescribeTableOutput{Table: tbl.describe()}, nil
}

func (c *MemoryClient) DeleteTable(ctx context.Context, params *dynamodb.DeleteTableInput) (*dynamodb.DeleteTableOutput, error) {
	tbl, err := c.getTable(params.TableName)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	delete(c.tables, tbl.name)
	c.mu.Unlock()
	return &dynamodb.DeleteTableOutput{TableDescription: tbl.describe()}, nil
}

func (t *memTable) describe() *types.TableDescription {
	keySchema := []types.KeySchemaElement{{AttributeName: &t.hash.name, KeyType: types.KeyTypeHash}}
	attrDefs := []types.AttributeDefinition{{AttributeName: &t.hash.name, AttributeType: t.hash.keyType}}
	if t.rng != nil {
		keySchema = append(keySchema, types.KeySchemaElement{AttributeName: &t.rng.name, KeyType: types.KeyTypeRange})
		attrDefs = append(attrDefs, types.AttributeDefinition{AttributeName: &t.rng.name, AttributeType: t.rng.keyType})
	}
	desc := &types.TableDescription{
		TableName:            &t.name,
		KeySchema:            keySchema,
		AttributeDefinitions: attrDefs,
		TableStatus:          types.TableStatusActive,
	}
	if t.streamEnabled {
		arn := "arn:mem:stream/" + t.name
		desc.LatestStreamArn = &arn
	}
	return desc
}

func (c *MemoryClient) GetItem(ctx context.Context, params *dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error) {
	tbl, err := c.getTable(params.TableName)
	if err != nil {
		return nil, err
	}
	key, err := tbl.extractDocFromKey(params.Key)
	if err != nil {
		return nil, err
	}
	tbl.mu.Lock()
	defer tbl.mu.Unlock()
	b, ok := tbl.store[key.hashValue]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	found, ok := b.Get(key)
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: found.item}, nil
}

func (c *MemoryClient) PutItem(ctx context.Context, params *dynamodb.PutItemInput) (*dynamodb.PutItemOutput, error) {
	tbl, err := c.getTable(params.TableName)
	if err != nil {
		return nil, err
	}
	doc, err := tbl.extractDoc(params.Item)
	if err != nil {
		return nil, err
	}
	tbl.mu.Lock()
	defer tbl.mu.Unlock()
	old, hadOld := tbl.bucket(tbl.store, doc.hashValue).ReplaceOrInsert(doc)
	tbl.reindexSecondary(doc)
	eventName := "INSERT"
	if hadOld {
		eventName = "MODIFY"
	}
	tbl.emit(eventName, params.Item, keyOf(tbl, params.Item), oldImage(hadOld, old))
	out := &dynamodb.PutItemOutput{}
	if params.ReturnValues == types.ReturnValueAllOld && hadOld {
		out.Attributes = old.item
	}
	return out, nil
}

func (c *MemoryClient) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput) (*dynamodb.DeleteItemOutput, error) {
	tbl, err := c.getTable(params.TableName)
	if err != nil {
		return nil, err
	}
	key, err := tbl.extractDocFromKey(params.Key)
	if err != nil {
		return nil, err
	}
	tbl.mu.Lock()
	defer tbl.mu.Unlock()
	b, ok := tbl.store[key.hashValue]
	if !ok {
		return &dynamodb.DeleteItemOutput{}, nil
	}
	old, existed := b.Delete(key)
	out := &dynamodb.DeleteItemOutput{}
	if !existed {
		return out, nil
	}
	tbl.removeFromSecondary(old)
	tbl.emit("REMOVE", nil, params.Key, old.item)
	if params.ReturnValues == types.ReturnValueAllOld {
		out.Attributes = old.item
	}
	return out, nil
}

// UpdateItem supports a practical subset of UpdateExpression: SET and REMOVE
// clauses with #name/:value placeholders. ADD and list/set operators are not
// implemented, matching the scope the router itself needs (the router passes
// update expressions through without field mapping).
func (c *MemoryClient) UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error) {
	tbl, err := c.getTable(params.TableName)
	if err != nil {
		return nil, err
	}
	key, err := tbl.extractDocFromKey(params.Key)
	if err != nil {
		return nil, err
	}
	tbl.mu.Lock()
	defer tbl.mu.Unlock()
	b := tbl.bucket(tbl.store, key.hashValue)
	existing, hadOld := b.Get(key)
	item := map[string]types.AttributeValue{}
	if hadOld {
		for k, v := range existing.item {
			item[k] = v
		}
	} else {
		for k, v := range params.Key {
			item[k] = v
		}
	}
	if params.UpdateExpression != nil {
		if err := applyUpdateExpression(*params.UpdateExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues, item); err != nil {
			return nil, err
		}
	}
	newDoc, err := tbl.extractDoc(item)
	if err != nil {
		return nil, err
	}
	b.ReplaceOrInsert(newDoc)
	tbl.reindexSecondary(newDoc)
	eventName := "INSERT"
	var old map[string]types.AttributeValue
	if hadOld {
		eventName = "MODIFY"
		old = existing.item
	}
	tbl.emit(eventName, item, keyOf(tbl, item), old)
	out := &dynamodb.UpdateItemOutput{}
	switch params.ReturnValues {
	case types.ReturnValueAllNew, types.ReturnValueUpdatedNew:
		out.Attributes = item
	case types.ReturnValueAllOld, types.ReturnValueUpdatedOld:
		out.Attributes = old
	}
	return out, nil
}

func applyUpdateExpression(expr string, names map[string]string, values map[string]types.AttributeValue, item map[string]types.AttributeValue) error {
	upper := strings.ToUpper(expr)
	setIdx := strings.Index(upper, "SET ")
	removeIdx := strings.Index(upper, "REMOVE ")
	var setClause, removeClause string
	switch {
	case setIdx >= 0 && removeIdx > setIdx:
		setClause = strings.TrimSpace(expr[setIdx+4 : removeIdx])
		removeClause = strings.TrimSpace(expr[removeIdx+7:])
	case removeIdx >= 0 && setIdx > removeIdx:
		removeClause = strings.TrimSpace(expr[removeIdx+7 : setIdx])
		setClause = strings.TrimSpace(expr[setIdx+4:])
	case setIdx >= 0:
		setClause = strings.TrimSpace(expr[setIdx+4:])
	case removeIdx >= 0:
		removeClause = strings.TrimSpace(expr[removeIdx+7:])
	default:
		return fmt.Errorf("unsupported update expression %q", expr)
	}
	for _, assign := range splitTopLevelComma(setClause) {
		if assign == "" {
			continue
		}
		parts := strings.SplitN(assign, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("malformed SET clause %q", assign)
		}
		name := resolveName(strings.TrimSpace(parts[0]), names)
		val, err := resolveValue(strings.TrimSpace(parts[1]), values)
		if err != nil {
			return err
		}
		item[name] = val
	}
	for _, name := range splitTopLevelComma(removeClause) {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		delete(item, resolveName(name, names))
	}
	return nil
}

func splitTopLevelComma(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func (t *memTable) reindexSecondary(doc *memDoc) {
	for _, idx := range append(append([]indexDef{}, t.gsis...), t.lsis...) {
		hv, ok := doc.item[idx.hash.name]
		if !ok {
			continue
		}
		hs, err := attrValueString(hv)
		if err != nil {
			continue
		}
		sDoc := &memDoc{hashValue: hs, item: doc.item}
		if idx.rng != nil {
			if rv, ok := doc.item[idx.rng.name]; ok {
				rs, err := attrValueString(rv)
				if err == nil {
					sDoc.rngValue = rs
					sDoc.rngType = idx.rng.keyType
				}
			}
		}
		store, ok := t.secondary[idx.name]
		if !ok {
			store = make(map[string]*btree.BTreeG[*memDoc])
			t.secondary[idx.name] = store
		}
		t.bucket(store, hs).ReplaceOrInsert(sDoc)
	}
}

func (t *memTable) removeFromSecondary(doc *memDoc) {
	for _, idx := range append(append([]indexDef{}, t.gsis...), t.lsis...) {
		hv, ok := doc.item[idx.hash.name]
		if !ok {
			continue
		}
		hs, err := attrValueString(hv)
		if err != nil {
			continue
		}
		store, ok := t.secondary[idx.name]
		if !ok {
			continue
		}
		b, ok := store[hs]
		if !ok {
			continue
		}
		sDoc := &memDoc{hashValue: hs, rngValue: doc.rngValue, rngType: doc.rngType}
		b.Delete(sDoc)
	}
}

func keyOf(tbl *memTable, item map[string]types.AttributeValue) map[string]types.AttributeValue {
	key := map[string]types.AttributeValue{tbl.hash.name: item[tbl.hash.name]}
	if tbl.rng != nil {
		key[tbl.rng.name] = item[tbl.rng.name]
	}
	return key
}

func oldImage(had bool, doc *memDoc) map[string]types.AttributeValue {
	if !had || doc == nil {
		return nil
	}
	return doc.item
}

// allItems drains the full contents of a bucketed store in a deterministic
// order (by hash value, then sort key), used by Scan.
func allItems(store map[string]*btree.BTreeG[*memDoc]) []*memDoc {
	hashes := make([]string, 0, len(store))
	for h := range store {
		hashes = append(hashes, h)
	}
	sort.Strings(hashes)
	var out []*memDoc
	for _, h := range hashes {
		store[h].Ascend(func(d *memDoc) bool {
			out = append(out, d)
			return true
		})
	}
	return out
}
