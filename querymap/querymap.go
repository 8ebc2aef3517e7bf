// Package querymap rewrites query and scan requests so they target the
// shared physical table: only equality key conditions are translated,
// placeholder maps are cloned and rewritten, and every scan is scoped to
// the current tenant and virtual table. The rebuilt key condition and
// scoping predicate are built with
// aws-sdk-go-v2/feature/dynamodb/expression rather than by hand-assembling
// expression strings.
package querymap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/acksell/sharedtable/fieldcodec"
	"github.com/acksell/sharedtable/mapping"
	"github.com/acksell/sharedtable/prefix"
	"github.com/acksell/sharedtable/tenant"
)

// Mapper rewrites query/scan requests for one TableMapping.
type Mapper struct {
	tm     *mapping.TableMapping
	fields *fieldcodec.Mapper
	codec  *prefix.Codec
}

// New constructs a query/scan Mapper.
func New(tm *mapping.TableMapping, fields *fieldcodec.Mapper, codec *prefix.Codec) *Mapper {
	return &Mapper{tm: tm, fields: fields, codec: codec}
}

// scopeFields resolves the key-schema field mappings the given (possibly
// nil) index name should be rewritten against, plus the physical name to
// dispatch to.
func (m *Mapper) scopeFields(indexName *string) (fields []mapping.FieldMapping, physicalIndexName string, err error) {
	if indexName == nil {
		return m.tm.TableFields(), "", nil
	}
	fields, physicalIndexName, ok := m.tm.IndexFields(*indexName)
	if !ok {
		return nil, "", fmt.Errorf("%w: %q", ErrUnknownIndex, *indexName)
	}
	return fields, physicalIndexName, nil
}

func hashAndRange(fields []mapping.FieldMapping) (hash *mapping.FieldMapping, rng *mapping.FieldMapping) {
	for i := range fields {
		if fields[i].ContextAware {
			hash = &fields[i]
		} else {
			rng = &fields[i]
		}
	}
	return hash, rng
}

// RewriteQuery clones and rewrites a QueryInput: table name, index name,
// equality key condition, and placeholder maps. The tenant/virtual-table
// scoping is implicit once the partition key is field-mapped: the physical
// hash value IS the full tenant+table+value prefix, so an equality pin on
// it is already maximally specific (it takes precedence over the general
// scoping predicate scans must add explicitly).
func (m *Mapper) RewriteQuery(ctx context.Context, input *dynamodb.QueryInput) (*dynamodb.QueryInput, error) {
	if input == nil {
		return nil, fmt.Errorf("sharedtable/querymap: query input is required")
	}
	if input.KeyConditionExpression == nil {
		return nil, fmt.Errorf("%w: key condition expression is required", ErrUnsupportedPredicate)
	}

	fields, physicalIndexName, err := m.scopeFields(input.IndexName)
	if err != nil {
		return nil, err
	}
	hash, rng := hashAndRange(fields)
	if hash == nil {
		return nil, fmt.Errorf("sharedtable/querymap: no hash key mapping for scope")
	}

	clauses, err := parseEqualityKeyCondition(*input.KeyConditionExpression, input.ExpressionAttributeNames, input.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}

	hashClause, rangeClause, err := matchClausesToKeys(clauses, hash, rng)
	if err != nil {
		return nil, err
	}

	out := cloneQueryInput(input)
	out.TableName = &m.tm.Physical.TableName
	if physicalIndexName != "" {
		name := physicalIndexName
		out.IndexName = &name
	} else {
		out.IndexName = nil
	}

	// The rebuilt key condition uses generated placeholders, so the
	// caller's own key-condition placeholders would go unused in the
	// rewritten request (which the backend rejects). Drop them, unless a
	// filter expression still references the same token.
	for _, cl := range clauses {
		if cl.nameToken != "" && !tokenInFilter(input.FilterExpression, cl.nameToken) {
			delete(out.ExpressionAttributeNames, cl.nameToken)
		}
		if !tokenInFilter(input.FilterExpression, cl.valueToken) {
			delete(out.ExpressionAttributeValues, cl.valueToken)
		}
	}

	physHashVal, err := m.fields.Apply(ctx, *hash, hashClause.value)
	if err != nil {
		return nil, fmt.Errorf("sharedtable/querymap: map partition key: %w", err)
	}

	keyCond := expression.Key(hash.TargetField).Equal(expression.Value(rawAttributeValue{physHashVal}))

	if rangeClause != nil {
		physRangeVal, err := m.fields.Apply(ctx, *rng, rangeClause.value)
		if err != nil {
			return nil, fmt.Errorf("sharedtable/querymap: map sort key: %w", err)
		}
		keyCond = keyCond.And(expression.Key(rng.TargetField).Equal(expression.Value(rawAttributeValue{physRangeVal})))
	}

	builtExpr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("sharedtable/querymap: build key condition expression: %w", err)
	}
	out.KeyConditionExpression = builtExpr.KeyCondition()
	mergeNames(out.ExpressionAttributeNames, builtExpr.Names())
	mergeValues(out.ExpressionAttributeValues, builtExpr.Values())

	rewritePlaceholderNames(out.ExpressionAttributeNames, m.tm)

	return out, nil
}

// RewriteScan clones and rewrites a ScanInput: table name, index name, and
// placeholder maps, and always appends a begins_with scoping predicate on
// the physical hash key restricting results to the current tenant and
// virtual table (since scans have no key condition of their own to rely
// on).
func (m *Mapper) RewriteScan(ctx context.Context, input *dynamodb.ScanInput) (*dynamodb.ScanInput, error) {
	if input == nil {
		return nil, fmt.Errorf("sharedtable/querymap: scan input is required")
	}

	fields, physicalIndexName, err := m.scopeFields(input.IndexName)
	if err != nil {
		return nil, err
	}
	hash, _ := hashAndRange(fields)
	if hash == nil {
		return nil, fmt.Errorf("sharedtable/querymap: no hash key mapping for scope")
	}

	t, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	out := cloneScanInput(input)
	out.TableName = &m.tm.Physical.TableName
	if physicalIndexName != "" {
		name := physicalIndexName
		out.IndexName = &name
	} else {
		out.IndexName = nil
	}

	rewritePlaceholderNames(out.ExpressionAttributeNames, m.tm)

	scopePrefix := m.codec.Apply(t, m.tm.Virtual.TableName, "").Qualified
	scopeCond := expression.Name(hash.TargetField).BeginsWith(scopePrefix)
	builtExpr, err := expression.NewBuilder().WithCondition(scopeCond).Build()
	if err != nil {
		return nil, fmt.Errorf("sharedtable/querymap: build scoping condition expression: %w", err)
	}
	mergeNames(out.ExpressionAttributeNames, builtExpr.Names())
	mergeValues(out.ExpressionAttributeValues, builtExpr.Values())

	scopeExpr := *builtExpr.Condition()
	if input.FilterExpression != nil && *input.FilterExpression != "" {
		combined := "(" + *input.FilterExpression + ") AND " + scopeExpr
		out.FilterExpression = &combined
	} else {
		out.FilterExpression = &scopeExpr
	}

	return out, nil
}

func matchClausesToKeys(clauses []equalityClause, hash, rng *mapping.FieldMapping) (hashClause *equalityClause, rangeClause *equalityClause, err error) {
	byField := make(map[string]*equalityClause, len(clauses))
	for i := range clauses {
		byField[clauses[i].field] = &clauses[i]
	}

	hc, ok := byField[hash.SourceField]
	if !ok {
		return nil, nil, fmt.Errorf("%w: key condition must equality-pin partition key %q", ErrUnsupportedPredicate, hash.SourceField)
	}
	delete(byField, hash.SourceField)

	var rc *equalityClause
	if rng != nil {
		if found, ok := byField[rng.SourceField]; ok {
			rc = found
			delete(byField, rng.SourceField)
		}
	}

	if len(byField) > 0 {
		return nil, nil, fmt.Errorf("%w: key condition references unmapped key fields", ErrUnsupportedPredicate)
	}

	return hc, rc, nil
}

// rawAttributeValue adapts an already-built types.AttributeValue so
// expression.Value can embed it verbatim via the attributevalue.Marshaler
// extension point, instead of re-marshaling a Go value and risking a type
// mismatch (e.g. a sort key that happens to be numeric or binary).
type rawAttributeValue struct {
	v types.AttributeValue
}

func (r rawAttributeValue) MarshalDynamoDBAttributeValue() (types.AttributeValue, error) {
	return r.v, nil
}

func tokenInFilter(filter *string, token string) bool {
	return filter != nil && strings.Contains(*filter, token)
}

// mergeNames copies an expression.Builder's generated name placeholders
// into an already-cloned ExpressionAttributeNames map.
func mergeNames(dst, src map[string]string) {
	for k, v := range src {
		dst[k] = v
	}
}

// mergeValues copies an expression.Builder's generated value placeholders
// into an already-cloned ExpressionAttributeValues map.
func mergeValues(dst map[string]types.AttributeValue, src map[string]types.AttributeValue) {
	for k, v := range src {
		dst[k] = v
	}
}

// rewritePlaceholderNames rewrites ExpressionAttributeNames entries whose
// referenced attribute is a known virtual source field to the physical
// target name, leaving unmapped entries (ordinary, non-indexed attributes)
// untouched. ExpressionAttributeValues are intentionally left as-is: this
// module only rewrites the equality key condition's own values (handled by
// the caller); the remaining placeholder/value substitution form used by a
// filter expression passes through unchanged per the non-equality,
// non-key-rewrite scope of this mapper.
func rewritePlaceholderNames(names map[string]string, tm *mapping.TableMapping) {
	for alias, attrName := range names {
		if targets, ok := tm.VirtualToPhysical[attrName]; ok && len(targets) > 0 {
			names[alias] = targets[0].TargetField
		}
	}
}

func cloneQueryInput(in *dynamodb.QueryInput) *dynamodb.QueryInput {
	out := *in
	out.ExpressionAttributeNames = cloneStringMap(in.ExpressionAttributeNames)
	out.ExpressionAttributeValues = cloneAttrValueMap(in.ExpressionAttributeValues)
	return &out
}

func cloneScanInput(in *dynamodb.ScanInput) *dynamodb.ScanInput {
	out := *in
	out.ExpressionAttributeNames = cloneStringMap(in.ExpressionAttributeNames)
	out.ExpressionAttributeValues = cloneAttrValueMap(in.ExpressionAttributeValues)
	return &out
}

func cloneStringMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneAttrValueMap(in map[string]types.AttributeValue) map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
