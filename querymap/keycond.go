package querymap

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// equalityClause is one parsed "field = value" clause from a key condition
// expression. nameToken/valueToken hold the caller's #name/:value
// placeholders so RewriteQuery can drop them from the rewritten request
// once the rebuilt key condition no longer references them.
type equalityClause struct {
	field      string // resolved attribute name (after #alias substitution)
	value      types.AttributeValue
	nameToken  string // "#alias" if the field was aliased, else empty
	valueToken string // ":placeholder" the right-hand side used
}

var andSplit = regexp.MustCompile(`(?i)\s+and\s+`)

// forbiddenOperators catches any key-condition syntax this mapper does not
// support (anything beyond plain equality): range comparisons and the
// begins_with/between functions.
var forbiddenOperators = []string{"begins_with(", "between", "<=", ">=", "<>", "<", ">"}

// parseEqualityKeyCondition parses expr into one or two equality clauses
// (partition key, and optionally sort key), resolving #name/:value
// placeholders against names/values. It fails with ErrUnsupportedPredicate
// for anything but a conjunction of plain equalities.
func parseEqualityKeyCondition(expr string, names map[string]string, values map[string]types.AttributeValue) ([]equalityClause, error) {
	rawClauses := andSplit.Split(expr, -1)
	if len(rawClauses) == 0 || len(rawClauses) > 2 {
		return nil, fmt.Errorf("%w: expected one or two ANDed equality clauses, got %q", ErrUnsupportedPredicate, expr)
	}

	clauses := make([]equalityClause, 0, len(rawClauses))
	for _, raw := range rawClauses {
		clause, err := parseOneEquality(strings.TrimSpace(raw), names, values)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, clause)
	}
	return clauses, nil
}

func parseOneEquality(clause string, names map[string]string, values map[string]types.AttributeValue) (equalityClause, error) {
	lower := strings.ToLower(clause)
	for _, op := range forbiddenOperators {
		if strings.Contains(lower, op) {
			return equalityClause{}, fmt.Errorf("%w: only equality is supported, got clause %q", ErrUnsupportedPredicate, clause)
		}
	}

	idx := strings.Index(clause, "=")
	if idx < 0 {
		return equalityClause{}, fmt.Errorf("%w: no equality operator found in clause %q", ErrUnsupportedPredicate, clause)
	}
	fieldToken := strings.TrimSpace(clause[:idx])
	valueToken := strings.TrimSpace(clause[idx+1:])

	field := fieldToken
	var nameToken string
	if strings.HasPrefix(fieldToken, "#") {
		resolved, ok := names[fieldToken]
		if !ok {
			return equalityClause{}, fmt.Errorf("%w: expression attribute name %q not found", ErrUnsupportedPredicate, fieldToken)
		}
		field = resolved
		nameToken = fieldToken
	}

	if !strings.HasPrefix(valueToken, ":") {
		return equalityClause{}, fmt.Errorf("%w: key condition values must use an expression attribute value placeholder, got %q", ErrUnsupportedPredicate, valueToken)
	}
	value, ok := values[valueToken]
	if !ok {
		return equalityClause{}, fmt.Errorf("%w: expression attribute value %q not found", ErrUnsupportedPredicate, valueToken)
	}

	return equalityClause{field: field, value: value, nameToken: nameToken, valueToken: valueToken}, nil
}
