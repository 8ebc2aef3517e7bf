package backend

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// clause is one parsed top-level boolean clause from a key-condition or
// filter expression: either "name op value" or "begins_with(name, value)".
type clause struct {
	name       string
	op         string // "=", "<", "<=", ">", ">=", or "begins_with"
	valueToken string
}

var beginsWithRe = regexp.MustCompile(`(?i)^begins_with\s*\(\s*([^,]+?)\s*,\s*([^)]+?)\s*\)$`)
var cmpRe = regexp.MustCompile(`^(.+?)\s*(<=|>=|<>|=|<|>)\s*(.+)$`)

// splitTopLevelAnd splits expr on " AND " (case-insensitive) outside of any
// parentheses.
func splitTopLevelAnd(expr string) []string {
	var out []string
	depth := 0
	last := 0
	runes := []rune(expr)
	i := 0
	for i < len(runes) {
		switch runes[i] {
		case '(':
			depth++
		case ')':
			depth--
		}
		if depth == 0 && i+5 <= len(runes) && strings.EqualFold(string(runes[i:i+5]), " and ") {
			out = append(out, strings.TrimSpace(string(runes[last:i])))
			i += 5
			last = i
			continue
		}
		i++
	}
	out = append(out, strings.TrimSpace(string(runes[last:])))
	return out
}

func parseClauses(expr string) ([]clause, error) {
	parts := splitTopLevelAnd(expr)
	out := make([]clause, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if strings.HasPrefix(p, "(") && strings.HasSuffix(p, ")") {
			p = strings.TrimSpace(p[1 : len(p)-1])
		}
		if m := beginsWithRe.FindStringSubmatch(p); m != nil {
			out = append(out, clause{name: strings.TrimSpace(m[1]), op: "begins_with", valueToken: strings.TrimSpace(m[2])})
			continue
		}
		m := cmpRe.FindStringSubmatch(p)
		if m == nil {
			return nil, fmt.Errorf("cannot parse condition clause %q", p)
		}
		out = append(out, clause{name: strings.TrimSpace(m[1]), op: m[2], valueToken: strings.TrimSpace(m[3])})
	}
	return out, nil
}

func resolveName(token string, names map[string]string) string {
	if strings.HasPrefix(token, "#") {
		if n, ok := names[token]; ok {
			return n
		}
	}
	return token
}

func resolveValue(token string, values map[string]types.AttributeValue) (types.AttributeValue, error) {
	v, ok := values[token]
	if !ok {
		return nil, fmt.Errorf("expression attribute value %q not found", token)
	}
	return v, nil
}

// evalClause reports whether item satisfies c.
func evalClause(c clause, names map[string]string, values map[string]types.AttributeValue, item map[string]types.AttributeValue) (bool, error) {
	attrName := resolveName(c.name, names)
	want, err := resolveValue(c.valueToken, values)
	if err != nil {
		return false, err
	}
	got, present := item[attrName]
	if !present {
		return false, nil
	}
	switch c.op {
	case "=":
		return attrEqual(got, want), nil
	case "begins_with":
		gs, gok := attrString(got)
		ws, wok := attrString(want)
		return gok && wok && strings.HasPrefix(gs, ws), nil
	case "<", "<=", ">", ">=":
		cmp, ok := compareAttr(got, want)
		if !ok {
			return false, nil
		}
		switch c.op {
		case "<":
			return cmp < 0, nil
		case "<=":
			return cmp <= 0, nil
		case ">":
			return cmp > 0, nil
		case ">=":
			return cmp >= 0, nil
		}
	}
	return false, fmt.Errorf("unsupported operator %q", c.op)
}

// evalExpression evaluates a conjunction of clauses (the only shape this
// in-memory backend supports, matching what querymap ever produces).
func evalExpression(expr string, names map[string]string, values map[string]types.AttributeValue, item map[string]types.AttributeValue) (bool, error) {
	if expr == "" {
		return true, nil
	}
	clauses, err := parseClauses(expr)
	if err != nil {
		return false, err
	}
	for _, c := range clauses {
		ok, err := evalClause(c, names, values, item)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func attrString(v types.AttributeValue) (string, bool) {
	switch tv := v.(type) {
	case *types.AttributeValueMemberS:
		return tv.Value, true
	case *types.AttributeValueMemberN:
		return tv.Value, true
	case *types.AttributeValueMemberB:
		return string(tv.Value), true
	default:
		return "", false
	}
}

func attrEqual(a, b types.AttributeValue) bool {
	as, aok := attrString(a)
	bs, bok := attrString(b)
	if aok && bok {
		return as == bs
	}
	return false
}

// compareAttr orders two scalar attribute values: lexicographically for S
// and B, numerically for N.
func compareAttr(a, b types.AttributeValue) (int, bool) {
	an, aIsN := a.(*types.AttributeValueMemberN)
	bn, bIsN := b.(*types.AttributeValueMemberN)
	if aIsN && bIsN {
		af, err1 := strconv.ParseFloat(an.Value, 64)
		bf, err2 := strconv.ParseFloat(bn.Value, 64)
		if err1 != nil || err2 != nil {
			return 0, false
		}
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		default:
			return 0, true
		}
	}
	as, aok := attrString(a)
	bs, bok := attrString(b)
	if aok && bok {
		return strings.Compare(as, bs), true
	}
	return 0, false
}
