// Package prefix implements the bijective Field-Prefix Codec: encoding a
// context-aware scalar as tenant.delim.virtualTable.delim.value, and
// decoding it back.
package prefix

import (
	"errors"
	"fmt"
	"strings"

	"github.com/acksell/sharedtable/tenant"
)

// DefaultDelimiter is used when a Codec is constructed with an empty string.
const DefaultDelimiter = "."

// ErrMalformedPrefix is returned by Reverse when the encoded value does not
// contain the two delimiters a valid prefixed value must have.
var ErrMalformedPrefix = errors.New("sharedtable/prefix: malformed prefixed value")

// Value is the decoded form of a prefixed scalar.
type Value struct {
	Tenant       tenant.ID
	VirtualTable string
	Qualified    string
	Original     string
}

// Codec encodes and decodes prefixed values for a single delimiter. It holds
// no state beyond the delimiter and is safe for concurrent use.
type Codec struct {
	delim string
}

// New constructs a Codec. An empty delim falls back to DefaultDelimiter.
func New(delim string) *Codec {
	if delim == "" {
		delim = DefaultDelimiter
	}
	return &Codec{delim: delim}
}

// Delimiter returns the configured delimiter.
func (c *Codec) Delimiter() string { return c.delim }

// ContainsDelimiter reports whether s contains the codec's delimiter. The
// delimiter is reserved from tenant ids and virtual table names; a value
// containing it would decode to the wrong tenant or table.
func (c *Codec) ContainsDelimiter(s string) bool {
	return strings.Contains(s, c.delim)
}

// Apply encodes value as tenant.delim.virtualTable.delim.value.
func (c *Codec) Apply(t tenant.ID, virtualTable, value string) Value {
	qualified := string(t) + c.delim + virtualTable + c.delim + value
	return Value{
		Tenant:       t,
		VirtualTable: virtualTable,
		Qualified:    qualified,
		Original:     value,
	}
}

// Reverse decodes a qualified value by splitting on the delimiter exactly
// twice from the left; everything after the second delimiter, including
// any further occurrences of it, is the original value.
func (c *Codec) Reverse(qualified string) (Value, error) {
	first := strings.Index(qualified, c.delim)
	if first < 0 {
		return Value{}, fmt.Errorf("%w: %q", ErrMalformedPrefix, qualified)
	}
	rest := qualified[first+len(c.delim):]
	second := strings.Index(rest, c.delim)
	if second < 0 {
		return Value{}, fmt.Errorf("%w: %q", ErrMalformedPrefix, qualified)
	}
	return Value{
		Tenant:       tenant.ID(qualified[:first]),
		VirtualTable: rest[:second],
		Qualified:    qualified,
		Original:     rest[second+len(c.delim):],
	}, nil
}
