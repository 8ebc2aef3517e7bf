// Package tenant carries the ambient "current tenant" identity across a
// single data-plane operation. It is deliberately context-based rather than
// a mutable package-level global: a value attached to one goroutine's
// context tree is invisible to another, which gives the non-interference
// concurrent callers in different tenants need without any locking.
package tenant

import (
	"context"
	"errors"
)

// ID is an opaque, non-empty tenant identifier. It must not contain the
// Field-Prefix Codec's delimiter (enforced by callers that construct a
// prefix.Codec, not by this package).
type ID string

// ErrUnset is returned by FromContext when no tenant has been attached to ctx.
var ErrUnset = errors.New("sharedtable/tenant: tenant id not set on context")

type ctxKey struct{}

// WithID returns a new context carrying id as the current tenant.
func WithID(ctx context.Context, id ID) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the tenant id attached to ctx, or ErrUnset if absent.
func FromContext(ctx context.Context) (ID, error) {
	v := ctx.Value(ctxKey{})
	if v == nil {
		return "", ErrUnset
	}
	id, ok := v.(ID)
	if !ok || id == "" {
		return "", ErrUnset
	}
	return id, nil
}
