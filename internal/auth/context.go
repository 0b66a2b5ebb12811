package auth

import (
	"context"
	"sync/atomic"

	"github.com/idxstock/stockapi/internal/model"
)

type identityKey struct{}

type slotKey struct{}

// ContextWithIdentity adds the authenticated identity to the context. If an
// outer middleware opened a slot with WithIdentitySlot, the identity is also
// published there.
func ContextWithIdentity(ctx context.Context, id *model.Identity) context.Context {
	if slot, ok := ctx.Value(slotKey{}).(*atomic.Pointer[model.Identity]); ok {
		slot.Store(id)
	}
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the identity stored by the auth middleware,
// or nil for unauthenticated requests.
func IdentityFromContext(ctx context.Context) *model.Identity {
	id, _ := ctx.Value(identityKey{}).(*model.Identity)
	return id
}

// UserIDFromContext returns the authenticated user ID, or "".
func UserIDFromContext(ctx context.Context) string {
	if id := IdentityFromContext(ctx); id != nil {
		return id.UserID
	}
	return ""
}

// WithIdentitySlot returns a context carrying an empty slot and a reader
// for it. Middleware that wraps authentication uses it to learn who made
// the request once the inner chain has run. The reader never grants
// access; handlers must use IdentityFromContext.
func WithIdentitySlot(ctx context.Context) (context.Context, func() *model.Identity) {
	slot := new(atomic.Pointer[model.Identity])
	return context.WithValue(ctx, slotKey{}, slot), slot.Load
}

// ObservedUserID returns the user ID from the context or, failing that,
// from a slot filled further down the chain.
func ObservedUserID(ctx context.Context) string {
	if id := UserIDFromContext(ctx); id != "" {
		return id
	}
	if slot, ok := ctx.Value(slotKey{}).(*atomic.Pointer[model.Identity]); ok {
		if id := slot.Load(); id != nil {
			return id.UserID
		}
	}
	return ""
}
