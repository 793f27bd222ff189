package shared

import (
	"context"

	"github.com/google/uuid"
)

// AccessContext carries the identity of the caller for every core operation.
// It is supplied by the session layer and threaded explicitly through
// context.Context; there is no ambient or thread-local fallback.
type AccessContext struct {
	TenantID     uuid.UUID
	StoreID      *uuid.UUID
	UserID       *uuid.UUID
	ClientID     string
	IsSuperAdmin bool
}

// CanAccessTenant reports whether the caller may touch rows owned by the
// given tenant. Superadmins may cross tenant boundaries; everyone else is
// confined to their own tenant.
func (a AccessContext) CanAccessTenant(tenantID uuid.UUID) bool {
	if a.IsSuperAdmin {
		return true
	}
	return a.TenantID == tenantID
}

type accessContextKey struct{}

// WithAccess returns a new context carrying the access context
func WithAccess(ctx context.Context, access AccessContext) context.Context {
	return context.WithValue(ctx, accessContextKey{}, access)
}

// AccessFrom retrieves the access context. The second return value is false
// when no access context was attached.
func AccessFrom(ctx context.Context) (AccessContext, bool) {
	access, ok := ctx.Value(accessContextKey{}).(AccessContext)
	return access, ok
}

// MustAccess retrieves the access context or returns ErrAccessContextMissing.
// Core operations hard-fail without an access context rather than running
// unscoped.
func MustAccess(ctx context.Context) (AccessContext, error) {
	access, ok := AccessFrom(ctx)
	if !ok {
		return AccessContext{}, ErrAccessContextMissing
	}
	return access, nil
}
