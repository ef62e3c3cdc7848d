package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/bagflow-backend/pkg/enums"
)

type contextKey string

const ctxPrincipal contextKey = "principal"

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID  uuid.UUID
	Role    enums.ActorRole
	StoreID *uuid.UUID
}

// WithPrincipal injects the caller into the context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxPrincipal, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	p, ok := ctx.Value(ctxPrincipal).(Principal)
	return p, ok
}

func UserIDFromContext(ctx context.Context) string {
	if p, ok := PrincipalFromContext(ctx); ok {
		return p.UserID.String()
	}
	return ""
}

func StoreIDFromContext(ctx context.Context) string {
	if p, ok := PrincipalFromContext(ctx); ok && p.StoreID != nil {
		return p.StoreID.String()
	}
	return ""
}
