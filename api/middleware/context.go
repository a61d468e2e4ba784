package middleware

import (
	"context"

	"github.com/angelmondragon/storefront-affiliates/pkg/enums"
)

// Caller is the authenticated principal behind a request.
type Caller struct {
	Subject string
	Role    enums.Role
}

type callerKey struct{}

// CallerFrom returns the zero Caller for unauthenticated contexts.
func CallerFrom(ctx context.Context) Caller {
	if ctx == nil {
		return Caller{}
	}
	caller, _ := ctx.Value(callerKey{}).(Caller)
	return caller
}

func SubjectFromContext(ctx context.Context) string { return CallerFrom(ctx).Subject }

func RoleFromContext(ctx context.Context) string { return string(CallerFrom(ctx).Role) }

func withCaller(ctx context.Context, caller Caller) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, callerKey{}, caller)
}

// WithActor injects a caller without a token, for handlers mounted without Auth.
func WithActor(ctx context.Context, subject, role string) context.Context {
	return withCaller(ctx, Caller{Subject: subject, Role: enums.Role(role)})
}
