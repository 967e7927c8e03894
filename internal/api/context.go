package api

import (
	"context"

	"github.com/funcsea/appbackend/internal/tokens"
)

type contextKey string

func (c contextKey) String() string {
	return "appbackend api context key " + string(c)
}

const claimsKey = contextKey("claims")

// withClaims adds the verified access token claims to the context.
func withClaims(ctx context.Context, claims *tokens.AccessTokenClaims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// getClaims reads the verified access token claims from the context.
func getClaims(ctx context.Context) *tokens.AccessTokenClaims {
	if ctx == nil {
		return nil
	}
	obj := ctx.Value(claimsKey)
	if obj == nil {
		return nil
	}
	return obj.(*tokens.AccessTokenClaims)
}
