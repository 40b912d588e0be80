package auth

import (
	"context"
	"net/http"
	"strings"
)

// Identity headers forwarded to protected upstreams.
const (
	HeaderUserID    = "X-User-ID"
	HeaderUserName  = "X-User-Name"
	HeaderUserRoles = "X-User-Roles"
)

type contextKey string

const claimsKey contextKey = "claims"

// WithClaims adds claims to context.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// GetClaims retrieves claims from context.
func GetClaims(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsKey).(*Claims)
	return claims
}

// StripIdentity removes client supplied identity headers.
func StripIdentity(h http.Header) {
	h.Del(HeaderUserID)
	h.Del(HeaderUserName)
	h.Del(HeaderUserRoles)
}

// SetIdentity writes verified claims as identity headers.
func SetIdentity(h http.Header, claims *Claims) {
	StripIdentity(h)
	if claims == nil {
		return
	}
	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	h.Set(HeaderUserID, userID)
	if claims.Username != "" {
		h.Set(HeaderUserName, claims.Username)
	}
	if len(claims.Roles) > 0 {
		h.Set(HeaderUserRoles, strings.Join(claims.Roles, ","))
	}
}
