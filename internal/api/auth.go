package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// AuthCookieName is the cookie fallback consulted when no Authorization
// header is present.
const AuthCookieName = "Authentication"

type contextKey string

const identityContextKey contextKey = "authenticatedIdentity"

// Identity is the authenticated caller decoded from a session token.
type Identity struct {
	UserID string
	Email  string
}

// ContextWithIdentity stores the authenticated identity in the provided context.
func ContextWithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// IdentityFromContext retrieves the authenticated identity from context if present.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(Identity)
	return identity, ok
}

// ExtractToken pulls the session token from the Authorization header,
// falling back to the Authentication cookie.
func ExtractToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if cookie, err := r.Cookie(AuthCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// AuthenticateRequest validates the session token on the request and returns
// the caller's identity.
func (h *Handler) AuthenticateRequest(r *http.Request) (Identity, error) {
	token := ExtractToken(r)
	if token == "" {
		return Identity{}, fmt.Errorf("missing session token")
	}
	claims, ok := h.Tokens.Verify(token)
	if !ok {
		return Identity{}, fmt.Errorf("invalid or expired session token")
	}
	return Identity{UserID: claims.UserID, Email: claims.Email}, nil
}

func (h *Handler) requireIdentity(w http.ResponseWriter, r *http.Request) (Identity, bool) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, fmt.Errorf("authentication required"))
		return Identity{}, false
	}
	return identity, true
}
