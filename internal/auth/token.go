package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL is the lifetime applied to issued tokens.
const DefaultTokenTTL = 7 * 24 * time.Hour

// Claims binds a user identity to a token expiry.
type Claims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// TokenOption configures a TokenIssuer instance.
type TokenOption func(*TokenIssuer)

// WithTokenTTL overrides the default token lifetime.
func WithTokenTTL(ttl time.Duration) TokenOption {
	return func(i *TokenIssuer) {
		if ttl > 0 {
			i.ttl = ttl
		}
	}
}

// WithClock injects the time source used for issuance and expiry checks.
func WithClock(now func() time.Time) TokenOption {
	return func(i *TokenIssuer) {
		if now != nil {
			i.now = now
		}
	}
}

// TokenIssuer issues and verifies HMAC-signed session tokens. Tokens are
// self-contained; there is no server-side revocation, expiry is the only
// lifecycle bound.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer constructs a TokenIssuer signing with the provided secret.
func NewTokenIssuer(secret []byte, opts ...TokenOption) (*TokenIssuer, error) {
	if len(secret) == 0 {
		return nil, errors.New("auth: token secret must not be empty")
	}
	issuer := &TokenIssuer{
		secret: secret,
		ttl:    DefaultTokenTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(issuer)
		}
	}
	return issuer, nil
}

// Issue signs a token for the given user identity.
func (i *TokenIssuer) Issue(userID, email string) (string, error) {
	now := i.now().UTC()
	claims := Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the token signature and expiry and returns the embedded
// claims. The boolean result is false for any malformed, tampered, or
// expired token; verification never panics. Expiry uses a strict comparison,
// so a token expiring exactly now is still accepted.
func (i *TokenIssuer) Verify(tokenString string) (Claims, bool) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return i.secret, nil
	}, jwt.WithoutClaimsValidation())
	if err != nil || !token.Valid {
		return Claims{}, false
	}
	if claims.ExpiresAt == nil || claims.UserID == "" {
		return Claims{}, false
	}
	if claims.ExpiresAt.Unix() < i.now().Unix() {
		return Claims{}, false
	}
	return claims, true
}
