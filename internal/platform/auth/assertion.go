package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	assertionAudience   = "hms-internal"
	defaultAssertionTTL = 30 * time.Second
)

// Asserter signs and checks the internal identity assertion that can travel
// next to the forwarded identity headers. The assertion binds email and role
// with a short-lived HS256 signature shared by the edge and the services.
type Asserter struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewAsserter returns nil when key is empty, which disables assertions.
func NewAsserter(key []byte) *Asserter {
	if len(key) == 0 {
		return nil
	}
	return &Asserter{key: key, ttl: defaultAssertionTTL, now: time.Now}
}

// Sign issues an assertion for p.
func (a *Asserter) Sign(p Principal) (string, error) {
	now := a.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.Email,
			Audience:  jwt.ClaimStrings{assertionAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
		Role: string(p.Role),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.key)
}

// Check verifies raw and requires it to describe exactly p.
func (a *Asserter) Check(raw string, p Principal) error {
	if raw == "" {
		return ErrMissingIdentity
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (interface{}, error) { return a.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(assertionAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil || !token.Valid {
		return ErrInvalidOrExpired
	}
	role, ok := ParseRole(claims.Role)
	if !ok || claims.Subject != p.Email || role != p.Role {
		return errors.Join(ErrInvalidOrExpired, errors.New("assertion does not match forwarded identity"))
	}
	return nil
}
