package auth

import (
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the payload of an HMS bearer credential. The subject carries the
// caller's email.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role,omitempty"`
}

// CodecConfig selects how credentials are verified. Exactly one of
// SigningKey (HS256) or JWKSURL (RS256) must be set.
type CodecConfig struct {
	SigningKey []byte
	JWKSURL    string
	Issuer     string
	Leeway     time.Duration
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// Codec verifies bearer credentials and decodes them into a Principal. It
// holds no per-request state and is safe for concurrent use.
type Codec struct {
	keyFunc jwt.Keyfunc
	opts    []jwt.ParserOption
}

// NewCodec builds a Codec from cfg.
func NewCodec(cfg CodecConfig) (*Codec, error) {
	opts := []jwt.ParserOption{
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(cfg.Leeway))
	}
	if cfg.Now != nil {
		opts = append(opts, jwt.WithTimeFunc(cfg.Now))
	}

	c := &Codec{}
	switch {
	case len(cfg.SigningKey) > 0 && cfg.JWKSURL != "":
		return nil, errors.New("auth: codec needs a signing key or a JWKS URL, not both")
	case len(cfg.SigningKey) > 0:
		key := cfg.SigningKey
		c.keyFunc = func(*jwt.Token) (interface{}, error) { return key, nil }
		opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	case cfg.JWKSURL != "":
		c.keyFunc = NewJWKSCache(cfg.JWKSURL, defaultJWKSCacheTTL).Keyfunc
		opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
	default:
		return nil, errors.New("auth: codec needs a signing key or a JWKS URL")
	}
	c.opts = opts
	return c, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", ErrMalformedCredential
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMalformedCredential
	}
	return token, nil
}

// Verify checks the credential's signature, expiry and claims. Every failure
// after the header shape check is reported as ErrInvalidOrExpired so callers
// cannot tell which check rejected the token. A token without a recognised
// role claim is rejected rather than assigned a default role, and an internal
// identity assertion is never accepted as a bearer credential.
func (c *Codec) Verify(credential string) (Principal, error) {
	raw, err := BearerToken(credential)
	if err != nil {
		return Principal{}, err
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, c.keyFunc, c.opts...)
	if err != nil || !token.Valid {
		return Principal{}, ErrInvalidOrExpired
	}

	if claims.Subject == "" || slices.Contains(claims.Audience, assertionAudience) {
		return Principal{}, ErrInvalidOrExpired
	}
	role, ok := ParseRole(claims.Role)
	if !ok {
		return Principal{}, ErrInvalidOrExpired
	}
	return Principal{Email: claims.Subject, Role: role}, nil
}

// SignHS256 issues an HS256 credential for p. Used by the development token
// command and by tests.
func SignHS256(key []byte, p Principal, issuer string, now time.Time, ttl time.Duration) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.Email,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: string(p.Role),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}
