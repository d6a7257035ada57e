package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Forwarded identity headers set by the edge. Internal services trust them
// because they are only reachable from inside the service network.
const (
	HeaderUserEmail         = "X-User-Email"
	HeaderUserRole          = "X-User-Role"
	HeaderIdentityAssertion = "X-Identity-Assertion"
)

type contextKey string

const identityKey contextKey = "forwarded_identity"

// Identity is the request-scoped view of the forwarded caller. The zero
// value is the anonymous caller, for which every predicate is false.
type Identity struct {
	email string
	role  Role
}

// NewIdentity builds an Identity from a verified principal.
func NewIdentity(p Principal) Identity {
	return Identity{email: p.Email, role: p.Role}
}

// IdentityFromHeaders reads the forwarded identity headers. Unknown role
// values are dropped, leaving the role absent.
func IdentityFromHeaders(h http.Header) Identity {
	id := Identity{email: strings.TrimSpace(h.Get(HeaderUserEmail))}
	if role, ok := ParseRole(h.Get(HeaderUserRole)); ok {
		id.role = role
	}
	return id
}

func (i Identity) Email() (string, bool) { return i.email, i.email != "" }

func (i Identity) Role() (Role, bool) { return i.role, i.role != "" }

func (i Identity) IsAdmin() bool   { return i.role == RoleAdmin }
func (i Identity) IsPatient() bool { return i.role == RolePatient }
func (i Identity) IsDoctor() bool  { return i.role == RoleDoctor }

// Anonymous reports whether no identity was forwarded.
func (i Identity) Anonymous() bool { return i.email == "" && i.role == "" }

// Principal returns the identity as a principal when both halves are present.
func (i Identity) Principal() (Principal, bool) {
	if i.email == "" || i.role == "" {
		return Principal{}, false
	}
	return Principal{Email: i.email, Role: i.role}, true
}

// WithIdentity stores id on ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the identity stored on ctx, or the anonymous
// identity when none was stored.
func IdentityFromContext(ctx context.Context) Identity {
	id, _ := ctx.Value(identityKey).(Identity)
	return id
}

// IdentityFrom is the handler-side accessor.
func IdentityFrom(c echo.Context) Identity {
	return IdentityFromContext(c.Request().Context())
}

// IdentityMiddleware resolves the forwarded identity of every inbound request
// onto that request's context. When asserter is set, requests that carry
// identity headers must also carry a matching assertion.
func IdentityMiddleware(asserter *Asserter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			id := IdentityFromHeaders(req.Header)

			if asserter != nil && !id.Anonymous() {
				p, ok := id.Principal()
				if !ok {
					return HTTPError(ErrMissingIdentity)
				}
				if err := asserter.Check(req.Header.Get(HeaderIdentityAssertion), p); err != nil {
					return HTTPError(err)
				}
			}

			c.SetRequest(req.WithContext(WithIdentity(req.Context(), id)))
			return next(c)
		}
	}
}

// StripIdentity removes every identity header from h.
func StripIdentity(h http.Header) {
	h.Del(HeaderUserEmail)
	h.Del(HeaderUserRole)
	h.Del(HeaderIdentityAssertion)
}

// ForwardIdentity replaces the identity headers on h with p, adding a signed
// assertion when asserter is set.
func ForwardIdentity(h http.Header, p Principal, asserter *Asserter) error {
	StripIdentity(h)
	h.Set(HeaderUserEmail, p.Email)
	h.Set(HeaderUserRole, string(p.Role))
	if asserter != nil {
		token, err := asserter.Sign(p)
		if err != nil {
			return err
		}
		h.Set(HeaderIdentityAssertion, token)
	}
	return nil
}
