package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// RequireRole returns middleware that lets a request through only when the
// forwarded identity holds one of roles. Admins always pass. It must run
// after IdentityMiddleware.
func RequireRole(roles ...Role) echo.MiddlewareFunc {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := IdentityFrom(c)
			role, ok := id.Role()
			if !ok {
				return HTTPError(ErrMissingIdentity)
			}
			if role == RoleAdmin {
				return next(c)
			}
			for _, r := range roles {
				if role == r {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("Access Denied: required role: %s", strings.Join(names, " or ")))
		}
	}
}
