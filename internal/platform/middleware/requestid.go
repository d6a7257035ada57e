package middleware

import (
	"context"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// RequestIDHeader carries the request ID across the edge and the services.
const RequestIDHeader = echo.HeaderXRequestID

type requestIDKey struct{}

// WithRequestID stores rid on ctx for outbound calls made while serving the
// request.
func WithRequestID(ctx context.Context, rid string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, rid)
}

// RequestIDFromContext returns the request ID stored on ctx, or "".
func RequestIDFromContext(ctx context.Context) string {
	rid, _ := ctx.Value(requestIDKey{}).(string)
	return rid
}

// RequestID assigns every request an ID, reusing the inbound header when the
// caller (usually the edge) already set one. The ID is stored under
// "request_id" on the echo context and on the request context, and echoed on
// both the request and response headers.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			rid := req.Header.Get(RequestIDHeader)
			if rid == "" {
				rid = uuid.NewString()
				req.Header.Set(RequestIDHeader, rid)
			}
			c.Set("request_id", rid)
			c.SetRequest(req.WithContext(WithRequestID(req.Context(), rid)))
			c.Response().Header().Set(RequestIDHeader, rid)
			return next(c)
		}
	}
}
