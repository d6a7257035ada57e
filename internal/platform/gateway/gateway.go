// Package gateway assembles the edge: the single entry point that verifies
// credentials, applies the route policy and forwards requests to the
// internal services with the caller's identity attached.
package gateway

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/middleware"
	"github.com/hms/hms/internal/platform/telemetry"
)

const defaultBodyLimit = "2M"

// Config wires the edge.
type Config struct {
	// Routes maps a path prefix to the upstream URLs serving it. Requests
	// are balanced round robin across the URLs of a prefix.
	Routes     map[string][]string
	Gatekeeper *auth.Gatekeeper
	// Limiter is optional; without one no rate limit applies.
	Limiter     middleware.Limiter
	Metrics     *telemetry.Metrics
	Logger      zerolog.Logger
	CORSOrigins []string
	// UpstreamTimeout bounds how long the edge waits for upstream response
	// headers.
	UpstreamTimeout time.Duration
	// RequestTimeout bounds each request end to end; zero disables it.
	RequestTimeout time.Duration
	BodyLimit      string
	// TrustedProxies lists the CIDR ranges of load balancers whose
	// X-Forwarded-For entries are believed. Without any, the client address
	// is the TCP peer and forwarding headers are ignored.
	TrustedProxies []string
	// Transport overrides the proxy transport, mainly for tests.
	Transport http.RoundTripper
}

// Route is one compiled entry of the route table.
type Route struct {
	Prefix  string
	Targets []*url.URL
}

// CompileRoutes parses and orders the route table, longest prefix first so
// nested prefixes win over their parents.
func CompileRoutes(routes map[string][]string) ([]Route, error) {
	out := make([]Route, 0, len(routes))
	for prefix, urls := range routes {
		prefix = "/" + strings.Trim(prefix, "/")
		if prefix == "/" {
			return nil, fmt.Errorf("route prefix must not be the root path")
		}
		if len(urls) == 0 {
			return nil, fmt.Errorf("route %s has no upstreams", prefix)
		}
		r := Route{Prefix: prefix}
		for _, raw := range urls {
			u, err := url.Parse(raw)
			if err != nil || u.Scheme == "" || u.Host == "" {
				return nil, fmt.Errorf("route %s: invalid upstream %q", prefix, raw)
			}
			r.Targets = append(r.Targets, u)
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i].Prefix) != len(out[j].Prefix) {
			return len(out[i].Prefix) > len(out[j].Prefix)
		}
		return out[i].Prefix < out[j].Prefix
	})
	return out, nil
}

// New builds the edge server. Every request passes recovery, request ID,
// access logging, security headers, CORS, body limit, request timeout, rate
// limiting and metrics before the gatekeeper decides whether it is
// forwarded.
func New(cfg Config) (*echo.Echo, error) {
	if cfg.Gatekeeper == nil {
		return nil, fmt.Errorf("gateway: gatekeeper is required")
	}
	routes, err := CompileRoutes(cfg.Routes)
	if err != nil {
		return nil, err
	}

	extractor, err := ipExtractor(cfg.TrustedProxies)
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.IPExtractor = extractor

	e.Use(middleware.Recovery(cfg.Logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(cfg.Logger))
	e.Use(middleware.SecurityHeaders())
	if len(cfg.CORSOrigins) > 0 {
		e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
			AllowOrigins: cfg.CORSOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
			AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType, middleware.RequestIDHeader},
		}))
	}
	bodyLimit := cfg.BodyLimit
	if bodyLimit == "" {
		bodyLimit = defaultBodyLimit
	}
	e.Use(echomw.BodyLimit(bodyLimit))
	if cfg.RequestTimeout > 0 {
		e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	}
	if cfg.Limiter != nil {
		e.Use(middleware.RateLimit(cfg.Limiter, cfg.Logger))
	}
	if cfg.Metrics != nil {
		e.Use(cfg.Metrics.Middleware())
	}
	e.Use(cfg.Gatekeeper.Middleware())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "service": "gateway"})
	})
	if cfg.Metrics != nil {
		e.GET("/metrics", cfg.Metrics.Handler())
	}

	transport := cfg.Transport
	if transport == nil {
		transport = newTransport(cfg.UpstreamTimeout)
	}
	for _, r := range routes {
		targets := make([]*echomw.ProxyTarget, 0, len(r.Targets))
		for _, u := range r.Targets {
			targets = append(targets, &echomw.ProxyTarget{Name: u.Host, URL: u})
		}
		proxy := echomw.ProxyWithConfig(echomw.ProxyConfig{
			Balancer:  echomw.NewRoundRobinBalancer(targets),
			Transport: transport,
		})
		// The proxy answers every request itself; the inner handler only
		// runs if it ever declines one.
		h := proxy(func(c echo.Context) error { return echo.ErrNotFound })
		e.Any(r.Prefix, h)
		e.Any(r.Prefix+"/*", h)
	}

	cfg.Logger.Info().Int("routes", len(routes)).Msg("edge routes registered")
	return e, nil
}

// ipExtractor decides where c.RealIP comes from, and with it the key the
// rate limiter counts against.
func ipExtractor(trusted []string) (echo.IPExtractor, error) {
	if len(trusted) == 0 {
		return echo.ExtractIPDirect(), nil
	}
	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, cidr := range trusted {
		_, n, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", cidr, err)
		}
		opts = append(opts, echo.TrustIPRange(n))
	}
	return echo.ExtractIPFromXFFHeader(opts...), nil
}

func newTransport(timeout time.Duration) http.RoundTripper {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.DialContext = (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext
	t.ResponseHeaderTimeout = timeout
	return t
}
