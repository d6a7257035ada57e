package app

import (
	"fmt"
	"io"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/config"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/gateway"
	"github.com/hms/hms/internal/platform/middleware"
	"github.com/hms/hms/internal/platform/telemetry"
)

// NewGateway builds the edge from cfg and policy. The returned closer
// releases the Redis connection when a shared rate limiter is configured.
func NewGateway(cfg *config.Config, policy auth.Policy, logger zerolog.Logger, metrics *telemetry.Metrics) (*echo.Echo, io.Closer, error) {
	if metrics == nil {
		metrics = telemetry.NewMetrics("gateway")
	}
	cc := cfg.CodecConfig()
	if len(cc.SigningKey) == 0 && cc.JWKSURL == "" && cc.Issuer != "" {
		jwksURL, err := auth.DiscoverJWKSURL(cc.Issuer)
		if err != nil {
			return nil, nil, fmt.Errorf("discovering JWKS for %s: %w", cc.Issuer, err)
		}
		cc.JWKSURL = jwksURL
	}
	codec, err := auth.NewCodec(cc)
	if err != nil {
		return nil, nil, err
	}
	engine, err := auth.NewPolicyEngine(policy.Rules)
	if err != nil {
		return nil, nil, err
	}

	gk := auth.NewGatekeeper(auth.GatekeeperConfig{
		Classifier: auth.NewRouteClassifier(policy.Routes),
		Verifier:   codec,
		Policy:     engine,
		Asserter:   auth.NewAsserter([]byte(cfg.InternalAssertionKey)),
		Logger:     logger,
		OnDecision: metrics.ObserveGate,
	})

	var closer io.Closer = nopCloser{}
	var limiter middleware.Limiter
	rl := middleware.RateLimitConfig{RequestsPerSecond: cfg.RateLimitRPS, BurstSize: cfg.RateLimitBurst}
	switch {
	case rl.RequestsPerSecond <= 0:
		// Rate limiting disabled.
	case cfg.RedisURL != "":
		l, client, err := middleware.NewRedisLimiter(cfg.RedisURL, rl)
		if err != nil {
			return nil, nil, err
		}
		limiter, closer = l, client
		logger.Info().Msg("using redis rate limiter")
	default:
		limiter = middleware.NewMemoryLimiter(rl)
	}

	e, err := gateway.New(gateway.Config{
		Routes:          cfg.Upstreams(),
		Gatekeeper:      gk,
		Limiter:         limiter,
		Metrics:         metrics,
		Logger:          logger,
		CORSOrigins:     cfg.CORSOrigins,
		UpstreamTimeout: cfg.RequestTimeout,
		RequestTimeout:  cfg.RequestTimeout,
		TrustedProxies:  cfg.TrustedProxies,
	})
	if err != nil {
		_ = closer.Close()
		return nil, nil, err
	}
	return e, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
