package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/hms/hms/internal/platform/auth"
)

type Config struct {
	Port     string `mapstructure:"PORT"`
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`
	RedisURL    string `mapstructure:"REDIS_URL"`

	JWTSecret            string        `mapstructure:"JWT_SECRET"`
	AuthJWKSURL          string        `mapstructure:"AUTH_JWKS_URL"`
	AuthIssuer           string        `mapstructure:"AUTH_ISSUER"`
	AuthLeeway           time.Duration `mapstructure:"AUTH_LEEWAY"`
	InternalAssertionKey string        `mapstructure:"INTERNAL_ASSERTION_KEY"`
	PolicyFile           string        `mapstructure:"POLICY_FILE"`

	PatientServiceURL       string `mapstructure:"PATIENT_SERVICE_URL"`
	DoctorServiceURL        string `mapstructure:"DOCTOR_SERVICE_URL"`
	AppointmentServiceURL   string `mapstructure:"APPOINTMENT_SERVICE_URL"`
	MedicalRecordServiceURL string `mapstructure:"MEDICAL_RECORD_SERVICE_URL"`
	UserServiceURL          string `mapstructure:"USER_SERVICE_URL"`

	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	TrustedProxies []string      `mapstructure:"TRUSTED_PROXIES"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	LookupTimeout  time.Duration `mapstructure:"LOOKUP_TIMEOUT"`
}

var envKeys = []string{
	"PORT", "ENV", "LOG_LEVEL",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "REDIS_URL",
	"JWT_SECRET", "AUTH_JWKS_URL", "AUTH_ISSUER", "AUTH_LEEWAY",
	"INTERNAL_ASSERTION_KEY", "POLICY_FILE",
	"PATIENT_SERVICE_URL", "DOCTOR_SERVICE_URL", "APPOINTMENT_SERVICE_URL",
	"MEDICAL_RECORD_SERVICE_URL", "USER_SERVICE_URL",
	"CORS_ORIGINS", "TRUSTED_PROXIES", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"REQUEST_TIMEOUT", "LOOKUP_TIMEOUT",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("AUTH_LEEWAY", "0s")
	v.SetDefault("PATIENT_SERVICE_URL", "http://localhost:8081")
	v.SetDefault("DOCTOR_SERVICE_URL", "http://localhost:8082")
	v.SetDefault("APPOINTMENT_SERVICE_URL", "http://localhost:8083")
	v.SetDefault("MEDICAL_RECORD_SERVICE_URL", "http://localhost:8084")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("LOOKUP_TIMEOUT", "5s")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range envKeys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(strings.Join(cfg.CORSOrigins, ","))
	cfg.TrustedProxies = splitList(strings.Join(cfg.TrustedProxies, ","))

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the process is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// CodecConfig returns the credential verification settings for the edge.
func (c *Config) CodecConfig() auth.CodecConfig {
	cc := auth.CodecConfig{
		JWKSURL: c.AuthJWKSURL,
		Issuer:  c.AuthIssuer,
		Leeway:  c.AuthLeeway,
	}
	if c.JWTSecret != "" {
		cc.SigningKey = []byte(c.JWTSecret)
	}
	return cc
}

// Upstreams maps each edge route prefix to the service URLs behind it.
// Service URL settings may hold a comma-separated list for round robin.
func (c *Config) Upstreams() map[string][]string {
	routes := map[string][]string{
		"/api/patients":        splitList(c.PatientServiceURL),
		"/api/doctors":         splitList(c.DoctorServiceURL),
		"/api/appointments":    splitList(c.AppointmentServiceURL),
		"/api/medical-records": splitList(c.MedicalRecordServiceURL),
	}
	if c.UserServiceURL != "" {
		routes["/auth"] = splitList(c.UserServiceURL)
	}
	for prefix, urls := range routes {
		if len(urls) == 0 {
			delete(routes, prefix)
		}
	}
	return routes
}

// Validate checks settings shared by every process.
func (c *Config) Validate() error {
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must not be negative")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive, got %s", c.RequestTimeout)
	}
	if c.LookupTimeout <= 0 {
		return fmt.Errorf("LOOKUP_TIMEOUT must be positive, got %s", c.LookupTimeout)
	}
	if c.IsProduction() && c.InternalAssertionKey != "" && len(c.InternalAssertionKey) < 32 {
		return fmt.Errorf("INTERNAL_ASSERTION_KEY must be at least 32 bytes in production")
	}
	return nil
}

// ValidateGateway checks the edge's credential settings. Exactly one of
// JWT_SECRET or AUTH_JWKS_URL/AUTH_ISSUER must be configured.
func (c *Config) ValidateGateway() error {
	if err := c.Validate(); err != nil {
		return err
	}
	hasSecret := c.JWTSecret != ""
	hasJWKS := c.AuthJWKSURL != "" || c.AuthIssuer != ""
	switch {
	case hasSecret && c.AuthJWKSURL != "":
		return fmt.Errorf("JWT_SECRET and AUTH_JWKS_URL are mutually exclusive")
	case !hasSecret && !hasJWKS:
		return fmt.Errorf("one of JWT_SECRET or AUTH_JWKS_URL/AUTH_ISSUER is required")
	case hasSecret && c.IsProduction() && len(c.JWTSecret) < 32:
		return fmt.Errorf("JWT_SECRET must be at least 32 bytes in production")
	case hasSecret && c.InternalAssertionKey == c.JWTSecret:
		return fmt.Errorf("INTERNAL_ASSERTION_KEY must differ from JWT_SECRET")
	}
	if len(c.Upstreams()) == 0 {
		return fmt.Errorf("no upstream service URLs configured")
	}
	return nil
}

// ValidateService checks the settings an internal service needs.
func (c *Config) ValidateService() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	return nil
}

// PrimaryURL returns the first entry of a comma-separated service URL
// setting. Service-to-service lookups use it; only the edge balances.
func PrimaryURL(list string) string {
	if urls := splitList(list); len(urls) > 0 {
		return urls[0]
	}
	return ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
