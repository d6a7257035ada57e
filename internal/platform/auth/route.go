package auth

import (
	"net/http"
	"strings"
)

// RouteConfig is the static input of the RouteClassifier.
type RouteConfig struct {
	// SecuredSuffixes always require authentication, whatever the method.
	SecuredSuffixes []string `mapstructure:"secured_suffixes" json:"secured_suffixes"`
	// PublicReadPrefixes are readable without a credential via GET.
	PublicReadPrefixes []string `mapstructure:"public_read_prefixes" json:"public_read_prefixes"`
	// OpenEndpoints never require authentication.
	OpenEndpoints []string `mapstructure:"open_endpoints" json:"open_endpoints"`
}

// DefaultRouteConfig lists the HMS public surface: the doctor directory is
// browsable anonymously, the self-service profile is not.
func DefaultRouteConfig() RouteConfig {
	return RouteConfig{
		SecuredSuffixes:    []string{"/my-profile"},
		PublicReadPrefixes: []string{"/api/doctors"},
		OpenEndpoints: []string{
			"/auth/register",
			"/auth/login",
			"/auth/health",
			"/eureka",
			"/health",
			"/metrics",
		},
	}
}

// RouteClassifier decides whether a request needs a credential at all.
// It is immutable once built.
type RouteClassifier struct {
	securedSuffixes    []string
	publicReadPrefixes []string
	openEndpoints      []string
}

// NewRouteClassifier copies cfg into a classifier.
func NewRouteClassifier(cfg RouteConfig) *RouteClassifier {
	return &RouteClassifier{
		securedSuffixes:    append([]string(nil), cfg.SecuredSuffixes...),
		publicReadPrefixes: append([]string(nil), cfg.PublicReadPrefixes...),
		openEndpoints:      append([]string(nil), cfg.OpenEndpoints...),
	}
}

// RequiresAuth applies the rules in order, first match wins. The secured
// suffix check runs before the public-read check so a public prefix can
// never expose a self-service path.
func (rc *RouteClassifier) RequiresAuth(path, method string) bool {
	for _, s := range rc.securedSuffixes {
		if strings.Contains(path, s) {
			return true
		}
	}
	if method == http.MethodGet {
		for _, p := range rc.publicReadPrefixes {
			if hasPathPrefix(path, p) {
				return false
			}
		}
	}
	for _, p := range rc.openEndpoints {
		if hasPathPrefix(path, p) {
			return false
		}
	}
	return true
}

// hasPathPrefix reports whether path is prefix or lies below it, matching on
// segment boundaries so "/api/doctors" does not match "/api/doctorsX".
func hasPathPrefix(path, prefix string) bool {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		return true
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}
