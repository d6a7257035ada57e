package auth

import (
	"net/http"
	"testing"
)

func TestRouteClassifier_Defaults(t *testing.T) {
	rc := NewRouteClassifier(DefaultRouteConfig())

	cases := []struct {
		method string
		path   string
		secure bool
	}{
		{http.MethodPost, "/auth/login", false},
		{http.MethodPost, "/auth/register", false},
		{http.MethodGet, "/auth/health", false},
		{http.MethodGet, "/eureka/apps", false},
		{http.MethodGet, "/health", false},
		{http.MethodGet, "/health/db", false},
		{http.MethodGet, "/metrics", false},
		{http.MethodGet, "/api/doctors", false},
		{http.MethodGet, "/api/doctors/42", false},
		{http.MethodGet, "/api/doctors/my-profile", true},
		{http.MethodPut, "/api/doctors/my-profile", true},
		{http.MethodPost, "/api/doctors", true},
		{http.MethodDelete, "/api/doctors/42", true},
		{http.MethodGet, "/api/doctorsX", true},
		{http.MethodGet, "/api/patients/1", true},
		{http.MethodGet, "/api/appointments", true},
		{http.MethodGet, "/authx/login", true},
		{http.MethodGet, "/", true},
	}

	for _, tc := range cases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			if got := rc.RequiresAuth(tc.path, tc.method); got != tc.secure {
				t.Errorf("RequiresAuth(%s, %s) = %v, want %v", tc.path, tc.method, got, tc.secure)
			}
		})
	}
}

// A secured suffix wins over every other rule, whatever the method and
// whatever public prefix the path sits under.
func TestRouteClassifier_SecuredSuffixDominates(t *testing.T) {
	rc := NewRouteClassifier(RouteConfig{
		SecuredSuffixes:    []string{"/my-profile"},
		PublicReadPrefixes: []string{"/api/doctors", "/api/patients"},
		OpenEndpoints:      []string{"/api", "/auth"},
	})
	paths := []string{"/api/doctors/my-profile", "/api/patients/my-profile", "/auth/my-profile", "/api/my-profile/extra"}
	methods := []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch}
	for _, p := range paths {
		for _, m := range methods {
			if !rc.RequiresAuth(p, m) {
				t.Errorf("expected %s %s to require auth", m, p)
			}
		}
	}
}

func TestRouteClassifier_PublicReadIsGETOnly(t *testing.T) {
	rc := NewRouteClassifier(DefaultRouteConfig())
	for _, m := range []string{http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodHead} {
		if !rc.RequiresAuth("/api/doctors/7", m) {
			t.Errorf("expected %s /api/doctors/7 to require auth", m)
		}
	}
}

func TestRouteClassifier_EmptyConfigSecuresEverything(t *testing.T) {
	rc := NewRouteClassifier(RouteConfig{})
	if !rc.RequiresAuth("/auth/login", http.MethodPost) {
		t.Error("expected everything to require auth with an empty config")
	}
}

func TestRouteClassifier_CopiesConfig(t *testing.T) {
	cfg := DefaultRouteConfig()
	rc := NewRouteClassifier(cfg)
	cfg.OpenEndpoints[0] = "/api"
	if !rc.RequiresAuth("/api/patients", http.MethodGet) {
		t.Error("classifier must not observe later changes to its config")
	}
}

func TestHasPathPrefix(t *testing.T) {
	cases := []struct {
		path, prefix string
		want         bool
	}{
		{"/api/doctors", "/api/doctors", true},
		{"/api/doctors/", "/api/doctors", true},
		{"/api/doctors/1", "/api/doctors/", true},
		{"/api/doctorsX", "/api/doctors", false},
		{"/x", "/", true},
	}
	for _, tc := range cases {
		if got := hasPathPrefix(tc.path, tc.prefix); got != tc.want {
			t.Errorf("hasPathPrefix(%q, %q) = %v, want %v", tc.path, tc.prefix, got, tc.want)
		}
	}
}
