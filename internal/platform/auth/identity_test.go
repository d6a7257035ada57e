package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestIdentityFromHeaders(t *testing.T) {
	h := http.Header{}
	h.Set(HeaderUserEmail, " p@x.com ")
	h.Set(HeaderUserRole, "patient")
	id := IdentityFromHeaders(h)

	email, ok := id.Email()
	if !ok || email != "p@x.com" {
		t.Errorf("Email() = %q, %v", email, ok)
	}
	if !id.IsPatient() || id.IsDoctor() || id.IsAdmin() {
		t.Errorf("unexpected predicates for %+v", id)
	}
	p, ok := id.Principal()
	if !ok || p.Role != RolePatient {
		t.Errorf("Principal() = %+v, %v", p, ok)
	}
}

func TestIdentity_Anonymous(t *testing.T) {
	var id Identity
	if !id.Anonymous() {
		t.Error("zero identity should be anonymous")
	}
	if id.IsAdmin() || id.IsPatient() || id.IsDoctor() {
		t.Error("anonymous identity must satisfy no role predicate")
	}
	if _, ok := id.Email(); ok {
		t.Error("anonymous identity has no email")
	}
	if _, ok := id.Principal(); ok {
		t.Error("anonymous identity has no principal")
	}
}

func TestIdentityFromHeaders_UnknownRoleDropped(t *testing.T) {
	h := http.Header{}
	h.Set(HeaderUserEmail, "x@x.com")
	h.Set(HeaderUserRole, "SUPERUSER")
	id := IdentityFromHeaders(h)
	if _, ok := id.Role(); ok {
		t.Error("unknown role should be absent")
	}
	if id.Anonymous() {
		t.Error("identity with an email is not anonymous")
	}
	if _, ok := id.Principal(); ok {
		t.Error("identity without a role has no principal")
	}
}

func TestIdentityFromContext_Empty(t *testing.T) {
	if id := IdentityFromContext(context.Background()); !id.Anonymous() {
		t.Errorf("expected anonymous, got %+v", id)
	}
}

func TestIdentityMiddleware(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/patients/1", nil)
	req.Header.Set(HeaderUserEmail, "d@x.com")
	req.Header.Set(HeaderUserRole, "DOCTOR")
	c := e.NewContext(req, httptest.NewRecorder())

	var got Identity
	err := IdentityMiddleware(nil)(func(c echo.Context) error {
		got = IdentityFrom(c)
		return nil
	})(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.IsDoctor() {
		t.Errorf("expected doctor identity, got %+v", got)
	}
}

func TestIdentityMiddleware_Assertion(t *testing.T) {
	a := NewAsserter([]byte("internal-key"))
	p := Principal{Email: "p@x.com", Role: RolePatient}
	token, err := a.Sign(p)
	if err != nil {
		t.Fatal(err)
	}
	forged, err := a.Sign(Principal{Email: "other@x.com", Role: RolePatient})
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name      string
		email     string
		role      string
		assertion string
		status    int
	}{
		{"valid", "p@x.com", "PATIENT", token, 0},
		{"anonymous needs none", "", "", "", 0},
		{"missing assertion", "p@x.com", "PATIENT", "", http.StatusUnauthorized},
		{"role escalated", "p@x.com", "ADMIN", token, http.StatusUnauthorized},
		{"assertion for someone else", "p@x.com", "PATIENT", forged, http.StatusUnauthorized},
		{"half identity", "p@x.com", "", token, http.StatusUnauthorized},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/api/patients/1", nil)
			if tc.email != "" {
				req.Header.Set(HeaderUserEmail, tc.email)
			}
			if tc.role != "" {
				req.Header.Set(HeaderUserRole, tc.role)
			}
			if tc.assertion != "" {
				req.Header.Set(HeaderIdentityAssertion, tc.assertion)
			}
			c := e.NewContext(req, httptest.NewRecorder())

			called := false
			err := IdentityMiddleware(a)(func(echo.Context) error {
				called = true
				return nil
			})(c)

			if tc.status == 0 {
				if err != nil || !called {
					t.Errorf("expected pass, got err=%v called=%v", err, called)
				}
				return
			}
			assertHTTPStatus(t, err, tc.status, "")
			if called {
				t.Error("handler must not run")
			}
		})
	}
}

func TestForwardIdentity_ReplacesExisting(t *testing.T) {
	h := http.Header{}
	h.Add(HeaderUserEmail, "spoof@x.com")
	h.Add(HeaderUserRole, "ADMIN")
	if err := ForwardIdentity(h, Principal{Email: "p@x.com", Role: RolePatient}, nil); err != nil {
		t.Fatal(err)
	}
	if v := h.Values(HeaderUserEmail); len(v) != 1 || v[0] != "p@x.com" {
		t.Errorf("email headers = %v", v)
	}
	if v := h.Values(HeaderUserRole); len(v) != 1 || v[0] != "PATIENT" {
		t.Errorf("role headers = %v", v)
	}
	if h.Get(HeaderIdentityAssertion) != "" {
		t.Error("no assertion expected without an asserter")
	}
}
