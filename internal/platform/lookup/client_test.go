package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/middleware"
)

type observed struct {
	mu       sync.Mutex
	outcomes []string
}

func (o *observed) observe(kind, outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, kind+":"+outcome)
}

func newTestClient(t *testing.T, h http.HandlerFunc, asserter *auth.Asserter) (*Client, *observed) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	obs := &observed{}
	c, err := NewClient(Config{
		BaseURL:  srv.URL,
		Resource: "patients",
		Kind:     auth.KindPatient,
		Timeout:  time.Second,
		Asserter: asserter,
		Observe:  obs.observe,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c, obs
}

func callerCtx(email string, role auth.Role) context.Context {
	ctx := auth.WithIdentity(context.Background(), auth.NewIdentity(auth.Principal{Email: email, Role: role}))
	return middleware.WithRequestID(ctx, "req-1")
}

func TestClient_Fetch_ForwardsIdentity(t *testing.T) {
	var got http.Header
	var path string
	c, obs := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		path = r.URL.Path
		json.NewEncoder(w).Encode(map[string]string{"id": "p1", "email": "pat@x.io", "first_name": "Ada", "last_name": "Byron"})
	}, nil)

	p, err := c.Fetch(callerCtx("pat@x.io", auth.RolePatient), "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Email != "pat@x.io" || p.DisplayName() != "Ada Byron" {
		t.Errorf("unexpected profile %+v", p)
	}
	if path != "/api/patients/p1" {
		t.Errorf("expected /api/patients/p1, got %s", path)
	}
	if got.Get(auth.HeaderUserEmail) != "pat@x.io" || got.Get(auth.HeaderUserRole) != "PATIENT" {
		t.Errorf("identity not forwarded: %v", got)
	}
	if got.Get(middleware.RequestIDHeader) != "req-1" {
		t.Errorf("request id not forwarded: %q", got.Get(middleware.RequestIDHeader))
	}
	if got.Get(auth.HeaderIdentityAssertion) != "" {
		t.Error("no assertion expected without an asserter")
	}
	if len(obs.outcomes) != 1 || obs.outcomes[0] != "patient:ok" {
		t.Errorf("unexpected observations %v", obs.outcomes)
	}
}

func TestClient_Fetch_SignsAssertion(t *testing.T) {
	asserter := auth.NewAsserter([]byte("internal-assertion-key-0123456789"))
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		p := auth.Principal{Email: r.Header.Get(auth.HeaderUserEmail), Role: auth.RoleDoctor}
		if err := asserter.Check(r.Header.Get(auth.HeaderIdentityAssertion), p); err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"id": "p1", "email": "pat@x.io"})
	}, asserter)

	if _, err := c.Fetch(callerCtx("doc@x.io", auth.RoleDoctor), "p1"); err != nil {
		t.Fatalf("expected assertion to be accepted, got %v", err)
	}
}

func TestClient_Fetch_StatusMapping(t *testing.T) {
	tests := []struct {
		status  int
		want    error
		outcome string
	}{
		{http.StatusUnauthorized, auth.ErrFineDenied, OutcomeDenied},
		{http.StatusForbidden, auth.ErrFineDenied, OutcomeDenied},
		{http.StatusNotFound, auth.ErrOwnerNotFound, OutcomeNotFound},
		{http.StatusInternalServerError, auth.ErrDependencyUnavailable, OutcomeError},
		{http.StatusBadGateway, auth.ErrDependencyUnavailable, OutcomeError},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c, obs := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}, nil)
			_, err := c.Fetch(callerCtx("pat@x.io", auth.RolePatient), "p1")
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			if obs.outcomes[0] != "patient:"+tt.outcome {
				t.Errorf("expected outcome %s, got %v", tt.outcome, obs.outcomes)
			}
		})
	}
}

func TestClient_Fetch_BadBody(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}, nil)
	_, err := c.Fetch(callerCtx("pat@x.io", auth.RolePatient), "p1")
	if !errors.Is(err, auth.ErrDependencyUnavailable) {
		t.Errorf("expected dependency error, got %v", err)
	}
}

func TestClient_Fetch_Timeout(t *testing.T) {
	release := make(chan struct{})
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, nil)
	defer close(release)
	c.timeout = 20 * time.Millisecond

	_, err := c.Fetch(callerCtx("pat@x.io", auth.RolePatient), "p1")
	if !errors.Is(err, auth.ErrDependencyUnavailable) {
		t.Errorf("expected dependency error on timeout, got %v", err)
	}
}

func TestClient_Fetch_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c, err := NewClient(Config{BaseURL: base, Resource: "doctors", Kind: auth.KindDoctor})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.ResolveOwner(callerCtx("doc@x.io", auth.RoleDoctor), "d1"); !errors.Is(err, auth.ErrDependencyUnavailable) {
		t.Errorf("expected dependency error, got %v", err)
	}
}

func TestClient_ResolveOwner_PublicView(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"id": "d1", "name": "Dr. House"})
	}, nil)
	email, err := c.ResolveOwner(callerCtx("doc@x.io", auth.RoleDoctor), "d1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if email != "" {
		t.Errorf("public view must not yield an email, got %q", email)
	}
}

func TestClient_GuardIntegration(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(auth.HeaderUserEmail) != "pat@x.io" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"id": "p1", "email": "pat@x.io"})
	}, nil)
	guard := auth.NewGuard(auth.MedicalRecordPolicy(c, nil))
	res := auth.Resource{Kind: auth.KindMedicalRecord, Owners: []auth.Owner{{Side: auth.SidePatient, ID: "p1"}}}

	owner := auth.NewIdentity(auth.Principal{Email: "pat@x.io", Role: auth.RolePatient})
	if err := guard.CheckAccess(auth.WithIdentity(context.Background(), owner), owner, auth.OpRead, res); err != nil {
		t.Errorf("owner should read: %v", err)
	}

	other := auth.NewIdentity(auth.Principal{Email: "eve@x.io", Role: auth.RolePatient})
	err := guard.CheckAccess(auth.WithIdentity(context.Background(), other), other, auth.OpRead, res)
	if !errors.Is(err, auth.ErrFineDenied) {
		t.Errorf("expected fine denial, got %v", err)
	}
}

func TestNewClient_Validation(t *testing.T) {
	if _, err := NewClient(Config{Resource: "patients"}); err == nil {
		t.Error("expected error for missing base url")
	}
	if _, err := NewClient(Config{BaseURL: "not a url", Resource: "patients"}); err == nil {
		t.Error("expected error for invalid base url")
	}
	if _, err := NewClient(Config{BaseURL: "http://svc"}); err == nil {
		t.Error("expected error for missing resource")
	}
}
