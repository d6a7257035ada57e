package auth

import (
	"net/http"
	"strings"
	"testing"
)

func newTestPolicy(t *testing.T) *PolicyEngine {
	t.Helper()
	e, err := NewPolicyEngine(DefaultRoleRules())
	if err != nil {
		t.Fatalf("NewPolicyEngine: %v", err)
	}
	return e
}

func TestPolicyEngine_RoleMatrix(t *testing.T) {
	e := newTestPolicy(t)

	type row struct {
		method string
		path   string
		allow  map[Role]bool
	}
	all := map[Role]bool{RolePatient: true, RoleDoctor: true, RoleAdmin: true}
	rows := []row{
		{http.MethodGet, "/api/patients/1", all},
		{http.MethodPost, "/api/patients", map[Role]bool{RolePatient: true, RoleAdmin: true}},
		{http.MethodPut, "/api/patients/1", map[Role]bool{RolePatient: true, RoleAdmin: true}},
		{http.MethodDelete, "/api/patients/1", map[Role]bool{RolePatient: true, RoleAdmin: true}},
		{http.MethodGet, "/api/doctors/1", all},
		{http.MethodPost, "/api/doctors", map[Role]bool{RoleDoctor: true, RoleAdmin: true}},
		{http.MethodPut, "/api/doctors/my-profile", map[Role]bool{RoleDoctor: true, RoleAdmin: true}},
		{http.MethodGet, "/api/medical-records/9", all},
		{http.MethodPost, "/api/medical-records", map[Role]bool{RoleDoctor: true, RoleAdmin: true}},
		{http.MethodPatch, "/api/medical-records/9", map[Role]bool{RoleDoctor: true, RoleAdmin: true}},
		{http.MethodPost, "/api/appointments", map[Role]bool{RolePatient: true, RoleAdmin: true}},
		// Only the exact booking path is role-restricted.
		{http.MethodPut, "/api/appointments/5/status", all},
		{http.MethodGet, "/api/appointments/5", all},
		// Unmatched paths are left to the services.
		{http.MethodGet, "/api/users", all},
	}

	for _, r := range rows {
		for _, role := range []Role{RolePatient, RoleDoctor, RoleAdmin} {
			d := e.Authorize(r.path, r.method, role)
			if d.Allowed != r.allow[role] {
				t.Errorf("%s %s as %s: allowed=%v, want %v", r.method, r.path, role, d.Allowed, r.allow[role])
			}
		}
	}
}

func TestPolicyEngine_DenyReason(t *testing.T) {
	e := newTestPolicy(t)
	d := e.Authorize("/api/patients/3", http.MethodPut, RoleDoctor)
	if d.Allowed {
		t.Fatal("expected deny")
	}
	if d.Rule != "patients-write" {
		t.Errorf("expected rule patients-write, got %s", d.Rule)
	}
	if !strings.HasPrefix(d.Reason, "Access Denied") || !strings.Contains(d.Reason, "DOCTOR") {
		t.Errorf("unexpected reason %q", d.Reason)
	}
}

// When several rules match, one denial is enough.
func TestPolicyEngine_DenyOverridesAllow(t *testing.T) {
	e, err := NewPolicyEngine([]RoleRule{
		{Name: "broad", Prefix: "/api", Methods: []string{MethodsAny}, Allow: []string{"PATIENT", "DOCTOR", "ADMIN"}},
		{Name: "narrow", Prefix: "/api/admin", Allow: []string{"ADMIN"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if d := e.Authorize("/api/admin/users", http.MethodGet, RoleDoctor); d.Allowed || d.Rule != "narrow" {
		t.Errorf("expected narrow rule to deny, got %+v", d)
	}
	if d := e.Authorize("/api/admin/users", http.MethodGet, RoleAdmin); !d.Allowed {
		t.Errorf("expected admin allowed, got %+v", d)
	}
}

func TestPolicyEngine_AdminAllowedOnDefaults(t *testing.T) {
	e := newTestPolicy(t)
	methods := []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete}
	for _, rule := range DefaultRoleRules() {
		for _, m := range methods {
			if d := e.Authorize(rule.Prefix, m, RoleAdmin); !d.Allowed {
				t.Errorf("admin denied on %s %s: %s", m, rule.Prefix, d.Reason)
			}
		}
	}
}

func TestNewPolicyEngine_Validation(t *testing.T) {
	if _, err := NewPolicyEngine([]RoleRule{{Name: "x", Prefix: "/a", Allow: []string{"NURSE"}}}); err == nil {
		t.Error("expected error for unknown role")
	}
	if _, err := NewPolicyEngine([]RoleRule{{Name: "x", Allow: []string{"ADMIN"}}}); err == nil {
		t.Error("expected error for empty prefix")
	}
}
