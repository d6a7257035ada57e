package auth

import (
	"fmt"
	"net/http"
	"strings"
)

// Method-set shorthands accepted in RoleRule.Methods.
const (
	MethodsAny   = "*"
	MethodsWrite = "WRITE"
)

var writeMethods = []string{http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete}

// RoleRule is one row of the coarse role table: requests whose path falls
// under Prefix and whose method is in Methods may only be made by Allow.
type RoleRule struct {
	Name    string   `mapstructure:"name" json:"name"`
	Prefix  string   `mapstructure:"prefix" json:"prefix"`
	Exact   bool     `mapstructure:"exact" json:"exact"`
	Methods []string `mapstructure:"methods" json:"methods"`
	Allow   []string `mapstructure:"allow" json:"allow"`
	// Action completes the deny reason, e.g. "modify patient records".
	Action string `mapstructure:"action" json:"action"`
}

// Policy is the complete static authorization configuration of the edge.
type Policy struct {
	Routes RouteConfig `mapstructure:"routes" json:"routes"`
	Rules  []RoleRule  `mapstructure:"rules" json:"rules"`
}

// DefaultPolicy returns the built-in HMS route and role tables.
func DefaultPolicy() Policy {
	return Policy{
		Routes: DefaultRouteConfig(),
		Rules:  DefaultRoleRules(),
	}
}

// DefaultRoleRules mirrors the role matrix: patients own patient records,
// doctors own doctor and medical records, and only patients (or admins)
// book appointments.
func DefaultRoleRules() []RoleRule {
	return []RoleRule{
		{Name: "patients-read", Prefix: "/api/patients", Methods: []string{http.MethodGet}, Allow: []string{"PATIENT", "DOCTOR", "ADMIN"}, Action: "read patient records"},
		{Name: "patients-write", Prefix: "/api/patients", Methods: []string{MethodsWrite}, Allow: []string{"PATIENT", "ADMIN"}, Action: "modify patient records"},
		{Name: "doctors-read", Prefix: "/api/doctors", Methods: []string{http.MethodGet}, Allow: []string{"PATIENT", "DOCTOR", "ADMIN"}, Action: "read doctor records"},
		{Name: "doctors-write", Prefix: "/api/doctors", Methods: []string{MethodsWrite}, Allow: []string{"DOCTOR", "ADMIN"}, Action: "modify doctor records"},
		{Name: "records-read", Prefix: "/api/medical-records", Methods: []string{http.MethodGet}, Allow: []string{"PATIENT", "DOCTOR", "ADMIN"}, Action: "read medical records"},
		{Name: "records-write", Prefix: "/api/medical-records", Methods: []string{MethodsWrite}, Allow: []string{"DOCTOR", "ADMIN"}, Action: "modify medical records"},
		{Name: "appointments-book", Prefix: "/api/appointments", Exact: true, Methods: []string{http.MethodPost}, Allow: []string{"PATIENT", "ADMIN"}, Action: "book appointments"},
	}
}

// Decision is the outcome of a policy evaluation.
type Decision struct {
	Allowed bool
	Rule    string
	Reason  string
}

type compiledRule struct {
	name    string
	prefix  string
	exact   bool
	methods map[string]bool
	any     bool
	allow   map[Role]bool
	action  string
}

// PolicyEngine is the coarse gate. It only looks at path, method and role;
// resource ownership is left to the services.
type PolicyEngine struct {
	rules []compiledRule
}

// NewPolicyEngine validates and compiles rules. Unknown role names are a
// configuration error.
func NewPolicyEngine(rules []RoleRule) (*PolicyEngine, error) {
	e := &PolicyEngine{rules: make([]compiledRule, 0, len(rules))}
	for _, r := range rules {
		if r.Prefix == "" {
			return nil, fmt.Errorf("auth: rule %q has no prefix", r.Name)
		}
		cr := compiledRule{
			name:    r.Name,
			prefix:  strings.TrimRight(r.Prefix, "/"),
			exact:   r.Exact,
			methods: make(map[string]bool),
			allow:   make(map[Role]bool),
			action:  r.Action,
		}
		if len(r.Methods) == 0 {
			cr.any = true
		}
		for _, m := range r.Methods {
			switch strings.ToUpper(m) {
			case MethodsAny:
				cr.any = true
			case MethodsWrite:
				for _, w := range writeMethods {
					cr.methods[w] = true
				}
			default:
				cr.methods[strings.ToUpper(m)] = true
			}
		}
		for _, name := range r.Allow {
			role, ok := ParseRole(name)
			if !ok {
				return nil, fmt.Errorf("auth: rule %q allows unknown role %q", r.Name, name)
			}
			cr.allow[role] = true
		}
		if cr.action == "" {
			cr.action = "access " + cr.prefix
		}
		e.rules = append(e.rules, cr)
	}
	return e, nil
}

func (r *compiledRule) matches(path, method string) bool {
	if !r.any && !r.methods[method] {
		return false
	}
	if r.exact {
		return strings.TrimRight(path, "/") == r.prefix
	}
	return hasPathPrefix(path, r.prefix)
}

// Authorize evaluates every matching rule; the first rule that does not
// allow role denies the whole request. Requests no rule matches are
// allowed at this layer.
func (e *PolicyEngine) Authorize(path, method string, role Role) Decision {
	for i := range e.rules {
		r := &e.rules[i]
		if !r.matches(path, method) {
			continue
		}
		if !r.allow[role] {
			return Decision{
				Allowed: false,
				Rule:    r.name,
				Reason:  fmt.Sprintf("Access Denied: %s role cannot %s", role, r.action),
			}
		}
	}
	return Decision{Allowed: true}
}
