package auth

import "strings"

// Role is the closed set of roles a principal can hold.
type Role string

const (
	RolePatient Role = "PATIENT"
	RoleDoctor  Role = "DOCTOR"
	RoleAdmin   Role = "ADMIN"
)

// ParseRole returns the role named by s. Matching is case-insensitive so
// tokens issued with lower-case role claims still verify; anything outside
// the enumeration is rejected.
func ParseRole(s string) (Role, bool) {
	switch Role(strings.ToUpper(strings.TrimSpace(s))) {
	case RolePatient:
		return RolePatient, true
	case RoleDoctor:
		return RoleDoctor, true
	case RoleAdmin:
		return RoleAdmin, true
	}
	return "", false
}

func (r Role) String() string { return string(r) }

// Principal is the verified identity of the caller for one request.
type Principal struct {
	Email string `json:"email"`
	Role  Role   `json:"role"`
}
