package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/rs/zerolog"
)

// Operation is what the caller wants to do with a resource.
type Operation string

const (
	OpCreate Operation = "create"
	OpRead   Operation = "read"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
	// OpList is a read of a whole collection. It is reserved for admins.
	OpList Operation = "list"
)

// Side names which party of a resource an owner is.
type Side string

const (
	SidePatient Side = "patient"
	SideDoctor  Side = "doctor"
)

// OwnerResolver maps the ID of an owning profile to its email. One
// implementation exists per profile kind; it may call another service.
type OwnerResolver interface {
	ResolveOwner(ctx context.Context, id string) (string, error)
}

// OwnerResolverFunc adapts a function to OwnerResolver.
type OwnerResolverFunc func(ctx context.Context, id string) (string, error)

func (f OwnerResolverFunc) ResolveOwner(ctx context.Context, id string) (string, error) {
	return f(ctx, id)
}

// Owner is one owning side of a resource. Email is used when the resource
// stores it; otherwise ID is resolved through the side's OwnerResolver.
type Owner struct {
	Side  Side
	Email string
	ID    string
}

// Resource describes the instance an operation targets.
type Resource struct {
	Kind   string
	Owners []Owner
}

// Grant lets a role perform Ops. With a Side, the caller must own that side
// of the resource; without one the grant is unconditional.
type Grant struct {
	Ops      []Operation
	Side     Side
	Mismatch string
}

// KindPolicy is the ownership policy of one resource kind.
type KindPolicy struct {
	Kind      string
	Grants    map[Role][]Grant
	Resolvers map[Side]OwnerResolver
}

// Guard is the fine gate shared by every internal service. Policies are
// fixed at construction.
type Guard struct {
	kinds      map[string]KindPolicy
	onDecision func(kind, result string)
	logger     zerolog.Logger
}

// NewGuard builds a guard over the given kind policies.
func NewGuard(policies ...KindPolicy) *Guard {
	g := &Guard{kinds: make(map[string]KindPolicy, len(policies)), logger: zerolog.Nop()}
	for _, p := range policies {
		g.kinds[p.Kind] = p
	}
	return g
}

// OnDecision registers an observer for every decision; result is one of
// "allow", "deny", "unavailable", "not_found" or "unauthenticated".
func (g *Guard) OnDecision(fn func(kind, result string)) *Guard {
	g.onDecision = fn
	return g
}

// WithLogger sets the logger that receives every refused decision at debug
// level.
func (g *Guard) WithLogger(l zerolog.Logger) *Guard {
	g.logger = l
	return g
}

// CheckAccess returns nil when id may perform op on res. Admins are always
// allowed. Owner lookups that fail surface as ErrDependencyUnavailable, never
// as an allow or a plain denial.
func (g *Guard) CheckAccess(ctx context.Context, id Identity, op Operation, res Resource) error {
	err := g.check(ctx, id, op, res)
	result := decisionLabel(err)
	if g.onDecision != nil {
		g.onDecision(res.Kind, result)
	}
	if err != nil {
		ev := g.logger.Debug().
			Str("kind", res.Kind).
			Str("op", string(op)).
			Str("result", result)
		if p, ok := id.Principal(); ok {
			ev = ev.Str("role", string(p.Role))
		}
		ev.Err(err).Msg("ownership check refused")
	}
	return err
}

func (g *Guard) check(ctx context.Context, id Identity, op Operation, res Resource) error {
	p, ok := id.Principal()
	if !ok {
		return ErrMissingIdentity
	}
	if p.Role == RoleAdmin {
		return nil
	}
	if op == OpList {
		return Forbidden(fmt.Sprintf("Access Denied: Only admins can list all %s resources.", res.Kind))
	}

	kp, ok := g.kinds[res.Kind]
	if !ok {
		return Forbidden(fmt.Sprintf("Access Denied: no ownership policy for %s.", res.Kind))
	}

	var grant *Grant
	for i, gr := range kp.Grants[p.Role] {
		if slices.Contains(gr.Ops, op) {
			grant = &kp.Grants[p.Role][i]
			break
		}
	}
	if grant == nil {
		return Forbidden(fmt.Sprintf("Access Denied: %s role cannot %s %s resources.", p.Role, op, res.Kind))
	}
	if grant.Side == "" {
		return nil
	}

	owner, ok := ownerOn(res.Owners, grant.Side)
	if !ok {
		return Forbidden(mismatchReason(grant, res.Kind))
	}

	email := owner.Email
	if email == "" && owner.ID != "" {
		resolver := kp.Resolvers[grant.Side]
		if resolver == nil {
			return DependencyError(string(grant.Side), errors.New("no resolver configured"))
		}
		resolved, err := resolver.ResolveOwner(ctx, owner.ID)
		if err != nil {
			var denied *DeniedError
			switch {
			case errors.As(err, &denied):
				return Forbidden(mismatchReason(grant, res.Kind))
			case errors.Is(err, ErrOwnerNotFound), errors.Is(err, ErrDependencyUnavailable):
				return err
			}
			return DependencyError(string(grant.Side), err)
		}
		email = resolved
	}

	if email == "" || email != p.Email {
		return Forbidden(mismatchReason(grant, res.Kind))
	}
	return nil
}

func ownerOn(owners []Owner, side Side) (Owner, bool) {
	for _, o := range owners {
		if o.Side == side {
			return o, true
		}
	}
	return Owner{}, false
}

func mismatchReason(g *Grant, kind string) string {
	if g.Mismatch != "" {
		return g.Mismatch
	}
	return fmt.Sprintf("Access Denied: This %s does not belong to you.", kind)
}

func decisionLabel(err error) string {
	switch {
	case err == nil:
		return "allow"
	case errors.Is(err, ErrMissingIdentity):
		return "unauthenticated"
	case errors.Is(err, ErrDependencyUnavailable):
		return "unavailable"
	case errors.Is(err, ErrOwnerNotFound):
		return "not_found"
	}
	return "deny"
}
