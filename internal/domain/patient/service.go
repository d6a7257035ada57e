package patient

import (
	"context"
	"net/mail"
	"strings"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/platform/apierr"
	"github.com/hms/hms/internal/platform/auth"
)

// Service applies the patient ownership rules on top of the repository.
type Service struct {
	repo  Repository
	guard *auth.Guard
}

func NewService(repo Repository, guard *auth.Guard) *Service {
	return &Service{repo: repo, guard: guard}
}

func validate(p *Patient) error {
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	if p.FirstName == "" || p.LastName == "" {
		return apierr.Invalid("first_name and last_name are required")
	}
	if _, err := mail.ParseAddress(p.Email); err != nil {
		return apierr.Invalid("a valid email is required")
	}
	if p.Age != nil && (*p.Age < 0 || *p.Age > 150) {
		return apierr.Invalid("age must be between 0 and 150")
	}
	return nil
}

// Create registers a profile. Patients may only create the profile that
// carries their own email; admins may create any.
func (s *Service) Create(ctx context.Context, caller auth.Identity, p *Patient) error {
	if email, ok := caller.Email(); ok && caller.IsPatient() && p.Email == "" {
		p.Email = email
	}
	if err := validate(p); err != nil {
		return err
	}
	if err := s.guard.CheckAccess(ctx, caller, auth.OpCreate, p.Resource()); err != nil {
		return err
	}
	return s.repo.Create(ctx, p)
}

func (s *Service) Get(ctx context.Context, caller auth.Identity, id uuid.UUID) (*Patient, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.guard.CheckAccess(ctx, caller, auth.OpRead, p.Resource()); err != nil {
		return nil, err
	}
	return p, nil
}

// MyProfile returns the profile registered under the caller's email.
func (s *Service) MyProfile(ctx context.Context, caller auth.Identity) (*Patient, error) {
	email, ok := caller.Email()
	if !ok {
		return nil, auth.ErrMissingIdentity
	}
	return s.repo.GetByEmail(ctx, email)
}

func (s *Service) List(ctx context.Context, caller auth.Identity, limit, offset int) ([]*Patient, int, error) {
	if err := s.guard.CheckAccess(ctx, caller, auth.OpList, auth.Resource{Kind: auth.KindPatient}); err != nil {
		return nil, 0, err
	}
	return s.repo.List(ctx, limit, offset)
}

// Search finds patients by first or last name. Admins and doctors only.
func (s *Service) Search(ctx context.Context, caller auth.Identity, name string, limit, offset int) ([]*Patient, int, error) {
	if caller.Anonymous() {
		return nil, 0, auth.ErrMissingIdentity
	}
	if !caller.IsAdmin() && !caller.IsDoctor() {
		return nil, 0, auth.Forbidden("Access Denied: Only doctors and admins can search patients.")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, 0, apierr.Invalid("name is required")
	}
	return s.repo.SearchByName(ctx, name, limit, offset)
}

// Update replaces the mutable fields of a profile. Only admins may move a
// profile to another email, since the email decides ownership.
func (s *Service) Update(ctx context.Context, caller auth.Identity, p *Patient) error {
	existing, err := s.repo.GetByID(ctx, p.ID)
	if err != nil {
		return err
	}
	if err := s.guard.CheckAccess(ctx, caller, auth.OpUpdate, existing.Resource()); err != nil {
		return err
	}
	if p.Email == "" || !caller.IsAdmin() {
		p.Email = existing.Email
	}
	if err := validate(p); err != nil {
		return err
	}
	return s.repo.Update(ctx, p)
}

func (s *Service) Delete(ctx context.Context, caller auth.Identity, id uuid.UUID) error {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.guard.CheckAccess(ctx, caller, auth.OpDelete, p.Resource()); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}
