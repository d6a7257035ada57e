package doctor

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/platform/apierr"
	"github.com/hms/hms/internal/platform/auth"
)

type Service struct {
	repo  Repository
	guard *auth.Guard
}

func NewService(repo Repository, guard *auth.Guard) *Service {
	return &Service{repo: repo, guard: guard}
}

func validate(d *Doctor) error {
	d.Name = strings.TrimSpace(d.Name)
	d.Specialization = strings.TrimSpace(d.Specialization)
	if d.Name == "" || d.Specialization == "" {
		return apierr.Invalid("name and specialization are required")
	}
	if _, err := mail.ParseAddress(d.Email); err != nil {
		return apierr.Invalid("a valid email is required")
	}
	if d.ConsultationFee < 0 {
		return apierr.Invalid("consultation_fee must not be negative")
	}
	return nil
}

// CreateMyProfile registers the caller's doctor profile. Doctors always get
// their own email; admins create profiles for any email.
func (s *Service) CreateMyProfile(ctx context.Context, caller auth.Identity, d *Doctor) error {
	if email, ok := caller.Email(); ok && caller.IsDoctor() && d.Email == "" {
		d.Email = email
	}
	if err := validate(d); err != nil {
		return err
	}
	if err := s.guard.CheckAccess(ctx, caller, auth.OpCreate, d.Resource()); err != nil {
		return err
	}
	if existing, err := s.repo.GetByEmail(ctx, d.Email); err == nil && existing != nil {
		return apierr.Conflict("a doctor profile already exists for %s", d.Email)
	} else if err != nil && !errors.Is(err, apierr.ErrNotFound) {
		return err
	}
	d.IsAvailable = true
	return s.repo.Create(ctx, d)
}

func (s *Service) MyProfile(ctx context.Context, caller auth.Identity) (*Doctor, error) {
	email, ok := caller.Email()
	if !ok {
		return nil, auth.ErrMissingIdentity
	}
	return s.repo.GetByEmail(ctx, email)
}

// Get returns the full profile to its owner and to admins. Everyone else,
// anonymous callers included, gets the public view.
func (s *Service) Get(ctx context.Context, caller auth.Identity, id uuid.UUID) (any, error) {
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	err = s.guard.CheckAccess(ctx, caller, auth.OpRead, d.Resource())
	switch {
	case err == nil:
		return d, nil
	case errors.Is(err, auth.ErrMissingIdentity), errors.Is(err, auth.ErrFineDenied):
		return d.Public(), nil
	}
	return nil, err
}

func (s *Service) List(ctx context.Context, caller auth.Identity, limit, offset int) ([]*Doctor, int, error) {
	if err := s.guard.CheckAccess(ctx, caller, auth.OpList, auth.Resource{Kind: auth.KindDoctor}); err != nil {
		return nil, 0, err
	}
	return s.repo.List(ctx, limit, offset)
}

// Search is the public directory: it only ever returns public views.
func (s *Service) Search(ctx context.Context, f Filter, limit, offset int) ([]PublicDoctor, int, error) {
	f.Specialization = strings.TrimSpace(f.Specialization)
	items, total, err := s.repo.Search(ctx, f, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	out := make([]PublicDoctor, 0, len(items))
	for _, d := range items {
		out = append(out, d.Public())
	}
	return out, total, nil
}

// Update replaces a profile. The owning email only changes by admin action.
func (s *Service) Update(ctx context.Context, caller auth.Identity, d *Doctor) error {
	existing, err := s.repo.GetByID(ctx, d.ID)
	if err != nil {
		return err
	}
	if err := s.guard.CheckAccess(ctx, caller, auth.OpUpdate, existing.Resource()); err != nil {
		return err
	}
	if d.Email == "" || !caller.IsAdmin() {
		d.Email = existing.Email
	}
	if err := validate(d); err != nil {
		return err
	}
	return s.repo.Update(ctx, d)
}

func (s *Service) SetAvailability(ctx context.Context, caller auth.Identity, id uuid.UUID, available bool) (*Doctor, error) {
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.guard.CheckAccess(ctx, caller, auth.OpUpdate, d.Resource()); err != nil {
		return nil, err
	}
	if err := s.repo.SetAvailability(ctx, id, available); err != nil {
		return nil, err
	}
	d.IsAvailable = available
	return d, nil
}

func (s *Service) Delete(ctx context.Context, caller auth.Identity, id uuid.UUID) error {
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.guard.CheckAccess(ctx, caller, auth.OpDelete, d.Resource()); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}
