package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/hms/hms/internal/platform/apierr"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/lookup"
)

// ProfileFetcher reads a patient or doctor profile from its owning service.
// *lookup.Client implements it.
type ProfileFetcher interface {
	Fetch(ctx context.Context, id string) (lookup.Profile, error)
}

type Service struct {
	repo     Repository
	guard    *auth.Guard
	patients ProfileFetcher
	doctors  ProfileFetcher
	notifier Notifier
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, guard *auth.Guard, patients, doctors ProfileFetcher, notifier Notifier, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		guard:    guard,
		patients: patients,
		doctors:  doctors,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// Book creates an appointment. The patient and doctor are looked up
// concurrently; the patient lookup runs as the caller, so a patient can
// only see, and therefore book for, their own profile.
func (s *Service) Book(ctx context.Context, caller auth.Identity, req BookingRequest) (*Appointment, error) {
	if _, ok := caller.Principal(); !ok {
		return nil, auth.ErrMissingIdentity
	}
	if req.PatientID == uuid.Nil || req.DoctorID == uuid.Nil {
		return nil, apierr.Invalid("patient_id and doctor_id are required")
	}
	if req.AppointmentTime.IsZero() {
		return nil, apierr.Invalid("appointment_time is required")
	}
	if !req.AppointmentTime.After(s.now()) {
		return nil, apierr.Invalid("appointment_time must be in the future")
	}

	// Both lookups always finish; the patient outcome is reported first so
	// a booking for someone else is refused the same way every time.
	var (
		patient, doctor       lookup.Profile
		patientErr, doctorErr error
		g                     errgroup.Group
	)
	g.Go(func() error {
		patient, patientErr = s.patients.Fetch(ctx, req.PatientID.String())
		return nil
	})
	g.Go(func() error {
		doctor, doctorErr = s.doctors.Fetch(ctx, req.DoctorID.String())
		return nil
	})
	_ = g.Wait()
	if errors.Is(patientErr, auth.ErrFineDenied) {
		return nil, auth.Forbidden("Access Denied: You cannot book appointments for others.")
	}
	if patientErr != nil {
		return nil, patientErr
	}
	if doctorErr != nil {
		return nil, doctorErr
	}

	a := &Appointment{
		PatientID:       req.PatientID,
		PatientEmail:    patient.Email,
		DoctorID:        req.DoctorID,
		AppointmentTime: req.AppointmentTime.UTC(),
		ReasonForVisit:  req.ReasonForVisit,
		Status:          StatusScheduled,
	}
	if err := s.guard.CheckAccess(ctx, caller, auth.OpCreate, a.Resource()); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, err
	}

	s.notify(ctx, EventBooked, a, fmt.Sprintf("Hello %s, your appointment with Dr. %s on %s is confirmed!",
		patient.DisplayName(), doctor.DisplayName(), a.AppointmentTime.Format(time.RFC1123)))
	return a, nil
}

func (s *Service) Get(ctx context.Context, caller auth.Identity, id uuid.UUID) (*Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.guard.CheckAccess(ctx, caller, auth.OpRead, a.Resource()); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) List(ctx context.Context, caller auth.Identity, limit, offset int) ([]*Appointment, int, error) {
	if err := s.guard.CheckAccess(ctx, caller, auth.OpList, auth.Resource{Kind: auth.KindAppointment}); err != nil {
		return nil, 0, err
	}
	return s.repo.List(ctx, limit, offset)
}

// ListByPatient returns one patient's appointments to that patient or an
// admin. Doctors have no patient side and are denied.
func (s *Service) ListByPatient(ctx context.Context, caller auth.Identity, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	res := auth.Resource{
		Kind:   auth.KindAppointment,
		Owners: []auth.Owner{{Side: auth.SidePatient, ID: patientID.String()}},
	}
	if err := s.guard.CheckAccess(ctx, caller, auth.OpRead, res); err != nil {
		return nil, 0, err
	}
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

// ListByDoctor returns a doctor's schedule to that doctor or an admin.
func (s *Service) ListByDoctor(ctx context.Context, caller auth.Identity, doctorID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	res := auth.Resource{
		Kind:   auth.KindAppointment,
		Owners: []auth.Owner{{Side: auth.SideDoctor, ID: doctorID.String()}},
	}
	if err := s.guard.CheckAccess(ctx, caller, auth.OpRead, res); err != nil {
		return nil, 0, err
	}
	return s.repo.ListByDoctor(ctx, doctorID, limit, offset)
}

// Update applies the set fields of req. A request that changes nothing
// returns the appointment untouched and sends no notification.
func (s *Service) Update(ctx context.Context, caller auth.Identity, id uuid.UUID, req UpdateRequest) (*Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.guard.CheckAccess(ctx, caller, auth.OpUpdate, a.Resource()); err != nil {
		return nil, err
	}
	if a.Status == StatusCancelled {
		return nil, apierr.Conflict("appointment %s is cancelled", id)
	}

	doctorChanged := req.DoctorID != nil && *req.DoctorID != a.DoctorID
	timeChanged := req.AppointmentTime != nil && !req.AppointmentTime.Equal(a.AppointmentTime)
	reasonChanged := req.ReasonForVisit != nil && (a.ReasonForVisit == nil || *req.ReasonForVisit != *a.ReasonForVisit)
	if !doctorChanged && !timeChanged && !reasonChanged {
		return a, nil
	}

	if timeChanged {
		if !req.AppointmentTime.After(s.now()) {
			return nil, apierr.Invalid("appointment_time must be in the future")
		}
		a.AppointmentTime = req.AppointmentTime.UTC()
	}
	if reasonChanged {
		a.ReasonForVisit = req.ReasonForVisit
	}
	if doctorChanged {
		a.DoctorID = *req.DoctorID
	}

	doctor, err := s.doctors.Fetch(ctx, a.DoctorID.String())
	if err != nil && doctorChanged {
		return nil, err
	}
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, err
	}

	msg := fmt.Sprintf("Your appointment has been updated. Scheduled time: %s.", a.AppointmentTime.Format(time.RFC1123))
	if name := doctor.DisplayName(); name != "" {
		msg = fmt.Sprintf("Your appointment has been updated with Dr. %s. Scheduled time: %s.", name, a.AppointmentTime.Format(time.RFC1123))
	}
	s.notify(ctx, EventUpdated, a, msg)
	return a, nil
}

// Cancel marks the appointment cancelled. Cancelling twice is a no-op.
func (s *Service) Cancel(ctx context.Context, caller auth.Identity, id uuid.UUID) (*Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.guard.CheckAccess(ctx, caller, auth.OpUpdate, a.Resource()); err != nil {
		return nil, err
	}
	if a.Status == StatusCancelled {
		return a, nil
	}
	a.Status = StatusCancelled
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, err
	}
	s.notify(ctx, EventCancelled, a, fmt.Sprintf("Your appointment on %s has been cancelled.", a.AppointmentTime.Format(time.RFC1123)))
	return a, nil
}

func (s *Service) notify(ctx context.Context, t EventType, a *Appointment, msg string) {
	if s.notifier == nil {
		return
	}
	err := s.notifier.Notify(ctx, Event{
		Type:          t,
		AppointmentID: a.ID,
		PatientEmail:  a.PatientEmail,
		Message:       msg,
		OccurredAt:    s.now().UTC(),
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("appointment_id", a.ID.String()).Msg("appointment notification failed")
	}
}
