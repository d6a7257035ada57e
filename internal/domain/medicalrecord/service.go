package medicalrecord

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hms/hms/internal/platform/apierr"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/lookup"
)

// ProfileFetcher reads a patient or doctor profile from its owning service.
type ProfileFetcher interface {
	Fetch(ctx context.Context, id string) (lookup.Profile, error)
}

type Service struct {
	repo     Repository
	guard    *auth.Guard
	patients ProfileFetcher
	doctors  ProfileFetcher
}

func NewService(repo Repository, guard *auth.Guard, patients, doctors ProfileFetcher) *Service {
	return &Service{repo: repo, guard: guard, patients: patients, doctors: doctors}
}

func validate(m *MedicalRecord) error {
	if m.AppointmentID == uuid.Nil || m.PatientID == uuid.Nil || m.DoctorID == uuid.Nil {
		return apierr.Invalid("appointment_id, patient_id and doctor_id are required")
	}
	m.Diagnosis = strings.TrimSpace(m.Diagnosis)
	if m.Diagnosis == "" {
		return apierr.Invalid("diagnosis is required")
	}
	if m.Prescription != nil && len(*m.Prescription) > maxPrescriptionLen {
		return apierr.Invalid("prescription must be at most %d characters", maxPrescriptionLen)
	}
	return nil
}

// Create stores a record written by the doctor named in it. Nothing about
// existing records is revealed before the ownership check passes; after it,
// the patient, the doctor and the one-record-per-appointment rule are
// checked concurrently and reported in that order.
func (s *Service) Create(ctx context.Context, caller auth.Identity, m *MedicalRecord) error {
	if _, ok := caller.Principal(); !ok {
		return auth.ErrMissingIdentity
	}
	if err := validate(m); err != nil {
		return err
	}
	if err := s.guard.CheckAccess(ctx, caller, auth.OpCreate, m.Resource()); err != nil {
		return err
	}

	var (
		patientErr, doctorErr, dupErr error
		g                             errgroup.Group
	)
	g.Go(func() error {
		_, patientErr = s.patients.Fetch(ctx, m.PatientID.String())
		return nil
	})
	g.Go(func() error {
		_, doctorErr = s.doctors.Fetch(ctx, m.DoctorID.String())
		return nil
	})
	g.Go(func() error {
		_, err := s.repo.GetByAppointment(ctx, m.AppointmentID)
		switch {
		case err == nil:
			dupErr = apierr.Conflict("a medical record already exists for appointment %s", m.AppointmentID)
		case !errors.Is(err, apierr.ErrNotFound):
			dupErr = err
		}
		return nil
	})
	_ = g.Wait()
	for _, err := range []error{patientErr, doctorErr, dupErr} {
		if err != nil {
			return err
		}
	}
	return s.repo.Create(ctx, m)
}

func (s *Service) Get(ctx context.Context, caller auth.Identity, id uuid.UUID) (*MedicalRecord, error) {
	m, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.guard.CheckAccess(ctx, caller, auth.OpRead, m.Resource()); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Service) GetByAppointment(ctx context.Context, caller auth.Identity, appointmentID uuid.UUID) (*MedicalRecord, error) {
	m, err := s.repo.GetByAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.CheckAccess(ctx, caller, auth.OpRead, m.Resource()); err != nil {
		return nil, err
	}
	return m, nil
}

// PatientHistory lists every record of one patient, newest first.
func (s *Service) PatientHistory(ctx context.Context, caller auth.Identity, patientID uuid.UUID, limit, offset int) ([]*MedicalRecord, int, error) {
	res := auth.Resource{
		Kind:   auth.KindPatientHistory,
		Owners: []auth.Owner{{Side: auth.SidePatient, ID: patientID.String()}},
	}
	if err := s.guard.CheckAccess(ctx, caller, auth.OpRead, res); err != nil {
		return nil, 0, err
	}
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

// DoctorRecords lists the records a doctor wrote.
func (s *Service) DoctorRecords(ctx context.Context, caller auth.Identity, doctorID uuid.UUID, limit, offset int) ([]*MedicalRecord, int, error) {
	res := auth.Resource{
		Kind:   auth.KindMedicalRecord,
		Owners: []auth.Owner{{Side: auth.SideDoctor, ID: doctorID.String()}},
	}
	if err := s.guard.CheckAccess(ctx, caller, auth.OpRead, res); err != nil {
		return nil, 0, err
	}
	return s.repo.ListByDoctor(ctx, doctorID, limit, offset)
}

func (s *Service) Update(ctx context.Context, caller auth.Identity, id uuid.UUID, req UpdateRequest) (*MedicalRecord, error) {
	m, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.guard.CheckAccess(ctx, caller, auth.OpUpdate, m.Resource()); err != nil {
		return nil, err
	}
	if req.Diagnosis != nil {
		m.Diagnosis = *req.Diagnosis
	}
	if req.Prescription != nil {
		m.Prescription = req.Prescription
	}
	if req.DoctorNotes != nil {
		m.DoctorNotes = req.DoctorNotes
	}
	if err := validate(m); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Delete is reserved for admins; no role holds a delete grant on records.
func (s *Service) Delete(ctx context.Context, caller auth.Identity, id uuid.UUID) error {
	m, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.guard.CheckAccess(ctx, caller, auth.OpDelete, m.Resource()); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}
