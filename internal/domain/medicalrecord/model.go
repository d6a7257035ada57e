package medicalrecord

import (
	"time"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/platform/auth"
)

const maxPrescriptionLen = 2000

// MedicalRecord is a doctor's findings for one appointment.
type MedicalRecord struct {
	ID            uuid.UUID `json:"id"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	PatientID     uuid.UUID `json:"patient_id"`
	DoctorID      uuid.UUID `json:"doctor_id"`
	Diagnosis     string    `json:"diagnosis"`
	Prescription  *string   `json:"prescription,omitempty"`
	DoctorNotes   *string   `json:"doctor_notes,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Resource describes the record to the ownership guard. Both sides are
// resolved through the owning services.
func (m *MedicalRecord) Resource() auth.Resource {
	return auth.Resource{
		Kind: auth.KindMedicalRecord,
		Owners: []auth.Owner{
			{Side: auth.SidePatient, ID: m.PatientID.String()},
			{Side: auth.SideDoctor, ID: m.DoctorID.String()},
		},
	}
}

type UpdateRequest struct {
	Diagnosis    *string `json:"diagnosis,omitempty"`
	Prescription *string `json:"prescription,omitempty"`
	DoctorNotes  *string `json:"doctor_notes,omitempty"`
}
