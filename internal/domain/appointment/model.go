package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/platform/auth"
)

type Status string

const (
	StatusScheduled Status = "SCHEDULED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// Appointment links a patient and a doctor. PatientEmail is captured at
// booking time and decides ownership of the patient side; it is never
// returned to clients.
type Appointment struct {
	ID              uuid.UUID `json:"id"`
	PatientID       uuid.UUID `json:"patient_id"`
	PatientEmail    string    `json:"-"`
	DoctorID        uuid.UUID `json:"doctor_id"`
	AppointmentTime time.Time `json:"appointment_time"`
	ReasonForVisit  *string   `json:"reason_for_visit,omitempty"`
	Status          Status    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Resource describes the appointment to the ownership guard. The doctor side is resolved
// through the doctor service.
func (a *Appointment) Resource() auth.Resource {
	return auth.Resource{
		Kind: auth.KindAppointment,
		Owners: []auth.Owner{
			{Side: auth.SidePatient, Email: a.PatientEmail, ID: a.PatientID.String()},
			{Side: auth.SideDoctor, ID: a.DoctorID.String()},
		},
	}
}

type BookingRequest struct {
	PatientID       uuid.UUID `json:"patient_id"`
	DoctorID        uuid.UUID `json:"doctor_id"`
	AppointmentTime time.Time `json:"appointment_time"`
	ReasonForVisit  *string   `json:"reason_for_visit,omitempty"`
}

// UpdateRequest changes only the fields that are set.
type UpdateRequest struct {
	DoctorID        *uuid.UUID `json:"doctor_id,omitempty"`
	AppointmentTime *time.Time `json:"appointment_time,omitempty"`
	ReasonForVisit  *string    `json:"reason_for_visit,omitempty"`
}
