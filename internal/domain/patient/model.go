package patient

import (
	"time"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/platform/auth"
)

// Patient is a patient profile. Email links the profile to the patient's
// login and decides ownership.
type Patient struct {
	ID             uuid.UUID `json:"id"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	Age            *int      `json:"age,omitempty"`
	Email          string    `json:"email"`
	PhoneNumber    *string   `json:"phone_number,omitempty"`
	Address        *string   `json:"address,omitempty"`
	MedicalHistory *string   `json:"medical_history,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Resource describes p to the ownership guard.
func (p *Patient) Resource() auth.Resource {
	return auth.Resource{
		Kind:   auth.KindPatient,
		Owners: []auth.Owner{{Side: auth.SidePatient, Email: p.Email, ID: p.ID.String()}},
	}
}
