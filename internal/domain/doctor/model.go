package doctor

import (
	"time"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/platform/auth"
)

type Doctor struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	Email           string    `json:"email"`
	PhoneNumber     *string   `json:"phone_number,omitempty"`
	Specialization  string    `json:"specialization"`
	Qualifications  *string   `json:"qualifications,omitempty"`
	ConsultationFee float64   `json:"consultation_fee"`
	IsAvailable     bool      `json:"is_available"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// PublicDoctor is the directory view of a doctor. It carries no contact
// details.
type PublicDoctor struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	Specialization  string    `json:"specialization"`
	Qualifications  *string   `json:"qualifications,omitempty"`
	ConsultationFee float64   `json:"consultation_fee"`
	IsAvailable     bool      `json:"is_available"`
}

func (d *Doctor) Public() PublicDoctor {
	return PublicDoctor{
		ID:              d.ID,
		Name:            d.Name,
		Specialization:  d.Specialization,
		Qualifications:  d.Qualifications,
		ConsultationFee: d.ConsultationFee,
		IsAvailable:     d.IsAvailable,
	}
}

// Resource describes d to the ownership guard.
func (d *Doctor) Resource() auth.Resource {
	return auth.Resource{
		Kind:   auth.KindDoctor,
		Owners: []auth.Owner{{Side: auth.SideDoctor, Email: d.Email, ID: d.ID.String()}},
	}
}

// Filter narrows a directory search. Zero fields do not filter.
type Filter struct {
	Specialization string
	Available      *bool
}
