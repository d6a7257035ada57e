package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type EventType string

const (
	EventBooked    EventType = "BOOKED"
	EventUpdated   EventType = "UPDATED"
	EventCancelled EventType = "CANCELLED"
)

// Event tells the patient about a change to their appointment.
type Event struct {
	Type          EventType `json:"type"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	PatientEmail  string    `json:"patient_email"`
	Message       string    `json:"message"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Notifier hands events to the notification pipeline. A failed delivery
// never fails the request that caused it.
type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

// LogNotifier records events in the service log.
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, e Event) error {
	n.logger.Info().
		Str("event", string(e.Type)).
		Str("appointment_id", e.AppointmentID.String()).
		Str("message", e.Message).
		Msg("appointment notification")
	return nil
}
