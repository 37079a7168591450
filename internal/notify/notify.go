// Package notify records appointment notifications for both participants and
// pushes them to per-user Redis channels.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/telehealth-scheduling/internal/appointment"
	"github.com/hackgods/telehealth-scheduling/internal/db"
)

const referenceType = "Appointment"

// Message is what subscribers on a participant channel receive.
type Message struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"userId"`
	ReferenceID uuid.UUID `json:"referenceId"`
	Type        string    `json:"type"`
	Kind        string    `json:"kind"`
	Message     string    `json:"message"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Service struct {
	db  db.DB
	rdb *redis.Client
	log zerolog.Logger
	now func() time.Time
}

func NewService(pool db.DB, rdb *redis.Client, log zerolog.Logger) *Service {
	return &Service{db: pool, rdb: rdb, log: log, now: time.Now}
}

// Channel is the pub/sub channel a participant's client listens on.
func Channel(role appointment.Role, id uuid.UUID) string {
	return fmt.Sprintf("%s-%s", role, id)
}

// Notify stores one unread notification per participant and publishes it.
// Every recipient is attempted; the returned error joins the failures.
func (s *Service) Notify(ctx context.Context, appt appointment.Appointment, kind appointment.NotificationKind) error {
	recipients := []struct {
		role appointment.Role
		id   uuid.UUID
	}{
		{appointment.RoleTherapist, appt.TherapistID},
		{appointment.RolePatient, appt.PatientID},
	}

	var errs []error
	for _, r := range recipients {
		msg := Message{
			ID:          uuid.New(),
			UserID:      r.id,
			ReferenceID: appt.ID,
			Type:        referenceType,
			Kind:        string(kind),
			Message:     Text(appt, kind, r.role),
			Status:      "unread",
			CreatedAt:   s.now().UTC(),
		}
		if err := s.deliver(ctx, Channel(r.role, r.id), msg); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (s *Service) deliver(ctx context.Context, channel string, msg Message) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO notifications (id, user_id, reference_id, type, kind, message, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, msg.ID, msg.UserID, msg.ReferenceID, msg.Type, msg.Kind, msg.Message, msg.Status, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification for %s: %w", msg.UserID, err)
	}

	if s.rdb == nil {
		return nil
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := s.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		// Stored already; clients pick it up on next fetch.
		s.log.Warn().Err(err).Str("channel", channel).Msg("notification publish failed")
	}
	return nil
}

// Text renders the notification body for one participant.
func Text(appt appointment.Appointment, kind appointment.NotificationKind, to appointment.Role) string {
	when := fmt.Sprintf("%s %s at %s", appt.LedgerWeekday, appt.LedgerDate.Format(time.DateOnly), appt.AppointmentTime)

	switch kind {
	case appointment.NotifyCreation:
		if to == appointment.RoleTherapist {
			return "New appointment requested for " + when
		}
		return "Your appointment for " + when + " has been requested"
	case appointment.NotifyReminder:
		return "Reminder: you have an appointment on " + when
	default:
		return fmt.Sprintf("Appointment on %s is now %s", when, appt.Status)
	}
}
