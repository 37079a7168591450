package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/telehealth-scheduling/internal/availability"
)

var (
	ErrPatientNotFound     = errors.New("patient not found")
	ErrTherapistNotFound   = errors.New("therapist not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	// ErrPersistence wraps storage failures so callers can tell them apart from rejections.
	ErrPersistence = errors.New("persistence failure")
)

// Tx is the write surface available while a therapist's availability document
// is locked. Everything written through it commits or rolls back together.
type Tx interface {
	GetAppointmentForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error)
	SaveAvailability(ctx context.Context, therapistID uuid.UUID, av availability.Availability) error
	// InsertAppointment returns ErrSlotAlreadyBooked when another live
	// appointment already holds the same therapist slot and day.
	InsertAppointment(ctx context.Context, a *Appointment) error
	UpdateAppointment(ctx context.Context, a *Appointment) error
	// DeleteAppointment removes the appointment and its SOAP notes.
	DeleteAppointment(ctx context.Context, id uuid.UUID) error
}

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetTherapistByID(ctx context.Context, id uuid.UUID) (*Therapist, error)
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// WithTherapist loads the therapist row under a write lock and runs fn in
	// the same transaction. A non-nil error from fn rolls back every write.
	WithTherapist(ctx context.Context, therapistID uuid.UUID, fn func(ctx context.Context, tx Tx, t *Therapist) error) error

	ListAppointments(ctx context.Context, f ListFilter) (ListResult, error)

	// Scheduler queries, keyed by the booked calendar day.
	FindByLedgerDays(ctx context.Context, from, to time.Time, statuses []AppointmentStatus) ([]Appointment, error)
	FindBeforeLedgerDay(ctx context.Context, day time.Time, statuses []AppointmentStatus) ([]Appointment, error)

	// Best-effort writes performed after a booking commits.
	LinkParticipants(ctx context.Context, therapistID, patientID uuid.UUID) error
	InsertEvent(ctx context.Context, ev EventLog) error
}
