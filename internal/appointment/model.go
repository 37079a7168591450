package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/telehealth-scheduling/internal/availability"
)

type AppointmentStatus string

const (
	StatusRequested   AppointmentStatus = "requested"
	StatusScheduled   AppointmentStatus = "scheduled"
	StatusRescheduled AppointmentStatus = "rescheduled"
	StatusConfirmed   AppointmentStatus = "confirmed"
	StatusCompleted   AppointmentStatus = "completed"
	StatusCanceled    AppointmentStatus = "canceled"
)

// ActiveStatuses hold a ledger entry.
var ActiveStatuses = []AppointmentStatus{StatusRequested, StatusScheduled, StatusRescheduled, StatusConfirmed}

func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusRequested, StatusScheduled, StatusRescheduled, StatusConfirmed, StatusCompleted, StatusCanceled:
		return true
	}
	return false
}

func (s AppointmentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCanceled
}

type PackageType string

const (
	PackageOnsite    PackageType = "onsite"
	PackageVideoCall PackageType = "video call"
	PackageAudioCall PackageType = "audio call"
	PackageMessage   PackageType = "message"
)

func (p PackageType) Valid() bool {
	switch p {
	case PackageOnsite, PackageVideoCall, PackageAudioCall, PackageMessage:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentAuthorized PaymentStatus = "authorized"
	PaymentCaptured   PaymentStatus = "captured"
	PaymentRefunded   PaymentStatus = "refunded"
	PaymentFailed     PaymentStatus = "failed"
)

func (p PaymentStatus) Valid() bool {
	switch p {
	case PaymentPending, PaymentAuthorized, PaymentCaptured, PaymentRefunded, PaymentFailed:
		return true
	}
	return false
}

type Role string

const (
	RoleTherapist Role = "therapist"
	RolePatient   Role = "patient"
)

// Actor is the authenticated caller as resolved by the upstream auth layer.
type Actor struct {
	ProfileID uuid.UUID
	Role      Role
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Therapist struct {
	ID              uuid.UUID
	Name            string
	Specializations *string
	TimeZone        *string
	Availability    availability.Availability
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Location is the therapist's stored zone, or fallback when unset or unknown.
func (t *Therapist) Location(fallback *time.Location) *time.Location {
	if t.TimeZone == nil || *t.TimeZone == "" {
		return fallback
	}
	loc, err := time.LoadLocation(*t.TimeZone)
	if err != nil {
		return fallback
	}
	return loc
}

type ChildDetails struct {
	Name    string `json:"name"`
	Gender  string `json:"gender"`
	Age     int    `json:"age"`
	Problem string `json:"problem"`
}

type Appointment struct {
	ID              uuid.UUID
	TherapistID     uuid.UUID
	PatientID       uuid.UUID
	AppointmentDate time.Time
	AppointmentTime string
	// LedgerWeekday and LedgerDate record exactly which ledger entry this
	// appointment holds, so release does not depend on re-resolving.
	LedgerWeekday   string
	LedgerDate      time.Time
	Status          AppointmentStatus
	AppointmentType string
	PackageType     PackageType
	PaymentStatus   PaymentStatus
	DurationMinutes int
	Notes           string
	ChildDetails    *ChildDetails
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// ListKind selects the past/completed/upcoming views of a participant's appointments.
type ListKind string

const (
	ListAll       ListKind = ""
	ListPast      ListKind = "past"
	ListCompleted ListKind = "completed"
	ListUpcoming  ListKind = "upcoming"
)

type ListFilter struct {
	ParticipantID uuid.UUID
	Kind          ListKind
	Now           time.Time
	Limit         int // 0 means no pagination
	Offset        int
}

type ListResult struct {
	Appointments []Appointment
	Total        int
}
