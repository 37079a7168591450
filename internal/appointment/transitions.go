package appointment

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidStatus           = errors.New("invalid appointment status")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrInvalidUpdate           = errors.New("invalid appointment update")
)

// UpdateRequest carries the optional fields of a status/reschedule update.
type UpdateRequest struct {
	Status          *AppointmentStatus
	AppointmentDate *time.Time
	// DateOnly marks AppointmentDate as a bare calendar day, read on the
	// therapist's calendar rather than as an instant.
	DateOnly        bool
	AppointmentTime *string
	Notes           *string
	PaymentStatus   *PaymentStatus
}

type ledgerEffect int

const (
	effectNone ledgerEffect = iota
	effectRelease
	effectMove
)

func (e ledgerEffect) String() string {
	switch e {
	case effectRelease:
		return "release"
	case effectMove:
		return "move"
	}
	return "none"
}

type transition struct {
	effect ledgerEffect
	status AppointmentStatus
	date   time.Time
	start  string
}

// planUpdate decides the target state and ledger effect of req against the
// current appointment without touching storage.
//
//	-> completed | canceled          release current slot
//	-> rescheduled + date and/or time claim new slot, then release old
//	anything else                    no ledger effect
//
// completed and canceled are terminal.
func planUpdate(current *Appointment, req UpdateRequest) (transition, error) {
	t := transition{
		effect: effectNone,
		status: current.Status,
		date:   current.AppointmentDate,
		start:  current.AppointmentTime,
	}

	if req.PaymentStatus != nil && !req.PaymentStatus.Valid() {
		return t, fmt.Errorf("%w: unknown payment status %q", ErrInvalidUpdate, *req.PaymentStatus)
	}

	moves := req.AppointmentDate != nil || req.AppointmentTime != nil

	if req.Status == nil {
		if moves {
			return t, fmt.Errorf("%w: date and time change only with status %q", ErrInvalidUpdate, StatusRescheduled)
		}
		return t, nil
	}

	next := *req.Status
	if !next.Valid() {
		return t, fmt.Errorf("%w: %q", ErrInvalidStatus, next)
	}
	if current.Status.Terminal() {
		return t, fmt.Errorf("%w: %s is final", ErrInvalidStatusTransition, current.Status)
	}
	if moves && next != StatusRescheduled {
		return t, fmt.Errorf("%w: date and time change only with status %q", ErrInvalidUpdate, StatusRescheduled)
	}

	t.status = next
	switch {
	case next.Terminal():
		t.effect = effectRelease
	case next == StatusRescheduled && moves:
		t.effect = effectMove
		if req.AppointmentDate != nil {
			t.date = *req.AppointmentDate
		}
		if req.AppointmentTime != nil {
			t.start = *req.AppointmentTime
		}
	}

	return t, nil
}
