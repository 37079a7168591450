// Package availability holds a therapist's weekly consultation template and the
// booked-date ledger kept on each slot.
package availability

import (
	"errors"
	"time"
)

var (
	ErrDayUnavailable      = errors.New("no available consultation day found")
	ErrSlotNotFound        = errors.New("no slot starts at the requested time")
	ErrSlotUnavailable     = errors.New("slot is not available")
	ErrSlotAlreadyBooked   = errors.New("slot is already booked on this date")
	ErrInvalidAvailability = errors.New("invalid availability")
)

// Weekday names as stored in DayTemplate.Day.
var Weekdays = []string{
	time.Sunday.String(),
	time.Monday.String(),
	time.Tuesday.String(),
	time.Wednesday.String(),
	time.Thursday.String(),
	time.Friday.String(),
	time.Saturday.String(),
}

// SlotTemplate is a recurring time-of-day interval. BookedDates holds calendar
// days (midnight UTC) already committed to an appointment.
type SlotTemplate struct {
	Start       string      `json:"start"`
	End         string      `json:"end"`
	Available   bool        `json:"available"`
	BookedDates []time.Time `json:"bookedDates"`
}

type DayTemplate struct {
	Day       string         `json:"day"`
	Available bool           `json:"available"`
	Slots     []SlotTemplate `json:"slots"`
}

// Availability is the consultationDays document owned by a therapist.
type Availability struct {
	ConsultationDays []DayTemplate `json:"consultationDays"`
}

// Clone returns a deep copy so callers can mutate without touching the original.
func (a Availability) Clone() Availability {
	out := Availability{ConsultationDays: make([]DayTemplate, len(a.ConsultationDays))}
	for i, d := range a.ConsultationDays {
		nd := DayTemplate{Day: d.Day, Available: d.Available, Slots: make([]SlotTemplate, len(d.Slots))}
		for j, s := range d.Slots {
			ns := s
			ns.BookedDates = append([]time.Time(nil), s.BookedDates...)
			nd.Slots[j] = ns
		}
		out.ConsultationDays[i] = nd
	}
	return out
}
