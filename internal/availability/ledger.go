package availability

import "time"

// CalendarDay drops the time of day, keeping the year/month/day t carries in its
// own location. Convert t into the resolution timezone before calling.
func CalendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// OnCalendar reads the year/month/day of day as a date on the calendar of loc
// and returns its midnight there. A nil loc means UTC.
func OnCalendar(day time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := day.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// IsBooked reports whether date's calendar day is in the slot ledger.
func IsBooked(slot *SlotTemplate, date time.Time) bool {
	day := CalendarDay(date)
	for _, b := range slot.BookedDates {
		if sameDay(b.UTC(), day) {
			return true
		}
	}
	return false
}

// Claim records date in the slot ledger. The caller persists the document.
func Claim(slot *SlotTemplate, date time.Time) error {
	if IsBooked(slot, date) {
		return ErrSlotAlreadyBooked
	}
	slot.BookedDates = append(slot.BookedDates, CalendarDay(date))
	return nil
}

// Release drops every ledger entry on date's calendar day. Releasing a date
// that is not booked is a no-op.
func Release(slot *SlotTemplate, date time.Time) {
	day := CalendarDay(date)
	kept := slot.BookedDates[:0]
	for _, b := range slot.BookedDates {
		if !sameDay(b.UTC(), day) {
			kept = append(kept, b)
		}
	}
	slot.BookedDates = kept
}
