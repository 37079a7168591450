package availability

import "time"

// WeekdayOf names the weekday of t on the calendar of loc. A nil loc means UTC.
func WeekdayOf(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Weekday().String()
}

// Resolution is the slot a requested appointment lands on.
type Resolution struct {
	Weekday string
	// Date is the calendar day (midnight UTC) the ledger is keyed by.
	Date time.Time
	Slot *SlotTemplate
}

// Resolve maps (date, start, loc) onto the template. The returned slot points
// into days, so Claim/Release on it mutate the caller's document.
func Resolve(days []DayTemplate, date time.Time, start string, loc *time.Location) (Resolution, error) {
	if loc == nil {
		loc = time.UTC
	}
	local := date.In(loc)
	weekday := local.Weekday().String()

	day, ok := FindDay(days, weekday)
	if !ok || !day.Available {
		return Resolution{}, ErrDayUnavailable
	}

	slot, ok := FindSlot(day, start)
	if !ok {
		return Resolution{}, ErrSlotNotFound
	}
	if !slot.Available {
		return Resolution{}, ErrSlotUnavailable
	}

	return Resolution{Weekday: weekday, Date: CalendarDay(local), Slot: slot}, nil
}

// Locate finds the slot a previous claim was recorded on, ignoring the
// availability flags. Used to release a booking after the template changed.
func Locate(days []DayTemplate, weekday, start string) (*SlotTemplate, bool) {
	day, ok := FindDay(days, weekday)
	if !ok {
		return nil, false
	}
	return FindSlot(day, start)
}
