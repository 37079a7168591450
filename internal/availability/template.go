package availability

import (
	"fmt"
	"time"
)

// MergeByDay collapses repeated weekday entries into one DayTemplate per day,
// keeping first-seen order. Available comes from the first occurrence and slots
// are concatenated in input order. Overlapping or duplicate slots are kept.
func MergeByDay(raw []DayTemplate) []DayTemplate {
	index := make(map[string]int, len(raw))
	merged := make([]DayTemplate, 0, len(raw))

	for _, d := range raw {
		i, ok := index[d.Day]
		if !ok {
			index[d.Day] = len(merged)
			merged = append(merged, DayTemplate{Day: d.Day, Available: d.Available, Slots: []SlotTemplate{}})
			i = len(merged) - 1
		}
		merged[i].Slots = append(merged[i].Slots, d.Slots...)
	}

	return merged
}

// FindDay returns a pointer into days so ledger mutations land in the document.
func FindDay(days []DayTemplate, weekday string) (*DayTemplate, bool) {
	for i := range days {
		if days[i].Day == weekday {
			return &days[i], true
		}
	}
	return nil, false
}

// FindSlot matches on the exact start string.
func FindSlot(day *DayTemplate, start string) (*SlotTemplate, bool) {
	if day == nil {
		return nil, false
	}
	for i := range day.Slots {
		if day.Slots[i].Start == start {
			return &day.Slots[i], true
		}
	}
	return nil, false
}

// Validate checks weekday names and HH:MM slot bounds.
func Validate(days []DayTemplate) error {
	for _, d := range days {
		if !isWeekday(d.Day) {
			return fmt.Errorf("%w: unknown weekday %q", ErrInvalidAvailability, d.Day)
		}
		for _, s := range d.Slots {
			start, err := time.Parse("15:04", s.Start)
			if err != nil {
				return fmt.Errorf("%w: %s slot start %q", ErrInvalidAvailability, d.Day, s.Start)
			}
			end, err := time.Parse("15:04", s.End)
			if err != nil {
				return fmt.Errorf("%w: %s slot end %q", ErrInvalidAvailability, d.Day, s.End)
			}
			if !end.After(start) {
				return fmt.Errorf("%w: %s slot %s-%s ends before it starts", ErrInvalidAvailability, d.Day, s.Start, s.End)
			}
		}
	}
	return nil
}

// CarryLedger copies booked dates from prev into next for slots that keep the
// same weekday and start time. Replacing a template must not forget bookings.
func CarryLedger(prev, next []DayTemplate) {
	for _, pd := range prev {
		nd, ok := FindDay(next, pd.Day)
		if !ok {
			continue
		}
		for _, ps := range pd.Slots {
			if len(ps.BookedDates) == 0 {
				continue
			}
			ns, ok := FindSlot(nd, ps.Start)
			if !ok {
				continue
			}
			for _, d := range ps.BookedDates {
				if !IsBooked(ns, d) {
					ns.BookedDates = append(ns.BookedDates, CalendarDay(d))
				}
			}
		}
	}
}

func isWeekday(name string) bool {
	for _, w := range Weekdays {
		if w == name {
			return true
		}
	}
	return false
}
