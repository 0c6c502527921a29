package availability

import (
	"github.com/clinovia/clinic-scheduling/internal/schedule"
)

// Interval is a half-open [Start,End) range within one day.
type Interval struct {
	Start schedule.TimeOfDay
	End   schedule.TimeOfDay
}

// Overlaps is interval intersection, not point equality: a booked
// 09:00-09:30 blocks every candidate whose occupied range crosses it.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start < o.End && o.Start < i.End
}

// ComputeSlots walks each working window in service-duration steps and
// keeps the candidates whose occupied interval touches nothing in busy
// and starts at or after notBefore. Pure: all inputs are values, output
// is ascending. An empty result means fully booked, not an error.
func ComputeSlots(windows []schedule.WorkingWindow, busy []Interval, durationMinutes int, notBefore schedule.TimeOfDay) []schedule.TimeOfDay {
	if durationMinutes <= 0 {
		return nil
	}

	step := schedule.TimeOfDay(durationMinutes)
	var slots []schedule.TimeOfDay

	for _, w := range windows {
		for t := w.Start; t+step <= w.End; t += step {
			if t < notBefore {
				continue
			}
			candidate := Interval{Start: t, End: t + step}
			if overlapsAny(candidate, busy) {
				continue
			}
			slots = append(slots, t)
		}
	}

	return slots
}

func overlapsAny(candidate Interval, busy []Interval) bool {
	for _, b := range busy {
		if candidate.Overlaps(b) {
			return true
		}
	}
	return false
}
