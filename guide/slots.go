package guide

import "time"

const SlotLength = 30 * time.Minute

type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// TimeSlots splits [from, until) into grid columns. The first column runs
// from from to the next half-hour boundary, later ones are full half hours.
func TimeSlots(from, until time.Time) []Slot {
	var slots []Slot
	for start := from; start.Before(until); {
		end := nextBoundary(start)
		slots = append(slots, Slot{Start: start, End: end})
		start = end
	}
	return slots
}

// nextBoundary returns the first half-hour boundary strictly after t, in
// t's location.
func nextBoundary(t time.Time) time.Time {
	next := t.Add(SlotLength)
	minute := next.Minute() / 30 * 30
	return time.Date(next.Year(), next.Month(), next.Day(), next.Hour(), minute, 0, 0, next.Location())
}
