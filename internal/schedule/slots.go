package schedule

import "time"

// Slot is a fixed-duration bookable meeting window in UTC.
type Slot struct {
	Start time.Time
	End   time.Time
}

// TileSlots emits candidate slots of exactly duration from each free
// interval, starting at the interval start and advancing by stride as long
// as the whole slot still fits. A stride smaller than the duration produces
// overlapping candidate start times. Slots come out in chronological order
// across intervals; the same inputs always yield the same slots.
//
// limit > 0 caps the total number of slots emitted, so callers can stop
// early without tiling the rest.
func TileSlots(free []Interval, duration, stride time.Duration, limit int) []Slot {
	if duration <= 0 || stride <= 0 {
		return nil
	}

	var slots []Slot
	for _, iv := range free {
		for t := iv.Start; !t.Add(duration).After(iv.End); t = t.Add(stride) {
			slots = append(slots, Slot{Start: t, End: t.Add(duration)})
			if limit > 0 && len(slots) >= limit {
				return slots
			}
		}
	}
	return slots
}
