package schedule

// Party is one side of an availability query: a timezone, a declared daily
// working-hours window, and the party's recurring blocks (all in that zone).
type Party struct {
	Zone   string
	Hours  WorkingHours
	Blocks []RecurringBlock
}

// Availability is the outcome of intersecting two parties' schedules.
type Availability struct {
	// Free holds the ordered mutually free UTC intervals.
	Free []Interval
	// Blocked holds both parties' materialized blocks clipped to the
	// shared working window, merged. Populated even when Free is empty so
	// callers can report which blocks consumed the overlap.
	Blocked []Interval
}

// FreeIntervals computes the mutually free UTC intervals of two parties on
// the given date. The date is interpreted in each party's own zone
// independently, so each party's "today" may begin and end at a different
// UTC instant.
//
// Returns ErrNoOverlap when the working windows share no UTC instant, and
// ErrNoFreeSlots (with Blocked populated) when blocks consume the whole
// overlap.
func FreeIntervals(a, b Party, date Date) (Availability, error) {
	winA, err := ResolveWindow(a.Zone, a.Hours, date)
	if err != nil {
		return Availability{}, err
	}
	winB, err := ResolveWindow(b.Zone, b.Hours, date)
	if err != nil {
		return Availability{}, err
	}

	shared, ok, err := Intersect(winA, winB)
	if err != nil {
		return Availability{}, err
	}
	if !ok {
		return Availability{}, ErrNoOverlap
	}

	blocksA, err := MaterializeBlocks(a.Zone, a.Blocks, date)
	if err != nil {
		return Availability{}, err
	}
	blocksB, err := MaterializeBlocks(b.Zone, b.Blocks, date)
	if err != nil {
		return Availability{}, err
	}

	blocks := append(blocksA, blocksB...)
	free, err := Subtract(shared, blocks)
	if err != nil {
		return Availability{}, err
	}

	avail := Availability{Free: free, Blocked: clipToWindow(shared, blocks)}
	if len(free) == 0 {
		return avail, ErrNoFreeSlots
	}
	return avail, nil
}

func clipToWindow(window Interval, blocks []Interval) []Interval {
	clipped := make([]Interval, 0, len(blocks))
	for _, b := range blocks {
		s, e := b.Start, b.End
		if !e.After(window.Start) || !s.Before(window.End) {
			continue
		}
		if s.Before(window.Start) {
			s = window.Start
		}
		if e.After(window.End) {
			e = window.End
		}
		clipped = append(clipped, Interval{Start: s, End: e})
	}
	return MergeIntervals(clipped)
}
