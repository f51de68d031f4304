package schedule

import (
	"fmt"
	"sort"
	"time"
)

// Interval is a half-open [Start, End) range of UTC instants. Intervals are
// the only time representation that crosses package boundaries; wall-clock
// values stay inside this package.
type Interval struct {
	Start time.Time
	End   time.Time
}

func (iv Interval) IsZero() bool {
	return iv.Start.IsZero() && iv.End.IsZero()
}

// Duration returns End - Start.
func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

// Contains reports whether other lies fully inside iv.
func (iv Interval) Contains(other Interval) bool {
	return !other.Start.Before(iv.Start) && !other.End.After(iv.End)
}

// Overlaps reports whether the two half-open intervals share any instant.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && other.Start.Before(iv.End)
}

func checkInterval(iv Interval) error {
	if iv.End.Before(iv.Start) {
		return fmt.Errorf("%w: interval end %s before start %s",
			ErrInvalidInput, iv.End.UTC().Format(time.RFC3339), iv.Start.UTC().Format(time.RFC3339))
	}
	return nil
}

// Intersect returns the overlap of a and b, or false if they are disjoint.
// Malformed intervals (end before start) are rejected.
func Intersect(a, b Interval) (Interval, bool, error) {
	if err := checkInterval(a); err != nil {
		return Interval{}, false, err
	}
	if err := checkInterval(b); err != nil {
		return Interval{}, false, err
	}
	start := a.Start
	if b.Start.After(start) {
		start = b.Start
	}
	end := a.End
	if b.End.Before(end) {
		end = b.End
	}
	if !end.After(start) {
		return Interval{}, false, nil
	}
	return Interval{Start: start, End: end}, true, nil
}

// Subtract returns the ordered sub-intervals of base not covered by any of
// blocks. Blocks are clipped to base and merged before subtraction, so
// overlapping or duplicate blocks are handled once.
func Subtract(base Interval, blocks []Interval) ([]Interval, error) {
	if err := checkInterval(base); err != nil {
		return nil, err
	}
	if !base.End.After(base.Start) {
		return nil, nil
	}

	clipped := make([]Interval, 0, len(blocks))
	for _, b := range blocks {
		if err := checkInterval(b); err != nil {
			return nil, err
		}
		s, e := b.Start, b.End
		if !e.After(base.Start) || !s.Before(base.End) {
			continue
		}
		if s.Before(base.Start) {
			s = base.Start
		}
		if e.After(base.End) {
			e = base.End
		}
		if e.After(s) {
			clipped = append(clipped, Interval{Start: s, End: e})
		}
	}
	if len(clipped) == 0 {
		return []Interval{base}, nil
	}

	merged := MergeIntervals(clipped)

	var out []Interval
	cursor := base.Start
	for _, m := range merged {
		if m.Start.After(cursor) {
			out = append(out, Interval{Start: cursor, End: m.Start})
		}
		if m.End.After(cursor) {
			cursor = m.End
		}
	}
	if base.End.After(cursor) {
		out = append(out, Interval{Start: cursor, End: base.End})
	}
	return out, nil
}

// MergeIntervals sorts the input by start and coalesces overlapping or
// touching intervals. The input slice is not modified.
func MergeIntervals(in []Interval) []Interval {
	if len(in) == 0 {
		return nil
	}
	sorted := make([]Interval, len(in))
	copy(sorted, in)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Start.Equal(sorted[j].Start) {
			return sorted[i].End.Before(sorted[j].End)
		}
		return sorted[i].Start.Before(sorted[j].Start)
	})

	merged := []Interval{sorted[0]}
	for _, cur := range sorted[1:] {
		last := &merged[len(merged)-1]
		if cur.Start.After(last.End) {
			merged = append(merged, cur)
			continue
		}
		if cur.End.After(last.End) {
			last.End = cur.End
		}
	}
	return merged
}
