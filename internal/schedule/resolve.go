package schedule

import (
	"fmt"
	"time"
)

// ResolveWindow anchors a working-hours window to the given calendar date as
// local wall-clock time in zone and converts it to a UTC interval using the
// zone's offset rules for that specific date. Anchoring goes through
// time.Date with explicit hour/minute fields rather than midnight plus a
// duration: adding a duration to local midnight lands an hour off on
// daylight-saving transition days.
//
// This is the single designated local-to-instant conversion; nothing outside
// this package builds an Interval from wall-clock values.
func ResolveWindow(zone string, hours WorkingHours, date Date) (Interval, error) {
	loc, err := LoadZone(zone)
	if err != nil {
		return Interval{}, err
	}
	if err := hours.Validate(); err != nil {
		return Interval{}, err
	}
	return resolveInLocation(loc, hours, date), nil
}

func resolveInLocation(loc *time.Location, hours WorkingHours, date Date) Interval {
	start := time.Date(date.Year, date.Month, date.Day, hours.Start.Hour, hours.Start.Minute, 0, 0, loc)
	end := time.Date(date.Year, date.Month, date.Day, hours.End.Hour, hours.End.Minute, 0, 0, loc)
	return Interval{Start: start.UTC(), End: end.UTC()}
}

// RecurringBlock is a weekly repeating declared-unavailable window, expressed
// in the owner's own timezone.
type RecurringBlock struct {
	OwnerID string
	Weekday time.Weekday
	Start   TimeOfDay
	End     TimeOfDay
	Zone    string
}

func (b RecurringBlock) Validate() error {
	if b.Weekday < time.Sunday || b.Weekday > time.Saturday {
		return fmt.Errorf("%w: block weekday %d out of range", ErrInvalidInput, b.Weekday)
	}
	if b.End.Minutes() <= b.Start.Minutes() {
		return fmt.Errorf("%w: block end %s not after start %s", ErrInvalidInput, b.End, b.Start)
	}
	return nil
}

// MaterializeBlocks expands recurring blocks into concrete UTC intervals for
// the Sunday-to-Saturday week containing weekOf. Each block is anchored to
// the matching weekday of that week and resolved with the owner's zone rules
// for that specific date, so results are never reused across weeks or
// daylight-saving boundaries.
//
// A block declared in a zone other than the materialization zone is rejected:
// an owner's blocks only make sense in the owner's own zone.
func MaterializeBlocks(zone string, blocks []RecurringBlock, weekOf Date) ([]Interval, error) {
	if len(blocks) == 0 {
		return nil, nil
	}
	loc, err := LoadZone(zone)
	if err != nil {
		return nil, err
	}

	weekStart := weekOf.AddDays(-int(weekOf.Weekday()))
	out := make([]Interval, 0, len(blocks))
	for _, b := range blocks {
		if b.Zone != zone {
			return nil, fmt.Errorf("%w: block for %s declared in zone %q, expected owner zone %q",
				ErrInvalidInput, b.OwnerID, b.Zone, zone)
		}
		if err := b.Validate(); err != nil {
			return nil, err
		}
		day := weekStart.AddDays(int(b.Weekday))
		out = append(out, resolveInLocation(loc, WorkingHours{Start: b.Start, End: b.End}, day))
	}
	return out, nil
}
