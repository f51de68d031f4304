package schedule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Domain failures are value errors so callers can map each to a stable
// user-facing message.
var (
	// ErrInvalidInput covers malformed timezone ids, malformed wall-clock
	// values, end <= start windows, and blocks declared in a foreign zone.
	ErrInvalidInput = errors.New("invalid scheduling input")

	// ErrNoOverlap means the two parties' working hours share no common
	// UTC interval on the requested date.
	ErrNoOverlap = errors.New("working hours do not overlap")

	// ErrNoFreeSlots means the working hours overlap but blocked intervals
	// consume all of it.
	ErrNoFreeSlots = errors.New("no free time outside blocked intervals")
)

// TimeOfDay is a wall-clock hour/minute value with no date and no zone.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func (t TimeOfDay) Minutes() int { return t.Hour*60 + t.Minute }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// ParseTimeOfDay parses "HH:MM" in [00:00, 24:00).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return TimeOfDay{}, fmt.Errorf("%w: time of day %q is not HH:MM", ErrInvalidInput, s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("%w: time of day %q is not HH:MM", ErrInvalidInput, s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("%w: time of day %q is not HH:MM", ErrInvalidInput, s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return TimeOfDay{}, fmt.Errorf("%w: time of day %q out of range", ErrInvalidInput, s)
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

// WorkingHours is a party's declared daily availability window in local
// wall-clock time, start strictly before end.
type WorkingHours struct {
	Start TimeOfDay
	End   TimeOfDay
}

// ParseWorkingHours parses "HH:MM-HH:MM".
func ParseWorkingHours(s string) (WorkingHours, error) {
	parts := strings.SplitN(strings.TrimSpace(s), "-", 2)
	if len(parts) != 2 {
		return WorkingHours{}, fmt.Errorf("%w: working hours %q is not HH:MM-HH:MM", ErrInvalidInput, s)
	}
	start, err := ParseTimeOfDay(parts[0])
	if err != nil {
		return WorkingHours{}, err
	}
	end, err := ParseTimeOfDay(parts[1])
	if err != nil {
		return WorkingHours{}, err
	}
	wh := WorkingHours{Start: start, End: end}
	if err := wh.Validate(); err != nil {
		return WorkingHours{}, err
	}
	return wh, nil
}

func (wh WorkingHours) Validate() error {
	if wh.End.Minutes() <= wh.Start.Minutes() {
		return fmt.Errorf("%w: working hours end %s not after start %s",
			ErrInvalidInput, wh.End, wh.Start)
	}
	return nil
}

func (wh WorkingHours) String() string {
	return wh.Start.String() + "-" + wh.End.String()
}

// Date is a zone-less calendar date. It anchors both parties' local-day
// resolution: the same nominal date is interpreted in each party's own zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

const dateLayout = "2006-01-02"

// ParseDate parses "YYYY-MM-DD".
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: date %q is not YYYY-MM-DD", ErrInvalidInput, s)
	}
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// AddDays shifts the date by n calendar days.
func (d Date) AddDays(n int) Date {
	t := time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

// Weekday returns the day of week of the nominal date (Sunday = 0).
func (d Date) Weekday() time.Weekday {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC).Weekday()
}

// LoadZone validates and loads an IANA timezone identifier. The empty string
// is rejected rather than silently meaning UTC.
func LoadZone(id string) (*time.Location, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: empty timezone", ErrInvalidInput)
	}
	loc, err := time.LoadLocation(id)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown timezone %q", ErrInvalidInput, id)
	}
	return loc, nil
}
