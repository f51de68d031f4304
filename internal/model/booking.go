package model

import (
	"sort"
	"strings"
	"time"

	"github.com/sachinsingh018/meetsync/internal/schedule"
)

// Profile is the slice of a user record the scheduler needs: identity,
// timezone, and the declared daily working-hours window.
type Profile struct {
	ID       string
	Email    string
	Name     string
	TimeZone string
	Hours    schedule.WorkingHours
}

// Booking is the durable record of a committed meeting. It is written once
// and never mutated; exclusivity is enforced by a unique constraint on
// (PairKey, StartTime) in the booking store.
type Booking struct {
	ID           string
	PairKey      string
	StartTime    time.Time
	EndTime      time.Time
	ParticipantA string
	ParticipantB string
	ConfirmedBy  string
	ICSText      string
	CalendarURL  string
	CreatedAt    time.Time
}

// PairKey builds the unordered participant-pair key. Both orderings of the
// same two participants map to the same key.
func PairKey(a, b string) string {
	pair := []string{strings.ToLower(strings.TrimSpace(a)), strings.ToLower(strings.TrimSpace(b))}
	sort.Strings(pair)
	return pair[0] + "|" + pair[1]
}
