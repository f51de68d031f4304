// Package calendar derives the shareable artifacts of a confirmed booking:
// an RFC 5545 invite text and a prefilled Google Calendar link.
//
// Both are built from UTC instants through a single explicit formatter.
// Constructing a local time from an instant and reformatting it silently
// re-interprets the value in the host zone; no function here ever does that.
package calendar

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// utcStampLayout is the basic-format UTC form of RFC 5545 / Google Calendar
// date-times.
const utcStampLayout = "20060102T150405Z"

// FormatUTCStamp renders an instant as a UTC calendar stamp.
func FormatUTCStamp(t time.Time) string {
	return t.UTC().Format(utcStampLayout)
}

// ParseUTCStamp is the inverse of FormatUTCStamp.
func ParseUTCStamp(s string) (time.Time, error) {
	t, err := time.Parse(utcStampLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid UTC calendar stamp %q: %w", s, err)
	}
	return t, nil
}

// Invite is the input for artifact generation. Stamp is the DTSTAMP instant
// (the booking's creation time) so the output is deterministic for a given
// booking.
type Invite struct {
	UID       string
	Summary   string
	Start     time.Time
	End       time.Time
	Stamp     time.Time
	Organizer string
	Attendees []string
}

// ICS renders a minimal single-event VCALENDAR with CRLF line endings.
func ICS(inv Invite) string {
	var b strings.Builder
	writeLine := func(s string) {
		b.WriteString(s)
		b.WriteString("\r\n")
	}

	writeLine("BEGIN:VCALENDAR")
	writeLine("VERSION:2.0")
	writeLine("PRODID:-//meetsync//scheduler//EN")
	writeLine("CALSCALE:GREGORIAN")
	writeLine("METHOD:REQUEST")
	writeLine("BEGIN:VEVENT")
	writeLine("UID:" + inv.UID)
	writeLine("DTSTAMP:" + FormatUTCStamp(inv.Stamp))
	writeLine("DTSTART:" + FormatUTCStamp(inv.Start))
	writeLine("DTEND:" + FormatUTCStamp(inv.End))
	writeLine("SUMMARY:" + escapeText(inv.Summary))
	if inv.Organizer != "" {
		writeLine("ORGANIZER:mailto:" + inv.Organizer)
	}
	for _, a := range inv.Attendees {
		writeLine("ATTENDEE;RSVP=TRUE:mailto:" + a)
	}
	writeLine("END:VEVENT")
	writeLine("END:VCALENDAR")
	return b.String()
}

// GoogleCalendarURL builds a calendar.google.com deep link prefilled with the
// UTC instants and the attendee emails.
func GoogleCalendarURL(inv Invite) string {
	q := url.Values{}
	q.Set("action", "TEMPLATE")
	q.Set("text", inv.Summary)
	q.Set("dates", FormatUTCStamp(inv.Start)+"/"+FormatUTCStamp(inv.End))
	if len(inv.Attendees) > 0 {
		q.Set("add", strings.Join(inv.Attendees, ","))
	}
	return "https://calendar.google.com/calendar/render?" + q.Encode()
}

// escapeText applies RFC 5545 TEXT escaping.
func escapeText(s string) string {
	r := strings.NewReplacer("\\", "\\\\", ";", "\\;", ",", "\\,", "\n", "\\n")
	return r.Replace(s)
}
