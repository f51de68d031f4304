package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sachinsingh018/meetsync/internal/model"
	"github.com/sachinsingh018/meetsync/internal/outbox"
	"github.com/sachinsingh018/meetsync/internal/schedule"
)

type fakeProfiles struct {
	byEmail map[string]model.Profile
}

func (f *fakeProfiles) GetByEmail(_ context.Context, email string) (model.Profile, error) {
	p, ok := f.byEmail[strings.ToLower(email)]
	if !ok {
		return model.Profile{}, fmt.Errorf("%w: %s", ErrProfileNotFound, email)
	}
	return p, nil
}

type fakeBlocks struct {
	byOwner map[string][]schedule.RecurringBlock

	mu    sync.Mutex
	calls int
	fail  bool
}

func (f *fakeBlocks) ListByOwner(_ context.Context, ownerID string) ([]schedule.RecurringBlock, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.fail {
		return nil, errors.New("connection refused")
	}
	return f.byOwner[ownerID], nil
}

type fakeBookings struct {
	mu     sync.Mutex
	byKey  map[string]model.Booking
	events []outbox.Event
}

func newFakeBookings() *fakeBookings {
	return &fakeBookings{byKey: make(map[string]model.Booking)}
}

func (f *fakeBookings) Commit(_ context.Context, b *model.Booking, evt outbox.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := b.PairKey + "@" + b.StartTime.Format(time.RFC3339)
	if _, exists := f.byKey[key]; exists {
		return fmt.Errorf("%w: %s", ErrSlotTaken, key)
	}
	f.byKey[key] = *b
	f.events = append(f.events, evt)
	return nil
}

func (f *fakeBookings) ListByParticipant(_ context.Context, email string, limit int) ([]model.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Booking
	for _, b := range f.byKey {
		if strings.EqualFold(b.ParticipantA, email) || strings.EqualFold(b.ParticipantB, email) {
			out = append(out, b)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustHours(t *testing.T, s string) schedule.WorkingHours {
	t.Helper()
	h, err := schedule.ParseWorkingHours(s)
	if err != nil {
		t.Fatalf("parse hours %q: %v", s, err)
	}
	return h
}

func newTestService(profiles *fakeProfiles, blocks *fakeBlocks, bookings *fakeBookings) *Service {
	return New(profiles, blocks, bookings, testLogger(), Config{
		UpstreamTimeout: 200 * time.Millisecond,
		UpstreamTries:   2,
	})
}

func TestFindSlots_CrossZoneOverlap(t *testing.T) {
	// New York 09:00-17:00 against Berlin 09:00-17:00 in January: the
	// windows share only 14:00-16:00 UTC, which tiles into three
	// 60-minute slots at a 30-minute stride.
	profiles := &fakeProfiles{byEmail: map[string]model.Profile{
		"bep@example.com": {
			ID: "u2", Email: "bep@example.com", Name: "Bep",
			TimeZone: "Europe/Berlin", Hours: mustHours(t, "09:00-17:00"),
		},
	}}
	svc := newTestService(profiles, &fakeBlocks{}, newFakeBookings())

	res, err := svc.FindSlots(context.Background(), SlotQuery{
		RequesterID:    "u1",
		RequesterEmail: "nyc@example.com",
		RequesterZone:  "America/New_York",
		RequesterHours: "09:00-17:00",
		InviteeEmail:   "bep@example.com",
		Date:           "2026-01-15",
	})
	if err != nil {
		t.Fatalf("FindSlots: %v", err)
	}
	if len(res.Slots) != 3 {
		t.Fatalf("got %d slots, want 3: %+v", len(res.Slots), res.Slots)
	}
	wantFirst := time.Date(2026, time.January, 15, 14, 0, 0, 0, time.UTC)
	if !res.Slots[0].Start.Equal(wantFirst) {
		t.Fatalf("first slot starts %v, want %v", res.Slots[0].Start, wantFirst)
	}
	wantLast := time.Date(2026, time.January, 15, 15, 0, 0, 0, time.UTC)
	if !res.Slots[2].Start.Equal(wantLast) {
		t.Fatalf("last slot starts %v, want %v", res.Slots[2].Start, wantLast)
	}
	if res.Invitee.Email != "bep@example.com" {
		t.Fatalf("invitee = %q", res.Invitee.Email)
	}
}

func TestFindSlots_RecurringBlockSplitsWindow(t *testing.T) {
	// Same-zone parties with a Thursday 12:00-13:00 block on the invitee
	// side. No 60-minute slot may straddle the block.
	profiles := &fakeProfiles{byEmail: map[string]model.Profile{
		"inv@example.com": {
			ID: "u2", Email: "inv@example.com",
			TimeZone: "UTC", Hours: mustHours(t, "10:00-18:00"),
		},
	}}
	blocks := &fakeBlocks{byOwner: map[string][]schedule.RecurringBlock{
		"u2": {{
			OwnerID: "u2", Weekday: time.Thursday,
			Start: schedule.TimeOfDay{Hour: 12}, End: schedule.TimeOfDay{Hour: 13},
			Zone: "UTC",
		}},
	}}
	svc := newTestService(profiles, blocks, newFakeBookings())

	// 2026-03-05 is a Thursday. Shared window is 10:00-17:00 UTC; the
	// block leaves 10:00-12:00 and 13:00-17:00.
	res, err := svc.FindSlots(context.Background(), SlotQuery{
		RequesterID:    "u1",
		RequesterZone:  "UTC",
		RequesterHours: "09:00-17:00",
		InviteeEmail:   "inv@example.com",
		Date:           "2026-03-05",
	})
	if err != nil {
		t.Fatalf("FindSlots: %v", err)
	}
	if len(res.Slots) != 10 {
		t.Fatalf("got %d slots, want 10", len(res.Slots))
	}
	blockStart := time.Date(2026, time.March, 5, 12, 0, 0, 0, time.UTC)
	blockEnd := blockStart.Add(time.Hour)
	for _, s := range res.Slots {
		if s.Start.Before(blockEnd) && blockStart.Before(s.End) {
			t.Fatalf("slot %v-%v straddles the blocked hour", s.Start, s.End)
		}
	}
	if len(res.Blocked) != 1 || !res.Blocked[0].Start.Equal(blockStart) {
		t.Fatalf("blocked = %+v, want single interval at %v", res.Blocked, blockStart)
	}
}

func TestFindSlots_NoOverlappingHours(t *testing.T) {
	profiles := &fakeProfiles{byEmail: map[string]model.Profile{
		"kol@example.com": {
			ID: "u2", Email: "kol@example.com",
			TimeZone: "Asia/Kolkata", Hours: mustHours(t, "09:00-17:00"),
		},
	}}
	svc := newTestService(profiles, &fakeBlocks{}, newFakeBookings())

	_, err := svc.FindSlots(context.Background(), SlotQuery{
		RequesterID:    "u1",
		RequesterZone:  "America/New_York",
		RequesterHours: "09:00-17:00",
		InviteeEmail:   "kol@example.com",
		Date:           "2026-01-15",
	})
	if !errors.Is(err, schedule.ErrNoOverlap) {
		t.Fatalf("err = %v, want ErrNoOverlap", err)
	}
}

func TestFindSlots_FullyBlockedReportsBlockers(t *testing.T) {
	profiles := &fakeProfiles{byEmail: map[string]model.Profile{
		"inv@example.com": {
			ID: "u2", Email: "inv@example.com",
			TimeZone: "UTC", Hours: mustHours(t, "10:00-12:00"),
		},
	}}
	blocks := &fakeBlocks{byOwner: map[string][]schedule.RecurringBlock{
		"u2": {{
			OwnerID: "u2", Weekday: time.Thursday,
			Start: schedule.TimeOfDay{Hour: 9}, End: schedule.TimeOfDay{Hour: 13},
			Zone: "UTC",
		}},
	}}
	svc := newTestService(profiles, blocks, newFakeBookings())

	res, err := svc.FindSlots(context.Background(), SlotQuery{
		RequesterID:    "u1",
		RequesterZone:  "UTC",
		RequesterHours: "09:00-17:00",
		InviteeEmail:   "inv@example.com",
		Date:           "2026-03-05",
	})
	if !errors.Is(err, schedule.ErrNoFreeSlots) {
		t.Fatalf("err = %v, want ErrNoFreeSlots", err)
	}
	if len(res.Blocked) == 0 {
		t.Fatal("expected the consuming blocks to be reported")
	}
}

func TestFindSlots_Idempotent(t *testing.T) {
	profiles := &fakeProfiles{byEmail: map[string]model.Profile{
		"inv@example.com": {
			ID: "u2", Email: "inv@example.com",
			TimeZone: "Europe/London", Hours: mustHours(t, "09:00-17:00"),
		},
	}}
	svc := newTestService(profiles, &fakeBlocks{}, newFakeBookings())

	q := SlotQuery{
		RequesterID:    "u1",
		RequesterZone:  "Europe/Berlin",
		RequesterHours: "09:00-17:00",
		InviteeEmail:   "inv@example.com",
		Date:           "2026-02-10",
	}
	first, err := svc.FindSlots(context.Background(), q)
	if err != nil {
		t.Fatalf("first FindSlots: %v", err)
	}
	second, err := svc.FindSlots(context.Background(), q)
	if err != nil {
		t.Fatalf("second FindSlots: %v", err)
	}
	if len(first.Slots) != len(second.Slots) {
		t.Fatalf("slot counts differ: %d vs %d", len(first.Slots), len(second.Slots))
	}
	for i := range first.Slots {
		if !first.Slots[i].Start.Equal(second.Slots[i].Start) {
			t.Fatalf("slot %d differs: %v vs %v", i, first.Slots[i].Start, second.Slots[i].Start)
		}
	}
}

func TestFindSlots_UnknownInvitee(t *testing.T) {
	svc := newTestService(&fakeProfiles{byEmail: map[string]model.Profile{}}, &fakeBlocks{}, newFakeBookings())

	_, err := svc.FindSlots(context.Background(), SlotQuery{
		RequesterID:    "u1",
		RequesterZone:  "UTC",
		RequesterHours: "09:00-17:00",
		InviteeEmail:   "ghost@example.com",
		Date:           "2026-01-15",
	})
	if !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("err = %v, want ErrProfileNotFound", err)
	}
}

func TestFindSlots_UpstreamExhaustionFailsClosed(t *testing.T) {
	profiles := &fakeProfiles{byEmail: map[string]model.Profile{
		"inv@example.com": {
			ID: "u2", Email: "inv@example.com",
			TimeZone: "UTC", Hours: mustHours(t, "09:00-17:00"),
		},
	}}
	blocks := &fakeBlocks{fail: true}
	svc := newTestService(profiles, blocks, newFakeBookings())

	_, err := svc.FindSlots(context.Background(), SlotQuery{
		RequesterID:    "u1",
		RequesterZone:  "UTC",
		RequesterHours: "09:00-17:00",
		InviteeEmail:   "inv@example.com",
		Date:           "2026-01-15",
	})
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream", err)
	}
	blocks.mu.Lock()
	calls := blocks.calls
	blocks.mu.Unlock()
	if calls < 2 {
		t.Fatalf("block store called %d times, want at least one retry", calls)
	}
}

func TestFindSlots_BadInput(t *testing.T) {
	svc := newTestService(&fakeProfiles{}, &fakeBlocks{}, newFakeBookings())
	cases := []SlotQuery{
		{RequesterZone: "UTC", RequesterHours: "17:00-09:00", InviteeEmail: "a@b.c", Date: "2026-01-15"},
		{RequesterZone: "Mars/Olympus", RequesterHours: "09:00-17:00", InviteeEmail: "a@b.c", Date: "2026-01-15"},
		{RequesterZone: "UTC", RequesterHours: "09:00-17:00", InviteeEmail: "a@b.c", Date: "01/15/2026"},
		{RequesterZone: "UTC", RequesterHours: "09:00-17:00", InviteeEmail: "  ", Date: "2026-01-15"},
	}
	for i, q := range cases {
		if _, err := svc.FindSlots(context.Background(), q); !errors.Is(err, schedule.ErrInvalidInput) {
			t.Fatalf("case %d: err = %v, want ErrInvalidInput", i, err)
		}
	}
}

func TestConfirmBooking_BuildsArtifactsAndEvent(t *testing.T) {
	bookings := newFakeBookings()
	svc := newTestService(&fakeProfiles{}, &fakeBlocks{}, bookings)
	svc.now = func() time.Time {
		return time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	}

	start := time.Date(2026, time.March, 5, 14, 0, 0, 0, time.UTC)
	got, err := svc.ConfirmBooking(context.Background(), BookingRequest{
		Start:        start,
		End:          start.Add(time.Hour),
		ParticipantA: "alice@example.com",
		ParticipantB: "bob@example.com",
		ConfirmedBy:  "alice@example.com",
	})
	if err != nil {
		t.Fatalf("ConfirmBooking: %v", err)
	}
	if got.ID == "" {
		t.Fatal("booking ID not assigned")
	}
	if got.PairKey != "alice@example.com|bob@example.com" {
		t.Fatalf("pair key = %q", got.PairKey)
	}
	if !strings.Contains(got.ICSText, "UID:"+got.ID) {
		t.Fatal("ICS text missing booking UID")
	}
	if !strings.Contains(got.ICSText, "DTSTART:20260305T140000Z") {
		t.Fatalf("ICS text missing UTC start stamp:\n%s", got.ICSText)
	}
	if !strings.Contains(got.CalendarURL, "calendar.google.com") {
		t.Fatalf("calendar URL = %q", got.CalendarURL)
	}

	if len(bookings.events) != 1 {
		t.Fatalf("got %d outbox events, want 1", len(bookings.events))
	}
	evt := bookings.events[0]
	if evt.EventType != outbox.EventTypeMeetingBooked {
		t.Fatalf("event type = %q", evt.EventType)
	}
	if evt.AggregateID != got.ID {
		t.Fatalf("aggregate ID = %q, want %q", evt.AggregateID, got.ID)
	}
	var payload map[string]any
	if err := json.Unmarshal(evt.Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload["booking_id"] != got.ID {
		t.Fatalf("payload booking_id = %v", payload["booking_id"])
	}
}

func TestConfirmBooking_ConcurrentSingleWinner(t *testing.T) {
	bookings := newFakeBookings()
	svc := newTestService(&fakeProfiles{}, &fakeBlocks{}, bookings)

	start := time.Date(2026, time.March, 5, 14, 0, 0, 0, time.UTC)
	req := BookingRequest{
		Start:        start,
		End:          start.Add(time.Hour),
		ParticipantA: "alice@example.com",
		ParticipantB: "bob@example.com",
		ConfirmedBy:  "alice@example.com",
	}
	// Both orderings of the pair race for the same slot.
	reqSwapped := req
	reqSwapped.ParticipantA, reqSwapped.ParticipantB = req.ParticipantB, req.ParticipantA

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for _, r := range []BookingRequest{req, reqSwapped} {
		wg.Add(1)
		go func(r BookingRequest) {
			defer wg.Done()
			_, err := svc.ConfirmBooking(context.Background(), r)
			errs <- err
		}(r)
	}
	wg.Wait()
	close(errs)

	var wins, conflicts int
	for err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrSlotTaken):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 || conflicts != 1 {
		t.Fatalf("wins=%d conflicts=%d, want exactly one of each", wins, conflicts)
	}
	if len(bookings.byKey) != 1 {
		t.Fatalf("%d bookings stored, want 1", len(bookings.byKey))
	}
}

func TestConfirmBooking_RetrySameSlotConflicts(t *testing.T) {
	bookings := newFakeBookings()
	svc := newTestService(&fakeProfiles{}, &fakeBlocks{}, bookings)

	start := time.Date(2026, time.March, 5, 14, 0, 0, 0, time.UTC)
	req := BookingRequest{
		Start:        start,
		End:          start.Add(time.Hour),
		ParticipantA: "alice@example.com",
		ParticipantB: "bob@example.com",
	}
	if _, err := svc.ConfirmBooking(context.Background(), req); err != nil {
		t.Fatalf("first confirm: %v", err)
	}
	if _, err := svc.ConfirmBooking(context.Background(), req); !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("second confirm err = %v, want ErrSlotTaken", err)
	}
}

func TestConfirmBooking_Validation(t *testing.T) {
	svc := newTestService(&fakeProfiles{}, &fakeBlocks{}, newFakeBookings())
	start := time.Date(2026, time.March, 5, 14, 0, 0, 0, time.UTC)

	cases := map[string]BookingRequest{
		"missing participant": {Start: start, End: start.Add(time.Hour), ParticipantA: "a@b.c"},
		"same participant":    {Start: start, End: start.Add(time.Hour), ParticipantA: "a@b.c", ParticipantB: "A@B.C"},
		"end before start":    {Start: start, End: start.Add(-time.Hour), ParticipantA: "a@b.c", ParticipantB: "d@e.f"},
		"wrong duration":      {Start: start, End: start.Add(45 * time.Minute), ParticipantA: "a@b.c", ParticipantB: "d@e.f"},
	}
	for name, req := range cases {
		if _, err := svc.ConfirmBooking(context.Background(), req); !errors.Is(err, schedule.ErrInvalidInput) {
			t.Fatalf("%s: err = %v, want ErrInvalidInput", name, err)
		}
	}
}

func TestListBookings(t *testing.T) {
	bookings := newFakeBookings()
	svc := newTestService(&fakeProfiles{}, &fakeBlocks{}, bookings)

	start := time.Date(2026, time.March, 5, 14, 0, 0, 0, time.UTC)
	if _, err := svc.ConfirmBooking(context.Background(), BookingRequest{
		Start: start, End: start.Add(time.Hour),
		ParticipantA: "alice@example.com", ParticipantB: "bob@example.com",
	}); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	got, err := svc.ListBookings(context.Background(), "bob@example.com", 10)
	if err != nil {
		t.Fatalf("ListBookings: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d bookings, want 1", len(got))
	}
	if _, err := svc.ListBookings(context.Background(), "  ", 10); !errors.Is(err, schedule.ErrInvalidInput) {
		t.Fatalf("blank email err = %v, want ErrInvalidInput", err)
	}
}
