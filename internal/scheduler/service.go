package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/sachinsingh018/meetsync/internal/calendar"
	"github.com/sachinsingh018/meetsync/internal/model"
	"github.com/sachinsingh018/meetsync/internal/outbox"
	"github.com/sachinsingh018/meetsync/internal/schedule"
)

// ProfileStore resolves an email to a user profile. Implementations return
// an error satisfying errors.Is(err, ErrProfileNotFound) for unknown emails.
type ProfileStore interface {
	GetByEmail(ctx context.Context, email string) (model.Profile, error)
}

// BlockStore lists a party's recurring blocked intervals.
type BlockStore interface {
	ListByOwner(ctx context.Context, ownerID string) ([]schedule.RecurringBlock, error)
}

// BookingStore persists bookings with compare-and-set semantics on
// (pair key, start time) and writes the outbox event in the same
// transaction. Implementations return an error satisfying
// errors.Is(err, ErrSlotTaken) when the key is already occupied.
type BookingStore interface {
	Commit(ctx context.Context, b *model.Booking, evt outbox.Event) error
	ListByParticipant(ctx context.Context, email string, limit int) ([]model.Booking, error)
}

type Config struct {
	MeetingDuration time.Duration
	SlotStride      time.Duration
	MaxSlots        int
	UpstreamTimeout time.Duration
	UpstreamTries   uint
}

func (c Config) withDefaults() Config {
	if c.MeetingDuration <= 0 {
		c.MeetingDuration = 60 * time.Minute
	}
	if c.SlotStride <= 0 {
		c.SlotStride = 30 * time.Minute
	}
	if c.MaxSlots <= 0 {
		c.MaxSlots = 50
	}
	if c.UpstreamTimeout <= 0 {
		c.UpstreamTimeout = 3 * time.Second
	}
	if c.UpstreamTries == 0 {
		c.UpstreamTries = 3
	}
	return c
}

// Service is the scheduling façade: it fetches both parties' inputs, runs
// the pure availability pipeline, and commits bookings.
type Service struct {
	profiles ProfileStore
	blocks   BlockStore
	bookings BookingStore
	logger   *slog.Logger
	cfg      Config
	now      func() time.Time
}

func New(profiles ProfileStore, blocks BlockStore, bookings BookingStore, logger *slog.Logger, cfg Config) *Service {
	return &Service{
		profiles: profiles,
		blocks:   blocks,
		bookings: bookings,
		logger:   logger,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
	}
}

// SlotQuery is a find-slots request. The requester supplies their zone and
// working hours inline; the invitee's come from the profile store.
type SlotQuery struct {
	RequesterID    string
	RequesterEmail string
	RequesterZone  string
	RequesterHours string // "HH:MM-HH:MM"
	InviteeEmail   string
	Date           string // "YYYY-MM-DD"
}

type SlotResult struct {
	Slots   []schedule.Slot
	Blocked []schedule.Interval
	Invitee model.Profile
}

// FindSlots computes the mutually bookable slots for the query date. The
// date is interpreted in each party's own zone. Availability is recomputed
// from scratch on every call; nothing is cached across daylight-saving
// boundaries.
func (s *Service) FindSlots(ctx context.Context, q SlotQuery) (SlotResult, error) {
	hours, err := schedule.ParseWorkingHours(q.RequesterHours)
	if err != nil {
		return SlotResult{}, err
	}
	date, err := schedule.ParseDate(q.Date)
	if err != nil {
		return SlotResult{}, err
	}
	if _, err := schedule.LoadZone(q.RequesterZone); err != nil {
		return SlotResult{}, err
	}
	if strings.TrimSpace(q.InviteeEmail) == "" {
		return SlotResult{}, fmt.Errorf("%w: invitee email required", schedule.ErrInvalidInput)
	}

	// Both parties' reads are independent; issue them concurrently. Each
	// read has its own bounded timeout and retry, and any exhausted read
	// fails the whole request closed.
	var (
		requesterBlocks []schedule.RecurringBlock
		inviteeBlocks   []schedule.RecurringBlock
		invitee         model.Profile
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		requesterBlocks, err = s.fetchBlocks(gctx, q.RequesterID)
		return err
	})
	g.Go(func() error {
		var err error
		invitee, err = s.fetchProfile(gctx, q.InviteeEmail)
		if err != nil {
			return err
		}
		inviteeBlocks, err = s.fetchBlocks(gctx, invitee.ID)
		return err
	})
	if err := g.Wait(); err != nil {
		return SlotResult{}, err
	}

	avail, err := schedule.FreeIntervals(
		schedule.Party{Zone: q.RequesterZone, Hours: hours, Blocks: requesterBlocks},
		schedule.Party{Zone: invitee.TimeZone, Hours: invitee.Hours, Blocks: inviteeBlocks},
		date,
	)
	if err != nil {
		// Blocked intervals ride along on ErrNoFreeSlots so the caller
		// can say which blocks consumed the overlap.
		return SlotResult{Blocked: avail.Blocked, Invitee: invitee}, err
	}

	slots := schedule.TileSlots(avail.Free, s.cfg.MeetingDuration, s.cfg.SlotStride, s.cfg.MaxSlots)
	return SlotResult{Slots: slots, Blocked: avail.Blocked, Invitee: invitee}, nil
}

// BookingRequest confirms one chosen slot.
type BookingRequest struct {
	Start        time.Time
	End          time.Time
	ParticipantA string
	ParticipantB string
	ConfirmedBy  string
}

// ConfirmBooking commits the slot for the participant pair. Exactly one
// concurrent caller wins; the rest get ErrSlotTaken. The invite artifacts
// are derived from the slot's UTC instants before the write so the stored
// booking is complete and immutable.
func (s *Service) ConfirmBooking(ctx context.Context, req BookingRequest) (model.Booking, error) {
	a := strings.TrimSpace(req.ParticipantA)
	b := strings.TrimSpace(req.ParticipantB)
	if a == "" || b == "" {
		return model.Booking{}, fmt.Errorf("%w: both participants required", schedule.ErrInvalidInput)
	}
	if strings.EqualFold(a, b) {
		return model.Booking{}, fmt.Errorf("%w: participants must differ", schedule.ErrInvalidInput)
	}
	if !req.End.After(req.Start) {
		return model.Booking{}, fmt.Errorf("%w: slot end not after start", schedule.ErrInvalidInput)
	}
	if req.End.Sub(req.Start) != s.cfg.MeetingDuration {
		return model.Booking{}, fmt.Errorf("%w: slot must be exactly %s long", schedule.ErrInvalidInput, s.cfg.MeetingDuration)
	}

	createdAt := s.now().UTC()
	booking := model.Booking{
		ID:           uuid.NewString(),
		PairKey:      model.PairKey(a, b),
		StartTime:    req.Start.UTC(),
		EndTime:      req.End.UTC(),
		ParticipantA: a,
		ParticipantB: b,
		ConfirmedBy:  strings.TrimSpace(req.ConfirmedBy),
		CreatedAt:    createdAt,
	}

	inv := calendar.Invite{
		UID:       booking.ID,
		Summary:   fmt.Sprintf("Meeting: %s and %s", a, b),
		Start:     booking.StartTime,
		End:       booking.EndTime,
		Stamp:     createdAt,
		Organizer: booking.ConfirmedBy,
		Attendees: []string{a, b},
	}
	booking.ICSText = calendar.ICS(inv)
	booking.CalendarURL = calendar.GoogleCalendarURL(inv)

	payload, err := json.Marshal(map[string]any{
		"booking_id":   booking.ID,
		"participants": []string{a, b},
		"confirmed_by": booking.ConfirmedBy,
		"start_time":   booking.StartTime.Format(time.RFC3339),
		"end_time":     booking.EndTime.Format(time.RFC3339),
		"ics_text":     booking.ICSText,
		"calendar_url": booking.CalendarURL,
	})
	if err != nil {
		return model.Booking{}, fmt.Errorf("build booking event payload: %w", err)
	}

	evt := outbox.Event{
		AggregateType: "booking",
		AggregateID:   booking.ID,
		EventType:     outbox.EventTypeMeetingBooked,
		Payload:       payload,
	}
	if err := s.bookings.Commit(ctx, &booking, evt); err != nil {
		return model.Booking{}, err
	}

	s.logger.Info("booking committed",
		"booking_id", booking.ID,
		"pair_key", booking.PairKey,
		"start_time", booking.StartTime.Format(time.RFC3339),
	)
	return booking, nil
}

// ListBookings returns a participant's confirmed bookings, newest first.
func (s *Service) ListBookings(ctx context.Context, email string, limit int) ([]model.Booking, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, fmt.Errorf("%w: email required", schedule.ErrInvalidInput)
	}
	return s.bookings.ListByParticipant(ctx, email, limit)
}

func (s *Service) fetchProfile(ctx context.Context, email string) (model.Profile, error) {
	p, err := backoff.Retry(ctx, func() (model.Profile, error) {
		opCtx, cancel := context.WithTimeout(ctx, s.cfg.UpstreamTimeout)
		defer cancel()
		p, err := s.profiles.GetByEmail(opCtx, email)
		if err != nil {
			if errors.Is(err, ErrProfileNotFound) {
				return model.Profile{}, backoff.Permanent(err)
			}
			return model.Profile{}, err
		}
		return p, nil
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(s.cfg.UpstreamTries))
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			return model.Profile{}, err
		}
		return model.Profile{}, fmt.Errorf("%w: profile read for %s: %v", ErrUpstream, email, err)
	}
	return p, nil
}

func (s *Service) fetchBlocks(ctx context.Context, ownerID string) ([]schedule.RecurringBlock, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, nil
	}
	blocks, err := backoff.Retry(ctx, func() ([]schedule.RecurringBlock, error) {
		opCtx, cancel := context.WithTimeout(ctx, s.cfg.UpstreamTimeout)
		defer cancel()
		return s.blocks.ListByOwner(opCtx, ownerID)
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(s.cfg.UpstreamTries))
	if err != nil {
		return nil, fmt.Errorf("%w: block read for %s: %v", ErrUpstream, ownerID, err)
	}
	return blocks, nil
}
