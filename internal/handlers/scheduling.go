package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sachinsingh018/meetsync/internal/schedule"
	"github.com/sachinsingh018/meetsync/internal/scheduler"
)

// SchedulingHandler exposes the cross-timezone scheduling API. Identity
// arrives pre-authenticated from the platform gateway as X-User-Id.
type SchedulingHandler struct {
	svc    *scheduler.Service
	logger *slog.Logger
}

func NewSchedulingHandler(svc *scheduler.Service, logger *slog.Logger) *SchedulingHandler {
	return &SchedulingHandler{svc: svc, logger: logger}
}

type findSlotsRequest struct {
	UserA struct {
		Email        string `json:"email"`
		TimeZone     string `json:"timeZone"`
		WorkingHours string `json:"workingHours"`
	} `json:"userA"`
	UserBEmail string `json:"userBEmail"`
	Date       string `json:"date"`
}

type slotItem struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type userItem struct {
	Name     string `json:"name"`
	TimeZone string `json:"timeZone"`
}

type findSlotsResponse struct {
	Slots        []slotItem `json:"slots"`
	UserB        *userItem  `json:"userB,omitempty"`
	BlockedSlots []slotItem `json:"blockedSlots,omitempty"`
	Error        string     `json:"error,omitempty"`
}

func (h *SchedulingHandler) FindSlots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req findSlotsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	res, err := h.svc.FindSlots(r.Context(), scheduler.SlotQuery{
		RequesterID:    strings.TrimSpace(r.Header.Get("X-User-Id")),
		RequesterEmail: strings.TrimSpace(req.UserA.Email),
		RequesterZone:  strings.TrimSpace(req.UserA.TimeZone),
		RequesterHours: strings.TrimSpace(req.UserA.WorkingHours),
		InviteeEmail:   strings.TrimSpace(req.UserBEmail),
		Date:           strings.TrimSpace(req.Date),
	})
	switch {
	case err == nil:
	case errors.Is(err, schedule.ErrNoOverlap), errors.Is(err, schedule.ErrNoFreeSlots):
		// No mutual availability is a normal outcome, not a failure: the
		// client falls back to manual scheduling with the reason attached.
		writeJSON(w, http.StatusOK, findSlotsResponse{
			Slots:        []slotItem{},
			UserB:        profileItem(res),
			BlockedSlots: intervalItems(res.Blocked),
			Error:        err.Error(),
		})
		return
	case errors.Is(err, schedule.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, scheduler.ErrProfileNotFound):
		writeError(w, http.StatusNotFound, "user not found")
		return
	case errors.Is(err, scheduler.ErrUpstream):
		writeError(w, http.StatusServiceUnavailable, "availability data temporarily unavailable")
		return
	default:
		h.logger.Error("find slots failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	slots := make([]slotItem, 0, len(res.Slots))
	for _, s := range res.Slots {
		slots = append(slots, slotItem{
			Start: s.Start.UTC().Format(time.RFC3339),
			End:   s.End.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, findSlotsResponse{
		Slots:        slots,
		UserB:        profileItem(res),
		BlockedSlots: intervalItems(res.Blocked),
	})
}

type confirmBookingRequest struct {
	Slot struct {
		Start string `json:"start"`
		End   string `json:"end"`
	} `json:"slot"`
	Participants struct {
		A string `json:"a"`
		B string `json:"b"`
	} `json:"participants"`
}

type bookingItem struct {
	BookingID           string `json:"bookingId"`
	Start               string `json:"start"`
	End                 string `json:"end"`
	ParticipantA        string `json:"participantA"`
	ParticipantB        string `json:"participantB"`
	ICSText             string `json:"icsText"`
	ExternalCalendarURL string `json:"externalCalendarUrl"`
}

func (h *SchedulingHandler) ConfirmBooking(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req confirmBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	start, err := time.Parse(time.RFC3339, req.Slot.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid slot start")
		return
	}
	end, err := time.Parse(time.RFC3339, req.Slot.End)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid slot end")
		return
	}

	booking, err := h.svc.ConfirmBooking(r.Context(), scheduler.BookingRequest{
		Start:        start,
		End:          end,
		ParticipantA: req.Participants.A,
		ParticipantB: req.Participants.B,
		ConfirmedBy:  strings.TrimSpace(r.Header.Get("X-User-Id")),
	})
	switch {
	case err == nil:
	case errors.Is(err, scheduler.ErrSlotTaken):
		writeError(w, http.StatusConflict, "conflict")
		return
	case errors.Is(err, schedule.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	default:
		h.logger.Error("confirm booking failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]bookingItem{
		"booking": {
			BookingID:           booking.ID,
			Start:               booking.StartTime.Format(time.RFC3339),
			End:                 booking.EndTime.Format(time.RFC3339),
			ParticipantA:        booking.ParticipantA,
			ParticipantB:        booking.ParticipantB,
			ICSText:             booking.ICSText,
			ExternalCalendarURL: booking.CalendarURL,
		},
	})
}

func (h *SchedulingHandler) ListBookings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	email := strings.TrimSpace(r.URL.Query().Get("email"))
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	bookings, err := h.svc.ListBookings(r.Context(), email, limit)
	switch {
	case err == nil:
	case errors.Is(err, schedule.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	default:
		h.logger.Error("list bookings failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	items := make([]bookingItem, 0, len(bookings))
	for _, b := range bookings {
		items = append(items, bookingItem{
			BookingID:           b.ID,
			Start:               b.StartTime.Format(time.RFC3339),
			End:                 b.EndTime.Format(time.RFC3339),
			ParticipantA:        b.ParticipantA,
			ParticipantB:        b.ParticipantB,
			ICSText:             b.ICSText,
			ExternalCalendarURL: b.CalendarURL,
		})
	}
	writeJSON(w, http.StatusOK, map[string][]bookingItem{"bookings": items})
}

func profileItem(res scheduler.SlotResult) *userItem {
	if res.Invitee.Email == "" {
		return nil
	}
	return &userItem{Name: res.Invitee.Name, TimeZone: res.Invitee.TimeZone}
}

func intervalItems(in []schedule.Interval) []slotItem {
	if len(in) == 0 {
		return nil
	}
	out := make([]slotItem, 0, len(in))
	for _, iv := range in {
		out = append(out, slotItem{
			Start: iv.Start.UTC().Format(time.RFC3339),
			End:   iv.End.UTC().Format(time.RFC3339),
		})
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	body, err := json.Marshal(map[string]string{"error": msg})
	if err != nil {
		http.Error(w, msg, status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
