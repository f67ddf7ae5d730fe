package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	redisclient "github.com/reportgov/meeting-scheduler/internal/redis"
	"github.com/reportgov/meeting-scheduler/internal/slot"
)

// SlotService defines the scheduling operations the handlers depend on.
// Declaring it here lets handler tests inject a mock without a database.
type SlotService interface {
	CreateSlot(ctx context.Context, actor slot.Actor, in slot.CreateSlotInput) (*slot.Slot, error)
	CreateDailyBlock(ctx context.Context, actor slot.Actor, in slot.DailyBlockInput) (slot.DailyBlockResult, error)
	Book(ctx context.Context, actor slot.Actor, slotID uuid.UUID) (*slot.Slot, error)
	Cancel(ctx context.Context, actor slot.Actor, slotID uuid.UUID) (*slot.Slot, error)
	SetActive(ctx context.Context, actor slot.Actor, slotID uuid.UUID, active bool) (*slot.Slot, error)
	Delete(ctx context.Context, actor slot.Actor, slotID uuid.UUID) error

	SlotsForStaffOnDay(ctx context.Context, staffID uuid.UUID, day time.Time) ([]slot.Slot, error)
	AvailableSlotsForStaff(ctx context.Context, staffID uuid.UUID) ([]slot.Slot, error)
	FirstAvailableSlot(ctx context.Context, staffID uuid.UUID) (*slot.Slot, error)
	MyBookedSlots(ctx context.Context, actorID uuid.UUID) ([]slot.Slot, error)
	UpcomingForStaff(ctx context.Context, staffID uuid.UUID) ([]slot.Slot, error)
	CalendarMarkers(ctx context.Context, staffID uuid.UUID, year int, month time.Month) ([]slot.DayMarker, error)
}

// actorFromRequest builds the acting identity from the gateway-provided
// headers. Verifying the identity itself is the gateway's job; the service
// re-checks ownership and role rules on every transition.
func actorFromRequest(r *http.Request) (slot.Actor, bool) {
	id, err := uuid.Parse(r.Header.Get("X-Actor-ID"))
	if err != nil {
		return slot.Actor{}, false
	}
	role := slot.Role(r.Header.Get("X-Actor-Role"))
	if role != slot.RoleStaff && role != slot.RoleMDA {
		return slot.Actor{}, false
	}
	return slot.Actor{ID: id, Role: role}, true
}

func createSlotHandler(svc SlotService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFromRequest(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_actor", "X-Actor-ID and X-Actor-Role headers are required")
			return
		}

		var req CreateSlotRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		staffID, err := uuid.Parse(req.StaffID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_staff_id", "staff_id must be a valid UUID")
			return
		}

		created, err := svc.CreateSlot(r.Context(), actor, slot.CreateSlotInput{
			StaffID:         staffID,
			StartTime:       req.StartTime,
			DurationMinutes: req.DurationMinutes,
		})
		if err != nil {
			handleSlotError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toSlotResponse(created))
	}
}

func dailyBlockHandler(svc SlotService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFromRequest(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_actor", "X-Actor-ID and X-Actor-Role headers are required")
			return
		}

		var req DailyBlockRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		staffID, err := uuid.Parse(req.StaffID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_staff_id", "staff_id must be a valid UUID")
			return
		}

		date, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		result, err := svc.CreateDailyBlock(r.Context(), actor, slot.DailyBlockInput{
			StaffID:         staffID,
			Date:            date,
			StartHour:       req.StartHour,
			Count:           req.Count,
			DurationMinutes: req.DurationMinutes,
		})
		if err != nil {
			handleSlotError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, DailyBlockResponse(result))
	}
}

func slotIDFromURL(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_slot_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func bookSlotHandler(svc SlotService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFromRequest(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_actor", "X-Actor-ID and X-Actor-Role headers are required")
			return
		}
		id, ok := slotIDFromURL(w, r)
		if !ok {
			return
		}

		booked, err := svc.Book(r.Context(), actor, id)
		if err != nil {
			handleSlotError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toSlotResponse(booked))
	}
}

func cancelSlotHandler(svc SlotService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFromRequest(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_actor", "X-Actor-ID and X-Actor-Role headers are required")
			return
		}
		id, ok := slotIDFromURL(w, r)
		if !ok {
			return
		}

		released, err := svc.Cancel(r.Context(), actor, id)
		if err != nil {
			handleSlotError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toSlotResponse(released))
	}
}

func setActiveHandler(svc SlotService, active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFromRequest(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_actor", "X-Actor-ID and X-Actor-Role headers are required")
			return
		}
		id, ok := slotIDFromURL(w, r)
		if !ok {
			return
		}

		updated, err := svc.SetActive(r.Context(), actor, id, active)
		if err != nil {
			handleSlotError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toSlotResponse(updated))
	}
}

func deleteSlotHandler(svc SlotService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFromRequest(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_actor", "X-Actor-ID and X-Actor-Role headers are required")
			return
		}
		id, ok := slotIDFromURL(w, r)
		if !ok {
			return
		}

		if err := svc.Delete(r.Context(), actor, id); err != nil {
			handleSlotError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func staffIDFromURL(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_staff_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func staffDayHandler(svc SlotService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		staffID, ok := staffIDFromURL(w, r)
		if !ok {
			return
		}

		day, err := time.Parse("2006-01-02", r.URL.Query().Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date query parameter must be YYYY-MM-DD")
			return
		}

		slots, err := svc.SlotsForStaffOnDay(r.Context(), staffID, day)
		if err != nil {
			handleSlotError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toSlotResponses(slots))
	}
}

func availableSlotsHandler(svc SlotService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		staffID, ok := staffIDFromURL(w, r)
		if !ok {
			return
		}

		slots, err := svc.AvailableSlotsForStaff(r.Context(), staffID)
		if err != nil {
			handleSlotError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toSlotResponses(slots))
	}
}

func firstAvailableHandler(svc SlotService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		staffID, ok := staffIDFromURL(w, r)
		if !ok {
			return
		}

		first, err := svc.FirstAvailableSlot(r.Context(), staffID)
		if err != nil {
			handleSlotError(w, err)
			return
		}
		if first == nil {
			writeError(w, http.StatusNotFound, "no_available_slots", "staff member has no bookable slots")
			return
		}

		writeJSON(w, http.StatusOK, toSlotResponse(first))
	}
}

func upcomingMeetingsHandler(svc SlotService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		staffID, ok := staffIDFromURL(w, r)
		if !ok {
			return
		}

		slots, err := svc.UpcomingForStaff(r.Context(), staffID)
		if err != nil {
			handleSlotError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toSlotResponses(slots))
	}
}

func myBookingsHandler(svc SlotService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_user_id", "id must be a valid UUID")
			return
		}

		slots, err := svc.MyBookedSlots(r.Context(), actorID)
		if err != nil {
			handleSlotError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toSlotResponses(slots))
	}
}

func calendarHandler(svc SlotService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		staffID, ok := staffIDFromURL(w, r)
		if !ok {
			return
		}

		month, err := time.Parse("2006-01", r.URL.Query().Get("month"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_month", "month query parameter must be YYYY-MM")
			return
		}

		markers, err := svc.CalendarMarkers(r.Context(), staffID, month.Year(), month.Month())
		if err != nil {
			handleSlotError(w, err)
			return
		}

		out := make([]DayMarkerResponse, 0, len(markers))
		for _, m := range markers {
			out = append(out, DayMarkerResponse(m))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleSlotError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, slot.ErrStaffNotFound):
		writeError(w, http.StatusNotFound, "staff_not_found", err.Error())
	case errors.Is(err, slot.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "user_not_found", err.Error())
	case errors.Is(err, slot.ErrSlotNotFound):
		writeError(w, http.StatusNotFound, "slot_not_found", err.Error())
	case errors.Is(err, slot.ErrDuplicateSlot):
		writeError(w, http.StatusConflict, "duplicate_slot", err.Error())
	case errors.Is(err, slot.ErrAlreadyBooked):
		writeError(w, http.StatusConflict, "slot_already_booked", err.Error())
	case errors.Is(err, slot.ErrExpired):
		writeError(w, http.StatusConflict, "slot_expired", err.Error())
	case errors.Is(err, slot.ErrInactive):
		writeError(w, http.StatusConflict, "slot_inactive", err.Error())
	case errors.Is(err, slot.ErrNotBooked):
		writeError(w, http.StatusConflict, "slot_not_booked", err.Error())
	case errors.Is(err, slot.ErrSlotBooked):
		writeError(w, http.StatusConflict, "slot_booked", err.Error())
	case errors.Is(err, slot.ErrSlotBeingBooked),
		errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "slot_being_booked", "slot is currently being booked, please retry shortly")
	case errors.Is(err, slot.ErrPastSlot):
		writeError(w, http.StatusUnprocessableEntity, "slot_in_past", err.Error())
	case errors.Is(err, slot.ErrInvalidDuration):
		writeError(w, http.StatusUnprocessableEntity, "invalid_duration", err.Error())
	case errors.Is(err, slot.ErrNotOwner):
		writeError(w, http.StatusForbidden, "not_owner", err.Error())
	case errors.Is(err, slot.ErrActorRoleInvalid):
		writeError(w, http.StatusForbidden, "role_not_permitted", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
