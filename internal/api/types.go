package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/reportgov/meeting-scheduler/internal/slot"
)

type CreateSlotRequest struct {
	StaffID         string    `json:"staff_id"`
	StartTime       time.Time `json:"start_time"`
	DurationMinutes int       `json:"duration_minutes"`
}

type DailyBlockRequest struct {
	StaffID         string `json:"staff_id"`
	Date            string `json:"date"` // YYYY-MM-DD
	StartHour       int    `json:"start_hour,omitempty"`
	Count           int    `json:"count,omitempty"`
	DurationMinutes int    `json:"duration_minutes,omitempty"`
}

type DailyBlockResponse struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}

type SlotResponse struct {
	ID              uuid.UUID  `json:"id"`
	StaffID         uuid.UUID  `json:"staff_id"`
	Workstream      string     `json:"workstream"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         time.Time  `json:"end_time"`
	DurationMinutes int        `json:"duration_minutes"`
	Status          string     `json:"status"`
	BookedBy        *uuid.UUID `json:"booked_by,omitempty"`
}

type DayMarkerResponse struct {
	Day         int  `json:"day"`
	HasSlots    bool `json:"has_slots"`
	FullyBooked bool `json:"fully_booked"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toSlotResponse(s *slot.Slot) SlotResponse {
	return SlotResponse{
		ID:              s.ID,
		StaffID:         s.StaffID,
		Workstream:      s.Workstream,
		StartTime:       s.StartTime,
		EndTime:         s.EndTime(),
		DurationMinutes: s.DurationMinutes,
		Status:          string(s.Status),
		BookedBy:        s.BookedBy,
	}
}

func toSlotResponses(slots []slot.Slot) []SlotResponse {
	out := make([]SlotResponse, 0, len(slots))
	for i := range slots {
		out = append(out, toSlotResponse(&slots[i]))
	}
	return out
}
