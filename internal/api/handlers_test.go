package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reportgov/meeting-scheduler/internal/slot"
)

// mockService is a hand-written test double for SlotService.
type mockService struct {
	createSlot       func(ctx context.Context, actor slot.Actor, in slot.CreateSlotInput) (*slot.Slot, error)
	createDailyBlock func(ctx context.Context, actor slot.Actor, in slot.DailyBlockInput) (slot.DailyBlockResult, error)
	book             func(ctx context.Context, actor slot.Actor, slotID uuid.UUID) (*slot.Slot, error)
	cancel           func(ctx context.Context, actor slot.Actor, slotID uuid.UUID) (*slot.Slot, error)
	setActive        func(ctx context.Context, actor slot.Actor, slotID uuid.UUID, active bool) (*slot.Slot, error)
	del              func(ctx context.Context, actor slot.Actor, slotID uuid.UUID) error
	forDay           func(ctx context.Context, staffID uuid.UUID, day time.Time) ([]slot.Slot, error)
	available        func(ctx context.Context, staffID uuid.UUID) ([]slot.Slot, error)
	firstAvailable   func(ctx context.Context, staffID uuid.UUID) (*slot.Slot, error)
	myBooked         func(ctx context.Context, actorID uuid.UUID) ([]slot.Slot, error)
	upcoming         func(ctx context.Context, staffID uuid.UUID) ([]slot.Slot, error)
	calendar         func(ctx context.Context, staffID uuid.UUID, year int, month time.Month) ([]slot.DayMarker, error)
}

func (m *mockService) CreateSlot(ctx context.Context, actor slot.Actor, in slot.CreateSlotInput) (*slot.Slot, error) {
	return m.createSlot(ctx, actor, in)
}
func (m *mockService) CreateDailyBlock(ctx context.Context, actor slot.Actor, in slot.DailyBlockInput) (slot.DailyBlockResult, error) {
	return m.createDailyBlock(ctx, actor, in)
}
func (m *mockService) Book(ctx context.Context, actor slot.Actor, slotID uuid.UUID) (*slot.Slot, error) {
	return m.book(ctx, actor, slotID)
}
func (m *mockService) Cancel(ctx context.Context, actor slot.Actor, slotID uuid.UUID) (*slot.Slot, error) {
	return m.cancel(ctx, actor, slotID)
}
func (m *mockService) SetActive(ctx context.Context, actor slot.Actor, slotID uuid.UUID, active bool) (*slot.Slot, error) {
	return m.setActive(ctx, actor, slotID, active)
}
func (m *mockService) Delete(ctx context.Context, actor slot.Actor, slotID uuid.UUID) error {
	return m.del(ctx, actor, slotID)
}
func (m *mockService) SlotsForStaffOnDay(ctx context.Context, staffID uuid.UUID, day time.Time) ([]slot.Slot, error) {
	return m.forDay(ctx, staffID, day)
}
func (m *mockService) AvailableSlotsForStaff(ctx context.Context, staffID uuid.UUID) ([]slot.Slot, error) {
	return m.available(ctx, staffID)
}
func (m *mockService) FirstAvailableSlot(ctx context.Context, staffID uuid.UUID) (*slot.Slot, error) {
	return m.firstAvailable(ctx, staffID)
}
func (m *mockService) MyBookedSlots(ctx context.Context, actorID uuid.UUID) ([]slot.Slot, error) {
	return m.myBooked(ctx, actorID)
}
func (m *mockService) UpcomingForStaff(ctx context.Context, staffID uuid.UUID) ([]slot.Slot, error) {
	return m.upcoming(ctx, staffID)
}
func (m *mockService) CalendarMarkers(ctx context.Context, staffID uuid.UUID, year int, month time.Month) ([]slot.DayMarker, error) {
	return m.calendar(ctx, staffID, year, month)
}

var _ SlotService = (*mockService)(nil)

func testSlot(staffID uuid.UUID) *slot.Slot {
	return &slot.Slot{
		ID:              uuid.New(),
		StaffID:         staffID,
		Workstream:      "regulatory",
		StartTime:       time.Date(2025, 6, 10, 14, 0, 0, 0, time.UTC),
		DurationMinutes: 60,
		Status:          slot.StatusFree,
	}
}

func withActor(req *http.Request, id uuid.UUID, role string) *http.Request {
	req.Header.Set("X-Actor-ID", id.String())
	req.Header.Set("X-Actor-Role", role)
	return req
}

func newTestRouter(svc SlotService) http.Handler {
	// Health endpoints are not wired here; they need live dependencies.
	return NewRouter(RouterConfig{
		Service:     svc,
		CORSOrigins: []string{"http://localhost:3000"},
		Env:         "test",
		Version:     "test",
	})
}

func TestBookSlotHandler(t *testing.T) {
	staffID := uuid.New()
	actorID := uuid.New()

	t.Run("books and returns the slot", func(t *testing.T) {
		s := testSlot(staffID)
		s.Status = slot.StatusBooked
		s.BookedBy = &actorID

		svc := &mockService{
			book: func(_ context.Context, actor slot.Actor, slotID uuid.UUID) (*slot.Slot, error) {
				assert.Equal(t, actorID, actor.ID)
				assert.Equal(t, slot.RoleMDA, actor.Role)
				assert.Equal(t, s.ID, slotID)
				return s, nil
			},
		}

		req := withActor(httptest.NewRequest(http.MethodPost, "/slots/"+s.ID.String()+"/book", nil), actorID, "mda")
		rec := httptest.NewRecorder()
		newTestRouter(svc).ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var resp SlotResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, s.ID, resp.ID)
		assert.Equal(t, "booked", resp.Status)
		require.NotNil(t, resp.BookedBy)
		assert.Equal(t, actorID, *resp.BookedBy)
		assert.Equal(t, s.StartTime.Add(time.Hour), resp.EndTime)
	})

	t.Run("missing actor headers is a bad request", func(t *testing.T) {
		svc := &mockService{}

		req := httptest.NewRequest(http.MethodPost, "/slots/"+uuid.NewString()+"/book", nil)
		rec := httptest.NewRecorder()
		newTestRouter(svc).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed slot id is a bad request", func(t *testing.T) {
		svc := &mockService{}

		req := withActor(httptest.NewRequest(http.MethodPost, "/slots/not-a-uuid/book", nil), actorID, "mda")
		rec := httptest.NewRecorder()
		newTestRouter(svc).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("error mapping", func(t *testing.T) {
		cases := []struct {
			name   string
			err    error
			status int
			code   string
		}{
			{"already booked", slot.ErrAlreadyBooked, http.StatusConflict, "slot_already_booked"},
			{"expired", slot.ErrExpired, http.StatusConflict, "slot_expired"},
			{"inactive", slot.ErrInactive, http.StatusConflict, "slot_inactive"},
			{"being booked", slot.ErrSlotBeingBooked, http.StatusConflict, "slot_being_booked"},
			{"not found", slot.ErrSlotNotFound, http.StatusNotFound, "slot_not_found"},
			{"role", slot.ErrActorRoleInvalid, http.StatusForbidden, "role_not_permitted"},
		}

		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				svc := &mockService{
					book: func(context.Context, slot.Actor, uuid.UUID) (*slot.Slot, error) {
						return nil, tc.err
					},
				}

				req := withActor(httptest.NewRequest(http.MethodPost, "/slots/"+uuid.NewString()+"/book", nil), actorID, "mda")
				rec := httptest.NewRecorder()
				newTestRouter(svc).ServeHTTP(rec, req)

				assert.Equal(t, tc.status, rec.Code)

				var resp ErrorResponse
				require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
				assert.Equal(t, tc.code, resp.Error)
			})
		}
	})
}

func TestCreateSlotHandler(t *testing.T) {
	staffID := uuid.New()

	t.Run("creates a slot", func(t *testing.T) {
		s := testSlot(staffID)

		svc := &mockService{
			createSlot: func(_ context.Context, actor slot.Actor, in slot.CreateSlotInput) (*slot.Slot, error) {
				assert.Equal(t, staffID, in.StaffID)
				assert.Equal(t, 60, in.DurationMinutes)
				return s, nil
			},
		}

		body := `{"staff_id":"` + staffID.String() + `","start_time":"2025-06-10T14:00:00Z","duration_minutes":60}`
		req := withActor(httptest.NewRequest(http.MethodPost, "/slots", strings.NewReader(body)), staffID, "staff")
		rec := httptest.NewRecorder()
		newTestRouter(svc).ServeHTTP(rec, req)

		require.Equal(t, http.StatusCreated, rec.Code)
	})

	t.Run("past start maps to unprocessable entity", func(t *testing.T) {
		svc := &mockService{
			createSlot: func(context.Context, slot.Actor, slot.CreateSlotInput) (*slot.Slot, error) {
				return nil, slot.ErrPastSlot
			},
		}

		body := `{"staff_id":"` + staffID.String() + `","start_time":"2020-01-01T10:00:00Z","duration_minutes":60}`
		req := withActor(httptest.NewRequest(http.MethodPost, "/slots", strings.NewReader(body)), staffID, "staff")
		rec := httptest.NewRecorder()
		newTestRouter(svc).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("duplicate maps to conflict", func(t *testing.T) {
		svc := &mockService{
			createSlot: func(context.Context, slot.Actor, slot.CreateSlotInput) (*slot.Slot, error) {
				return nil, slot.ErrDuplicateSlot
			},
		}

		body := `{"staff_id":"` + staffID.String() + `","start_time":"2025-06-10T14:00:00Z","duration_minutes":60}`
		req := withActor(httptest.NewRequest(http.MethodPost, "/slots", strings.NewReader(body)), staffID, "staff")
		rec := httptest.NewRecorder()
		newTestRouter(svc).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("body must be JSON", func(t *testing.T) {
		svc := &mockService{}

		req := withActor(httptest.NewRequest(http.MethodPost, "/slots", strings.NewReader("nope")), staffID, "staff")
		rec := httptest.NewRecorder()
		newTestRouter(svc).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestDailyBlockHandler(t *testing.T) {
	staffID := uuid.New()

	t.Run("zero created is still a success", func(t *testing.T) {
		svc := &mockService{
			createDailyBlock: func(_ context.Context, _ slot.Actor, in slot.DailyBlockInput) (slot.DailyBlockResult, error) {
				assert.Equal(t, staffID, in.StaffID)
				return slot.DailyBlockResult{Created: 0, Skipped: 6}, nil
			},
		}

		body := `{"staff_id":"` + staffID.String() + `","date":"2025-06-11"}`
		req := withActor(httptest.NewRequest(http.MethodPost, "/slots/daily-block", strings.NewReader(body)), staffID, "staff")
		rec := httptest.NewRecorder()
		newTestRouter(svc).ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var resp DailyBlockResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, 0, resp.Created)
		assert.Equal(t, 6, resp.Skipped)
	})

	t.Run("date must be well formed", func(t *testing.T) {
		svc := &mockService{}

		body := `{"staff_id":"` + staffID.String() + `","date":"11/06/2025"}`
		req := withActor(httptest.NewRequest(http.MethodPost, "/slots/daily-block", strings.NewReader(body)), staffID, "staff")
		rec := httptest.NewRecorder()
		newTestRouter(svc).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestProjectionHandlers(t *testing.T) {
	staffID := uuid.New()

	t.Run("day view requires a date", func(t *testing.T) {
		svc := &mockService{}

		req := httptest.NewRequest(http.MethodGet, "/staff/"+staffID.String()+"/slots", nil)
		rec := httptest.NewRecorder()
		newTestRouter(svc).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("available slots returns an array", func(t *testing.T) {
		s := testSlot(staffID)
		svc := &mockService{
			available: func(_ context.Context, id uuid.UUID) ([]slot.Slot, error) {
				assert.Equal(t, staffID, id)
				return []slot.Slot{*s}, nil
			},
		}

		req := httptest.NewRequest(http.MethodGet, "/staff/"+staffID.String()+"/slots/available", nil)
		rec := httptest.NewRecorder()
		newTestRouter(svc).ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var resp []SlotResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		require.Len(t, resp, 1)
		assert.Equal(t, s.ID, resp[0].ID)
	})

	t.Run("first available when none exists", func(t *testing.T) {
		svc := &mockService{
			firstAvailable: func(context.Context, uuid.UUID) (*slot.Slot, error) {
				return nil, nil
			},
		}

		req := httptest.NewRequest(http.MethodGet, "/staff/"+staffID.String()+"/slots/first-available", nil)
		rec := httptest.NewRecorder()
		newTestRouter(svc).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("calendar month must be well formed", func(t *testing.T) {
		svc := &mockService{}

		req := httptest.NewRequest(http.MethodGet, "/staff/"+staffID.String()+"/calendar?month=June", nil)
		rec := httptest.NewRecorder()
		newTestRouter(svc).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("calendar markers round trip", func(t *testing.T) {
		svc := &mockService{
			calendar: func(_ context.Context, id uuid.UUID, year int, month time.Month) ([]slot.DayMarker, error) {
				assert.Equal(t, 2025, year)
				assert.Equal(t, time.June, month)
				return []slot.DayMarker{{Day: 1, HasSlots: true, FullyBooked: false}}, nil
			},
		}

		req := httptest.NewRequest(http.MethodGet, "/staff/"+staffID.String()+"/calendar?month=2025-06", nil)
		rec := httptest.NewRecorder()
		newTestRouter(svc).ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var resp []DayMarkerResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		require.Len(t, resp, 1)
		assert.True(t, resp[0].HasSlots)
	})
}

func TestDeleteSlotHandler(t *testing.T) {
	staffID := uuid.New()

	t.Run("returns no content", func(t *testing.T) {
		id := uuid.New()
		svc := &mockService{
			del: func(_ context.Context, actor slot.Actor, slotID uuid.UUID) error {
				assert.Equal(t, id, slotID)
				return nil
			},
		}

		req := withActor(httptest.NewRequest(http.MethodDelete, "/slots/"+id.String(), nil), staffID, "staff")
		rec := httptest.NewRecorder()
		newTestRouter(svc).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("booked slot maps to conflict", func(t *testing.T) {
		svc := &mockService{
			del: func(context.Context, slot.Actor, uuid.UUID) error {
				return slot.ErrSlotBooked
			},
		}

		req := withActor(httptest.NewRequest(http.MethodDelete, "/slots/"+uuid.NewString(), nil), staffID, "staff")
		rec := httptest.NewRecorder()
		newTestRouter(svc).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("not owner maps to forbidden", func(t *testing.T) {
		svc := &mockService{
			del: func(context.Context, slot.Actor, uuid.UUID) error {
				return slot.ErrNotOwner
			},
		}

		req := withActor(httptest.NewRequest(http.MethodDelete, "/slots/"+uuid.NewString(), nil), staffID, "staff")
		rec := httptest.NewRecorder()
		newTestRouter(svc).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}
