package slot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/reportgov/meeting-scheduler/internal/clock"
	redisclient "github.com/reportgov/meeting-scheduler/internal/redis"
)

const (
	EventSlotCreated     = "SLOT_CREATED"
	EventSlotBooked      = "SLOT_BOOKED"
	EventSlotReleased    = "SLOT_RELEASED"
	EventSlotDeactivated = "SLOT_DEACTIVATED"
	EventSlotReactivated = "SLOT_REACTIVATED"
	EventSlotDeleted     = "SLOT_DELETED"
	EventSlotsExpired    = "SLOTS_EXPIRED"
)

var (
	ErrPastSlot         = errors.New("slot start time is in the past")
	ErrInvalidDuration  = errors.New("slot duration must be between 15 and 120 minutes")
	ErrAlreadyBooked    = errors.New("slot is already booked")
	ErrExpired          = errors.New("slot start time has passed")
	ErrInactive         = errors.New("slot is deactivated")
	ErrNotBooked        = errors.New("slot is not booked")
	ErrSlotBooked       = errors.New("slot is booked, release it first")
	ErrNotOwner         = errors.New("actor does not own this slot")
	ErrSlotBeingBooked  = errors.New("slot is currently being booked, please retry")
	ErrActorRoleInvalid = errors.New("actor role not permitted for this operation")
)

const (
	MinDurationMinutes = 15
	MaxDurationMinutes = 120
)

// Notifier delivers best-effort booking notifications. Failures are logged,
// never propagated.
type Notifier interface {
	SlotBooked(ctx context.Context, s *Slot, booker *User, owner *Staff)
	SlotReleased(ctx context.Context, s *Slot, owner *Staff)
}

type Service struct {
	repo     Repository
	locker   redisclient.Locker
	clock    clock.Clock
	notifier Notifier
}

func NewService(repo Repository, locker redisclient.Locker, clk clock.Clock, notifier Notifier) *Service {
	return &Service{
		repo:     repo,
		locker:   locker,
		clock:    clk,
		notifier: notifier,
	}
}

type CreateSlotInput struct {
	StaffID         uuid.UUID
	StartTime       time.Time
	DurationMinutes int
}

// CreateSlot adds one free slot for a staff member. Only the owning staff
// member may create slots, start times in the past are rejected, and the
// (staff, start time) pair must be unique.
func (s *Service) CreateSlot(ctx context.Context, actor Actor, in CreateSlotInput) (*Slot, error) {
	if err := requireOwner(actor, in.StaffID); err != nil {
		return nil, err
	}
	if in.DurationMinutes < MinDurationMinutes || in.DurationMinutes > MaxDurationMinutes {
		return nil, ErrInvalidDuration
	}
	if !in.StartTime.After(s.clock.Now()) {
		return nil, ErrPastSlot
	}

	staff, err := s.repo.GetStaffByID(ctx, in.StaffID)
	if err != nil {
		return nil, fmt.Errorf("load staff: %w", err)
	}

	created, err := s.repo.CreateSlot(ctx, Slot{
		StaffID:         in.StaffID,
		Workstream:      staff.Workstream,
		StartTime:       in.StartTime.UTC(),
		DurationMinutes: in.DurationMinutes,
		Status:          StatusFree,
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, created.ID, EventSlotCreated, map[string]any{
		"staff_id":   created.StaffID.String(),
		"start_time": created.StartTime,
	})

	return created, nil
}

type DailyBlockInput struct {
	StaffID         uuid.UUID
	Date            time.Time // any instant on the target day, UTC
	StartHour       int
	Count           int
	DurationMinutes int
}

type DailyBlockResult struct {
	Created int
	Skipped int
}

// CreateDailyBlock generates up to Count hourly slots on one day, silently
// skipping start times that are duplicates or already in the past. Creating
// zero slots is a valid result, not an error.
func (s *Service) CreateDailyBlock(ctx context.Context, actor Actor, in DailyBlockInput) (DailyBlockResult, error) {
	if err := requireOwner(actor, in.StaffID); err != nil {
		return DailyBlockResult{}, err
	}
	if in.StartHour == 0 {
		in.StartHour = 10
	}
	if in.Count == 0 {
		in.Count = 6
	}
	if in.DurationMinutes == 0 {
		in.DurationMinutes = 60
	}
	if in.DurationMinutes < MinDurationMinutes || in.DurationMinutes > MaxDurationMinutes {
		return DailyBlockResult{}, ErrInvalidDuration
	}

	staff, err := s.repo.GetStaffByID(ctx, in.StaffID)
	if err != nil {
		return DailyBlockResult{}, fmt.Errorf("load staff: %w", err)
	}

	day := in.Date.UTC()
	now := s.clock.Now()

	var result DailyBlockResult
	for i := 0; i < in.Count; i++ {
		start := time.Date(day.Year(), day.Month(), day.Day(), in.StartHour+i, 0, 0, 0, time.UTC)
		if !start.After(now) {
			result.Skipped++
			continue
		}

		created, err := s.repo.CreateSlot(ctx, Slot{
			StaffID:         in.StaffID,
			Workstream:      staff.Workstream,
			StartTime:       start,
			DurationMinutes: in.DurationMinutes,
			Status:          StatusFree,
		})
		if err != nil {
			if errors.Is(err, ErrDuplicateSlot) {
				result.Skipped++
				continue
			}
			return result, fmt.Errorf("create slot at %s: %w", start, err)
		}

		result.Created++
		s.logEvent(ctx, created.ID, EventSlotCreated, map[string]any{
			"staff_id":   created.StaffID.String(),
			"start_time": created.StartTime,
			"block":      true,
		})
	}

	return result, nil
}

// Book reserves a free slot for an MDA actor. The transition is a conditional
// update (free, future start) so two concurrent bookers cannot both win; the
// per-slot lock keeps the losing request from even reaching the database.
func (s *Service) Book(ctx context.Context, actor Actor, slotID uuid.UUID) (*Slot, error) {
	if actor.Role != RoleMDA {
		return nil, ErrActorRoleInvalid
	}

	booker, err := s.repo.GetUserByID(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("load booking actor: %w", err)
	}

	var booked *Slot

	err = s.locker.WithSlotLock(ctx, slotID, func(lockCtx context.Context) error {
		now := s.clock.Now()

		updated, err := s.repo.BookSlot(lockCtx, slotID, actor.ID, now)
		if err == nil {
			booked = updated
			return nil
		}
		if !errors.Is(err, ErrSlotNotFound) {
			return fmt.Errorf("book slot: %w", err)
		}

		// The conditional update matched no row. Re-read to tell the
		// caller why.
		current, readErr := s.repo.GetSlotByID(lockCtx, slotID)
		if readErr != nil {
			return readErr
		}
		switch {
		case current.Status == StatusBooked:
			return ErrAlreadyBooked
		case current.Status == StatusDeactivated:
			return ErrInactive
		case !current.StartTime.After(now):
			return ErrExpired
		default:
			return ErrSlotBeingBooked
		}
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	s.logEvent(ctx, booked.ID, EventSlotBooked, map[string]any{
		"booked_by": actor.ID.String(),
	})
	s.notifyBooked(ctx, booked, booker)

	return booked, nil
}

// Cancel returns a booked slot to the free pool. The booking actor cancels
// their appointment; the owning staff member releases the slot. Storage does
// not distinguish the two.
func (s *Service) Cancel(ctx context.Context, actor Actor, slotID uuid.UUID) (*Slot, error) {
	current, err := s.repo.GetSlotByID(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if current.Status != StatusBooked {
		return nil, ErrNotBooked
	}

	isBooker := current.BookedBy != nil && *current.BookedBy == actor.ID
	isOwner := actor.Role == RoleStaff && actor.ID == current.StaffID
	if !isBooker && !isOwner {
		return nil, ErrNotOwner
	}

	released, err := s.repo.ReleaseSlot(ctx, slotID)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			// Lost a race with another cancel; the slot is already free.
			return nil, ErrNotBooked
		}
		return nil, fmt.Errorf("release slot: %w", err)
	}

	s.logEvent(ctx, released.ID, EventSlotReleased, map[string]any{
		"released_by": actor.ID.String(),
	})
	s.notifyReleased(ctx, released)

	return released, nil
}

// SetActive toggles a slot in or out of availability. Owner only, and only
// while the slot is unbooked: a booked slot must be released first.
func (s *Service) SetActive(ctx context.Context, actor Actor, slotID uuid.UUID, active bool) (*Slot, error) {
	current, err := s.repo.GetSlotByID(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if err := requireOwner(actor, current.StaffID); err != nil {
		return nil, err
	}
	if current.Status == StatusBooked {
		return nil, ErrSlotBooked
	}

	from, to := StatusFree, StatusDeactivated
	eventType := EventSlotDeactivated
	if active {
		from, to = StatusDeactivated, StatusFree
		eventType = EventSlotReactivated
	}
	if current.Status == to {
		// Idempotent no-op.
		return current, nil
	}

	updated, err := s.repo.SetSlotStatus(ctx, slotID, from, to)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			return nil, ErrSlotBooked
		}
		return nil, fmt.Errorf("set slot status: %w", err)
	}

	s.logEvent(ctx, updated.ID, eventType, map[string]any{})

	return updated, nil
}

// Delete permanently removes an unbooked slot. Owner only.
func (s *Service) Delete(ctx context.Context, actor Actor, slotID uuid.UUID) error {
	current, err := s.repo.GetSlotByID(ctx, slotID)
	if err != nil {
		return err
	}
	if err := requireOwner(actor, current.StaffID); err != nil {
		return err
	}
	if current.Status == StatusBooked {
		return ErrSlotBooked
	}

	if err := s.repo.DeleteSlot(ctx, slotID); err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			return ErrSlotBooked
		}
		return fmt.Errorf("delete slot: %w", err)
	}

	s.logEvent(ctx, slotID, EventSlotDeleted, map[string]any{})

	return nil
}

// DeactivateExpired flips every free slot whose end time has elapsed to
// deactivated. Booked slots are left alone so past meetings stay visible as
// history. Idempotent; returns how many slots were flipped.
func (s *Service) DeactivateExpired(ctx context.Context, staffID *uuid.UUID) (int64, error) {
	n, err := s.repo.DeactivateExpired(ctx, staffID, s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("deactivate expired slots: %w", err)
	}
	if n > 0 {
		s.logEvent(ctx, uuid.Nil, EventSlotsExpired, map[string]any{"count": n})
	}
	return n, nil
}

// SlotsForStaffOnDay lists every slot a staff member has on one calendar day,
// booked or not, for the slot settings view. A best-effort expiry sweep runs
// first so the view reflects elapsed slots without waiting for the worker.
func (s *Service) SlotsForStaffOnDay(ctx context.Context, staffID uuid.UUID, day time.Time) ([]Slot, error) {
	if _, err := s.DeactivateExpired(ctx, &staffID); err != nil {
		log.Printf("best-effort expiry sweep failed for staff %s: %v", staffID, err)
	}

	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)

	slots, err := s.repo.ListSlotsForStaffBetween(ctx, staffID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list slots for day: %w", err)
	}
	return slots, nil
}

// AvailableSlotsForStaff lists the candidate booking targets for an MDA
// actor: free, active, and starting in the future. The future-start filter is
// applied at read time, so elapsed slots disappear even before the sweeper
// physically deactivates them.
func (s *Service) AvailableSlotsForStaff(ctx context.Context, staffID uuid.UUID) ([]Slot, error) {
	slots, err := s.repo.ListAvailableSlotsForStaff(ctx, staffID, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("list available slots: %w", err)
	}
	return slots, nil
}

// FirstAvailableSlot returns the earliest bookable slot for a staff member,
// or nil when there is none.
func (s *Service) FirstAvailableSlot(ctx context.Context, staffID uuid.UUID) (*Slot, error) {
	slots, err := s.AvailableSlotsForStaff(ctx, staffID)
	if err != nil {
		return nil, err
	}
	if len(slots) == 0 {
		return nil, nil
	}
	return &slots[0], nil
}

// MyBookedSlots lists every slot an actor has booked, ascending by start.
func (s *Service) MyBookedSlots(ctx context.Context, actorID uuid.UUID) ([]Slot, error) {
	slots, err := s.repo.ListBookedSlotsByActor(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("list booked slots: %w", err)
	}
	return slots, nil
}

// UpcomingForStaff lists a staff member's booked future slots, their own
// meeting schedule.
func (s *Service) UpcomingForStaff(ctx context.Context, staffID uuid.UUID) ([]Slot, error) {
	slots, err := s.repo.ListUpcomingBookedForStaff(ctx, staffID, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("list upcoming meetings: %w", err)
	}
	return slots, nil
}

// CalendarMarkers derives per-day indicators for one month: a day is marked
// when it has slots, and fully booked when every slot on it is booked.
func (s *Service) CalendarMarkers(ctx context.Context, staffID uuid.UUID, year int, month time.Month) ([]DayMarker, error) {
	from := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	slots, err := s.repo.ListSlotsForStaffBetween(ctx, staffID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list slots for month: %w", err)
	}

	type dayAgg struct {
		total  int
		booked int
	}
	days := make(map[int]*dayAgg)
	for i := range slots {
		d := slots[i].StartTime.Day()
		agg := days[d]
		if agg == nil {
			agg = &dayAgg{}
			days[d] = agg
		}
		agg.total++
		if slots[i].Status == StatusBooked {
			agg.booked++
		}
	}

	lastDay := to.AddDate(0, 0, -1).Day()
	markers := make([]DayMarker, 0, lastDay)
	for d := 1; d <= lastDay; d++ {
		m := DayMarker{Day: d}
		if agg, ok := days[d]; ok {
			m.HasSlots = true
			m.FullyBooked = agg.booked == agg.total
		}
		markers = append(markers, m)
	}

	return markers, nil
}

func requireOwner(actor Actor, staffID uuid.UUID) error {
	if actor.Role != RoleStaff {
		return ErrActorRoleInvalid
	}
	if actor.ID != staffID {
		return ErrNotOwner
	}
	return nil
}

func (s *Service) notifyBooked(ctx context.Context, booked *Slot, booker *User) {
	if s.notifier == nil {
		return
	}
	owner, err := s.repo.GetStaffByID(ctx, booked.StaffID)
	if err != nil {
		log.Printf("load staff %s for booking notification: %v", booked.StaffID, err)
		return
	}
	s.notifier.SlotBooked(ctx, booked, booker, owner)
}

func (s *Service) notifyReleased(ctx context.Context, released *Slot) {
	if s.notifier == nil {
		return
	}
	owner, err := s.repo.GetStaffByID(ctx, released.StaffID)
	if err != nil {
		log.Printf("load staff %s for release notification: %v", released.StaffID, err)
		return
	}
	s.notifier.SlotReleased(ctx, released, owner)
}

func (s *Service) logEvent(ctx context.Context, slotID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("failed to marshal event payload for %s: %v", eventType, err)
		data = nil
	}

	ev := EventLog{
		EventType: eventType,
		Payload:   data,
		CreatedAt: time.Now(),
	}
	if slotID != uuid.Nil {
		id := slotID
		ev.SlotID = &id
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		log.Printf("failed to insert event log %s for slot %s: %v", eventType, slotID, err)
	}
}
