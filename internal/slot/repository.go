package slot

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrStaffNotFound = errors.New("staff member not found")
	ErrUserNotFound  = errors.New("user not found")
	ErrSlotNotFound  = errors.New("slot not found")
	ErrDuplicateSlot = errors.New("slot already exists for this staff member and start time")
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetStaffByID(ctx context.Context, id uuid.UUID) (*Staff, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*User, error)

	GetSlotByID(ctx context.Context, id uuid.UUID) (*Slot, error)

	// CreateSlot inserts a new free slot and returns ErrDuplicateSlot when
	// the (staff, start time) pair is already taken.
	CreateSlot(ctx context.Context, s Slot) (*Slot, error)

	// Conditional single-row transitions. Each returns the updated slot or
	// ErrSlotNotFound when no row matched the precondition, so concurrent
	// callers cannot both win the same transition.
	BookSlot(ctx context.Context, id, actorID uuid.UUID, now time.Time) (*Slot, error)
	ReleaseSlot(ctx context.Context, id uuid.UUID) (*Slot, error)
	SetSlotStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Slot, error)
	DeleteSlot(ctx context.Context, id uuid.UUID) error

	// Expiry sweeper: flip every free slot whose end time has elapsed.
	// staffID narrows the sweep to one owner when non-nil.
	DeactivateExpired(ctx context.Context, staffID *uuid.UUID, now time.Time) (int64, error)

	// Read projections. All return slots ordered by start time ascending.
	ListSlotsForStaffBetween(ctx context.Context, staffID uuid.UUID, from, to time.Time) ([]Slot, error)
	ListAvailableSlotsForStaff(ctx context.Context, staffID uuid.UUID, now time.Time) ([]Slot, error)
	ListBookedSlotsByActor(ctx context.Context, actorID uuid.UUID) ([]Slot, error)
	ListUpcomingBookedForStaff(ctx context.Context, staffID uuid.UUID, now time.Time) ([]Slot, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
