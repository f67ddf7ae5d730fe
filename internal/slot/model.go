package slot

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	// StatusFree means the slot is open for booking.
	StatusFree Status = "free"
	// StatusBooked means an MDA actor holds the slot; BookedBy is set.
	StatusBooked Status = "booked"
	// StatusDeactivated hides the slot from availability listings. Only
	// reachable from free, so booked-and-deactivated cannot exist.
	StatusDeactivated Status = "deactivated"
)

type Role string

const (
	RoleStaff Role = "staff"
	RoleMDA   Role = "mda"
)

// Actor identifies the caller of an operation. It is passed explicitly into
// every service method instead of being read from request-scoped globals.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

type Staff struct {
	ID         uuid.UUID
	Name       string
	Workstream string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// User is a portal account. Agency is only set for MDA accounts.
type User struct {
	ID        uuid.UUID
	Name      string
	Role      Role
	Agency    *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Slot is a single bookable meeting window owned by one staff member.
// Workstream is copied from the staff row at creation time so availability
// can be partitioned by department without a join.
type Slot struct {
	ID              uuid.UUID
	StaffID         uuid.UUID
	Workstream      string
	StartTime       time.Time
	DurationMinutes int
	Status          Status
	BookedBy        *uuid.UUID
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// EndTime is derived from start and duration, never stored.
func (s *Slot) EndTime() time.Time {
	return s.StartTime.Add(time.Duration(s.DurationMinutes) * time.Minute)
}

// DayMarker summarises one calendar day for the booking calendar: whether the
// day has any slots at all, and whether every slot on it is already booked.
type DayMarker struct {
	Day         int
	HasSlots    bool
	FullyBooked bool
}

type EventLog struct {
	ID        int64
	EventType string
	SlotID    *uuid.UUID
	Payload   []byte
	CreatedAt time.Time
}
