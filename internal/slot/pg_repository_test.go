package slot_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reportgov/meeting-scheduler/internal/slot"
	"github.com/reportgov/meeting-scheduler/testutil"
)

func seedStaffRow(t *testing.T, pool *pgxpool.Pool) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := pool.Exec(context.Background(), `
		INSERT INTO staff (id, name, workstream) VALUES ($1, 'Test Staff', 'regulatory')
	`, id)
	require.NoError(t, err)
	return id
}

func seedMDARow(t *testing.T, pool *pgxpool.Pool) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := pool.Exec(context.Background(), `
		INSERT INTO users (id, name, role, agency) VALUES ($1, 'Test MDA', 'mda', 'Test Agency')
	`, id)
	require.NoError(t, err)
	return id
}

func TestPgRepository(t *testing.T) {
	pool := testutil.NewTestPool(t)
	repo := slot.NewPgRepository(pool)
	ctx := context.Background()

	start := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Second)

	t.Run("create enforces the staff and start time uniqueness", func(t *testing.T) {
		testutil.Truncate(t, pool)
		staffID := seedStaffRow(t, pool)

		created, err := repo.CreateSlot(ctx, slot.Slot{
			StaffID:         staffID,
			Workstream:      "regulatory",
			StartTime:       start,
			DurationMinutes: 60,
			Status:          slot.StatusFree,
		})
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, created.ID)

		_, err = repo.CreateSlot(ctx, slot.Slot{
			StaffID:         staffID,
			Workstream:      "regulatory",
			StartTime:       start,
			DurationMinutes: 30,
			Status:          slot.StatusFree,
		})
		assert.ErrorIs(t, err, slot.ErrDuplicateSlot)
	})

	t.Run("concurrent bookings cannot both win", func(t *testing.T) {
		testutil.Truncate(t, pool)
		staffID := seedStaffRow(t, pool)

		created, err := repo.CreateSlot(ctx, slot.Slot{
			StaffID:         staffID,
			Workstream:      "regulatory",
			StartTime:       start,
			DurationMinutes: 60,
			Status:          slot.StatusFree,
		})
		require.NoError(t, err)

		const attempts = 8
		actorIDs := make([]uuid.UUID, attempts)
		for i := range actorIDs {
			actorIDs[i] = seedMDARow(t, pool)
		}

		var wg sync.WaitGroup
		results := make([]error, attempts)
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, results[i] = repo.BookSlot(ctx, created.ID, actorIDs[i], time.Now().UTC())
			}(i)
		}
		wg.Wait()

		wins := 0
		for _, err := range results {
			if err == nil {
				wins++
			} else {
				assert.ErrorIs(t, err, slot.ErrSlotNotFound)
			}
		}
		assert.Equal(t, 1, wins)

		got, err := repo.GetSlotByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, slot.StatusBooked, got.Status)
		require.NotNil(t, got.BookedBy)
	})

	t.Run("release returns a booked slot to the pool", func(t *testing.T) {
		testutil.Truncate(t, pool)
		staffID := seedStaffRow(t, pool)
		actorID := seedMDARow(t, pool)

		created, err := repo.CreateSlot(ctx, slot.Slot{
			StaffID:         staffID,
			Workstream:      "regulatory",
			StartTime:       start,
			DurationMinutes: 60,
			Status:          slot.StatusFree,
		})
		require.NoError(t, err)

		_, err = repo.BookSlot(ctx, created.ID, actorID, time.Now().UTC())
		require.NoError(t, err)

		released, err := repo.ReleaseSlot(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, slot.StatusFree, released.Status)
		assert.Nil(t, released.BookedBy)

		// Releasing twice misses the precondition.
		_, err = repo.ReleaseSlot(ctx, created.ID)
		assert.ErrorIs(t, err, slot.ErrSlotNotFound)
	})

	t.Run("delete refuses booked slots", func(t *testing.T) {
		testutil.Truncate(t, pool)
		staffID := seedStaffRow(t, pool)
		actorID := seedMDARow(t, pool)

		created, err := repo.CreateSlot(ctx, slot.Slot{
			StaffID:         staffID,
			Workstream:      "regulatory",
			StartTime:       start,
			DurationMinutes: 60,
			Status:          slot.StatusFree,
		})
		require.NoError(t, err)

		_, err = repo.BookSlot(ctx, created.ID, actorID, time.Now().UTC())
		require.NoError(t, err)

		assert.ErrorIs(t, repo.DeleteSlot(ctx, created.ID), slot.ErrSlotNotFound)

		_, err = repo.ReleaseSlot(ctx, created.ID)
		require.NoError(t, err)

		require.NoError(t, repo.DeleteSlot(ctx, created.ID))
		_, err = repo.GetSlotByID(ctx, created.ID)
		assert.ErrorIs(t, err, slot.ErrSlotNotFound)
	})

	t.Run("deactivate expired only touches elapsed free slots", func(t *testing.T) {
		testutil.Truncate(t, pool)
		staffID := seedStaffRow(t, pool)

		// An already-elapsed slot has to be inserted directly; CreateSlot
		// callers never produce one.
		pastID := uuid.New()
		pastStart := time.Now().UTC().Add(-3 * time.Hour)
		_, err := pool.Exec(ctx, `
			INSERT INTO slots (id, staff_id, workstream, start_time, duration_minutes, status)
			VALUES ($1, $2, 'regulatory', $3, 60, 'free')
		`, pastID, staffID, pastStart)
		require.NoError(t, err)

		future, err := repo.CreateSlot(ctx, slot.Slot{
			StaffID:         staffID,
			Workstream:      "regulatory",
			StartTime:       start,
			DurationMinutes: 60,
			Status:          slot.StatusFree,
		})
		require.NoError(t, err)

		n, err := repo.DeactivateExpired(ctx, &staffID, time.Now().UTC())
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)

		got, err := repo.GetSlotByID(ctx, pastID)
		require.NoError(t, err)
		assert.Equal(t, slot.StatusDeactivated, got.Status)

		got, err = repo.GetSlotByID(ctx, future.ID)
		require.NoError(t, err)
		assert.Equal(t, slot.StatusFree, got.Status)
	})

	t.Run("projections come back ordered by start time", func(t *testing.T) {
		testutil.Truncate(t, pool)
		staffID := seedStaffRow(t, pool)

		for _, offset := range []time.Duration{72 * time.Hour, 24 * time.Hour, 48 * time.Hour} {
			_, err := repo.CreateSlot(ctx, slot.Slot{
				StaffID:         staffID,
				Workstream:      "regulatory",
				StartTime:       time.Now().UTC().Add(offset).Truncate(time.Second),
				DurationMinutes: 60,
				Status:          slot.StatusFree,
			})
			require.NoError(t, err)
		}

		available, err := repo.ListAvailableSlotsForStaff(ctx, staffID, time.Now().UTC())
		require.NoError(t, err)
		require.Len(t, available, 3)
		for i := 1; i < len(available); i++ {
			assert.True(t, available[i].StartTime.After(available[i-1].StartTime))
		}
	})
}
