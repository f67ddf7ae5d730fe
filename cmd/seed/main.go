package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/reportgov/meeting-scheduler/internal/db"
	"github.com/reportgov/meeting-scheduler/migrations"
)

var workstreams = []string{
	"regulatory",
	"innovation",
	"trade",
	"infrastructure",
	"judicial",
	"legislative",
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	if err := migrations.Apply(dsn); err != nil {
		log.Fatalf("migrations: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	staffIDs, err := seedStaff(context.Background(), pool, 40)
	if err != nil {
		log.Fatalf("seed staff: %v", err)
	}
	if err := seedUsers(context.Background(), pool, 500); err != nil {
		log.Fatalf("seed users: %v", err)
	}
	if err := seedSlots(context.Background(), pool, staffIDs, 10); err != nil {
		log.Fatalf("seed slots: %v", err)
	}

	log.Println("seed complete")
}

func seedStaff(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d staff members", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Name()
		ws := workstreams[gofakeit.Number(0, len(workstreams)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO staff (id, name, workstream, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, name, ws)
		if err != nil {
			return nil, err
		}

		// Staff are also portal users so ownership checks resolve.
		_, err = tx.Exec(ctx, `
			INSERT INTO users (id, name, role, agency, created_at, updated_at)
			VALUES ($1, $2, 'staff', NULL, now(), now())
		`, id, name)
		if err != nil {
			return nil, err
		}

		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("staff seeded")
	return ids, nil
}

func seedUsers(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d MDA users", count)

	const batchSize = 250

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			name := gofakeit.Name()
			agency := gofakeit.Company()

			_, err := tx.Exec(ctx, `
				INSERT INTO users (id, name, role, agency, created_at, updated_at)
				VALUES ($1, $2, 'mda', $3, now(), now())
			`, id, name, agency)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Printf("users seeded: %d/%d", end, count)
	}

	log.Println("MDA users seeded")
	return nil
}

// seedSlots fills the next `days` weekdays with hourly 10:00-16:00 blocks for
// every staff member.
func seedSlots(ctx context.Context, pool *pgxpool.Pool, staffIDs []uuid.UUID, days int) error {
	log.Printf("seeding slot blocks for %d staff over %d days", len(staffIDs), days)

	today := time.Now().UTC().Truncate(24 * time.Hour)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	total := 0
	for _, staffID := range staffIDs {
		var ws string
		if err := tx.QueryRow(ctx, `SELECT workstream FROM staff WHERE id = $1`, staffID).Scan(&ws); err != nil {
			return err
		}

		for d := 1; d <= days; d++ {
			day := today.AddDate(0, 0, d)
			if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
				continue
			}

			for hour := 10; hour <= 15; hour++ {
				start := day.Add(time.Duration(hour) * time.Hour)
				_, err := tx.Exec(ctx, `
					INSERT INTO slots (id, staff_id, workstream, start_time, duration_minutes, status, created_at, updated_at)
					VALUES ($1, $2, $3, $4, 60, 'free', now(), now())
					ON CONFLICT (staff_id, start_time) DO NOTHING
				`, uuid.New(), staffID, ws, start)
				if err != nil {
					return err
				}
				total++
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Printf("slots seeded: %d", total)
	return nil
}
