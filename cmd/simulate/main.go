// Command simulate hammers the booking endpoint with concurrent workers and
// verifies afterwards that no slot ended up booked more than once. It is the
// load-side proof of the conditional-update booking path.
package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/reportgov/meeting-scheduler/internal/db"
)

type simConfig struct {
	APIBaseURL  string
	PostgresDSN string
	Workers     int
	Duration    time.Duration
	SlotLimit   int
	ActorLimit  int
}

type metrics struct {
	total     int64
	booked    int64
	conflicts int64
	errors    int64

	mu        sync.Mutex
	latencies []time.Duration
}

func (m *metrics) record(latency time.Duration, status int) {
	atomic.AddInt64(&m.total, 1)
	switch {
	case status == http.StatusOK:
		atomic.AddInt64(&m.booked, 1)
	case status == http.StatusConflict:
		atomic.AddInt64(&m.conflicts, 1)
	default:
		atomic.AddInt64(&m.errors, 1)
	}

	m.mu.Lock()
	m.latencies = append(m.latencies, latency)
	m.mu.Unlock()
}

func (m *metrics) percentile(p float64) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.latencies) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(m.latencies))
	copy(sorted, m.latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg := loadSimConfig()
	log.Printf("simulate: url=%s workers=%d duration=%s", cfg.APIBaseURL, cfg.Workers, cfg.Duration)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	cancel()
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	slots, err := loadIDs(pool, `
		SELECT id FROM slots
		WHERE status = 'free' AND start_time > now()
		ORDER BY start_time ASC
		LIMIT $1
	`, cfg.SlotLimit)
	if err != nil {
		log.Fatalf("load slots: %v", err)
	}
	actors, err := loadIDs(pool, `
		SELECT id FROM users
		WHERE role = 'mda'
		LIMIT $1
	`, cfg.ActorLimit)
	if err != nil {
		log.Fatalf("load actors: %v", err)
	}
	if len(slots) == 0 || len(actors) == 0 {
		log.Fatal("need free slots and mda users, run cmd/seed first")
	}
	log.Printf("targets: %d slots, %d actors", len(slots), len(actors))

	m := &metrics{}
	client := &http.Client{Timeout: 10 * time.Second}
	deadline := time.Now().Add(cfg.Duration)

	var wg sync.WaitGroup
	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for time.Now().Before(deadline) {
				slotID := slots[rng.Intn(len(slots))]
				actorID := actors[rng.Intn(len(actors))]
				bookOnce(client, cfg.APIBaseURL, slotID, actorID, m)
			}
		}(time.Now().UnixNano() + int64(w))
	}
	wg.Wait()

	log.Printf("requests=%d booked=%d conflicts=%d errors=%d p50=%s p99=%s",
		m.total, m.booked, m.conflicts, m.errors,
		m.percentile(0.50), m.percentile(0.99))

	verify(pool, slots, m.booked)
}

func bookOnce(client *http.Client, baseURL string, slotID, actorID uuid.UUID, m *metrics) {
	url := fmt.Sprintf("%s/slots/%s/book", baseURL, slotID)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(nil))
	if err != nil {
		m.record(0, 0)
		return
	}
	req.Header.Set("X-Actor-ID", actorID.String())
	req.Header.Set("X-Actor-Role", "mda")

	start := time.Now()
	resp, err := client.Do(req)
	latency := time.Since(start)
	if err != nil {
		m.record(latency, 0)
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	m.record(latency, resp.StatusCode)
}

// verify cross-checks the API results against storage: every targeted slot
// must be booked at most once, and the number of booked target slots must
// equal the number of successful booking responses.
func verify(pool *pgxpool.Pool, slots []uuid.UUID, booked int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ids := make([]string, 0, len(slots))
	for _, id := range slots {
		ids = append(ids, id.String())
	}

	var bookedInDB int64
	err := pool.QueryRow(ctx, `
		SELECT count(*) FROM slots
		WHERE id = ANY($1::uuid[]) AND status = 'booked' AND booked_by IS NOT NULL
	`, ids).Scan(&bookedInDB)
	if err != nil {
		log.Fatalf("verify query: %v", err)
	}

	if bookedInDB != booked {
		log.Fatalf("MISMATCH: api reported %d successful bookings, storage has %d booked slots", booked, bookedInDB)
	}
	log.Printf("verified: %d slots booked exactly once, no double bookings", bookedInDB)
}

func loadIDs(pool *pgxpool.Pool, query string, limit int) ([]uuid.UUID, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rows, err := pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func loadSimConfig() simConfig {
	cfg := simConfig{
		APIBaseURL:  getEnv("API_BASE_URL", "http://localhost:8080"),
		PostgresDSN: os.Getenv("POSTGRES_DSN"),
		Workers:     getEnvInt("SIM_WORKERS", 20),
		SlotLimit:   getEnvInt("SIM_SLOTS", 50),
		ActorLimit:  getEnvInt("SIM_ACTORS", 200),
		Duration:    30 * time.Second,
	}
	if v := os.Getenv("SIM_DURATION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Duration = d
		}
	}
	if cfg.PostgresDSN == "" {
		log.Fatal("POSTGRES_DSN is required")
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
