// README: Bench cases: environment checks, booking flow, concurrent accepts, cascade cancel and read load.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const driverToken = "bench-driver:driver"

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client

	// state shared by the flow cases, in run order
	tripID   string
	bookings []string
}

type Result struct {
	Name    string
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name string
	Run  func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	return &Runner{
		cfg:   cfg,
		httpc: &http.Client{Timeout: 10 * time.Second},
	}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))

	for _, tc := range tests {
		res := tc.Run(ctx, r)
		res.Name = tc.Name
		results = append(results, res)
		fmt.Printf("%-7s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency)
		}
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}

	if r.db != nil {
		r.db.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}

	return results
}

func (r *Runner) cases() []TestCase {
	return []TestCase{
		{Name: "Env: Postgres connect", Run: checkPostgres},
		{Name: "Env: Redis connect", Run: checkRedis},
		{Name: "Migration: apply (optional)", Run: applyMigration},
		{Name: "Migration: tables exist", Run: checkTables},
		{Name: "API: health", Run: checkHealth},
		{Name: "Flow: driver publishes trip", Run: createTrip},
		{Name: "Flow: passengers request seats", Run: requestSeats},
		{Name: "Flow: concurrent accepts never overbook", Run: concurrentAccept},
		{Name: "DB: ledger matches accepted bookings", Run: checkLedger},
		{Name: "Perf: trip read load", Run: readLoad},
		{Name: "Flow: cascade cancel", Run: cascadeCancel},
	}
}

func checkPostgres(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: "FAIL", Note: "db not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.db.Ping(ctx); err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	return Result{Status: "PASS"}
}

func checkRedis(ctx context.Context, r *Runner) Result {
	if r.redis == nil {
		return Result{Status: "SKIP", Note: "redis not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.redis.Ping(ctx).Err(); err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	return Result{Status: "PASS"}
}

func applyMigration(ctx context.Context, r *Runner) Result {
	if !r.cfg.ApplyMigration {
		return Result{Status: "SKIP", Note: "apply-migration=false"}
	}
	if r.db == nil {
		return Result{Status: "FAIL", Note: "db not configured"}
	}
	sql, err := os.ReadFile(r.cfg.MigrationPath)
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	for _, s := range splitSQL(string(sql)) {
		if _, err := r.db.Exec(ctx, s); err != nil {
			return Result{Status: "FAIL", Note: err.Error()}
		}
	}
	return Result{Status: "PASS"}
}

func checkTables(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: "FAIL", Note: "db not configured"}
	}
	tables, err := extractTables(r.cfg.MigrationPath)
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	for _, t := range tables {
		var exists bool
		err := r.db.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)",
			t,
		).Scan(&exists)
		if err != nil {
			return Result{Status: "FAIL", Note: err.Error()}
		}
		if !exists {
			return Result{Status: "FAIL", Note: "missing table: " + t}
		}
	}
	return Result{Status: "PASS", Note: fmt.Sprintf("%d tables", len(tables))}
}

func checkHealth(ctx context.Context, r *Runner) Result {
	start := time.Now()
	status, _, err := r.call(ctx, http.MethodGet, "/health", "", nil)
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	if status != http.StatusOK {
		return Result{Status: "FAIL", Note: fmt.Sprintf("status=%d", status)}
	}
	return Result{Status: "PASS", Latency: time.Since(start)}
}

func createTrip(ctx context.Context, r *Runner) Result {
	dep := time.Now().UTC().Add(2 * time.Hour)
	start := time.Now()
	status, body, err := r.call(ctx, http.MethodPost, "/api/trips", driverToken, map[string]any{
		"origin":               map[string]any{"text": "bench origin", "point": map[string]any{"lat": 25.033, "lng": 121.565}},
		"destination":          map[string]any{"text": "bench destination", "point": map[string]any{"lat": 24.147, "lng": 120.673}},
		"departure_at":         dep,
		"estimated_arrival_at": dep.Add(2 * time.Hour),
		"price_per_seat":       map[string]any{"amount": 250},
		"total_seats":          r.cfg.Seats,
		"publish":              true,
	})
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	if status != http.StatusCreated {
		return Result{Status: "FAIL", Note: fmt.Sprintf("status=%d %s", status, body)}
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &out); err != nil || out.ID == "" {
		return Result{Status: "FAIL", Note: "no trip id in response"}
	}
	r.tripID = out.ID
	return Result{Status: "PASS", Latency: time.Since(start), Note: "trip=" + out.ID}
}

func requestSeats(ctx context.Context, r *Runner) Result {
	if r.tripID == "" {
		return Result{Status: "SKIP", Note: "no trip"}
	}
	start := time.Now()
	for i := 0; i < r.cfg.Concurrency; i++ {
		token := fmt.Sprintf("bench-passenger-%d", i)
		status, body, err := r.call(ctx, http.MethodPost, "/api/trips/"+r.tripID+"/bookings", token, map[string]any{"seats": 1})
		if err != nil {
			return Result{Status: "FAIL", Note: err.Error()}
		}
		if status != http.StatusCreated {
			return Result{Status: "FAIL", Note: fmt.Sprintf("status=%d %s", status, body)}
		}
		var out struct {
			Booking struct {
				ID string `json:"id"`
			} `json:"booking"`
		}
		_ = json.Unmarshal(body, &out)
		r.bookings = append(r.bookings, out.Booking.ID)
	}
	return Result{Status: "PASS", Latency: time.Since(start), Note: fmt.Sprintf("%d pending", len(r.bookings))}
}

func concurrentAccept(ctx context.Context, r *Runner) Result {
	if len(r.bookings) == 0 {
		return Result{Status: "SKIP", Note: "no bookings"}
	}
	var succ, full, other int64
	var wg sync.WaitGroup
	for _, id := range r.bookings {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			status, _, err := r.call(ctx, http.MethodPost, "/api/bookings/"+id+"/accept", driverToken, nil)
			switch {
			case err != nil:
				atomic.AddInt64(&other, 1)
			case status == http.StatusOK:
				atomic.AddInt64(&succ, 1)
			case status == http.StatusConflict:
				atomic.AddInt64(&full, 1)
			default:
				atomic.AddInt64(&other, 1)
			}
		}(id)
	}
	wg.Wait()

	want := int64(r.cfg.Seats)
	if int64(len(r.bookings)) < want {
		want = int64(len(r.bookings))
	}
	note := fmt.Sprintf("accepted=%d rejected=%d errors=%d", succ, full, other)
	if succ != want || other > 0 {
		return Result{Status: "FAIL", Note: note}
	}
	return Result{Status: "PASS", Note: note}
}

func checkLedger(ctx context.Context, r *Runner) Result {
	if r.db == nil || r.tripID == "" {
		return Result{Status: "SKIP", Note: "db or trip missing"}
	}
	var allocated, accepted int
	err := r.db.QueryRow(ctx, `
		SELECT l.allocated_seats,
		       (SELECT COALESCE(SUM(seats), 0) FROM bookings WHERE trip_id = $1 AND status = 'accepted')
		FROM seat_ledgers l WHERE l.trip_id = $1`, r.tripID).Scan(&allocated, &accepted)
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	note := fmt.Sprintf("ledger=%d accepted=%d seats=%d", allocated, accepted, r.cfg.Seats)
	if allocated != accepted || allocated > r.cfg.Seats {
		return Result{Status: "FAIL", Note: note}
	}
	return Result{Status: "PASS", Note: note}
}

func readLoad(ctx context.Context, r *Runner) Result {
	if r.tripID == "" {
		return Result{Status: "SKIP", Note: "no trip"}
	}
	end := time.Now().Add(r.cfg.Duration)
	var count, errCount int64
	var wg sync.WaitGroup
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				status, _, err := r.call(ctx, http.MethodGet, "/api/trips/"+r.tripID, "bench-reader", nil)
				if err != nil || status != http.StatusOK {
					atomic.AddInt64(&errCount, 1)
					continue
				}
				atomic.AddInt64(&count, 1)
			}
		}()
	}
	wg.Wait()

	if count == 0 {
		return Result{Status: "FAIL", Note: "no requests completed"}
	}
	rps := float64(count) / r.cfg.Duration.Seconds()
	return Result{Status: "PASS", Note: fmt.Sprintf("rps=%.1f errors=%d", rps, errCount)}
}

func cascadeCancel(ctx context.Context, r *Runner) Result {
	if r.tripID == "" {
		return Result{Status: "SKIP", Note: "no trip"}
	}
	start := time.Now()
	status, body, err := r.call(ctx, http.MethodPost, "/api/trips/"+r.tripID+"/cancel", driverToken, nil)
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	if status != http.StatusOK {
		return Result{Status: "FAIL", Note: fmt.Sprintf("status=%d %s", status, body)}
	}
	var out struct {
		Effects struct {
			DeclinedAuto       int64 `json:"declined_auto"`
			CanceledByPlatform int64 `json:"canceled_by_platform"`
			SeatsReleased      int   `json:"seats_released"`
		} `json:"effects"`
	}
	_ = json.Unmarshal(body, &out)
	touched := out.Effects.DeclinedAuto + out.Effects.CanceledByPlatform
	note := fmt.Sprintf("declined_auto=%d canceled_by_platform=%d seats_released=%d",
		out.Effects.DeclinedAuto, out.Effects.CanceledByPlatform, out.Effects.SeatsReleased)
	if touched != int64(len(r.bookings)) {
		return Result{Status: "FAIL", Latency: time.Since(start), Note: note}
	}
	return Result{Status: "PASS", Latency: time.Since(start), Note: note}
}

func (r *Runner) call(ctx context.Context, method, path, token string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	return resp.StatusCode, out, err
}

func extractTables(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	re := regexp.MustCompile(`(?i)create\s+table\s+if\s+not\s+exists\s+([a-zA-Z0-9_]+)`)
	matches := re.FindAllStringSubmatch(string(b), -1)
	tables := make([]string, 0, len(matches))
	for _, m := range matches {
		tables = append(tables, m[1])
	}
	return tables, nil
}

func splitSQL(sql string) []string {
	lines := strings.Split(sql, "\n")
	filtered := make([]string, 0, len(lines))
	for _, line := range lines {
		l := strings.TrimSpace(line)
		if strings.HasPrefix(l, "--") || l == "" {
			continue
		}
		filtered = append(filtered, line)
	}
	cleaned := strings.Join(filtered, "\n")
	parts := strings.Split(cleaned, ";")
	stmts := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}
