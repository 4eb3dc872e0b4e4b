// README: Bench cases; environment, trip lifecycle, error mapping, and throughput checks against a live API.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const (
	statusPass = "PASS"
	statusFail = "FAIL"
	statusSkip = "SKIP"
)

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client
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

// snapshot is the subset of the trip view the bench inspects.
type snapshot struct {
	TripID string `json:"trip_id"`
	Phase  string `json:"phase"`
	Route  *struct {
		Path []struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"path"`
		Source string `json:"source"`
	} `json:"route"`
	Offers []struct {
		VehicleClass string `json:"vehicle_class"`
	} `json:"offers"`
	Arrived bool `json:"arrived"`
}

type point struct {
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
	Name string  `json:"name,omitempty"`
}

var (
	udupiBusStand = point{Lat: 13.3409, Lng: 74.7421, Name: "Udupi Bus Stand"}
	manipal       = point{Lat: 13.3525, Lng: 74.7868, Name: "Manipal"}
	malpeBeach    = point{Lat: 13.3500, Lng: 74.7040, Name: "Malpe Beach"}
)

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
		fmt.Printf("%-5s %s", res.Status, tc.Name)
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
	base := r.cfg.BaseURL
	return []TestCase{
		{
			Name: "Env: Postgres connect",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: statusSkip, Note: "db not configured"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.db.Ping(ctx); err != nil {
					return Result{Status: statusFail, Note: err.Error()}
				}
				return Result{Status: statusPass}
			},
		},
		{
			Name: "Env: Redis connect",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.redis == nil {
					return Result{Status: statusSkip, Note: "redis not configured"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.redis.Ping(ctx).Err(); err != nil {
					return Result{Status: statusFail, Note: err.Error()}
				}
				return Result{Status: statusPass}
			},
		},
		{
			Name: "Migration: apply (optional)",
			Run: func(ctx context.Context, r *Runner) Result {
				if !r.cfg.ApplyMigration {
					return Result{Status: statusSkip, Note: "apply-migration=false"}
				}
				if r.db == nil {
					return Result{Status: statusFail, Note: "db not configured"}
				}
				sql, err := os.ReadFile(r.cfg.MigrationPath)
				if err != nil {
					return Result{Status: statusFail, Note: err.Error()}
				}
				for _, s := range splitSQL(string(sql)) {
					if _, err := r.db.Exec(ctx, s); err != nil {
						return Result{Status: statusFail, Note: err.Error()}
					}
				}
				return Result{Status: statusPass}
			},
		},
		{
			Name: "Migration: tables exist",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: statusSkip, Note: "db not configured"}
				}
				tables, err := extractTables(r.cfg.MigrationPath)
				if err != nil {
					return Result{Status: statusFail, Note: err.Error()}
				}
				for _, t := range tables {
					var exists bool
					err := r.db.QueryRow(ctx,
						"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)",
						t,
					).Scan(&exists)
					if err != nil {
						return Result{Status: statusFail, Note: err.Error()}
					}
					if !exists {
						return Result{Status: statusFail, Note: "missing table: " + t}
					}
				}
				return Result{Status: statusPass}
			},
		},
		{
			Name: "Roster: active drivers seeded",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: statusSkip, Note: "db not configured"}
				}
				var n int
				if err := r.db.QueryRow(ctx, "SELECT count(*) FROM drivers WHERE active").Scan(&n); err != nil {
					return Result{Status: statusFail, Note: err.Error()}
				}
				if n == 0 {
					return Result{Status: statusFail, Note: "no active drivers"}
				}
				return Result{Status: statusPass, Note: fmt.Sprintf("drivers=%d", n)}
			},
		},

		httpCase("API: health", http.MethodGet, base+"/health", nil, http.StatusOK),
		httpCase("API: metrics", http.MethodGet, base+"/metrics", nil, http.StatusOK),
		httpCase("API: unknown trip -> 404", http.MethodGet, base+"/api/trips/00000000-0000-4000-8000-000000000000", nil, http.StatusNotFound),

		httpCase("Location: search", http.MethodGet, base+"/api/locations/search?q=Manipal", nil, http.StatusOK),
		httpCase("Location: reverse", http.MethodGet, base+"/api/locations/reverse?lat=13.3409&lng=74.7421", nil, http.StatusOK),
		httpCase("Location: reverse invalid coords -> 400", http.MethodGet, base+"/api/locations/reverse?lat=123&lng=456", nil, http.StatusBadRequest),

		tripCase("Trip: invalid pickup -> 400", func(ctx context.Context, r *Runner, id string) Result {
			return r.expect(ctx, http.MethodPut, r.tripURL(id, "/pickup"), map[string]any{"lat": 95.0, "lng": 0.0}, http.StatusBadRequest)
		}),
		tripCase("Trip: confirm without offer -> 409", func(ctx context.Context, r *Runner, id string) Result {
			return r.expect(ctx, http.MethodPost, r.tripURL(id, "/booking"), nil, http.StatusConflict)
		}),
		tripCase("Trip: drop alone stays idle", func(ctx context.Context, r *Runner, id string) Result {
			var snap snapshot
			if _, err := r.call(ctx, http.MethodPut, r.tripURL(id, "/drop"), manipal, &snap); err != nil {
				return Result{Status: statusFail, Note: err.Error()}
			}
			if snap.Phase != "idle" {
				return Result{Status: statusFail, Note: "phase=" + snap.Phase}
			}
			return Result{Status: statusPass}
		}),
		tripCase("Trip: rapid drop edits keep the last pair", func(ctx context.Context, r *Runner, id string) Result {
			for _, step := range []struct {
				path string
				body point
			}{{"/pickup", udupiBusStand}, {"/drop", malpeBeach}, {"/drop", manipal}} {
				if _, err := r.call(ctx, http.MethodPut, r.tripURL(id, step.path), step.body, nil); err != nil {
					return Result{Status: statusFail, Note: err.Error()}
				}
			}
			snap, err := r.waitPhase(ctx, id, "selecting")
			if err != nil {
				return Result{Status: statusFail, Note: err.Error()}
			}
			if snap.Route == nil || len(snap.Route.Path) == 0 {
				return Result{Status: statusFail, Note: "no route"}
			}
			last := snap.Route.Path[len(snap.Route.Path)-1]
			if !near(last.Lat, manipal.Lat) || !near(last.Lng, manipal.Lng) {
				return Result{Status: statusFail, Note: fmt.Sprintf("route ends at %.4f,%.4f", last.Lat, last.Lng)}
			}
			return Result{Status: statusPass, Note: "source=" + snap.Route.Source}
		}),
		tripCase("Trip: full lifecycle to arrival", func(ctx context.Context, r *Runner, id string) Result {
			return r.fullTrip(ctx, id)
		}),
		{
			Name: "Redis: route cache populated",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.redis == nil {
					return Result{Status: statusSkip, Note: "redis not configured"}
				}
				keys, _, err := r.redis.Scan(ctx, 0, "route:*", 100).Result()
				if err != nil {
					return Result{Status: statusFail, Note: err.Error()}
				}
				if len(keys) == 0 {
					return Result{Status: statusSkip, Note: "no road routes cached (fallback only?)"}
				}
				return Result{Status: statusPass, Note: fmt.Sprintf("keys=%d", len(keys))}
			},
		},

		{
			Name: "Perf: trip session create throughput",
			Run: func(ctx context.Context, r *Runner) Result {
				return perfLoad(ctx, r, http.MethodPost, base+"/api/trips")
			},
		},
		{
			Name: "Perf: snapshot read throughput",
			Run: func(ctx context.Context, r *Runner) Result {
				id, err := r.createTrip(ctx)
				if err != nil {
					return Result{Status: statusFail, Note: err.Error()}
				}
				defer r.deleteTrip(id)
				return perfLoad(ctx, r, http.MethodGet, r.tripURL(id, ""))
			},
		},
	}
}

func (r *Runner) fullTrip(ctx context.Context, id string) Result {
	start := time.Now()
	if _, err := r.call(ctx, http.MethodPut, r.tripURL(id, "/pickup"), udupiBusStand, nil); err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	if _, err := r.call(ctx, http.MethodPut, r.tripURL(id, "/drop"), manipal, nil); err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	snap, err := r.waitPhase(ctx, id, "selecting")
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	if len(snap.Offers) == 0 {
		return Result{Status: statusSkip, Note: "pricing service returned no offers"}
	}
	offer := map[string]any{"vehicle_class": snap.Offers[0].VehicleClass}
	if _, err := r.call(ctx, http.MethodPut, r.tripURL(id, "/offer"), offer, nil); err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	var booked struct {
		OTP int `json:"otp"`
	}
	if _, err := r.call(ctx, http.MethodPost, r.tripURL(id, "/booking"), nil, &booked); err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	if booked.OTP < 1000 || booked.OTP > 9999 {
		return Result{Status: statusFail, Note: fmt.Sprintf("otp=%d", booked.OTP)}
	}
	if _, err := r.waitPhase(ctx, id, "arrived"); err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	if _, err := r.call(ctx, http.MethodPost, r.tripURL(id, "/complete"), nil, nil); err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	return Result{Status: statusPass, Latency: time.Since(start), Note: "vehicle=" + snap.Offers[0].VehicleClass}
}

// tripCase runs fn against a fresh trip session and deletes it afterwards.
func tripCase(name string, fn func(ctx context.Context, r *Runner, id string) Result) TestCase {
	return TestCase{
		Name: name,
		Run: func(ctx context.Context, r *Runner) Result {
			id, err := r.createTrip(ctx)
			if err != nil {
				return Result{Status: statusFail, Note: err.Error()}
			}
			defer r.deleteTrip(id)
			return fn(ctx, r, id)
		},
	}
}

func httpCase(name, method, url string, body any, want int) TestCase {
	return TestCase{
		Name: name,
		Run: func(ctx context.Context, r *Runner) Result {
			start := time.Now()
			res := r.expect(ctx, method, url, body, want)
			res.Latency = time.Since(start)
			return res
		},
	}
}

func (r *Runner) expect(ctx context.Context, method, url string, body any, want int) Result {
	status, err := r.call(ctx, method, url, body, nil)
	if status == 0 && err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	if status != want {
		return Result{Status: statusFail, Note: fmt.Sprintf("status=%d want=%d", status, want)}
	}
	return Result{Status: statusPass, Note: fmt.Sprintf("status=%d", status)}
}

func (r *Runner) tripURL(id, suffix string) string {
	return r.cfg.BaseURL + "/api/trips/" + id + suffix
}

func (r *Runner) createTrip(ctx context.Context) (string, error) {
	var snap snapshot
	if _, err := r.call(ctx, http.MethodPost, r.cfg.BaseURL+"/api/trips", nil, &snap); err != nil {
		return "", err
	}
	return snap.TripID, nil
}

func (r *Runner) deleteTrip(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, _ = r.call(ctx, http.MethodDelete, r.tripURL(id, ""), nil, nil)
}

func (r *Runner) waitPhase(ctx context.Context, id, phase string) (snapshot, error) {
	deadline := time.Now().Add(r.cfg.PhaseTimeout)
	var snap snapshot
	for time.Now().Before(deadline) {
		if _, err := r.call(ctx, http.MethodGet, r.tripURL(id, ""), nil, &snap); err != nil {
			return snap, err
		}
		if snap.Phase == phase {
			return snap, nil
		}
		select {
		case <-ctx.Done():
			return snap, ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
	return snap, fmt.Errorf("phase %s not reached (last %s)", phase, snap.Phase)
}

// call returns the status code and an error for transport failures or
// non-2xx responses. out is decoded only on success.
func (r *Runner) call(ctx context.Context, method, url string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = strings.NewReader(string(b))
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, fmt.Errorf("%s %s: status=%d %s", method, url, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	return resp.StatusCode, nil
}

func perfLoad(ctx context.Context, r *Runner, method, url string) Result {
	end := time.Now().Add(r.cfg.Duration)
	var count, errCount int64
	var mu sync.Mutex
	wg := sync.WaitGroup{}

	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				_, err := r.call(ctx, method, url, nil, nil)
				mu.Lock()
				if err != nil {
					errCount++
				} else {
					count++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if count == 0 {
		return Result{Status: statusFail, Note: "no requests completed"}
	}
	rps := float64(count) / r.cfg.Duration.Seconds()
	return Result{Status: statusPass, Note: fmt.Sprintf("rps=%.1f errors=%d", rps, errCount)}
}

func near(a, b float64) bool {
	d := a - b
	return d < 1e-4 && d > -1e-4
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
	parts := strings.Split(strings.Join(filtered, "\n"), ";")
	stmts := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}
