// README: Bench cases: environment checks, the route lifecycle over HTTP, concurrent joins and tick load.
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
	// run-unique ids so repeated runs against one server do not collide
	driver    string
	passenger string
	seq       atomic.Uint64
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
	suffix := fmt.Sprintf("%d", time.Now().UnixNano())
	return &Runner{
		cfg:       cfg,
		httpc:     &http.Client{Timeout: 10 * time.Second},
		driver:    "bench-d-" + suffix,
		passenger: "bench-p-" + suffix,
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
	driver := "driver:" + r.driver
	passenger := "passenger:" + r.passenger
	return []TestCase{
		{Name: "Env: Postgres connect", Run: func(ctx context.Context, r *Runner) Result {
			if r.db == nil {
				return Result{Status: statusSkip, Note: "db not configured"}
			}
			ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			defer cancel()
			if err := r.db.Ping(ctx); err != nil {
				return Result{Status: statusFail, Note: err.Error()}
			}
			return Result{Status: statusPass}
		}},
		{Name: "Env: Redis connect", Run: func(ctx context.Context, r *Runner) Result {
			if r.redis == nil {
				return Result{Status: statusSkip, Note: "redis not configured"}
			}
			ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			defer cancel()
			if err := r.redis.Ping(ctx).Err(); err != nil {
				return Result{Status: statusFail, Note: err.Error()}
			}
			return Result{Status: statusPass}
		}},
		{Name: "Migration: apply (optional)", Run: func(ctx context.Context, r *Runner) Result {
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
		}},
		{Name: "Migration: tables exist", Run: func(ctx context.Context, r *Runner) Result {
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
		}},

		httpCase("API: health", http.MethodGet, "/health", nil, "", http.StatusOK),
		httpCase("Auth: missing token -> 401", http.MethodPost, "/api/routes", map[string]any{"origin": "51.1,71.4"}, "", http.StatusUnauthorized),
		httpCase("Auth: passenger cannot open -> 403", http.MethodPost, "/api/routes", map[string]any{"origin": "51.1,71.4"}, passenger, http.StatusForbidden),

		httpCase("Route: driver opens", http.MethodPost, "/api/routes", map[string]any{"origin": "51.128,71.430"}, driver, http.StatusCreated),
		httpCase("Route: join missing location -> 400", http.MethodPost, "/api/routes/join", map[string]any{}, passenger, http.StatusBadRequest),
		httpCase("Route: passenger joins", http.MethodPost, "/api/routes/join", map[string]any{"location": "51.132,71.403"}, passenger, http.StatusOK),
		{Name: "Route: concurrent joins all answered", Run: concurrentJoins},
		httpCase("Route: driver finishes", http.MethodPost, "/api/routes/finish", nil, driver, http.StatusOK),
		httpCase("Route: finish twice -> 409", http.MethodPost, "/api/routes/finish", nil, driver, http.StatusConflict),
		{Name: "Tracking: tick accepted", Run: func(ctx context.Context, r *Runner) Result {
			return r.do(ctx, http.MethodPut, "/api/routes/location", r.tick(), driver, http.StatusAccepted)
		}},
		{Name: "Tracking: stale tick -> 409", Run: func(ctx context.Context, r *Runner) Result {
			body := map[string]any{"lat": 51.13, "lon": 71.42, "seq": 1}
			return r.do(ctx, http.MethodPut, "/api/routes/location", body, driver, http.StatusConflict)
		}},
		httpCase("Tracking: eta report", http.MethodGet, "/api/routes/eta", nil, driver, http.StatusOK, http.StatusNotFound),
		httpCase("Admin: report", http.MethodGet, "/api/admin/report", nil, "admin:bench", http.StatusOK),
		httpCase("Admin: route details", http.MethodGet, "/api/admin/routes/"+r.driver, nil, "admin:bench", http.StatusOK),

		{Name: "Perf: location tick load", Run: func(ctx context.Context, r *Runner) Result {
			return perfLoad(ctx, r, driver)
		}},
	}
}

func httpCase(name, method, path string, body any, token string, okStatuses ...int) TestCase {
	return TestCase{
		Name: name,
		Run: func(ctx context.Context, r *Runner) Result {
			return r.do(ctx, method, path, body, token, okStatuses...)
		},
	}
}

func (r *Runner) do(ctx context.Context, method, path string, body any, token string, okStatuses ...int) Result {
	start := time.Now()
	status, err := r.send(ctx, method, path, body, token)
	latency := time.Since(start)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	if contains(okStatuses, status) {
		return Result{Status: statusPass, Latency: latency, Note: fmt.Sprintf("status=%d", status)}
	}
	return Result{Status: statusFail, Latency: latency, Note: fmt.Sprintf("status=%d", status)}
}

func (r *Runner) send(ctx context.Context, method, path string, body any, token string) (int, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}

func (r *Runner) tick() map[string]any {
	return map[string]any{"lat": 51.13, "lon": 71.42, "seq": r.seq.Add(1) + 1}
}

// concurrentJoins fires joins from distinct passengers at once. Every one must
// get a decision; none may fail with a server error.
func concurrentJoins(ctx context.Context, r *Runner) Result {
	var wg sync.WaitGroup
	var ok, bad atomic.Int64
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			token := fmt.Sprintf("passenger:%s-%d", r.passenger, i)
			status, err := r.send(ctx, http.MethodPost, "/api/routes/join", map[string]any{"location": "51.140,71.410"}, token)
			if err != nil || status != http.StatusOK {
				bad.Add(1)
				return
			}
			ok.Add(1)
		}(i)
	}
	wg.Wait()
	note := fmt.Sprintf("answered=%d errors=%d", ok.Load(), bad.Load())
	if bad.Load() > 0 {
		return Result{Status: statusFail, Note: note}
	}
	return Result{Status: statusPass, Note: note}
}

func perfLoad(ctx context.Context, r *Runner, token string) Result {
	end := time.Now().Add(r.cfg.Duration)
	var count, errCount atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				status, err := r.send(ctx, http.MethodPut, "/api/routes/location", r.tick(), token)
				// Interleaved ticks may arrive out of order; 409 is a valid answer.
				if err != nil || status >= 500 {
					errCount.Add(1)
					continue
				}
				count.Add(1)
			}
		}()
	}
	wg.Wait()

	if count.Load() == 0 {
		return Result{Status: statusFail, Note: "no requests completed"}
	}
	rps := float64(count.Load()) / r.cfg.Duration.Seconds()
	return Result{Status: statusPass, Note: fmt.Sprintf("rps=%.1f errors=%d", rps, errCount.Load())}
}

func contains(list []int, v int) bool {
	for _, i := range list {
		if i == v {
			return true
		}
	}
	return false
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
