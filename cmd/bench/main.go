// README: Smoke and load runner against a live carpool-api (dev tokens); also checks Postgres, Redis and the migration.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type Config struct {
	BaseURL        string
	DSN            string
	RedisAddr      string
	MigrationPath  string
	ApplyMigration bool
	Strict         bool
	Timeout        time.Duration
	Concurrency    int
	Duration       time.Duration
}

func main() {
	var cfg Config
	cmd := &cobra.Command{
		Use:          "bench",
		Short:        "Run carpool-api smoke and load checks",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
			return run(cmd.Context(), cfg)
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfg.BaseURL, "base-url", envOrDefault("CARPOOL_BENCH_BASE_URL", "http://localhost:8080"), "API base URL")
	f.StringVar(&cfg.DSN, "dsn", os.Getenv("CARPOOL_DB__DSN"), "Postgres DSN (empty skips DB checks)")
	f.StringVar(&cfg.RedisAddr, "redis", os.Getenv("CARPOOL_REDIS__ADDR"), "Redis address (empty skips Redis checks)")
	f.StringVar(&cfg.MigrationPath, "migration", "migrations/0001_init.sql", "migration SQL path")
	f.BoolVar(&cfg.ApplyMigration, "apply-migration", false, "apply migration SQL before tests")
	f.BoolVar(&cfg.Strict, "strict", false, "fail on skipped checks")
	f.DurationVar(&cfg.Timeout, "timeout", 60*time.Second, "total timeout")
	f.IntVar(&cfg.Concurrency, "concurrency", 20, "concurrency for load checks")
	f.DurationVar(&cfg.Duration, "duration", 10*time.Second, "duration of load checks")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg Config) error {
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	results := NewRunner(cfg).RunAll(ctx)

	fmt.Println("\n== Summary ==")
	pass, fail, skipped := 0, 0, 0
	for _, r := range results {
		switch r.Status {
		case statusPass:
			pass++
		case statusFail:
			fail++
		case statusSkip:
			skipped++
		}
	}
	fmt.Printf("PASS=%d FAIL=%d SKIP=%d\n", pass, fail, skipped)

	if fail > 0 || (cfg.Strict && skipped > 0) {
		return fmt.Errorf("%d checks failed, %d skipped", fail, skipped)
	}
	return nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
