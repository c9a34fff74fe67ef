package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"scheduler/internal/infra"
	"scheduler/internal/sqlinline"
)

func main() {
	var (
		dbURLFlag string
		dryRun    bool
	)
	flag.StringVar(&dbURLFlag, "database-url", "", "PostgreSQL connection string (falls back to DATABASE_URL)")
	flag.BoolVar(&dryRun, "dry-run", false, "print the schema statement without executing it")
	flag.Parse()

	infra.LoadDotEnv()
	logger := infra.NewLogger("cli").With().Str("cmd", "migrate").Logger()

	marker, stmt, err := infra.ExtractMarker(sqlinline.QCreateScheduledJobsTable)
	if err != nil {
		exitWithError(err)
	}
	if dryRun {
		fmt.Println(strings.TrimSpace(stmt))
		return
	}

	dbURL := strings.TrimSpace(dbURLFlag)
	if dbURL == "" {
		dbURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	}
	if dbURL == "" {
		exitWithError(errors.New("DATABASE_URL is required"))
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		exitWithError(fmt.Errorf("open database: %w", err))
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		exitWithError(fmt.Errorf("connect database: %w", err))
	}
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		logger.Error().Err(err).Str("sql", marker).Msg("migrate: schema statement failed")
		exitWithError(err)
	}
	logger.Info().Str("sql", marker).Msg("migrate: scheduled_jobs table is up to date")
}

func exitWithError(err error) {
	fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
	os.Exit(1)
}
