package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"scheduler/internal/adapter/repo"
	"scheduler/internal/domain"
	"scheduler/internal/infra"
	"scheduler/internal/jobfile"
)

const usage = `usage: jobctl <command> [flags]

commands:
  validate -file jobs.yaml   check a seed file without registering anything
  list [-limit n]            show recently mirrored jobs from PostgreSQL
  stats                      show job counts per status from PostgreSQL
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	infra.LoadDotEnv()

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "validate":
		err = runValidate(args)
	case "list":
		err = runList(args)
	case "stats":
		err = runStats(args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "jobctl: %v\n", err)
		os.Exit(1)
	}
}

func runValidate(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	file := fs.String("file", "", "seed file to validate")
	_ = fs.Parse(args)

	path := strings.TrimSpace(*file)
	if path == "" {
		return errors.New("-file is required")
	}
	f, err := jobfile.Load(path)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TYPE\tRUN AT\tSCHEDULE")
	for _, def := range f.Jobs {
		fmt.Fprintf(w, "%s\t%s\t%t\n", domain.ParseJobType(def.Type), def.RunTime(now).Format(time.RFC3339), def.ShouldSchedule())
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("%d job definition(s) OK\n", len(f.Jobs))
	return nil
}

func runList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	limit := fs.Int("limit", 20, "maximum number of jobs to show")
	_ = fs.Parse(args)

	return withRepository("list", func(ctx context.Context, r *repo.JobRepositoryPG) error {
		items, err := r.ListRecent(ctx, *limit)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTYPE\tSTATUS\tRUN AT\tUPDATED")
		for _, job := range items {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", job.ID, job.Type, job.Status,
				job.RunAt.UTC().Format(time.RFC3339), job.UpdatedAt.UTC().Format(time.RFC3339))
		}
		return w.Flush()
	})
}

func runStats(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	_ = fs.Parse(args)

	return withRepository("stats", func(ctx context.Context, r *repo.JobRepositoryPG) error {
		counts, err := r.CountByStatus(ctx)
		if err != nil {
			return err
		}
		statuses := make([]string, 0, len(counts))
		for status := range counts {
			statuses = append(statuses, string(status))
		}
		sort.Strings(statuses)
		for _, status := range statuses {
			fmt.Printf("%-10s %d\n", status, counts[domain.JobStatus(status)])
		}
		return nil
	})
}

func withRepository(cmd string, fn func(context.Context, *repo.JobRepositoryPG) error) error {
	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		return errors.New("DATABASE_URL is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("failed to create pool: %w", err)
	}
	defer pool.Close()

	logger := infra.NewLogger("cli").With().Str("cmd", "jobctl").Str("subcommand", cmd).Logger()
	return fn(ctx, repo.NewJobRepository(infra.NewSQLRunner(pool, logger)))
}
