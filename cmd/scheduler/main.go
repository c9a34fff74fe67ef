package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"scheduler/internal/adapter/redisstore"
	"scheduler/internal/adapter/repo"
	"scheduler/internal/dispatch"
	"scheduler/internal/domain"
	"scheduler/internal/events"
	"scheduler/internal/handlers/reportemail"
	"scheduler/internal/http/handlers"
	"scheduler/internal/http/httpapi"
	"scheduler/internal/infra"
	"scheduler/internal/jobfile"
	"scheduler/internal/jobs"
	"scheduler/internal/mailer"
	"scheduler/internal/metrics"
	"scheduler/internal/poller"
	"scheduler/internal/storage"
)

func main() {
	infra.LoadDotEnv()
	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("store", cfg.JobStore).Msg("scheduler: job store unavailable")
	}
	defer closeStore()

	registry := jobs.NewRegistry(jobs.WithStore(store), jobs.WithLogger(logger))

	fileStore, err := storage.NewFileStore(cfg.ReportDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: failed to configure report storage")
	}
	sender := mailer.New(mailer.Config{
		Server:            cfg.SMTPServer,
		Port:              cfg.SMTPPort,
		UseTLS:            cfg.UseTLS,
		SenderEmail:       cfg.SenderEmail,
		SenderPassword:    cfg.SenderPassword,
		SenderName:        cfg.SenderName,
		Enabled:           cfg.EmailEnabled,
		TestMode:          cfg.TestMode,
		BundleAttachments: cfg.BundleAttachments,
		Timeout:           30 * time.Second,
	}, fileStore, logger)

	dispatcher := dispatch.New(dispatch.WithTimeout(cfg.HandlerTimeout), dispatch.WithLogger(logger))
	if err := dispatcher.Register(domain.JobTypeReportEmail, reportemail.New(sender)); err != nil {
		logger.Fatal().Err(err).Msg("scheduler: failed to register handlers")
	}

	var publisher events.Publisher = events.Nop{}
	if cfg.NATSURL != "" {
		nats, err := events.ConnectNATS(cfg.NATSURL, cfg.NATSSubjectPrefix)
		if err != nil {
			logger.Warn().Err(err).Msg("scheduler: nats unavailable, job events disabled")
		} else {
			defer nats.Close()
			publisher = nats
		}
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	jobPoller := poller.New(registry, dispatcher,
		poller.WithLogger(logger),
		poller.WithMetrics(metrics.New(promReg)),
		poller.WithPublisher(publisher),
	)

	if cfg.JobsSeedFile != "" {
		seed, err := jobfile.Load(cfg.JobsSeedFile)
		if err != nil {
			logger.Fatal().Err(err).Msg("scheduler: invalid seed file")
		}
		seeded, err := jobfile.Apply(ctx, registry, seed, time.Now())
		if err != nil {
			logger.Fatal().Err(err).Msg("scheduler: seeding jobs failed")
		}
		logger.Info().Int("jobs", len(seeded)).Str("file", cfg.JobsSeedFile).Msg("scheduler: seed jobs registered")
	}

	trigger := poller.IntervalTrigger(cfg.PollInterval)
	if cfg.PollCron != "" {
		trigger, err = poller.CronTrigger(cfg.PollCron)
		if err != nil {
			logger.Fatal().Err(err).Msg("scheduler: invalid POLL_CRON")
		}
	}

	app := handlers.NewApp(registry, jobPoller, logger)
	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:          logger,
		Metrics:         promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}),
		APIToken:        cfg.ControlAPIToken,
		AllowedOrigins:  cfg.CORSOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
	})
	server := infra.NewHTTPServer(cfg, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", server.Addr()).Msg("scheduler: control api listening")
		return server.Start()
	})
	g.Go(func() error {
		if err := jobPoller.Run(gctx, trigger); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	if rs, ok := store.(*redisstore.Store); ok && cfg.JobRetention > 0 {
		g.Go(func() error {
			rs.PruneEvery(gctx, min(cfg.JobRetention, time.Hour), logger)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("scheduler: stopped with error")
	}
	logger.Info().Msg("scheduler: stopped")
}

func openStore(ctx context.Context, cfg *infra.Config, logger infra.Logger) (domain.JobStore, func(), error) {
	switch cfg.JobStore {
	case infra.StorePostgres:
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		runner := infra.NewSQLRunner(pool, logger)
		return repo.NewJobRepository(runner), pool.Close, nil
	case infra.StoreRedis:
		client, err := infra.NewRedisClient(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		store := redisstore.New(client, redisstore.WithRetention(cfg.JobRetention))
		return store, func() { _ = client.Close() }, nil
	default:
		logger.Warn().Msg("scheduler: no durable job store configured, jobs live in memory only")
		return jobs.NopStore{}, func() {}, nil
	}
}
