package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"golang.org/x/sync/errgroup"

	"sentra/internal/audit"
	auditMetrics "sentra/internal/audit/metrics"
	"sentra/internal/audit/query"
	"sentra/internal/export"
	exportMetrics "sentra/internal/export/metrics"
	"sentra/internal/ingest"
	"sentra/internal/platform/config"
	"sentra/internal/platform/httpserver"
	kafkaconsumer "sentra/internal/platform/kafka/consumer"
	"sentra/internal/platform/logger"
	platformredis "sentra/internal/platform/redis"
	"sentra/internal/scope"
	httptransport "sentra/internal/transport/http"
	id "sentra/pkg/domain"
)

// main wires high-level dependencies and keeps the server lifecycle small.
// Business logic lives in the internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	health := map[string]httptransport.HealthChecker{}

	// Storage. Without DATABASE_URL everything runs on in-memory stores,
	// which is how local development and the test suite operate.
	var (
		eventStore audit.Store
		jobStore   export.JobStore
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			log.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		eventStore = audit.NewPostgresStore(db)
		jobStore = export.NewPostgresJobStore(db)
		health["database"] = db.PingContext
	} else {
		log.Warn("DATABASE_URL not set, using in-memory stores")
		eventStore = audit.NewInMemoryStore()
		jobStore = export.NewInMemoryJobStore()
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}

	var (
		permCache scope.Cache         = scope.NewInMemoryCache()
		counter   export.CounterStore = export.NewInMemoryCounterStore()
	)
	if redisClient != nil {
		defer redisClient.Close()
		permCache = scope.NewRedisCache(redisClient.Client)
		counter = export.NewRedisCounterStore(redisClient.Client)
		health["redis"] = redisClient.Health
	}

	resolver := scope.NewResolver(
		scope.NewHTTPIdentityClient(cfg.IdentityBaseURL),
		scope.WithCache(permCache, cfg.PermissionCacheTTL),
		scope.WithLogger(log),
	)

	audMetrics := auditMetrics.New()
	recorder := audit.NewRecorder(eventStore,
		audit.WithRecorderLogger(log),
		audit.WithRecorderMetrics(audMetrics),
	)
	queryService := query.NewService(eventStore, resolver,
		query.WithLogger(log),
		query.WithMetrics(audMetrics),
	)

	expMetrics := exportMetrics.New()
	jobQueue := make(chan id.ExportID, 64)
	exportService := export.NewService(jobStore, counter, jobQueue, resolver,
		export.WithLogger(log),
		export.WithMetrics(expMetrics),
	)
	exportWorker := export.NewWorker(jobQueue, jobStore, eventStore, resolver, cfg.ExportDir,
		export.WithWorkerCount(cfg.ExportWorkers),
		export.WithWorkerLogger(log),
		export.WithWorkerMetrics(expMetrics),
	)

	ingestor := ingest.NewIngestor(recorder, log)

	router := httptransport.NewRouter(httptransport.Deps{
		Query:         httptransport.NewQueryHandler(queryService, log),
		Export:        httptransport.NewExportHandler(exportService, log),
		Ingest:        httptransport.NewIngestHandler(ingestor, ingest.NewSecretVerifier(cfg.IngestSecretHash), log),
		JWTSigningKey: cfg.JWTSigningKey,
		Logger:        log,
		Health:        health,
	})
	srv := httpserver.New(cfg.Addr, router)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting audit service", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		err := exportWorker.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if len(cfg.Kafka.Brokers) > 0 {
		kc, err := kafkaconsumer.New(kafkaconsumer.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
			Group:   cfg.Kafka.Group,
		}, ingestor.HandleMessage, log)
		if err != nil {
			log.Error("failed to start kafka consumer", "error", err)
			os.Exit(1)
		}
		g.Go(func() error {
			err := kc.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	} else {
		log.Warn("KAFKA_BROKERS not set, event ingest is HTTP-only")
	}

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
