package main

import (
	"context"
	"encoding/json"
	"fmt"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/diffbridge/diffbridge/internal/api"
	"github.com/diffbridge/diffbridge/internal/api/debug"
	"github.com/diffbridge/diffbridge/internal/app/workflow"
	"github.com/diffbridge/diffbridge/internal/config"
	"github.com/diffbridge/diffbridge/internal/domain/events"
	blobfs "github.com/diffbridge/diffbridge/internal/infra/blob/fs"
	"github.com/diffbridge/diffbridge/internal/infra/dispatch/jenkins"
	"github.com/diffbridge/diffbridge/internal/infra/eventbus/kafka"
	busmem "github.com/diffbridge/diffbridge/internal/infra/eventbus/memory"
	"github.com/diffbridge/diffbridge/internal/infra/storage/validation/postgres"
	"github.com/diffbridge/diffbridge/pkg/common/logger"
	"github.com/diffbridge/diffbridge/pkg/common/otel"
)

var build = "develop"

const serviceType = "diffbridge-server"

func main() {
	_, _ = maxprocs.Set()

	// Optional .env for local development.
	_ = godotenv.Load()

	hostname, err := os.Hostname()
	if err != nil {
		stdlog.Fatalf("failed to get hostname: %v", err)
	}

	logEvents := logger.Events{
		Error: func(ctx context.Context, r logger.Record) {
			errorAttrs := map[string]any{
				"error_message": r.Message,
				"error_time":    r.Time.UTC().Format(time.RFC3339),
				"trace_id":      otel.GetTraceID(ctx),
			}
			for k, v := range r.Attributes {
				errorAttrs[k] = v
			}

			errorAttrsJSON, err := json.Marshal(errorAttrs)
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to marshal error attributes: %v\n", err)
				return
			}
			fmt.Fprintf(os.Stderr, "Error event: %s, details: %s\n", r.Message, errorAttrsJSON)
		},
	}

	traceIDFn := func(ctx context.Context) string {
		return otel.GetTraceID(ctx)
	}

	svcName := fmt.Sprintf("DIFFBRIDGE-%s", hostname)
	metadata := map[string]string{
		"service":  svcName,
		"hostname": hostname,
		"build":    build,
		"app":      serviceType,
	}

	log := logger.NewWithMetadata(os.Stdout, logger.LevelInfo, svcName, traceIDFn, logEvents, metadata)

	ctx := context.Background()
	if err := run(ctx, log, hostname); err != nil {
		log.Error(ctx, "startup", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, log *logger.Logger, hostname string) error {
	log.Info(ctx, "startup", "GOMAXPROCS", runtime.GOMAXPROCS(0))

	// -------------------------------------------------------------------------
	// Configuration

	cfg, err := config.Load(os.Getenv("DIFFBRIDGE_CONFIG"))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// -------------------------------------------------------------------------
	// Database

	poolCfg, err := pgxpool.ParseConfig(cfg.Postgres.DSN())
	if err != nil {
		return fmt.Errorf("parsing db config: %w", err)
	}
	poolCfg.MinConns = 5
	poolCfg.MaxConns = 25
	poolCfg.ConnConfig.Tracer = otelpgx.NewTracer()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("creating db pool: %w", err)
	}
	defer pool.Close()

	// -------------------------------------------------------------------------
	// Tracing

	log.Info(ctx, "startup", "status", "initializing tracing support")

	prob := 0.05
	if raw := os.Getenv("OTEL_SAMPLING_RATIO"); raw != "" {
		prob, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("parsing sampling ratio: %w", err)
		}
	}

	traceProvider, teardown, err := otel.InitTelemetry(log, otel.Config{
		ServiceName:      serviceType,
		ExporterEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		ExcludedRoutes: map[string]struct{}{
			"/v1/readiness": {},
			"/v1/liveness":  {},
			"/debug":        {},
		},
		Probability: prob,
		ResourceAttributes: map[string]string{
			"library.language": "go",
			"host.name":        hostname,
			"deployment.env":   cfg.Service.Env,
		},
		InsecureExporter: true,
	})
	if err != nil {
		return fmt.Errorf("starting tracing: %w", err)
	}
	defer teardown(ctx)

	tracer := traceProvider.Tracer(serviceType)

	// -------------------------------------------------------------------------
	// Event bus

	log.Info(ctx, "startup", "status", "initializing event bus", "kafka_enabled", cfg.Kafka.Enabled)

	var bus events.EventBus
	if cfg.Kafka.Enabled {
		bus, err = kafka.ConnectWithRetry(&kafka.Config{
			Brokers:          cfg.Kafka.Brokers,
			TaskChangesTopic: cfg.Kafka.TaskChangesTopic,
			GroupID:          cfg.Kafka.GroupID,
			ClientID:         cfg.Kafka.ClientID,
		}, log, tracer)
		if err != nil {
			return fmt.Errorf("connecting event bus: %w", err)
		}
	} else {
		bus = busmem.NewBroker()
	}
	defer bus.Close()

	// -------------------------------------------------------------------------
	// Workflow

	jenkinsClient, err := jenkins.NewClient(jenkins.Config{
		BaseURL:            cfg.Jenkins.BaseURL,
		Username:           cfg.Jenkins.Username,
		APIToken:           cfg.Jenkins.APIToken,
		GenerateJobName:    cfg.Jenkins.GenerateJobName,
		IntegrationJobName: cfg.Jenkins.IntegrationJobName,
	}, log, tracer)
	if err != nil {
		return fmt.Errorf("creating jenkins client: %w", err)
	}

	blobs, err := blobfs.NewStore(cfg.Blob.Dir)
	if err != nil {
		return fmt.Errorf("creating blob store: %w", err)
	}

	repo := postgres.NewTaskStore(pool, tracer)
	locks := workflow.NewTaskLocks()

	coordinator := workflow.NewCoordinator(repo, jenkinsClient, blobs, bus, locks, log, tracer)
	ingestor := workflow.NewIngestor(repo, blobs, jenkinsClient, bus, locks, log, tracer)

	// -------------------------------------------------------------------------
	// Debug service

	if debugHost := os.Getenv("DEBUG_HOST"); debugHost != "" {
		go func() {
			log.Info(ctx, "startup", "status", "debug router started", "host", debugHost)
			if err := http.ListenAndServe(debugHost, debug.Mux()); err != nil {
				log.Error(ctx, "shutdown", "status", "debug router closed", "host", debugHost, "msg", err)
			}
		}()
	}

	// -------------------------------------------------------------------------
	// API service

	log.Info(ctx, "startup", "status", "initializing API support")

	serverCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := api.NewServer(cfg, log, tracer, coordinator, ingestor)
	if err := server.Start(serverCtx); err != nil {
		return fmt.Errorf("running api server: %w", err)
	}

	log.Info(ctx, "shutdown", "status", "shutdown complete")
	return nil
}
