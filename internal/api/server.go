// Package api exposes the HTTP surface of the orchestrator: task lifecycle
// endpoints for people and the webhook endpoint for the CI system.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/trace"

	"github.com/diffbridge/diffbridge/internal/app/workflow"
	"github.com/diffbridge/diffbridge/internal/config"
	"github.com/diffbridge/diffbridge/pkg/common/logger"
	"github.com/diffbridge/diffbridge/pkg/common/otel"
)

// Server wires the HTTP router to the workflow layer.
type Server struct {
	cfg         *config.Config
	logger      *logger.Logger
	router      *chi.Mux
	coordinator *workflow.Coordinator
	ingestor    *workflow.Ingestor
	tracer      trace.Tracer
	validate    *validator.Validate
}

// NewServer builds the router with the standard middleware stack and all
// routes bound.
func NewServer(
	cfg *config.Config,
	log *logger.Logger,
	tracer trace.Tracer,
	coordinator *workflow.Coordinator,
	ingestor *workflow.Ingestor,
) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(otel.Middleware(tracer))
	r.Use(loggerMiddleware(log))
	r.Use(middleware.Recoverer)

	s := &Server{
		cfg:         cfg,
		logger:      log,
		router:      r,
		coordinator: coordinator,
		ingestor:    ingestor,
		tracer:      tracer,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}

	s.routes()
	return s
}

func loggerMiddleware(log *logger.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				ctx := r.Context()
				log.Info(ctx, "Request completed",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"duration", time.Since(start),
					"trace_id", otel.GetTraceID(ctx),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

func (s *Server) routes() {
	s.router.Route("/v1", func(r chi.Router) {
		r.Get("/liveness", s.handleLiveness)
		r.Get("/readiness", s.handleReadiness)

		r.Post("/tasks", s.handleCreateTask)
		r.Get("/tasks", s.handleListTasks)
		r.Get("/tasks/{taskID}", s.handleGetTask)
		r.Post("/tasks/{taskID}/validated-file", s.handleUploadValidatedFile)
		r.Post("/tasks/{taskID}/integration", s.handleTriggerIntegration)

		r.Post("/webhooks/jenkins", s.handleJenkinsWebhook)
	})
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.cfg.API.Host, s.cfg.API.Port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(shutdownCtx, "failed to shutdown server", "error", err)
		}
	}()

	s.logger.Info(ctx, "http server listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
