// Package api exposes the analysis pipeline over HTTP: batch upload, report
// download, counterfactual simulation, health probes, GraphQL and Prometheus
// metrics.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	gql "github.com/graphql-go/graphql"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dd0wney/mulewatch/pkg/archive"
	"github.com/dd0wney/mulewatch/pkg/config"
	"github.com/dd0wney/mulewatch/pkg/engine"
	"github.com/dd0wney/mulewatch/pkg/graphql"
	"github.com/dd0wney/mulewatch/pkg/health"
	"github.com/dd0wney/mulewatch/pkg/logging"
	"github.com/dd0wney/mulewatch/pkg/metrics"
)

// Archiver persists completed run reports. Both the snappy file archiver and
// the PostgreSQL history store satisfy it.
type Archiver interface {
	Save(report *engine.Report) error
}

// RunHistory reads back archived runs. The PostgreSQL store satisfies it;
// without one the run history endpoints answer 404.
type RunHistory interface {
	GetRun(ctx context.Context, runID string) (*engine.Report, error)
	ListRuns(ctx context.Context, limit int) ([]archive.RunRecord, error)
}

// Server is the HTTP API server.
type Server struct {
	cfg             config.ServerConfig
	engine          *engine.Engine
	store           *engine.Store
	archivers       []Archiver
	history         RunHistory
	healthChecker   *health.Checker
	metricsRegistry *metrics.Registry
	gqlSchema       gql.Schema
	notifier        *WebhookNotifier
	logger          logging.Logger
	startTime       time.Time
	httpServer      *http.Server
}

// NewServer wires the analysis engine and its supporting services into an
// HTTP server. Archivers are optional; pass none to disable persistence.
func NewServer(cfg config.ServerConfig, eng *engine.Engine, store *engine.Store,
	checker *health.Checker, reg *metrics.Registry, logger logging.Logger,
	archivers ...Archiver) (*Server, error) {

	if logger == nil {
		logger = logging.With(logging.Component("api"))
	}
	if checker == nil {
		checker = health.NewChecker()
	}
	if reg == nil {
		reg = metrics.DefaultRegistry()
	}

	schema, err := graphql.GenerateSchema(store.Latest)
	if err != nil {
		return nil, fmt.Errorf("generate graphql schema: %w", err)
	}

	s := &Server{
		cfg:             cfg,
		engine:          eng,
		store:           store,
		archivers:       archivers,
		healthChecker:   checker,
		metricsRegistry: reg,
		gqlSchema:       schema,
		logger:          logger,
		startTime:       time.Now(),
	}
	if cfg.WebhookURL != "" {
		s.notifier = NewWebhookNotifier(cfg.WebhookURL, logger)
	}
	return s, nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Analysis endpoints
	mux.HandleFunc("/api/analyze", s.handleAnalyze)
	mux.HandleFunc("/api/download", s.handleDownload)
	mux.HandleFunc("/api/whatif", s.handleWhatIf)
	mux.HandleFunc("/api/webhook", s.handleWebhookPing)
	mux.HandleFunc("/api/runs", s.handleListRuns)
	mux.HandleFunc("/api/runs/", s.handleGetRun)

	// Health probes
	mux.HandleFunc("/api/health", s.healthChecker.HTTPHandler())
	mux.HandleFunc("/health/ready", s.healthChecker.ReadinessHandler())
	mux.HandleFunc("/health/live", s.healthChecker.LivenessHandler())

	// GraphQL over the latest snapshot
	mux.HandleFunc("/graphql", s.handleGraphQL)

	// Prometheus metrics
	mux.Handle("/metrics", promhttp.HandlerFor(
		s.metricsRegistry.GetPrometheusRegistry(),
		promhttp.HandlerOpts{},
	))

	handler := s.bodySizeLimitMiddleware(mux, s.cfg.MaxUploadBytes)
	handler = s.metricsMiddleware(handler)
	handler = s.loggingMiddleware(handler)
	handler = s.corsMiddleware(handler)
	handler = s.requestIDMiddleware(handler)
	return s.panicRecoveryMiddleware(handler)
}

// SetRunHistory enables the run history endpoints. Must be called before
// Start or Handler.
func (s *Server) SetRunHistory(history RunHistory) {
	s.history = history
}

// Handler returns the full route and middleware chain, for tests and for
// embedding the API under another mux.
func (s *Server) Handler() http.Handler {
	return s.routes()
}

// Start runs the HTTP server until it fails or Shutdown is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.routes(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("server starting", logging.String("addr", addr))

	go s.updateMetricsPeriodically()

	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("server shutting down")
	return s.httpServer.Shutdown(ctx)
}
