package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dd0wney/mulewatch/pkg/api"
	"github.com/dd0wney/mulewatch/pkg/archive"
	"github.com/dd0wney/mulewatch/pkg/config"
	"github.com/dd0wney/mulewatch/pkg/engine"
	"github.com/dd0wney/mulewatch/pkg/health"
	"github.com/dd0wney/mulewatch/pkg/logging"
	"github.com/dd0wney/mulewatch/pkg/metrics"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	port := flag.Int("port", 0, "Override the configured HTTP port")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	logger := logging.NewJSONLogger(os.Stdout, logging.ParseLevel(cfg.LogLevel))
	logging.SetDefaultLogger(logger)
	log := logger.With(logging.Component("server"))

	log.Info("mulewatch starting",
		logging.String("host", cfg.Server.Host),
		logging.Int("port", cfg.Server.Port),
		logging.Int("workers", cfg.Analysis.Workers))

	reg := metrics.DefaultRegistry()
	store := engine.NewStore()

	eng := engine.New(engine.Options{
		Workers:            cfg.Analysis.Workers,
		OptimizerRemoteURL: cfg.Partition.RemoteURL,
		OptimizerTimeout:   cfg.Partition.Timeout,
		OptimizerSeed:      cfg.Partition.Seed,
	}, reg, log)

	archivers, pg, cleanup, err := buildArchivers(cfg, log)
	if err != nil {
		log.Error("archive setup failed", logging.Error(err))
		os.Exit(1)
	}
	defer cleanup()

	var pgPing func() error
	if pg != nil {
		pgPing = func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return pg.Ping(ctx)
		}
	}
	checker := buildHealthChecker(cfg, store, pgPing)

	server, err := api.NewServer(cfg.Server, eng, store, checker, reg, log, archivers...)
	if err != nil {
		log.Error("server setup failed", logging.Error(err))
		os.Exit(1)
	}
	if pg != nil {
		server.SetRunHistory(pg)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Error("shutdown error", logging.Error(err))
		}
	}()

	if err := server.Start(); err != nil {
		log.Error("server error", logging.Error(err))
		os.Exit(1)
	}
	log.Info("server exited")
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		cfg := config.Default()
		return cfg, nil
	}
	return config.Load(path)
}

// buildArchivers wires the optional report sinks. A PostgreSQL failure is
// fatal when configured; the file archiver only needs a writable directory.
// The PGStore comes back separately so the server can serve run history.
func buildArchivers(cfg *config.Config, log logging.Logger) ([]api.Archiver, *archive.PGStore, func(), error) {
	var archivers []api.Archiver
	cleanup := func() {}

	if cfg.Archive.Dir != "" {
		fa, err := archive.NewFileArchiver(cfg.Archive.Dir, log)
		if err != nil {
			return nil, nil, cleanup, err
		}
		archivers = append(archivers, fa)
		log.Info("file archive enabled", logging.String("dir", cfg.Archive.Dir))
	}

	var pg *archive.PGStore
	if cfg.Archive.PostgresURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		var err error
		pg, err = archive.NewPGStore(ctx, cfg.Archive.PostgresURL)
		if err != nil {
			return nil, nil, cleanup, err
		}
		archivers = append(archivers, &pgArchiver{store: pg})
		cleanup = func() { pg.Close() }
		log.Info("postgres run history enabled")
	}

	return archivers, pg, cleanup, nil
}

// pgArchiver adapts the PostgreSQL history store to the Archiver interface.
type pgArchiver struct {
	store *archive.PGStore
}

func (a *pgArchiver) Save(report *engine.Report) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return a.store.SaveRun(ctx, report)
}

func buildHealthChecker(cfg *config.Config, store *engine.Store, pgPing func() error) *health.Checker {
	checker := health.NewChecker()

	checker.RegisterCheck("engine", health.EngineInfoCheck(version, cfg.Partition.RemoteURL != ""))

	checker.RegisterCheck("analysis_store", health.AnalysisStoreCheck(func() (string, time.Time, bool) {
		analysis, ok := store.Latest()
		if !ok {
			return "", time.Time{}, false
		}
		return analysis.Report.RunID, analysis.Report.GeneratedAt, true
	}))

	configured := cfg.Partition.RemoteURL != ""
	checker.RegisterReadinessCheck("optimizer", health.OptimizerCheck(func() error {
		client := &http.Client{Timeout: 5 * time.Second}
		resp, err := client.Head(cfg.Partition.RemoteURL)
		if err != nil {
			return err
		}
		resp.Body.Close()
		return nil
	}, configured))

	if pgPing != nil {
		checker.RegisterReadinessCheck("archive", health.ArchiveCheck(pgPing))
	}

	checker.RegisterLivenessCheck("memory", health.MemoryCheck(2<<30))

	return checker
}
