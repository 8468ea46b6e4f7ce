package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dd0wney/mulewatch/pkg/engine"
)

// ErrRunNotFound is returned when a run id has no stored history row.
var ErrRunNotFound = errors.New("analysis run not found")

// RunRecord is one row of the analysis run history.
type RunRecord struct {
	RunID             string    `json:"run_id"`
	GeneratedAt       time.Time `json:"generated_at"`
	TotalAccounts     int       `json:"total_accounts"`
	RingsDetected     int       `json:"rings_detected"`
	AccountsFlagged   int       `json:"accounts_flagged"`
	ProcessingSeconds float64   `json:"processing_seconds"`
}

// PGStore keeps the analysis run history in PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore connects, verifies the connection, and creates the schema.
func NewPGStore(ctx context.Context, databaseURL string) (*PGStore, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	// Connection pooling configuration
	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}

	s := &PGStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	return s, nil
}

func (s *PGStore) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS analysis_runs (
		run_id TEXT PRIMARY KEY,
		generated_at TIMESTAMP NOT NULL,
		total_accounts INT NOT NULL,
		rings_detected INT NOT NULL,
		accounts_flagged INT NOT NULL,
		processing_seconds DOUBLE PRECISION NOT NULL,
		report JSONB NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_analysis_runs_generated_at ON analysis_runs(generated_at);
	`

	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Ping checks database connectivity
func (s *PGStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the database connection pool
func (s *PGStore) Close() error {
	s.pool.Close()
	return nil
}

// SaveRun stores one completed run with its full report.
func (s *PGStore) SaveRun(ctx context.Context, report *engine.Report) error {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	query := `
		INSERT INTO analysis_runs (run_id, generated_at, total_accounts, rings_detected, accounts_flagged, processing_seconds, report)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (run_id) DO NOTHING
	`

	_, err = s.pool.Exec(ctx, query,
		report.RunID,
		report.GeneratedAt,
		report.Summary.TotalAccountsAnalyzed,
		len(report.FraudRings),
		report.Summary.SuspiciousAccountsFlagged,
		report.Summary.ProcessingTimeSeconds,
		reportJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// GetRun retrieves a full report by run id.
func (s *PGStore) GetRun(ctx context.Context, runID string) (*engine.Report, error) {
	query := `SELECT report FROM analysis_runs WHERE run_id = $1`

	var reportJSON []byte
	err := s.pool.QueryRow(ctx, query, runID).Scan(&reportJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	var report engine.Report
	if err := json.Unmarshal(reportJSON, &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report: %w", err)
	}
	return &report, nil
}

// ListRuns returns the most recent run summaries, newest first.
func (s *PGStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT run_id, generated_at, total_accounts, rings_detected, accounts_flagged, processing_seconds
		FROM analysis_runs
		ORDER BY generated_at DESC
		LIMIT $1
	`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	records := make([]RunRecord, 0, limit)
	for rows.Next() {
		var rec RunRecord
		if err := rows.Scan(&rec.RunID, &rec.GeneratedAt, &rec.TotalAccounts, &rec.RingsDetected, &rec.AccountsFlagged, &rec.ProcessingSeconds); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
