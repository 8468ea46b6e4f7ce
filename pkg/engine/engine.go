// Package engine orchestrates one analysis run: graph signals fan out
// concurrently, join at the aggregator, then the disruption planner runs on
// the fused result. The latest completed run is kept as an atomic snapshot
// for the read endpoints.
package engine

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dd0wney/mulewatch/pkg/anomaly"
	"github.com/dd0wney/mulewatch/pkg/disruption"
	"github.com/dd0wney/mulewatch/pkg/fusion"
	"github.com/dd0wney/mulewatch/pkg/ingest"
	"github.com/dd0wney/mulewatch/pkg/logging"
	"github.com/dd0wney/mulewatch/pkg/metrics"
	"github.com/dd0wney/mulewatch/pkg/parallel"
	"github.com/dd0wney/mulewatch/pkg/partition"
	"github.com/dd0wney/mulewatch/pkg/rings"
	"github.com/dd0wney/mulewatch/pkg/txgraph"
)

// Report is the full output of one analysis run, shaped for the report
// contract consumed by the transport layer.
type Report struct {
	RunID              string                      `json:"run_id"`
	GeneratedAt        time.Time                   `json:"generated_at"`
	Metadata           *ingest.Metadata            `json:"metadata,omitempty"`
	FraudRings         []rings.Ring                `json:"fraud_rings"`
	SuspiciousAccounts []fusion.SuspiciousAccount  `json:"suspicious_accounts"`
	Summary            fusion.Summary              `json:"summary"`
	Partitions         map[string]partition.Result `json:"partition_results"`
	Disruption         *disruption.Report          `json:"disruption"`
}

// Analysis bundles a report with the graph it was computed from, so What-If
// simulations can replay against the exact same data.
type Analysis struct {
	Report *Report
	Graph  *txgraph.Graph
}

// Options configures an Engine.
type Options struct {
	Workers            int
	OptimizerRemoteURL string
	OptimizerTimeout   time.Duration
	OptimizerSeed      int64
	RingConfig         rings.Config
	Weights            fusion.Weights
}

// Engine runs the analysis pipeline. Safe for concurrent use; each Analyze
// call works on its own graph and worker pool.
type Engine struct {
	opts    Options
	partEng *partition.Engine
	scorer  anomaly.Scorer
	metrics *metrics.Registry
	logger  logging.Logger
}

func New(opts Options, reg *metrics.Registry, logger logging.Logger) *Engine {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if logger == nil {
		logger = logging.With(logging.Component("engine"))
	}
	if reg == nil {
		reg = metrics.DefaultRegistry()
	}

	chain := partition.DefaultChain(opts.OptimizerRemoteURL, opts.OptimizerTimeout, opts.OptimizerSeed)
	partEng := partition.NewEngine(chain, opts.OptimizerTimeout, logger)
	partEng.SetObserver(&partitionMetrics{reg: reg})
	return &Engine{
		opts:    opts,
		partEng: partEng,
		scorer:  anomaly.NewStatScorer(),
		metrics: reg,
		logger:  logger,
	}
}

// Analyze runs the full pipeline against an already-built graph.
func (e *Engine) Analyze(ctx context.Context, g *txgraph.Graph, meta *ingest.Metadata) (*Analysis, error) {
	runID := uuid.NewString()
	start := time.Now()
	logger := e.logger.With(logging.RunID(runID))
	timer := logging.StartTimer(logger, "analysis run")

	pool := parallel.NewPool(e.opts.Workers)
	defer pool.Close()

	// The detector, the anomaly scorer and the ring-agnostic partition pass
	// only read the shared graph, so they fan out without locking.
	var (
		ringResult    rings.Result
		anomalyScores map[string]float64
		firstPass     map[string]partition.Result
		wg            sync.WaitGroup
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		ringResult = rings.NewDetector(g, e.opts.RingConfig, logger).Run()
	}()
	go func() {
		defer wg.Done()
		anomalyScores = e.scorer.Score(g)
	}()
	go func() {
		defer wg.Done()
		firstPass = e.partEng.EvaluateAll(ctx, nil, g, pool)
	}()
	wg.Wait()

	// Second partition pass with the real rings, merged over the placeholder
	// pass so already-computed scores survive.
	secondPass := e.partEng.EvaluateAll(ctx, ringResult.Rings, g, pool)
	parts := fusion.MergePartitions(firstPass, secondPass)

	out := fusion.NewAggregator(e.opts.Weights, logger).Run(&ringResult, anomalyScores, parts, g.NodeCount())

	disruptionReport := disruption.NewEngine(g, logger).Run(out.Rings)

	elapsed := time.Since(start)
	out.Summary.ProcessingTimeSeconds = math.Round(elapsed.Seconds()*100) / 100

	byPattern := make(map[string]int)
	for _, r := range out.Rings {
		byPattern[string(r.Pattern)]++
	}
	e.metrics.RecordRings(byPattern)
	e.metrics.RecordAnalysis("success", elapsed, g.NodeCount(), g.EdgeCount(), len(out.Accounts))

	timer.End()
	logger.Info("analysis complete",
		logging.Count(len(out.Rings)),
		logging.Int("suspicious_accounts", len(out.Accounts)))

	return &Analysis{
		Report: &Report{
			RunID:              runID,
			GeneratedAt:        start.UTC(),
			Metadata:           meta,
			FraudRings:         out.Rings,
			SuspiciousAccounts: out.Accounts,
			Summary:            out.Summary,
			Partitions:         parts,
			Disruption:         disruptionReport,
		},
		Graph: g,
	}, nil
}

// partitionMetrics feeds partition evaluation outcomes into the registry.
type partitionMetrics struct {
	reg *metrics.Registry
}

func (m *partitionMetrics) RingEvaluated(backend string, duration time.Duration) {
	m.reg.RecordPartition(backend, duration)
}

func (m *partitionMetrics) BackendFailed(backend string) {
	m.reg.RecordPartitionFailure(backend)
}

// WhatIf replays a counterfactual removal against a completed analysis.
func (e *Engine) WhatIf(analysis *Analysis, removal []string) (*disruption.WhatIfResult, error) {
	sim := disruption.NewSimulator(analysis.Graph, e.logger)
	res, err := sim.Simulate(removal, analysis.Report.FraudRings, analysis.Report.SuspiciousAccounts)
	if err != nil {
		return nil, err
	}
	e.metrics.RecordWhatIf()
	return res, nil
}
