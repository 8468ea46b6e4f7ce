package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/dd0wney/mulewatch/pkg/engine"
	"github.com/dd0wney/mulewatch/pkg/fusion"
	"github.com/dd0wney/mulewatch/pkg/ingest"
	"github.com/dd0wney/mulewatch/pkg/logging"
	"github.com/dd0wney/mulewatch/pkg/metrics"
	"github.com/dd0wney/mulewatch/pkg/rings"
)

const usage = `mulewatch - money muling ring detection

Usage:
  mulewatch analyze <transactions.csv> [flags]
  mulewatch whatif  <transactions.csv> -nodes ACC_A,ACC_B [flags]

Flags:
  -out <file>       Write the full JSON result to a file
  -workers <n>      Analysis worker count (default 4)
  -optimizer <url>  Remote partition optimizer URL
  -seed <n>         Optimizer sampling seed (default 1)
  -v                Verbose logging
`

func main() {
	if len(os.Args) < 3 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	command, csvPath := os.Args[1], os.Args[2]

	flags := flag.NewFlagSet(command, flag.ExitOnError)
	out := flags.String("out", "", "Output file for the JSON result")
	workers := flags.Int("workers", 4, "Analysis worker count")
	optimizer := flags.String("optimizer", "", "Remote partition optimizer URL")
	seed := flags.Int64("seed", 1, "Optimizer sampling seed")
	nodes := flags.String("nodes", "", "Comma-separated accounts to remove (whatif)")
	verbose := flags.Bool("v", false, "Verbose logging")
	flags.Parse(os.Args[3:])

	level := logging.ErrorLevel
	if *verbose {
		level = logging.DebugLevel
	}
	logger := logging.NewJSONLogger(os.Stderr, level)
	logging.SetDefaultLogger(logger)

	analysis, err := runAnalysis(csvPath, *workers, *optimizer, *seed, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	switch command {
	case "analyze":
		printSummary(analysis.Report)
		if err := writeResult(*out, analysis.Report); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	case "whatif":
		removal := splitNodes(*nodes)
		if len(removal) == 0 {
			fmt.Fprintln(os.Stderr, "error: whatif requires -nodes")
			os.Exit(2)
		}
		eng := newEngine(*workers, *optimizer, *seed, logger)
		result, err := eng.WhatIf(analysis, removal)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		printWhatIf(result.NodesRemoved, result.Effectiveness.Overall, result.Effectiveness.Grade)
		if err := writeResult(*out, result); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
}

func newEngine(workers int, optimizerURL string, seed int64, logger logging.Logger) *engine.Engine {
	return engine.New(engine.Options{
		Workers:            workers,
		OptimizerRemoteURL: optimizerURL,
		OptimizerSeed:      seed,
		RingConfig:         rings.DefaultConfig(),
		Weights:            fusion.DefaultWeights(),
	}, metrics.NewRegistry(), logger)
}

func runAnalysis(csvPath string, workers int, optimizerURL string, seed int64, logger logging.Logger) (*engine.Analysis, error) {
	f, err := os.Open(csvPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	graph, meta, err := ingest.ParseCSV(f)
	if err != nil {
		return nil, err
	}

	eng := newEngine(workers, optimizerURL, seed, logger)
	return eng.Analyze(context.Background(), graph, meta)
}

func printSummary(report *engine.Report) {
	fmt.Printf("Run %s\n", report.RunID)
	fmt.Printf("  Accounts analyzed:   %d\n", report.Summary.TotalAccountsAnalyzed)
	fmt.Printf("  Fraud rings:         %d\n", report.Summary.FraudRingsDetected)
	fmt.Printf("  Suspicious accounts: %d\n", report.Summary.SuspiciousAccountsFlagged)
	fmt.Printf("  Processing time:     %.2fs\n", report.Summary.ProcessingTimeSeconds)

	for _, ring := range report.FraudRings {
		fmt.Printf("\n%s  pattern=%s  risk=%.1f\n", ring.ID, ring.Pattern, ring.RiskScore)
		fmt.Printf("  members: %s\n", strings.Join(ring.Members, ", "))
	}

	if report.Disruption != nil {
		fmt.Printf("\nNetwork resilience: %.1f\n", report.Disruption.GlobalSummary.NetworkResilienceScore)
	}
}

func printWhatIf(removed []string, overall float64, grade string) {
	fmt.Printf("Removed: %s\n", strings.Join(removed, ", "))
	fmt.Printf("Effectiveness: %.1f (grade %s)\n", overall, grade)
}

func writeResult(path string, v any) error {
	if path == "" {
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return err
	}
	fmt.Printf("\nWrote %s\n", path)
	return nil
}

func splitNodes(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
