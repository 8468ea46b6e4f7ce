// Package fusion joins the three detection signals into the final report
// entities: one suspicion score per account and a re-weighted risk score per
// ring. Field names are part of the report contract.
package fusion

import (
	"math"
	"sort"

	"github.com/dd0wney/mulewatch/pkg/logging"
	"github.com/dd0wney/mulewatch/pkg/partition"
	"github.com/dd0wney/mulewatch/pkg/rings"
)

// Severity cutoffs on the fused score.
const (
	SuspicionCutoff = 40.0
	HighSeverity    = 70.0
)

// ComponentScores carries the raw per-signal scores behind a fused score.
type ComponentScores struct {
	Graph   float64 `json:"graph"`
	ML      float64 `json:"ml"`
	Quantum float64 `json:"quantum"`
}

// SuspiciousAccount is one flagged account in the final report.
type SuspiciousAccount struct {
	AccountID        string          `json:"account_id"`
	SuspicionScore   float64         `json:"suspicion_score"`
	DetectedPatterns []string        `json:"detected_patterns"`
	RingID           string          `json:"ring_id"`
	Severity         string          `json:"severity"`
	Components       ComponentScores `json:"component_scores"`
}

// Summary is the report roll-up. ProcessingTimeSeconds is filled by the
// caller that owns the request clock.
type Summary struct {
	TotalAccountsAnalyzed     int     `json:"total_accounts_analyzed"`
	SuspiciousAccountsFlagged int     `json:"suspicious_accounts_flagged"`
	FraudRingsDetected        int     `json:"fraud_rings_detected"`
	ProcessingTimeSeconds     float64 `json:"processing_time_seconds"`
}

// Output is the aggregated analysis result.
type Output struct {
	Rings    []rings.Ring        `json:"fraud_rings"`
	Accounts []SuspiciousAccount `json:"suspicious_accounts"`
	Summary  Summary             `json:"summary"`
}

// Weights are the fusion weights for the three signals. Missing signals are
// renormalized away, never treated as zero.
type Weights struct {
	Graph     float64
	Anomaly   float64
	Partition float64
}

// DefaultWeights returns the standard 0.4 / 0.3 / 0.3 split.
func DefaultWeights() Weights {
	return Weights{Graph: 0.4, Anomaly: 0.3, Partition: 0.3}
}

// Aggregator fuses per-account signals and re-weights ring risk.
type Aggregator struct {
	weights Weights
	logger  logging.Logger
}

func NewAggregator(w Weights, logger logging.Logger) *Aggregator {
	if logger == nil {
		logger = logging.With(logging.Component("fusion"))
	}
	return &Aggregator{weights: w, logger: logger}
}

// Run fuses the ring, anomaly and partition signals. Accounts enter the
// output when their fused score reaches the cutoff or they belong to a
// detected pattern.
func (a *Aggregator) Run(ringResult *rings.Result, anomaly map[string]float64, parts map[string]partition.Result, totalAccounts int) *Output {
	partScores := a.flattenPartitionScores(ringResult.Rings, parts)

	candidates := make(map[string]struct{})
	for acc := range ringResult.AccountScores {
		candidates[acc] = struct{}{}
	}
	for acc := range anomaly {
		candidates[acc] = struct{}{}
	}
	for acc := range partScores {
		candidates[acc] = struct{}{}
	}

	fused := make(map[string]float64, len(candidates))
	accounts := make([]SuspiciousAccount, 0, len(candidates))
	missingSignals := 0

	for acc := range candidates {
		graphScore, hasGraph := ringResult.AccountScores[acc]
		anomalyScore, hasAnomaly := anomaly[acc]
		partScore, hasPart := partScores[acc]

		weightSum := 0.0
		weighted := 0.0
		if hasGraph {
			weightSum += a.weights.Graph
			weighted += a.weights.Graph * graphScore
		}
		if hasAnomaly {
			weightSum += a.weights.Anomaly
			weighted += a.weights.Anomaly * anomalyScore
		}
		if hasPart {
			weightSum += a.weights.Partition
			weighted += a.weights.Partition * partScore
		}
		if weightSum == 0 {
			continue
		}
		if !hasGraph || !hasAnomaly || !hasPart {
			missingSignals++
		}

		score := round2(clamp100(weighted / weightSum))
		fused[acc] = score

		patterns := patternLabels(ringResult.AccountPatterns[acc])
		if score < SuspicionCutoff && len(patterns) == 0 {
			continue
		}

		accounts = append(accounts, SuspiciousAccount{
			AccountID:        acc,
			SuspicionScore:   score,
			DetectedPatterns: patterns,
			RingID:           firstRing(ringResult.Rings, acc),
			Severity:         severity(score),
			Components: ComponentScores{
				Graph:   round2(graphScore),
				ML:      round2(anomalyScore),
				Quantum: round2(partScore),
			},
		})
	}

	if missingSignals > 0 {
		a.logger.Debug("renormalized fusion weights for accounts with missing signals",
			logging.Count(missingSignals))
	}

	sort.Slice(accounts, func(i, j int) bool {
		if accounts[i].SuspicionScore != accounts[j].SuspicionScore {
			return accounts[i].SuspicionScore > accounts[j].SuspicionScore
		}
		return accounts[i].AccountID < accounts[j].AccountID
	})

	finalRings := a.reweightRings(ringResult.Rings, fused)

	return &Output{
		Rings:    finalRings,
		Accounts: accounts,
		Summary: Summary{
			TotalAccountsAnalyzed:     totalAccounts,
			SuspiciousAccountsFlagged: len(accounts),
			FraudRingsDetected:        len(finalRings),
		},
	}
}

// flattenPartitionScores collapses per-ring partition scores into one score
// per account. Rings are visited in detection order; the first ring to score
// an account wins.
func (a *Aggregator) flattenPartitionScores(ringList []rings.Ring, parts map[string]partition.Result) map[string]float64 {
	flat := make(map[string]float64)
	for _, r := range ringList {
		res, ok := parts[r.ID]
		if !ok {
			continue
		}
		for acc, score := range res.Scores {
			if _, seen := flat[acc]; !seen {
				flat[acc] = score
			}
		}
	}
	return flat
}

// reweightRings blends each ring's structural risk with the mean fused
// suspicion of its members. Rings whose members carry no fused score keep
// their structural risk.
func (a *Aggregator) reweightRings(ringList []rings.Ring, fused map[string]float64) []rings.Ring {
	out := make([]rings.Ring, len(ringList))
	for i, r := range ringList {
		out[i] = r

		sum, n := 0.0, 0
		for _, acc := range r.Members {
			if score, ok := fused[acc]; ok {
				sum += score
				n++
			}
		}
		if n > 0 {
			out[i].RiskScore = round2(clamp100(0.6*r.RiskScore + 0.4*sum/float64(n)))
		}
	}
	return out
}

// MergePartitions reconciles the ring-agnostic first pass with the second
// pass run after rings are known. An evaluated result supersedes a
// placeholder for the same ring id; account scores already computed are kept,
// never overwritten.
func MergePartitions(first, second map[string]partition.Result) map[string]partition.Result {
	merged := make(map[string]partition.Result, len(first)+len(second))
	for id, res := range first {
		merged[id] = res
	}

	for id, late := range second {
		early, exists := merged[id]
		if !exists {
			merged[id] = late
			continue
		}
		if early.MembersEvaluated == 0 && late.MembersEvaluated > 0 {
			merged[id] = withExtraScores(late, early.Scores)
			continue
		}
		merged[id] = withExtraScores(early, late.Scores)
	}
	return merged
}

// withExtraScores copies res, adding scores from extra for accounts res has
// not covered.
func withExtraScores(res partition.Result, extra map[string]float64) partition.Result {
	scores := make(map[string]float64, len(res.Scores)+len(extra))
	for acc, s := range res.Scores {
		scores[acc] = s
	}
	for acc, s := range extra {
		if _, ok := scores[acc]; !ok {
			scores[acc] = s
		}
	}
	res.Scores = scores
	return res
}

func patternLabels(patterns []rings.Pattern) []string {
	if len(patterns) == 0 {
		return []string{}
	}
	labels := make([]string, len(patterns))
	for i, p := range patterns {
		labels[i] = string(p)
	}
	return labels
}

func firstRing(ringList []rings.Ring, account string) string {
	for _, r := range ringList {
		for _, m := range r.Members {
			if m == account {
				return r.ID
			}
		}
	}
	return ""
}

func severity(score float64) string {
	switch {
	case score >= HighSeverity:
		return "high"
	case score >= SuspicionCutoff:
		return "medium"
	default:
		return "low"
	}
}

func clamp100(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
