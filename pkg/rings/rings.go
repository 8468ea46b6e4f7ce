package rings

import (
	"fmt"
	"math"
	"time"

	"github.com/dd0wney/mulewatch/pkg/logging"
	"github.com/dd0wney/mulewatch/pkg/txgraph"
)

// Pattern labels a recognized muling structure. Values are part of the
// report compatibility surface.
type Pattern string

const (
	PatternCycle       Pattern = "cycle"
	PatternFanIn       Pattern = "fan_in"
	PatternFanOut      Pattern = "fan_out"
	PatternLayering    Pattern = "layering_chain"
	PatternStructuring Pattern = "structuring"
)

// precedence orders labels for merge tie-breaks: cycle > fan > layering > structuring.
func (p Pattern) precedence() int {
	switch p {
	case PatternCycle:
		return 4
	case PatternFanIn, PatternFanOut:
		return 3
	case PatternLayering:
		return 2
	case PatternStructuring:
		return 1
	default:
		return 0
	}
}

// Ring is a detected fraud ring. Field names follow the report contract.
type Ring struct {
	ID        string   `json:"ring_id"`
	Members   []string `json:"member_accounts"`
	Pattern   Pattern  `json:"pattern_type"`
	RiskScore float64  `json:"risk_score"`
}

// Config holds the detector thresholds. Defaults are pinned under test;
// change them only together with the fixtures.
type Config struct {
	MaxCycleLength int     `yaml:"max_cycle_length"`
	MinCycleAmount float64 `yaml:"min_cycle_amount"`

	FanPercentile   float64 `yaml:"fan_percentile"`
	MinFanDegree    int     `yaml:"min_fan_degree"`
	MaxFanNeighbors int     `yaml:"max_fan_neighbors"`

	MinChainHops      int           `yaml:"min_chain_hops"`
	LayeringMaxGap    time.Duration `yaml:"layering_max_gap"`
	LayeringTolerance float64       `yaml:"layering_tolerance"`

	StructuringFloor    float64       `yaml:"structuring_floor"`
	StructuringCeiling  float64       `yaml:"structuring_ceiling"`
	StructuringMinCount int           `yaml:"structuring_min_count"`
	StructuringWindow   time.Duration `yaml:"structuring_window"`

	MergeOverlap float64 `yaml:"merge_overlap"`
}

// DefaultConfig returns the pinned detector thresholds.
func DefaultConfig() Config {
	return Config{
		MaxCycleLength:      6,
		MinCycleAmount:      5_000,
		FanPercentile:       0.90,
		MinFanDegree:        5,
		MaxFanNeighbors:     8,
		MinChainHops:        3,
		LayeringMaxGap:      72 * time.Hour,
		LayeringTolerance:   0.10,
		StructuringFloor:    9_000,
		StructuringCeiling:  10_000,
		StructuringMinCount: 3,
		StructuringWindow:   72 * time.Hour,
		MergeOverlap:        0.5,
	}
}

// Result is the detector output: labeled rings in discovery order plus the
// preliminary per-account pattern sets and graph-signal scores.
type Result struct {
	Rings           []Ring
	AccountPatterns map[string][]Pattern
	AccountScores   map[string]float64
}

// candidate is a ring before merge and id assignment.
type candidate struct {
	members []string
	pattern Pattern
	risk    float64
}

// Detector mines the transaction graph for ring structures.
type Detector struct {
	graph  *txgraph.Graph
	cfg    Config
	logger logging.Logger
}

// NewDetector creates a detector over the shared read-only graph.
func NewDetector(graph *txgraph.Graph, cfg Config, logger logging.Logger) *Detector {
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	return &Detector{graph: graph, cfg: cfg, logger: logger.With(logging.Component("rings"))}
}

// Run mines all four pattern families, merges overlapping candidates and
// assigns ring ids in discovery order.
func (d *Detector) Run() Result {
	timer := logging.StartTimer(d.logger, "ring detection complete")

	candidates := d.detectCycles()
	candidates = append(candidates, d.detectFans()...)
	candidates = append(candidates, d.detectLayering()...)
	candidates = append(candidates, d.detectStructuring()...)

	merged := d.merge(candidates)

	result := Result{
		Rings:           make([]Ring, 0, len(merged)),
		AccountPatterns: make(map[string][]Pattern),
		AccountScores:   make(map[string]float64),
	}

	ringsPerAccount := make(map[string]int)
	for i, c := range merged {
		ring := Ring{
			ID:        fmt.Sprintf("RING_%03d", i+1),
			Members:   c.members,
			Pattern:   c.pattern,
			RiskScore: round2(c.risk),
		}
		result.Rings = append(result.Rings, ring)
		d.logger.Debug("ring assembled",
			logging.RingID(ring.ID),
			logging.Pattern(string(ring.Pattern)),
			logging.Count(len(ring.Members)))

		for _, m := range c.members {
			if !containsPattern(result.AccountPatterns[m], c.pattern) {
				result.AccountPatterns[m] = append(result.AccountPatterns[m], c.pattern)
			}
			ringsPerAccount[m]++
			if c.risk > result.AccountScores[m] {
				result.AccountScores[m] = c.risk
			}
		}
	}

	// Membership in several rings raises the graph signal.
	for acc, n := range ringsPerAccount {
		result.AccountScores[acc] = round2(clamp100(result.AccountScores[acc] + 5*float64(n-1)))
	}

	timer.End()
	d.logger.Info("rings detected", logging.Count(len(result.Rings)))
	return result
}

// riskScore combines normalized volume, structural concentration and time
// compression into a [0,100] score.
func riskScore(volume, concentration, compression float64) float64 {
	v := clamp01(volume)
	c := clamp01(concentration)
	t := clamp01(compression)
	return 100 * (0.5*v + 0.3*c + 0.2*t)
}

// timeCompression maps an account's average inter-transaction gap onto [0,1],
// where 1 means near-instant onward movement.
func (d *Detector) timeCompression(members []string) float64 {
	if len(members) == 0 {
		return 0
	}
	var sum float64
	for _, m := range members {
		st := d.graph.Stats(m)
		if st == nil || math.IsInf(st.AvgTimeGap, 1) {
			continue
		}
		hours := st.AvgTimeGap / 3600
		sum += 1 - math.Min(hours/72, 1)
	}
	return sum / float64(len(members))
}

func containsPattern(ps []Pattern, p Pattern) bool {
	for _, q := range ps {
		if q == p {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func clamp100(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
