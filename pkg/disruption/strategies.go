// Package disruption plans how to take detected rings apart: which accounts
// each ring structurally depends on, how much of the ring an intervention
// removes, and how resilient the network as a whole is. The What-If simulator
// replays a counterfactual removal against the same graph.
package disruption

import (
	"math"
	"sort"

	"github.com/dd0wney/mulewatch/pkg/logging"
	"github.com/dd0wney/mulewatch/pkg/rings"
	"github.com/dd0wney/mulewatch/pkg/txgraph"
)

// Pair-search breadth and per-ring betweenness shortlist size.
const (
	pairSearchK       = 6
	ringTopBetween    = 3
	networkTopBetween = 10
)

// PairRemoval is the best two-node intervention found for a ring.
type PairRemoval struct {
	Nodes                 [2]string `json:"nodes"`
	CombinedDisruptionPct float64   `json:"combined_disruption_pct"`
}

// Strategy is the disruption plan for one ring.
type Strategy struct {
	RingID             string       `json:"ring_id"`
	MemberCount        int          `json:"member_count"`
	CriticalNodes      []string     `json:"critical_nodes"`
	BestSingleNode     string       `json:"best_single_node,omitempty"`
	MaxDisruptionPct   float64      `json:"max_disruption_pct"`
	OptimalPairRemoval *PairRemoval `json:"optimal_pair_removal,omitempty"`
}

// GlobalSummary is the network-wide roll-up across all ring strategies.
type GlobalSummary struct {
	UniqueCriticalNodes    int     `json:"unique_critical_nodes"`
	AvgDisruptionPotential float64 `json:"avg_disruption_potential"`
	NetworkResilienceScore float64 `json:"network_resilience_score"`
}

// NetworkStats exposes the raw graph-criticality metrics behind the summary.
type NetworkStats struct {
	ArticulationPointCount int          `json:"articulation_point_count"`
	TopBetweenness         []RankedNode `json:"top_betweenness"`
}

// Report is the full disruption output for one analysis run.
type Report struct {
	Strategies    []Strategy    `json:"strategies"`
	GlobalSummary GlobalSummary `json:"global_summary"`
	NetworkStats  NetworkStats  `json:"network_stats"`
}

// Engine computes per-ring disruption strategies against a shared read-only
// graph. Graph-wide criticality metrics are computed once per Run.
type Engine struct {
	graph  *txgraph.Graph
	logger logging.Logger
}

func NewEngine(g *txgraph.Graph, logger logging.Logger) *Engine {
	if logger == nil {
		logger = logging.With(logging.Component("disruption"))
	}
	return &Engine{graph: g, logger: logger}
}

// Run builds a strategy per ring plus the global summary.
func (e *Engine) Run(ringList []rings.Ring) *Report {
	timer := logging.StartTimer(e.logger, "disruption analysis")

	aps := ArticulationPoints(e.graph)
	globalBetweenness := Betweenness(e.graph, nil)

	strategies := make([]Strategy, 0, len(ringList))
	uniqueCritical := make(map[string]bool)
	disruptionSum := 0.0

	for i := range ringList {
		s := e.ringStrategy(&ringList[i], aps)
		for _, c := range s.CriticalNodes {
			uniqueCritical[c] = true
		}
		disruptionSum += s.MaxDisruptionPct
		strategies = append(strategies, s)
	}

	avgDisruption := 0.0
	if len(strategies) > 0 {
		avgDisruption = round2(disruptionSum / float64(len(strategies)))
	}

	resilience := 100.0
	if n := e.graph.NodeCount(); n > 0 {
		resilience = clamp100(100 * (1 - float64(len(aps))/float64(n)))
	}

	timer.End()

	return &Report{
		Strategies: strategies,
		GlobalSummary: GlobalSummary{
			UniqueCriticalNodes:    len(uniqueCritical),
			AvgDisruptionPotential: avgDisruption,
			NetworkResilienceScore: round2(resilience),
		},
		NetworkStats: NetworkStats{
			ArticulationPointCount: len(aps),
			TopBetweenness:         topNodes(globalBetweenness, networkTopBetween),
		},
	}
}

// ringStrategy finds the ring's critical nodes and its best single and pair
// removals over the ring-induced cost graph.
func (e *Engine) ringStrategy(ring *rings.Ring, aps map[string]bool) Strategy {
	members := ring.Members
	edges := e.graph.InducedEdges(members)
	totalEdges := len(edges)

	// Critical nodes: graph articulation points inside the ring, plus the
	// ring subgraph's top betweenness members.
	critical := make(map[string]bool)
	for _, m := range members {
		if aps[m] {
			critical[m] = true
		}
	}
	for _, rn := range topNodes(Betweenness(e.graph, members), ringTopBetween) {
		if rn.Score > 0 {
			critical[rn.AccountID] = true
		}
	}

	criticalNodes := make([]string, 0, len(critical))
	for _, m := range members {
		if critical[m] {
			criticalNodes = append(criticalNodes, m)
		}
	}

	s := Strategy{
		RingID:        ring.ID,
		MemberCount:   len(members),
		CriticalNodes: criticalNodes,
	}
	if totalEdges == 0 {
		return s
	}

	incident := incidentCounts(members, edges)

	// Best single removal among the critical nodes.
	for _, m := range criticalNodes {
		pct := round2(float64(incident[m]) / float64(totalEdges) * 100)
		if pct > s.MaxDisruptionPct || (pct == s.MaxDisruptionPct && s.BestSingleNode == "") {
			s.MaxDisruptionPct = pct
			s.BestSingleNode = m
		}
	}
	if s.BestSingleNode != "" {
		e.logger.Debug("best single removal",
			logging.RingID(ring.ID),
			logging.AccountID(s.BestSingleNode),
			logging.Score(s.MaxDisruptionPct))
	}

	// Pair search over the individually highest-impact members, bounded to
	// keep the search O(K^2) on large rings.
	candidates := make([]string, len(members))
	copy(candidates, members)
	sort.SliceStable(candidates, func(i, j int) bool {
		return incident[candidates[i]] > incident[candidates[j]]
	})
	if len(candidates) > pairSearchK {
		candidates = candidates[:pairSearchK]
	}

	index := make(map[string]int, len(members))
	for i, m := range members {
		index[m] = i
	}

	var best *PairRemoval
	for i := 0; i < len(candidates); i++ {
		for j := i + 1; j < len(candidates); j++ {
			removed := 0
			for _, e := range edges {
				a, b := index[candidates[i]], index[candidates[j]]
				if e[0] == a || e[1] == a || e[0] == b || e[1] == b {
					removed++
				}
			}
			pct := round2(float64(removed) / float64(totalEdges) * 100)
			if best == nil || pct > best.CombinedDisruptionPct {
				best = &PairRemoval{
					Nodes:                 [2]string{candidates[i], candidates[j]},
					CombinedDisruptionPct: pct,
				}
			}
		}
	}
	s.OptimalPairRemoval = best

	return s
}

// incidentCounts counts, per member, the induced edges touching it.
func incidentCounts(members []string, edges [][2]int) map[string]int {
	counts := make(map[string]int, len(members))
	for _, e := range edges {
		counts[members[e[0]]]++
		counts[members[e[1]]]++
	}
	return counts
}

func clamp100(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
