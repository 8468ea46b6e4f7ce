package disruption

import (
	"errors"

	"github.com/dd0wney/mulewatch/pkg/fusion"
	"github.com/dd0wney/mulewatch/pkg/logging"
	"github.com/dd0wney/mulewatch/pkg/rings"
	"github.com/dd0wney/mulewatch/pkg/txgraph"
)

// ErrInvalidRemoval is returned for an empty removal set. It is the only
// What-If failure surfaced to the caller; unknown account ids are ignored.
var ErrInvalidRemoval = errors.New("removal set must contain at least one account id")

// Ring status labels after a simulated removal.
const (
	StatusDestroyed = "destroyed"
	StatusWeakened  = "weakened"
	StatusIntact    = "intact"
)

// RingImpact is the per-ring outcome of a simulated removal.
type RingImpact struct {
	RingID        string  `json:"ring_id"`
	Status        string  `json:"status"`
	DisruptionPct float64 `json:"disruption_pct"`
}

// FlowImpact measures how much transferred volume touched a removed account.
type FlowImpact struct {
	DisruptedFlow float64 `json:"disrupted_flow"`
	DisruptionPct float64 `json:"disruption_pct"`
}

// AccountImpacts measures removed suspicion mass against the whole flagged
// population.
type AccountImpacts struct {
	RiskReductionPct float64 `json:"risk_reduction_pct"`
}

// Effectiveness blends ring destruction and edge/flow disruption into one
// graded score.
type Effectiveness struct {
	Overall             float64 `json:"overall"`
	Grade               string  `json:"grade"`
	EdgeDisruption      float64 `json:"edge_disruption"`
	RingDestructionRate float64 `json:"ring_destruction_rate"`
}

// WhatIfResult is the full counterfactual outcome.
type WhatIfResult struct {
	NodesRemoved   []string       `json:"nodes_removed"`
	RingImpacts    []RingImpact   `json:"ring_impacts"`
	FlowImpact     FlowImpact     `json:"flow_impact"`
	AccountImpacts AccountImpacts `json:"account_impacts"`
	Effectiveness  Effectiveness  `json:"effectiveness_score"`
}

// Simulator replays counterfactual removals against the stored analysis. It
// is stateless and never mutates the graph, so concurrent simulations against
// the same result are safe.
type Simulator struct {
	graph  *txgraph.Graph
	logger logging.Logger
}

func NewSimulator(g *txgraph.Graph, logger logging.Logger) *Simulator {
	if logger == nil {
		logger = logging.With(logging.Component("whatif"))
	}
	return &Simulator{graph: g, logger: logger}
}

// Simulate removes the given accounts on paper and reports what happens to
// each ring, the money flow, and the flagged population.
func (s *Simulator) Simulate(removal []string, ringList []rings.Ring, accounts []fusion.SuspiciousAccount) (*WhatIfResult, error) {
	if len(removal) == 0 {
		return nil, ErrInvalidRemoval
	}

	removed := make(map[string]bool)
	applied := make([]string, 0, len(removal))
	for _, id := range removal {
		if !s.graph.HasAccount(id) || removed[id] {
			continue
		}
		removed[id] = true
		applied = append(applied, id)
	}

	impacts := make([]RingImpact, 0, len(ringList))
	destroyed := 0
	edgesLost, edgesTotal := 0, 0

	for i := range ringList {
		impact, lost, total := s.ringImpact(&ringList[i], removed)
		if impact.Status == StatusDestroyed {
			destroyed++
		}
		edgesLost += lost
		edgesTotal += total
		impacts = append(impacts, impact)
	}

	flow := s.flowImpact(removed)
	risk := riskReduction(accounts, removed)

	destructionRate := 0.0
	if len(ringList) > 0 {
		destructionRate = round2(float64(destroyed) / float64(len(ringList)) * 100)
	}
	edgeDisruption := round2(float64(edgesLost) / float64(maxInt(edgesTotal, 1)) * 100)

	overall := round2(clamp100(0.5*destructionRate + 0.3*edgeDisruption + 0.2*flow.DisruptionPct))

	s.logger.Info("what-if simulation complete",
		logging.Count(len(applied)),
		logging.Score(overall))

	return &WhatIfResult{
		NodesRemoved:   applied,
		RingImpacts:    impacts,
		FlowImpact:     flow,
		AccountImpacts: AccountImpacts{RiskReductionPct: risk},
		Effectiveness: Effectiveness{
			Overall:             overall,
			Grade:               grade(overall),
			EdgeDisruption:      edgeDisruption,
			RingDestructionRate: destructionRate,
		},
	}, nil
}

// ringImpact classifies one ring after removal: destroyed when fewer than 2
// members or no internal edges remain, weakened at >=50% edge loss.
func (s *Simulator) ringImpact(ring *rings.Ring, removed map[string]bool) (RingImpact, int, int) {
	total := len(s.graph.InducedEdges(ring.Members))

	remaining := make([]string, 0, len(ring.Members))
	hit := false
	for _, m := range ring.Members {
		if removed[m] {
			hit = true
			continue
		}
		remaining = append(remaining, m)
	}

	impact := RingImpact{RingID: ring.ID, Status: StatusIntact}
	if !hit {
		return impact, 0, total
	}

	remainingEdges := len(s.graph.InducedEdges(remaining))
	lost := total - remainingEdges
	impact.DisruptionPct = round2(float64(lost) / float64(maxInt(total, 1)) * 100)

	switch {
	case len(remaining) < 2 || remainingEdges == 0:
		impact.Status = StatusDestroyed
	case float64(lost) >= 0.5*float64(total):
		impact.Status = StatusWeakened
	}
	return impact, lost, total
}

// flowImpact sums the volume on edges touching any removed account.
func (s *Simulator) flowImpact(removed map[string]bool) FlowImpact {
	disrupted := 0.0
	s.graph.EachEdge(func(t *txgraph.Transfer) {
		if removed[t.From] || removed[t.To] {
			disrupted += t.TotalAmount
		}
	})

	pct := 0.0
	if total := s.graph.TotalAmount(); total > 0 {
		pct = round2(disrupted / total * 100)
	}
	return FlowImpact{DisruptedFlow: round2(disrupted), DisruptionPct: pct}
}

// riskReduction is the removed share of the flagged population's suspicion
// mass.
func riskReduction(accounts []fusion.SuspiciousAccount, removed map[string]bool) float64 {
	total, removedMass := 0.0, 0.0
	for _, sa := range accounts {
		total += sa.SuspicionScore
		if removed[sa.AccountID] {
			removedMass += sa.SuspicionScore
		}
	}
	if total == 0 {
		return 0
	}
	return round2(removedMass / total * 100)
}

// grade maps the overall effectiveness score to a letter band.
func grade(overall float64) string {
	switch {
	case overall >= 90:
		return "A"
	case overall >= 75:
		return "B"
	case overall >= 50:
		return "C"
	case overall >= 25:
		return "D"
	default:
		return "F"
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
