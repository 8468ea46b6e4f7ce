package disruption

import (
	"reflect"
	"testing"
	"time"

	"github.com/dd0wney/mulewatch/pkg/fusion"
	"github.com/dd0wney/mulewatch/pkg/rings"
	"github.com/dd0wney/mulewatch/pkg/txgraph"
)

func buildGraph(t *testing.T, edges [][2]string) *txgraph.Graph {
	t.Helper()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	b := txgraph.NewBuilder()
	for i, e := range edges {
		b.Add("T"+string(rune('A'+i)), e[0], e[1], 1000, base.Add(time.Duration(i)*time.Hour))
	}
	g, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return g
}

func fourCycle(t *testing.T) *txgraph.Graph {
	return buildGraph(t, [][2]string{
		{"ACC_A", "ACC_B"}, {"ACC_B", "ACC_C"}, {"ACC_C", "ACC_D"}, {"ACC_D", "ACC_A"},
	})
}

// TestArticulationPoints_Chain tests that every interior node of a chain is
// an articulation point.
func TestArticulationPoints_Chain(t *testing.T) {
	g := buildGraph(t, [][2]string{{"ACC_A", "ACC_B"}, {"ACC_B", "ACC_C"}, {"ACC_C", "ACC_D"}})

	aps := ArticulationPoints(g)
	if !aps["ACC_B"] || !aps["ACC_C"] {
		t.Errorf("Expected ACC_B and ACC_C as articulation points, got %v", aps)
	}
	if aps["ACC_A"] || aps["ACC_D"] {
		t.Errorf("Chain endpoints must not be articulation points, got %v", aps)
	}
}

// TestArticulationPoints_Cycle tests that a cycle has none.
func TestArticulationPoints_Cycle(t *testing.T) {
	if aps := ArticulationPoints(fourCycle(t)); len(aps) != 0 {
		t.Errorf("A cycle has no articulation points, got %v", aps)
	}
}

// TestArticulationPoints_Bridge tests the hub joining two components.
func TestArticulationPoints_Bridge(t *testing.T) {
	g := buildGraph(t, [][2]string{
		{"ACC_A", "ACC_B"}, {"ACC_B", "ACC_A"},
		{"ACC_B", "ACC_HUB"},
		{"ACC_HUB", "ACC_X"}, {"ACC_X", "ACC_Y"}, {"ACC_Y", "ACC_HUB"},
	})

	aps := ArticulationPoints(g)
	if !aps["ACC_HUB"] || !aps["ACC_B"] {
		t.Errorf("Expected ACC_HUB and ACC_B as articulation points, got %v", aps)
	}
	if len(aps) != 2 {
		t.Errorf("Expected exactly 2 articulation points, got %v", aps)
	}
}

// TestBetweenness_Chain tests that the middle of a directed chain carries the
// highest betweenness.
func TestBetweenness_Chain(t *testing.T) {
	g := buildGraph(t, [][2]string{{"ACC_A", "ACC_B"}, {"ACC_B", "ACC_C"}})

	bc := Betweenness(g, nil)
	if bc["ACC_B"] <= bc["ACC_A"] || bc["ACC_B"] <= bc["ACC_C"] {
		t.Errorf("Middle node should dominate betweenness: %v", bc)
	}
}

// TestBetweenness_Subgraph tests that member scoping ignores outside routes.
func TestBetweenness_Subgraph(t *testing.T) {
	g := buildGraph(t, [][2]string{
		{"ACC_A", "ACC_B"}, {"ACC_B", "ACC_C"},
		{"ACC_A", "ACC_OUT"}, {"ACC_OUT", "ACC_C"},
	})

	bc := Betweenness(g, []string{"ACC_A", "ACC_B", "ACC_C"})
	if _, ok := bc["ACC_OUT"]; ok {
		t.Error("Out-of-scope account must not be scored")
	}
	if bc["ACC_B"] == 0 {
		t.Error("In-scope middle node should carry betweenness once outside routes are excluded")
	}
}

// TestEngine_FourCycleStrategy tests the single and pair removal numbers on
// the canonical 4-cycle ring.
func TestEngine_FourCycleStrategy(t *testing.T) {
	g := fourCycle(t)
	ringList := []rings.Ring{{
		ID:        "RING_001",
		Members:   []string{"ACC_A", "ACC_B", "ACC_C", "ACC_D"},
		Pattern:   rings.PatternCycle,
		RiskScore: 80,
	}}

	report := NewEngine(g, nil).Run(ringList)
	if len(report.Strategies) != 1 {
		t.Fatalf("Expected 1 strategy, got %d", len(report.Strategies))
	}
	s := report.Strategies[0]

	// Every node touches 2 of the 4 induced edges.
	if s.MaxDisruptionPct != 50 {
		t.Errorf("Expected 50%% single-node disruption, got %v", s.MaxDisruptionPct)
	}
	if s.OptimalPairRemoval == nil {
		t.Fatal("Expected an optimal pair")
	}
	// Removing two opposite nodes strips all four edges.
	if s.OptimalPairRemoval.CombinedDisruptionPct != 100 {
		t.Errorf("Expected 100%% pair disruption, got %v", s.OptimalPairRemoval.CombinedDisruptionPct)
	}

	// No articulation points in a cycle, so resilience is perfect.
	if report.NetworkStats.ArticulationPointCount != 0 {
		t.Errorf("Expected 0 articulation points, got %d", report.NetworkStats.ArticulationPointCount)
	}
	if report.GlobalSummary.NetworkResilienceScore != 100 {
		t.Errorf("Expected resilience 100, got %v", report.GlobalSummary.NetworkResilienceScore)
	}
	if report.GlobalSummary.AvgDisruptionPotential != 50 {
		t.Errorf("Expected avg disruption 50, got %v", report.GlobalSummary.AvgDisruptionPotential)
	}
}

// TestEngine_EdgelessRing tests that a ring with no induced edges yields an
// empty but well-formed strategy.
func TestEngine_EdgelessRing(t *testing.T) {
	g := buildGraph(t, [][2]string{{"ACC_A", "ACC_X"}, {"ACC_B", "ACC_Y"}})
	ringList := []rings.Ring{{ID: "RING_001", Members: []string{"ACC_A", "ACC_B"}, RiskScore: 40}}

	report := NewEngine(g, nil).Run(ringList)
	s := report.Strategies[0]
	if s.MaxDisruptionPct != 0 || s.OptimalPairRemoval != nil {
		t.Errorf("Edgeless ring should have no removal plan: %+v", s)
	}
}

// TestSimulator_DestroyDominantPair tests the documented counterfactual:
// removing B and D from the 4-cycle ring destroys it at 100% disruption.
func TestSimulator_DestroyDominantPair(t *testing.T) {
	g := fourCycle(t)
	ringList := []rings.Ring{{
		ID:      "RING_001",
		Members: []string{"ACC_A", "ACC_B", "ACC_C", "ACC_D"},
		Pattern: rings.PatternCycle, RiskScore: 80,
	}}
	accounts := []fusion.SuspiciousAccount{
		{AccountID: "ACC_A", SuspicionScore: 70},
		{AccountID: "ACC_B", SuspicionScore: 80},
		{AccountID: "ACC_C", SuspicionScore: 70},
		{AccountID: "ACC_D", SuspicionScore: 80},
	}

	res, err := NewSimulator(g, nil).Simulate([]string{"ACC_B", "ACC_D"}, ringList, accounts)
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}

	if len(res.RingImpacts) != 1 {
		t.Fatalf("Expected 1 ring impact, got %d", len(res.RingImpacts))
	}
	impact := res.RingImpacts[0]
	// A and C survive but share no edge on this topology.
	if impact.Status != StatusDestroyed {
		t.Errorf("Expected destroyed, got %s", impact.Status)
	}
	if impact.DisruptionPct != 100 {
		t.Errorf("Expected 100%% disruption, got %v", impact.DisruptionPct)
	}

	// Every edge of the cycle touches B or D.
	if res.FlowImpact.DisruptionPct != 100 {
		t.Errorf("Expected 100%% flow disruption, got %v", res.FlowImpact.DisruptionPct)
	}
	// 160 of 300 suspicion mass removed.
	if res.AccountImpacts.RiskReductionPct != 53.33 {
		t.Errorf("Expected 53.33%% risk reduction, got %v", res.AccountImpacts.RiskReductionPct)
	}
	if res.Effectiveness.Overall != 100 || res.Effectiveness.Grade != "A" {
		t.Errorf("Expected grade A at 100, got %v/%s", res.Effectiveness.Overall, res.Effectiveness.Grade)
	}
}

// TestSimulator_WeakenedAndIntact tests the intermediate status bands.
func TestSimulator_WeakenedAndIntact(t *testing.T) {
	// Ring of 5 with enough redundancy to survive one removal.
	g := buildGraph(t, [][2]string{
		{"ACC_A", "ACC_B"}, {"ACC_B", "ACC_C"}, {"ACC_C", "ACC_D"},
		{"ACC_D", "ACC_E"}, {"ACC_E", "ACC_A"}, {"ACC_A", "ACC_C"},
	})
	ringList := []rings.Ring{
		{ID: "RING_001", Members: []string{"ACC_A", "ACC_B", "ACC_C", "ACC_D", "ACC_E"}, RiskScore: 70},
		{ID: "RING_002", Members: []string{"ACC_D", "ACC_E"}, RiskScore: 40},
	}

	// ACC_A touches 3 of 6 induced edges: exactly the weakened band.
	res, err := NewSimulator(g, nil).Simulate([]string{"ACC_A"}, ringList, nil)
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}

	if res.RingImpacts[0].Status != StatusWeakened {
		t.Errorf("Expected RING_001 weakened, got %s", res.RingImpacts[0].Status)
	}
	if res.RingImpacts[0].DisruptionPct != 50 {
		t.Errorf("Expected 50%% disruption, got %v", res.RingImpacts[0].DisruptionPct)
	}
	if res.RingImpacts[1].Status != StatusIntact {
		t.Errorf("Untouched ring should stay intact, got %s", res.RingImpacts[1].Status)
	}
}

// TestSimulator_InvalidAndUnknownRemovals tests input validation: empty set
// rejected, unknown ids ignored.
func TestSimulator_InvalidAndUnknownRemovals(t *testing.T) {
	g := fourCycle(t)
	sim := NewSimulator(g, nil)

	if _, err := sim.Simulate(nil, nil, nil); err != ErrInvalidRemoval {
		t.Errorf("Expected ErrInvalidRemoval, got %v", err)
	}

	res, err := sim.Simulate([]string{"ACC_GHOST", "ACC_A"}, nil, nil)
	if err != nil {
		t.Fatalf("Unknown ids must be ignored, got error: %v", err)
	}
	if !reflect.DeepEqual(res.NodesRemoved, []string{"ACC_A"}) {
		t.Errorf("Expected only ACC_A applied, got %v", res.NodesRemoved)
	}
}

// TestSimulator_Idempotent tests that repeated simulations of the same
// removal produce identical results and leave the graph untouched.
func TestSimulator_Idempotent(t *testing.T) {
	g := fourCycle(t)
	ringList := []rings.Ring{{
		ID:      "RING_001",
		Members: []string{"ACC_A", "ACC_B", "ACC_C", "ACC_D"},
		Pattern: rings.PatternCycle, RiskScore: 80,
	}}
	sim := NewSimulator(g, nil)

	first, err := sim.Simulate([]string{"ACC_B"}, ringList, nil)
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}
	second, err := sim.Simulate([]string{"ACC_B"}, ringList, nil)
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Error("Identical simulations should produce identical results")
	}
	if g.EdgeCount() != 4 || g.NodeCount() != 4 {
		t.Error("Simulation must not mutate the stored graph")
	}
}
