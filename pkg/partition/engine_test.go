package partition

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dd0wney/mulewatch/pkg/parallel"
	"github.com/dd0wney/mulewatch/pkg/rings"
	"github.com/dd0wney/mulewatch/pkg/txgraph"
)

func fourCycleGraph(t *testing.T) *txgraph.Graph {
	t.Helper()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	b := txgraph.NewBuilder()
	b.Add("T1", "ACC_A", "ACC_B", 9500, base)
	b.Add("T2", "ACC_B", "ACC_C", 9400, base.Add(time.Hour))
	b.Add("T3", "ACC_C", "ACC_D", 9300, base.Add(2*time.Hour))
	b.Add("T4", "ACC_D", "ACC_A", 9200, base.Add(3*time.Hour))
	g, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return g
}

// TestGreedyPartition_FourCycle tests the classical baseline on a 4-cycle:
// the alternating coloring cuts all four edges.
func TestGreedyPartition_FourCycle(t *testing.T) {
	edges := [][2]int{{0, 1}, {1, 2}, {2, 3}, {0, 3}}

	bits, cut := greedyPartition(4, edges)
	if cut != 4 {
		t.Errorf("Expected cut 4, got %d (bits %s)", cut, bits)
	}
	if bits != "0101" {
		t.Errorf("Expected alternating coloring 0101, got %s", bits)
	}

	// Deterministic across calls
	bits2, cut2 := greedyPartition(4, edges)
	if bits2 != bits || cut2 != cut {
		t.Error("greedyPartition is not deterministic")
	}
}

func TestCutValue(t *testing.T) {
	edges := [][2]int{{0, 1}, {1, 2}, {2, 3}, {0, 3}}

	cases := []struct {
		bits string
		want int
	}{
		{"0000", 0},
		{"0101", 4},
		{"1010", 4},
		{"0001", 2},
	}
	for _, tc := range cases {
		if got := cutValue(tc.bits, edges); got != tc.want {
			t.Errorf("cutValue(%s) = %d, want %d", tc.bits, got, tc.want)
		}
	}
}

// TestEngine_FourCycle tests the full evaluation on the canonical 4-cycle
// ring: the sampler finds the max cut, so no advantage over the greedy
// baseline is claimed.
func TestEngine_FourCycle(t *testing.T) {
	g := fourCycleGraph(t)
	ring := &rings.Ring{
		ID:        "RING_001",
		Members:   []string{"ACC_A", "ACC_B", "ACC_C", "ACC_D"},
		Pattern:   rings.PatternCycle,
		RiskScore: 80,
	}

	eng := NewEngine(DefaultChain("", 0, 42), 0, nil)
	res := eng.EvaluateRing(context.Background(), ring, g)

	if res.Backend != "anneal" {
		t.Fatalf("Expected anneal backend, got %s (reason %q)", res.Backend, res.FallbackReason)
	}
	if res.MembersEvaluated != 4 {
		t.Errorf("Expected 4 members evaluated, got %d", res.MembersEvaluated)
	}
	if res.CutValue != 4 {
		t.Errorf("Expected best cut 4, got %d", res.CutValue)
	}
	if res.ClassicalCut != 4 {
		t.Errorf("Expected classical cut 4, got %d", res.ClassicalCut)
	}
	if res.AdvantagePct != 0 {
		t.Errorf("Expected 0%% advantage, got %v", res.AdvantagePct)
	}
	if res.BestBitstring != "0101" && res.BestBitstring != "1010" {
		t.Errorf("Expected alternating partition, got %s", res.BestBitstring)
	}
	if len(res.GroupA) != 2 || len(res.GroupB) != 2 {
		t.Errorf("Expected 2+2 split, got %d+%d", len(res.GroupA), len(res.GroupB))
	}
	for _, acc := range ring.Members {
		score, ok := res.Scores[acc]
		if !ok {
			t.Errorf("Missing score for %s", acc)
		}
		if score < 0 || score > 100 {
			t.Errorf("Score for %s out of range: %v", acc, score)
		}
	}
}

// TestEngine_ZeroEdgeFallback tests that a ring with no induced edges gets
// the deterministic baseline, not an error.
func TestEngine_ZeroEdgeFallback(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	b := txgraph.NewBuilder()
	b.Add("T1", "ACC_A", "ACC_X", 100, base)
	b.Add("T2", "ACC_B", "ACC_Y", 100, base)
	g, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	ring := &rings.Ring{ID: "RING_001", Members: []string{"ACC_A", "ACC_B"}, RiskScore: 60}
	eng := NewEngine(DefaultChain("", 0, 1), 0, nil)
	res := eng.EvaluateRing(context.Background(), ring, g)

	if res.MembersEvaluated != 0 {
		t.Errorf("Expected fallback (0 members evaluated), got %d", res.MembersEvaluated)
	}
	if res.Confidence != "low" {
		t.Errorf("Expected low confidence, got %s", res.Confidence)
	}
	if res.AdvantagePct != 0 {
		t.Errorf("Expected 0%% advantage, got %v", res.AdvantagePct)
	}
	for _, acc := range ring.Members {
		if res.Scores[acc] != 50.0 {
			t.Errorf("Expected baseline score 50 for %s, got %v", acc, res.Scores[acc])
		}
	}
}

func TestEngine_TinyRingFallback(t *testing.T) {
	g := fourCycleGraph(t)
	ring := &rings.Ring{ID: "RING_001", Members: []string{"ACC_A"}, RiskScore: 90}

	eng := NewEngine(DefaultChain("", 0, 1), 0, nil)
	res := eng.EvaluateRing(context.Background(), ring, g)

	if res.MembersEvaluated != 0 || res.Scores["ACC_A"] != 50.0 {
		t.Errorf("Expected baseline fallback for single-member ring, got %+v", res)
	}
}

type stubBackend struct {
	name   string
	max    int
	counts map[string]int
	err    error
	gotN   int
}

func (s *stubBackend) Name() string    { return s.name }
func (s *stubBackend) MaxMembers() int { return s.max }
func (s *stubBackend) Evaluate(_ context.Context, n int, _ [][2]int, _ BiasParams, _ int) (map[string]int, error) {
	s.gotN = n
	if s.err != nil {
		return nil, s.err
	}
	return s.counts, nil
}

type recordingObserver struct {
	failed    []string
	evaluated []string
}

func (o *recordingObserver) RingEvaluated(backend string, _ time.Duration) {
	o.evaluated = append(o.evaluated, backend)
}

func (o *recordingObserver) BackendFailed(backend string) {
	o.failed = append(o.failed, backend)
}

// TestEngine_ObserverCallbacks tests that a failing backend is reported once
// and the producing backend is reported with the finished ring, including the
// fallback path.
func TestEngine_ObserverCallbacks(t *testing.T) {
	g := fourCycleGraph(t)
	ring := &rings.Ring{
		ID:        "RING_001",
		Members:   []string{"ACC_A", "ACC_B", "ACC_C", "ACC_D"},
		RiskScore: 80,
	}

	broken := &stubBackend{name: "broken", max: 8, err: errors.New("connection refused")}
	eng := NewEngine([]ChainEntry{
		{Backend: broken, Shots: 64},
		{Backend: NewAnnealBackend(7), Shots: 2048},
	}, 0, nil)
	obs := &recordingObserver{}
	eng.SetObserver(obs)

	res := eng.EvaluateRing(context.Background(), ring, g)
	if res.Backend != "anneal" {
		t.Fatalf("Expected anneal result, got %s", res.Backend)
	}
	if len(obs.failed) != 1 || obs.failed[0] != "broken" {
		t.Errorf("failed = %v, want [broken]", obs.failed)
	}
	if len(obs.evaluated) != 1 || obs.evaluated[0] != "anneal" {
		t.Errorf("evaluated = %v, want [anneal]", obs.evaluated)
	}

	tiny := &rings.Ring{ID: "RING_002", Members: []string{"ACC_A"}, RiskScore: 50}
	eng.EvaluateRing(context.Background(), tiny, g)
	if len(obs.evaluated) != 2 || obs.evaluated[1] != "fallback" {
		t.Errorf("evaluated = %v, want fallback appended", obs.evaluated)
	}
	if len(obs.failed) != 1 {
		t.Errorf("fallback must not count as a backend failure, failed = %v", obs.failed)
	}
}

// TestEngine_ChainFallsThrough tests that a failing backend hands the ring to
// the next entry.
func TestEngine_ChainFallsThrough(t *testing.T) {
	g := fourCycleGraph(t)
	ring := &rings.Ring{
		ID:        "RING_001",
		Members:   []string{"ACC_A", "ACC_B", "ACC_C", "ACC_D"},
		RiskScore: 80,
	}

	broken := &stubBackend{name: "broken", max: 8, err: errors.New("connection refused")}
	chain := []ChainEntry{
		{Backend: broken, Shots: 64},
		{Backend: NewAnnealBackend(7), Shots: 2048},
	}
	res := NewEngine(chain, 0, nil).EvaluateRing(context.Background(), ring, g)

	if res.Backend != "anneal" {
		t.Errorf("Expected fallthrough to anneal, got %s", res.Backend)
	}
}

// TestEngine_CapsMembers tests that rings larger than a backend's limit are
// truncated to its first MaxMembers members.
func TestEngine_CapsMembers(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	b := txgraph.NewBuilder()
	b.Add("T1", "ACC_A", "ACC_B", 100, base)
	b.Add("T2", "ACC_B", "ACC_C", 100, base)
	g, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	stub := &stubBackend{name: "stub", max: 3, counts: map[string]int{"011": 10}}
	ring := &rings.Ring{
		ID:        "RING_001",
		Members:   []string{"ACC_A", "ACC_B", "ACC_C", "ACC_D", "ACC_E"},
		RiskScore: 70,
	}

	res := NewEngine([]ChainEntry{{Backend: stub, Shots: 10}}, 0, nil).EvaluateRing(context.Background(), ring, g)

	if stub.gotN != 3 {
		t.Errorf("Expected backend to see 3 members, saw %d", stub.gotN)
	}
	if res.MembersEvaluated != 3 {
		t.Errorf("Expected 3 members evaluated, got %d", res.MembersEvaluated)
	}
	if _, scored := res.Scores["ACC_D"]; scored {
		t.Error("Capped-out member should not receive a partition score")
	}
}

// TestEngine_DominantTieBreak tests that group B is treated as the
// suspicious core when both groups have equal size.
func TestEngine_DominantTieBreak(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	b := txgraph.NewBuilder()
	b.Add("T1", "ACC_A", "ACC_B", 100, base)
	g, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	stub := &stubBackend{name: "stub", max: 8, counts: map[string]int{"01": 100}}
	ring := &rings.Ring{ID: "RING_001", Members: []string{"ACC_A", "ACC_B"}, RiskScore: 50}

	res := NewEngine([]ChainEntry{{Backend: stub, Shots: 100}}, 0, nil).EvaluateRing(context.Background(), ring, g)

	// Whole probability mass sits on the best bitstring.
	if got := res.Scores["ACC_B"]; got != 55.0 { // 50*0.9 + 1.0*10
		t.Errorf("Expected dominant score 55 for ACC_B, got %v", got)
	}
	if got := res.Scores["ACC_A"]; got != 30.0 { // 50*0.6
		t.Errorf("Expected minority score 30 for ACC_A, got %v", got)
	}
	if res.NoiseLevel != 0 {
		t.Errorf("Single-outcome distribution should have zero noise, got %v", res.NoiseLevel)
	}
	if res.Confidence != "high" {
		t.Errorf("Expected high confidence, got %s", res.Confidence)
	}
}

// TestEngine_EvaluateAll tests pooled fan-out over several rings.
func TestEngine_EvaluateAll(t *testing.T) {
	g := fourCycleGraph(t)
	ringList := []rings.Ring{
		{ID: "RING_001", Members: []string{"ACC_A", "ACC_B", "ACC_C", "ACC_D"}, RiskScore: 80},
		{ID: "RING_002", Members: []string{"ACC_A", "ACC_B"}, RiskScore: 40},
		{ID: "RING_003", Members: []string{"ACC_Z"}, RiskScore: 20},
	}

	pool := parallel.NewPool(4)
	defer pool.Close()

	eng := NewEngine(DefaultChain("", 0, 42), 0, nil)
	results := eng.EvaluateAll(context.Background(), ringList, g, pool)

	if len(results) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(results))
	}
	if results["RING_001"].MembersEvaluated != 4 {
		t.Errorf("RING_001 should be fully evaluated, got %+v", results["RING_001"])
	}
	if results["RING_003"].MembersEvaluated != 0 {
		t.Errorf("RING_003 should fall back, got %+v", results["RING_003"])
	}
}

// TestAnnealBackend_Reproducible tests that a fixed seed pins the sample
// stream.
func TestAnnealBackend_Reproducible(t *testing.T) {
	edges := [][2]int{{0, 1}, {1, 2}, {2, 3}, {0, 3}}

	first, err := NewAnnealBackend(99).Evaluate(context.Background(), 4, edges, DefaultBias(), 512)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	second, err := NewAnnealBackend(99).Evaluate(context.Background(), 4, edges, DefaultBias(), 512)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if len(first) != len(second) {
		t.Fatalf("Distributions differ in support: %d vs %d", len(first), len(second))
	}
	total := 0
	for bits, cnt := range first {
		if second[bits] != cnt {
			t.Errorf("Count mismatch for %s: %d vs %d", bits, cnt, second[bits])
		}
		total += cnt
	}
	if total != 512 {
		t.Errorf("Expected 512 total samples, got %d", total)
	}
}

func TestAnnealBackend_Limits(t *testing.T) {
	b := NewAnnealBackend(1)

	if _, err := b.Evaluate(context.Background(), 9, [][2]int{{0, 1}}, DefaultBias(), 10); !errors.Is(err, ErrBackendFailed) {
		t.Errorf("Expected ErrBackendFailed for 9 members, got %v", err)
	}
	if _, err := b.Evaluate(context.Background(), 3, nil, DefaultBias(), 10); !errors.Is(err, ErrBackendFailed) {
		t.Errorf("Expected ErrBackendFailed for empty cost graph, got %v", err)
	}
}
