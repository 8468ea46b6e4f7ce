package partition

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/dd0wney/mulewatch/pkg/logging"
	"github.com/dd0wney/mulewatch/pkg/parallel"
	"github.com/dd0wney/mulewatch/pkg/rings"
	"github.com/dd0wney/mulewatch/pkg/txgraph"
)

// Result is the partition verdict for one ring. MembersEvaluated is 0 when
// the engine fell back to the deterministic baseline; downstream merging uses
// that to let a real evaluation supersede a placeholder.
type Result struct {
	RingID           string             `json:"ring_id"`
	Backend          string             `json:"backend"`
	MembersEvaluated int                `json:"members_evaluated"`
	Shots            int                `json:"shots"`
	GroupA           []string           `json:"group_a"`
	GroupB           []string           `json:"group_b"`
	BestBitstring    string             `json:"best_bitstring"`
	CutValue         int                `json:"cut_value"`
	ClassicalCut     int                `json:"classical_cut"`
	TotalEdges       int                `json:"total_edges"`
	AdvantagePct     float64            `json:"advantage_pct"`
	NoiseLevel       float64            `json:"noise_level"`
	Confidence       string             `json:"confidence"`
	Scores           map[string]float64 `json:"scores"`
	FallbackReason   string             `json:"fallback_reason,omitempty"`
}

// ChainEntry pairs a backend with its shot budget. Remote backends run fewer
// shots than the local sampler.
type ChainEntry struct {
	Backend Backend
	Shots   int
}

// DefaultChain returns the standard fallback chain: remote optimizer first
// when a URL is configured, local annealer always last.
func DefaultChain(remoteURL string, timeout time.Duration, seed int64) []ChainEntry {
	chain := []ChainEntry{}
	if remoteURL != "" {
		chain = append(chain, ChainEntry{Backend: NewRemoteBackend(remoteURL, timeout), Shots: 1024})
	}
	chain = append(chain, ChainEntry{Backend: NewAnnealBackend(seed), Shots: 2048})
	return chain
}

// Observer receives per-ring evaluation outcomes. The analysis engine wires
// it to the metrics registry; a nil observer disables the callbacks.
type Observer interface {
	// RingEvaluated fires once per ring with the backend that produced the
	// result ("fallback" included) and the evaluation latency.
	RingEvaluated(backend string, duration time.Duration)
	// BackendFailed fires each time a backend errors and hands the ring to
	// the next chain entry.
	BackendFailed(backend string)
}

// Engine evaluates ring partitions against a backend chain. Backends are
// tried in order; a failure hands the ring to the next entry, and when the
// whole chain fails the ring gets the deterministic fallback result.
type Engine struct {
	chain   []ChainEntry
	bias    BiasParams
	timeout time.Duration
	obs     Observer
	logger  logging.Logger
}

// NewEngine builds an engine over the given chain. An empty chain is legal:
// every ring then takes the fallback path.
func NewEngine(chain []ChainEntry, timeout time.Duration, logger logging.Logger) *Engine {
	if logger == nil {
		logger = logging.With(logging.Component("partition"))
	}
	return &Engine{
		chain:   chain,
		bias:    DefaultBias(),
		timeout: timeout,
		logger:  logger,
	}
}

// SetObserver registers the evaluation outcome callbacks. Must be called
// before the engine starts evaluating.
func (e *Engine) SetObserver(obs Observer) {
	e.obs = obs
}

// EvaluateRing partitions one ring. It never returns an error: rings the
// chain cannot evaluate get the baseline fallback.
func (e *Engine) EvaluateRing(ctx context.Context, ring *rings.Ring, g *txgraph.Graph) Result {
	start := time.Now()
	if len(ring.Members) < 2 {
		return e.observed(e.fallback(ring, "fewer than 2 members"), start)
	}

	for _, entry := range e.chain {
		b := entry.Backend

		subset := ring.Members
		if len(subset) > b.MaxMembers() {
			subset = subset[:b.MaxMembers()]
		}
		edges := g.InducedEdges(subset)
		if len(edges) == 0 {
			continue
		}

		evalCtx := ctx
		var cancel context.CancelFunc
		if e.timeout > 0 {
			evalCtx, cancel = context.WithTimeout(ctx, e.timeout)
		}
		counts, err := b.Evaluate(evalCtx, len(subset), edges, e.bias, entry.Shots)
		if cancel != nil {
			cancel()
		}
		if err != nil {
			if e.obs != nil {
				e.obs.BackendFailed(b.Name())
			}
			e.logger.Warn("optimizer backend failed, trying next",
				logging.RingID(ring.ID),
				logging.Backend(b.Name()),
				logging.Error(err))
			continue
		}

		return e.observed(e.processCounts(ring, subset, edges, counts, b.Name(), entry.Shots), start)
	}

	return e.observed(e.fallback(ring, "no backend could evaluate the ring"), start)
}

// observed reports the finished evaluation to the observer and passes the
// result through.
func (e *Engine) observed(res Result, start time.Time) Result {
	if e.obs != nil {
		e.obs.RingEvaluated(res.Backend, time.Since(start))
	}
	return res
}

// EvaluateAll fans the rings out across the pool and collects one result per
// ring id.
func (e *Engine) EvaluateAll(ctx context.Context, ringList []rings.Ring, g *txgraph.Graph, pool *parallel.Pool) map[string]Result {
	results := make(map[string]Result, len(ringList))
	var mu sync.Mutex

	for i := range ringList {
		ring := &ringList[i]
		if !pool.Submit(func() {
			res := e.EvaluateRing(ctx, ring, g)
			mu.Lock()
			results[ring.ID] = res
			mu.Unlock()
		}) {
			results[ring.ID] = e.observed(e.fallback(ring, "worker pool closed"), time.Now())
		}
	}
	pool.Wait()

	return results
}

type sample struct {
	bits  string
	count int
}

// processCounts turns raw sample counts into the ring's partition verdict:
// best cut among the most frequent samples, classical baseline comparison,
// per-account scores, and the entropy noise level.
func (e *Engine) processCounts(ring *rings.Ring, subset []string, edges [][2]int, counts map[string]int, backend string, shots int) Result {
	total := 0
	samples := make([]sample, 0, len(counts))
	for bits, cnt := range counts {
		samples = append(samples, sample{bits: bits, count: cnt})
		total += cnt
	}
	sort.Slice(samples, func(i, j int) bool {
		if samples[i].count != samples[j].count {
			return samples[i].count > samples[j].count
		}
		return samples[i].bits < samples[j].bits
	})

	// Best partition = highest cut among the 20 most frequent samples.
	topN := len(samples)
	if topN > 20 {
		topN = 20
	}
	bestBits, bestCut := "", -1
	for _, s := range samples[:topN] {
		if cut := cutValue(s.bits, edges); cut > bestCut {
			bestCut = cut
			bestBits = s.bits
		}
	}

	groupA := make([]string, 0, len(subset))
	groupB := make([]string, 0, len(subset))
	for i, acc := range subset {
		if bestBits[i] == '0' {
			groupA = append(groupA, acc)
		} else {
			groupB = append(groupB, acc)
		}
	}

	_, classicalCut := greedyPartition(len(subset), edges)
	advantage := round2(float64(bestCut-classicalCut) / float64(maxInt(len(edges), 1)) * 100)

	// Group B is the suspicious core on ties.
	dominant, minority := groupB, groupA
	if len(groupA) > len(groupB) {
		dominant, minority = groupA, groupB
	}

	probN := len(samples)
	if probN > 10 {
		probN = 10
	}
	dominantProb := 0.0
	for _, s := range samples[:probN] {
		if s.bits == bestBits {
			dominantProb += float64(s.count) / float64(total)
		}
	}

	scores := make(map[string]float64, len(subset))
	for _, acc := range dominant {
		scores[acc] = round2(math.Min(ring.RiskScore*0.9+dominantProb*10, 100))
	}
	for _, acc := range minority {
		scores[acc] = round2(math.Min(ring.RiskScore*0.6, 100))
	}

	entropy := 0.0
	for _, s := range samples {
		p := float64(s.count) / float64(total)
		entropy -= p * math.Log2(p)
	}
	maxEntropy := math.Log2(float64(maxInt(len(samples), 1)))
	noise := round3(entropy / math.Max(maxEntropy, 1))

	return Result{
		RingID:           ring.ID,
		Backend:          backend,
		MembersEvaluated: len(subset),
		Shots:            shots,
		GroupA:           groupA,
		GroupB:           groupB,
		BestBitstring:    bestBits,
		CutValue:         bestCut,
		ClassicalCut:     classicalCut,
		TotalEdges:       len(edges),
		AdvantagePct:     advantage,
		NoiseLevel:       noise,
		Confidence:       confidenceLabel(noise),
		Scores:           scores,
	}
}

// fallback is the deterministic baseline: every member scores 50, confidence
// low, no advantage claimed.
func (e *Engine) fallback(ring *rings.Ring, reason string) Result {
	e.logger.Debug("partition fallback",
		logging.RingID(ring.ID),
		logging.String("reason", reason))

	scores := make(map[string]float64, len(ring.Members))
	for _, acc := range ring.Members {
		scores[acc] = 50.0
	}
	return Result{
		RingID:         ring.ID,
		Backend:        "fallback",
		GroupB:         append([]string(nil), ring.Members...),
		GroupA:         []string{},
		NoiseLevel:     1.0,
		Confidence:     "low",
		Scores:         scores,
		FallbackReason: reason,
	}
}

// confidenceLabel maps the normalized noise entropy to a coarse label.
func confidenceLabel(noise float64) string {
	switch {
	case noise < 0.5:
		return "high"
	case noise < 0.8:
		return "medium"
	default:
		return "low"
	}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round3(v float64) float64 { return math.Round(v*1000) / 1000 }

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
