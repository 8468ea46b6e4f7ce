package anomaly

import (
	"math"

	"github.com/dd0wney/mulewatch/pkg/txgraph"
)

// Scorer is the anomaly-signal contract consumed by the aggregator: a score
// in [0,100] per account id. Implementations must treat the graph as
// read-only.
type Scorer interface {
	Score(graph *txgraph.Graph) map[string]float64
}

// StatScorer scores accounts by how far their behavior sits from the batch
// baseline: transaction velocity, volume, degree, and pass-through ratio.
type StatScorer struct{}

// NewStatScorer returns the default statistical scorer.
func NewStatScorer() *StatScorer {
	return &StatScorer{}
}

type featureVector struct {
	volume      float64
	txCount     float64
	degree      float64
	velocity    float64
	passThrough float64
}

// Score computes per-account anomaly scores. Scores are deterministic for a
// given graph.
func (s *StatScorer) Score(graph *txgraph.Graph) map[string]float64 {
	accounts := graph.Accounts()
	features := make([]featureVector, len(accounts))

	for i, acc := range accounts {
		st := graph.Stats(acc)
		fv := featureVector{
			volume:  st.TotalSent + st.TotalReceived,
			txCount: float64(st.TxCountTotal),
			degree:  float64(st.InDegree + st.OutDegree),
		}
		if !math.IsInf(st.AvgTimeGap, 1) && st.AvgTimeGap > 0 {
			fv.velocity = 1 / (st.AvgTimeGap / 3600) // events per hour of gap
		}
		maxFlow := math.Max(st.TotalSent, st.TotalReceived)
		if maxFlow > 0 {
			fv.passThrough = math.Min(st.TotalSent, st.TotalReceived) / maxFlow
		}
		features[i] = fv
	}

	volZ := zscores(features, func(f featureVector) float64 { return f.volume })
	cntZ := zscores(features, func(f featureVector) float64 { return f.txCount })
	degZ := zscores(features, func(f featureVector) float64 { return f.degree })
	velZ := zscores(features, func(f featureVector) float64 { return f.velocity })

	scores := make(map[string]float64, len(accounts))
	for i, acc := range accounts {
		// Pass-through is an absolute signal: money in roughly equals money
		// out, the mule signature. The rest are relative outliers.
		raw := 0.3*sigmoid(volZ[i]) +
			0.2*sigmoid(cntZ[i]) +
			0.2*sigmoid(degZ[i]) +
			0.1*sigmoid(velZ[i]) +
			0.2*features[i].passThrough

		scores[acc] = math.Round(raw*100*100) / 100
	}
	return scores
}

// zscores computes standard scores for one feature across all accounts.
// A zero-variance feature yields all-zero scores.
func zscores(features []featureVector, get func(featureVector) float64) []float64 {
	n := float64(len(features))
	if n == 0 {
		return nil
	}

	var sum float64
	for _, f := range features {
		sum += get(f)
	}
	mean := sum / n

	var variance float64
	for _, f := range features {
		d := get(f) - mean
		variance += d * d
	}
	stddev := math.Sqrt(variance / n)

	out := make([]float64, len(features))
	if stddev == 0 {
		return out
	}
	for i, f := range features {
		out[i] = (get(f) - mean) / stddev
	}
	return out
}

// sigmoid squashes a z-score into (0,1) with 0.5 at the mean.
func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
