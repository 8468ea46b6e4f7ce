package fusion

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/dd0wney/mulewatch/pkg/partition"
	"github.com/dd0wney/mulewatch/pkg/rings"
)

// TestFusionProperties checks the score invariants over arbitrary signal
// combinations, including all-zero and all-hundred inputs.
func TestFusionProperties(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping property-based test in short mode")
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("fused scores stay within [0,100]", prop.ForAll(
		func(graphScore, anomalyScore, partScore float64) bool {
			rr := &rings.Result{
				Rings: []rings.Ring{
					{ID: "RING_001", Members: []string{"ACC_A"}, Pattern: rings.PatternCycle, RiskScore: graphScore},
				},
				AccountPatterns: map[string][]rings.Pattern{"ACC_A": {rings.PatternCycle}},
				AccountScores:   map[string]float64{"ACC_A": graphScore},
			}
			parts := map[string]partition.Result{
				"RING_001": {RingID: "RING_001", MembersEvaluated: 1,
					Scores: map[string]float64{"ACC_A": partScore}},
			}

			out := NewAggregator(DefaultWeights(), nil).Run(rr, map[string]float64{"ACC_A": anomalyScore}, parts, 1)
			if len(out.Accounts) != 1 {
				return false
			}
			score := out.Accounts[0].SuspicionScore
			return score >= 0 && score <= 100
		},
		gen.Float64Range(0, 100),
		gen.Float64Range(0, 100),
		gen.Float64Range(0, 100),
	))

	properties.Property("reweighted ring risk stays within [0,100]", prop.ForAll(
		func(structural, member float64) bool {
			rr := &rings.Result{
				Rings: []rings.Ring{
					{ID: "RING_001", Members: []string{"ACC_A"}, Pattern: rings.PatternFanOut, RiskScore: structural},
				},
				AccountPatterns: map[string][]rings.Pattern{"ACC_A": {rings.PatternFanOut}},
				AccountScores:   map[string]float64{"ACC_A": member},
			}

			out := NewAggregator(DefaultWeights(), nil).Run(rr, nil, nil, 1)
			risk := out.Rings[0].RiskScore
			return risk >= 0 && risk <= 100
		},
		gen.Float64Range(0, 100),
		gen.Float64Range(0, 100),
	))

	properties.TestingRun(t)
}
