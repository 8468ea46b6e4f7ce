package partition

import (
	"context"
	"errors"
)

// ErrInsufficientRing marks a ring too small or too sparse to partition.
// It never reaches callers: the engine converts it into the deterministic
// fallback result.
var ErrInsufficientRing = errors.New("ring has too few members or no induced edges")

// ErrBackendFailed marks an optimizer backend failure. The engine recovers
// by moving down the fallback chain; the error is logged, never surfaced.
var ErrBackendFailed = errors.New("optimizer backend failed")

// BiasParams is the fixed, pre-tuned bias pair handed to every backend.
// The pair is an offline-tuned constant; it is never re-optimized per ring.
type BiasParams struct {
	Gamma float64 `json:"gamma"`
	Beta  float64 `json:"beta"`
}

// DefaultBias returns the pinned bias pair (γ=π/8, β=π/4).
func DefaultBias() BiasParams {
	return BiasParams{Gamma: 0.3927, Beta: 0.7854}
}

// Backend produces a frequency distribution over 2-colorings of a ring's
// cost graph, biased toward high-cut-weight colorings. The returned map is
// keyed by bitstring: character i is the group bit of member i.
//
// Backends are tried in priority order; a failing backend hands over to the
// next one in the chain.
type Backend interface {
	// Name identifies the backend in logs and results.
	Name() string
	// MaxMembers is the largest member count this backend accepts; rings
	// are capped to their first MaxMembers members before evaluation.
	MaxMembers() int
	// Evaluate samples 2-colorings of n members over the given undirected
	// edge set and returns observed counts per bitstring.
	Evaluate(ctx context.Context, n int, edges [][2]int, bias BiasParams, shots int) (map[string]int, error)
}

// cutValue counts the edges whose endpoints fall in different groups.
func cutValue(bits string, edges [][2]int) int {
	cut := 0
	for _, e := range edges {
		if bits[e[0]] != bits[e[1]] {
			cut++
		}
	}
	return cut
}

// greedyPartition is the deterministic classical baseline: each member joins
// the side that cuts more of the edges to already-assigned members.
func greedyPartition(n int, edges [][2]int) (string, int) {
	assigned := make([]byte, n)
	for i := 0; i < n; i++ {
		cutIfZero, cutIfOne := 0, 0
		for _, e := range edges {
			var other int
			switch i {
			case e[0]:
				other = e[1]
			case e[1]:
				other = e[0]
			default:
				continue
			}
			if other >= i {
				continue // not yet assigned
			}
			if assigned[other] == '0' {
				cutIfOne++
			} else {
				cutIfZero++
			}
		}
		if cutIfOne > cutIfZero {
			assigned[i] = '1'
		} else {
			assigned[i] = '0'
		}
	}

	bits := string(assigned)
	return bits, cutValue(bits, edges)
}
