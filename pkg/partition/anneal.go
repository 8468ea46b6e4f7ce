package partition

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
)

// AnnealBackend is the local sampler: repeated randomized local search whose
// acceptance rule is shaped by the bias pair. γ sharpens the distribution
// toward high-cut colorings, β sets how often sideways and downhill moves
// are taken.
type AnnealBackend struct {
	mu         sync.Mutex
	rng        *rand.Rand
	maxMembers int
	sweeps     int
}

// NewAnnealBackend creates the local sampler. The seed pins the sample
// stream, which keeps tests reproducible.
func NewAnnealBackend(seed int64) *AnnealBackend {
	return &AnnealBackend{
		rng:        rand.New(rand.NewSource(seed)),
		maxMembers: 8,
		sweeps:     4,
	}
}

func (b *AnnealBackend) Name() string { return "anneal" }

// MaxMembers allows up to 8 members per ring.
func (b *AnnealBackend) MaxMembers() int { return b.maxMembers }

// Evaluate runs shots independent restarts. Each restart sweeps the members
// a few times, always taking cut-improving flips and occasionally accepting
// non-improving ones, then records the final coloring.
func (b *AnnealBackend) Evaluate(ctx context.Context, n int, edges [][2]int, bias BiasParams, shots int) (map[string]int, error) {
	if n < 1 || n > b.maxMembers {
		return nil, fmt.Errorf("%w: anneal backend supports 1..%d members, got %d", ErrBackendFailed, b.maxMembers, n)
	}
	if len(edges) == 0 {
		return nil, fmt.Errorf("%w: empty cost graph", ErrBackendFailed)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	counts := make(map[string]int)
	bits := make([]byte, n)

	for shot := 0; shot < shots; shot++ {
		if shot%256 == 0 && ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrBackendFailed, ctx.Err())
		}

		for i := range bits {
			if b.rng.Intn(2) == 0 {
				bits[i] = '0'
			} else {
				bits[i] = '1'
			}
		}

		for sweep := 0; sweep < b.sweeps; sweep++ {
			for i := 0; i < n; i++ {
				delta := flipGain(bits, i, edges)
				if delta > 0 || b.rng.Float64() < acceptance(delta, bias) {
					bits[i] ^= 1 // '0' <-> '1'
				}
			}
		}

		counts[string(bits)]++
	}

	return counts, nil
}

// flipGain is the cut-value change from flipping member i.
func flipGain(bits []byte, i int, edges [][2]int) int {
	gain := 0
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
		if bits[i] == bits[other] {
			gain++ // flip separates the pair
		} else {
			gain--
		}
	}
	return gain
}

// acceptance is the probability of taking a non-improving flip.
func acceptance(delta int, bias BiasParams) float64 {
	return bias.Beta / math.Pi * math.Exp(bias.Gamma*float64(delta))
}
