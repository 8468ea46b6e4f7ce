package rings

import (
	"math"

	"github.com/dd0wney/mulewatch/pkg/txgraph"
)

// detectLayering finds rapid pass-through chains: funds hopping account to
// account with near-equal amounts and short inter-hop gaps. Chains are grown
// greedily edge by edge; each aggregate edge seeds or joins at most one chain.
func (d *Detector) detectLayering() []candidate {
	used := make(map[[2]string]bool)

	var found []candidate
	for _, acc := range d.graph.Accounts() {
		for _, edge := range d.graph.Outgoing(acc) {
			key := [2]string{edge.From, edge.To}
			if used[key] {
				continue
			}

			chain := d.growChain(edge, used)
			if len(chain) < d.cfg.MinChainHops {
				continue
			}

			for _, e := range chain {
				used[[2]string{e.From, e.To}] = true
			}
			found = append(found, d.chainCandidate(chain))
		}
	}
	return found
}

// growChain extends a chain from the seed edge while the next hop forwards a
// near-equal amount within the layering window.
func (d *Detector) growChain(seed *txgraph.Transfer, used map[[2]string]bool) []*txgraph.Transfer {
	chain := []*txgraph.Transfer{seed}
	visited := map[string]bool{seed.From: true, seed.To: true}

	current := seed
	for {
		next := d.nextHop(current, visited, used)
		if next == nil {
			break
		}
		chain = append(chain, next)
		visited[next.To] = true
		current = next
	}
	return chain
}

// nextHop picks the onward edge whose amount is closest to the incoming one,
// among edges that satisfy the tolerance and time-gap constraints.
func (d *Detector) nextHop(incoming *txgraph.Transfer, visited map[string]bool, used map[[2]string]bool) *txgraph.Transfer {
	var best *txgraph.Transfer
	bestDelta := math.Inf(1)

	inTime := incoming.FirstTimestamp()
	for _, out := range d.graph.Outgoing(incoming.To) {
		if visited[out.To] || used[[2]string{out.From, out.To}] {
			continue
		}

		delta := math.Abs(out.TotalAmount-incoming.TotalAmount) / math.Max(incoming.TotalAmount, 1)
		if delta > d.cfg.LayeringTolerance {
			continue
		}

		gap := out.FirstTimestamp().Sub(inTime)
		if gap < 0 || gap > d.cfg.LayeringMaxGap {
			continue
		}

		if delta < bestDelta {
			bestDelta = delta
			best = out
		}
	}
	return best
}

func (d *Detector) chainCandidate(chain []*txgraph.Transfer) candidate {
	members := []string{chain[0].From}
	var amount float64
	for _, e := range chain {
		members = append(members, e.To)
		amount += e.TotalAmount
	}

	// Compression from the chain's own hop gaps rather than account averages:
	// a chain that clears in hours is the signature layering case.
	span := chain[len(chain)-1].FirstTimestamp().Sub(chain[0].FirstTimestamp())
	compression := 1 - math.Min(span.Hours()/float64(len(chain))/72, 1)

	return candidate{
		members: members,
		pattern: PatternLayering,
		risk: riskScore(
			amount/100_000,
			float64(len(chain))/8,
			compression,
		),
	}
}
