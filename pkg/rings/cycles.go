package rings

import (
	"math"
)

// detectCycles finds simple directed cycles up to MaxCycleLength hops using a
// bounded DFS. Each cycle is discovered exactly once: the search rooted at
// account s only visits accounts ordered after s, so every cycle is reported
// from its smallest member.
func (d *Detector) detectCycles() []candidate {
	order := make(map[string]int)
	for i, acc := range d.graph.Accounts() {
		order[acc] = i
	}

	var found []candidate
	for _, start := range d.graph.Accounts() {
		path := []string{start}
		onPath := map[string]bool{start: true}
		d.cycleDFS(start, start, path, onPath, order, &found)
	}
	return found
}

func (d *Detector) cycleDFS(start, current string, path []string, onPath map[string]bool, order map[string]int, found *[]candidate) {
	for _, edge := range d.graph.Outgoing(current) {
		next := edge.To

		if next == start && len(path) >= 2 {
			if c, ok := d.qualifyCycle(path); ok {
				*found = append(*found, c)
			}
			continue
		}

		if len(path) >= d.cfg.MaxCycleLength {
			continue
		}
		if onPath[next] || order[next] <= order[start] {
			continue
		}

		onPath[next] = true
		d.cycleDFS(start, next, append(path, next), onPath, order, found)
		delete(onPath, next)
	}
}

// qualifyCycle checks the routed amount threshold and scores the cycle.
func (d *Detector) qualifyCycle(path []string) (candidate, bool) {
	var amount float64
	for i := range path {
		from := path[i]
		to := path[(i+1)%len(path)]
		edge, ok := d.graph.Edge(from, to)
		if !ok {
			return candidate{}, false
		}
		amount += edge.TotalAmount
	}
	if amount < d.cfg.MinCycleAmount {
		return candidate{}, false
	}

	members := make([]string, len(path))
	copy(members, path)

	// Short cycles are tighter laundering loops, so concentration decays
	// with length.
	concentration := 1 - math.Max(0, float64(len(path)-3))/6

	return candidate{
		members: members,
		pattern: PatternCycle,
		risk: riskScore(
			amount/100_000,
			concentration,
			d.timeCompression(members),
		),
	}, true
}
