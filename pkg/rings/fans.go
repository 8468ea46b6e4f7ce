package rings

import (
	"sort"

	"github.com/dd0wney/mulewatch/pkg/txgraph"
)

// detectFans finds fan-in collectors and fan-out distributors: accounts whose
// in- or out-degree clears the percentile threshold and whose flow
// concentrates on a small counterparty set.
func (d *Detector) detectFans() []candidate {
	accounts := d.graph.Accounts()

	inDegrees := make([]int, 0, len(accounts))
	outDegrees := make([]int, 0, len(accounts))
	for _, acc := range accounts {
		st := d.graph.Stats(acc)
		inDegrees = append(inDegrees, st.InDegree)
		outDegrees = append(outDegrees, st.OutDegree)
	}

	inThreshold := maxInt(percentileInt(inDegrees, d.cfg.FanPercentile), d.cfg.MinFanDegree)
	outThreshold := maxInt(percentileInt(outDegrees, d.cfg.FanPercentile), d.cfg.MinFanDegree)

	var found []candidate
	for _, acc := range accounts {
		st := d.graph.Stats(acc)

		if st.InDegree >= inThreshold {
			found = append(found, d.starRing(acc, d.graph.Incoming(acc), st.TotalReceived, PatternFanIn))
		}
		if st.OutDegree >= outThreshold {
			found = append(found, d.starRing(acc, d.graph.Outgoing(acc), st.TotalSent, PatternFanOut))
		}
	}
	return found
}

// starRing builds a hub-and-spokes candidate from the hub's top-weight edges.
func (d *Detector) starRing(hub string, edges []*txgraph.Transfer, hubVolume float64, pattern Pattern) candidate {
	sorted := make([]*txgraph.Transfer, len(edges))
	copy(sorted, edges)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].TotalAmount > sorted[j].TotalAmount
	})

	limit := d.cfg.MaxFanNeighbors
	if limit > len(sorted) {
		limit = len(sorted)
	}

	members := []string{hub}
	var topAmount float64
	for _, e := range sorted[:limit] {
		other := e.From
		if pattern == PatternFanOut {
			other = e.To
		}
		if other != hub {
			members = append(members, other)
		}
		topAmount += e.TotalAmount
	}

	concentration := 0.0
	if hubVolume > 0 {
		concentration = topAmount / hubVolume
	}

	return candidate{
		members: members,
		pattern: pattern,
		risk: riskScore(
			hubVolume/250_000,
			concentration,
			d.timeCompression([]string{hub}),
		),
	}
}

// percentileInt returns the value at the given percentile of the sorted
// distribution (nearest-rank).
func percentileInt(values []int, pct float64) int {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]int, len(values))
	copy(sorted, values)
	sort.Ints(sorted)

	rank := int(pct * float64(len(sorted)))
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
