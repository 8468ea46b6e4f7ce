package rings

import (
	"sort"
	"time"
)

type structuredTx struct {
	when     time.Time
	receiver string
	amount   float64
}

// detectStructuring finds accounts splitting transfers into amounts just
// below the reporting threshold: at least StructuringMinCount sub-threshold
// transfers inside one StructuringWindow.
func (d *Detector) detectStructuring() []candidate {
	var found []candidate
	for _, acc := range d.graph.Accounts() {
		var txs []structuredTx
		for _, edge := range d.graph.Outgoing(acc) {
			for _, tx := range edge.Transactions {
				if tx.Amount >= d.cfg.StructuringFloor && tx.Amount < d.cfg.StructuringCeiling {
					txs = append(txs, structuredTx{when: tx.Timestamp, receiver: edge.To, amount: tx.Amount})
				}
			}
		}
		if len(txs) < d.cfg.StructuringMinCount {
			continue
		}

		sort.Slice(txs, func(i, j int) bool { return txs[i].when.Before(txs[j].when) })

		if window := d.bestWindow(txs); window != nil {
			found = append(found, d.structuringCandidate(acc, window))
		}
	}
	return found
}

// bestWindow slides over the time-sorted transfers and returns the densest
// window meeting the minimum count, or nil.
func (d *Detector) bestWindow(txs []structuredTx) []structuredTx {
	var best []structuredTx
	for i := range txs {
		j := i
		for j < len(txs) && txs[j].when.Sub(txs[i].when) <= d.cfg.StructuringWindow {
			j++
		}
		if j-i >= d.cfg.StructuringMinCount && j-i > len(best) {
			best = txs[i:j]
		}
	}
	return best
}

func (d *Detector) structuringCandidate(acc string, window []structuredTx) candidate {
	members := []string{acc}
	seen := map[string]bool{acc: true}
	var amount float64
	for _, tx := range window {
		amount += tx.amount
		if !seen[tx.receiver] {
			seen[tx.receiver] = true
			members = append(members, tx.receiver)
		}
	}

	span := window[len(window)-1].when.Sub(window[0].when)
	compression := 1 - span.Hours()/d.cfg.StructuringWindow.Hours()

	return candidate{
		members: members,
		pattern: PatternStructuring,
		risk: riskScore(
			amount/100_000,
			float64(len(window))/10,
			compression,
		),
	}
}
