package txgraph

import (
	"math"
	"sort"
	"time"
)

// Builder accumulates raw transactions and produces an immutable Graph.
// It is not safe for concurrent use; build the graph once, then share it.
type Builder struct {
	graph *Graph

	// per-account event timestamps for gap statistics
	events map[string][]time.Time
}

// NewBuilder creates an empty graph builder.
func NewBuilder() *Builder {
	return &Builder{
		graph: &Graph{
			index: make(map[string]int),
			out:   make(map[string][]*Transfer),
			in:    make(map[string][]*Transfer),
			edges: make(map[[2]string]*Transfer),
			stats: make(map[string]*AccountStats),
		},
		events: make(map[string][]time.Time),
	}
}

// Add records one raw transaction. Sender and receiver accounts are created
// on first sight; transactions for the same ordered pair aggregate onto a
// single edge.
func (b *Builder) Add(txID, sender, receiver string, amount float64, ts time.Time) {
	g := b.graph

	b.ensureAccount(sender)
	b.ensureAccount(receiver)

	key := [2]string{sender, receiver}
	edge, ok := g.edges[key]
	if !ok {
		edge = &Transfer{From: sender, To: receiver}
		g.edges[key] = edge
		g.out[sender] = append(g.out[sender], edge)
		g.in[receiver] = append(g.in[receiver], edge)
		g.edgeCount++
	}

	edge.Transactions = append(edge.Transactions, Transaction{ID: txID, Amount: amount, Timestamp: ts})
	edge.TotalAmount += amount
	edge.TxCount++
	g.totalAmount += amount

	ss := g.stats[sender]
	ss.TotalSent += amount
	ss.TxCountSent++
	ss.TxCountTotal++

	rs := g.stats[receiver]
	rs.TotalReceived += amount
	rs.TxCountRecv++
	rs.TxCountTotal++

	b.events[sender] = append(b.events[sender], ts)
	b.events[receiver] = append(b.events[receiver], ts)
}

func (b *Builder) ensureAccount(id string) {
	g := b.graph
	if _, ok := g.index[id]; ok {
		return
	}
	g.index[id] = len(g.accounts)
	g.accounts = append(g.accounts, id)
	g.stats[id] = &AccountStats{
		AvgTimeGap: math.Inf(1),
		MinTimeGap: math.Inf(1),
	}
}

// Build finalizes degree and timing statistics and returns the graph.
// Returns ErrEmptyGraph when no account or no transfer survived ingestion.
func (b *Builder) Build() (*Graph, error) {
	g := b.graph
	if len(g.accounts) == 0 || g.edgeCount == 0 {
		return nil, ErrEmptyGraph
	}

	for _, acc := range g.accounts {
		st := g.stats[acc]
		st.InDegree = len(g.in[acc])
		st.OutDegree = len(g.out[acc])

		times := b.events[acc]
		if len(times) < 2 {
			continue
		}
		sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

		var sum float64
		minGap := math.Inf(1)
		for i := 1; i < len(times); i++ {
			gap := times[i].Sub(times[i-1]).Seconds()
			sum += gap
			if gap < minGap {
				minGap = gap
			}
		}
		st.AvgTimeGap = infIfNaN(sum / float64(len(times)-1))
		st.MinTimeGap = minGap
	}

	return g, nil
}
