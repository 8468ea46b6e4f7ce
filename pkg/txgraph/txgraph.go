package txgraph

import (
	"errors"
	"math"
	"time"
)

// ErrEmptyGraph is returned when no valid accounts or transfers remain after
// ingestion. It is the only graph-construction failure surfaced to callers.
var ErrEmptyGraph = errors.New("transaction graph is empty")

// Transaction is a single raw transfer between two accounts.
type Transaction struct {
	ID        string    `json:"transaction_id"`
	Amount    float64   `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}

// Transfer is the aggregate edge for one ordered (sender, receiver) pair.
// Multiple raw transactions between the same pair collapse into one Transfer.
type Transfer struct {
	From         string        `json:"from"`
	To           string        `json:"to"`
	TotalAmount  float64       `json:"total_amount"`
	TxCount      int           `json:"tx_count"`
	Transactions []Transaction `json:"transactions"`
}

// FirstTimestamp returns the timestamp of the earliest transaction on the edge.
func (t *Transfer) FirstTimestamp() time.Time {
	first := t.Transactions[0].Timestamp
	for _, tx := range t.Transactions[1:] {
		if tx.Timestamp.Before(first) {
			first = tx.Timestamp
		}
	}
	return first
}

// AccountStats holds per-account aggregates derived once at build time.
// Time gaps are in seconds; accounts with fewer than two observed
// transactions report +Inf gaps.
type AccountStats struct {
	TotalSent     float64
	TotalReceived float64
	TxCountSent   int
	TxCountRecv   int
	TxCountTotal  int
	InDegree      int
	OutDegree     int
	AvgTimeGap    float64
	MinTimeGap    float64
}

// Graph is the directed transaction graph shared read-only by every analysis
// component. It is built once per request and never mutated afterwards.
type Graph struct {
	accounts []string
	index    map[string]int
	out      map[string][]*Transfer
	in       map[string][]*Transfer
	edges    map[[2]string]*Transfer
	stats    map[string]*AccountStats

	edgeCount   int
	totalAmount float64
}

// NodeCount returns the number of accounts in the graph.
func (g *Graph) NodeCount() int { return len(g.accounts) }

// EdgeCount returns the number of aggregate transfer edges.
func (g *Graph) EdgeCount() int { return g.edgeCount }

// TotalAmount returns the sum of all transferred amounts.
func (g *Graph) TotalAmount() float64 { return g.totalAmount }

// HasAccount reports whether the account exists in the graph.
func (g *Graph) HasAccount(id string) bool {
	_, ok := g.index[id]
	return ok
}

// Accounts returns all account ids in insertion order. The returned slice is
// a copy and safe to retain.
func (g *Graph) Accounts() []string {
	out := make([]string, len(g.accounts))
	copy(out, g.accounts)
	return out
}

// Stats returns the aggregate statistics for an account, or nil if the
// account is unknown.
func (g *Graph) Stats(id string) *AccountStats {
	return g.stats[id]
}

// Edge returns the aggregate transfer for the ordered pair (from, to).
func (g *Graph) Edge(from, to string) (*Transfer, bool) {
	t, ok := g.edges[[2]string{from, to}]
	return t, ok
}

// Outgoing returns the outgoing transfers of an account in insertion order.
func (g *Graph) Outgoing(id string) []*Transfer { return g.out[id] }

// Incoming returns the incoming transfers of an account in insertion order.
func (g *Graph) Incoming(id string) []*Transfer { return g.in[id] }

// Successors returns the ids an account sends to, in edge insertion order.
func (g *Graph) Successors(id string) []string {
	edges := g.out[id]
	out := make([]string, len(edges))
	for i, e := range edges {
		out[i] = e.To
	}
	return out
}

// Predecessors returns the ids an account receives from, in edge insertion order.
func (g *Graph) Predecessors(id string) []string {
	edges := g.in[id]
	out := make([]string, len(edges))
	for i, e := range edges {
		out[i] = e.From
	}
	return out
}

// EachEdge calls fn for every aggregate transfer edge. Iteration follows
// account insertion order, then per-account edge insertion order, so it is
// deterministic for a given build sequence.
func (g *Graph) EachEdge(fn func(*Transfer)) {
	for _, acc := range g.accounts {
		for _, e := range g.out[acc] {
			fn(e)
		}
	}
}

// InducedEdges returns the undirected, deduplicated, self-loop-free edge set
// among the given members, as index pairs into the members slice. This is the
// cost-graph collapse shared by the partition and disruption engines.
func (g *Graph) InducedEdges(members []string) [][2]int {
	idx := make(map[string]int, len(members))
	for i, m := range members {
		idx[m] = i
	}

	seen := make(map[[2]int]bool)
	pairs := make([][2]int, 0)
	for _, m := range members {
		for _, e := range g.out[m] {
			j, ok := idx[e.To]
			if !ok {
				continue
			}
			i := idx[m]
			if i == j {
				continue
			}
			key := [2]int{min(i, j), max(i, j)}
			if seen[key] {
				continue
			}
			seen[key] = true
			pairs = append(pairs, key)
		}
	}
	return pairs
}

func infIfNaN(v float64) float64 {
	if math.IsNaN(v) {
		return math.Inf(1)
	}
	return v
}
