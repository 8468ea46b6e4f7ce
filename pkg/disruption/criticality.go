package disruption

import (
	"container/list"
	"sort"

	"github.com/dd0wney/mulewatch/pkg/txgraph"
)

// RankedNode holds a ranked account with its betweenness centrality score.
type RankedNode struct {
	AccountID string  `json:"account_id"`
	Score     float64 `json:"score"`
}

// undirectedAdjacency collapses the directed graph to deduplicated undirected
// neighbor lists, preserving edge insertion order.
func undirectedAdjacency(g *txgraph.Graph) map[string][]string {
	adj := make(map[string][]string, g.NodeCount())
	seen := make(map[[2]string]bool)

	add := func(a, b string) {
		key := [2]string{a, b}
		if a > b {
			key = [2]string{b, a}
		}
		if a == b || seen[key] {
			return
		}
		seen[key] = true
		adj[a] = append(adj[a], b)
		adj[b] = append(adj[b], a)
	}

	g.EachEdge(func(t *txgraph.Transfer) {
		add(t.From, t.To)
	})
	return adj
}

// ArticulationPoints finds the accounts whose removal disconnects the
// undirected view of the graph. Iterative lowpoint DFS; the explicit stack
// keeps deep mule chains from blowing the goroutine stack.
func ArticulationPoints(g *txgraph.Graph) map[string]bool {
	adj := undirectedAdjacency(g)
	disc := make(map[string]int, g.NodeCount())
	low := make(map[string]int, g.NodeCount())
	aps := make(map[string]bool)
	timer := 0

	type frame struct {
		v, parent string
		next      int
		children  int
	}

	for _, root := range g.Accounts() {
		if _, visited := disc[root]; visited {
			continue
		}
		disc[root] = timer
		low[root] = timer
		timer++

		stack := []frame{{v: root}}
		for len(stack) > 0 {
			f := &stack[len(stack)-1]
			neighbors := adj[f.v]

			if f.next < len(neighbors) {
				w := neighbors[f.next]
				f.next++
				if w == f.parent {
					continue
				}
				if d, visited := disc[w]; visited {
					if d < low[f.v] {
						low[f.v] = d
					}
					continue
				}
				f.children++
				disc[w] = timer
				low[w] = timer
				timer++
				stack = append(stack, frame{v: w, parent: f.v})
				continue
			}

			done := *f
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				if done.children >= 2 {
					aps[done.v] = true
				}
				continue
			}
			p := &stack[len(stack)-1]
			if low[done.v] < low[p.v] {
				low[p.v] = low[done.v]
			}
			if p.parent != "" && low[done.v] >= disc[p.v] {
				aps[p.v] = true
			}
		}
	}
	return aps
}

// Betweenness runs one Brandes pass over the directed graph and returns
// normalized node betweenness. members restricts the traversal to an induced
// subgraph; pass nil for the whole graph.
func Betweenness(g *txgraph.Graph, members []string) map[string]float64 {
	var nodes []string
	var inScope map[string]bool
	if members == nil {
		nodes = g.Accounts()
	} else {
		nodes = members
		inScope = make(map[string]bool, len(members))
		for _, m := range members {
			inScope[m] = true
		}
	}

	betweenness := make(map[string]float64, len(nodes))
	for _, id := range nodes {
		betweenness[id] = 0.0
	}

	for _, source := range nodes {
		stack := make([]string, 0, len(nodes))
		predecessors := make(map[string][]string, len(nodes))
		sigma := make(map[string]float64, len(nodes))
		distance := make(map[string]int, len(nodes))

		for _, id := range nodes {
			sigma[id] = 0.0
			distance[id] = -1
		}
		sigma[source] = 1.0
		distance[source] = 0

		queue := list.New()
		queue.PushBack(source)

		for queue.Len() > 0 {
			v, ok := queue.Remove(queue.Front()).(string)
			if !ok {
				continue
			}
			stack = append(stack, v)

			for _, w := range g.Successors(v) {
				if inScope != nil && !inScope[w] {
					continue
				}
				if distance[w] < 0 {
					queue.PushBack(w)
					distance[w] = distance[v] + 1
				}
				if distance[w] == distance[v]+1 {
					sigma[w] += sigma[v]
					predecessors[w] = append(predecessors[w], v)
				}
			}
		}

		delta := make(map[string]float64, len(stack))
		for i := len(stack) - 1; i >= 0; i-- {
			w := stack[i]
			for _, pred := range predecessors[w] {
				delta[pred] += (sigma[pred] / sigma[w]) * (1.0 + delta[w])
			}
			if w != source {
				betweenness[w] += delta[w]
			}
		}
	}

	if n := len(nodes); n > 2 {
		normFactor := 1.0 / float64((n-1)*(n-2))
		for id := range betweenness {
			betweenness[id] *= normFactor
		}
	}
	return betweenness
}

// topNodes returns the k highest-scoring accounts, score descending with
// account id as the tie-break for determinism.
func topNodes(scores map[string]float64, k int) []RankedNode {
	ranked := make([]RankedNode, 0, len(scores))
	for id, score := range scores {
		ranked = append(ranked, RankedNode{AccountID: id, Score: score})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].AccountID < ranked[j].AccountID
	})
	if len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked
}
