package defuse

import (
	"sort"

	"gonum.org/v1/gonum/graph/network"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// Stats summarizes the shape of a graph.
type Stats struct {
	Starts          int `json:"starts"`
	Nodes           int `json:"nodes"`
	Edges           int `json:"edges"`
	InlineConstants int `json:"inline_constants"`
	// Cycles is the number of strongly connected components with more
	// than one node.
	Cycles     int `json:"cycles"`
	LargestSCC int `json:"largest_scc"`
	SelfLoops  int `json:"self_loops"`
	// Central lists the most referenced definitions by PageRank.
	Central []Rank `json:"central,omitempty"`
}

// Rank is a node with its PageRank score.
type Rank struct {
	Node  *Node   `json:"-"`
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

const centralLimit = 5

// Stats computes node, edge and cycle counts over the may-define relation.
func (g *Graph) Stats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	st := Stats{Starts: len(g.starts)}
	dg := simple.NewDirectedGraph()
	add := func(id ID) {
		if dg.Node(int64(id)) == nil {
			dg.AddNode(simple.Node(int64(id)))
		}
	}
	for _, s := range g.starts {
		add(s.id)
	}
	for use, byAlias := range g.uses {
		add(use)
		for _, bm := range byAlias {
			st.Edges += int(bm.GetCardinality())
			it := bm.Iterator()
			for it.HasNext() {
				def := ID(it.Next())
				add(def)
				if def == use {
					st.SelfLoops++
					continue
				}
				dg.SetEdge(simple.Edge{F: simple.Node(int64(use)), T: simple.Node(int64(def))})
			}
		}
	}
	for use, m := range g.inline {
		add(use)
		st.InlineConstants += len(m)
	}
	st.Nodes = dg.Nodes().Len()

	for _, scc := range topo.TarjanSCC(dg) {
		if len(scc) > 1 {
			st.Cycles++
		}
		if len(scc) > st.LargestSCC {
			st.LargestSCC = len(scc)
		}
	}

	if st.Edges > 0 {
		for id, score := range network.PageRank(dg, 0.85, 1e-6) {
			n := g.arena.Node(ID(id))
			if n == nil || n.kind.IsStart() {
				continue
			}
			st.Central = append(st.Central, Rank{Node: n, Text: n.String(), Score: score})
		}
		sort.Slice(st.Central, func(i, j int) bool {
			if st.Central[i].Score != st.Central[j].Score {
				return st.Central[i].Score > st.Central[j].Score
			}
			return st.Central[i].Node.id < st.Central[j].Node.id
		})
		if len(st.Central) > centralLimit {
			st.Central = st.Central[:centralLimit]
		}
	}
	return st
}
