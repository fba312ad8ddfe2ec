package defuse

import (
	"math/big"
	"regexp"
	"strconv"
)

var (
	aliasUse = regexp.MustCompile(`\$z\{(\d+)\}`)
	defLine  = regexp.MustCompile(`^\$z\{(\d+)\}\s+=\s+(.+)$`)
)

// countNode is a producer or consumer in the resolution count. slots holds
// one candidate list per alias occurrence read by the node.
type countNode struct {
	slots [][]*countNode
	state int8
	w     *big.Int
}

const (
	unvisited int8 = iota
	onPath
	done
)

// CountResolutions returns how many distinct assignments of definitions to
// the alias uses of start exist. Every occurrence of "$z{N}" in start and
// in the right-hand side of a definition is a slot whose candidates are
// the definitions of N. A node with no slots weighs 1; otherwise its weight
// is the product over its slots of the summed candidate weights, where a
// slot without usable candidates counts as 1. A candidate that is still on
// the depth-first path weighs 1, which keeps cycles finite. Definitions
// not of the form "$z{N} = rhs" are ignored.
func CountResolutions(start string, defs []string) *big.Int {
	byAlias := make(map[int][]*countNode)
	type pending struct {
		n   *countNode
		rhs string
	}
	var producers []pending
	seen := make(map[string]struct{}, len(defs))
	for _, d := range defs {
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		m := defLine.FindStringSubmatch(d)
		if m == nil {
			continue
		}
		num, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		n := &countNode{}
		byAlias[num] = append(byAlias[num], n)
		producers = append(producers, pending{n, m[2]})
	}
	slotsOf := func(text string) [][]*countNode {
		var slots [][]*countNode
		for _, m := range aliasUse.FindAllStringSubmatch(text, -1) {
			num, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			slots = append(slots, byAlias[num])
		}
		return slots
	}
	for _, p := range producers {
		p.n.slots = slotsOf(p.rhs)
	}
	root := &countNode{slots: slotsOf(start)}

	for _, n := range postOrder(root) {
		n.w = weigh(n)
	}
	return root.w
}

// postOrder lists the nodes reachable from root children-first. Edges back
// to a node on the current path are not followed.
func postOrder(root *countNode) []*countNode {
	type frame struct {
		n          *countNode
		slot, cand int
	}
	var order []*countNode
	stack := []frame{{n: root}}
	root.state = onPath
	for len(stack) > 0 {
		f := &stack[len(stack)-1]
		if f.slot >= len(f.n.slots) {
			f.n.state = done
			order = append(order, f.n)
			stack = stack[:len(stack)-1]
			continue
		}
		cands := f.n.slots[f.slot]
		if f.cand >= len(cands) {
			f.slot++
			f.cand = 0
			continue
		}
		c := cands[f.cand]
		f.cand++
		if c.state == unvisited {
			c.state = onPath
			stack = append(stack, frame{n: c})
		}
	}
	return order
}

var one = big.NewInt(1)

// weigh folds the finished weights of n's candidates. A nil weight marks a
// candidate that was on the path when n was reached.
func weigh(n *countNode) *big.Int {
	w := big.NewInt(1)
	for _, slot := range n.slots {
		sum := new(big.Int)
		for _, c := range slot {
			if c.w == nil {
				sum.Add(sum, one)
				continue
			}
			sum.Add(sum, c.w)
		}
		if sum.Sign() == 0 {
			continue
		}
		w.Mul(w, sum)
	}
	return w
}

// CountAll counts the resolutions of every start of g.
func (g *Graph) CountAll() map[*Node]*big.Int {
	out := make(map[*Node]*big.Int, len(g.starts))
	for _, s := range g.starts {
		out[s] = g.CountResolutions(s)
	}
	return out
}
