package defuse

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/panbanda/acminer/pkg/defuse/alias"
	"github.com/panbanda/acminer/pkg/defuse/fault"
	"github.com/panbanda/acminer/pkg/ir"
)

// ErrLeafUse is returned when a child is added below a leaf node.
var ErrLeafUse = errors.New("leaf nodes have no children")

// Graph is the definition-use graph of one entry point. Edges go from a
// use node through the alias of a local it reads to every node that may
// define that local.
type Graph struct {
	arena  *Arena
	entry  string
	starts []*Node

	mu     sync.RWMutex
	frozen bool
	uses   map[ID]map[*alias.Local]*roaring.Bitmap
	inline map[ID]map[alias.InlineConstant]ID

	defMu    sync.Mutex
	defToUse map[ID]map[ID]*defUses

	strMu   sync.Mutex
	strings map[ID][]string
}

type defUses struct {
	alias *alias.Local
	uses  *roaring.Bitmap
}

// NewGraph returns an empty graph for entry seeded with starts. Every
// start must be a start node of arena.
func NewGraph(arena *Arena, entry string, starts []*Node) (*Graph, error) {
	seen := make(map[ID]struct{}, len(starts))
	var ss []*Node
	for _, s := range starts {
		if !s.kind.IsStart() {
			return nil, fault.New(fault.ErrClassificationGap, s.method.Signature, s.stmt.String(),
				"%s node cannot seed a graph", s.kind)
		}
		if _, ok := seen[s.id]; ok {
			continue
		}
		seen[s.id] = struct{}{}
		ss = append(ss, s)
	}
	sort.Slice(ss, func(i, j int) bool { return less(ss[i], ss[j]) })
	return &Graph{
		arena:  arena,
		entry:  entry,
		starts: ss,
		uses:   make(map[ID]map[*alias.Local]*roaring.Bitmap),
		inline: make(map[ID]map[alias.InlineConstant]ID),
	}, nil
}

// Entry returns the entry point signature.
func (g *Graph) Entry() string { return g.entry }

// Arena returns the arena the graph's nodes live in.
func (g *Graph) Arena() *Arena { return g.arena }

// Starts returns the start nodes in source order.
func (g *Graph) Starts() []*Node { return append([]*Node(nil), g.starts...) }

// AddChild records that def may define the local aliased by a where use
// reads it.
func (g *Graph) AddChild(use *Node, a *alias.Local, def *Node) error {
	if use.kind.IsLeaf() {
		return fmt.Errorf("%w: %s node %q", ErrLeafUse, use.kind, use.String())
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.frozen {
		return fault.New(fault.ErrFrozen, use.method.Signature, use.stmt.String(), "add child %q", def.String())
	}
	byAlias := g.uses[use.id]
	if byAlias == nil {
		byAlias = make(map[*alias.Local]*roaring.Bitmap)
		g.uses[use.id] = byAlias
	}
	bm := byAlias[a]
	if bm == nil {
		bm = roaring.New()
		byAlias[a] = bm
	}
	bm.Add(uint32(def.id))
	return nil
}

// AddChildLocal is AddChild with the alias looked up for v in the method
// of use.
func (g *Graph) AddChildLocal(use *Node, v *ir.Local, def *Node) error {
	a := g.arena.aliases.Get(v, use.method)
	if a == nil {
		return fault.New(fault.ErrNotInitialized, use.method.Signature, use.stmt.String(), "no alias for local %s", v.Name)
	}
	return g.AddChild(use, a, def)
}

// AddInlineConstant allocates a fresh inline-constant alias and records
// leaf under it for use.
func (g *Graph) AddInlineConstant(use, leaf *Node) (alias.InlineConstant, error) {
	c, err := g.arena.aliases.AllocateInlineConstant()
	if err != nil {
		return alias.InlineConstant{}, err
	}
	return c, g.RestoreInlineConstant(use, c, leaf)
}

// RestoreInlineConstant records leaf under an already allocated alias.
func (g *Graph) RestoreInlineConstant(use *Node, c alias.InlineConstant, leaf *Node) error {
	if leaf.kind != KindInlineConstantLeaf {
		return fmt.Errorf("%s node %q is not an inline constant", leaf.kind, leaf.String())
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.frozen {
		return fault.New(fault.ErrFrozen, use.method.Signature, use.stmt.String(), "add inline constant %q", leaf.String())
	}
	m := g.inline[use.id]
	if m == nil {
		m = make(map[alias.InlineConstant]ID)
		g.inline[use.id] = m
	}
	m[c] = leaf.id
	return nil
}

// Freeze makes the graph read-only.
func (g *Graph) Freeze() {
	g.mu.Lock()
	g.frozen = true
	g.mu.Unlock()
}

// Frozen reports whether Freeze was called.
func (g *Graph) Frozen() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.frozen
}

// Reinterpret returns a frozen copy of g with every node re-interned under
// the given receiver policy. Edges through a local the reinterpreted use
// no longer reads are dropped, and nodes demoted to leaves lose their
// children. Switching to keep receivers cannot recover receiver
// definitions that were never traversed, so those slots stay unresolved.
func (g *Graph) Reinterpret(keepReceiver bool) (*Graph, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	starts := make([]*Node, 0, len(g.starts))
	for _, s := range g.starts {
		ns, err := g.arena.Reinterpret(s, keepReceiver)
		if err != nil {
			return nil, err
		}
		starts = append(starts, ns)
	}
	out, err := NewGraph(g.arena, g.entry, starts)
	if err != nil {
		return nil, err
	}

	for id, byAlias := range g.uses {
		use, err := g.arena.Reinterpret(g.arena.Node(id), keepReceiver)
		if err != nil {
			return nil, err
		}
		if use.kind.IsLeaf() {
			continue
		}
		reads := make(map[*ir.Local]struct{})
		for _, v := range ir.LocalUses(use.stmt, keepReceiver) {
			reads[v] = struct{}{}
		}
		for a, bm := range byAlias {
			if _, ok := reads[a.Var()]; !ok {
				continue
			}
			it := bm.Iterator()
			for it.HasNext() {
				def, err := g.arena.Reinterpret(g.arena.Node(ID(it.Next())), keepReceiver)
				if err != nil {
					return nil, err
				}
				if err := out.AddChild(use, a, def); err != nil {
					return nil, err
				}
			}
		}
	}

	for id, consts := range g.inline {
		use, err := g.arena.Reinterpret(g.arena.Node(id), keepReceiver)
		if err != nil {
			return nil, err
		}
		for c, leafID := range consts {
			leaf, err := g.arena.Reinterpret(g.arena.Node(leafID), keepReceiver)
			if err != nil {
				return nil, err
			}
			if err := out.RestoreInlineConstant(use, c, leaf); err != nil {
				return nil, err
			}
		}
	}
	out.Freeze()
	return out, nil
}

// Edge is one may-define relation.
type Edge struct {
	Alias *alias.Local
	Def   *Node
}

// Children returns the definitions recorded for use, ordered by alias and
// then by node ID.
func (g *Graph) Children(use *Node) []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.childrenLocked(use.id)
}

func (g *Graph) childrenLocked(id ID) []Edge {
	byAlias := g.uses[id]
	aliases := make([]*alias.Local, 0, len(byAlias))
	for a := range byAlias {
		aliases = append(aliases, a)
	}
	sort.Slice(aliases, func(i, j int) bool { return aliases[i].Num() < aliases[j].Num() })
	var out []Edge
	for _, a := range aliases {
		it := byAlias[a].Iterator()
		for it.HasNext() {
			out = append(out, Edge{Alias: a, Def: g.arena.Node(ID(it.Next()))})
		}
	}
	return out
}

// ChildNodes returns the distinct definitions recorded for use.
func (g *Graph) ChildNodes(use *Node) []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	all := roaring.New()
	for _, bm := range g.uses[use.id] {
		all.Or(bm)
	}
	out := make([]*Node, 0, all.GetCardinality())
	it := all.Iterator()
	for it.HasNext() {
		out = append(out, g.arena.Node(ID(it.Next())))
	}
	return out
}

// InlineConstant is an inline-constant leaf attached to a use.
type InlineConstant struct {
	Alias alias.InlineConstant
	Leaf  *Node
}

// InlineConstants returns the inline constants of use ordered by alias.
func (g *Graph) InlineConstants(use *Node) []InlineConstant {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []InlineConstant
	for c, id := range g.inline[use.id] {
		out = append(out, InlineConstant{Alias: c, Leaf: g.arena.Node(id)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Alias.Num() < out[j].Alias.Num() })
	return out
}

// Uses returns every node that has at least one child or inline constant,
// in ID order.
func (g *Graph) Uses() []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := roaring.New()
	for id := range g.uses {
		ids.Add(uint32(id))
	}
	for id := range g.inline {
		ids.Add(uint32(id))
	}
	out := make([]*Node, 0, ids.GetCardinality())
	it := ids.Iterator()
	for it.HasNext() {
		out = append(out, g.arena.Node(ID(it.Next())))
	}
	return out
}

// walk visits every node reachable from start once, calling visit with
// each node and its outgoing edges. The read lock must be held.
func (g *Graph) walk(start *Node, visit func(cur ID, edges []Edge)) {
	visited := roaring.New()
	stack := []ID{start.id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !visited.CheckedAdd(uint32(cur)) {
			continue
		}
		edges := g.childrenLocked(cur)
		visit(cur, edges)
		for i := len(edges) - 1; i >= 0; i-- {
			if d := edges[i].Def.id; !visited.Contains(uint32(d)) {
				stack = append(stack, d)
			}
		}
	}
}

// ComputeDefToUse builds, for every start, the map from each reachable
// definition to the alias it was first reached through and the uses that
// read it. The result is cached until InvalidateDefToUse.
func (g *Graph) ComputeDefToUse() {
	g.defMu.Lock()
	defer g.defMu.Unlock()
	if g.defToUse != nil {
		return
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[ID]map[ID]*defUses, len(g.starts))
	for _, s := range g.starts {
		m := make(map[ID]*defUses)
		g.walk(s, func(cur ID, edges []Edge) {
			for _, e := range edges {
				du := m[e.Def.id]
				if du == nil {
					du = &defUses{alias: e.Alias, uses: roaring.New()}
					m[e.Def.id] = du
				}
				du.uses.Add(uint32(cur))
			}
		})
		out[s.id] = m
	}
	g.defToUse = out
}

// InvalidateDefToUse drops the cached def-to-use index.
func (g *Graph) InvalidateDefToUse() {
	g.defMu.Lock()
	g.defToUse = nil
	g.defMu.Unlock()
}

// UsesOf returns the alias through which def was first reached from start
// and every node reachable from start that reads it.
func (g *Graph) UsesOf(start, def *Node) (*alias.Local, []*Node, bool) {
	g.ComputeDefToUse()
	g.defMu.Lock()
	var du *defUses
	if m := g.defToUse[start.id]; m != nil {
		du = m[def.id]
	}
	g.defMu.Unlock()
	if du == nil {
		return nil, nil, false
	}
	out := make([]*Node, 0, du.uses.GetCardinality())
	it := du.uses.Iterator()
	for it.HasNext() {
		out = append(out, g.arena.Node(ID(it.Next())))
	}
	return du.alias, out, true
}

// ResolveDefinitionStrings computes, for every start, the sorted distinct
// "alias = definition" strings reachable from it. The result is cached
// until InvalidateDefinitionStrings.
func (g *Graph) ResolveDefinitionStrings() {
	g.strMu.Lock()
	defer g.strMu.Unlock()
	if g.strings != nil {
		return
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[ID][]string, len(g.starts))
	for _, s := range g.starts {
		set := make(map[string]struct{})
		g.walk(s, func(_ ID, edges []Edge) {
			for _, e := range edges {
				set[e.Alias.String()+" = "+e.Def.String()] = struct{}{}
			}
		})
		defs := make([]string, 0, len(set))
		for d := range set {
			defs = append(defs, d)
		}
		sort.Strings(defs)
		out[s.id] = defs
	}
	g.strings = out
}

// InvalidateDefinitionStrings drops the cached definition strings.
func (g *Graph) InvalidateDefinitionStrings() {
	g.strMu.Lock()
	g.strings = nil
	g.strMu.Unlock()
}

// DefinitionStrings returns the definition strings of start.
func (g *Graph) DefinitionStrings(start *Node) []string {
	g.ResolveDefinitionStrings()
	g.strMu.Lock()
	defer g.strMu.Unlock()
	return append([]string(nil), g.strings[start.id]...)
}

// CountResolutions returns the number of distinct ways the values used
// by start can be resolved through its definitions.
func (g *Graph) CountResolutions(start *Node) *big.Int {
	return CountResolutions(start.String(), g.DefinitionStrings(start))
}

// String renders every start and its definition strings.
func (g *Graph) String() string {
	var sb strings.Builder
	for _, s := range g.starts {
		fmt.Fprintf(&sb, "Stmt: %s Source: %s\n", s.String(), s.method.Signature)
		for _, d := range g.DefinitionStrings(s) {
			sb.WriteString("  Def: ")
			sb.WriteString(d)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
