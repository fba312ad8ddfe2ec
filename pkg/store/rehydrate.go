package store

import (
	"fmt"
	"sort"

	"github.com/panbanda/acminer/pkg/defuse"
	"github.com/panbanda/acminer/pkg/defuse/alias"
	"github.com/panbanda/acminer/pkg/defuse/fault"
	"github.com/panbanda/acminer/pkg/defuse/ident"
	"github.com/panbanda/acminer/pkg/ir"
)

// Result holds the re-bound graphs and the entry points that could not
// be re-bound, both keyed by entry point signature.
type Result struct {
	Graphs   map[string]*defuse.Graph
	Failures map[string]error
	// Stale is set when the program fingerprint differs from the one the
	// document was written for.
	Stale bool
}

// Entries returns every entry point of the result in sorted order.
func (r *Result) Entries() []string {
	out := make([]string, 0, len(r.Graphs)+len(r.Failures))
	for e := range r.Graphs {
		out = append(out, e)
	}
	for e := range r.Failures {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

// Rehydrate re-binds every node of doc against p through arena and
// rebuilds the graphs. Each node is located by method signature and
// exact statement text, its identifier is re-bound with ResolveAgainst,
// and the node is interned again and compared with the stored one. A
// graph that references a node that cannot be re-bound fails as a whole;
// other graphs are unaffected.
func Rehydrate(doc *Document, p *ir.Program, arena *defuse.Arena) (*Result, error) {
	if err := arena.BeginRun(p, nil); err != nil {
		return nil, err
	}
	arena.Aliases().Reserve(doc.AliasNext)

	res := &Result{
		Graphs:   make(map[string]*defuse.Graph),
		Failures: make(map[string]error),
		Stale:    doc.Program != p.Fingerprint(),
	}

	recs := append([]NodeRecord(nil), doc.Nodes...)
	sort.Slice(recs, func(i, j int) bool { return recs[i].ID < recs[j].ID })
	nodes := make(map[int]*defuse.Node, len(recs))
	failed := make(map[int]error)
	for _, rec := range recs {
		n, err := rehydrateNode(rec, p, arena, nodes)
		if err != nil {
			failed[rec.ID] = err
			continue
		}
		nodes[rec.ID] = n
	}

	for _, gr := range doc.Graphs {
		g, err := rebuildGraph(gr, arena, nodes, failed)
		if err != nil {
			res.Failures[gr.Entry] = err
			continue
		}
		res.Graphs[gr.Entry] = g
	}
	return res, nil
}

func rehydrateNode(rec NodeRecord, p *ir.Program, arena *defuse.Arena, done map[int]*defuse.Node) (*defuse.Node, error) {
	mismatch := func(format string, args ...any) error {
		return fault.New(fault.ErrResolveMismatch, rec.Method, rec.Stmt, format, args...)
	}
	kind, ok := defuse.ParseKind(rec.Kind)
	if !ok {
		return nil, mismatch("unknown node kind %q", rec.Kind)
	}
	m, ok := p.Method(rec.Method)
	if !ok {
		return nil, mismatch("method not found")
	}
	s, ok := m.Body.FindStmt(rec.Stmt)
	if !ok {
		return nil, mismatch("statement not found")
	}
	stored, err := ident.Decode(rec.Identifier)
	if err != nil {
		return nil, mismatch("%v", err)
	}
	bound, err := stored.ResolveAgainst(m, s, arena.Aliases())
	if err != nil {
		return nil, err
	}

	var n *defuse.Node
	if kind == defuse.KindInlineConstantLeaf {
		if rec.Base == nil {
			return nil, mismatch("inline constant without base")
		}
		base := done[*rec.Base]
		if base == nil {
			return nil, mismatch("base node %d was not re-bound", *rec.Base)
		}
		if n, err = arena.InlineConstant(base, rec.Index); err != nil {
			return nil, err
		}
	} else {
		req := defuse.Request{
			Method:       m,
			Stmt:         s,
			Start:        kind.IsStart(),
			KeepReceiver: rec.KeepReceiver,
		}
		if kind == defuse.KindInvokeConstantLeaf {
			req.IsConstArg, req.ConstArg = true, rec.Index
		}
		if rec.Target != "" {
			if req.Target, ok = p.Method(rec.Target); !ok {
				return nil, mismatch("call target %s not found", rec.Target)
			}
		}
		if rec.Field != "" {
			f, err := ir.ParseFieldRef(rec.Field)
			if err != nil {
				return nil, mismatch("%v", err)
			}
			req.Field = &f
		}
		if n, err = arena.New(req); err != nil {
			return nil, err
		}
	}

	if n.Kind() != kind {
		return nil, mismatch("re-bound node is %s, stored %s", n.Kind(), kind)
	}
	if n.String() != bound.String() {
		return nil, mismatch("re-bound node renders %q, stored %q", n.String(), bound.String())
	}
	return n, nil
}

func rebuildGraph(gr GraphRecord, arena *defuse.Arena, nodes map[int]*defuse.Node, failed map[int]error) (*defuse.Graph, error) {
	get := func(id int) (*defuse.Node, error) {
		if err, ok := failed[id]; ok {
			return nil, err
		}
		n := nodes[id]
		if n == nil {
			return nil, fmt.Errorf("graph references unknown node %d", id)
		}
		return n, nil
	}

	starts := make([]*defuse.Node, 0, len(gr.Starts))
	for _, id := range gr.Starts {
		n, err := get(id)
		if err != nil {
			return nil, err
		}
		starts = append(starts, n)
	}
	g, err := defuse.NewGraph(arena, gr.Entry, starts)
	if err != nil {
		return nil, err
	}

	for _, e := range gr.Edges {
		use, err := get(e.Use)
		if err != nil {
			return nil, err
		}
		a := arena.Aliases().Lookup(e.Alias.Method, e.Alias.Local)
		if a == nil || a.Num() != e.Alias.Num {
			return nil, fault.New(fault.ErrResolveMismatch, e.Alias.Method, "",
				"alias of %s is %v, stored $z{%d}", e.Alias.Local, a, e.Alias.Num)
		}
		for _, id := range e.Defs {
			def, err := get(id)
			if err != nil {
				return nil, err
			}
			if err := g.AddChild(use, a, def); err != nil {
				return nil, err
			}
		}
	}
	for _, ic := range gr.Inline {
		use, err := get(ic.Use)
		if err != nil {
			return nil, err
		}
		leaf, err := get(ic.Leaf)
		if err != nil {
			return nil, err
		}
		if err := g.RestoreInlineConstant(use, alias.NewInlineConstant(ic.Alias), leaf); err != nil {
			return nil, err
		}
	}
	g.Freeze()
	return g, nil
}
