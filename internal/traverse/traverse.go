// Package traverse builds one definition-use graph per entry point by
// walking the code reachable from it.
package traverse

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/sourcegraph/conc/pool"

	"github.com/panbanda/acminer/pkg/defuse"
	"github.com/panbanda/acminer/pkg/ir"
)

// DefaultWorkerMultiplier is applied to NumCPU when no worker count is set.
const DefaultWorkerMultiplier = 2

// Walker builds graphs over one program. It is safe for concurrent use;
// all graphs share the walker's arena.
type Walker struct {
	arena   *defuse.Arena
	program *ir.Program
	keep    bool
	follow  bool
	inline  bool
	workers int
	log     *slog.Logger
}

// Option configures a Walker.
type Option func(*Walker)

// WithKeepReceiver keeps call and field receivers as operands.
func WithKeepReceiver(keep bool) Option {
	return func(w *Walker) { w.keep = keep }
}

// WithFollowParameters controls whether parameters of methods other than
// the entry point are followed into their call sites. When disabled the
// parameter definition itself is the leaf.
func WithFollowParameters(follow bool) Option {
	return func(w *Walker) { w.follow = follow }
}

// WithInlineConstants controls whether constant operands get their own
// inline-constant leaves.
func WithInlineConstants(inline bool) Option {
	return func(w *Walker) { w.inline = inline }
}

// WithWorkers bounds the number of entry points built concurrently.
func WithWorkers(n int) Option {
	return func(w *Walker) {
		if n > 0 {
			w.workers = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Walker) {
		if l != nil {
			w.log = l
		}
	}
}

// New returns a walker over p. The arena's run is started on p if it has
// not been already.
func New(a *defuse.Arena, p *ir.Program, opts ...Option) (*Walker, error) {
	w := &Walker{
		arena:   a,
		program: p,
		follow:  true,
		inline:  true,
		workers: runtime.NumCPU() * DefaultWorkerMultiplier,
		log:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(w)
	}
	if err := a.BeginRun(p, nil); err != nil {
		return nil, err
	}
	return w, nil
}

// EntryError is the failure of one entry point.
type EntryError struct {
	Entry string
	Err   error
}

func (e EntryError) Error() string { return fmt.Sprintf("%s: %v", e.Entry, e.Err) }

func (e EntryError) Unwrap() error { return e.Err }

// EntryErrors aggregates the failures of a BuildAll call.
type EntryErrors []EntryError

func (e EntryErrors) Error() string {
	switch len(e) {
	case 0:
		return "no errors"
	case 1:
		return e[0].Error()
	}
	return fmt.Sprintf("%d entry points failed; first: %v", len(e), e[0])
}

// Result holds the graphs that were built, ordered by entry point, and
// the entry points that failed.
type Result struct {
	Graphs   []*defuse.Graph
	Failures EntryErrors
}

// Err returns the failures as one error, or nil.
func (r *Result) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	return r.Failures
}

// Graph returns the graph of entry, or nil.
func (r *Result) Graph(entry string) *defuse.Graph {
	for _, g := range r.Graphs {
		if g.Entry() == entry {
			return g
		}
	}
	return nil
}

// BuildAll builds every entry point on a bounded pool. A failing entry
// point does not stop the others. Progress is reported through the
// tracker in ctx, if any.
func (w *Walker) BuildAll(ctx context.Context, entries []string) *Result {
	tracker := TrackerFromContext(ctx)
	if tracker != nil {
		tracker.Add(len(entries))
	}

	res := &Result{}
	var mu sync.Mutex
	p := pool.New().WithMaxGoroutines(w.workers).WithContext(ctx)
	for _, entry := range entries {
		p.Go(func(ctx context.Context) error {
			defer func() {
				if tracker != nil {
					tracker.Tick(entry)
				}
			}()
			g, err := w.Build(ctx, entry)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				w.log.Warn("entry point failed", "entry", entry, "error", err)
				res.Failures = append(res.Failures, EntryError{Entry: entry, Err: err})
				return nil
			}
			res.Graphs = append(res.Graphs, g)
			return nil
		})
	}
	_ = p.Wait()

	sort.Slice(res.Graphs, func(i, j int) bool { return res.Graphs[i].Entry() < res.Graphs[j].Entry() })
	sort.Slice(res.Failures, func(i, j int) bool { return res.Failures[i].Entry < res.Failures[j].Entry })
	return res
}

// Build walks everything reachable from entry and returns its frozen
// graph.
func (w *Walker) Build(ctx context.Context, entry string) (*defuse.Graph, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m, ok := w.program.Method(entry)
	if !ok {
		return nil, fmt.Errorf("entry point %s has no body", entry)
	}
	r := &run{Walker: w, entry: m, reachable: w.reachable(m), seen: roaring.New()}

	var starts []*defuse.Node
	for _, rm := range r.methods() {
		for _, s := range rm.Body.Stmts {
			if !ir.IsBranch(s) {
				continue
			}
			n, err := w.arena.NewDef(rm, s, nil, w.keep)
			if err != nil {
				return nil, err
			}
			starts = append(starts, n)
		}
	}
	g, err := defuse.NewGraph(w.arena, entry, starts)
	if err != nil {
		return nil, err
	}
	r.graph = g

	for _, s := range g.Starts() {
		if err := r.visit(s); err != nil {
			return nil, err
		}
	}
	for len(r.stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n := r.stack[len(r.stack)-1]
		r.stack = r.stack[:len(r.stack)-1]
		if err := r.expand(n); err != nil {
			return nil, err
		}
	}
	g.Freeze()
	g.ResolveDefinitionStrings()

	w.log.Debug("graph built", "entry", entry, "methods", len(r.reachable), "starts", len(g.Starts()), "nodes", r.seen.GetCardinality())
	return g, nil
}

// reachable returns every method reachable from m over resolved calls.
func (w *Walker) reachable(m *ir.Method) map[*ir.Method]struct{} {
	out := map[*ir.Method]struct{}{m: {}}
	queue := []*ir.Method{m}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, s := range cur.Body.Stmts {
			ie := ir.InvokeOf(s)
			if ie == nil {
				continue
			}
			for _, t := range w.program.Resolve(ie) {
				if _, ok := out[t]; !ok {
					out[t] = struct{}{}
					queue = append(queue, t)
				}
			}
		}
	}
	return out
}

// run is the state of one Build call.
type run struct {
	*Walker
	entry     *ir.Method
	reachable map[*ir.Method]struct{}
	graph     *defuse.Graph
	seen      *roaring.Bitmap
	stack     []*defuse.Node
}

func (r *run) methods() []*ir.Method {
	out := make([]*ir.Method, 0, len(r.reachable))
	for m := range r.reachable {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Signature < out[j].Signature })
	return out
}

// visit records n the first time it is reached, attaching its inline
// constants and queueing it for expansion when it can have children.
func (r *run) visit(n *defuse.Node) error {
	if !r.seen.CheckedAdd(uint32(n.ID())) {
		return nil
	}
	if err := r.inlineConstants(n); err != nil {
		return err
	}
	if !n.Kind().IsLeaf() {
		r.stack = append(r.stack, n)
	}
	return nil
}

func (r *run) inlineConstants(n *defuse.Node) error {
	if !r.inline {
		return nil
	}
	switch n.Kind() {
	case defuse.KindInvokeConstantLeaf, defuse.KindInlineConstantLeaf:
		return nil
	case defuse.KindLeaf:
		if _, ok := n.Value().(ir.Constant); ok {
			return nil
		}
	}
	for _, idx := range n.Identifier().ConstantIndices() {
		leaf, err := r.arena.InlineConstant(n, idx)
		if err != nil {
			return err
		}
		if _, err := r.graph.AddInlineConstant(n, leaf); err != nil {
			return err
		}
	}
	return nil
}

// expand adds a child for every definition of every local n reads.
func (r *run) expand(n *defuse.Node) error {
	for _, l := range ir.LocalUses(n.Stmt(), n.KeepReceiver()) {
		for _, d := range r.defsOf(n.Method(), l) {
			children, err := r.nodesFor(d)
			if err != nil {
				return err
			}
			for _, c := range children {
				if err := r.graph.AddChildLocal(n, l, c); err != nil {
					return err
				}
				if err := r.visit(c); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// noArg marks a site that is not a constant call argument.
const noArg = -1

// site is a statement that may define a local. arg is the index of a
// constant call argument, or noArg.
type site struct {
	method *ir.Method
	stmt   ir.Stmt
	arg    int
}

type localKey struct {
	method *ir.Method
	local  *ir.Local
}

// defsOf returns the flow-insensitive definitions of l in m. Copies and
// casts of other locals are followed, and parameters of methods other
// than the entry point are followed into the arguments of every
// reachable call site.
func (r *run) defsOf(m *ir.Method, l *ir.Local) []site {
	visited := make(map[localKey]struct{})
	seen := make(map[site]struct{})
	var out []site
	add := func(s site) {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}

	var chase func(m *ir.Method, l *ir.Local)
	chase = func(m *ir.Method, l *ir.Local) {
		k := localKey{m, l}
		if _, ok := visited[k]; ok {
			return
		}
		visited[k] = struct{}{}
		for _, s := range m.Body.Stmts {
			d, ok := s.(ir.DefinitionStmt)
			if !ok || d.LeftOp() != ir.Value(l) {
				continue
			}
			switch rv := d.RightOp().(type) {
			case *ir.Local:
				chase(m, rv)
				continue
			case *ir.CastExpr:
				if src, ok := rv.Op.(*ir.Local); ok {
					chase(m, src)
					continue
				}
			case ir.ParameterRef:
				if !r.follow || m == r.entry {
					break
				}
				if sites := r.callers(m); len(sites) > 0 {
					for _, cs := range sites {
						ie := ir.InvokeOf(cs.Stmt)
						if rv.Index >= len(ie.Args) {
							continue
						}
						switch arg := ie.Args[rv.Index].(type) {
						case *ir.Local:
							chase(cs.Caller, arg)
						case ir.Constant:
							add(site{cs.Caller, cs.Stmt, rv.Index})
						}
					}
					continue
				}
			}
			add(site{m, s, noArg})
		}
	}
	chase(m, l)
	return out
}

// callers returns the call sites of m inside the reachable set.
func (r *run) callers(m *ir.Method) []ir.CallSite {
	var out []ir.CallSite
	for _, cs := range r.program.Callers(m) {
		if _, ok := r.reachable[cs.Caller]; ok {
			out = append(out, cs)
		}
	}
	return out
}

// nodesFor interns the nodes a definition site stands for: one per
// resolved call target, or a single node otherwise.
func (r *run) nodesFor(d site) ([]*defuse.Node, error) {
	if d.arg != noArg {
		n, err := r.arena.NewConstArg(d.method, d.stmt, d.arg)
		if err != nil {
			return nil, err
		}
		return []*defuse.Node{n}, nil
	}
	var targets []*ir.Method
	if ie := ir.InvokeOf(d.stmt); ie != nil {
		targets = r.program.Resolve(ie)
	}
	if len(targets) == 0 {
		n, err := r.arena.NewDef(d.method, d.stmt, nil, r.keep)
		if err != nil {
			return nil, err
		}
		return []*defuse.Node{n}, nil
	}
	out := make([]*defuse.Node, 0, len(targets))
	for _, t := range targets {
		n, err := r.arena.NewDef(d.method, d.stmt, t, r.keep)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}
