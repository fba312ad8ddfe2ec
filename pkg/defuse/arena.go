package defuse

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/panbanda/acminer/pkg/defuse/alias"
	"github.com/panbanda/acminer/pkg/defuse/fault"
	"github.com/panbanda/acminer/pkg/defuse/ident"
	"github.com/panbanda/acminer/pkg/ir"
)

// Request describes the statement occurrence to intern.
type Request struct {
	Method *ir.Method
	Stmt   ir.Stmt
	// Start forces the start family even for non-branch statements.
	Start bool
	// IsConstArg makes the request stand for the constant call argument
	// at index ConstArg of the call in Stmt.
	IsConstArg bool
	ConstArg   int
	// Target is the resolved callee of the call in Stmt, if any.
	Target *ir.Method
	// Field is the resolved declaration of the field in Stmt. When nil it
	// is looked up in the program.
	Field        *ir.FieldRef
	KeepReceiver bool
}

type copyKey struct {
	id   ID
	keep bool
}

type inlineKey struct {
	base ID
	part int
}

// Arena interns nodes for one analysis run. All methods are safe for
// concurrent use.
type Arena struct {
	log     *slog.Logger
	aliases *alias.Registry
	builder *ident.Builder

	runMu sync.Mutex

	mu      sync.Mutex
	program *ir.Program
	nodes   []*Node
	primary map[key]*Node
	copies  map[copyKey]*Node
	inline  map[inlineKey]*Node
}

// Option configures an Arena.
type Option func(*Arena)

// WithLogger sets the logger used for debug output.
func WithLogger(l *slog.Logger) Option {
	return func(a *Arena) {
		if l != nil {
			a.log = l
		}
	}
}

// WithRegistry shares an existing alias registry.
func WithRegistry(r *alias.Registry) Option {
	return func(a *Arena) {
		if r != nil {
			a.aliases = r
		}
	}
}

// NewArena returns an empty arena. BeginRun must be called before nodes
// can be interned.
func NewArena(opts ...Option) *Arena {
	a := &Arena{
		log:     slog.New(slog.DiscardHandler),
		aliases: alias.NewRegistry(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.builder = ident.NewBuilder(a.aliases)
	a.clear()
	return a
}

func (a *Arena) clear() {
	a.program = nil
	a.nodes = nil
	a.primary = make(map[key]*Node)
	a.copies = make(map[copyKey]*Node)
	a.inline = make(map[inlineKey]*Node)
}

// BeginRun binds the arena to p and assigns aliases to every local of p.
// Calling it again with the same program is a no-op. onMethod is passed
// to the alias registry and may be nil.
func (a *Arena) BeginRun(p *ir.Program, onMethod func(*ir.Method)) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()

	a.mu.Lock()
	cur := a.program
	a.mu.Unlock()
	if cur == p {
		return nil
	}
	if cur != nil {
		return fmt.Errorf("arena is bound to another program; reset it first")
	}

	a.aliases.Init(p, onMethod)

	a.mu.Lock()
	a.program = p
	a.mu.Unlock()
	a.log.Debug("arena run started", "methods", len(p.Methods()), "aliases", a.aliases.Len())
	return nil
}

// Reset drops every interned node and the alias registry.
func (a *Arena) Reset() {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	a.mu.Lock()
	a.clear()
	a.mu.Unlock()
	a.aliases.Reset()
}

// Aliases returns the registry shared by all nodes of the arena.
func (a *Arena) Aliases() *alias.Registry { return a.aliases }

// Program returns the program of the current run, or nil.
func (a *Arena) Program() *ir.Program {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.program
}

// NewStart interns a start node for s.
func (a *Arena) NewStart(m *ir.Method, s ir.Stmt, target *ir.Method, keepReceiver bool) (*Node, error) {
	return a.New(Request{Method: m, Stmt: s, Start: true, Target: target, KeepReceiver: keepReceiver})
}

// NewDef interns the node of a definition or branch statement.
func (a *Arena) NewDef(m *ir.Method, s ir.Stmt, target *ir.Method, keepReceiver bool) (*Node, error) {
	return a.New(Request{Method: m, Stmt: s, Target: target, KeepReceiver: keepReceiver})
}

// NewConstArg interns the leaf standing for constant argument index of
// the call in s.
func (a *Arena) NewConstArg(m *ir.Method, s ir.Stmt, index int) (*Node, error) {
	return a.New(Request{Method: m, Stmt: s, IsConstArg: true, ConstArg: index})
}

// New classifies the request and returns the single node for its key,
// creating it if needed.
func (a *Arena) New(req Request) (*Node, error) {
	if req.Method == nil || req.Stmt == nil {
		return nil, fmt.Errorf("request needs a method and a statement")
	}
	p := a.Program()
	if p == nil {
		return nil, fault.New(fault.ErrNotInitialized, req.Method.Signature, req.Stmt.String(), "arena has no active run")
	}
	kind, err := classify(req)
	if err != nil {
		return nil, err
	}

	n := &Node{kind: kind, method: req.Method, stmt: req.Stmt, index: -1, keep: req.KeepReceiver}
	switch {
	case kind.IsInvoke():
		n.target = req.Target
	case kind.IsField():
		f := req.Field
		if f == nil {
			resolved := p.Field(ir.FieldOf(req.Stmt).Ref())
			f = &resolved
		}
		n.field = f
	case kind == KindInvokeConstantLeaf:
		n.index = req.ConstArg
		n.keep = false
	}

	k := n.key()
	a.mu.Lock()
	existing := a.primary[k]
	a.mu.Unlock()
	if existing != nil {
		return existing, nil
	}

	if n.ident, err = a.render(n); err != nil {
		return nil, err
	}
	return a.insert(k, n), nil
}

// insert stores n under k unless another goroutine won the race.
func (a *Arena) insert(k key, n *Node) *Node {
	a.mu.Lock()
	defer a.mu.Unlock()
	if existing := a.primary[k]; existing != nil {
		return existing
	}
	n.id = ID(len(a.nodes))
	a.nodes = append(a.nodes, n)
	a.primary[k] = n
	a.log.Debug("interned node", "id", n.id, "kind", n.kind, "method", n.method.Signature, "text", n.ident.String())
	return n
}

func (a *Arena) render(n *Node) (*ident.Identifier, error) {
	switch {
	case n.kind == KindInvokeConstantLeaf:
		return a.builder.InvokeConstant(n.method, n.stmt, n.index)
	case n.kind.IsInvoke():
		return a.builder.Invoke(n.method, n.stmt, n.target, n.keep)
	case n.kind.IsField():
		return a.builder.Field(n.method, n.stmt, n.field, n.keep)
	default:
		return a.builder.Unit(n.method, n.stmt, n.keep)
	}
}

func classify(req Request) (Kind, error) {
	s := req.Stmt
	if req.Start || ir.IsBranch(s) {
		switch {
		case ir.InvokeOf(s) != nil:
			return KindInvokeStart, nil
		case ir.FieldOf(s) != nil:
			return KindFieldStart, nil
		}
		return KindStart, nil
	}
	if req.IsConstArg {
		if _, err := ident.ConstantArg(s, req.ConstArg); err != nil {
			return 0, fault.New(fault.ErrClassificationGap, req.Method.Signature, s.String(), "%v", err)
		}
		return KindInvokeConstantLeaf, nil
	}
	if _, ok := s.(ir.DefinitionStmt); !ok {
		return 0, fault.New(fault.ErrClassificationGap, req.Method.Signature, s.String(), "not a definition, branch or start")
	}
	hasLocals := len(ir.LocalUses(s, req.KeepReceiver)) > 0
	switch {
	case ir.InvokeOf(s) != nil && hasLocals:
		return KindInvokeInterior, nil
	case ir.InvokeOf(s) != nil:
		return KindInvokeLeaf, nil
	case ir.FieldOf(s) != nil && hasLocals:
		return KindFieldInterior, nil
	case ir.FieldOf(s) != nil:
		return KindFieldLeaf, nil
	case hasLocals:
		return KindInterior, nil
	}
	return KindLeaf, nil
}

// Reinterpret returns the node n would be under the given receiver
// policy. Call and field interiors whose only local operand was the
// receiver become the matching leaf kind.
func (a *Arena) Reinterpret(n *Node, keepReceiver bool) (*Node, error) {
	if n.keep == keepReceiver || n.kind == KindInvokeConstantLeaf {
		return n, nil
	}
	ck := copyKey{n.id, keepReceiver}
	a.mu.Lock()
	cached := a.copies[ck]
	a.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	var out *Node
	if n.kind == KindInlineConstantLeaf {
		base, err := a.Reinterpret(n.base, keepReceiver)
		if err != nil {
			return nil, err
		}
		part, err := matchConstantPart(n.base, base, n.index)
		if err != nil {
			return nil, err
		}
		if out, err = a.InlineConstant(base, part); err != nil {
			return nil, err
		}
	} else {
		c := &Node{kind: n.kind, method: n.method, stmt: n.stmt, target: n.target, field: n.field, index: n.index, keep: keepReceiver}
		if len(ir.LocalUses(n.stmt, keepReceiver)) == 0 {
			switch c.kind {
			case KindInvokeInterior:
				c.kind = KindInvokeLeaf
			case KindFieldInterior:
				c.kind = KindFieldLeaf
			}
		}
		k := c.key()
		a.mu.Lock()
		out = a.primary[k]
		a.mu.Unlock()
		if out == nil {
			var err error
			if c.ident, err = a.render(c); err != nil {
				return nil, err
			}
			out = a.insert(k, c)
		}
	}

	a.mu.Lock()
	if prev := a.copies[ck]; prev != nil {
		out = prev
	} else {
		a.copies[ck] = out
	}
	a.mu.Unlock()
	return out, nil
}

// matchConstantPart maps the constant at part index i of from to the part
// index of the same constant occurrence in to.
func matchConstantPart(from, to *Node, i int) (int, error) {
	occ := -1
	for j, idx := range from.ident.ConstantIndices() {
		if idx == i {
			occ = j
			break
		}
	}
	dst := to.ident.ConstantIndices()
	if occ < 0 || occ >= len(dst) {
		return 0, fault.New(fault.ErrOperandNotFound, from.method.Signature, from.stmt.String(),
			"constant part %d has no counterpart in %q", i, to.String())
	}
	return dst[occ], nil
}

// InlineConstant returns the leaf for the constant at part index part of
// base's identifier.
func (a *Arena) InlineConstant(base *Node, part int) (*Node, error) {
	if part < 0 || part >= base.ident.Len() || base.ident.Part(part).Kind() != ident.KindConstant {
		return nil, fault.New(fault.ErrOperandNotFound, base.method.Signature, base.stmt.String(),
			"part %d of %q is not a constant", part, base.String())
	}
	ik := inlineKey{base.id, part}
	a.mu.Lock()
	existing := a.inline[ik]
	a.mu.Unlock()
	if existing != nil {
		return existing, nil
	}

	n := &Node{
		kind:   KindInlineConstantLeaf,
		method: base.method,
		stmt:   base.stmt,
		index:  part,
		base:   base,
		keep:   base.keep,
		ident:  base.ident.Sub(part),
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if existing := a.inline[ik]; existing != nil {
		return existing, nil
	}
	n.id = ID(len(a.nodes))
	a.nodes = append(a.nodes, n)
	a.inline[ik] = n
	return n, nil
}

// Node returns the node with the given ID, or nil.
func (a *Arena) Node(id ID) *Node {
	a.mu.Lock()
	defer a.mu.Unlock()
	if int(id) >= len(a.nodes) {
		return nil
	}
	return a.nodes[id]
}

// Len returns the number of interned nodes.
func (a *Arena) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.nodes)
}

// Nodes returns every interned node in ID order.
func (a *Arena) Nodes() []*Node {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*Node(nil), a.nodes...)
}

// Collision is a set of distinct nodes that render to the same text.
type Collision struct {
	Text  string
	Nodes []*Node
}

// Collisions reports every rendered text shared by more than one node.
// Inline-constant leaves are skipped since they intentionally repeat the
// text of plain constants.
func (a *Arena) Collisions() []Collision {
	buckets := make(map[uint64]map[string][]*Node)
	for _, n := range a.Nodes() {
		if n.kind == KindInlineConstantLeaf {
			continue
		}
		h := n.ident.Hash()
		if buckets[h] == nil {
			buckets[h] = make(map[string][]*Node)
		}
		buckets[h][n.String()] = append(buckets[h][n.String()], n)
	}
	var out []Collision
	for _, byText := range buckets {
		for text, nodes := range byText {
			if len(nodes) > 1 {
				out = append(out, Collision{Text: text, Nodes: nodes})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Text < out[j].Text })
	return out
}
