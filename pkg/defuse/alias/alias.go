// Package alias assigns run-global numeric names to local variables so
// that statement text does not depend on the names a compiler picked.
//
// Every concrete local of every method receives a distinct "$z{N}" alias
// in one deterministic pass (methods in signature order, locals in
// declaration order). Inline constants receive "$c{N}" aliases drawn from
// the same counter after initialization.
package alias

import (
	"strconv"
	"sync"

	"github.com/panbanda/acminer/pkg/defuse/fault"
	"github.com/panbanda/acminer/pkg/ir"
)

// Alias is either a *Local or an InlineConstant.
type Alias interface {
	String() string
	Num() int
	isAlias()
}

// Local is the alias of one local variable of one method.
type Local struct {
	num    int
	name   string
	method string
	v      *ir.Local
}

func (l *Local) String() string { return "$z{" + strconv.Itoa(l.num) + "}" }

// Num returns the numeric id.
func (l *Local) Num() int { return l.num }

// Name returns the local's name in the analyzed program.
func (l *Local) Name() string { return l.name }

// Method returns the signature of the owning method.
func (l *Local) Method() string { return l.method }

// Var returns the aliased local.
func (l *Local) Var() *ir.Local { return l.v }

func (*Local) isAlias() {}

// InlineConstant is the alias of a constant written directly into a
// statement.
type InlineConstant struct{ num int }

// NewInlineConstant rebuilds an inline-constant alias from its number.
func NewInlineConstant(num int) InlineConstant { return InlineConstant{num: num} }

func (c InlineConstant) String() string { return "$c{" + strconv.Itoa(c.num) + "}" }

// Num returns the numeric id.
func (c InlineConstant) Num() int { return c.num }

func (InlineConstant) isAlias() {}

// Compare orders local aliases before inline-constant aliases and then
// by number.
func Compare(a, b Alias) int {
	_, ai := a.(InlineConstant)
	_, bi := b.(InlineConstant)
	if ai != bi {
		if ai {
			return 1
		}
		return -1
	}
	switch {
	case a.Num() < b.Num():
		return -1
	case a.Num() > b.Num():
		return 1
	}
	return 0
}

type nameKey struct {
	method string
	name   string
}

// Registry hands out aliases. The zero value is not usable; call
// NewRegistry.
type Registry struct {
	mu          sync.RWMutex
	initialized bool
	next        int
	byVar       map[*ir.Local]*Local
	byName      map[nameKey]*Local
}

// NewRegistry returns an empty, uninitialized registry.
func NewRegistry() *Registry {
	r := &Registry{}
	r.clear()
	return r
}

func (r *Registry) clear() {
	r.initialized = false
	r.next = 0
	r.byVar = make(map[*ir.Local]*Local)
	r.byName = make(map[nameKey]*Local)
}

// Init assigns an alias to every local of every method of p. Only the
// first call after construction or Reset does any work; concurrent
// callers block until it finishes. onMethod, when non-nil, is invoked
// once per method visited.
func (r *Registry) Init(p *ir.Program, onMethod func(*ir.Method)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.initialized {
		return
	}
	for _, m := range p.Methods() {
		for _, v := range m.Body.Locals {
			a := &Local{num: r.next, name: v.Name, method: m.Signature, v: v}
			r.next++
			r.byVar[v] = a
			r.byName[nameKey{m.Signature, v.Name}] = a
		}
		if onMethod != nil {
			onMethod(m)
		}
	}
	r.initialized = true
}

// Initialized reports whether Init has completed.
func (r *Registry) Initialized() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.initialized
}

// Get returns the alias of v in m, or nil when the registry is not
// initialized or v is unknown.
func (r *Registry) Get(v *ir.Local, m *ir.Method) *Local {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a := r.byVar[v]
	if a == nil || (m != nil && a.method != m.Signature) {
		return nil
	}
	return a
}

// Lookup returns the alias of the local called name in the method with
// signature method, or nil.
func (r *Registry) Lookup(method, name string) *Local {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byName[nameKey{method, name}]
}

// AllocateInlineConstant draws the next number from the shared counter.
func (r *Registry) AllocateInlineConstant() (InlineConstant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.initialized {
		return InlineConstant{}, &fault.StmtError{Kind: fault.ErrNotInitialized, Detail: "alias registry"}
	}
	c := InlineConstant{num: r.next}
	r.next++
	return c, nil
}

// Reserve advances the counter to at least n so that numbers below n are
// never handed out again.
func (r *Registry) Reserve(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n > r.next {
		r.next = n
	}
}

// Next returns the number the next allocation would receive.
func (r *Registry) Next() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.next
}

// Len returns the number of local aliases.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byVar)
}

// Reset drops every alias and returns the registry to its uninitialized
// state.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clear()
}
