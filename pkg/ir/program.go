package ir

import (
	"encoding/hex"
	"sort"
	"strings"

	"github.com/zeebo/blake3"
)

// Method is a concrete method with a body.
type Method struct {
	Ref       MethodRef
	Signature string
	Body      *Body
}

// Class returns the declaring class name.
func (m *Method) Class() string { return m.Ref.Class }

func (m *Method) String() string { return m.Signature }

// Body holds the declared locals and the statements of a method.
type Body struct {
	Locals []*Local
	Stmts  []Stmt

	byName map[string]*Local
	pos    map[Stmt]int
}

// NewBody indexes locals and statements for lookup.
func NewBody(locals []*Local, stmts []Stmt) *Body {
	b := &Body{
		Locals: locals,
		Stmts:  stmts,
		byName: make(map[string]*Local, len(locals)),
		pos:    make(map[Stmt]int, len(stmts)),
	}
	for _, l := range locals {
		b.byName[l.Name] = l
	}
	for i, s := range stmts {
		b.pos[s] = i
	}
	return b
}

// Local returns the declared local named name.
func (b *Body) Local(name string) (*Local, bool) {
	l, ok := b.byName[name]
	return l, ok
}

// IndexOf returns the position of s in the body, or -1.
func (b *Body) IndexOf(s Stmt) int {
	if i, ok := b.pos[s]; ok {
		return i
	}
	return -1
}

// FindStmt returns the first statement whose rendered text is text.
func (b *Body) FindStmt(text string) (Stmt, bool) {
	for _, s := range b.Stmts {
		if s.String() == text {
			return s, true
		}
	}
	return nil, false
}

// Program is the set of analyzed methods plus the dispatch facts needed
// to resolve calls and fields.
type Program struct {
	methods     []*Method
	bySig       map[string]*Method
	dispatch    map[string][]string
	fields      map[string]FieldRef
	entryPoints []string
	callers     map[*Method][]CallSite
}

// CallSite is a statement in Caller whose call may reach a given method.
type CallSite struct {
	Caller *Method
	Stmt   Stmt
}

// NewProgram builds a program from methods. dispatch maps a static call
// signature to its possible targets; calls with no entry resolve to the
// method of the same signature when one exists. fields maps a referenced
// field signature to its declaring field.
func NewProgram(methods []*Method, dispatch map[string][]string, fields map[string]FieldRef, entryPoints []string) *Program {
	p := &Program{
		methods:     append([]*Method(nil), methods...),
		bySig:       make(map[string]*Method, len(methods)),
		dispatch:    dispatch,
		fields:      fields,
		entryPoints: append([]string(nil), entryPoints...),
	}
	sort.Slice(p.methods, func(i, j int) bool { return p.methods[i].Signature < p.methods[j].Signature })
	for _, m := range p.methods {
		p.bySig[m.Signature] = m
	}
	p.callers = p.indexCallers()
	return p
}

// Methods returns all methods sorted by signature.
func (p *Program) Methods() []*Method { return p.methods }

// Method returns the method with the given signature.
func (p *Program) Method(sig string) (*Method, bool) {
	m, ok := p.bySig[sig]
	return m, ok
}

// EntryPoints returns the declared entry point signatures.
func (p *Program) EntryPoints() []string { return p.entryPoints }

// Resolve returns the concrete targets of a call, sorted by signature.
func (p *Program) Resolve(ie *InvokeExpr) []*Method {
	sig := ie.Method.Signature()
	targets, ok := p.dispatch[sig]
	if !ok {
		targets = []string{sig}
	}
	var out []*Method
	for _, t := range targets {
		if m, ok := p.bySig[t]; ok {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Signature < out[j].Signature })
	return out
}

// Field resolves a referenced field to its declaration.
func (p *Program) Field(f FieldRef) FieldRef {
	if r, ok := p.fields[f.Signature()]; ok {
		return r
	}
	return f
}

// Callers returns every call site whose resolved targets include m.
func (p *Program) Callers(m *Method) []CallSite { return p.callers[m] }

func (p *Program) indexCallers() map[*Method][]CallSite {
	out := make(map[*Method][]CallSite)
	for _, caller := range p.methods {
		for _, s := range caller.Body.Stmts {
			ie := InvokeOf(s)
			if ie == nil {
				continue
			}
			for _, t := range p.Resolve(ie) {
				out[t] = append(out[t], CallSite{Caller: caller, Stmt: s})
			}
		}
	}
	return out
}

// Fingerprint hashes the canonical text of every method body together
// with the dispatch and field facts.
func (p *Program) Fingerprint() string {
	h := blake3.New()
	for _, m := range p.methods {
		h.Write([]byte(m.Signature))
		h.Write([]byte("\n"))
		for _, l := range m.Body.Locals {
			h.Write([]byte(l.Name + ":" + string(l.Type) + "\n"))
		}
		for _, s := range m.Body.Stmts {
			h.Write([]byte(s.String()))
			h.Write([]byte("\n"))
		}
	}
	for _, k := range sortedKeys(p.dispatch) {
		h.Write([]byte(k + "->" + strings.Join(p.dispatch[k], ",") + "\n"))
	}
	for _, k := range sortedKeys(p.fields) {
		h.Write([]byte(k + "->" + p.fields[k].Signature() + "\n"))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
