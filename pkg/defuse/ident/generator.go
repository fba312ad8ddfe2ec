package ident

import (
	"strings"

	"github.com/panbanda/acminer/pkg/ir"
)

// Generator collects parts while a statement or value prints itself.
// Consecutive literals merge into one part.
type Generator struct {
	parts []Part
}

var _ ir.Printer = (*Generator)(nil)

func (g *Generator) Literal(s string) {
	if n := len(g.parts); n > 0 && g.parts[n-1].kind == KindLiteral {
		g.parts[n-1].orig += s
		g.parts[n-1].cur += s
		return
	}
	g.parts = append(g.parts, literalPart(s))
}

func (g *Generator) Local(l *ir.Local) {
	g.parts = append(g.parts, Part{kind: KindLocal, orig: l.Name, cur: l.Name, index: -1, value: l})
}

func (g *Generator) Constant(c ir.Constant) {
	cur := c.String()
	if _, ok := c.(ir.NullConstant); ok {
		cur = "NULL"
	}
	g.parts = append(g.parts, Part{kind: KindConstant, orig: c.String(), cur: cur, index: -1, value: c})
}

func (g *Generator) Type(t ir.Type) {
	g.parts = append(g.parts, Part{kind: KindType, orig: string(t), cur: string(t), index: -1})
}

func (g *Generator) MethodRef(m ir.MethodRef) {
	sig := m.Signature()
	g.parts = append(g.parts, Part{kind: KindMethodRef, orig: sig, cur: sig, index: -1})
}

// MethodRefResolved records a call reference whose rendered text is the
// signature of the concrete target.
func (g *Generator) MethodRefResolved(target string, m ir.MethodRef) {
	g.parts = append(g.parts, Part{kind: KindMethodRef, orig: m.Signature(), cur: target, index: -1})
}

func (g *Generator) FieldRef(f ir.FieldRef) {
	sig := f.Signature()
	g.parts = append(g.parts, Part{kind: KindFieldRef, orig: sig, cur: sig, index: -1})
}

// FieldRefResolved records a field reference rendered as the signature
// of the declaring field.
func (g *Generator) FieldRefResolved(target ir.FieldRef, f ir.FieldRef) {
	g.parts = append(g.parts, Part{kind: KindFieldRef, orig: f.Signature(), cur: target.Signature(), index: -1})
}

func (g *Generator) IdentityRef(r ir.IdentityRef) {
	s := r.String()
	g.parts = append(g.parts, Part{kind: KindIdentityRef, orig: s, cur: s, index: -1, value: r})
}

// Parts returns the collected parts and resets the generator.
func (g *Generator) Parts() []Part {
	out := g.parts
	g.parts = nil
	return out
}

func (g *Generator) String() string {
	var b strings.Builder
	for _, p := range g.parts {
		b.WriteString(p.cur)
	}
	return b.String()
}
