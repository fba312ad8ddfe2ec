package ident

import (
	"fmt"
	"strconv"

	"github.com/panbanda/acminer/pkg/defuse/alias"
	"github.com/panbanda/acminer/pkg/defuse/fault"
	"github.com/panbanda/acminer/pkg/ir"
)

// AliasSource maps a live local to its alias.
type AliasSource interface {
	Get(v *ir.Local, m *ir.Method) *alias.Local
}

// Builder renders statements into finalized identifiers.
type Builder struct {
	aliases AliasSource
}

// NewBuilder returns a builder that converts locals through aliases.
func NewBuilder(aliases AliasSource) *Builder {
	return &Builder{aliases: aliases}
}

// Invoke renders the call in s as "[receiver.]target(args)". When target
// is nil or s has no call the statement is rendered as by Unit.
func (b *Builder) Invoke(m *ir.Method, s ir.Stmt, target *ir.Method, keepReceiver bool) (*Identifier, error) {
	ie := ir.InvokeOf(s)
	if ie == nil || target == nil {
		return b.Unit(m, s, keepReceiver)
	}
	var g Generator
	if keepReceiver && ie.Base != nil {
		ie.Base.Print(&g)
		g.Literal(".")
	}
	g.MethodRefResolved(target.Signature, ie.Method)
	printArgs(&g, ie)
	return b.finalize(m, s, g.Parts())
}

// Field renders the field access in s as "[base.]field" using the
// resolved declaration. When field is nil or s has no field access the
// statement is rendered as by Unit.
func (b *Builder) Field(m *ir.Method, s ir.Stmt, field *ir.FieldRef, keepReceiver bool) (*Identifier, error) {
	fa := ir.FieldOf(s)
	if fa == nil || field == nil {
		return b.Unit(m, s, keepReceiver)
	}
	var g Generator
	if inst, ok := fa.(*ir.InstanceFieldRef); ok && keepReceiver {
		inst.Base.Print(&g)
		g.Literal(".")
	}
	g.FieldRefResolved(*field, fa.Ref())
	return b.finalize(m, s, g.Parts())
}

// Unit renders s without target resolution. Calls and field accesses
// render as in Invoke and Field with the static reference, branches as
// "if(a op b)" and "switch(key)", other definitions as their right
// operand and anything else as the whole statement.
func (b *Builder) Unit(m *ir.Method, s ir.Stmt, keepReceiver bool) (*Identifier, error) {
	var g Generator
	if ie := ir.InvokeOf(s); ie != nil {
		if keepReceiver && ie.Base != nil {
			ie.Base.Print(&g)
			g.Literal(".")
		}
		g.MethodRef(ie.Method)
		printArgs(&g, ie)
	} else if fa := ir.FieldOf(s); fa != nil {
		if inst, ok := fa.(*ir.InstanceFieldRef); ok && keepReceiver {
			inst.Base.Print(&g)
			g.Literal(".")
		}
		g.FieldRef(fa.Ref())
	} else {
		switch x := s.(type) {
		case *ir.IfStmt:
			g.Literal("if(")
			x.Cond.Op1.Print(&g)
			g.Literal(" " + string(x.Cond.Op) + " ")
			x.Cond.Op2.Print(&g)
			g.Literal(")")
		case *ir.SwitchStmt:
			g.Literal("switch(")
			x.Key.Print(&g)
			g.Literal(")")
		case ir.DefinitionStmt:
			x.RightOp().Print(&g)
		default:
			s.Print(&g)
		}
	}
	return b.finalize(m, s, g.Parts())
}

// InvokeConstant renders the constant passed as argument index of the
// call in s.
func (b *Builder) InvokeConstant(m *ir.Method, s ir.Stmt, index int) (*Identifier, error) {
	c, err := ConstantArg(s, index)
	if err != nil {
		return nil, fault.New(fault.ErrOperandNotFound, m.Signature, s.String(), "%v", err)
	}
	var g Generator
	g.Constant(c)
	return b.finalize(m, s, g.Parts())
}

// Value renders a sub-expression v of s.
func (b *Builder) Value(m *ir.Method, s ir.Stmt, v ir.Value) (*Identifier, error) {
	var g Generator
	v.Print(&g)
	return b.finalize(m, s, g.Parts())
}

// ConstantArg returns the constant passed as argument index of the call
// in s.
func ConstantArg(s ir.Stmt, index int) (ir.Constant, error) {
	ie := ir.InvokeOf(s)
	if ie == nil {
		return nil, fmt.Errorf("statement has no call")
	}
	if index < 0 || index >= len(ie.Args) {
		return nil, fmt.Errorf("argument %d out of range", index)
	}
	c, ok := ie.Args[index].(ir.Constant)
	if !ok {
		return nil, fmt.Errorf("argument %d is not a constant", index)
	}
	return c, nil
}

func printArgs(g *Generator, ie *ir.InvokeExpr) {
	g.Literal("(")
	for i, a := range ie.Args {
		if i > 0 {
			g.Literal(", ")
		}
		a.Print(g)
	}
	g.Literal(")")
}

// finalize assigns use-slot indices and replaces locals with aliases.
func (b *Builder) finalize(m *ir.Method, s ir.Stmt, parts []Part) (*Identifier, error) {
	uses := ir.OrderedUses(s)
	for i := range parts {
		p := &parts[i]
		if !p.kind.IsValue() {
			continue
		}
		idx := findUse(uses, *p)
		if idx < 0 {
			return nil, fault.New(fault.ErrOperandNotFound, m.Signature, s.String(),
				"no operand for %s part %q", p.kind, p.orig)
		}
		p.index = idx
		p.value = uses[idx]
	}

	for i := range parts {
		p := &parts[i]
		if p.kind != KindLocal {
			continue
		}
		v := p.value.(*ir.Local)
		var a *alias.Local
		if b.aliases != nil {
			a = b.aliases.Get(v, m)
		}
		if a == nil {
			return nil, fault.New(fault.ErrNotInitialized, m.Signature, s.String(), "no alias for local %s", v.Name)
		}
		p.kind = KindLocalAlias
		p.orig = a.String()
		p.cur = a.String()
		p.localName = v.Name
		p.localMethod = m.Signature
		p.alias = a
	}
	return newIdentifier(parts), nil
}

// findUse locates the operand a value part was printed from. Call and
// field parts match the first operand with the same static reference.
func findUse(uses []ir.Value, p Part) int {
	for i, u := range uses {
		switch p.kind {
		case KindMethodRef:
			if ie, ok := u.(*ir.InvokeExpr); ok && ie.Method.Signature() == p.orig {
				return i
			}
		case KindFieldRef:
			if fa, ok := u.(ir.FieldAccess); ok && fa.Ref().Signature() == p.orig {
				return i
			}
		default:
			if sameValue(p.value, u) {
				return i
			}
		}
	}
	return -1
}

func sameValue(a, b ir.Value) bool {
	if l, ok := a.(*ir.Local); ok {
		return b == ir.Value(l)
	}
	return ir.Kind(a) == ir.Kind(b) && a.String() == b.String()
}

// PrimitiveConstant returns a single-part identifier for a number.
func PrimitiveConstant(n any) *Identifier {
	s := formatNumber(n)
	return newIdentifier([]Part{{kind: KindPrimitiveConstant, orig: s, cur: s, index: -1}})
}

// BooleanConstant renders n as true when it is 1 and false otherwise.
func BooleanConstant(n int64) *Identifier {
	cur := "false"
	if n == 1 {
		cur = "true"
	}
	return newIdentifier([]Part{{kind: KindPrimitiveConstant, orig: strconv.FormatInt(n, 10), cur: cur, index: -1}})
}

// CharConstant renders n as the character with that code point.
func CharConstant(n int64) *Identifier {
	return newIdentifier([]Part{{kind: KindPrimitiveConstant, orig: strconv.FormatInt(n, 10), cur: string(rune(n)), index: -1}})
}

// StringConstant returns a single-part identifier holding s verbatim.
func StringConstant(s string) *Identifier {
	return newIdentifier([]Part{{kind: KindStringConstant, orig: s, cur: s, index: -1}})
}

// Placeholder returns a single-part identifier standing for a value
// substituted later.
func Placeholder(s string) *Identifier {
	return newIdentifier([]Part{{kind: KindPlaceholder, orig: s, cur: s, index: -1}})
}

// Unknown returns a single-part identifier for a value that could not be
// determined.
func Unknown(s string) *Identifier {
	return newIdentifier([]Part{{kind: KindUnknown, orig: s, cur: s, index: -1}})
}

func formatNumber(n any) string {
	switch v := n.(type) {
	case int:
		return strconv.Itoa(v)
	case int8:
		return strconv.FormatInt(int64(v), 10)
	case int16:
		return strconv.FormatInt(int64(v), 10)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	default:
		return fmt.Sprint(n)
	}
}
