package ident

import (
	"fmt"

	"github.com/panbanda/acminer/pkg/defuse/alias"
	"github.com/panbanda/acminer/pkg/defuse/fault"
	"github.com/panbanda/acminer/pkg/ir"
)

// AliasLookup finds an alias by persisted identity.
type AliasLookup interface {
	Lookup(method, name string) *alias.Local
}

// PartRecord is the serialized form of a Part.
type PartRecord struct {
	Kind   string `json:"kind"`
	Orig   string `json:"orig"`
	Cur    string `json:"cur"`
	Index  int    `json:"index"`
	Local  string `json:"local,omitempty"`
	Method string `json:"method,omitempty"`
}

// Records returns the serialized parts of id.
func (id *Identifier) Records() []PartRecord {
	out := make([]PartRecord, len(id.parts))
	for i, p := range id.parts {
		out[i] = PartRecord{
			Kind:   p.kind.String(),
			Orig:   p.orig,
			Cur:    p.cur,
			Index:  p.index,
			Local:  p.localName,
			Method: p.localMethod,
		}
	}
	return out
}

// Decode rebuilds an unbound identifier from records. Use ResolveAgainst
// to bind it to live code.
func Decode(recs []PartRecord) (*Identifier, error) {
	parts := make([]Part, len(recs))
	for i, r := range recs {
		k, ok := ParsePartKind(r.Kind)
		if !ok {
			return nil, fmt.Errorf("part %d: unknown kind %q", i, r.Kind)
		}
		if k.IsValue() && r.Index < 0 {
			return nil, fmt.Errorf("part %d: %s part has no use index", i, k)
		}
		if k == KindLocalAlias && (r.Local == "" || r.Method == "") {
			return nil, fmt.Errorf("part %d: local alias without local identity", i)
		}
		parts[i] = Part{
			kind:        k,
			orig:        r.Orig,
			cur:         r.Cur,
			index:       r.Index,
			localName:   r.Local,
			localMethod: r.Method,
		}
	}
	return newIdentifier(parts), nil
}

// ResolveAgainst binds every value part of id to the operand at its use
// slot in s and returns the bound copy. A part whose slot is out of range,
// holds the wrong kind of operand, or whose stored text differs from the
// operand is a fault.ErrResolveMismatch. Local alias parts are also
// matched against aliases.
func (id *Identifier) ResolveAgainst(m *ir.Method, s ir.Stmt, aliases AliasLookup) (*Identifier, error) {
	uses := ir.OrderedUses(s)
	parts := id.Parts()
	for i := range parts {
		p := &parts[i]
		if !p.kind.IsValue() {
			continue
		}
		mismatch := func(format string, args ...any) error {
			return fault.New(fault.ErrResolveMismatch, m.Signature, s.String(),
				"part %d (%s %q): %s", i, p.kind, p.orig, fmt.Sprintf(format, args...))
		}
		if p.index < 0 || p.index >= len(uses) {
			return nil, mismatch("use index %d out of range [0,%d)", p.index, len(uses))
		}
		v := uses[p.index]
		var ok bool
		switch p.kind {
		case KindMethodRef:
			ie, isInvoke := v.(*ir.InvokeExpr)
			ok = isInvoke && ie.Method.Signature() == p.orig
		case KindFieldRef:
			fa, isField := v.(ir.FieldAccess)
			ok = isField && fa.Ref().Signature() == p.orig
		case KindConstant:
			_, isConst := v.(ir.Constant)
			ok = isConst && v.String() == p.orig
		case KindIdentityRef:
			_, isRef := v.(ir.IdentityRef)
			ok = isRef && v.String() == p.orig
		case KindLocal:
			l, isLocal := v.(*ir.Local)
			ok = isLocal && l.Name == p.orig
		case KindLocalAlias:
			l, isLocal := v.(*ir.Local)
			ok = isLocal && l.Name == p.localName
			if ok && aliases != nil {
				a := aliases.Lookup(p.localMethod, p.localName)
				if a == nil || a.String() != p.orig {
					return nil, mismatch("alias of %s in %s is %v", p.localName, p.localMethod, a)
				}
				p.alias = a
			}
		}
		if !ok {
			return nil, mismatch("operand at index %d is %s %q", p.index, ir.Kind(v), v.String())
		}
		p.value = v
	}
	return newIdentifier(parts), nil
}

// Bound reports whether every value part of id carries a live operand.
func (id *Identifier) Bound() bool {
	for _, p := range id.parts {
		if p.kind.IsValue() && p.value == nil {
			return false
		}
	}
	return true
}
