// Package defuse interns definition-use graph nodes and builds the
// per-entry-point graphs that relate each use of a local to the
// statements that may define it.
package defuse

import (
	"fmt"

	"github.com/panbanda/acminer/pkg/defuse/ident"
	"github.com/panbanda/acminer/pkg/ir"
)

// ID is the dense handle of an interned node. IDs are assigned in
// interning order starting at 0 and are only meaningful within the arena
// that issued them.
type ID uint32

// Kind is the closed set of node variants.
type Kind int

const (
	KindStart Kind = iota
	KindInvokeStart
	KindFieldStart
	KindLeaf
	KindInvokeLeaf
	KindFieldLeaf
	KindInvokeConstantLeaf
	KindInlineConstantLeaf
	KindInterior
	KindInvokeInterior
	KindFieldInterior
)

var kindNames = [...]string{
	KindStart:              "start",
	KindInvokeStart:        "invoke_start",
	KindFieldStart:         "field_start",
	KindLeaf:               "leaf",
	KindInvokeLeaf:         "invoke_leaf",
	KindFieldLeaf:          "field_leaf",
	KindInvokeConstantLeaf: "invoke_constant_leaf",
	KindInlineConstantLeaf: "inline_constant_leaf",
	KindInterior:           "interior",
	KindInvokeInterior:     "invoke_interior",
	KindFieldInterior:      "field_interior",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, bool) {
	for i, n := range kindNames {
		if n == s {
			return Kind(i), true
		}
	}
	return 0, false
}

// IsStart reports whether k is one of the start variants.
func (k Kind) IsStart() bool {
	return k == KindStart || k == KindInvokeStart || k == KindFieldStart
}

// IsLeaf reports whether nodes of kind k never have children.
func (k Kind) IsLeaf() bool {
	switch k {
	case KindLeaf, KindInvokeLeaf, KindFieldLeaf, KindInvokeConstantLeaf, KindInlineConstantLeaf:
		return true
	}
	return false
}

// IsInvoke reports whether k carries a call target.
func (k Kind) IsInvoke() bool {
	return k == KindInvokeStart || k == KindInvokeLeaf || k == KindInvokeInterior
}

// IsField reports whether k carries a resolved field.
func (k Kind) IsField() bool {
	return k == KindFieldStart || k == KindFieldLeaf || k == KindFieldInterior
}

// Node is an interned statement occurrence. Nodes are immutable and are
// only created by an Arena.
type Node struct {
	id     ID
	kind   Kind
	method *ir.Method
	stmt   ir.Stmt
	target *ir.Method
	field  *ir.FieldRef
	index  int
	base   *Node
	keep   bool
	ident  *ident.Identifier
}

func (n *Node) ID() ID                        { return n.id }
func (n *Node) Kind() Kind                    { return n.kind }
func (n *Node) Method() *ir.Method            { return n.method }
func (n *Node) Stmt() ir.Stmt                 { return n.stmt }
func (n *Node) Target() *ir.Method            { return n.target }
func (n *Node) KeepReceiver() bool            { return n.keep }
func (n *Node) Identifier() *ident.Identifier { return n.ident }

// Field returns the resolved field of a field node.
func (n *Node) Field() (ir.FieldRef, bool) {
	if n.field == nil {
		return ir.FieldRef{}, false
	}
	return *n.field, true
}

// Index returns the call-argument index of an invoke-constant leaf or the
// part index of an inline-constant leaf, and -1 otherwise.
func (n *Node) Index() int { return n.index }

// Base returns the node an inline-constant leaf was cut from.
func (n *Node) Base() *Node { return n.base }

// Value returns the right operand of a definition statement, or nil.
func (n *Node) Value() ir.Value {
	if d, ok := n.stmt.(ir.DefinitionStmt); ok {
		return d.RightOp()
	}
	return nil
}

// String returns the rendered identifier.
func (n *Node) String() string { return n.ident.String() }

// key is the structural identity of a node.
type key struct {
	kind   Kind
	method *ir.Method
	stmt   ir.Stmt
	target *ir.Method
	field  string
	index  int
	keep   bool
}

func (n *Node) key() key {
	k := key{kind: n.kind, method: n.method, stmt: n.stmt, target: n.target, index: n.index, keep: n.keep}
	if n.field != nil {
		k.field = n.field.Signature()
	}
	return k
}

// less orders nodes by owning method, statement position, kind and ID.
func less(a, b *Node) bool {
	if a.method.Signature != b.method.Signature {
		return a.method.Signature < b.method.Signature
	}
	ai, bi := a.method.Body.IndexOf(a.stmt), b.method.Body.IndexOf(b.stmt)
	if ai != bi {
		return ai < bi
	}
	if a.kind != b.kind {
		return a.kind < b.kind
	}
	return a.id < b.id
}
