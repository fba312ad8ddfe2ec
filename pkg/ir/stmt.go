package ir

import (
	"sort"
)

// Stmt is a single three-address statement.
type Stmt interface {
	Print(p Printer)
	String() string
	// Uses returns every operand read by the statement in use-box order.
	// Duplicates are kept.
	Uses() []Value
	stmt()
}

// DefinitionStmt is a statement that assigns a value to its left operand.
type DefinitionStmt interface {
	Stmt
	LeftOp() Value
	RightOp() Value
}

// AssignStmt is "left = right".
type AssignStmt struct {
	Left  Value
	Right Value
}

func (s *AssignStmt) Print(p Printer) {
	s.Left.Print(p)
	p.Literal(" = ")
	s.Right.Print(p)
}
func (s *AssignStmt) String() string { return render(s) }
func (s *AssignStmt) Uses() []Value {
	out := s.Left.Uses()
	out = append(out, s.Right.Uses()...)
	return append(out, s.Right)
}
func (s *AssignStmt) LeftOp() Value  { return s.Left }
func (s *AssignStmt) RightOp() Value { return s.Right }
func (*AssignStmt) stmt()            {}

// IdentityStmt binds a local to the receiver, a parameter or an exception.
type IdentityStmt struct {
	Left  *Local
	Right IdentityRef
}

func (s *IdentityStmt) Print(p Printer) {
	s.Left.Print(p)
	p.Literal(" := ")
	s.Right.Print(p)
}
func (s *IdentityStmt) String() string { return render(s) }
func (s *IdentityStmt) Uses() []Value  { return []Value{s.Right} }
func (s *IdentityStmt) LeftOp() Value  { return s.Left }
func (s *IdentityStmt) RightOp() Value { return s.Right }
func (*IdentityStmt) stmt()            {}

// InvokeStmt is a call whose result is discarded.
type InvokeStmt struct{ Expr *InvokeExpr }

func (s *InvokeStmt) Print(p Printer) { s.Expr.Print(p) }
func (s *InvokeStmt) String() string  { return render(s) }
func (s *InvokeStmt) Uses() []Value   { return append(s.Expr.Uses(), s.Expr) }
func (*InvokeStmt) stmt()             {}

// IfStmt branches to Target when Cond holds.
type IfStmt struct {
	Cond   *BinopExpr
	Target string
}

func (s *IfStmt) Print(p Printer) {
	p.Literal("if ")
	s.Cond.Print(p)
	p.Literal(" goto " + s.Target)
}
func (s *IfStmt) String() string { return render(s) }
func (s *IfStmt) Uses() []Value  { return append(s.Cond.Uses(), s.Cond) }
func (*IfStmt) stmt()            {}

// SwitchStmt dispatches on Key. Case targets are not modelled.
type SwitchStmt struct {
	Key   Value
	Table bool
}

func (s *SwitchStmt) Print(p Printer) {
	if s.Table {
		p.Literal("tableswitch(")
	} else {
		p.Literal("lookupswitch(")
	}
	s.Key.Print(p)
	p.Literal(")")
}
func (s *SwitchStmt) String() string { return render(s) }
func (s *SwitchStmt) Uses() []Value  { return append(s.Key.Uses(), s.Key) }
func (*SwitchStmt) stmt()            {}

// ReturnStmt returns Op, or nothing when Op is nil.
type ReturnStmt struct{ Op Value }

func (s *ReturnStmt) Print(p Printer) {
	if s.Op == nil {
		p.Literal("return")
		return
	}
	p.Literal("return ")
	s.Op.Print(p)
}
func (s *ReturnStmt) String() string { return render(s) }
func (s *ReturnStmt) Uses() []Value {
	if s.Op == nil {
		return nil
	}
	return append(s.Op.Uses(), s.Op)
}
func (*ReturnStmt) stmt() {}

// GotoStmt jumps unconditionally.
type GotoStmt struct{ Target string }

func (s *GotoStmt) Print(p Printer) { p.Literal("goto " + s.Target) }
func (s *GotoStmt) String() string  { return render(s) }
func (s *GotoStmt) Uses() []Value   { return nil }
func (*GotoStmt) stmt()             {}

// ThrowStmt raises Op.
type ThrowStmt struct{ Op Value }

func (s *ThrowStmt) Print(p Printer) {
	p.Literal("throw ")
	s.Op.Print(p)
}
func (s *ThrowStmt) String() string { return render(s) }
func (s *ThrowStmt) Uses() []Value  { return append(s.Op.Uses(), s.Op) }
func (*ThrowStmt) stmt()            {}

// InvokeOf returns the call contained in s, or nil.
func InvokeOf(s Stmt) *InvokeExpr {
	switch x := s.(type) {
	case *InvokeStmt:
		return x.Expr
	case *AssignStmt:
		if ie, ok := x.Right.(*InvokeExpr); ok {
			return ie
		}
	}
	return nil
}

// FieldOf returns the field access contained in s, or nil.
func FieldOf(s Stmt) FieldAccess {
	as, ok := s.(*AssignStmt)
	if !ok {
		return nil
	}
	if fa, ok := as.Right.(FieldAccess); ok {
		return fa
	}
	if fa, ok := as.Left.(FieldAccess); ok {
		return fa
	}
	return nil
}

// IsBranch reports whether s is an if or switch statement.
func IsBranch(s Stmt) bool {
	switch s.(type) {
	case *IfStmt, *SwitchStmt:
		return true
	}
	return false
}

// Receiver returns the base object of the call or instance field access
// in s, or nil when there is none.
func Receiver(s Stmt) Value {
	if ie := InvokeOf(s); ie != nil {
		return ie.Base
	}
	if fa, ok := FieldOf(s).(*InstanceFieldRef); ok {
		return fa.Base
	}
	return nil
}

// OrderedUses returns the distinct operands of s sorted by kind name and
// then by rendered text. Indices into this list are stable across renames
// of unrelated locals and are what identifiers record.
func OrderedUses(s Stmt) []Value {
	seen := make(map[string]struct{})
	var out []Value
	for _, v := range s.Uses() {
		k := Kind(v) + "\x00" + v.String()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, v)
	}
	sort.SliceStable(out, func(i, j int) bool {
		ki, kj := Kind(out[i]), Kind(out[j])
		if ki != kj {
			return ki < kj
		}
		return out[i].String() < out[j].String()
	})
	return out
}

// LocalUses returns the distinct locals read by s. When keepReceiver is
// false the base object of a call or instance field access is left out.
func LocalUses(s Stmt, keepReceiver bool) []*Local {
	var skip Value
	if !keepReceiver {
		skip = Receiver(s)
	}
	seen := make(map[*Local]struct{})
	var out []*Local
	for _, v := range s.Uses() {
		l, ok := v.(*Local)
		if !ok || (skip != nil && v == skip) {
			continue
		}
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	return out
}
