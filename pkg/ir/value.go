package ir

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Type is a rendered type name such as "int" or "com.example.Service".
type Type string

func (t Type) String() string { return string(t) }

// Value is any operand or expression that can appear in a statement.
type Value interface {
	// Print renders the value through p.
	Print(p Printer)
	// String renders the value in canonical text form.
	String() string
	// Uses returns the nested operands of the value in use-box order,
	// not including the value itself.
	Uses() []Value
}

// Kind returns the variant name of v. Use lists are sorted by this name
// before any text comparison.
func Kind(v Value) string {
	switch x := v.(type) {
	case *Local:
		return "Local"
	case IntConstant:
		return "IntConstant"
	case LongConstant:
		return "LongConstant"
	case FloatConstant:
		return "FloatConstant"
	case DoubleConstant:
		return "DoubleConstant"
	case StringConstant:
		return "StringConstant"
	case NullConstant:
		return "NullConstant"
	case ClassConstant:
		return "ClassConstant"
	case *InvokeExpr:
		return x.Kind.exprName()
	case *InstanceFieldRef:
		return "InstanceFieldRef"
	case *StaticFieldRef:
		return "StaticFieldRef"
	case *ArrayRef:
		return "ArrayRef"
	case *BinopExpr:
		return x.Op.exprName()
	case *CastExpr:
		return "CastExpr"
	case *InstanceOfExpr:
		return "InstanceOfExpr"
	case *NewExpr:
		return "NewExpr"
	case *NewArrayExpr:
		return "NewArrayExpr"
	case *LengthExpr:
		return "LengthExpr"
	case *NegExpr:
		return "NegExpr"
	case ThisRef:
		return "ThisRef"
	case ParameterRef:
		return "ParameterRef"
	case CaughtExceptionRef:
		return "CaughtExceptionRef"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// Local is a method-local variable. Locals are compared by pointer; two
// methods never share a *Local.
type Local struct {
	Name string
	Type Type
}

func (l *Local) Print(p Printer) { p.Local(l) }
func (l *Local) String() string  { return l.Name }
func (l *Local) Uses() []Value   { return nil }

// Constant is a literal operand.
type Constant interface {
	Value
	constant()
}

// IntConstant is a 32-bit integer literal. Booleans and chars are encoded
// as ints, as in bytecode.
type IntConstant struct{ V int32 }

// LongConstant is a 64-bit integer literal rendered with an L suffix.
type LongConstant struct{ V int64 }

// FloatConstant is a 32-bit float literal rendered with an F suffix.
type FloatConstant struct{ V float32 }

// DoubleConstant is a 64-bit float literal.
type DoubleConstant struct{ V float64 }

// StringConstant is a string literal rendered quoted.
type StringConstant struct{ V string }

// NullConstant is the null reference.
type NullConstant struct{}

// ClassConstant is a class literal holding a type descriptor.
type ClassConstant struct{ V string }

func (IntConstant) constant()    {}
func (LongConstant) constant()   {}
func (FloatConstant) constant()  {}
func (DoubleConstant) constant() {}
func (StringConstant) constant() {}
func (NullConstant) constant()   {}
func (ClassConstant) constant()  {}

func (c IntConstant) String() string  { return strconv.FormatInt(int64(c.V), 10) }
func (c LongConstant) String() string { return strconv.FormatInt(c.V, 10) + "L" }
func (c FloatConstant) String() string {
	return formatFloat(float64(c.V), 32) + "F"
}
func (c DoubleConstant) String() string { return formatFloat(c.V, 64) }
func (c StringConstant) String() string { return strconv.Quote(c.V) }
func (NullConstant) String() string     { return "null" }
func (c ClassConstant) String() string  { return "class " + strconv.Quote(c.V) }

func formatFloat(f float64, bits int) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	s := strconv.FormatFloat(f, 'g', -1, bits)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

func (c IntConstant) Print(p Printer)    { p.Constant(c) }
func (c LongConstant) Print(p Printer)   { p.Constant(c) }
func (c FloatConstant) Print(p Printer)  { p.Constant(c) }
func (c DoubleConstant) Print(p Printer) { p.Constant(c) }
func (c StringConstant) Print(p Printer) { p.Constant(c) }
func (c NullConstant) Print(p Printer)   { p.Constant(c) }
func (c ClassConstant) Print(p Printer)  { p.Constant(c) }

func (IntConstant) Uses() []Value    { return nil }
func (LongConstant) Uses() []Value   { return nil }
func (FloatConstant) Uses() []Value  { return nil }
func (DoubleConstant) Uses() []Value { return nil }
func (StringConstant) Uses() []Value { return nil }
func (NullConstant) Uses() []Value   { return nil }
func (ClassConstant) Uses() []Value  { return nil }

// IsNumeric reports whether c is a primitive numeric constant.
func IsNumeric(c Constant) bool {
	switch c.(type) {
	case IntConstant, LongConstant, FloatConstant, DoubleConstant:
		return true
	}
	return false
}

// IdentityRef is the right operand of an identity statement.
type IdentityRef interface {
	Value
	identity()
}

// ThisRef is the implicit receiver parameter.
type ThisRef struct{ Type Type }

// ParameterRef is the Index-th declared parameter.
type ParameterRef struct {
	Index int
	Type  Type
}

// CaughtExceptionRef is the exception bound at a handler.
type CaughtExceptionRef struct{}

func (ThisRef) identity()            {}
func (ParameterRef) identity()       {}
func (CaughtExceptionRef) identity() {}

func (r ThisRef) String() string { return "@this: " + string(r.Type) }
func (r ParameterRef) String() string {
	return "@parameter" + strconv.Itoa(r.Index) + ": " + string(r.Type)
}
func (CaughtExceptionRef) String() string { return "@caughtexception" }

func (r ThisRef) Print(p Printer)            { p.IdentityRef(r) }
func (r ParameterRef) Print(p Printer)       { p.IdentityRef(r) }
func (r CaughtExceptionRef) Print(p Printer) { p.IdentityRef(r) }

func (ThisRef) Uses() []Value            { return nil }
func (ParameterRef) Uses() []Value       { return nil }
func (CaughtExceptionRef) Uses() []Value { return nil }

// InvokeKind distinguishes dispatch flavours.
type InvokeKind int

const (
	InvokeStatic InvokeKind = iota
	InvokeVirtual
	InvokeSpecial
	InvokeInterface
)

var invokeKeywords = map[InvokeKind]string{
	InvokeStatic:    "staticinvoke",
	InvokeVirtual:   "virtualinvoke",
	InvokeSpecial:   "specialinvoke",
	InvokeInterface: "interfaceinvoke",
}

func (k InvokeKind) String() string { return invokeKeywords[k] }

func (k InvokeKind) exprName() string {
	switch k {
	case InvokeVirtual:
		return "VirtualInvokeExpr"
	case InvokeSpecial:
		return "SpecialInvokeExpr"
	case InvokeInterface:
		return "InterfaceInvokeExpr"
	default:
		return "StaticInvokeExpr"
	}
}

// InvokeExpr is a method call. Base is nil for static calls.
type InvokeExpr struct {
	Kind   InvokeKind
	Base   Value
	Method MethodRef
	Args   []Value
}

func (e *InvokeExpr) Print(p Printer) {
	p.Literal(e.Kind.String() + " ")
	if e.Base != nil {
		e.Base.Print(p)
		p.Literal(".")
	}
	p.MethodRef(e.Method)
	p.Literal("(")
	for i, a := range e.Args {
		if i > 0 {
			p.Literal(", ")
		}
		a.Print(p)
	}
	p.Literal(")")
}

func (e *InvokeExpr) String() string { return render(e) }

func (e *InvokeExpr) Uses() []Value {
	var out []Value
	for _, a := range e.Args {
		out = append(out, a.Uses()...)
		out = append(out, a)
	}
	if e.Base != nil {
		out = append(out, e.Base.Uses()...)
		out = append(out, e.Base)
	}
	return out
}

// FieldAccess is implemented by instance and static field references.
type FieldAccess interface {
	Value
	Ref() FieldRef
}

// InstanceFieldRef reads or writes a field through Base.
type InstanceFieldRef struct {
	Base  Value
	Field FieldRef
}

func (r *InstanceFieldRef) Print(p Printer) {
	r.Base.Print(p)
	p.Literal(".")
	p.FieldRef(r.Field)
}
func (r *InstanceFieldRef) String() string { return render(r) }
func (r *InstanceFieldRef) Uses() []Value  { return append(r.Base.Uses(), r.Base) }
func (r *InstanceFieldRef) Ref() FieldRef  { return r.Field }

// StaticFieldRef reads or writes a static field.
type StaticFieldRef struct{ Field FieldRef }

func (r *StaticFieldRef) Print(p Printer) { p.FieldRef(r.Field) }
func (r *StaticFieldRef) String() string  { return render(r) }
func (r *StaticFieldRef) Uses() []Value   { return nil }
func (r *StaticFieldRef) Ref() FieldRef   { return r.Field }

// ArrayRef indexes into an array.
type ArrayRef struct {
	Base  Value
	Index Value
}

func (r *ArrayRef) Print(p Printer) {
	r.Base.Print(p)
	p.Literal("[")
	r.Index.Print(p)
	p.Literal("]")
}
func (r *ArrayRef) String() string { return render(r) }
func (r *ArrayRef) Uses() []Value {
	out := append(r.Base.Uses(), r.Base)
	out = append(out, r.Index.Uses()...)
	return append(out, r.Index)
}

// BinaryOp is the operator of a binary expression.
type BinaryOp string

const (
	OpAdd  BinaryOp = "+"
	OpSub  BinaryOp = "-"
	OpMul  BinaryOp = "*"
	OpDiv  BinaryOp = "/"
	OpRem  BinaryOp = "%"
	OpAnd  BinaryOp = "&"
	OpOr   BinaryOp = "|"
	OpXor  BinaryOp = "^"
	OpShl  BinaryOp = "<<"
	OpShr  BinaryOp = ">>"
	OpUshr BinaryOp = ">>>"
	OpCmp  BinaryOp = "cmp"
	OpCmpl BinaryOp = "cmpl"
	OpCmpg BinaryOp = "cmpg"
	OpEq   BinaryOp = "=="
	OpNe   BinaryOp = "!="
	OpLt   BinaryOp = "<"
	OpLe   BinaryOp = "<="
	OpGt   BinaryOp = ">"
	OpGe   BinaryOp = ">="
)

var binopNames = map[BinaryOp]string{
	OpAdd: "AddExpr", OpSub: "SubExpr", OpMul: "MulExpr", OpDiv: "DivExpr",
	OpRem: "RemExpr", OpAnd: "AndExpr", OpOr: "OrExpr", OpXor: "XorExpr",
	OpShl: "ShlExpr", OpShr: "ShrExpr", OpUshr: "UshrExpr", OpCmp: "CmpExpr",
	OpCmpl: "CmplExpr", OpCmpg: "CmpgExpr", OpEq: "EqExpr", OpNe: "NeExpr",
	OpLt: "LtExpr", OpLe: "LeExpr", OpGt: "GtExpr", OpGe: "GeExpr",
}

func (o BinaryOp) exprName() string { return binopNames[o] }

// IsCondition reports whether o is a comparison usable in an if statement.
func (o BinaryOp) IsCondition() bool {
	switch o {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
		return true
	}
	return false
}

// BinopExpr applies Op to two immediates.
type BinopExpr struct {
	Op  BinaryOp
	Op1 Value
	Op2 Value
}

func (e *BinopExpr) Print(p Printer) {
	e.Op1.Print(p)
	p.Literal(" " + string(e.Op) + " ")
	e.Op2.Print(p)
}
func (e *BinopExpr) String() string { return render(e) }
func (e *BinopExpr) Uses() []Value {
	out := append(e.Op1.Uses(), e.Op1)
	out = append(out, e.Op2.Uses()...)
	return append(out, e.Op2)
}

// CastExpr converts Op to Type.
type CastExpr struct {
	Type Type
	Op   Value
}

func (e *CastExpr) Print(p Printer) {
	p.Literal("(")
	p.Type(e.Type)
	p.Literal(") ")
	e.Op.Print(p)
}
func (e *CastExpr) String() string { return render(e) }
func (e *CastExpr) Uses() []Value  { return append(e.Op.Uses(), e.Op) }

// InstanceOfExpr tests Op against Type.
type InstanceOfExpr struct {
	Op   Value
	Type Type
}

func (e *InstanceOfExpr) Print(p Printer) {
	e.Op.Print(p)
	p.Literal(" instanceof ")
	p.Type(e.Type)
}
func (e *InstanceOfExpr) String() string { return render(e) }
func (e *InstanceOfExpr) Uses() []Value  { return append(e.Op.Uses(), e.Op) }

// NewExpr allocates an instance of Type.
type NewExpr struct{ Type Type }

func (e *NewExpr) Print(p Printer) {
	p.Literal("new ")
	p.Type(e.Type)
}
func (e *NewExpr) String() string { return render(e) }
func (e *NewExpr) Uses() []Value  { return nil }

// NewArrayExpr allocates an array of Size elements of Type.
type NewArrayExpr struct {
	Type Type
	Size Value
}

func (e *NewArrayExpr) Print(p Printer) {
	p.Literal("newarray (")
	p.Type(e.Type)
	p.Literal(")[")
	e.Size.Print(p)
	p.Literal("]")
}
func (e *NewArrayExpr) String() string { return render(e) }
func (e *NewArrayExpr) Uses() []Value  { return append(e.Size.Uses(), e.Size) }

// LengthExpr reads the length of an array.
type LengthExpr struct{ Op Value }

func (e *LengthExpr) Print(p Printer) {
	p.Literal("lengthof ")
	e.Op.Print(p)
}
func (e *LengthExpr) String() string { return render(e) }
func (e *LengthExpr) Uses() []Value  { return append(e.Op.Uses(), e.Op) }

// NegExpr negates a numeric operand.
type NegExpr struct{ Op Value }

func (e *NegExpr) Print(p Printer) {
	p.Literal("neg ")
	e.Op.Print(p)
}
func (e *NegExpr) String() string { return render(e) }
func (e *NegExpr) Uses() []Value  { return append(e.Op.Uses(), e.Op) }
