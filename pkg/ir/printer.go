package ir

import "strings"

// Printer receives the pieces of a statement as it is rendered. The
// rendered text of any value or statement is the concatenation of the
// pieces in call order.
type Printer interface {
	Literal(s string)
	Local(l *Local)
	Constant(c Constant)
	Type(t Type)
	MethodRef(m MethodRef)
	FieldRef(f FieldRef)
	IdentityRef(r IdentityRef)
}

// TextPrinter renders into a string builder.
type TextPrinter struct {
	sb strings.Builder
}

func (t *TextPrinter) Literal(s string)          { t.sb.WriteString(s) }
func (t *TextPrinter) Local(l *Local)            { t.sb.WriteString(l.Name) }
func (t *TextPrinter) Constant(c Constant)       { t.sb.WriteString(c.String()) }
func (t *TextPrinter) Type(ty Type)              { t.sb.WriteString(string(ty)) }
func (t *TextPrinter) MethodRef(m MethodRef)     { t.sb.WriteString(m.Signature()) }
func (t *TextPrinter) FieldRef(f FieldRef)       { t.sb.WriteString(f.Signature()) }
func (t *TextPrinter) IdentityRef(r IdentityRef) { t.sb.WriteString(r.String()) }

// String returns everything printed so far.
func (t *TextPrinter) String() string { return t.sb.String() }

type printable interface{ Print(p Printer) }

func render(v printable) string {
	var tp TextPrinter
	v.Print(&tp)
	return tp.String()
}
