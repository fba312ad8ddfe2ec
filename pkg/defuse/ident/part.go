package ident

import (
	"github.com/panbanda/acminer/pkg/defuse/alias"
	"github.com/panbanda/acminer/pkg/ir"
)

// PartKind tags the variant of a Part.
type PartKind int

const (
	KindLiteral PartKind = iota
	KindLocal
	KindLocalAlias
	KindMethodRef
	KindFieldRef
	KindConstant
	KindPrimitiveConstant
	KindStringConstant
	KindType
	KindIdentityRef
	KindPlaceholder
	KindUnknown
)

var kindNames = [...]string{
	KindLiteral:           "literal",
	KindLocal:             "local",
	KindLocalAlias:        "local_alias",
	KindMethodRef:         "method_ref",
	KindFieldRef:          "field_ref",
	KindConstant:          "constant",
	KindPrimitiveConstant: "primitive_constant",
	KindStringConstant:    "string_constant",
	KindType:              "type",
	KindIdentityRef:       "identity_ref",
	KindPlaceholder:       "placeholder",
	KindUnknown:           "unknown",
}

func (k PartKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "invalid"
}

// ParsePartKind is the inverse of PartKind.String.
func ParsePartKind(s string) (PartKind, bool) {
	for i, n := range kindNames {
		if n == s {
			return PartKind(i), true
		}
	}
	return 0, false
}

// IsValue reports whether parts of this kind reference an operand of the
// statement and therefore carry a use-slot index.
func (k PartKind) IsValue() bool {
	switch k {
	case KindLocal, KindLocalAlias, KindMethodRef, KindFieldRef, KindConstant, KindIdentityRef:
		return true
	}
	return false
}

// Part is one immutable fragment of an identifier. Orig is the text used
// to verify the part against reloaded code; Cur is what the part renders
// as.
type Part struct {
	kind  PartKind
	orig  string
	cur   string
	index int

	// Set on local alias parts.
	localName   string
	localMethod string
	alias       *alias.Local

	// Live operand, nil until bound.
	value ir.Value
}

func literalPart(s string) Part { return Part{kind: KindLiteral, orig: s, cur: s, index: -1} }

// Kind returns the variant tag.
func (p Part) Kind() PartKind { return p.kind }

// Orig returns the verification text.
func (p Part) Orig() string { return p.orig }

func (p Part) String() string { return p.cur }

// Index returns the use slot of a value part, or -1.
func (p Part) Index() int { return p.index }

// Value returns the bound operand, or nil.
func (p Part) Value() ir.Value { return p.value }

// Alias returns the bound alias of a local alias part, or nil.
func (p Part) Alias() *alias.Local { return p.alias }

// LocalName returns the original local name of a local alias part.
func (p Part) LocalName() string { return p.localName }

// LocalMethod returns the owning method of a local alias part.
func (p Part) LocalMethod() string { return p.localMethod }
