// Package ident builds canonical statement identifiers.
//
// An Identifier is an ordered sequence of Parts whose concatenated text
// is the canonical rendering of a statement or sub-expression. Locals
// are rendered through their run-global aliases, so two statements that
// differ only in local naming produce the same text. Every part that
// stands for an operand records the operand's slot in the statement's
// sorted use list, which lets a persisted identifier be verified and
// re-bound against freshly loaded code.
package ident

import (
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Identifier is a finalized, immutable part sequence. Equality and
// hashing are defined on the rendered text only.
type Identifier struct {
	parts []Part
	text  string
}

func newIdentifier(parts []Part) *Identifier {
	var sb strings.Builder
	for _, p := range parts {
		sb.WriteString(p.cur)
	}
	return &Identifier{parts: parts, text: sb.String()}
}

func (id *Identifier) String() string { return id.text }

// Len returns the number of parts.
func (id *Identifier) Len() int { return len(id.parts) }

// Part returns the i-th part.
func (id *Identifier) Part(i int) Part { return id.parts[i] }

// Parts returns a copy of the part sequence.
func (id *Identifier) Parts() []Part { return append([]Part(nil), id.parts...) }

// Equal compares rendered text.
func (id *Identifier) Equal(o *Identifier) bool {
	if id == nil || o == nil {
		return id == o
	}
	return id.text == o.text
}

// Hash returns a 64-bit hash of the rendered text.
func (id *Identifier) Hash() uint64 { return xxhash.Sum64String(id.text) }

// ConstantIndices returns the positions of every statement-constant part.
func (id *Identifier) ConstantIndices() []int {
	var out []int
	for i, p := range id.parts {
		if p.kind == KindConstant {
			out = append(out, i)
		}
	}
	return out
}

// Literal returns an identifier made of a single literal.
func Literal(s string) *Identifier { return newIdentifier([]Part{literalPart(s)}) }

// Concat joins two identifiers with a literal separator. The use-slot
// indices of the result refer to two different statements and must not
// be used for re-binding.
func Concat(a, b *Identifier, sep string) *Identifier {
	parts := make([]Part, 0, len(a.parts)+len(b.parts)+1)
	parts = append(parts, a.parts...)
	parts = append(parts, literalPart(sep))
	parts = append(parts, b.parts...)
	return newIdentifier(parts)
}

// Sub returns a single-part identifier holding the i-th part of id.
func (id *Identifier) Sub(i int) *Identifier { return newIdentifier([]Part{id.parts[i]}) }
