package ir

import (
	"fmt"
	"strings"
)

// MethodRef is a static reference to a method, as written at a call site.
type MethodRef struct {
	Class  string
	Return Type
	Name   string
	Params []Type
}

// Signature renders the reference as "<Class: Return name(P1,P2)>".
func (m MethodRef) Signature() string {
	var sb strings.Builder
	sb.WriteString("<")
	sb.WriteString(m.Class)
	sb.WriteString(": ")
	sb.WriteString(string(m.Return))
	sb.WriteString(" ")
	sb.WriteString(m.Name)
	sb.WriteString("(")
	for i, p := range m.Params {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(string(p))
	}
	sb.WriteString(")>")
	return sb.String()
}

func (m MethodRef) String() string { return m.Signature() }

// Equal reports whether two references name the same method.
func (m MethodRef) Equal(o MethodRef) bool { return m.Signature() == o.Signature() }

// FieldRef is a static reference to a field.
type FieldRef struct {
	Class string
	Type  Type
	Name  string
}

// Signature renders the reference as "<Class: Type name>".
func (f FieldRef) Signature() string {
	return "<" + f.Class + ": " + string(f.Type) + " " + f.Name + ">"
}

func (f FieldRef) String() string { return f.Signature() }

// ParseMethodRef parses "<Class: Return name(P1,P2)>".
func ParseMethodRef(sig string) (MethodRef, error) {
	cls, rest, err := splitSig(sig)
	if err != nil {
		return MethodRef{}, err
	}
	open := strings.IndexByte(rest, '(')
	if open < 0 || !strings.HasSuffix(rest, ")") {
		return MethodRef{}, fmt.Errorf("invalid method signature %q", sig)
	}
	head := strings.Fields(rest[:open])
	if len(head) != 2 {
		return MethodRef{}, fmt.Errorf("invalid method signature %q", sig)
	}
	m := MethodRef{Class: cls, Return: Type(head[0]), Name: head[1]}
	if params := strings.TrimSpace(rest[open+1 : len(rest)-1]); params != "" {
		for _, p := range strings.Split(params, ",") {
			m.Params = append(m.Params, Type(strings.TrimSpace(p)))
		}
	}
	return m, nil
}

// ParseFieldRef parses "<Class: Type name>".
func ParseFieldRef(sig string) (FieldRef, error) {
	cls, rest, err := splitSig(sig)
	if err != nil {
		return FieldRef{}, err
	}
	parts := strings.Fields(rest)
	if len(parts) != 2 || strings.ContainsAny(rest, "()") {
		return FieldRef{}, fmt.Errorf("invalid field signature %q", sig)
	}
	return FieldRef{Class: cls, Type: Type(parts[0]), Name: parts[1]}, nil
}

func splitSig(sig string) (string, string, error) {
	if !strings.HasPrefix(sig, "<") || !strings.HasSuffix(sig, ">") {
		return "", "", fmt.Errorf("signature %q is not enclosed in <>", sig)
	}
	body := sig[1 : len(sig)-1]
	cls, rest, ok := strings.Cut(body, ": ")
	if !ok || cls == "" {
		return "", "", fmt.Errorf("signature %q has no class", sig)
	}
	return cls, strings.TrimSpace(rest), nil
}
