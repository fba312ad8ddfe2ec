package ir

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrSyntax is wrapped by every parse failure.
var ErrSyntax = errors.New("syntax error")

// LocalResolver maps a local name to the method's declared local.
type LocalResolver func(name string) (*Local, bool)

// ParseStmt parses one statement in canonical text form. Locals are bound
// through resolve; an undeclared local is an error.
func ParseStmt(text string, resolve LocalResolver) (Stmt, error) {
	p := &stmtParser{resolve: resolve}
	s, err := p.stmt(strings.TrimSpace(text))
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrSyntax, text, err)
	}
	return s, nil
}

type stmtParser struct {
	resolve LocalResolver
}

var invokeKinds = map[string]InvokeKind{
	"staticinvoke":    InvokeStatic,
	"virtualinvoke":   InvokeVirtual,
	"specialinvoke":   InvokeSpecial,
	"interfaceinvoke": InvokeInterface,
}

func (p *stmtParser) stmt(s string) (Stmt, error) {
	switch {
	case s == "return":
		return &ReturnStmt{}, nil
	case strings.HasPrefix(s, "return "):
		v, err := p.immediate(s[len("return "):])
		if err != nil {
			return nil, err
		}
		return &ReturnStmt{Op: v}, nil
	case strings.HasPrefix(s, "goto "):
		return &GotoStmt{Target: strings.TrimSpace(s[len("goto "):])}, nil
	case strings.HasPrefix(s, "throw "):
		v, err := p.immediate(s[len("throw "):])
		if err != nil {
			return nil, err
		}
		return &ThrowStmt{Op: v}, nil
	case strings.HasPrefix(s, "if "):
		return p.ifStmt(s[len("if "):])
	case strings.HasPrefix(s, "lookupswitch("), strings.HasPrefix(s, "tableswitch("):
		table := strings.HasPrefix(s, "tableswitch(")
		open := strings.IndexByte(s, '(')
		if !strings.HasSuffix(s, ")") {
			return nil, errors.New("unterminated switch key")
		}
		key, err := p.immediate(s[open+1 : len(s)-1])
		if err != nil {
			return nil, err
		}
		return &SwitchStmt{Key: key, Table: table}, nil
	}

	kw, _, _ := strings.Cut(s, " ")
	if _, ok := invokeKinds[kw]; ok {
		ie, err := p.invoke(s)
		if err != nil {
			return nil, err
		}
		return &InvokeStmt{Expr: ie}, nil
	}

	if i := indexTopLevel(s, " := "); i >= 0 {
		return p.identity(s[:i], s[i+len(" := "):])
	}
	if i := indexTopLevel(s, " = "); i >= 0 {
		left, err := p.lvalue(s[:i])
		if err != nil {
			return nil, err
		}
		right, err := p.rvalue(s[i+len(" = "):])
		if err != nil {
			return nil, err
		}
		return &AssignStmt{Left: left, Right: right}, nil
	}
	return nil, errors.New("unrecognized statement")
}

func (p *stmtParser) ifStmt(s string) (Stmt, error) {
	i := strings.LastIndex(s, " goto ")
	if i < 0 {
		return nil, errors.New("if without goto")
	}
	v, err := p.rvalue(s[:i])
	if err != nil {
		return nil, err
	}
	cond, ok := v.(*BinopExpr)
	if !ok || !cond.Op.IsCondition() {
		return nil, fmt.Errorf("if condition %q is not a comparison", s[:i])
	}
	return &IfStmt{Cond: cond, Target: strings.TrimSpace(s[i+len(" goto "):])}, nil
}

func (p *stmtParser) identity(left, right string) (Stmt, error) {
	l, err := p.local(left)
	if err != nil {
		return nil, err
	}
	var ref IdentityRef
	switch {
	case right == "@caughtexception":
		ref = CaughtExceptionRef{}
	case strings.HasPrefix(right, "@this: "):
		ref = ThisRef{Type: Type(right[len("@this: "):])}
	case strings.HasPrefix(right, "@parameter"):
		idx, typ, ok := strings.Cut(right[len("@parameter"):], ": ")
		if !ok {
			return nil, fmt.Errorf("malformed parameter ref %q", right)
		}
		n, err := strconv.Atoi(idx)
		if err != nil {
			return nil, fmt.Errorf("malformed parameter index %q", idx)
		}
		ref = ParameterRef{Index: n, Type: Type(typ)}
	default:
		return nil, fmt.Errorf("unknown identity ref %q", right)
	}
	return &IdentityStmt{Left: l, Right: ref}, nil
}

func (p *stmtParser) lvalue(s string) (Value, error) {
	switch {
	case strings.HasPrefix(s, "<"):
		f, err := ParseFieldRef(s)
		if err != nil {
			return nil, err
		}
		return &StaticFieldRef{Field: f}, nil
	case strings.Contains(s, ".<"):
		return p.instanceField(s)
	case strings.HasSuffix(s, "]"):
		return p.arrayRef(s)
	}
	return p.local(s)
}

func (p *stmtParser) rvalue(s string) (Value, error) {
	kw, rest, _ := strings.Cut(s, " ")
	if _, ok := invokeKinds[kw]; ok {
		return p.invoke(s)
	}
	switch kw {
	case "new":
		return &NewExpr{Type: Type(rest)}, nil
	case "lengthof", "neg":
		op, err := p.immediate(rest)
		if err != nil {
			return nil, err
		}
		if kw == "neg" {
			return &NegExpr{Op: op}, nil
		}
		return &LengthExpr{Op: op}, nil
	case "newarray":
		open, closeIdx := strings.IndexByte(rest, '('), strings.Index(rest, ")[")
		if open != 0 || closeIdx < 0 || !strings.HasSuffix(rest, "]") {
			return nil, fmt.Errorf("malformed newarray %q", s)
		}
		size, err := p.immediate(rest[closeIdx+2 : len(rest)-1])
		if err != nil {
			return nil, err
		}
		return &NewArrayExpr{Type: Type(rest[1:closeIdx]), Size: size}, nil
	}

	if strings.HasPrefix(s, "(") {
		closeIdx := strings.Index(s, ") ")
		if closeIdx < 0 {
			return nil, fmt.Errorf("malformed cast %q", s)
		}
		op, err := p.immediate(s[closeIdx+2:])
		if err != nil {
			return nil, err
		}
		return &CastExpr{Type: Type(s[1:closeIdx]), Op: op}, nil
	}
	if strings.HasPrefix(s, "<") && !strings.HasPrefix(s, "< ") {
		f, err := ParseFieldRef(s)
		if err != nil {
			return nil, err
		}
		return &StaticFieldRef{Field: f}, nil
	}

	toks := splitOperands(s)
	if len(toks) == 3 {
		if toks[1] == "instanceof" {
			op, err := p.immediate(toks[0])
			if err != nil {
				return nil, err
			}
			return &InstanceOfExpr{Op: op, Type: Type(toks[2])}, nil
		}
		if _, ok := binopNames[BinaryOp(toks[1])]; ok {
			a, err := p.immediate(toks[0])
			if err != nil {
				return nil, err
			}
			b, err := p.immediate(toks[2])
			if err != nil {
				return nil, err
			}
			return &BinopExpr{Op: BinaryOp(toks[1]), Op1: a, Op2: b}, nil
		}
	}

	if !strings.HasPrefix(s, "\"") {
		if strings.Contains(s, ".<") {
			return p.instanceField(s)
		}
		if strings.HasSuffix(s, "]") && strings.Contains(s, "[") {
			return p.arrayRef(s)
		}
	}
	return p.immediate(s)
}

func (p *stmtParser) invoke(s string) (*InvokeExpr, error) {
	kw, rest, _ := strings.Cut(s, " ")
	kind, ok := invokeKinds[kw]
	if !ok {
		return nil, fmt.Errorf("unknown invoke kind %q", kw)
	}
	ie := &InvokeExpr{Kind: kind}
	sigStart := 0
	if kind != InvokeStatic {
		dot := strings.Index(rest, ".<")
		if dot < 0 {
			return nil, fmt.Errorf("instance call %q has no receiver", s)
		}
		base, err := p.immediate(rest[:dot])
		if err != nil {
			return nil, err
		}
		ie.Base = base
		sigStart = dot + 1
	}
	sigEnd := matchAngle(rest, sigStart)
	if sigEnd < 0 {
		return nil, fmt.Errorf("unterminated method signature in %q", s)
	}
	m, err := ParseMethodRef(rest[sigStart : sigEnd+1])
	if err != nil {
		return nil, err
	}
	ie.Method = m
	args := rest[sigEnd+1:]
	if !strings.HasPrefix(args, "(") || !strings.HasSuffix(args, ")") {
		return nil, fmt.Errorf("malformed argument list in %q", s)
	}
	for _, a := range splitArgs(args[1 : len(args)-1]) {
		v, err := p.immediate(a)
		if err != nil {
			return nil, err
		}
		ie.Args = append(ie.Args, v)
	}
	if len(ie.Args) != len(m.Params) {
		return nil, fmt.Errorf("call %q passes %d arguments to %d parameters", s, len(ie.Args), len(m.Params))
	}
	return ie, nil
}

func (p *stmtParser) instanceField(s string) (Value, error) {
	dot := strings.Index(s, ".<")
	base, err := p.immediate(s[:dot])
	if err != nil {
		return nil, err
	}
	f, err := ParseFieldRef(s[dot+1:])
	if err != nil {
		return nil, err
	}
	return &InstanceFieldRef{Base: base, Field: f}, nil
}

func (p *stmtParser) arrayRef(s string) (Value, error) {
	open := strings.IndexByte(s, '[')
	if open <= 0 {
		return nil, fmt.Errorf("malformed array reference %q", s)
	}
	base, err := p.immediate(s[:open])
	if err != nil {
		return nil, err
	}
	idx, err := p.immediate(s[open+1 : len(s)-1])
	if err != nil {
		return nil, err
	}
	return &ArrayRef{Base: base, Index: idx}, nil
}

func (p *stmtParser) local(s string) (*Local, error) {
	s = strings.TrimSpace(s)
	if p.resolve != nil {
		if l, ok := p.resolve(s); ok {
			return l, nil
		}
	}
	return nil, fmt.Errorf("undeclared local %q", s)
}

// immediate parses a local or constant operand.
func (p *stmtParser) immediate(s string) (Value, error) {
	s = strings.TrimSpace(s)
	if c, ok, err := ParseConstant(s); ok || err != nil {
		return c, err
	}
	return p.local(s)
}

// ParseConstant parses a constant literal. ok is false when s is not
// constant syntax at all.
func ParseConstant(s string) (c Constant, ok bool, err error) {
	switch {
	case s == "null":
		return NullConstant{}, true, nil
	case strings.HasPrefix(s, "\""):
		v, err := strconv.Unquote(s)
		if err != nil {
			return nil, true, fmt.Errorf("bad string constant %s", s)
		}
		return StringConstant{V: v}, true, nil
	case strings.HasPrefix(s, "class \""):
		v, err := strconv.Unquote(s[len("class "):])
		if err != nil {
			return nil, true, fmt.Errorf("bad class constant %s", s)
		}
		return ClassConstant{V: v}, true, nil
	}
	if s == "" || !(s[0] == '-' || s[0] == '.' || (s[0] >= '0' && s[0] <= '9') ||
		strings.HasPrefix(s, "NaN") || strings.HasPrefix(s, "Infinity")) {
		return nil, false, nil
	}
	switch {
	case strings.HasSuffix(s, "L"):
		v, err := strconv.ParseInt(s[:len(s)-1], 10, 64)
		if err != nil {
			return nil, true, fmt.Errorf("bad long constant %s", s)
		}
		return LongConstant{V: v}, true, nil
	case strings.HasSuffix(s, "F"):
		v, err := strconv.ParseFloat(s[:len(s)-1], 32)
		if err != nil {
			return nil, true, fmt.Errorf("bad float constant %s", s)
		}
		return FloatConstant{V: float32(v)}, true, nil
	case strings.ContainsAny(s, ".eEIN"):
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, true, fmt.Errorf("bad double constant %s", s)
		}
		return DoubleConstant{V: v}, true, nil
	}
	v, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return nil, true, fmt.Errorf("bad int constant %s", s)
	}
	return IntConstant{V: int32(v)}, true, nil
}

// indexTopLevel finds sep outside string literals and signatures.
func indexTopLevel(s, sep string) int {
	inStr, depth := false, 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inStr:
			if c == '\\' {
				i++
			} else if c == '"' {
				inStr = false
			}
			continue
		case c == '"':
			inStr = true
			continue
		case c == '<' && i+1 < len(s) && isIdentStart(s[i+1]):
			depth++
		case c == '>' && depth > 0:
			depth--
		}
		if depth == 0 && strings.HasPrefix(s[i:], sep) {
			return i
		}
	}
	return -1
}

// matchAngle returns the index of the '>' closing the '<' at start.
func matchAngle(s string, start int) int {
	if start >= len(s) || s[start] != '<' {
		return -1
	}
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '<':
			depth++
		case '>':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// splitOperands splits on spaces outside string literals, keeping
// class constants together.
func splitOperands(s string) []string {
	var out []string
	var cur strings.Builder
	inStr := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inStr:
			cur.WriteByte(c)
			if c == '\\' && i+1 < len(s) {
				i++
				cur.WriteByte(s[i])
			} else if c == '"' {
				inStr = false
			}
		case c == '"':
			inStr = true
			cur.WriteByte(c)
		case c == ' ':
			if cur.Len() > 0 {
				out = append(out, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteByte(c)
		}
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	merged := out[:0]
	for i := 0; i < len(out); i++ {
		if out[i] == "class" && i+1 < len(out) && strings.HasPrefix(out[i+1], "\"") {
			merged = append(merged, "class "+out[i+1])
			i++
			continue
		}
		merged = append(merged, out[i])
	}
	return merged
}

// splitArgs splits a call argument list on ", " outside string literals.
func splitArgs(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	start := 0
	for {
		i := indexTopLevel(s[start:], ", ")
		if i < 0 {
			out = append(out, s[start:])
			return out
		}
		out = append(out, s[start:start+i])
		start += i + 2
	}
}
