package ir

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// programFile is the on-disk YAML layout of a program.
type programFile struct {
	EntryPoints []string            `yaml:"entrypoints"`
	Dispatch    map[string][]string `yaml:"dispatch"`
	Fields      map[string]string   `yaml:"fields"`
	Methods     []methodFile        `yaml:"methods"`
}

type methodFile struct {
	Signature string   `yaml:"signature"`
	Locals    []string `yaml:"locals"`
	Body      string   `yaml:"body"`
}

// LoadFile reads a YAML program description from path.
func LoadFile(path string) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading program: %w", err)
	}
	return Load(data)
}

// Load parses a YAML program description. Each method lists its locals as
// "type name" declarations and its body as one statement per line; blank
// lines and lines starting with "//" are skipped.
func Load(data []byte) (*Program, error) {
	var pf programFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parsing program: %w", err)
	}

	methods := make([]*Method, 0, len(pf.Methods))
	seen := make(map[string]bool, len(pf.Methods))
	for _, mf := range pf.Methods {
		m, err := loadMethod(mf)
		if err != nil {
			return nil, err
		}
		if seen[m.Signature] {
			return nil, fmt.Errorf("duplicate method %s", m.Signature)
		}
		seen[m.Signature] = true
		methods = append(methods, m)
	}

	fields := make(map[string]FieldRef, len(pf.Fields))
	for from, to := range pf.Fields {
		if _, err := ParseFieldRef(from); err != nil {
			return nil, err
		}
		f, err := ParseFieldRef(to)
		if err != nil {
			return nil, err
		}
		fields[from] = f
	}

	for _, ep := range pf.EntryPoints {
		if !seen[ep] {
			return nil, fmt.Errorf("entry point %s has no method", ep)
		}
	}
	return NewProgram(methods, pf.Dispatch, fields, pf.EntryPoints), nil
}

func loadMethod(mf methodFile) (*Method, error) {
	ref, err := ParseMethodRef(mf.Signature)
	if err != nil {
		return nil, err
	}
	sig := ref.Signature()

	locals := make([]*Local, 0, len(mf.Locals))
	names := make(map[string]*Local, len(mf.Locals))
	for _, decl := range mf.Locals {
		fields := strings.Fields(strings.TrimSuffix(decl, ";"))
		if len(fields) != 2 {
			return nil, fmt.Errorf("%s: malformed local declaration %q", sig, decl)
		}
		if _, dup := names[fields[1]]; dup {
			return nil, fmt.Errorf("%s: local %s declared twice", sig, fields[1])
		}
		l := &Local{Name: fields[1], Type: Type(fields[0])}
		names[l.Name] = l
		locals = append(locals, l)
	}

	resolve := func(name string) (*Local, bool) {
		l, ok := names[name]
		return l, ok
	}
	var stmts []Stmt
	for n, line := range strings.Split(mf.Body, "\n") {
		line = strings.TrimSuffix(strings.TrimSpace(line), ";")
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		s, err := ParseStmt(line, resolve)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", sig, n+1, err)
		}
		stmts = append(stmts, s)
	}
	return &Method{Ref: ref, Signature: sig, Body: NewBody(locals, stmts)}, nil
}
