package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/panbanda/acminer/pkg/ir"
)

// WriteFile writes content to a file in the real filesystem.
func WriteFile(t *testing.T, path, content string) {
	t.Helper()
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("MkdirAll(%s) error: %v", dir, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile(%s) error: %v", path, err)
	}
}

// ReadFile reads content from a file.
func ReadFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile(%s) error: %v", path, err)
	}
	return string(data)
}

// Program parses a YAML program description and fails the test on error.
func Program(t *testing.T, src string) *ir.Program {
	t.Helper()
	p, err := ir.Load([]byte(src))
	if err != nil {
		t.Fatalf("Load program error: %v", err)
	}
	return p
}

// WriteProgram writes src into dir and returns the file path.
func WriteProgram(t *testing.T, dir, src string) string {
	t.Helper()
	path := filepath.Join(dir, "program.yaml")
	WriteFile(t, path, src)
	return path
}

// Stmt returns the statement of method sig whose text is text.
func Stmt(t *testing.T, p *ir.Program, sig, text string) (*ir.Method, ir.Stmt) {
	t.Helper()
	m, ok := p.Method(sig)
	if !ok {
		t.Fatalf("method %s not found", sig)
	}
	s, ok := m.Body.FindStmt(text)
	if !ok {
		t.Fatalf("statement %q not found in %s", text, sig)
	}
	return m, s
}

// RenameLocals returns src with every local name in the method bodies
// and declarations replaced according to names. Only whole-word matches
// are replaced.
func RenameLocals(src string, names map[string]string) string {
	var sb strings.Builder
	word := strings.Builder{}
	flush := func() {
		w := word.String()
		if to, ok := names[w]; ok {
			w = to
		}
		sb.WriteString(w)
		word.Reset()
	}
	inStr, inSig := false, 0
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case inStr:
			sb.WriteByte(c)
			if c == '"' && src[i-1] != '\\' {
				inStr = false
			}
			continue
		case c == '<' && inSig == 0 && i+1 < len(src) && src[i+1] != ' ' && src[i+1] != '=':
			flush()
			inSig++
			sb.WriteByte(c)
			continue
		case inSig > 0:
			if c == '<' {
				inSig++
			} else if c == '>' {
				inSig--
			}
			sb.WriteByte(c)
			continue
		case c == '"':
			flush()
			inStr = true
			sb.WriteByte(c)
			continue
		}
		if c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			word.WriteByte(c)
			continue
		}
		flush()
		sb.WriteByte(c)
	}
	flush()
	return sb.String()
}

// AuthService is a small program with one entry point whose checks reach
// through an interface call, a field read, a static helper and a switch.
const AuthService = `
entrypoints:
  - "<com.example.Service: void handle(int,java.lang.String)>"
dispatch:
  "<com.example.Checker: boolean check(int)>":
    - "<com.example.AdminChecker: boolean check(int)>"
    - "<com.example.UserChecker: boolean check(int)>"
fields:
  "<com.example.Service: int level>": "<com.example.Base: int level>"
methods:
  - signature: "<com.example.Service: void handle(int,java.lang.String)>"
    locals:
      - com.example.Service r0
      - int i0
      - java.lang.String r1
      - com.example.Checker r2
      - boolean z0
      - int i1
      - int i2
      - int i3
    body: |
      r0 := @this: com.example.Service
      i0 := @parameter0: int
      r1 := @parameter1: java.lang.String
      r2 = r0.<com.example.Service: com.example.Checker checker>
      z0 = interfaceinvoke r2.<com.example.Checker: boolean check(int)>(i0)
      if z0 == 0 goto L1
      i1 = r0.<com.example.Service: int level>
      i2 = staticinvoke <com.example.Policy: int required(java.lang.String,int)>(r1, 3)
      i3 = (int) i2
      if i1 < i3 goto L1
      virtualinvoke r0.<com.example.Service: void grant(int)>(7)
      return
  - signature: "<com.example.Service: void grant(int)>"
    locals:
      - com.example.Service r0
      - int i0
    body: |
      r0 := @this: com.example.Service
      i0 := @parameter0: int
      lookupswitch(i0)
      return
  - signature: "<com.example.AdminChecker: boolean check(int)>"
    locals:
      - com.example.AdminChecker r0
      - int i0
      - int i1
    body: |
      r0 := @this: com.example.AdminChecker
      i0 := @parameter0: int
      i1 = staticinvoke <android.os.Binder: int getCallingUid()>()
      if i1 == i0 goto L1
      return 0
      return 1
  - signature: "<com.example.UserChecker: boolean check(int)>"
    locals:
      - com.example.UserChecker r0
      - int i0
      - boolean z0
    body: |
      r0 := @this: com.example.UserChecker
      i0 := @parameter0: int
      z0 = staticinvoke <com.example.Policy: boolean isUser(int)>(i0)
      return z0
  - signature: "<com.example.Policy: int required(java.lang.String,int)>"
    locals:
      - java.lang.String r0
      - int i0
      - int i1
      - int i2
    body: |
      r0 := @parameter0: java.lang.String
      i0 := @parameter1: int
      i1 = virtualinvoke r0.<java.lang.String: int length()>()
      i2 = i1 + i0
      return i2
`
