// Package fault defines the fatal error kinds raised while interning
// nodes, finalizing identifiers and re-binding persisted graphs.
package fault

import (
	"errors"
	"fmt"
)

// Sentinel kinds. Match them with errors.Is.
var (
	ErrClassificationGap = errors.New("statement fits no node kind")
	ErrOperandNotFound   = errors.New("operand not found in statement uses")
	ErrResolveMismatch   = errors.New("stored identifier does not match statement")
	ErrNotInitialized    = errors.New("not initialized")
	ErrFrozen            = errors.New("graph is frozen")
)

// StmtError ties a failure to the method and statement being processed.
type StmtError struct {
	Kind   error
	Method string
	Stmt   string
	Detail string
}

func (e *StmtError) Error() string {
	msg := e.Kind.Error()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Stmt != "" {
		msg += fmt.Sprintf(" (stmt %q", e.Stmt)
		if e.Method != "" {
			msg += " in " + e.Method
		}
		msg += ")"
	} else if e.Method != "" {
		msg += " (in " + e.Method + ")"
	}
	return msg
}

func (e *StmtError) Unwrap() error { return e.Kind }

// New builds a StmtError of the given kind.
func New(kind error, method, stmt, format string, args ...any) *StmtError {
	return &StmtError{Kind: kind, Method: method, Stmt: stmt, Detail: fmt.Sprintf(format, args...)}
}
