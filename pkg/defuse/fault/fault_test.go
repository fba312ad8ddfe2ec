package fault

import (
	"errors"
	"fmt"
	"testing"
)

func TestStmtErrorUnwrap(t *testing.T) {
	err := New(ErrOperandNotFound, "<a.B: void c()>", "i0 = 1", "part %q", "i9")
	wrapped := fmt.Errorf("finalizing: %w", err)

	if !errors.Is(wrapped, ErrOperandNotFound) {
		t.Errorf("errors.Is(wrapped, ErrOperandNotFound) = false")
	}
	if errors.Is(wrapped, ErrResolveMismatch) {
		t.Errorf("errors.Is(wrapped, ErrResolveMismatch) = true")
	}

	var se *StmtError
	if !errors.As(wrapped, &se) {
		t.Fatalf("errors.As failed")
	}
	if se.Method != "<a.B: void c()>" || se.Stmt != "i0 = 1" {
		t.Errorf("unexpected location %q %q", se.Method, se.Stmt)
	}
}

func TestStmtErrorMessage(t *testing.T) {
	tests := []struct {
		err  *StmtError
		want string
	}{
		{&StmtError{Kind: ErrFrozen}, "graph is frozen"},
		{&StmtError{Kind: ErrNotInitialized, Method: "m"}, "not initialized (in m)"},
		{
			New(ErrClassificationGap, "m", "goto L1", "kind %s", "GotoStmt"),
			`statement fits no node kind: kind GotoStmt (stmt "goto L1" in m)`,
		},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}
