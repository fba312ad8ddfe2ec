package defuse

import (
	"bufio"
	"fmt"
	"io"
	"math/big"
	"strings"
)

// DumpBlock is one start statement and its definition strings as
// written by Graph.String.
type DumpBlock struct {
	Stmt   string
	Source string
	Defs   []string
}

// Count returns the resolution count of the block.
func (b DumpBlock) Count() *big.Int {
	return CountResolutions(b.Stmt, b.Defs)
}

// ParseDump reads the text form written by Graph.String. Blank lines are
// ignored; a Def line before any Stmt line is an error.
func ParseDump(r io.Reader) ([]DumpBlock, error) {
	var out []DumpBlock
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		switch {
		case text == "":
		case strings.HasPrefix(text, "Stmt: "):
			rest := strings.TrimPrefix(text, "Stmt: ")
			b := DumpBlock{Stmt: rest}
			if i := strings.LastIndex(rest, " Source: "); i >= 0 {
				b.Stmt, b.Source = rest[:i], rest[i+len(" Source: "):]
			}
			out = append(out, b)
		case strings.HasPrefix(text, "Def: "):
			if len(out) == 0 {
				return nil, fmt.Errorf("line %d: definition before any statement", line)
			}
			last := &out[len(out)-1]
			last.Defs = append(last.Defs, strings.TrimPrefix(text, "Def: "))
		default:
			return nil, fmt.Errorf("line %d: unrecognized line %q", line, text)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
