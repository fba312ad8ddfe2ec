package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	toon "github.com/toon-format/toon-go"
)

// Format represents an output format.
type Format string

const (
	FormatText     Format = "text"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatTOON     Format = "toon"
)

// ParseFormat converts a string to Format, defaulting to text.
func ParseFormat(s string) Format {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON
	case "markdown", "md":
		return FormatMarkdown
	case "toon":
		return FormatTOON
	default:
		return FormatText
	}
}

// Renderable defines data that can render itself in multiple formats.
type Renderable interface {
	RenderText(w io.Writer, colored bool) error
	RenderMarkdown(w io.Writer) error
	// RenderData returns the underlying data for JSON serialization.
	RenderData() any
}

// Formatter handles output formatting.
type Formatter struct {
	format  Format
	writer  io.Writer
	file    *os.File
	colored bool
}

// NewFormatter creates a new formatter.
func NewFormatter(format Format, output string, colored bool) (*Formatter, error) {
	var writer io.Writer = os.Stdout
	var file *os.File

	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return nil, err
		}
		writer = f
		file = f
		colored = false
	}

	return &Formatter{
		format:  format,
		writer:  writer,
		file:    file,
		colored: colored,
	}, nil
}

// NewWriterFormatter creates a formatter that writes to w.
func NewWriterFormatter(format Format, w io.Writer, colored bool) *Formatter {
	return &Formatter{format: format, writer: w, colored: colored}
}

// Close closes the formatter's writer if it's a file.
func (f *Formatter) Close() error {
	if f.file != nil {
		return f.file.Close()
	}
	return nil
}

// Writer returns the underlying writer.
func (f *Formatter) Writer() io.Writer {
	return f.writer
}

// Format returns the configured format.
func (f *Formatter) Format() Format {
	return f.format
}

// Colored returns whether colored output is enabled.
func (f *Formatter) Colored() bool {
	return f.colored
}

// Output writes data in the configured format.
func (f *Formatter) Output(data any) error {
	if r, ok := data.(Renderable); ok {
		return f.render(r)
	}
	return f.outputRaw(data)
}

// render dispatches to the appropriate format renderer.
func (f *Formatter) render(r Renderable) error {
	switch f.format {
	case FormatJSON:
		return f.outputJSON(r.RenderData())
	case FormatTOON:
		return f.outputTOON(r.RenderData())
	case FormatMarkdown:
		return r.RenderMarkdown(f.writer)
	default:
		return r.RenderText(f.writer, f.colored)
	}
}

// outputRaw handles non-Renderable data.
func (f *Formatter) outputRaw(data any) error {
	switch f.format {
	case FormatJSON:
		return f.outputJSON(data)
	case FormatTOON:
		return f.outputTOON(data)
	case FormatMarkdown:
		fmt.Fprintln(f.writer, "```json")
		if err := f.outputJSON(data); err != nil {
			return err
		}
		fmt.Fprintln(f.writer, "```")
		return nil
	default:
		return f.outputJSON(data)
	}
}

// outputJSON writes data as formatted JSON.
func (f *Formatter) outputJSON(data any) error {
	return encodeJSON(f.writer, data)
}

// encodeJSON writes indented JSON without HTML escaping so that method
// signatures keep their angle brackets.
func encodeJSON(w io.Writer, data any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	return encoder.Encode(data)
}

// outputTOON writes data as TOON.
func (f *Formatter) outputTOON(data any) error {
	out, err := MarshalTOON(data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(f.writer, out)
	return err
}

// MarshalTOON encodes data as TOON with two-space indentation.
func MarshalTOON(data any) (string, error) {
	out, err := toon.Marshal(data, toon.WithIndent(2))
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Encode renders data as a string in format. Text is rendered as TOON,
// which is also what the MCP tools return by default.
func Encode(data any, format Format) (string, error) {
	switch format {
	case FormatJSON:
		var buf bytes.Buffer
		if err := encodeJSON(&buf, data); err != nil {
			return "", err
		}
		return strings.TrimSuffix(buf.String(), "\n"), nil
	case FormatMarkdown:
		out, err := MarshalTOON(data)
		if err != nil {
			return "", err
		}
		return "```\n" + out + "\n```", nil
	default:
		return MarshalTOON(data)
	}
}

// Table is a Renderable table with headers, rows, and optional footer.
type Table struct {
	Title   string     `json:"-"`
	Headers []string   `json:"-"`
	Rows    [][]string `json:"-"`
	Footer  []string   `json:"-"`
	Data    any        `json:"data,omitempty"`
}

// NewTable creates a table that wraps structured data for serialization.
func NewTable(title string, headers []string, rows [][]string, footer []string, data any) *Table {
	return &Table{
		Title:   title,
		Headers: headers,
		Rows:    rows,
		Footer:  footer,
		Data:    data,
	}
}

func (t *Table) RenderData() any {
	if t.Data != nil {
		return t.Data
	}
	result := make([]map[string]string, len(t.Rows))
	for i, row := range t.Rows {
		m := make(map[string]string)
		for j, h := range t.Headers {
			if j < len(row) {
				m[h] = row[j]
			}
		}
		result[i] = m
	}
	return result
}

func (t *Table) RenderText(w io.Writer, colored bool) error {
	if t.Title != "" {
		heading(w, t.Title, "=", colored)
		fmt.Fprintln(w)
	}

	table := tablewriter.NewTable(w,
		tablewriter.WithConfig(tablewriter.Config{
			Header: tw.CellConfig{
				Alignment: tw.CellAlignment{Global: tw.AlignLeft},
				Formatting: tw.CellFormatting{
					AutoFormat: tw.On,
				},
			},
			Row: tw.CellConfig{
				Alignment: tw.CellAlignment{Global: tw.AlignLeft},
			},
			Footer: tw.CellConfig{
				Alignment: tw.CellAlignment{Global: tw.AlignLeft},
			},
		}),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.Border{
				Left:   tw.Off,
				Right:  tw.Off,
				Top:    tw.Off,
				Bottom: tw.Off,
			},
			Settings: tw.Settings{
				Separators: tw.Separators{
					BetweenColumns: tw.Off,
				},
			},
		}),
	)

	table.Header(t.Headers)
	for _, row := range t.Rows {
		table.Append(row)
	}
	if len(t.Footer) > 0 {
		footerArgs := make([]any, len(t.Footer))
		for i, f := range t.Footer {
			footerArgs[i] = f
		}
		table.Footer(footerArgs...)
	}
	table.Render()
	fmt.Fprintln(w)
	return nil
}

func (t *Table) RenderMarkdown(w io.Writer) error {
	if t.Title != "" {
		fmt.Fprintf(w, "## %s\n\n", t.Title)
	}

	fmt.Fprintf(w, "| %s |\n", strings.Join(t.Headers, " | "))

	seps := make([]string, len(t.Headers))
	for i := range seps {
		seps[i] = "---"
	}
	fmt.Fprintf(w, "| %s |\n", strings.Join(seps, " | "))

	for _, row := range t.Rows {
		fmt.Fprintf(w, "| %s |\n", strings.Join(row, " | "))
	}

	if len(t.Footer) > 0 {
		fmt.Fprintf(w, "| %s |\n", strings.Join(t.Footer, " | "))
	}

	fmt.Fprintln(w)
	return nil
}

// Section is a Renderable group of blocks under one title, such as the
// start statements of one entry point.
type Section struct {
	Title  string  `json:"title"`
	Blocks []Block `json:"blocks,omitempty"`
}

// Block is a heading followed by lines, such as one start statement and
// its definition strings.
type Block struct {
	Heading string   `json:"heading"`
	Lines   []string `json:"lines,omitempty"`
}

func (s *Section) RenderData() any {
	return s
}

func (s *Section) RenderText(w io.Writer, colored bool) error {
	heading(w, s.Title, "=", colored)
	for _, b := range s.Blocks {
		fmt.Fprintln(w)
		heading(w, b.Heading, "-", colored)
		for _, line := range b.Lines {
			fmt.Fprintf(w, "  %s\n", line)
		}
	}
	return nil
}

func (s *Section) RenderMarkdown(w io.Writer) error {
	fmt.Fprintf(w, "## %s\n\n", s.Title)
	for _, b := range s.Blocks {
		fmt.Fprintf(w, "### %s\n\n", b.Heading)
		if len(b.Lines) > 0 {
			fmt.Fprintf(w, "```\n%s\n```\n\n", strings.Join(b.Lines, "\n"))
		}
	}
	return nil
}

func heading(w io.Writer, title, underline string, colored bool) {
	if colored {
		color.New(color.Bold).Fprintln(w, title)
	} else {
		fmt.Fprintln(w, title)
	}
	fmt.Fprintln(w, strings.Repeat(underline, len(title)))
}

// Report renders several parts one after another. Data, when set, is what
// JSON and TOON output serialize instead of the parts.
type Report struct {
	Sections []Renderable
	Data     any
}

func (r *Report) RenderData() any {
	if r.Data != nil {
		return r.Data
	}
	parts := make([]any, len(r.Sections))
	for i, s := range r.Sections {
		parts[i] = s.RenderData()
	}
	return parts
}

func (r *Report) RenderText(w io.Writer, colored bool) error {
	for i, s := range r.Sections {
		if i > 0 {
			fmt.Fprintln(w)
		}
		if err := s.RenderText(w, colored); err != nil {
			return err
		}
	}
	return nil
}

func (r *Report) RenderMarkdown(w io.Writer) error {
	for _, s := range r.Sections {
		if err := s.RenderMarkdown(w); err != nil {
			return err
		}
	}
	return nil
}

// Success, Warning and Info print one status line after the main output.

func (f *Formatter) Success(format string, args ...any) {
	f.message(color.FgGreen, "", format, args...)
}

func (f *Formatter) Warning(format string, args ...any) {
	f.message(color.FgYellow, "WARNING: ", format, args...)
}

func (f *Formatter) Info(format string, args ...any) {
	f.message(color.FgCyan, "", format, args...)
}

func (f *Formatter) message(c color.Attribute, prefix, format string, args ...any) {
	if f.colored {
		color.New(c).Fprintf(f.writer, format+"\n", args...)
		return
	}
	fmt.Fprintf(f.writer, prefix+format+"\n", args...)
}

// CountColor colors a resolution count: a single resolution is green,
// a handful yellow and anything larger red.
func CountColor(count, text string) string {
	switch {
	case count == "0" || count == "1":
		return color.GreenString(text)
	case len(count) == 1:
		return color.YellowString(text)
	default:
		return color.RedString(text)
	}
}
