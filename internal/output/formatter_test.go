package output

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type entryRow struct {
	Entry  string `json:"entry" toon:"entry"`
	Starts int    `json:"starts" toon:"starts"`
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input string
		want  Format
	}{
		{"text", FormatText},
		{"TEXT", FormatText},
		{"json", FormatJSON},
		{"markdown", FormatMarkdown},
		{"md", FormatMarkdown},
		{"toon", FormatTOON},
		{"TOON", FormatTOON},
		{"", FormatText},
		{"xml", FormatText},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseFormat(tt.input); got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewFormatterWithFile(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), "summary.json")

	f, err := NewFormatter(FormatJSON, outputPath, true)
	if err != nil {
		t.Fatalf("NewFormatter() error: %v", err)
	}
	if f.Colored() {
		t.Error("color should be disabled when writing to a file")
	}
	if err := f.Output([]entryRow{{Entry: "<A: void a()>", Starts: 2}}); err != nil {
		t.Fatalf("Output() error: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	data, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatal(err)
	}
	var rows []entryRow
	if err := json.Unmarshal(data, &rows); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, data)
	}
	if len(rows) != 1 || rows[0].Starts != 2 {
		t.Errorf("rows = %+v", rows)
	}
}

func TestNewFormatterInvalidPath(t *testing.T) {
	_, err := NewFormatter(FormatText, "/nonexistent/dir/out.txt", false)
	if err == nil {
		t.Error("NewFormatter() should fail for an invalid path")
	}
}

func summaryTable() *Table {
	return NewTable("Entry points",
		[]string{"Entry", "Starts", "Resolutions"},
		[][]string{
			{"<A: void a()>", "2", "3"},
			{"<B: void b()>", "1", "1"},
		},
		[]string{"Total", "3", "4"},
		nil)
}

func TestTableRenderText(t *testing.T) {
	var buf bytes.Buffer
	if err := summaryTable().RenderText(&buf, false); err != nil {
		t.Fatalf("RenderText() error: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Entry points", "============", "<A: void a()>", "<B: void b()>", "Total"} {
		if !strings.Contains(out, want) {
			t.Errorf("text output missing %q:\n%s", want, out)
		}
	}
}

func TestTableRenderMarkdown(t *testing.T) {
	var buf bytes.Buffer
	if err := summaryTable().RenderMarkdown(&buf); err != nil {
		t.Fatalf("RenderMarkdown() error: %v", err)
	}
	want := "## Entry points\n\n" +
		"| Entry | Starts | Resolutions |\n" +
		"| --- | --- | --- |\n" +
		"| <A: void a()> | 2 | 3 |\n" +
		"| <B: void b()> | 1 | 1 |\n" +
		"| Total | 3 | 4 |\n\n"
	if got := buf.String(); got != want {
		t.Errorf("RenderMarkdown() =\n%s\nwant\n%s", got, want)
	}
}

func TestTableRenderData(t *testing.T) {
	rows, ok := summaryTable().RenderData().([]map[string]string)
	if !ok {
		t.Fatalf("RenderData() type = %T", summaryTable().RenderData())
	}
	if len(rows) != 2 || rows[1]["Entry"] != "<B: void b()>" || rows[0]["Resolutions"] != "3" {
		t.Errorf("rows = %v", rows)
	}

	data := []entryRow{{Entry: "x"}}
	tbl := NewTable("", nil, nil, nil, data)
	if got, ok := tbl.RenderData().([]entryRow); !ok || got[0].Entry != "x" {
		t.Errorf("RenderData() should return the wrapped data, got %v", tbl.RenderData())
	}
}

func definitionsSection() *Section {
	return &Section{
		Title: "<A: void a()>",
		Blocks: []Block{
			{Heading: "if($z{13} == 0)", Lines: []string{"$z{10} = @parameter0: int", "$z{13} = 1"}},
			{Heading: "switch($z{8})"},
		},
	}
}

func TestSectionRendering(t *testing.T) {
	var text bytes.Buffer
	if err := definitionsSection().RenderText(&text, false); err != nil {
		t.Fatal(err)
	}
	want := "<A: void a()>\n=============\n\n" +
		"if($z{13} == 0)\n---------------\n" +
		"  $z{10} = @parameter0: int\n  $z{13} = 1\n\n" +
		"switch($z{8})\n-------------\n"
	if got := text.String(); got != want {
		t.Errorf("RenderText() =\n%s\nwant\n%s", got, want)
	}

	var md bytes.Buffer
	if err := definitionsSection().RenderMarkdown(&md); err != nil {
		t.Fatal(err)
	}
	wantMD := "## <A: void a()>\n\n" +
		"### if($z{13} == 0)\n\n```\n$z{10} = @parameter0: int\n$z{13} = 1\n```\n\n" +
		"### switch($z{8})\n\n"
	if got := md.String(); got != wantMD {
		t.Errorf("RenderMarkdown() =\n%s\nwant\n%s", got, wantMD)
	}
}

func TestReportRendering(t *testing.T) {
	r := &Report{Sections: []Renderable{summaryTable(), definitionsSection()}}

	var md bytes.Buffer
	if err := r.RenderMarkdown(&md); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(md.String(), "## Entry points\n\n") || !strings.Contains(md.String(), "## <A: void a()>") {
		t.Errorf("markdown =\n%s", md.String())
	}

	parts, ok := r.RenderData().([]any)
	if !ok || len(parts) != 2 {
		t.Fatalf("RenderData() = %#v", r.RenderData())
	}

	r.Data = []entryRow{{Entry: "x"}}
	if _, ok := r.RenderData().([]entryRow); !ok {
		t.Errorf("RenderData() should prefer Data, got %T", r.RenderData())
	}
}

func TestFormatterOutputFormats(t *testing.T) {
	rows := []entryRow{{Entry: "<A: void a()>", Starts: 2}}
	tests := []struct {
		format Format
		data   any
		want   []string
		reject []string
	}{
		{FormatJSON, rows, []string{`"entry": "<A: void a()>"`}, nil},
		{FormatTOON, rows, []string{"entry", "<A: void a()>"}, []string{`"entry":`}},
		{FormatMarkdown, rows, []string{"```json", `"starts": 2`}, nil},
		{FormatText, summaryTable(), []string{"<A: void a()>"}, []string{"| --- |"}},
		{FormatMarkdown, summaryTable(), []string{"| --- | --- | --- |"}, nil},
		{FormatTOON, summaryTable(), []string{"Entry"}, nil},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			var buf bytes.Buffer
			f := NewWriterFormatter(tt.format, &buf, false)
			if err := f.Output(tt.data); err != nil {
				t.Fatalf("Output() error: %v", err)
			}
			for _, w := range tt.want {
				if !strings.Contains(buf.String(), w) {
					t.Errorf("output missing %q:\n%s", w, buf.String())
				}
			}
			for _, r := range tt.reject {
				if strings.Contains(buf.String(), r) {
					t.Errorf("output should not contain %q:\n%s", r, buf.String())
				}
			}
		})
	}
}

func TestEncode(t *testing.T) {
	data := struct {
		Count string `json:"count" toon:"count"`
	}{"2"}

	js, err := Encode(data, FormatJSON)
	if err != nil {
		t.Fatal(err)
	}
	if js != "{\n  \"count\": \"2\"\n}" {
		t.Errorf("Encode(json) = %q", js)
	}

	sig, err := Encode(entryRow{Entry: "<A: void a()>"}, FormatJSON)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(sig, `"entry": "<A: void a()>"`) {
		t.Errorf("Encode(json) escaped the signature: %s", sig)
	}

	md, err := Encode(data, FormatMarkdown)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(md, "```\n") || !strings.HasSuffix(md, "\n```") {
		t.Errorf("Encode(markdown) = %q", md)
	}

	tn, err := Encode(data, FormatTOON)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(tn, "count") || strings.Contains(tn, "{") {
		t.Errorf("Encode(toon) = %q", tn)
	}
}

func TestFormatterMessages(t *testing.T) {
	var buf bytes.Buffer
	f := NewWriterFormatter(FormatText, &buf, false)

	f.Success("mined %d entry points", 2)
	f.Warning("%d entry points failed", 1)
	f.Info("wrote %s", "db.json")

	want := "mined 2 entry points\n" +
		"WARNING: 1 entry points failed\n" +
		"wrote db.json\n"
	if got := buf.String(); got != want {
		t.Errorf("messages =\n%s\nwant\n%s", got, want)
	}
}

func TestColoredMessagesUseWriter(t *testing.T) {
	var buf bytes.Buffer
	f := NewWriterFormatter(FormatText, &buf, true)
	f.Warning("%d entry points failed", 1)
	if !strings.Contains(buf.String(), "1 entry points failed") {
		t.Errorf("colored message not written to the formatter's writer: %q", buf.String())
	}
}

func TestCountColor(t *testing.T) {
	for _, count := range []string{"0", "1", "7", "1267650600228229401496703205376"} {
		if got := CountColor(count, count); !strings.Contains(got, count) {
			t.Errorf("CountColor(%s) = %q lost its text", count, got)
		}
	}
}
