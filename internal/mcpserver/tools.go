package mcpserver

import (
	"context"
	"errors"
	"sort"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/panbanda/acminer/internal/output"
	"github.com/panbanda/acminer/internal/service/mining"
	"github.com/panbanda/acminer/pkg/store"
)

// GraphInput selects the graphs a tool reports on.
type GraphInput struct {
	Program  string   `json:"program,omitempty" jsonschema:"Path to the program file (YAML). Required unless database is given to count_resolutions."`
	Database string   `json:"database,omitempty" jsonschema:"Path to a database written by acminer mine. When set the graphs are reloaded instead of rebuilt."`
	Entries  []string `json:"entries,omitempty" jsonschema:"Entry point signatures. Defaults to the entry points declared in the program."`
	Format   string   `json:"format,omitempty" jsonschema:"Output format: toon (default), json, or markdown."`
}

func getFormat(input GraphInput) output.Format {
	switch input.Format {
	case "json":
		return output.FormatJSON
	case "markdown":
		return output.FormatMarkdown
	default:
		return output.FormatTOON
	}
}

func toolResult(data any, format output.Format) (*mcp.CallToolResult, any, error) {
	text, err := output.Encode(data, format)
	if err != nil {
		return nil, nil, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}, nil, nil
}

func toolError(msg string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: "Error: " + msg},
		},
		IsError: true,
	}, nil, nil
}

// summaries builds or reloads the graphs selected by input.
func (s *Server) summaries(ctx context.Context, input GraphInput, withDefs bool) ([]mining.EntrySummary, error) {
	if input.Program == "" {
		return nil, errors.New("program is required")
	}
	p, err := s.mining.LoadProgram(input.Program)
	if err != nil {
		return nil, err
	}

	if input.Database != "" {
		res, err := s.mining.Reload(p, input.Database)
		if err != nil {
			return nil, err
		}
		var out []mining.EntrySummary
		for _, e := range res.Entries() {
			if len(input.Entries) > 0 && !contains(input.Entries, e) {
				continue
			}
			if g, ok := res.Graphs[e]; ok {
				out = append(out, mining.Summarize(g, withDefs))
			} else {
				out = append(out, mining.Failed(map[string]error{e: res.Failures[e]})...)
			}
		}
		return out, nil
	}

	m, err := s.mining.Mine(ctx, p, mining.MineOptions{Entries: input.Entries})
	if err != nil {
		return nil, err
	}
	out := make([]mining.EntrySummary, 0, len(m.Graphs)+len(m.Failures))
	for _, g := range m.Graphs {
		out = append(out, mining.Summarize(g, withDefs))
	}
	failed := make(map[string]error, len(m.Failures))
	for _, f := range m.Failures {
		failed[f.Entry] = f.Err
	}
	out = append(out, mining.Failed(failed)...)
	sort.Slice(out, func(i, j int) bool { return out[i].Entry < out[j].Entry })
	return out, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Tool handlers

func (s *Server) handleCountResolutions(ctx context.Context, req *mcp.CallToolRequest, input GraphInput) (*mcp.CallToolResult, any, error) {
	format := getFormat(input)

	// A database alone is counted from its stored renderings.
	if input.Program == "" && input.Database != "" {
		doc, err := store.Load(input.Database)
		if err != nil {
			return toolError(err.Error())
		}
		counts, err := mining.CountDocument(doc)
		if err != nil {
			return toolError(err.Error())
		}
		for i := range counts {
			for j := range counts[i].Definitions {
				counts[i].Definitions[j].Definitions = nil
			}
		}
		return toolResult(struct {
			Entries []mining.EntrySummary `json:"entries" toon:"entries"`
		}{counts}, format)
	}

	sums, err := s.summaries(ctx, input, true)
	if err != nil {
		return toolError(err.Error())
	}
	for i := range sums {
		for j := range sums[i].Definitions {
			sums[i].Definitions[j].Definitions = nil
		}
	}
	return toolResult(struct {
		Entries []mining.EntrySummary `json:"entries" toon:"entries"`
	}{sums}, format)
}

func (s *Server) handleShowDefinitions(ctx context.Context, req *mcp.CallToolRequest, input GraphInput) (*mcp.CallToolResult, any, error) {
	format := getFormat(input)

	sums, err := s.summaries(ctx, input, true)
	if err != nil {
		return toolError(err.Error())
	}
	if len(sums) == 0 {
		return toolError("no matching entry points")
	}
	return toolResult(struct {
		Entries []mining.EntrySummary `json:"entries" toon:"entries"`
	}{sums}, format)
}
