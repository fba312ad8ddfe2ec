package mcpserver

import (
	"bytes"
	"context"
	"embed"
	"path"
	"sort"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"gopkg.in/yaml.v3"
)

//go:embed prompts/*.md
var promptFiles embed.FS

// promptFrontmatter is parsed from YAML frontmatter in prompt files.
type promptFrontmatter struct {
	Description string           `yaml:"description"`
	Arguments   []promptArgument `yaml:"arguments"`
}

type promptArgument struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Required    bool   `yaml:"required"`
}

// promptDef is one embedded prompt.
type promptDef struct {
	Name string
	promptFrontmatter
	Body string
}

// loadPrompts reads every embedded prompt, sorted by name.
func loadPrompts() []promptDef {
	entries, err := promptFiles.ReadDir("prompts")
	if err != nil {
		return nil
	}

	var out []promptDef
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		content, err := promptFiles.ReadFile(path.Join("prompts", entry.Name()))
		if err != nil {
			continue
		}
		fm, body := parseFrontmatter(content)
		out = append(out, promptDef{
			Name:              strings.TrimSuffix(entry.Name(), ".md"),
			promptFrontmatter: fm,
			Body:              body,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// registerPrompts registers all embedded prompts.
func (s *Server) registerPrompts() {
	for _, def := range loadPrompts() {
		prompt := &mcp.Prompt{
			Name:        def.Name,
			Description: def.Description,
		}
		for _, a := range def.Arguments {
			prompt.Arguments = append(prompt.Arguments, &mcp.PromptArgument{
				Name:        a.Name,
				Description: a.Description,
				Required:    a.Required,
			})
		}
		s.server.AddPrompt(prompt, makePromptHandler(def))
	}
}

// parseFrontmatter extracts YAML frontmatter and returns it with the body.
func parseFrontmatter(content []byte) (promptFrontmatter, string) {
	var fm promptFrontmatter
	if !bytes.HasPrefix(content, []byte("---\n")) {
		return fm, string(content)
	}

	rest := content[4:]
	end := bytes.Index(rest, []byte("\n---\n"))
	if end == -1 {
		return fm, string(content)
	}

	if err := yaml.Unmarshal(rest[:end], &fm); err != nil {
		return promptFrontmatter{}, string(content)
	}
	return fm, strings.TrimPrefix(string(rest[end+5:]), "\n")
}

// renderPrompt substitutes {{name}} placeholders. Missing arguments are
// rendered as "(not given)".
func renderPrompt(def promptDef, args map[string]string) string {
	body := def.Body
	for _, a := range def.Arguments {
		v := args[a.Name]
		if v == "" {
			v = "(not given)"
		}
		body = strings.ReplaceAll(body, "{{"+a.Name+"}}", v)
	}
	return body
}

func makePromptHandler(def promptDef) mcp.PromptHandler {
	return func(ctx context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		var args map[string]string
		if req != nil && req.Params != nil {
			args = req.Params.Arguments
		}
		return &mcp.GetPromptResult{
			Description: def.Description,
			Messages: []*mcp.PromptMessage{
				{
					Role:    "user",
					Content: &mcp.TextContent{Text: renderPrompt(def, args)},
				},
			},
		}, nil
	}
}
