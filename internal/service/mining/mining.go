// Package mining ties program loading, graph construction, persistence
// and caching together for the CLI and the MCP server.
package mining

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"sort"

	"github.com/panbanda/acminer/internal/cache"
	"github.com/panbanda/acminer/internal/traverse"
	"github.com/panbanda/acminer/pkg/config"
	"github.com/panbanda/acminer/pkg/defuse"
	"github.com/panbanda/acminer/pkg/defuse/ident"
	"github.com/panbanda/acminer/pkg/ir"
	"github.com/panbanda/acminer/pkg/store"
)

// Service orchestrates mining operations.
type Service struct {
	config *config.Config
	log    *slog.Logger
	cache  *cache.Cache
}

// Option configures a Service.
type Option func(*Service)

// WithConfig sets the configuration.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		s.config = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithCache enables reuse of previously mined databases.
func WithCache(c *cache.Cache) Option {
	return func(s *Service) {
		s.cache = c
	}
}

// New creates a new mining service.
func New(opts ...Option) *Service {
	s := &Service{
		config: config.LoadOrDefault(),
		log:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the service configuration.
func (s *Service) Config() *config.Config {
	return s.config
}

// LoadProgram reads a program file.
func (s *Service) LoadProgram(path string) (*ir.Program, error) {
	p, err := ir.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load program: %w", err)
	}
	s.log.Debug("program loaded", "path", path, "methods", len(p.Methods()), "fingerprint", p.Fingerprint())
	return p, nil
}

// MineOptions configures Mine.
type MineOptions struct {
	// Entries overrides the entry points declared by the program.
	Entries []string
	// OnAliasMethod is called once per method while aliases are assigned.
	OnAliasMethod func(*ir.Method)
	// OnEntry is called after each entry point finishes.
	OnEntry traverse.ProgressFunc
}

// Mined is the outcome of a Mine call.
type Mined struct {
	Program  *ir.Program
	Arena    *defuse.Arena
	Graphs   []*defuse.Graph
	Failures traverse.EntryErrors
	Document *store.Document
	// Cached is set when the graphs were re-bound from a cached database.
	Cached bool
}

// Mine builds the graphs of every requested entry point of p. A cached
// database is used when one exists for the same program and settings and
// all of its graphs re-bind cleanly.
func (s *Service) Mine(ctx context.Context, p *ir.Program, opts MineOptions) (*Mined, error) {
	entries := opts.Entries
	if len(entries) == 0 {
		entries = p.EntryPoints()
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("no entry points: declare them in the program or pass them explicitly")
	}
	an := s.config.Analysis
	key := cache.Key(p.Fingerprint(), cache.Settings{
		KeepReceiver:     an.KeepReceiver,
		FollowParameters: an.FollowParameters,
		InlineConstants:  an.InlineConstants,
		Entries:          entries,
	})

	if s.cache != nil {
		if doc, ok := s.cache.GetDocument(key); ok {
			m, err := s.fromDocument(p, doc, opts)
			if err == nil {
				s.log.Info("reused cached database", "entries", len(m.Graphs))
				return m, nil
			}
			s.log.Debug("cached database could not be re-bound", "error", err)
		}
	}

	arena := defuse.NewArena(defuse.WithLogger(s.log))
	if err := arena.BeginRun(p, opts.OnAliasMethod); err != nil {
		return nil, err
	}
	w, err := traverse.New(arena, p,
		traverse.WithKeepReceiver(an.KeepReceiver),
		traverse.WithFollowParameters(an.FollowParameters),
		traverse.WithInlineConstants(an.InlineConstants),
		traverse.WithWorkers(an.Workers),
		traverse.WithLogger(s.log),
	)
	if err != nil {
		return nil, err
	}
	if opts.OnEntry != nil {
		ctx = traverse.WithTracker(ctx, traverse.NewTracker(opts.OnEntry))
	}
	res := w.BuildAll(ctx, entries)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, c := range arena.Collisions() {
		s.log.Warn("distinct nodes share a rendering", "text", c.Text, "nodes", len(c.Nodes))
	}

	doc := store.Snapshot(p.Fingerprint(), arena.Aliases().Next(), res.Graphs)
	if len(res.Failures) == 0 && s.cache != nil {
		if err := s.cache.PutDocument(key, doc); err != nil {
			s.log.Warn("could not cache database", "error", err)
		}
	}
	return &Mined{
		Program:  p,
		Arena:    arena,
		Graphs:   res.Graphs,
		Failures: res.Failures,
		Document: doc,
	}, nil
}

func (s *Service) fromDocument(p *ir.Program, doc *store.Document, opts MineOptions) (*Mined, error) {
	arena := defuse.NewArena(defuse.WithLogger(s.log))
	if err := arena.BeginRun(p, opts.OnAliasMethod); err != nil {
		return nil, err
	}
	res, err := store.Rehydrate(doc, p, arena)
	if err != nil {
		return nil, err
	}
	if len(res.Failures) > 0 {
		return nil, fmt.Errorf("%d cached graphs failed to re-bind", len(res.Failures))
	}
	m := &Mined{Program: p, Arena: arena, Document: doc, Cached: true}
	for i, e := range res.Entries() {
		m.Graphs = append(m.Graphs, res.Graphs[e])
		if opts.OnEntry != nil {
			opts.OnEntry(i+1, len(res.Graphs), e)
		}
	}
	return m, nil
}

// Save writes the database of m to path.
func (s *Service) Save(m *Mined, path string) error {
	if err := store.Save(path, m.Document); err != nil {
		return fmt.Errorf("save database: %w", err)
	}
	s.log.Info("database written", "path", path, "graphs", len(m.Document.Graphs), "nodes", len(m.Document.Nodes))
	return nil
}

// Reload reads the database at path and re-binds it against p.
func (s *Service) Reload(p *ir.Program, path string) (*store.Result, error) {
	var opts []store.ReadOption
	if !s.config.Store.ValidateSchema {
		opts = append(opts, store.WithoutSchema())
	}
	doc, err := store.Load(path, opts...)
	if err != nil {
		return nil, err
	}
	res, err := store.Rehydrate(doc, p, defuse.NewArena(defuse.WithLogger(s.log)))
	if err != nil {
		return nil, err
	}
	if res.Stale {
		s.log.Warn("database was written for a different program", "path", path)
	}
	for entry, err := range res.Failures {
		s.log.Warn("graph could not be re-bound", "entry", entry, "error", err)
	}
	return res, nil
}

// Reinterpret re-interns graphs under the given receiver policy and
// snapshots them as a database for p. The graphs must share one arena.
func (s *Service) Reinterpret(p *ir.Program, graphs []*defuse.Graph, keepReceiver bool) (*Mined, error) {
	if len(graphs) == 0 {
		return nil, fmt.Errorf("no graphs to reinterpret")
	}
	arena := graphs[0].Arena()
	out := make([]*defuse.Graph, 0, len(graphs))
	for _, g := range graphs {
		if g.Arena() != arena {
			return nil, fmt.Errorf("graph %s belongs to another arena", g.Entry())
		}
		ng, err := g.Reinterpret(keepReceiver)
		if err != nil {
			return nil, fmt.Errorf("reinterpret %s: %w", g.Entry(), err)
		}
		out = append(out, ng)
	}
	s.log.Info("graphs reinterpreted", "graphs", len(out), "keep_receiver", keepReceiver)
	return &Mined{
		Program:  p,
		Arena:    arena,
		Graphs:   out,
		Document: store.Snapshot(p.Fingerprint(), arena.Aliases().Next(), out),
	}, nil
}

// StartSummary is one start statement with its definitions.
type StartSummary struct {
	Stmt        string   `json:"stmt" toon:"stmt"`
	Source      string   `json:"source" toon:"source"`
	Definitions []string `json:"definitions" toon:"definitions"`
	Resolutions string   `json:"resolutions" toon:"resolutions"`
}

// EntrySummary describes the graph of one entry point.
type EntrySummary struct {
	Entry           string         `json:"entry" toon:"entry"`
	Starts          int            `json:"starts" toon:"starts"`
	Nodes           int            `json:"nodes" toon:"nodes"`
	Edges           int            `json:"edges" toon:"edges"`
	InlineConstants int            `json:"inline_constants" toon:"inline_constants"`
	Cycles          int            `json:"cycles" toon:"cycles"`
	Resolutions     string         `json:"resolutions" toon:"resolutions"`
	Error           string         `json:"error,omitempty" toon:"error,omitempty"`
	Definitions     []StartSummary `json:"definitions,omitempty" toon:"definitions,omitempty"`
}

// Summarize describes g. Resolutions is the sum over its starts. When
// withDefs is set the definitions of each start are included.
func Summarize(g *defuse.Graph, withDefs bool) EntrySummary {
	st := g.Stats()
	sum := EntrySummary{
		Entry:           g.Entry(),
		Starts:          st.Starts,
		Nodes:           st.Nodes,
		Edges:           st.Edges,
		InlineConstants: st.InlineConstants,
		Cycles:          st.Cycles,
	}
	total := new(big.Int)
	for _, d := range Definitions(g) {
		n, _ := new(big.Int).SetString(d.Resolutions, 10)
		total.Add(total, n)
		if withDefs {
			sum.Definitions = append(sum.Definitions, d)
		}
	}
	sum.Resolutions = total.String()
	return sum
}

// Definitions lists every start of g with its definitions and count.
func Definitions(g *defuse.Graph) []StartSummary {
	out := make([]StartSummary, 0, len(g.Starts()))
	for _, s := range g.Starts() {
		out = append(out, StartSummary{
			Stmt:        s.String(),
			Source:      s.Method().Signature,
			Definitions: g.DefinitionStrings(s),
			Resolutions: g.CountResolutions(s).String(),
		})
	}
	return out
}

// Failed returns summaries for entry points that have no graph.
func Failed(failures map[string]error) []EntrySummary {
	out := make([]EntrySummary, 0, len(failures))
	for e, err := range failures {
		out = append(out, EntrySummary{Entry: e, Resolutions: "0", Error: err.Error()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Entry < out[j].Entry })
	return out
}

// CountDump counts the resolutions of every block of a text dump.
func CountDump(r io.Reader) ([]StartSummary, error) {
	blocks, err := defuse.ParseDump(r)
	if err != nil {
		return nil, err
	}
	out := make([]StartSummary, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, StartSummary{
			Stmt:        b.Stmt,
			Source:      b.Source,
			Definitions: b.Defs,
			Resolutions: b.Count().String(),
		})
	}
	return out, nil
}

// CountDocument counts the resolutions of a database without a program.
// Definition strings are rebuilt from the stored node renderings.
func CountDocument(doc *store.Document) ([]EntrySummary, error) {
	text := make(map[int]string, len(doc.Nodes))
	source := make(map[int]string, len(doc.Nodes))
	for _, rec := range doc.Nodes {
		id, err := ident.Decode(rec.Identifier)
		if err != nil {
			return nil, fmt.Errorf("node %d: %w", rec.ID, err)
		}
		text[rec.ID] = id.String()
		source[rec.ID] = rec.Method
	}

	out := make([]EntrySummary, 0, len(doc.Graphs))
	for _, gr := range doc.Graphs {
		byUse := make(map[int][]store.EdgeRecord)
		for _, e := range gr.Edges {
			byUse[e.Use] = append(byUse[e.Use], e)
		}
		sum := EntrySummary{Entry: gr.Entry, Starts: len(gr.Starts)}
		total := new(big.Int)
		for _, start := range gr.Starts {
			defs := storedDefinitions(start, byUse, text)
			n := defuse.CountResolutions(text[start], defs)
			total.Add(total, n)
			sum.Definitions = append(sum.Definitions, StartSummary{
				Stmt:        text[start],
				Source:      source[start],
				Definitions: defs,
				Resolutions: n.String(),
			})
		}
		sum.Resolutions = total.String()
		out = append(out, sum)
	}
	return out, nil
}

func storedDefinitions(start int, byUse map[int][]store.EdgeRecord, text map[int]string) []string {
	set := make(map[string]struct{})
	visited := map[int]bool{start: true}
	stack := []int{start}
	for len(stack) > 0 {
		use := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, e := range byUse[use] {
			for _, d := range e.Defs {
				set[fmt.Sprintf("$z{%d} = %s", e.Alias.Num, text[d])] = struct{}{}
				if !visited[d] {
					visited[d] = true
					stack = append(stack, d)
				}
			}
		}
	}
	out := make([]string, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}
