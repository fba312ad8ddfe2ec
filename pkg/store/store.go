// Package store persists definition-use graphs as a checksummed JSON
// document and re-binds them against freshly loaded code.
package store

import (
	"bytes"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/zeebo/blake3"

	"github.com/panbanda/acminer/pkg/defuse"
	"github.com/panbanda/acminer/pkg/defuse/ident"
)

// Version is the document format version written by this package.
const Version = 1

var (
	// ErrChecksum is returned when the stored checksum does not match the
	// document body.
	ErrChecksum = errors.New("checksum mismatch")
	// ErrSchema is returned when a document does not satisfy the schema.
	ErrSchema = errors.New("document does not match schema")
	// ErrVersion is returned for documents of an unsupported version.
	ErrVersion = errors.New("unsupported document version")
)

//go:embed schema.json
var schemaJSON []byte

const schemaURL = "defuse-db.schema.json"

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
		if err != nil {
			schemaErr = fmt.Errorf("parse schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, doc); err != nil {
			schemaErr = fmt.Errorf("add schema: %w", err)
			return
		}
		schema, schemaErr = c.Compile(schemaURL)
	})
	return schema, schemaErr
}

// Document is the persisted form of a set of graphs.
type Document struct {
	Version   int           `json:"version"`
	Program   string        `json:"program"`
	AliasNext int           `json:"alias_next"`
	Nodes     []NodeRecord  `json:"nodes"`
	Graphs    []GraphRecord `json:"graphs"`
	Checksum  string        `json:"checksum"`
}

// NodeRecord is a persisted node. IDs are only meaningful inside one
// document.
type NodeRecord struct {
	ID           int                `json:"id"`
	Kind         string             `json:"kind"`
	Method       string             `json:"method"`
	Stmt         string             `json:"stmt"`
	Target       string             `json:"target,omitempty"`
	Field        string             `json:"field,omitempty"`
	Index        int                `json:"index"`
	Base         *int               `json:"base,omitempty"`
	KeepReceiver bool               `json:"keep_receiver"`
	Identifier   []ident.PartRecord `json:"identifier"`
}

// AliasRecord identifies a local alias by number and by owning local.
type AliasRecord struct {
	Num    int    `json:"num"`
	Method string `json:"method"`
	Local  string `json:"local"`
}

// EdgeRecord lists the definitions of one alias read by one use.
type EdgeRecord struct {
	Use   int         `json:"use"`
	Alias AliasRecord `json:"alias"`
	Defs  []int       `json:"defs"`
}

// InlineRecord is an inline constant attached to a use.
type InlineRecord struct {
	Use   int `json:"use"`
	Alias int `json:"alias"`
	Leaf  int `json:"leaf"`
}

// GraphRecord is one persisted entry point graph.
type GraphRecord struct {
	Entry  string         `json:"entry"`
	Starts []int          `json:"starts"`
	Edges  []EdgeRecord   `json:"edges"`
	Inline []InlineRecord `json:"inline"`
}

// Snapshot captures graphs and every node they reference.
func Snapshot(fingerprint string, aliasNext int, graphs []*defuse.Graph) *Document {
	doc := &Document{
		Version:   Version,
		Program:   fingerprint,
		AliasNext: aliasNext,
		Nodes:     []NodeRecord{},
		Graphs:    []GraphRecord{},
	}
	nodes := make(map[defuse.ID]*defuse.Node)
	var note func(n *defuse.Node)
	note = func(n *defuse.Node) {
		if _, ok := nodes[n.ID()]; ok {
			return
		}
		nodes[n.ID()] = n
		if b := n.Base(); b != nil {
			note(b)
		}
	}

	sorted := append([]*defuse.Graph(nil), graphs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Entry() < sorted[j].Entry() })
	for _, g := range sorted {
		gr := GraphRecord{Entry: g.Entry(), Starts: []int{}, Edges: []EdgeRecord{}, Inline: []InlineRecord{}}
		for _, s := range g.Starts() {
			note(s)
			gr.Starts = append(gr.Starts, int(s.ID()))
		}
		for _, use := range g.Uses() {
			note(use)
			var cur *EdgeRecord
			for _, e := range g.Children(use) {
				note(e.Def)
				if cur == nil || cur.Alias.Num != e.Alias.Num() {
					gr.Edges = append(gr.Edges, EdgeRecord{
						Use:   int(use.ID()),
						Alias: AliasRecord{Num: e.Alias.Num(), Method: e.Alias.Method(), Local: e.Alias.Name()},
					})
					cur = &gr.Edges[len(gr.Edges)-1]
				}
				cur.Defs = append(cur.Defs, int(e.Def.ID()))
			}
			for _, ic := range g.InlineConstants(use) {
				note(ic.Leaf)
				gr.Inline = append(gr.Inline, InlineRecord{Use: int(use.ID()), Alias: ic.Alias.Num(), Leaf: int(ic.Leaf.ID())})
			}
		}
		doc.Graphs = append(doc.Graphs, gr)
	}

	ids := make([]defuse.ID, 0, len(nodes))
	for id := range nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		doc.Nodes = append(doc.Nodes, nodeRecord(nodes[id]))
	}
	return doc
}

func nodeRecord(n *defuse.Node) NodeRecord {
	rec := NodeRecord{
		ID:           int(n.ID()),
		Kind:         n.Kind().String(),
		Method:       n.Method().Signature,
		Stmt:         n.Stmt().String(),
		Index:        n.Index(),
		KeepReceiver: n.KeepReceiver(),
		Identifier:   n.Identifier().Records(),
	}
	if t := n.Target(); t != nil {
		rec.Target = t.Signature
	}
	if f, ok := n.Field(); ok {
		rec.Field = f.Signature()
	}
	if b := n.Base(); b != nil {
		id := int(b.ID())
		rec.Base = &id
	}
	return rec
}

// body returns the canonical encoding the checksum is computed over.
func (d *Document) body() ([]byte, error) {
	c := *d
	c.Checksum = ""
	return json.Marshal(&c)
}

// Seal computes and stores the checksum.
func (d *Document) Seal() error {
	b, err := d.body()
	if err != nil {
		return err
	}
	sum := blake3.Sum256(b)
	d.Checksum = hex.EncodeToString(sum[:])
	return nil
}

// Verify checks the stored checksum against the body.
func (d *Document) Verify() error {
	b, err := d.body()
	if err != nil {
		return err
	}
	sum := blake3.Sum256(b)
	if got := hex.EncodeToString(sum[:]); got != d.Checksum {
		return fmt.Errorf("%w: stored %s, computed %s", ErrChecksum, d.Checksum, got)
	}
	return nil
}

// Write seals doc and encodes it to w.
func Write(w io.Writer, doc *Document) error {
	if err := doc.Seal(); err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// Save writes doc to path, creating parent directories.
func Save(path string, doc *Document) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := Write(&buf, doc); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

type readOptions struct {
	skipSchema bool
}

// ReadOption configures Read and Load.
type ReadOption func(*readOptions)

// WithoutSchema skips schema validation. Version and checksum are still
// checked.
func WithoutSchema() ReadOption {
	return func(o *readOptions) { o.skipSchema = true }
}

// Read decodes a document, validating it against the schema, its version
// and its checksum.
func Read(r io.Reader, opts ...ReadOption) (*Document, error) {
	var o readOptions
	for _, opt := range opts {
		opt(&o)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if !o.skipSchema {
		if err := validate(data); err != nil {
			return nil, err
		}
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}
	if doc.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrVersion, doc.Version)
	}
	if err := doc.Verify(); err != nil {
		return nil, err
	}
	return &doc, nil
}

func validate(data []byte) error {
	sch, err := compiledSchema()
	if err != nil {
		return err
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}
	if err := sch.Validate(inst); err != nil {
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}
	return nil
}

// Load reads and validates the document at path.
func Load(path string, opts ...ReadOption) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	doc, err := Read(f, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}
