package store_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/acminer/internal/testutil"
	"github.com/panbanda/acminer/internal/traverse"
	"github.com/panbanda/acminer/pkg/defuse"
	"github.com/panbanda/acminer/pkg/defuse/fault"
	"github.com/panbanda/acminer/pkg/ir"
	"github.com/panbanda/acminer/pkg/store"
)

const (
	handle = "<com.example.Service: void handle(int,java.lang.String)>"
	grant  = "<com.example.Service: void grant(int)>"
)

// twoEntries adds grant as a second, independent entry point.
var twoEntries = strings.Replace(testutil.AuthService,
	"entrypoints:\n",
	"entrypoints:\n  - \""+grant+"\"\n", 1)

func mine(t *testing.T, src string, keep bool) (*ir.Program, *defuse.Arena, *store.Document) {
	t.Helper()
	p := testutil.Program(t, src)
	a := defuse.NewArena()
	w, err := traverse.New(a, p, traverse.WithKeepReceiver(keep))
	require.NoError(t, err)
	res := w.BuildAll(context.Background(), p.EntryPoints())
	require.Empty(t, res.Failures)
	return p, a, store.Snapshot(p.Fingerprint(), a.Aliases().Next(), res.Graphs)
}

func defStrings(g *defuse.Graph) map[string][]string {
	out := make(map[string][]string)
	for _, s := range g.Starts() {
		out[s.String()] = g.DefinitionStrings(s)
	}
	return out
}

func TestSaveLoadRehydrate(t *testing.T) {
	for _, keep := range []bool{false, true} {
		p, a, doc := mine(t, twoEntries, keep)
		path := filepath.Join(t.TempDir(), "db", "defuse.json")
		require.NoError(t, store.Save(path, doc))

		loaded, err := store.Load(path)
		require.NoError(t, err)
		assert.Equal(t, doc.Checksum, loaded.Checksum)
		assert.Len(t, loaded.Graphs, 2)

		fresh := testutil.Program(t, twoEntries)
		arena := defuse.NewArena()
		res, err := store.Rehydrate(loaded, fresh, arena)
		require.NoError(t, err)
		assert.Empty(t, res.Failures)
		assert.False(t, res.Stale)
		assert.Equal(t, []string{grant, handle}, res.Entries())
		assert.GreaterOrEqual(t, arena.Aliases().Next(), doc.AliasNext)

		w, err := traverse.New(a, p, traverse.WithKeepReceiver(keep))
		require.NoError(t, err)
		for _, entry := range []string{handle, grant} {
			orig, err := w.Build(context.Background(), entry)
			require.NoError(t, err)
			got := res.Graphs[entry]
			require.NotNil(t, got, entry)
			assert.True(t, got.Frozen())
			assert.Equal(t, defStrings(orig), defStrings(got), "entry %s keep %v", entry, keep)
			assert.Equal(t, orig.Stats().InlineConstants, got.Stats().InlineConstants)
		}
	}
}

func TestRehydrateFailsOnlyAffectedGraphs(t *testing.T) {
	_, _, doc := mine(t, twoEntries, false)

	changed := strings.Replace(twoEntries, "(r1, 3)", "(r1, 4)", 1)
	require.NotEqual(t, twoEntries, changed)
	res, err := store.Rehydrate(doc, testutil.Program(t, changed), defuse.NewArena())
	require.NoError(t, err)

	assert.True(t, res.Stale)
	assert.Contains(t, res.Graphs, grant)
	require.Contains(t, res.Failures, handle)
	assert.True(t, errors.Is(res.Failures[handle], fault.ErrResolveMismatch), "got %v", res.Failures[handle])
}

func TestRehydrateRejectsCorruptedIdentifiers(t *testing.T) {
	_, _, doc := mine(t, testutil.AuthService, false)

	for i := range doc.Nodes {
		for j := range doc.Nodes[i].Identifier {
			if doc.Nodes[i].Identifier[j].Kind == "local_alias" {
				doc.Nodes[i].Identifier[j].Index += 7
			}
		}
	}
	res, err := store.Rehydrate(doc, testutil.Program(t, testutil.AuthService), defuse.NewArena())
	require.NoError(t, err)
	require.Contains(t, res.Failures, handle)
	assert.True(t, errors.Is(res.Failures[handle], fault.ErrResolveMismatch))
}

func TestRehydrateRejectsWrongAlias(t *testing.T) {
	_, _, doc := mine(t, testutil.AuthService, false)
	require.NotEmpty(t, doc.Graphs[0].Edges)
	doc.Graphs[0].Edges[0].Alias.Num += 100

	res, err := store.Rehydrate(doc, testutil.Program(t, testutil.AuthService), defuse.NewArena())
	require.NoError(t, err)
	assert.Empty(t, res.Graphs)
	assert.True(t, errors.Is(res.Failures[handle], fault.ErrResolveMismatch))
}

func TestReadRejectsTampering(t *testing.T) {
	_, _, doc := mine(t, testutil.AuthService, false)
	var buf bytes.Buffer
	require.NoError(t, store.Write(&buf, doc))

	tampered := strings.Replace(buf.String(), "switch(", "swatch(", 1)
	require.NotEqual(t, buf.String(), tampered)
	_, err := store.Read(strings.NewReader(tampered))
	assert.True(t, errors.Is(err, store.ErrChecksum), "got %v", err)

	_, err = store.Read(bytes.NewReader(buf.Bytes()))
	assert.NoError(t, err)
}

func TestReadRejectsSchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		data string
		want error
	}{
		{"not json", "{", store.ErrSchema},
		{"missing fields", `{"version": 1}`, store.ErrSchema},
		{"bad checksum format", `{"version":1,"program":"","alias_next":0,"nodes":[],"graphs":[],"checksum":"xyz"}`, store.ErrSchema},
		{"unknown node kind", `{"version":1,"program":"","alias_next":0,"graphs":[],"checksum":"` + strings.Repeat("0", 64) + `",
			"nodes":[{"id":0,"kind":"weird","method":"m","stmt":"s","index":-1,"keep_receiver":false,"identifier":[{"kind":"literal","orig":"a","cur":"a","index":-1}]}]}`, store.ErrSchema},
		{"future version", `{"version":9,"program":"","alias_next":0,"nodes":[],"graphs":[],"checksum":"` + strings.Repeat("0", 64) + `"}`, store.ErrVersion},
		{"wrong checksum", `{"version":1,"program":"","alias_next":0,"nodes":[],"graphs":[],"checksum":"` + strings.Repeat("0", 64) + `"}`, store.ErrChecksum},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.Read(strings.NewReader(tt.data))
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestReadWithoutSchema(t *testing.T) {
	_, _, doc := mine(t, testutil.AuthService, false)
	var buf bytes.Buffer
	require.NoError(t, store.Write(&buf, doc))

	// An extra property violates the schema but not the checksum, which is
	// computed over the decoded struct.
	withExtra := strings.Replace(buf.String(), "{\n  \"version\"", "{\n  \"note\": \"x\",\n  \"version\"", 1)
	require.NotEqual(t, buf.String(), withExtra)

	_, err := store.Read(strings.NewReader(withExtra))
	assert.True(t, errors.Is(err, store.ErrSchema), "got %v", err)

	got, err := store.Read(strings.NewReader(withExtra), store.WithoutSchema())
	require.NoError(t, err)
	assert.Equal(t, doc.Checksum, got.Checksum)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := store.Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
