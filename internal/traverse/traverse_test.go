package traverse_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/acminer/internal/testutil"
	"github.com/panbanda/acminer/internal/traverse"
	"github.com/panbanda/acminer/pkg/defuse"
)

const handle = "<com.example.Service: void handle(int,java.lang.String)>"

func build(t *testing.T, src string, keep bool) *defuse.Graph {
	t.Helper()
	p := testutil.Program(t, src)
	w, err := traverse.New(defuse.NewArena(), p, traverse.WithKeepReceiver(keep), traverse.WithWorkers(2))
	require.NoError(t, err)
	g, err := w.Build(context.Background(), handle)
	require.NoError(t, err)
	return g
}

func defsByStart(g *defuse.Graph) map[string][]string {
	out := make(map[string][]string)
	for _, s := range g.Starts() {
		out[s.String()] = g.DefinitionStrings(s)
	}
	return out
}

func TestBuildDropReceiver(t *testing.T) {
	g := build(t, testutil.AuthService, false)

	var starts []string
	for _, s := range g.Starts() {
		starts = append(starts, s.String())
	}
	assert.Equal(t, []string{
		"if($z{2} == $z{1})",
		"switch($z{8})",
		"if($z{13} == 0)",
		"if($z{14} < $z{16})",
	}, starts)

	got := defsByStart(g)
	assert.Equal(t, []string{
		"$z{1} = @parameter0: int",
		"$z{2} = <android.os.Binder: int getCallingUid()>()",
	}, got["if($z{2} == $z{1})"])
	assert.Equal(t, []string{"$z{8} = 7"}, got["switch($z{8})"])
	assert.Equal(t, []string{
		"$z{10} = @parameter0: int",
		"$z{13} = <com.example.AdminChecker: boolean check(int)>($z{10})",
		"$z{13} = <com.example.UserChecker: boolean check(int)>($z{10})",
	}, got["if($z{13} == 0)"])
	assert.Equal(t, []string{
		"$z{11} = @parameter1: java.lang.String",
		"$z{14} = <com.example.Base: int level>",
		"$z{16} = <com.example.Policy: int required(java.lang.String,int)>($z{11}, 3)",
	}, got["if($z{14} < $z{16})"])

	assert.True(t, g.Frozen())
	assert.Equal(t, 2, g.Stats().InlineConstants)
}

func TestBuildKeepReceiver(t *testing.T) {
	g := build(t, testutil.AuthService, true)
	got := defsByStart(g)
	assert.Equal(t, []string{
		"$z{10} = @parameter0: int",
		"$z{12} = $z{9}.<com.example.Service: com.example.Checker checker>",
		"$z{13} = $z{12}.<com.example.AdminChecker: boolean check(int)>($z{10})",
		"$z{13} = $z{12}.<com.example.UserChecker: boolean check(int)>($z{10})",
		"$z{9} = @this: com.example.Service",
	}, got["if($z{13} == 0)"])
}

func TestBuildIsRenameInvariant(t *testing.T) {
	renamed := testutil.RenameLocals(testutil.AuthService, map[string]string{
		"z0": "allowed",
		"i0": "uid",
		"r1": "permission",
		"i3": "needed",
	})
	require.NotEqual(t, testutil.AuthService, renamed)

	for _, keep := range []bool{false, true} {
		a := build(t, testutil.AuthService, keep)
		b := build(t, renamed, keep)
		assert.Equal(t, defsByStart(a), defsByStart(b), "keep receiver %v", keep)
	}
}

func TestBuildCountsResolutions(t *testing.T) {
	g := build(t, testutil.AuthService, false)
	counts := make(map[string]string)
	for s, n := range g.CountAll() {
		counts[s.String()] = n.String()
	}
	assert.Equal(t, map[string]string{
		"if($z{2} == $z{1})":  "1",
		"switch($z{8})":       "1",
		"if($z{13} == 0)":     "2",
		"if($z{14} < $z{16})": "1",
	}, counts)
}

func TestBuildAllRecordsFailures(t *testing.T) {
	p := testutil.Program(t, testutil.AuthService)
	w, err := traverse.New(defuse.NewArena(), p)
	require.NoError(t, err)

	var mu sync.Mutex
	var done []string
	tracker := traverse.NewTracker(func(current, total int, entry string) {
		mu.Lock()
		done = append(done, entry)
		mu.Unlock()
	})
	ctx := traverse.WithTracker(context.Background(), tracker)

	missing := "<com.example.Missing: void run()>"
	res := w.BuildAll(ctx, []string{missing, handle})

	require.Len(t, res.Graphs, 1)
	assert.Equal(t, handle, res.Graphs[0].Entry())
	assert.NotNil(t, res.Graph(handle))
	assert.Nil(t, res.Graph(missing))

	require.Len(t, res.Failures, 1)
	assert.Equal(t, missing, res.Failures[0].Entry)
	assert.Contains(t, res.Failures[0].Error(), "has no body")
	assert.ErrorContains(t, res.Err(), missing)

	assert.Equal(t, 2, tracker.Total())
	assert.Equal(t, 2, tracker.Current())
	assert.ElementsMatch(t, []string{missing, handle}, done)
}

func TestBuildWithoutParameterFollowing(t *testing.T) {
	p := testutil.Program(t, testutil.AuthService)
	w, err := traverse.New(defuse.NewArena(), p, traverse.WithFollowParameters(false))
	require.NoError(t, err)
	g, err := w.Build(context.Background(), handle)
	require.NoError(t, err)

	got := defsByStart(g)
	assert.Equal(t, []string{"$z{8} = @parameter0: int"}, got["switch($z{8})"])
	assert.Equal(t, []string{
		"$z{1} = @parameter0: int",
		"$z{2} = <android.os.Binder: int getCallingUid()>()",
	}, got["if($z{2} == $z{1})"])
}

func TestBuildWithoutInlineConstants(t *testing.T) {
	p := testutil.Program(t, testutil.AuthService)
	w, err := traverse.New(defuse.NewArena(), p, traverse.WithInlineConstants(false))
	require.NoError(t, err)
	g, err := w.Build(context.Background(), handle)
	require.NoError(t, err)

	assert.Zero(t, g.Stats().InlineConstants)
	assert.Equal(t, defsByStart(build(t, testutil.AuthService, false)), defsByStart(g))
}

func TestBuildHonoursCancellation(t *testing.T) {
	p := testutil.Program(t, testutil.AuthService)
	w, err := traverse.New(defuse.NewArena(), p)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = w.Build(ctx, handle)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuildSharesNodesAcrossEntries(t *testing.T) {
	p := testutil.Program(t, testutil.AuthService)
	a := defuse.NewArena()
	w, err := traverse.New(a, p)
	require.NoError(t, err)

	g1, err := w.Build(context.Background(), handle)
	require.NoError(t, err)
	n := a.Len()
	g2, err := w.Build(context.Background(), handle)
	require.NoError(t, err)

	assert.Equal(t, n, a.Len())
	for i, s := range g1.Starts() {
		assert.Same(t, s, g2.Starts()[i])
	}
}
