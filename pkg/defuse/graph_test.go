package defuse_test

import (
	"errors"
	"testing"

	"github.com/sourcegraph/conc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/acminer/internal/testutil"
	"github.com/panbanda/acminer/pkg/defuse"
	"github.com/panbanda/acminer/pkg/defuse/fault"
	"github.com/panbanda/acminer/pkg/ir"
)

type fixture struct {
	p     *ir.Program
	a     *defuse.Arena
	g     *defuse.Graph
	start *defuse.Node
	admin *defuse.Node
	user  *defuse.Node
	param *defuse.Node
	m     *ir.Method
}

func (f *fixture) local(t *testing.T, name string) *ir.Local {
	t.Helper()
	l, ok := f.m.Body.Local(name)
	require.True(t, ok, name)
	return l
}

// newFixture wires "if z0 == 0" to both checker targets, each of which
// reads the entry parameter i0.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	p, a := newArena(t)
	f := &fixture{p: p, a: a, m: method(t, p, handle)}

	var err error
	_, s := testutil.Stmt(t, p, handle, "if z0 == 0 goto L1")
	f.start, err = a.NewDef(f.m, s, nil, false)
	require.NoError(t, err)
	_, s = testutil.Stmt(t, p, handle, checkerCall)
	f.admin, err = a.NewDef(f.m, s, method(t, p, adminCheck), false)
	require.NoError(t, err)
	f.user, err = a.NewDef(f.m, s, method(t, p, userCheck), false)
	require.NoError(t, err)
	_, s = testutil.Stmt(t, p, handle, "i0 := @parameter0: int")
	f.param, err = a.NewDef(f.m, s, nil, false)
	require.NoError(t, err)

	f.g, err = defuse.NewGraph(a, handle, []*defuse.Node{f.start})
	require.NoError(t, err)
	require.NoError(t, f.g.AddChildLocal(f.start, f.local(t, "z0"), f.admin))
	require.NoError(t, f.g.AddChildLocal(f.start, f.local(t, "z0"), f.user))
	require.NoError(t, f.g.AddChildLocal(f.admin, f.local(t, "i0"), f.param))
	require.NoError(t, f.g.AddChildLocal(f.user, f.local(t, "i0"), f.param))
	return f
}

func TestNewGraphRejectsNonStarts(t *testing.T) {
	f := newFixture(t)
	_, err := defuse.NewGraph(f.a, handle, []*defuse.Node{f.admin})
	assert.True(t, errors.Is(err, fault.ErrClassificationGap), "got %v", err)
}

func TestChildren(t *testing.T) {
	f := newFixture(t)

	edges := f.g.Children(f.start)
	require.Len(t, edges, 2)
	assert.Equal(t, "$z{13}", edges[0].Alias.String())
	assert.Same(t, f.admin, edges[0].Def)
	assert.Same(t, f.user, edges[1].Def)

	assert.Equal(t, []*defuse.Node{f.param}, f.g.ChildNodes(f.admin))
	assert.Empty(t, f.g.ChildNodes(f.param))
	assert.Len(t, f.g.Uses(), 3)
}

func TestAddChildRejectsLeafUse(t *testing.T) {
	f := newFixture(t)
	err := f.g.AddChildLocal(f.param, f.local(t, "i0"), f.admin)
	assert.True(t, errors.Is(err, defuse.ErrLeafUse), "got %v", err)
}

func TestFrozenGraph(t *testing.T) {
	f := newFixture(t)
	f.g.Freeze()
	assert.True(t, f.g.Frozen())

	err := f.g.AddChildLocal(f.start, f.local(t, "z0"), f.admin)
	assert.True(t, errors.Is(err, fault.ErrFrozen), "got %v", err)

	leaf, err := f.a.InlineConstant(f.start, 3)
	require.NoError(t, err)
	_, err = f.g.AddInlineConstant(f.start, leaf)
	assert.True(t, errors.Is(err, fault.ErrFrozen), "got %v", err)

	assert.NotEmpty(t, f.g.DefinitionStrings(f.start))
}

func TestDefinitionStrings(t *testing.T) {
	f := newFixture(t)
	want := []string{
		"$z{10} = @parameter0: int",
		"$z{13} = <com.example.AdminChecker: boolean check(int)>($z{10})",
		"$z{13} = <com.example.UserChecker: boolean check(int)>($z{10})",
	}
	assert.Equal(t, want, f.g.DefinitionStrings(f.start))

	// Cached until invalidated.
	_, s := testutil.Stmt(t, f.p, handle, "i3 = (int) i2")
	cast, err := f.a.NewDef(f.m, s, nil, false)
	require.NoError(t, err)
	require.NoError(t, f.g.AddChildLocal(f.start, f.local(t, "z0"), cast))
	assert.Equal(t, want, f.g.DefinitionStrings(f.start))

	f.g.InvalidateDefinitionStrings()
	assert.Contains(t, f.g.DefinitionStrings(f.start), "$z{13} = (int) $z{15}")
}

func TestInlineConstantsStayOutOfDefinitionStrings(t *testing.T) {
	f := newFixture(t)
	next := f.a.Aliases().Next()
	leaf, err := f.a.InlineConstant(f.start, 3)
	require.NoError(t, err)

	c, err := f.g.AddInlineConstant(f.start, leaf)
	require.NoError(t, err)
	assert.Equal(t, next, c.Num())
	assert.Equal(t, "$c{20}", c.String())

	ics := f.g.InlineConstants(f.start)
	require.Len(t, ics, 1)
	assert.Same(t, leaf, ics[0].Leaf)
	assert.Len(t, f.g.DefinitionStrings(f.start), 3)

	assert.Error(t, f.g.RestoreInlineConstant(f.start, c, f.param))
}

func TestUsesOf(t *testing.T) {
	f := newFixture(t)

	a, uses, ok := f.g.UsesOf(f.start, f.param)
	require.True(t, ok)
	assert.Equal(t, "$z{10}", a.String())
	assert.Equal(t, []*defuse.Node{f.admin, f.user}, uses)

	a, uses, ok = f.g.UsesOf(f.start, f.admin)
	require.True(t, ok)
	assert.Equal(t, "$z{13}", a.String())
	assert.Equal(t, []*defuse.Node{f.start}, uses)

	_, _, ok = f.g.UsesOf(f.start, f.start)
	assert.False(t, ok)
}

func TestDerivedIndicesTerminateOnCycles(t *testing.T) {
	f := newFixture(t)
	_, s := testutil.Stmt(t, f.p, handle, "i3 = (int) i2")
	cast, err := f.a.NewDef(f.m, s, nil, false)
	require.NoError(t, err)
	_, s = testutil.Stmt(t, f.p, handle, requiredCall)
	call, err := f.a.NewDef(f.m, s, method(t, f.p, "<com.example.Policy: int required(java.lang.String,int)>"), false)
	require.NoError(t, err)

	require.NoError(t, f.g.AddChildLocal(f.start, f.local(t, "z0"), cast))
	require.NoError(t, f.g.AddChildLocal(cast, f.local(t, "i2"), call))
	require.NoError(t, f.g.AddChildLocal(call, f.local(t, "r1"), cast))
	require.NoError(t, f.g.AddChildLocal(cast, f.local(t, "i2"), cast))

	defs := f.g.DefinitionStrings(f.start)
	assert.Contains(t, defs, "$z{11} = (int) $z{15}")
	assert.Contains(t, defs, "$z{15} = (int) $z{15}")
	assert.Equal(t, 1, f.g.CountResolutions(f.start).Sign())

	_, uses, ok := f.g.UsesOf(f.start, cast)
	require.True(t, ok)
	assert.ElementsMatch(t, []*defuse.Node{f.start, call, cast}, uses)

	st := f.g.Stats()
	assert.Equal(t, 1, st.Starts)
	assert.Equal(t, 6, st.Nodes)
	assert.Equal(t, 8, st.Edges)
	assert.Equal(t, 1, st.Cycles)
	assert.Equal(t, 2, st.LargestSCC)
	assert.Equal(t, 1, st.SelfLoops)
	assert.NotEmpty(t, st.Central)
}

func TestGraphString(t *testing.T) {
	f := newFixture(t)
	want := "Stmt: if($z{13} == 0) Source: " + handle + "\n" +
		"  Def: $z{10} = @parameter0: int\n" +
		"  Def: $z{13} = <com.example.AdminChecker: boolean check(int)>($z{10})\n" +
		"  Def: $z{13} = <com.example.UserChecker: boolean check(int)>($z{10})\n"
	assert.Equal(t, want, f.g.String())
}

func TestGraphCountResolutions(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, "2", f.g.CountResolutions(f.start).String())

	counts := f.g.CountAll()
	require.Len(t, counts, 1)
	assert.Equal(t, "2", counts[f.start].String())
}

func TestReinterpretDropsReceiverEdges(t *testing.T) {
	p, a := newArena(t)
	m := method(t, p, handle)
	def := func(stmt, target string) *defuse.Node {
		_, s := testutil.Stmt(t, p, handle, stmt)
		var tm *ir.Method
		if target != "" {
			tm = method(t, p, target)
		}
		n, err := a.NewDef(m, s, tm, true)
		require.NoError(t, err)
		return n
	}
	local := func(name string) *ir.Local {
		l, ok := m.Body.Local(name)
		require.True(t, ok, name)
		return l
	}
	start := def("if z0 == 0 goto L1", "")
	checker := def(checkerCall, adminCheck)
	field := def("r2 = r0.<com.example.Service: com.example.Checker checker>", "")
	this := def("r0 := @this: com.example.Service", "")
	param := def("i0 := @parameter0: int", "")

	g, err := defuse.NewGraph(a, handle, []*defuse.Node{start})
	require.NoError(t, err)
	require.NoError(t, g.AddChildLocal(start, local("z0"), checker))
	require.NoError(t, g.AddChildLocal(checker, local("r2"), field))
	require.NoError(t, g.AddChildLocal(checker, local("i0"), param))
	require.NoError(t, g.AddChildLocal(field, local("r0"), this))
	leaf, err := a.InlineConstant(start, 3)
	require.NoError(t, err)
	c, err := g.AddInlineConstant(start, leaf)
	require.NoError(t, err)

	kept := []string{
		"$z{10} = @parameter0: int",
		"$z{12} = $z{9}.<com.example.Service: com.example.Checker checker>",
		"$z{13} = $z{12}.<com.example.AdminChecker: boolean check(int)>($z{10})",
		"$z{9} = @this: com.example.Service",
	}
	require.Equal(t, kept, g.DefinitionStrings(start))

	dropped, err := g.Reinterpret(false)
	require.NoError(t, err)
	assert.True(t, dropped.Frozen())
	assert.Equal(t, handle, dropped.Entry())
	require.Len(t, dropped.Starts(), 1)
	ns := dropped.Starts()[0]
	assert.False(t, ns.KeepReceiver())
	assert.Equal(t, "if($z{13} == 0)", ns.String())
	assert.Equal(t, []string{
		"$z{10} = @parameter0: int",
		"$z{13} = <com.example.AdminChecker: boolean check(int)>($z{10})",
	}, dropped.DefinitionStrings(ns))
	assert.Equal(t, "1", dropped.CountResolutions(ns).String())

	demoted, err := a.Reinterpret(field, false)
	require.NoError(t, err)
	assert.Equal(t, defuse.KindFieldLeaf, demoted.Kind())
	assert.Empty(t, dropped.Children(demoted))

	ics := dropped.InlineConstants(ns)
	require.Len(t, ics, 1)
	assert.Equal(t, c, ics[0].Alias)
	assert.Same(t, ns, ics[0].Leaf.Base())

	// The source graph is untouched.
	assert.False(t, g.Frozen())
	assert.Equal(t, kept, g.DefinitionStrings(start))

	same, err := g.Reinterpret(true)
	require.NoError(t, err)
	assert.Same(t, start, same.Starts()[0])
	assert.Equal(t, kept, same.DefinitionStrings(start))
}

func TestReinterpretKeepingReceiversLeavesThemUnresolved(t *testing.T) {
	f := newFixture(t)

	kept, err := f.g.Reinterpret(true)
	require.NoError(t, err)
	ns := kept.Starts()[0]
	assert.True(t, ns.KeepReceiver())
	assert.Equal(t, []string{
		"$z{10} = @parameter0: int",
		"$z{13} = $z{12}.<com.example.AdminChecker: boolean check(int)>($z{10})",
		"$z{13} = $z{12}.<com.example.UserChecker: boolean check(int)>($z{10})",
	}, kept.DefinitionStrings(ns))
	assert.Equal(t, "2", kept.CountResolutions(ns).String())
}

type usesOf struct {
	alias string
	uses  []*defuse.Node
	ok    bool
}

func snapshotUsesOf(g *defuse.Graph, nodes []*defuse.Node) map[[2]defuse.ID]usesOf {
	out := make(map[[2]defuse.ID]usesOf)
	for _, s := range g.Starts() {
		for _, n := range nodes {
			a, uses, ok := g.UsesOf(s, n)
			u := usesOf{uses: uses, ok: ok}
			if a != nil {
				u.alias = a.String()
			}
			out[[2]defuse.ID{s.ID(), n.ID()}] = u
		}
	}
	return out
}

func TestDefToUseRecomputesIdentically(t *testing.T) {
	f := newFixture(t)
	_, s := testutil.Stmt(t, f.p, handle, "i3 = (int) i2")
	cast, err := f.a.NewDef(f.m, s, nil, false)
	require.NoError(t, err)
	require.NoError(t, f.g.AddChildLocal(f.start, f.local(t, "z0"), cast))
	require.NoError(t, f.g.AddChildLocal(cast, f.local(t, "i2"), cast))

	before := snapshotUsesOf(f.g, f.a.Nodes())
	f.g.ComputeDefToUse()
	assert.Equal(t, before, snapshotUsesOf(f.g, f.a.Nodes()))

	f.g.InvalidateDefToUse()
	f.g.ComputeDefToUse()
	assert.Equal(t, before, snapshotUsesOf(f.g, f.a.Nodes()))

	// Cached until invalidated.
	require.NoError(t, f.g.AddChildLocal(f.admin, f.local(t, "i0"), cast))
	_, uses, ok := f.g.UsesOf(f.start, cast)
	require.True(t, ok)
	assert.ElementsMatch(t, []*defuse.Node{f.start, cast}, uses)

	f.g.InvalidateDefToUse()
	_, uses, ok = f.g.UsesOf(f.start, cast)
	require.True(t, ok)
	assert.ElementsMatch(t, []*defuse.Node{f.start, f.admin, cast}, uses)
}

func TestConcurrentAddChild(t *testing.T) {
	f := newFixture(t)
	g, err := defuse.NewGraph(f.a, handle, []*defuse.Node{f.start})
	require.NoError(t, err)

	z0, i0 := f.local(t, "z0"), f.local(t, "i0")
	type edge struct {
		use *defuse.Node
		v   *ir.Local
		def *defuse.Node
	}
	edges := []edge{
		{f.start, z0, f.admin},
		{f.start, z0, f.user},
		{f.admin, i0, f.param},
		{f.user, i0, f.param},
	}

	const workers = 8
	var wg conc.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Go(func() {
			for i := range edges {
				e := edges[(i+w)%len(edges)]
				assert.NoError(t, g.AddChildLocal(e.use, e.v, e.def))
			}
		})
	}
	wg.Wait()

	assert.Equal(t, f.g.Children(f.start), g.Children(f.start))
	assert.Equal(t, []*defuse.Node{f.param}, g.ChildNodes(f.admin))
	assert.Equal(t, []*defuse.Node{f.param}, g.ChildNodes(f.user))
	assert.Len(t, g.Uses(), 3)
	assert.Equal(t, f.g.DefinitionStrings(f.start), g.DefinitionStrings(f.start))
}
