package ident_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/acminer/internal/testutil"
	"github.com/panbanda/acminer/pkg/defuse/alias"
	"github.com/panbanda/acminer/pkg/defuse/fault"
	"github.com/panbanda/acminer/pkg/defuse/ident"
	"github.com/panbanda/acminer/pkg/ir"
)

const handle = "<com.example.Service: void handle(int,java.lang.String)>"

// Aliases in handle: r0=9 i0=10 r1=11 r2=12 z0=13 i1=14 i2=15 i3=16.
func setup(t *testing.T, src string) (*ir.Program, *alias.Registry, *ident.Builder) {
	t.Helper()
	p := testutil.Program(t, src)
	r := alias.NewRegistry()
	r.Init(p, nil)
	return p, r, ident.NewBuilder(r)
}

func TestInvokeIdentifier(t *testing.T) {
	p, _, b := setup(t, testutil.AuthService)
	m, s := testutil.Stmt(t, p, handle, "z0 = interfaceinvoke r2.<com.example.Checker: boolean check(int)>(i0)")
	target, _ := p.Method("<com.example.AdminChecker: boolean check(int)>")

	id, err := b.Invoke(m, s, target, false)
	require.NoError(t, err)
	assert.Equal(t, "<com.example.AdminChecker: boolean check(int)>($z{10})", id.String())

	require.Equal(t, 4, id.Len())
	ref := id.Part(0)
	assert.Equal(t, ident.KindMethodRef, ref.Kind())
	assert.Equal(t, "<com.example.Checker: boolean check(int)>", ref.Orig())
	// Uses sort by kind name, so the call comes before the local.
	assert.Equal(t, 0, ref.Index())
	arg := id.Part(2)
	assert.Equal(t, ident.KindLocalAlias, arg.Kind())
	assert.Equal(t, 1, arg.Index())
	assert.Equal(t, "i0", arg.LocalName())
	assert.Equal(t, handle, arg.LocalMethod())

	kept, err := b.Invoke(m, s, target, true)
	require.NoError(t, err)
	assert.Equal(t, "$z{12}.<com.example.AdminChecker: boolean check(int)>($z{10})", kept.String())

	unresolved, err := b.Invoke(m, s, nil, false)
	require.NoError(t, err)
	assert.Equal(t, "<com.example.Checker: boolean check(int)>($z{10})", unresolved.String())
}

func TestFieldIdentifier(t *testing.T) {
	p, _, b := setup(t, testutil.AuthService)
	m, s := testutil.Stmt(t, p, handle, "i1 = r0.<com.example.Service: int level>")
	decl := p.Field(ir.FieldOf(s).Ref())

	id, err := b.Field(m, s, &decl, false)
	require.NoError(t, err)
	assert.Equal(t, "<com.example.Base: int level>", id.String())
	assert.Equal(t, "<com.example.Service: int level>", id.Part(0).Orig())

	kept, err := b.Field(m, s, &decl, true)
	require.NoError(t, err)
	assert.Equal(t, "$z{9}.<com.example.Base: int level>", kept.String())
}

func TestUnitIdentifier(t *testing.T) {
	p, _, b := setup(t, testutil.AuthService)
	tests := []struct {
		method string
		stmt   string
		want   string
	}{
		{handle, "if z0 == 0 goto L1", "if($z{13} == 0)"},
		{handle, "if i1 < i3 goto L1", "if($z{14} < $z{16})"},
		{handle, "i3 = (int) i2", "(int) $z{15}"},
		{handle, "i0 := @parameter0: int", "@parameter0: int"},
		{"<com.example.Service: void grant(int)>", "lookupswitch(i0)", "switch($z{8})"},
		{"<com.example.Policy: int required(java.lang.String,int)>", "i2 = i1 + i0", "$z{5} + $z{4}"},
		{"<com.example.Policy: int required(java.lang.String,int)>", "return i2", "return $z{6}"},
	}
	for _, tt := range tests {
		t.Run(tt.stmt, func(t *testing.T) {
			m, s := testutil.Stmt(t, p, tt.method, tt.stmt)
			id, err := b.Unit(m, s, false)
			require.NoError(t, err)
			assert.Equal(t, tt.want, id.String())
		})
	}
}

func TestIfConstantSlot(t *testing.T) {
	p, _, b := setup(t, testutil.AuthService)
	m, s := testutil.Stmt(t, p, handle, "if z0 == 0 goto L1")
	id, err := b.Unit(m, s, false)
	require.NoError(t, err)

	// uses sorted by kind: EqExpr, IntConstant, Local
	assert.Equal(t, []int{3}, id.ConstantIndices())
	assert.Equal(t, 1, id.Part(3).Index())
	assert.Equal(t, 2, id.Part(1).Index())
}

func TestNullConstantRendering(t *testing.T) {
	const src = `
methods:
  - signature: "<a.B: void c(java.lang.Object)>"
    locals: ["java.lang.Object r0"]
    body: |
      r0 := @parameter0: java.lang.Object
      if r0 != null goto L1
      return
`
	p, _, b := setup(t, src)
	m, s := testutil.Stmt(t, p, "<a.B: void c(java.lang.Object)>", "if r0 != null goto L1")
	id, err := b.Unit(m, s, false)
	require.NoError(t, err)
	assert.Equal(t, "if($z{0} != NULL)", id.String())
	assert.Equal(t, "null", id.Part(3).Orig())
}

func TestRenameInvariance(t *testing.T) {
	renamed := testutil.RenameLocals(testutil.AuthService, map[string]string{
		"i0": "uid", "r2": "checker", "z0": "allowed", "i1": "level",
	})
	p1, _, b1 := setup(t, testutil.AuthService)
	p2, _, b2 := setup(t, renamed)

	m1, s1 := testutil.Stmt(t, p1, handle, "z0 = interfaceinvoke r2.<com.example.Checker: boolean check(int)>(i0)")
	m2, s2 := testutil.Stmt(t, p2, handle, "allowed = interfaceinvoke checker.<com.example.Checker: boolean check(int)>(uid)")

	id1, err := b1.Invoke(m1, s1, nil, true)
	require.NoError(t, err)
	id2, err := b2.Invoke(m2, s2, nil, true)
	require.NoError(t, err)

	assert.True(t, id1.Equal(id2))
	assert.Equal(t, id1.Hash(), id2.Hash())
	assert.Equal(t, id1.String(), id2.String())
}

func TestInvokeConstant(t *testing.T) {
	p, _, b := setup(t, testutil.AuthService)
	m, s := testutil.Stmt(t, p, handle,
		"i2 = staticinvoke <com.example.Policy: int required(java.lang.String,int)>(r1, 3)")

	id, err := b.InvokeConstant(m, s, 1)
	require.NoError(t, err)
	assert.Equal(t, "3", id.String())
	assert.Equal(t, ident.KindConstant, id.Part(0).Kind())

	_, err = b.InvokeConstant(m, s, 0)
	assert.True(t, errors.Is(err, fault.ErrOperandNotFound))
	_, err = b.InvokeConstant(m, s, 5)
	assert.True(t, errors.Is(err, fault.ErrOperandNotFound))
}

func TestValueOperandNotFound(t *testing.T) {
	p, _, b := setup(t, testutil.AuthService)
	m, s := testutil.Stmt(t, p, handle, "if z0 == 0 goto L1")
	other, _ := m.Body.Local("i3")

	_, err := b.Value(m, s, other)
	require.Error(t, err)
	assert.True(t, errors.Is(err, fault.ErrOperandNotFound))

	var se *fault.StmtError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, handle, se.Method)
	assert.Equal(t, "if z0 == 0 goto L1", se.Stmt)

	z0, _ := m.Body.Local("z0")
	id, err := b.Value(m, s, z0)
	require.NoError(t, err)
	assert.Equal(t, "$z{13}", id.String())
}

func TestFinalizeRequiresAliases(t *testing.T) {
	p := testutil.Program(t, testutil.AuthService)
	b := ident.NewBuilder(alias.NewRegistry())
	m, s := testutil.Stmt(t, p, handle, "if z0 == 0 goto L1")

	_, err := b.Unit(m, s, false)
	assert.True(t, errors.Is(err, fault.ErrNotInitialized))
}

func TestResolveAgainstRoundTrip(t *testing.T) {
	p, _, b := setup(t, testutil.AuthService)
	m, s := testutil.Stmt(t, p, handle, "z0 = interfaceinvoke r2.<com.example.Checker: boolean check(int)>(i0)")
	target, _ := p.Method("<com.example.UserChecker: boolean check(int)>")
	id, err := b.Invoke(m, s, target, true)
	require.NoError(t, err)

	decoded, err := ident.Decode(id.Records())
	require.NoError(t, err)
	assert.False(t, decoded.Bound())
	assert.True(t, decoded.Equal(id))

	// Fresh program and registry, as after a reload.
	p2, r2, _ := setup(t, testutil.AuthService)
	m2, s2 := testutil.Stmt(t, p2, handle, s.String())
	bound, err := decoded.ResolveAgainst(m2, s2, r2)
	require.NoError(t, err)
	assert.True(t, bound.Bound())
	assert.Equal(t, id.String(), bound.String())
	assert.Same(t, r2.Lookup(handle, "r2"), bound.Part(0).Alias())
}

func TestResolveAgainstMismatch(t *testing.T) {
	p, r, b := setup(t, testutil.AuthService)
	m, s := testutil.Stmt(t, p, handle, "if i1 < i3 goto L1")
	id, err := b.Unit(m, s, false)
	require.NoError(t, err)

	t.Run("wrong statement", func(t *testing.T) {
		_, other := testutil.Stmt(t, p, handle, "if z0 == 0 goto L1")
		_, err := id.ResolveAgainst(m, other, r)
		assert.True(t, errors.Is(err, fault.ErrResolveMismatch))
	})

	t.Run("corrupted index", func(t *testing.T) {
		recs := id.Records()
		for i := range recs {
			if recs[i].Kind == "local_alias" {
				recs[i].Index = 40
			}
		}
		bad, err := ident.Decode(recs)
		require.NoError(t, err)
		_, err = bad.ResolveAgainst(m, s, r)
		assert.True(t, errors.Is(err, fault.ErrResolveMismatch))
	})

	t.Run("renamed local", func(t *testing.T) {
		p2, r2, _ := setup(t, testutil.RenameLocals(testutil.AuthService, map[string]string{"i3": "limit"}))
		m2, s2 := testutil.Stmt(t, p2, handle, "if i1 < limit goto L1")
		_, err := id.ResolveAgainst(m2, s2, r2)
		assert.True(t, errors.Is(err, fault.ErrResolveMismatch))
	})

	t.Run("uninitialized registry", func(t *testing.T) {
		fresh := alias.NewRegistry()
		_, err := id.ResolveAgainst(m, s, fresh)
		assert.True(t, errors.Is(err, fault.ErrResolveMismatch))
	})
}

func TestDecodeRejectsMalformed(t *testing.T) {
	_, err := ident.Decode([]ident.PartRecord{{Kind: "bogus"}})
	assert.Error(t, err)
	_, err = ident.Decode([]ident.PartRecord{{Kind: "constant", Orig: "1", Cur: "1", Index: -1}})
	assert.Error(t, err)
	_, err = ident.Decode([]ident.PartRecord{{Kind: "local_alias", Orig: "$z{1}", Cur: "$z{1}", Index: 0}})
	assert.Error(t, err)
}

func TestSyntheticIdentifiers(t *testing.T) {
	assert.Equal(t, "x", ident.Literal("x").String())
	assert.Equal(t, "42", ident.PrimitiveConstant(int32(42)).String())
	assert.Equal(t, "1.5", ident.PrimitiveConstant(1.5).String())
	assert.Equal(t, "true", ident.BooleanConstant(1).String())
	assert.Equal(t, "false", ident.BooleanConstant(0).String())
	assert.Equal(t, "1", ident.BooleanConstant(1).Part(0).Orig())
	assert.Equal(t, "A", ident.CharConstant(65).String())
	assert.Equal(t, "hello world", ident.StringConstant("hello world").String())
	assert.Equal(t, ident.KindPlaceholder, ident.Placeholder("ALL").Part(0).Kind())
	assert.Equal(t, ident.KindUnknown, ident.Unknown("?").Part(0).Kind())

	joined := ident.Concat(ident.Literal("a"), ident.StringConstant("b"), " & ")
	assert.Equal(t, "a & b", joined.String())
	assert.Equal(t, 3, joined.Len())
}

func TestGeneratorMergesLiterals(t *testing.T) {
	var g ident.Generator
	g.Literal("if(")
	g.Literal("(")
	g.Type("int")
	g.Literal(")")
	assert.Equal(t, "if((int)", g.String())
	parts := g.Parts()
	require.Len(t, parts, 3)
	assert.Equal(t, "if((", parts[0].String())
	assert.Empty(t, g.Parts())
}
