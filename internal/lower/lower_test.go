package lower

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binal-re/binal/internal/lift"
	"github.com/binal-re/binal/internal/native"
	"github.com/binal-re/binal/internal/native/nativetest"
	"github.com/binal-re/binal/internal/object"
)

func newLowerer(v native.View) *Lowerer {
	return New(v, zerolog.Nop())
}

func TestLowerer_RoundTrip(t *testing.T) {
	src := native.NewMemView()
	nativetest.Program(t, src)
	lifted := lift.New(src).All()

	dst := native.NewMemView()
	require.NoError(t, newLowerer(dst).Lower(lifted))

	again := lift.New(dst).All()
	assert.ElementsMatch(t, lifted.Slice(), again.Slice())

	f, ok := dst.FunctionByName("process")
	require.True(t, ok)
	assert.Equal(t, uint64(0x401000), f.Start)
	assert.Equal(t, "int32_t(T1*, uint64_t)", f.Type.String())

	g, ok := dst.DataVarByName("g_color")
	require.True(t, ok)
	assert.Equal(t, "T2", g.Type.String())
}

func TestLowerer_RoundTripInReverseOrder(t *testing.T) {
	src := native.NewMemView()
	nativetest.Program(t, src)
	nativetest.LinkedNode(t, src)
	lifted := lift.New(src).All()

	dst := native.NewMemView()
	require.NoError(t, newLowerer(dst).Lower(lifted.Reversed()))

	assert.ElementsMatch(t, lifted.Slice(), lift.New(dst).All().Slice())
}

func TestLowerer_MutualCycle(t *testing.T) {
	batch := object.NewObjects(
		object.NewType("A", 8, 8, object.Struct{Fields: []object.Field{{Name: "b", FieldType: "B*"}}}),
		object.NewType("B", 8, 8, object.Struct{Fields: []object.Field{{Name: "a", FieldType: "A*"}}}),
		object.NewType("A*", 8, 8, object.Pointer{ToType: "A"}),
		object.NewType("B*", 8, 8, object.Pointer{ToType: "B"}),
	)

	v := native.NewMemView()
	require.NoError(t, newLowerer(v).Lower(batch))

	a, ok := v.TypeByName("A")
	require.True(t, ok)
	require.Len(t, a.Members, 1)
	assert.Equal(t, "B*", a.Members[0].Type.String())

	b, ok := v.TypeByName("B")
	require.True(t, ok)
	require.Len(t, b.Members, 1)
	assert.Equal(t, "A*", b.Members[0].Type.String())

	target, ok := v.Resolve(b.Members[0].Type.Target)
	require.True(t, ok)
	assert.Same(t, a, target)
}

func TestLowerer_DeferredDependency(t *testing.T) {
	batch := object.NewObjects(
		object.NewType("X*", 8, 8, object.Pointer{ToType: "X"}),
		object.NewType("X", 4, 4, object.Int{Signed: true}),
	)

	l := newLowerer(native.NewMemView())
	require.NoError(t, l.Lower(batch))

	p, ok := l.Lookup("X*")
	require.True(t, ok)
	assert.Equal(t, native.ClassPointer, p.Class)
	assert.Equal(t, uint64(4), p.Target.Width)
	assert.True(t, p.Target.Signed)
}

func TestLowerer_PointerDepth(t *testing.T) {
	batch := object.NewObjects(
		object.NewType("int32_t", 4, 4, object.Int{Signed: true}),
		object.NewType("int32_t**", 8, 8, object.Pointer{ToType: "int32_t", Depth: 1}),
	)

	l := newLowerer(native.NewMemView())
	require.NoError(t, l.Lower(batch))

	p, ok := l.Lookup("int32_t**")
	require.True(t, ok)
	assert.Equal(t, "int32_t**", p.String())
}

func TestLowerer_AnonymousTypesSurviveBatches(t *testing.T) {
	v := native.NewMemView()
	l := newLowerer(v)

	require.NoError(t, l.Lower(object.NewObjects(object.NewType("int32_t", 4, 4, object.Int{Signed: true}))))
	require.NoError(t, l.Lower(object.NewObjects(
		object.NewType("S", 4, 4, object.Struct{Fields: []object.Field{{Name: "v", FieldType: "int32_t"}}}),
	)))

	s, ok := v.TypeByName("S")
	require.True(t, ok)
	assert.Equal(t, "int32_t", s.Members[0].Type.String())
}

func TestLowerer_ZeroProgressParksEntries(t *testing.T) {
	v := native.NewMemView()
	l := newLowerer(v)

	err := l.Lower(object.NewObjects(
		object.NewType("P", 8, 8, object.Pointer{ToType: "missing"}),
		object.NewType("bool", 1, 1, object.Bool{}),
	))
	require.Error(t, err)
	assert.True(t, IsUnresolved(err))

	var ue *UnresolvedError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, []string{"P"}, ue.Names)
	assert.Equal(t, []string{"P"}, l.Parked())

	_, ok := l.Lookup("bool")
	assert.True(t, ok, "resolvable entries of a failing batch are applied")

	require.NoError(t, l.Lower(object.NewObjects(object.NewType("missing", 2, 2, object.Int{}))))
	assert.Empty(t, l.Parked())

	p, ok := l.Lookup("P")
	require.True(t, ok)
	assert.Equal(t, uint64(2), p.Target.Width)
}

func TestLowerer_UnresolvableStructLeavesStub(t *testing.T) {
	v := native.NewMemView()
	l := newLowerer(v)

	err := l.Lower(object.NewObjects(
		object.NewType("S", 4, 4, object.Struct{Fields: []object.Field{{Name: "g", FieldType: "ghost"}}}),
	))
	var ue *UnresolvedError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, []string{"S"}, ue.Names)

	s, ok := v.TypeByName("S")
	require.True(t, ok)
	assert.Empty(t, s.Members)
	assert.Equal(t, uint64(4), s.Width)
}

func TestLowerer_FunctionsAndGlobalsWaitForTypes(t *testing.T) {
	v := native.NewMemView()
	l := newLowerer(v)

	err := l.Lower(object.NewObjects(
		object.NewFunction("f", 0x1000, "T9", object.Argument{Name: "x", ArgType: "T9"}),
		object.NewGlobal("g", 0x2000, "T9"),
	))
	var ue *UnresolvedError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, []string{"f", "g"}, ue.Names)
	assert.Empty(t, v.Functions())

	require.NoError(t, l.Lower(object.NewObjects(
		object.NewType("T9", 4, 4, object.Enum{Values: []object.EnumValue{{Name: "ONE", Value: 1}}}),
	)))

	f, ok := v.FunctionByName("f")
	require.True(t, ok)
	assert.Equal(t, "T9(T9)", f.Type.String())
	assert.Equal(t, "x", f.Parameters()[0].Name)

	g, ok := v.DataVarByName("g")
	require.True(t, ok)
	assert.Equal(t, uint64(0x2000), g.Address)
}

func TestLowerer_InvalidObjectRejected(t *testing.T) {
	l := newLowerer(native.NewMemView())

	err := l.Lower(object.NewObjects(object.Object{Name: "empty"}))
	assert.ErrorIs(t, err, object.ErrInvalidObject)

	err = l.Lower(object.NewObjects(object.NewType("odd", 3, 3, object.Int{})))
	assert.ErrorIs(t, err, object.ErrInvalidObject)
}

func TestLowerer_Remove(t *testing.T) {
	v := native.NewMemView()
	nativetest.Program(t, v)
	l := newLowerer(v)

	l.Remove("missing_name")
	l.Remove("missing_name")

	l.Remove("process")
	_, ok := v.FunctionByName("process")
	assert.False(t, ok)

	l.Remove("T1")
	_, ok = v.TypeByName("T1")
	assert.False(t, ok)

	l.Remove("g_color")
	_, ok = v.DataVarByName("g_color")
	assert.False(t, ok)

	_, ok = v.TypeByName("T2")
	assert.True(t, ok)
}

func TestLowerer_RemoveDropsParkedEntry(t *testing.T) {
	l := newLowerer(native.NewMemView())

	err := l.Lower(object.NewObjects(object.NewGlobal("g", 0x10, "nope")))
	require.Error(t, err)
	require.Equal(t, []string{"g"}, l.Parked())

	l.Remove("g")
	assert.Empty(t, l.Parked())
}

func TestLowerer_UpdateReplacesStructure(t *testing.T) {
	v := native.NewMemView()
	l := newLowerer(v)

	i32 := object.NewType("int32_t", 4, 4, object.Int{Signed: true})
	require.NoError(t, l.Lower(object.NewObjects(i32,
		object.NewType("S", 4, 4, object.Struct{Fields: []object.Field{{Name: "a", FieldType: "int32_t"}}}))))
	require.NoError(t, l.Lower(object.NewObjects(
		object.NewType("S", 8, 4, object.Struct{Fields: []object.Field{
			{Name: "a", FieldType: "int32_t"},
			{Name: "b", Offset: 4, FieldType: "int32_t"},
		}}))))

	s, ok := v.TypeByName("S")
	require.True(t, ok)
	assert.Len(t, s.Members, 2)
	assert.Equal(t, uint64(8), s.Width)
}

func TestLowerer_KeepsNonNaturalAlignment(t *testing.T) {
	src := native.NewMemView()
	i64 := native.Int(8, true)
	i64.Alignment = 4
	ld := native.Float(10)
	ld.Alignment = 4
	ptr := native.PointerTo(native.Bool(), 8)
	ptr.Alignment = 4
	arr := native.ArrayOf(native.Int(2, false), 3)
	arr.Alignment = 8
	holder := native.StructOf("holder", 40, 4,
		native.Member{Name: "q", Type: i64},
		native.Member{Name: "ld", Offset: 8, Type: ld},
		native.Member{Name: "p", Offset: 20, Type: ptr},
		native.Member{Name: "a", Offset: 28, Type: arr},
	)
	require.NoError(t, src.DefineType("holder", holder))
	lifted := lift.New(src).All()

	dst := native.NewMemView()
	require.NoError(t, newLowerer(dst).Lower(lifted))

	relifted := lift.New(dst).All()
	for _, name := range []string{"int64_t", "float80", "bool*", "uint16_t[3]"} {
		want, ok := lifted.Get(name)
		require.True(t, ok, name)
		got, ok := relifted.Get(name)
		require.True(t, ok, name)
		assert.Equal(t, want.Type.Alignment, got.Type.Alignment, name)
	}

	s, _ := dst.TypeByName("holder")
	assert.Equal(t, uint64(4), s.Members[0].Type.Alignment)
}

func TestLowerer_GlobalTypedThroughTypedef(t *testing.T) {
	src := native.NewMemView()
	require.NoError(t, src.DefineType("myint", native.Int(4, true)))
	require.NoError(t, src.DefineDataVar(native.DataVar{Address: 0x10, Name: "g", Type: native.NamedRef("myint")}))

	dst := native.NewMemView()
	l := newLowerer(dst)
	require.NoError(t, l.Lower(lift.New(src).All()))
	assert.Empty(t, l.Parked())

	g, ok := dst.DataVarByName("g")
	require.True(t, ok)
	assert.Equal(t, uint64(4), g.Type.Width)
	assert.True(t, g.Type.Signed)
}

func TestLowerer_PointerDepthFromOlderPeers(t *testing.T) {
	batch := object.NewObjects(
		object.NewType("int32_t", 4, 4, object.Int{Signed: true}),
		object.NewType("int32_t*", 8, 8, object.Pointer{ToType: "int32_t", Depth: 1}),
		object.NewType("int32_t***", 8, 8, object.Pointer{ToType: "int32_t", Depth: 3}),
		object.NewType("int32_t**", 8, 8, object.Pointer{ToType: "int32_t", Depth: 1}),
		object.NewType("PINT", 8, 8, object.Pointer{ToType: "int32_t"}),
	)

	l := newLowerer(native.NewMemView())
	require.NoError(t, l.Lower(batch))

	for name, want := range map[string]string{
		"int32_t*":   "int32_t*",
		"int32_t***": "int32_t***",
		"int32_t**":  "int32_t**",
		"PINT":       "int32_t*",
	} {
		p, ok := l.Lookup(name)
		require.True(t, ok, name)
		assert.Equal(t, want, p.String(), name)
	}
}
