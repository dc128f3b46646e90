// Package nativetest builds small native graphs for tests.
package nativetest

import (
	"testing"

	"github.com/binal-re/binal/internal/native"
)

// PointerWidth is the pointer size used by every fixture.
const PointerWidth = 8

// LinkedNode registers "node" { node* next; int32_t value; } and returns it.
func LinkedNode(t testing.TB, v native.View) *native.Type {
	t.Helper()

	node := native.StructOf("node", 16, 8,
		native.Member{Name: "next", Offset: 0, Type: native.PointerTo(native.NamedRef("node"), PointerWidth)},
		native.Member{Name: "value", Offset: 8, Type: native.Int(4, true)},
	)
	define(t, v, "node", node)
	return mustType(t, v, "node")
}

// MutualPair registers "A" { B* b; } and "B" { A* a; }.
func MutualPair(t testing.TB, v native.View) (*native.Type, *native.Type) {
	t.Helper()

	define(t, v, "A", native.StructOf("A", 8, 8,
		native.Member{Name: "b", Type: native.PointerTo(native.NamedRef("B"), PointerWidth)}))
	define(t, v, "B", native.StructOf("B", 8, 8,
		native.Member{Name: "a", Type: native.PointerTo(native.NamedRef("A"), PointerWidth)}))
	return mustType(t, v, "A"), mustType(t, v, "B")
}

// Program populates v with two types, one function that uses the first, and one
// global that uses the second:
//
//	struct T1 { int32_t id; T2 color; };
//	enum T2 : uint32_t { RED = 0, GREEN = 1 };
//	int32_t process(T1* item, uint64_t count) @ 0x401000
//	T2 g_color @ 0x602000
func Program(t testing.TB, v native.View) {
	t.Helper()

	define(t, v, "T2", native.EnumOf("T2", 4,
		native.EnumMember{Name: "RED", Value: 0},
		native.EnumMember{Name: "GREEN", Value: 1}))
	define(t, v, "T1", native.StructOf("T1", 8, 4,
		native.Member{Name: "id", Offset: 0, Type: native.Int(4, true)},
		native.Member{Name: "color", Offset: 4, Type: native.NamedRef("T2")}))

	sig := native.FunctionOf(native.Int(4, true),
		native.Param{Name: "item", Type: native.PointerTo(native.NamedRef("T1"), PointerWidth)},
		native.Param{Name: "count", Type: native.Int(8, false)})
	if err := v.DefineFunction(native.Function{Start: 0x401000, Name: "process", Type: sig}); err != nil {
		t.Fatalf("define function: %v", err)
	}
	if err := v.DefineDataVar(native.DataVar{Address: 0x602000, Name: "g_color", Type: native.NamedRef("T2")}); err != nil {
		t.Fatalf("define data var: %v", err)
	}
}

func define(t testing.TB, v native.View, name string, typ *native.Type) {
	t.Helper()
	if err := v.DefineType(name, typ); err != nil {
		t.Fatalf("define %s: %v", name, err)
	}
}

func mustType(t testing.TB, v native.View, name string) *native.Type {
	t.Helper()
	typ, ok := v.TypeByName(name)
	if !ok {
		t.Fatalf("type %s not registered", name)
	}
	return typ
}
