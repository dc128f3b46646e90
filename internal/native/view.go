package native

import (
	"errors"
)

// ErrNotFound is returned when a lookup by name or address finds nothing.
var ErrNotFound = errors.New("not found")

// Function is a function entry at an address. Type is a ClassFunction node whose
// Params carry the parameter names.
type Function struct {
	Start uint64
	Name  string
	Type  *Type
}

// ReturnType returns the function's return type, or void when no type is set.
func (f Function) ReturnType() *Type {
	if f.Type == nil || f.Type.Return == nil {
		return Void()
	}
	return f.Type.Return
}

// Parameters returns the function's parameters.
func (f Function) Parameters() []Param {
	if f.Type == nil {
		return nil
	}
	return f.Type.Params
}

// DataVar is a typed global variable at an address.
type DataVar struct {
	Address uint64
	Name    string
	Type    *Type
}

// View is the decompiler capability surface consumed by the sync engine. It is
// queried and mutated, never reimplemented by the engine itself.
type View interface {
	// Types returns the registered named types.
	Types() []*Type
	// TypeByName returns the registered type called name.
	TypeByName(name string) (*Type, bool)
	// Resolve follows a named reference to its registered definition.
	Resolve(t *Type) (*Type, bool)
	// DefineType registers t under name, replacing any previous definition.
	DefineType(name string, t *Type) error
	// UndefineType removes the registered type called name. It reports whether a
	// type was removed.
	UndefineType(name string) bool

	Functions() []Function
	FunctionAt(addr uint64) (Function, bool)
	FunctionByName(name string) (Function, bool)
	// DefineFunction creates the function at f.Start, or renames and retypes the
	// existing one.
	DefineFunction(f Function) error
	RemoveFunction(addr uint64) bool

	DataVars() []DataVar
	DataVarByName(name string) (DataVar, bool)
	// DefineDataVar creates or replaces the data variable at v.Address.
	DefineDataVar(v DataVar) error
	RemoveDataVar(addr uint64) bool

	// Subscribe registers o for change notifications until the returned
	// Subscription is cancelled.
	Subscribe(o Observer) Subscription
}
