// Package lift converts native graph nodes into flat, name-keyed Objects.
//
// A walk uses an explicit stack and an identity-keyed visited set, so cyclic
// graphs terminate after visiting each reachable node once. Named references are
// followed but never emitted; structures are emitted with field types as names and
// left for the lowering side to resolve.
package lift

import (
	"github.com/binal-re/binal/internal/native"
	"github.com/binal-re/binal/internal/object"
)

// Lifter lifts nodes of one native view.
type Lifter struct {
	view native.View
}

// New creates a Lifter reading from view. The view is only used to resolve named
// references.
func New(view native.View) *Lifter {
	return &Lifter{view: view}
}

// Type lifts root and every type reachable from it. The result is ordered with
// dependencies ahead of their dependents wherever the graph is acyclic.
func (l *Lifter) Type(root *native.Type) *object.Objects {
	found := object.NewObjects()
	if root == nil {
		return found
	}

	stack := []*native.Type{root}
	visited := make(map[*native.Type]struct{})

	for len(stack) > 0 {
		t := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if t == nil {
			continue
		}
		if _, ok := visited[t]; ok {
			continue
		}
		visited[t] = struct{}{}

		if t.Class == native.ClassNamedReference {
			def, ok := l.view.Resolve(t)
			if !ok || def == nil || def == t {
				continue
			}
			if !isTypedef(t.Name, def) {
				stack = append(stack, def)
				continue
			}
			// A typedef of a scalar, pointer, array or signature is emitted under
			// the name it is referenced by.
			info, deps, ok := describe(def)
			if !ok {
				continue
			}
			stack = append(stack, deps...)
			found.Add(object.NewType(t.Name, def.Width, def.Alignment, info))
			continue
		}

		info, deps, ok := describe(t)
		if !ok {
			continue
		}
		stack = append(stack, deps...)
		found.Add(object.NewType(t.String(), t.Width, t.Alignment, info))
	}

	return found.Reversed()
}

// Function lifts f together with its parameter and return types.
func (l *Lifter) Function(f native.Function) *object.Objects {
	out := object.NewObjects()

	ret := f.ReturnType()
	out.Merge(l.Type(ret))

	params := f.Parameters()
	args := make([]object.Argument, 0, len(params))
	for _, p := range params {
		out.Merge(l.Type(p.Type))
		args = append(args, object.Argument{Name: p.Name, ArgType: p.Type.String()})
	}

	out.Add(object.NewFunction(f.Name, f.Start, ret.String(), args...))
	return out
}

// Global lifts v together with its type.
func (l *Lifter) Global(v native.DataVar) *object.Objects {
	out := l.Type(v.Type)
	out.Add(object.NewGlobal(v.Name, v.Address, v.Type.String()))
	return out
}

// All lifts the entire view: every registered type, then every function, then
// every global, so function and global records follow the types they reference.
func (l *Lifter) All() *object.Objects {
	out := object.NewObjects()
	for _, t := range l.view.Types() {
		out.Merge(l.Type(t))
	}
	for _, f := range l.view.Functions() {
		out.Merge(l.Function(f))
	}
	for _, v := range l.view.DataVars() {
		out.Merge(l.Global(v))
	}
	return out
}

// Event lifts the entity carried by a native add or update notification. Removal
// events lift to an empty mapping.
func (l *Lifter) Event(ev native.Event) *object.Objects {
	if ev.Op == native.OpRemoved {
		return object.NewObjects()
	}
	switch ev.Category {
	case native.CategoryType:
		if isTypedef(ev.Name, ev.Type) {
			return l.Type(native.NamedRef(ev.Name))
		}
		return l.Type(ev.Type)
	case native.CategoryFunction:
		if ev.Function != nil {
			return l.Function(*ev.Function)
		}
	case native.CategoryDataVar:
		if ev.DataVar != nil {
			return l.Global(*ev.DataVar)
		}
	}
	return object.NewObjects()
}

// isTypedef reports whether def, registered as name, is a non-nominal type whose
// structural name differs from name.
func isTypedef(name string, def *native.Type) bool {
	if def == nil || name == "" {
		return false
	}
	switch def.Class {
	case native.ClassStructure, native.ClassEnumeration, native.ClassNamedReference:
		return false
	}
	return def.String() != name
}

// describe converts the structure of a non-reference node. deps are the nodes it
// refers to.
func describe(t *native.Type) (object.TypeInfo, []*native.Type, bool) {
	switch t.Class {
	case native.ClassVoid:
		return object.Void{}, nil, true
	case native.ClassBool:
		return object.Bool{}, nil, true
	case native.ClassInteger:
		return object.Int{Signed: t.Signed}, nil, true
	case native.ClassFloat:
		return object.Float{}, nil, true
	case native.ClassPointer:
		base, depth := pointerBase(t)
		return object.Pointer{ToType: base.String(), Depth: depth}, []*native.Type{base}, true
	case native.ClassArray:
		return object.Array{ItemType: t.Element.String(), Count: t.Count}, []*native.Type{t.Element}, true
	case native.ClassEnumeration:
		values := make([]object.EnumValue, 0, len(t.EnumMembers))
		for _, m := range t.EnumMembers {
			values = append(values, object.EnumValue{Name: m.Name, Value: m.Value})
		}
		return object.Enum{Values: values}, nil, true
	case native.ClassStructure:
		fields := make([]object.Field, 0, len(t.Members))
		deps := make([]*native.Type, 0, len(t.Members))
		for _, m := range t.Members {
			deps = append(deps, m.Type)
			fields = append(fields, object.Field{
				Name:      m.Name,
				Offset:    m.Offset,
				FieldType: m.Type.String(),
			})
		}
		return object.Struct{Fields: fields}, deps, true
	case native.ClassFunction:
		ret := returnOf(t)
		deps := []*native.Type{ret}
		args := make([]string, 0, len(t.Params))
		for _, p := range t.Params {
			deps = append(deps, p.Type)
			args = append(args, p.Type.String())
		}
		return object.FunctionSignature{ReturnType: ret.String(), ArgTypes: args}, deps, true
	}
	return nil, nil, false
}

// pointerBase follows a pointer chain to its first non-pointer target. depth is the
// number of indirections beyond the first.
func pointerBase(t *native.Type) (*native.Type, uint) {
	var depth uint
	base := t.Target
	for base != nil && base.Class == native.ClassPointer {
		base = base.Target
		depth++
	}
	if base == nil {
		base = native.Void()
	}
	return base, depth
}

func returnOf(t *native.Type) *native.Type {
	if t.Return == nil {
		return native.Void()
	}
	return t.Return
}
