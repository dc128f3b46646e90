// Package native describes the decompiler-side object graph that sync peers read
// from and write into.
//
// Types form a graph that may contain cycles. Cycles always pass through a
// NamedReference (a structure that points to itself refers to its own registered
// name), so the graph is finite even though a naive walk is not.
package native

import (
	"fmt"
	"strings"
)

// Class is the type class of a native type node.
type Class int

const (
	ClassVoid Class = iota
	ClassBool
	ClassInteger
	ClassFloat
	ClassPointer
	ClassArray
	ClassEnumeration
	ClassStructure
	ClassFunction
	ClassNamedReference
	// ClassOther covers host specific kinds that are never synchronized.
	ClassOther
)

var classNames = map[Class]string{
	ClassVoid:           "void",
	ClassBool:           "bool",
	ClassInteger:        "integer",
	ClassFloat:          "float",
	ClassPointer:        "pointer",
	ClassArray:          "array",
	ClassEnumeration:    "enumeration",
	ClassStructure:      "structure",
	ClassFunction:       "function",
	ClassNamedReference: "named_reference",
	ClassOther:          "other",
}

func (c Class) String() string {
	if s, ok := classNames[c]; ok {
		return s
	}
	return fmt.Sprintf("class(%d)", int(c))
}

// Type is one node of the native type graph. Nodes are compared by identity.
type Type struct {
	Class     Class
	Width     uint64
	Alignment uint64
	Signed    bool

	// Target is the pointee of a pointer.
	Target *Type
	// Element and Count describe an array.
	Element *Type
	Count   uint64

	Members     []Member
	EnumMembers []EnumMember

	Return *Type
	Params []Param

	// Name is the registered name of a structure or enumeration, or the name a
	// NamedReference points at.
	Name string
}

// Member is a structure member.
type Member struct {
	Name   string
	Offset uint64
	Type   *Type
}

// EnumMember is an enumeration constant.
type EnumMember struct {
	Name  string
	Value int64
}

// Param is a function parameter. Name may be empty in a bare signature.
type Param struct {
	Name string
	Type *Type
}

// Void returns a new void type.
func Void() *Type {
	return &Type{Class: ClassVoid, Alignment: 1}
}

// Bool returns a new one byte boolean.
func Bool() *Type {
	return &Type{Class: ClassBool, Width: 1, Alignment: 1}
}

// Int returns a new integer of width bytes.
func Int(width uint64, signed bool) *Type {
	return &Type{Class: ClassInteger, Width: width, Alignment: naturalAlignment(width), Signed: signed}
}

// Float returns a new floating point type of width bytes.
func Float(width uint64) *Type {
	return &Type{Class: ClassFloat, Width: width, Alignment: naturalAlignment(width)}
}

// PointerTo returns a pointer of width bytes to target.
func PointerTo(target *Type, width uint64) *Type {
	return &Type{Class: ClassPointer, Width: width, Alignment: naturalAlignment(width), Target: target}
}

// ArrayOf returns an array of count elements.
func ArrayOf(element *Type, count uint64) *Type {
	t := &Type{Class: ClassArray, Element: element, Count: count, Alignment: 1}
	if element != nil {
		t.Width = element.Width * count
		t.Alignment = element.Alignment
	}
	return t
}

// StructOf returns a structure named name.
func StructOf(name string, width, alignment uint64, members ...Member) *Type {
	return &Type{Class: ClassStructure, Name: name, Width: width, Alignment: alignment, Members: members}
}

// EnumOf returns an enumeration named name.
func EnumOf(name string, width uint64, members ...EnumMember) *Type {
	return &Type{Class: ClassEnumeration, Name: name, Width: width, Alignment: naturalAlignment(width), EnumMembers: members}
}

// FunctionOf returns a callable type.
func FunctionOf(ret *Type, params ...Param) *Type {
	return &Type{Class: ClassFunction, Alignment: 1, Return: ret, Params: params}
}

// NamedRef returns a reference to the registered type called name.
func NamedRef(name string) *Type {
	return &Type{Class: ClassNamedReference, Name: name, Alignment: 1}
}

func naturalAlignment(width uint64) uint64 {
	if width == 0 {
		return 1
	}
	a := uint64(1)
	for a < width && a < 16 {
		a <<= 1
	}
	return a
}

// String returns the display name of t. Display names are the keys used on the
// wire, so two structurally identical anonymous types share a name.
func (t *Type) String() string {
	if t == nil {
		return "void"
	}

	switch t.Class {
	case ClassVoid:
		return "void"
	case ClassBool:
		return "bool"
	case ClassInteger:
		if t.Signed {
			return fmt.Sprintf("int%d_t", t.Width*8)
		}
		return fmt.Sprintf("uint%d_t", t.Width*8)
	case ClassFloat:
		switch t.Width {
		case 4:
			return "float"
		case 8:
			return "double"
		}
		return fmt.Sprintf("float%d", t.Width*8)
	case ClassPointer:
		return t.Target.String() + "*"
	case ClassArray:
		return fmt.Sprintf("%s[%d]", t.Element.String(), t.Count)
	case ClassFunction:
		params := make([]string, len(t.Params))
		for i, p := range t.Params {
			params[i] = p.Type.String()
		}
		return t.Return.String() + "(" + strings.Join(params, ", ") + ")"
	case ClassStructure, ClassEnumeration, ClassNamedReference, ClassOther:
		if t.Name != "" {
			return t.Name
		}
	}
	return fmt.Sprintf("<anonymous %s>", t.Class)
}
