// Package object defines the flat, name-keyed representation of types, functions and
// global variables exchanged between sync peers.
//
// Objects never point at each other. Every cross reference is the name of another
// Object, which makes a lifted graph order independent and lets cyclic native graphs
// be transmitted without any special encoding.
package object

import (
	"errors"
	"fmt"
)

// Kind identifies which payload an Object carries.
type Kind string

const (
	KindType     Kind = "type"
	KindFunction Kind = "function"
	KindGlobal   Kind = "global"
)

// ErrInvalidObject is returned for objects that carry no payload, more than one
// payload, or a payload that cannot be decoded.
var ErrInvalidObject = errors.New("invalid object")

// Object is one named, serializable record.
//
// Exactly one of Type, Function or Global is set. Name is the primary key and is
// carried as the mapping key on the wire, never inside the payload.
type Object struct {
	Name     string
	Type     *TypePayload
	Function *FunctionPayload
	Global   *GlobalPayload
}

// TypePayload describes a type definition.
type TypePayload struct {
	Size      uint64
	Alignment uint64
	Info      TypeInfo
}

// FunctionPayload describes a function at an address.
type FunctionPayload struct {
	Location   uint64
	ReturnType string
	Arguments  []Argument
}

// Argument is one named function parameter.
type Argument struct {
	Name    string `json:"name"`
	ArgType string `json:"arg_type"`
}

// GlobalPayload describes a data variable at an address.
type GlobalPayload struct {
	Location   uint64
	GlobalType string
}

// NewType builds a type Object.
func NewType(name string, size, alignment uint64, info TypeInfo) Object {
	return Object{Name: name, Type: &TypePayload{Size: size, Alignment: alignment, Info: info}}
}

// NewFunction builds a function Object.
func NewFunction(name string, location uint64, returnType string, args ...Argument) Object {
	return Object{Name: name, Function: &FunctionPayload{
		Location:   location,
		ReturnType: returnType,
		Arguments:  args,
	}}
}

// NewGlobal builds a global variable Object.
func NewGlobal(name string, location uint64, globalType string) Object {
	return Object{Name: name, Global: &GlobalPayload{Location: location, GlobalType: globalType}}
}

// Kind reports the payload kind. It returns an empty Kind for an invalid Object.
func (o Object) Kind() Kind {
	switch {
	case o.Type != nil && o.Function == nil && o.Global == nil:
		return KindType
	case o.Function != nil && o.Type == nil && o.Global == nil:
		return KindFunction
	case o.Global != nil && o.Type == nil && o.Function == nil:
		return KindGlobal
	}
	return ""
}

// Validate checks the structural invariants of a single Object. It does not check
// that referenced names resolve; that is the job of the lowering side.
func (o Object) Validate() error {
	if o.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidObject)
	}
	switch o.Kind() {
	case KindType:
		if o.Type.Info == nil {
			return fmt.Errorf("%w: type %q has no info", ErrInvalidObject, o.Name)
		}
		if a := o.Type.Alignment; a != 0 && a&(a-1) != 0 {
			return fmt.Errorf("%w: type %q alignment %d is not a power of two", ErrInvalidObject, o.Name, a)
		}
	case KindFunction, KindGlobal:
	default:
		return fmt.Errorf("%w: %q must carry exactly one payload", ErrInvalidObject, o.Name)
	}
	return nil
}

// Dependencies lists the names this Object references, in declaration order.
// Duplicates are preserved.
func (o Object) Dependencies() []string {
	switch o.Kind() {
	case KindType:
		return o.Type.Info.Dependencies()
	case KindFunction:
		deps := make([]string, 0, len(o.Function.Arguments)+1)
		deps = append(deps, o.Function.ReturnType)
		for _, arg := range o.Function.Arguments {
			deps = append(deps, arg.ArgType)
		}
		return deps
	case KindGlobal:
		return []string{o.Global.GlobalType}
	}
	return nil
}
