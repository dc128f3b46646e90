package object

// TypeInfo is the variant-specific part of a type payload. The set of variants is
// closed: only the types in this file implement it.
type TypeInfo interface {
	// Dependencies lists referenced type names in declaration order.
	Dependencies() []string

	infoKind() string
}

// Info kinds as they appear on the wire.
const (
	InfoVoid     = "void"
	InfoBool     = "bool"
	InfoInt      = "int"
	InfoUint     = "uint"
	InfoFloat    = "float"
	InfoPointer  = "pointer"
	InfoArray    = "array"
	InfoEnum     = "enum"
	InfoStruct   = "struct"
	InfoFunction = "function"
)

// Void is the empty type.
type Void struct{}

// Bool is a boolean scalar.
type Bool struct{}

// Int is an integer scalar of the payload size.
type Int struct {
	Signed bool
}

// Float is a floating point scalar of the payload size.
type Float struct{}

// Pointer collapses a chain of pointers into one record. ToType names the first
// non-pointer type in the chain and Depth counts the indirections on top of the
// first one, so "int32_t*" has depth 0 and "int32_t**" has depth 1. Older peers
// count the first indirection as well; the lowering side tells them apart by the
// record's name.
type Pointer struct {
	ToType string
	Depth  uint
}

// Array is a fixed-length sequence of ItemType.
type Array struct {
	ItemType string
	Count    uint64
}

// EnumValue is one named enumeration constant.
type EnumValue struct {
	Name  string `json:"name"`
	Value int64  `json:"value"`
}

// Enum is a self-contained enumeration.
type Enum struct {
	Values []EnumValue
}

// Field is one structure member. Offsets are not required to be ordered.
type Field struct {
	Name      string `json:"name"`
	Offset    uint64 `json:"offset"`
	FieldType string `json:"field_type"`
}

// Struct is a structure with an ordered member list.
type Struct struct {
	Fields []Field
}

// FunctionSignature is a callable type.
type FunctionSignature struct {
	ReturnType string
	ArgTypes   []string
}

func (Void) infoKind() string  { return InfoVoid }
func (Bool) infoKind() string  { return InfoBool }
func (Float) infoKind() string { return InfoFloat }

func (i Int) infoKind() string {
	if i.Signed {
		return InfoInt
	}
	return InfoUint
}

func (Pointer) infoKind() string           { return InfoPointer }
func (Array) infoKind() string             { return InfoArray }
func (Enum) infoKind() string              { return InfoEnum }
func (Struct) infoKind() string            { return InfoStruct }
func (FunctionSignature) infoKind() string { return InfoFunction }

func (Void) Dependencies() []string  { return nil }
func (Bool) Dependencies() []string  { return nil }
func (Int) Dependencies() []string   { return nil }
func (Float) Dependencies() []string { return nil }
func (Enum) Dependencies() []string  { return nil }

func (p Pointer) Dependencies() []string { return []string{p.ToType} }
func (a Array) Dependencies() []string   { return []string{a.ItemType} }

func (s Struct) Dependencies() []string {
	deps := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		deps = append(deps, f.FieldType)
	}
	return deps
}

func (f FunctionSignature) Dependencies() []string {
	deps := make([]string, 0, len(f.ArgTypes)+1)
	deps = append(deps, f.ReturnType)
	return append(deps, f.ArgTypes...)
}

// InfoKind returns the wire tag of a TypeInfo.
func InfoKind(info TypeInfo) string {
	if info == nil {
		return ""
	}
	return info.infoKind()
}
