package object

import (
	"encoding/json"
	"fmt"
)

type wireType struct {
	Kind      Kind            `json:"kind"`
	Size      uint64          `json:"size"`
	Alignment uint64          `json:"alignment"`
	Info      json.RawMessage `json:"info"`
}

type wireFunction struct {
	Kind       Kind       `json:"kind"`
	Location   uint64     `json:"location"`
	ReturnType string     `json:"return_type"`
	Arguments  []Argument `json:"arguments"`
}

type wireGlobal struct {
	Kind       Kind   `json:"kind"`
	Location   uint64 `json:"location"`
	GlobalType string `json:"global_type"`
}

// rawObject is the union of every payload field, used for decoding.
type rawObject struct {
	Kind       Kind            `json:"kind"`
	Size       uint64          `json:"size"`
	Alignment  uint64          `json:"alignment"`
	Info       json.RawMessage `json:"info"`
	Location   uint64          `json:"location"`
	ReturnType string          `json:"return_type"`
	Arguments  []Argument      `json:"arguments"`
	GlobalType string          `json:"global_type"`
}

type rawInfo struct {
	Kind       string      `json:"kind"`
	ToType     string      `json:"to_type"`
	Depth      uint        `json:"depth"`
	ItemType   string      `json:"item_type"`
	Count      uint64      `json:"count"`
	Values     []EnumValue `json:"values"`
	Fields     []Field     `json:"fields"`
	ReturnType string      `json:"return_type"`
	ArgTypes   []string    `json:"arg_types"`
}

// MarshalJSON encodes the payload flattened next to its kind tag. The name is not
// part of the encoding.
func (o Object) MarshalJSON() ([]byte, error) {
	switch o.Kind() {
	case KindType:
		info, err := marshalInfo(o.Type.Info)
		if err != nil {
			return nil, fmt.Errorf("object %q: %w", o.Name, err)
		}
		return json.Marshal(wireType{
			Kind:      KindType,
			Size:      o.Type.Size,
			Alignment: o.Type.Alignment,
			Info:      info,
		})
	case KindFunction:
		args := o.Function.Arguments
		if args == nil {
			args = []Argument{}
		}
		return json.Marshal(wireFunction{
			Kind:       KindFunction,
			Location:   o.Function.Location,
			ReturnType: o.Function.ReturnType,
			Arguments:  args,
		})
	case KindGlobal:
		return json.Marshal(wireGlobal{
			Kind:       KindGlobal,
			Location:   o.Global.Location,
			GlobalType: o.Global.GlobalType,
		})
	}
	return nil, fmt.Errorf("%w: %q must carry exactly one payload", ErrInvalidObject, o.Name)
}

// UnmarshalJSON decodes a payload. Name is left untouched; the enclosing mapping
// supplies it.
func (o *Object) UnmarshalJSON(data []byte) error {
	var raw rawObject
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidObject, err)
	}

	o.Type, o.Function, o.Global = nil, nil, nil

	switch raw.Kind {
	case KindType:
		if len(raw.Info) == 0 {
			return fmt.Errorf("%w: type without info", ErrInvalidObject)
		}
		info, err := unmarshalInfo(raw.Info)
		if err != nil {
			return err
		}
		// Older peers encode void as a zero sized unsigned integer. Their pointer
		// depth is decoded as sent; see Pointer.
		if i, ok := info.(Int); ok && !i.Signed && raw.Size == 0 {
			info = Void{}
		}
		o.Type = &TypePayload{Size: raw.Size, Alignment: raw.Alignment, Info: info}
	case KindFunction:
		o.Function = &FunctionPayload{
			Location:   raw.Location,
			ReturnType: raw.ReturnType,
			Arguments:  raw.Arguments,
		}
	case KindGlobal:
		o.Global = &GlobalPayload{Location: raw.Location, GlobalType: raw.GlobalType}
	default:
		return fmt.Errorf("%w: unknown object kind %q", ErrInvalidObject, raw.Kind)
	}
	return nil
}

func marshalInfo(info TypeInfo) (json.RawMessage, error) {
	var v any
	switch i := info.(type) {
	case Void, Bool, Float, Int:
		v = struct {
			Kind string `json:"kind"`
		}{i.infoKind()}
	case Pointer:
		v = struct {
			Kind   string `json:"kind"`
			ToType string `json:"to_type"`
			Depth  uint   `json:"depth"`
		}{InfoPointer, i.ToType, i.Depth}
	case Array:
		v = struct {
			Kind     string `json:"kind"`
			ItemType string `json:"item_type"`
			Count    uint64 `json:"count"`
		}{InfoArray, i.ItemType, i.Count}
	case Enum:
		values := i.Values
		if values == nil {
			values = []EnumValue{}
		}
		v = struct {
			Kind   string      `json:"kind"`
			Values []EnumValue `json:"values"`
		}{InfoEnum, values}
	case Struct:
		fields := i.Fields
		if fields == nil {
			fields = []Field{}
		}
		v = struct {
			Kind   string  `json:"kind"`
			Fields []Field `json:"fields"`
		}{InfoStruct, fields}
	case FunctionSignature:
		args := i.ArgTypes
		if args == nil {
			args = []string{}
		}
		v = struct {
			Kind       string   `json:"kind"`
			ReturnType string   `json:"return_type"`
			ArgTypes   []string `json:"arg_types"`
		}{InfoFunction, i.ReturnType, args}
	default:
		return nil, fmt.Errorf("%w: unsupported type info %T", ErrInvalidObject, info)
	}
	return json.Marshal(v)
}

func unmarshalInfo(data []byte) (TypeInfo, error) {
	var raw rawInfo
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: info: %v", ErrInvalidObject, err)
	}

	switch raw.Kind {
	case InfoVoid:
		return Void{}, nil
	case InfoBool:
		return Bool{}, nil
	case InfoInt:
		return Int{Signed: true}, nil
	case InfoUint:
		return Int{Signed: false}, nil
	case InfoFloat:
		return Float{}, nil
	case InfoPointer:
		if raw.ToType == "" {
			return nil, fmt.Errorf("%w: pointer without to_type", ErrInvalidObject)
		}
		return Pointer{ToType: raw.ToType, Depth: raw.Depth}, nil
	case InfoArray:
		if raw.ItemType == "" {
			return nil, fmt.Errorf("%w: array without item_type", ErrInvalidObject)
		}
		return Array{ItemType: raw.ItemType, Count: raw.Count}, nil
	case InfoEnum:
		return Enum{Values: raw.Values}, nil
	case InfoStruct:
		for _, f := range raw.Fields {
			if f.FieldType == "" {
				return nil, fmt.Errorf("%w: struct field %q without field_type", ErrInvalidObject, f.Name)
			}
		}
		return Struct{Fields: raw.Fields}, nil
	case InfoFunction:
		if raw.ReturnType == "" {
			return nil, fmt.Errorf("%w: function signature without return_type", ErrInvalidObject)
		}
		return FunctionSignature{ReturnType: raw.ReturnType, ArgTypes: raw.ArgTypes}, nil
	}
	return nil, fmt.Errorf("%w: unknown info kind %q", ErrInvalidObject, raw.Kind)
}
