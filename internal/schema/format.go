// Package schema describes the wire layout of every transferable type.
// The model follows serde-reflection: a registry maps type names to
// container formats built over a closed set of primitives and containers.
package schema

import (
	"strconv"
	"strings"
)

// Kind identifies a Format.
type Kind int

const (
	Unit Kind = iota
	Bool
	I8
	I16
	I32
	I64
	I128
	U8
	U16
	U32
	U64
	U128
	F32
	F64
	Char
	Str
	Bytes
	TypeName
	Option
	Seq
	Map
	Tuple
	TupleArray
)

var kindNames = [...]string{
	Unit:       "UNIT",
	Bool:       "BOOL",
	I8:         "I8",
	I16:        "I16",
	I32:        "I32",
	I64:        "I64",
	I128:       "I128",
	U8:         "U8",
	U16:        "U16",
	U32:        "U32",
	U64:        "U64",
	U128:       "U128",
	F32:        "F32",
	F64:        "F64",
	Char:       "CHAR",
	Str:        "STR",
	Bytes:      "BYTES",
	TypeName:   "TYPENAME",
	Option:     "OPTION",
	Seq:        "SEQ",
	Map:        "MAP",
	Tuple:      "TUPLE",
	TupleArray: "TUPLEARRAY",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// IsPrimitive reports whether the kind carries no nested format.
func (k Kind) IsPrimitive() bool {
	return k <= Bytes
}

// Format is the layout of a value in a field, argument or container.
type Format struct {
	Kind  Kind
	Name  string   // TypeName
	Elem  *Format  // Option, Seq, TupleArray
	Key   *Format  // Map
	Value *Format  // Map
	Elems []Format // Tuple
	Size  int      // TupleArray
}

// Prim returns a primitive format.
func Prim(k Kind) Format { return Format{Kind: k} }

// Named references a registry entry.
func Named(name string) Format { return Format{Kind: TypeName, Name: name} }

// OptionOf wraps f in an option.
func OptionOf(f Format) Format { return Format{Kind: Option, Elem: &f} }

// SeqOf is a variable-length sequence of f.
func SeqOf(f Format) Format { return Format{Kind: Seq, Elem: &f} }

// MapOf maps k to v.
func MapOf(k, v Format) Format { return Format{Kind: Map, Key: &k, Value: &v} }

// TupleOf is a fixed-arity product. The empty tuple is equivalent to Unit on
// the wire.
func TupleOf(elems ...Format) Format { return Format{Kind: Tuple, Elems: elems} }

// ArrayOf is n values of f.
func ArrayOf(f Format, n int) Format { return Format{Kind: TupleArray, Elem: &f, Size: n} }

// Equal reports structural equality.
func (f Format) Equal(o Format) bool {
	if f.Kind != o.Kind || f.Name != o.Name || f.Size != o.Size || len(f.Elems) != len(o.Elems) {
		return false
	}
	if !equalPtr(f.Elem, o.Elem) || !equalPtr(f.Key, o.Key) || !equalPtr(f.Value, o.Value) {
		return false
	}
	for i := range f.Elems {
		if !f.Elems[i].Equal(o.Elems[i]) {
			return false
		}
	}
	return true
}

func equalPtr(a, b *Format) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// Walk visits f and every nested format, depth first.
func (f Format) Walk(fn func(Format)) {
	fn(f)
	for _, p := range []*Format{f.Elem, f.Key, f.Value} {
		if p != nil {
			p.Walk(fn)
		}
	}
	for _, e := range f.Elems {
		e.Walk(fn)
	}
}

// String renders the format in Rust-like notation for diagnostics.
func (f Format) String() string {
	switch f.Kind {
	case TypeName:
		return f.Name
	case Option:
		return "Option<" + f.Elem.String() + ">"
	case Seq:
		return "Vec<" + f.Elem.String() + ">"
	case Map:
		return "Map<" + f.Key.String() + ", " + f.Value.String() + ">"
	case Tuple:
		parts := make([]string, len(f.Elems))
		for i, e := range f.Elems {
			parts[i] = e.String()
		}
		return "(" + strings.Join(parts, ", ") + ")"
	case TupleArray:
		return "[" + f.Elem.String() + "; " + strconv.Itoa(f.Size) + "]"
	}
	return strings.ToLower(f.Kind.String())
}

// Mangle returns an identifier-safe name for the format, used for
// generated helper names (option_Vec2, vector_str, map_str_to_f32,
// tuple2_f32_f32, array4_u8_array).
func (f Format) Mangle() string {
	switch f.Kind {
	case TypeName:
		return f.Name
	case Option:
		return "option_" + f.Elem.Mangle()
	case Seq:
		return "vector_" + f.Elem.Mangle()
	case Map:
		return "map_" + f.Key.Mangle() + "_to_" + f.Value.Mangle()
	case Tuple:
		parts := make([]string, len(f.Elems))
		for i, e := range f.Elems {
			parts[i] = e.Mangle()
		}
		return "tuple" + strconv.Itoa(len(f.Elems)) + "_" + strings.Join(parts, "_")
	case TupleArray:
		return "array" + strconv.Itoa(f.Size) + "_" + f.Elem.Mangle() + "_array"
	}
	return strings.ToLower(f.Kind.String())
}
