package csharp

import (
	"fmt"
	"strings"

	"github.com/jcdickinson/eguinet/internal/schema"
)

// primitive maps a wire primitive to its C# type and the suffix of the
// serializer methods that handle it.
type primitive struct {
	cs   string
	wire string
}

var primitives = map[schema.Kind]primitive{
	schema.Unit:  {"Serde.Unit", "unit"},
	schema.Bool:  {"bool", "bool"},
	schema.I8:    {"sbyte", "i8"},
	schema.I16:   {"short", "i16"},
	schema.I32:   {"int", "i32"},
	schema.I64:   {"long", "i64"},
	schema.I128:  {"BigInteger", "i128"},
	schema.U8:    {"byte", "u8"},
	schema.U16:   {"ushort", "u16"},
	schema.U32:   {"uint", "u32"},
	schema.U64:   {"ulong", "u64"},
	schema.U128:  {"BigInteger", "u128"},
	schema.F32:   {"float", "f32"},
	schema.F64:   {"double", "f64"},
	schema.Char:  {"Rune", "u32"},
	schema.Str:   {"string", "str"},
	schema.Bytes: {"byte[]", "bytes"},
}

// needsHelper reports whether the format is (de)serialized through a
// TraitHelpers method.
func needsHelper(t schema.Format) bool {
	switch t.Kind {
	case schema.Option, schema.Seq, schema.Map, schema.Tuple, schema.TupleArray:
		return true
	}
	return false
}

// isReference reports whether the C# rendering of t is a reference type and
// may therefore be null.
func isReference(t schema.Format) bool {
	switch t.Kind {
	case schema.Str, schema.Bytes, schema.Seq, schema.Map, schema.TupleArray:
		return true
	case schema.Option:
		return isReference(*t.Elem)
	}
	return false
}

// typeName renders a registry or hand-authored type reference and records
// its namespace in f.
func (e *emitter) typeName(f *sourceFile, name string) string {
	if f != nil {
		f.use(e.namespaceOf(name))
	}
	return name
}

// quote renders the C# type of a format.
func (e *emitter) quote(f *sourceFile, t schema.Format) string {
	switch t.Kind {
	case schema.TypeName:
		return e.typeName(f, t.Name)
	case schema.Option:
		return e.quote(f, *t.Elem) + "?"
	case schema.Seq, schema.TupleArray:
		return "ImmutableList<" + e.quote(f, *t.Elem) + ">"
	case schema.Map:
		return "ImmutableDictionary<" + e.quote(f, *t.Key) + ", " + e.quote(f, *t.Value) + ">"
	case schema.Tuple:
		parts := make([]string, len(t.Elems))
		for i, el := range t.Elems {
			parts[i] = e.quote(f, el)
		}
		if len(parts) == 1 {
			return "ValueTuple<" + parts[0] + ">"
		}
		return "(" + strings.Join(parts, ", ") + ")"
	}
	return primitives[t.Kind].cs
}

// serializeValue is the statement writing value of format t.
func (e *emitter) serializeValue(f *sourceFile, value string, t schema.Format) string {
	switch {
	case t.Kind == schema.TypeName:
		e.typeName(f, t.Name)
		return value + ".Serialize(serializer);"
	case t.Kind == schema.Char:
		return "serializer.serialize_u32((uint)" + value + ".Value);"
	case needsHelper(t):
		e.useHelper(t)
		return fmt.Sprintf("TraitHelpers.serialize_%s(%s, serializer);", t.Mangle(), value)
	}
	return fmt.Sprintf("serializer.serialize_%s(%s);", primitives[t.Kind].wire, value)
}

// deserializeValue is the expression reading a value of format t.
func (e *emitter) deserializeValue(f *sourceFile, t schema.Format) string {
	switch {
	case t.Kind == schema.TypeName:
		return e.typeName(f, e.serdeOwner(t.Name)) + ".Deserialize(deserializer)"
	case t.Kind == schema.Char:
		return "new Rune(deserializer.deserialize_u32())"
	case needsHelper(t):
		e.useHelper(t)
		return fmt.Sprintf("TraitHelpers.deserialize_%s(deserializer)", t.Mangle())
	}
	return fmt.Sprintf("deserializer.deserialize_%s()", primitives[t.Kind].wire)
}

// serdeOwner names the class holding the static Serialize and Deserialize
// methods of a type: C-style enums keep them in their extensions class.
func (e *emitter) serdeOwner(name string) string {
	if info, ok := e.types[name]; ok && info.cstyle {
		return name + "Extensions"
	}
	return name
}

// useHelper records t and every nested container format as needing a
// TraitHelpers method.
func (e *emitter) useHelper(t schema.Format) {
	t.Walk(func(t schema.Format) {
		if needsHelper(t) {
			e.helpers[t.Mangle()] = t
		}
	})
}

// hashExpr is the hash code contribution of a field.
func hashExpr(name string, t schema.Format) string {
	if isReference(t) {
		return "(" + name + "?.GetHashCode() ?? 0)"
	}
	return name + ".GetHashCode()"
}
