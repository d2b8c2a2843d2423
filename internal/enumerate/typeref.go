package enumerate

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jcdickinson/eguinet/internal/rustdoc"
	"github.com/jcdickinson/eguinet/internal/schema"
)

// RefKind is the shape of a TypeRef.
type RefKind int

const (
	RefPrimitive RefKind = iota
	RefNamed
	RefSequence
	RefMap
	RefOption
	RefTuple
	RefFixedArray
	RefByRef
	RefUnsupported
)

// TypeRef is a signature type reduced to what can cross the wire.
type TypeRef struct {
	Kind RefKind
	// Name is the primitive name ("str" for both str and String) or the
	// registry type name.
	Name  string
	Elem  *TypeRef // sequence, option, fixed array, by-ref
	Key   *TypeRef // map
	Value *TypeRef // map
	Elems []TypeRef
	Len   int
	// Reason explains an unsupported type.
	Reason string
}

func Primitive(name string) TypeRef { return TypeRef{Kind: RefPrimitive, Name: name} }
func Named(name string) TypeRef     { return TypeRef{Kind: RefNamed, Name: name} }

func unsupported(format string, args ...any) TypeRef {
	return TypeRef{Kind: RefUnsupported, Reason: fmt.Sprintf(format, args...)}
}

func wrap(kind RefKind, elem TypeRef) TypeRef {
	return TypeRef{Kind: kind, Elem: &elem}
}

// Unsupported returns the first unsupported reason found anywhere in the
// type, or "".
func (t TypeRef) Unsupported() string {
	var reason string
	t.Walk(func(r TypeRef) {
		if reason == "" && r.Kind == RefUnsupported {
			reason = r.Reason
		}
	})
	return reason
}

// Walk visits t and every nested type, depth first.
func (t TypeRef) Walk(fn func(TypeRef)) {
	fn(t)
	for _, c := range []*TypeRef{t.Elem, t.Key, t.Value} {
		if c != nil {
			c.Walk(fn)
		}
	}
	for _, e := range t.Elems {
		e.Walk(fn)
	}
}

// Names returns the registry names the type refers to, in order of
// appearance.
func (t TypeRef) Names() []string {
	var out []string
	t.Walk(func(r TypeRef) {
		if r.Kind == RefNamed {
			out = append(out, r.Name)
		}
	})
	return out
}

// Owned strips borrows. The wire form of &T is the wire form of T.
func (t TypeRef) Owned() TypeRef {
	if t.Kind == RefByRef {
		return t.Elem.Owned()
	}
	return t
}

var primitiveKinds = map[string]schema.Kind{
	"bool":  schema.Bool,
	"i8":    schema.I8,
	"i16":   schema.I16,
	"i32":   schema.I32,
	"i64":   schema.I64,
	"i128":  schema.I128,
	"isize": schema.I64,
	"u8":    schema.U8,
	"u16":   schema.U16,
	"u32":   schema.U32,
	"u64":   schema.U64,
	"u128":  schema.U128,
	"usize": schema.U64,
	"f32":   schema.F32,
	"f64":   schema.F64,
	"char":  schema.Char,
	"str":   schema.Str,
}

// Format returns the wire format of the owned type. It must only be called
// on supported types.
func (t TypeRef) Format() schema.Format {
	switch t.Kind {
	case RefPrimitive:
		return schema.Prim(primitiveKinds[t.Name])
	case RefNamed:
		return schema.Named(t.Name)
	case RefSequence:
		return schema.SeqOf(t.Elem.Format())
	case RefMap:
		return schema.MapOf(t.Key.Format(), t.Value.Format())
	case RefOption:
		return schema.OptionOf(t.Elem.Format())
	case RefTuple:
		if len(t.Elems) == 0 {
			return schema.Prim(schema.Unit)
		}
		elems := make([]schema.Format, len(t.Elems))
		for i, e := range t.Elems {
			elems[i] = e.Format()
		}
		return schema.TupleOf(elems...)
	case RefFixedArray:
		return schema.ArrayOf(t.Elem.Format(), t.Len)
	case RefByRef:
		return t.Elem.Format()
	}
	panic("enumerate: Format of unsupported type: " + t.Reason)
}

// String renders the type in Rust syntax.
func (t TypeRef) String() string {
	switch t.Kind {
	case RefPrimitive, RefNamed:
		return t.Name
	case RefSequence:
		return "Vec<" + t.Elem.String() + ">"
	case RefMap:
		return "HashMap<" + t.Key.String() + ", " + t.Value.String() + ">"
	case RefOption:
		return "Option<" + t.Elem.String() + ">"
	case RefTuple:
		parts := make([]string, len(t.Elems))
		for i, e := range t.Elems {
			parts[i] = e.String()
		}
		return "(" + strings.Join(parts, ", ") + ")"
	case RefFixedArray:
		return "[" + t.Elem.String() + "; " + strconv.Itoa(t.Len) + "]"
	case RefByRef:
		return "&" + t.Elem.String()
	}
	return "<" + t.Reason + ">"
}

// Resolve maps a rustdoc type to a TypeRef. self names the declaring type
// that `Self` stands for; it is empty for free functions.
func Resolve(t rustdoc.Type, self string) TypeRef {
	switch t.Kind {
	case rustdoc.TypePrimitive:
		if _, ok := primitiveKinds[t.Name]; ok {
			return Primitive(t.Name)
		}
		return unsupported("primitive %s", t.Name)
	case rustdoc.TypeGeneric:
		if t.IsSelf() {
			if self == "" {
				return unsupported("Self outside an impl")
			}
			return Named(self)
		}
		return unsupported("generic parameter %s", t.Name)
	case rustdoc.TypeTuple:
		elems := make([]TypeRef, len(t.Elems))
		for i, e := range t.Elems {
			elems[i] = Resolve(e, self)
		}
		return TypeRef{Kind: RefTuple, Elems: elems}
	case rustdoc.TypeSlice:
		return wrap(RefSequence, Resolve(*t.Elem, self))
	case rustdoc.TypeArray:
		n, err := strconv.Atoi(t.Len)
		if err != nil {
			return unsupported("array length %q is not a literal", t.Len)
		}
		r := wrap(RefFixedArray, Resolve(*t.Elem, self))
		r.Len = n
		return r
	case rustdoc.TypeBorrowedRef:
		if t.Mutable {
			return unsupported("mutable borrow %s", t.String())
		}
		return wrap(RefByRef, Resolve(*t.Elem, self))
	case rustdoc.TypeResolvedPath:
		return resolvePath(t.Path, self)
	case rustdoc.TypeRawPointer:
		return unsupported("raw pointer %s", t.String())
	case rustdoc.TypeDynTrait:
		return unsupported("trait object")
	case rustdoc.TypeImplTrait:
		return unsupported("impl trait")
	case rustdoc.TypeFunctionPointer:
		return unsupported("function pointer")
	case rustdoc.TypeQualifiedPath:
		return unsupported("associated type %s", t.String())
	}
	return unsupported("%s type", t.Kind)
}

func resolvePath(p *rustdoc.Path, self string) TypeRef {
	args := p.TypeArgs()
	arg := func(n int) TypeRef {
		if len(args) <= n {
			return unsupported("%s is missing type arguments", p.ShortName())
		}
		return Resolve(args[n], self)
	}

	switch name := p.ShortName(); name {
	case "String", "PathBuf":
		return Primitive("str")
	case "Box", "Arc", "Rc", "Cow":
		return arg(0)
	case "Option":
		return wrap(RefOption, arg(0))
	case "Vec", "VecDeque", "BTreeSet", "HashSet", "IndexSet":
		return wrap(RefSequence, arg(0))
	case "HashMap", "BTreeMap", "IndexMap":
		k, v := arg(0), arg(1)
		return TypeRef{Kind: RefMap, Key: &k, Value: &v}
	default:
		if len(args) > 0 {
			return unsupported("generic type %s<…>", name)
		}
		return Named(name)
	}
}
