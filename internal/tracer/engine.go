// Package tracer builds the type registry from the API model.
package tracer

import (
	"fmt"
	"sort"
	"strconv"

	bgerr "github.com/jcdickinson/eguinet/internal/errors"
	"github.com/jcdickinson/eguinet/internal/rustdoc"
	"github.com/jcdickinson/eguinet/internal/schema"
)

// Engine derives container layouts for named types. TraceType derives a
// layout from type information alone; TraceValue records a layout observed
// from a concrete value, which takes precedence.
type Engine interface {
	TraceType(name string) error
	TraceValue(name string, layout schema.ContainerFormat) error
	Registry() (schema.Registry, error)
}

// IREngine derives layouts from rustdoc type information. Referenced
// own-crate types are traced transitively.
type IREngine struct {
	model    *rustdoc.Model
	registry schema.Registry
	observed map[string]bool
}

func NewIREngine(model *rustdoc.Model) *IREngine {
	return &IREngine{
		model:    model,
		registry: make(schema.Registry),
		observed: make(map[string]bool),
	}
}

// TraceValue records an observed layout. Types it references are traced
// when the registry is requested, so samples may refer to each other.
func (e *IREngine) TraceValue(name string, layout schema.ContainerFormat) error {
	e.registry[name] = layout
	e.observed[name] = true
	return nil
}

func (e *IREngine) TraceType(name string) error {
	if _, done := e.registry[name]; done {
		return nil
	}
	ids := e.model.TypesNamed(name)
	switch len(ids) {
	case 0:
		return bgerr.TraceFailed(name, "no struct or enum with this name in the model")
	case 1:
	default:
		return bgerr.New(bgerr.StageTrace, bgerr.KindDuplicateTypeName).Subject(name).Detail("%d types share this name", len(ids)).Build()
	}
	return e.traceID(ids[0])
}

func (e *IREngine) Registry() (schema.Registry, error) {
	for _, name := range sortedKeys(e.observed) {
		for _, ref := range schema.References(e.registry[name]) {
			if err := e.TraceType(ref); err != nil {
				return nil, fmt.Errorf("sample %s: %w", name, err)
			}
		}
	}
	out := make(schema.Registry, len(e.registry))
	for name, c := range e.registry {
		out[name] = c
	}
	return out, nil
}

func (e *IREngine) traceID(id rustdoc.Id) error {
	item, _ := e.model.Item(id)
	name := item.NameOr("")

	// Register before descending so recursive types terminate.
	e.registry[name] = schema.ContainerFormat{Kind: schema.UnitStruct}

	var (
		c    schema.ContainerFormat
		refs []rustdoc.Id
		err  error
	)
	switch {
	case item.Inner.Struct != nil:
		c, refs, err = e.structLayout(name, item.Inner.Struct.Kind)
	case item.Inner.Enum != nil:
		c, refs, err = e.enumLayout(name, item.Inner.Enum)
	default:
		err = bgerr.TraceFailed(name, "not a struct or enum")
	}
	if err != nil {
		delete(e.registry, name)
		return err
	}
	e.registry[name] = c

	for _, ref := range refs {
		refName := e.model.Name(ref)
		if _, done := e.registry[refName]; done {
			continue
		}
		if err := e.traceID(ref); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func (e *IREngine) structLayout(name string, kind rustdoc.StructKind) (schema.ContainerFormat, []rustdoc.Id, error) {
	switch {
	case kind.Unit:
		return schema.ContainerFormat{Kind: schema.UnitStruct}, nil, nil
	case kind.Plain != nil:
		fields, refs, err := e.fields(name, kind.Plain)
		return schema.ContainerFormat{Kind: schema.Struct, Fields: fields}, refs, err
	}
	elems, refs, err := e.tupleFields(name, kind.Tuple)
	if err != nil {
		return schema.ContainerFormat{}, nil, err
	}
	if len(elems) == 1 {
		return schema.ContainerFormat{Kind: schema.NewtypeStruct, Value: elems[0]}, refs, nil
	}
	return schema.ContainerFormat{Kind: schema.TupleStruct, Elems: elems}, refs, nil
}

func (e *IREngine) enumLayout(name string, enum *rustdoc.Enum) (schema.ContainerFormat, []rustdoc.Id, error) {
	if enum.HasStrippedVariants {
		return schema.ContainerFormat{}, nil, bgerr.TraceFailed(name, "variants are stripped from the documentation")
	}
	c := schema.ContainerFormat{Kind: schema.Enum, Variants: make(map[uint32]schema.Variant, len(enum.Variants))}
	var refs []rustdoc.Id
	for i, vid := range enum.Variants {
		item, ok := e.model.Item(vid)
		if !ok || item.Inner.Variant == nil {
			return c, nil, bgerr.TraceFailed(name, fmt.Sprintf("variant %d is missing", vid))
		}
		v := schema.Variant{Name: item.NameOr("")}
		kind := item.Inner.Variant.Kind
		switch {
		case kind.Plain:
			v.Kind = schema.VariantUnit
		case kind.Struct != nil:
			fields, r, err := e.fields(name, kind.Struct)
			if err != nil {
				return c, nil, err
			}
			v.Kind, v.Fields = schema.VariantStruct, fields
			refs = append(refs, r...)
		default:
			elems, r, err := e.tupleFields(name, kind.Tuple)
			if err != nil {
				return c, nil, err
			}
			if len(elems) == 1 {
				v.Kind, v.Value = schema.VariantNewtype, elems[0]
			} else {
				v.Kind, v.Elems = schema.VariantTuple, elems
			}
			refs = append(refs, r...)
		}
		c.Variants[uint32(i)] = v
	}
	return c, refs, nil
}

func (e *IREngine) fields(owner string, plain *rustdoc.PlainFields) ([]schema.Field, []rustdoc.Id, error) {
	if plain.HasStrippedFields {
		return nil, nil, bgerr.TraceFailed(owner, "private fields are stripped from the documentation")
	}
	var (
		out  []schema.Field
		refs []rustdoc.Id
	)
	for _, fid := range plain.Fields {
		item, ok := e.model.Item(fid)
		if !ok || item.Inner.StructField == nil {
			return nil, nil, bgerr.TraceFailed(owner, fmt.Sprintf("field %d is missing", fid))
		}
		f, r, err := e.format(*item.Inner.StructField)
		if err != nil {
			return nil, nil, bgerr.TraceFailed(owner, fmt.Sprintf("field %s: %s", item.NameOr(""), err))
		}
		out = append(out, schema.Field{Name: item.NameOr(""), Format: f})
		refs = append(refs, r...)
	}
	return out, refs, nil
}

func (e *IREngine) tupleFields(owner string, ids []*rustdoc.Id) ([]schema.Format, []rustdoc.Id, error) {
	var (
		out  []schema.Format
		refs []rustdoc.Id
	)
	for i, fid := range ids {
		if fid == nil {
			return nil, nil, bgerr.TraceFailed(owner, fmt.Sprintf("tuple field %d is private", i))
		}
		item, ok := e.model.Item(*fid)
		if !ok || item.Inner.StructField == nil {
			return nil, nil, bgerr.TraceFailed(owner, fmt.Sprintf("field %d is missing", *fid))
		}
		f, r, err := e.format(*item.Inner.StructField)
		if err != nil {
			return nil, nil, bgerr.TraceFailed(owner, fmt.Sprintf("field %d: %s", i, err))
		}
		out = append(out, f)
		refs = append(refs, r...)
	}
	return out, refs, nil
}

var primitiveFormats = map[string]schema.Kind{
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

// format maps a field type to its wire format and returns the own-crate
// types it references.
func (e *IREngine) format(t rustdoc.Type) (schema.Format, []rustdoc.Id, error) {
	switch t.Kind {
	case rustdoc.TypePrimitive:
		if k, ok := primitiveFormats[t.Name]; ok {
			return schema.Prim(k), nil, nil
		}
	case rustdoc.TypeTuple:
		if len(t.Elems) == 0 {
			return schema.Prim(schema.Unit), nil, nil
		}
		elems, refs, err := e.formats(t.Elems)
		return schema.TupleOf(elems...), refs, err
	case rustdoc.TypeSlice:
		elem, refs, err := e.format(*t.Elem)
		return schema.SeqOf(elem), refs, err
	case rustdoc.TypeArray:
		n, err := strconv.Atoi(t.Len)
		if err != nil {
			return schema.Format{}, nil, fmt.Errorf("array length %q is not a literal", t.Len)
		}
		elem, refs, err := e.format(*t.Elem)
		return schema.ArrayOf(elem, n), refs, err
	case rustdoc.TypeBorrowedRef:
		if !t.Mutable {
			return e.format(*t.Elem)
		}
	case rustdoc.TypeResolvedPath:
		return e.pathFormat(t.Path)
	}
	return schema.Format{}, nil, fmt.Errorf("unsupported type %s", t.String())
}

func (e *IREngine) formats(ts []rustdoc.Type) ([]schema.Format, []rustdoc.Id, error) {
	var (
		out  []schema.Format
		refs []rustdoc.Id
	)
	for _, t := range ts {
		f, r, err := e.format(t)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, f)
		refs = append(refs, r...)
	}
	return out, refs, nil
}

func (e *IREngine) pathFormat(p *rustdoc.Path) (schema.Format, []rustdoc.Id, error) {
	args := p.TypeArgs()
	arg := func(n int) (schema.Format, []rustdoc.Id, error) {
		if len(args) < n+1 {
			return schema.Format{}, nil, fmt.Errorf("%s is missing type arguments", p.ShortName())
		}
		return e.format(args[n])
	}

	switch p.ShortName() {
	case "String", "PathBuf":
		return schema.Prim(schema.Str), nil, nil
	case "PhantomData":
		return schema.Prim(schema.Unit), nil, nil
	case "Box", "Arc", "Rc", "Cow":
		return arg(0)
	case "Option":
		f, refs, err := arg(0)
		return schema.OptionOf(f), refs, err
	case "Vec", "VecDeque", "BTreeSet", "HashSet", "IndexSet", "SmallVec":
		f, refs, err := arg(0)
		return schema.SeqOf(f), refs, err
	case "HashMap", "BTreeMap", "IndexMap":
		k, kr, err := arg(0)
		if err != nil {
			return schema.Format{}, nil, err
		}
		v, vr, err := arg(1)
		return schema.MapOf(k, v), append(kr, vr...), err
	}

	if id, ok := e.resolve(p); ok {
		return schema.Named(e.model.Name(id)), []rustdoc.Id{id}, nil
	}
	return schema.Format{}, nil, fmt.Errorf("unsupported type %s", p.FullName())
}

// resolve finds the own-crate struct or enum a path refers to. Merged
// crates keep foreign ids for re-exported types, so an unknown id falls back
// to a unique match on the short name.
func (e *IREngine) resolve(p *rustdoc.Path) (rustdoc.Id, bool) {
	if it, ok := e.model.Item(p.ID); ok && it.CrateID == 0 && (it.Inner.Struct != nil || it.Inner.Enum != nil) {
		return p.ID, true
	}
	ids := e.model.TypesNamed(p.ShortName())
	if len(ids) == 1 {
		return ids[0], true
	}
	return 0, false
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
