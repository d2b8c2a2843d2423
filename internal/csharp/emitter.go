// Package csharp emits the managed C# surface: one partial struct or enum
// per registry entry with its wire (de)serializers and the methods bound to
// it, plus the shared marshalling helpers.
package csharp

import (
	"fmt"
	"sort"
	"strings"

	bgerr "github.com/jcdickinson/eguinet/internal/errors"
	"github.com/jcdickinson/eguinet/internal/enumerate"
	"github.com/jcdickinson/eguinet/internal/markdown"
	"github.com/jcdickinson/eguinet/internal/naming"
	"github.com/jcdickinson/eguinet/internal/rustdoc"
	"github.com/jcdickinson/eguinet/internal/schema"
)

// Options configures emission.
type Options struct {
	// Namespace maps a Rust module path to a C# namespace. Namespace(nil)
	// is the root namespace. Nil places everything in "Egui".
	Namespace func(modulePath []string) string
	// CStyleEnums emits all-unit enums as plain C# enums.
	CStyleEnums bool
	// Extern are types with hand-authored managed definitions.
	Extern map[string]bool
}

// File is a generated source file. Path is slash separated and relative to
// the managed output directory.
type File struct {
	Path    string
	Content []byte
}

// Output is the result of an emission.
type Output struct {
	// Files are sorted by path.
	Files []File
	// Diagnostics are UnsupportedField and UnsupportedSignature errors,
	// sorted by subject.
	Diagnostics []*bgerr.Error
}

// typeInfo is what the emitter knows about a type name beyond its layout.
type typeInfo struct {
	name        string
	namespace   string
	modulePath  []string
	docs        string
	fieldDocs   map[string]string
	variantDocs map[string]string
	cstyle      bool
}

type emitter struct {
	model *rustdoc.Model
	reg   schema.Registry
	fns   *enumerate.Enumeration
	opts  Options
	root  string

	types   map[string]*typeInfo
	helpers map[string]schema.Format
	plan    *callPlan
	diags   []*bgerr.Error
}

// Emit renders the managed surface for a registry and its enumeration.
func Emit(model *rustdoc.Model, reg schema.Registry, fns *enumerate.Enumeration, opts Options) (*Output, error) {
	if opts.Namespace == nil {
		opts.Namespace = func([]string) string { return "Egui" }
	}
	e := &emitter{
		model:   model,
		reg:     reg,
		fns:     fns,
		opts:    opts,
		root:    opts.Namespace(nil),
		types:   make(map[string]*typeInfo),
		helpers: make(map[string]schema.Format),
	}
	e.indexTypes()
	e.plan = e.planCalls()

	var files []*sourceFile
	for _, name := range reg.Names() {
		files = append(files, e.typeFile(name))
	}
	for _, name := range e.externDeclaring() {
		files = append(files, e.externFile(name))
	}
	files = append(files, e.functionFiles()...)
	files = append(files, e.fnEnumFile(), e.marshalFile())
	// Last: every other file records the helpers it needs.
	files = append(files, e.traitHelpersFile())

	out := &Output{Files: make([]File, 0, len(files))}
	for _, f := range files {
		out.Files = append(out.Files, File{Path: f.path, Content: f.bytes()})
	}
	sort.Slice(out.Files, func(i, j int) bool { return out.Files[i].Path < out.Files[j].Path })

	for i := 1; i < len(out.Files); i++ {
		if out.Files[i].Path == out.Files[i-1].Path {
			return nil, bgerr.New(bgerr.StageEmit, bgerr.KindDuplicateTypeName).
				Subject(out.Files[i].Path).
				Detail("two generated files share a path").
				Build()
		}
	}

	sort.SliceStable(e.diags, func(i, j int) bool { return e.diags[i].Subject < e.diags[j].Subject })
	out.Diagnostics = e.diags
	return out, nil
}

// indexTypes records the namespace and documentation of every type the
// surface can mention.
func (e *emitter) indexTypes() {
	names := make(map[string]bool)
	for name := range e.reg {
		names[name] = true
	}
	for name := range e.opts.Extern {
		names[name] = true
	}
	for i := range e.fns.Descriptors {
		if d := &e.fns.Descriptors[i]; d.Declaring != nil {
			names[d.Declaring.Name] = true
		}
	}

	for name := range names {
		info := &typeInfo{name: name, namespace: e.root}
		if c, ok := e.reg[name]; ok {
			info.cstyle = e.opts.CStyleEnums && c.IsCStyle()
		}
		if ids := e.model.TypesNamed(name); len(ids) > 0 {
			e.describe(info, ids[0])
		}
		e.types[name] = info
	}
}

func (e *emitter) describe(info *typeInfo, id rustdoc.Id) {
	info.modulePath = e.model.ModulePath(id)
	info.namespace = e.opts.Namespace(info.modulePath)
	item, ok := e.model.Item(id)
	if !ok {
		return
	}
	info.docs = e.docs(item)

	var members []rustdoc.Id
	switch {
	case item.Inner.Struct != nil && item.Inner.Struct.Kind.Plain != nil:
		members = item.Inner.Struct.Kind.Plain.Fields
		info.fieldDocs = make(map[string]string)
	case item.Inner.Enum != nil:
		members = item.Inner.Enum.Variants
		info.variantDocs = make(map[string]string)
	}
	for _, mid := range members {
		m, ok := e.model.Item(mid)
		if !ok || m.Name == nil {
			continue
		}
		doc := e.docs(m)
		if doc == "" {
			continue
		}
		if info.fieldDocs != nil {
			info.fieldDocs[naming.ToPascalCase(*m.Name)] = doc
		} else {
			info.variantDocs[*m.Name] = doc
		}
	}
}

// docs converts an item's markdown docs to a C# summary.
func (e *emitter) docs(item *rustdoc.Item) string {
	links := make([]string, 0, len(item.Links))
	for text := range item.Links {
		links = append(links, text)
	}
	sort.Strings(links)
	return markdown.DocComment(item.DocString(), links)
}

func (e *emitter) namespaceOf(name string) string {
	if info, ok := e.types[name]; ok {
		return info.namespace
	}
	return e.root
}

func (e *emitter) info(name string) *typeInfo {
	if info, ok := e.types[name]; ok {
		return info
	}
	return &typeInfo{name: name, namespace: e.root}
}

func (e *emitter) pathOf(namespace, file string) string {
	return namespaceDir(namespace) + "/" + file
}

// member is a field of a struct or variant as emitted.
type member struct {
	name   string
	format schema.Format
	// missing is the unresolved type that keeps the field from being
	// emitted, or "".
	missing string
}

func (e *emitter) members(fields []schema.Field) []member {
	out := make([]member, len(fields))
	for i, fl := range fields {
		out[i] = member{name: fl.Name, format: fl.Format, missing: e.reg.Unresolved(fl.Format, e.opts.Extern)}
	}
	return out
}

// positional names unnamed fields: Value for a single newtype payload,
// Item1..ItemN for tuples.
func (e *emitter) positional(prefix string, formats []schema.Format) []member {
	fields := make([]schema.Field, len(formats))
	for i, f := range formats {
		name := prefix
		if len(formats) > 1 || prefix == "Item" {
			name = fmt.Sprintf("%s%d", prefix, i+1)
		}
		fields[i] = schema.Field{Name: name, Format: f}
	}
	return e.members(fields)
}

func (e *emitter) containerMembers(c schema.ContainerFormat) []member {
	switch c.Kind {
	case schema.NewtypeStruct:
		return e.positional("Value", []schema.Format{c.Value})
	case schema.TupleStruct:
		return e.positional("Item", c.Elems)
	case schema.Struct:
		return e.members(c.Fields)
	}
	return nil
}

func (e *emitter) variantMembers(v schema.Variant) []member {
	switch v.Kind {
	case schema.VariantNewtype:
		return e.positional("Value", []schema.Format{v.Value})
	case schema.VariantTuple:
		return e.positional("Item", v.Elems)
	case schema.VariantStruct:
		return e.members(v.Fields)
	}
	return nil
}

func unsupportedField(owner string, m member) *bgerr.Error {
	return bgerr.New(bgerr.StageEmit, bgerr.KindUnsupportedField).
		Subject(owner + "." + m.name).
		Detail("references unknown type %s", m.missing).
		Build()
}

// typeFile renders one registry entry with its methods.
func (e *emitter) typeFile(name string) *sourceFile {
	info := e.info(name)
	f := newSourceFile(e.pathOf(info.namespace, name+".g.cs"), info.namespace)
	c := e.reg[name]
	w := &f.body

	switch {
	case c.Kind == schema.Enum && info.cstyle:
		e.cstyleEnum(f, info, c)
	case c.Kind == schema.Enum:
		e.taggedUnion(f, info, c)
	default:
		members := e.containerMembers(c)
		ctor := c.Kind == schema.NewtypeStruct || c.Kind == schema.TupleStruct
		w.doc(info.docs)
		e.structContainer(f, info, name, members, ctor, -1, func() {
			e.methods(f, info, fieldNames(members))
		})
	}
	return f
}

func fieldNames(members []member) []string {
	out := make([]string, len(members))
	for i, m := range members {
		out[i] = m.name
	}
	return out
}

// structContainer renders a product type: a registry struct or, when
// variant >= 0, one arm of a tagged union. extra writes additional members
// before the closing brace.
func (e *emitter) structContainer(f *sourceFile, info *typeInfo, name string, members []member, ctor bool, variant int, extra func()) {
	w := &f.body
	w.open("public partial struct %s : IEquatable<%s>", name, name)

	var supported []member
	for _, m := range members {
		if m.missing != "" {
			owner := name
			if variant >= 0 {
				owner = info.name + "." + name
			}
			e.diags = append(e.diags, unsupportedField(owner, m))
			w.todo("unsupported field %s: references unknown type %s", m.name, m.missing)
			continue
		}
		supported = append(supported, m)
		if variant < 0 && info.fieldDocs != nil {
			w.doc(info.fieldDocs[m.name])
		}
		w.line("public %s %s;", e.quote(f, m.format), m.name)
	}
	complete := len(supported) == len(members)
	if len(members) > 0 {
		w.line("")
	}

	if ctor && complete && len(members) > 0 {
		params := make([]string, len(members))
		for i, m := range members {
			params[i] = e.quote(f, m.format) + " " + naming.ParamName(m.name)
		}
		w.open("public %s(%s)", name, strings.Join(params, ", "))
		for _, m := range members {
			p := naming.ParamName(m.name)
			if isReference(m.format) && m.format.Kind != schema.Option {
				w.line("if (%s == null) throw new ArgumentNullException(nameof(%s));", p, p)
			}
			w.line("%s = %s;", m.name, p)
		}
		w.close("")
		w.line("")
	}

	w.line("internal static void Serialize(%s value, Serde.ISerializer serializer) => value.Serialize(serializer);", name)
	w.line("")
	w.open("internal void Serialize(Serde.ISerializer serializer)")
	if complete {
		w.line("serializer.increase_container_depth();")
		if variant >= 0 {
			w.line("serializer.serialize_variant_index(%d);", variant)
		}
		for _, m := range members {
			w.raw(e.serializeValue(f, m.name, m.format))
		}
		w.line("serializer.decrease_container_depth();")
	} else {
		w.line("throw new NotSupportedException(\"%s has fields without a managed representation\");", name)
	}
	w.close("")
	w.line("")

	// Variants are read after their index, by the enclosing union.
	reader := "Deserialize"
	if variant >= 0 {
		reader = "Load"
	}
	w.open("internal static %s %s(Serde.IDeserializer deserializer)", name, reader)
	if complete {
		w.line("deserializer.increase_container_depth();")
		w.line("%s obj = default;", name)
		for _, m := range members {
			w.line("obj.%s = %s;", m.name, e.deserializeValue(f, m.format))
		}
		w.line("deserializer.decrease_container_depth();")
		w.line("return obj;")
	} else {
		w.line("throw new NotSupportedException(\"%s has fields without a managed representation\");", name)
	}
	w.close("")
	w.line("")

	w.line("public override bool Equals(object? obj) => obj is %s other && Equals(other);", name)
	w.line("")
	w.line("public static bool operator ==(%s left, %s right) => Equals(left, right);", name, name)
	w.line("")
	w.line("public static bool operator !=(%s left, %s right) => !Equals(left, right);", name, name)
	w.line("")
	w.open("public bool Equals(%s other)", name)
	for _, m := range supported {
		w.line("if (!Equals(%s, other.%s)) return false;", m.name, m.name)
	}
	w.line("return true;")
	w.close("")
	w.line("")
	w.open("public override int GetHashCode()")
	w.open("unchecked")
	w.line("int value = 7;")
	for _, m := range supported {
		w.line("value = 31 * value + %s;", hashExpr(m.name, m.format))
	}
	w.line("return value;")
	w.close("")
	w.close("")

	if extra != nil {
		extra()
	}
	w.close("")
}

// taggedUnion renders an enum with payloads as a struct holding one slot per
// variant and the active variant id.
func (e *emitter) taggedUnion(f *sourceFile, info *typeInfo, c schema.ContainerFormat) {
	w := &f.body
	name := info.name
	ordinals := c.Ordinals()

	w.doc(info.docs)
	w.open("public partial struct %s : IEquatable<%s>", name, name)
	w.line("/// <summary>Gets the inner variant object. This can be used in switch cases to destructure the enum.</summary>")
	w.open("public object Inner")
	w.open("get")
	w.open("switch (_variantId.GetValueOrDefault(-1))")
	for _, o := range ordinals {
		w.line("case %d: return _variant%d;", o, o)
	}
	w.line("default: throw new InvalidOperationException(\"Unknown variant type\");")
	w.close("")
	w.close("")
	w.close("")
	w.line("")
	w.line("private int? _variantId;")
	for _, o := range ordinals {
		w.line("")
		w.line("private %s _variant%d;", c.Variants[o].Name, o)
	}
	for _, o := range ordinals {
		v := c.Variants[o].Name
		w.line("")
		w.open("public static implicit operator %s(%s value)", name, v)
		w.line("%s result = default;", name)
		w.line("result._variantId = %d;", o)
		w.line("result._variant%d = value;", o)
		w.line("return result;")
		w.close("")
	}

	w.line("")
	w.line("internal static void Serialize(%s value, Serde.ISerializer serializer) => value.Serialize(serializer);", name)
	w.line("")
	w.open("internal void Serialize(Serde.ISerializer serializer)")
	w.open("switch (_variantId.GetValueOrDefault(-1))")
	for _, o := range ordinals {
		w.line("case %d: _variant%d.Serialize(serializer); break;", o, o)
	}
	w.line("default: throw new Serde.SerializationException(\"Uninitialized %s value\");", name)
	w.close("")
	w.close("")
	w.line("")
	w.open("internal static %s Deserialize(Serde.IDeserializer deserializer)", name)
	w.line("int index = deserializer.deserialize_variant_index();")
	w.open("switch (index)")
	for _, o := range ordinals {
		w.line("case %d: return %s.Load(deserializer);", o, c.Variants[o].Name)
	}
	w.line("default: throw new Serde.DeserializationException(\"Unknown variant index for %s: \" + index);", name)
	w.close("")
	w.close("")
	w.line("")

	w.open("public override int GetHashCode()")
	w.open("switch (_variantId.GetValueOrDefault(-1))")
	for _, o := range ordinals {
		w.line("case %d: return _variant%d.GetHashCode();", o, o)
	}
	w.line("default: return 0;")
	w.close("")
	w.close("")
	w.line("")
	w.line("public override bool Equals(object? obj) => obj is %s other && Equals(other);", name)
	w.line("")
	w.open("public bool Equals(%s other)", name)
	w.line("if (_variantId != other._variantId) return false;")
	w.open("switch (_variantId.GetValueOrDefault(-1))")
	for _, o := range ordinals {
		w.line("case %d: return _variant%d.Equals(other._variant%d);", o, o, o)
	}
	w.line("default: return true;")
	w.close("")
	w.close("")
	w.line("")
	w.line("public static bool operator ==(%s left, %s right) => Equals(left, right);", name, name)
	w.line("")
	w.line("public static bool operator !=(%s left, %s right) => !Equals(left, right);", name, name)

	variantNames := make([]string, 0, len(ordinals))
	for _, o := range ordinals {
		v := c.Variants[o]
		variantNames = append(variantNames, v.Name)
		members := e.variantMembers(v)
		w.line("")
		w.doc(info.variantDocs[v.Name])
		e.structContainer(f, info, v.Name, members, v.Kind == schema.VariantNewtype || v.Kind == schema.VariantTuple, int(o), nil)
	}

	e.methods(f, info, variantNames)
	w.close("")
}

// cstyleEnum renders an all-unit enum as a C# enum. Its serializers and
// methods live in a static extensions class.
func (e *emitter) cstyleEnum(f *sourceFile, info *typeInfo, c schema.ContainerFormat) {
	w := &f.body
	name := info.name

	w.doc(info.docs)
	w.open("public enum %s", name)
	for _, o := range c.Ordinals() {
		v := c.Variants[o].Name
		w.doc(info.variantDocs[v])
		w.line("%s = %d,", v, o)
	}
	w.close("")
	w.line("")

	w.open("public static partial class %sExtensions", name)
	w.open("internal static void Serialize(this %s value, Serde.ISerializer serializer)", name)
	w.line("serializer.increase_container_depth();")
	w.line("serializer.serialize_variant_index((int)value);")
	w.line("serializer.decrease_container_depth();")
	w.close("")
	w.line("")
	w.open("internal static %s Deserialize(Serde.IDeserializer deserializer)", name)
	w.line("deserializer.increase_container_depth();")
	w.line("int index = deserializer.deserialize_variant_index();")
	w.line("if (!Enum.IsDefined(typeof(%s), index))", name)
	w.line("    throw new Serde.DeserializationException(\"Unknown variant index for %s: \" + index);", name)
	w.line("%s value = (%s)index;", name, name)
	w.line("deserializer.decrease_container_depth();")
	w.line("return value;")
	w.close("")

	e.methods(f, info, nil)
	w.close("")
}

// externDeclaring lists hand-authored types that declare bound methods.
// Their methods are emitted into a partial struct completing the
// hand-written definition.
func (e *emitter) externDeclaring() []string {
	seen := make(map[string]bool)
	var out []string
	for i := range e.fns.Descriptors {
		d := &e.fns.Descriptors[i]
		if d.Declaring == nil || seen[d.Declaring.Name] {
			continue
		}
		if _, ok := e.reg[d.Declaring.Name]; ok {
			continue
		}
		seen[d.Declaring.Name] = true
		out = append(out, d.Declaring.Name)
	}
	sort.Strings(out)
	return out
}

func (e *emitter) externFile(name string) *sourceFile {
	info := e.info(name)
	f := newSourceFile(e.pathOf(info.namespace, name+".g.cs"), info.namespace)
	w := &f.body
	w.open("public partial struct %s", name)
	e.methods(f, info, nil)
	w.close("")
	return f
}

