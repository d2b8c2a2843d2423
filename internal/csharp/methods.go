package csharp

import (
	"fmt"
	"sort"
	"strings"

	bgerr "github.com/jcdickinson/eguinet/internal/errors"
	"github.com/jcdickinson/eguinet/internal/enumerate"
	"github.com/jcdickinson/eguinet/internal/naming"
	"github.com/jcdickinson/eguinet/internal/schema"
)

// codec describes how EguiMarshal moves one managed type across the
// boundary.
type codec struct {
	// cs is the C# type as written at call sites.
	cs string
	// key is the runtime type identity. Nullable reference annotations are
	// erased, so string? and string share a key.
	key string
	// id is the wire identity. Two codecs with one key and different ids
	// cannot both be registered.
	id     string
	write  string
	read   string
	format schema.Format
}

type arity struct {
	args    int
	returns bool
}

// callPlan is the set of codecs and Call overloads the bound methods need.
// Functions whose managed types would be ambiguous are skipped.
type callPlan struct {
	codecs  map[string]codec
	arities map[arity]bool
	skipped map[uint32]string
}

// signature is the managed view of a descriptor: receiver (if any) and
// arguments in wire order, and the result.
type signature struct {
	inputs []codec
	result *codec
}

func (e *emitter) signatureOf(d *enumerate.Descriptor) signature {
	var s signature
	for i, p := range d.Inputs {
		if i == 0 && d.Receiver != enumerate.ReceiverNone {
			s.inputs = append(s.inputs, e.formatCodec(schema.Named(d.Declaring.Name)))
			continue
		}
		s.inputs = append(s.inputs, e.codecOf(p.Type))
	}
	if d.Output != nil && d.Output.Format().Kind != schema.Unit {
		c := e.codecOf(*d.Output)
		s.result = &c
	}
	return s
}

func (s signature) all() []codec {
	if s.result == nil {
		return s.inputs
	}
	return append(append([]codec(nil), s.inputs...), *s.result)
}

func (e *emitter) planCalls() *callPlan {
	p := &callPlan{
		codecs:  make(map[string]codec),
		arities: make(map[arity]bool),
		skipped: make(map[uint32]string),
	}
	for i := range e.fns.Descriptors {
		d := &e.fns.Descriptors[i]
		sig := e.signatureOf(d)

		staged := make(map[string]codec)
		reason := ""
		for _, c := range sig.all() {
			prev, ok := p.codecs[c.key]
			if !ok {
				prev, ok = staged[c.key]
			}
			if ok && prev.id != c.id {
				reason = fmt.Sprintf("managed type %s is used for both %s and %s", c.cs, prev.id, c.id)
				break
			}
			staged[c.key] = c
		}
		if reason != "" {
			p.skipped[d.Ordinal] = reason
			e.diags = append(e.diags, bgerr.New(bgerr.StageEmit, bgerr.KindUnsupportedSignature).
				Subject(d.Key).Detail("%s", reason).Build())
			continue
		}
		for key, c := range staged {
			p.codecs[key] = c
			if needsHelper(c.format) {
				e.useHelper(c.format)
			}
		}
		p.arities[arity{args: len(sig.inputs), returns: sig.result != nil}] = true
	}
	return p
}

// codecOf builds the codec of a signature type. Pointer-sized integers keep
// their native width in C# and travel as 64-bit values.
func (e *emitter) codecOf(t enumerate.TypeRef) codec {
	t = t.Owned()
	if t.Kind == enumerate.RefPrimitive {
		switch t.Name {
		case "usize":
			return codec{
				cs: "nuint", key: "nuint", id: "usize",
				write:  "(value, serializer) => serializer.serialize_u64((ulong)value)",
				read:   "deserializer => (nuint)deserializer.deserialize_u64()",
				format: t.Format(),
			}
		case "isize":
			return codec{
				cs: "nint", key: "nint", id: "isize",
				write:  "(value, serializer) => serializer.serialize_i64((long)value)",
				read:   "deserializer => (nint)deserializer.deserialize_i64()",
				format: t.Format(),
			}
		}
	}
	return e.formatCodec(t.Format())
}

func (e *emitter) formatCodec(t schema.Format) codec {
	cs := e.quote(nil, t)
	c := codec{cs: cs, key: cs, id: t.Mangle(), format: t}
	if t.Kind == schema.Option && isReference(*t.Elem) {
		c.key = strings.TrimSuffix(cs, "?")
	}
	switch {
	case t.Kind == schema.TypeName:
		owner := e.serdeOwner(t.Name)
		c.write = owner + ".Serialize"
		c.read = owner + ".Deserialize"
	case needsHelper(t):
		c.write = "TraitHelpers.serialize_" + t.Mangle()
		c.read = "TraitHelpers.deserialize_" + t.Mangle()
	default:
		c.write = "(value, serializer) => " + strings.TrimSuffix(e.serializeValue(nil, "value", t), ";")
		c.read = "deserializer => " + e.deserializeValue(nil, t)
	}
	return c
}

var reservedMembers = []string{"Deserialize", "Equals", "GetHashCode", "Inner", "Load", "Serialize"}

// methods renders the functions declared by a type in ordinal order,
// followed by markers for the ones that were skipped. taken are member
// names already used by the type (fields or variants).
func (e *emitter) methods(f *sourceFile, info *typeInfo, taken []string) {
	reserved := map[string]bool{info.name: true}
	for _, n := range reservedMembers {
		reserved[n] = true
	}
	for _, n := range taken {
		reserved[n] = true
	}

	w := &f.body
	for _, d := range e.fns.DeclaredBy(info.name) {
		w.line("")
		if reason, ok := e.plan.skipped[d.Ordinal]; ok {
			w.todo("unsupported function %s: %s", d.Key, reason)
			continue
		}
		e.method(f, info, d, reserved)
	}
	for _, diag := range e.fns.Skipped(info.name) {
		w.line("")
		w.todo("unsupported function %s: %s", diag.Subject, diag.Detail)
	}
}

// memberName is the Pascal name of a method. A name that would clash with
// a field, variant or the type itself gets a With prefix. The chosen name
// is added to reserved; ok is false when the prefixed name is taken too.
func memberName(d *enumerate.Descriptor, reserved map[string]bool) (name string, ok bool) {
	name = naming.ToPascalCase(d.Name)
	if reserved[name] {
		name = naming.ToPascalCase("with_" + d.Name)
	}
	if reserved[name] {
		return name, false
	}
	reserved[name] = true
	return name, true
}

func (e *emitter) method(f *sourceFile, info *typeInfo, d *enumerate.Descriptor, reserved map[string]bool) {
	w := &f.body
	name, ok := memberName(d, reserved)
	if !ok {
		reason := fmt.Sprintf("member name %s is already taken", name)
		e.diags = append(e.diags, bgerr.New(bgerr.StageEmit, bgerr.KindUnsupportedSignature).
			Subject(d.Key).Detail("%s", reason).Build())
		w.todo("unsupported function %s: %s", d.Key, reason)
		return
	}
	sig := e.signatureOf(d)

	var params, args []string
	offset := 0
	if d.Receiver != enumerate.ReceiverNone {
		offset = 1
		if info.cstyle {
			params = append(params, "this "+info.name+" self")
			args = append(args, "self")
		} else {
			args = append(args, "this")
		}
	}
	for i, p := range d.Args() {
		c := sig.inputs[i+offset]
		e.quote(f, c.format)
		params = append(params, c.cs+" "+naming.ParamName(p.Name))
		args = append(args, naming.ParamName(p.Name))
	}

	e.methodDocs(w, d)
	call := e.callExpr(f, d, sig, args)
	ret := "void"
	if sig.result != nil {
		ret = sig.result.cs
	}

	switch {
	case info.cstyle:
		w.open("public static %s %s(%s)", ret, name, strings.Join(params, ", "))
	case d.IsConstructor() && d.Name == "new" && !e.shadowsFieldwise(info.name, sig):
		w.open("public %s(%s)", info.name, strings.Join(params, ", "))
		w.line("this = %s;", call)
		w.close("")
		return
	case d.Receiver != enumerate.ReceiverNone:
		w.open("public readonly %s %s(%s)", ret, name, strings.Join(params, ", "))
	default:
		w.open("public static %s %s(%s)", ret, name, strings.Join(params, ", "))
	}
	if sig.result != nil {
		w.line("return %s;", call)
	} else {
		w.line("%s;", call)
	}
	w.close("")
}

func (e *emitter) methodDocs(w *codeWriter, d *enumerate.Descriptor) {
	if item, ok := e.model.Item(d.ID); ok {
		w.doc(e.docs(item))
	}
	if !d.Bound {
		w.line("/// <remarks>No native invoker is registered; calls throw <see cref=\"BindingMissingException\"/>.</remarks>")
	}
}

// callExpr renders the EguiMarshal.Call invocation. Type arguments are the
// inputs in wire order followed by the result type.
func (e *emitter) callExpr(f *sourceFile, d *enumerate.Descriptor, sig signature, args []string) string {
	var types []string
	for _, c := range sig.all() {
		e.quote(f, c.format)
		types = append(types, c.cs)
	}
	generic := ""
	if len(types) > 0 {
		generic = "<" + strings.Join(types, ", ") + ">"
	}
	return fmt.Sprintf("EguiMarshal.Call%s(%s)", generic, strings.Join(append([]string{"EguiFn." + d.Key}, args...), ", "))
}

// shadowsFieldwise reports whether a constructor with sig's inputs would
// duplicate the generated field-wise constructor of a newtype or tuple
// struct. Such a `new` is emitted as a static New instead.
func (e *emitter) shadowsFieldwise(name string, sig signature) bool {
	c, ok := e.reg[name]
	if !ok || (c.Kind != schema.NewtypeStruct && c.Kind != schema.TupleStruct) {
		return false
	}
	members := e.containerMembers(c)
	if len(members) != len(sig.inputs) {
		return false
	}
	for i, m := range members {
		if m.missing != "" || e.formatCodec(m.format).key != sig.inputs[i].key {
			return false
		}
	}
	return true
}

// functionFiles renders free functions, one static class per namespace.
func (e *emitter) functionFiles() []*sourceFile {
	byNamespace := make(map[string][]*enumerate.Descriptor)
	for _, d := range e.fns.Free() {
		ns := e.opts.Namespace(d.Module)
		byNamespace[ns] = append(byNamespace[ns], d)
	}
	skipped := e.orphanSkipped()
	if len(skipped) > 0 && byNamespace[e.root] == nil {
		byNamespace[e.root] = nil
	}

	namespaces := make([]string, 0, len(byNamespace))
	for ns := range byNamespace {
		namespaces = append(namespaces, ns)
	}
	sort.Strings(namespaces)

	var files []*sourceFile
	for _, ns := range namespaces {
		class := lastSegment(ns) + "Functions"
		f := newSourceFile(e.pathOf(ns, class+".g.cs"), ns)
		w := &f.body
		info := &typeInfo{name: class, namespace: ns}
		reserved := map[string]bool{class: true}

		w.open("public static partial class %s", class)
		for i, d := range byNamespace[ns] {
			if i > 0 {
				w.line("")
			}
			if reason, ok := e.plan.skipped[d.Ordinal]; ok {
				w.todo("unsupported function %s: %s", d.Key, reason)
				continue
			}
			e.method(f, info, d, reserved)
		}
		if ns == e.root {
			for _, diag := range skipped {
				w.line("")
				w.todo("unsupported function %s: %s", diag.Subject, diag.Detail)
			}
		}
		w.close("")
		files = append(files, f)
	}
	return files
}

// orphanSkipped are the skipped functions without a generated type to
// carry their markers: free functions and methods of unknown types.
func (e *emitter) orphanSkipped() []*bgerr.Error {
	emitted := make(map[string]bool)
	for _, name := range e.externDeclaring() {
		emitted[name] = true
	}
	out := append([]*bgerr.Error(nil), e.fns.Skipped("")...)
	for _, owner := range e.fns.SkippedOwners() {
		if _, ok := e.reg[owner]; ok || emitted[owner] {
			continue
		}
		out = append(out, e.fns.Skipped(owner)...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Subject < out[j].Subject })
	return out
}

func lastSegment(namespace string) string {
	if i := strings.LastIndexByte(namespace, '.'); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}
