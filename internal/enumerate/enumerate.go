// Package enumerate selects the bindable functions of a model, assigns them
// stable ordinals and emits the native dispatch source.
package enumerate

import (
	"fmt"
	"sort"
	"strings"

	bgerr "github.com/jcdickinson/eguinet/internal/errors"
	"github.com/jcdickinson/eguinet/internal/rustdoc"
	"github.com/jcdickinson/eguinet/internal/schema"
)

// Receiver is how a method takes self.
type Receiver int

const (
	ReceiverNone Receiver = iota
	ReceiverValue
	ReceiverSharedRef
	ReceiverUniqueRef
)

func (r Receiver) String() string {
	switch r {
	case ReceiverValue:
		return "self"
	case ReceiverSharedRef:
		return "&self"
	case ReceiverUniqueRef:
		return "&mut self"
	}
	return "none"
}

// Param is a named function input.
type Param struct {
	Name string
	Type TypeRef
}

// DeclaringType is the type whose impl block declares a method.
type DeclaringType struct {
	Name string
	ID   rustdoc.Id
}

// Descriptor is a bindable function.
type Descriptor struct {
	ID rustdoc.Id
	// Key is the canonical key, also the native enum variant name.
	Key  string
	Name string
	// Path is the Rust expression naming the function in the native crate.
	Path     string
	Module   []string
	Receiver Receiver
	// Declaring is nil for free functions.
	Declaring *DeclaringType
	// Inputs include the receiver, named "self".
	Inputs      []Param
	Output      *TypeRef
	ReturnsSelf bool
	Docs        string
	Ordinal     uint32
	Bound       bool
}

// Args returns the inputs after the receiver.
func (d *Descriptor) Args() []Param {
	if d.Receiver != ReceiverNone {
		return d.Inputs[1:]
	}
	return d.Inputs
}

// IsConstructor reports whether the function builds a value of its
// declaring type from arguments alone: no receiver, returns Self, and is
// named new or default.
func (d *Descriptor) IsConstructor() bool {
	return d.Declaring != nil && d.Receiver == ReceiverNone && d.ReturnsSelf &&
		(d.Name == "new" || d.Name == "default")
}

// Signature renders the function in Rust syntax.
func (d *Descriptor) Signature() string {
	var b strings.Builder
	b.WriteString("fn ")
	b.WriteString(d.Name)
	b.WriteByte('(')
	for i, p := range d.Inputs {
		if i > 0 {
			b.WriteString(", ")
		}
		if i == 0 && d.Receiver != ReceiverNone {
			b.WriteString(d.Receiver.String())
			continue
		}
		b.WriteString(p.Name)
		b.WriteString(": ")
		b.WriteString(p.Type.String())
	}
	b.WriteByte(')')
	if d.Output != nil {
		b.WriteString(" -> ")
		b.WriteString(d.Output.String())
	}
	return b.String()
}

// Reserved is an ordinal whose key is no longer enumerated. It has no
// invoker.
type Reserved struct {
	Ordinal uint32
	Key     string
}

// VariantName is the native enum variant for the reserved slot.
func (r Reserved) VariantName() string {
	return fmt.Sprintf("__Reserved%d", r.Ordinal)
}

// Options configures enumeration.
type Options struct {
	// Crates are the path roots a key must start with.
	Crates []string
	// Registry holds the types that may appear in signatures.
	Registry schema.Registry
	// Extern are types with hand-authored managed definitions.
	Extern map[string]bool
	// ExcludeFunctions are canonical keys dropped before ordinals are
	// assigned.
	ExcludeFunctions map[string]bool
	// ExcludeFunctionNames are short names dropped wherever they appear.
	ExcludeFunctionNames map[string]bool
	// Unbound are keys that keep their ordinal but get no invoker.
	Unbound map[string]bool
	// Lock pins previously assigned ordinals. Nil assigns by sorted index.
	Lock *Lock
}

func (o Options) representable(name string) bool {
	if _, ok := o.Registry[name]; ok {
		return true
	}
	return o.Extern[name]
}

// Enumeration is the ordered function universe of a run.
type Enumeration struct {
	// Descriptors are ascending by ordinal.
	Descriptors []Descriptor
	// Reserved are ascending by ordinal.
	Reserved []Reserved
	// Diagnostics are UnsupportedSignature errors for skipped functions,
	// sorted by key.
	Diagnostics []*bgerr.Error

	byOrdinal map[uint32]int
	byKey     map[string]int
	skipped   map[string][]*bgerr.Error
}

// Enumerate selects the eligible functions of model and assigns ordinals.
func Enumerate(model *rustdoc.Model, opts Options) *Enumeration {
	var (
		eligible []Descriptor
		diags    []*bgerr.Error
		skipped  = make(map[string][]*bgerr.Error)
	)
	for _, id := range model.Functions() {
		d, ok := candidate(model, id, opts)
		if !ok {
			continue
		}
		if reason := check(model, id, &d, opts); reason != "" {
			diag := unsupportedSignature(d.Key, reason)
			diags = append(diags, diag)
			owner := ""
			if d.Declaring != nil {
				owner = d.Declaring.Name
			}
			skipped[owner] = append(skipped[owner], diag)
			continue
		}
		eligible = append(eligible, d)
	}

	sort.SliceStable(eligible, func(i, j int) bool { return eligible[i].Key < eligible[j].Key })

	// Two items can share a key (overloads across impl blocks). The lowest
	// id wins; Functions is ascending and the sort is stable.
	deduped := eligible[:0]
	for i, d := range eligible {
		if i > 0 && eligible[i-1].Key == d.Key {
			diags = append(diags, unsupportedSignature(d.Key, fmt.Sprintf("duplicate key (item %d shadowed by %d)", d.ID, eligible[i-1].ID)))
			continue
		}
		deduped = append(deduped, d)
	}
	eligible = deduped
	sort.SliceStable(diags, func(i, j int) bool { return diags[i].Subject < diags[j].Subject })

	reserved := assign(eligible, opts.Lock)
	for i := range eligible {
		eligible[i].Bound = !opts.Unbound[eligible[i].Key]
	}
	sort.Slice(eligible, func(i, j int) bool { return eligible[i].Ordinal < eligible[j].Ordinal })

	for _, list := range skipped {
		sort.SliceStable(list, func(i, j int) bool { return list[i].Subject < list[j].Subject })
	}
	e := &Enumeration{Descriptors: eligible, Reserved: reserved, Diagnostics: diags, skipped: skipped}
	e.index()
	return e
}

func unsupportedSignature(key, reason string) *bgerr.Error {
	return bgerr.New(bgerr.StageEnumerate, bgerr.KindUnsupportedSignature).Subject(key).Detail("%s", reason).Build()
}

// candidate builds the descriptor skeleton for functions that have a key
// under one of the bound crates and are not excluded. Anything rejected here
// is dropped silently.
func candidate(model *rustdoc.Model, id rustdoc.Id, opts Options) (Descriptor, bool) {
	item, _ := model.Item(id)
	name := item.NameOr("")
	if name == "" || opts.ExcludeFunctionNames[name] {
		return Descriptor{}, false
	}

	d := Descriptor{ID: id, Name: name, Docs: item.DocString()}
	if typeID, ok := model.DeclaringTypeOf(id); ok {
		typePath, ok := model.Path(typeID)
		if !ok {
			return Descriptor{}, false
		}
		typeName := typePath[len(typePath)-1]
		d.Key = strings.Join(typePath, "_") + "_" + name
		d.Path = typeName + "::" + name
		d.Module = typePath[:len(typePath)-1]
		d.Declaring = &DeclaringType{Name: typeName, ID: typeID}
	} else if fnPath, ok := model.Path(id); ok {
		d.Key = strings.Join(fnPath, "_")
		d.Path = name
		d.Module = fnPath[:len(fnPath)-1]
	} else {
		return Descriptor{}, false
	}

	if !hasCratePrefix(d.Key, opts.Crates) || opts.ExcludeFunctions[d.Key] {
		return Descriptor{}, false
	}
	return d, true
}

func hasCratePrefix(key string, crates []string) bool {
	for _, c := range crates {
		if key == c || strings.HasPrefix(key, c+"_") {
			return true
		}
	}
	return false
}

// check fills in the signature and returns why the function cannot be
// bound, or "".
func check(model *rustdoc.Model, id rustdoc.Id, d *Descriptor, opts Options) string {
	item, _ := model.Item(id)
	fn := item.Inner.Function
	switch {
	case fn.Generics.HasTypeParams():
		return "generic type parameters"
	case fn.Header.IsAsync:
		return "async"
	case fn.Header.IsUnsafe:
		return "unsafe"
	case fn.Sig.IsCVariadic:
		return "C variadic"
	}
	if d.Declaring != nil {
		// Type parameters on the impl block make Self generic too.
		if impl, ok := model.ImplOf(id, d.Declaring.ID); ok && impl.Generics.HasTypeParams() {
			return "generic impl block"
		}
	}

	self := ""
	if d.Declaring != nil {
		self = d.Declaring.Name
	}

	for i, in := range fn.Sig.Inputs {
		if i == 0 && in.Name == "self" {
			r, ok := receiverOf(in.Type)
			if !ok {
				return "unsupported receiver " + in.Type.String()
			}
			if r == ReceiverUniqueRef {
				return "mutable receiver"
			}
			d.Receiver = r
			d.Inputs = append(d.Inputs, Param{Name: "self", Type: Resolve(in.Type, self)})
			continue
		}
		t := Resolve(in.Type, self)
		if reason := representable(t, opts); reason != "" {
			return fmt.Sprintf("parameter %s: %s", in.Name, reason)
		}
		d.Inputs = append(d.Inputs, Param{Name: in.Name, Type: t})
	}

	if out := fn.Sig.Output; out != nil {
		t := Resolve(*out, self)
		if reason := representable(t, opts); reason != "" {
			return "return type: " + reason
		}
		d.Output = &t
		d.ReturnsSelf = out.IsSelf()
	}

	if d.Declaring != nil && !opts.representable(d.Declaring.Name) {
		return fmt.Sprintf("declaring type %s is not in the registry", d.Declaring.Name)
	}
	return ""
}

func receiverOf(t rustdoc.Type) (Receiver, bool) {
	switch {
	case t.IsSelf():
		return ReceiverValue, true
	case t.Kind == rustdoc.TypeBorrowedRef && t.Elem.IsSelf():
		if t.Mutable {
			return ReceiverUniqueRef, true
		}
		return ReceiverSharedRef, true
	}
	return ReceiverNone, false
}

func representable(t TypeRef, opts Options) string {
	if reason := t.Unsupported(); reason != "" {
		return reason
	}
	for _, name := range t.Names() {
		if !opts.representable(name) {
			return fmt.Sprintf("type %s is not in the registry", name)
		}
	}
	return ""
}

// assign sets ordinals on the sorted descriptors and returns the reserved
// slots. Without a lock the ordinal is the sorted index.
func assign(ds []Descriptor, lock *Lock) []Reserved {
	if lock == nil {
		for i := range ds {
			ds[i].Ordinal = uint32(i)
		}
		return nil
	}

	present := make(map[string]bool, len(ds))
	next := lock.Next()
	for i := range ds {
		present[ds[i].Key] = true
		if o, ok := lock.Ordinals[ds[i].Key]; ok {
			ds[i].Ordinal = o
			continue
		}
		ds[i].Ordinal = next
		next++
	}

	used := make(map[uint32]bool, next)
	for _, d := range ds {
		used[d.Ordinal] = true
	}
	var reserved []Reserved
	for _, key := range lock.Keys() {
		if !present[key] {
			reserved = append(reserved, Reserved{Ordinal: lock.Ordinals[key], Key: key})
			used[lock.Ordinals[key]] = true
		}
	}
	// Holes in a hand-edited lock are reserved too, so the native enum stays
	// contiguous.
	for o := uint32(0); o < next; o++ {
		if !used[o] {
			reserved = append(reserved, Reserved{Ordinal: o})
		}
	}
	sort.Slice(reserved, func(i, j int) bool { return reserved[i].Ordinal < reserved[j].Ordinal })
	return reserved
}

func (e *Enumeration) index() {
	e.byOrdinal = make(map[uint32]int, len(e.Descriptors))
	e.byKey = make(map[string]int, len(e.Descriptors))
	for i, d := range e.Descriptors {
		e.byOrdinal[d.Ordinal] = i
		e.byKey[d.Key] = i
	}
}

// Len is the number of ordinal slots, reserved ones included.
func (e *Enumeration) Len() int {
	return len(e.Descriptors) + len(e.Reserved)
}

// Lookup returns the descriptor for an ordinal. Reserved and out-of-range
// ordinals report OrdinalNotFound.
func (e *Enumeration) Lookup(ordinal uint32) (*Descriptor, error) {
	if i, ok := e.byOrdinal[ordinal]; ok {
		return &e.Descriptors[i], nil
	}
	b := bgerr.New(bgerr.StageEnumerate, bgerr.KindOrdinalNotFound).Subject(fmt.Sprintf("ordinal %d", ordinal))
	for _, r := range e.Reserved {
		if r.Ordinal == ordinal {
			return nil, b.Detail("reserved (was %s)", r.Key).Build()
		}
	}
	return nil, b.Detail("out of range [0, %d)", e.Len()).Build()
}

// ByKey returns the descriptor with the canonical key.
func (e *Enumeration) ByKey(key string) (*Descriptor, bool) {
	i, ok := e.byKey[key]
	if !ok {
		return nil, false
	}
	return &e.Descriptors[i], true
}

// DeclaredBy returns the methods of a type, ascending by ordinal.
func (e *Enumeration) DeclaredBy(typeName string) []*Descriptor {
	var out []*Descriptor
	for i := range e.Descriptors {
		if d := &e.Descriptors[i]; d.Declaring != nil && d.Declaring.Name == typeName {
			out = append(out, d)
		}
	}
	return out
}

// Free returns the functions without a declaring type, ascending by
// ordinal.
func (e *Enumeration) Free() []*Descriptor {
	var out []*Descriptor
	for i := range e.Descriptors {
		if d := &e.Descriptors[i]; d.Declaring == nil {
			out = append(out, d)
		}
	}
	return out
}

// Skipped returns the diagnostics for methods of a type, sorted by key.
// Free functions are listed under the empty name.
func (e *Enumeration) Skipped(typeName string) []*bgerr.Error {
	return e.skipped[typeName]
}

// SkippedOwners lists the declaring types with skipped methods, sorted.
func (e *Enumeration) SkippedOwners() []string {
	out := make([]string, 0, len(e.skipped))
	for name := range e.skipped {
		if name != "" {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Slot is one ordinal of the native enum.
type Slot struct {
	Ordinal    uint32
	Variant    string
	Descriptor *Descriptor
}

// Slots lists every ordinal in order, reserved ones included.
func (e *Enumeration) Slots() []Slot {
	out := make([]Slot, 0, e.Len())
	for i := range e.Descriptors {
		d := &e.Descriptors[i]
		out = append(out, Slot{Ordinal: d.Ordinal, Variant: d.Key, Descriptor: d})
	}
	for _, r := range e.Reserved {
		out = append(out, Slot{Ordinal: r.Ordinal, Variant: r.VariantName()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ordinal < out[j].Ordinal })
	return out
}

// Lock returns the lock that reproduces this enumeration's ordinals.
func (e *Enumeration) Lock() *Lock {
	l := &Lock{Ordinals: make(map[string]uint32, e.Len())}
	for _, d := range e.Descriptors {
		l.Ordinals[d.Key] = d.Ordinal
	}
	for _, r := range e.Reserved {
		if r.Key != "" {
			l.Ordinals[r.Key] = r.Ordinal
		}
	}
	return l
}
