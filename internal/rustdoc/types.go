package rustdoc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Id is the rustdoc identifier of an item. It is only a lookup key.
type Id uint32

// Crate is the top-level structure of rustdoc JSON output.
type Crate struct {
	Root            Id                       `json:"root"`
	CrateVersion    *string                  `json:"crate_version"`
	IncludesPrivate bool                     `json:"includes_private"`
	Index           map[Id]*Item             `json:"index"`
	Paths           map[Id]Summary           `json:"paths"`
	ExternalCrates  map[uint32]ExternalCrate `json:"external_crates"`
	FormatVersion   int                      `json:"format_version"`
}

// ExternalCrate identifies a dependency crate by name.
type ExternalCrate struct {
	Name        string  `json:"name"`
	HTMLRootURL *string `json:"html_root_url"`
}

// Summary provides the path and kind for an item.
type Summary struct {
	CrateID uint32   `json:"crate_id"`
	Path    []string `json:"path"`
	Kind    string   `json:"kind"`
}

// Item is a single item in the rustdoc index.
type Item struct {
	ID      Id            `json:"id"`
	CrateID uint32        `json:"crate_id"`
	Name    *string       `json:"name"`
	Docs    *string       `json:"docs"`
	Links   map[string]Id `json:"links"` // markdown text → item ID
	Inner   Inner         `json:"inner"`
}

// ItemKind is the coarse classification used by the generator.
type ItemKind int

const (
	KindOther ItemKind = iota
	KindStruct
	KindEnum
	KindFunction
	KindImpl
	KindVariant
	KindStructField
)

func (k ItemKind) String() string {
	switch k {
	case KindStruct:
		return "struct"
	case KindEnum:
		return "enum"
	case KindFunction:
		return "function"
	case KindImpl:
		return "impl"
	case KindVariant:
		return "variant"
	case KindStructField:
		return "struct_field"
	}
	return "other"
}

// Kind classifies the item by its inner payload.
func (it *Item) Kind() ItemKind {
	switch {
	case it.Inner.Struct != nil:
		return KindStruct
	case it.Inner.Enum != nil:
		return KindEnum
	case it.Inner.Function != nil:
		return KindFunction
	case it.Inner.Impl != nil:
		return KindImpl
	case it.Inner.Variant != nil:
		return KindVariant
	case it.Inner.StructField != nil:
		return KindStructField
	}
	return KindOther
}

// NameOr returns the item's name, or def when it has none.
func (it *Item) NameOr(def string) string {
	if it.Name == nil {
		return def
	}
	return *it.Name
}

// DocString returns the item's docs or "".
func (it *Item) DocString() string {
	if it.Docs == nil {
		return ""
	}
	return *it.Docs
}

// Inner is the externally tagged item payload: a JSON object with a single
// key naming the kind. Kinds the generator does not model keep their raw
// payload.
type Inner struct {
	Tag         string
	Struct      *Struct
	Enum        *Enum
	Variant     *Variant
	StructField *Type
	Function    *Function
	Impl        *Impl
	Raw         json.RawMessage
}

func (in *Inner) UnmarshalJSON(data []byte) error {
	tag, payload, err := unwrapTagged(data)
	if err != nil {
		return fmt.Errorf("item inner: %w", err)
	}
	*in = Inner{Tag: tag}
	if payload == nil {
		return nil
	}
	switch tag {
	case "struct":
		in.Struct = &Struct{}
		return json.Unmarshal(payload, in.Struct)
	case "enum":
		in.Enum = &Enum{}
		return json.Unmarshal(payload, in.Enum)
	case "variant":
		in.Variant = &Variant{}
		return json.Unmarshal(payload, in.Variant)
	case "struct_field":
		in.StructField = &Type{}
		return json.Unmarshal(payload, in.StructField)
	case "function":
		in.Function = &Function{}
		return json.Unmarshal(payload, in.Function)
	case "impl":
		in.Impl = &Impl{}
		return json.Unmarshal(payload, in.Impl)
	}
	in.Raw = append(json.RawMessage(nil), payload...)
	return nil
}

// Struct is the payload of a struct item.
type Struct struct {
	Kind     StructKind `json:"kind"`
	Generics Generics   `json:"generics"`
	Impls    []Id       `json:"impls"`
}

// StructKind is one of unit, tuple or plain. Tuple fields may be stripped
// (nil) when private.
type StructKind struct {
	Unit  bool
	Tuple []*Id
	Plain *PlainFields
}

// PlainFields lists the field items of a braced struct or struct variant.
type PlainFields struct {
	Fields            []Id `json:"fields"`
	HasStrippedFields bool `json:"has_stripped_fields"`
}

func (k *StructKind) UnmarshalJSON(data []byte) error {
	tag, payload, err := unwrapTagged(data)
	if err != nil {
		return fmt.Errorf("struct kind: %w", err)
	}
	*k = StructKind{}
	switch tag {
	case "unit":
		k.Unit = true
	case "tuple":
		return json.Unmarshal(payload, &k.Tuple)
	case "plain":
		k.Plain = &PlainFields{}
		return json.Unmarshal(payload, k.Plain)
	default:
		return fmt.Errorf("unknown struct kind %q", tag)
	}
	return nil
}

// Enum is the payload of an enum item.
type Enum struct {
	Generics            Generics `json:"generics"`
	HasStrippedVariants bool     `json:"has_stripped_variants"`
	Variants            []Id     `json:"variants"`
	Impls               []Id     `json:"impls"`
}

// Variant is the payload of an enum variant item.
type Variant struct {
	Kind         VariantKind     `json:"kind"`
	Discriminant json.RawMessage `json:"discriminant"`
}

// VariantKind is one of plain (unit), tuple or struct.
type VariantKind struct {
	Plain  bool
	Tuple  []*Id
	Struct *PlainFields
}

func (k *VariantKind) UnmarshalJSON(data []byte) error {
	tag, payload, err := unwrapTagged(data)
	if err != nil {
		return fmt.Errorf("variant kind: %w", err)
	}
	*k = VariantKind{}
	switch tag {
	case "plain":
		k.Plain = true
	case "tuple":
		return json.Unmarshal(payload, &k.Tuple)
	case "struct":
		k.Struct = &PlainFields{}
		return json.Unmarshal(payload, k.Struct)
	default:
		return fmt.Errorf("unknown variant kind %q", tag)
	}
	return nil
}

// Function is the payload of a function item.
type Function struct {
	Sig      Signature `json:"sig"`
	Generics Generics  `json:"generics"`
	Header   Header    `json:"header"`
	HasBody  bool      `json:"has_body"`
}

func (f *Function) UnmarshalJSON(data []byte) error {
	type plain Function
	var raw struct {
		plain
		Decl *Signature `json:"decl"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*f = Function(raw.plain)
	// format versions before 37 named the signature "decl"
	if raw.Decl != nil && len(f.Sig.Inputs) == 0 && f.Sig.Output == nil {
		f.Sig = *raw.Decl
	}
	return nil
}

// Signature is a function's inputs and output.
type Signature struct {
	Inputs      []Param `json:"inputs"`
	Output      *Type   `json:"output"`
	IsCVariadic bool    `json:"is_c_variadic"`
}

// Param is a [name, type] pair from a signature.
type Param struct {
	Name string
	Type Type
}

func (p *Param) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("signature input: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("signature input: expected [name, type], got %d elements", len(pair))
	}
	if err := json.Unmarshal(pair[0], &p.Name); err != nil {
		return fmt.Errorf("signature input name: %w", err)
	}
	return json.Unmarshal(pair[1], &p.Type)
}

// Header carries function qualifiers.
type Header struct {
	IsConst  bool `json:"is_const"`
	IsUnsafe bool `json:"is_unsafe"`
	IsAsync  bool `json:"is_async"`
}

// Generics lists the generic parameters of an item.
type Generics struct {
	Params []GenericParam `json:"params"`
}

// GenericParam is a single generic parameter. Kind is keyed by
// "lifetime", "type" or "const".
type GenericParam struct {
	Name string                     `json:"name"`
	Kind map[string]json.RawMessage `json:"kind"`
}

// HasTypeParams reports whether any parameter is a type or const parameter.
func (g Generics) HasTypeParams() bool {
	for _, p := range g.Params {
		if _, ok := p.Kind["lifetime"]; !ok {
			return true
		}
	}
	return false
}

// Impl is the payload of an impl block.
type Impl struct {
	IsUnsafe             bool     `json:"is_unsafe"`
	Generics             Generics `json:"generics"`
	ProvidedTraitMethods []string `json:"provided_trait_methods"`
	Trait                *Path    `json:"trait"`
	For                  Type     `json:"for"`
	Items                []Id     `json:"items"`
	IsNegative           bool     `json:"is_negative"`
	IsSynthetic          bool     `json:"is_synthetic"`
	BlanketImpl          *Type    `json:"blanket_impl"`
}

// Path is a resolved reference to a named item with optional generic args.
type Path struct {
	Path string       `json:"path"`
	Name string       `json:"name"` // format versions before 41
	ID   Id           `json:"id"`
	Args *GenericArgs `json:"args"`
}

// FullName returns the path as written at the reference site.
func (p *Path) FullName() string {
	if p.Path != "" {
		return p.Path
	}
	return p.Name
}

// ShortName returns the last path segment.
func (p *Path) ShortName() string {
	name := p.FullName()
	if i := strings.LastIndex(name, "::"); i >= 0 {
		return name[i+2:]
	}
	return name
}

// TypeArgs returns the angle-bracketed type arguments, skipping lifetimes
// and consts.
func (p *Path) TypeArgs() []Type {
	if p.Args == nil || p.Args.AngleBracketed == nil {
		return nil
	}
	var out []Type
	for _, a := range p.Args.AngleBracketed.Args {
		if a.Type != nil {
			out = append(out, *a.Type)
		}
	}
	return out
}

// GenericArgs is either angle-bracketed (<T, U>) or parenthesized (Fn(A) -> B).
type GenericArgs struct {
	AngleBracketed *AngleBracketed
	Parenthesized  *Parenthesized
}

type AngleBracketed struct {
	Args        []GenericArg    `json:"args"`
	Constraints json.RawMessage `json:"constraints"`
}

type Parenthesized struct {
	Inputs []Type `json:"inputs"`
	Output *Type  `json:"output"`
}

func (g *GenericArgs) UnmarshalJSON(data []byte) error {
	tag, payload, err := unwrapTagged(data)
	if err != nil {
		return fmt.Errorf("generic args: %w", err)
	}
	*g = GenericArgs{}
	switch tag {
	case "angle_bracketed":
		g.AngleBracketed = &AngleBracketed{}
		return json.Unmarshal(payload, g.AngleBracketed)
	case "parenthesized":
		g.Parenthesized = &Parenthesized{}
		return json.Unmarshal(payload, g.Parenthesized)
	}
	return nil
}

// GenericArg is a single argument inside angle brackets.
type GenericArg struct {
	Type     *Type
	Lifetime string
	Other    string
}

func (a *GenericArg) UnmarshalJSON(data []byte) error {
	tag, payload, err := unwrapTagged(data)
	if err != nil {
		return fmt.Errorf("generic arg: %w", err)
	}
	*a = GenericArg{}
	switch tag {
	case "type":
		a.Type = &Type{}
		return json.Unmarshal(payload, a.Type)
	case "lifetime":
		return json.Unmarshal(payload, &a.Lifetime)
	}
	a.Other = tag
	return nil
}

// TypeKind is the tag of a rustdoc Type.
type TypeKind string

const (
	TypeResolvedPath    TypeKind = "resolved_path"
	TypePrimitive       TypeKind = "primitive"
	TypeGeneric         TypeKind = "generic"
	TypeTuple           TypeKind = "tuple"
	TypeSlice           TypeKind = "slice"
	TypeArray           TypeKind = "array"
	TypeBorrowedRef     TypeKind = "borrowed_ref"
	TypeRawPointer      TypeKind = "raw_pointer"
	TypeQualifiedPath   TypeKind = "qualified_path"
	TypeDynTrait        TypeKind = "dyn_trait"
	TypeFunctionPointer TypeKind = "function_pointer"
	TypeImplTrait       TypeKind = "impl_trait"
	TypeInfer           TypeKind = "infer"
)

// Type is a type position in a signature or field. Only the members that
// belong to Kind are set. Kinds that can never be bound keep their raw
// payload.
type Type struct {
	Kind    TypeKind
	Path    *Path  // resolved_path
	Name    string // primitive, generic, qualified_path item name
	Elems   []Type // tuple
	Elem    *Type  // slice, array, borrowed_ref, raw_pointer, qualified_path self type
	Len     string // array
	Mutable bool   // borrowed_ref, raw_pointer
	Trait   *Path  // qualified_path
	Raw     json.RawMessage
}

func (t *Type) UnmarshalJSON(data []byte) error {
	tag, payload, err := unwrapTagged(data)
	if err != nil {
		return fmt.Errorf("type: %w", err)
	}
	*t = Type{Kind: TypeKind(tag)}
	switch t.Kind {
	case TypeResolvedPath:
		t.Path = &Path{}
		return json.Unmarshal(payload, t.Path)
	case TypePrimitive, TypeGeneric:
		return json.Unmarshal(payload, &t.Name)
	case TypeTuple:
		return json.Unmarshal(payload, &t.Elems)
	case TypeSlice:
		t.Elem = &Type{}
		return json.Unmarshal(payload, t.Elem)
	case TypeArray:
		var a struct {
			Type Type   `json:"type"`
			Len  string `json:"len"`
		}
		if err := json.Unmarshal(payload, &a); err != nil {
			return err
		}
		t.Elem, t.Len = &a.Type, a.Len
	case TypeBorrowedRef, TypeRawPointer:
		var r struct {
			IsMutable bool `json:"is_mutable"`
			Type      Type `json:"type"`
		}
		if err := json.Unmarshal(payload, &r); err != nil {
			return err
		}
		t.Elem, t.Mutable = &r.Type, r.IsMutable
	case TypeQualifiedPath:
		var q struct {
			Name     string `json:"name"`
			SelfType Type   `json:"self_type"`
			Trait    *Path  `json:"trait"`
		}
		if err := json.Unmarshal(payload, &q); err != nil {
			return err
		}
		t.Name, t.Elem, t.Trait = q.Name, &q.SelfType, q.Trait
	default:
		if payload != nil {
			t.Raw = append(json.RawMessage(nil), payload...)
		}
	}
	return nil
}

// String renders the type roughly as Rust source, for diagnostics.
func (t Type) String() string {
	switch t.Kind {
	case TypeResolvedPath:
		s := t.Path.ShortName()
		if args := t.Path.TypeArgs(); len(args) > 0 {
			parts := make([]string, len(args))
			for i, a := range args {
				parts[i] = a.String()
			}
			s += "<" + strings.Join(parts, ", ") + ">"
		}
		return s
	case TypePrimitive, TypeGeneric:
		return t.Name
	case TypeTuple:
		parts := make([]string, len(t.Elems))
		for i, e := range t.Elems {
			parts[i] = e.String()
		}
		return "(" + strings.Join(parts, ", ") + ")"
	case TypeSlice:
		return "[" + t.Elem.String() + "]"
	case TypeArray:
		return "[" + t.Elem.String() + "; " + t.Len + "]"
	case TypeBorrowedRef:
		if t.Mutable {
			return "&mut " + t.Elem.String()
		}
		return "&" + t.Elem.String()
	case TypeRawPointer:
		if t.Mutable {
			return "*mut " + t.Elem.String()
		}
		return "*const " + t.Elem.String()
	case TypeQualifiedPath:
		return "<" + t.Elem.String() + ">::" + t.Name
	}
	return string(t.Kind)
}

// IsSelf reports whether the type is the `Self` generic.
func (t Type) IsSelf() bool {
	return t.Kind == TypeGeneric && t.Name == "Self"
}

// unwrapTagged splits an externally tagged JSON value into its tag and
// payload. A bare string is a tag with no payload.
func unwrapTagged(data []byte) (string, json.RawMessage, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var tag string
		if err := json.Unmarshal(data, &tag); err != nil {
			return "", nil, err
		}
		return tag, nil, nil
	}
	var outer map[string]json.RawMessage
	if err := json.Unmarshal(data, &outer); err != nil {
		return "", nil, err
	}
	if len(outer) != 1 {
		return "", nil, fmt.Errorf("expected a single tag, got %d keys", len(outer))
	}
	for k, v := range outer {
		return k, v, nil
	}
	return "", nil, nil
}
