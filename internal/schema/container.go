package schema

import (
	"fmt"
	"sort"

	bgerr "github.com/jcdickinson/eguinet/internal/errors"
)

// ContainerKind identifies a ContainerFormat.
type ContainerKind int

const (
	UnitStruct ContainerKind = iota
	NewtypeStruct
	TupleStruct
	Struct
	Enum
)

func (k ContainerKind) String() string {
	switch k {
	case UnitStruct:
		return "UNITSTRUCT"
	case NewtypeStruct:
		return "NEWTYPESTRUCT"
	case TupleStruct:
		return "TUPLESTRUCT"
	case Struct:
		return "STRUCT"
	case Enum:
		return "ENUM"
	}
	return fmt.Sprintf("ContainerKind(%d)", int(k))
}

// Field is a named format.
type Field struct {
	Name   string
	Format Format
}

// VariantKind identifies the shape of an enum variant.
type VariantKind int

const (
	VariantUnit VariantKind = iota
	VariantNewtype
	VariantTuple
	VariantStruct
)

// Variant is one arm of an enum.
type Variant struct {
	Name   string
	Kind   VariantKind
	Value  Format   // VariantNewtype
	Elems  []Format // VariantTuple
	Fields []Field  // VariantStruct
}

// Formats returns the formats carried by the variant, in wire order.
func (v Variant) Formats() []Format {
	switch v.Kind {
	case VariantNewtype:
		return []Format{v.Value}
	case VariantTuple:
		return v.Elems
	case VariantStruct:
		out := make([]Format, len(v.Fields))
		for i, f := range v.Fields {
			out[i] = f.Format
		}
		return out
	}
	return nil
}

// ContainerFormat is the top-level layout of a named type.
type ContainerFormat struct {
	Kind     ContainerKind
	Value    Format             // NewtypeStruct
	Elems    []Format           // TupleStruct
	Fields   []Field            // Struct
	Variants map[uint32]Variant // Enum, keyed by wire ordinal
}

// Ordinals returns the enum's variant ordinals, ascending.
func (c ContainerFormat) Ordinals() []uint32 {
	out := make([]uint32, 0, len(c.Variants))
	for o := range c.Variants {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Formats returns every format directly referenced by the container.
func (c ContainerFormat) Formats() []Format {
	switch c.Kind {
	case NewtypeStruct:
		return []Format{c.Value}
	case TupleStruct:
		return c.Elems
	case Struct:
		out := make([]Format, len(c.Fields))
		for i, f := range c.Fields {
			out[i] = f.Format
		}
		return out
	case Enum:
		var out []Format
		for _, o := range c.Ordinals() {
			out = append(out, c.Variants[o].Formats()...)
		}
		return out
	}
	return nil
}

// IsCStyle reports whether the container is an enum whose variants are all
// unit.
func (c ContainerFormat) IsCStyle() bool {
	if c.Kind != Enum || len(c.Variants) == 0 {
		return false
	}
	for _, v := range c.Variants {
		if v.Kind != VariantUnit {
			return false
		}
	}
	return true
}

// Registry maps type names to their layout.
type Registry map[string]ContainerFormat

// Names returns the registry's type names, sorted.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for n := range r {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// References returns the names a container refers to, sorted and unique.
func References(c ContainerFormat) []string {
	seen := make(map[string]bool)
	for _, f := range c.Formats() {
		f.Walk(func(f Format) {
			if f.Kind == TypeName {
				seen[f.Name] = true
			}
		})
	}
	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Validate checks the registry invariants: unique field names within each
// struct or variant, contiguous variant ordinals from zero, and that every
// referenced name resolves to a registry entry or one of extern.
func (r Registry) Validate(extern map[string]bool) error {
	if err := r.ValidateLayout(); err != nil {
		return err
	}
	for _, name := range r.Names() {
		for _, ref := range References(r[name]) {
			if !r.Resolves(ref, extern) {
				return invalid(name, "references unknown type %q", ref)
			}
		}
	}
	return nil
}

// ValidateLayout checks field name uniqueness and variant ordinal
// contiguity without requiring references to resolve.
func (r Registry) ValidateLayout() error {
	for _, name := range r.Names() {
		c := r[name]
		switch c.Kind {
		case Struct:
			if dup, ok := duplicateField(c.Fields); ok {
				return invalid(name, "duplicate field %q", dup)
			}
		case Enum:
			seen := make(map[string]bool, len(c.Variants))
			for i, o := range c.Ordinals() {
				if o != uint32(i) {
					return invalid(name, "variant ordinals are not contiguous: missing %d", i)
				}
				v := c.Variants[o]
				if seen[v.Name] {
					return invalid(name, "duplicate variant %q", v.Name)
				}
				seen[v.Name] = true
				if v.Kind == VariantStruct {
					if dup, ok := duplicateField(v.Fields); ok {
						return invalid(name, "duplicate field %q in variant %q", dup, v.Name)
					}
				}
			}
		}
	}
	return nil
}

// Resolves reports whether name is a registry entry or one of extern.
func (r Registry) Resolves(name string, extern map[string]bool) bool {
	if _, ok := r[name]; ok {
		return true
	}
	return extern[name]
}

// Unresolved returns the first name referenced by f that does not resolve,
// or "".
func (r Registry) Unresolved(f Format, extern map[string]bool) string {
	missing := ""
	f.Walk(func(f Format) {
		if missing == "" && f.Kind == TypeName && !r.Resolves(f.Name, extern) {
			missing = f.Name
		}
	})
	return missing
}

func duplicateField(fields []Field) (string, bool) {
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if seen[f.Name] {
			return f.Name, true
		}
		seen[f.Name] = true
	}
	return "", false
}

func invalid(name, detail string, args ...any) error {
	return bgerr.New(bgerr.StageTrace, bgerr.KindInvalidSchema).Subject(name).Detail(detail, args...).Build()
}
