package rustdoc

import (
	"fmt"
	"sort"

	bgerr "github.com/jcdickinson/eguinet/internal/errors"
)

// Remap records the identifier each Id of a merged crate received.
type Remap map[Id]Id

// Merge folds from into into. Every identifier of from is given a fresh
// identifier above the largest one in into, and every position holding an
// identifier is rewritten through the same mapping. from is not modified.
//
// Containment references (struct fields, enum variants, inherent impl items)
// must resolve within from's index; a miss is a DanglingId. Type, impl-list
// and link references may point at items only listed in paths, or at nothing
// at all for external items rustdoc did not record; those are remapped as is.
func Merge(into, from *Crate) (Remap, error) {
	if into.Index == nil || from.Index == nil {
		return nil, bgerr.New(bgerr.StageMerge, bgerr.KindMergeConflict).Detail("crate has no index").Build()
	}
	if into.FormatVersion != from.FormatVersion {
		return nil, bgerr.New(bgerr.StageMerge, bgerr.KindMergeConflict).
			Detail("format version %d does not match %d", from.FormatVersion, into.FormatVersion).
			Build()
	}

	m := newIDRemapper(into, from)

	// into is left untouched when any item fails to remap.
	staged := make([]*Item, 0, len(from.Index))
	for _, id := range sortedIndexIDs(from) {
		item, err := m.item(from.Index[id])
		if err != nil {
			return nil, err
		}
		staged = append(staged, item)
	}

	for _, item := range staged {
		into.Index[item.ID] = item
	}
	if into.Paths == nil {
		into.Paths = make(map[Id]Summary)
	}
	for _, id := range sortedPathIDs(from) {
		s := from.Paths[id]
		s.Path = append([]string(nil), s.Path...)
		into.Paths[m.get(id)] = s
	}
	return m.remap, nil
}

type idRemapper struct {
	from  *Crate
	next  Id
	remap Remap
}

func newIDRemapper(into, from *Crate) *idRemapper {
	var max Id
	for id := range into.Index {
		if id > max {
			max = id
		}
	}
	for id := range into.Paths {
		if id > max {
			max = id
		}
	}
	m := &idRemapper{from: from, next: max + 1, remap: make(Remap)}

	// Pre-assign in sorted order so the mapping does not depend on traversal.
	for _, id := range sortedIndexIDs(from) {
		m.get(id)
	}
	for _, id := range sortedPathIDs(from) {
		m.get(id)
	}
	return m
}

func (m *idRemapper) get(id Id) Id {
	if to, ok := m.remap[id]; ok {
		return to
	}
	to := m.next
	m.next++
	m.remap[id] = to
	return to
}

// contained remaps a containment reference, which must name an indexed item.
func (m *idRemapper) contained(id Id, owner Id, what string) (Id, error) {
	if _, ok := m.from.Index[id]; !ok {
		return 0, bgerr.DanglingID(uint32(id), fmt.Sprintf("%s of item %d", what, owner))
	}
	return m.get(id), nil
}

func (m *idRemapper) containedList(ids []Id, owner Id, what string) ([]Id, error) {
	if ids == nil {
		return nil, nil
	}
	out := make([]Id, len(ids))
	for i, id := range ids {
		to, err := m.contained(id, owner, what)
		if err != nil {
			return nil, err
		}
		out[i] = to
	}
	return out, nil
}

func (m *idRemapper) optionalList(ids []*Id, owner Id, what string) ([]*Id, error) {
	if ids == nil {
		return nil, nil
	}
	out := make([]*Id, len(ids))
	for i, id := range ids {
		if id == nil {
			continue
		}
		to, err := m.contained(*id, owner, what)
		if err != nil {
			return nil, err
		}
		out[i] = &to
	}
	return out, nil
}

func (m *idRemapper) item(src *Item) (*Item, error) {
	dst := *src
	dst.ID = m.get(src.ID)

	if src.Links != nil {
		dst.Links = make(map[string]Id, len(src.Links))
		for text, id := range src.Links {
			dst.Links[text] = m.get(id)
		}
	}

	inner, err := m.inner(src.ID, src.Inner)
	if err != nil {
		return nil, err
	}
	dst.Inner = inner
	return &dst, nil
}

func (m *idRemapper) inner(owner Id, src Inner) (Inner, error) {
	dst := Inner{Tag: src.Tag, Raw: src.Raw}
	var err error

	switch {
	case src.Struct != nil:
		s := *src.Struct
		if s.Kind, err = m.structKind(owner, src.Struct.Kind); err != nil {
			return dst, err
		}
		s.Impls = m.list(src.Struct.Impls)
		s.Generics = m.generics(src.Struct.Generics)
		dst.Struct = &s

	case src.Enum != nil:
		e := *src.Enum
		if e.Variants, err = m.containedList(src.Enum.Variants, owner, "variant"); err != nil {
			return dst, err
		}
		e.Impls = m.list(src.Enum.Impls)
		e.Generics = m.generics(src.Enum.Generics)
		dst.Enum = &e

	case src.Variant != nil:
		v := *src.Variant
		switch {
		case src.Variant.Kind.Tuple != nil:
			if v.Kind.Tuple, err = m.optionalList(src.Variant.Kind.Tuple, owner, "variant field"); err != nil {
				return dst, err
			}
		case src.Variant.Kind.Struct != nil:
			fields, err := m.containedList(src.Variant.Kind.Struct.Fields, owner, "variant field")
			if err != nil {
				return dst, err
			}
			v.Kind.Struct = &PlainFields{Fields: fields, HasStrippedFields: src.Variant.Kind.Struct.HasStrippedFields}
		}
		dst.Variant = &v

	case src.StructField != nil:
		t := m.typ(*src.StructField)
		dst.StructField = &t

	case src.Function != nil:
		f := *src.Function
		f.Sig = m.signature(src.Function.Sig)
		f.Generics = m.generics(src.Function.Generics)
		dst.Function = &f

	case src.Impl != nil:
		im := *src.Impl
		im.Trait = m.path(src.Impl.Trait)
		im.For = m.typ(src.Impl.For)
		if src.Impl.BlanketImpl != nil {
			b := m.typ(*src.Impl.BlanketImpl)
			im.BlanketImpl = &b
		}
		// Trait impls may list items rustdoc did not index, so only inherent
		// impls are checked.
		if src.Impl.Trait == nil {
			if im.Items, err = m.containedList(src.Impl.Items, owner, "impl item"); err != nil {
				return dst, err
			}
		} else {
			im.Items = m.list(src.Impl.Items)
		}
		im.Generics = m.generics(src.Impl.Generics)
		im.ProvidedTraitMethods = append([]string(nil), src.Impl.ProvidedTraitMethods...)
		dst.Impl = &im
	}
	return dst, nil
}

func (m *idRemapper) list(ids []Id) []Id {
	if ids == nil {
		return nil
	}
	out := make([]Id, len(ids))
	for i, id := range ids {
		out[i] = m.get(id)
	}
	return out
}

func (m *idRemapper) structKind(owner Id, k StructKind) (StructKind, error) {
	out := StructKind{Unit: k.Unit}
	var err error
	if k.Tuple != nil {
		if out.Tuple, err = m.optionalList(k.Tuple, owner, "field"); err != nil {
			return out, err
		}
	}
	if k.Plain != nil {
		fields, err := m.containedList(k.Plain.Fields, owner, "field")
		if err != nil {
			return out, err
		}
		out.Plain = &PlainFields{Fields: fields, HasStrippedFields: k.Plain.HasStrippedFields}
	}
	return out, nil
}

func (m *idRemapper) generics(g Generics) Generics {
	// Bounds inside generic params are kept raw; they only gate eligibility.
	return Generics{Params: append([]GenericParam(nil), g.Params...)}
}

func (m *idRemapper) signature(s Signature) Signature {
	out := Signature{IsCVariadic: s.IsCVariadic}
	if s.Inputs != nil {
		out.Inputs = make([]Param, len(s.Inputs))
		for i, p := range s.Inputs {
			out.Inputs[i] = Param{Name: p.Name, Type: m.typ(p.Type)}
		}
	}
	if s.Output != nil {
		t := m.typ(*s.Output)
		out.Output = &t
	}
	return out
}

func (m *idRemapper) path(p *Path) *Path {
	if p == nil {
		return nil
	}
	out := *p
	out.ID = m.get(p.ID)
	if p.Args != nil {
		args := GenericArgs{}
		if ab := p.Args.AngleBracketed; ab != nil {
			nab := &AngleBracketed{Constraints: ab.Constraints}
			if ab.Args != nil {
				nab.Args = make([]GenericArg, len(ab.Args))
				for i, a := range ab.Args {
					nab.Args[i] = a
					if a.Type != nil {
						t := m.typ(*a.Type)
						nab.Args[i].Type = &t
					}
				}
			}
			args.AngleBracketed = nab
		}
		if pa := p.Args.Parenthesized; pa != nil {
			npa := &Parenthesized{}
			for _, in := range pa.Inputs {
				npa.Inputs = append(npa.Inputs, m.typ(in))
			}
			if pa.Output != nil {
				t := m.typ(*pa.Output)
				npa.Output = &t
			}
			args.Parenthesized = npa
		}
		out.Args = &args
	}
	return &out
}

func (m *idRemapper) typ(t Type) Type {
	out := t
	out.Path = m.path(t.Path)
	out.Trait = m.path(t.Trait)
	if t.Elem != nil {
		e := m.typ(*t.Elem)
		out.Elem = &e
	}
	if t.Elems != nil {
		out.Elems = make([]Type, len(t.Elems))
		for i, e := range t.Elems {
			out.Elems[i] = m.typ(e)
		}
	}
	return out
}

func sortedIndexIDs(c *Crate) []Id {
	ids := make([]Id, 0, len(c.Index))
	for id := range c.Index {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func sortedPathIDs(c *Crate) []Id {
	ids := make([]Id, 0, len(c.Paths))
	for id := range c.Paths {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
