package rustdoc

import (
	"sort"
	"strings"
)

// Model is a queryable view over a loaded (and possibly merged) crate. The
// indexes are built once; the crate must not be modified afterwards.
type Model struct {
	crate     *Crate
	impls     []Id        // all impl blocks, ascending
	implsOf   map[Id][]Id // type id → impl ids, ascending
	declaring map[Id]Id   // function id → declaring type id
}

// NewModel indexes crate for lookups.
func NewModel(crate *Crate) *Model {
	m := &Model{
		crate:     crate,
		implsOf:   make(map[Id][]Id),
		declaring: make(map[Id]Id),
	}

	for _, id := range sortedIndexIDs(crate) {
		item := crate.Index[id]
		if item.Inner.Impl == nil {
			continue
		}
		m.impls = append(m.impls, id)
		impl := item.Inner.Impl
		if impl.For.Kind != TypeResolvedPath {
			continue
		}
		target := impl.For.Path.ID
		m.implsOf[target] = append(m.implsOf[target], id)
		for _, fn := range impl.Items {
			if _, seen := m.declaring[fn]; !seen {
				m.declaring[fn] = target
			}
		}
	}
	return m
}

// Crate returns the underlying crate.
func (m *Model) Crate() *Crate {
	return m.crate
}

// Item looks up an item by id.
func (m *Model) Item(id Id) (*Item, bool) {
	it, ok := m.crate.Index[id]
	return it, ok
}

// Path returns the summary path of an item, if rustdoc recorded one.
func (m *Model) Path(id Id) ([]string, bool) {
	s, ok := m.crate.Paths[id]
	if !ok || len(s.Path) == 0 {
		return nil, false
	}
	return s.Path, true
}

// Name returns the item's name, falling back to the last path segment.
func (m *Model) Name(id Id) string {
	if it, ok := m.crate.Index[id]; ok && it.Name != nil {
		return *it.Name
	}
	if p, ok := m.Path(id); ok {
		return p[len(p)-1]
	}
	return ""
}

// DeclaringTypeOf returns the type whose impl block contains fnID. Impl
// blocks are scanned in ascending id order; the first one implemented for a
// resolved path wins.
func (m *Model) DeclaringTypeOf(fnID Id) (Id, bool) {
	id, ok := m.declaring[fnID]
	return id, ok
}

// ImplsOf returns the impl blocks of a type, ascending. Struct and enum
// items carry their own impl list; other ids fall back to the scanned index.
func (m *Model) ImplsOf(typeID Id) []Id {
	if it, ok := m.crate.Index[typeID]; ok {
		var listed []Id
		switch {
		case it.Inner.Struct != nil:
			listed = it.Inner.Struct.Impls
		case it.Inner.Enum != nil:
			listed = it.Inner.Enum.Impls
		}
		if listed != nil {
			out := append([]Id(nil), listed...)
			sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
			return out
		}
	}
	return append([]Id(nil), m.implsOf[typeID]...)
}

// Implements reports whether any impl of the type names the trait. The
// comparison uses the trait path's last segment, so "Serialize" matches
// "serde::Serialize".
func (m *Model) Implements(typeID Id, trait string) bool {
	for _, implID := range m.ImplsOf(typeID) {
		it, ok := m.crate.Index[implID]
		if !ok || it.Inner.Impl == nil || it.Inner.Impl.Trait == nil {
			continue
		}
		if it.Inner.Impl.Trait.ShortName() == trait {
			return true
		}
	}
	return false
}

// Types returns the own-crate structs and enums sorted by name, then id.
func (m *Model) Types() []Id {
	var ids []Id
	for id, it := range m.crate.Index {
		if it.CrateID != 0 || it.Name == nil {
			continue
		}
		if it.Inner.Struct != nil || it.Inner.Enum != nil {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		ni, nj := *m.crate.Index[ids[i]].Name, *m.crate.Index[ids[j]].Name
		if ni != nj {
			return ni < nj
		}
		return ids[i] < ids[j]
	})
	return ids
}

// TypesNamed returns own-crate structs and enums with the given name.
func (m *Model) TypesNamed(name string) []Id {
	var out []Id
	for _, id := range m.Types() {
		if *m.crate.Index[id].Name == name {
			out = append(out, id)
		}
	}
	return out
}

// Functions returns the own-crate function items, ascending by id.
func (m *Model) Functions() []Id {
	var ids []Id
	for id, it := range m.crate.Index {
		if it.CrateID == 0 && it.Inner.Function != nil {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ImplOf returns the impl block containing fnID whose target is typeID.
func (m *Model) ImplOf(fnID, typeID Id) (*Impl, bool) {
	for _, implID := range m.implsOf[typeID] {
		impl := m.crate.Index[implID].Inner.Impl
		for _, item := range impl.Items {
			if item == fnID {
				return impl, true
			}
		}
	}
	return nil, false
}

// ModulePath returns the module components of an item's path (the path
// without its final segment).
func (m *Model) ModulePath(id Id) []string {
	p, ok := m.Path(id)
	if !ok {
		return nil
	}
	return p[:len(p)-1]
}

// RustPath renders an item path with "::" separators.
func (m *Model) RustPath(id Id) string {
	p, _ := m.Path(id)
	return strings.Join(p, "::")
}
