package rustdoc

import (
	stderrors "errors"
	"reflect"
	"testing"

	bgerr "github.com/jcdickinson/eguinet/internal/errors"
)

func TestMerge_FreshIDs(t *testing.T) {
	t.Parallel()
	into := mustLoad(t, "egui_mini.json")
	from := mustLoad(t, "emath_mini.json")

	var maxInto Id
	for id := range into.Index {
		maxInto = max(maxInto, id)
	}
	for id := range into.Paths {
		maxInto = max(maxInto, id)
	}
	before := len(into.Index)

	remap, err := Merge(into, from)
	if err != nil {
		t.Fatal(err)
	}
	if len(into.Index) != before+len(from.Index) {
		t.Errorf("index size: got %d, want %d", len(into.Index), before+len(from.Index))
	}
	seen := make(map[Id]bool)
	for old, id := range remap {
		if id <= maxInto {
			t.Errorf("id %d remapped to %d, which collides with the target range", old, id)
		}
		if seen[id] {
			t.Errorf("id %d assigned twice", id)
		}
		seen[id] = true
	}
}

func TestMerge_Deterministic(t *testing.T) {
	t.Parallel()
	var first Remap
	for i := 0; i < 3; i++ {
		into := mustLoad(t, "egui_mini.json")
		from := mustLoad(t, "emath_mini.json")
		remap, err := Merge(into, from)
		if err != nil {
			t.Fatal(err)
		}
		if first == nil {
			first = remap
			continue
		}
		if !reflect.DeepEqual(first, remap) {
			t.Fatal("remap differs between runs")
		}
	}
}

// Queries on any id from the merged crate must answer the same as queries
// against that crate alone.
func TestMerge_Purity(t *testing.T) {
	t.Parallel()
	into := mustLoad(t, "egui_mini.json")
	from := mustLoad(t, "emath_mini.json")
	alone := NewModel(mustLoad(t, "emath_mini.json"))

	remap, err := Merge(into, from)
	if err != nil {
		t.Fatal(err)
	}
	merged := NewModel(into)

	for id, item := range alone.Crate().Index {
		got, ok := merged.Item(remap[id])
		if !ok {
			t.Fatalf("id %d missing after merge", id)
		}
		if got.NameOr("") != item.NameOr("") || got.Kind() != item.Kind() {
			t.Errorf("id %d: got %s %q, want %s %q", id, got.Kind(), got.NameOr(""), item.Kind(), item.NameOr(""))
		}
		if got.DocString() != item.DocString() {
			t.Errorf("id %d: docs differ", id)
		}

		if item.Kind() == KindFunction {
			declAlone, okAlone := alone.DeclaringTypeOf(id)
			declMerged, okMerged := merged.DeclaringTypeOf(remap[id])
			if okAlone != okMerged || (okAlone && remap[declAlone] != declMerged) {
				t.Errorf("declaring type of %q differs", item.NameOr(""))
			}
		}
		if item.Kind() == KindStruct {
			wantFields := item.Inner.Struct.Kind.Plain.Fields
			gotFields := got.Inner.Struct.Kind.Plain.Fields
			for i := range wantFields {
				if remap[wantFields[i]] != gotFields[i] {
					t.Errorf("field %d of %q not remapped", i, item.NameOr(""))
				}
				if merged.Name(gotFields[i]) != alone.Name(wantFields[i]) {
					t.Errorf("field %d of %q resolves to a different item", i, item.NameOr(""))
				}
			}
			if alone.Implements(id, "Serialize") != merged.Implements(remap[id], "Serialize") {
				t.Errorf("Implements differs for %q", item.NameOr(""))
			}
		}
	}

	for id, s := range alone.Crate().Paths {
		got, ok := into.Paths[remap[id]]
		if !ok || !reflect.DeepEqual(got, s) {
			t.Errorf("path %d: got %v, want %v", id, got, s)
		}
	}

	// to_vec2 returns a resolved path into the merged crate.
	toVec2 := merged.crate.Index[remap[23]].Inner.Function
	if toVec2.Sig.Output.Path.ID != remap[1] {
		t.Errorf("output type id: got %d, want %d", toVec2.Sig.Output.Path.ID, remap[1])
	}
}

func TestMerge_DoesNotMutateSource(t *testing.T) {
	t.Parallel()
	into := mustLoad(t, "egui_mini.json")
	from := mustLoad(t, "emath_mini.json")
	pristine := mustLoad(t, "emath_mini.json")

	if _, err := Merge(into, from); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(from, pristine) {
		t.Error("source crate was modified by merge")
	}
}

func TestMerge_FormatMismatch(t *testing.T) {
	t.Parallel()
	into := mustLoad(t, "egui_mini.json")
	from := mustLoad(t, "emath_mini.json")
	from.FormatVersion = 30

	_, err := Merge(into, from)
	if !stderrors.Is(err, bgerr.ErrMergeConflict) {
		t.Errorf("expected MergeConflict, got %v", err)
	}
}

func TestMerge_DanglingField(t *testing.T) {
	t.Parallel()
	into := mustLoad(t, "egui_mini.json")
	from := mustLoad(t, "emath_mini.json")
	delete(from.Index, 2) // Vec2.x

	_, err := Merge(into, from)
	if !stderrors.Is(err, bgerr.ErrDanglingID) {
		t.Errorf("expected DanglingId, got %v", err)
	}
}

func TestMerge_FailureLeavesTargetUntouched(t *testing.T) {
	t.Parallel()
	into := mustLoad(t, "egui_mini.json")
	pristine := mustLoad(t, "egui_mini.json")
	from := mustLoad(t, "emath_mini.json")
	delete(from.Index, 2) // Vec2.x, referenced after other items remap cleanly

	if _, err := Merge(into, from); err == nil {
		t.Fatal("expected an error")
	}
	if !reflect.DeepEqual(into, pristine) {
		t.Errorf("failed merge modified the target: %d items, want %d", len(into.Index), len(pristine.Index))
	}
}
