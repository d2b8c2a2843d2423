package schema

import (
	stderrors "errors"
	"reflect"
	"strings"
	"testing"

	bgerr "github.com/jcdickinson/eguinet/internal/errors"
)

func sampleRegistry() Registry {
	return Registry{
		"Vec2": {Kind: Struct, Fields: []Field{{"X", Prim(F32)}, {"Y", Prim(F32)}}},
		"Pos2": {Kind: Struct, Fields: []Field{{"X", Prim(F32)}, {"Y", Prim(F32)}}},
		"AreaState": {Kind: Struct, Fields: []Field{
			{"PivotPos", OptionOf(Named("Pos2"))},
			{"Size", OptionOf(Named("Vec2"))},
			{"Interactable", Prim(Bool)},
			{"LastBecameVisibleAt", OptionOf(Prim(F64))},
		}},
		"Theme": {Kind: Enum, Variants: map[uint32]Variant{
			0: {Name: "Dark"},
			1: {Name: "Light"},
		}},
		"Id":     {Kind: NewtypeStruct, Value: Prim(U64)},
		"Rangef": {Kind: TupleStruct, Elems: []Format{Prim(F32), Prim(F32)}},
		"Marker": {Kind: UnitStruct},
		"Shape": {Kind: Enum, Variants: map[uint32]Variant{
			0: {Name: "Noop"},
			1: {Name: "Circle", Kind: VariantStruct, Fields: []Field{{"Center", Named("Pos2")}, {"Radius", Prim(F32)}}},
			2: {Name: "Vec", Kind: VariantNewtype, Value: SeqOf(Named("Shape"))},
			3: {Name: "Line", Kind: VariantTuple, Elems: []Format{ArrayOf(Named("Pos2"), 2), Prim(Char)}},
		}},
		"Fonts": {Kind: Struct, Fields: []Field{
			{"Families", MapOf(Prim(Str), SeqOf(Prim(Str)))},
			{"Pair", TupleOf(Prim(U8), Prim(I128))},
			{"Raw", Prim(Bytes)},
		}},
	}
}

func TestFormat_StringAndMangle(t *testing.T) {
	t.Parallel()
	tests := []struct {
		f      Format
		str    string
		mangle string
	}{
		{Prim(F32), "f32", "f32"},
		{Named("Pos2"), "Pos2", "Pos2"},
		{OptionOf(Named("Pos2")), "Option<Pos2>", "option_Pos2"},
		{SeqOf(Prim(Str)), "Vec<str>", "vector_str"},
		{MapOf(Prim(Str), Prim(F32)), "Map<str, f32>", "map_str_to_f32"},
		{TupleOf(Prim(F32), Prim(F32)), "(f32, f32)", "tuple2_f32_f32"},
		{ArrayOf(Prim(U8), 4), "[u8; 4]", "array4_u8_array"},
	}
	for _, tt := range tests {
		if got := tt.f.String(); got != tt.str {
			t.Errorf("String() = %q, want %q", got, tt.str)
		}
		if got := tt.f.Mangle(); got != tt.mangle {
			t.Errorf("Mangle() = %q, want %q", got, tt.mangle)
		}
	}
}

func TestFormat_Equal(t *testing.T) {
	t.Parallel()
	if !OptionOf(Named("A")).Equal(OptionOf(Named("A"))) {
		t.Error("identical formats should be equal")
	}
	if OptionOf(Named("A")).Equal(SeqOf(Named("A"))) {
		t.Error("option and seq should differ")
	}
	if MapOf(Prim(Str), Prim(U8)).Equal(MapOf(Prim(Str), Prim(U16))) {
		t.Error("map values differ")
	}
	if ArrayOf(Prim(U8), 2).Equal(ArrayOf(Prim(U8), 3)) {
		t.Error("array sizes differ")
	}
}

func TestRegistry_Names(t *testing.T) {
	t.Parallel()
	got := sampleRegistry().Names()
	want := []string{"AreaState", "Fonts", "Id", "Marker", "Pos2", "Rangef", "Shape", "Theme", "Vec2"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestRegistry_References(t *testing.T) {
	t.Parallel()
	r := sampleRegistry()
	if got, want := References(r["Shape"]), []string{"Pos2", "Shape"}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if got := References(r["Fonts"]); len(got) != 0 {
		t.Errorf("expected no references, got %v", got)
	}
}

func TestRegistry_Validate(t *testing.T) {
	t.Parallel()
	if err := sampleRegistry().Validate(nil); err != nil {
		t.Fatalf("valid registry rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(Registry)
		want   string
	}{
		{"dangling name", func(r Registry) {
			r["Frame"] = ContainerFormat{Kind: Struct, Fields: []Field{{"Fill", Named("Color32")}}}
		}, "Color32"},
		{"duplicate field", func(r Registry) {
			r["Vec2"] = ContainerFormat{Kind: Struct, Fields: []Field{{"X", Prim(F32)}, {"X", Prim(F32)}}}
		}, "duplicate field"},
		{"ordinal gap", func(r Registry) {
			r["Theme"] = ContainerFormat{Kind: Enum, Variants: map[uint32]Variant{0: {Name: "Dark"}, 2: {Name: "Light"}}}
		}, "not contiguous"},
		{"duplicate variant field", func(r Registry) {
			r["Shape"].Variants[1] = Variant{Name: "Circle", Kind: VariantStruct, Fields: []Field{{"R", Prim(F32)}, {"R", Prim(F32)}}}
		}, "in variant"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := sampleRegistry()
			tt.mutate(r)
			err := r.Validate(nil)
			if !stderrors.Is(err, bgerr.ErrInvalidSchema) {
				t.Fatalf("expected InvalidSchema, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestRegistry_ValidateExtern(t *testing.T) {
	t.Parallel()
	r := Registry{"Frame": {Kind: Struct, Fields: []Field{{"Fill", Named("Color32")}}}}
	if err := r.Validate(map[string]bool{"Color32": true}); err != nil {
		t.Errorf("hand-authored definition should satisfy the reference: %v", err)
	}
}

func TestRegistry_Unresolved(t *testing.T) {
	t.Parallel()
	r := Registry{"Frame": {Kind: Struct, Fields: []Field{
		{"Fill", OptionOf(SeqOf(Named("Color32")))},
		{"Margin", Prim(F32)},
	}}}
	if err := r.ValidateLayout(); err != nil {
		t.Errorf("layout should not depend on references: %v", err)
	}
	if got := r.Unresolved(r["Frame"].Fields[0].Format, nil); got != "Color32" {
		t.Errorf("got %q, want Color32", got)
	}
	if got := r.Unresolved(r["Frame"].Fields[0].Format, map[string]bool{"Color32": true}); got != "" {
		t.Errorf("extern name reported as unresolved: %q", got)
	}
	if !r.Resolves("Frame", nil) || r.Resolves("Stroke", nil) {
		t.Error("Resolves disagrees with the registry")
	}
}

func TestContainer_IsCStyle(t *testing.T) {
	t.Parallel()
	r := sampleRegistry()
	if !r["Theme"].IsCStyle() {
		t.Error("Theme should be C-style")
	}
	if r["Shape"].IsCStyle() || r["Vec2"].IsCStyle() {
		t.Error("Shape and Vec2 are not C-style")
	}
}

func TestYAML_RoundTrip(t *testing.T) {
	t.Parallel()
	r := sampleRegistry()
	data, err := Marshal(r)
	if err != nil {
		t.Fatal(err)
	}
	back, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("unmarshal: %v\n%s", err, data)
	}
	if !reflect.DeepEqual(r, back) {
		t.Errorf("round trip mismatch\n%s", data)
	}

	again, err := Marshal(back)
	if err != nil {
		t.Fatal(err)
	}
	if string(again) != string(data) {
		t.Error("marshal output is not stable")
	}
}

func TestYAML_Layout(t *testing.T) {
	t.Parallel()
	r := Registry{
		"Theme": sampleRegistry()["Theme"],
		"AreaState": {Kind: Struct, Fields: []Field{
			{"PivotPos", OptionOf(Named("Pos2"))},
			{"Interactable", Prim(Bool)},
		}},
		"Marker": {Kind: UnitStruct},
	}
	data, err := Marshal(r)
	if err != nil {
		t.Fatal(err)
	}
	want := `AreaState:
  STRUCT:
    - PivotPos:
        OPTION:
          TYPENAME: Pos2
    - Interactable: BOOL
Marker: UNITSTRUCT
Theme:
  ENUM:
    0:
      Dark: UNIT
    1:
      Light: UNIT
`
	if string(data) != want {
		t.Errorf("got:\n%s\nwant:\n%s", data, want)
	}
}

func TestYAML_Malformed(t *testing.T) {
	t.Parallel()
	tests := []string{
		"Foo: BOGUS",
		"Foo:\n  STRUCT:\n    - X: NOTAFORMAT",
		"Foo:\n  ENUM:\n    x:\n      A: UNIT",
		"Foo:\n  TUPLESTRUCT: U8",
		"Foo:\n  NEWTYPESTRUCT:\n    TUPLEARRAY:\n      CONTENT: U8",
		"- a\n- b",
	}
	for _, src := range tests {
		if _, err := Unmarshal([]byte(src)); err == nil {
			t.Errorf("expected error for %q", src)
		}
	}
}
