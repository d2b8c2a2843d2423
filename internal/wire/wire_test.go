package wire

import (
	"bytes"
	stderrors "errors"
	"math"
	"reflect"
	"testing"

	bgerr "github.com/jcdickinson/eguinet/internal/errors"
	"github.com/jcdickinson/eguinet/internal/schema"
)

type theme uint32

const (
	themeDark theme = iota
	themeLight
)

var themeCodec = UnitEnum[theme]("Theme", 2)

type vec2 struct{ X, Y float32 }

var vec2Codec = Container(
	func(s *Serializer, v vec2) error {
		s.SerializeF32(v.X)
		s.SerializeF32(v.Y)
		return nil
	},
	func(d *Deserializer) (v vec2, err error) {
		if v.X, err = d.DeserializeF32(); err != nil {
			return v, err
		}
		v.Y, err = d.DeserializeF32()
		return v, err
	},
)

type areaState struct {
	PivotPos            *vec2
	Size                *vec2
	Interactable        bool
	LastBecameVisibleAt *float64
}

var areaStateCodec = Container(
	func(s *Serializer, v areaState) error {
		if err := Option(vec2Codec).Encode(s, v.PivotPos); err != nil {
			return err
		}
		if err := Option(vec2Codec).Encode(s, v.Size); err != nil {
			return err
		}
		s.SerializeBool(v.Interactable)
		return Option(F64).Encode(s, v.LastBecameVisibleAt)
	},
	func(d *Deserializer) (v areaState, err error) {
		if v.PivotPos, err = Option(vec2Codec).Decode(d); err != nil {
			return v, err
		}
		if v.Size, err = Option(vec2Codec).Decode(d); err != nil {
			return v, err
		}
		if v.Interactable, err = d.DeserializeBool(); err != nil {
			return v, err
		}
		v.LastBecameVisibleAt, err = Option(F64).Decode(d)
		return v, err
	},
)

func testRegistry() schema.Registry {
	vec := schema.ContainerFormat{Kind: schema.Struct, Fields: []schema.Field{
		{Name: "X", Format: schema.Prim(schema.F32)},
		{Name: "Y", Format: schema.Prim(schema.F32)},
	}}
	return schema.Registry{
		"Vec2": vec,
		"Pos2": vec,
		"Theme": {Kind: schema.Enum, Variants: map[uint32]schema.Variant{
			0: {Name: "Dark"},
			1: {Name: "Light"},
		}},
		"AreaState": {Kind: schema.Struct, Fields: []schema.Field{
			{Name: "PivotPos", Format: schema.OptionOf(schema.Named("Pos2"))},
			{Name: "Size", Format: schema.OptionOf(schema.Named("Vec2"))},
			{Name: "Interactable", Format: schema.Prim(schema.Bool)},
			{Name: "LastBecameVisibleAt", Format: schema.OptionOf(schema.Prim(schema.F64))},
		}},
		"Node": {Kind: schema.NewtypeStruct, Value: schema.OptionOf(schema.Named("Node"))},
		"Shape": {Kind: schema.Enum, Variants: map[uint32]schema.Variant{
			0: {Name: "Noop"},
			1: {Name: "Circle", Kind: schema.VariantStruct, Fields: []schema.Field{
				{Name: "Center", Format: schema.Named("Pos2")},
				{Name: "Radius", Format: schema.Prim(schema.F32)},
			}},
			2: {Name: "Many", Kind: schema.VariantNewtype, Value: schema.SeqOf(schema.Named("Shape"))},
			3: {Name: "Text", Kind: schema.VariantTuple, Elems: []schema.Format{schema.Prim(schema.Str), schema.Prim(schema.Char)}},
		}},
	}
}

func TestULEB128(t *testing.T) {
	t.Parallel()
	tests := []struct {
		v    uint32
		want []byte
	}{
		{0, []byte{0x00}},
		{1, []byte{0x01}},
		{127, []byte{0x7f}},
		{128, []byte{0x80, 0x01}},
		{16384, []byte{0x80, 0x80, 0x01}},
		{math.MaxUint32, []byte{0xff, 0xff, 0xff, 0xff, 0x0f}},
	}
	for _, tt := range tests {
		s := NewSerializer(nil)
		s.SerializeVariantIndex(tt.v)
		if !bytes.Equal(s.Bytes(), tt.want) {
			t.Errorf("encode %d: got % x, want % x", tt.v, s.Bytes(), tt.want)
		}
		d := NewDeserializer(tt.want)
		got, err := d.DeserializeVariantIndex()
		if err != nil || got != tt.v {
			t.Errorf("decode % x: got %d, %v", tt.want, got, err)
		}
	}
}

func TestULEB128_Rejects(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		input []byte
	}{
		{"non-canonical", []byte{0x80, 0x00}},
		{"overflow", []byte{0xff, 0xff, 0xff, 0xff, 0x1f}},
		{"too long", []byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01}},
		{"truncated", []byte{0x80}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewDeserializer(tt.input).DeserializeVariantIndex()
			if !stderrors.Is(err, bgerr.ErrDecode) {
				t.Errorf("expected DecodeError, got %v", err)
			}
		})
	}

	// 2^31 is a valid u32 but not a valid length.
	_, err := NewDeserializer([]byte{0x80, 0x80, 0x80, 0x80, 0x08}).DeserializeLen()
	if !stderrors.Is(err, bgerr.ErrDecode) {
		t.Errorf("expected DecodeError for oversized length, got %v", err)
	}
}

func TestPrimitives(t *testing.T) {
	t.Parallel()
	s := NewSerializer(nil)
	s.SerializeBool(true)
	s.SerializeU16(0x0102)
	s.SerializeI32(-2)
	s.SerializeF32(1.0)
	s.SerializeChar('é')
	if err := s.SerializeStr("hi"); err != nil {
		t.Fatal(err)
	}
	want := []byte{
		0x01,
		0x02, 0x01,
		0xfe, 0xff, 0xff, 0xff,
		0x00, 0x00, 0x80, 0x3f,
		0xe9, 0x00, 0x00, 0x00,
		0x02, 'h', 'i',
	}
	if !bytes.Equal(s.Bytes(), want) {
		t.Fatalf("got % x, want % x", s.Bytes(), want)
	}

	d := NewDeserializer(want)
	if v, err := d.DeserializeBool(); err != nil || !v {
		t.Errorf("bool: %v %v", v, err)
	}
	if v, err := d.DeserializeU16(); err != nil || v != 0x0102 {
		t.Errorf("u16: %v %v", v, err)
	}
	if v, err := d.DeserializeI32(); err != nil || v != -2 {
		t.Errorf("i32: %v %v", v, err)
	}
	if v, err := d.DeserializeF32(); err != nil || v != 1.0 {
		t.Errorf("f32: %v %v", v, err)
	}
	if v, err := d.DeserializeChar(); err != nil || v != 'é' {
		t.Errorf("char: %v %v", v, err)
	}
	if v, err := d.DeserializeStr(); err != nil || v != "hi" {
		t.Errorf("str: %v %v", v, err)
	}
	if err := d.Finish(); err != nil {
		t.Error(err)
	}
}

func TestDecode_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		input []byte
		read  func(d *Deserializer) error
	}{
		{"bool out of range", []byte{0x02}, func(d *Deserializer) error { _, err := d.DeserializeBool(); return err }},
		{"option tag out of range", []byte{0x05}, func(d *Deserializer) error { _, err := d.DeserializeOptionTag(); return err }},
		{"truncated u64", []byte{0x01, 0x02}, func(d *Deserializer) error { _, err := d.DeserializeU64(); return err }},
		{"truncated str", []byte{0x05, 'a'}, func(d *Deserializer) error { _, err := d.DeserializeStr(); return err }},
		{"surrogate char", []byte{0x00, 0xd8, 0x00, 0x00}, func(d *Deserializer) error { _, err := d.DeserializeChar(); return err }},
		{"trailing bytes", []byte{0x01, 0x00}, func(d *Deserializer) error {
			if _, err := d.DeserializeU8(); err != nil {
				return err
			}
			return d.Finish()
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if err := tt.read(NewDeserializer(tt.input)); !stderrors.Is(err, bgerr.ErrDecode) {
				t.Errorf("expected DecodeError, got %v", err)
			}
		})
	}
}

func TestEmptyArgs(t *testing.T) {
	t.Parallel()
	b, err := Encode(UnitCodec, Unit{})
	if err != nil {
		t.Fatal(err)
	}
	if len(b) != 0 {
		t.Errorf("empty tuple: got % x, want []", b)
	}

	s := NewSerializer(nil)
	if err := NewValueCodec(nil).Encode(s, schema.TupleOf(), nil); err != nil {
		t.Fatal(err)
	}
	if s.Len() != 0 {
		t.Errorf("dynamic empty tuple: got % x, want []", s.Bytes())
	}
}

// Theme ∈ {Dark=0, Light=1}.
func TestThemeVariants(t *testing.T) {
	t.Parallel()
	b, err := Encode(themeCodec, themeDark)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(b, []byte{0x00}) {
		t.Errorf("Dark: got % x, want 00", b)
	}
	v, err := Decode(themeCodec, []byte{0x01})
	if err != nil || v != themeLight {
		t.Errorf("decode 01: got %v, %v", v, err)
	}
	if _, err := Decode(themeCodec, []byte{0x02}); !stderrors.Is(err, bgerr.ErrDecode) {
		t.Errorf("decode 02: expected DecodeError, got %v", err)
	}

	vc := NewValueCodec(testRegistry())
	dyn, err := vc.DecodeNamed("Theme", []byte{0x01})
	if err != nil {
		t.Fatal(err)
	}
	if ev := dyn.(EnumValue); ev.Variant != "Light" || ev.Index != 1 {
		t.Errorf("dynamic decode: got %+v", ev)
	}
	if _, err := vc.DecodeNamed("Theme", []byte{0x02}); !stderrors.Is(err, bgerr.ErrDecode) {
		t.Errorf("dynamic decode 02: expected DecodeError, got %v", err)
	}
}

// AreaState with a nested option round-trips with identical bytes on both
// codecs.
func TestAreaStateNestedOption(t *testing.T) {
	t.Parallel()
	native := areaState{Size: &vec2{1.0, 2.0}, Interactable: true}
	want := []byte{
		0x00,
		0x01, 0x00, 0x00, 0x80, 0x3f, 0x00, 0x00, 0x00, 0x40,
		0x01,
		0x00,
	}

	b, err := Encode(areaStateCodec, native)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(b, want) {
		t.Fatalf("static: got % x, want % x", b, want)
	}
	back, err := Decode(areaStateCodec, b)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(back, native) {
		t.Errorf("static round trip: got %+v", back)
	}

	dynamic := StructValue{Type: "AreaState", Fields: []NamedValue{
		{"PivotPos", nil},
		{"Size", Some{StructValue{Type: "Vec2", Fields: []NamedValue{{"X", float32(1)}, {"Y", float32(2)}}}}},
		{"Interactable", true},
		{"LastBecameVisibleAt", nil},
	}}
	vc := NewValueCodec(testRegistry())
	db, err := vc.EncodeNamed("AreaState", dynamic)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(db, want) {
		t.Fatalf("dynamic: got % x, want % x", db, want)
	}
	dback, err := vc.DecodeNamed("AreaState", db)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(dback, dynamic) {
		t.Errorf("dynamic round trip: got %+v", dback)
	}
}

func TestMapOrdering(t *testing.T) {
	t.Parallel()
	c := Map(Str, U8)
	b, err := Encode(c, map[string]uint8{"b": 1, "a": 2, "c": 3})
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0x03, 0x01, 'a', 0x02, 0x01, 'b', 0x01, 0x01, 'c', 0x03}
	if !bytes.Equal(b, want) {
		t.Fatalf("got % x, want % x", b, want)
	}

	unsorted := []byte{0x02, 0x01, 'b', 0x01, 0x01, 'a', 0x02}
	if _, err := Decode(c, unsorted); !stderrors.Is(err, bgerr.ErrDecode) {
		t.Errorf("expected DecodeError for unsorted keys, got %v", err)
	}
	duplicate := []byte{0x02, 0x01, 'a', 0x01, 0x01, 'a', 0x02}
	if _, err := Decode(c, duplicate); !stderrors.Is(err, bgerr.ErrDecode) {
		t.Errorf("expected DecodeError for duplicate keys, got %v", err)
	}

	vc := NewValueCodec(nil)
	s := NewSerializer(nil)
	entries := []Entry{{"c", uint8(3)}, {"a", uint8(2)}, {"b", uint8(1)}}
	if err := vc.Encode(s, schema.MapOf(schema.Prim(schema.Str), schema.Prim(schema.U8)), entries); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(s.Bytes(), want) {
		t.Errorf("dynamic map: got % x, want % x", s.Bytes(), want)
	}
}

func TestContainerDepthLimit(t *testing.T) {
	t.Parallel()
	vc := NewValueCodec(testRegistry())

	input := bytes.Repeat([]byte{0x01}, MaxContainerDepth+10)
	if _, err := vc.DecodeNamed("Node", input); !stderrors.Is(err, bgerr.ErrDecode) {
		t.Errorf("expected DecodeError past the depth limit, got %v", err)
	}

	var v any = StructValue{Type: "Node", Fields: []NamedValue{{"0", nil}}}
	for i := 0; i < MaxContainerDepth; i++ {
		v = StructValue{Type: "Node", Fields: []NamedValue{{"0", Some{v}}}}
	}
	if _, err := vc.EncodeNamed("Node", v); err == nil {
		t.Error("expected encode error past the depth limit")
	}
}

// Values encoded by the static codecs decode through the registry and
// re-encode to the same bytes, and the reverse.
func TestCrossSideSymmetry(t *testing.T) {
	t.Parallel()
	vc := NewValueCodec(testRegistry())
	one := 1.5
	cases := []areaState{
		{},
		{Interactable: true},
		{PivotPos: &vec2{-1, 0}, Size: &vec2{3, 4}, LastBecameVisibleAt: &one},
		{PivotPos: &vec2{float32(math.Inf(1)), 0}},
	}
	for _, c := range cases {
		static, err := Encode(areaStateCodec, c)
		if err != nil {
			t.Fatal(err)
		}
		dyn, err := vc.DecodeNamed("AreaState", static)
		if err != nil {
			t.Fatal(err)
		}
		again, err := vc.EncodeNamed("AreaState", dyn)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(static, again) {
			t.Errorf("%+v: static % x, dynamic % x", c, static, again)
		}
		back, err := Decode(areaStateCodec, again)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(back, c) {
			t.Errorf("got %+v, want %+v", back, c)
		}
	}
}

func TestEnumPayloadRoundTrip(t *testing.T) {
	t.Parallel()
	vc := NewValueCodec(testRegistry())
	pos := StructValue{Type: "Pos2", Fields: []NamedValue{{"X", float32(1)}, {"Y", float32(2)}}}
	v := EnumValue{Type: "Shape", Index: 2, Variant: "Many", Value: []any{
		EnumValue{Type: "Shape", Index: 0, Variant: "Noop"},
		EnumValue{Type: "Shape", Index: 1, Variant: "Circle", Value: []NamedValue{{"Center", pos}, {"Radius", float32(3)}}},
		EnumValue{Type: "Shape", Index: 3, Variant: "Text", Value: []any{"hi", 'x'}},
	}}
	b, err := vc.EncodeNamed("Shape", v)
	if err != nil {
		t.Fatal(err)
	}
	if b[0] != 0x02 || b[1] != 0x03 {
		t.Errorf("expected variant 2 with 3 elements, got % x", b[:2])
	}
	back, err := vc.DecodeNamed("Shape", b)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(back, v) {
		t.Errorf("got %+v, want %+v", back, v)
	}
}

func TestValueCodec_Mismatch(t *testing.T) {
	t.Parallel()
	vc := NewValueCodec(testRegistry())
	tests := []struct {
		name string
		v    any
	}{
		{"wrong primitive", StructValue{Type: "Vec2", Fields: []NamedValue{{"X", 1.0}, {"Y", float32(2)}}}},
		{"wrong type name", StructValue{Type: "Pos2", Fields: []NamedValue{{"X", float32(1)}, {"Y", float32(2)}}}},
		{"missing field", StructValue{Type: "Vec2", Fields: []NamedValue{{"X", float32(1)}}}},
		{"enum for struct", EnumValue{Type: "Vec2"}},
	}
	for _, tt := range tests {
		if _, err := vc.EncodeNamed("Vec2", tt.v); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
	if _, err := vc.EncodeNamed("Missing", nil); err == nil {
		t.Error("expected error for unknown type")
	}
}

func TestArrayAndTuple(t *testing.T) {
	t.Parallel()
	c := Tuple2(Array(U8, 2), Seq(Bool))
	b, err := Encode(c, T2[[]uint8, []bool]{A: []uint8{7, 8}, B: []bool{true}})
	if err != nil {
		t.Fatal(err)
	}
	if want := []byte{0x07, 0x08, 0x01, 0x01}; !bytes.Equal(b, want) {
		t.Errorf("got % x, want % x", b, want)
	}
	if _, err := Encode(Array(U8, 2), []uint8{1}); err == nil {
		t.Error("expected error for short array")
	}
}

func TestSerializer_ReuseKeepsCapacity(t *testing.T) {
	t.Parallel()
	s := NewSerializer(make([]byte, 0, 4))
	if err := s.SerializeStr("a longer string than four bytes"); err != nil {
		t.Fatal(err)
	}
	grown := cap(s.Bytes())
	s.Reset()
	if s.Len() != 0 || cap(s.Bytes()) != grown {
		t.Errorf("reset: len %d cap %d, want 0 and %d", s.Len(), cap(s.Bytes()), grown)
	}
}
