package wire

import (
	"fmt"

	bgerr "github.com/jcdickinson/eguinet/internal/errors"
	"github.com/jcdickinson/eguinet/internal/schema"
)

// Dynamic values produced and consumed by ValueCodec. Primitives use the
// matching Go type (int8, uint64, float32, rune for CHAR, string, []byte,
// Int128, Uint128); UNIT is nil.
type (
	// Some is a present option. A nil Value is None.
	Some struct {
		Value any
	}

	// Entry is one map entry.
	Entry struct {
		Key, Value any
	}

	// NamedValue is a struct field or struct-variant field.
	NamedValue struct {
		Name  string
		Value any
	}

	// StructValue is any non-enum container. Newtype and tuple structs name
	// their fields "0", "1", ...
	StructValue struct {
		Type   string
		Fields []NamedValue
	}

	// EnumValue is one variant of an enum. Value is nil for unit variants,
	// the payload for newtype variants, []any for tuple variants and
	// []NamedValue for struct variants.
	EnumValue struct {
		Type    string
		Index   uint32
		Variant string
		Value   any
	}
)

// ValueCodec encodes and decodes dynamic values using a registry.
type ValueCodec struct {
	reg schema.Registry
}

func NewValueCodec(reg schema.Registry) *ValueCodec {
	return &ValueCodec{reg: reg}
}

// EncodeNamed serializes a value of the named registry type.
func (c *ValueCodec) EncodeNamed(name string, v any) ([]byte, error) {
	s := NewSerializer(nil)
	if err := c.Encode(s, schema.Named(name), v); err != nil {
		return nil, err
	}
	return s.Bytes(), nil
}

// DecodeNamed deserializes a whole buffer as the named registry type.
func (c *ValueCodec) DecodeNamed(name string, b []byte) (any, error) {
	return c.DecodeAll(schema.Named(name), b)
}

// DecodeAll deserializes a whole buffer as f.
func (c *ValueCodec) DecodeAll(f schema.Format, b []byte) (any, error) {
	d := NewDeserializer(b)
	v, err := c.Decode(d, f)
	if err != nil {
		return nil, err
	}
	return v, d.Finish()
}

func mismatch(f schema.Format, v any) error {
	return bgerr.New(bgerr.StageWire, bgerr.KindEncode).Subject(f.String()).Detail("cannot encode %T", v).Build()
}

func expect[T any](f schema.Format, v any) (T, error) {
	t, ok := v.(T)
	if !ok {
		return t, mismatch(f, v)
	}
	return t, nil
}

// Encode serializes v as f.
func (c *ValueCodec) Encode(s *Serializer, f schema.Format, v any) error {
	var err error
	switch f.Kind {
	case schema.Unit:
		if v != nil {
			if _, ok := v.(Unit); !ok {
				return mismatch(f, v)
			}
		}
	case schema.Bool:
		var b bool
		if b, err = expect[bool](f, v); err == nil {
			s.SerializeBool(b)
		}
	case schema.I8:
		var n int8
		if n, err = expect[int8](f, v); err == nil {
			s.SerializeI8(n)
		}
	case schema.I16:
		var n int16
		if n, err = expect[int16](f, v); err == nil {
			s.SerializeI16(n)
		}
	case schema.I32:
		var n int32
		if n, err = expect[int32](f, v); err == nil {
			s.SerializeI32(n)
		}
	case schema.I64:
		var n int64
		if n, err = expect[int64](f, v); err == nil {
			s.SerializeI64(n)
		}
	case schema.I128:
		var n Int128
		if n, err = expect[Int128](f, v); err == nil {
			s.SerializeI128(n)
		}
	case schema.U8:
		var n uint8
		if n, err = expect[uint8](f, v); err == nil {
			s.SerializeU8(n)
		}
	case schema.U16:
		var n uint16
		if n, err = expect[uint16](f, v); err == nil {
			s.SerializeU16(n)
		}
	case schema.U32:
		var n uint32
		if n, err = expect[uint32](f, v); err == nil {
			s.SerializeU32(n)
		}
	case schema.U64:
		var n uint64
		if n, err = expect[uint64](f, v); err == nil {
			s.SerializeU64(n)
		}
	case schema.U128:
		var n Uint128
		if n, err = expect[Uint128](f, v); err == nil {
			s.SerializeU128(n)
		}
	case schema.F32:
		var n float32
		if n, err = expect[float32](f, v); err == nil {
			s.SerializeF32(n)
		}
	case schema.F64:
		var n float64
		if n, err = expect[float64](f, v); err == nil {
			s.SerializeF64(n)
		}
	case schema.Char:
		var r rune
		if r, err = expect[rune](f, v); err == nil {
			s.SerializeChar(r)
		}
	case schema.Str:
		var str string
		if str, err = expect[string](f, v); err == nil {
			err = s.SerializeStr(str)
		}
	case schema.Bytes:
		var b []byte
		if b, err = expect[[]byte](f, v); err == nil {
			err = s.SerializeBytes(b)
		}
	case schema.Option:
		if v == nil {
			s.SerializeOptionTag(false)
			return nil
		}
		var some Some
		if some, err = expect[Some](f, v); err == nil {
			s.SerializeOptionTag(true)
			err = c.Encode(s, *f.Elem, some.Value)
		}
	case schema.Seq:
		var items []any
		if items, err = expect[[]any](f, v); err != nil {
			return err
		}
		if err := s.SerializeLen(len(items)); err != nil {
			return err
		}
		for _, item := range items {
			if err := c.Encode(s, *f.Elem, item); err != nil {
				return err
			}
		}
	case schema.TupleArray:
		var items []any
		if items, err = expect[[]any](f, v); err != nil {
			return err
		}
		if len(items) != f.Size {
			return mismatch(f, v)
		}
		for _, item := range items {
			if err := c.Encode(s, *f.Elem, item); err != nil {
				return err
			}
		}
	case schema.Tuple:
		if len(f.Elems) == 0 {
			return c.Encode(s, schema.Prim(schema.Unit), v)
		}
		var items []any
		if items, err = expect[[]any](f, v); err != nil {
			return err
		}
		if len(items) != len(f.Elems) {
			return mismatch(f, v)
		}
		for i, item := range items {
			if err := c.Encode(s, f.Elems[i], item); err != nil {
				return err
			}
		}
	case schema.Map:
		var entries []Entry
		if entries, err = expect[[]Entry](f, v); err != nil {
			return err
		}
		if err := s.SerializeLen(len(entries)); err != nil {
			return err
		}
		offsets := make([]int, 0, len(entries))
		for _, e := range entries {
			offsets = append(offsets, s.Len())
			if err := c.Encode(s, *f.Key, e.Key); err != nil {
				return err
			}
			if err := c.Encode(s, *f.Value, e.Value); err != nil {
				return err
			}
		}
		s.SortMapEntries(offsets)
	case schema.TypeName:
		return c.encodeContainer(s, f.Name, v)
	default:
		return mismatch(f, v)
	}
	return err
}

func (c *ValueCodec) lookup(name string, kind bgerr.Kind) (schema.ContainerFormat, error) {
	cf, ok := c.reg[name]
	if !ok {
		return cf, bgerr.New(bgerr.StageWire, kind).Subject(name).Detail("type is not in the registry").Build()
	}
	return cf, nil
}

func (c *ValueCodec) encodeContainer(s *Serializer, name string, v any) error {
	cf, err := c.lookup(name, bgerr.KindEncode)
	if err != nil {
		return err
	}
	if err := s.IncreaseContainerDepth(); err != nil {
		return err
	}
	defer s.DecreaseContainerDepth()

	if cf.Kind == schema.Enum {
		ev, ok := v.(EnumValue)
		if !ok || ev.Type != name {
			return mismatch(schema.Named(name), v)
		}
		variant, ok := cf.Variants[ev.Index]
		if !ok {
			return bgerr.New(bgerr.StageWire, bgerr.KindEncode).Subject(name).Detail("unknown variant index %d", ev.Index).Build()
		}
		s.SerializeVariantIndex(ev.Index)
		return c.encodeVariant(s, name, variant, ev.Value)
	}

	sv, ok := v.(StructValue)
	if !ok || sv.Type != name {
		return mismatch(schema.Named(name), v)
	}
	formats := cf.Formats()
	if len(sv.Fields) != len(formats) {
		return bgerr.New(bgerr.StageWire, bgerr.KindEncode).Subject(name).Detail("got %d fields, want %d", len(sv.Fields), len(formats)).Build()
	}
	for i, field := range sv.Fields {
		if err := c.Encode(s, formats[i], field.Value); err != nil {
			return fmt.Errorf("%s.%s: %w", name, field.Name, err)
		}
	}
	return nil
}

func (c *ValueCodec) encodeVariant(s *Serializer, name string, variant schema.Variant, v any) error {
	switch variant.Kind {
	case schema.VariantUnit:
		if v != nil {
			return mismatch(schema.Named(name), v)
		}
		return nil
	case schema.VariantNewtype:
		return c.Encode(s, variant.Value, v)
	case schema.VariantTuple:
		items, ok := v.([]any)
		if !ok || len(items) != len(variant.Elems) {
			return mismatch(schema.Named(name), v)
		}
		for i, item := range items {
			if err := c.Encode(s, variant.Elems[i], item); err != nil {
				return err
			}
		}
		return nil
	}
	fields, ok := v.([]NamedValue)
	if !ok || len(fields) != len(variant.Fields) {
		return mismatch(schema.Named(name), v)
	}
	for i, field := range fields {
		if err := c.Encode(s, variant.Fields[i].Format, field.Value); err != nil {
			return err
		}
	}
	return nil
}

// Decode deserializes a value of format f.
func (c *ValueCodec) Decode(d *Deserializer, f schema.Format) (any, error) {
	switch f.Kind {
	case schema.Unit:
		return nil, nil
	case schema.Bool:
		return d.DeserializeBool()
	case schema.I8:
		return d.DeserializeI8()
	case schema.I16:
		return d.DeserializeI16()
	case schema.I32:
		return d.DeserializeI32()
	case schema.I64:
		return d.DeserializeI64()
	case schema.I128:
		return d.DeserializeI128()
	case schema.U8:
		return d.DeserializeU8()
	case schema.U16:
		return d.DeserializeU16()
	case schema.U32:
		return d.DeserializeU32()
	case schema.U64:
		return d.DeserializeU64()
	case schema.U128:
		return d.DeserializeU128()
	case schema.F32:
		return d.DeserializeF32()
	case schema.F64:
		return d.DeserializeF64()
	case schema.Char:
		return d.DeserializeChar()
	case schema.Str:
		return d.DeserializeStr()
	case schema.Bytes:
		return d.DeserializeBytes()
	case schema.Option:
		some, err := d.DeserializeOptionTag()
		if err != nil || !some {
			return nil, err
		}
		v, err := c.Decode(d, *f.Elem)
		if err != nil {
			return nil, err
		}
		return Some{Value: v}, nil
	case schema.Seq:
		n, err := d.DeserializeLen()
		if err != nil {
			return nil, err
		}
		return c.decodeN(d, n, func(int) schema.Format { return *f.Elem })
	case schema.TupleArray:
		return c.decodeN(d, f.Size, func(int) schema.Format { return *f.Elem })
	case schema.Tuple:
		if len(f.Elems) == 0 {
			return nil, nil
		}
		return c.decodeN(d, len(f.Elems), func(i int) schema.Format { return f.Elems[i] })
	case schema.Map:
		n, err := d.DeserializeLen()
		if err != nil {
			return nil, err
		}
		entries := make([]Entry, 0, min(n, 1024))
		var prev Slice
		for i := 0; i < n; i++ {
			start := d.Position()
			k, err := c.Decode(d, *f.Key)
			if err != nil {
				return nil, err
			}
			key := Slice{Start: start, End: d.Position()}
			if i > 0 {
				if err := d.CheckThatKeySlicesAreIncreasing(prev, key); err != nil {
					return nil, err
				}
			}
			prev = key
			v, err := c.Decode(d, *f.Value)
			if err != nil {
				return nil, err
			}
			entries = append(entries, Entry{Key: k, Value: v})
		}
		return entries, nil
	case schema.TypeName:
		return c.decodeContainer(d, f.Name)
	}
	return nil, bgerr.Decode("unsupported format %s", f)
}

func (c *ValueCodec) decodeN(d *Deserializer, n int, format func(int) schema.Format) ([]any, error) {
	out := make([]any, 0, min(n, 1024))
	for i := 0; i < n; i++ {
		v, err := c.Decode(d, format(i))
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (c *ValueCodec) decodeContainer(d *Deserializer, name string) (any, error) {
	cf, err := c.lookup(name, bgerr.KindDecode)
	if err != nil {
		return nil, err
	}
	if err := d.IncreaseContainerDepth(); err != nil {
		return nil, err
	}
	defer d.DecreaseContainerDepth()

	if cf.Kind == schema.Enum {
		idx, err := d.DeserializeVariantIndex()
		if err != nil {
			return nil, err
		}
		variant, ok := cf.Variants[idx]
		if !ok {
			return nil, bgerr.New(bgerr.StageWire, bgerr.KindDecode).Subject(name).Detail("unknown variant index %d", idx).Build()
		}
		payload, err := c.decodeVariant(d, variant)
		if err != nil {
			return nil, err
		}
		return EnumValue{Type: name, Index: idx, Variant: variant.Name, Value: payload}, nil
	}

	sv := StructValue{Type: name}
	switch cf.Kind {
	case schema.Struct:
		for _, field := range cf.Fields {
			v, err := c.Decode(d, field.Format)
			if err != nil {
				return nil, err
			}
			sv.Fields = append(sv.Fields, NamedValue{Name: field.Name, Value: v})
		}
	case schema.NewtypeStruct, schema.TupleStruct:
		for i, f := range cf.Formats() {
			v, err := c.Decode(d, f)
			if err != nil {
				return nil, err
			}
			sv.Fields = append(sv.Fields, NamedValue{Name: fmt.Sprint(i), Value: v})
		}
	}
	return sv, nil
}

func (c *ValueCodec) decodeVariant(d *Deserializer, variant schema.Variant) (any, error) {
	switch variant.Kind {
	case schema.VariantUnit:
		return nil, nil
	case schema.VariantNewtype:
		return c.Decode(d, variant.Value)
	case schema.VariantTuple:
		return c.decodeN(d, len(variant.Elems), func(i int) schema.Format { return variant.Elems[i] })
	}
	fields := make([]NamedValue, 0, len(variant.Fields))
	for _, field := range variant.Fields {
		v, err := c.Decode(d, field.Format)
		if err != nil {
			return nil, err
		}
		fields = append(fields, NamedValue{Name: field.Name, Value: v})
	}
	return fields, nil
}
