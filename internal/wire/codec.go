package wire

import (
	bgerr "github.com/jcdickinson/eguinet/internal/errors"
)

// Codec encodes and decodes values of one static type.
type Codec[T any] interface {
	Encode(s *Serializer, v T) error
	Decode(d *Deserializer) (T, error)
}

type funcCodec[T any] struct {
	enc func(*Serializer, T) error
	dec func(*Deserializer) (T, error)
}

func (c funcCodec[T]) Encode(s *Serializer, v T) error   { return c.enc(s, v) }
func (c funcCodec[T]) Decode(d *Deserializer) (T, error) { return c.dec(d) }

// CodecFunc builds a codec from a pair of functions.
func CodecFunc[T any](enc func(*Serializer, T) error, dec func(*Deserializer) (T, error)) Codec[T] {
	return funcCodec[T]{enc: enc, dec: dec}
}

func infallible[T any](enc func(*Serializer, T)) func(*Serializer, T) error {
	return func(s *Serializer, v T) error {
		enc(s, v)
		return nil
	}
}

// Unit is the empty tuple. It encodes as zero bytes.
type Unit struct{}

var (
	UnitCodec = CodecFunc(
		func(*Serializer, Unit) error { return nil },
		func(*Deserializer) (Unit, error) { return Unit{}, nil },
	)
	Bool  = CodecFunc(infallible((*Serializer).SerializeBool), (*Deserializer).DeserializeBool)
	U8    = CodecFunc(infallible((*Serializer).SerializeU8), (*Deserializer).DeserializeU8)
	U16   = CodecFunc(infallible((*Serializer).SerializeU16), (*Deserializer).DeserializeU16)
	U32   = CodecFunc(infallible((*Serializer).SerializeU32), (*Deserializer).DeserializeU32)
	U64   = CodecFunc(infallible((*Serializer).SerializeU64), (*Deserializer).DeserializeU64)
	U128  = CodecFunc(infallible((*Serializer).SerializeU128), (*Deserializer).DeserializeU128)
	I8    = CodecFunc(infallible((*Serializer).SerializeI8), (*Deserializer).DeserializeI8)
	I16   = CodecFunc(infallible((*Serializer).SerializeI16), (*Deserializer).DeserializeI16)
	I32   = CodecFunc(infallible((*Serializer).SerializeI32), (*Deserializer).DeserializeI32)
	I64   = CodecFunc(infallible((*Serializer).SerializeI64), (*Deserializer).DeserializeI64)
	I128  = CodecFunc(infallible((*Serializer).SerializeI128), (*Deserializer).DeserializeI128)
	F32   = CodecFunc(infallible((*Serializer).SerializeF32), (*Deserializer).DeserializeF32)
	F64   = CodecFunc(infallible((*Serializer).SerializeF64), (*Deserializer).DeserializeF64)
	Char  = CodecFunc(infallible((*Serializer).SerializeChar), (*Deserializer).DeserializeChar)
	Str   = CodecFunc((*Serializer).SerializeStr, (*Deserializer).DeserializeStr)
	Bytes = CodecFunc((*Serializer).SerializeBytes, (*Deserializer).DeserializeBytes)
)

// Option encodes nil as None.
func Option[T any](c Codec[T]) Codec[*T] {
	return CodecFunc(
		func(s *Serializer, v *T) error {
			s.SerializeOptionTag(v != nil)
			if v == nil {
				return nil
			}
			return c.Encode(s, *v)
		},
		func(d *Deserializer) (*T, error) {
			some, err := d.DeserializeOptionTag()
			if err != nil || !some {
				return nil, err
			}
			v, err := c.Decode(d)
			if err != nil {
				return nil, err
			}
			return &v, nil
		},
	)
}

// Seq is a length-prefixed sequence.
func Seq[T any](c Codec[T]) Codec[[]T] {
	return CodecFunc(
		func(s *Serializer, vs []T) error {
			if err := s.SerializeLen(len(vs)); err != nil {
				return err
			}
			for _, v := range vs {
				if err := c.Encode(s, v); err != nil {
					return err
				}
			}
			return nil
		},
		func(d *Deserializer) ([]T, error) {
			n, err := d.DeserializeLen()
			if err != nil {
				return nil, err
			}
			out := make([]T, 0, min(n, 1024))
			for i := 0; i < n; i++ {
				v, err := c.Decode(d)
				if err != nil {
					return nil, err
				}
				out = append(out, v)
			}
			return out, nil
		},
	)
}

// Array is exactly n values with no length prefix.
func Array[T any](c Codec[T], n int) Codec[[]T] {
	return CodecFunc(
		func(s *Serializer, vs []T) error {
			if len(vs) != n {
				return bgerr.New(bgerr.StageWire, bgerr.KindEncode).Detail("array of %d elements, want %d", len(vs), n).Build()
			}
			for _, v := range vs {
				if err := c.Encode(s, v); err != nil {
					return err
				}
			}
			return nil
		},
		func(d *Deserializer) ([]T, error) {
			out := make([]T, n)
			for i := range out {
				v, err := c.Decode(d)
				if err != nil {
					return nil, err
				}
				out[i] = v
			}
			return out, nil
		},
	)
}

// Map encodes entries in increasing byte order and rejects out-of-order keys
// on decode.
func Map[K comparable, V any](kc Codec[K], vc Codec[V]) Codec[map[K]V] {
	return CodecFunc(
		func(s *Serializer, m map[K]V) error {
			if err := s.SerializeLen(len(m)); err != nil {
				return err
			}
			offsets := make([]int, 0, len(m))
			for k, v := range m {
				offsets = append(offsets, s.Len())
				if err := kc.Encode(s, k); err != nil {
					return err
				}
				if err := vc.Encode(s, v); err != nil {
					return err
				}
			}
			s.SortMapEntries(offsets)
			return nil
		},
		func(d *Deserializer) (map[K]V, error) {
			n, err := d.DeserializeLen()
			if err != nil {
				return nil, err
			}
			out := make(map[K]V, min(n, 1024))
			var prev Slice
			for i := 0; i < n; i++ {
				start := d.Position()
				k, err := kc.Decode(d)
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
				v, err := vc.Decode(d)
				if err != nil {
					return nil, err
				}
				out[k] = v
			}
			return out, nil
		},
	)
}

// T2 is a pair.
type T2[A, B any] struct {
	A A
	B B
}

// T3 is a triple.
type T3[A, B, C any] struct {
	A A
	B B
	C C
}

func Tuple2[A, B any](ca Codec[A], cb Codec[B]) Codec[T2[A, B]] {
	return CodecFunc(
		func(s *Serializer, v T2[A, B]) error {
			if err := ca.Encode(s, v.A); err != nil {
				return err
			}
			return cb.Encode(s, v.B)
		},
		func(d *Deserializer) (v T2[A, B], err error) {
			if v.A, err = ca.Decode(d); err != nil {
				return v, err
			}
			v.B, err = cb.Decode(d)
			return v, err
		},
	)
}

func Tuple3[A, B, C any](ca Codec[A], cb Codec[B], cc Codec[C]) Codec[T3[A, B, C]] {
	return CodecFunc(
		func(s *Serializer, v T3[A, B, C]) error {
			if err := ca.Encode(s, v.A); err != nil {
				return err
			}
			if err := cb.Encode(s, v.B); err != nil {
				return err
			}
			return cc.Encode(s, v.C)
		},
		func(d *Deserializer) (v T3[A, B, C], err error) {
			if v.A, err = ca.Decode(d); err != nil {
				return v, err
			}
			if v.B, err = cb.Decode(d); err != nil {
				return v, err
			}
			v.C, err = cc.Decode(d)
			return v, err
		},
	)
}

// Container wraps a struct or enum codec with the container depth check.
func Container[T any](enc func(*Serializer, T) error, dec func(*Deserializer) (T, error)) Codec[T] {
	return CodecFunc(
		func(s *Serializer, v T) error {
			if err := s.IncreaseContainerDepth(); err != nil {
				return err
			}
			defer s.DecreaseContainerDepth()
			return enc(s, v)
		},
		func(d *Deserializer) (T, error) {
			if err := d.IncreaseContainerDepth(); err != nil {
				var zero T
				return zero, err
			}
			defer d.DecreaseContainerDepth()
			return dec(d)
		},
	)
}

// UnitEnum codes an enum whose n variants carry no payload. Indices at or
// above n are rejected.
func UnitEnum[T ~uint32](name string, n uint32) Codec[T] {
	return Container(
		func(s *Serializer, v T) error {
			if uint32(v) >= n {
				return bgerr.New(bgerr.StageWire, bgerr.KindEncode).Subject(name).Detail("unknown variant index %d", uint32(v)).Build()
			}
			s.SerializeVariantIndex(uint32(v))
			return nil
		},
		func(d *Deserializer) (T, error) {
			idx, err := d.DeserializeVariantIndex()
			if err != nil {
				return 0, err
			}
			if idx >= n {
				return 0, bgerr.New(bgerr.StageWire, bgerr.KindDecode).Subject(name).Detail("unknown variant index %d", idx).Build()
			}
			return T(idx), nil
		},
	)
}

// Encode serializes v into a fresh buffer.
func Encode[T any](c Codec[T], v T) ([]byte, error) {
	s := NewSerializer(nil)
	if err := c.Encode(s, v); err != nil {
		return nil, err
	}
	return s.Bytes(), nil
}

// Decode deserializes a whole buffer; trailing bytes are an error.
func Decode[T any](c Codec[T], b []byte) (T, error) {
	d := NewDeserializer(b)
	v, err := c.Decode(d)
	if err != nil {
		return v, err
	}
	return v, d.Finish()
}
