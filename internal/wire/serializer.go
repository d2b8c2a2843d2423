// Package wire implements the binary format shared by both sides of the
// boundary: ULEB128 lengths and variant indices, little-endian fixed-width
// numbers, one-byte bools and option tags, and maps sorted by entry bytes.
package wire

import (
	"bytes"
	"encoding/binary"
	"math"
	"sort"

	bgerr "github.com/jcdickinson/eguinet/internal/errors"
)

const (
	// MaxSequenceLength bounds every length prefix.
	MaxSequenceLength = 1<<31 - 1
	// MaxContainerDepth bounds nesting of structs, enums and options.
	MaxContainerDepth = 500
)

// Uint128 is an unsigned 128-bit integer.
type Uint128 struct {
	Lo, Hi uint64
}

// Int128 is a signed 128-bit integer in two's complement.
type Int128 struct {
	Lo uint64
	Hi int64
}

// Serializer appends encoded values to a buffer. The zero value is ready to
// use.
type Serializer struct {
	buf   []byte
	depth int
}

// NewSerializer returns a serializer writing into buf[:0], reusing its
// capacity.
func NewSerializer(buf []byte) *Serializer {
	return &Serializer{buf: buf[:0]}
}

// Bytes returns the encoded bytes. The slice aliases the serializer's buffer.
func (s *Serializer) Bytes() []byte { return s.buf }

// Len returns the number of bytes written.
func (s *Serializer) Len() int { return len(s.buf) }

// Reset truncates the buffer, keeping its capacity.
func (s *Serializer) Reset() {
	s.buf = s.buf[:0]
	s.depth = 0
}

func (s *Serializer) IncreaseContainerDepth() error {
	if s.depth >= MaxContainerDepth {
		return bgerr.New(bgerr.StageWire, bgerr.KindEncode).Detail("exceeded maximum container depth %d", MaxContainerDepth).Build()
	}
	s.depth++
	return nil
}

func (s *Serializer) DecreaseContainerDepth() {
	s.depth--
}

func (s *Serializer) SerializeUnit() {}

func (s *Serializer) SerializeBool(v bool) {
	if v {
		s.buf = append(s.buf, 1)
	} else {
		s.buf = append(s.buf, 0)
	}
}

func (s *Serializer) SerializeU8(v uint8)   { s.buf = append(s.buf, v) }
func (s *Serializer) SerializeU16(v uint16) { s.buf = binary.LittleEndian.AppendUint16(s.buf, v) }
func (s *Serializer) SerializeU32(v uint32) { s.buf = binary.LittleEndian.AppendUint32(s.buf, v) }
func (s *Serializer) SerializeU64(v uint64) { s.buf = binary.LittleEndian.AppendUint64(s.buf, v) }

func (s *Serializer) SerializeU128(v Uint128) {
	s.SerializeU64(v.Lo)
	s.SerializeU64(v.Hi)
}

func (s *Serializer) SerializeI8(v int8)   { s.SerializeU8(uint8(v)) }
func (s *Serializer) SerializeI16(v int16) { s.SerializeU16(uint16(v)) }
func (s *Serializer) SerializeI32(v int32) { s.SerializeU32(uint32(v)) }
func (s *Serializer) SerializeI64(v int64) { s.SerializeU64(uint64(v)) }

func (s *Serializer) SerializeI128(v Int128) {
	s.SerializeU64(v.Lo)
	s.SerializeU64(uint64(v.Hi))
}

func (s *Serializer) SerializeF32(v float32) { s.SerializeU32(math.Float32bits(v)) }
func (s *Serializer) SerializeF64(v float64) { s.SerializeU64(math.Float64bits(v)) }

// SerializeChar writes the scalar value as a u32.
func (s *Serializer) SerializeChar(v rune) { s.SerializeU32(uint32(v)) }

func (s *Serializer) SerializeStr(v string) error {
	if err := s.SerializeLen(len(v)); err != nil {
		return err
	}
	s.buf = append(s.buf, v...)
	return nil
}

func (s *Serializer) SerializeBytes(v []byte) error {
	if err := s.SerializeLen(len(v)); err != nil {
		return err
	}
	s.buf = append(s.buf, v...)
	return nil
}

// SerializeLen writes a sequence or map length prefix.
func (s *Serializer) SerializeLen(n int) error {
	if n < 0 || n > MaxSequenceLength {
		return bgerr.New(bgerr.StageWire, bgerr.KindEncode).Detail("length %d exceeds the maximum sequence length", n).Build()
	}
	s.writeULEB128(uint32(n))
	return nil
}

func (s *Serializer) SerializeVariantIndex(v uint32) {
	s.writeULEB128(v)
}

func (s *Serializer) SerializeOptionTag(some bool) {
	s.SerializeBool(some)
}

func (s *Serializer) writeULEB128(v uint32) {
	for v >= 0x80 {
		s.buf = append(s.buf, byte(v&0x7f)|0x80)
		v >>= 7
	}
	s.buf = append(s.buf, byte(v))
}

// SortMapEntries reorders the map entries written after offsets[0] so that
// their encodings are in increasing byte order. offsets holds the start of
// each entry; the last entry runs to the end of the buffer.
func (s *Serializer) SortMapEntries(offsets []int) {
	if len(offsets) <= 1 {
		return
	}
	start := offsets[0]
	entries := make([][]byte, len(offsets))
	for i, off := range offsets {
		end := len(s.buf)
		if i+1 < len(offsets) {
			end = offsets[i+1]
		}
		entries[i] = s.buf[off:end]
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return bytes.Compare(entries[i], entries[j]) < 0
	})
	sorted := make([]byte, 0, len(s.buf)-start)
	for _, e := range entries {
		sorted = append(sorted, e...)
	}
	copy(s.buf[start:], sorted)
}
