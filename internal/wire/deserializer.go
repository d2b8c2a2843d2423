package wire

import (
	"bytes"
	"encoding/binary"
	"math"

	bgerr "github.com/jcdickinson/eguinet/internal/errors"
)

// Deserializer reads values from a byte slice. Every failure is a DecodeError.
type Deserializer struct {
	input []byte
	pos   int
	depth int
}

// NewDeserializer reads from input. The slice is not copied.
func NewDeserializer(input []byte) *Deserializer {
	return &Deserializer{input: input}
}

// Position returns the offset of the next unread byte.
func (d *Deserializer) Position() int { return d.pos }

// Finish reports trailing bytes.
func (d *Deserializer) Finish() error {
	if d.pos != len(d.input) {
		return bgerr.Decode("%d trailing bytes after value", len(d.input)-d.pos)
	}
	return nil
}

func (d *Deserializer) IncreaseContainerDepth() error {
	if d.depth >= MaxContainerDepth {
		return bgerr.Decode("exceeded maximum container depth %d", MaxContainerDepth)
	}
	d.depth++
	return nil
}

func (d *Deserializer) DecreaseContainerDepth() {
	d.depth--
}

func (d *Deserializer) take(n int) ([]byte, error) {
	if n < 0 || len(d.input)-d.pos < n {
		return nil, bgerr.Decode("unexpected end of input at offset %d: need %d bytes, have %d", d.pos, n, len(d.input)-d.pos)
	}
	b := d.input[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

func (d *Deserializer) DeserializeUnit() error { return nil }

func (d *Deserializer) DeserializeBool() (bool, error) {
	b, err := d.take(1)
	if err != nil {
		return false, err
	}
	switch b[0] {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}
	return false, bgerr.Decode("invalid bool byte 0x%02x at offset %d", b[0], d.pos-1)
}

func (d *Deserializer) DeserializeU8() (uint8, error) {
	b, err := d.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *Deserializer) DeserializeU16() (uint16, error) {
	b, err := d.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (d *Deserializer) DeserializeU32() (uint32, error) {
	b, err := d.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (d *Deserializer) DeserializeU64() (uint64, error) {
	b, err := d.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (d *Deserializer) DeserializeU128() (Uint128, error) {
	lo, err := d.DeserializeU64()
	if err != nil {
		return Uint128{}, err
	}
	hi, err := d.DeserializeU64()
	return Uint128{Lo: lo, Hi: hi}, err
}

func (d *Deserializer) DeserializeI8() (int8, error) {
	v, err := d.DeserializeU8()
	return int8(v), err
}

func (d *Deserializer) DeserializeI16() (int16, error) {
	v, err := d.DeserializeU16()
	return int16(v), err
}

func (d *Deserializer) DeserializeI32() (int32, error) {
	v, err := d.DeserializeU32()
	return int32(v), err
}

func (d *Deserializer) DeserializeI64() (int64, error) {
	v, err := d.DeserializeU64()
	return int64(v), err
}

func (d *Deserializer) DeserializeI128() (Int128, error) {
	lo, err := d.DeserializeU64()
	if err != nil {
		return Int128{}, err
	}
	hi, err := d.DeserializeU64()
	return Int128{Lo: lo, Hi: int64(hi)}, err
}

func (d *Deserializer) DeserializeF32() (float32, error) {
	v, err := d.DeserializeU32()
	return math.Float32frombits(v), err
}

func (d *Deserializer) DeserializeF64() (float64, error) {
	v, err := d.DeserializeU64()
	return math.Float64frombits(v), err
}

func (d *Deserializer) DeserializeChar() (rune, error) {
	v, err := d.DeserializeU32()
	if err != nil {
		return 0, err
	}
	if v > 0x10ffff || (v >= 0xd800 && v <= 0xdfff) {
		return 0, bgerr.Decode("invalid char 0x%x", v)
	}
	return rune(v), nil
}

func (d *Deserializer) DeserializeBytes() ([]byte, error) {
	n, err := d.DeserializeLen()
	if err != nil {
		return nil, err
	}
	b, err := d.take(n)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), b...), nil
}

func (d *Deserializer) DeserializeStr() (string, error) {
	n, err := d.DeserializeLen()
	if err != nil {
		return "", err
	}
	b, err := d.take(n)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DeserializeLen reads a sequence or map length prefix.
func (d *Deserializer) DeserializeLen() (int, error) {
	v, err := d.readULEB128()
	if err != nil {
		return 0, err
	}
	if v > MaxSequenceLength {
		return 0, bgerr.Decode("length %d exceeds the maximum sequence length", v)
	}
	return int(v), nil
}

func (d *Deserializer) DeserializeVariantIndex() (uint32, error) {
	return d.readULEB128()
}

func (d *Deserializer) DeserializeOptionTag() (bool, error) {
	return d.DeserializeBool()
}

// readULEB128 accepts only the shortest encoding of a u32.
func (d *Deserializer) readULEB128() (uint32, error) {
	var value uint64
	for shift := 0; shift < 32; shift += 7 {
		b, err := d.take(1)
		if err != nil {
			return 0, err
		}
		digit := b[0] & 0x7f
		value |= uint64(digit) << shift
		if value > math.MaxUint32 {
			return 0, bgerr.Decode("overflow while parsing uleb128-encoded u32")
		}
		if b[0]&0x80 == 0 {
			if shift > 0 && digit == 0 {
				return 0, bgerr.Decode("invalid uleb128 number (unexpected zero digit)")
			}
			return uint32(value), nil
		}
	}
	return 0, bgerr.Decode("overflow while parsing uleb128-encoded u32")
}

// Slice is a byte range of the input.
type Slice struct {
	Start, End int
}

// CheckThatKeySlicesAreIncreasing enforces canonical map ordering.
func (d *Deserializer) CheckThatKeySlicesAreIncreasing(key1, key2 Slice) error {
	if bytes.Compare(d.input[key1.Start:key1.End], d.input[key2.Start:key2.End]) >= 0 {
		return bgerr.Decode("map keys are not in strictly increasing order")
	}
	return nil
}
