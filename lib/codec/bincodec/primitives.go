package bincodec

import (
	"encoding/binary"
	"math"
)

// --------------------------------------------------------------------------
// Encoder
// --------------------------------------------------------------------------

// Encoder appends little endian primitives to a reusable buffer.
type Encoder struct {
	buf []byte
}

// NewEncoder creates an encoder with the given initial capacity.
func NewEncoder(capacity int) *Encoder {
	return &Encoder{buf: make([]byte, 0, capacity)}
}

// Reset empties the buffer but keeps its capacity.
func (e *Encoder) Reset() { e.buf = e.buf[:0] }

// Bytes returns the encoded bytes. The slice is only valid until the next
// call that modifies the encoder.
func (e *Encoder) Bytes() []byte { return e.buf }

// Len returns the number of encoded bytes.
func (e *Encoder) Len() int { return len(e.buf) }

func (e *Encoder) PutBool(v bool) {
	if v {
		e.buf = append(e.buf, 1)
	} else {
		e.buf = append(e.buf, 0)
	}
}

func (e *Encoder) PutUint8(v uint8)   { e.buf = append(e.buf, v) }
func (e *Encoder) PutUint16(v uint16) { e.buf = binary.LittleEndian.AppendUint16(e.buf, v) }
func (e *Encoder) PutUint32(v uint32) { e.buf = binary.LittleEndian.AppendUint32(e.buf, v) }
func (e *Encoder) PutUint64(v uint64) { e.buf = binary.LittleEndian.AppendUint64(e.buf, v) }

func (e *Encoder) PutInt8(v int8)   { e.PutUint8(uint8(v)) }
func (e *Encoder) PutInt16(v int16) { e.PutUint16(uint16(v)) }
func (e *Encoder) PutInt32(v int32) { e.PutUint32(uint32(v)) }
func (e *Encoder) PutInt64(v int64) { e.PutUint64(uint64(v)) }

func (e *Encoder) PutFloat32(v float32) { e.PutUint32(math.Float32bits(v)) }
func (e *Encoder) PutFloat64(v float64) { e.PutUint64(math.Float64bits(v)) }

// PutString writes a uint32 length followed by the bytes of s.
func (e *Encoder) PutString(s string) {
	e.PutUint32(uint32(len(s)))
	e.buf = append(e.buf, s...)
}

// PutBytes writes a uint32 length followed by b.
func (e *Encoder) PutBytes(b []byte) {
	e.PutUint32(uint32(len(b)))
	e.buf = append(e.buf, b...)
}

// --------------------------------------------------------------------------
// Decoder
// --------------------------------------------------------------------------

// Decoder reads little endian primitives from a byte slice. Reads past the
// end fail with a *BufferUnderflowError and never return zero filled values.
type Decoder struct {
	data []byte
	off  int

	// context for error messages
	typ   string
	field string
}

// NewDecoder creates a decoder reading from data.
func NewDecoder(data []byte) *Decoder {
	return &Decoder{data: data}
}

// Offset returns the number of bytes consumed so far.
func (d *Decoder) Offset() int { return d.off }

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int { return len(d.data) - d.off }

// take returns the next n bytes
func (d *Decoder) take(n int) ([]byte, error) {
	if n < 0 || d.Remaining() < n {
		return nil, &BufferUnderflowError{
			Type:   d.typ,
			Field:  d.field,
			Need:   n,
			Have:   d.Remaining(),
			Offset: d.off,
		}
	}
	b := d.data[d.off : d.off+n]
	d.off += n
	return b, nil
}

func (d *Decoder) Bool() (bool, error) {
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
	return false, &InvalidDataError{Type: d.typ, Field: d.field, Offset: d.off - 1, Reason: "bool byte must be 0 or 1"}
}

func (d *Decoder) Uint8() (uint8, error) {
	b, err := d.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *Decoder) Uint16() (uint16, error) {
	b, err := d.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (d *Decoder) Uint32() (uint32, error) {
	b, err := d.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (d *Decoder) Uint64() (uint64, error) {
	b, err := d.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (d *Decoder) Int8() (int8, error) {
	v, err := d.Uint8()
	return int8(v), err
}

func (d *Decoder) Int16() (int16, error) {
	v, err := d.Uint16()
	return int16(v), err
}

func (d *Decoder) Int32() (int32, error) {
	v, err := d.Uint32()
	return int32(v), err
}

func (d *Decoder) Int64() (int64, error) {
	v, err := d.Uint64()
	return int64(v), err
}

func (d *Decoder) Float32() (float32, error) {
	v, err := d.Uint32()
	return math.Float32frombits(v), err
}

func (d *Decoder) Float64() (float64, error) {
	v, err := d.Uint64()
	return math.Float64frombits(v), err
}

// Text reads a uint32 length prefixed string.
func (d *Decoder) Text() (string, error) {
	b, err := d.Bytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Bytes reads a uint32 length prefixed byte slice. The result aliases the
// input buffer.
func (d *Decoder) Bytes() ([]byte, error) {
	n, err := d.Uint32()
	if err != nil {
		return nil, err
	}
	if uint64(n) > uint64(d.Remaining()) {
		return nil, &BufferUnderflowError{Type: d.typ, Field: d.field, Need: int(n), Have: d.Remaining(), Offset: d.off}
	}
	return d.take(int(n))
}
