package bincodec

import (
	"sort"

	"github.com/VictoriaMetrics/metrics"
	"github.com/ValentinKolb/dSync/lib/schema"
)

var (
	encodedBytes = metrics.GetOrCreateCounter(`dsync_codec_bytes_total{codec="binary",op="encode"}`)
	decodedBytes = metrics.GetOrCreateCounter(`dsync_codec_bytes_total{codec="binary",op="decode"}`)
	decodeErrors = metrics.GetOrCreateCounter(`dsync_codec_errors_total{codec="binary",op="decode"}`)
)

// Codec encodes registered objects into a compact layout that is not self
// describing. Both sides must agree on the type and its field order:
//
//	object  := field* (in registry order)
//	nested  := presence byte (0 = nil, 1 = present) object?
//	list    := uint32 count, element*
//	map     := uint32 count, (string key, value)* sorted by key
//	string  := uint32 length, bytes
//	bool    := 1 byte (0 or 1)
//	ints    := 1/2/4/8 bytes little endian, floats as IEEE bits
//
// A Codec is safe for concurrent use.
type Codec struct {
	reg *schema.Registry
}

// NewCodec creates a codec resolving types with reg.
func NewCodec(reg *schema.Registry) *Codec {
	return &Codec{reg: reg}
}

// --------------------------------------------------------------------------
// Encoding
// --------------------------------------------------------------------------

// Marshal encodes all fields of o.
func (c *Codec) Marshal(o schema.Object) ([]byte, error) {
	e := NewEncoder(64)
	if err := c.Encode(e, o); err != nil {
		return nil, err
	}
	return e.Bytes(), nil
}

// MarshalTagged encodes the type name of o followed by its fields, so that
// the stream can be decoded without knowing the type in advance.
func (c *Codec) MarshalTagged(o schema.Object) ([]byte, error) {
	if schema.IsNil(o) {
		return nil, ErrNilObject
	}
	e := NewEncoder(64)
	e.PutString(o.TypeName())
	if err := c.Encode(e, o); err != nil {
		return nil, err
	}
	return e.Bytes(), nil
}

// Encode appends all fields of o to e. A nil o fails with ErrNilObject.
func (c *Codec) Encode(e *Encoder, o schema.Object) error {
	if schema.IsNil(o) {
		return ErrNilObject
	}
	start := e.Len()
	w := &writer{reg: c.reg, enc: e, stack: map[schema.Object]struct{}{}}
	if err := w.writeFields(o, ""); err != nil {
		return err
	}
	encodedBytes.Add(e.Len() - start)
	return nil
}

type writer struct {
	reg   *schema.Registry
	enc   *Encoder
	stack map[schema.Object]struct{}
}

func (w *writer) writeFields(o schema.Object, via string) error {
	t, err := w.reg.TypeOf(o)
	if err != nil {
		return err
	}
	if _, onStack := w.stack[o]; onStack {
		return &schema.CyclicReferenceError{Type: t.Name(), Field: via}
	}
	w.stack[o] = struct{}{}
	defer delete(w.stack, o)

	for _, f := range t.Fields() {
		v, err := f.Get(o)
		if err != nil {
			return err
		}
		if err := w.writeValue(f.Type, v, f.Name); err != nil {
			return err
		}
	}
	return nil
}

func (w *writer) writeValue(vt schema.ValueType, v any, field string) error {
	e := w.enc
	switch vt.Kind {
	case schema.KindBool:
		e.PutBool(v.(bool))
	case schema.KindInt8:
		e.PutInt8(int8(v.(int64)))
	case schema.KindInt16:
		e.PutInt16(int16(v.(int64)))
	case schema.KindInt32:
		e.PutInt32(int32(v.(int64)))
	case schema.KindInt64:
		e.PutInt64(v.(int64))
	case schema.KindUint8:
		e.PutUint8(uint8(v.(uint64)))
	case schema.KindUint16:
		e.PutUint16(uint16(v.(uint64)))
	case schema.KindUint32:
		e.PutUint32(uint32(v.(uint64)))
	case schema.KindUint64:
		e.PutUint64(v.(uint64))
	case schema.KindFloat32:
		e.PutFloat32(float32(v.(float64)))
	case schema.KindFloat64:
		e.PutFloat64(v.(float64))
	case schema.KindString:
		e.PutString(v.(string))
	case schema.KindObject:
		if v == nil {
			e.PutUint8(0)
			return nil
		}
		e.PutUint8(1)
		return w.writeFields(v.(schema.Object), field)
	case schema.KindList:
		items, _ := v.([]any)
		e.PutUint32(uint32(len(items)))
		elem := vt.ElemType()
		for _, item := range items {
			if err := w.writeValue(elem, item, field); err != nil {
				return err
			}
		}
	case schema.KindMap:
		m, _ := v.(map[string]any)
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		e.PutUint32(uint32(len(keys)))
		elem := vt.ElemType()
		for _, k := range keys {
			e.PutString(k)
			if err := w.writeValue(elem, m[k], field); err != nil {
				return err
			}
		}
	default:
		return &InvalidDataError{Field: field, Offset: e.Len(), Reason: "cannot encode kind " + vt.Kind.String()}
	}
	return nil
}

// --------------------------------------------------------------------------
// Decoding
// --------------------------------------------------------------------------

// Unmarshal decodes data as an instance of the named type. The whole buffer
// must be consumed.
func (c *Codec) Unmarshal(data []byte, typeName string) (schema.Object, error) {
	o, err := c.reg.Create(typeName)
	if err != nil {
		return nil, err
	}
	if err := c.UnmarshalInto(data, o); err != nil {
		return nil, err
	}
	return o, nil
}

// UnmarshalInto decodes data into the fields of o.
func (c *Codec) UnmarshalInto(data []byte, o schema.Object) error {
	if schema.IsNil(o) {
		return ErrNilObject
	}
	d := NewDecoder(data)
	err := c.Decode(d, o)
	if err == nil && d.Remaining() > 0 {
		err = &InvalidDataError{Type: o.TypeName(), Offset: d.Offset(), Reason: "trailing data"}
	}
	return c.done(data, err)
}

// UnmarshalTagged decodes a stream produced by MarshalTagged.
func (c *Codec) UnmarshalTagged(data []byte) (schema.Object, error) {
	d := NewDecoder(data)
	name, err := d.Text()
	if err != nil {
		return nil, c.done(data, err)
	}
	o, err := c.reg.Create(name)
	if err != nil {
		return nil, c.done(data, err)
	}
	err = c.Decode(d, o)
	if err == nil && d.Remaining() > 0 {
		err = &InvalidDataError{Type: name, Offset: d.Offset(), Reason: "trailing data"}
	}
	if err != nil {
		return nil, c.done(data, err)
	}
	return o, c.done(data, nil)
}

// Decode reads all fields of o from d.
func (c *Codec) Decode(d *Decoder, o schema.Object) error {
	if schema.IsNil(o) {
		return ErrNilObject
	}
	t, err := c.reg.TypeOf(o)
	if err != nil {
		return err
	}
	prevType, prevField := d.typ, d.field
	defer func() { d.typ, d.field = prevType, prevField }()

	d.typ = t.Name()
	for _, f := range t.Fields() {
		d.field = f.Name
		v, err := c.readValue(d, f.Type)
		if err != nil {
			return err
		}
		if err := f.Set(o, v); err != nil {
			return err
		}
	}
	return nil
}

func (c *Codec) readValue(d *Decoder, vt schema.ValueType) (any, error) {
	switch vt.Kind {
	case schema.KindBool:
		return d.Bool()
	case schema.KindInt8:
		v, err := d.Int8()
		return int64(v), err
	case schema.KindInt16:
		v, err := d.Int16()
		return int64(v), err
	case schema.KindInt32:
		v, err := d.Int32()
		return int64(v), err
	case schema.KindInt64:
		return d.Int64()
	case schema.KindUint8:
		v, err := d.Uint8()
		return uint64(v), err
	case schema.KindUint16:
		v, err := d.Uint16()
		return uint64(v), err
	case schema.KindUint32:
		v, err := d.Uint32()
		return uint64(v), err
	case schema.KindUint64:
		return d.Uint64()
	case schema.KindFloat32:
		v, err := d.Float32()
		return float64(v), err
	case schema.KindFloat64:
		return d.Float64()
	case schema.KindString:
		return d.Text()
	case schema.KindObject:
		present, err := d.Uint8()
		if err != nil {
			return nil, err
		}
		switch present {
		case 0:
			return nil, nil
		case 1:
		default:
			return nil, &InvalidDataError{Type: d.typ, Field: d.field, Offset: d.off - 1, Reason: "presence byte must be 0 or 1"}
		}
		o, err := c.reg.Create(vt.TypeName)
		if err != nil {
			return nil, err
		}
		if err := c.Decode(d, o); err != nil {
			return nil, err
		}
		return o, nil
	case schema.KindList:
		n, err := c.readCount(d)
		if err != nil {
			return nil, err
		}
		elem := vt.ElemType()
		items := make([]any, n)
		for i := range items {
			if items[i], err = c.readValue(d, elem); err != nil {
				return nil, err
			}
		}
		return items, nil
	case schema.KindMap:
		n, err := c.readCount(d)
		if err != nil {
			return nil, err
		}
		elem := vt.ElemType()
		m := make(map[string]any, n)
		for i := 0; i < n; i++ {
			k, err := d.Text()
			if err != nil {
				return nil, err
			}
			if m[k], err = c.readValue(d, elem); err != nil {
				return nil, err
			}
		}
		return m, nil
	default:
		return nil, &InvalidDataError{Type: d.typ, Field: d.field, Offset: d.off, Reason: "cannot decode kind " + vt.Kind.String()}
	}
}

// readCount reads a container length. Every element takes at least one
// byte, so a count larger than the remaining buffer is an underflow.
func (c *Codec) readCount(d *Decoder) (int, error) {
	n, err := d.Uint32()
	if err != nil {
		return 0, err
	}
	if uint64(n) > uint64(d.Remaining()) {
		return 0, &BufferUnderflowError{Type: d.typ, Field: d.field, Need: int(n), Have: d.Remaining(), Offset: d.off}
	}
	return int(n), nil
}

func (c *Codec) done(data []byte, err error) error {
	decodedBytes.Add(len(data))
	if err != nil {
		decodeErrors.Inc()
	}
	return err
}
