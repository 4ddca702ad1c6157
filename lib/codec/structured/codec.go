package structured

import (
	"bytes"

	"github.com/VictoriaMetrics/metrics"
	"github.com/ValentinKolb/dSync/lib/schema"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("codec")

var (
	encodedBytes  = metrics.GetOrCreateCounter(`dsync_codec_bytes_total{codec="structured",op="encode"}`)
	decodedBytes  = metrics.GetOrCreateCounter(`dsync_codec_bytes_total{codec="structured",op="decode"}`)
	decodeErrors  = metrics.GetOrCreateCounter(`dsync_codec_errors_total{codec="structured",op="decode"}`)
	skippedFields = metrics.GetOrCreateCounter(`dsync_codec_skipped_fields_total{codec="structured"}`)
)

// --------------------------------------------------------------------------
// Field Selection
// --------------------------------------------------------------------------

// Selection decides how a field is written by MarshalSelected.
type Selection uint8

const (
	SelectSkip    Selection = iota // field is omitted
	SelectFull                     // field is written completely
	SelectChanged                  // nested object is written as a partial block, selected recursively
)

// Selector is consulted for every field of every object written by
// MarshalSelected. SelectChanged is treated as SelectFull for fields that are
// not nested objects.
type Selector func(f *schema.Field, o schema.Object) Selection

// --------------------------------------------------------------------------
// Codec
// --------------------------------------------------------------------------

// Codec encodes registered objects into the self describing text grammar
//
//	TYPE{field:value;field:value;}
//
// and decodes it again. Values are literals (true, false, integers, floats,
// quoted strings, null), nested objects, sequences [v,v] and string keyed
// mappings {"k":v;}. A Codec is safe for concurrent use.
type Codec struct {
	reg *schema.Registry
}

// NewCodec creates a codec that resolves type names with reg.
func NewCodec(reg *schema.Registry) *Codec {
	return &Codec{reg: reg}
}

// Registry returns the registry used by the codec.
func (c *Codec) Registry() *schema.Registry {
	return c.reg
}

// Marshal encodes all fields of o. A nil object encodes as null.
func (c *Codec) Marshal(o schema.Object) ([]byte, error) {
	return c.MarshalSelected(o, nil)
}

// MarshalSelected encodes the fields of o chosen by sel. A nil selector
// selects every field.
func (c *Codec) MarshalSelected(o schema.Object, sel Selector) ([]byte, error) {
	e := newEncoder(c.reg)
	if err := e.writeObject(o, sel, ""); err != nil {
		return nil, err
	}
	encodedBytes.Add(len(e.buf))
	return e.buf, nil
}

// MarshalValue encodes a single value of type vt. It is used for method
// arguments and results.
func (c *Codec) MarshalValue(vt schema.ValueType, v any) ([]byte, error) {
	n, err := schema.Normalize(vt, v)
	if err != nil {
		return nil, err
	}
	e := newEncoder(c.reg)
	if err := e.writeValue(vt, n, ""); err != nil {
		return nil, err
	}
	encodedBytes.Add(len(e.buf))
	return e.buf, nil
}

// Unmarshal decodes a stream into a fresh instance of the type named in the
// stream.
func (c *Codec) Unmarshal(data []byte) (schema.Object, error) {
	d := newDecoder(c.reg, data)
	o, err := d.readObject(nil, "")
	if err == nil {
		if o == nil {
			err = d.fail("expected object, got null", nil)
		} else {
			err = d.finish()
		}
	}
	return o, c.done(data, err)
}

// UnmarshalInto merges the fields present in the stream into o. Fields that
// are not present keep their value, nested objects of the same type are
// merged recursively. The stream must describe an object of the type of o.
func (c *Codec) UnmarshalInto(data []byte, o schema.Object) error {
	d := newDecoder(c.reg, data)
	got, err := d.readObject(o, o.TypeName())
	if err == nil {
		if got == nil {
			err = d.fail("expected object, got null", nil)
		} else {
			err = d.finish()
		}
	}
	return c.done(data, err)
}

// UnmarshalValue decodes a single value of type vt in canonical form.
func (c *Codec) UnmarshalValue(vt schema.ValueType, data []byte) (any, error) {
	d := newDecoder(c.reg, data)
	v, err := d.readValue(vt, nil)
	if err == nil {
		err = d.finish()
	}
	if err != nil {
		return nil, c.done(data, err)
	}
	v, err = schema.Normalize(vt, v)
	if err != nil {
		return nil, c.done(data, d.fail("value does not match declared type", err))
	}
	return v, c.done(data, nil)
}

// Valid reports whether data is a well-formed stream (types are not resolved).
func Valid(data []byte) bool {
	d := newDecoder(nil, data)
	return d.skipValue() == nil && d.finish() == nil
}

// Indent renders a stream with one field per line. It only changes whitespace
// outside of strings, so the result decodes to the same object.
func Indent(data []byte, indent string) []byte {
	var out bytes.Buffer
	depth := 0
	inString, escaped := false, false
	newline := func() {
		out.WriteByte('\n')
		for i := 0; i < depth; i++ {
			out.WriteString(indent)
		}
	}
	for _, b := range data {
		if inString {
			out.WriteByte(b)
			switch {
			case escaped:
				escaped = false
			case b == '\\':
				escaped = true
			case b == '"':
				inString = false
			}
			continue
		}
		switch b {
		case '"':
			inString = true
			out.WriteByte(b)
		case '{':
			depth++
			out.WriteByte(b)
			newline()
		case '}':
			depth--
			out.Truncate(trimIndent(out.Bytes(), indent))
			out.WriteByte(b)
		case ';':
			out.WriteByte(b)
			newline()
		case ' ', '\t', '\n', '\r':
		default:
			out.WriteByte(b)
		}
	}
	return out.Bytes()
}

// trimIndent returns the length of buf without one trailing indent level
func trimIndent(buf []byte, indent string) int {
	if bytes.HasSuffix(buf, []byte(indent)) {
		return len(buf) - len(indent)
	}
	return len(buf)
}

// done records metrics for a finished decode
func (c *Codec) done(data []byte, err error) error {
	decodedBytes.Add(len(data))
	if err != nil {
		decodeErrors.Inc()
		Logger.Debugf("decode failed: %v", err)
	}
	return err
}
