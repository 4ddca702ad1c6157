package structured

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/ValentinKolb/dSync/lib/schema"
)

// escapeByte lists the bytes that are written with a preceding backslash inside
// quoted strings
var escapeByte = [256]bool{
	'"': true, '\\': true,
	'{': true, '}': true, ':': true, ';': true, '[': true, ']': true, ',': true,
}

type encoder struct {
	reg *schema.Registry
	buf []byte
	// objects on the current encode stack, compared by identity
	stack map[schema.Object]struct{}
}

func newEncoder(reg *schema.Registry) *encoder {
	return &encoder{
		reg:   reg,
		buf:   make([]byte, 0, 128),
		stack: map[schema.Object]struct{}{},
	}
}

// writeObject writes o with the fields chosen by sel. via names the field
// that referenced o and is only used for error messages.
func (e *encoder) writeObject(o schema.Object, sel Selector, via string) error {
	if schema.IsNil(o) {
		e.buf = append(e.buf, "null"...)
		return nil
	}

	t, err := e.reg.TypeOf(o)
	if err != nil {
		return err
	}
	if _, onStack := e.stack[o]; onStack {
		return &CyclicReferenceError{Type: t.Name(), Field: via}
	}
	e.stack[o] = struct{}{}
	defer delete(e.stack, o)

	e.buf = append(e.buf, t.Name()...)
	e.buf = append(e.buf, '{')
	for _, f := range t.Fields() {
		mode := SelectFull
		if sel != nil {
			mode = sel(f, o)
		}
		if mode == SelectSkip {
			continue
		}

		v, err := f.Get(o)
		if err != nil {
			return err
		}

		e.buf = append(e.buf, f.Name...)
		e.buf = append(e.buf, ':')
		if mode == SelectChanged && f.Type.Kind == schema.KindObject && v != nil {
			err = e.writeObject(v.(schema.Object), sel, f.Name)
		} else {
			err = e.writeValue(f.Type, v, f.Name)
		}
		if err != nil {
			return err
		}
		e.buf = append(e.buf, ';')
	}
	e.buf = append(e.buf, '}')
	return nil
}

// writeValue writes a canonical value of type vt
func (e *encoder) writeValue(vt schema.ValueType, v any, via string) error {
	switch {
	case vt.Kind == schema.KindBool:
		e.buf = strconv.AppendBool(e.buf, v.(bool))
	case vt.Kind.IsSigned():
		e.buf = strconv.AppendInt(e.buf, v.(int64), 10)
	case vt.Kind.IsUnsigned():
		e.buf = strconv.AppendUint(e.buf, v.(uint64), 10)
	case vt.Kind.IsFloat():
		e.writeFloat(v.(float64), vt.Kind.Bits())
	case vt.Kind == schema.KindString:
		e.writeString(v.(string))
	case vt.Kind == schema.KindObject:
		if v == nil {
			e.buf = append(e.buf, "null"...)
			return nil
		}
		return e.writeObject(v.(schema.Object), nil, via)
	case vt.Kind == schema.KindList:
		items, _ := v.([]any)
		elem := vt.ElemType()
		e.buf = append(e.buf, '[')
		for i, item := range items {
			if i > 0 {
				e.buf = append(e.buf, ',')
			}
			if err := e.writeValue(elem, item, via); err != nil {
				return err
			}
		}
		e.buf = append(e.buf, ']')
	case vt.Kind == schema.KindMap:
		m, _ := v.(map[string]any)
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		elem := vt.ElemType()
		e.buf = append(e.buf, '{')
		for _, k := range keys {
			e.writeString(k)
			e.buf = append(e.buf, ':')
			if err := e.writeValue(elem, m[k], via); err != nil {
				return err
			}
			e.buf = append(e.buf, ';')
		}
		e.buf = append(e.buf, '}')
	default:
		return fmt.Errorf("structured: cannot encode kind %s of field %q", vt.Kind, via)
	}
	return nil
}

// writeFloat writes the shortest representation that parses back to the
// same bits
func (e *encoder) writeFloat(f float64, bits int) {
	switch {
	case math.IsNaN(f):
		e.buf = append(e.buf, "NaN"...)
	case math.IsInf(f, 1):
		e.buf = append(e.buf, "+Inf"...)
	case math.IsInf(f, -1):
		e.buf = append(e.buf, "-Inf"...)
	default:
		e.buf = strconv.AppendFloat(e.buf, f, 'g', -1, bits)
	}
}

func (e *encoder) writeString(s string) {
	e.buf = append(e.buf, '"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escapeByte[c]:
			e.buf = append(e.buf, '\\', c)
		case c == '\n':
			e.buf = append(e.buf, '\\', 'n')
		case c == '\r':
			e.buf = append(e.buf, '\\', 'r')
		case c == '\t':
			e.buf = append(e.buf, '\\', 't')
		default:
			e.buf = append(e.buf, c)
		}
	}
	e.buf = append(e.buf, '"')
}
