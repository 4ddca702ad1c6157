package structured

import (
	"errors"
	"strconv"
	"strings"

	"github.com/ValentinKolb/dSync/lib/schema"
)

// maxDepth bounds the nesting of objects and containers in a stream
const maxDepth = 256

type decoder struct {
	reg   *schema.Registry
	data  []byte
	pos   int
	depth int

	// context for error messages
	curType  string
	curField string
}

func newDecoder(reg *schema.Registry, data []byte) *decoder {
	return &decoder{reg: reg, data: data}
}

// --------------------------------------------------------------------------
// Objects
// --------------------------------------------------------------------------

// readObject reads TYPE{...} or null. If into is of the decoded type, fields
// are merged into it, otherwise a fresh instance is created. If want is not
// empty, the stream must name that type.
func (d *decoder) readObject(into schema.Object, want string) (schema.Object, error) {
	start := d.pos
	name, err := d.readToken()
	if err != nil {
		return nil, err
	}
	if name == "null" {
		return nil, nil
	}
	if want != "" && name != want {
		d.pos = start
		return nil, d.fail("expected object of type "+strconv.Quote(want)+", got "+strconv.Quote(name), nil)
	}

	t, ok := d.reg.Lookup(name)
	if !ok {
		return nil, &schema.UnknownTypeError{Type: name}
	}

	obj := into
	if schema.IsNil(obj) || obj.TypeName() != name {
		obj = t.New()
	}

	if err := d.enter(); err != nil {
		return nil, err
	}
	defer d.leave()

	prevType, prevField := d.curType, d.curField
	d.curType, d.curField = name, ""
	defer func() { d.curType, d.curField = prevType, prevField }()

	if err := d.expect('{'); err != nil {
		return nil, err
	}
	for {
		d.skipSpace()
		if d.pos >= len(d.data) {
			return nil, d.fail("missing end marker '}'", nil)
		}
		if d.data[d.pos] == '}' {
			d.pos++
			return obj, nil
		}

		fieldName, err := d.readToken()
		if err != nil {
			return nil, err
		}
		d.curField = fieldName
		if err := d.expect(':'); err != nil {
			return nil, err
		}

		f, known := t.Field(fieldName)
		if !known {
			if err := d.skipValue(); err != nil {
				return nil, err
			}
			skippedFields.Inc()
		} else if err := d.readField(obj, f); err != nil {
			return nil, err
		}

		if err := d.expect(';'); err != nil {
			return nil, err
		}
		d.curField = ""
	}
}

// readField reads the value of f and assigns it to obj
func (d *decoder) readField(obj schema.Object, f *schema.Field) error {
	var existing any
	if f.Type.Kind == schema.KindObject {
		existing, _ = f.Get(obj)
	}

	start := d.pos
	v, err := d.readValue(f.Type, existing)
	if err != nil {
		return err
	}
	if err := f.Set(obj, v); err != nil {
		d.pos = start
		var rangeErr *schema.RangeError
		if errors.As(err, &rangeErr) {
			return d.fail("value out of range", err)
		}
		return d.fail("value does not match declared kind "+f.Type.String(), err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Values
// --------------------------------------------------------------------------

// readValue reads a value of type vt. existing is merged into if vt is an
// object type.
func (d *decoder) readValue(vt schema.ValueType, existing any) (any, error) {
	d.skipSpace()
	start := d.pos

	switch {
	case vt.Kind == schema.KindBool:
		tok, err := d.readToken()
		if err != nil {
			return nil, err
		}
		switch tok {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		d.pos = start
		return nil, d.fail("expected bool, got "+strconv.Quote(tok), nil)

	case vt.Kind.IsSigned():
		tok, err := d.readToken()
		if err != nil {
			return nil, err
		}
		// width is checked by Normalize when the value is assigned
		i, err := strconv.ParseInt(tok, 10, 64)
		if err != nil {
			d.pos = start
			return nil, d.fail("expected "+vt.Kind.String(), err)
		}
		return i, nil

	case vt.Kind.IsUnsigned():
		tok, err := d.readToken()
		if err != nil {
			return nil, err
		}
		u, err := strconv.ParseUint(tok, 10, 64)
		if err != nil {
			d.pos = start
			return nil, d.fail("expected "+vt.Kind.String(), err)
		}
		return u, nil

	case vt.Kind.IsFloat():
		tok, err := d.readToken()
		if err != nil {
			return nil, err
		}
		f, err := strconv.ParseFloat(tok, vt.Kind.Bits())
		if errors.Is(err, strconv.ErrRange) {
			d.pos = start
			return nil, d.fail("value out of range", &schema.RangeError{Kind: vt.Kind, Value: tok})
		}
		if err != nil {
			d.pos = start
			return nil, d.fail("expected "+vt.Kind.String(), err)
		}
		return f, nil

	case vt.Kind == schema.KindString:
		return d.readString()

	case vt.Kind == schema.KindObject:
		into, _ := existing.(schema.Object)
		o, err := d.readObject(into, vt.TypeName)
		if err != nil || o == nil {
			return nil, err
		}
		return o, nil

	case vt.Kind == schema.KindList:
		return d.readList(vt.ElemType())

	case vt.Kind == schema.KindMap:
		return d.readMap(vt.ElemType())

	default:
		return nil, d.fail("cannot decode kind "+vt.Kind.String(), nil)
	}
}

func (d *decoder) readList(elem schema.ValueType) ([]any, error) {
	if err := d.expect('['); err != nil {
		return nil, err
	}
	if err := d.enter(); err != nil {
		return nil, err
	}
	defer d.leave()

	items := []any{}
	d.skipSpace()
	if d.pos < len(d.data) && d.data[d.pos] == ']' {
		d.pos++
		return items, nil
	}
	for {
		v, err := d.readValue(elem, nil)
		if err != nil {
			return nil, err
		}
		items = append(items, v)

		d.skipSpace()
		if d.pos >= len(d.data) {
			return nil, d.fail("missing end marker ']'", nil)
		}
		switch d.data[d.pos] {
		case ',':
			d.pos++
		case ']':
			d.pos++
			return items, nil
		default:
			return nil, d.fail("expected ',' or ']'", nil)
		}
	}
}

func (d *decoder) readMap(elem schema.ValueType) (map[string]any, error) {
	if err := d.expect('{'); err != nil {
		return nil, err
	}
	if err := d.enter(); err != nil {
		return nil, err
	}
	defer d.leave()

	m := map[string]any{}
	for {
		d.skipSpace()
		if d.pos >= len(d.data) {
			return nil, d.fail("missing end marker '}'", nil)
		}
		if d.data[d.pos] == '}' {
			d.pos++
			return m, nil
		}
		key, err := d.readString()
		if err != nil {
			return nil, err
		}
		if err := d.expect(':'); err != nil {
			return nil, err
		}
		v, err := d.readValue(elem, nil)
		if err != nil {
			return nil, err
		}
		m[key] = v
		if err := d.expect(';'); err != nil {
			return nil, err
		}
	}
}

// skipValue consumes any well-formed value without interpreting it. It is
// used for fields the local type does not declare.
func (d *decoder) skipValue() error {
	if err := d.enter(); err != nil {
		return err
	}
	defer d.leave()

	d.skipSpace()
	if d.pos >= len(d.data) {
		return d.fail("unexpected end of stream", nil)
	}

	switch d.data[d.pos] {
	case '"':
		_, err := d.readString()
		return err

	case '[':
		d.pos++
		d.skipSpace()
		if d.pos < len(d.data) && d.data[d.pos] == ']' {
			d.pos++
			return nil
		}
		for {
			if err := d.skipValue(); err != nil {
				return err
			}
			d.skipSpace()
			if d.pos >= len(d.data) {
				return d.fail("missing end marker ']'", nil)
			}
			switch d.data[d.pos] {
			case ',':
				d.pos++
			case ']':
				d.pos++
				return nil
			default:
				return d.fail("expected ',' or ']'", nil)
			}
		}

	case '{':
		d.pos++
		return d.skipPairs(func() error {
			_, err := d.readString()
			return err
		})

	default:
		start := d.pos
		tok, err := d.readToken()
		if err != nil {
			return err
		}
		d.skipSpace()
		if d.pos < len(d.data) && d.data[d.pos] == '{' {
			d.pos++
			return d.skipPairs(func() error {
				_, err := d.readToken()
				return err
			})
		}
		if !isLiteral(tok) {
			d.pos = start
			return d.fail("invalid literal "+strconv.Quote(tok), nil)
		}
		return nil
	}
}

// skipPairs consumes name:value; pairs up to and including the closing '}'
func (d *decoder) skipPairs(readName func() error) error {
	for {
		d.skipSpace()
		if d.pos >= len(d.data) {
			return d.fail("missing end marker '}'", nil)
		}
		if d.data[d.pos] == '}' {
			d.pos++
			return nil
		}
		if err := readName(); err != nil {
			return err
		}
		if err := d.expect(':'); err != nil {
			return err
		}
		if err := d.skipValue(); err != nil {
			return err
		}
		if err := d.expect(';'); err != nil {
			return err
		}
	}
}

func isLiteral(tok string) bool {
	switch tok {
	case "true", "false", "null":
		return true
	}
	_, err := strconv.ParseFloat(tok, 64)
	var numErr *strconv.NumError
	return err == nil || (errors.As(err, &numErr) && numErr.Err == strconv.ErrRange)
}

// --------------------------------------------------------------------------
// Lexer
// --------------------------------------------------------------------------

func isStructural(c byte) bool {
	switch c {
	case '{', '}', ':', ';', '[', ']', ',', '"', '\\':
		return true
	}
	return false
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func (d *decoder) skipSpace() {
	for d.pos < len(d.data) && isSpace(d.data[d.pos]) {
		d.pos++
	}
}

// readToken reads a bare word (type name, field name or literal)
func (d *decoder) readToken() (string, error) {
	d.skipSpace()
	start := d.pos
	for d.pos < len(d.data) && !isStructural(d.data[d.pos]) && !isSpace(d.data[d.pos]) {
		d.pos++
	}
	if d.pos == start {
		if d.pos >= len(d.data) {
			return "", d.fail("unexpected end of stream", nil)
		}
		return "", d.fail("unexpected "+strconv.QuoteRune(rune(d.data[d.pos])), nil)
	}
	return string(d.data[start:d.pos]), nil
}

// readString reads a quoted string and resolves escapes
func (d *decoder) readString() (string, error) {
	if err := d.expect('"'); err != nil {
		return "", err
	}

	var sb strings.Builder
	for d.pos < len(d.data) {
		c := d.data[d.pos]
		d.pos++
		switch c {
		case '"':
			return sb.String(), nil
		case '\\':
			if d.pos >= len(d.data) {
				return "", d.fail("unterminated escape", nil)
			}
			e := d.data[d.pos]
			d.pos++
			switch {
			case e == 'n':
				sb.WriteByte('\n')
			case e == 'r':
				sb.WriteByte('\r')
			case e == 't':
				sb.WriteByte('\t')
			case escapeByte[e]:
				sb.WriteByte(e)
			default:
				return "", d.fail("invalid escape "+strconv.QuoteRune(rune(e)), nil)
			}
		default:
			sb.WriteByte(c)
		}
	}
	return "", d.fail("unterminated string", nil)
}

func (d *decoder) expect(c byte) error {
	d.skipSpace()
	if d.pos >= len(d.data) {
		return d.fail("expected "+strconv.QuoteRune(rune(c))+", got end of stream", nil)
	}
	if d.data[d.pos] != c {
		return d.fail("expected "+strconv.QuoteRune(rune(c))+", got "+strconv.QuoteRune(rune(d.data[d.pos])), nil)
	}
	d.pos++
	return nil
}

// finish fails if anything but whitespace follows the decoded value
func (d *decoder) finish() error {
	d.skipSpace()
	if d.pos < len(d.data) {
		return d.fail("trailing data", nil)
	}
	return nil
}

func (d *decoder) enter() error {
	d.depth++
	if d.depth > maxDepth {
		return d.fail("nesting too deep", nil)
	}
	return nil
}

func (d *decoder) leave() { d.depth-- }

func (d *decoder) fail(reason string, cause error) error {
	return &MalformedStreamError{
		Type:   d.curType,
		Field:  d.curField,
		Offset: d.pos,
		Reason: reason,
		Err:    cause,
	}
}
