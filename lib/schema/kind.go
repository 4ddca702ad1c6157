package schema

import (
	"fmt"
	"strings"
)

// --------------------------------------------------------------------------
// Field Kinds
// --------------------------------------------------------------------------

// Kind is the semantic kind of a field. It is fixed at registration time and
// must be identical on the encoding and the decoding side.
type Kind uint8

const (
	KindInvalid Kind = iota // No value (e.g. a method without result)

	// Scalars

	KindBool
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindUint8
	KindUint16
	KindUint32
	KindUint64
	KindFloat32
	KindFloat64
	KindString

	// Composites

	KindObject // Nested registered type
	KindList   // Ordered sequence of one element kind
	KindMap    // Mapping from string to one element kind
)

var kindNames = map[Kind]string{
	KindInvalid: "invalid",
	KindBool:    "bool",
	KindInt8:    "int8",
	KindInt16:   "int16",
	KindInt32:   "int32",
	KindInt64:   "int64",
	KindUint8:   "uint8",
	KindUint16:  "uint16",
	KindUint32:  "uint32",
	KindUint64:  "uint64",
	KindFloat32: "float32",
	KindFloat64: "float64",
	KindString:  "string",
	KindObject:  "object",
	KindList:    "list",
	KindMap:     "map",
}

// String returns the string representation of a Kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// IsSigned reports whether k is a signed integer kind.
func (k Kind) IsSigned() bool { return k >= KindInt8 && k <= KindInt64 }

// IsUnsigned reports whether k is an unsigned integer kind.
func (k Kind) IsUnsigned() bool { return k >= KindUint8 && k <= KindUint64 }

// IsFloat reports whether k is a floating point kind.
func (k Kind) IsFloat() bool { return k == KindFloat32 || k == KindFloat64 }

// IsScalar reports whether k is a primitive or string kind.
func (k Kind) IsScalar() bool { return k >= KindBool && k <= KindString }

// IsContainer reports whether k is a list or map kind.
func (k Kind) IsContainer() bool { return k == KindList || k == KindMap }

// Bits returns the width in bits of integer and float kinds, 0 otherwise.
func (k Kind) Bits() int {
	switch k {
	case KindInt8, KindUint8:
		return 8
	case KindInt16, KindUint16:
		return 16
	case KindInt32, KindUint32, KindFloat32:
		return 32
	case KindInt64, KindUint64, KindFloat64:
		return 64
	default:
		return 0
	}
}

// ParseKind converts a scalar kind name (as returned by Kind.String) back to a Kind.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s && k.IsScalar() {
			return k, nil
		}
	}
	return KindInvalid, fmt.Errorf("schema: unknown scalar kind %q", s)
}

// --------------------------------------------------------------------------
// Value Types
// --------------------------------------------------------------------------

// ValueType fully describes the type of a field, a method parameter or a
// method result. TypeName names the registered type for KindObject and for
// lists and maps whose Elem is KindObject.
type ValueType struct {
	Kind     Kind
	TypeName string
	Elem     Kind
}

// Predefined scalar value types
var (
	None    = ValueType{}
	Bool    = ValueType{Kind: KindBool}
	Int8    = ValueType{Kind: KindInt8}
	Int16   = ValueType{Kind: KindInt16}
	Int32   = ValueType{Kind: KindInt32}
	Int64   = ValueType{Kind: KindInt64}
	Uint8   = ValueType{Kind: KindUint8}
	Uint16  = ValueType{Kind: KindUint16}
	Uint32  = ValueType{Kind: KindUint32}
	Uint64  = ValueType{Kind: KindUint64}
	Float32 = ValueType{Kind: KindFloat32}
	Float64 = ValueType{Kind: KindFloat64}
	String  = ValueType{Kind: KindString}
)

// ObjectOf returns the value type of a nested registered type.
func ObjectOf(typeName string) ValueType {
	return ValueType{Kind: KindObject, TypeName: typeName}
}

// ListOf returns the value type of a sequence of elem.
func ListOf(elem ValueType) ValueType {
	return ValueType{Kind: KindList, Elem: elem.Kind, TypeName: elem.TypeName}
}

// MapOf returns the value type of a string keyed mapping to elem.
func MapOf(elem ValueType) ValueType {
	return ValueType{Kind: KindMap, Elem: elem.Kind, TypeName: elem.TypeName}
}

// ElemType returns the value type of list or map elements.
func (t ValueType) ElemType() ValueType {
	if t.Elem == KindObject {
		return ObjectOf(t.TypeName)
	}
	return ValueType{Kind: t.Elem}
}

// IsNone reports whether t describes the absence of a value.
func (t ValueType) IsNone() bool { return t.Kind == KindInvalid }

// String renders t in the notation accepted by ParseValueType
// (e.g. "int32", "Point", "[]string", "map[string]Point").
func (t ValueType) String() string {
	switch {
	case t.Kind == KindInvalid:
		return ""
	case t.Kind == KindObject:
		return t.TypeName
	case t.Kind == KindList:
		return "[]" + t.ElemType().String()
	case t.Kind == KindMap:
		return "map[string]" + t.ElemType().String()
	default:
		return t.Kind.String()
	}
}

// Validate checks that t is well-formed.
func (t ValueType) Validate() error {
	switch {
	case t.Kind.IsScalar():
		return nil
	case t.Kind == KindObject:
		if !validName(t.TypeName) {
			return fmt.Errorf("schema: invalid type name %q", t.TypeName)
		}
		return nil
	case t.Kind.IsContainer():
		if !t.Elem.IsScalar() && t.Elem != KindObject {
			return fmt.Errorf("schema: invalid element kind %s for %s", t.Elem, t.Kind)
		}
		return t.ElemType().Validate()
	default:
		return fmt.Errorf("schema: invalid kind %s", t.Kind)
	}
}

// ParseValueType parses the notation produced by ValueType.String. Any name
// that is not a scalar kind is treated as a registered type name. The empty
// string parses to None.
func ParseValueType(s string) (ValueType, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return None, nil
	case strings.HasPrefix(s, "[]"):
		elem, err := parseElem(s[2:])
		if err != nil {
			return None, err
		}
		return ListOf(elem), nil
	case strings.HasPrefix(s, "map[string]"):
		elem, err := parseElem(s[len("map[string]"):])
		if err != nil {
			return None, err
		}
		return MapOf(elem), nil
	}
	if k, err := ParseKind(s); err == nil {
		return ValueType{Kind: k}, nil
	}
	t := ObjectOf(s)
	return t, t.Validate()
}

// parseElem parses an element type, rejecting nested containers
func parseElem(s string) (ValueType, error) {
	elem, err := ParseValueType(s)
	if err != nil {
		return None, err
	}
	if elem.IsNone() || elem.Kind.IsContainer() {
		return None, fmt.Errorf("schema: invalid element type %q", s)
	}
	return elem, nil
}

// validName reports whether s can be used as a type or field name in a
// structured stream: non-empty and free of structural characters, quotes
// and whitespace.
func validName(s string) bool {
	if s == "" || s == "null" || s == "true" || s == "false" {
		return false
	}
	for _, r := range s {
		switch r {
		case '{', '}', ':', ';', '[', ']', ',', '"', '\\', ' ', '\t', '\n', '\r':
			return false
		}
	}
	return true
}
