package schema

import (
	"fmt"
	"math"
	"reflect"
)

// --------------------------------------------------------------------------
// Canonical Values
// --------------------------------------------------------------------------

/*
 Values travel between slots and codecs in a canonical form:

   bool                     KindBool
   int64                    signed integer kinds
   uint64                   unsigned integer kinds
   float64                  float kinds
   string                   KindString
   Object or nil            KindObject
   []any                    KindList (elements canonical)
   map[string]any           KindMap (values canonical)

 Normalize converts arbitrary Go values into this form and checks that they
 fit into the declared width. Coerce converts canonical values back into the
 Go type of a field.
*/

// Normalize converts v into the canonical form of t. Integer values that do
// not fit into the declared width fail with a *RangeError, float32 values are
// rounded to float32 precision.
func Normalize(t ValueType, v any) (any, error) {
	switch {
	case t.Kind == KindBool:
		b, ok := v.(bool)
		if !ok {
			return nil, mismatch(t, v)
		}
		return b, nil
	case t.Kind.IsSigned():
		i, err := toInt64(t, v)
		if err != nil {
			return nil, err
		}
		bits := t.Kind.Bits()
		if bits < 64 && (i < -(int64(1)<<(bits-1)) || i > (int64(1)<<(bits-1))-1) {
			return nil, &RangeError{Kind: t.Kind, Value: v}
		}
		return i, nil
	case t.Kind.IsUnsigned():
		u, err := toUint64(t, v)
		if err != nil {
			return nil, err
		}
		bits := t.Kind.Bits()
		if bits < 64 && u > (uint64(1)<<bits)-1 {
			return nil, &RangeError{Kind: t.Kind, Value: v}
		}
		return u, nil
	case t.Kind.IsFloat():
		f, err := toFloat64(t, v)
		if err != nil {
			return nil, err
		}
		if t.Kind == KindFloat32 && !math.IsInf(f, 0) && !math.IsNaN(f) && math.Abs(f) > math.MaxFloat32 {
			return nil, &RangeError{Kind: t.Kind, Value: v}
		}
		if t.Kind == KindFloat32 {
			f = float64(float32(f))
		}
		return f, nil
	case t.Kind == KindString:
		s, ok := v.(string)
		if !ok {
			return nil, mismatch(t, v)
		}
		return s, nil
	case t.Kind == KindObject:
		if v == nil {
			return nil, nil
		}
		o, ok := v.(Object)
		if !ok {
			return nil, mismatch(t, v)
		}
		if IsNil(o) {
			return nil, nil
		}
		if o.TypeName() != t.TypeName {
			return nil, &TypeMismatchError{Want: t, Got: o.TypeName()}
		}
		return o, nil
	case t.Kind == KindList:
		if v == nil {
			return []any(nil), nil
		}
		in, ok := v.([]any)
		if !ok {
			if in, ok = sliceToAny(v); !ok {
				return nil, mismatch(t, v)
			}
		}
		elem := t.ElemType()
		out := make([]any, len(in))
		for i, x := range in {
			n, err := Normalize(elem, x)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case t.Kind == KindMap:
		if v == nil {
			return map[string]any(nil), nil
		}
		in, ok := v.(map[string]any)
		if !ok {
			if in, ok = mapToAny(v); !ok {
				return nil, mismatch(t, v)
			}
		}
		elem := t.ElemType()
		out := make(map[string]any, len(in))
		for k, x := range in {
			n, err := Normalize(elem, x)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	default:
		return nil, fmt.Errorf("schema: cannot normalize value of kind %s", t.Kind)
	}
}

// Zero returns the canonical zero value of t.
func Zero(t ValueType) any {
	switch {
	case t.Kind == KindBool:
		return false
	case t.Kind.IsSigned():
		return int64(0)
	case t.Kind.IsUnsigned():
		return uint64(0)
	case t.Kind.IsFloat():
		return float64(0)
	case t.Kind == KindString:
		return ""
	case t.Kind == KindList:
		return []any(nil)
	case t.Kind == KindMap:
		return map[string]any(nil)
	default:
		return nil
	}
}

// IsNil reports whether o is nil or a typed nil pointer.
func IsNil(o Object) bool {
	if o == nil {
		return true
	}
	rv := reflect.ValueOf(o)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}

// Coerce converts a canonical value into the Go type T. Basic Go types of
// any width are supported as long as the value fits. A nil value yields the
// zero value of T.
func Coerce[T any](v any) (T, error) {
	var zero T
	if v == nil {
		return zero, nil
	}
	if t, ok := v.(T); ok {
		return t, nil
	}

	var out any
	switch any(zero).(type) {
	case int:
		i, err := coerceSigned(v, math.MinInt, math.MaxInt)
		if err != nil {
			return zero, err
		}
		out = int(i)
	case int8:
		i, err := coerceSigned(v, math.MinInt8, math.MaxInt8)
		if err != nil {
			return zero, err
		}
		out = int8(i)
	case int16:
		i, err := coerceSigned(v, math.MinInt16, math.MaxInt16)
		if err != nil {
			return zero, err
		}
		out = int16(i)
	case int32:
		i, err := coerceSigned(v, math.MinInt32, math.MaxInt32)
		if err != nil {
			return zero, err
		}
		out = int32(i)
	case int64:
		i, err := coerceSigned(v, math.MinInt64, math.MaxInt64)
		if err != nil {
			return zero, err
		}
		out = i
	case uint:
		u, err := coerceUnsigned(v, math.MaxUint)
		if err != nil {
			return zero, err
		}
		out = uint(u)
	case uint8:
		u, err := coerceUnsigned(v, math.MaxUint8)
		if err != nil {
			return zero, err
		}
		out = uint8(u)
	case uint16:
		u, err := coerceUnsigned(v, math.MaxUint16)
		if err != nil {
			return zero, err
		}
		out = uint16(u)
	case uint32:
		u, err := coerceUnsigned(v, math.MaxUint32)
		if err != nil {
			return zero, err
		}
		out = uint32(u)
	case uint64:
		u, err := coerceUnsigned(v, math.MaxUint64)
		if err != nil {
			return zero, err
		}
		out = u
	case float32:
		f, err := toFloat64(Float32, v)
		if err != nil {
			return zero, err
		}
		out = float32(f)
	case float64:
		f, err := toFloat64(Float64, v)
		if err != nil {
			return zero, err
		}
		out = f
	default:
		return zero, &TypeMismatchError{Want: ValueType{}, Got: fmt.Sprintf("%T (cannot assign to %T)", v, zero)}
	}
	return out.(T), nil
}

// --------------------------------------------------------------------------
// Helper Functions
// --------------------------------------------------------------------------

// sliceToAny converts a typed slice like []int32 into []any
func sliceToAny(v any) ([]any, bool) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	if rv.Kind() == reflect.Slice && rv.IsNil() {
		return nil, true
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// mapToAny converts a typed string keyed map like map[string]int64 into map[string]any
func mapToAny(v any) (map[string]any, bool) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	if rv.IsNil() {
		return nil, true
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}

func mismatch(t ValueType, v any) error {
	return &TypeMismatchError{Want: t, Got: fmt.Sprintf("%T", v)}
}

func toInt64(t ValueType, v any) (int64, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint, uint8, uint16, uint32, uint64:
		u, _ := toUint64(t, x)
		if u > math.MaxInt64 {
			return 0, &RangeError{Kind: t.Kind, Value: v}
		}
		return int64(u), nil
	default:
		return 0, mismatch(t, v)
	}
}

func toUint64(t ValueType, v any) (uint64, error) {
	switch x := v.(type) {
	case uint:
		return uint64(x), nil
	case uint8:
		return uint64(x), nil
	case uint16:
		return uint64(x), nil
	case uint32:
		return uint64(x), nil
	case uint64:
		return x, nil
	case int, int8, int16, int32, int64:
		i, _ := toInt64(t, x)
		if i < 0 {
			return 0, &RangeError{Kind: t.Kind, Value: v}
		}
		return uint64(i), nil
	default:
		return 0, mismatch(t, v)
	}
}

func toFloat64(t ValueType, v any) (float64, error) {
	switch x := v.(type) {
	case float32:
		return float64(x), nil
	case float64:
		return x, nil
	default:
		return 0, mismatch(t, v)
	}
}

func coerceSigned(v any, min, max int64) (int64, error) {
	i, err := toInt64(Int64, v)
	if err != nil {
		return 0, err
	}
	if i < min || i > max {
		return 0, &RangeError{Kind: KindInt64, Value: v}
	}
	return i, nil
}

func coerceUnsigned(v any, max uint64) (uint64, error) {
	u, err := toUint64(Uint64, v)
	if err != nil {
		return 0, err
	}
	if u > max {
		return 0, &RangeError{Kind: KindUint64, Value: v}
	}
	return u, nil
}
