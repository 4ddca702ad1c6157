package schema

import (
	"errors"
	"fmt"
)

// --------------------------------------------------------------------------
// Sentinel Errors (use with errors.Is)
// --------------------------------------------------------------------------

var (
	ErrDuplicateType  = errors.New("schema: duplicate type")
	ErrUnknownType    = errors.New("schema: unknown type")
	ErrRegistryFrozen = errors.New("schema: registry is frozen")
	ErrRange          = errors.New("schema: value out of range")
	ErrTypeMismatch   = errors.New("schema: type mismatch")
	ErrCyclic         = errors.New("schema: cyclic reference")
)

// --------------------------------------------------------------------------
// Error Types (use with errors.As)
// --------------------------------------------------------------------------

// DuplicateTypeError is returned when a type name is registered twice.
type DuplicateTypeError struct {
	Type string
}

func (e *DuplicateTypeError) Error() string {
	return fmt.Sprintf("schema: type %q is already registered", e.Type)
}

func (e *DuplicateTypeError) Is(target error) bool { return target == ErrDuplicateType }

// UnknownTypeError is returned when a type name is not registered.
type UnknownTypeError struct {
	Type string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("schema: type %q is not registered", e.Type)
}

func (e *UnknownTypeError) Is(target error) bool { return target == ErrUnknownType }

// RangeError is returned when a value does not fit into the declared width
// of its field. Values are never truncated silently.
type RangeError struct {
	Field string
	Kind  Kind
	Value any
}

func (e *RangeError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("schema: value %v is out of range for %s", e.Value, e.Kind)
	}
	return fmt.Sprintf("schema: value %v of field %q is out of range for %s", e.Value, e.Field, e.Kind)
}

func (e *RangeError) Is(target error) bool { return target == ErrRange }

// TypeMismatchError is returned when a Go value cannot represent the
// declared value type.
type TypeMismatchError struct {
	Field string
	Want  ValueType
	Got   string
}

func (e *TypeMismatchError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("schema: expected %s, got %s", e.Want, e.Got)
	}
	return fmt.Sprintf("schema: field %q expects %s, got %s", e.Field, e.Want, e.Got)
}

func (e *TypeMismatchError) Is(target error) bool { return target == ErrTypeMismatch }

// CyclicReferenceError is returned by the codecs when an object is reached
// again while it is still being encoded.
type CyclicReferenceError struct {
	Type  string
	Field string
}

func (e *CyclicReferenceError) Error() string {
	return fmt.Sprintf("schema: cyclic reference to an object of type %q via field %q", e.Type, e.Field)
}

func (e *CyclicReferenceError) Is(target error) bool { return target == ErrCyclic }

// withField attaches a field name to range and mismatch errors that were
// created without one
func withField(err error, field string) error {
	var rangeErr *RangeError
	if errors.As(err, &rangeErr) && rangeErr.Field == "" {
		rangeErr.Field = field
		return rangeErr
	}
	var mismatchErr *TypeMismatchError
	if errors.As(err, &mismatchErr) && mismatchErr.Field == "" {
		mismatchErr.Field = field
		return mismatchErr
	}
	return err
}
