package bincodec

import (
	"errors"
	"fmt"

	"github.com/ValentinKolb/dSync/lib/schema"
)

var (
	ErrUnderflow   = errors.New("bincodec: buffer underflow")
	ErrInvalidData = errors.New("bincodec: invalid data")
	ErrNilObject   = errors.New("bincodec: nil object")
)

// RangeError is returned at encode time when a value does not fit into the
// declared width of its field.
type RangeError = schema.RangeError

// BufferUnderflowError is returned when the buffer ends before a value is
// complete.
type BufferUnderflowError struct {
	Type   string
	Field  string
	Need   int
	Have   int
	Offset int
}

func (e *BufferUnderflowError) Error() string {
	where := ""
	if e.Type != "" {
		where = fmt.Sprintf(" reading type %q", e.Type)
		if e.Field != "" {
			where += fmt.Sprintf(" field %q", e.Field)
		}
	}
	return fmt.Sprintf("bincodec: data too short%s at offset %d: need %d bytes, have %d", where, e.Offset, e.Need, e.Have)
}

func (e *BufferUnderflowError) Is(target error) bool { return target == ErrUnderflow }

// InvalidDataError is returned for bytes that cannot be produced by the
// encoder (bad bool or presence bytes, trailing data).
type InvalidDataError struct {
	Type   string
	Field  string
	Offset int
	Reason string
}

func (e *InvalidDataError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("bincodec: invalid data at offset %d: %s", e.Offset, e.Reason)
	}
	return fmt.Sprintf("bincodec: invalid data at offset %d (type %q, field %q): %s", e.Offset, e.Type, e.Field, e.Reason)
}

func (e *InvalidDataError) Is(target error) bool { return target == ErrInvalidData }
