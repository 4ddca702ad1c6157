package structured

import (
	"errors"
	"fmt"

	"github.com/ValentinKolb/dSync/lib/schema"
)

// ErrMalformed is matched by every *MalformedStreamError.
var ErrMalformed = errors.New("structured: malformed stream")

// CyclicReferenceError is returned when the encoder reaches an object that is
// still on the current encode stack.
type CyclicReferenceError = schema.CyclicReferenceError

// MalformedStreamError is returned when a stream violates the grammar or a
// value does not match the declared kind of its field.
type MalformedStreamError struct {
	Type   string // type being decoded, if known
	Field  string // field being decoded, if known
	Offset int    // byte offset in the stream
	Reason string
	Err    error // underlying cause, may be nil
}

func (e *MalformedStreamError) Error() string {
	msg := fmt.Sprintf("structured: malformed stream at offset %d", e.Offset)
	if e.Type != "" {
		msg += fmt.Sprintf(" (type %q", e.Type)
		if e.Field != "" {
			msg += fmt.Sprintf(", field %q", e.Field)
		}
		msg += ")"
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedStreamError) Is(target error) bool { return target == ErrMalformed }

func (e *MalformedStreamError) Unwrap() error { return e.Err }
