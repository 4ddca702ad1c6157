package common

import (
	"encoding/json"
	"fmt"
)

// --------------------------------------------------------------------------
// Envelope Structure
// --------------------------------------------------------------------------

// Envelope is the single unit exchanged between two peers. Which fields are
// used depends on the type of the envelope.
type Envelope struct {
	// Type of envelope
	EnvType EnvelopeType `json:"env_type"`

	// Call correlation
	ID uint64 `json:"id,omitempty"` // Used for: Call, Result, Error

	// Remote invocation fields
	Method string   `json:"method,omitempty"` // Used for: Call, Notify, Result, Error
	Args   [][]byte `json:"args,omitempty"`   // Used for: Call, Notify (one structured value per argument)

	// Payload carries a structured value or an object stream
	Payload []byte `json:"payload,omitempty"` // Used for: Result, Snapshot, Update

	// Delta sync fields
	Object string `json:"object,omitempty"` // Used for: Snapshot, Update, Remove

	// Peer handshake fields
	Peer  string            `json:"peer,omitempty"`  // Used for: Hello
	Props map[string]string `json:"props,omitempty"` // Used for: Hello

	// Error fields
	Code ErrorCode `json:"code,omitempty"` // Used for: Error
	Err  string    `json:"err,omitempty"`  // Used for: Error
}

// String returns a short description of the envelope for logs
func (e *Envelope) String() string {
	switch e.EnvType {
	case EnvCall, EnvNotify, EnvResult:
		return fmt.Sprintf("%s(id=%d, method=%s)", e.EnvType, e.ID, e.Method)
	case EnvError:
		return fmt.Sprintf("%s(id=%d, method=%s, code=%s, err=%q)", e.EnvType, e.ID, e.Method, e.Code, e.Err)
	case EnvSnapshot, EnvUpdate, EnvRemove:
		return fmt.Sprintf("%s(object=%s, %d bytes)", e.EnvType, e.Object, len(e.Payload))
	case EnvHello:
		return fmt.Sprintf("%s(peer=%s)", e.EnvType, e.Peer)
	default:
		return e.EnvType.String()
	}
}

// --------------------------------------------------------------------------
// Envelope Factory Functions
// --------------------------------------------------------------------------

// NewHello creates the handshake envelope a peer sends right after connecting
func NewHello(peer string, props map[string]string) *Envelope {
	return &Envelope{
		EnvType: EnvHello,
		Peer:    peer,
		Props:   props,
	}
}

// NewCall creates a call that expects a Result or Error envelope with the same id
func NewCall(id uint64, method string, args [][]byte) *Envelope {
	return &Envelope{
		EnvType: EnvCall,
		ID:      id,
		Method:  method,
		Args:    args,
	}
}

// NewNotify creates a call without result. The receiver never answers it.
func NewNotify(method string, args [][]byte) *Envelope {
	return &Envelope{
		EnvType: EnvNotify,
		Method:  method,
		Args:    args,
	}
}

// NewResult creates the answer to a call. payload is empty for methods
// without result.
func NewResult(id uint64, method string, payload []byte) *Envelope {
	return &Envelope{
		EnvType: EnvResult,
		ID:      id,
		Method:  method,
		Payload: payload,
	}
}

// NewError creates a failed answer to a call
func NewError(id uint64, method string, code ErrorCode, err error) *Envelope {
	env := &Envelope{
		EnvType: EnvError,
		ID:      id,
		Method:  method,
		Code:    code,
	}
	if err != nil {
		env.Err = err.Error()
	}
	return env
}

// NewSnapshot creates an envelope carrying the full state of an object
func NewSnapshot(object string, payload []byte) *Envelope {
	return &Envelope{
		EnvType: EnvSnapshot,
		Object:  object,
		Payload: payload,
	}
}

// NewUpdate creates an envelope carrying the changed fields of an object
func NewUpdate(object string, payload []byte) *Envelope {
	return &Envelope{
		EnvType: EnvUpdate,
		Object:  object,
		Payload: payload,
	}
}

// NewRemove creates an envelope announcing that an object is no longer published
func NewRemove(object string) *Envelope {
	return &Envelope{
		EnvType: EnvRemove,
		Object:  object,
	}
}

// --------------------------------------------------------------------------
// Envelope Type Definition
// --------------------------------------------------------------------------

// EnvelopeType represents the type of envelope
type EnvelopeType uint8

const (
	EnvInvalid EnvelopeType = iota
	EnvHello
	EnvCall
	EnvNotify
	EnvResult
	EnvError
	EnvSnapshot
	EnvUpdate
	EnvRemove
)

var envelopeTypeNames = map[EnvelopeType]string{
	EnvHello:    "hello",
	EnvCall:     "call",
	EnvNotify:   "notify",
	EnvResult:   "result",
	EnvError:    "error",
	EnvSnapshot: "snapshot",
	EnvUpdate:   "update",
	EnvRemove:   "remove",
}

// String returns a human-readable name of the envelope type
func (t EnvelopeType) String() string {
	if name, ok := envelopeTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", uint8(t))
}

// MarshalJSON encodes the envelope type as its name
func (t EnvelopeType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON decodes an envelope type from its name
func (t *EnvelopeType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for k, v := range envelopeTypeNames {
		if v == s {
			*t = k
			return nil
		}
	}
	return fmt.Errorf("invalid envelope type: %s", s)
}

// --------------------------------------------------------------------------
// Error Codes
// --------------------------------------------------------------------------

// ErrorCode classifies a failed call so that the caller can rebuild a typed error
type ErrorCode uint8

const (
	CodeNone ErrorCode = iota
	CodeUnknownMethod
	CodeArgumentMismatch
	CodeHandler
	CodeMalformed
)

var errorCodeNames = map[ErrorCode]string{
	CodeNone:             "none",
	CodeUnknownMethod:    "unknown method",
	CodeArgumentMismatch: "argument mismatch",
	CodeHandler:          "handler",
	CodeMalformed:        "malformed",
}

func (c ErrorCode) String() string {
	if name, ok := errorCodeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", uint8(c))
}
