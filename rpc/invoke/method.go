package invoke

import (
	"context"
	"fmt"
	"strings"

	"github.com/ValentinKolb/dSync/lib/schema"
)

// Handler executes a method. args are in canonical form (see schema.Normalize)
// and match the declared parameter types. The result is normalized to the
// declared result type, it is ignored for methods without result.
type Handler func(ctx context.Context, args []any) (any, error)

// Method describes a remotely callable method. The signature must be
// identical on both sides of a connection since the receiver re-dispatches
// by name and positional arguments.
type Method struct {
	Name   string
	Params []schema.ValueType

	// Result is schema.None for methods without result. Such methods are
	// sent as notifications and never wait for an answer.
	Result schema.ValueType

	// Handler is nil for methods that are only called remotely.
	Handler Handler
}

// HasResult reports whether the method returns a value.
func (m *Method) HasResult() bool { return !m.Result.IsNone() }

// Signature renders the method like add(int32, int32) int32.
func (m *Method) Signature() string {
	params := make([]string, len(m.Params))
	for i, p := range m.Params {
		params[i] = p.String()
	}
	sig := fmt.Sprintf("%s(%s)", m.Name, strings.Join(params, ", "))
	if m.HasResult() {
		sig += " " + m.Result.String()
	}
	return sig
}

func (m *Method) validate() error {
	if m.Name == "" || strings.ContainsAny(m.Name, " \t\r\n") {
		return fmt.Errorf("invoke: invalid method name %q", m.Name)
	}
	for i, p := range m.Params {
		if p.IsNone() {
			return fmt.Errorf("invoke: parameter %d of %q has no type", i, m.Name)
		}
		if err := p.Validate(); err != nil {
			return fmt.Errorf("invoke: parameter %d of %q: %w", i, m.Name, err)
		}
	}
	if m.HasResult() {
		if err := m.Result.Validate(); err != nil {
			return fmt.Errorf("invoke: result of %q: %w", m.Name, err)
		}
	}
	return nil
}

// normalizeArgs checks the arity and converts args into canonical form
func (m *Method) normalizeArgs(args []any) ([]any, error) {
	if len(args) != len(m.Params) {
		return nil, &ArgumentMismatchError{
			Method: m.Name,
			Index:  -1,
			Reason: fmt.Sprintf("expected %d arguments, got %d", len(m.Params), len(args)),
		}
	}
	out := make([]any, len(args))
	for i, a := range args {
		n, err := schema.Normalize(m.Params[i], a)
		if err != nil {
			return nil, &ArgumentMismatchError{
				Method: m.Name,
				Index:  i,
				Reason: fmt.Sprintf("expected %s", m.Params[i]),
				Err:    err,
			}
		}
		out[i] = n
	}
	return out, nil
}
