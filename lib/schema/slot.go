package schema

import (
	"fmt"
)

// --------------------------------------------------------------------------
// Slots for plain Go fields (no change tracking)
// --------------------------------------------------------------------------

// Ref binds a plain scalar, string or object pointer field.
func Ref[T any](p *T) Slot {
	return ref[T]{p: p}
}

type ref[T any] struct {
	p *T
}

func (r ref[T]) Load() any { return *r.p }

func (r ref[T]) Store(v any) error {
	x, err := Coerce[T](v)
	if err != nil {
		return err
	}
	*r.p = x
	return nil
}

// ListRef binds a plain slice field.
func ListRef[T any](p *[]T) Slot {
	return listRef[T]{p: p}
}

type listRef[T any] struct {
	p *[]T
}

func (r listRef[T]) Load() any {
	return ListToAny(*r.p)
}

func (r listRef[T]) Store(v any) error {
	items, err := ListFromAny[T](v)
	if err != nil {
		return err
	}
	*r.p = items
	return nil
}

// MapRef binds a plain string keyed map field.
func MapRef[T any](p *map[string]T) Slot {
	return mapRef[T]{p: p}
}

type mapRef[T any] struct {
	p *map[string]T
}

func (r mapRef[T]) Load() any {
	return MapToAny(*r.p)
}

func (r mapRef[T]) Store(v any) error {
	m, err := MapFromAny[T](v)
	if err != nil {
		return err
	}
	*r.p = m
	return nil
}

// --------------------------------------------------------------------------
// Conversion Helpers (also used by the dirty cells)
// --------------------------------------------------------------------------

// ListToAny converts a typed slice into its []any form.
func ListToAny[T any](items []T) []any {
	if items == nil {
		return nil
	}
	out := make([]any, len(items))
	for i, x := range items {
		out[i] = x
	}
	return out
}

// ListFromAny converts a canonical list into a typed slice.
func ListFromAny[T any](v any) ([]T, error) {
	if v == nil {
		return nil, nil
	}
	in, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected list, got %T", ErrTypeMismatch, v)
	}
	if in == nil {
		return nil, nil
	}
	out := make([]T, len(in))
	for i, x := range in {
		item, err := Coerce[T](x)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = item
	}
	return out, nil
}

// MapToAny converts a typed map into its map[string]any form.
func MapToAny[T any](m map[string]T) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, x := range m {
		out[k] = x
	}
	return out
}

// MapFromAny converts a canonical map into a typed map.
func MapFromAny[T any](v any) (map[string]T, error) {
	if v == nil {
		return nil, nil
	}
	in, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected map, got %T", ErrTypeMismatch, v)
	}
	if in == nil {
		return nil, nil
	}
	out := make(map[string]T, len(in))
	for k, x := range in {
		item, err := Coerce[T](x)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		out[k] = item
	}
	return out, nil
}

// Nested binds a plain pointer field holding a nested registered object.
func Nested[O Object](p *O) Slot {
	return ref[O]{p: p}
}
