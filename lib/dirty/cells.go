package dirty

import (
	"maps"
	"slices"
	"sort"

	"github.com/ValentinKolb/dSync/lib/schema"
)

// --------------------------------------------------------------------------
// Value Cell
// --------------------------------------------------------------------------

// Value is a change tracking cell for a single comparable value. The zero
// value is a clean cell holding the zero value of T.
//
// Set marks the cell dirty only if the new value differs from the current
// one (==). Floats are compared exactly, so NaN never equals itself and a
// value that oscillates by an epsilon marks the cell dirty on every change.
type Value[T comparable] struct {
	v     T
	dirty bool
}

// Of returns a clean cell holding v.
func Of[T comparable](v T) Value[T] {
	return Value[T]{v: v}
}

// Get returns the current value. Reading never changes the dirty flag.
func (c *Value[T]) Get() T { return c.v }

// Set assigns v and reports whether the value changed.
func (c *Value[T]) Set(v T) bool {
	if c.v == v {
		return false
	}
	c.v = v
	c.dirty = true
	return true
}

func (c *Value[T]) IsDirty() bool { return c.dirty }
func (c *Value[T]) MarkClean()    { c.dirty = false }

// Load implements schema.Slot.
func (c *Value[T]) Load() any { return c.v }

// Store implements schema.Slot.
func (c *Value[T]) Store(v any) error {
	x, err := schema.Coerce[T](v)
	if err != nil {
		return err
	}
	c.Set(x)
	return nil
}

// --------------------------------------------------------------------------
// List Cell
// --------------------------------------------------------------------------

// List is a change tracking cell for an ordered sequence. A nil and an empty
// list are equal.
type List[T comparable] struct {
	items []T
	dirty bool
}

// ListOf returns a clean cell holding a copy of items.
func ListOf[T comparable](items ...T) List[T] {
	return List[T]{items: slices.Clone(items)}
}

// Get returns a copy of the items.
func (c *List[T]) Get() []T { return slices.Clone(c.items) }

// Len returns the number of items.
func (c *List[T]) Len() int { return len(c.items) }

// At returns the item at index i.
func (c *List[T]) At(i int) T { return c.items[i] }

// All iterates over the items without copying them.
func (c *List[T]) All(yield func(int, T) bool) {
	for i, x := range c.items {
		if !yield(i, x) {
			return
		}
	}
}

// Set replaces all items and reports whether the list changed.
func (c *List[T]) Set(items []T) bool {
	if slices.Equal(c.items, items) {
		return false
	}
	c.items = slices.Clone(items)
	c.dirty = true
	return true
}

// SetAt replaces the item at index i and reports whether it changed.
func (c *List[T]) SetAt(i int, v T) bool {
	if c.items[i] == v {
		return false
	}
	c.items[i] = v
	c.dirty = true
	return true
}

// Append adds items to the end of the list.
func (c *List[T]) Append(items ...T) {
	if len(items) == 0 {
		return
	}
	c.items = append(c.items, items...)
	c.dirty = true
}

// Clear removes all items.
func (c *List[T]) Clear() {
	if len(c.items) == 0 {
		return
	}
	c.items = nil
	c.dirty = true
}

func (c *List[T]) IsDirty() bool { return c.dirty }
func (c *List[T]) MarkClean()    { c.dirty = false }

// Load implements schema.Slot.
func (c *List[T]) Load() any { return schema.ListToAny(c.items) }

// Store implements schema.Slot.
func (c *List[T]) Store(v any) error {
	items, err := schema.ListFromAny[T](v)
	if err != nil {
		return err
	}
	c.Set(items)
	return nil
}

// --------------------------------------------------------------------------
// Map Cell
// --------------------------------------------------------------------------

// Map is a change tracking cell for a string keyed mapping. A nil and an
// empty map are equal.
type Map[T comparable] struct {
	m     map[string]T
	dirty bool
}

// MapOf returns a clean cell holding a copy of m.
func MapOf[T comparable](m map[string]T) Map[T] {
	return Map[T]{m: maps.Clone(m)}
}

// Get returns the value stored under key.
func (c *Map[T]) Get(key string) (T, bool) {
	v, ok := c.m[key]
	return v, ok
}

// Put stores v under key and reports whether the map changed.
func (c *Map[T]) Put(key string, v T) bool {
	if old, ok := c.m[key]; ok && old == v {
		return false
	}
	if c.m == nil {
		c.m = map[string]T{}
	}
	c.m[key] = v
	c.dirty = true
	return true
}

// Delete removes key and reports whether it was present.
func (c *Map[T]) Delete(key string) bool {
	if _, ok := c.m[key]; !ok {
		return false
	}
	delete(c.m, key)
	c.dirty = true
	return true
}

// Set replaces the whole mapping and reports whether it changed.
func (c *Map[T]) Set(m map[string]T) bool {
	if maps.Equal(c.m, m) {
		return false
	}
	c.m = maps.Clone(m)
	c.dirty = true
	return true
}

// Keys returns the keys in sorted order.
func (c *Map[T]) Keys() []string {
	keys := make([]string, 0, len(c.m))
	for k := range c.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of entries.
func (c *Map[T]) Len() int { return len(c.m) }

// All returns a copy of the mapping.
func (c *Map[T]) All() map[string]T { return maps.Clone(c.m) }

func (c *Map[T]) IsDirty() bool { return c.dirty }
func (c *Map[T]) MarkClean()    { c.dirty = false }

// Load implements schema.Slot.
func (c *Map[T]) Load() any { return schema.MapToAny(c.m) }

// Store implements schema.Slot.
func (c *Map[T]) Store(v any) error {
	m, err := schema.MapFromAny[T](v)
	if err != nil {
		return err
	}
	c.Set(m)
	return nil
}
