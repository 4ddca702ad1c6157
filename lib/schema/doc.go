// Package schema provides the type registry shared by the codecs, the dirty
// tracking layer and the remote invocation layer.
//
// A registered type is described by an explicit, ordered list of field
// descriptors instead of language level reflection. Each field has a name,
// a value type (kind plus, for nested objects and containers, the element
// type) and an accessor that binds the field of a concrete instance to a
// Slot.
//
// Key Components:
//
//   - Kind / ValueType: The semantic field kinds (bool, sized integers,
//     floats, string, nested object, list, string keyed map).
//
//   - Type / Builder: Immutable type descriptors created with Define(...).Field(...).Build().
//
//   - Registry: Maps type names to descriptors. Registration is serialized
//     by a mutex, lookups are lock free. Freeze validates object references
//     and closes the registry for further registrations.
//
//   - Slot: Binds a field of an instance. Ref, Nested, ListRef and MapRef
//     bind plain Go fields, the dirty package provides change tracking slots.
//
//   - Record: Map backed objects for types declared at runtime (see the
//     yamlschema package).
//
// Values travel between slots and codecs in canonical form (see Normalize).
// A Go field may be wider than its declared kind. Narrowing is checked and a
// value that does not fit fails with a *RangeError instead of being truncated.
package schema
