package schema

import (
	"fmt"
)

// --------------------------------------------------------------------------
// Interface Definitions
// --------------------------------------------------------------------------

// Object is implemented by every registered type. Registered types must be
// pointer types so that the codecs can detect cycles by identity.
type Object interface {
	// TypeName returns the unique name the type is registered under.
	// It is used as the discriminator in structured streams.
	TypeName() string
}

// Slot binds one field of one object instance. Load returns the current
// value (any Go representation Normalize understands), Store assigns a
// canonical value.
type Slot interface {
	Load() any
	Store(v any) error
}

// Tracked is implemented by slots that record whether their value changed
// since the last MarkClean.
type Tracked interface {
	IsDirty() bool
	MarkClean()
}

// Accessor returns the slot of a field for the given object.
type Accessor func(o Object) Slot

// Bind adapts a typed accessor to an Accessor. The returned accessor panics
// if it is called with an object of another type.
func Bind[O Object](fn func(o O) Slot) Accessor {
	return func(o Object) Slot {
		return fn(o.(O))
	}
}

// --------------------------------------------------------------------------
// Field Descriptor
// --------------------------------------------------------------------------

// Field describes one field of a registered type.
type Field struct {
	Name  string
	Type  ValueType
	Index int

	accessor Accessor
}

// Slot returns the slot bound to this field of o.
func (f *Field) Slot(o Object) Slot {
	return f.accessor(o)
}

// Get returns the canonical value of this field of o.
func (f *Field) Get(o Object) (any, error) {
	v, err := Normalize(f.Type, f.accessor(o).Load())
	if err != nil {
		return nil, withField(err, f.Name)
	}
	return v, nil
}

// Set assigns v to this field of o after normalizing it.
func (f *Field) Set(o Object, v any) error {
	n, err := Normalize(f.Type, v)
	if err != nil {
		return withField(err, f.Name)
	}
	if err := f.accessor(o).Store(n); err != nil {
		return withField(err, f.Name)
	}
	return nil
}

// --------------------------------------------------------------------------
// Type Descriptor
// --------------------------------------------------------------------------

// Type describes a registered type: its name, a factory for default valued
// instances and the ordered list of its fields. A Type is immutable once built.
type Type struct {
	name    string
	factory func() Object
	fields  []*Field
	byName  map[string]*Field
}

// Name returns the registered type name.
func (t *Type) Name() string { return t.name }

// Fields returns the fields in declaration order. The slice must not be modified.
func (t *Type) Fields() []*Field { return t.fields }

// Field returns the field with the given name.
func (t *Type) Field(name string) (*Field, bool) {
	f, ok := t.byName[name]
	return f, ok
}

// New creates a fresh, default valued instance.
func (t *Type) New() Object {
	return t.factory()
}

// --------------------------------------------------------------------------
// Builder
// --------------------------------------------------------------------------

// Builder declares a type field by field. Errors are collected and reported
// by Build.
//
// Usage:
//
//	pointType := schema.Define("Point", func() schema.Object { return &Point{} }).
//		Field("x", schema.Int32, schema.Bind(func(p *Point) schema.Slot { return &p.X })).
//		Field("y", schema.Int32, schema.Bind(func(p *Point) schema.Slot { return &p.Y })).
//		MustBuild()
type Builder struct {
	t   *Type
	err error
}

// Define starts the declaration of a type.
func Define(name string, factory func() Object) *Builder {
	b := &Builder{t: &Type{name: name, factory: factory, byName: map[string]*Field{}}}
	if !validName(name) {
		b.err = fmt.Errorf("schema: invalid type name %q", name)
	} else if factory == nil {
		b.err = fmt.Errorf("schema: type %q has no factory", name)
	}
	return b
}

// Field appends a field. The order of calls defines the wire order.
func (b *Builder) Field(name string, t ValueType, accessor Accessor) *Builder {
	if b.err != nil {
		return b
	}
	switch {
	case !validName(name):
		b.err = fmt.Errorf("schema: type %q: invalid field name %q", b.t.name, name)
	case accessor == nil:
		b.err = fmt.Errorf("schema: type %q: field %q has no accessor", b.t.name, name)
	case b.t.byName[name] != nil:
		b.err = fmt.Errorf("schema: type %q: duplicate field %q", b.t.name, name)
	}
	if b.err != nil {
		return b
	}
	if err := t.Validate(); err != nil {
		b.err = fmt.Errorf("schema: type %q: field %q: %w", b.t.name, name, err)
		return b
	}

	f := &Field{Name: name, Type: t, Index: len(b.t.fields), accessor: accessor}
	b.t.fields = append(b.t.fields, f)
	b.t.byName[name] = f
	return b
}

// Build returns the declared type or the first declaration error.
func (b *Builder) Build() (*Type, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.t, nil
}

// MustBuild is like Build but panics on declaration errors. It is meant for
// package level type declarations.
func (b *Builder) MustBuild() *Type {
	t, err := b.Build()
	if err != nil {
		panic(err)
	}
	return t
}
