package schema

// --------------------------------------------------------------------------
// Dynamic Records
// --------------------------------------------------------------------------

// Record is a map backed object for types that are declared at runtime
// (e.g. from a schema file) instead of by a Go struct. Values are kept in
// canonical form.
type Record struct {
	typeName string
	values   map[string]any
}

// FieldSpec declares one field of a record type.
type FieldSpec struct {
	Name string
	Type ValueType
}

// NewRecord creates an empty record of the given type name. Fields that are
// never set load as nil.
func NewRecord(typeName string) *Record {
	return &Record{typeName: typeName, values: map[string]any{}}
}

func (r *Record) TypeName() string { return r.typeName }

// Get returns the value stored under name.
func (r *Record) Get(name string) any {
	return r.values[name]
}

// Set stores v under name without validation. Validation happens when the
// field is read through its descriptor.
func (r *Record) Set(name string, v any) {
	r.values[name] = v
}

// DefineRecord builds a record type. Every instance created by the type is
// initialized with the zero value of each field.
func DefineRecord(name string, fields []FieldSpec) (*Type, error) {
	factory := func() Object {
		rec := NewRecord(name)
		for _, f := range fields {
			rec.values[f.Name] = Zero(f.Type)
		}
		return rec
	}

	b := Define(name, factory)
	for _, f := range fields {
		b.Field(f.Name, f.Type, recordAccessor(f.Name))
	}
	return b.Build()
}

func recordAccessor(name string) Accessor {
	return func(o Object) Slot {
		return &recordSlot{rec: o.(*Record), name: name}
	}
}

// recordSlot binds one key of a record
type recordSlot struct {
	rec  *Record
	name string
}

func (s *recordSlot) Load() any { return s.rec.values[s.name] }

func (s *recordSlot) Store(v any) error {
	s.rec.values[s.name] = v
	return nil
}
