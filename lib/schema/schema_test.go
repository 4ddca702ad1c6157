package schema

import (
	"errors"
	"sync"
	"testing"
)

type point struct {
	X int32
	Y int
}

func (p *point) TypeName() string { return "Point" }

type shape struct {
	Name   string
	Origin *point
	Tags   []string
	Attrs  map[string]float64
}

func (s *shape) TypeName() string { return "Shape" }

func pointType() *Type {
	return Define("Point", func() Object { return &point{} }).
		Field("x", Int32, Bind(func(p *point) Slot { return Ref(&p.X) })).
		Field("y", Int16, Bind(func(p *point) Slot { return Ref(&p.Y) })).
		MustBuild()
}

func shapeType() *Type {
	return Define("Shape", func() Object { return &shape{} }).
		Field("name", String, Bind(func(s *shape) Slot { return Ref(&s.Name) })).
		Field("origin", ObjectOf("Point"), Bind(func(s *shape) Slot { return Nested(&s.Origin) })).
		Field("tags", ListOf(String), Bind(func(s *shape) Slot { return ListRef(&s.Tags) })).
		Field("attrs", MapOf(Float64), Bind(func(s *shape) Slot { return MapRef(&s.Attrs) })).
		MustBuild()
}

func TestRegistryRegisterAndCreate(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(pointType(), shapeType())

	obj, err := reg.Create("Point")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, ok := obj.(*point); !ok {
		t.Fatalf("expected *point, got %T", obj)
	}

	if _, err := reg.Create("Missing"); !errors.Is(err, ErrUnknownType) {
		t.Errorf("expected ErrUnknownType, got %v", err)
	}

	err = reg.Register(pointType())
	var dupErr *DuplicateTypeError
	if !errors.As(err, &dupErr) || dupErr.Type != "Point" {
		t.Errorf("expected DuplicateTypeError for Point, got %v", err)
	}

	names := reg.Names()
	if len(names) != 2 || names[0] != "Point" || names[1] != "Shape" {
		t.Errorf("unexpected names %v", names)
	}
}

func TestRegistryFreeze(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(shapeType())

	if err := reg.Freeze(); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected dangling reference to Point, got %v", err)
	}
	if reg.Frozen() {
		t.Fatal("registry must not be frozen after a failed Freeze")
	}

	reg.MustRegister(pointType())
	if err := reg.Freeze(); err != nil {
		t.Fatalf("Freeze failed: %v", err)
	}
	if err := reg.Freeze(); err != nil {
		t.Fatalf("second Freeze failed: %v", err)
	}

	other := Define("Other", func() Object { return NewRecord("Other") }).MustBuild()
	if err := reg.Register(other); !errors.Is(err, ErrRegistryFrozen) {
		t.Errorf("expected ErrRegistryFrozen, got %v", err)
	}
}

func TestRegistryConcurrentLookup(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(pointType(), shapeType())
	if err := reg.Freeze(); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				if _, ok := reg.Lookup("Shape"); !ok {
					t.Error("lookup failed")
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestBuilderErrors(t *testing.T) {
	tests := []struct {
		name  string
		build func() (*Type, error)
	}{
		{"invalid type name", func() (*Type, error) {
			return Define("a b", func() Object { return &point{} }).Build()
		}},
		{"missing factory", func() (*Type, error) {
			return Define("X", nil).Build()
		}},
		{"duplicate field", func() (*Type, error) {
			acc := Bind(func(p *point) Slot { return Ref(&p.X) })
			return Define("X", func() Object { return &point{} }).
				Field("x", Int32, acc).Field("x", Int32, acc).Build()
		}},
		{"structural field name", func() (*Type, error) {
			return Define("X", func() Object { return &point{} }).
				Field("x;y", Int32, Bind(func(p *point) Slot { return Ref(&p.X) })).Build()
		}},
		{"nested container", func() (*Type, error) {
			return Define("X", func() Object { return &point{} }).
				Field("x", ValueType{Kind: KindList, Elem: KindList}, Bind(func(p *point) Slot { return Ref(&p.X) })).Build()
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.build(); err == nil {
				t.Error("expected declaration error")
			}
		})
	}
}

func TestFieldGetSet(t *testing.T) {
	pt := pointType()
	p := &point{X: 10, Y: 20}

	x, _ := pt.Field("x")
	v, err := x.Get(p)
	if err != nil || v != int64(10) {
		t.Fatalf("Get x = %v, %v", v, err)
	}

	if err := x.Set(p, int64(25)); err != nil || p.X != 25 {
		t.Fatalf("Set x failed: %v (x=%d)", err, p.X)
	}

	// y is an int in Go but declared as int16
	y, _ := pt.Field("y")
	p.Y = 1 << 20
	_, err = y.Get(p)
	var rangeErr *RangeError
	if !errors.As(err, &rangeErr) || rangeErr.Field != "y" {
		t.Fatalf("expected RangeError for y, got %v", err)
	}

	if err := x.Set(p, "nope"); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("expected ErrTypeMismatch, got %v", err)
	}
}

func TestContainerSlots(t *testing.T) {
	st := shapeType()
	s := &shape{}

	tags, _ := st.Field("tags")
	if err := tags.Set(s, []any{"a", "b"}); err != nil {
		t.Fatal(err)
	}
	if len(s.Tags) != 2 || s.Tags[1] != "b" {
		t.Errorf("unexpected tags %v", s.Tags)
	}

	attrs, _ := st.Field("attrs")
	if err := attrs.Set(s, map[string]any{"w": 1.5}); err != nil {
		t.Fatal(err)
	}
	if s.Attrs["w"] != 1.5 {
		t.Errorf("unexpected attrs %v", s.Attrs)
	}

	origin, _ := st.Field("origin")
	v, err := origin.Get(s)
	if err != nil || v != nil {
		t.Fatalf("expected nil origin, got %v, %v", v, err)
	}
	if err := origin.Set(s, &point{X: 1}); err != nil || s.Origin == nil || s.Origin.X != 1 {
		t.Fatalf("Set origin failed: %v", err)
	}
	if err := origin.Set(s, NewRecord("Other")); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("expected ErrTypeMismatch for foreign object, got %v", err)
	}
}

func TestParseValueType(t *testing.T) {
	tests := []struct {
		in      string
		want    ValueType
		wantErr bool
	}{
		{"int32", Int32, false},
		{"string", String, false},
		{"Point", ObjectOf("Point"), false},
		{"[]uint8", ListOf(Uint8), false},
		{"map[string]Point", MapOf(ObjectOf("Point")), false},
		{"", None, false},
		{"[][]int32", None, true},
		{"map[string]{", None, true},
	}

	for _, tt := range tests {
		got, err := ParseValueType(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseValueType(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseValueType(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
		if !tt.wantErr && got.String() != tt.in {
			t.Errorf("String() = %q, want %q", got.String(), tt.in)
		}
	}
}

func TestNormalizeRanges(t *testing.T) {
	tests := []struct {
		name string
		t    ValueType
		v    any
		ok   bool
	}{
		{"int8 max", Int8, 127, true},
		{"int8 overflow", Int8, 128, false},
		{"int8 min", Int8, int64(-128), true},
		{"int8 underflow", Int8, -129, false},
		{"uint8 max", Uint8, uint16(255), true},
		{"uint8 overflow", Uint8, 256, false},
		{"uint negative", Uint32, -1, false},
		{"int64 from big uint", Int64, uint64(1 << 63), false},
		{"float32 overflow", Float32, 1e300, false},
		{"float32 ok", Float32, 1.5, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(tt.t, tt.v)
			if tt.ok && err != nil {
				t.Errorf("unexpected error %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrRange) {
				t.Errorf("expected ErrRange, got %v", err)
			}
		})
	}
}

func TestNormalizeFloat32Rounding(t *testing.T) {
	tests := []struct {
		name string
		t    ValueType
		v    any
		want float64
	}{
		{"float32 from float64", Float32, 0.1, float64(float32(0.1))},
		{"float32 from float32", Float32, float32(0.1), float64(float32(0.1))},
		{"float32 exact", Float32, 1.5, 1.5},
		{"float64 untouched", Float64, 0.1, 0.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.t, tt.v)
			if err != nil {
				t.Fatalf("unexpected error %v", err)
			}
			if got.(float64) != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCoerce(t *testing.T) {
	if v, err := Coerce[int16](int64(-5)); err != nil || v != -5 {
		t.Errorf("Coerce[int16] = %v, %v", v, err)
	}
	if _, err := Coerce[uint8](uint64(300)); !errors.Is(err, ErrRange) {
		t.Errorf("expected ErrRange, got %v", err)
	}
	if v, err := Coerce[float32](1.25); err != nil || v != 1.25 {
		t.Errorf("Coerce[float32] = %v, %v", v, err)
	}
	if v, err := Coerce[*point](nil); err != nil || v != nil {
		t.Errorf("Coerce[*point](nil) = %v, %v", v, err)
	}
	if _, err := Coerce[string](int64(1)); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("expected ErrTypeMismatch, got %v", err)
	}
}

func TestDefineRecord(t *testing.T) {
	rt, err := DefineRecord("Item", []FieldSpec{
		{Name: "id", Type: Uint32},
		{Name: "label", Type: String},
		{Name: "tags", Type: ListOf(String)},
	})
	if err != nil {
		t.Fatal(err)
	}

	rec := rt.New().(*Record)
	if rec.TypeName() != "Item" || rec.Get("label") != "" || rec.Get("id") != uint64(0) {
		t.Fatalf("unexpected defaults %+v", rec.values)
	}

	id, _ := rt.Field("id")
	if err := id.Set(rec, 7); err != nil {
		t.Fatal(err)
	}
	if rec.Get("id") != uint64(7) {
		t.Errorf("expected canonical uint64, got %T", rec.Get("id"))
	}

	rec.Set("id", int64(-1))
	if _, err := id.Get(rec); !errors.Is(err, ErrRange) {
		t.Errorf("expected ErrRange, got %v", err)
	}
}
