package bincodec

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/ValentinKolb/dSync/lib/schema"
)

type point struct {
	X, Y int32
}

func (p *point) TypeName() string { return "Point" }

type record struct {
	Flag   bool
	Small  int   // declared int8
	Count  uint16
	Big    uint64
	Ratio  float32
	Exact  float64
	Label  string
	Origin *point
	Path   []*point
	Tags   map[string]int64
}

func (r *record) TypeName() string { return "Record" }

// gauge stores a float32 field in a float64
type gauge struct {
	Level float64
}

func (g *gauge) TypeName() string { return "Gauge" }

func gaugeRegistry() *schema.Registry {
	reg := schema.NewRegistry()
	reg.MustRegister(schema.Define("Gauge", func() schema.Object { return &gauge{} }).
		Field("level", schema.Float32, schema.Bind(func(g *gauge) schema.Slot { return schema.Ref(&g.Level) })).
		MustBuild())
	return reg
}

func testRegistry() *schema.Registry {
	reg := schema.NewRegistry()
	reg.MustRegister(
		schema.Define("Point", func() schema.Object { return &point{} }).
			Field("x", schema.Int32, schema.Bind(func(p *point) schema.Slot { return schema.Ref(&p.X) })).
			Field("y", schema.Int32, schema.Bind(func(p *point) schema.Slot { return schema.Ref(&p.Y) })).
			MustBuild(),
		schema.Define("Record", func() schema.Object { return &record{} }).
			Field("flag", schema.Bool, schema.Bind(func(r *record) schema.Slot { return schema.Ref(&r.Flag) })).
			Field("small", schema.Int8, schema.Bind(func(r *record) schema.Slot { return schema.Ref(&r.Small) })).
			Field("count", schema.Uint16, schema.Bind(func(r *record) schema.Slot { return schema.Ref(&r.Count) })).
			Field("big", schema.Uint64, schema.Bind(func(r *record) schema.Slot { return schema.Ref(&r.Big) })).
			Field("ratio", schema.Float32, schema.Bind(func(r *record) schema.Slot { return schema.Ref(&r.Ratio) })).
			Field("exact", schema.Float64, schema.Bind(func(r *record) schema.Slot { return schema.Ref(&r.Exact) })).
			Field("label", schema.String, schema.Bind(func(r *record) schema.Slot { return schema.Ref(&r.Label) })).
			Field("origin", schema.ObjectOf("Point"), schema.Bind(func(r *record) schema.Slot { return schema.Nested(&r.Origin) })).
			Field("path", schema.ListOf(schema.ObjectOf("Point")), schema.Bind(func(r *record) schema.Slot { return schema.ListRef(&r.Path) })).
			Field("tags", schema.MapOf(schema.Int64), schema.Bind(func(r *record) schema.Slot { return schema.MapRef(&r.Tags) })).
			MustBuild(),
	)
	return reg
}

func sampleRecord() *record {
	return &record{
		Flag:   true,
		Small:  -100,
		Count:  512,
		Big:    math.MaxUint64,
		Ratio:  1.5,
		Exact:  math.E,
		Label:  "héllo; {world}",
		Origin: &point{X: -1, Y: 1},
		Path:   []*point{{X: 1}, nil, {Y: 2}},
		Tags:   map[string]int64{"b": 2, "a": -1},
	}
}

func TestPrimitiveLayout(t *testing.T) {
	c := NewCodec(testRegistry())
	data, err := c.Marshal(&point{X: 1, Y: -2})
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{1, 0, 0, 0, 0xfe, 0xff, 0xff, 0xff}
	if !reflect.DeepEqual(data, want) {
		t.Errorf("got % x, want % x", data, want)
	}
}

func TestRoundTrip(t *testing.T) {
	c := NewCodec(testRegistry())
	in := sampleRecord()

	data, err := c.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	out, err := c.Unmarshal(data, "Record")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Errorf("round trip mismatch\nwant %+v\ngot  %+v", in, out)
	}

	tagged, err := c.MarshalTagged(in)
	if err != nil {
		t.Fatal(err)
	}
	out, err = c.UnmarshalTagged(tagged)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Errorf("tagged round trip mismatch")
	}
}

func TestDeterministicMaps(t *testing.T) {
	c := NewCodec(testRegistry())
	first, _ := c.Marshal(sampleRecord())
	for i := 0; i < 20; i++ {
		again, _ := c.Marshal(sampleRecord())
		if !reflect.DeepEqual(first, again) {
			t.Fatal("encoding is not deterministic")
		}
	}
}

func TestTruncatedBuffer(t *testing.T) {
	c := NewCodec(testRegistry())
	data, err := c.Marshal(sampleRecord())
	if err != nil {
		t.Fatal(err)
	}

	// every proper prefix must fail with an underflow
	for n := 0; n < len(data); n++ {
		_, err := c.Unmarshal(data[:n], "Record")
		if !errors.Is(err, ErrUnderflow) {
			t.Fatalf("prefix of %d bytes: expected ErrUnderflow, got %v", n, err)
		}
	}

	// mid-field: the uint16 count starts at offset 2
	_, err = c.Unmarshal(data[:3], "Record")
	var underflow *BufferUnderflowError
	if !errors.As(err, &underflow) || underflow.Type != "Record" || underflow.Field != "count" {
		t.Errorf("expected underflow in Record.count, got %v", err)
	}
	if underflow != nil && (underflow.Need != 2 || underflow.Have != 1) {
		t.Errorf("unexpected need/have %d/%d", underflow.Need, underflow.Have)
	}
}

func TestEncodeRange(t *testing.T) {
	c := NewCodec(testRegistry())
	r := sampleRecord()
	r.Small = 1000

	_, err := c.Marshal(r)
	var rangeErr *RangeError
	if !errors.As(err, &rangeErr) || rangeErr.Field != "small" {
		t.Errorf("expected RangeError for small, got %v", err)
	}
}

func TestInvalidData(t *testing.T) {
	c := NewCodec(testRegistry())
	data, _ := c.Marshal(sampleRecord())

	bad := append([]byte{}, data...)
	bad[0] = 7 // bool byte
	if _, err := c.Unmarshal(bad, "Record"); !errors.Is(err, ErrInvalidData) {
		t.Errorf("expected ErrInvalidData for bool, got %v", err)
	}

	if _, err := c.Unmarshal(append(data, 0), "Record"); !errors.Is(err, ErrInvalidData) {
		t.Errorf("expected ErrInvalidData for trailing byte, got %v", err)
	}

	if _, err := c.Unmarshal(data, "Missing"); !errors.Is(err, schema.ErrUnknownType) {
		t.Errorf("expected ErrUnknownType, got %v", err)
	}

	// huge list count must not allocate
	e := NewEncoder(8)
	e.PutUint32(math.MaxUint32)
	d := NewDecoder(e.Bytes())
	if _, err := c.readCount(d); !errors.Is(err, ErrUnderflow) {
		t.Errorf("expected ErrUnderflow for huge count, got %v", err)
	}
}

func TestFloat32WideField(t *testing.T) {
	c := NewCodec(gaugeRegistry())

	for _, level := range []float64{0.1, 1.0 / 3, -2.5} {
		data, err := c.MarshalTagged(&gauge{Level: level})
		if err != nil {
			t.Fatal(err)
		}
		out, err := c.UnmarshalTagged(data)
		if err != nil {
			t.Fatal(err)
		}
		if got, want := out.(*gauge).Level, float64(float32(level)); got != want {
			t.Errorf("%v: decoded %v, want %v", level, got, want)
		}
	}
}

func TestNilObject(t *testing.T) {
	c := NewCodec(testRegistry())
	var nilRecord *record

	if _, err := c.Marshal(nil); !errors.Is(err, ErrNilObject) {
		t.Errorf("Marshal(nil): expected ErrNilObject, got %v", err)
	}
	if _, err := c.MarshalTagged(nil); !errors.Is(err, ErrNilObject) {
		t.Errorf("MarshalTagged(nil): expected ErrNilObject, got %v", err)
	}
	if _, err := c.MarshalTagged(nilRecord); !errors.Is(err, ErrNilObject) {
		t.Errorf("MarshalTagged(typed nil): expected ErrNilObject, got %v", err)
	}
	if err := c.UnmarshalInto([]byte{0}, nil); !errors.Is(err, ErrNilObject) {
		t.Errorf("UnmarshalInto(nil): expected ErrNilObject, got %v", err)
	}
}

func TestCyclicReference(t *testing.T) {
	reg := schema.NewRegistry()
	rt, err := schema.DefineRecord("Loop", []schema.FieldSpec{{Name: "self", Type: schema.ObjectOf("Loop")}})
	if err != nil {
		t.Fatal(err)
	}
	reg.MustRegister(rt)

	self := rt.New().(*schema.Record)
	self.Set("self", self)

	_, err = NewCodec(reg).Marshal(self)
	if !errors.Is(err, schema.ErrCyclic) {
		t.Errorf("expected ErrCyclic, got %v", err)
	}
}

func BenchmarkMarshal(b *testing.B) {
	c := NewCodec(testRegistry())
	r := sampleRecord()
	e := NewEncoder(256)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e.Reset()
		if err := c.Encode(e, r); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkUnmarshal(b *testing.B) {
	c := NewCodec(testRegistry())
	data, _ := c.Marshal(sampleRecord())
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := c.Unmarshal(data, "Record"); err != nil {
			b.Fatal(err)
		}
	}
}
