package dirty_test

import (
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/ValentinKolb/dSync/lib/codec/structured"
	"github.com/ValentinKolb/dSync/lib/demo"
	"github.com/ValentinKolb/dSync/lib/dirty"
	"github.com/ValentinKolb/dSync/lib/schema"
)

func newTracker(t testing.TB) *dirty.Tracker {
	t.Helper()
	reg, err := demo.NewRegistry()
	if err != nil {
		t.Fatalf("demo registry: %v", err)
	}
	return dirty.NewTracker(structured.NewCodec(reg))
}

// sampleBoard returns a clean board with some state
func sampleBoard(tr *dirty.Tracker) *demo.Board {
	b := demo.NewBoard("ada", "bob", "cy")
	for i := 0; i < 5; i++ {
		b.Advance()
	}
	b.Players.At(2).Ready.Set(true)
	tr.MarkClean(b)
	return b
}

// --------------------------------------------------------------------------
// Cells
// --------------------------------------------------------------------------

func TestValueCell(t *testing.T) {
	c := dirty.Of[int32](7)
	if c.IsDirty() {
		t.Fatal("new cell must be clean")
	}
	if c.Set(7) || c.IsDirty() {
		t.Error("writing an equal value must not mark the cell dirty")
	}
	_ = c.Get()
	if c.IsDirty() {
		t.Error("reading must not mark the cell dirty")
	}
	if !c.Set(8) || !c.IsDirty() {
		t.Error("writing a new value must mark the cell dirty")
	}
	c.MarkClean()
	if c.IsDirty() || c.Get() != 8 {
		t.Error("mark clean must keep the value and clear the flag")
	}

	if err := c.Store(int64(1) << 40); err == nil {
		t.Error("expected range error for a value wider than int32")
	}
	if c.IsDirty() {
		t.Error("a failed store must not mark the cell dirty")
	}
}

func TestFloatCellComparesExactly(t *testing.T) {
	c := dirty.Of(0.1)
	if c.Set(0.1) {
		t.Error("equal float marked dirty")
	}
	if !c.Set(0.1 + 1e-17 + 1e-16) {
		t.Error("float differing in the last bits must mark the cell dirty")
	}

	n := dirty.Of(math.NaN())
	if !n.Set(math.NaN()) {
		t.Error("NaN never equals NaN, the write must mark the cell dirty")
	}
}

func TestListCell(t *testing.T) {
	l := dirty.ListOf[int32](1, 2, 3)

	if l.Set([]int32{1, 2, 3}) || l.IsDirty() {
		t.Error("equal list marked dirty")
	}
	if l.SetAt(1, 2) {
		t.Error("equal item marked dirty")
	}
	if !l.SetAt(1, 5) || !l.IsDirty() {
		t.Error("changed item not marked dirty")
	}
	l.MarkClean()

	l.Append()
	if l.IsDirty() {
		t.Error("appending nothing marked the list dirty")
	}
	l.Append(4)
	if !reflect.DeepEqual(l.Get(), []int32{1, 5, 3, 4}) || !l.IsDirty() {
		t.Errorf("unexpected list %v", l.Get())
	}

	got := l.Get()
	got[0] = 99
	if l.At(0) != 1 {
		t.Error("Get must return a copy")
	}

	l.Clear()
	l.MarkClean()
	if l.Set(nil) || l.Set([]int32{}) {
		t.Error("nil and empty lists must be equal")
	}
}

func TestMapCell(t *testing.T) {
	m := dirty.MapOf(map[string]int64{"a": 1})

	if m.Put("a", 1) {
		t.Error("equal value marked dirty")
	}
	if !m.Put("b", 2) || !m.IsDirty() {
		t.Error("new key not marked dirty")
	}
	m.MarkClean()

	if m.Delete("missing") || m.IsDirty() {
		t.Error("deleting a missing key marked the map dirty")
	}
	if !m.Delete("a") || !m.IsDirty() {
		t.Error("deleting a key did not mark the map dirty")
	}
	if !reflect.DeepEqual(m.Keys(), []string{"b"}) {
		t.Errorf("unexpected keys %v", m.Keys())
	}
	m.MarkClean()
	if m.Set(map[string]int64{"b": 2}) {
		t.Error("equal map marked dirty")
	}
}

// --------------------------------------------------------------------------
// Tracker
// --------------------------------------------------------------------------

func TestPointScenario(t *testing.T) {
	tr := newTracker(t)

	p := demo.NewPoint(10, 20)
	original, err := tr.Copy(p)
	if err != nil {
		t.Fatal(err)
	}

	p.Y.Set(25)
	data, err := tr.SerializeDirty(p)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "Point{y:25;}" {
		t.Errorf("expected only y in the stream, got %s", data)
	}

	if err := tr.Apply(original, data); err != nil {
		t.Fatal(err)
	}
	o := original.(*demo.Point)
	if o.X.Get() != 10 || o.Y.Get() != 25 {
		t.Errorf("expected (10, 25), got %s", o)
	}
}

func TestRoundTrip(t *testing.T) {
	tr := newTracker(t)
	b := sampleBoard(tr)
	b.Ratio.Set(math.NaN())

	data, err := tr.SerializeFull(b)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := tr.Codec().Unmarshal(data)
	if err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	if !tr.Equal(b, decoded) {
		t.Errorf("decoded board differs from the original\n%s", data)
	}
}

func TestSerializeDirty(t *testing.T) {
	tr := newTracker(t)

	tests := []struct {
		name   string
		mutate func(b *demo.Board)
		fields []string
		stream string // substring expected in the stream
		absent string // substring that must not be in the stream
	}{
		{
			name:   "scalar",
			mutate: func(b *demo.Board) { b.Phase.Set("paused") },
			fields: []string{"phase"},
			stream: `Board{phase:"paused";}`,
		},
		{
			name:   "map",
			mutate: func(b *demo.Board) { b.Scores.Put("dan", 3) },
			fields: []string{"scores"},
			stream: `"dan":3;`,
			absent: "players",
		},
		{
			name:   "nested in list",
			mutate: func(b *demo.Board) { b.Players.At(0).Ready.Set(true) },
			fields: []string{"players"},
			stream: "players:[",
			absent: "round",
		},
		{
			name: "two fields",
			mutate: func(b *demo.Board) {
				b.Round.Set(b.Round.Get() + 1)
				b.Ratio.Set(0.5)
			},
			fields: []string{"round", "ratio"},
			stream: "ratio:0.5;",
			absent: "phase",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := sampleBoard(tr)
			if data, err := tr.SerializeDirty(b); err != nil || data != nil {
				t.Fatalf("clean board must serialize to nothing, got %q (%v)", data, err)
			}

			tt.mutate(b)
			if !tr.IsDirty(b) {
				t.Fatal("board not dirty after mutation")
			}
			if got := tr.DirtyFields(b); !reflect.DeepEqual(got, tt.fields) {
				t.Errorf("expected dirty fields %v, got %v", tt.fields, got)
			}

			data, err := tr.SerializeDirty(b)
			if err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(string(data), tt.stream) {
				t.Errorf("expected %q in %s", tt.stream, data)
			}
			if tt.absent != "" && strings.Contains(string(data), tt.absent) {
				t.Errorf("unexpected %q in %s", tt.absent, data)
			}

			full, _ := tr.SerializeFull(b)
			if len(data) >= len(full) {
				t.Errorf("dirty stream (%d bytes) is not smaller than the full stream (%d bytes)", len(data), len(full))
			}
		})
	}
}

func TestNestedPartialBlock(t *testing.T) {
	tr := newTracker(t)

	p := demo.NewPlayer("ada")
	p.Pos.Set(demo.NewPoint(3, 4))
	p.Hand.Set([]int32{1, 2})
	tr.MarkClean(p)

	// in place: only the changed field of the nested point
	p.Pos.Get().X.Set(5)
	data, err := tr.SerializeDirty(p)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "Player{pos:Point{x:5;};}" {
		t.Errorf("unexpected partial block %s", data)
	}
	tr.MarkClean(p)

	// replaced: the complete nested point
	p.Pos.Set(demo.NewPoint(7, 8))
	data, err = tr.SerializeDirty(p)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "Player{pos:Point{x:7;y:8;};}" {
		t.Errorf("unexpected full nested block %s", data)
	}
}

func TestMarkCleanIdempotent(t *testing.T) {
	tr := newTracker(t)
	b := sampleBoard(tr)

	b.Players.At(1).Pos.Get().Y.Set(-1)
	b.Scores.Put("bob", 100)

	tr.MarkClean(b)
	first, _ := tr.SerializeFull(b)
	tr.MarkClean(b)
	second, _ := tr.SerializeFull(b)

	if tr.IsDirty(b) {
		t.Error("board dirty after mark clean")
	}
	if string(first) != string(second) {
		t.Errorf("second mark clean changed the state:\n%s\n%s", first, second)
	}
}

func TestCopyIsIndependent(t *testing.T) {
	tr := newTracker(t)
	b := sampleBoard(tr)

	c, err := tr.Copy(b)
	if err != nil {
		t.Fatal(err)
	}
	cp := c.(*demo.Board)
	if !tr.Equal(b, cp) {
		t.Fatal("copy differs from the original")
	}
	if tr.IsDirty(cp) {
		t.Error("copy must be clean")
	}

	cp.Players.At(0).Pos.Get().X.Set(42)
	cp.Scores.Put("ada", -5)
	if tr.IsDirty(b) {
		t.Error("mutating the copy marked the original dirty")
	}
	if tr.Equal(b, cp) {
		t.Error("copy still equal after mutation")
	}
	if b.Players.At(0).Pos.Get() == cp.Players.At(0).Pos.Get() {
		t.Error("copy aliases nested objects of the original")
	}

	b.Round.Set(99)
	if cp.Round.IsDirty() || cp.Round.Get() == 99 {
		t.Error("mutating the original changed the copy")
	}
}

func TestEqualIgnoresDirtyFlags(t *testing.T) {
	tr := newTracker(t)
	a := demo.NewPoint(1, 2)
	b := demo.NewPoint(0, 2)
	b.X.Set(1)

	if !tr.Equal(a, b) {
		t.Error("points with equal values must be equal")
	}
	if tr.Equal(a, demo.NewPlayer("ada")) {
		t.Error("objects of different types must not be equal")
	}
	var nilPoint *demo.Point
	if !tr.Equal(nilPoint, nil) || tr.Equal(a, nilPoint) {
		t.Error("nil handling is wrong")
	}
}

// TestApplyDirtyToCopy applies a dirty stream to a copy of the state before
// the mutation and expects the state after it
func TestApplyDirtyToCopy(t *testing.T) {
	tr := newTracker(t)

	mutations := map[string]func(b *demo.Board){
		"advance": func(b *demo.Board) { b.Advance() },
		"nested":  func(b *demo.Board) { b.Players.At(2).Pos.Get().Y.Set(9) },
		"list": func(b *demo.Board) {
			b.Players.Append(demo.NewPlayer("dan"))
		},
		"map":    func(b *demo.Board) { b.Scores.Delete("cy") },
		"player": func(b *demo.Board) { b.Players.At(1).Hand.Clear() },
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			b := sampleBoard(tr)
			before, err := tr.Copy(b)
			if err != nil {
				t.Fatal(err)
			}

			mutate(b)
			data, err := tr.SerializeDirty(b)
			if err != nil {
				t.Fatal(err)
			}
			if err := tr.Apply(before, data); err != nil {
				t.Fatalf("apply %s: %v", data, err)
			}
			if !tr.Equal(before, b) {
				t.Errorf("replica differs after applying %s", data)
			}
			if !tr.IsDirty(before) {
				t.Error("applied changes must mark the replica dirty")
			}
		})
	}
}

func TestApplyUnknownField(t *testing.T) {
	tr := newTracker(t)

	with := demo.NewPoint(0, 0)
	if err := tr.Apply(with, []byte(`Point{x:1;z:[1,2,{"a":"b";}];y:2;}`)); err != nil {
		t.Fatalf("unknown field must be skipped: %v", err)
	}
	without := demo.NewPoint(0, 0)
	if err := tr.Apply(without, []byte(`Point{x:1;y:2;}`)); err != nil {
		t.Fatal(err)
	}
	if !tr.Equal(with, without) {
		t.Errorf("expected %s, got %s", without, with)
	}
}

func TestApplyEmptyStream(t *testing.T) {
	tr := newTracker(t)
	p := demo.NewPoint(1, 2)

	if err := tr.Apply(p, nil); err != nil {
		t.Errorf("empty stream must be a no-op, got %v", err)
	}
	if tr.IsDirty(p) {
		t.Error("empty stream marked the object dirty")
	}
}

func TestApplyMalformed(t *testing.T) {
	tr := newTracker(t)
	p := demo.NewPoint(1, 2)

	for _, stream := range []string{"Point{x:1;", "Player{}", `Point{x:"one";}`} {
		if err := tr.Apply(p, []byte(stream)); err == nil {
			t.Errorf("expected error for %q", stream)
		}
	}
	if err := tr.Apply(p, []byte("Point{x:1;")); err != nil && !strings.Contains(err.Error(), "Point") {
		t.Errorf("error should name the type: %v", err)
	}
}

func TestApplyFailureLeavesObject(t *testing.T) {
	tr := newTracker(t)
	b := sampleBoard(tr)
	before, err := tr.Copy(b)
	if err != nil {
		t.Fatal(err)
	}

	tests := []string{
		`Board{round:7;phase:"play";ratio:notafloat;}`,
		`Board{round:7;players:[Player{name:"zed";score:"x";}];}`,
		`Board{phase:"score";scores:{"ada":1;`,
	}
	for _, stream := range tests {
		if err := tr.Apply(b, []byte(stream)); err == nil {
			t.Errorf("expected error for %q", stream)
		}
		if !tr.Equal(before, b) {
			t.Errorf("failed stream %q changed the board", stream)
		}
		if tr.IsDirty(b) {
			t.Errorf("failed stream %q marked the board dirty", stream)
		}
	}

	if err := tr.Apply(nil, []byte("Point{x:1;}")); err == nil {
		t.Error("expected error for a nil object")
	}
}

func TestDirtyFieldsUnknownType(t *testing.T) {
	tr := newTracker(t)
	if f := tr.DirtyFields(schema.NewRecord("Nope")); f != nil {
		t.Errorf("expected no fields for an unregistered type, got %v", f)
	}
}

func BenchmarkSerializeDirty(b *testing.B) {
	tr := newTracker(b)
	board := sampleBoard(tr)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		board.Advance()
		if _, err := tr.SerializeDirty(board); err != nil {
			b.Fatal(err)
		}
		tr.MarkClean(board)
	}
}
