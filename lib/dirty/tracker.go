package dirty

import (
	"bytes"
	"fmt"
	"math"

	"github.com/ValentinKolb/dSync/lib/codec/structured"
	"github.com/ValentinKolb/dSync/lib/schema"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("dirty")

// Tracker implements the graph operations of trackable objects: aggregate
// dirty state, mark clean, deep copy, deep equality and (partial)
// serialization. The dirty state of an object is never stored, it is derived
// from its cells and its nested objects on every call.
//
// A Tracker holds no per-object state and is safe for concurrent use. The
// objects themselves are not: a single owner must mutate an object graph and
// run the sync tick (SerializeDirty followed by MarkClean).
type Tracker struct {
	reg   *schema.Registry
	codec *structured.Codec
}

// NewTracker creates a tracker that serializes with codec.
func NewTracker(codec *structured.Codec) *Tracker {
	return &Tracker{reg: codec.Registry(), codec: codec}
}

// Codec returns the structured codec used by the tracker.
func (t *Tracker) Codec() *structured.Codec { return t.codec }

// --------------------------------------------------------------------------
// Dirty State
// --------------------------------------------------------------------------

// IsDirty reports whether any cell of o or of an object reachable from o
// changed since the last MarkClean.
func (t *Tracker) IsDirty(o schema.Object) bool {
	return t.isDirty(o, map[schema.Object]bool{})
}

// DirtyFields returns the names of the fields of o that would be written by
// SerializeDirty, in declaration order.
func (t *Tracker) DirtyFields(o schema.Object) []string {
	typ, err := t.reg.TypeOf(o)
	if err != nil {
		return nil
	}
	var names []string
	for _, f := range typ.Fields() {
		if t.fieldDirty(f, o, map[schema.Object]bool{}) {
			names = append(names, f.Name)
		}
	}
	return names
}

// MarkClean clears the dirty flag of every cell of o and of every object
// reachable from o. Calling it repeatedly has no further effect.
func (t *Tracker) MarkClean(o schema.Object) {
	t.markClean(o, map[schema.Object]bool{})
}

func (t *Tracker) isDirty(o schema.Object, visited map[schema.Object]bool) bool {
	if schema.IsNil(o) || visited[o] {
		return false
	}
	visited[o] = true

	typ, err := t.reg.TypeOf(o)
	if err != nil {
		return false
	}
	for _, f := range typ.Fields() {
		if t.fieldDirty(f, o, visited) {
			return true
		}
	}
	return false
}

// fieldDirty reports whether the cell of f is dirty or an object held by f is
func (t *Tracker) fieldDirty(f *schema.Field, o schema.Object, visited map[schema.Object]bool) bool {
	slot := f.Slot(o)
	if tr, ok := slot.(schema.Tracked); ok && tr.IsDirty() {
		return true
	}
	for _, child := range children(f, slot) {
		if t.isDirty(child, visited) {
			return true
		}
	}
	return false
}

func (t *Tracker) markClean(o schema.Object, visited map[schema.Object]bool) {
	if schema.IsNil(o) || visited[o] {
		return
	}
	visited[o] = true

	typ, err := t.reg.TypeOf(o)
	if err != nil {
		return
	}
	for _, f := range typ.Fields() {
		slot := f.Slot(o)
		if tr, ok := slot.(schema.Tracked); ok {
			tr.MarkClean()
		}
		for _, child := range children(f, slot) {
			t.markClean(child, visited)
		}
	}
}

// children returns the non-nil objects held by a field
func children(f *schema.Field, slot schema.Slot) []schema.Object {
	switch {
	case f.Type.Kind == schema.KindObject:
		if o, ok := slot.Load().(schema.Object); ok && !schema.IsNil(o) {
			return []schema.Object{o}
		}
	case f.Type.Kind == schema.KindList && f.Type.Elem == schema.KindObject:
		items, _ := slot.Load().([]any)
		out := make([]schema.Object, 0, len(items))
		for _, item := range items {
			if o, ok := item.(schema.Object); ok && !schema.IsNil(o) {
				out = append(out, o)
			}
		}
		return out
	case f.Type.Kind == schema.KindMap && f.Type.Elem == schema.KindObject:
		m, _ := slot.Load().(map[string]any)
		out := make([]schema.Object, 0, len(m))
		for _, item := range m {
			if o, ok := item.(schema.Object); ok && !schema.IsNil(o) {
				out = append(out, o)
			}
		}
		return out
	}
	return nil
}

// --------------------------------------------------------------------------
// Serialization
// --------------------------------------------------------------------------

// SerializeFull encodes all fields of o.
func (t *Tracker) SerializeFull(o schema.Object) ([]byte, error) {
	return t.codec.Marshal(o)
}

// SerializeDirty encodes only what changed since the last MarkClean. A
// nested object that was replaced is written completely, a nested object
// that was modified in place is written as a block of its own dirty fields.
// Lists and maps of objects are written completely if any element changed.
// The result is nil if o is clean.
func (t *Tracker) SerializeDirty(o schema.Object) ([]byte, error) {
	if !t.IsDirty(o) {
		return nil, nil
	}
	return t.codec.MarshalSelected(o, t.selectDirty)
}

func (t *Tracker) selectDirty(f *schema.Field, o schema.Object) structured.Selection {
	slot := f.Slot(o)
	if tr, ok := slot.(schema.Tracked); ok && tr.IsDirty() {
		return structured.SelectFull
	}

	anyDirty := false
	for _, child := range children(f, slot) {
		if t.IsDirty(child) {
			anyDirty = true
			break
		}
	}
	switch {
	case !anyDirty:
		return structured.SelectSkip
	case f.Type.Kind == schema.KindObject:
		return structured.SelectChanged
	default:
		return structured.SelectFull
	}
}

// Apply merges a stream produced by SerializeFull or SerializeDirty into o.
// Fields that are not in the stream keep their value, unknown fields are
// skipped. An empty stream is a no-op. A stream that fails to decode leaves
// o unchanged. Cells whose value changes become dirty, call MarkClean
// afterwards to treat the applied state as synced.
func (t *Tracker) Apply(o schema.Object, data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if schema.IsNil(o) {
		return fmt.Errorf("dirty: cannot apply a stream to a nil object")
	}
	// the stream is decoded into a copy first, o is only written once it decoded cleanly
	scratch, err := t.Copy(o)
	if err != nil {
		return err
	}
	if err := t.codec.UnmarshalInto(data, scratch); err != nil {
		return err
	}
	return t.codec.UnmarshalInto(data, o)
}

// --------------------------------------------------------------------------
// Copy and Equality
// --------------------------------------------------------------------------

// Copy returns an independent deep copy of o with all cells clean.
func (t *Tracker) Copy(o schema.Object) (schema.Object, error) {
	data, err := t.codec.Marshal(o)
	if err != nil {
		return nil, err
	}
	c, err := t.codec.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	t.MarkClean(c)
	return c, nil
}

// Equal reports whether a and b hold the same values, recursively. Dirty
// flags are ignored, NaN equals NaN and nil containers equal empty ones.
func (t *Tracker) Equal(a, b schema.Object) bool {
	return t.equalObjects(a, b, map[[2]schema.Object]bool{})
}

func (t *Tracker) equalObjects(a, b schema.Object, visited map[[2]schema.Object]bool) bool {
	aNil, bNil := schema.IsNil(a), schema.IsNil(b)
	if aNil || bNil {
		return aNil == bNil
	}
	if a.TypeName() != b.TypeName() {
		return false
	}
	pair := [2]schema.Object{a, b}
	if visited[pair] {
		return true
	}
	visited[pair] = true

	typ, err := t.reg.TypeOf(a)
	if err != nil {
		return false
	}
	for _, f := range typ.Fields() {
		x, errA := f.Get(a)
		y, errB := f.Get(b)
		if errA != nil || errB != nil {
			Logger.Warningf("cannot compare field %q of %q: %v %v", f.Name, typ.Name(), errA, errB)
			return false
		}
		if !t.equalValues(f.Type, x, y, visited) {
			return false
		}
	}
	return true
}

func (t *Tracker) equalValues(vt schema.ValueType, x, y any, visited map[[2]schema.Object]bool) bool {
	switch {
	case vt.Kind.IsFloat():
		fx, fy := x.(float64), y.(float64)
		return fx == fy || (math.IsNaN(fx) && math.IsNaN(fy))
	case vt.Kind == schema.KindObject:
		ox, _ := x.(schema.Object)
		oy, _ := y.(schema.Object)
		return t.equalObjects(ox, oy, visited)
	case vt.Kind == schema.KindList:
		lx, _ := x.([]any)
		ly, _ := y.([]any)
		if len(lx) != len(ly) {
			return false
		}
		elem := vt.ElemType()
		for i := range lx {
			if !t.equalValues(elem, lx[i], ly[i], visited) {
				return false
			}
		}
		return true
	case vt.Kind == schema.KindMap:
		mx, _ := x.(map[string]any)
		my, _ := y.(map[string]any)
		if len(mx) != len(my) {
			return false
		}
		elem := vt.ElemType()
		for k, vx := range mx {
			vy, ok := my[k]
			if !ok || !t.equalValues(elem, vx, vy, visited) {
				return false
			}
		}
		return true
	default:
		return x == y
	}
}
