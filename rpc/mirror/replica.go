package mirror

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ValentinKolb/dSync/lib/dirty"
	"github.com/ValentinKolb/dSync/lib/schema"
	"github.com/ValentinKolb/dSync/rpc/common"
	"github.com/VictoriaMetrics/metrics"
)

var applyErrors = metrics.GetOrCreateCounter(`dsync_mirror_apply_errors_total`)

// ChangeFunc is called after an envelope was applied. o is nil for removed
// objects and must not be retained or mutated.
type ChangeFunc func(id string, kind common.EnvelopeType, o schema.Object)

// Replica holds the mirrored copies of the objects of a publisher.
type Replica struct {
	tracker *dirty.Tracker

	mu       sync.RWMutex
	objects  map[string]schema.Object
	onChange ChangeFunc
}

// NewReplica creates an empty replica that decodes with tracker.
func NewReplica(tracker *dirty.Tracker) *Replica {
	return &Replica{
		tracker: tracker,
		objects: map[string]schema.Object{},
	}
}

// OnChange sets the change callback.
func (r *Replica) OnChange(fn ChangeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = fn
}

// Apply applies a snapshot, update or remove envelope. A snapshot replaces
// the object, an update is merged into it. An update for an unknown object
// creates it from the type named in the stream.
func (r *Replica) Apply(env *common.Envelope) error {
	r.mu.Lock()
	var (
		o   schema.Object
		err error
	)
	switch env.EnvType {
	case common.EnvSnapshot:
		if o, err = r.tracker.Codec().Unmarshal(env.Payload); err == nil {
			r.objects[env.Object] = o
		}
	case common.EnvUpdate:
		var ok bool
		if o, ok = r.objects[env.Object]; ok {
			err = r.tracker.Apply(o, env.Payload)
		} else if o, err = r.tracker.Codec().Unmarshal(env.Payload); err == nil {
			r.objects[env.Object] = o
		}
	case common.EnvRemove:
		delete(r.objects, env.Object)
	default:
		err = fmt.Errorf("mirror: cannot apply %s", env.EnvType)
	}
	if err == nil && o != nil {
		r.tracker.MarkClean(o)
	}
	onChange := r.onChange
	r.mu.Unlock()

	if err != nil {
		applyErrors.Inc()
		return fmt.Errorf("mirror: %s of %q: %w", env.EnvType, env.Object, err)
	}
	if onChange != nil {
		r.mu.RLock()
		onChange(env.Object, env.EnvType, o)
		r.mu.RUnlock()
	}
	return nil
}

// Handle applies env and logs errors. It can be used as session.SyncHandler.
func (r *Replica) Handle(env *common.Envelope) {
	if err := r.Apply(env); err != nil {
		Logger.Warningf("%v", err)
	}
}

// Get returns an independent copy of the object mirrored under id.
func (r *Replica) Get(id string) (schema.Object, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.objects[id]
	if !ok {
		return nil, false
	}
	c, err := r.tracker.Copy(o)
	if err != nil {
		Logger.Errorf("cannot copy %q: %v", id, err)
		return nil, false
	}
	return c, true
}

// View calls fn with the object mirrored under id while holding the read
// lock. fn must not mutate or retain it.
func (r *Replica) View(id string, fn func(o schema.Object)) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.objects[id]
	if ok {
		fn(o)
	}
	return ok
}

// IDs returns the mirrored ids in sorted order.
func (r *Replica) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.objects))
	for id := range r.objects {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
