package mirror

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ValentinKolb/dSync/lib/dirty"
	"github.com/ValentinKolb/dSync/lib/schema"
	"github.com/ValentinKolb/dSync/lib/util"
	"github.com/ValentinKolb/dSync/rpc/common"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("mirror")

var (
	snapshotsSent = metrics.GetOrCreateCounter(`dsync_mirror_envelopes_total{type="snapshot"}`)
	updatesSent   = metrics.GetOrCreateCounter(`dsync_mirror_envelopes_total{type="update"}`)
	removesSent   = metrics.GetOrCreateCounter(`dsync_mirror_envelopes_total{type="remove"}`)
	updateBytes   = metrics.GetOrCreateHistogram(`dsync_mirror_update_bytes`)
	tickDuration  = metrics.GetOrCreateHistogram(`dsync_mirror_tick_duration_seconds`)
)

// Broadcaster sends an envelope to every connected peer. session.Hub
// implements it.
type Broadcaster interface {
	Broadcast(env *common.Envelope) int
}

// Sender sends an envelope to a single peer. session.Session implements it.
type Sender interface {
	Send(env *common.Envelope) error
}

// Publisher owns the authoritative copies of published objects. Every tick
// it sends the changed fields of each object to all peers and marks the
// objects clean.
//
// Objects must only be mutated inside Mutate, which serializes mutations
// with the tick.
type Publisher struct {
	tracker *dirty.Tracker
	out     Broadcaster

	mu      sync.Mutex
	objects map[string]schema.Object
	sizes   *util.SizeHistogram
}

// NewPublisher creates a publisher that serializes with tracker and sends
// through out.
func NewPublisher(tracker *dirty.Tracker, out Broadcaster) *Publisher {
	return &Publisher{
		tracker: tracker,
		out:     out,
		objects: map[string]schema.Object{},
		sizes:   util.NewSizeHistogram(),
	}
}

// Publish adds o under id and sends a snapshot of it to all peers. An
// object already published under id is replaced.
func (p *Publisher) Publish(id string, o schema.Object) error {
	if schema.IsNil(o) {
		return fmt.Errorf("mirror: cannot publish nil object %q", id)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	data, err := p.tracker.SerializeFull(o)
	if err != nil {
		return fmt.Errorf("mirror: snapshot of %q: %w", id, err)
	}
	p.objects[id] = o
	p.tracker.MarkClean(o)

	p.out.Broadcast(common.NewSnapshot(id, data))
	snapshotsSent.Inc()
	Logger.Debugf("published %q (%s, %d bytes)", id, o.TypeName(), len(data))
	return nil
}

// Remove stops publishing id and tells all peers to drop it.
func (p *Publisher) Remove(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.objects[id]; !ok {
		return false
	}
	delete(p.objects, id)
	p.out.Broadcast(common.NewRemove(id))
	removesSent.Inc()
	return true
}

// Mutate runs fn with exclusive access to the published objects.
func (p *Publisher) Mutate(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn()
}

// Get returns the object published under id. It may only be mutated inside Mutate.
func (p *Publisher) Get(id string) (schema.Object, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.objects[id]
	return o, ok
}

// IDs returns the ids of all published objects in sorted order.
func (p *Publisher) IDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ids()
}

func (p *Publisher) ids() []string {
	ids := make([]string, 0, len(p.objects))
	for id := range p.objects {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SnapshotTo sends the full state of every published object to s. It is
// used for peers that join after the objects were published.
func (p *Publisher) SnapshotTo(s Sender) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, id := range p.ids() {
		data, err := p.tracker.SerializeFull(p.objects[id])
		if err != nil {
			return fmt.Errorf("mirror: snapshot of %q: %w", id, err)
		}
		if err := s.Send(common.NewSnapshot(id, data)); err != nil {
			return err
		}
		snapshotsSent.Inc()
	}
	return nil
}

// Tick sends an update for every object that changed since the last tick
// and marks it clean. It returns the number of updates sent.
func (p *Publisher) Tick() (int, error) {
	start := time.Now()
	p.mu.Lock()
	defer p.mu.Unlock()
	defer tickDuration.UpdateDuration(start)

	n := 0
	for _, id := range p.ids() {
		o := p.objects[id]
		data, err := p.tracker.SerializeDirty(o)
		if err != nil {
			return n, fmt.Errorf("mirror: update of %q: %w", id, err)
		}
		if data == nil {
			continue
		}

		p.out.Broadcast(common.NewUpdate(id, data))
		p.tracker.MarkClean(o)

		p.sizes.AddSample(len(data))
		updateBytes.Update(float64(len(data)))
		updatesSent.Inc()
		n++
	}
	return n, nil
}

// Run calls Tick every interval until ctx is done.
func (p *Publisher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.Tick(); err != nil {
				Logger.Errorf("sync tick failed: %v", err)
			}
		}
	}
}

// UpdateSizes returns the distribution of update payload sizes.
func (p *Publisher) UpdateSizes() *util.SizeHistogram {
	return p.sizes
}
