package mirror_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/dSync/lib/codec/structured"
	"github.com/ValentinKolb/dSync/lib/demo"
	"github.com/ValentinKolb/dSync/lib/dirty"
	"github.com/ValentinKolb/dSync/lib/schema"
	"github.com/ValentinKolb/dSync/rpc/common"
	"github.com/ValentinKolb/dSync/rpc/mirror"
	"github.com/ValentinKolb/dSync/rpc/serializer"
	"github.com/ValentinKolb/dSync/rpc/session"
	"github.com/ValentinKolb/dSync/rpc/transport/memory"
)

func newTracker(t testing.TB) *dirty.Tracker {
	t.Helper()
	reg, err := demo.NewRegistry()
	if err != nil {
		t.Fatal(err)
	}
	return dirty.NewTracker(structured.NewCodec(reg))
}

// recorder collects broadcast envelopes and forwards them to replicas
type recorder struct {
	mu       sync.Mutex
	envs     []*common.Envelope
	replicas []*mirror.Replica
}

func (r *recorder) Broadcast(env *common.Envelope) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.envs = append(r.envs, env)
	for _, rep := range r.replicas {
		rep.Handle(env)
	}
	return len(r.replicas)
}

func (r *recorder) Send(env *common.Envelope) error {
	r.Broadcast(env)
	return nil
}

func (r *recorder) types() []common.EnvelopeType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]common.EnvelopeType, len(r.envs))
	for i, env := range r.envs {
		out[i] = env.EnvType
	}
	return out
}

func TestPublisherReplica(t *testing.T) {
	tr := newTracker(t)
	replica := mirror.NewReplica(newTracker(t))
	out := &recorder{replicas: []*mirror.Replica{replica}}
	pub := mirror.NewPublisher(tr, out)

	board := demo.NewBoard("ada", "bob")
	if err := pub.Publish("board", board); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 10; i++ {
		pub.Mutate(board.Advance)
		n, err := pub.Tick()
		if err != nil {
			t.Fatal(err)
		}
		if n != 1 {
			t.Fatalf("tick %d: expected one update, got %d", i, n)
		}

		got, ok := replica.Get("board")
		if !ok {
			t.Fatal("board not mirrored")
		}
		if !tr.Equal(board, got) {
			t.Fatalf("replica differs after tick %d", i)
		}
	}

	if n, _ := pub.Tick(); n != 0 {
		t.Errorf("clean tick sent %d updates", n)
	}
	if tr.IsDirty(board) {
		t.Error("tick must mark the published object clean")
	}

	if h := pub.UpdateSizes(); h.GetCount() != 10 || h.Max() <= 0 {
		t.Errorf("unexpected update size stats: %d samples, max %d", h.GetCount(), h.Max())
	}

	if !pub.Remove("board") || pub.Remove("board") {
		t.Error("remove should succeed exactly once")
	}
	if ids := replica.IDs(); len(ids) != 0 {
		t.Errorf("replica still holds %v", ids)
	}

	types := out.types()
	if types[0] != common.EnvSnapshot || types[len(types)-1] != common.EnvRemove {
		t.Errorf("unexpected envelope sequence %v", types)
	}
}

func TestUpdatesAreSmallerThanSnapshots(t *testing.T) {
	tr := newTracker(t)
	out := &recorder{}
	pub := mirror.NewPublisher(tr, out)

	board := demo.NewBoard("ada", "bob", "cy", "dan")
	if err := pub.Publish("board", board); err != nil {
		t.Fatal(err)
	}
	pub.Mutate(func() { board.Phase.Set("paused") })
	if _, err := pub.Tick(); err != nil {
		t.Fatal(err)
	}

	snapshot, update := out.envs[0], out.envs[1]
	if update.EnvType != common.EnvUpdate || len(update.Payload) >= len(snapshot.Payload) {
		t.Errorf("update (%d bytes) should be smaller than the snapshot (%d bytes)", len(update.Payload), len(snapshot.Payload))
	}
	if string(update.Payload) != `Board{phase:"paused";}` {
		t.Errorf("unexpected update %s", update.Payload)
	}
}

func TestLateJoiner(t *testing.T) {
	tr := newTracker(t)
	out := &recorder{}
	pub := mirror.NewPublisher(tr, out)

	board := demo.NewBoard("ada")
	point := demo.NewPoint(1, 2)
	_ = pub.Publish("board", board)
	_ = pub.Publish("cursor", point)
	pub.Mutate(func() {
		board.Advance()
		point.Y.Set(3)
	})
	if _, err := pub.Tick(); err != nil {
		t.Fatal(err)
	}

	late := mirror.NewReplica(newTracker(t))
	var changed []string
	late.OnChange(func(id string, kind common.EnvelopeType, o schema.Object) {
		changed = append(changed, id+" "+kind.String())
	})
	if err := pub.SnapshotTo(&recorder{replicas: []*mirror.Replica{late}}); err != nil {
		t.Fatal(err)
	}

	if len(changed) != 2 || changed[0] != "board snapshot" || changed[1] != "cursor snapshot" {
		t.Errorf("unexpected changes %v", changed)
	}
	ok := late.View("cursor", func(o schema.Object) {
		if p := o.(*demo.Point); p.Y.Get() != 3 {
			t.Errorf("late joiner got %s", p)
		}
	})
	if !ok {
		t.Error("cursor not mirrored")
	}
}

func TestReplicaUpdateCreatesObject(t *testing.T) {
	replica := mirror.NewReplica(newTracker(t))

	if err := replica.Apply(common.NewUpdate("p", []byte("Point{y:25;}"))); err != nil {
		t.Fatal(err)
	}
	o, ok := replica.Get("p")
	if !ok {
		t.Fatal("update did not create the object")
	}
	if p := o.(*demo.Point); p.X.Get() != 0 || p.Y.Get() != 25 {
		t.Errorf("unexpected point %s", p)
	}

	if err := replica.Apply(common.NewUpdate("p", []byte("Point{y:"))); err == nil {
		t.Error("expected error for a malformed update")
	}
	if err := replica.Apply(common.NewCall(1, "add", nil)); err == nil {
		t.Error("expected error for a call envelope")
	}
}

func TestReplicaFailedUpdateKeepsState(t *testing.T) {
	tr := newTracker(t)
	replica := mirror.NewReplica(tr)
	changes := 0
	replica.OnChange(func(string, common.EnvelopeType, schema.Object) { changes++ })

	snapshot, err := tr.SerializeFull(demo.NewBoard("ada", "bob"))
	if err != nil {
		t.Fatal(err)
	}
	if err := replica.Apply(common.NewSnapshot("board", snapshot)); err != nil {
		t.Fatal(err)
	}
	before, _ := replica.Get("board")

	update := []byte(`Board{round:7;phase:"play";ratio:notafloat;}`)
	if err := replica.Apply(common.NewUpdate("board", update)); err == nil {
		t.Fatal("expected error for a malformed update")
	}
	if changes != 1 {
		t.Errorf("failed update reported a change (%d changes)", changes)
	}
	replica.View("board", func(o schema.Object) {
		b := o.(*demo.Board)
		if b.Round.Get() != 0 || b.Phase.Get() != "deal" {
			t.Errorf("failed update was partly applied: round=%d phase=%q", b.Round.Get(), b.Phase.Get())
		}
		if !tr.Equal(before, o) {
			t.Error("board differs from the snapshot")
		}
		if tr.IsDirty(o) {
			t.Error("board is dirty after a failed update")
		}
	})

	if err := replica.Apply(common.NewUpdate("board", []byte(`Board{round:7;}`))); err != nil {
		t.Fatal(err)
	}
	replica.View("board", func(o schema.Object) {
		if b := o.(*demo.Board); b.Round.Get() != 7 || b.Phase.Get() != "deal" {
			t.Errorf("unexpected board after update: round=%d phase=%q", b.Round.Get(), b.Phase.Get())
		}
	})
}

// TestSyncOverSessions mirrors a board to two peers through a hub
func TestSyncOverSessions(t *testing.T) {
	ser, err := serializer.New("binary")
	if err != nil {
		t.Fatal(err)
	}
	network := memory.NewNetwork()
	l, err := network.Listen("game")
	if err != nil {
		t.Fatal(err)
	}

	tr := newTracker(t)
	hub := session.NewHub(ser, session.Options{ID: "server"})
	pub := mirror.NewPublisher(tr, hub)
	hub.OnJoin(func(s *session.Session) {
		if err := pub.SnapshotTo(s); err != nil {
			t.Errorf("snapshot: %v", err)
		}
	})
	board := demo.NewBoard("ada", "bob")
	if err := pub.Publish("board", board); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = hub.Serve(ctx, l) }()
	defer hub.Close()

	replicas := make([]*mirror.Replica, 2)
	for i := range replicas {
		replicas[i] = mirror.NewReplica(newTracker(t))
		conn, err := network.Dial(ctx, "game")
		if err != nil {
			t.Fatal(err)
		}
		s, err := session.Open(ctx, conn, ser, session.Options{OnSync: replicas[i].Handle})
		if err != nil {
			t.Fatal(err)
		}
		defer s.Close()
	}

	go pub.Run(ctx, 5*time.Millisecond)
	for i := 0; i < 6; i++ {
		pub.Mutate(board.Advance)
		time.Sleep(2 * time.Millisecond)
	}

	var want schema.Object
	pub.Mutate(func() { want, _ = tr.Copy(board) })

	deadline := time.Now().Add(2 * time.Second)
	for i, r := range replicas {
		for {
			got, ok := r.Get("board")
			if ok && tr.Equal(want, got) {
				break
			}
			if time.Now().After(deadline) {
				t.Fatalf("replica %d did not converge", i)
			}
			time.Sleep(5 * time.Millisecond)
		}
	}
}
