package session

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/dSync/rpc/common"
	"github.com/ValentinKolb/dSync/rpc/serializer"
	"github.com/ValentinKolb/dSync/rpc/transport"
	"github.com/VictoriaMetrics/metrics"
	"github.com/puzpuzpuz/xsync/v3"
)

var connectedPeers = metrics.GetOrCreateCounter(`dsync_session_peers`)

// Hub holds the sessions of all connected peers of a process. It accepts
// connections from listeners, broadcasts envelopes and notifies listeners
// about joining and leaving peers.
type Hub struct {
	ser  serializer.IRPCSerializer
	opts Options

	sessions *xsync.MapOf[string, *Session]

	mu      sync.RWMutex
	onJoin  []func(*Session)
	onLeave []func(*Session)

	listenersMu sync.Mutex
	listeners   []transport.IListener

	closed atomic.Bool
	wg     sync.WaitGroup
}

// NewHub creates a hub. opts are used for every session; the local peer id
// is shared by all of them.
func NewHub(ser serializer.IRPCSerializer, opts Options) *Hub {
	return &Hub{
		ser:      ser,
		opts:     opts,
		sessions: xsync.NewMapOf[string, *Session](),
	}
}

// OnJoin registers fn to be called for every session added to the hub.
func (h *Hub) OnJoin(fn func(*Session)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onJoin = append(h.onJoin, fn)
}

// OnLeave registers fn to be called for every session removed from the hub.
func (h *Hub) OnLeave(fn func(*Session)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onLeave = append(h.onLeave, fn)
}

// Serve accepts connections from l until l or the hub is closed. Every
// connection is opened as a session in its own goroutine.
func (h *Hub) Serve(ctx context.Context, l transport.IListener) error {
	h.listenersMu.Lock()
	h.listeners = append(h.listeners, l)
	h.listenersMu.Unlock()

	Logger.Infof("hub serving on %s", l.Addr())
	for {
		conn, err := l.Accept(ctx)
		if err != nil {
			if h.closed.Load() || errors.Is(err, transport.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}

		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			s, err := Open(ctx, conn, h.ser, h.opts)
			if err != nil {
				Logger.Warningf("rejected connection from %s: %v", conn.RemoteAddr(), err)
				return
			}
			h.Attach(s)
		}()
	}
}

// Attach adds an open session to the hub. It is removed when it is torn down.
func (h *Hub) Attach(s *Session) {
	if h.closed.Load() {
		_ = s.Close()
		return
	}
	if old, loaded := h.sessions.LoadAndStore(s.Remote().ID, s); loaded && old != s {
		Logger.Warningf("peer %s reconnected, closing old session", s.Remote().ID)
		_ = old.Close()
	}
	connectedPeers.Inc()
	Logger.Infof("peer %s joined", s.Remote())

	h.mu.RLock()
	join := slices.Clone(h.onJoin)
	h.mu.RUnlock()
	for _, fn := range join {
		fn(s)
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		<-s.Done()
		h.sessions.Compute(s.Remote().ID, func(cur *Session, loaded bool) (*Session, bool) {
			// keep a newer session of the same peer
			return cur, !loaded || cur == s
		})
		connectedPeers.Dec()
		Logger.Infof("peer %s left", s.Remote())

		h.mu.RLock()
		leave := slices.Clone(h.onLeave)
		h.mu.RUnlock()
		for _, fn := range leave {
			fn(s)
		}
	}()
}

// Session returns the session of the peer with the given id.
func (h *Hub) Session(id string) (*Session, bool) {
	return h.sessions.Load(id)
}

// ListPeers returns the connected peers sorted by id.
func (h *Hub) ListPeers() []Peer {
	peers := make([]Peer, 0, h.sessions.Size())
	h.sessions.Range(func(_ string, s *Session) bool {
		peers = append(peers, s.Remote())
		return true
	})
	sort.Slice(peers, func(i, j int) bool { return peers[i].ID < peers[j].ID })
	return peers
}

// Broadcast serializes env once and queues it on every session. It returns
// the number of sessions the envelope was queued on.
func (h *Hub) Broadcast(env *common.Envelope) int {
	data, err := h.ser.Serialize(*env)
	if err != nil {
		Logger.Errorf("cannot serialize %s: %v", env, err)
		return 0
	}
	n := 0
	h.sessions.Range(func(id string, s *Session) bool {
		if err := s.SendRaw(data); err != nil {
			Logger.Debugf("skipping peer %s: %v", id, err)
		} else {
			n++
		}
		return true
	})
	return n
}

// Close stops all listeners and closes all sessions.
func (h *Hub) Close() error {
	if h.closed.Swap(true) {
		return nil
	}

	h.listenersMu.Lock()
	var errs []error
	for _, l := range h.listeners {
		errs = append(errs, l.Close())
	}
	h.listeners = nil
	h.listenersMu.Unlock()

	h.sessions.Range(func(_ string, s *Session) bool {
		_ = s.Close()
		return true
	})
	h.wg.Wait()
	return errors.Join(errs...)
}
