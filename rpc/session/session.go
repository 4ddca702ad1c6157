package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dSync/lib/util"
	"github.com/ValentinKolb/dSync/rpc/common"
	"github.com/ValentinKolb/dSync/rpc/invoke"
	"github.com/ValentinKolb/dSync/rpc/serializer"
	"github.com/ValentinKolb/dSync/rpc/transport"
	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("session")

var (
	sentEnvelopes     = metrics.GetOrCreateCounter(`dsync_session_envelopes_total{dir="sent"}`)
	receivedEnvelopes = metrics.GetOrCreateCounter(`dsync_session_envelopes_total{dir="received"}`)
	malformedFrames   = metrics.GetOrCreateCounter(`dsync_session_malformed_frames_total`)
	lateResults       = metrics.GetOrCreateCounter(`dsync_session_late_results_total`)
)

// ErrHandshake is returned by Open if the peer does not answer with a hello envelope
var ErrHandshake = errors.New("session: handshake failed")

// --------------------------------------------------------------------------
// Types
// --------------------------------------------------------------------------

// Peer describes one end of a session.
type Peer struct {
	// ID is unique per process run
	ID string

	// Props are exchanged during the handshake (e.g. the player name)
	Props map[string]string

	// Addr is the remote address of the connection (empty for the local peer)
	Addr string
}

func (p Peer) String() string {
	if p.Addr == "" {
		return p.ID
	}
	return fmt.Sprintf("%s@%s", p.ID, p.Addr)
}

// CallHandler executes call and notify envelopes. It returns the answer to
// a call or nil. invoke.Dispatcher implements it.
type CallHandler interface {
	Handle(ctx context.Context, env *common.Envelope) *common.Envelope
}

// SyncHandler receives snapshot, update and remove envelopes in the order
// they were sent.
type SyncHandler func(env *common.Envelope)

// Options configures a session.
type Options struct {
	// ID of the local peer. A random uuid is used if empty.
	ID string

	// Props of the local peer, sent in the hello envelope
	Props map[string]string

	// Handler executes calls of the peer. Calls are rejected with an
	// unknown method error if nil.
	Handler CallHandler

	// OnSync receives delta sync envelopes. They are dropped if nil.
	OnSync SyncHandler

	// HandshakeTimeout bounds Open (default 5s)
	HandshakeTimeout time.Duration

	// CloseTimeout bounds how long Close waits for queued envelopes to be written (default 1s)
	CloseTimeout time.Duration
}

// Session is the peer context of one connection. It exchanges hello
// envelopes on open, routes incoming envelopes and correlates calls with
// their results.
//
// Outgoing envelopes are queued in a lock free MPSC queue and written by a
// single writer goroutine. Incoming calls are executed concurrently.
// Notifications are executed in order by a single worker, so their handlers
// may call back on the session. Sync envelopes are handled in order by the
// reader.
type Session struct {
	conn   transport.IConnection
	ser    serializer.IRPCSerializer
	opts   Options
	local  Peer
	remote Peer

	nextID  atomic.Uint64
	pending *xsync.MapOf[uint64, chan *common.Envelope]
	outbox  *util.LockFreeMPSC[[]byte]
	inbox   *util.LockFreeMPSC[common.Envelope]

	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	writerDone chan struct{}
	closeOnce  sync.Once
	err        error
	wg         sync.WaitGroup
}

// Open performs the handshake on conn and starts the session. The
// connection is closed if the handshake fails.
func Open(ctx context.Context, conn transport.IConnection, ser serializer.IRPCSerializer, opts Options) (*Session, error) {
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 5 * time.Second
	}
	if opts.CloseTimeout <= 0 {
		opts.CloseTimeout = time.Second
	}

	s := &Session{
		conn:       conn,
		ser:        ser,
		opts:       opts,
		local:      Peer{ID: opts.ID, Props: opts.Props},
		pending:    xsync.NewMapOf[uint64, chan *common.Envelope](),
		outbox:     util.NewLockFreeMPSC[[]byte](),
		inbox:      util.NewLockFreeMPSC[common.Envelope](),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
	}

	if err := s.handshake(ctx); err != nil {
		s.outbox.Abort()
		s.inbox.Abort()
		_ = conn.Close()
		return nil, err
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.wg.Add(3)
	go s.readLoop()
	go s.writeLoop()
	go s.notifyLoop()

	Logger.Debugf("session %s -> %s opened", s.local.ID, s.remote)
	return s, nil
}

// handshake sends the local hello and waits for the hello of the peer
func (s *Session) handshake(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.HandshakeTimeout)
	defer cancel()

	data, err := s.ser.Serialize(*common.NewHello(s.local.ID, s.local.Props))
	if err != nil {
		return err
	}
	if err := s.conn.Send(ctx, data); err != nil {
		return fmt.Errorf("%w: send hello: %v", ErrHandshake, err)
	}

	data, err = s.conn.Receive(ctx)
	if err != nil {
		return fmt.Errorf("%w: receive hello: %v", ErrHandshake, err)
	}
	var env common.Envelope
	if err := s.ser.Deserialize(data, &env); err != nil {
		return fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	if env.EnvType != common.EnvHello || env.Peer == "" {
		return fmt.Errorf("%w: expected hello, got %s", ErrHandshake, env.EnvType)
	}

	s.remote = Peer{ID: env.Peer, Props: env.Props, Addr: s.conn.RemoteAddr()}
	return nil
}

// --------------------------------------------------------------------------
// Accessors
// --------------------------------------------------------------------------

// Local returns the local peer.
func (s *Session) Local() Peer { return s.local }

// Remote returns the peer at the other end.
func (s *Session) Remote() Peer { return s.remote }

// Done is closed when the session is torn down.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err returns the reason of the teardown, or nil while the session is open.
func (s *Session) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Pending returns the number of calls waiting for a result.
func (s *Session) Pending() int { return s.pending.Size() }

// --------------------------------------------------------------------------
// Interface Methods (docu see invoke.PeerContext)
// --------------------------------------------------------------------------

func (s *Session) Call(ctx context.Context, method string, args [][]byte) ([]byte, error) {
	id := s.nextID.Add(1)
	respCh := make(chan *common.Envelope, 1)
	s.pending.Store(id, respCh)
	defer s.pending.Delete(id)

	if err := s.Send(common.NewCall(id, method, args)); err != nil {
		return nil, s.lost(method, err)
	}

	select {
	case env := <-respCh:
		if env.EnvType == common.EnvError {
			return nil, invoke.ErrorFromEnvelope(env)
		}
		return env.Payload, nil
	case <-s.done:
		return nil, s.lost(method, s.err)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Session) Notify(ctx context.Context, method string, args [][]byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.Send(common.NewNotify(method, args)); err != nil {
		return s.lost(method, err)
	}
	return nil
}

func (s *Session) lost(method string, err error) error {
	return &invoke.ConnectionLostError{Peer: s.remote.ID, Method: method, Err: err}
}

// --------------------------------------------------------------------------
// Sending
// --------------------------------------------------------------------------

// Send queues env for the writer.
func (s *Session) Send(env *common.Envelope) error {
	data, err := s.ser.Serialize(*env)
	if err != nil {
		return err
	}
	return s.SendRaw(data)
}

// SendRaw queues an already serialized envelope. It is used to broadcast
// one serialization to many sessions.
func (s *Session) SendRaw(data []byte) error {
	select {
	case <-s.done:
		return transport.ErrClosed
	default:
	}
	if !s.outbox.Push(&data) {
		return transport.ErrClosed
	}
	return nil
}

// writeLoop drains the outbox until it is closed or aborted
func (s *Session) writeLoop() {
	defer s.wg.Done()
	defer close(s.writerDone)

	for data := range s.outbox.Recv() {
		if err := s.conn.Send(s.ctx, *data); err != nil {
			s.teardown(fmt.Errorf("write: %w", err))
			return
		}
		sentEnvelopes.Inc()
	}
}

// --------------------------------------------------------------------------
// Receiving
// --------------------------------------------------------------------------

// readLoop reads envelopes until the connection fails
func (s *Session) readLoop() {
	defer s.wg.Done()

	for {
		data, err := s.conn.Receive(s.ctx)
		if err != nil {
			s.teardown(err)
			return
		}
		receivedEnvelopes.Inc()

		env := &common.Envelope{}
		if err := s.ser.Deserialize(data, env); err != nil {
			malformedFrames.Inc()
			Logger.Warningf("session %s: dropping malformed envelope: %v", s.remote.ID, err)
			continue
		}
		s.route(env)
	}
}

// notifyLoop executes received notifications in order
func (s *Session) notifyLoop() {
	defer s.wg.Done()

	for env := range s.inbox.Recv() {
		s.opts.Handler.Handle(s.ctx, env)
	}
}

// route dispatches a received envelope
func (s *Session) route(env *common.Envelope) {
	switch env.EnvType {
	case common.EnvCall:
		if s.opts.Handler == nil {
			_ = s.Send(common.NewError(env.ID, env.Method, common.CodeUnknownMethod, &invoke.UnknownMethodError{Method: env.Method}))
			return
		}
		go func() {
			if resp := s.opts.Handler.Handle(s.ctx, env); resp != nil {
				if err := s.Send(resp); err != nil {
					Logger.Debugf("session %s: cannot answer call %d: %v", s.remote.ID, env.ID, err)
				}
			}
		}()

	case common.EnvNotify:
		if s.opts.Handler != nil {
			s.inbox.Push(env)
		}

	case common.EnvResult, common.EnvError:
		if respCh, found := s.pending.LoadAndDelete(env.ID); found {
			respCh <- env
		} else {
			lateResults.Inc()
			Logger.Warningf("session %s: received %s for unknown call", s.remote.ID, env)
		}

	case common.EnvSnapshot, common.EnvUpdate, common.EnvRemove:
		if s.opts.OnSync != nil {
			s.opts.OnSync(env)
		}

	default:
		Logger.Warningf("session %s: unexpected %s", s.remote.ID, env)
	}
}

// --------------------------------------------------------------------------
// Teardown
// --------------------------------------------------------------------------

// Close writes the queued envelopes (bounded by CloseTimeout) and tears the
// session down. Calls that are still waiting fail with a connection lost
// error.
func (s *Session) Close() error {
	s.outbox.Close()
	select {
	case <-s.writerDone:
	case <-s.done:
	case <-time.After(s.opts.CloseTimeout):
		Logger.Warningf("session %s: dropping %d queued envelopes on close", s.remote.ID, s.outbox.Len())
	}
	s.teardown(transport.ErrClosed)
	return nil
}

// Wait blocks until the reader and the writer have stopped.
func (s *Session) Wait() {
	s.wg.Wait()
}

// teardown stops the session once. Waiting calls observe done and fail.
func (s *Session) teardown(err error) {
	s.closeOnce.Do(func() {
		s.err = err
		close(s.done)
		s.cancel()
		s.outbox.Abort()
		s.inbox.Abort()
		_ = s.conn.Close()

		if errors.Is(err, transport.ErrClosed) {
			Logger.Debugf("session %s -> %s closed", s.local.ID, s.remote)
		} else {
			Logger.Warningf("session %s -> %s lost: %v", s.local.ID, s.remote, err)
		}
	})
}
