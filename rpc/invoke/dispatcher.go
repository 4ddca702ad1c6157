package invoke

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ValentinKolb/dSync/lib/codec/structured"
	"github.com/ValentinKolb/dSync/lib/schema"
	"github.com/ValentinKolb/dSync/rpc/common"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("invoke")

// Dispatcher holds the methods of a process and executes them by name. It
// serves both paths of a call: Invoke runs a method for a local caller,
// Handle runs it for a call envelope received from a peer.
//
// Methods are registered at startup; lookups are lock free.
type Dispatcher struct {
	codec   *structured.Codec
	methods *xsync.MapOf[string, *Method]
}

// NewDispatcher creates an empty dispatcher. Arguments and results are
// encoded with codec.
func NewDispatcher(codec *structured.Codec) *Dispatcher {
	return &Dispatcher{
		codec:   codec,
		methods: xsync.NewMapOf[string, *Method](),
	}
}

// Codec returns the codec used for arguments and results.
func (d *Dispatcher) Codec() *structured.Codec { return d.codec }

// Register adds m. Registering a name twice is an error.
func (d *Dispatcher) Register(m Method) error {
	if err := m.validate(); err != nil {
		return err
	}
	m.Params = append([]schema.ValueType(nil), m.Params...)
	if _, loaded := d.methods.LoadOrStore(m.Name, &m); loaded {
		return fmt.Errorf("%w: %q", ErrDuplicateMethod, m.Name)
	}
	Logger.Debugf("registered method %s", m.Signature())
	return nil
}

// MustRegister registers all methods and panics on error.
func (d *Dispatcher) MustRegister(methods ...Method) {
	for _, m := range methods {
		if err := d.Register(m); err != nil {
			panic(err)
		}
	}
}

// Lookup returns the method registered under name.
func (d *Dispatcher) Lookup(name string) (*Method, bool) {
	return d.methods.Load(name)
}

// Methods returns all registered methods sorted by name.
func (d *Dispatcher) Methods() []*Method {
	out := make([]*Method, 0, d.methods.Size())
	d.methods.Range(func(_ string, m *Method) bool {
		out = append(out, m)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// --------------------------------------------------------------------------
// Local Path
// --------------------------------------------------------------------------

// Invoke runs the method name with args on this process and returns its
// result in canonical form (nil for methods without result).
func (d *Dispatcher) Invoke(ctx context.Context, name string, args ...any) (any, error) {
	m, ok := d.Lookup(name)
	if !ok {
		return nil, &UnknownMethodError{Method: name}
	}
	normalized, err := m.normalizeArgs(args)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := d.run(ctx, m, normalized)
	observe(PathLocal, name, start, err)
	return res, err
}

// run executes the handler of m with normalized arguments
func (d *Dispatcher) run(ctx context.Context, m *Method, args []any) (any, error) {
	if m.Handler == nil {
		return nil, fmt.Errorf("%w: %q", ErrNoImplementation, m.Name)
	}
	res, err := m.Handler(ctx, args)
	if err != nil {
		return nil, err
	}
	if !m.HasResult() {
		return nil, nil
	}
	res, err = schema.Normalize(m.Result, res)
	if err != nil {
		return nil, fmt.Errorf("invoke: result of %q: %w", m.Name, err)
	}
	return res, nil
}

// --------------------------------------------------------------------------
// Remote Path (receiving side)
// --------------------------------------------------------------------------

// Handle executes a call or notify envelope received from a peer. It returns
// the result or error envelope to send back, or nil for notifications.
func (d *Dispatcher) Handle(ctx context.Context, env *common.Envelope) *common.Envelope {
	if env.EnvType != common.EnvCall && env.EnvType != common.EnvNotify {
		Logger.Warningf("dispatcher cannot handle %s", env)
		return nil
	}

	// peers choose the method name, only registered names become labels
	label := env.Method
	if _, ok := d.Lookup(label); !ok {
		label = MethodUnknown
	}

	start := time.Now()
	payload, err := d.handle(ctx, env)
	observe(PathServed, label, start, err)

	if env.EnvType == common.EnvNotify {
		if err != nil {
			Logger.Warningf("notification %q failed: %v", env.Method, err)
		}
		return nil
	}
	if err != nil {
		Logger.Debugf("call %d of %q failed: %v", env.ID, env.Method, err)
		return common.NewError(env.ID, env.Method, CodeOf(err), err)
	}
	return common.NewResult(env.ID, env.Method, payload)
}

func (d *Dispatcher) handle(ctx context.Context, env *common.Envelope) ([]byte, error) {
	m, ok := d.Lookup(env.Method)
	if !ok {
		return nil, &UnknownMethodError{Method: env.Method}
	}
	args, err := d.DecodeArgs(m, env.Args)
	if err != nil {
		return nil, err
	}
	res, err := d.run(ctx, m, args)
	if err != nil || !m.HasResult() {
		return nil, err
	}
	return d.codec.MarshalValue(m.Result, res)
}

// EncodeArgs checks args against the signature of m and encodes each one as
// a structured value, in parameter order.
func (d *Dispatcher) EncodeArgs(m *Method, args []any) ([][]byte, error) {
	normalized, err := m.normalizeArgs(args)
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(normalized))
	for i, a := range normalized {
		if out[i], err = d.codec.MarshalValue(m.Params[i], a); err != nil {
			return nil, &ArgumentMismatchError{Method: m.Name, Index: i, Reason: "cannot encode", Err: err}
		}
	}
	return out, nil
}

// DecodeArgs decodes the encoded arguments of a call of m.
func (d *Dispatcher) DecodeArgs(m *Method, raw [][]byte) ([]any, error) {
	if len(raw) != len(m.Params) {
		return nil, &ArgumentMismatchError{
			Method: m.Name,
			Index:  -1,
			Reason: fmt.Sprintf("expected %d arguments, got %d", len(m.Params), len(raw)),
		}
	}
	out := make([]any, len(raw))
	for i, data := range raw {
		v, err := d.codec.UnmarshalValue(m.Params[i], data)
		if err != nil {
			return nil, &ArgumentMismatchError{
				Method: m.Name,
				Index:  i,
				Reason: fmt.Sprintf("expected %s", m.Params[i]),
				Err:    err,
			}
		}
		out[i] = v
	}
	return out, nil
}
