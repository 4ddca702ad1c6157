package schema

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("schema")

// Registry maps type names to type descriptors. Registration happens during
// process initialization, after which the registry is frozen and only read.
// Lookups never take a lock.
type Registry struct {
	types  *xsync.MapOf[string, *Type]
	mu     sync.Mutex // serializes registrations
	frozen atomic.Bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		types: xsync.NewMapOf[string, *Type](),
	}
}

// Register adds t to the registry. It fails with a *DuplicateTypeError if a
// type with the same name is already present and with ErrRegistryFrozen
// after Freeze.
func (r *Registry) Register(t *Type) error {
	if t == nil {
		return errors.New("schema: cannot register nil type")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen.Load() {
		return fmt.Errorf("%w: cannot register type %q", ErrRegistryFrozen, t.Name())
	}
	if _, loaded := r.types.LoadOrStore(t.Name(), t); loaded {
		return &DuplicateTypeError{Type: t.Name()}
	}

	Logger.Debugf("registered type %q with %d fields", t.Name(), len(t.Fields()))
	return nil
}

// MustRegister registers all given types and panics on the first error.
func (r *Registry) MustRegister(types ...*Type) {
	for _, t := range types {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
}

// Lookup returns the descriptor of the named type.
func (r *Registry) Lookup(name string) (*Type, bool) {
	return r.types.Load(name)
}

// TypeOf returns the descriptor of the type of o.
func (r *Registry) TypeOf(o Object) (*Type, error) {
	t, ok := r.types.Load(o.TypeName())
	if !ok {
		return nil, &UnknownTypeError{Type: o.TypeName()}
	}
	return t, nil
}

// Create returns a fresh, default valued instance of the named type.
func (r *Registry) Create(name string) (Object, error) {
	t, ok := r.types.Load(name)
	if !ok {
		return nil, &UnknownTypeError{Type: name}
	}
	return t.New(), nil
}

// Freeze validates that every object reference names a registered type and
// closes the registry for further registrations. Freezing twice is a no-op.
func (r *Registry) Freeze() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen.Load() {
		return nil
	}

	var errs []error
	r.types.Range(func(name string, t *Type) bool {
		for _, f := range t.Fields() {
			ref := f.Type
			if ref.Kind != KindObject && ref.Elem != KindObject {
				continue
			}
			if _, ok := r.types.Load(ref.TypeName); !ok {
				errs = append(errs, fmt.Errorf("field %q of type %q: %w", f.Name, name, &UnknownTypeError{Type: ref.TypeName}))
			}
		}
		return true
	})
	if err := errors.Join(errs...); err != nil {
		return err
	}

	r.frozen.Store(true)
	Logger.Infof("registry frozen with %d types", r.types.Size())
	return nil
}

// Frozen reports whether Freeze has completed.
func (r *Registry) Frozen() bool {
	return r.frozen.Load()
}

// Names returns the registered type names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, r.types.Size())
	r.types.Range(func(name string, _ *Type) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)
	return names
}
