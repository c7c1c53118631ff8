package refcount

import (
	"slices"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// ErrDestroyed is returned when an operation targets a reclaimed object.
var ErrDestroyed = errors.New("refcount: object already destroyed")

type ObjectID uint64

// Object is a counted heap cell.
type Object struct {
	ID   ObjectID
	Name string

	refs  int
	alive bool
	edges []*Object
	weak  []ObjectID
}

// Hook observes object lifecycle events.
type Hook func(*Object)

type Option func(*Heap)

// WithCreateHook is called after an object is allocated.
func WithCreateHook(h Hook) Option {
	return func(hp *Heap) { hp.onCreate = h }
}

// WithDestroyHook is called once, right before an object leaves the heap.
func WithDestroyHook(h Hook) Option {
	return func(hp *Heap) { hp.onDestroy = h }
}

func WithLogger(l *zap.Logger) Option {
	return func(hp *Heap) { hp.log = l }
}

// Heap tracks every live object. It is safe for concurrent use; hooks run
// with the heap lock held and must not call back into the heap.
type Heap struct {
	mu      sync.Mutex
	nextID  ObjectID
	objects map[ObjectID]*Object

	onCreate  Hook
	onDestroy Hook
	log       *zap.Logger
}

func NewHeap(opts ...Option) *Heap {
	h := &Heap{
		objects: make(map[ObjectID]*Object),
		log:     zap.NewNop(),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// New allocates an object holding one reference: the caller's.
func (h *Heap) New(name string) *Object {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	o := &Object{ID: h.nextID, Name: name, refs: 1, alive: true}
	h.objects[o.ID] = o
	if h.onCreate != nil {
		h.onCreate(o)
	}
	h.log.Debug("object created", zap.Uint64("id", uint64(o.ID)), zap.String("name", name))
	return o
}

// Retain records one more owner of o and returns it, so aliasing reads as
// alias := heap.Retain(obj).
func (h *Heap) Retain(o *Object) (*Object, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !o.alive {
		return nil, errors.Wrapf(ErrDestroyed, "retain %q", o.Name)
	}
	o.refs++
	return o, nil
}

// Release drops one owner of o. At zero o is destroyed and the objects it
// owns are released in turn.
func (h *Heap) Release(o *Object) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !o.alive {
		return errors.Wrapf(ErrDestroyed, "release %q", o.Name)
	}
	h.decref(o)
	return nil
}

func (h *Heap) decref(o *Object) {
	// Iterative so long chains do not grow the stack.
	pending := []*Object{o}
	for len(pending) > 0 {
		cur := pending[len(pending)-1]
		pending = pending[:len(pending)-1]
		if !cur.alive {
			continue
		}
		cur.refs--
		if cur.refs > 0 {
			continue
		}
		edges := h.destroy(cur)
		pending = append(pending, edges...)
	}
}

// destroy removes o from the heap and returns the objects it owned.
func (h *Heap) destroy(o *Object) []*Object {
	if h.onDestroy != nil {
		h.onDestroy(o)
	}
	o.alive = false
	delete(h.objects, o.ID)
	edges := o.edges
	o.edges = nil
	o.weak = nil
	h.log.Debug("object destroyed", zap.Uint64("id", uint64(o.ID)), zap.String("name", o.Name))
	return edges
}

// Link adds an owning edge from -> to.
func (h *Heap) Link(from, to *Object) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := checkAlive(from, to); err != nil {
		return err
	}
	from.edges = append(from.edges, to)
	to.refs++
	return nil
}

// LinkWeak adds a non-owning edge from -> to.
func (h *Heap) LinkWeak(from, to *Object) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := checkAlive(from, to); err != nil {
		return err
	}
	from.weak = append(from.weak, to.ID)
	return nil
}

func checkAlive(objs ...*Object) error {
	for _, o := range objs {
		if !o.alive {
			return errors.Wrapf(ErrDestroyed, "link %q", o.Name)
		}
	}
	return nil
}

// Neighbors returns the objects o owns.
func (h *Heap) Neighbors(o *Object) []*Object {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(o.edges)
}

// WeakNeighbors resolves o's weak edges, skipping targets already destroyed.
func (h *Heap) WeakNeighbors(o *Object) []*Object {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*Object, 0, len(o.weak))
	for _, id := range o.weak {
		if t, ok := h.objects[id]; ok {
			out = append(out, t)
		}
	}
	return out
}

func (h *Heap) RefCount(o *Object) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !o.alive {
		return 0
	}
	return o.refs
}

func (h *Heap) Alive(o *Object) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return o.alive
}

// Live is the number of objects still on the heap.
func (h *Heap) Live() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.objects)
}
