package keiro

import (
	"reflect"

	"github.com/rotisserie/eris"
)

// ErrResourceExists is returned when a singleton of the same type is already
// stored.
var ErrResourceExists = eris.New("resource of the same type already exists")

// Resources holds world-wide singletons keyed by type: settings, counters,
// handles to host services. Systems reach them through SystemContext. Slots
// of removed resources are reused.
type Resources struct {
	items   []any
	types   map[reflect.Type]int
	freeIDs []int
}

func (r *Resources) add(t reflect.Type, res any) error {
	if r.types == nil {
		r.types = make(map[reflect.Type]int)
	}
	if _, ok := r.types[t]; ok {
		return eris.Wrapf(ErrResourceExists, "%s", t)
	}
	var id int
	if n := len(r.freeIDs); n > 0 {
		id = r.freeIDs[n-1]
		r.freeIDs = r.freeIDs[:n-1]
		r.items[id] = res
	} else {
		id = len(r.items)
		r.items = append(r.items, res)
	}
	r.types[t] = id
	return nil
}

func (r *Resources) remove(t reflect.Type) bool {
	id, ok := r.types[t]
	if !ok {
		return false
	}
	delete(r.types, t)
	r.items[id] = nil
	r.freeIDs = append(r.freeIDs, id)
	return true
}

// Len returns the number of stored resources.
func (r *Resources) Len() int {
	return len(r.types)
}

// Clear removes every resource.
func (r *Resources) Clear() {
	clear(r.items)
	r.items = r.items[:0]
	clear(r.types)
	r.freeIDs = r.freeIDs[:0]
}

// AddResource stores res as the singleton of type T.
func AddResource[T any](r *Resources, res *T) error {
	if res == nil {
		return eris.Errorf("nil %s resource", reflect.TypeFor[T]())
	}
	return r.add(reflect.TypeFor[T](), res)
}

// GetResource returns the singleton of type T.
func GetResource[T any](r *Resources) (*T, bool) {
	id, ok := r.types[reflect.TypeFor[T]()]
	if !ok {
		return nil, false
	}
	return r.items[id].(*T), true
}

// RemoveResource drops the singleton of type T and reports whether it existed.
func RemoveResource[T any](r *Resources) bool {
	return r.remove(reflect.TypeFor[T]())
}
