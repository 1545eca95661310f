package keiro

import (
	"hash/fnv"
	"reflect"
	"sync"
)

// MaxComponentTypes defines the maximum number of unique component types that
// can be registered in one TypeRegistry. This value is fixed at 256.
const MaxComponentTypes = 256

// ComponentTypeID is a dense, process-stable identifier for a component type.
type ComponentTypeID uint32

// AccessMode qualifies a component type inside a query. It never affects
// storage.
type AccessMode uint8

const (
	ReadWrite AccessMode = iota
	Exclude
)

func (m AccessMode) String() string {
	switch m {
	case ReadWrite:
		return "ReadWrite"
	case Exclude:
		return "Exclude"
	default:
		return "AccessMode(?)"
	}
}

// ComponentType pairs a type id with its access qualifier.
type ComponentType struct {
	ID     ComponentTypeID
	Access AccessMode
}

// less orders component types by id, then by access mode.
func (c ComponentType) less(o ComponentType) bool {
	if c.ID != o.ID {
		return c.ID < o.ID
	}
	return c.Access < o.Access
}

// TypeDescriptor is the metadata stored for each registered component type.
type TypeDescriptor struct {
	Type reflect.Type
	Name string
	Hash uint64
	ID   ComponentTypeID
}

// New allocates a zero-valued instance of the component and returns a pointer
// to it.
func (d TypeDescriptor) New() any {
	return reflect.New(d.Type).Interface()
}

// TypeHasher computes the content hash of a component type.
type TypeHasher func(t reflect.Type) uint64

// ContentHash is the default TypeHasher: FNV-1a over the package path and the
// type name, so the hash is stable across builds of the same source.
func ContentHash(t reflect.Type) uint64 {
	h := fnv.New64a()
	h.Write([]byte(typeName(t)))
	return h.Sum64()
}

func typeName(t reflect.Type) string {
	if t.PkgPath() == "" || t.Name() == "" {
		return t.String()
	}
	return t.PkgPath() + "." + t.Name()
}

// TypeRegistry assigns component type ids. It only grows; there is no removal.
// Lookups are safe from any goroutine.
type TypeRegistry struct {
	byType      map[reflect.Type]ComponentTypeID
	byHash      map[uint64]ComponentTypeID
	hasher      TypeHasher
	descriptors []TypeDescriptor
	mu          sync.RWMutex
}

// NewTypeRegistry creates an empty registry. A nil hasher selects ContentHash.
func NewTypeRegistry(hasher TypeHasher) *TypeRegistry {
	if hasher == nil {
		hasher = ContentHash
	}
	return &TypeRegistry{
		byType:      make(map[reflect.Type]ComponentTypeID, 16),
		byHash:      make(map[uint64]ComponentTypeID, 16),
		hasher:      hasher,
		descriptors: make([]TypeDescriptor, 0, 16),
	}
}

// Register registers a component type and returns its id. Registering the same
// type again returns the same id.
//
// Parameters:
//   - t: The component type. Pointer types are registered by their element type.
//
// Returns:
//   - The component type id.
//   - A *ConfigurationError if the content hash collides with a different,
//     already registered type, or if MaxComponentTypes would be exceeded.
func (r *TypeRegistry) Register(t reflect.Type) (ComponentTypeID, error) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	r.mu.RLock()
	id, ok := r.byType[t]
	r.mu.RUnlock()
	if ok {
		return id, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byType[t]; ok {
		return id, nil
	}
	hash := r.hasher(t)
	if other, ok := r.byHash[hash]; ok {
		return 0, configErr("component type hash collision", r.descriptors[other].Name, typeName(t))
	}
	if len(r.descriptors) >= MaxComponentTypes {
		return 0, configErr("maximum number of component types reached", typeName(t))
	}
	id = ComponentTypeID(len(r.descriptors))
	r.descriptors = append(r.descriptors, TypeDescriptor{
		Type: t,
		Name: typeName(t),
		Hash: hash,
		ID:   id,
	})
	r.byType[t] = id
	r.byHash[hash] = id
	return id, nil
}

// Resolve returns the descriptor for id.
func (r *TypeRegistry) Resolve(id ComponentTypeID) (TypeDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(id) >= len(r.descriptors) {
		return TypeDescriptor{}, false
	}
	return r.descriptors[id], true
}

// LookupByContentHash returns the id registered under hash.
func (r *TypeRegistry) LookupByContentHash(hash uint64) (ComponentTypeID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byHash[hash]
	return id, ok
}

// Lookup returns the id of an already registered type without registering it.
func (r *TypeRegistry) Lookup(t reflect.Type) (ComponentTypeID, bool) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byType[t]
	return id, ok
}

// Len returns the number of registered types.
func (r *TypeRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.descriptors)
}

// name returns the registered name for id, or a placeholder when unknown.
func (r *TypeRegistry) name(id ComponentTypeID) string {
	if d, ok := r.Resolve(id); ok {
		return d.Name
	}
	return "<unregistered>"
}

// reset drops every registration.
func (r *TypeRegistry) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.byType)
	clear(r.byHash)
	r.descriptors = r.descriptors[:0]
}

// RegisterComponent registers the component type T and returns its id.
func RegisterComponent[T any](r *TypeRegistry) (ComponentTypeID, error) {
	return r.Register(reflect.TypeFor[T]())
}

// ComponentID returns the id of T, registering it on first use. It panics if
// registration fails, mirroring how a bad type table is a setup bug.
func ComponentID[T any](r *TypeRegistry) ComponentTypeID {
	id, err := RegisterComponent[T](r)
	if err != nil {
		panic(err)
	}
	return id
}

// Require returns T as a required (ReadWrite) query term.
func Require[T any](r *TypeRegistry) ComponentType {
	return ComponentType{ID: ComponentID[T](r), Access: ReadWrite}
}

// Without returns T as an excluded query term.
func Without[T any](r *TypeRegistry) ComponentType {
	return ComponentType{ID: ComponentID[T](r), Access: Exclude}
}
