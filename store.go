package keiro

import (
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// EntityStore is the authoritative entity table. Records live in a flat arena
// indexed by Entity.ID; freed slots are reused, GUIDs never are.
//
// All mutating methods are unexported: structural changes only happen through
// CommandBuffer playback. The exported surface is read-only, plus host-object
// binding which is not a structural change.
type EntityStore struct {
	registry *TypeRegistry
	pool     Pool
	bus      *EventBus
	logger   zerolog.Logger
	records  []*entityRecord
	free     []uint32
	nextGUID atomic.Uint64
	alive    int
	freeMu   sync.Mutex
}

func newEntityStore(registry *TypeRegistry, pool Pool, bus *EventBus, logger zerolog.Logger, capacity int) *EntityStore {
	s := &EntityStore{
		registry: registry,
		pool:     pool,
		bus:      bus,
		logger:   logger,
		records:  make([]*entityRecord, 0, capacity),
		free:     make([]uint32, 0, capacity),
	}
	pool.Register(entityRecordKey, func() any {
		return &entityRecord{slots: make([]any, 0, 8)}
	})
	return s
}

// allocate takes a free slot (or grows the arena), spawns a record from the
// pool and stamps it with the next GUID.
func (s *EntityStore) allocate() (Entity, *entityRecord) {
	guid := s.nextGUID.Add(1)
	rec := s.pool.Spawn(entityRecordKey, guid).(*entityRecord)

	s.freeMu.Lock()
	var slot uint32
	if n := len(s.free); n > 0 {
		slot = s.free[n-1]
		s.free = s.free[:n-1]
		s.records[slot] = rec
	} else {
		slot = uint32(len(s.records))
		s.records = append(s.records, rec)
	}
	s.freeMu.Unlock()

	s.alive++
	return Entity{ID: slot, GUID: guid}, rec
}

// create allocates an entity holding a zero instance of every type in arch.
func (s *EntityStore) create(arch Archetype) (Entity, error) {
	e, rec := s.allocate()
	for _, t := range arch.types {
		desc, ok := s.registry.Resolve(t.ID)
		if !ok {
			s.destroy(e)
			return Null, eris.Errorf("create %s: component type id %d is not registered", e, t.ID)
		}
		if err := rec.addComponent(t.ID, desc.New()); err != nil {
			s.destroy(e)
			return Null, err
		}
	}
	return e, nil
}

// destroy releases e. Destroying a dead or unknown entity is a no-op and
// reports false.
func (s *EntityStore) destroy(e Entity) bool {
	rec := s.record(e)
	if rec == nil {
		return false
	}
	if rec.host != nil {
		h := rec.host
		rec.host = nil
		Publish(s.bus, HostObjectDetached{Entity: e, Handle: h})
	}
	s.pool.Recycle(entityRecordKey, rec)

	s.freeMu.Lock()
	s.records[e.ID] = nil
	s.free = append(s.free, e.ID)
	s.freeMu.Unlock()

	s.alive--
	return true
}

func (s *EntityStore) addComponent(e Entity, id ComponentTypeID, instance any) error {
	rec := s.record(e)
	if rec == nil {
		return eris.Wrapf(ErrEntityNotAlive, "add component to %s", e)
	}
	if instance == nil {
		desc, ok := s.registry.Resolve(id)
		if !ok {
			return eris.Errorf("add component to %s: type id %d is not registered", e, id)
		}
		instance = desc.New()
	}
	return rec.addComponent(id, instance)
}

func (s *EntityStore) removeComponent(e Entity, id ComponentTypeID) (any, error) {
	rec := s.record(e)
	if rec == nil {
		return nil, eris.Wrapf(ErrEntityNotAlive, "remove component from %s", e)
	}
	return rec.removeComponent(id)
}

// record resolves a live handle to its record, or nil.
func (s *EntityStore) record(e Entity) *entityRecord {
	if e.IsPlaceholder() || e.GUID == 0 {
		return nil
	}
	s.freeMu.Lock()
	defer s.freeMu.Unlock()
	if int(e.ID) >= len(s.records) {
		return nil
	}
	rec := s.records[e.ID]
	if rec == nil || !rec.alive || rec.guid != e.GUID {
		return nil
	}
	return rec
}

// IsAlive reports whether e refers to a live entity.
func (s *EntityStore) IsAlive(e Entity) bool {
	return s.record(e) != nil
}

// Count returns the number of live entities.
func (s *EntityStore) Count() int {
	return s.alive
}

// Archetype returns a copy of e's archetype. Dead entities have none.
func (s *EntityStore) Archetype(e Entity) (Archetype, bool) {
	rec := s.record(e)
	if rec == nil {
		return Archetype{}, false
	}
	return rec.archetype.Clone(), true
}

// Has reports whether e holds component id.
func (s *EntityStore) Has(e Entity, id ComponentTypeID) bool {
	rec := s.record(e)
	return rec != nil && rec.mask.containsBit(id)
}

// Get returns the component instance stored under id.
func (s *EntityStore) Get(e Entity, id ComponentTypeID) (any, bool) {
	rec := s.record(e)
	if rec == nil {
		return nil, false
	}
	return rec.getComponent(id)
}

// Matches reports whether a live entity satisfies q.
func (s *EntityStore) Matches(e Entity, q Query) bool {
	rec := s.record(e)
	return rec != nil && rec.matchesQuery(q.required, q.excluded)
}

// Each calls fn for every live entity in arena order.
func (s *EntityStore) Each(fn func(Entity)) {
	for i, rec := range s.records {
		if rec != nil && rec.alive {
			fn(Entity{ID: uint32(i), GUID: rec.guid})
		}
	}
}

// Registry returns the type registry the store resolves ids against.
func (s *EntityStore) Registry() *TypeRegistry {
	return s.registry
}

// GetComponent returns e's component of type T. Components created from an
// archetype are stored as *T, components added by value are stored as *T too.
func GetComponent[T any](s *EntityStore, e Entity) (*T, bool) {
	id, ok := s.registry.Lookup(reflect.TypeFor[T]())
	if !ok {
		return nil, false
	}
	inst, ok := s.Get(e, id)
	if !ok {
		return nil, false
	}
	c, ok := inst.(*T)
	return c, ok
}

// HasComponent reports whether e holds a component of type T.
func HasComponent[T any](s *EntityStore, e Entity) bool {
	id, ok := s.registry.Lookup(reflect.TypeFor[T]())
	return ok && s.Has(e, id)
}
