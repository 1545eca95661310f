package keiro

import (
	"fmt"

	"github.com/rotisserie/eris"
)

// placeholderBit marks a handle as a command-buffer-local placeholder. The GUID
// counter starts at 1 and never gets near this bit.
const placeholderBit = uint64(1) << 63

// Entity is a handle to an entity. ID is the slot in the store's record arena
// and may be reused; GUID is unique for the lifetime of the store and tells a
// live handle from a stale one.
type Entity struct {
	// ID is the arena slot of the identity record.
	ID uint32
	// GUID is the monotonically increasing identity. Zero is the null handle.
	GUID uint64
}

// Null is the zero handle. It never refers to an entity.
var Null Entity

// IsPlaceholder reports whether e was returned by CommandBuffer.CreateEntity
// and has not been resolved to a real entity.
func (e Entity) IsPlaceholder() bool {
	return e.GUID&placeholderBit != 0
}

func (e Entity) placeholderIndex() uint64 {
	return e.GUID &^ placeholderBit
}

func placeholder(index uint64) Entity {
	return Entity{GUID: placeholderBit | index}
}

func (e Entity) String() string {
	if e.IsPlaceholder() {
		return fmt.Sprintf("placeholder#%d", e.placeholderIndex())
	}
	return fmt.Sprintf("entity(%d:%d)", e.ID, e.GUID)
}

// HostHandle is an opaque reference to an external host object (a sprite, a
// sound emitter, anything a higher layer binds to an entity).
type HostHandle any

// entityRecord is the identity record stored in the arena. Component instances
// live in a sparse slot array indexed by ComponentTypeID.
type entityRecord struct {
	host      HostHandle
	slots     []any
	archetype Archetype
	guid      uint64
	mask      bitmask256
	alive     bool
}

// OnInitialized implements Poolable. The first argument is the new GUID.
func (r *entityRecord) OnInitialized(args ...any) {
	if len(args) > 0 {
		if guid, ok := args[0].(uint64); ok {
			r.guid = guid
		}
	}
	r.alive = true
}

// OnRecycle implements Poolable. Every slot is cleared so nothing survives
// into the next entity that reuses the record.
func (r *entityRecord) OnRecycle() {
	clear(r.slots)
	r.slots = r.slots[:0]
	r.archetype = Archetype{types: r.archetype.types[:0]}
	r.mask = bitmask256{}
	r.host = nil
	r.alive = false
	r.guid = 0
}

// addComponent stores instance under id. It fails if the slot is occupied.
func (r *entityRecord) addComponent(id ComponentTypeID, instance any) error {
	if r.mask.containsBit(id) {
		return eris.Wrapf(ErrDuplicateComponent, "type id %d on guid %d", id, r.guid)
	}
	if int(id) >= len(r.slots) {
		r.slots = extendSlice(r.slots, int(id)+1-len(r.slots))
	}
	r.slots[id] = instance
	r.mask.set(id)
	r.archetype.insert(ComponentType{ID: id, Access: ReadWrite})
	return nil
}

// removeComponent clears the slot for id and returns the instance it held.
func (r *entityRecord) removeComponent(id ComponentTypeID) (any, error) {
	if !r.mask.containsBit(id) {
		return nil, eris.Wrapf(ErrMissingComponent, "type id %d on guid %d", id, r.guid)
	}
	inst := r.slots[id]
	r.slots[id] = nil
	r.mask.unset(id)
	r.archetype.remove(ComponentType{ID: id, Access: ReadWrite})
	return inst, nil
}

func (r *entityRecord) getComponent(id ComponentTypeID) (any, bool) {
	if !r.mask.containsBit(id) {
		return nil, false
	}
	return r.slots[id], true
}

// matchesQuery checks required ids are all present and excluded ids all absent.
func (r *entityRecord) matchesQuery(required, excluded []ComponentTypeID) bool {
	for _, id := range required {
		if !r.mask.containsBit(id) {
			return false
		}
	}
	for _, id := range excluded {
		if r.mask.containsBit(id) {
			return false
		}
	}
	return true
}
