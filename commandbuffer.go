package keiro

import (
	"reflect"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// CommandKind enumerates the structural commands a buffer can record.
type CommandKind uint8

const (
	CmdCreateEntity CommandKind = iota
	CmdDestroyEntity
	CmdAddComponent
	CmdRemoveComponent
)

func (k CommandKind) String() string {
	switch k {
	case CmdCreateEntity:
		return "CreateEntity"
	case CmdDestroyEntity:
		return "DestroyEntity"
	case CmdAddComponent:
		return "AddComponent"
	case CmdRemoveComponent:
		return "RemoveComponent"
	default:
		return "Command(?)"
	}
}

type command struct {
	instance  any
	archetype Archetype
	entity    Entity
	system    SystemID
	typeID    ComponentTypeID
	kind      CommandKind
}

var commandLogPool = sync.Pool{
	New: func() any {
		s := make([]command, 0, 32)
		return &s
	},
}

// CommandBuffer is an ordered log of structural commands applied at a
// checkpoint. It is single-use: after Playback or Dispose every method fails
// with ErrDisposedBuffer.
type CommandBuffer struct {
	registry     *TypeRegistry
	log          *[]command
	placeholders uint64
	system       SystemID
	created      bool
}

// NewCommandBuffer creates a buffer whose commands are tagged with system. Use
// a zero SystemID for buffers recorded outside any system.
func NewCommandBuffer(registry *TypeRegistry, system SystemID) *CommandBuffer {
	return &CommandBuffer{
		registry: registry,
		log:      commandLogPool.Get().(*[]command),
		system:   system,
		created:  true,
	}
}

// IsCreated reports whether the buffer can still record or play back.
func (cb *CommandBuffer) IsCreated() bool {
	return cb.created
}

// System returns the id of the producing system.
func (cb *CommandBuffer) System() SystemID {
	return cb.system
}

// Len returns the number of recorded commands.
func (cb *CommandBuffer) Len() int {
	if !cb.created {
		return 0
	}
	return len(*cb.log)
}

// Dispose releases the buffer without playing it back.
func (cb *CommandBuffer) Dispose() {
	if !cb.created {
		return
	}
	cb.release()
}

func (cb *CommandBuffer) release() {
	log := *cb.log
	clear(log)
	*cb.log = log[:0]
	commandLogPool.Put(cb.log)
	cb.log = nil
	cb.created = false
}

func (cb *CommandBuffer) record(c command) error {
	if !cb.created {
		return eris.Wrapf(ErrDisposedBuffer, "record %s", c.kind)
	}
	switch c.kind {
	case CmdCreateEntity:
		for _, t := range c.archetype.types {
			if t.ID >= MaxComponentTypes {
				return eris.Wrapf(ErrComponentOutOfRange, "record %s with component %d", c.kind, t.ID)
			}
		}
	default:
		if c.entity.IsPlaceholder() && c.entity.placeholderIndex() >= cb.placeholders {
			return eris.Wrapf(ErrUnknownPlaceholder, "record %s on %s", c.kind, c.entity)
		}
		if c.kind != CmdDestroyEntity && c.typeID >= MaxComponentTypes {
			return eris.Wrapf(ErrComponentOutOfRange, "record %s of component %d", c.kind, c.typeID)
		}
	}
	c.system = cb.system
	*cb.log = append(*cb.log, c)
	return nil
}

// CreateEntity records the creation of an entity with arch and returns a
// placeholder that later commands in this buffer may target.
func (cb *CommandBuffer) CreateEntity(arch Archetype) (Entity, error) {
	if !cb.created {
		return Null, eris.Wrap(ErrDisposedBuffer, "record CreateEntity")
	}
	e := placeholder(cb.placeholders)
	if err := cb.record(command{kind: CmdCreateEntity, entity: e, archetype: arch.Clone()}); err != nil {
		return Null, err
	}
	cb.placeholders++
	return e, nil
}

// DestroyEntity records the destruction of e.
func (cb *CommandBuffer) DestroyEntity(e Entity) error {
	return cb.record(command{kind: CmdDestroyEntity, entity: e})
}

// AddComponentID records adding the component id to e. A nil instance is
// replaced by a zero value at playback.
func (cb *CommandBuffer) AddComponentID(e Entity, id ComponentTypeID, instance any) error {
	return cb.record(command{kind: CmdAddComponent, entity: e, typeID: id, instance: instance})
}

// RemoveComponentID records removing the component id from e.
func (cb *CommandBuffer) RemoveComponentID(e Entity, id ComponentTypeID) error {
	return cb.record(command{kind: CmdRemoveComponent, entity: e, typeID: id})
}

// AddComponent records adding value as e's component of type T.
func AddComponent[T any](cb *CommandBuffer, e Entity, value T) error {
	id, err := cb.typeID(reflect.TypeFor[T]())
	if err != nil {
		return err
	}
	return cb.AddComponentID(e, id, &value)
}

// RemoveComponent records removing e's component of type T.
func RemoveComponent[T any](cb *CommandBuffer, e Entity) error {
	id, err := cb.typeID(reflect.TypeFor[T]())
	if err != nil {
		return err
	}
	return cb.RemoveComponentID(e, id)
}

func (cb *CommandBuffer) typeID(t reflect.Type) (ComponentTypeID, error) {
	if !cb.created {
		return 0, eris.Wrap(ErrDisposedBuffer, "resolve component type")
	}
	return cb.registry.Register(t)
}

// Playback applies the log to store in recorded order and disposes the
// buffer. CreateEntity allocates a real entity and maps the placeholder to it
// for the rest of the pass. Commands whose target is dead or unknown are
// skipped.
//
// Returns:
//   - The real entities touched by a structural command, in first-touch order.
//   - An invariant violation (duplicate add, missing remove) stops playback.
func (cb *CommandBuffer) Playback(store *EntityStore) ([]Entity, error) {
	if !cb.created {
		return nil, eris.Wrap(ErrDisposedBuffer, "playback")
	}
	defer cb.release()

	var (
		resolved = make([]Entity, cb.placeholders)
		touched  = make([]Entity, 0, len(*cb.log))
		seen     = make(map[Entity]struct{}, len(*cb.log))
		logger   = store.logger
	)
	touch := func(e Entity) {
		if _, ok := seen[e]; !ok {
			seen[e] = struct{}{}
			touched = append(touched, e)
		}
	}

	for i, c := range *cb.log {
		target := c.entity
		if c.kind != CmdCreateEntity && target.IsPlaceholder() {
			target = resolved[target.placeholderIndex()]
		}
		switch c.kind {
		case CmdCreateEntity:
			e, err := store.create(c.archetype)
			if err != nil {
				return touched, eris.Wrapf(err, "command %d (system %d)", i, c.system)
			}
			resolved[c.entity.placeholderIndex()] = e
			touch(e)

		case CmdDestroyEntity:
			if !store.destroy(target) {
				skipped(logger, c, target)
				continue
			}
			touch(target)

		case CmdAddComponent:
			if !store.IsAlive(target) {
				skipped(logger, c, target)
				continue
			}
			if err := store.addComponent(target, c.typeID, c.instance); err != nil {
				return touched, eris.Wrapf(err, "command %d (system %d): add %s", i, c.system, store.registry.name(c.typeID))
			}
			touch(target)

		case CmdRemoveComponent:
			if !store.IsAlive(target) {
				skipped(logger, c, target)
				continue
			}
			if _, err := store.removeComponent(target, c.typeID); err != nil {
				return touched, eris.Wrapf(err, "command %d (system %d): remove %s", i, c.system, store.registry.name(c.typeID))
			}
			touch(target)
		}
	}
	return touched, nil
}

func skipped(logger zerolog.Logger, c command, target Entity) {
	logger.Debug().
		Str("command", c.kind.String()).
		Stringer("entity", target).
		Uint32("system_id", uint32(c.system)).
		Msg("target not alive, command skipped")
}
