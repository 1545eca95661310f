package keiro

import (
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// SystemID identifies a system instance inside its World. Ids start at 1 and
// increase; zero means "no system".
type SystemID uint32

// System is the unit of per-frame logic. Only OnUpdate is required; the other
// lifecycle hooks are picked up when the implementation has them.
//
// Structural changes must go through ctx.Commands(); they are applied at the
// checkpoint after the enclosing group finishes its update.
type System interface {
	OnUpdate(ctx *SystemContext) error
}

// CreateHook runs once when the system is created into a world. A returned
// error aborts the creation.
type CreateHook interface {
	OnCreate(ctx *SystemContext) error
}

// StartRunningHook runs on every Stopped→Running transition.
type StartRunningHook interface {
	OnStartRunning(ctx *SystemContext)
}

// StopRunningHook runs on every Running→Stopped transition, and before
// OnDestroy if the system is still running.
type StopRunningHook interface {
	OnStopRunning(ctx *SystemContext)
}

// DestroyHook runs once when the system is removed from its world.
type DestroyHook interface {
	OnDestroy(ctx *SystemContext)
}

// PreUpdateHook runs in the world's PreUpdate phase.
type PreUpdateHook interface {
	OnPreUpdate(ctx *SystemContext)
}

// PostUpdateHook runs in the world's PostUpdate phase.
type PostUpdateHook interface {
	OnPostUpdate(ctx *SystemContext)
}

type systemKind uint8

const (
	kindLeaf systemKind = iota
	kindGroup
)

// groupSystem is the implementation used for groups declared without a
// factory. Its own update does nothing; the children carry the work.
type groupSystem struct{}

func (groupSystem) OnUpdate(*SystemContext) error { return nil }

// systemState is the arena record of one system. Cross references are ids
// resolved through the owning World.
type systemState struct {
	impl     System
	world    *World
	desc     *SystemDescriptor
	member   map[Entity]struct{}
	removing map[SystemID]struct{}
	rate     RateManager
	barrier  *CommandBufferSystem
	interest []Entity
	children []SystemID
	query    Query
	sortErr  error
	seq      uint64 // order of addition to the parent group
	id       SystemID
	parent   SystemID
	kind     systemKind
	// enabled is the user-facing switch; previouslyEnabled records whether
	// the system was running on its last evaluation and drives the
	// start/stop transitions.
	enabled           bool
	previouslyEnabled bool
	hasQuery          bool
	dirty             bool
}

func (s *systemState) name() string {
	return s.desc.Name
}

// runnable reports whether the system should update this pass.
func (s *systemState) runnable() bool {
	if !s.enabled {
		return false
	}
	if s.kind == kindGroup || s.desc.AlwaysUpdate || !s.hasQuery {
		return true
	}
	return len(s.interest) > 0
}

// setQuery installs q and seeds the interest list from the live entities in
// GUID order. An invalid query is rejected and the previous one kept.
func (s *systemState) setQuery(q Query) error {
	if err := q.Err(); err != nil {
		return eris.Wrapf(err, "set query of %s", s.name())
	}
	s.query = q
	s.hasQuery = true
	s.interest = s.interest[:0]
	clear(s.member)
	if s.member == nil {
		s.member = make(map[Entity]struct{})
	}
	store := s.world.store
	store.Each(func(e Entity) {
		if store.Matches(e, q) {
			s.interest = append(s.interest, e)
			s.member[e] = struct{}{}
		}
	})
	sortByGUID(s.interest)
	return nil
}

// inject updates the interest list for e after a structural change.
func (s *systemState) inject(e Entity, matches bool) {
	_, in := s.member[e]
	switch {
	case matches && !in:
		s.interest = append(s.interest, e)
		s.member[e] = struct{}{}
	case !matches && in:
		delete(s.member, e)
		for i, x := range s.interest {
			if x == e {
				s.interest = append(s.interest[:i], s.interest[i+1:]...)
				break
			}
		}
	}
}

// SystemContext is handed to every hook. It is created per invocation, so the
// buffer returned by Commands belongs to that invocation only.
type SystemContext struct {
	world    *World
	state    *systemState
	commands *CommandBuffer
}

func (w *World) contextFor(s *systemState) *SystemContext {
	return &SystemContext{world: w, state: s}
}

// World returns the owning world.
func (c *SystemContext) World() *World { return c.world }

// ID returns the system's id.
func (c *SystemContext) ID() SystemID { return c.state.id }

// Name returns the system's registered type name.
func (c *SystemContext) Name() string { return c.state.name() }

// Time returns the logical time visible to this pass.
func (c *SystemContext) Time() TimeData { return c.world.Time() }

// Store returns the entity store for reads.
func (c *SystemContext) Store() *EntityStore { return c.world.store }

// Registry returns the component type registry.
func (c *SystemContext) Registry() *TypeRegistry { return c.world.registry.Components }

// Resources returns the world's singleton store.
func (c *SystemContext) Resources() *Resources { return &c.world.resources }

// Logger returns the world logger annotated with this system.
func (c *SystemContext) Logger() zerolog.Logger {
	return c.world.logger.With().
		Uint32("system_id", uint32(c.state.id)).
		Str("system", c.state.name()).
		Logger()
}

// SetQuery sets the system's query. Typically called from OnCreate.
func (c *SystemContext) SetQuery(q Query) error { return c.state.setQuery(q) }

// Query returns the system's query and whether one is set.
func (c *SystemContext) Query() (Query, bool) { return c.state.query, c.state.hasQuery }

// Entities returns the interest list: entities matching the query, in the
// order they started matching. The slice is only valid for this invocation.
func (c *SystemContext) Entities() []Entity { return c.state.interest }

// Enabled reports the system's enabled flag.
func (c *SystemContext) Enabled() bool { return c.state.enabled }

// SetEnabled toggles the system. It takes effect on the next pass.
func (c *SystemContext) SetEnabled(v bool) { c.state.enabled = v }

// Commands returns this invocation's command buffer. It is attached to the end
// barrier of the enclosing group and played back when that group finishes.
func (c *SystemContext) Commands() *CommandBuffer {
	if c.commands != nil && c.commands.IsCreated() {
		return c.commands
	}
	var barrier *CommandBufferSystem
	if parent := c.world.state(c.state.parent); parent != nil {
		barrier = parent.barrier
	} else {
		barrier = c.world.orphanBarrier
	}
	c.commands = barrier.CreateCommandBuffer(c)
	return c.commands
}

// CommandsFor returns a new buffer attached to the command-buffer system id.
// It plays back when that system updates.
func (c *SystemContext) CommandsFor(id SystemID) (*CommandBuffer, error) {
	s := c.world.state(id)
	if s == nil {
		return nil, eris.Wrapf(ErrSystemNotFound, "command buffer system %d", id)
	}
	barrier, ok := s.impl.(*CommandBufferSystem)
	if !ok {
		return nil, eris.Errorf("system %s is not a command buffer system", s.name())
	}
	return barrier.CreateCommandBuffer(c), nil
}

// CommandBufferSystem collects buffers recorded by other systems and plays
// them back, in creation order, when it updates. Every group owns one as its
// end-of-group barrier; more can be registered as ordinary leaf systems.
type CommandBufferSystem struct {
	pending []*CommandBuffer
}

// NewCommandBufferSystem is a Factory for SystemSpec.
func NewCommandBufferSystem() System {
	return &CommandBufferSystem{}
}

// CreateCommandBuffer returns a buffer tagged with the calling system.
func (b *CommandBufferSystem) CreateCommandBuffer(ctx *SystemContext) *CommandBuffer {
	cb := NewCommandBuffer(ctx.world.registry.Components, ctx.state.id)
	b.pending = append(b.pending, cb)
	return cb
}

// Pending returns the number of buffers waiting for playback.
func (b *CommandBufferSystem) Pending() int {
	return len(b.pending)
}

func (b *CommandBufferSystem) take() []*CommandBuffer {
	out := b.pending
	b.pending = nil
	return out
}

// OnUpdate plays back every pending buffer.
func (b *CommandBufferSystem) OnUpdate(ctx *SystemContext) error {
	return ctx.world.playbackAll(b.take())
}

// OnDestroy disposes buffers that never played back.
func (b *CommandBufferSystem) OnDestroy(*SystemContext) {
	for _, cb := range b.take() {
		cb.Dispose()
	}
}
