package keiro

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// World owns the entity store, the system arena, the root groups and logical
// time. It is driven from outside, once per frame, by Update.
type World struct {
	logger        zerolog.Logger
	registry      *RegistryContext
	pool          Pool
	store         *EntityStore
	bus           *EventBus
	orphanBarrier *CommandBufferSystem
	byType        map[SystemTypeID]SystemID
	name          string
	systems       []*systemState // indexed by SystemID; slot 0 unused
	roots         []SystemID
	timeStack     []TimeData
	hosts         hostQueue
	resources     Resources
	config        Config
	frameErr      error
	time          TimeData
	frame         uint64
	nextSeq       uint64
	ownsRegistry  bool
	running       bool
}

type worldOptions struct {
	logger   *zerolog.Logger
	pool     Pool
	registry *RegistryContext
	config   *Config
}

// Option configures NewWorld.
type Option func(*worldOptions)

// WithLogger sets the logger. The default is the global zerolog logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *worldOptions) { o.logger = &l }
}

// WithPool sets the object pool backing entity records and systems.
func WithPool(p Pool) Option {
	return func(o *worldOptions) { o.pool = p }
}

// WithRegistry shares a registry context between worlds. A shared context is
// initialized if needed but never torn down by the world.
func WithRegistry(r *RegistryContext) Option {
	return func(o *worldOptions) { o.registry = r }
}

// WithConfig sets the runtime configuration.
func WithConfig(c Config) Option {
	return func(o *worldOptions) { o.config = &c }
}

// NewWorld creates a world with its initialization and simulation groups.
//
// Parameters:
//   - name: Used in log output.
//   - opts: Logger, pool, registry and configuration overrides.
//
// Returns:
//   - The running World, or the configuration error that prevented setup.
func NewWorld(name string, opts ...Option) (*World, error) {
	var o worldOptions
	for _, opt := range opts {
		opt(&o)
	}
	cfg := DefaultConfig()
	if o.config != nil {
		cfg = *o.config
	}
	w := &World{
		name:          name,
		config:        cfg,
		pool:          o.pool,
		registry:      o.registry,
		bus:           &EventBus{},
		orphanBarrier: &CommandBufferSystem{},
		byType:        make(map[SystemTypeID]SystemID),
		systems:       make([]*systemState, 1, 16),
	}
	if o.logger != nil {
		w.logger = o.logger.With().Str("world", name).Logger()
	} else {
		w.logger = log.Logger.With().Str("world", name).Logger().Level(cfg.Log.zerologLevel())
	}
	if w.pool == nil {
		w.pool = NewSyncPool()
	}
	if w.registry == nil {
		w.registry = NewRegistryContext(nil)
		w.ownsRegistry = true
	}
	if err := w.registry.Init(); err != nil {
		return nil, err
	}
	w.store = newEntityStore(w.registry.Components, w.pool, w.bus, w.logger, cfg.World.InitialCapacity)

	for _, root := range []string{InitializationGroupName, SimulationGroupName} {
		if _, err := w.CreateSystem(root); err != nil {
			return nil, err
		}
	}
	w.running = true
	w.logger.Debug().Msg("world created")
	return w, nil
}

// Name returns the world's name.
func (w *World) Name() string { return w.name }

// Store returns the entity store.
func (w *World) Store() *EntityStore { return w.store }

// Registry returns the registry context.
func (w *World) Registry() *RegistryContext { return w.registry }

// Events returns the world's event bus.
func (w *World) Events() *EventBus { return w.bus }

// Resources returns the world's singleton store.
func (w *World) Resources() *Resources { return &w.resources }

// Logger returns the world logger.
func (w *World) Logger() zerolog.Logger { return w.logger }

// Config returns the configuration the world was built with.
func (w *World) Config() Config { return w.config }

// Frame returns the number of completed Update calls.
func (w *World) Frame() uint64 { return w.frame }

// Running reports whether the world accepts updates.
func (w *World) Running() bool { return w.running }

// InitializationGroup returns the id of the initialization root group.
func (w *World) InitializationGroup() SystemID {
	id, _ := w.SystemByName(InitializationGroupName)
	return id
}

// SimulationGroup returns the id of the simulation root group.
func (w *World) SimulationGroup() SystemID {
	id, _ := w.SystemByName(SimulationGroupName)
	return id
}

// Roots returns the root groups in update order.
func (w *World) Roots() []SystemID {
	return append([]SystemID(nil), w.roots...)
}

// Time returns the current logical time.
func (w *World) Time() TimeData { return w.time }

// PushTime makes t the current time until the matching PopTime.
func (w *World) PushTime(t TimeData) {
	w.timeStack = append(w.timeStack, w.time)
	w.time = t
}

// PopTime restores the time that was current before the last PushTime.
func (w *World) PopTime() {
	n := len(w.timeStack)
	if n == 0 {
		return
	}
	w.time = w.timeStack[n-1]
	w.timeStack = w.timeStack[:n-1]
}

// NewCommandBuffer returns a buffer for setup code running outside systems.
// Apply it with Playback.
func (w *World) NewCommandBuffer() *CommandBuffer {
	return NewCommandBuffer(w.registry.Components, 0)
}

// Playback applies cb immediately and injects the touched entities. It is the
// checkpoint for code that runs outside the update loop.
func (w *World) Playback(cb *CommandBuffer) error {
	touched, err := cb.Playback(w.store)
	w.inject(touched)
	return err
}

func (w *World) playbackAll(buffers []*CommandBuffer) error {
	for i, cb := range buffers {
		if !cb.IsCreated() {
			continue
		}
		if err := w.Playback(cb); err != nil {
			for _, rest := range buffers[i+1:] {
				rest.Dispose()
			}
			return err
		}
	}
	return nil
}

// inject re-evaluates touched entities against every system query: new
// matches are appended to the interest list, lost matches are removed in
// place.
func (w *World) inject(touched []Entity) {
	if len(touched) == 0 {
		return
	}
	for _, s := range w.systems {
		if s == nil || !s.hasQuery {
			continue
		}
		for _, e := range touched {
			s.inject(e, w.store.Matches(e, s.query))
		}
	}
}

// HostCompletion returns a loader completion callback that binds its result
// to e. The callback may run on any goroutine; the binding is applied at the
// start of the next Update. A nil result is ignored.
func (w *World) HostCompletion(e Entity) LoadCallback {
	return func(result any, userdata any) {
		if result == nil {
			return
		}
		w.hosts.push(hostAttach{entity: e, handle: result, userdata: userdata})
	}
}

func (w *World) applyHostAttachments() {
	for _, a := range w.hosts.drain() {
		if err := w.store.AttachHostObject(a.entity, a.handle); err != nil {
			w.logger.Debug().Stringer("entity", a.entity).Msg("host object arrived for dead entity, dropped")
		}
	}
}

// Update runs one frame: PreUpdate on every root group, then Update, then
// PostUpdate. dt advances logical time.
//
// Failures inside a system's update are logged and do not stop the frame.
// A group whose children cannot be ordered (a cycle or conflicting order
// flags) is skipped with its subtree; the rest of the frame runs and the first
// such configuration error is returned. Invariant violations during playback
// abort the frame and are returned.
func (w *World) Update(dt time.Duration) error {
	if !w.running {
		return ErrWorldDisposed
	}
	w.frameErr = nil
	w.applyHostAttachments()
	w.time = TimeData{Elapsed: w.time.Elapsed + dt, Delta: dt}

	roots := w.Roots()
	for _, id := range roots {
		if err := w.phase(w.state(id), phasePre); err != nil {
			return err
		}
	}
	for _, id := range roots {
		s := w.state(id)
		if s == nil {
			continue
		}
		if err := w.updateSystem(s); err != nil {
			return err
		}
	}
	if err := w.playbackAll(w.orphanBarrier.take()); err != nil {
		return err
	}
	for _, id := range roots {
		if err := w.phase(w.state(id), phasePost); err != nil {
			return err
		}
	}
	w.frame++
	err := w.frameErr
	w.frameErr = nil
	return err
}

type phaseKind uint8

const (
	phasePre phaseKind = iota
	phasePost
)

// phase runs the pre- or post-update hook of s and, for groups, of its
// children in sorted order.
func (w *World) phase(s *systemState, p phaseKind) error {
	if s == nil || !s.enabled {
		return nil
	}
	ctx := w.contextFor(s)
	switch p {
	case phasePre:
		if h, ok := s.impl.(PreUpdateHook); ok {
			w.invoke(s, "OnPreUpdate", func() error { h.OnPreUpdate(ctx); return nil })
		}
	case phasePost:
		if h, ok := s.impl.(PostUpdateHook); ok {
			w.invoke(s, "OnPostUpdate", func() error { h.OnPostUpdate(ctx); return nil })
		}
	}
	if s.kind != kindGroup {
		return nil
	}
	if err := w.sortIfDirty(s); err != nil {
		w.sortFailed(s, err)
		return nil
	}
	for _, id := range s.children {
		if err := w.phase(w.state(id), p); err != nil {
			return err
		}
	}
	return nil
}

// updateSystem evaluates the run state of s, fires start/stop transitions and
// runs it.
func (w *World) updateSystem(s *systemState) error {
	ctx := w.contextFor(s)
	if !s.runnable() {
		if s.previouslyEnabled {
			s.previouslyEnabled = false
			if h, ok := s.impl.(StopRunningHook); ok {
				w.invoke(s, "OnStopRunning", func() error { h.OnStopRunning(ctx); return nil })
			}
		}
		return nil
	}
	if !s.previouslyEnabled {
		s.previouslyEnabled = true
		if h, ok := s.impl.(StartRunningHook); ok {
			w.invoke(s, "OnStartRunning", func() error { h.OnStartRunning(ctx); return nil })
		}
	}
	if s.kind == kindGroup {
		return w.updateGroup(ctx)
	}
	err := w.invoke(s, "OnUpdate", func() error { return s.impl.OnUpdate(ctx) })
	if err != nil && IsInvariantViolation(err) {
		return err
	}
	return nil
}

// updateGroup runs the children of a group, once or as many passes as its
// rate manager grants.
func (w *World) updateGroup(ctx *SystemContext) error {
	s := ctx.state
	if err := w.sortIfDirty(s); err != nil {
		w.sortFailed(s, err)
		return nil
	}
	if s.rate == nil {
		return w.groupPass(ctx)
	}
	var first error
	for s.rate.ShouldGroupUpdate(ctx) {
		if err := w.groupPass(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// groupPass is one pass over the children followed by the group's
// checkpoint.
func (w *World) groupPass(ctx *SystemContext) error {
	s := ctx.state
	w.invoke(s, "OnUpdate", func() error { return s.impl.OnUpdate(ctx) })
	for _, id := range s.children {
		c := w.state(id)
		if c == nil {
			continue
		}
		if _, leaving := s.removing[id]; leaving {
			continue
		}
		if err := w.updateSystem(c); err != nil {
			return err
		}
	}
	return w.playbackAll(s.barrier.take())
}

// sortFailed records a group whose children cannot be ordered. The group is
// skipped while the order stays unresolvable. The error is logged and evented
// once per failure and returned from the current Update.
func (w *World) sortFailed(g *systemState, err error) {
	if w.frameErr == nil {
		w.frameErr = err
	}
	if g.sortErr != nil {
		return
	}
	g.sortErr = err
	w.logger.Error().
		Err(err).
		Uint32("system_id", uint32(g.id)).
		Str("system", g.name()).
		Uint64("frame", w.frame).
		Msg("group skipped, children cannot be ordered")
	Publish(w.bus, SystemUpdateFailed{System: g.id, Name: g.name(), Err: err})
}

// invoke calls fn, converting a panic into an error. Failures are logged with
// the system identity and published as SystemUpdateFailed; the system stays
// enabled.
func (w *World) invoke(s *systemState, hook string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("panic: %v", r)
		}
		if err != nil {
			w.logger.Error().
				Err(err).
				Uint32("system_id", uint32(s.id)).
				Str("system", s.name()).
				Str("hook", hook).
				Uint64("frame", w.frame).
				Msg("system failed")
			Publish(w.bus, SystemUpdateFailed{System: s.id, Name: s.name(), Err: err})
		}
	}()
	return fn()
}

// Dispose destroys every system, newest first, and stops the world. A registry
// context created by the world is torn down with it.
func (w *World) Dispose() {
	if !w.running {
		return
	}
	for id := len(w.systems) - 1; id > 0; id-- {
		if w.systems[id] != nil {
			_ = w.DestroySystem(SystemID(id))
		}
	}
	for _, cb := range w.orphanBarrier.take() {
		cb.Dispose()
	}
	w.roots = nil
	w.resources.Clear()
	w.running = false
	if w.ownsRegistry {
		w.registry.Teardown()
	}
	w.logger.Debug().Uint64("frames", w.frame).Msg("world disposed")
}

func (w *World) String() string {
	return fmt.Sprintf("World(%s, %d entities)", w.name, w.store.Count())
}
