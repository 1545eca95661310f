package keiro

import (
	"cmp"
	"slices"

	"github.com/rotisserie/eris"
)

func (w *World) state(id SystemID) *systemState {
	if id == 0 || int(id) >= len(w.systems) {
		return nil
	}
	return w.systems[id]
}

func (w *World) group(id SystemID) (*systemState, error) {
	s := w.state(id)
	if s == nil {
		return nil, eris.Wrapf(ErrSystemNotFound, "group %d", id)
	}
	if s.kind != kindGroup {
		return nil, eris.Wrapf(ErrNotAGroup, "system %s", s.name())
	}
	return s, nil
}

// CreateSystem instantiates the system type registered under name, places it
// in its declared group (creating the group if needed) and runs OnCreate.
//
// Parameters:
//   - name: A registered system type name.
//
// Returns:
//   - The new SystemID.
//   - A *ConfigurationError for an unknown name, a type already present in this
//     world, or a declared group that is not a group type.
func (w *World) CreateSystem(name string) (SystemID, error) {
	desc, err := w.registry.Systems.Lookup(name)
	if err != nil {
		return 0, err
	}
	return w.createSystem(desc)
}

// CreateSystemByID is CreateSystem keyed by type id.
func (w *World) CreateSystemByID(id SystemTypeID) (SystemID, error) {
	desc, ok := w.registry.Systems.Resolve(id)
	if !ok {
		return 0, eris.Wrapf(ErrSystemNotFound, "system type %d", id)
	}
	return w.createSystem(desc)
}

// GetOrCreateSystem returns the existing instance of the named type, creating
// it when the world has none.
func (w *World) GetOrCreateSystem(name string) (SystemID, error) {
	if id, ok := w.SystemByName(name); ok {
		return id, nil
	}
	return w.CreateSystem(name)
}

// SystemByName returns the instance of the named type, if the world has one.
func (w *World) SystemByName(name string) (SystemID, bool) {
	desc, err := w.registry.Systems.Lookup(name)
	if err != nil {
		return 0, false
	}
	id, ok := w.byType[desc.ID]
	return id, ok
}

// FixedStepGroup returns the fixed-rate simulation group, creating it on first
// use.
func (w *World) FixedStepGroup() (SystemID, error) {
	return w.GetOrCreateSystem(FixedStepGroupName)
}

func (w *World) createSystem(desc *SystemDescriptor) (SystemID, error) {
	if _, ok := w.byType[desc.ID]; ok {
		return 0, configErr("system already exists in world", desc.Name)
	}

	var parent SystemID
	if !desc.Root {
		if err := w.checkGroupChain(desc); err != nil {
			return 0, err
		}
		var err error
		if parent, err = w.GetOrCreateSystem(parentGroup(desc)); err != nil {
			return 0, err
		}
	}

	key := systemPoolKey(desc.ID)
	factory := desc.Factory
	if factory == nil {
		factory = func() System { return groupSystem{} }
	}
	w.pool.Register(key, func() any { return factory() })

	s := &systemState{
		impl:    w.pool.Spawn(key).(System),
		world:   w,
		desc:    desc,
		id:      SystemID(len(w.systems)),
		enabled: true,
	}
	if desc.IsGroup {
		s.kind = kindGroup
		s.barrier = &CommandBufferSystem{}
		if desc.Rate != nil {
			s.rate = desc.Rate(w.config)
		}
	}
	w.systems = append(w.systems, s)
	w.byType[desc.ID] = s.id

	if h, ok := s.impl.(CreateHook); ok {
		if err := h.OnCreate(w.contextFor(s)); err != nil {
			w.systems[s.id] = nil
			delete(w.byType, desc.ID)
			w.pool.Recycle(key, s.impl)
			return 0, eris.Wrapf(err, "create system %s", desc.Name)
		}
	}

	if parent == 0 {
		w.roots = append(w.roots, s.id)
	} else if err := w.AddSystemToUpdateList(parent, s.id); err != nil {
		return 0, err
	}
	w.logger.Debug().
		Uint32("system_id", uint32(s.id)).
		Str("system", desc.Name).
		Bool("group", desc.IsGroup).
		Msg("system created")
	return s.id, nil
}

func parentGroup(desc *SystemDescriptor) string {
	if desc.Group == "" {
		return SimulationGroupName
	}
	return desc.Group
}

// checkGroupChain walks the declared groups of desc up to a root or to a
// group already present in the world. Every link must name a group type and
// no group may appear twice.
func (w *World) checkGroupChain(desc *SystemDescriptor) error {
	chain := []string{desc.Name}
	for cur := desc; !cur.Root; {
		name := parentGroup(cur)
		if name == desc.Name && len(chain) == 1 {
			return configErr("system declares itself as its group", desc.Name)
		}
		if i := slices.Index(chain, name); i >= 0 {
			return configErr("group nesting cycle", chain[i:]...)
		}
		pd, err := w.registry.Systems.Lookup(name)
		if err != nil {
			return err
		}
		if !pd.IsGroup {
			return configErr("declared group is not a group type", cur.Name, name)
		}
		if _, ok := w.byType[pd.ID]; ok {
			return nil
		}
		chain = append(chain, name)
		cur = pd
	}
	return nil
}

// DestroySystem stops (if running) and destroys a system and removes it from
// its group. Children of a destroyed group are detached, not destroyed.
func (w *World) DestroySystem(id SystemID) error {
	s := w.state(id)
	if s == nil {
		return eris.Wrapf(ErrSystemNotFound, "system %d", id)
	}
	ctx := w.contextFor(s)
	if s.previouslyEnabled {
		s.previouslyEnabled = false
		if h, ok := s.impl.(StopRunningHook); ok {
			w.invoke(s, "OnStopRunning", func() error { h.OnStopRunning(ctx); return nil })
		}
	}
	if h, ok := s.impl.(DestroyHook); ok {
		w.invoke(s, "OnDestroy", func() error { h.OnDestroy(ctx); return nil })
	}
	if s.kind == kindGroup {
		for _, cb := range s.barrier.take() {
			cb.Dispose()
		}
		for _, c := range s.children {
			if cs := w.state(c); cs != nil && cs.parent == id {
				cs.parent = 0
			}
		}
	}
	if p := w.state(s.parent); p != nil {
		p.markRemoving(id)
	}
	w.roots = slices.DeleteFunc(w.roots, func(r SystemID) bool { return r == id })

	w.systems[id] = nil
	delete(w.byType, s.desc.ID)
	w.pool.Recycle(systemPoolKey(s.desc.ID), s.impl)
	w.logger.Debug().Uint32("system_id", uint32(id)).Str("system", s.name()).Msg("system destroyed")
	return nil
}

// AddSystemToUpdateList makes sys a child of group. The group re-sorts before
// its next update. Adding a group to itself or to one of its own descendants
// is a configuration error.
func (w *World) AddSystemToUpdateList(group, sys SystemID) error {
	g, err := w.group(group)
	if err != nil {
		return err
	}
	s := w.state(sys)
	if s == nil {
		return eris.Wrapf(ErrSystemNotFound, "system %d", sys)
	}
	if group == sys {
		return configErr("group cannot contain itself", g.name())
	}
	for p := g; p != nil; p = w.state(p.parent) {
		if p.id == sys {
			return configErr("group cannot contain its own ancestor", g.name(), s.name())
		}
	}
	if s.parent == group {
		return nil
	}
	if old := w.state(s.parent); old != nil {
		old.markRemoving(sys)
	}
	w.roots = slices.DeleteFunc(w.roots, func(r SystemID) bool { return r == sys })
	if _, leaving := g.removing[sys]; leaving {
		delete(g.removing, sys)
	} else {
		g.children = append(g.children, sys)
	}
	g.dirty = true
	s.parent = group
	w.nextSeq++
	s.seq = w.nextSeq
	return nil
}

// RemoveSystemFromUpdateList detaches sys from group. The removal is applied
// when the group next sorts; until then the system is skipped.
func (w *World) RemoveSystemFromUpdateList(group, sys SystemID) error {
	g, err := w.group(group)
	if err != nil {
		return err
	}
	if !slices.Contains(g.children, sys) {
		return nil
	}
	g.markRemoving(sys)
	if s := w.state(sys); s != nil && s.parent == group {
		s.parent = 0
	}
	return nil
}

func (s *systemState) markRemoving(id SystemID) {
	if s.removing == nil {
		s.removing = make(map[SystemID]struct{})
	}
	s.removing[id] = struct{}{}
	s.dirty = true
}

// SortSystems orders the children of a group now instead of before its next
// update.
func (w *World) SortSystems(group SystemID) error {
	g, err := w.group(group)
	if err != nil {
		return err
	}
	g.dirty = true
	return w.sortIfDirty(g)
}

// sortIfDirty applies pending removals and re-sorts the children of g from
// the order they were added in. The previous order is kept when the sort
// fails.
func (w *World) sortIfDirty(g *systemState) error {
	if !g.dirty {
		return nil
	}
	children := slices.DeleteFunc(slices.Clone(g.children), func(id SystemID) bool {
		_, leaving := g.removing[id]
		return leaving || w.state(id) == nil
	})
	slices.SortStableFunc(children, func(a, b SystemID) int {
		return cmp.Compare(w.systems[a].seq, w.systems[b].seq)
	})
	descs := make([]*SystemDescriptor, len(children))
	for i, id := range children {
		descs[i] = w.systems[id].desc
	}
	sorted, err := sortSystems(children, descs, w.logger.With().Str("group", g.name()).Logger())
	if err != nil {
		return err
	}
	g.children = sorted
	g.sortErr = nil
	clear(g.removing)
	g.dirty = false
	return nil
}

// Children returns the children of a group in update order, sorting first if
// the group changed.
func (w *World) Children(group SystemID) ([]SystemID, error) {
	g, err := w.group(group)
	if err != nil {
		return nil, err
	}
	if err := w.sortIfDirty(g); err != nil {
		return nil, err
	}
	return slices.Clone(g.children), nil
}

// SystemName returns the type name of a system instance.
func (w *World) SystemName(id SystemID) (string, bool) {
	s := w.state(id)
	if s == nil {
		return "", false
	}
	return s.name(), true
}

// SystemInstance returns the implementation of a system instance.
func (w *World) SystemInstance(id SystemID) (System, bool) {
	s := w.state(id)
	if s == nil {
		return nil, false
	}
	return s.impl, true
}

// Enabled reports the enabled flag of a system.
func (w *World) Enabled(id SystemID) bool {
	s := w.state(id)
	return s != nil && s.enabled
}

// SetEnabled toggles a system. Disabled groups skip their whole subtree.
func (w *World) SetEnabled(id SystemID, v bool) error {
	s := w.state(id)
	if s == nil {
		return eris.Wrapf(ErrSystemNotFound, "system %d", id)
	}
	s.enabled = v
	return nil
}

// IsRunning reports whether a system ran on its last evaluation.
func (w *World) IsRunning(id SystemID) bool {
	s := w.state(id)
	return s != nil && s.previouslyEnabled
}

// Interest returns a copy of a system's interest list.
func (w *World) Interest(id SystemID) []Entity {
	s := w.state(id)
	if s == nil {
		return nil
	}
	return slices.Clone(s.interest)
}

// SetQuery sets a system's query from outside its hooks.
func (w *World) SetQuery(id SystemID, q Query) error {
	s := w.state(id)
	if s == nil {
		return eris.Wrapf(ErrSystemNotFound, "system %d", id)
	}
	return s.setQuery(q)
}

// RateManager returns the rate manager of a group, or nil.
func (w *World) RateManager(group SystemID) RateManager {
	if s := w.state(group); s != nil {
		return s.rate
	}
	return nil
}

// SetRateManager replaces the rate manager of a group. nil runs the group
// once per tick.
func (w *World) SetRateManager(group SystemID, m RateManager) error {
	g, err := w.group(group)
	if err != nil {
		return err
	}
	g.rate = m
	return nil
}
