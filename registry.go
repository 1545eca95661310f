package keiro

import (
	"fmt"
	"slices"
	"sync"

	"github.com/agnivade/levenshtein"
)

// Names of the built-in group types registered by RegistryContext.Init.
const (
	InitializationGroupName = "InitializationSystemGroup"
	SimulationGroupName     = "SimulationSystemGroup"
	FixedStepGroupName      = "FixedStepSimulationSystemGroup"
)

// SystemTypeID identifies a registered system type.
type SystemTypeID uint32

// SystemSpec declares a system type: how to build it and where it runs.
// Ordering constraints name other system types.
type SystemSpec struct {
	// Factory builds a fresh instance. Groups may leave it nil.
	Factory func() System
	// Rate builds the rate manager of a group; nil runs children once per tick.
	Rate func(cfg Config) RateManager
	// Name is the unique type name constraints refer to.
	Name string
	// Group is the parent group type. Empty means the simulation group; root
	// groups set Root instead.
	Group  string
	Before []string
	After  []string
	// OrderFirst and OrderLast pick the First or Last bucket. Both at once is
	// a configuration error reported when the parent group sorts.
	OrderFirst bool
	OrderLast  bool
	// AlwaysUpdate runs the system even when its interest list is empty.
	AlwaysUpdate bool
	IsGroup      bool
	Root         bool
}

// SystemDescriptor is a registered SystemSpec.
type SystemDescriptor struct {
	SystemSpec
	ID SystemTypeID
}

// SystemRegistry is the registered-factory table: system types by id and name.
type SystemRegistry struct {
	byName      map[string]SystemTypeID
	descriptors []*SystemDescriptor
	mu          sync.RWMutex
}

func newSystemRegistry() *SystemRegistry {
	return &SystemRegistry{byName: make(map[string]SystemTypeID)}
}

// Register adds a system type.
//
// Returns:
//   - The new SystemTypeID.
//   - A *ConfigurationError if the name is empty or already registered.
func (r *SystemRegistry) Register(spec SystemSpec) (SystemTypeID, error) {
	if spec.Name == "" {
		return 0, configErr("system type has no name")
	}
	if spec.Factory == nil && !spec.IsGroup {
		return 0, configErr("leaf system type has no factory", spec.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[spec.Name]; ok {
		return 0, configErr("system type registered twice", spec.Name)
	}
	id := SystemTypeID(len(r.descriptors))
	spec.Before = slices.Clone(spec.Before)
	spec.After = slices.Clone(spec.After)
	r.descriptors = append(r.descriptors, &SystemDescriptor{SystemSpec: spec, ID: id})
	r.byName[spec.Name] = id
	return id, nil
}

// Resolve returns the descriptor for id.
func (r *SystemRegistry) Resolve(id SystemTypeID) (*SystemDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(id) >= len(r.descriptors) {
		return nil, false
	}
	return r.descriptors[id], true
}

// Lookup finds a system type by name. On a miss the error suggests the closest
// registered name.
func (r *SystemRegistry) Lookup(name string) (*SystemDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id, ok := r.byName[name]; ok {
		return r.descriptors[id], nil
	}
	if s := r.suggest(name); s != "" {
		return nil, configErr(fmt.Sprintf("unknown system type (did you mean %q?)", s), name)
	}
	return nil, configErr("unknown system type", name)
}

// update rewrites the declaration of a registered type in place. Descriptors
// are shared by pointer, so worlds see the change on their next sort.
func (r *SystemRegistry) update(name string, fn func(*SystemSpec)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byName[name]; ok {
		fn(&r.descriptors[id].SystemSpec)
	}
}

// suggest returns the registered name nearest to name, if it is close enough
// to be a plausible typo.
func (r *SystemRegistry) suggest(name string) string {
	best, bestDist := "", -1
	for _, d := range r.descriptors {
		dist := levenshtein.ComputeDistance(name, d.Name)
		if bestDist < 0 || dist < bestDist {
			best, bestDist = d.Name, dist
		}
	}
	if bestDist < 0 || float64(bestDist)/float64(max(len(name), len(best))) > 0.4 {
		return ""
	}
	return best
}

// Len returns the number of registered system types.
func (r *SystemRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.descriptors)
}

func (r *SystemRegistry) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.byName)
	r.descriptors = r.descriptors[:0]
}

// RegistryContext owns the component type table and the system factory table
// for one or more worlds. It replaces process-wide static registries: tests and
// hosts call Init, Teardown and ResetToDefaults explicitly.
type RegistryContext struct {
	Components  *TypeRegistry
	Systems     *SystemRegistry
	initialized bool
}

// NewRegistryContext creates an uninitialized context. hasher may be nil.
func NewRegistryContext(hasher TypeHasher) *RegistryContext {
	return &RegistryContext{
		Components: NewTypeRegistry(hasher),
		Systems:    newSystemRegistry(),
	}
}

// Init registers the built-in group types. Calling it twice is a no-op.
func (c *RegistryContext) Init() error {
	if c.initialized {
		return nil
	}
	builtins := []SystemSpec{
		{Name: InitializationGroupName, IsGroup: true, Root: true},
		{Name: SimulationGroupName, IsGroup: true, Root: true},
		{
			Name:       FixedStepGroupName,
			IsGroup:    true,
			Group:      SimulationGroupName,
			OrderFirst: true,
			Rate: func(cfg Config) RateManager {
				return NewFixedRateCatchUpManager(cfg.Time.FixedTimestep, cfg.Time.MaximumDeltaTime)
			},
		},
	}
	for _, spec := range builtins {
		if _, err := c.Systems.Register(spec); err != nil {
			return err
		}
	}
	c.initialized = true
	return nil
}

// Initialized reports whether Init has run since the last teardown.
func (c *RegistryContext) Initialized() bool {
	return c.initialized
}

// Teardown drops every registration. The context must be re-initialized
// before another world uses it.
func (c *RegistryContext) Teardown() {
	c.Components.reset()
	c.Systems.reset()
	c.initialized = false
}

// ResetToDefaults tears the context down and re-registers the built-ins.
func (c *RegistryContext) ResetToDefaults() error {
	c.Teardown()
	return c.Init()
}
