package keiro

import (
	"fmt"
	"sync"
)

// PoolKey identifies a family of interchangeable pooled objects.
type PoolKey uint64

const (
	// entityRecordKey is the pool family for entity identity records.
	entityRecordKey PoolKey = 1 << 32
	// systemKeyBase offsets system type ids into their own key range.
	systemKeyBase PoolKey = 2 << 32
)

// systemPoolKey returns the pool family of a registered system type.
func systemPoolKey(id SystemTypeID) PoolKey {
	return systemKeyBase | PoolKey(id)
}

// Pool is the object-recycling provider. Spawn and Recycle may be called from
// any goroutine (asset-load completions run off the tick).
type Pool interface {
	// Spawn returns a recycled instance for key, or a new one from the
	// registered factory. Poolable instances get OnInitialized(args...).
	Spawn(key PoolKey, args ...any) any
	// Recycle returns instance to the family of key, after OnRecycle.
	Recycle(key PoolKey, instance any)
	// Register installs the factory used when the family is empty.
	Register(key PoolKey, factory func() any)
}

// Poolable objects are notified around reuse.
type Poolable interface {
	OnInitialized(args ...any)
	OnRecycle()
}

// SyncPool is a mutex-guarded Pool with one free list per key.
type SyncPool struct {
	factories map[PoolKey]func() any
	free      map[PoolKey][]any
	mu        sync.Mutex
}

// NewSyncPool creates an empty pool.
func NewSyncPool() *SyncPool {
	return &SyncPool{
		factories: make(map[PoolKey]func() any),
		free:      make(map[PoolKey][]any),
	}
}

func (p *SyncPool) Register(key PoolKey, factory func() any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.factories[key] = factory
}

func (p *SyncPool) Spawn(key PoolKey, args ...any) any {
	p.mu.Lock()
	var inst any
	if list := p.free[key]; len(list) > 0 {
		last := len(list) - 1
		inst = list[last]
		list[last] = nil
		p.free[key] = list[:last]
	} else {
		factory, ok := p.factories[key]
		if !ok {
			p.mu.Unlock()
			panic(fmt.Sprintf("keiro: no factory registered for pool key %#x", uint64(key)))
		}
		inst = factory()
	}
	p.mu.Unlock()
	if pi, ok := inst.(Poolable); ok {
		pi.OnInitialized(args...)
	}
	return inst
}

func (p *SyncPool) Recycle(key PoolKey, instance any) {
	if instance == nil {
		return
	}
	if pi, ok := instance.(Poolable); ok {
		pi.OnRecycle()
	}
	p.mu.Lock()
	p.free[key] = append(p.free[key], instance)
	p.mu.Unlock()
}

// Idle returns how many recycled instances wait under key.
func (p *SyncPool) Idle(key PoolKey) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free[key])
}
