package keiro

import (
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// Playback Benchmarks
func BenchmarkPlayback(b *testing.B) {
	sizes := []int{100, 1000, 10000}
	for _, size := range sizes {
		b.Run(fmt.Sprintf("Create%d", size), func(b *testing.B) {
			store, r := setupStore(b)
			arch := NewArchetype(ComponentID[Position](r), ComponentID[Velocity](r))
			for b.Loop() {
				b.StopTimer()
				cb := NewCommandBuffer(r, 0)
				for range size {
					_, _ = cb.CreateEntity(arch)
				}
				b.StartTimer()
				touched, err := cb.Playback(store)
				if err != nil {
					b.Fatal(err)
				}
				b.StopTimer()
				cleanup := NewCommandBuffer(r, 0)
				for _, e := range touched {
					_ = cleanup.DestroyEntity(e)
				}
				_, _ = cleanup.Playback(store)
				b.StartTimer()
			}
			b.ReportAllocs()
		})
	}

	b.Run("AddRemove1000", func(b *testing.B) {
		store, r := setupStore(b)
		setup := NewCommandBuffer(r, 0)
		for range 1000 {
			_, _ = setup.CreateEntity(NewArchetype(ComponentID[Position](r)))
		}
		entities, err := setup.Playback(store)
		if err != nil {
			b.Fatal(err)
		}
		for b.Loop() {
			cb := NewCommandBuffer(r, 0)
			for _, e := range entities {
				_ = AddComponent(cb, e, Health{Current: 10, Max: 10})
				_ = RemoveComponent[Health](cb, e)
			}
			if _, err := cb.Playback(store); err != nil {
				b.Fatal(err)
			}
		}
		b.ReportAllocs()
	})
}

// Sort Benchmarks
func BenchmarkSortSystems(b *testing.B) {
	sizes := []int{10, 100, 1000}
	for _, size := range sizes {
		b.Run(fmt.Sprint(size), func(b *testing.B) {
			ids := make([]SystemID, size)
			descs := make([]*SystemDescriptor, size)
			for i := range size {
				spec := SystemSpec{Name: fmt.Sprintf("S%d", i)}
				if i > 0 {
					spec.After = []string{fmt.Sprintf("S%d", i-1)}
				}
				ids[size-1-i] = SystemID(i + 1)
				descs[size-1-i] = &SystemDescriptor{SystemSpec: spec, ID: SystemTypeID(i)}
			}
			for b.Loop() {
				if _, err := sortSystems(ids, descs, zerolog.Nop()); err != nil {
					b.Fatal(err)
				}
			}
			b.ReportAllocs()
		})
	}
}

// World Update Benchmarks
func BenchmarkWorldUpdate(b *testing.B) {
	c := NewRegistryContext(nil)
	if err := c.Init(); err != nil {
		b.Fatal(err)
	}
	for i := range 50 {
		_, _ = c.Systems.Register(SystemSpec{Name: fmt.Sprintf("S%d", i), Factory: noopFactory, AlwaysUpdate: true})
	}
	w, err := NewWorld("bench", WithRegistry(c), WithLogger(zerolog.Nop()))
	if err != nil {
		b.Fatal(err)
	}
	defer w.Dispose()
	for i := range 50 {
		if _, err := w.CreateSystem(fmt.Sprintf("S%d", i)); err != nil {
			b.Fatal(err)
		}
	}
	for b.Loop() {
		if err := w.Update(time.Millisecond); err != nil {
			b.Fatal(err)
		}
	}
	b.ReportAllocs()
}
