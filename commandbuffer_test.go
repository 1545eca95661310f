package keiro

import (
	"slices"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

func setupStore(t testing.TB) (*EntityStore, *TypeRegistry) {
	t.Helper()
	r := NewTypeRegistry(nil)
	ComponentID[Position](r)
	ComponentID[Velocity](r)
	ComponentID[Health](r)
	ComponentID[Dead](r)
	return newEntityStore(r, NewSyncPool(), &EventBus{}, zerolog.Nop(), 16), r
}

// go test -run ^TestPlaybackPlaceholderArchetype$ . -count 1
func TestPlaybackPlaceholderArchetype(t *testing.T) {
	store, r := setupStore(t)
	pos := ComponentID[Position](r)
	vel := ComponentID[Velocity](r)

	cb := NewCommandBuffer(r, 0)
	e, err := cb.CreateEntity(NewArchetype(pos))
	if err != nil {
		t.Fatal(err)
	}
	if !e.IsPlaceholder() {
		t.Fatalf("expected a placeholder, got %s", e)
	}
	if err := AddComponent(cb, e, Velocity{VX: 2}); err != nil {
		t.Fatal(err)
	}

	touched, err := cb.Playback(store)
	if err != nil {
		t.Fatal(err)
	}
	if len(touched) != 1 {
		t.Fatalf("expected one touched entity, got %v", touched)
	}
	real := touched[0]
	if real.IsPlaceholder() || real.GUID != 1 {
		t.Errorf("expected a real entity with GUID 1, got %s", real)
	}
	arch, ok := store.Archetype(real)
	if !ok {
		t.Fatal("expected the entity to be alive")
	}
	if got := arch.IDs(); !slices.Equal(got, []ComponentTypeID{pos, vel}) {
		t.Errorf("expected archetype [%d %d], got %v", pos, vel, got)
	}
	v, ok := GetComponent[Velocity](store, real)
	if !ok || v.VX != 2 {
		t.Errorf("expected the recorded velocity, got %+v", v)
	}
	p, ok := GetComponent[Position](store, real)
	if !ok || *p != (Position{}) {
		t.Errorf("expected a zero position, got %+v", p)
	}
}

// go test -run ^TestPlaybackSingleUse$ . -count 1
func TestPlaybackSingleUse(t *testing.T) {
	store, r := setupStore(t)
	cb := NewCommandBuffer(r, 3)
	if _, err := cb.CreateEntity(NewArchetype()); err != nil {
		t.Fatal(err)
	}
	if _, err := cb.Playback(store); err != nil {
		t.Fatal(err)
	}
	if cb.IsCreated() {
		t.Error("expected the buffer to be disposed after playback")
	}
	if _, err := cb.Playback(store); !eris.Is(err, ErrDisposedBuffer) {
		t.Errorf("expected ErrDisposedBuffer on second playback, got %v", err)
	}
	if _, err := cb.CreateEntity(NewArchetype()); !eris.Is(err, ErrDisposedBuffer) {
		t.Errorf("expected ErrDisposedBuffer on record, got %v", err)
	}
	if store.Count() != 1 {
		t.Errorf("expected exactly one entity, got %d", store.Count())
	}

	disposed := NewCommandBuffer(r, 3)
	disposed.Dispose()
	if err := disposed.DestroyEntity(Null); !eris.Is(err, ErrDisposedBuffer) {
		t.Errorf("expected ErrDisposedBuffer after Dispose, got %v", err)
	}
}

// go test -run ^TestPlaybackInvariants$ . -count 1
func TestPlaybackInvariants(t *testing.T) {
	t.Run("DuplicateAddStops", func(t *testing.T) {
		store, r := setupStore(t)
		cb := NewCommandBuffer(r, 7)
		e, _ := cb.CreateEntity(NewArchetype(ComponentID[Position](r)))
		_ = AddComponent(cb, e, Position{})
		_, _ = cb.CreateEntity(NewArchetype())

		_, err := cb.Playback(store)
		if !eris.Is(err, ErrDuplicateComponent) || !IsInvariantViolation(err) {
			t.Fatalf("expected ErrDuplicateComponent, got %v", err)
		}
		if store.Count() != 1 {
			t.Errorf("expected playback to stop before the second create, got %d entities", store.Count())
		}
	})

	t.Run("MissingRemove", func(t *testing.T) {
		store, r := setupStore(t)
		cb := NewCommandBuffer(r, 0)
		e, _ := cb.CreateEntity(NewArchetype())
		_ = RemoveComponent[Health](cb, e)
		if _, err := cb.Playback(store); !eris.Is(err, ErrMissingComponent) {
			t.Fatalf("expected ErrMissingComponent, got %v", err)
		}
	})

	t.Run("UnknownPlaceholder", func(t *testing.T) {
		_, r := setupStore(t)
		a := NewCommandBuffer(r, 0)
		b := NewCommandBuffer(r, 0)
		_, _ = a.CreateEntity(NewArchetype())
		foreign, _ := a.CreateEntity(NewArchetype())
		if err := b.DestroyEntity(foreign); !eris.Is(err, ErrUnknownPlaceholder) {
			t.Errorf("expected ErrUnknownPlaceholder, got %v", err)
		}
	})
}

// go test -run ^TestPlaybackSoftNoOps$ . -count 1
func TestPlaybackSoftNoOps(t *testing.T) {
	store, r := setupStore(t)
	setup := NewCommandBuffer(r, 0)
	_, _ = setup.CreateEntity(NewArchetype(ComponentID[Position](r)))
	touched, err := setup.Playback(store)
	if err != nil {
		t.Fatal(err)
	}
	e := touched[0]

	first := NewCommandBuffer(r, 0)
	_ = first.DestroyEntity(e)
	_ = first.DestroyEntity(e)
	second := NewCommandBuffer(r, 0)
	_ = second.DestroyEntity(e)
	_ = AddComponent(second, e, Health{})
	_ = RemoveComponent[Position](second, e)

	if _, err := first.Playback(store); err != nil {
		t.Fatalf("expected double destroy to be a no-op, got %v", err)
	}
	touched, err = second.Playback(store)
	if err != nil {
		t.Fatalf("expected commands on a dead entity to be skipped, got %v", err)
	}
	if len(touched) != 0 {
		t.Errorf("expected nothing touched, got %v", touched)
	}
	if store.IsAlive(e) || store.Count() != 0 {
		t.Error("expected the entity to be gone")
	}
}

// go test -run ^TestRecycledRecordIsCleared$ . -count 1
func TestRecycledRecordIsCleared(t *testing.T) {
	store, r := setupStore(t)
	pos := ComponentID[Position](r)
	health := ComponentID[Health](r)

	cb := NewCommandBuffer(r, 0)
	for range 42 {
		_, _ = cb.CreateEntity(NewArchetype(pos, health))
	}
	touched, err := cb.Playback(store)
	if err != nil {
		t.Fatal(err)
	}
	victim := touched[41]
	if victim.GUID != 42 {
		t.Fatalf("expected GUID 42, got %d", victim.GUID)
	}
	old := store.record(victim)
	hp, _ := GetComponent[Health](store, victim)
	hp.Current = 99

	cb = NewCommandBuffer(r, 0)
	_ = cb.DestroyEntity(victim)
	_, _ = cb.CreateEntity(NewArchetype())
	touched, err = cb.Playback(store)
	if err != nil {
		t.Fatal(err)
	}
	reborn := touched[1]
	if reborn.ID != victim.ID {
		t.Fatalf("expected slot %d to be reused, got %d", victim.ID, reborn.ID)
	}
	if reborn.GUID != 43 {
		t.Errorf("expected a fresh GUID 43, got %d", reborn.GUID)
	}
	if store.record(reborn) != old {
		t.Error("expected the identity record to come back from the pool")
	}
	if store.Has(reborn, pos) || store.Has(reborn, health) {
		t.Error("expected no stale component on the reused record")
	}
	for i, slot := range old.slots[:cap(old.slots)] {
		if slot != nil {
			t.Errorf("expected slot %d to be cleared, got %v", i, slot)
		}
	}
	if store.IsAlive(victim) {
		t.Error("expected the stale handle to be dead")
	}
}

// go test -run ^TestAddRemoveRoundTrip$ . -count 1
func TestAddRemoveRoundTrip(t *testing.T) {
	store, r := setupStore(t)
	setup := NewCommandBuffer(r, 0)
	_, _ = setup.CreateEntity(NewArchetype(ComponentID[Velocity](r), ComponentID[Position](r)))
	touched, err := setup.Playback(store)
	if err != nil {
		t.Fatal(err)
	}
	e := touched[0]
	before, _ := store.Archetype(e)

	cb := NewCommandBuffer(r, 0)
	_ = AddComponent(cb, e, Health{Current: 1})
	_ = RemoveComponent[Health](cb, e)
	if _, err := cb.Playback(store); err != nil {
		t.Fatal(err)
	}
	after, _ := store.Archetype(e)
	if !after.Equal(before) {
		t.Errorf("expected %v after the round trip, got %v", before.IDs(), after.IDs())
	}
	if !slices.IsSorted(after.IDs()) {
		t.Errorf("expected sorted ids, got %v", after.IDs())
	}
}

// go test -run ^TestComponentIDOutOfRange$ . -count 1
func TestComponentIDOutOfRange(t *testing.T) {
	store, r := setupStore(t)
	bad := ComponentTypeID(MaxComponentTypes)

	cb := NewCommandBuffer(r, 0)
	e, err := cb.CreateEntity(NewArchetype(ComponentID[Position](r)))
	if err != nil {
		t.Fatal(err)
	}
	if err := cb.AddComponentID(e, bad, &Position{}); !eris.Is(err, ErrComponentOutOfRange) {
		t.Errorf("expected ErrComponentOutOfRange on add, got %v", err)
	}
	if err := cb.RemoveComponentID(e, bad+44); !eris.Is(err, ErrComponentOutOfRange) {
		t.Errorf("expected ErrComponentOutOfRange on remove, got %v", err)
	}
	if _, err := cb.CreateEntity(NewArchetype(bad)); !eris.Is(err, ErrComponentOutOfRange) {
		t.Errorf("expected ErrComponentOutOfRange on create, got %v", err)
	}
	if cb.Len() != 1 {
		t.Errorf("expected rejected commands to stay out of the log, got %d", cb.Len())
	}
	if _, err := cb.Playback(store); err != nil {
		t.Fatal(err)
	}
	if store.Count() != 1 {
		t.Errorf("expected one entity, got %d", store.Count())
	}

	t.Run("Query", func(t *testing.T) {
		q := NewQuery(Require[Position](r), ComponentType{ID: bad})
		if !eris.Is(q.Err(), ErrComponentOutOfRange) {
			t.Fatalf("expected an invalid query, got %v", q.Err())
		}
		if q.MatchesArchetype(NewArchetype(ComponentID[Position](r))) {
			t.Error("expected an invalid query to match nothing")
		}
		if NewArchetype(bad).mask() != (bitmask256{}) {
			t.Error("expected out-of-range ids to stay out of the mask")
		}
	})
}
