package keiro

import (
	"testing"
)

// EventBus test events
type TestEvent struct {
	Value int
}

func TestEventBusSubscribeAndPublish(t *testing.T) {
	bus := &EventBus{}
	received := 0
	Subscribe(bus, func(e TestEvent) {
		received += e.Value
	})
	Subscribe(bus, func(e TestEvent) {
		received += e.Value * 2
	})
	Publish(bus, TestEvent{Value: 1})
	if received != 3 {
		t.Errorf("expected received 3, got %d", received)
	}
	Publish(bus, TestEvent{Value: 2})
	if received != 3+6 {
		t.Errorf("expected received 9, got %d", received)
	}
}

func TestEventBusMultipleTypes(t *testing.T) {
	bus := &EventBus{}
	var attached, detached []Entity
	Subscribe(bus, func(e HostObjectAttached) {
		attached = append(attached, e.Entity)
	})
	Subscribe(bus, func(e HostObjectDetached) {
		detached = append(detached, e.Entity)
	})
	Publish(bus, HostObjectAttached{Entity: Entity{ID: 1, GUID: 1}})
	Publish(bus, HostObjectDetached{Entity: Entity{ID: 2, GUID: 2}})
	if len(attached) != 1 || attached[0].GUID != 1 {
		t.Errorf("expected one attach for GUID 1, got %v", attached)
	}
	if len(detached) != 1 || detached[0].GUID != 2 {
		t.Errorf("expected one detach for GUID 2, got %v", detached)
	}
}

func TestEventBusNoHandlers(t *testing.T) {
	bus := &EventBus{}
	// No panic expected
	Publish(bus, TestEvent{Value: 42})
	Publish[TestEvent](nil, TestEvent{Value: 42})
}

func TestEventBusManySubscribers(t *testing.T) {
	bus := &EventBus{}
	const numSubs = 100
	received := 0
	for i := 0; i < numSubs; i++ {
		Subscribe(bus, func(e TestEvent) {
			received += e.Value
		})
	}
	Publish(bus, TestEvent{Value: 1})
	if received != numSubs {
		t.Errorf("expected %d, got %d", numSubs, received)
	}
}

func TestEventBusHostBinding(t *testing.T) {
	store, r := setupStore(t)
	var events []string
	Subscribe(store.bus, func(e HostObjectAttached) { events = append(events, "attach:"+e.Handle.(string)) })
	Subscribe(store.bus, func(e HostObjectDetached) { events = append(events, "detach:"+e.Handle.(string)) })

	cb := NewCommandBuffer(r, 0)
	_, _ = cb.CreateEntity(NewArchetype())
	touched, _ := cb.Playback(store)
	e := touched[0]

	if err := store.AttachHostObject(e, "a"); err != nil {
		t.Fatal(err)
	}
	if err := store.AttachHostObject(e, "b"); err != nil {
		t.Fatal(err)
	}
	if h, ok := store.HostObject(e); !ok || h != "b" {
		t.Errorf("expected host b, got %v", h)
	}
	store.destroy(e)
	want := []string{"attach:a", "detach:a", "attach:b", "detach:b"}
	if len(events) != len(want) {
		t.Fatalf("expected %v, got %v", want, events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event %d: expected %s, got %s", i, want[i], events[i])
		}
	}
	if err := store.AttachHostObject(e, "c"); err == nil {
		t.Error("expected attach to a dead entity to fail")
	}
}
