package keiro

import "reflect"

// MaxEventTypes defines the maximum number of unique event types that can be
// registered in the EventBus. This value is fixed at 256.
const MaxEventTypes = 256

// EventBus is a typed publish/subscribe channel owned by a World. The runtime
// publishes host-object binding changes and system failures on it so that
// observers such as debuggers can follow along without the core depending on
// them. Handlers run synchronously, on the goroutine that publishes.
type EventBus struct {
	eventTypeMap    map[reflect.Type]uint8
	handlers        [MaxEventTypes][]any
	nextEventTypeID uint16
}

// HostObjectAttached is published after a host object is bound to an entity.
type HostObjectAttached struct {
	Handle HostHandle
	Entity Entity
}

// HostObjectDetached is published after a host object is unbound, including
// when its entity is destroyed.
type HostObjectDetached struct {
	Handle HostHandle
	Entity Entity
}

// SystemUpdateFailed is published when a system's update returns an error or
// panics. The pass continues with the next system.
type SystemUpdateFailed struct {
	Err    error
	Name   string
	System SystemID
}

// Subscribe registers a handler to be called when an event of type `T` is
// published. Handlers are called in subscription order.
//
// Parameters:
//   - bus: The EventBus instance to subscribe to.
//   - handler: A function that takes a single argument of type `T`.
func Subscribe[T any](bus *EventBus, handler func(T)) {
	t := reflect.TypeFor[T]()
	id := bus.getEventTypeID(t)
	if cap(bus.handlers[id]) == 0 {
		bus.handlers[id] = make([]any, 0, 4)
	}
	bus.handlers[id] = append(bus.handlers[id], handler)
}

// Publish broadcasts an event of type `T` to all registered handlers for that
// type. A nil bus is allowed and drops the event.
//
// Parameters:
//   - bus: The EventBus instance to publish to.
//   - event: The event data of type `T` to be sent to handlers.
func Publish[T any](bus *EventBus, event T) {
	if bus == nil {
		return
	}
	t := reflect.TypeFor[T]()
	if id, ok := bus.eventTypeMap[t]; ok {
		for _, h := range bus.handlers[id] {
			h.(func(T))(event)
		}
	}
}

// getEventTypeID retrieves or assigns an ID for the event type.
func (bus *EventBus) getEventTypeID(t reflect.Type) uint8 {
	if bus.eventTypeMap == nil {
		bus.eventTypeMap = make(map[reflect.Type]uint8)
	}
	if id, ok := bus.eventTypeMap[t]; ok {
		return id
	}
	if int(bus.nextEventTypeID) >= MaxEventTypes {
		panic("keiro: too many event types")
	}
	id := uint8(bus.nextEventTypeID)
	bus.nextEventTypeID++
	bus.eventTypeMap[t] = id
	return id
}
