package keiro

import (
	"sync"

	"github.com/rotisserie/eris"
)

// LoadCallback is the completion signature expected from asset loaders.
type LoadCallback func(result any, userdata any)

// AttachHostObject binds an external host object to a live entity, replacing
// (and announcing the detach of) any previous binding.
func (s *EntityStore) AttachHostObject(e Entity, h HostHandle) error {
	rec := s.record(e)
	if rec == nil {
		return eris.Wrapf(ErrEntityNotAlive, "attach host object to %s", e)
	}
	if prev := rec.host; prev != nil {
		rec.host = nil
		Publish(s.bus, HostObjectDetached{Entity: e, Handle: prev})
	}
	rec.host = h
	if h != nil {
		Publish(s.bus, HostObjectAttached{Entity: e, Handle: h})
	}
	return nil
}

// DetachHostObject unbinds and returns e's host object.
func (s *EntityStore) DetachHostObject(e Entity) (HostHandle, bool) {
	rec := s.record(e)
	if rec == nil || rec.host == nil {
		return nil, false
	}
	h := rec.host
	rec.host = nil
	Publish(s.bus, HostObjectDetached{Entity: e, Handle: h})
	return h, true
}

// HostObject returns e's bound host object.
func (s *EntityStore) HostObject(e Entity) (HostHandle, bool) {
	rec := s.record(e)
	if rec == nil || rec.host == nil {
		return nil, false
	}
	return rec.host, true
}

type hostAttach struct {
	handle   HostHandle
	userdata any
	entity   Entity
}

// hostQueue collects attach requests coming from loader completions running on
// other goroutines. The World drains it on the tick goroutine.
type hostQueue struct {
	pending []hostAttach
	mu      sync.Mutex
}

func (q *hostQueue) push(a hostAttach) {
	q.mu.Lock()
	q.pending = append(q.pending, a)
	q.mu.Unlock()
}

func (q *hostQueue) drain() []hostAttach {
	q.mu.Lock()
	out := q.pending
	q.pending = nil
	q.mu.Unlock()
	return out
}
