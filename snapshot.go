package keiro

import (
	"fmt"
	"strings"
	"time"
)

// EntitySnapshot lists the components of one entity at snapshot time.
type EntitySnapshot struct {
	Components []string
	Entity     Entity
	HasHost    bool
}

// Snapshot is a debug listing of every live entity, sorted by GUID. It is
// meant for inspection and diffing, not for restoring a world.
type Snapshot struct {
	World    string
	Entities []EntitySnapshot
	Frame    uint64
	Elapsed  time.Duration
}

// Snapshot captures the live entities of the world.
func (w *World) Snapshot() Snapshot {
	snap := Snapshot{
		World:    w.name,
		Frame:    w.frame,
		Elapsed:  w.time.Elapsed,
		Entities: make([]EntitySnapshot, 0, w.store.Count()),
	}
	reg := w.registry.Components
	var live []Entity
	w.store.Each(func(e Entity) { live = append(live, e) })
	sortByGUID(live)
	for _, e := range live {
		rec := w.store.record(e)
		names := make([]string, 0, rec.archetype.Len())
		for _, t := range rec.archetype.types {
			names = append(names, reg.name(t.ID))
		}
		snap.Entities = append(snap.Entities, EntitySnapshot{
			Entity:     e,
			Components: names,
			HasHost:    rec.host != nil,
		})
	}
	return snap
}

// String renders one line per entity.
func (s Snapshot) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s frame=%d elapsed=%s entities=%d\n", s.World, s.Frame, s.Elapsed, len(s.Entities))
	for _, e := range s.Entities {
		fmt.Fprintf(&b, "  %s {%s}", e.Entity, strings.Join(e.Components, ", "))
		if e.HasHost {
			b.WriteString(" +host")
		}
		b.WriteByte('\n')
	}
	return b.String()
}
