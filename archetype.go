package keiro

import (
	"slices"
	"strings"
)

// Archetype is the sorted sequence of component types an entity holds. It is
// ordered by type id, tie-broken by access mode, so equality is a plain
// element-wise comparison and membership is a binary search.
type Archetype struct {
	types []ComponentType
}

// NewArchetype builds an archetype from ids in any order. Duplicates collapse.
func NewArchetype(ids ...ComponentTypeID) Archetype {
	var a Archetype
	for _, id := range ids {
		a.insert(ComponentType{ID: id, Access: ReadWrite})
	}
	return a
}

func compareTypes(a, b ComponentType) int {
	switch {
	case a.less(b):
		return -1
	case b.less(a):
		return 1
	default:
		return 0
	}
}

// insert adds ct at its sorted position. It reports false if ct is present.
func (a *Archetype) insert(ct ComponentType) bool {
	i, found := slices.BinarySearchFunc(a.types, ct, compareTypes)
	if found {
		return false
	}
	a.types = slices.Insert(a.types, i, ct)
	return true
}

// remove deletes ct, keeping the sequence sorted. It reports false if absent.
func (a *Archetype) remove(ct ComponentType) bool {
	i, found := slices.BinarySearchFunc(a.types, ct, compareTypes)
	if !found {
		return false
	}
	a.types = slices.Delete(a.types, i, i+1)
	return true
}

// Has reports whether the archetype holds id.
func (a Archetype) Has(id ComponentTypeID) bool {
	_, found := slices.BinarySearchFunc(a.types, ComponentType{ID: id, Access: ReadWrite}, compareTypes)
	return found
}

// Len returns the number of component types.
func (a Archetype) Len() int {
	return len(a.types)
}

// Types returns a copy of the sorted sequence.
func (a Archetype) Types() []ComponentType {
	return slices.Clone(a.types)
}

// IDs returns the sorted type ids.
func (a Archetype) IDs() []ComponentTypeID {
	ids := make([]ComponentTypeID, len(a.types))
	for i, t := range a.types {
		ids[i] = t.ID
	}
	return ids
}

// Equal reports whether both archetypes hold the same sorted sequence.
func (a Archetype) Equal(o Archetype) bool {
	return slices.Equal(a.types, o.types)
}

// Clone returns an independent copy.
func (a Archetype) Clone() Archetype {
	return Archetype{types: slices.Clone(a.types)}
}

func (a Archetype) mask() bitmask256 {
	var m bitmask256
	for _, t := range a.types {
		m.set(t.ID)
	}
	return m
}

// Describe renders the archetype using registered type names.
func (a Archetype) Describe(r *TypeRegistry) string {
	names := make([]string, len(a.types))
	for i, t := range a.types {
		names[i] = r.name(t.ID)
	}
	return "{" + strings.Join(names, ", ") + "}"
}
