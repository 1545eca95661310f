package keiro

import (
	"slices"

	"github.com/rotisserie/eris"
)

// Query selects entities by required and excluded component types. A system's
// query decides which entities appear in its interest list.
type Query struct {
	required    []ComponentTypeID
	excluded    []ComponentTypeID
	err         error
	requireMask bitmask256
	excludeMask bitmask256
}

// NewQuery builds a query from terms. ReadWrite terms are required, Exclude
// terms must be absent. A term with an id outside MaxComponentTypes makes the
// query invalid: Err reports it and the query matches nothing.
//
// Example:
//
//	q := keiro.NewQuery(keiro.Require[Position](reg), keiro.Without[Dead](reg))
func NewQuery(terms ...ComponentType) Query {
	var q Query
	for _, t := range terms {
		if t.ID >= MaxComponentTypes {
			if q.err == nil {
				q.err = eris.Wrapf(ErrComponentOutOfRange, "query term %d", t.ID)
			}
			continue
		}
		switch t.Access {
		case Exclude:
			if !q.excludeMask.containsBit(t.ID) {
				q.excludeMask.set(t.ID)
				q.excluded = append(q.excluded, t.ID)
			}
		default:
			if !q.requireMask.containsBit(t.ID) {
				q.requireMask.set(t.ID)
				q.required = append(q.required, t.ID)
			}
		}
	}
	slices.Sort(q.required)
	slices.Sort(q.excluded)
	return q
}

// Err returns the reason the query is invalid, or nil.
func (q Query) Err() error { return q.err }

// IsEmpty reports whether the query has no terms at all.
func (q Query) IsEmpty() bool {
	return len(q.required) == 0 && len(q.excluded) == 0
}

// Required returns the sorted required ids.
func (q Query) Required() []ComponentTypeID { return slices.Clone(q.required) }

// Excluded returns the sorted excluded ids.
func (q Query) Excluded() []ComponentTypeID { return slices.Clone(q.excluded) }

// MatchesArchetype tests an archetype against the query.
func (q Query) MatchesArchetype(a Archetype) bool {
	return q.matchesMask(a.mask())
}

func (q Query) matchesMask(m bitmask256) bool {
	if q.err != nil {
		return false
	}
	return m.contains(q.requireMask) && !m.intersects(q.excludeMask)
}
