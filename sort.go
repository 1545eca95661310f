package keiro

import (
	"slices"

	"github.com/rs/zerolog"
)

// bucket is the coarse ordering rank of a system inside its group.
type bucket uint8

const (
	bucketFirst bucket = iota
	bucketNormal
	bucketLast
	bucketCount
)

func (b bucket) String() string {
	switch b {
	case bucketFirst:
		return "First"
	case bucketNormal:
		return "Normal"
	default:
		return "Last"
	}
}

// orderNode is the transient ordering record of one child during a sort pass.
type orderNode struct {
	desc   *SystemDescriptor
	before []int // indices of nodes this one must precede
	id     SystemID
	index  int // registration order inside the group
	bucket bucket
}

// sortSystems orders the children of one group. Children are given in
// registration order; the result is First ++ sorted(Normal) ++ Last, each
// bucket ordered by Kahn's algorithm with ties going to the earlier
// registration.
//
// Constraints naming a system outside the group, or the system itself, are
// ignored with a warning. Constraints between different buckets are ignored:
// bucket rank wins over the declared relation.
func sortSystems(children []SystemID, descs []*SystemDescriptor, logger zerolog.Logger) ([]SystemID, error) {
	nodes := make([]orderNode, len(children))
	byName := make(map[string]int, len(children))
	for i, id := range children {
		d := descs[i]
		nodes[i] = orderNode{desc: d, id: id, index: i}
		byName[d.Name] = i
		switch {
		case d.OrderFirst && d.OrderLast:
			return nil, configErr("system declares both OrderFirst and OrderLast", d.Name)
		case d.OrderFirst:
			nodes[i].bucket = bucketFirst
		case d.OrderLast:
			nodes[i].bucket = bucketLast
		default:
			nodes[i].bucket = bucketNormal
		}
	}

	addEdge := func(from, to int) {
		if !slices.Contains(nodes[from].before, to) {
			nodes[from].before = append(nodes[from].before, to)
		}
	}
	resolve := func(self int, target, relation string) (int, bool) {
		j, ok := byName[target]
		if !ok {
			logger.Warn().
				Str("system", nodes[self].desc.Name).
				Str(relation, target).
				Msg("ordering constraint targets a system outside this group, ignored")
			return 0, false
		}
		if j == self {
			logger.Warn().
				Str("system", nodes[self].desc.Name).
				Str(relation, target).
				Msg("ordering constraint targets the system itself, ignored")
			return 0, false
		}
		if nodes[j].bucket != nodes[self].bucket {
			logger.Debug().
				Str("system", nodes[self].desc.Name).
				Stringer("bucket", nodes[self].bucket).
				Str(relation, target).
				Stringer("target_bucket", nodes[j].bucket).
				Msg("ordering constraint crosses buckets, bucket order applies")
			return 0, false
		}
		return j, true
	}
	for i := range nodes {
		for _, target := range nodes[i].desc.Before {
			if j, ok := resolve(i, target, "before"); ok {
				addEdge(i, j)
			}
		}
		for _, target := range nodes[i].desc.After {
			if j, ok := resolve(i, target, "after"); ok {
				addEdge(j, i)
			}
		}
	}

	out := make([]SystemID, 0, len(nodes))
	for b := range bucketCount {
		var members []int
		for i := range nodes {
			if nodes[i].bucket == b {
				members = append(members, i)
			}
		}
		order, err := kahn(nodes, members)
		if err != nil {
			return nil, err
		}
		for _, i := range order {
			out = append(out, nodes[i].id)
		}
	}
	return out, nil
}

// kahn topologically sorts members (ascending node indices, all in one
// bucket). Among ready nodes the lowest registration index goes first.
func kahn(nodes []orderNode, members []int) ([]int, error) {
	indeg := make(map[int]int, len(members))
	for _, i := range members {
		indeg[i] += 0
		for _, j := range nodes[i].before {
			indeg[j]++
		}
	}
	ready := make([]int, 0, len(members))
	for _, i := range members {
		if indeg[i] == 0 {
			ready = append(ready, i)
		}
	}

	order := make([]int, 0, len(members))
	for len(ready) > 0 {
		n := ready[0]
		ready = ready[1:]
		order = append(order, n)
		for _, j := range nodes[n].before {
			indeg[j]--
			if indeg[j] == 0 {
				pos, _ := slices.BinarySearch(ready, j)
				ready = slices.Insert(ready, pos, j)
			}
		}
	}
	if len(order) == len(members) {
		return order, nil
	}
	return nil, cycleError(nodes, members, order)
}

// cycleError names the systems left on a cycle. Nodes that were only blocked
// downstream of a cycle are pruned by repeatedly dropping nodes without an
// outgoing edge into the remainder.
func cycleError(nodes []orderNode, members, emitted []int) error {
	remaining := make(map[int]bool, len(members)-len(emitted))
	for _, i := range members {
		if !slices.Contains(emitted, i) {
			remaining[i] = true
		}
	}
	for changed := true; changed; {
		changed = false
		for i := range remaining {
			hasOut := false
			for _, j := range nodes[i].before {
				if remaining[j] {
					hasOut = true
					break
				}
			}
			if !hasOut {
				delete(remaining, i)
				changed = true
			}
		}
	}
	idx := make([]int, 0, len(remaining))
	for i := range remaining {
		idx = append(idx, i)
	}
	slices.Sort(idx)
	names := make([]string, len(idx))
	for k, i := range idx {
		names[k] = nodes[i].desc.Name
	}
	return configErr("cyclic ordering constraints", names...)
}
