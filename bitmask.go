package keiro

// bitmask256 represents a set of up to 256 component type ids. Entity records
// and queries keep one alongside their sorted id sequences so that query
// matching is a handful of word operations instead of a merge walk.
type bitmask256 [4]uint64

// set enables the bit corresponding to the given component type id. Ids
// outside the mask are ignored.
func (m *bitmask256) set(id ComponentTypeID) {
	if id >= MaxComponentTypes {
		return
	}
	i := id >> 6 // (id / 64) to find the uint64 index
	o := id & 63 // (id % 64) to find the bit offset
	m[i] |= uint64(1) << uint64(o)
}

// unset disables the bit corresponding to the given component type id.
func (m *bitmask256) unset(id ComponentTypeID) {
	if id >= MaxComponentTypes {
		return
	}
	i := id >> 6
	o := id & 63
	m[i] &= ^(uint64(1) << uint64(o))
}

// contains checks if all the bits set in `sub` are also set in `m`. This is
// how a record's mask is tested against a query's required set.
func (m bitmask256) contains(sub bitmask256) bool {
	return (m[0]&sub[0]) == sub[0] &&
		(m[1]&sub[1]) == sub[1] &&
		(m[2]&sub[2]) == sub[2] &&
		(m[3]&sub[3]) == sub[3]
}

// intersects checks if the two masks share any bit. Used for excluded sets.
func (m bitmask256) intersects(other bitmask256) bool {
	return (m[0]&other[0] != 0) ||
		(m[1]&other[1] != 0) ||
		(m[2]&other[2] != 0) ||
		(m[3]&other[3] != 0)
}

// containsBit checks if a specific bit is set in the mask.
func (m bitmask256) containsBit(id ComponentTypeID) bool {
	if id >= MaxComponentTypes {
		return false
	}
	i := id >> 6
	o := id & 63
	return (m[i] & (uint64(1) << uint64(o))) != 0
}

func (m bitmask256) isZero() bool {
	return m[0]|m[1]|m[2]|m[3] == 0
}
