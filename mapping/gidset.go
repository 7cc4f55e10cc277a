// Package mapping lays out per-neuron compartment data in a flat frame.
//
// A Mapping is built from a GIDSet and the per-section compartment counts of
// every GID in it. Values of one frame are laid out by ascending GID, then by
// section, then by compartment; the offsets recorded here are absolute
// positions in that frame. The package performs no I/O.
package mapping

import (
	"slices"
	"strconv"
	"strings"
)

// GIDSet is an ascending set of unique neuron identifiers.
//
// The zero value is an empty set. Construct non-empty sets with NewGIDSet so the
// ordering invariant holds.
type GIDSet []uint32

// NewGIDSet returns the sorted, de-duplicated set of ids.
func NewGIDSet(ids ...uint32) GIDSet {
	if len(ids) == 0 {
		return GIDSet{}
	}

	set := slices.Clone(ids)
	slices.Sort(set)

	return GIDSet(slices.Compact(set))
}

// Len returns the number of GIDs in the set.
func (s GIDSet) Len() int {
	return len(s)
}

// Index returns the position of gid in the set, or -1 if absent.
func (s GIDSet) Index(gid uint32) int {
	i, ok := slices.BinarySearch(s, gid)
	if !ok {
		return -1
	}

	return i
}

// Contains reports whether gid is in the set.
func (s GIDSet) Contains(gid uint32) bool {
	return s.Index(gid) >= 0
}

// Equal reports whether both sets hold the same GIDs.
func (s GIDSet) Equal(other GIDSet) bool {
	return slices.Equal(s, other)
}

// Difference returns the GIDs of s that are not in other.
func (s GIDSet) Difference(other GIDSet) GIDSet {
	out := GIDSet{}
	for _, gid := range s {
		if !other.Contains(gid) {
			out = append(out, gid)
		}
	}

	return out
}

// IsSorted reports whether s is strictly ascending.
func (s GIDSet) IsSorted() bool {
	for i := 1; i < len(s); i++ {
		if s[i] <= s[i-1] {
			return false
		}
	}

	return true
}

func (s GIDSet) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, gid := range s {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatUint(uint64(gid), 10))
	}
	sb.WriteByte('}')

	return sb.String()
}

// ParseGIDSet parses a comma-separated GID list such as "1,2,5".
// Whitespace around items is ignored; an empty string yields an empty set.
func ParseGIDSet(s string) (GIDSet, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return GIDSet{}, nil
	}

	parts := strings.Split(s, ",")
	ids := make([]uint32, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(p), 10, 32)
		if err != nil {
			return nil, err
		}
		ids = append(ids, uint32(v))
	}

	return NewGIDSet(ids...), nil
}
