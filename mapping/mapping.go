package mapping

import (
	"fmt"
	"slices"
)

type (
	// SectionOffsets holds, per GID position, the absolute frame offset of every section.
	SectionOffsets [][]uint64
	// CompartmentCounts holds, per GID position, the compartment count of every section.
	CompartmentCounts [][]uint16
)

// CountsFunc returns the per-section compartment counts of gid.
type CountsFunc func(gid uint32) ([]uint16, error)

// Mapping is the frame layout of an ordered set of neurons.
//
// A Mapping is immutable once built and safe for concurrent reads.
type Mapping struct {
	gids      GIDSet
	offsets   SectionOffsets
	counts    CompartmentCounts
	bases     []uint64
	frameSize uint64
}

// Build computes the frame layout of gids.
//
// counts is called exactly once per GID, in ascending order. Each GID's base
// offset is the sum of the totals of all preceding GIDs; its section offsets are
// the base plus the prefix sums of its own counts.
//
// Parameters:
//   - gids: Neurons to lay out; must be sorted and unique (see NewGIDSet)
//   - counts: Metadata lookup, usually backed by the report store
//
// Returns:
//   - *Mapping: The layout
//   - error: The first error returned by counts, unchanged
func Build(gids GIDSet, counts CountsFunc) (*Mapping, error) {
	if !gids.IsSorted() {
		return nil, fmt.Errorf("gid set is not sorted and unique: %v", gids)
	}

	m := &Mapping{
		gids:    slices.Clone(gids),
		offsets: make(SectionOffsets, len(gids)),
		counts:  make(CompartmentCounts, len(gids)),
		bases:   make([]uint64, len(gids)),
	}
	if m.gids == nil {
		m.gids = GIDSet{}
	}

	var base uint64
	for i, gid := range gids {
		c, err := counts(gid)
		if err != nil {
			return nil, err
		}

		offsets := make([]uint64, len(c))
		next := base
		for j, n := range c {
			offsets[j] = next
			next += uint64(n)
		}

		m.offsets[i] = offsets
		m.counts[i] = slices.Clone(c)
		m.bases[i] = base
		base = next
	}
	m.frameSize = base

	return m, nil
}

// Empty returns the mapping of the empty set.
func Empty() *Mapping {
	m, _ := Build(GIDSet{}, nil)
	return m
}

// FromCounts builds a mapping from an in-memory GID to counts table.
// A GID missing from table is reported through missing.
func FromCounts(gids GIDSet, table map[uint32][]uint16, missing func(gid uint32) error) (*Mapping, error) {
	return Build(gids, func(gid uint32) ([]uint16, error) {
		c, ok := table[gid]
		if !ok {
			return nil, missing(gid)
		}

		return c, nil
	})
}

// GIDs returns the mapped neurons in frame order.
func (m *Mapping) GIDs() GIDSet {
	return m.gids
}

// Len returns the number of mapped neurons.
func (m *Mapping) Len() int {
	return len(m.gids)
}

// Offsets returns the absolute section offsets, indexed by GID position.
func (m *Mapping) Offsets() SectionOffsets {
	return m.offsets
}

// Counts returns the section compartment counts, indexed by GID position.
func (m *Mapping) Counts() CompartmentCounts {
	return m.counts
}

// FrameSize returns the number of values in one frame.
func (m *Mapping) FrameSize() uint64 {
	return m.frameSize
}

// Index returns the position of gid in the mapping, or -1.
func (m *Mapping) Index(gid uint32) int {
	return m.gids.Index(gid)
}

// Base returns the frame offset of the first value of the GID at position i.
func (m *Mapping) Base(i int) uint64 {
	return m.bases[i]
}

// Total returns the number of values of the GID at position i.
func (m *Mapping) Total(i int) uint64 {
	if i+1 < len(m.bases) {
		return m.bases[i+1] - m.bases[i]
	}

	return m.frameSize - m.bases[i]
}

// Equal reports whether both mappings describe the same layout.
func (m *Mapping) Equal(other *Mapping) bool {
	if m == nil || other == nil {
		return m == other
	}
	if !m.gids.Equal(other.gids) || m.frameSize != other.frameSize {
		return false
	}
	for i := range m.offsets {
		if !slices.Equal(m.offsets[i], other.offsets[i]) || !slices.Equal(m.counts[i], other.counts[i]) {
			return false
		}
	}

	return true
}

// Total sums a count vector.
func Total(counts []uint16) int {
	total := 0
	for _, c := range counts {
		total += int(c)
	}

	return total
}
