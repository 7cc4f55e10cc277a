package report

import (
	"fmt"
	"slices"

	"github.com/arloliu/creport/errs"
	"github.com/arloliu/creport/mapping"
)

// memBackend keeps a whole report in maps. It is only used by the facade tests.
type memBackend struct {
	header  Header
	counts  map[uint32][]uint16
	rows    map[uint32]map[int][]float32
	active  *mapping.Mapping
	flushes int
	closed  int
}

func newMemBackend() *memBackend {
	return &memBackend{
		counts: map[uint32][]uint16{},
		rows:   map[uint32]map[int][]float32{},
	}
}

func (b *memBackend) Header() Header { return b.header }

func (b *memBackend) GIDs() (mapping.GIDSet, error) {
	ids := make([]uint32, 0, len(b.counts))
	for gid := range b.counts {
		ids = append(ids, gid)
	}

	return mapping.NewGIDSet(ids...), nil
}

func (b *memBackend) Mapping() (*mapping.Mapping, error) {
	if b.active == nil {
		gids, _ := b.GIDs()
		if err := b.UpdateMapping(gids); err != nil {
			return nil, err
		}
	}

	return b.active, nil
}

func (b *memBackend) UpdateMapping(gids mapping.GIDSet) error {
	m, err := mapping.FromCounts(gids, b.counts, func(gid uint32) error {
		return fmt.Errorf("%w: %d", errs.ErrNeuronNotFound, gid)
	})
	if err != nil {
		return err
	}
	b.active = m

	return nil
}

func (b *memBackend) LoadFrame(timestamp float64) ([]float32, error) {
	m, err := b.Mapping()
	if err != nil {
		return nil, err
	}
	idx, err := FrameIndex(b.header, timestamp)
	if err != nil {
		return nil, err
	}

	frame := make([]float32, m.FrameSize())
	for i, gid := range m.GIDs() {
		copy(frame[m.Base(i):], b.rows[gid][idx])
	}

	return frame, nil
}

func (b *memBackend) WriteHeader(h Header) error {
	store, err := CheckHeader(b.header, h)
	if store {
		b.header = h
	}

	return err
}

func (b *memBackend) WriteCompartments(gid uint32, counts []uint16) error {
	if b.header.IsZero() {
		return errs.ErrNoHeader
	}
	if prev, ok := b.counts[gid]; ok && !slices.Equal(prev, counts) {
		return errs.ErrInconsistent
	}
	if _, ok := b.counts[gid]; !ok {
		b.counts[gid] = slices.Clone(counts)
		b.rows[gid] = map[int][]float32{}
	}

	return nil
}

func (b *memBackend) WriteFrame(gid uint32, values []float32, timestamp float64) (bool, error) {
	counts, ok := b.counts[gid]
	if !ok {
		return false, nil
	}
	if len(values) != mapping.Total(counts) {
		return false, errs.ErrInconsistent
	}
	idx, err := FrameIndex(b.header, timestamp)
	if err != nil {
		return false, err
	}
	b.rows[gid][idx] = slices.Clone(values)

	return true, nil
}

func (b *memBackend) Flush() error {
	b.flushes++
	return nil
}

func (b *memBackend) Close() error {
	b.closed++
	return nil
}
