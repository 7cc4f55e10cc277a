// Package null implements a report backend that stores nothing.
//
// Writes are validated like any other backend and then discarded; frames read
// back as zeros. It is selected by the "null://" scheme or the "null" type hint
// and serves as a sink when benchmarking writers.
package null

import (
	"fmt"
	"slices"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/arloliu/creport/errs"
	"github.com/arloliu/creport/mapping"
	"github.com/arloliu/creport/report"
)

// Name is the backend name.
const Name = "null"

// Descriptor returns the registry descriptor of the null backend.
func Descriptor() report.Descriptor {
	return report.Descriptor{
		Name:    Name,
		Handles: Handles,
		New: func(init report.InitData, cfg *report.Config) (report.Backend, error) {
			return New(init, cfg)
		},
	}
}

// Handles accepts the null:// scheme.
func Handles(init report.InitData) bool {
	return report.ParseSource(init.Source).HasScheme(Name) || init.Type == Name
}

// Backend discards every write. It remembers declared compartment counts so
// mappings and frame sizes behave like a real report.
type Backend struct {
	header report.Header
	counts map[uint32][]uint16
	active *mapping.Mapping
	rows   uint64

	rowsWritten prometheus.Counter
}

var _ report.Backend = (*Backend)(nil)

// New creates a null backend.
func New(_ report.InitData, cfg *report.Config) (*Backend, error) {
	counters, err := cfg.Counters(Name)
	if err != nil {
		return nil, err
	}

	return &Backend{
		counts:      map[uint32][]uint16{},
		rowsWritten: counters.RowsWritten,
	}, nil
}

func (b *Backend) Header() report.Header {
	return b.header
}

func (b *Backend) GIDs() (mapping.GIDSet, error) {
	ids := make([]uint32, 0, len(b.counts))
	for gid := range b.counts {
		ids = append(ids, gid)
	}

	return mapping.NewGIDSet(ids...), nil
}

func (b *Backend) Mapping() (*mapping.Mapping, error) {
	if b.active != nil {
		return b.active, nil
	}

	gids, _ := b.GIDs()

	return mapping.FromCounts(gids, b.counts, b.missing)
}

func (b *Backend) UpdateMapping(gids mapping.GIDSet) error {
	m, err := mapping.FromCounts(gids, b.counts, b.missing)
	if err != nil {
		return err
	}
	b.active = m

	return nil
}

func (b *Backend) LoadFrame(timestamp float64) ([]float32, error) {
	m, err := b.Mapping()
	if err != nil {
		return nil, err
	}
	if _, err := report.FrameIndex(b.header, timestamp); err != nil {
		return nil, err
	}

	return make([]float32, m.FrameSize()), nil
}

func (b *Backend) WriteHeader(h report.Header) error {
	store, err := report.CheckHeader(b.header, h)
	if store {
		b.header = h
	}

	return err
}

func (b *Backend) WriteCompartments(gid uint32, counts []uint16) error {
	if b.header.IsZero() {
		return errs.ErrNoHeader
	}
	if prev, ok := b.counts[gid]; ok {
		if !slices.Equal(prev, counts) {
			return fmt.Errorf("%w: gid %d redeclared with different counts", errs.ErrInconsistent, gid)
		}

		return nil
	}
	b.counts[gid] = slices.Clone(counts)

	return nil
}

func (b *Backend) WriteFrame(gid uint32, values []float32, timestamp float64) (bool, error) {
	counts, ok := b.counts[gid]
	if !ok {
		return false, nil
	}
	if len(values) != mapping.Total(counts) {
		return false, fmt.Errorf("%w: gid %d expects %d values, got %d", errs.ErrInconsistent, gid, mapping.Total(counts), len(values))
	}
	if _, err := report.FrameIndex(b.header, timestamp); err != nil {
		return false, err
	}
	b.rows++
	b.rowsWritten.Inc()

	return true, nil
}

// RowsDiscarded returns the number of rows accepted and dropped so far.
func (b *Backend) RowsDiscarded() uint64 {
	return b.rows
}

func (b *Backend) Flush() error {
	return nil
}

func (b *Backend) Close() error {
	return nil
}

func (b *Backend) missing(gid uint32) error {
	return fmt.Errorf("%w: gid %d", errs.ErrNeuronNotFound, gid)
}
