// Package creport stores and reads compartment reports: per-neuron,
// per-timestep simulation values organised by GID, section and compartment.
//
// The package wires every built-in storage encoding into one registry and
// offers short-hand constructors around the report package. For backend
// specific options and the full facade API, use the report package directly.
//
// # Encodings
//
// Sources are matched against the registered backends in this order:
//
//   - null://...          discarding sink, used for benchmarks and dry runs
//   - *.bbp, *.crb        single-file frame-major binary report
//   - kv://dir#name       BadgerDB store, several reports per directory
//   - directory or *.h5d  one extensible dataset file per neuron
//
// # Basic Usage
//
// Writing a report:
//
//	r, _ := creport.Create("soma.bbp", report.WithCompression(format.CompressionZstd))
//	defer r.Close()
//
//	_ = r.WriteHeader(report.Header{StartTime: 0, EndTime: 100, Timestep: 0.1, DataUnit: "mV", TimeUnit: "ms"})
//	_ = r.WriteCompartments(42, []uint16{1, 3, 3})
//	_, _ = r.WriteFrame(42, values, 0.1)
//
// Reading a subset of neurons:
//
//	r, _ := creport.Open("soma.bbp", mapping.NewGIDSet(42, 7))
//	defer r.Close()
//
//	frame, _ := r.LoadFrame(12.5)
package creport

import (
	"context"
	"fmt"

	"github.com/arloliu/creport/backend/binary"
	"github.com/arloliu/creport/backend/dataset"
	"github.com/arloliu/creport/backend/kv"
	"github.com/arloliu/creport/backend/null"
	"github.com/arloliu/creport/errs"
	"github.com/arloliu/creport/format"
	"github.com/arloliu/creport/mapping"
	"github.com/arloliu/creport/report"
)

// NewRegistry returns a registry holding the built-in backends in selection order.
func NewRegistry() (*report.Registry, error) {
	return report.NewRegistry(
		null.Descriptor(),
		binary.Descriptor(),
		kv.Descriptor(),
		dataset.Descriptor(),
	)
}

// OpenWith opens the report described by init with the built-in backends.
func OpenWith(init report.InitData, opts ...report.Option) (*report.Report, error) {
	reg, err := NewRegistry()
	if err != nil {
		return nil, err
	}

	return report.Open(reg, init, opts...)
}

// Open opens source for reading. A nil gids maps the full population lazily.
//
// Returns:
//   - *report.Report: The open report
//   - error: errs.ErrUnsupportedFormat if no backend accepts source,
//     errs.ErrNeuronNotFound if a requested GID is absent
func Open(source string, gids mapping.GIDSet, opts ...report.Option) (*report.Report, error) {
	return OpenWith(report.InitData{Source: source, Mode: format.ModeRead, GIDs: gids}, opts...)
}

// Create opens source for writing, discarding any existing content.
func Create(source string, opts ...report.Option) (*report.Report, error) {
	return OpenWith(report.InitData{Source: source, Mode: format.ModeOverwrite}, opts...)
}

// Convert copies the header, the compartment counts of every mapped GID and
// every frame of src into dst, then flushes dst.
//
// Only the GIDs mapped in src are copied. Rows never written in src are
// copied as zeros. Convert stops between frames once ctx is done.
func Convert(ctx context.Context, src, dst *report.Report) error {
	h, err := src.Header()
	if err != nil {
		return err
	}
	m, err := src.Mapping()
	if err != nil {
		return err
	}

	if err := dst.WriteHeader(h); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	counts := m.Counts()
	for i, gid := range m.GIDs() {
		if err := dst.WriteCompartments(gid, counts[i]); err != nil {
			return fmt.Errorf("gid %d: %w", gid, err)
		}
	}

	for idx := range h.FrameCount() {
		if err := ctx.Err(); err != nil {
			return err
		}

		ts := h.Timestamp(idx)
		frame, err := src.LoadFrame(ts)
		if err != nil {
			return fmt.Errorf("read frame %d: %w", idx, err)
		}
		for i, gid := range m.GIDs() {
			row := frame[m.Base(i) : m.Base(i)+m.Total(i)]
			ok, err := dst.WriteFrame(gid, row, ts)
			if err != nil {
				return fmt.Errorf("write frame %d gid %d: %w", idx, gid, err)
			}
			if !ok {
				return fmt.Errorf("%w: gid %d was not accepted by %s", errs.ErrInconsistent, gid, dst.BackendName())
			}
		}
	}

	return dst.Flush()
}
