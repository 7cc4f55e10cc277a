package report

import (
	"github.com/arloliu/creport/format"
	"github.com/arloliu/creport/mapping"
)

// Backend is the storage contract every report encoding satisfies.
//
// Header accessors are valid once a header was read or written. Mapping
// reflects the most recent successful UpdateMapping; before any call it is
// the full population in read modes and the declared neurons in write modes.
type Backend interface {
	// Header returns the stored header, or the zero Header if none exists yet.
	Header() Header
	// GIDs returns every neuron known to the store.
	GIDs() (mapping.GIDSet, error)
	// Mapping returns the active frame layout.
	Mapping() (*mapping.Mapping, error)
	// UpdateMapping replaces the active mapping; it fails with
	// errs.ErrNeuronNotFound, leaving the mapping unchanged, if a GID is absent.
	UpdateMapping(gids mapping.GIDSet) error
	// LoadFrame returns the frame nearest to timestamp under the active mapping.
	LoadFrame(timestamp float64) ([]float32, error)
	// WriteHeader stores the header once; repeating identical values is a no-op.
	WriteHeader(h Header) error
	// WriteCompartments declares the section counts of gid.
	WriteCompartments(gid uint32, counts []uint16) error
	// WriteFrame stores one row for gid. It returns false if gid was never declared.
	WriteFrame(gid uint32, values []float32, timestamp float64) (bool, error)
	// Flush persists everything written so far. Flush is idempotent.
	Flush() error
	// Close flushes writable backends and releases every handle.
	Close() error
}

// InitData describes the report to open.
type InitData struct {
	// Source is a filesystem path or a scheme URI such as "kv://dir#name".
	Source string
	// Mode selects read, write, overwrite or read-write access.
	Mode format.AccessMode
	// GIDs is the optional initial mapping. nil selects the full population.
	GIDs mapping.GIDSet
	// Type is an optional backend name that overrides detection.
	Type string
}

// Descriptor registers one backend with a Registry.
type Descriptor struct {
	// Name is the backend name matched against InitData.Type.
	Name string
	// Handles reports whether the backend recognizes the source. It must not
	// open the report for full access.
	Handles func(init InitData) bool
	// New opens the backend.
	New func(init InitData, cfg *Config) (Backend, error)
}
