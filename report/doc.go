// Package report defines the compartment report contract and its facade.
//
// A compartment report stores, for every neuron (GID) and every simulation
// timestep, one scalar value per compartment. Storage encodings implement
// Backend; a Registry picks the encoding for a source by evaluating the
// Handles predicate of each registered Descriptor in order. Applications hold
// a *Report, which delegates to the selected backend.
//
// # Frames
//
// A frame is the concatenation of every mapped neuron's values at one
// timestep, laid out by ascending GID, then section, then compartment. The
// frame holding a timestamp is found with FrameIndex:
//
//	idx = round((t - start) / timestep), clamped to [0, frames-1]
//
// where frames = round((end - start) / timestep). Timestamps before
// start - timestep/2 or at/after end fail with errs.ErrOutOfRange.
//
// # Mapping Policy
//
// UpdateMapping fails with errs.ErrNeuronNotFound if any requested GID is
// absent from the store; the previous mapping stays active.
//
// # Concurrency
//
// A Report is not safe for concurrent mutation. Concurrent LoadFrame calls
// are safe while the mapping is not being changed. Wrap a Report in a
// Serialized to share it between goroutines.
package report
