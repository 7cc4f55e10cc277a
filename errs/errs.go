// Package errs defines the sentinel errors shared by every creport package.
//
// Errors fall into four groups:
//
//   - Format errors: the source matches no backend, or a backend found corrupt or
//     missing metadata (ErrUnsupportedFormat, ErrCorruptFormat and the header
//     parsing errors).
//   - Not-found errors: a GID or a timestamp is outside what the report holds
//     (ErrNeuronNotFound, ErrOutOfRange, ErrNotFound).
//   - Consistency errors: a call conflicts with state already established
//     (ErrInconsistent, ErrNoHeader, ErrReadOnly, ErrClosed).
//   - I/O errors: failures of the storage medium, wrapped in *IOError.
//
// All errors are meant to be checked with errors.Is / errors.As.
package errs

import (
	"errors"
	"fmt"
	"os"
	"syscall"
)

// Format errors.
var (
	ErrUnsupportedFormat = errors.New("unsupported report format")
	ErrCorruptFormat     = errors.New("corrupt report format")

	ErrInvalidHeaderSize  = errors.New("invalid header size")
	ErrInvalidMagicNumber = errors.New("invalid magic number")
	ErrInvalidHeaderFlags = errors.New("invalid header flags")
	ErrChecksumMismatch   = errors.New("checksum mismatch")
	ErrInvalidCompression = errors.New("invalid compression type")
)

// Not-found errors.
var (
	ErrNeuronNotFound = errors.New("neuron not found")
	ErrOutOfRange     = errors.New("timestamp out of range")
	ErrNotFound       = errors.New("report not found")
)

// Consistency errors.
var (
	ErrInconsistent  = errors.New("inconsistent report data")
	ErrInvalidHeader = errors.New("invalid report header")
	ErrNoHeader      = errors.New("report header not written")
	ErrReadOnly      = errors.New("report opened read-only")
	ErrWriteOnly     = errors.New("report opened write-only")
	ErrClosed        = errors.New("report is closed")
)

// IOError wraps a failure of the underlying storage medium.
//
// The engine never retries; Retryable only reports whether the caller may
// reasonably try again.
type IOError struct {
	Op   string
	Path string
	Err  error
}

// NewIOError wraps err unless it is nil or already an *IOError.
func NewIOError(op, path string, err error) error {
	if err == nil {
		return nil
	}

	var ioErr *IOError
	if errors.As(err, &ioErr) {
		return err
	}

	return &IOError{Op: op, Path: path, Err: err}
}

func (e *IOError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}

	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure is transient (interrupted or timed out).
// Permission, disk-full and hardware failures are not retryable.
func (e *IOError) Retryable() bool {
	if errors.Is(e.Err, syscall.EINTR) || errors.Is(e.Err, syscall.EAGAIN) {
		return true
	}

	return os.IsTimeout(e.Err)
}

// IsRetryable reports whether err carries a retryable *IOError.
func IsRetryable(err error) bool {
	var ioErr *IOError
	if errors.As(err, &ioErr) {
		return ioErr.Retryable()
	}

	return false
}
