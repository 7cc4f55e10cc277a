package report

import (
	"context"
	"sync"

	"github.com/arloliu/creport/errs"
	"github.com/arloliu/creport/mapping"
)

// Serialized shares a Report between goroutines.
//
// A single goroutine owns the report and runs submitted calls one at a time in
// submission order. The context of a call only bounds how long the caller
// waits: a call that was already handed to the owner still runs to completion,
// and its results are discarded.
type Serialized struct {
	report *Report
	reqs   chan func()
	quit   chan struct{}
	done   chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// NewSerialized starts the owning goroutine for r.
// The caller must not use r directly afterwards.
func NewSerialized(r *Report) *Serialized {
	s := &Serialized{
		report: r,
		reqs:   make(chan func()),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.loop()

	return s
}

func (s *Serialized) loop() {
	defer close(s.done)
	for {
		select {
		case fn := <-s.reqs:
			fn()
		case <-s.quit:
			return
		}
	}
}

// Do runs fn on the owning goroutine and returns its error.
//
// Returns:
//   - error: fn's error, ctx.Err() if the caller stopped waiting, or ErrClosed
func (s *Serialized) Do(ctx context.Context, fn func(r *Report) error) error {
	result := make(chan error, 1)
	req := func() { result <- fn(s.report) }

	select {
	case s.reqs <- req:
	case <-s.quit:
		return errs.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Header returns the report header.
func (s *Serialized) Header(ctx context.Context) (Header, error) {
	var h Header
	err := s.Do(ctx, func(r *Report) error {
		var err error
		h, err = r.Header()
		return err
	})

	if err != nil {
		return Header{}, err
	}

	return h, nil
}

// GIDs returns every neuron in the store.
func (s *Serialized) GIDs(ctx context.Context) (mapping.GIDSet, error) {
	var gids mapping.GIDSet
	err := s.Do(ctx, func(r *Report) error {
		var err error
		gids, err = r.GIDs()
		return err
	})

	if err != nil {
		return nil, err
	}

	return gids, nil
}

// FrameSize returns the frame size of the active mapping.
func (s *Serialized) FrameSize(ctx context.Context) (uint64, error) {
	var size uint64
	err := s.Do(ctx, func(r *Report) error {
		var err error
		size, err = r.FrameSize()
		return err
	})

	if err != nil {
		return 0, err
	}

	return size, nil
}

// UpdateMapping restricts the report to gids.
func (s *Serialized) UpdateMapping(ctx context.Context, gids mapping.GIDSet) error {
	return s.Do(ctx, func(r *Report) error {
		return r.UpdateMapping(gids)
	})
}

// LoadFrame returns the frame nearest to timestamp.
func (s *Serialized) LoadFrame(ctx context.Context, timestamp float64) ([]float32, error) {
	var frame []float32
	err := s.Do(ctx, func(r *Report) error {
		var err error
		frame, err = r.LoadFrame(timestamp)
		return err
	})
	if err != nil {
		return nil, err
	}

	return frame, nil
}

// WriteHeader stores the header.
func (s *Serialized) WriteHeader(ctx context.Context, h Header) error {
	return s.Do(ctx, func(r *Report) error {
		return r.WriteHeader(h)
	})
}

// WriteCompartments declares the section counts of gid.
func (s *Serialized) WriteCompartments(ctx context.Context, gid uint32, counts []uint16) error {
	return s.Do(ctx, func(r *Report) error {
		return r.WriteCompartments(gid, counts)
	})
}

// WriteFrame stores the values of gid at timestamp.
func (s *Serialized) WriteFrame(ctx context.Context, gid uint32, values []float32, timestamp float64) (bool, error) {
	var ok bool
	err := s.Do(ctx, func(r *Report) error {
		var err error
		ok, err = r.WriteFrame(gid, values, timestamp)
		return err
	})

	if err != nil {
		return false, err
	}

	return ok, nil
}

// Flush persists everything written so far.
func (s *Serialized) Flush(ctx context.Context) error {
	return s.Do(ctx, func(r *Report) error {
		return r.Flush()
	})
}

// Close stops the owning goroutine after the running call and closes the report.
// Pending submissions fail with ErrClosed. Closing twice is a no-op.
func (s *Serialized) Close() error {
	s.closeOnce.Do(func() {
		close(s.quit)
		<-s.done
		s.closeErr = s.report.Close()
	})

	return s.closeErr
}
