package report

import (
	"fmt"
	"math"

	"github.com/arloliu/creport/errs"
)

// stepTolerance is how far (end-start)/timestep may be from an integer, in steps.
const stepTolerance = 1e-4

// Header is the immutable time axis and unit metadata of a report.
type Header struct {
	StartTime float64
	EndTime   float64
	Timestep  float64
	DataUnit  string
	TimeUnit  string
}

// IsZero reports whether the header was never set.
func (h Header) IsZero() bool {
	return h == Header{}
}

// Validate checks that the time axis is finite, non-empty and a whole number of steps.
func (h Header) Validate() error {
	for _, v := range []float64{h.StartTime, h.EndTime, h.Timestep} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite time value", errs.ErrInvalidHeader)
		}
	}
	if h.Timestep <= 0 {
		return fmt.Errorf("%w: timestep %g must be positive", errs.ErrInvalidHeader, h.Timestep)
	}
	if h.EndTime <= h.StartTime {
		return fmt.Errorf("%w: end %g must be after start %g", errs.ErrInvalidHeader, h.EndTime, h.StartTime)
	}

	steps := (h.EndTime - h.StartTime) / h.Timestep
	if math.Abs(steps-math.Round(steps)) > stepTolerance {
		return fmt.Errorf("%w: [%g, %g) is not a multiple of %g", errs.ErrInvalidHeader, h.StartTime, h.EndTime, h.Timestep)
	}

	return nil
}

// Equal reports whether both headers hold identical values.
func (h Header) Equal(other Header) bool {
	return h == other
}

// FrameCount returns the number of frames on the time axis.
func (h Header) FrameCount() int {
	if h.Timestep <= 0 || h.EndTime <= h.StartTime {
		return 0
	}

	return int(math.Round((h.EndTime - h.StartTime) / h.Timestep))
}

// Timestamp returns the simulation time of frame idx.
func (h Header) Timestamp(idx int) float64 {
	return h.StartTime + float64(idx)*h.Timestep
}

// FrameIndex returns the frame holding timestamp t.
//
// Returns:
//   - int: Frame index in [0, FrameCount()-1]
//   - error: ErrOutOfRange if t < start - timestep/2, t >= end, or the header is empty
func FrameIndex(h Header, t float64) (int, error) {
	frames := h.FrameCount()
	if frames == 0 {
		return 0, fmt.Errorf("%w: report has no frames", errs.ErrOutOfRange)
	}
	if math.IsNaN(t) || t < h.StartTime-h.Timestep/2 || t >= h.EndTime {
		return 0, fmt.Errorf("%w: %g not in [%g, %g)", errs.ErrOutOfRange, t, h.StartTime, h.EndTime)
	}

	idx := int(math.Round((t - h.StartTime) / h.Timestep))

	return min(max(idx, 0), frames-1), nil
}

// CheckHeader reconciles a WriteHeader call with the header already stored.
//
// Returns:
//   - bool: true if next must be stored, false if it repeats current
//   - error: ErrInvalidHeader if next is invalid, ErrInconsistent if it differs from current
func CheckHeader(current, next Header) (bool, error) {
	if err := next.Validate(); err != nil {
		return false, err
	}
	if current.IsZero() {
		return true, nil
	}
	if !current.Equal(next) {
		return false, fmt.Errorf("%w: header %+v conflicts with stored %+v", errs.ErrInconsistent, next, current)
	}

	return false, nil
}
