// Package metrics exposes the backend counters as Prometheus collectors.
//
// Collectors are always usable; they are only exported when a Registerer is
// supplied. Registering the same collectors twice against one registry reuses
// the already registered instances, so several reports can share a registry.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "creport"

// Collectors groups the counters updated by the backends.
type Collectors struct {
	CacheHits      *prometheus.CounterVec
	CacheMisses    *prometheus.CounterVec
	CacheEvictions *prometheus.CounterVec
	FramesRead     *prometheus.CounterVec
	RowsWritten    *prometheus.CounterVec
	BytesWritten   *prometheus.CounterVec
}

// New creates the collectors and registers them with reg when reg is non-nil.
func New(reg prometheus.Registerer) (*Collectors, error) {
	c := &Collectors{
		CacheHits:      newCounter("handle_cache_hits_total", "Handle cache lookups served from an open handle."),
		CacheMisses:    newCounter("handle_cache_misses_total", "Handle cache lookups that had to open storage."),
		CacheEvictions: newCounter("handle_cache_evictions_total", "Handles closed to respect the cache capacity."),
		FramesRead:     newCounter("frames_read_total", "Frames assembled by LoadFrame."),
		RowsWritten:    newCounter("rows_written_total", "Per-neuron rows stored by WriteFrame."),
		BytesWritten:   newCounter("bytes_written_total", "Payload bytes handed to the storage medium."),
	}

	if reg == nil {
		return c, nil
	}

	var err error
	c.CacheHits, err = register(reg, c.CacheHits)
	if err != nil {
		return nil, err
	}
	c.CacheMisses, err = register(reg, c.CacheMisses)
	if err != nil {
		return nil, err
	}
	c.CacheEvictions, err = register(reg, c.CacheEvictions)
	if err != nil {
		return nil, err
	}
	c.FramesRead, err = register(reg, c.FramesRead)
	if err != nil {
		return nil, err
	}
	c.RowsWritten, err = register(reg, c.RowsWritten)
	if err != nil {
		return nil, err
	}
	c.BytesWritten, err = register(reg, c.BytesWritten)
	if err != nil {
		return nil, err
	}

	return c, nil
}

// Backend returns the counters bound to one backend label.
func (c *Collectors) Backend(name string) *BackendCounters {
	return &BackendCounters{
		CacheHits:      c.CacheHits.WithLabelValues(name),
		CacheMisses:    c.CacheMisses.WithLabelValues(name),
		CacheEvictions: c.CacheEvictions.WithLabelValues(name),
		FramesRead:     c.FramesRead.WithLabelValues(name),
		RowsWritten:    c.RowsWritten.WithLabelValues(name),
		BytesWritten:   c.BytesWritten.WithLabelValues(name),
	}
}

// BackendCounters are the per-backend children of Collectors.
type BackendCounters struct {
	CacheHits      prometheus.Counter
	CacheMisses    prometheus.Counter
	CacheEvictions prometheus.Counter
	FramesRead     prometheus.Counter
	RowsWritten    prometheus.Counter
	BytesWritten   prometheus.Counter
}

func newCounter(name, help string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, []string{"backend"})
}

func register(reg prometheus.Registerer, cv *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	err := reg.Register(cv)
	if err == nil {
		return cv, nil
	}

	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
			return existing, nil
		}
	}

	return nil, err
}
