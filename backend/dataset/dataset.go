// Package dataset implements the per-neuron dataset report backend.
//
// A report is a directory holding one container attribute file and one
// dataset file per neuron:
//
//	sim.h5d/
//	├── report.attrs   start, end, timestep, data unit, time unit
//	├── 1.cds          rows × columns float32 dataset for GID 1
//	└── 7.cds
//
// Each dataset file stores its section counts next to its header, so a
// mapping can be rebuilt from the files of the requested GIDs alone. Rows are
// fixed-size and grow in chunks of ChunkRows, so loading one timestep is one
// positioned read per neuron.
//
// Open dataset files are kept in a bounded LRU cache; the least recently used
// file is closed when the cache is full.
package dataset

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/arloliu/creport/errs"
	"github.com/arloliu/creport/format"
	"github.com/arloliu/creport/internal/lru"
	"github.com/arloliu/creport/internal/metrics"
	"github.com/arloliu/creport/mapping"
	"github.com/arloliu/creport/report"
)

const (
	// Name is the backend name.
	Name = "dataset"
	// AttrsFile is the container attribute file name.
	AttrsFile = "report.attrs"
	// DatasetExt is the extension of per-neuron dataset files.
	DatasetExt = ".cds"
	// ContainerExt is the conventional extension of dataset report directories.
	ContainerExt = ".h5d"
)

// Descriptor returns the registry descriptor of the dataset backend.
func Descriptor() report.Descriptor {
	return report.Descriptor{
		Name:    Name,
		Handles: Handles,
		New: func(init report.InitData, cfg *report.Config) (report.Backend, error) {
			return New(init, cfg)
		},
	}
}

// Handles accepts directories holding a container attribute file. In write
// modes it also accepts any other directory and missing paths without an
// extension or with the .h5d extension.
func Handles(init report.InitData) bool {
	src := report.ParseSource(init.Source)
	if src.Scheme != "" || src.Path == "" {
		return false
	}

	info, err := os.Stat(src.Path)
	if err == nil && info.IsDir() {
		if _, err := os.Stat(filepath.Join(src.Path, AttrsFile)); err == nil {
			return true
		}

		return init.Mode.CanWrite()
	}

	if !init.Mode.CanWrite() || !errors.Is(err, fs.ErrNotExist) {
		return false
	}
	ext := strings.ToLower(filepath.Ext(src.Path))

	return ext == "" || ext == ContainerExt
}

// Backend stores one dataset file per neuron in a directory.
//
// Backend is not safe for concurrent mutation. Concurrent LoadFrame calls are
// safe while the mapping does not change.
type Backend struct {
	dir      string
	mode     format.AccessMode
	cfg      *report.Config
	logger   *slog.Logger
	counters *metrics.BackendCounters

	header report.Header
	gids   mapping.GIDSet // nil until scanned
	active *mapping.Mapping
	mapMu  sync.Mutex // guards active

	// io guards handle lookup and the positioned I/O on the handle found, so
	// an eviction never closes a file that is being read.
	io       sync.Mutex
	handles  *lru.Cache[uint32, *handle]
	evictErr error // sync or close failures of evicted handles
	closed   bool
}

var _ report.Backend = (*Backend)(nil)

// New opens or creates the dataset report described by init.
//
// Returns:
//   - *Backend: The open backend
//   - error: ErrNotFound in read modes if the directory is missing,
//     ErrCorruptFormat if the container attributes are missing or malformed
func New(init report.InitData, cfg *report.Config) (*Backend, error) {
	src := report.ParseSource(init.Source)
	counters, err := cfg.Counters(Name)
	if err != nil {
		return nil, err
	}

	b := &Backend{
		dir:      src.Path,
		mode:     init.Mode,
		cfg:      cfg,
		logger:   cfg.Logger.With("backend", Name, "dir", src.Path),
		counters: counters,
	}
	b.handles = lru.New(
		lru.WithMaxEntries[uint32, *handle](cfg.MaxOpenHandles),
		lru.WithOnEvict(b.evict),
	)

	if err := b.openContainer(); err != nil {
		return nil, err
	}

	b.logger.Debug("dataset report opened", "mode", init.Mode.String(), "max_open_handles", cfg.MaxOpenHandles)

	return b, nil
}

func (b *Backend) openContainer() error {
	if b.mode.CanWrite() {
		if err := os.MkdirAll(b.dir, 0o755); err != nil {
			return errs.NewIOError("mkdir", b.dir, err)
		}
		if b.mode.Truncates() {
			if err := b.truncate(); err != nil {
				return err
			}
			b.gids = mapping.GIDSet{}

			return nil
		}
	} else {
		info, err := os.Stat(b.dir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return errs.NewIOError("open", b.dir, fmt.Errorf("%w: %w", errs.ErrNotFound, err))
			}

			return errs.NewIOError("open", b.dir, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("%w: %s is not a directory", errs.ErrUnsupportedFormat, b.dir)
		}
	}

	h, err := readAttrs(filepath.Join(b.dir, AttrsFile))
	switch {
	case err == nil:
		b.header = h
	case errors.Is(err, fs.ErrNotExist):
		if !b.mode.CanWrite() {
			return fmt.Errorf("%w: %s: missing %s", errs.ErrCorruptFormat, b.dir, AttrsFile)
		}
	default:
		return err
	}

	return nil
}

// truncate removes the attribute file and every dataset file.
func (b *Backend) truncate() error {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return errs.NewIOError("readdir", b.dir, err)
	}

	removed := 0
	for _, e := range entries {
		if e.IsDir() || (e.Name() != AttrsFile && filepath.Ext(e.Name()) != DatasetExt) {
			continue
		}
		path := filepath.Join(b.dir, e.Name())
		if err := os.Remove(path); err != nil {
			return errs.NewIOError("remove", path, err)
		}
		removed++
	}
	if removed > 0 {
		b.logger.Info("dataset report truncated", "removed_files", removed)
	}

	return nil
}

func (b *Backend) datasetPath(gid uint32) string {
	return filepath.Join(b.dir, strconv.FormatUint(uint64(gid), 10)+DatasetExt)
}

// acquire returns the cached handle of gid, opening the dataset on a miss.
// The caller must hold b.io.
func (b *Backend) acquire(gid uint32) (*handle, error) {
	if h, ok := b.handles.Get(gid); ok {
		b.counters.CacheHits.Inc()
		return h, nil
	}
	b.counters.CacheMisses.Inc()

	h, err := openHandle(b.datasetPath(gid), gid, b.mode.CanWrite())
	if err != nil {
		return nil, err
	}
	b.handles.Put(gid, h)

	return h, nil
}

// evict syncs and closes an evicted handle. A failure is kept for the next Flush.
// The caller must hold b.io.
func (b *Backend) evict(gid uint32, h *handle) {
	b.counters.CacheEvictions.Inc()
	if err := errors.Join(h.sync(), h.close()); err != nil {
		b.evictErr = errors.Join(b.evictErr, fmt.Errorf("evict gid %d: %w", gid, err))
		b.logger.Warn("close evicted dataset", "gid", gid, "error", err)

		return
	}
	b.logger.Debug("dataset handle evicted", "gid", gid)
}

// CacheStats returns the handle cache statistics.
func (b *Backend) CacheStats() lru.Stats {
	return b.handles.Stats()
}

// Dir returns the report directory.
func (b *Backend) Dir() string {
	return b.dir
}

func (b *Backend) Header() report.Header {
	return b.header
}

// GIDs returns the neurons that have a dataset file.
func (b *Backend) GIDs() (mapping.GIDSet, error) {
	if b.closed {
		return nil, errs.ErrClosed
	}
	if b.gids != nil {
		return slices.Clone(b.gids), nil
	}

	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, errs.NewIOError("readdir", b.dir, err)
	}

	ids := make([]uint32, 0, len(entries))
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), DatasetExt)
		if !ok || e.IsDir() {
			continue
		}
		gid, err := strconv.ParseUint(name, 10, 32)
		if err != nil {
			continue
		}
		ids = append(ids, uint32(gid))
	}
	b.gids = mapping.NewGIDSet(ids...)

	return slices.Clone(b.gids), nil
}

// Mapping returns the active mapping, mapping the full population on first use.
// Concurrent first calls build the default mapping once.
func (b *Backend) Mapping() (*mapping.Mapping, error) {
	b.mapMu.Lock()
	defer b.mapMu.Unlock()

	if b.active != nil {
		return b.active, nil
	}

	gids, err := b.GIDs()
	if err != nil {
		return nil, err
	}
	if err := b.updateMapping(gids); err != nil {
		return nil, err
	}

	return b.active, nil
}

// UpdateMapping reads the section counts of exactly the requested GIDs.
func (b *Backend) UpdateMapping(gids mapping.GIDSet) error {
	b.mapMu.Lock()
	defer b.mapMu.Unlock()

	return b.updateMapping(gids)
}

func (b *Backend) updateMapping(gids mapping.GIDSet) error {
	if b.closed {
		return errs.ErrClosed
	}

	b.io.Lock()
	defer b.io.Unlock()

	m, err := mapping.Build(gids, func(gid uint32) ([]uint16, error) {
		h, err := b.acquire(gid)
		if err != nil {
			return nil, err
		}

		return h.counts, nil
	})
	if err != nil {
		return err
	}
	b.active = m
	b.logger.Debug("mapping updated", "gids", m.Len(), "frame_size", m.FrameSize())

	return nil
}

// Flush syncs every open writable dataset file and the report directory to
// stable storage. Handles evicted since the last Flush were synced on
// eviction; their failures are returned here.
func (b *Backend) Flush() error {
	if b.closed {
		return errs.ErrClosed
	}
	if !b.mode.CanWrite() {
		return nil
	}

	b.io.Lock()
	defer b.io.Unlock()

	errList := []error{b.evictErr}
	b.evictErr = nil
	for _, gid := range b.handles.Keys() {
		if h, ok := b.handles.Peek(gid); ok {
			errList = append(errList, h.sync())
		}
	}
	errList = append(errList, syncDir(b.dir))

	return errors.Join(errList...)
}

// Close flushes and closes every open dataset file. Closing twice is a no-op.
func (b *Backend) Close() error {
	if b.closed {
		return nil
	}

	err := b.Flush()
	b.closed = true

	b.io.Lock()
	defer b.io.Unlock()

	errList := []error{err}
	for _, gid := range b.handles.Keys() {
		if h, ok := b.handles.Remove(gid); ok {
			errList = append(errList, h.close())
		}
	}

	stats := b.handles.Stats()
	b.logger.Debug("dataset report closed",
		"cache_hits", stats.Hits, "cache_misses", stats.Misses, "cache_evictions", stats.Evictions)

	return errors.Join(errList...)
}
