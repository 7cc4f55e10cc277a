// Package kv implements a report backend on top of a BadgerDB key/value store.
//
// Several reports can share one store; each report is namespaced by the
// xxHash64 of its name:
//
//	creport:<name hash>:header                 msgpack header record
//	creport:<name hash>:gid:<gid>              msgpack section counts
//	creport:<name hash>:frame:<index>:<gid>    compressed row
//
// Numbers in keys are zero-padded decimals so keys sort numerically. A row
// value is one compression type byte followed by the codec payload of the
// little-endian float32 values.
package kv

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/arloliu/creport/compress"
	"github.com/arloliu/creport/errs"
	"github.com/arloliu/creport/format"
	"github.com/arloliu/creport/internal/metrics"
	"github.com/arloliu/creport/mapping"
	"github.com/arloliu/creport/report"
)

const (
	// Name is the backend name and URI scheme.
	Name = "kv"
	// ManifestFile marks a directory as a badger store.
	ManifestFile = "MANIFEST"

	valueLogFileSize = 64 << 20
)

// Descriptor returns the registry descriptor of the kv backend.
func Descriptor() report.Descriptor {
	return report.Descriptor{
		Name:    Name,
		Handles: Handles,
		New: func(init report.InitData, cfg *report.Config) (report.Backend, error) {
			return New(init, cfg)
		},
	}
}

// Handles accepts the kv:// scheme and directories holding a badger MANIFEST.
func Handles(init report.InitData) bool {
	src := report.ParseSource(init.Source)
	if src.HasScheme(Name) {
		return true
	}
	if src.Scheme != "" || src.Path == "" {
		return false
	}

	_, err := os.Stat(filepath.Join(src.Path, ManifestFile))

	return err == nil
}

// Backend stores a report in a badger database.
type Backend struct {
	dir      string
	name     string
	keys     keyspace
	mode     format.AccessMode
	db       *badger.DB
	codec    compress.Codec
	cfg      *report.Config
	logger   *slog.Logger
	counters *metrics.BackendCounters

	header report.Header
	counts map[uint32][]uint16 // metadata records read or written so far
	gids   mapping.GIDSet      // nil until scanned
	active *mapping.Mapping
	mapMu  sync.Mutex // guards active
	closed bool
}

var _ report.Backend = (*Backend)(nil)

// New opens the report described by init.
//
// The report name is the URI fragment, falling back to Config.ReportName and
// then report.DefaultReportName. Read mode opens the store read-only under a
// shared directory lock, so several readers can hold the same store.
//
// Returns:
//   - *Backend: The open backend
//   - error: ErrNotFound in read-only mode if the store or the report is missing
func New(init report.InitData, cfg *report.Config) (*Backend, error) {
	src := report.ParseSource(init.Source)
	name := src.Name
	if name == "" {
		name = cfg.ReportName
	}
	if name == "" {
		name = report.DefaultReportName
	}

	counters, err := cfg.Counters(Name)
	if err != nil {
		return nil, err
	}
	codec, err := compress.GetCodec(cfg.Compression)
	if err != nil {
		return nil, err
	}

	if !init.Mode.CanWrite() {
		if _, err := os.Stat(filepath.Join(src.Path, ManifestFile)); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, errs.NewIOError("open", src.Path, fmt.Errorf("%w: %w", errs.ErrNotFound, err))
			}

			return nil, errs.NewIOError("open", src.Path, err)
		}
	}

	logger := cfg.Logger.With("backend", Name, "dir", src.Path, "report", name)
	opts := badger.DefaultOptions(src.Path).
		WithLogger(badgerLogger{logger: logger}).
		WithValueLogFileSize(valueLogFileSize).
		WithReadOnly(!init.Mode.CanWrite())
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errs.NewIOError("open", src.Path, err)
	}

	b := &Backend{
		dir:      src.Path,
		name:     name,
		keys:     newKeyspace(name),
		mode:     init.Mode,
		db:       db,
		codec:    codec,
		cfg:      cfg,
		logger:   logger,
		counters: counters,
		counts:   map[uint32][]uint16{},
	}
	if err := b.load(); err != nil {
		return nil, errors.Join(err, db.Close())
	}

	logger.Debug("kv report opened", "mode", init.Mode.String())

	return b, nil
}

func (b *Backend) load() error {
	if b.mode.Truncates() {
		if err := b.db.DropPrefix(b.keys.prefix()); err != nil {
			return errs.NewIOError("drop", b.dir, err)
		}
		b.gids = mapping.GIDSet{}

		return nil
	}

	var rec headerRecord
	err := b.db.View(func(txn *badger.Txn) error {
		return getRecord(txn, b.keys.header(), &rec)
	})
	switch {
	case err == nil:
	case errors.Is(err, badger.ErrKeyNotFound):
		if b.mode.CanWrite() {
			return nil
		}

		return fmt.Errorf("%w: report %q in %s", errs.ErrNotFound, b.name, b.dir)
	default:
		return err
	}

	if rec.Name != b.name {
		return fmt.Errorf("%w: key space of %q holds report %q", errs.ErrCorruptFormat, b.name, rec.Name)
	}
	b.header = rec.header()
	if err := b.header.Validate(); err != nil {
		return fmt.Errorf("%w: %w", errs.ErrCorruptFormat, err)
	}

	return nil
}

// ReportName returns the name the report is stored under.
func (b *Backend) ReportName() string {
	return b.name
}

func (b *Backend) Header() report.Header {
	return b.header
}

// GIDs scans the metadata records of the report.
func (b *Backend) GIDs() (mapping.GIDSet, error) {
	if b.closed {
		return nil, errs.ErrClosed
	}
	if b.gids != nil {
		return slices.Clone(b.gids), nil
	}

	prefix := b.keys.gidPrefix()
	var ids []uint32
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			gid, err := strconv.ParseUint(string(it.Item().Key()[len(prefix):]), 10, 32)
			if err != nil {
				return fmt.Errorf("%w: key %q", errs.ErrCorruptFormat, it.Item().Key())
			}
			ids = append(ids, uint32(gid))
		}

		return nil
	})
	if err != nil {
		return nil, wrapDBError("scan", b.dir, err)
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

// UpdateMapping reads the metadata records of exactly the requested GIDs in one transaction.
func (b *Backend) UpdateMapping(gids mapping.GIDSet) error {
	b.mapMu.Lock()
	defer b.mapMu.Unlock()

	return b.updateMapping(gids)
}

func (b *Backend) updateMapping(gids mapping.GIDSet) error {
	if b.closed {
		return errs.ErrClosed
	}

	var m *mapping.Mapping
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		m, err = mapping.Build(gids, func(gid uint32) ([]uint16, error) {
			return b.lookupCounts(txn, gid)
		})

		return err
	})
	if err != nil {
		return wrapDBError("read", b.dir, err)
	}
	b.active = m

	return nil
}

// lookupCounts returns the section counts of gid from the cache or txn.
func (b *Backend) lookupCounts(txn *badger.Txn, gid uint32) ([]uint16, error) {
	if counts, ok := b.counts[gid]; ok {
		return counts, nil
	}

	var rec gidRecord
	if err := getRecord(txn, b.keys.gid(gid), &rec); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: gid %d", errs.ErrNeuronNotFound, gid)
		}

		return nil, err
	}
	b.counts[gid] = rec.Counts

	return rec.Counts, nil
}

// Flush syncs the database to disk.
func (b *Backend) Flush() error {
	if b.closed {
		return errs.ErrClosed
	}
	if !b.mode.CanWrite() {
		return nil
	}

	return errs.NewIOError("sync", b.dir, b.db.Sync())
}

// Close flushes and closes the database. Closing twice is a no-op.
func (b *Backend) Close() error {
	if b.closed {
		return nil
	}

	err := b.Flush()
	b.closed = true

	return errors.Join(err, errs.NewIOError("close", b.dir, b.db.Close()))
}

// wrapDBError keeps creport errors as they are and wraps badger failures as I/O errors.
func wrapDBError(op, dir string, err error) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range []error{errs.ErrNeuronNotFound, errs.ErrCorruptFormat, errs.ErrInconsistent} {
		if errors.Is(err, sentinel) {
			return err
		}
	}

	return errs.NewIOError(op, dir, err)
}
