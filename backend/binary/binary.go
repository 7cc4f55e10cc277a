// Package binary implements the single-file, frame-major report backend.
//
// The whole report lives in one file. Every timestep is stored as one frame
// of the full population, compressed with the configured codec:
//
//	header | container attributes | mapping table | frame index | frames
//
// Frames are located through the fixed-size index, so loading a timestep is
// one positioned read and one decompression. Decoded frames are kept in a
// small LRU cache.
//
// Writes are buffered in memory and the file is rewritten by Flush through a
// temporary file and an atomic rename. Flushing without new writes leaves the
// file untouched.
package binary

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"strings"

	"github.com/arloliu/creport/compress"
	"github.com/arloliu/creport/errs"
	"github.com/arloliu/creport/format"
	"github.com/arloliu/creport/internal/lru"
	"github.com/arloliu/creport/internal/metrics"
	"github.com/arloliu/creport/mapping"
	"github.com/arloliu/creport/report"
	"github.com/arloliu/creport/section"
)

// Name is the backend name.
const Name = "binary"

// Extensions recognized by Handles.
var Extensions = []string{".bbp", ".crb"}

// Descriptor returns the registry descriptor of the binary backend.
func Descriptor() report.Descriptor {
	return report.Descriptor{
		Name:    Name,
		Handles: Handles,
		New: func(init report.InitData, cfg *report.Config) (report.Backend, error) {
			return New(init, cfg)
		},
	}
}

// Handles accepts paths with a binary report extension. In read-only mode the
// file must also start with the binary report magic number.
func Handles(init report.InitData) bool {
	src := report.ParseSource(init.Source)
	if src.Scheme != "" || !slices.Contains(Extensions, strings.ToLower(filepath.Ext(src.Path))) {
		return false
	}
	if init.Mode.CanWrite() {
		return true
	}

	f, err := os.Open(src.Path)
	if err != nil {
		return false
	}
	defer f.Close()

	buf := make([]byte, section.FlagSize)
	if _, err := io.ReadFull(f, buf); err != nil {
		return false
	}

	return section.HasBinaryMagic(buf)
}

// stored is the read-only view of the file on disk.
type stored struct {
	file   *os.File
	hdr    section.BinaryHeader
	layout *mapping.Mapping
	index  []section.FrameIndexEntry
	codec  compress.Codec

	attrsHeader report.Header
}

// Backend is a single-file, frame-major report.
//
// Backend is not safe for concurrent mutation. Concurrent LoadFrame calls are
// safe while the mapping does not change and nothing is written.
type Backend struct {
	path     string
	mode     format.AccessMode
	cfg      *report.Config
	logger   *slog.Logger
	counters *metrics.BackendCounters
	codec    compress.Codec

	header report.Header
	counts map[uint32][]uint16
	active *mapping.Mapping
	mapMu  sync.Mutex // guards active

	disk    *stored
	frames  *lru.Cache[int, []float32]
	pending map[int]map[uint32][]float32
	dirty   bool
	closed  bool
}

var _ report.Backend = (*Backend)(nil)

// New opens or creates the binary report described by init.
//
// Returns:
//   - *Backend: The open backend
//   - error: ErrNotFound in read-only mode if the file is missing,
//     ErrCorruptFormat if the file is malformed
func New(init report.InitData, cfg *report.Config) (*Backend, error) {
	counters, err := cfg.Counters(Name)
	if err != nil {
		return nil, err
	}
	codec, err := compress.GetCodec(cfg.Compression)
	if err != nil {
		return nil, err
	}

	path := report.ParseSource(init.Source).Path
	b := &Backend{
		path:     path,
		mode:     init.Mode,
		cfg:      cfg,
		logger:   cfg.Logger.With("backend", Name, "path", path),
		counters: counters,
		codec:    codec,
		counts:   map[uint32][]uint16{},
		frames:   lru.New(lru.WithMaxEntries[int, []float32](cfg.FrameCacheSize)),
		pending:  map[int]map[uint32][]float32{},
	}

	if err := b.openFile(); err != nil {
		return nil, err
	}

	b.logger.Debug("binary report opened", "mode", init.Mode.String(), "compression", cfg.Compression.String())

	return b, nil
}

func (b *Backend) openFile() error {
	if b.mode.Truncates() {
		if err := os.Remove(b.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return errs.NewIOError("remove", b.path, err)
		}

		return nil
	}

	disk, err := load(b.path)
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist):
		if b.mode.CanWrite() {
			return nil
		}

		return errs.NewIOError("open", b.path, fmt.Errorf("%w: %w", errs.ErrNotFound, err))
	default:
		return err
	}

	b.disk = disk
	b.header = disk.header()
	for i, gid := range disk.layout.GIDs() {
		b.counts[gid] = disk.layout.Counts()[i]
	}

	return nil
}

// load reads the header, attributes, mapping table and index of path.
func load(path string) (*stored, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}

		return nil, errs.NewIOError("open", path, err)
	}

	s, err := parseStored(f, path)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	return s, nil
}

func parseStored(f *os.File, path string) (*stored, error) {
	corrupt := func(err error) error {
		return fmt.Errorf("%w: %s: %w", errs.ErrCorruptFormat, path, err)
	}
	readAt := func(off, size uint64) ([]byte, error) {
		buf := make([]byte, size)
		if _, err := f.ReadAt(buf, int64(off)); err != nil { //nolint: gosec
			if errors.Is(err, io.EOF) {
				return nil, corrupt(io.ErrUnexpectedEOF)
			}

			return nil, errs.NewIOError("read", path, err)
		}

		return buf, nil
	}

	buf, err := readAt(0, section.BinaryHeaderSize)
	if err != nil {
		return nil, err
	}
	hdr, err := section.ParseBinaryHeader(buf)
	if err != nil {
		return nil, corrupt(err)
	}
	info, err := f.Stat()
	if err != nil {
		return nil, errs.NewIOError("stat", path, err)
	}
	if hdr.PayloadOffset > uint64(info.Size()) { //nolint: gosec
		return nil, corrupt(fmt.Errorf("payload offset %d past end of file", hdr.PayloadOffset))
	}
	codec, err := compress.GetCodec(hdr.Flag.CompressionType())
	if err != nil {
		return nil, corrupt(err)
	}

	meta, err := readAt(hdr.AttrsOffset, hdr.PayloadOffset-hdr.AttrsOffset)
	if err != nil {
		return nil, err
	}
	attrsEnd := hdr.MappingOffset - hdr.AttrsOffset
	indexStart := hdr.IndexOffset - hdr.AttrsOffset

	attrs, _, err := section.ParseContainerAttrs(meta[:attrsEnd])
	if err != nil {
		return nil, corrupt(err)
	}

	table := make(map[uint32][]uint16, hdr.GIDCount)
	ids := make([]uint32, 0, hdr.GIDCount)
	rest := meta[attrsEnd:indexStart]
	for range hdr.GIDCount {
		gid, counts, n, err := hdr.ParseMappingEntry(rest)
		if err != nil {
			return nil, corrupt(err)
		}
		table[gid] = counts
		ids = append(ids, gid)
		rest = rest[n:]
	}
	gids := mapping.NewGIDSet(ids...)
	if len(gids) != len(ids) {
		return nil, corrupt(errors.New("duplicate gid in mapping table"))
	}
	layout, err := mapping.FromCounts(gids, table, func(uint32) error { return nil })
	if err != nil {
		return nil, corrupt(err)
	}
	if layout.FrameSize() != hdr.FrameSize {
		return nil, corrupt(fmt.Errorf("frame size %d, mapping table lays out %d", hdr.FrameSize, layout.FrameSize()))
	}

	engine := hdr.Flag.GetEndianEngine()
	index := make([]section.FrameIndexEntry, hdr.FrameCount)
	raw := meta[indexStart:]
	for i := range index {
		if index[i], err = section.ParseFrameIndexEntry(engine, raw[i*section.FrameIndexEntrySize:]); err != nil {
			return nil, corrupt(err)
		}
	}

	s := &stored{file: f, hdr: hdr, layout: layout, index: index, codec: codec}
	s.attrsHeader = report.Header{
		StartTime: attrs.StartTime,
		EndTime:   attrs.EndTime,
		Timestep:  attrs.Timestep,
		DataUnit:  attrs.DataUnit,
		TimeUnit:  attrs.TimeUnit,
	}
	if err := s.attrsHeader.Validate(); err != nil {
		return nil, corrupt(err)
	}
	if s.attrsHeader.FrameCount() != len(index) {
		return nil, corrupt(fmt.Errorf("header spans %d frames, index holds %d", s.attrsHeader.FrameCount(), len(index)))
	}

	return s, nil
}

func (s *stored) header() report.Header {
	return s.attrsHeader
}

func (s *stored) close() error {
	return errs.NewIOError("close", s.file.Name(), s.file.Close())
}

// Path returns the report file path.
func (b *Backend) Path() string {
	return b.path
}

func (b *Backend) Header() report.Header {
	return b.header
}

// GIDs returns the neurons stored in the file or declared since opening.
func (b *Backend) GIDs() (mapping.GIDSet, error) {
	if b.closed {
		return nil, errs.ErrClosed
	}

	ids := make([]uint32, 0, len(b.counts))
	for gid := range b.counts {
		ids = append(ids, gid)
	}

	return mapping.NewGIDSet(ids...), nil
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

func (b *Backend) UpdateMapping(gids mapping.GIDSet) error {
	b.mapMu.Lock()
	defer b.mapMu.Unlock()

	return b.updateMapping(gids)
}

func (b *Backend) updateMapping(gids mapping.GIDSet) error {
	if b.closed {
		return errs.ErrClosed
	}

	m, err := mapping.FromCounts(gids, b.counts, func(gid uint32) error {
		return fmt.Errorf("%w: gid %d", errs.ErrNeuronNotFound, gid)
	})
	if err != nil {
		return err
	}
	b.active = m

	return nil
}

// Close flushes pending writes and closes the file. Closing twice is a no-op.
func (b *Backend) Close() error {
	if b.closed {
		return nil
	}

	var errList []error
	if b.mode.CanWrite() {
		errList = append(errList, b.Flush())
	}
	b.closed = true
	if b.disk != nil {
		errList = append(errList, b.disk.close())
		b.disk = nil
	}
	b.frames.Purge()

	return errors.Join(errList...)
}
