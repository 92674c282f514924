package storage

import (
	"fmt"
	"strings"
	"time"

	"github.com/quiversearch/quiver/errs"
	"github.com/quiversearch/quiver/internal/hash"
	"github.com/quiversearch/quiver/internal/options"
	"github.com/quiversearch/quiver/internal/pool"
	"github.com/quiversearch/quiver/stream"
)

// Reserved extensions for segment metadata files. Packing one of these
// into a compound file would let a stale directory shadow the live one, so
// the assembler rejects them outright.
const (
	SegmentExt = ".seg"
	TocExt     = ".toc"
)

// compoundHeaderSize is the leading placeholder: an 8-byte directory
// offset plus a 4-byte directory length, back-patched after the directory
// is appended so a reader can locate it in one seek.
const compoundHeaderSize = 12

// defaultSubBufferLimit is how many bytes a sub-stream buffers in memory
// before spilling to the shared temporary file.
const defaultSubBufferLimit = 32 * 1024

// CompoundWriter packs many named sub-streams into one physical file with
// a trailing directory.
//
// Each logical sub-file is written to an independent buffer that spills to
// a shared temporary file once it exceeds the buffer limit, recording
// block descriptors rather than copying eagerly. Save streams all recorded
// blocks sequentially into the destination; SaveAsFiles writes each buffer
// as its own standalone file instead (non-compound mode).
type CompoundWriter struct {
	st       Storage
	subs     map[string]*SubStream
	order    []string
	options  map[string]any
	tempName string
	temp     *Output
	bufLimit int
	saved    bool
}

// CompoundWriterOption configures a CompoundWriter.
type CompoundWriterOption = options.Option[*CompoundWriter]

// WithBufferLimit sets the per-sub-stream in-memory buffer limit in bytes.
func WithBufferLimit(n int) CompoundWriterOption {
	return options.New(func(cw *CompoundWriter) error {
		if n <= 0 {
			return fmt.Errorf("%w: buffer limit %d", errs.ErrStorage, n)
		}
		cw.bufLimit = n

		return nil
	})
}

// NewCompoundWriter creates an assembler whose spill file and destination
// live in st.
func NewCompoundWriter(st Storage, opts ...CompoundWriterOption) (*CompoundWriter, error) {
	cw := &CompoundWriter{
		st:       st,
		subs:     make(map[string]*SubStream),
		options:  make(map[string]any),
		bufLimit: defaultSubBufferLimit,
	}
	if err := options.Apply(cw, opts...); err != nil {
		return nil, err
	}

	return cw, nil
}

// SetOption records a key in the option bag serialized after the
// directory.
func (cw *CompoundWriter) SetOption(key string, value any) {
	cw.options[key] = value
}

// CreateFile creates a named sub-stream and returns a writable handle to
// it. Names carrying segment metadata extensions are rejected.
func (cw *CompoundWriter) CreateFile(name string) (*Output, error) {
	if strings.HasSuffix(name, SegmentExt) || strings.HasSuffix(name, TocExt) {
		return nil, fmt.Errorf("%w: %q may not go inside a compound file", errs.ErrBadSegmentName, name)
	}
	if _, dup := cw.subs[name]; dup {
		return nil, fmt.Errorf("%w: sub-stream %q", errs.ErrFileExists, name)
	}

	ss := &SubStream{cw: cw, name: name, buf: pool.GetSubBuffer()}
	cw.subs[name] = ss
	cw.order = append(cw.order, name)

	return NewOutput(name, stream.NewWriter(ss), nil, ss.finish), nil
}

// spill appends p to the shared temporary file and returns its offset
// there. The temp file is created lazily on the first spill.
func (cw *CompoundWriter) spill(p []byte) (int64, error) {
	if cw.temp == nil {
		cw.tempName = fmt.Sprintf("quiver-compound-%d.tmp", time.Now().UnixNano())
		out, err := cw.st.CreateFile(cw.tempName)
		if err != nil {
			return 0, err
		}
		cw.temp = out
	}
	off := cw.temp.Offset()
	if err := cw.temp.WriteBytes(p); err != nil {
		return 0, err
	}

	return off, nil
}

// block describes one run of sub-stream bytes: either an in-memory
// snapshot or a span of the shared temporary file.
type block struct {
	data []byte // non-nil for memory blocks
	off  int64  // temp-file offset for spilled blocks
	n    int64
}

// SubStream buffers one logical sub-file. It implements io.Writer; typed
// access goes through the Output wrapping it.
type SubStream struct {
	cw     *CompoundWriter
	name   string
	buf    *pool.ByteBuffer
	blocks []block
	length int64
	done   bool
}

func (ss *SubStream) Write(p []byte) (int, error) {
	if ss.done {
		return 0, fmt.Errorf("%w: sub-stream %q", errs.ErrClosed, ss.name)
	}
	ss.buf.MustWrite(p)
	ss.length += int64(len(p))
	if ss.buf.Len() > ss.cw.bufLimit {
		if err := ss.dump(); err != nil {
			return 0, err
		}
	}

	return len(p), nil
}

// dump spills the current buffer to the shared temp file and records a
// block descriptor for it.
func (ss *SubStream) dump() error {
	if ss.buf.Len() == 0 {
		return nil
	}
	off, err := ss.cw.spill(ss.buf.Bytes())
	if err != nil {
		return err
	}
	ss.blocks = append(ss.blocks, block{off: off, n: int64(ss.buf.Len())})
	ss.buf.Reset()

	return nil
}

// finish seals the sub-stream when its Output is closed. Whatever is still
// buffered stays in memory as the final block.
func (ss *SubStream) finish() error {
	if ss.done {
		return fmt.Errorf("%w: sub-stream %q", errs.ErrClosed, ss.name)
	}
	ss.done = true
	if ss.buf.Len() > 0 {
		// Keep the tail in memory; small sub-files never touch the temp
		// file at all.
		snapshot := make([]byte, ss.buf.Len())
		copy(snapshot, ss.buf.Bytes())
		ss.blocks = append(ss.blocks, block{data: snapshot, n: int64(len(snapshot))})
	}
	pool.PutSubBuffer(ss.buf)
	ss.buf = nil

	return nil
}

// writeTo streams the sub-stream's recorded blocks into w, reading
// spilled blocks back from temp.
func (ss *SubStream) writeTo(w *stream.Writer, temp *Input) error {
	for _, blk := range ss.blocks {
		if blk.data != nil {
			if err := w.WriteBytes(blk.data); err != nil {
				return err
			}

			continue
		}
		sub, err := temp.Subset(blk.off, blk.n)
		if err != nil {
			return err
		}
		p := make([]byte, blk.n)
		if err := sub.ReadBytes(p); err != nil {
			return err
		}
		if err := w.WriteBytes(p); err != nil {
			return err
		}
	}

	return nil
}

// dirEntry is one compound-file directory record.
type dirEntry struct {
	name     string
	offset   int64
	length   int64
	modified time.Time
}

// Save streams all sub-streams into one destination file:
//
//	[8-byte dir offset][4-byte dir length][packed bytes...][directory][options][digest]
//
// The leading 12 bytes are written as zeros first and back-patched after
// the directory is appended, so a single forward pass suffices. Every
// sub-stream handle must be closed before Save.
func (cw *CompoundWriter) Save(destName string) error {
	if cw.saved {
		return fmt.Errorf("%w: compound writer", errs.ErrClosed)
	}
	for _, name := range cw.order {
		if !cw.subs[name].done {
			return fmt.Errorf("%w: sub-stream %q still open", errs.ErrWriterState, name)
		}
	}
	cw.saved = true

	temp, err := cw.openTemp()
	if err != nil {
		return err
	}

	dest, err := cw.st.CreateFile(destName)
	if err != nil {
		return err
	}
	w := dest.Writer

	if err := w.WriteBytes(make([]byte, compoundHeaderSize)); err != nil {
		return err
	}

	entries := make([]dirEntry, 0, len(cw.order))
	now := time.Now()
	for _, name := range cw.order {
		ss := cw.subs[name]
		start := w.Offset()
		if err := ss.writeTo(w, temp); err != nil {
			return err
		}
		entries = append(entries, dirEntry{
			name:     name,
			offset:   start,
			length:   w.Offset() - start,
			modified: now,
		})
	}

	dirOffset := w.Offset()
	dirBytes, err := encodeDirectory(entries, cw.options)
	if err != nil {
		return err
	}
	if err := w.WriteBytes(dirBytes); err != nil {
		return err
	}
	if err := w.WriteUint64(hash.Sum64(dirBytes)); err != nil {
		return err
	}
	dirLength := w.Offset() - dirOffset

	// Back-patch the header now that the directory's location is known.
	if err := w.SeekTo(0); err != nil {
		return err
	}
	if err := w.WriteUint64(uint64(dirOffset)); err != nil {
		return err
	}
	if err := w.WriteUint32(uint32(dirLength)); err != nil { //nolint:gosec
		return err
	}
	if err := dest.Close(); err != nil {
		return err
	}

	return cw.cleanupTemp(temp)
}

// SaveAsFiles writes each sub-stream out as its own standalone storage
// file instead of packing them.
func (cw *CompoundWriter) SaveAsFiles() error {
	if cw.saved {
		return fmt.Errorf("%w: compound writer", errs.ErrClosed)
	}
	cw.saved = true

	temp, err := cw.openTemp()
	if err != nil {
		return err
	}
	for _, name := range cw.order {
		ss := cw.subs[name]
		if !ss.done {
			return fmt.Errorf("%w: sub-stream %q still open", errs.ErrWriterState, name)
		}
		out, err := cw.st.CreateFile(name)
		if err != nil {
			return err
		}
		if err := ss.writeTo(out.Writer, temp); err != nil {
			return err
		}
		if err := out.Close(); err != nil {
			return err
		}
	}

	return cw.cleanupTemp(temp)
}

func (cw *CompoundWriter) openTemp() (*Input, error) {
	if cw.temp == nil {
		return nil, nil
	}
	if err := cw.temp.Close(); err != nil {
		return nil, err
	}

	return cw.st.OpenFile(cw.tempName)
}

func (cw *CompoundWriter) cleanupTemp(temp *Input) error {
	if temp == nil {
		return nil
	}
	if err := temp.Close(); err != nil {
		return err
	}

	return cw.st.DeleteFile(cw.tempName)
}

// encodeDirectory serializes the directory entries followed by the option
// bag. The layout is: uvarint entry count, then per entry a varint-length
// name, uint64 offset, uint64 length and int64 modified time, then the
// option map in metadata encoding.
func encodeDirectory(entries []dirEntry, options map[string]any) ([]byte, error) {
	mw := newMemWriter()
	w := stream.NewWriter(mw)
	if err := w.WriteUvarint(uint64(len(entries))); err != nil {
		return nil, err
	}
	for _, e := range entries {
		if err := w.WriteVarString([]byte(e.name)); err != nil {
			return nil, err
		}
		if err := w.WriteUint64(uint64(e.offset)); err != nil {
			return nil, err
		}
		if err := w.WriteUint64(uint64(e.length)); err != nil {
			return nil, err
		}
		if err := w.WriteInt64(e.modified.UnixNano()); err != nil {
			return nil, err
		}
	}
	if err := w.WriteMetadata(options); err != nil {
		return nil, err
	}

	return mw.bytes(), nil
}

// decodeDirectory parses what encodeDirectory wrote.
func decodeDirectory(r *stream.Reader) ([]dirEntry, map[string]any, error) {
	count, err := r.ReadUvarint()
	if err != nil {
		return nil, nil, err
	}
	if int64(count) > r.Size() { //nolint:gosec
		return nil, nil, fmt.Errorf("%w: directory entry count %d", errs.ErrCorrupt, count)
	}
	entries := make([]dirEntry, 0, count)
	for i := uint64(0); i < count; i++ {
		name, err := r.ReadVarString()
		if err != nil {
			return nil, nil, err
		}
		offset, err := r.ReadUint64()
		if err != nil {
			return nil, nil, err
		}
		length, err := r.ReadUint64()
		if err != nil {
			return nil, nil, err
		}
		modified, err := r.ReadInt64()
		if err != nil {
			return nil, nil, err
		}
		entries = append(entries, dirEntry{
			name:     string(name),
			offset:   int64(offset),   //nolint:gosec
			length:   int64(length),   //nolint:gosec
			modified: time.Unix(0, modified),
		})
	}
	meta, err := r.ReadMetadata()
	if err != nil {
		return nil, nil, err
	}
	options, ok := meta.(map[string]any)
	if !ok {
		return nil, nil, fmt.Errorf("%w: compound option bag is %T", errs.ErrCorrupt, meta)
	}

	return entries, options, nil
}
