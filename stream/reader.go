package stream

import (
	"bytes"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"math"

	"github.com/quiversearch/quiver/endian"
	"github.com/quiversearch/quiver/errs"
)

// Reader reads typed binary values from a bounded window over an
// io.ReaderAt in quiver's canonical byte order.
//
// Readers are cheap: Subset creates a new bounded view over the same
// backing source without copying, which is how compound-file sub-streams
// are exposed. Reader is not safe for concurrent use, but independent
// Readers over the same source are.
type Reader struct {
	src    io.ReaderAt
	engine endian.EndianEngine
	crc    hash.Hash32 // non-nil for checksummed readers
	base   int64       // window start within src
	size   int64       // window length
	pos    int64       // read position relative to base
}

// NewReader creates a Reader over the first size bytes of src.
func NewReader(src io.ReaderAt, size int64) *Reader {
	return &Reader{
		src:    src,
		engine: endian.GetLittleEndianEngine(),
		size:   size,
	}
}

// NewBytesReader creates a Reader over an in-memory byte slice.
func NewBytesReader(p []byte) *Reader {
	return NewReader(bytes.NewReader(p), int64(len(p)))
}

// NewChecksumReader creates a Reader that additionally accumulates a CRC32
// digest over every byte read. Checksummed readers reject Seek and Subset.
func NewChecksumReader(src io.ReaderAt, size int64) *Reader {
	r := NewReader(src, size)
	r.crc = crc32.NewIEEE()

	return r
}

// Subset returns a new Reader scoped to the byte range [off, off+n) of this
// reader's window, sharing the same backing source without copying. The
// subset must not be used after the backing source is closed.
func (r *Reader) Subset(off, n int64) (*Reader, error) {
	if r.crc != nil {
		return nil, fmt.Errorf("%w: cannot subset a checksummed reader", errs.ErrUnsupported)
	}
	if off < 0 || n < 0 || off+n > r.size {
		return nil, fmt.Errorf("%w: subset [%d, %d) outside window of %d bytes",
			errs.ErrCorrupt, off, off+n, r.size)
	}

	return &Reader{
		src:    r.src,
		engine: r.engine,
		base:   r.base + off,
		size:   n,
	}, nil
}

// read fills p from the current position, updating the position and the
// CRC digest when present. All typed reads funnel through here.
func (r *Reader) read(p []byte) error {
	if r.pos+int64(len(p)) > r.size {
		return fmt.Errorf("%w: read of %d bytes at %d exceeds window of %d bytes",
			errs.ErrCorrupt, len(p), r.pos, r.size)
	}

	n, err := r.src.ReadAt(p, r.base+r.pos)
	r.pos += int64(n)
	if err != nil && !(err == io.EOF && n == len(p)) {
		return fmt.Errorf("%w: read failed: %v", errs.ErrStorage, err)
	}
	if r.crc != nil {
		r.crc.Write(p)
	}

	return nil
}

// Offset returns the current read position within the window.
func (r *Reader) Offset() int64 {
	return r.pos
}

// Size returns the window length in bytes.
func (r *Reader) Size() int64 {
	return r.size
}

// Remaining returns the number of unread bytes in the window.
func (r *Reader) Remaining() int64 {
	return r.size - r.pos
}

// Checksum returns the running CRC32 of all bytes read. It returns zero for
// readers created without checksumming.
func (r *Reader) Checksum() uint32 {
	if r.crc == nil {
		return 0
	}

	return r.crc.Sum32()
}

// SeekTo repositions the reader at an absolute offset within its window.
// It fails with errs.ErrUnsupported on checksummed readers.
func (r *Reader) SeekTo(pos int64) error {
	if r.crc != nil {
		return fmt.Errorf("%w: cannot seek a checksummed reader", errs.ErrUnsupported)
	}
	if pos < 0 || pos > r.size {
		return fmt.Errorf("%w: seek to %d outside window of %d bytes", errs.ErrCorrupt, pos, r.size)
	}
	r.pos = pos

	return nil
}

// ReadBytes fills p with raw bytes from the current position.
func (r *Reader) ReadBytes(p []byte) error {
	return r.read(p)
}

// ReadByte reads a single unsigned byte.
func (r *Reader) ReadByte() (byte, error) {
	var buf [1]byte
	if err := r.read(buf[:]); err != nil {
		return 0, err
	}

	return buf[0], nil
}

// ReadInt8 reads a single signed byte.
func (r *Reader) ReadInt8() (int8, error) {
	b, err := r.ReadByte()

	return int8(b), err
}

// ReadUint16 reads a fixed-width unsigned 16-bit integer.
func (r *Reader) ReadUint16() (uint16, error) {
	var buf [2]byte
	if err := r.read(buf[:]); err != nil {
		return 0, err
	}

	return r.engine.Uint16(buf[:]), nil
}

// ReadInt32 reads a fixed-width signed 32-bit integer.
func (r *Reader) ReadInt32() (int32, error) {
	v, err := r.ReadUint32()

	return int32(v), err
}

// ReadUint32 reads a fixed-width unsigned 32-bit integer.
func (r *Reader) ReadUint32() (uint32, error) {
	var buf [4]byte
	if err := r.read(buf[:]); err != nil {
		return 0, err
	}

	return r.engine.Uint32(buf[:]), nil
}

// ReadInt64 reads a fixed-width signed 64-bit integer.
func (r *Reader) ReadInt64() (int64, error) {
	v, err := r.ReadUint64()

	return int64(v), err
}

// ReadUint64 reads a fixed-width unsigned 64-bit integer.
func (r *Reader) ReadUint64() (uint64, error) {
	var buf [8]byte
	if err := r.read(buf[:]); err != nil {
		return 0, err
	}

	return r.engine.Uint64(buf[:]), nil
}

// ReadFloat32 reads an IEEE 754 single-precision float.
func (r *Reader) ReadFloat32() (float32, error) {
	v, err := r.ReadUint32()

	return math.Float32frombits(v), err
}

// ReadFloat64 reads an IEEE 754 double-precision float.
func (r *Reader) ReadFloat64() (float64, error) {
	v, err := r.ReadUint64()

	return math.Float64frombits(v), err
}

// ReadUvarint reads an unsigned LEB128 varint.
func (r *Reader) ReadUvarint() (uint64, error) {
	var v uint64
	var shift uint
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		if shift >= 64 || (shift == 63 && b > 1) {
			return 0, fmt.Errorf("%w: varint overflows 64 bits", errs.ErrCorrupt)
		}
		v |= uint64(b&0x7f) << shift
		if b < 0x80 {
			return v, nil
		}
		shift += 7
	}
}

// ReadVarint reads a zig-zag folded signed varint.
func (r *Reader) ReadVarint() (int64, error) {
	uv, err := r.ReadUvarint()
	if err != nil {
		return 0, err
	}

	return int64(uv>>1) ^ -int64(uv&1), nil
}

// ReadVarString reads a byte string with an unsigned varint length prefix.
func (r *Reader) ReadVarString() ([]byte, error) {
	n, err := r.ReadUvarint()
	if err != nil {
		return nil, err
	}
	if int64(n) > r.Remaining() { //nolint:gosec
		return nil, fmt.Errorf("%w: string length %d exceeds remaining %d bytes",
			errs.ErrCorrupt, n, r.Remaining())
	}
	p := make([]byte, n)
	if err := r.read(p); err != nil {
		return nil, err
	}

	return p, nil
}

// ReadString2 reads a byte string with a 2-byte length prefix.
func (r *Reader) ReadString2() ([]byte, error) {
	n, err := r.ReadUint16()
	if err != nil {
		return nil, err
	}
	p := make([]byte, n)
	if err := r.read(p); err != nil {
		return nil, err
	}

	return p, nil
}

// ReadString4 reads a byte string with a 4-byte length prefix.
func (r *Reader) ReadString4() ([]byte, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	if int64(n) > r.Remaining() {
		return nil, fmt.Errorf("%w: string length %d exceeds remaining %d bytes",
			errs.ErrCorrupt, n, r.Remaining())
	}
	p := make([]byte, n)
	if err := r.read(p); err != nil {
		return nil, err
	}

	return p, nil
}

// ReadUint32Slice fills dst with a homogeneous block of unsigned 32-bit
// integers.
func (r *Reader) ReadUint32Slice(dst []uint32) error {
	buf := make([]byte, len(dst)*4)
	if err := r.read(buf); err != nil {
		return err
	}
	for i := range dst {
		dst[i] = r.engine.Uint32(buf[i*4:])
	}

	return nil
}

// ReadUint64Slice fills dst with a homogeneous block of unsigned 64-bit
// integers.
func (r *Reader) ReadUint64Slice(dst []uint64) error {
	buf := make([]byte, len(dst)*8)
	if err := r.read(buf); err != nil {
		return err
	}
	for i := range dst {
		dst[i] = r.engine.Uint64(buf[i*8:])
	}

	return nil
}

// ReadInt64Slice fills dst with a homogeneous block of signed 64-bit
// integers.
func (r *Reader) ReadInt64Slice(dst []int64) error {
	buf := make([]byte, len(dst)*8)
	if err := r.read(buf); err != nil {
		return err
	}
	for i := range dst {
		dst[i] = int64(r.engine.Uint64(buf[i*8:]))
	}

	return nil
}

// ReadFloat64Slice fills dst with a homogeneous block of double-precision
// floats.
func (r *Reader) ReadFloat64Slice(dst []float64) error {
	buf := make([]byte, len(dst)*8)
	if err := r.read(buf); err != nil {
		return err
	}
	for i := range dst {
		dst[i] = math.Float64frombits(r.engine.Uint64(buf[i*8:]))
	}

	return nil
}
