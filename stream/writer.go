package stream

import (
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"math"

	"github.com/quiversearch/quiver/endian"
	"github.com/quiversearch/quiver/errs"
)

// Writer writes typed binary values to an underlying stream in quiver's
// canonical byte order.
//
// The zero value is not usable; construct with NewWriter or
// NewChecksumWriter. Writer is not safe for concurrent use.
type Writer struct {
	w      io.Writer
	seeker io.Seeker // nil when the underlying stream cannot seek
	engine endian.EndianEngine
	crc    hash.Hash32 // non-nil for checksummed writers
	off    int64
}

// NewWriter creates a Writer over w. If w also implements io.Seeker the
// Writer supports Seek, which the compound-file assembler uses to
// back-patch its leading header.
func NewWriter(w io.Writer) *Writer {
	sw := &Writer{
		w:      w,
		engine: endian.GetLittleEndianEngine(),
	}
	if s, ok := w.(io.Seeker); ok {
		sw.seeker = s
	}

	return sw
}

// NewChecksumWriter creates a Writer that additionally accumulates a CRC32
// digest over every byte written. Checksummed writers reject Seek.
func NewChecksumWriter(w io.Writer) *Writer {
	return &Writer{
		w:      w,
		engine: endian.GetLittleEndianEngine(),
		crc:    crc32.NewIEEE(),
	}
}

// write pushes raw bytes through the stream, updating the running offset
// and the CRC digest when present. All typed writes funnel through here.
func (w *Writer) write(p []byte) error {
	n, err := w.w.Write(p)
	w.off += int64(n)
	if err != nil {
		return fmt.Errorf("%w: write failed: %v", errs.ErrStorage, err)
	}
	if w.crc != nil {
		w.crc.Write(p)
	}

	return nil
}

// Offset returns the number of bytes written so far, which equals the
// current stream position for writers created at position zero.
func (w *Writer) Offset() int64 {
	return w.off
}

// Checksum returns the running CRC32 of all bytes written. It returns zero
// for writers created with NewWriter.
func (w *Writer) Checksum() uint32 {
	if w.crc == nil {
		return 0
	}

	return w.crc.Sum32()
}

// SeekTo repositions the underlying stream at an absolute offset. It
// fails with errs.ErrUnsupported on checksummed writers and on streams
// that cannot seek.
func (w *Writer) SeekTo(pos int64) error {
	if w.crc != nil {
		return fmt.Errorf("%w: cannot seek a checksummed writer", errs.ErrUnsupported)
	}
	if w.seeker == nil {
		return fmt.Errorf("%w: underlying stream is not seekable", errs.ErrUnsupported)
	}

	n, err := w.seeker.Seek(pos, io.SeekStart)
	if err != nil {
		return fmt.Errorf("%w: seek failed: %v", errs.ErrStorage, err)
	}
	w.off = n

	return nil
}

// WriteBytes writes raw bytes with no framing.
func (w *Writer) WriteBytes(p []byte) error {
	return w.write(p)
}

// WriteByte writes a single unsigned byte.
func (w *Writer) WriteByte(v byte) error {
	return w.write([]byte{v})
}

// WriteInt8 writes a single signed byte.
func (w *Writer) WriteInt8(v int8) error {
	return w.write([]byte{byte(v)})
}

// WriteUint16 writes a fixed-width unsigned 16-bit integer.
func (w *Writer) WriteUint16(v uint16) error {
	var buf [2]byte
	w.engine.PutUint16(buf[:], v)

	return w.write(buf[:])
}

// WriteInt32 writes a fixed-width signed 32-bit integer.
func (w *Writer) WriteInt32(v int32) error {
	var buf [4]byte
	w.engine.PutUint32(buf[:], uint32(v))

	return w.write(buf[:])
}

// WriteUint32 writes a fixed-width unsigned 32-bit integer.
func (w *Writer) WriteUint32(v uint32) error {
	var buf [4]byte
	w.engine.PutUint32(buf[:], v)

	return w.write(buf[:])
}

// WriteInt64 writes a fixed-width signed 64-bit integer.
func (w *Writer) WriteInt64(v int64) error {
	var buf [8]byte
	w.engine.PutUint64(buf[:], uint64(v))

	return w.write(buf[:])
}

// WriteUint64 writes a fixed-width unsigned 64-bit integer.
func (w *Writer) WriteUint64(v uint64) error {
	var buf [8]byte
	w.engine.PutUint64(buf[:], v)

	return w.write(buf[:])
}

// WriteFloat32 writes an IEEE 754 single-precision float.
func (w *Writer) WriteFloat32(v float32) error {
	return w.WriteUint32(math.Float32bits(v))
}

// WriteFloat64 writes an IEEE 754 double-precision float.
func (w *Writer) WriteFloat64(v float64) error {
	return w.WriteUint64(math.Float64bits(v))
}

// WriteUvarint writes an unsigned integer in LEB128 variable-length
// encoding, 7 bits per byte with the high bit as a continuation flag.
func (w *Writer) WriteUvarint(v uint64) error {
	var buf [10]byte
	n := 0
	for v >= 0x80 {
		buf[n] = byte(v) | 0x80
		v >>= 7
		n++
	}
	buf[n] = byte(v)

	return w.write(buf[:n+1])
}

// WriteVarint writes a signed integer using zig-zag folding over the
// unsigned varint encoding, so small negative values stay small on disk.
func (w *Writer) WriteVarint(v int64) error {
	return w.WriteUvarint(uint64(v<<1) ^ uint64(v>>63)) //nolint:gosec
}

// WriteVarString writes a byte string with an unsigned varint length
// prefix. This is the default string framing for quiver files.
func (w *Writer) WriteVarString(p []byte) error {
	if err := w.WriteUvarint(uint64(len(p))); err != nil {
		return err
	}

	return w.write(p)
}

// WriteString2 writes a byte string with a 2-byte length prefix. Used by
// formats whose entries are bounded at 64KiB.
func (w *Writer) WriteString2(p []byte) error {
	if len(p) > math.MaxUint16 {
		return fmt.Errorf("%w: string length %d exceeds 2-byte prefix", errs.ErrCorrupt, len(p))
	}
	if err := w.WriteUint16(uint16(len(p))); err != nil {
		return err
	}

	return w.write(p)
}

// WriteString4 writes a byte string with a 4-byte length prefix.
func (w *Writer) WriteString4(p []byte) error {
	if int64(len(p)) > math.MaxUint32 {
		return fmt.Errorf("%w: string length %d exceeds 4-byte prefix", errs.ErrCorrupt, len(p))
	}
	if err := w.WriteUint32(uint32(len(p))); err != nil {
		return err
	}

	return w.write(p)
}

// WriteUint32Slice writes a homogeneous block of unsigned 32-bit integers
// with no framing. The caller is responsible for recording the count.
func (w *Writer) WriteUint32Slice(vals []uint32) error {
	buf := make([]byte, 0, len(vals)*4)
	for _, v := range vals {
		buf = w.engine.AppendUint32(buf, v)
	}

	return w.write(buf)
}

// WriteUint64Slice writes a homogeneous block of unsigned 64-bit integers
// with no framing.
func (w *Writer) WriteUint64Slice(vals []uint64) error {
	buf := make([]byte, 0, len(vals)*8)
	for _, v := range vals {
		buf = w.engine.AppendUint64(buf, v)
	}

	return w.write(buf)
}

// WriteInt64Slice writes a homogeneous block of signed 64-bit integers
// with no framing.
func (w *Writer) WriteInt64Slice(vals []int64) error {
	buf := make([]byte, 0, len(vals)*8)
	for _, v := range vals {
		buf = w.engine.AppendUint64(buf, uint64(v))
	}

	return w.write(buf)
}

// WriteFloat64Slice writes a homogeneous block of double-precision floats
// with no framing.
func (w *Writer) WriteFloat64Slice(vals []float64) error {
	buf := make([]byte, 0, len(vals)*8)
	for _, v := range vals {
		buf = w.engine.AppendUint64(buf, math.Float64bits(v))
	}

	return w.write(buf)
}
