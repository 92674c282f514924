// Package column implements quiver's per-document column stores: one
// typed value per document for a sortable or stored field, addressable by
// document ordinal.
//
// A column file is written through the generic storage layer, so every
// codec (including the transient in-memory one) exercises the same
// physical read path. Two layouts exist: VarBytes, a length-prefixed
// value region followed by an offsets table, and FixedBytes, a dense
// fixed-width block.
package column

import (
	"fmt"

	"github.com/quiversearch/quiver/errs"
	"github.com/quiversearch/quiver/storage"
	"github.com/quiversearch/quiver/stream"
)

// Type describes one column layout and acts as the factory for its
// writer and reader halves.
type Type interface {
	// Name identifies the layout inside segment metadata.
	Name() string

	// Default is the value reported for documents that never got one,
	// and for whole sub-readers that lack the column.
	Default() []byte

	// Writer starts writing a column to out.
	Writer(out *storage.Output) (Writer, error)

	// Reader opens a column over a file of the given length holding
	// docCount documents.
	Reader(in *storage.Input, docCount int) (Reader, error)
}

// Writer adds values in ascending document order. Gaps are filled with
// the column's default.
type Writer interface {
	// Add records the value for docnum. Documents must be presented in
	// ascending order.
	Add(docnum int, value []byte) error

	// Finish pads the column out to docCount documents and writes the
	// layout's trailer. The Output is not closed.
	Finish(docCount int) error
}

// Reader retrieves values by document ordinal.
type Reader interface {
	// Value returns the stored value for docnum, or the column default
	// if the document has none.
	Value(docnum int) ([]byte, error)

	// Default is the layout's declared default, reported for document
	// ranges the column does not cover.
	Default() []byte

	// DocCount returns the number of documents the column covers.
	DocCount() int
}

// registry of layout names for segment deserialization.
var types = map[string]func() Type{
	"varbytes": func() Type { return VarBytes{} },
}

// ByName resolves a layout name recorded in segment metadata. Fixed-width
// layouts encode their width in the name, e.g. "fixed:8".
func ByName(name string) (Type, error) {
	if factory, ok := types[name]; ok {
		return factory(), nil
	}
	var width int
	if n, err := fmt.Sscanf(name, "fixed:%d", &width); err == nil && n == 1 && width > 0 {
		return FixedBytes{Width: width}, nil
	}

	return nil, fmt.Errorf("%w: column layout %q", errs.ErrUnsupported, name)
}

// VarBytes stores variable-length values: a packed value region followed
// by an offsets table of docCount+1 entries, so value i occupies
// [offset[i], offset[i+1]). The trailer records where the offsets table
// starts.
type VarBytes struct{}

var _ Type = VarBytes{}

func (VarBytes) Name() string {
	return "varbytes"
}

func (VarBytes) Default() []byte {
	return nil
}

func (VarBytes) Writer(out *storage.Output) (Writer, error) {
	return &varBytesWriter{w: out.Writer}, nil
}

func (VarBytes) Reader(in *storage.Input, docCount int) (Reader, error) {
	size := in.Size()
	if size < 12 {
		return nil, fmt.Errorf("%w: varbytes column of %d bytes", errs.ErrCorrupt, size)
	}
	trailer, err := in.Subset(size-12, 12)
	if err != nil {
		return nil, err
	}
	offsetsPos, err := trailer.ReadUint64()
	if err != nil {
		return nil, err
	}
	count, err := trailer.ReadUint32()
	if err != nil {
		return nil, err
	}
	if int(count) != docCount {
		return nil, fmt.Errorf("%w: varbytes column holds %d docs, segment has %d",
			errs.ErrCorrupt, count, docCount)
	}

	offRegion, err := in.Subset(int64(offsetsPos), size-12-int64(offsetsPos)) //nolint:gosec
	if err != nil {
		return nil, err
	}
	offsets := make([]uint64, count+1)
	if err := offRegion.ReadUint64Slice(offsets); err != nil {
		return nil, err
	}

	return &varBytesReader{in: in, offsets: offsets}, nil
}

type varBytesWriter struct {
	w       *stream.Writer
	offsets []uint64
	lastDoc int
}

func (cw *varBytesWriter) Add(docnum int, value []byte) error {
	if docnum < cw.lastDoc {
		return fmt.Errorf("%w: column doc %d after %d", errs.ErrOutOfOrder, docnum, cw.lastDoc)
	}
	// Fill any gap with empty (default) values.
	for len(cw.offsets) < docnum {
		cw.offsets = append(cw.offsets, uint64(cw.w.Offset())) //nolint:gosec
	}
	cw.offsets = append(cw.offsets, uint64(cw.w.Offset())) //nolint:gosec
	cw.lastDoc = docnum + 1

	return cw.w.WriteBytes(value)
}

func (cw *varBytesWriter) Finish(docCount int) error {
	for len(cw.offsets) < docCount {
		cw.offsets = append(cw.offsets, uint64(cw.w.Offset())) //nolint:gosec
	}
	// Closing sentinel so value i always ends at offset[i+1].
	cw.offsets = append(cw.offsets, uint64(cw.w.Offset())) //nolint:gosec

	offsetsPos := cw.w.Offset()
	if err := cw.w.WriteUint64Slice(cw.offsets); err != nil {
		return err
	}
	if err := cw.w.WriteUint64(uint64(offsetsPos)); err != nil { //nolint:gosec
		return err
	}

	return cw.w.WriteUint32(uint32(docCount)) //nolint:gosec
}

type varBytesReader struct {
	in      *storage.Input
	offsets []uint64
}

func (cr *varBytesReader) Value(docnum int) ([]byte, error) {
	if docnum < 0 || docnum >= len(cr.offsets)-1 {
		return nil, fmt.Errorf("%w: column doc %d of %d", errs.ErrCorrupt, docnum, len(cr.offsets)-1)
	}
	start, end := cr.offsets[docnum], cr.offsets[docnum+1]
	if start == end {
		return nil, nil
	}
	sub, err := cr.in.Subset(int64(start), int64(end-start)) //nolint:gosec
	if err != nil {
		return nil, err
	}
	p := make([]byte, end-start)
	if err := sub.ReadBytes(p); err != nil {
		return nil, err
	}

	return p, nil
}

func (cr *varBytesReader) Default() []byte {
	return nil
}

func (cr *varBytesReader) DocCount() int {
	return len(cr.offsets) - 1
}

// FixedBytes stores one fixed-width value per document as a dense block,
// with a single uint32 doc count trailer. Short values are zero-padded to
// the width; long values are rejected.
type FixedBytes struct {
	Width int
}

var _ Type = FixedBytes{}

func (c FixedBytes) Name() string {
	return fmt.Sprintf("fixed:%d", c.Width)
}

func (c FixedBytes) Default() []byte {
	return make([]byte, c.Width)
}

func (c FixedBytes) Writer(out *storage.Output) (Writer, error) {
	return &fixedBytesWriter{w: out.Writer, width: c.Width}, nil
}

func (c FixedBytes) Reader(in *storage.Input, docCount int) (Reader, error) {
	trailer, err := in.Subset(in.Size()-4, 4)
	if err != nil {
		return nil, err
	}
	count, err := trailer.ReadUint32()
	if err != nil {
		return nil, err
	}
	if int(count) != docCount {
		return nil, fmt.Errorf("%w: fixed column holds %d docs, segment has %d",
			errs.ErrCorrupt, count, docCount)
	}
	if int64(count)*int64(c.Width) != in.Size()-4 {
		return nil, fmt.Errorf("%w: fixed column size mismatch", errs.ErrCorrupt)
	}

	return &fixedBytesReader{in: in, width: c.Width, count: int(count)}, nil
}

type fixedBytesWriter struct {
	w       *stream.Writer
	width   int
	lastDoc int
}

func (cw *fixedBytesWriter) Add(docnum int, value []byte) error {
	if docnum < cw.lastDoc {
		return fmt.Errorf("%w: column doc %d after %d", errs.ErrOutOfOrder, docnum, cw.lastDoc)
	}
	if len(value) > cw.width {
		return fmt.Errorf("%w: value of %d bytes in fixed:%d column", errs.ErrCorrupt, len(value), cw.width)
	}
	for cw.lastDoc < docnum {
		if err := cw.w.WriteBytes(make([]byte, cw.width)); err != nil {
			return err
		}
		cw.lastDoc++
	}
	padded := make([]byte, cw.width)
	copy(padded, value)
	cw.lastDoc = docnum + 1

	return cw.w.WriteBytes(padded)
}

func (cw *fixedBytesWriter) Finish(docCount int) error {
	for cw.lastDoc < docCount {
		if err := cw.w.WriteBytes(make([]byte, cw.width)); err != nil {
			return err
		}
		cw.lastDoc++
	}

	return cw.w.WriteUint32(uint32(docCount)) //nolint:gosec
}

type fixedBytesReader struct {
	in    *storage.Input
	width int
	count int
}

func (cr *fixedBytesReader) Value(docnum int) ([]byte, error) {
	if docnum < 0 || docnum >= cr.count {
		return nil, fmt.Errorf("%w: column doc %d of %d", errs.ErrCorrupt, docnum, cr.count)
	}
	sub, err := cr.in.Subset(int64(docnum)*int64(cr.width), int64(cr.width))
	if err != nil {
		return nil, err
	}
	p := make([]byte, cr.width)
	if err := sub.ReadBytes(p); err != nil {
		return nil, err
	}

	return p, nil
}

func (cr *fixedBytesReader) Default() []byte {
	return make([]byte, cr.width)
}

func (cr *fixedBytesReader) DocCount() int {
	return cr.count
}
