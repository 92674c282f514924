package codec

import (
	"fmt"

	"github.com/quiversearch/quiver/compress"
	"github.com/quiversearch/quiver/errs"
	"github.com/quiversearch/quiver/internal/pool"
	"github.com/quiversearch/quiver/storage"
	"github.com/quiversearch/quiver/stream"
)

// WrappingCodec forwards every role to an inner codec. Wrappers embed it
// and override only the roles they change.
type WrappingCodec struct {
	Inner Codec
}

var _ Codec = (*WrappingCodec)(nil)

func (c *WrappingCodec) Name() string {
	return c.Inner.Name()
}

func (c *WrappingCodec) ShortName() string {
	return c.Inner.ShortName()
}

func (c *WrappingCodec) NewSegment(st storage.Storage, indexName string) (Segment, error) {
	return c.Inner.NewSegment(st, indexName)
}

func (c *WrappingCodec) PerDocumentWriter(st storage.Storage, seg Segment) (PerDocumentWriter, error) {
	return c.Inner.PerDocumentWriter(st, seg)
}

func (c *WrappingCodec) FieldWriter(st storage.Storage, seg Segment) (FieldWriter, error) {
	return c.Inner.FieldWriter(st, seg)
}

func (c *WrappingCodec) PerDocumentReader(st storage.Storage, seg Segment) (PerDocumentReader, error) {
	return c.Inner.PerDocumentReader(st, seg)
}

func (c *WrappingCodec) TermsReader(st storage.Storage, seg Segment) (TermsReader, error) {
	return c.Inner.TermsReader(st, seg)
}

func (c *WrappingCodec) Automata(st storage.Storage, seg Segment) Automata {
	return c.Inner.Automata(st, seg)
}

func (c *WrappingCodec) FinishSegment(st storage.Storage, seg Segment) error {
	return c.Inner.FinishSegment(st, seg)
}

func (c *WrappingCodec) SegmentStorage(st storage.Storage, seg Segment) (storage.Storage, error) {
	return c.Inner.SegmentStorage(st, seg)
}

func (c *WrappingCodec) SegmentFromBytes(data []byte) (Segment, error) {
	return c.Inner.SegmentFromBytes(data)
}

// Compressed stored values are framed so uncompressed segments stay
// readable through the same wrapper: two magic bytes, the algorithm
// byte, then the compressed serialization of the original value.
var compressedMagic = [2]byte{0xf1, 0x5a}

// compressedMinSize is the smallest serialized value worth compressing.
// Anything shorter passes through unframed.
const compressedMinSize = 64

// CompressedCodec wraps another codec and transparently compresses
// stored field values on the way in and decompresses them on the way
// out. Postings, columns, and the term dictionary are untouched.
type CompressedCodec struct {
	WrappingCodec

	typ compress.Type
}

var _ Codec = (*CompressedCodec)(nil)

// NewCompressedCodec wraps inner so stored values are compressed with
// the given algorithm.
func NewCompressedCodec(inner Codec, typ compress.Type) *CompressedCodec {
	return &CompressedCodec{WrappingCodec: WrappingCodec{Inner: inner}, typ: typ}
}

func (c *CompressedCodec) PerDocumentWriter(st storage.Storage, seg Segment) (PerDocumentWriter, error) {
	inner, err := c.Inner.PerDocumentWriter(st, seg)
	if err != nil {
		return nil, err
	}
	codec, err := compress.ForType(c.typ)
	if err != nil {
		return nil, err
	}

	return &compressedDocWriter{PerDocumentWriter: inner, typ: c.typ, codec: codec}, nil
}

func (c *CompressedCodec) PerDocumentReader(st storage.Storage, seg Segment) (PerDocumentReader, error) {
	inner, err := c.Inner.PerDocumentReader(st, seg)
	if err != nil {
		return nil, err
	}

	return &compressedDocReader{PerDocumentReader: inner}, nil
}

type compressedDocWriter struct {
	PerDocumentWriter

	typ   compress.Type
	codec compress.Codec
}

func (w *compressedDocWriter) AddField(field Field, value any, length int) error {
	if value == nil {
		return w.PerDocumentWriter.AddField(field, nil, length)
	}

	buf := pool.GetSubBuffer()
	defer pool.PutSubBuffer(buf)
	sw := stream.NewWriter(buf)
	if err := sw.WriteMetadata(value); err != nil {
		return err
	}
	if len(buf.B) < compressedMinSize {
		return w.PerDocumentWriter.AddField(field, value, length)
	}

	compressed, err := w.codec.Compress(buf.B)
	if err != nil {
		return err
	}
	framed := make([]byte, 0, len(compressed)+3)
	framed = append(framed, compressedMagic[0], compressedMagic[1], byte(w.typ))
	framed = append(framed, compressed...)

	return w.PerDocumentWriter.AddField(field, framed, length)
}

type compressedDocReader struct {
	PerDocumentReader
}

func (r *compressedDocReader) StoredFields(docnum int) (map[string]any, error) {
	fields, err := r.PerDocumentReader.StoredFields(docnum)
	if err != nil {
		return nil, err
	}
	for name, value := range fields {
		// Codecs that round-trip values through a text format hand the
		// frame back as a string, so accept both shapes.
		var framed []byte
		switch v := value.(type) {
		case []byte:
			framed = v
		case string:
			framed = []byte(v)
		default:
			continue
		}
		if len(framed) < 3 ||
			framed[0] != compressedMagic[0] || framed[1] != compressedMagic[1] {
			continue
		}
		codec, err := compress.ForType(compress.Type(framed[2]))
		if err != nil {
			return nil, err
		}
		raw, err := codec.Decompress(framed[3:])
		if err != nil {
			return nil, fmt.Errorf("%w: stored value for %q: %w", errs.ErrCorrupt, name, err)
		}
		decoded, err := stream.NewBytesReader(raw).ReadMetadata()
		if err != nil {
			return nil, fmt.Errorf("%w: stored value for %q: %w", errs.ErrCorrupt, name, err)
		}
		fields[name] = decoded
	}

	return fields, nil
}
