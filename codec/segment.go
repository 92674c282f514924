package codec

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"

	"github.com/RoaringBitmap/roaring"
	"github.com/google/uuid"

	"github.com/quiversearch/quiver/errs"
	"github.com/quiversearch/quiver/internal/pool"
	"github.com/quiversearch/quiver/storage"
	"github.com/quiversearch/quiver/stream"
)

// Segment is the handle for one immutable unit of index data: its
// identity, its document count, and its deletion set. Everything else
// about the segment's layout is private to the codec that wrote it.
type Segment interface {
	// IndexName returns the name of the index this segment belongs to.
	IndexName() string

	// ID returns the segment's random hex identifier.
	ID() string

	// CodecName returns the registered name of the owning codec.
	CodecName() string

	// Codec resolves the owning codec from the registry.
	Codec() (Codec, error)

	// DocCountAll returns the number of document slots in the segment,
	// deleted or not.
	DocCountAll() int

	// SetDocCountAll records the slot count once writing finishes.
	SetDocCountAll(n int)

	// DocCount returns the number of live (undeleted) documents.
	DocCount() int

	// DeleteDocument marks a document ordinal as deleted.
	DeleteDocument(docnum int) error

	// IsDeleted reports whether a document ordinal is deleted.
	IsDeleted(docnum int) bool

	// DeletedCount returns the number of deleted ordinals.
	DeletedCount() int

	// HasDeletions reports whether any ordinal is deleted.
	HasDeletions() bool

	// FileName builds the physical name for one of the segment's files.
	// The extension includes its leading dot.
	FileName(name, ext string) string

	// Extra exposes the codec-private metadata persisted with the
	// segment.
	Extra() map[string]any

	// Bytes serializes the segment handle for the table of contents.
	Bytes() ([]byte, error)
}

// segFileRe matches the physical name grammar
// {codecShort}_{index}_{segID}_{name}.{ext}. Index and logical names may
// not contain underscores; the segment ID is fixed-width hex.
var segFileRe = regexp.MustCompile(
	`^([A-Za-z0-9]+)_([A-Za-z0-9.-]+)_([0-9a-f]{12})_([A-Za-z0-9.-]+)\.([A-Za-z0-9]+)$`,
)

// SegmentFileName is a parsed physical file name.
type SegmentFileName struct {
	CodecShort string
	IndexName  string
	SegmentID  string
	Name       string
	Ext        string
}

// ParseFileName splits a physical name per the segment file grammar.
func ParseFileName(filename string) (SegmentFileName, error) {
	m := segFileRe.FindStringSubmatch(filename)
	if m == nil {
		return SegmentFileName{}, fmt.Errorf("%w: %q", errs.ErrBadSegmentName, filename)
	}

	return SegmentFileName{
		CodecShort: m[1],
		IndexName:  m[2],
		SegmentID:  m[3],
		Name:       m[4],
		Ext:        m[5],
	}, nil
}

// BaseSegment is the concrete segment handle shared by the built-in
// codecs. Deletions live in a roaring bitmap that serializes with the
// handle.
type BaseSegment struct {
	indexName   string
	segID       string
	codecName   string
	codecShort  string
	docCountAll int
	deleted     *roaring.Bitmap
	extra       map[string]any
}

var _ Segment = (*BaseSegment)(nil)

// NewBaseSegment creates a segment handle with a fresh random ID.
func NewBaseSegment(indexName, codecName, codecShort string) *BaseSegment {
	id := uuid.New()

	return &BaseSegment{
		indexName:  indexName,
		segID:      hex.EncodeToString(id[:6]),
		codecName:  codecName,
		codecShort: codecShort,
		extra:      make(map[string]any),
	}
}

func (s *BaseSegment) IndexName() string {
	return s.indexName
}

func (s *BaseSegment) ID() string {
	return s.segID
}

func (s *BaseSegment) CodecName() string {
	return s.codecName
}

func (s *BaseSegment) Codec() (Codec, error) {
	return Lookup(s.codecName)
}

func (s *BaseSegment) DocCountAll() int {
	return s.docCountAll
}

func (s *BaseSegment) SetDocCountAll(n int) {
	s.docCountAll = n
}

func (s *BaseSegment) DocCount() int {
	return s.docCountAll - s.DeletedCount()
}

func (s *BaseSegment) DeleteDocument(docnum int) error {
	if docnum < 0 || docnum >= s.docCountAll {
		return fmt.Errorf("%w: delete doc %d of %d", errs.ErrCorrupt, docnum, s.docCountAll)
	}
	if s.deleted == nil {
		s.deleted = roaring.New()
	}
	s.deleted.Add(uint32(docnum)) //nolint:gosec

	return nil
}

func (s *BaseSegment) IsDeleted(docnum int) bool {
	return s.deleted != nil && s.deleted.Contains(uint32(docnum)) //nolint:gosec
}

func (s *BaseSegment) DeletedCount() int {
	if s.deleted == nil {
		return 0
	}

	return int(s.deleted.GetCardinality()) //nolint:gosec
}

func (s *BaseSegment) HasDeletions() bool {
	return s.DeletedCount() > 0
}

func (s *BaseSegment) FileName(name, ext string) string {
	return fmt.Sprintf("%s_%s_%s_%s%s", s.codecShort, s.indexName, s.segID, name, ext)
}

func (s *BaseSegment) Extra() map[string]any {
	return s.extra
}

// Bytes serializes the handle: identity fields, slot count, the roaring
// deletion set, and the codec-private extras.
func (s *BaseSegment) Bytes() ([]byte, error) {
	var deleted []byte
	if s.deleted != nil && !s.deleted.IsEmpty() {
		var err error
		if deleted, err = s.deleted.ToBytes(); err != nil {
			return nil, err
		}
	}

	meta := map[string]any{
		"index":    s.indexName,
		"id":       s.segID,
		"codec":    s.codecName,
		"short":    s.codecShort,
		"doccount": int64(s.docCountAll),
		"extra":    s.extra,
	}
	if deleted != nil {
		meta["deleted"] = deleted
	}

	buf := pool.GetSubBuffer()
	defer pool.PutSubBuffer(buf)
	w := stream.NewWriter(buf)
	if err := w.WriteMetadata(meta); err != nil {
		return nil, err
	}
	out := make([]byte, len(buf.B))
	copy(out, buf.B)

	return out, nil
}

// BaseSegmentFromBytes deserializes a handle written by Bytes.
func BaseSegmentFromBytes(data []byte) (*BaseSegment, error) {
	r := stream.NewBytesReader(data)
	raw, err := r.ReadMetadata()
	if err != nil {
		return nil, err
	}
	meta, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: segment metadata is not a map", errs.ErrCorrupt)
	}

	s := &BaseSegment{extra: make(map[string]any)}
	if s.indexName, ok = meta["index"].(string); !ok {
		return nil, fmt.Errorf("%w: segment metadata missing index", errs.ErrCorrupt)
	}
	if s.segID, ok = meta["id"].(string); !ok {
		return nil, fmt.Errorf("%w: segment metadata missing id", errs.ErrCorrupt)
	}
	if s.codecName, ok = meta["codec"].(string); !ok {
		return nil, fmt.Errorf("%w: segment metadata missing codec", errs.ErrCorrupt)
	}
	if s.codecShort, ok = meta["short"].(string); !ok {
		return nil, fmt.Errorf("%w: segment metadata missing codec short name", errs.ErrCorrupt)
	}
	count, ok := meta["doccount"].(int64)
	if !ok {
		return nil, fmt.Errorf("%w: segment metadata missing doccount", errs.ErrCorrupt)
	}
	s.docCountAll = int(count)
	if extra, ok := meta["extra"].(map[string]any); ok {
		s.extra = extra
	}
	if deleted, ok := meta["deleted"].([]byte); ok {
		bm := roaring.New()
		if _, err := bm.FromBuffer(deleted); err != nil {
			return nil, fmt.Errorf("%w: segment deletion set: %w", errs.ErrCorrupt, err)
		}
		// FromBuffer aliases the input; clone so the bitmap owns its
		// storage and stays mutable.
		s.deleted = bm.Clone()
	}

	return s, nil
}

// SegmentFileNames lists the physical files in st that belong to seg.
func SegmentFileNames(st storage.Storage, seg Segment) ([]string, error) {
	names, err := st.List()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, name := range names {
		parsed, err := ParseFileName(name)
		if err != nil {
			continue
		}
		if parsed.IndexName == seg.IndexName() && parsed.SegmentID == seg.ID() {
			out = append(out, name)
		}
	}
	sort.Strings(out)

	return out, nil
}
