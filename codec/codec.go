package codec

import (
	"fmt"
	"sort"
	"sync"

	"github.com/quiversearch/quiver/column"
	"github.com/quiversearch/quiver/errs"
	"github.com/quiversearch/quiver/storage"
)

// Field carries the per-field schema facts the format layer needs. The
// analysis pipeline that produces these lives above this module.
type Field struct {
	Name string

	// Scorable fields record per-document field lengths.
	Scorable bool

	// Vectored fields store their full postings per document.
	Vectored bool

	// Spelling fields feed graph words to the spelling store.
	Spelling bool
}

// Codec bundles the writer and reader roles for one on-disk format.
type Codec interface {
	// Name is the registry key persisted in segment handles.
	Name() string

	// ShortName is the filename prefix for the codec's segment files.
	ShortName() string

	// NewSegment creates a fresh, empty segment handle for writing.
	NewSegment(st storage.Storage, indexName string) (Segment, error)

	// PerDocumentWriter opens the stored-document writer role.
	PerDocumentWriter(st storage.Storage, seg Segment) (PerDocumentWriter, error)

	// FieldWriter opens the inverted-index writer role.
	FieldWriter(st storage.Storage, seg Segment) (FieldWriter, error)

	// PerDocumentReader opens the stored-document reader role.
	PerDocumentReader(st storage.Storage, seg Segment) (PerDocumentReader, error)

	// TermsReader opens the inverted-index reader role.
	TermsReader(st storage.Storage, seg Segment) (TermsReader, error)

	// Automata returns the approximate-matching strategy for the
	// segment's term dictionary.
	Automata(st storage.Storage, seg Segment) Automata

	// FinishSegment runs after both writer roles closed, giving the
	// codec a chance to post-process the segment's files, for example
	// packing them into a compound file.
	FinishSegment(st storage.Storage, seg Segment) error

	// SegmentStorage resolves the storage the segment's files must be
	// read from. Codecs that assemble compound files return a view into
	// the compound here; others return st unchanged.
	SegmentStorage(st storage.Storage, seg Segment) (storage.Storage, error)

	// SegmentFromBytes rebuilds a segment handle serialized with
	// Segment.Bytes.
	SegmentFromBytes(data []byte) (Segment, error)
}

// PerDocumentWriter receives one document at a time: stored field
// values, column values, field lengths, and optional term vectors. Calls
// must follow StartDoc / AddField... / FinishDoc; violations fault with
// ErrWriterState.
type PerDocumentWriter interface {
	StartDoc(docnum int) error

	// AddField records a stored value (nil for unstored fields) and the
	// analyzed field length (negative when the field is not scorable).
	AddField(field Field, value any, length int) error

	// AddColumnValue records the current document's value for the named
	// field's column.
	AddColumnValue(field Field, col column.Type, value []byte) error

	// AddVectorPostings stores the document's term vector for a field.
	AddVectorPostings(field Field, postings []Posting) error

	FinishDoc() error

	// Close finishes the per-document files. The writer is unusable
	// afterwards.
	Close() error
}

// FieldWriter receives the inverted index in canonical order: fields
// ascending, terms ascending within a field, documents ascending within
// a term. Out-of-order terms or documents fault with ErrOutOfOrder;
// calls outside the StartField / StartTerm nesting fault with
// ErrWriterState.
type FieldWriter interface {
	StartField(field Field) error
	StartTerm(term []byte) error
	AddPosting(docnum int, weight float64, length int, payload []byte) error
	FinishTerm() error

	// AddSpellWord records a word for the field's spelling store.
	// Valid between FinishTerm/StartTerm calls inside a field.
	AddSpellWord(word []byte) error

	FinishField() error
	Close() error
}

// PerDocumentReader is the read side of PerDocumentWriter.
type PerDocumentReader interface {
	// DocCountAll returns the number of document slots, deleted or not.
	DocCountAll() int

	// DocCount returns the number of live documents.
	DocCount() int

	// IsDeleted reports whether a document ordinal is deleted.
	IsDeleted(docnum int) bool

	// HasDeletions reports whether any ordinal is deleted.
	HasDeletions() bool

	// AllDocNums returns the live document ordinals in ascending order.
	AllDocNums() []int

	// StoredFields returns the stored field values of one document.
	StoredFields(docnum int) (map[string]any, error)

	// HasColumn reports whether the named field has a column.
	HasColumn(fieldName string) bool

	// ColumnValues opens the named field's column. Faults with
	// ErrNoColumn when the field has none.
	ColumnValues(fieldName string) (column.Reader, error)

	// FieldLength returns a document's analyzed length for a field, or
	// defaultLen when none was recorded.
	FieldLength(docnum int, fieldName string, defaultLen int) int

	// MinFieldLength and MaxFieldLength bound the recorded lengths for
	// a field. Zero when the field recorded none.
	MinFieldLength(fieldName string) int
	MaxFieldLength(fieldName string) int

	// HasVector reports whether a document stored a term vector for a
	// field.
	HasVector(docnum int, fieldName string) bool

	// Vector returns a stored term vector. Faults with ErrNoVector when
	// the document has none for the field.
	Vector(docnum int, fieldName string) ([]Posting, error)

	Close() error
}

// TermsReader is the read side of FieldWriter.
type TermsReader interface {
	// IndexedFieldNames returns the fields with at least one term.
	IndexedFieldNames() []string

	// Contains reports whether a term exists in a field.
	Contains(fieldName string, term []byte) bool

	// Terms returns every (field, term) pair in canonical order.
	Terms() []FieldTerm

	// TermsFrom returns the terms of one field starting at prefix, in
	// ascending order.
	TermsFrom(fieldName string, prefix []byte) ([][]byte, error)

	// TermRange returns the terms of one field in [start, end), in
	// ascending order. A nil end means no upper bound.
	TermRange(fieldName string, start, end []byte) ([][]byte, error)

	// TermInfo returns the statistics for a term. Faults with
	// ErrTermNotFound for absent terms.
	TermInfo(fieldName string, term []byte) (*TermInfo, error)

	// Matcher opens a postings iterator for a term.
	Matcher(fieldName string, term []byte) (Matcher, error)

	// Cursor opens a term cursor over one field's dictionary.
	Cursor(fieldName string) (TermCursor, error)

	Close() error
}

// TermCursor walks one field's term dictionary in lexicographic order.
// A cursor starts on the first term; accessors fault with
// ErrInvalidCursor when the cursor has moved past the last term.
type TermCursor interface {
	// IsValid reports whether the cursor points at a term.
	IsValid() bool

	// Term returns the current term.
	Term() ([]byte, error)

	// TermInfo returns the current term's statistics.
	TermInfo() (*TermInfo, error)

	// Next advances to the following term and returns it, or nil when
	// the dictionary is exhausted. Faults with errs.ErrInvalidCursor on
	// an exhausted cursor.
	Next() ([]byte, error)

	// Seek positions the cursor at the first term >= target and returns
	// it, or nil when every term sorts before target. Faults with
	// errs.ErrInvalidCursor on an exhausted cursor.
	Seek(target []byte) ([]byte, error)

	// First rewinds to the first term and returns it. Unlike Seek,
	// First may be called on an exhausted cursor.
	First() ([]byte, error)
}

// FieldTerm is one entry of a term dictionary listing.
type FieldTerm struct {
	Field string
	Term  []byte
}

// Automata matches a segment's term dictionary against approximate
// string queries.
type Automata interface {
	// TermsWithin returns the dictionary terms of a field within
	// maxDist Levenshtein edits of term, honoring an exact prefix of
	// prefixLen bytes.
	TermsWithin(fieldName string, term []byte, maxDist, prefixLen int) ([][]byte, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]func() Codec)
)

// Register makes a codec constructor available under its name. Codec
// packages call this from init, mirroring database/sql driver
// registration. Registering the same name twice panics.
func Register(name string, factory func() Codec) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("codec: Register called twice for %q", name))
	}
	registry[name] = factory
}

// Lookup resolves a registered codec by name.
func Lookup(name string) (Codec, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: codec %q is not registered", errs.ErrUnsupported, name)
	}

	return factory(), nil
}

// RegisteredCodecs returns the registered codec names, sorted.
func RegisteredCodecs() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}
