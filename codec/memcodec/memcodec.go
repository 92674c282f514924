// Package memcodec implements the transient in-memory codec. Postings,
// stored fields, lengths, and vectors live in maps owned by the codec
// instance; only column values go through the physical column files, so
// the column read path is exercised even for throwaway indexes.
//
// Segments written by one MemCodec instance are only readable through
// the same instance. Deleting a document drops its stored data outright
// instead of masking it behind a deletion bitmap.
package memcodec

import (
	"fmt"
	"sync"

	"github.com/quiversearch/quiver/codec"
	"github.com/quiversearch/quiver/errs"
	"github.com/quiversearch/quiver/storage"
)

// Name and ShortName identify the codec in the registry and in segment
// file names.
const (
	Name      = "memory"
	ShortName = "mem"
)

// shared is the process-wide instance behind registry lookups, so a
// segment handle's Codec() round-trips inside one process.
var shared = New()

func init() {
	codec.Register(Name, func() codec.Codec { return shared })
}

// MemCodec holds the in-memory data of every segment it has written.
type MemCodec struct {
	mu       sync.RWMutex
	segments map[string]*segmentData // keyed by segment ID
}

var _ codec.Codec = (*MemCodec)(nil)

// New creates an empty in-memory codec.
func New() *MemCodec {
	return &MemCodec{segments: make(map[string]*segmentData)}
}

// Shared returns the registry-backed instance.
func Shared() *MemCodec {
	return shared
}

type segmentData struct {
	mu      sync.RWMutex
	fields  map[string]*fieldData
	stored  map[int]map[string]any
	lengths map[string]map[int]int
	vectors map[string]map[int][]codec.Posting
	spell   map[string][][]byte
	columns map[string]string // field name -> column layout name
}

type fieldData struct {
	terms  map[string]*termData
	sorted []string // sorted term list, rebuilt when stale
	stale  bool
}

type termData struct {
	postings []codec.Posting
	info     *codec.TermInfo
}

func newSegmentData() *segmentData {
	return &segmentData{
		fields:  make(map[string]*fieldData),
		stored:  make(map[int]map[string]any),
		lengths: make(map[string]map[int]int),
		vectors: make(map[string]map[int][]codec.Posting),
		spell:   make(map[string][][]byte),
		columns: make(map[string]string),
	}
}

func (c *MemCodec) Name() string {
	return Name
}

func (c *MemCodec) ShortName() string {
	return ShortName
}

func (c *MemCodec) NewSegment(_ storage.Storage, indexName string) (codec.Segment, error) {
	seg := &memSegment{
		BaseSegment: codec.NewBaseSegment(indexName, Name, ShortName),
		codec:       c,
	}
	c.mu.Lock()
	c.segments[seg.ID()] = newSegmentData()
	c.mu.Unlock()

	return seg, nil
}

func (c *MemCodec) SegmentFromBytes(data []byte) (codec.Segment, error) {
	base, err := codec.BaseSegmentFromBytes(data)
	if err != nil {
		return nil, err
	}

	return &memSegment{BaseSegment: base, codec: c}, nil
}

func (c *MemCodec) data(seg codec.Segment) (*segmentData, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sd, ok := c.segments[seg.ID()]
	if !ok {
		return nil, fmt.Errorf("%w: segment %s is not held by this memory codec",
			errs.ErrUnknownFile, seg.ID())
	}

	return sd, nil
}

func (c *MemCodec) PerDocumentWriter(st storage.Storage, seg codec.Segment) (codec.PerDocumentWriter, error) {
	sd, err := c.data(seg)
	if err != nil {
		return nil, err
	}

	return newDocWriter(st, seg, sd), nil
}

func (c *MemCodec) FieldWriter(_ storage.Storage, seg codec.Segment) (codec.FieldWriter, error) {
	sd, err := c.data(seg)
	if err != nil {
		return nil, err
	}

	return &fieldWriter{data: sd}, nil
}

func (c *MemCodec) PerDocumentReader(st storage.Storage, seg codec.Segment) (codec.PerDocumentReader, error) {
	sd, err := c.data(seg)
	if err != nil {
		return nil, err
	}

	return &docReader{st: st, seg: seg, data: sd}, nil
}

func (c *MemCodec) TermsReader(_ storage.Storage, seg codec.Segment) (codec.TermsReader, error) {
	sd, err := c.data(seg)
	if err != nil {
		return nil, err
	}

	return &termsReader{data: sd}, nil
}

func (c *MemCodec) Automata(st storage.Storage, seg codec.Segment) codec.Automata {
	return codec.NewCursorAutomata(c, st, seg)
}

// FinishSegment is a no-op: memory segments have nothing to assemble.
func (c *MemCodec) FinishSegment(_ storage.Storage, _ codec.Segment) error {
	return nil
}

func (c *MemCodec) SegmentStorage(st storage.Storage, _ codec.Segment) (storage.Storage, error) {
	return st, nil
}

// memSegment deletes documents outright: the document's in-memory data
// goes away along with the ordinal's live status.
type memSegment struct {
	*codec.BaseSegment

	codec *MemCodec
}

func (s *memSegment) DeleteDocument(docnum int) error {
	if err := s.BaseSegment.DeleteDocument(docnum); err != nil {
		return err
	}
	sd, err := s.codec.data(s)
	if err != nil {
		return nil //nolint:nilerr // nothing stored in this process, bitmap is enough
	}
	sd.mu.Lock()
	delete(sd.stored, docnum)
	for _, docs := range sd.vectors {
		delete(docs, docnum)
	}
	for _, docs := range sd.lengths {
		delete(docs, docnum)
	}
	sd.mu.Unlock()

	return nil
}
