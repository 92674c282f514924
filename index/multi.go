// Package index composes per-segment readers into a single view: one
// document number space spanning every segment, one merged term
// dictionary, and combined term statistics.
package index

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/quiversearch/quiver/codec"
	"github.com/quiversearch/quiver/column"
	"github.com/quiversearch/quiver/errs"
)

// MultiPerDocumentReader presents several per-document readers as one.
// Sub-reader document ordinals are offset by the total slot count of the
// readers before them, so global numbering is stable for a fixed
// sub-reader order.
type MultiPerDocumentReader struct {
	subs    []codec.PerDocumentReader
	offsets []int // offsets[i] is the global ordinal of sub i's doc 0
	total   int
}

var _ codec.PerDocumentReader = (*MultiPerDocumentReader)(nil)

func NewMultiPerDocumentReader(subs []codec.PerDocumentReader) *MultiPerDocumentReader {
	r := &MultiPerDocumentReader{subs: subs, offsets: make([]int, len(subs))}
	for i, sub := range subs {
		r.offsets[i] = r.total
		r.total += sub.DocCountAll()
	}

	return r
}

// translate maps a global ordinal to (sub index, local ordinal).
func (r *MultiPerDocumentReader) translate(docnum int) (int, int, error) {
	if docnum < 0 || docnum >= r.total {
		return 0, 0, fmt.Errorf("%w: document %d of %d", errs.ErrCorrupt, docnum, r.total)
	}
	i := sort.Search(len(r.offsets), func(i int) bool { return r.offsets[i] > docnum }) - 1

	return i, docnum - r.offsets[i], nil
}

func (r *MultiPerDocumentReader) DocCountAll() int {
	return r.total
}

func (r *MultiPerDocumentReader) DocCount() int {
	count := 0
	for _, sub := range r.subs {
		count += sub.DocCount()
	}

	return count
}

func (r *MultiPerDocumentReader) IsDeleted(docnum int) bool {
	i, local, err := r.translate(docnum)
	if err != nil {
		return false
	}

	return r.subs[i].IsDeleted(local)
}

func (r *MultiPerDocumentReader) HasDeletions() bool {
	for _, sub := range r.subs {
		if sub.HasDeletions() {
			return true
		}
	}

	return false
}

func (r *MultiPerDocumentReader) AllDocNums() []int {
	out := make([]int, 0, r.DocCount())
	for i, sub := range r.subs {
		for _, local := range sub.AllDocNums() {
			out = append(out, r.offsets[i]+local)
		}
	}

	return out
}

func (r *MultiPerDocumentReader) StoredFields(docnum int) (map[string]any, error) {
	i, local, err := r.translate(docnum)
	if err != nil {
		return nil, err
	}

	return r.subs[i].StoredFields(local)
}

func (r *MultiPerDocumentReader) HasColumn(fieldName string) bool {
	for _, sub := range r.subs {
		if sub.HasColumn(fieldName) {
			return true
		}
	}

	return false
}

// multiColumnReader stitches sub-reader columns together. Sub-readers
// without the column contribute the layout's declared default for their
// ordinals.
type multiColumnReader struct {
	subs    []column.Reader // nil entries for sub-readers without the column
	offsets []int
	total   int
	def     []byte
}

func (cr *multiColumnReader) Value(docnum int) ([]byte, error) {
	if docnum < 0 || docnum >= cr.total {
		return nil, fmt.Errorf("%w: column doc %d of %d", errs.ErrCorrupt, docnum, cr.total)
	}
	i := sort.Search(len(cr.offsets), func(i int) bool { return cr.offsets[i] > docnum }) - 1
	if cr.subs[i] == nil {
		return cr.def, nil
	}

	return cr.subs[i].Value(docnum - cr.offsets[i])
}

func (cr *multiColumnReader) Default() []byte {
	return cr.def
}

func (cr *multiColumnReader) DocCount() int {
	return cr.total
}

func (r *MultiPerDocumentReader) ColumnValues(fieldName string) (column.Reader, error) {
	if !r.HasColumn(fieldName) {
		return nil, fmt.Errorf("%w: field %q", errs.ErrNoColumn, fieldName)
	}
	cr := &multiColumnReader{
		subs:    make([]column.Reader, len(r.subs)),
		offsets: r.offsets,
		total:   r.total,
	}
	for i, sub := range r.subs {
		if !sub.HasColumn(fieldName) {
			continue
		}
		subReader, err := sub.ColumnValues(fieldName)
		if err != nil {
			return nil, err
		}
		cr.subs[i] = subReader
		if cr.def == nil {
			cr.def = subReader.Default()
		}
	}

	return cr, nil
}

func (r *MultiPerDocumentReader) FieldLength(docnum int, fieldName string, defaultLen int) int {
	i, local, err := r.translate(docnum)
	if err != nil {
		return defaultLen
	}

	return r.subs[i].FieldLength(local, fieldName, defaultLen)
}

func (r *MultiPerDocumentReader) MinFieldLength(fieldName string) int {
	first := true
	minLen := 0
	for _, sub := range r.subs {
		length := sub.MinFieldLength(fieldName)
		if length == 0 {
			continue
		}
		if first || length < minLen {
			minLen = length
			first = false
		}
	}

	return minLen
}

func (r *MultiPerDocumentReader) MaxFieldLength(fieldName string) int {
	maxLen := 0
	for _, sub := range r.subs {
		if length := sub.MaxFieldLength(fieldName); length > maxLen {
			maxLen = length
		}
	}

	return maxLen
}

func (r *MultiPerDocumentReader) HasVector(docnum int, fieldName string) bool {
	i, local, err := r.translate(docnum)
	if err != nil {
		return false
	}

	return r.subs[i].HasVector(local, fieldName)
}

func (r *MultiPerDocumentReader) Vector(docnum int, fieldName string) ([]codec.Posting, error) {
	i, local, err := r.translate(docnum)
	if err != nil {
		return nil, err
	}
	postings, err := r.subs[i].Vector(local, fieldName)
	if err != nil {
		return nil, err
	}
	for j := range postings {
		postings[j].DocNum += r.offsets[i]
	}

	return postings, nil
}

func (r *MultiPerDocumentReader) Close() error {
	var firstErr error
	for _, sub := range r.subs {
		if err := sub.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// MultiCursor merges several term cursors into one ordered walk. When
// the same term appears in more than one sub-cursor the cursor reports
// it once, with statistics combined across the tied sub-cursors.
type MultiCursor struct {
	subs    []codec.TermCursor
	offsets []int // global document offset per sub-cursor, nil for none
	tie     []int // indices of sub-cursors positioned at the current term
	term    []byte
}

var _ codec.TermCursor = (*MultiCursor)(nil)

func NewMultiCursor(subs []codec.TermCursor) (*MultiCursor, error) {
	return NewMultiCursorWithOffsets(subs, nil)
}

// NewMultiCursorWithOffsets additionally translates the document bounds
// in combined statistics into the global ordinal space, using one offset
// per sub-cursor.
func NewMultiCursorWithOffsets(subs []codec.TermCursor, offsets []int) (*MultiCursor, error) {
	c := &MultiCursor{subs: subs, offsets: offsets}
	if _, err := c.First(); err != nil {
		return nil, err
	}

	return c, nil
}

// settle recomputes the minimum term and the tie set from the current
// sub-cursor positions.
func (c *MultiCursor) settle() error {
	c.tie = c.tie[:0]
	c.term = nil
	for i, sub := range c.subs {
		if !sub.IsValid() {
			continue
		}
		term, err := sub.Term()
		if err != nil {
			return err
		}
		switch {
		case c.term == nil || bytes.Compare(term, c.term) < 0:
			c.term = term
			c.tie = append(c.tie[:0], i)
		case bytes.Equal(term, c.term):
			c.tie = append(c.tie, i)
		}
	}

	return nil
}

func (c *MultiCursor) IsValid() bool {
	return c.term != nil
}

func (c *MultiCursor) Term() ([]byte, error) {
	if !c.IsValid() {
		return nil, fmt.Errorf("%w: cursor exhausted", errs.ErrInvalidCursor)
	}

	return c.term, nil
}

// TermInfo combines the statistics of every tied sub-cursor.
func (c *MultiCursor) TermInfo() (*codec.TermInfo, error) {
	if !c.IsValid() {
		return nil, fmt.Errorf("%w: cursor exhausted", errs.ErrInvalidCursor)
	}
	combined := codec.NewTermInfo()
	for _, i := range c.tie {
		info, err := c.subs[i].TermInfo()
		if err != nil {
			return nil, err
		}
		if c.offsets != nil {
			info = info.Shifted(c.offsets[i])
		}
		combined.Combine(info)
	}

	return combined, nil
}

func (c *MultiCursor) Next() ([]byte, error) {
	if !c.IsValid() {
		return nil, fmt.Errorf("%w: cursor exhausted", errs.ErrInvalidCursor)
	}
	for _, i := range c.tie {
		if _, err := c.subs[i].Next(); err != nil {
			return nil, err
		}
	}
	if err := c.settle(); err != nil {
		return nil, err
	}
	if !c.IsValid() {
		return nil, nil
	}

	return c.term, nil
}

func (c *MultiCursor) Seek(target []byte) ([]byte, error) {
	if !c.IsValid() {
		return nil, fmt.Errorf("%w: cursor exhausted", errs.ErrInvalidCursor)
	}
	for _, sub := range c.subs {
		// Exhausted sub-cursors stay exhausted; they have no term >=
		// target to contribute.
		if !sub.IsValid() {
			continue
		}
		if _, err := sub.Seek(target); err != nil {
			return nil, err
		}
	}
	if err := c.settle(); err != nil {
		return nil, err
	}
	if !c.IsValid() {
		return nil, nil
	}

	return c.term, nil
}

func (c *MultiCursor) First() ([]byte, error) {
	for _, sub := range c.subs {
		if _, err := sub.First(); err != nil {
			return nil, err
		}
	}
	if err := c.settle(); err != nil {
		return nil, err
	}
	if !c.IsValid() {
		return nil, nil
	}

	return c.term, nil
}
