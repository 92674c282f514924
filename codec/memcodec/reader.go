package memcodec

import (
	"fmt"
	"sort"

	"github.com/quiversearch/quiver/codec"
	"github.com/quiversearch/quiver/column"
	"github.com/quiversearch/quiver/errs"
	"github.com/quiversearch/quiver/storage"
)

type docReader struct {
	st   storage.Storage
	seg  codec.Segment
	data *segmentData
}

var _ codec.PerDocumentReader = (*docReader)(nil)

func (r *docReader) DocCountAll() int {
	return r.seg.DocCountAll()
}

func (r *docReader) DocCount() int {
	return r.seg.DocCount()
}

func (r *docReader) IsDeleted(docnum int) bool {
	return r.seg.IsDeleted(docnum)
}

func (r *docReader) HasDeletions() bool {
	return r.seg.HasDeletions()
}

func (r *docReader) AllDocNums() []int {
	out := make([]int, 0, r.seg.DocCount())
	for docnum := 0; docnum < r.seg.DocCountAll(); docnum++ {
		if !r.seg.IsDeleted(docnum) {
			out = append(out, docnum)
		}
	}

	return out
}

func (r *docReader) StoredFields(docnum int) (map[string]any, error) {
	if docnum < 0 || docnum >= r.seg.DocCountAll() {
		return nil, fmt.Errorf("%w: document %d of %d", errs.ErrCorrupt, docnum, r.seg.DocCountAll())
	}
	r.data.mu.RLock()
	fields := r.data.stored[docnum]
	r.data.mu.RUnlock()

	out := make(map[string]any, len(fields))
	for name, value := range fields {
		out[name] = value
	}

	return out, nil
}

func (r *docReader) HasColumn(fieldName string) bool {
	r.data.mu.RLock()
	defer r.data.mu.RUnlock()
	_, ok := r.data.columns[fieldName]

	return ok
}

func (r *docReader) ColumnValues(fieldName string) (column.Reader, error) {
	r.data.mu.RLock()
	layout, ok := r.data.columns[fieldName]
	r.data.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: field %q", errs.ErrNoColumn, fieldName)
	}
	typ, err := column.ByName(layout)
	if err != nil {
		return nil, err
	}
	in, err := r.st.OpenFile(r.seg.FileName(fieldName, ".col"))
	if err != nil {
		return nil, err
	}

	return typ.Reader(in, r.seg.DocCountAll())
}

func (r *docReader) FieldLength(docnum int, fieldName string, defaultLen int) int {
	r.data.mu.RLock()
	defer r.data.mu.RUnlock()
	if length, ok := r.data.lengths[fieldName][docnum]; ok {
		return length
	}

	return defaultLen
}

func (r *docReader) MinFieldLength(fieldName string) int {
	r.data.mu.RLock()
	defer r.data.mu.RUnlock()
	first := true
	minLen := 0
	for _, length := range r.data.lengths[fieldName] {
		if first || length < minLen {
			minLen = length
			first = false
		}
	}

	return minLen
}

func (r *docReader) MaxFieldLength(fieldName string) int {
	r.data.mu.RLock()
	defer r.data.mu.RUnlock()
	maxLen := 0
	for _, length := range r.data.lengths[fieldName] {
		if length > maxLen {
			maxLen = length
		}
	}

	return maxLen
}

func (r *docReader) HasVector(docnum int, fieldName string) bool {
	r.data.mu.RLock()
	defer r.data.mu.RUnlock()
	_, ok := r.data.vectors[fieldName][docnum]

	return ok
}

func (r *docReader) Vector(docnum int, fieldName string) ([]codec.Posting, error) {
	r.data.mu.RLock()
	postings, ok := r.data.vectors[fieldName][docnum]
	r.data.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: document %d field %q", errs.ErrNoVector, docnum, fieldName)
	}
	out := make([]codec.Posting, len(postings))
	copy(out, postings)

	return out, nil
}

func (r *docReader) Close() error {
	return nil
}

type termsReader struct {
	data *segmentData
}

var _ codec.TermsReader = (*termsReader)(nil)

// sortedTerms returns the field's terms in lexicographic order,
// rebuilding the cached listing after writes.
func (r *termsReader) sortedTerms(fd *fieldData) []string {
	if fd.stale || fd.sorted == nil {
		fd.sorted = make([]string, 0, len(fd.terms))
		for term := range fd.terms {
			fd.sorted = append(fd.sorted, term)
		}
		sort.Strings(fd.sorted)
		fd.stale = false
	}

	return fd.sorted
}

func (r *termsReader) IndexedFieldNames() []string {
	r.data.mu.RLock()
	defer r.data.mu.RUnlock()
	names := make([]string, 0, len(r.data.fields))
	for name := range r.data.fields {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

func (r *termsReader) Contains(fieldName string, term []byte) bool {
	r.data.mu.RLock()
	defer r.data.mu.RUnlock()
	fd, ok := r.data.fields[fieldName]
	if !ok {
		return false
	}
	_, ok = fd.terms[string(term)]

	return ok
}

func (r *termsReader) Terms() []codec.FieldTerm {
	r.data.mu.Lock()
	defer r.data.mu.Unlock()
	var out []codec.FieldTerm
	for _, fieldName := range r.fieldNamesLocked() {
		fd := r.data.fields[fieldName]
		for _, term := range r.sortedTerms(fd) {
			out = append(out, codec.FieldTerm{Field: fieldName, Term: []byte(term)})
		}
	}

	return out
}

func (r *termsReader) fieldNamesLocked() []string {
	names := make([]string, 0, len(r.data.fields))
	for name := range r.data.fields {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

func (r *termsReader) TermsFrom(fieldName string, prefix []byte) ([][]byte, error) {
	r.data.mu.Lock()
	defer r.data.mu.Unlock()
	fd, ok := r.data.fields[fieldName]
	if !ok {
		return nil, fmt.Errorf("%w: field %q", errs.ErrTermNotFound, fieldName)
	}
	terms := r.sortedTerms(fd)
	start := sort.SearchStrings(terms, string(prefix))
	out := make([][]byte, 0, len(terms)-start)
	for _, term := range terms[start:] {
		out = append(out, []byte(term))
	}

	return out, nil
}

func (r *termsReader) TermRange(fieldName string, start, end []byte) ([][]byte, error) {
	r.data.mu.Lock()
	defer r.data.mu.Unlock()
	fd, ok := r.data.fields[fieldName]
	if !ok {
		return nil, fmt.Errorf("%w: field %q", errs.ErrTermNotFound, fieldName)
	}
	terms := r.sortedTerms(fd)
	lo := sort.SearchStrings(terms, string(start))
	hi := len(terms)
	if end != nil {
		hi = sort.SearchStrings(terms, string(end))
	}
	if hi < lo {
		hi = lo
	}
	out := make([][]byte, 0, hi-lo)
	for _, term := range terms[lo:hi] {
		out = append(out, []byte(term))
	}

	return out, nil
}

func (r *termsReader) TermInfo(fieldName string, term []byte) (*codec.TermInfo, error) {
	r.data.mu.RLock()
	defer r.data.mu.RUnlock()
	fd, ok := r.data.fields[fieldName]
	if !ok {
		return nil, fmt.Errorf("%w: %q in field %q", errs.ErrTermNotFound, term, fieldName)
	}
	td, ok := fd.terms[string(term)]
	if !ok {
		return nil, fmt.Errorf("%w: %q in field %q", errs.ErrTermNotFound, term, fieldName)
	}
	info := *td.info

	return &info, nil
}

func (r *termsReader) Matcher(fieldName string, term []byte) (codec.Matcher, error) {
	r.data.mu.RLock()
	defer r.data.mu.RUnlock()
	fd, ok := r.data.fields[fieldName]
	if !ok {
		return nil, fmt.Errorf("%w: %q in field %q", errs.ErrTermNotFound, term, fieldName)
	}
	td, ok := fd.terms[string(term)]
	if !ok {
		return nil, fmt.Errorf("%w: %q in field %q", errs.ErrTermNotFound, term, fieldName)
	}
	postings := make([]codec.Posting, len(td.postings))
	copy(postings, td.postings)

	return codec.NewListMatcher(postings), nil
}

func (r *termsReader) Cursor(fieldName string) (codec.TermCursor, error) {
	r.data.mu.Lock()
	defer r.data.mu.Unlock()
	fd, ok := r.data.fields[fieldName]
	if !ok {
		return &memCursor{}, nil
	}
	terms := r.sortedTerms(fd)

	return &memCursor{terms: terms, field: fd}, nil
}

func (r *termsReader) Close() error {
	return nil
}

// memCursor walks a snapshot of one field's sorted term listing.
type memCursor struct {
	terms []string
	field *fieldData
	pos   int
}

var _ codec.TermCursor = (*memCursor)(nil)

func (c *memCursor) IsValid() bool {
	return c.pos < len(c.terms)
}

func (c *memCursor) Term() ([]byte, error) {
	if !c.IsValid() {
		return nil, fmt.Errorf("%w: cursor exhausted", errs.ErrInvalidCursor)
	}

	return []byte(c.terms[c.pos]), nil
}

func (c *memCursor) TermInfo() (*codec.TermInfo, error) {
	if !c.IsValid() {
		return nil, fmt.Errorf("%w: cursor exhausted", errs.ErrInvalidCursor)
	}
	td := c.field.terms[c.terms[c.pos]]
	info := *td.info

	return &info, nil
}

func (c *memCursor) Next() ([]byte, error) {
	if !c.IsValid() {
		return nil, fmt.Errorf("%w: cursor exhausted", errs.ErrInvalidCursor)
	}
	c.pos++
	if !c.IsValid() {
		return nil, nil
	}

	return []byte(c.terms[c.pos]), nil
}

func (c *memCursor) Seek(target []byte) ([]byte, error) {
	if !c.IsValid() {
		return nil, fmt.Errorf("%w: cursor exhausted", errs.ErrInvalidCursor)
	}
	c.pos = sort.SearchStrings(c.terms, string(target))
	if !c.IsValid() {
		return nil, nil
	}

	return []byte(c.terms[c.pos]), nil
}

func (c *memCursor) First() ([]byte, error) {
	c.pos = 0
	if !c.IsValid() {
		return nil, nil
	}

	return []byte(c.terms[c.pos]), nil
}
