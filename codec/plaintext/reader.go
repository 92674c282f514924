package plaintext

import (
	"fmt"
	"sort"

	"github.com/quiversearch/quiver/codec"
	"github.com/quiversearch/quiver/column"
	"github.com/quiversearch/quiver/errs"
)

// docReader holds the parsed .dcs file. The text format is scanned once
// at open; lookups after that are map reads.
type docReader struct {
	seg codec.Segment

	stored  map[int]map[string]any
	lengths map[string]map[int]int
	vectors map[string]map[int][]codec.Posting
	colvals map[string]map[int][]byte
	columns map[string]string
}

var _ codec.PerDocumentReader = (*docReader)(nil)

func (r *docReader) parse(lines []line) error {
	r.stored = make(map[int]map[string]any)
	r.lengths = make(map[string]map[int]int)
	r.vectors = make(map[string]map[int][]codec.Posting)
	r.colvals = make(map[string]map[int][]byte)
	r.columns = make(map[string]string)

	docnum := -1
	vectorField := ""
	for _, ln := range lines {
		switch ln.command {
		case "DOC":
			dn, err := ln.num("dn")
			if err != nil {
				return err
			}
			docnum = dn
			r.stored[docnum] = make(map[string]any)
		case "DOCFIELD":
			if docnum < 0 || ln.indent != 1 {
				return fmt.Errorf("%w: DOCFIELD outside a DOC record", errs.ErrCorrupt)
			}
			fn, err := ln.str("fn")
			if err != nil {
				return err
			}
			v, err := ln.value("v")
			if err != nil {
				return err
			}
			if s, ok := v.(string); !ok || s != "" {
				r.stored[docnum][fn] = v
			}
			length, err := ln.num("len")
			if err != nil {
				return err
			}
			if length >= 0 {
				if r.lengths[fn] == nil {
					r.lengths[fn] = make(map[int]int)
				}
				r.lengths[fn][docnum] = length
			}
		case "COLVAL":
			if docnum < 0 || ln.indent != 1 {
				return fmt.Errorf("%w: COLVAL outside a DOC record", errs.ErrCorrupt)
			}
			fn, err := ln.str("fn")
			if err != nil {
				return err
			}
			v, err := ln.str("v")
			if err != nil {
				return err
			}
			layout, err := ln.str("type")
			if err != nil {
				return err
			}
			r.columns[fn] = layout
			if r.colvals[fn] == nil {
				r.colvals[fn] = make(map[int][]byte)
			}
			r.colvals[fn][docnum] = []byte(v)
		case "VECTOR":
			if docnum < 0 || ln.indent != 1 {
				return fmt.Errorf("%w: VECTOR outside a DOC record", errs.ErrCorrupt)
			}
			fn, err := ln.str("fn")
			if err != nil {
				return err
			}
			vectorField = fn
			if r.vectors[fn] == nil {
				r.vectors[fn] = make(map[int][]codec.Posting)
			}
			if r.vectors[fn][docnum] == nil {
				r.vectors[fn][docnum] = []codec.Posting{}
			}
		case "VPOST":
			if vectorField == "" || ln.indent != 2 {
				return fmt.Errorf("%w: VPOST outside a VECTOR record", errs.ErrCorrupt)
			}
			t, err := ln.str("t")
			if err != nil {
				return err
			}
			weight, err := ln.float("w")
			if err != nil {
				return err
			}
			r.vectors[vectorField][docnum] = append(r.vectors[vectorField][docnum],
				codec.Posting{DocNum: docnum, Weight: weight, Payload: []byte(t)})
		default:
			return fmt.Errorf("%w: unexpected %s record in document file", errs.ErrCorrupt, ln.command)
		}
	}

	return nil
}

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
	fields, ok := r.stored[docnum]
	if !ok {
		return nil, fmt.Errorf("%w: document %d has no stored record", errs.ErrCorrupt, docnum)
	}
	out := make(map[string]any, len(fields))
	for name, value := range fields {
		out[name] = value
	}

	return out, nil
}

func (r *docReader) HasColumn(fieldName string) bool {
	_, ok := r.columns[fieldName]

	return ok
}

// plainColumnReader serves parsed COLVAL records through the column
// contract.
type plainColumnReader struct {
	values   map[int][]byte
	def      []byte
	docCount int
}

func (cr *plainColumnReader) Value(docnum int) ([]byte, error) {
	if docnum < 0 || docnum >= cr.docCount {
		return nil, fmt.Errorf("%w: column doc %d of %d", errs.ErrCorrupt, docnum, cr.docCount)
	}
	if v, ok := cr.values[docnum]; ok {
		return v, nil
	}

	return cr.def, nil
}

func (cr *plainColumnReader) Default() []byte {
	return cr.def
}

func (cr *plainColumnReader) DocCount() int {
	return cr.docCount
}

func (r *docReader) ColumnValues(fieldName string) (column.Reader, error) {
	layout, ok := r.columns[fieldName]
	if !ok {
		return nil, fmt.Errorf("%w: field %q", errs.ErrNoColumn, fieldName)
	}
	typ, err := column.ByName(layout)
	if err != nil {
		return nil, err
	}

	return &plainColumnReader{
		values:   r.colvals[fieldName],
		def:      typ.Default(),
		docCount: r.seg.DocCountAll(),
	}, nil
}

func (r *docReader) FieldLength(docnum int, fieldName string, defaultLen int) int {
	if length, ok := r.lengths[fieldName][docnum]; ok {
		return length
	}

	return defaultLen
}

func (r *docReader) MinFieldLength(fieldName string) int {
	first := true
	minLen := 0
	for _, length := range r.lengths[fieldName] {
		if first || length < minLen {
			minLen = length
			first = false
		}
	}

	return minLen
}

func (r *docReader) MaxFieldLength(fieldName string) int {
	maxLen := 0
	for _, length := range r.lengths[fieldName] {
		if length > maxLen {
			maxLen = length
		}
	}

	return maxLen
}

func (r *docReader) HasVector(docnum int, fieldName string) bool {
	_, ok := r.vectors[fieldName][docnum]

	return ok
}

func (r *docReader) Vector(docnum int, fieldName string) ([]codec.Posting, error) {
	postings, ok := r.vectors[fieldName][docnum]
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

type ptTerm struct {
	postings []codec.Posting
	info     *codec.TermInfo
}

type ptField struct {
	terms  []string // file order, which is canonical sorted order
	byText map[string]*ptTerm
	spell  [][]byte
}

// termsReader holds the parsed .trm file.
type termsReader struct {
	fields map[string]*ptField
}

var _ codec.TermsReader = (*termsReader)(nil)

func (r *termsReader) parse(lines []line) error {
	r.fields = make(map[string]*ptField)

	var field *ptField
	var term *ptTerm
	for _, ln := range lines {
		switch ln.command {
		case "TERMFIELD":
			fn, err := ln.str("fn")
			if err != nil {
				return err
			}
			field = &ptField{byText: make(map[string]*ptTerm)}
			r.fields[fn] = field
			term = nil
		case "BTEXT":
			if field == nil || ln.indent != 1 {
				return fmt.Errorf("%w: BTEXT outside a TERMFIELD record", errs.ErrCorrupt)
			}
			t, err := ln.str("t")
			if err != nil {
				return err
			}
			term = &ptTerm{info: codec.NewTermInfo()}
			field.terms = append(field.terms, t)
			field.byText[t] = term
		case "POST":
			if term == nil || ln.indent != 2 {
				return fmt.Errorf("%w: POST outside a BTEXT record", errs.ErrCorrupt)
			}
			dn, err := ln.num("dn")
			if err != nil {
				return err
			}
			weight, err := ln.float("w")
			if err != nil {
				return err
			}
			v, err := ln.str("v")
			if err != nil {
				return err
			}
			var payload []byte
			if v != "" {
				payload = []byte(v)
			}
			term.postings = append(term.postings, codec.Posting{DocNum: dn, Weight: weight, Payload: payload})
		case "TERMINFO":
			if term == nil || ln.indent != 2 {
				return fmt.Errorf("%w: TERMINFO outside a BTEXT record", errs.ErrCorrupt)
			}
			info := &codec.TermInfo{}
			var err error
			if info.Weight, err = ln.float("w"); err != nil {
				return err
			}
			if info.DocFreq, err = ln.num("df"); err != nil {
				return err
			}
			if info.MinLength, err = ln.num("minl"); err != nil {
				return err
			}
			if info.MaxLength, err = ln.num("maxl"); err != nil {
				return err
			}
			if info.MaxWeight, err = ln.float("maxw"); err != nil {
				return err
			}
			if info.MinID, err = ln.num("minid"); err != nil {
				return err
			}
			if info.MaxID, err = ln.num("maxid"); err != nil {
				return err
			}
			term.info = info
		case "SPELL":
			if field == nil || ln.indent != 1 {
				return fmt.Errorf("%w: SPELL outside a TERMFIELD record", errs.ErrCorrupt)
			}
			t, err := ln.str("t")
			if err != nil {
				return err
			}
			field.spell = append(field.spell, []byte(t))
		default:
			return fmt.Errorf("%w: unexpected %s record in terms file", errs.ErrCorrupt, ln.command)
		}
	}

	return nil
}

func (r *termsReader) IndexedFieldNames() []string {
	return sortedKeys(r.fields)
}

func (r *termsReader) Contains(fieldName string, term []byte) bool {
	field, ok := r.fields[fieldName]
	if !ok {
		return false
	}
	_, ok = field.byText[string(term)]

	return ok
}

func (r *termsReader) Terms() []codec.FieldTerm {
	var out []codec.FieldTerm
	for _, fieldName := range sortedKeys(r.fields) {
		for _, term := range r.fields[fieldName].terms {
			out = append(out, codec.FieldTerm{Field: fieldName, Term: []byte(term)})
		}
	}

	return out
}

func (r *termsReader) TermsFrom(fieldName string, prefix []byte) ([][]byte, error) {
	field, ok := r.fields[fieldName]
	if !ok {
		return nil, fmt.Errorf("%w: field %q", errs.ErrTermNotFound, fieldName)
	}
	start := sort.SearchStrings(field.terms, string(prefix))
	out := make([][]byte, 0, len(field.terms)-start)
	for _, term := range field.terms[start:] {
		out = append(out, []byte(term))
	}

	return out, nil
}

func (r *termsReader) TermRange(fieldName string, start, end []byte) ([][]byte, error) {
	field, ok := r.fields[fieldName]
	if !ok {
		return nil, fmt.Errorf("%w: field %q", errs.ErrTermNotFound, fieldName)
	}
	lo := sort.SearchStrings(field.terms, string(start))
	hi := len(field.terms)
	if end != nil {
		hi = sort.SearchStrings(field.terms, string(end))
	}
	if hi < lo {
		hi = lo
	}
	out := make([][]byte, 0, hi-lo)
	for _, term := range field.terms[lo:hi] {
		out = append(out, []byte(term))
	}

	return out, nil
}

func (r *termsReader) lookup(fieldName string, term []byte) (*ptTerm, error) {
	field, ok := r.fields[fieldName]
	if !ok {
		return nil, fmt.Errorf("%w: %q in field %q", errs.ErrTermNotFound, term, fieldName)
	}
	td, ok := field.byText[string(term)]
	if !ok {
		return nil, fmt.Errorf("%w: %q in field %q", errs.ErrTermNotFound, term, fieldName)
	}

	return td, nil
}

func (r *termsReader) TermInfo(fieldName string, term []byte) (*codec.TermInfo, error) {
	td, err := r.lookup(fieldName, term)
	if err != nil {
		return nil, err
	}
	info := *td.info

	return &info, nil
}

func (r *termsReader) Matcher(fieldName string, term []byte) (codec.Matcher, error) {
	td, err := r.lookup(fieldName, term)
	if err != nil {
		return nil, err
	}
	postings := make([]codec.Posting, len(td.postings))
	copy(postings, td.postings)

	return codec.NewListMatcher(postings), nil
}

// SpellWords exposes the field's SPELL records.
func (r *termsReader) SpellWords(fieldName string) [][]byte {
	field, ok := r.fields[fieldName]
	if !ok {
		return nil
	}

	return field.spell
}

func (r *termsReader) Cursor(fieldName string) (codec.TermCursor, error) {
	field, ok := r.fields[fieldName]
	if !ok {
		return &ptCursor{}, nil
	}

	return &ptCursor{field: field}, nil
}

func (r *termsReader) Close() error {
	return nil
}

// ptCursor walks the file-order term listing of one field.
type ptCursor struct {
	field *ptField
	pos   int
}

var _ codec.TermCursor = (*ptCursor)(nil)

func (c *ptCursor) terms() []string {
	if c.field == nil {
		return nil
	}

	return c.field.terms
}

func (c *ptCursor) IsValid() bool {
	return c.pos < len(c.terms())
}

func (c *ptCursor) Term() ([]byte, error) {
	if !c.IsValid() {
		return nil, fmt.Errorf("%w: cursor exhausted", errs.ErrInvalidCursor)
	}

	return []byte(c.terms()[c.pos]), nil
}

func (c *ptCursor) TermInfo() (*codec.TermInfo, error) {
	if !c.IsValid() {
		return nil, fmt.Errorf("%w: cursor exhausted", errs.ErrInvalidCursor)
	}
	info := *c.field.byText[c.terms()[c.pos]].info

	return &info, nil
}

func (c *ptCursor) Next() ([]byte, error) {
	if !c.IsValid() {
		return nil, fmt.Errorf("%w: cursor exhausted", errs.ErrInvalidCursor)
	}
	c.pos++
	if !c.IsValid() {
		return nil, nil
	}

	return []byte(c.terms()[c.pos]), nil
}

func (c *ptCursor) Seek(target []byte) ([]byte, error) {
	if !c.IsValid() {
		return nil, fmt.Errorf("%w: cursor exhausted", errs.ErrInvalidCursor)
	}
	c.pos = sort.SearchStrings(c.terms(), string(target))
	if !c.IsValid() {
		return nil, nil
	}

	return []byte(c.terms()[c.pos]), nil
}

func (c *ptCursor) First() ([]byte, error) {
	c.pos = 0
	if !c.IsValid() {
		return nil, nil
	}

	return []byte(c.terms()[c.pos]), nil
}
