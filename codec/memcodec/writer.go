package memcodec

import (
	"bytes"
	"fmt"

	"github.com/quiversearch/quiver/codec"
	"github.com/quiversearch/quiver/column"
	"github.com/quiversearch/quiver/errs"
	"github.com/quiversearch/quiver/storage"
)

// docWriter accumulates stored fields, lengths, and vectors in the
// segment maps and streams column values to real column files.
type docWriter struct {
	st   storage.Storage
	seg  codec.Segment
	data *segmentData

	inDoc    bool
	closed   bool
	docnum   int
	lastDoc  int
	docCount int

	current map[string]any

	colOuts    map[string]*storage.Output
	colWriters map[string]column.Writer
}

var _ codec.PerDocumentWriter = (*docWriter)(nil)

func newDocWriter(st storage.Storage, seg codec.Segment, sd *segmentData) *docWriter {
	return &docWriter{
		st:         st,
		seg:        seg,
		data:       sd,
		lastDoc:    -1,
		colOuts:    make(map[string]*storage.Output),
		colWriters: make(map[string]column.Writer),
	}
}

func (w *docWriter) StartDoc(docnum int) error {
	if w.closed {
		return fmt.Errorf("%w: writer is closed", errs.ErrWriterState)
	}
	if w.inDoc {
		return fmt.Errorf("%w: StartDoc inside document %d", errs.ErrWriterState, w.docnum)
	}
	if docnum <= w.lastDoc {
		return fmt.Errorf("%w: document %d after %d", errs.ErrOutOfOrder, docnum, w.lastDoc)
	}
	w.inDoc = true
	w.docnum = docnum
	w.current = make(map[string]any)

	return nil
}

func (w *docWriter) AddField(field codec.Field, value any, length int) error {
	if !w.inDoc {
		return fmt.Errorf("%w: AddField outside a document", errs.ErrWriterState)
	}
	if value != nil {
		w.current[field.Name] = value
	}
	if field.Scorable && length >= 0 {
		w.data.mu.Lock()
		docs, ok := w.data.lengths[field.Name]
		if !ok {
			docs = make(map[int]int)
			w.data.lengths[field.Name] = docs
		}
		docs[w.docnum] = length
		w.data.mu.Unlock()
	}

	return nil
}

func (w *docWriter) AddColumnValue(field codec.Field, col column.Type, value []byte) error {
	if !w.inDoc {
		return fmt.Errorf("%w: AddColumnValue outside a document", errs.ErrWriterState)
	}
	cw, ok := w.colWriters[field.Name]
	if !ok {
		out, err := w.st.CreateFile(w.seg.FileName(field.Name, ".col"))
		if err != nil {
			return err
		}
		if cw, err = col.Writer(out); err != nil {
			out.Close()

			return err
		}
		w.colOuts[field.Name] = out
		w.colWriters[field.Name] = cw
		w.data.mu.Lock()
		w.data.columns[field.Name] = col.Name()
		w.data.mu.Unlock()
	}

	return cw.Add(w.docnum, value)
}

func (w *docWriter) AddVectorPostings(field codec.Field, postings []codec.Posting) error {
	if !w.inDoc {
		return fmt.Errorf("%w: AddVectorPostings outside a document", errs.ErrWriterState)
	}
	stored := make([]codec.Posting, len(postings))
	copy(stored, postings)
	w.data.mu.Lock()
	docs, ok := w.data.vectors[field.Name]
	if !ok {
		docs = make(map[int][]codec.Posting)
		w.data.vectors[field.Name] = docs
	}
	docs[w.docnum] = stored
	w.data.mu.Unlock()

	return nil
}

func (w *docWriter) FinishDoc() error {
	if !w.inDoc {
		return fmt.Errorf("%w: FinishDoc outside a document", errs.ErrWriterState)
	}
	w.data.mu.Lock()
	w.data.stored[w.docnum] = w.current
	w.data.mu.Unlock()
	w.inDoc = false
	w.lastDoc = w.docnum
	w.docCount = w.docnum + 1
	w.current = nil

	return nil
}

func (w *docWriter) Close() error {
	if w.closed {
		return fmt.Errorf("%w: writer is closed", errs.ErrWriterState)
	}
	if w.inDoc {
		return fmt.Errorf("%w: Close inside document %d", errs.ErrWriterState, w.docnum)
	}
	w.closed = true

	for name, cw := range w.colWriters {
		if err := cw.Finish(w.docCount); err != nil {
			return err
		}
		if err := w.colOuts[name].Close(); err != nil {
			return err
		}
	}
	if w.docCount > w.seg.DocCountAll() {
		w.seg.SetDocCountAll(w.docCount)
	}

	return nil
}

// fieldWriter receives the inverted index in canonical order and builds
// the per-term postings and statistics.
type fieldWriter struct {
	data *segmentData

	inField bool
	closed  bool

	fieldName string
	lastField string
	field     *fieldData

	inTerm   bool
	term     []byte
	lastTerm []byte
	lastDoc  int
	postings []codec.Posting
	info     *codec.TermInfo
}

var _ codec.FieldWriter = (*fieldWriter)(nil)

func (w *fieldWriter) StartField(field codec.Field) error {
	if w.closed {
		return fmt.Errorf("%w: writer is closed", errs.ErrWriterState)
	}
	if w.inField {
		return fmt.Errorf("%w: StartField inside field %q", errs.ErrWriterState, w.fieldName)
	}
	if w.lastField != "" && field.Name <= w.lastField {
		return fmt.Errorf("%w: field %q after %q", errs.ErrOutOfOrder, field.Name, w.lastField)
	}
	w.inField = true
	w.fieldName = field.Name
	w.lastTerm = nil

	w.data.mu.Lock()
	fd, ok := w.data.fields[field.Name]
	if !ok {
		fd = &fieldData{terms: make(map[string]*termData)}
		w.data.fields[field.Name] = fd
	}
	w.data.mu.Unlock()
	w.field = fd

	return nil
}

func (w *fieldWriter) StartTerm(term []byte) error {
	if !w.inField {
		return fmt.Errorf("%w: StartTerm outside a field", errs.ErrWriterState)
	}
	if w.inTerm {
		return fmt.Errorf("%w: StartTerm inside term %q", errs.ErrWriterState, w.term)
	}
	if w.lastTerm != nil && bytes.Compare(term, w.lastTerm) <= 0 {
		return fmt.Errorf("%w: term %q after %q", errs.ErrOutOfOrder, term, w.lastTerm)
	}
	w.inTerm = true
	w.term = append([]byte(nil), term...)
	w.lastDoc = -1
	w.postings = nil
	w.info = codec.NewTermInfo()

	return nil
}

func (w *fieldWriter) AddPosting(docnum int, weight float64, length int, payload []byte) error {
	if !w.inTerm {
		return fmt.Errorf("%w: AddPosting outside a term", errs.ErrWriterState)
	}
	if docnum <= w.lastDoc {
		return fmt.Errorf("%w: posting doc %d after %d", errs.ErrOutOfOrder, docnum, w.lastDoc)
	}
	w.lastDoc = docnum
	w.postings = append(w.postings, codec.Posting{DocNum: docnum, Weight: weight, Payload: payload})
	w.info.Add(docnum, weight, length)

	return nil
}

func (w *fieldWriter) FinishTerm() error {
	if !w.inTerm {
		return fmt.Errorf("%w: FinishTerm outside a term", errs.ErrWriterState)
	}
	w.inTerm = false
	w.lastTerm = w.term

	w.data.mu.Lock()
	w.field.terms[string(w.term)] = &termData{postings: w.postings, info: w.info}
	w.field.stale = true
	w.data.mu.Unlock()
	w.postings = nil
	w.info = nil

	return nil
}

func (w *fieldWriter) AddSpellWord(word []byte) error {
	if !w.inField || w.inTerm {
		return fmt.Errorf("%w: AddSpellWord outside a field", errs.ErrWriterState)
	}
	w.data.mu.Lock()
	w.data.spell[w.fieldName] = append(w.data.spell[w.fieldName], append([]byte(nil), word...))
	w.data.mu.Unlock()

	return nil
}

func (w *fieldWriter) FinishField() error {
	if !w.inField {
		return fmt.Errorf("%w: FinishField outside a field", errs.ErrWriterState)
	}
	if w.inTerm {
		return fmt.Errorf("%w: FinishField inside term %q", errs.ErrWriterState, w.term)
	}
	w.inField = false
	w.lastField = w.fieldName
	w.field = nil

	return nil
}

func (w *fieldWriter) Close() error {
	if w.closed {
		return fmt.Errorf("%w: writer is closed", errs.ErrWriterState)
	}
	if w.inField {
		return fmt.Errorf("%w: Close inside field %q", errs.ErrWriterState, w.fieldName)
	}
	w.closed = true

	return nil
}
