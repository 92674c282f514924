package plaintext

import (
	"bytes"
	"fmt"

	"github.com/quiversearch/quiver/codec"
	"github.com/quiversearch/quiver/column"
	"github.com/quiversearch/quiver/errs"
	"github.com/quiversearch/quiver/storage"
)

// docWriter emits the .dcs file: a DOC record per document with nested
// DOCFIELD, COLVAL, and VECTOR/VPOST records.
type docWriter struct {
	out     *storage.Output
	inDoc   bool
	closed  bool
	docnum  int
	lastDoc int
	count   int
}

var _ codec.PerDocumentWriter = (*docWriter)(nil)

func (w *docWriter) emit(indent int, command string, kv ...any) error {
	return w.out.WriteBytes([]byte(formatLine(indent, command, kv...)))
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

	return w.emit(0, "DOC", "dn", docnum)
}

func (w *docWriter) AddField(field codec.Field, value any, length int) error {
	if !w.inDoc {
		return fmt.Errorf("%w: AddField outside a document", errs.ErrWriterState)
	}
	if value == nil && length < 0 {
		return nil
	}
	v := value
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	if v == nil {
		v = ""
	}

	return w.emit(1, "DOCFIELD", "fn", field.Name, "v", v, "len", length)
}

func (w *docWriter) AddColumnValue(field codec.Field, col column.Type, value []byte) error {
	if !w.inDoc {
		return fmt.Errorf("%w: AddColumnValue outside a document", errs.ErrWriterState)
	}

	return w.emit(1, "COLVAL", "fn", field.Name, "v", value, "type", col.Name())
}

func (w *docWriter) AddVectorPostings(field codec.Field, postings []codec.Posting) error {
	if !w.inDoc {
		return fmt.Errorf("%w: AddVectorPostings outside a document", errs.ErrWriterState)
	}
	if err := w.emit(1, "VECTOR", "fn", field.Name); err != nil {
		return err
	}
	for _, p := range postings {
		if err := w.emit(2, "VPOST", "t", p.Payload, "w", p.Weight); err != nil {
			return err
		}
	}

	return nil
}

func (w *docWriter) FinishDoc() error {
	if !w.inDoc {
		return fmt.Errorf("%w: FinishDoc outside a document", errs.ErrWriterState)
	}
	w.inDoc = false
	w.lastDoc = w.docnum
	w.count = w.docnum + 1

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

	return w.out.Close()
}

// fieldWriter emits the .trm file: TERMFIELD records with BTEXT blocks,
// each holding its POST records and a closing TERMINFO summary, plus
// SPELL records between terms.
type fieldWriter struct {
	out    *storage.Output
	closed bool

	inField   bool
	fieldName string
	lastField string

	inTerm   bool
	term     []byte
	lastTerm []byte
	lastDoc  int
	info     *codec.TermInfo
}

var _ codec.FieldWriter = (*fieldWriter)(nil)

func (w *fieldWriter) emit(indent int, command string, kv ...any) error {
	return w.out.WriteBytes([]byte(formatLine(indent, command, kv...)))
}

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

	return w.emit(0, "TERMFIELD", "fn", field.Name)
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
	w.info = codec.NewTermInfo()

	return w.emit(1, "BTEXT", "t", term)
}

func (w *fieldWriter) AddPosting(docnum int, weight float64, length int, payload []byte) error {
	if !w.inTerm {
		return fmt.Errorf("%w: AddPosting outside a term", errs.ErrWriterState)
	}
	if docnum <= w.lastDoc {
		return fmt.Errorf("%w: posting doc %d after %d", errs.ErrOutOfOrder, docnum, w.lastDoc)
	}
	w.lastDoc = docnum
	w.info.Add(docnum, weight, length)

	return w.emit(2, "POST", "dn", docnum, "w", weight, "v", payload)
}

func (w *fieldWriter) FinishTerm() error {
	if !w.inTerm {
		return fmt.Errorf("%w: FinishTerm outside a term", errs.ErrWriterState)
	}
	w.inTerm = false
	w.lastTerm = w.term

	info := w.info
	w.info = nil

	return w.emit(2, "TERMINFO",
		"w", info.Weight,
		"df", info.DocFreq,
		"minl", info.MinLength,
		"maxl", info.MaxLength,
		"maxw", info.MaxWeight,
		"minid", info.MinID,
		"maxid", info.MaxID,
	)
}

func (w *fieldWriter) AddSpellWord(word []byte) error {
	if !w.inField || w.inTerm {
		return fmt.Errorf("%w: AddSpellWord outside a field", errs.ErrWriterState)
	}

	return w.emit(1, "SPELL", "t", word)
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

	return w.out.Close()
}
