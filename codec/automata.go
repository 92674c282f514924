package codec

import (
	"github.com/quiversearch/quiver/automaton"
	"github.com/quiversearch/quiver/storage"
)

// CursorAutomata implements approximate matching for any codec whose
// term cursors support Seek, by intersecting a Levenshtein automaton
// with the sorted dictionary. Both built-in codecs use it.
type CursorAutomata struct {
	Open func(fieldName string) (TermCursor, error)
}

var _ Automata = CursorAutomata{}

func (a CursorAutomata) TermsWithin(fieldName string, term []byte, maxDist, prefixLen int) ([][]byte, error) {
	cursor, err := a.Open(fieldName)
	if err != nil {
		return nil, err
	}

	return automaton.TermsWithin(cursor, term, maxDist, prefixLen)
}

// NewCursorAutomata builds the default Automata for a codec by opening
// terms readers on demand.
func NewCursorAutomata(c Codec, st storage.Storage, seg Segment) CursorAutomata {
	return CursorAutomata{
		Open: func(fieldName string) (TermCursor, error) {
			tr, err := c.TermsReader(st, seg)
			if err != nil {
				return nil, err
			}

			return tr.Cursor(fieldName)
		},
	}
}
