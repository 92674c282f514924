package codec

import (
	"fmt"

	"github.com/quiversearch/quiver/errs"
)

// Posting is one (document, weight, payload) entry in a postings list or
// a stored term vector. The payload is opaque to the engine.
type Posting struct {
	DocNum  int
	Weight  float64
	Payload []byte
}

// Matcher iterates the postings of a single term. A matcher starts on
// its first posting; accessors fault with ErrInvalidCursor once the
// matcher is exhausted.
type Matcher interface {
	// IsActive reports whether the matcher still points at a posting.
	IsActive() bool

	// DocNum returns the current document ordinal.
	DocNum() (int, error)

	// Weight returns the current posting's weight.
	Weight() (float64, error)

	// Payload returns the current posting's opaque payload, which may
	// be nil.
	Payload() ([]byte, error)

	// Next advances to the following posting.
	Next() error
}

// ListMatcher iterates an in-memory postings slice. Both built-in codecs
// materialize postings before matching, so this is the only matcher
// shape in the tree.
type ListMatcher struct {
	postings []Posting
	pos      int
}

var _ Matcher = (*ListMatcher)(nil)

func NewListMatcher(postings []Posting) *ListMatcher {
	return &ListMatcher{postings: postings}
}

func (m *ListMatcher) IsActive() bool {
	return m.pos < len(m.postings)
}

func (m *ListMatcher) current() (*Posting, error) {
	if !m.IsActive() {
		return nil, fmt.Errorf("%w: matcher exhausted", errs.ErrInvalidCursor)
	}

	return &m.postings[m.pos], nil
}

func (m *ListMatcher) DocNum() (int, error) {
	p, err := m.current()
	if err != nil {
		return 0, err
	}

	return p.DocNum, nil
}

func (m *ListMatcher) Weight() (float64, error) {
	p, err := m.current()
	if err != nil {
		return 0, err
	}

	return p.Weight, nil
}

func (m *ListMatcher) Payload() ([]byte, error) {
	p, err := m.current()
	if err != nil {
		return nil, err
	}

	return p.Payload, nil
}

func (m *ListMatcher) Next() error {
	if !m.IsActive() {
		return fmt.Errorf("%w: matcher exhausted", errs.ErrInvalidCursor)
	}
	m.pos++

	return nil
}

// Drain consumes a matcher into a postings slice.
func Drain(m Matcher) ([]Posting, error) {
	var out []Posting
	for m.IsActive() {
		docnum, err := m.DocNum()
		if err != nil {
			return nil, err
		}
		weight, err := m.Weight()
		if err != nil {
			return nil, err
		}
		payload, err := m.Payload()
		if err != nil {
			return nil, err
		}
		out = append(out, Posting{DocNum: docnum, Weight: weight, Payload: payload})
		if err := m.Next(); err != nil {
			return nil, err
		}
	}

	return out, nil
}
