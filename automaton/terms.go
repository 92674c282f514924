package automaton

import "bytes"

// Cursor is the slice of a term cursor the intersection needs. The
// codec package's TermCursor satisfies it.
type Cursor interface {
	// IsValid reports whether the cursor points at a term. Seeking an
	// exhausted cursor is a fault, so the intersection checks first.
	IsValid() bool

	// Seek positions the cursor at the first term >= target and returns
	// it, or nil when every term sorts before target.
	Seek(target []byte) ([]byte, error)
}

// TermsWithin intersects a sorted term dictionary with the Levenshtein
// automaton of term: it asks the automaton for the next accepted string,
// seeks the cursor there, and repeats, so only near matches and their
// gaps are ever visited.
func TermsWithin(cursor Cursor, term []byte, maxDist, prefixLen int) ([][]byte, error) {
	dfa := LevenshteinDFA(term, maxDist, prefixLen)

	var out [][]byte
	match, ok := dfa.NextValidString(nil)
	for ok && cursor.IsValid() {
		key, err := cursor.Seek(match)
		if err != nil {
			return nil, err
		}
		if key == nil {
			break
		}
		if bytes.Equal(key, match) {
			out = append(out, match)
			// Restart strictly after the hit.
			key = append(append([]byte(nil), key...), 0)
		}
		match, ok = dfa.NextValidString(key)
	}

	return out, nil
}
