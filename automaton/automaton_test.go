package automaton

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLevenshteinDFA_Accepts(t *testing.T) {
	t.Run("distance 1", func(t *testing.T) {
		dfa := LevenshteinDFA([]byte("alfa"), 1, 0)

		for _, s := range []string{"alfa", "alfas", "alf", "alta", "blfa", "aalfa"} {
			require.True(t, dfa.Accepts([]byte(s)), "%q should be within 1 edit", s)
		}
		for _, s := range []string{"alpha", "zulu", "al", "alfaXX", ""} {
			require.False(t, dfa.Accepts([]byte(s)), "%q should not be within 1 edit", s)
		}
	})

	t.Run("distance 2", func(t *testing.T) {
		dfa := LevenshteinDFA([]byte("alfa"), 2, 0)

		require.True(t, dfa.Accepts([]byte("alpha")))
		require.True(t, dfa.Accepts([]byte("al")))
		require.False(t, dfa.Accepts([]byte("zulu")))
	})

	t.Run("exact prefix", func(t *testing.T) {
		dfa := LevenshteinDFA([]byte("alfa"), 1, 2)

		require.True(t, dfa.Accepts([]byte("alta")))
		// One edit, but inside the fixed prefix.
		require.False(t, dfa.Accepts([]byte("blfa")))
	})

	t.Run("zero distance is exact match", func(t *testing.T) {
		dfa := LevenshteinDFA([]byte("alfa"), 0, 0)

		require.True(t, dfa.Accepts([]byte("alfa")))
		require.False(t, dfa.Accepts([]byte("alf")))
		require.False(t, dfa.Accepts([]byte("alfas")))
	})
}

func TestNextValidString_Order(t *testing.T) {
	dfa := LevenshteinDFA([]byte("ab"), 1, 0)

	// Walking NextValidString from the bottom enumerates accepted
	// strings in lexicographic order.
	var got []string
	match, ok := dfa.NextValidString(nil)
	for ok && len(got) < 2000 {
		got = append(got, string(match))
		match, ok = dfa.NextValidString(append(match, 0))
	}

	require.True(t, sort.StringsAreSorted(got))
	for _, s := range got {
		require.True(t, dfa.Accepts([]byte(s)), "%q enumerated but not accepted", s)
	}
	require.Contains(t, got, "a")
	require.Contains(t, got, "ab")
}

func TestNextValidString_SkipsRejected(t *testing.T) {
	dfa := LevenshteinDFA([]byte("alfa"), 1, 0)

	match, ok := dfa.NextValidString([]byte("alg"))
	require.True(t, ok)
	require.True(t, dfa.Accepts(match))
	require.GreaterOrEqual(t, string(match), "alg")

	// A key past every "b" continuation lands on the insertions, which
	// admit an arbitrary first byte.
	match, ok = dfa.NextValidString([]byte("b\xff\xff\xff\xff\xff\xff"))
	require.True(t, ok)
	require.True(t, dfa.Accepts(match))
	require.Greater(t, string(match), "b\xff\xff\xff\xff\xff\xff")

	// Two leading 0xff bytes cost two edits, so nothing sorts at or
	// after that key.
	_, ok = dfa.NextValidString([]byte("\xff\xff"))
	require.False(t, ok)
}

// sliceCursor seeks over a sorted in-memory dictionary.
type sliceCursor struct {
	terms []string
	pos   int
}

func (c *sliceCursor) IsValid() bool {
	return c.pos < len(c.terms)
}

func (c *sliceCursor) Seek(target []byte) ([]byte, error) {
	c.pos = sort.SearchStrings(c.terms, string(target))
	if !c.IsValid() {
		return nil, nil
	}

	return []byte(c.terms[c.pos]), nil
}

func newSliceCursor(terms ...string) *sliceCursor {
	return &sliceCursor{terms: terms}
}

func TestTermsWithin(t *testing.T) {
	terms := []string{"alfa", "alpha", "alta", "bravo", "charlie", "zulu"}

	got, err := TermsWithin(newSliceCursor(terms...), []byte("alfa"), 1, 0)
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("alfa"), []byte("alta")}, got)

	got, err = TermsWithin(newSliceCursor(terms...), []byte("alfa"), 2, 0)
	require.NoError(t, err)
	require.Contains(t, got, []byte("alpha"))
	require.NotContains(t, got, []byte("zulu"))

	got, err = TermsWithin(newSliceCursor(terms...), []byte("qqq"), 1, 0)
	require.NoError(t, err)
	require.Empty(t, got)

	// An empty dictionary is never seeked.
	got, err = TermsWithin(newSliceCursor(), []byte("alfa"), 1, 0)
	require.NoError(t, err)
	require.Empty(t, got)
}
