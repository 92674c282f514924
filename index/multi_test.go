package index_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quiversearch/quiver/codec"
	"github.com/quiversearch/quiver/codec/memcodec"
	"github.com/quiversearch/quiver/column"
	"github.com/quiversearch/quiver/errs"
	"github.com/quiversearch/quiver/index"
	"github.com/quiversearch/quiver/storage"
)

var bodyField = codec.Field{Name: "body", Scorable: true, Vectored: true}

type segDoc struct {
	body  string
	terms map[string]float64
}

// buildSub indexes one segment of docs and returns its reader roles.
func buildSub(t *testing.T, docs []segDoc) (codec.PerDocumentReader, codec.TermsReader, codec.Segment) {
	t.Helper()

	st := storage.NewRAMStorage()
	require.NoError(t, st.Create())
	mc := memcodec.New()
	seg, err := mc.NewSegment(st, "multi")
	require.NoError(t, err)

	dw, err := mc.PerDocumentWriter(st, seg)
	require.NoError(t, err)
	for docnum, doc := range docs {
		require.NoError(t, dw.StartDoc(docnum))
		require.NoError(t, dw.AddField(bodyField, doc.body, len(doc.terms)))
		require.NoError(t, dw.AddColumnValue(bodyField, column.VarBytes{}, []byte(doc.body)))
		require.NoError(t, dw.FinishDoc())
	}
	require.NoError(t, dw.Close())

	// Invert: term -> ascending doc postings.
	byTerm := map[string][]int{}
	for docnum, doc := range docs {
		for term := range doc.terms {
			byTerm[term] = append(byTerm[term], docnum)
		}
	}
	var terms []string
	for term := range byTerm {
		terms = append(terms, term)
	}
	for i := 0; i < len(terms); i++ {
		for j := i + 1; j < len(terms); j++ {
			if terms[j] < terms[i] {
				terms[i], terms[j] = terms[j], terms[i]
			}
		}
	}

	fw, err := mc.FieldWriter(st, seg)
	require.NoError(t, err)
	require.NoError(t, fw.StartField(bodyField))
	for _, term := range terms {
		require.NoError(t, fw.StartTerm([]byte(term)))
		for _, docnum := range byTerm[term] {
			require.NoError(t, fw.AddPosting(docnum, docs[docnum].terms[term], len(docs[docnum].terms), nil))
		}
		require.NoError(t, fw.FinishTerm())
	}
	require.NoError(t, fw.FinishField())
	require.NoError(t, fw.Close())

	dr, err := mc.PerDocumentReader(st, seg)
	require.NoError(t, err)
	tr, err := mc.TermsReader(st, seg)
	require.NoError(t, err)

	return dr, tr, seg
}

func fixture(t *testing.T) (*index.MultiPerDocumentReader, []codec.TermsReader, []codec.Segment) {
	t.Helper()

	dr1, tr1, seg1 := buildSub(t, []segDoc{
		{"alfa bravo", map[string]float64{"alfa": 1, "bravo": 1}},
		{"bravo charlie", map[string]float64{"bravo": 1, "charlie": 1}},
	})
	dr2, tr2, seg2 := buildSub(t, []segDoc{
		{"alfa delta", map[string]float64{"alfa": 2, "delta": 1}},
	})
	dr3, tr3, seg3 := buildSub(t, []segDoc{
		{"echo", map[string]float64{"echo": 1}},
		{"alfa echo", map[string]float64{"alfa": 1, "echo": 1}},
		{"foxtrot", map[string]float64{"foxtrot": 1}},
	})

	multi := index.NewMultiPerDocumentReader([]codec.PerDocumentReader{dr1, dr2, dr3})

	return multi, []codec.TermsReader{tr1, tr2, tr3}, []codec.Segment{seg1, seg2, seg3}
}

func TestMultiReader_DocNumbering(t *testing.T) {
	multi, _, _ := fixture(t)
	defer multi.Close()

	// Segments hold 2, 1, and 3 docs: global ordinals 0-1, 2, 3-5.
	require.Equal(t, 6, multi.DocCountAll())
	require.Equal(t, 6, multi.DocCount())
	require.Equal(t, []int{0, 1, 2, 3, 4, 5}, multi.AllDocNums())

	fields, err := multi.StoredFields(2)
	require.NoError(t, err)
	require.Equal(t, "alfa delta", fields["body"])

	fields, err = multi.StoredFields(4)
	require.NoError(t, err)
	require.Equal(t, "alfa echo", fields["body"])

	_, err = multi.StoredFields(6)
	require.ErrorIs(t, err, errs.ErrCorrupt)

	require.Equal(t, 2, multi.FieldLength(0, "body", 0))
	require.Equal(t, 1, multi.FieldLength(3, "body", 0))
}

func TestMultiReader_Deletions(t *testing.T) {
	multi, _, segs := fixture(t)
	defer multi.Close()

	// Global doc 3 is segment 3's doc 0.
	require.NoError(t, segs[2].DeleteDocument(0))

	require.True(t, multi.HasDeletions())
	require.True(t, multi.IsDeleted(3))
	require.False(t, multi.IsDeleted(2))
	require.Equal(t, 5, multi.DocCount())
	require.Equal(t, []int{0, 1, 2, 4, 5}, multi.AllDocNums())
}

func TestMultiReader_Columns(t *testing.T) {
	multi, _, _ := fixture(t)
	defer multi.Close()

	require.True(t, multi.HasColumn("body"))
	cr, err := multi.ColumnValues("body")
	require.NoError(t, err)
	require.Equal(t, 6, cr.DocCount())

	for docnum, want := range map[int]string{
		0: "alfa bravo",
		2: "alfa delta",
		5: "foxtrot",
	} {
		v, err := cr.Value(docnum)
		require.NoError(t, err)
		require.Equal(t, []byte(want), v)
	}

	_, err = multi.ColumnValues("missing")
	require.ErrorIs(t, err, errs.ErrNoColumn)
}

func TestMultiCursor_MergesDictionaries(t *testing.T) {
	_, trs, _ := fixture(t)

	var cursors []codec.TermCursor
	for _, tr := range trs {
		cur, err := tr.Cursor("body")
		require.NoError(t, err)
		cursors = append(cursors, cur)
	}

	mc, err := index.NewMultiCursor(cursors)
	require.NoError(t, err)

	var walked []string
	for mc.IsValid() {
		term, err := mc.Term()
		require.NoError(t, err)
		walked = append(walked, string(term))
		_, err = mc.Next()
		require.NoError(t, err)
	}

	// Duplicates collapse; order is lexicographic across segments.
	require.Equal(t, []string{"alfa", "bravo", "charlie", "delta", "echo", "foxtrot"}, walked)

	_, err = mc.Term()
	require.ErrorIs(t, err, errs.ErrInvalidCursor)
}

func TestMultiCursor_CombinedTermInfo(t *testing.T) {
	_, trs, _ := fixture(t)

	var cursors []codec.TermCursor
	for _, tr := range trs {
		cur, err := tr.Cursor("body")
		require.NoError(t, err)
		cursors = append(cursors, cur)
	}

	// Offsets follow the same prefix sums as the multi reader.
	mc, err := index.NewMultiCursorWithOffsets(cursors, []int{0, 2, 3})
	require.NoError(t, err)

	term, err := mc.Seek([]byte("alfa"))
	require.NoError(t, err)
	require.Equal(t, []byte("alfa"), term)

	// "alfa" appears in all three segments: docs 0, 2, and 4 globally.
	info, err := mc.TermInfo()
	require.NoError(t, err)
	require.Equal(t, 3, info.DocFreq)
	require.Equal(t, 4.0, info.Weight)
	require.Equal(t, 2.0, info.MaxWeight)
	require.Equal(t, 0, info.MinID)
	require.Equal(t, 4, info.MaxID)

	// "echo" lives only in the third segment.
	term, err = mc.Seek([]byte("echo"))
	require.NoError(t, err)
	require.Equal(t, []byte("echo"), term)
	info, err = mc.TermInfo()
	require.NoError(t, err)
	require.Equal(t, 2, info.DocFreq)
	require.Equal(t, 3, info.MinID)
	require.Equal(t, 4, info.MaxID)

	// Seek past everything exhausts the cursor.
	term, err = mc.Seek([]byte("zzz"))
	require.NoError(t, err)
	require.Nil(t, term)
	require.False(t, mc.IsValid())
}

func TestMultiCursor_SeekAndNextInterleave(t *testing.T) {
	_, trs, _ := fixture(t)

	var cursors []codec.TermCursor
	for _, tr := range trs {
		cur, err := tr.Cursor("body")
		require.NoError(t, err)
		cursors = append(cursors, cur)
	}
	mc, err := index.NewMultiCursor(cursors)
	require.NoError(t, err)

	term, err := mc.Seek([]byte("c"))
	require.NoError(t, err)
	require.Equal(t, []byte("charlie"), term)

	term, err = mc.Next()
	require.NoError(t, err)
	require.Equal(t, []byte("delta"), term)

	term, err = mc.First()
	require.NoError(t, err)
	require.Equal(t, []byte("alfa"), term)
}

func TestMultiCursor_SeekAfterExhausted(t *testing.T) {
	_, trs, _ := fixture(t)

	var cursors []codec.TermCursor
	for _, tr := range trs {
		cur, err := tr.Cursor("body")
		require.NoError(t, err)
		cursors = append(cursors, cur)
	}
	mc, err := index.NewMultiCursor(cursors)
	require.NoError(t, err)

	term, err := mc.Seek([]byte("zzz"))
	require.NoError(t, err)
	require.Nil(t, term)
	require.False(t, mc.IsValid())

	// An exhausted cursor stays exhausted; only First revives it.
	_, err = mc.Seek([]byte("alfa"))
	require.ErrorIs(t, err, errs.ErrInvalidCursor)
	_, err = mc.Next()
	require.ErrorIs(t, err, errs.ErrInvalidCursor)

	term, err = mc.First()
	require.NoError(t, err)
	require.Equal(t, []byte("alfa"), term)
}

func TestMultiReader_ColumnDefaultFill(t *testing.T) {
	price := codec.Field{Name: "price"}

	st := storage.NewRAMStorage()
	require.NoError(t, st.Create())
	mc := memcodec.New()
	seg, err := mc.NewSegment(st, "multi")
	require.NoError(t, err)
	dw, err := mc.PerDocumentWriter(st, seg)
	require.NoError(t, err)
	require.NoError(t, dw.StartDoc(0))
	require.NoError(t, dw.AddColumnValue(price, column.FixedBytes{Width: 4}, []byte{1, 2, 3, 4}))
	require.NoError(t, dw.FinishDoc())
	require.NoError(t, dw.Close())
	dr1, err := mc.PerDocumentReader(st, seg)
	require.NoError(t, err)

	dr2, _, _ := buildSub(t, []segDoc{
		{"alfa", map[string]float64{"alfa": 1}},
	})

	multi := index.NewMultiPerDocumentReader([]codec.PerDocumentReader{dr1, dr2})
	defer multi.Close()

	cr, err := multi.ColumnValues("price")
	require.NoError(t, err)
	require.Equal(t, 2, cr.DocCount())

	v, err := cr.Value(0)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3, 4}, v)

	// The second segment lacks the column, so its range reports the
	// layout's declared default rather than nil.
	v, err = cr.Value(1)
	require.NoError(t, err)
	require.Equal(t, []byte{0, 0, 0, 0}, v)
	require.Equal(t, []byte{0, 0, 0, 0}, cr.Default())
}
