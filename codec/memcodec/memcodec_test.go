package memcodec_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quiversearch/quiver/codec"
	"github.com/quiversearch/quiver/codec/memcodec"
	"github.com/quiversearch/quiver/column"
	"github.com/quiversearch/quiver/errs"
	"github.com/quiversearch/quiver/storage"
)

var (
	bodyField  = codec.Field{Name: "body", Scorable: true, Vectored: true}
	titleField = codec.Field{Name: "title"}
)

// buildSegment indexes two small documents:
//
//	doc 0: body "alfa bravo", title "first"
//	doc 1: body "alfa charlie", title "second"
func buildSegment(t *testing.T) (*memcodec.MemCodec, storage.Storage, codec.Segment) {
	t.Helper()

	st := storage.NewRAMStorage()
	require.NoError(t, st.Create())
	mc := memcodec.New()
	seg, err := mc.NewSegment(st, "testidx")
	require.NoError(t, err)

	dw, err := mc.PerDocumentWriter(st, seg)
	require.NoError(t, err)

	docs := []struct {
		body  string
		title string
		terms []string
	}{
		{"alfa bravo", "first", []string{"alfa", "bravo"}},
		{"alfa charlie", "second", []string{"alfa", "charlie"}},
	}
	for docnum, doc := range docs {
		require.NoError(t, dw.StartDoc(docnum))
		require.NoError(t, dw.AddField(bodyField, doc.body, 2))
		require.NoError(t, dw.AddField(titleField, doc.title, -1))
		require.NoError(t, dw.AddColumnValue(titleField, column.VarBytes{}, []byte(doc.title)))
		var vector []codec.Posting
		for _, term := range doc.terms {
			vector = append(vector, codec.Posting{Weight: 1, Payload: []byte(term)})
		}
		require.NoError(t, dw.AddVectorPostings(bodyField, vector))
		require.NoError(t, dw.FinishDoc())
	}
	require.NoError(t, dw.Close())

	fw, err := mc.FieldWriter(st, seg)
	require.NoError(t, err)
	require.NoError(t, fw.StartField(bodyField))
	postings := map[string][]int{
		"alfa":    {0, 1},
		"bravo":   {0},
		"charlie": {1},
	}
	for _, term := range []string{"alfa", "bravo", "charlie"} {
		require.NoError(t, fw.StartTerm([]byte(term)))
		for _, docnum := range postings[term] {
			require.NoError(t, fw.AddPosting(docnum, 1.0, 2, nil))
		}
		require.NoError(t, fw.FinishTerm())
		require.NoError(t, fw.AddSpellWord([]byte(term)))
	}
	require.NoError(t, fw.FinishField())
	require.NoError(t, fw.Close())

	return mc, st, seg
}

func TestMemCodec_StoredFields(t *testing.T) {
	mc, st, seg := buildSegment(t)

	dr, err := mc.PerDocumentReader(st, seg)
	require.NoError(t, err)
	defer dr.Close()

	require.Equal(t, 2, dr.DocCountAll())
	require.Equal(t, []int{0, 1}, dr.AllDocNums())

	fields, err := dr.StoredFields(0)
	require.NoError(t, err)
	require.Equal(t, map[string]any{"body": "alfa bravo", "title": "first"}, fields)

	fields, err = dr.StoredFields(1)
	require.NoError(t, err)
	require.Equal(t, "second", fields["title"])

	_, err = dr.StoredFields(5)
	require.ErrorIs(t, err, errs.ErrCorrupt)
}

func TestMemCodec_FieldLengths(t *testing.T) {
	mc, st, seg := buildSegment(t)

	dr, err := mc.PerDocumentReader(st, seg)
	require.NoError(t, err)
	defer dr.Close()

	require.Equal(t, 2, dr.FieldLength(0, "body", 0))
	// The title field is not scorable, so the default applies.
	require.Equal(t, 7, dr.FieldLength(0, "title", 7))
	require.Equal(t, 2, dr.MinFieldLength("body"))
	require.Equal(t, 2, dr.MaxFieldLength("body"))
}

func TestMemCodec_Columns(t *testing.T) {
	mc, st, seg := buildSegment(t)

	dr, err := mc.PerDocumentReader(st, seg)
	require.NoError(t, err)
	defer dr.Close()

	require.True(t, dr.HasColumn("title"))
	require.False(t, dr.HasColumn("body"))

	// Column values go through a real column file in storage.
	names, err := st.List()
	require.NoError(t, err)
	require.Contains(t, names, seg.FileName("title", ".col"))

	cr, err := dr.ColumnValues("title")
	require.NoError(t, err)
	v, err := cr.Value(1)
	require.NoError(t, err)
	require.Equal(t, []byte("second"), v)

	_, err = dr.ColumnValues("body")
	require.ErrorIs(t, err, errs.ErrNoColumn)
}

func TestMemCodec_Vectors(t *testing.T) {
	mc, st, seg := buildSegment(t)

	dr, err := mc.PerDocumentReader(st, seg)
	require.NoError(t, err)
	defer dr.Close()

	require.True(t, dr.HasVector(0, "body"))
	require.False(t, dr.HasVector(0, "title"))

	vector, err := dr.Vector(1, "body")
	require.NoError(t, err)
	require.Len(t, vector, 2)
	require.Equal(t, []byte("alfa"), vector[0].Payload)

	_, err = dr.Vector(0, "title")
	require.ErrorIs(t, err, errs.ErrNoVector)
}

func TestMemCodec_TermsReader(t *testing.T) {
	mc, st, seg := buildSegment(t)

	tr, err := mc.TermsReader(st, seg)
	require.NoError(t, err)
	defer tr.Close()

	require.Equal(t, []string{"body"}, tr.IndexedFieldNames())
	require.True(t, tr.Contains("body", []byte("alfa")))
	require.False(t, tr.Contains("body", []byte("delta")))
	require.False(t, tr.Contains("title", []byte("first")))

	terms := tr.Terms()
	require.Len(t, terms, 3)
	require.Equal(t, []byte("alfa"), terms[0].Term)
	require.Equal(t, []byte("charlie"), terms[2].Term)

	info, err := tr.TermInfo("body", []byte("alfa"))
	require.NoError(t, err)
	require.Equal(t, 2, info.DocFreq)
	require.Equal(t, 2.0, info.Weight)
	require.Equal(t, 0, info.MinID)
	require.Equal(t, 1, info.MaxID)

	_, err = tr.TermInfo("body", []byte("delta"))
	require.ErrorIs(t, err, errs.ErrTermNotFound)

	from, err := tr.TermsFrom("body", []byte("b"))
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("bravo"), []byte("charlie")}, from)

	rng, err := tr.TermRange("body", []byte("alfa"), []byte("charlie"))
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("alfa"), []byte("bravo")}, rng)
	_, err = tr.TermRange("missing", nil, nil)
	require.ErrorIs(t, err, errs.ErrTermNotFound)

	m, err := tr.Matcher("body", []byte("alfa"))
	require.NoError(t, err)
	postings, err := codec.Drain(m)
	require.NoError(t, err)
	require.Len(t, postings, 2)
	require.Equal(t, 0, postings[0].DocNum)
	require.Equal(t, 1, postings[1].DocNum)
	require.False(t, m.IsActive())
	_, err = m.DocNum()
	require.ErrorIs(t, err, errs.ErrInvalidCursor)
}

func TestMemCodec_Cursor(t *testing.T) {
	mc, st, seg := buildSegment(t)

	tr, err := mc.TermsReader(st, seg)
	require.NoError(t, err)
	defer tr.Close()

	cur, err := tr.Cursor("body")
	require.NoError(t, err)

	term, err := cur.First()
	require.NoError(t, err)
	require.Equal(t, []byte("alfa"), term)

	term, err = cur.Seek([]byte("b"))
	require.NoError(t, err)
	require.Equal(t, []byte("bravo"), term)

	term, err = cur.Next()
	require.NoError(t, err)
	require.Equal(t, []byte("charlie"), term)

	term, err = cur.Next()
	require.NoError(t, err)
	require.Nil(t, term)
	require.False(t, cur.IsValid())
	_, err = cur.Term()
	require.ErrorIs(t, err, errs.ErrInvalidCursor)
	_, err = cur.Next()
	require.ErrorIs(t, err, errs.ErrInvalidCursor)
	_, err = cur.Seek([]byte("alfa"))
	require.ErrorIs(t, err, errs.ErrInvalidCursor)

	// First is the one revival path.
	term, err = cur.First()
	require.NoError(t, err)
	require.Equal(t, []byte("alfa"), term)
}

func TestMemCodec_DeleteDropsDocumentData(t *testing.T) {
	mc, st, seg := buildSegment(t)

	tr, err := mc.TermsReader(st, seg)
	require.NoError(t, err)
	info, err := tr.TermInfo("body", []byte("alfa"))
	require.NoError(t, err)
	require.Equal(t, 2, info.DocFreq)

	require.NoError(t, seg.DeleteDocument(0))
	require.True(t, seg.IsDeleted(0))
	require.False(t, seg.IsDeleted(1))
	require.Equal(t, 2, seg.DocCountAll())
	require.Equal(t, 1, seg.DocCount())
	require.Equal(t, 1, seg.DeletedCount())
	require.True(t, seg.HasDeletions())

	dr, err := mc.PerDocumentReader(st, seg)
	require.NoError(t, err)
	defer dr.Close()

	require.Equal(t, []int{1}, dr.AllDocNums())

	// The memory codec deletes outright: the stored data is gone.
	fields, err := dr.StoredFields(0)
	require.NoError(t, err)
	require.Empty(t, fields)
	require.False(t, dr.HasVector(0, "body"))

	require.ErrorIs(t, seg.DeleteDocument(9), errs.ErrCorrupt)
}

func TestMemCodec_WriterStateMachine(t *testing.T) {
	st := storage.NewRAMStorage()
	require.NoError(t, st.Create())
	mc := memcodec.New()
	seg, err := mc.NewSegment(st, "testidx")
	require.NoError(t, err)

	t.Run("per document", func(t *testing.T) {
		dw, err := mc.PerDocumentWriter(st, seg)
		require.NoError(t, err)

		require.ErrorIs(t, dw.AddField(bodyField, "x", 1), errs.ErrWriterState)
		require.ErrorIs(t, dw.FinishDoc(), errs.ErrWriterState)

		require.NoError(t, dw.StartDoc(0))
		require.ErrorIs(t, dw.StartDoc(1), errs.ErrWriterState)
		require.ErrorIs(t, dw.Close(), errs.ErrWriterState)
		require.NoError(t, dw.FinishDoc())

		require.ErrorIs(t, dw.StartDoc(0), errs.ErrOutOfOrder)
		require.NoError(t, dw.Close())
		require.ErrorIs(t, dw.StartDoc(5), errs.ErrWriterState)
	})

	t.Run("field", func(t *testing.T) {
		fw, err := mc.FieldWriter(st, seg)
		require.NoError(t, err)

		require.ErrorIs(t, fw.StartTerm([]byte("a")), errs.ErrWriterState)

		require.NoError(t, fw.StartField(bodyField))
		require.ErrorIs(t, fw.AddPosting(0, 1, 1, nil), errs.ErrWriterState)

		require.NoError(t, fw.StartTerm([]byte("m")))
		require.NoError(t, fw.AddPosting(3, 1, 1, nil))
		require.ErrorIs(t, fw.AddPosting(3, 1, 1, nil), errs.ErrOutOfOrder)
		require.ErrorIs(t, fw.AddPosting(1, 1, 1, nil), errs.ErrOutOfOrder)
		require.ErrorIs(t, fw.FinishField(), errs.ErrWriterState)
		require.NoError(t, fw.FinishTerm())

		require.ErrorIs(t, fw.StartTerm([]byte("b")), errs.ErrOutOfOrder)
		require.NoError(t, fw.StartTerm([]byte("z")))
		require.NoError(t, fw.FinishTerm())
		require.NoError(t, fw.FinishField())

		require.ErrorIs(t, fw.StartField(codec.Field{Name: "aaa"}), errs.ErrOutOfOrder)
		require.NoError(t, fw.Close())
	})
}

func TestMemCodec_Automata(t *testing.T) {
	st := storage.NewRAMStorage()
	require.NoError(t, st.Create())
	mc := memcodec.New()
	seg, err := mc.NewSegment(st, "testidx")
	require.NoError(t, err)

	fw, err := mc.FieldWriter(st, seg)
	require.NoError(t, err)
	require.NoError(t, fw.StartField(bodyField))
	for _, term := range []string{"alfa", "alpha", "alta", "bravo", "zulu"} {
		require.NoError(t, fw.StartTerm([]byte(term)))
		require.NoError(t, fw.AddPosting(0, 1, 1, nil))
		require.NoError(t, fw.FinishTerm())
	}
	require.NoError(t, fw.FinishField())
	require.NoError(t, fw.Close())

	auto := mc.Automata(st, seg)

	near, err := auto.TermsWithin("body", []byte("alfa"), 1, 0)
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("alfa"), []byte("alta")}, near)

	near, err = auto.TermsWithin("body", []byte("alfa"), 2, 0)
	require.NoError(t, err)
	require.Contains(t, near, []byte("alpha"))
	require.NotContains(t, near, []byte("zulu"))
}

func TestMemCodec_SegmentRoundTrip(t *testing.T) {
	mc, _, seg := buildSegment(t)
	require.NoError(t, seg.DeleteDocument(1))

	data, err := seg.Bytes()
	require.NoError(t, err)

	restored, err := mc.SegmentFromBytes(data)
	require.NoError(t, err)
	require.Equal(t, seg.IndexName(), restored.IndexName())
	require.Equal(t, seg.ID(), restored.ID())
	require.Equal(t, memcodec.Name, restored.CodecName())
	require.Equal(t, 2, restored.DocCountAll())
	require.True(t, restored.IsDeleted(1))
	require.Equal(t, 1, restored.DocCount())

	// Registry lookup through the shared instance.
	c, err := restored.Codec()
	require.NoError(t, err)
	require.Equal(t, memcodec.Name, c.Name())
}

func TestSegmentFileNameGrammar(t *testing.T) {
	mc, _, seg := buildSegment(t)
	_ = mc

	name := seg.FileName("title", ".col")
	parsed, err := codec.ParseFileName(name)
	require.NoError(t, err)
	require.Equal(t, memcodec.ShortName, parsed.CodecShort)
	require.Equal(t, "testidx", parsed.IndexName)
	require.Equal(t, seg.ID(), parsed.SegmentID)
	require.Equal(t, "title", parsed.Name)
	require.Equal(t, "col", parsed.Ext)

	_, err = codec.ParseFileName("not-a-segment-file")
	require.ErrorIs(t, err, errs.ErrBadSegmentName)
}
