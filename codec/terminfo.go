package codec

import (
	"math"

	"github.com/quiversearch/quiver/stream"
)

// TermInfo carries the per-term statistics a scorer needs before it ever
// touches a postings list: total weight, document frequency, and the
// bounds of the documents and field lengths the term occurs in.
type TermInfo struct {
	Weight    float64
	DocFreq   int
	MinLength int
	MaxLength int
	MaxWeight float64
	MinID     int
	MaxID     int
}

// NewTermInfo returns an empty TermInfo with bounds primed so the first
// Add observation wins every min/max comparison.
func NewTermInfo() *TermInfo {
	return &TermInfo{
		MinLength: math.MaxInt,
		MaxLength: -1,
		MinID:     math.MaxInt,
		MaxID:     -1,
	}
}

// Add folds one posting into the statistics.
func (ti *TermInfo) Add(docnum int, weight float64, length int) {
	ti.Weight += weight
	ti.DocFreq++
	if weight > ti.MaxWeight {
		ti.MaxWeight = weight
	}
	if length >= 0 {
		ti.MinLength = min(ti.MinLength, length)
		ti.MaxLength = max(ti.MaxLength, length)
	}
	ti.MinID = min(ti.MinID, docnum)
	ti.MaxID = max(ti.MaxID, docnum)
}

// Combine folds another TermInfo for the same term into this one. The
// operation is commutative and associative, so multi-segment statistics
// do not depend on sub-reader order.
func (ti *TermInfo) Combine(other *TermInfo) {
	if other == nil {
		return
	}
	ti.Weight += other.Weight
	ti.DocFreq += other.DocFreq
	ti.MinLength = min(ti.MinLength, other.MinLength)
	ti.MaxLength = max(ti.MaxLength, other.MaxLength)
	ti.MaxWeight = max(ti.MaxWeight, other.MaxWeight)
	ti.MinID = min(ti.MinID, other.MinID)
	ti.MaxID = max(ti.MaxID, other.MaxID)
}

// Shifted returns a copy with the document bounds offset by delta. Used
// when a sub-reader's local ordinals are translated into a combined
// document space.
func (ti *TermInfo) Shifted(delta int) *TermInfo {
	out := *ti
	if out.MinID != math.MaxInt {
		out.MinID += delta
	}
	if out.MaxID >= 0 {
		out.MaxID += delta
	}

	return &out
}

// WriteTo serializes the statistics in canonical byte order.
func (ti *TermInfo) WriteTo(w *stream.Writer) error {
	if err := w.WriteFloat64(ti.Weight); err != nil {
		return err
	}
	if err := w.WriteUvarint(uint64(ti.DocFreq)); err != nil { //nolint:gosec
		return err
	}
	for _, v := range []int{ti.MinLength, ti.MaxLength, ti.MinID, ti.MaxID} {
		if err := w.WriteVarint(int64(v)); err != nil {
			return err
		}
	}

	return w.WriteFloat64(ti.MaxWeight)
}

// ReadTermInfo deserializes statistics written by WriteTo.
func ReadTermInfo(r *stream.Reader) (*TermInfo, error) {
	ti := &TermInfo{}
	var err error
	if ti.Weight, err = r.ReadFloat64(); err != nil {
		return nil, err
	}
	df, err := r.ReadUvarint()
	if err != nil {
		return nil, err
	}
	ti.DocFreq = int(df) //nolint:gosec
	dst := []*int{&ti.MinLength, &ti.MaxLength, &ti.MinID, &ti.MaxID}
	for _, p := range dst {
		v, err := r.ReadVarint()
		if err != nil {
			return nil, err
		}
		*p = int(v)
	}
	if ti.MaxWeight, err = r.ReadFloat64(); err != nil {
		return nil, err
	}

	return ti, nil
}
