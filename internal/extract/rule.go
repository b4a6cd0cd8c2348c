// Package extract enumerates admissible phrase pairs from sampled
// occurrences of a source phrase, following the pattern-matching extraction
// of Lopez (2008).
package extract

import "encoding/binary"

// SampledRule is one extracted phrase pair. Src and Tgt are views into the
// occurrence's sentence; the span fields index that sentence. LexFE and LexEF
// are filled in by the scorer.
type SampledRule struct {
	SrcStart int32
	SrcEnd   int32
	TgtStart int32
	TgtEnd   int32

	SentenceID int32
	Src        []int32
	Tgt        []int32

	LexFE float64
	LexEF float64
}

// Key returns the identity of the phrase pair: the concatenation of the two
// id sequences. Rules from different sentences with the same content share a
// key.
func (r *SampledRule) Key() string {
	buf := make([]byte, 0, 4*(len(r.Src)+len(r.Tgt))+binary.MaxVarintLen32)
	buf = binary.AppendUvarint(buf, uint64(len(r.Src)))
	for _, id := range r.Src {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(id))
	}
	for _, id := range r.Tgt {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(id))
	}
	return string(buf)
}
