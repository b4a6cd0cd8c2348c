// Package corpus holds the aligned sentence representation of a word-aligned
// parallel corpus and the bitext reader that produces it.
package corpus

import (
	"sort"

	"github.com/bits-and-blooms/bitset"

	pkgerrors "github.com/phrasekit/phrasekit/pkg/errors"
)

// AlignedSentence is one immutable sentence pair: source and target token
// ids, the forward alignment F2E (source position -> target positions, sorted
// ascending), its transpose E2F, and a precomputed bitset over the aligned
// target positions.
type AlignedSentence struct {
	Source []int32
	Target []int32
	F2E    [][]int32
	E2F    [][]int32

	AlignedTgt *bitset.BitSet
}

// NewAlignedSentence builds an AlignedSentence from token ids and alignment
// links (source position, target position). Links referring to positions
// outside either sentence are rejected.
func NewAlignedSentence(source, target []int32, links [][2]int32) (AlignedSentence, error) {
	s := AlignedSentence{
		Source: source,
		Target: target,
		F2E:    make([][]int32, len(source)),
		E2F:    make([][]int32, len(target)),
	}
	for _, link := range links {
		f, e := link[0], link[1]
		if f < 0 || int(f) >= len(source) || e < 0 || int(e) >= len(target) {
			return AlignedSentence{}, pkgerrors.Newf(pkgerrors.ErrMalformedBitext,
				"alignment link %d-%d out of range for %dx%d sentence", f, e, len(source), len(target))
		}
		s.F2E[f] = append(s.F2E[f], e)
		s.E2F[e] = append(s.E2F[e], f)
	}
	for _, tgts := range s.F2E {
		sort.Slice(tgts, func(i, j int) bool { return tgts[i] < tgts[j] })
	}
	for _, srcs := range s.E2F {
		sort.Slice(srcs, func(i, j int) bool { return srcs[i] < srcs[j] })
	}
	s.buildAlignedTgt()
	return s, nil
}

func (s *AlignedSentence) buildAlignedTgt() {
	s.AlignedTgt = bitset.New(uint(len(s.Target)))
	for j, srcs := range s.E2F {
		if len(srcs) > 0 {
			s.AlignedTgt.Set(uint(j))
		}
	}
}

// Rebuild restores the derived fields (E2F, AlignedTgt) from Source, Target,
// and F2E after deserialization.
func (s *AlignedSentence) Rebuild() error {
	s.E2F = make([][]int32, len(s.Target))
	for i, tgts := range s.F2E {
		for _, j := range tgts {
			if j < 0 || int(j) >= len(s.Target) {
				return pkgerrors.Newf(pkgerrors.ErrCorruptIndex,
					"alignment target %d out of range for sentence of length %d", j, len(s.Target))
			}
			s.E2F[j] = append(s.E2F[j], int32(i))
		}
	}
	for _, srcs := range s.E2F {
		sort.Slice(srcs, func(i, j int) bool { return srcs[i] < srcs[j] })
	}
	s.buildAlignedTgt()
	return nil
}
