package extract

import (
	"math"

	"github.com/bits-and-blooms/bitset"

	"github.com/phrasekit/phrasekit/internal/corpus"
)

// Extractor produces the admissible phrase pairs for one sampled source
// occurrence.
type Extractor struct {
	MaxTargetPhrase int
}

func NewExtractor(maxTargetPhrase int) *Extractor {
	return &Extractor{MaxTargetPhrase: maxTargetPhrase}
}

// Extract enumerates every admissible phrase pair for the source span
// [start, start+length) of the given sentence. A pair is admissible when the
// tight target span is contiguous under the alignment and no wider than
// MaxTargetPhrase; its boundaries may then grow outward over unaligned
// target positions.
func (e *Extractor) Extract(sent *corpus.AlignedSentence, sentenceID int32, start, length int) []*SampledRule {
	end := start + length
	minTarget := int32(math.MaxInt32)
	maxTarget := int32(-1)
	coverage := bitset.New(uint(len(sent.Target)))
	for pos := start; pos < end; pos++ {
		for _, t := range sent.F2E[pos] {
			if t < minTarget {
				minTarget = t
			}
			if t > maxTarget {
				maxTarget = t
			}
			coverage.Set(uint(t))
		}
	}
	if maxTarget < 0 {
		return nil // source span entirely unaligned
	}
	maxTgt := int32(e.MaxTargetPhrase)
	if maxTarget-minTarget >= maxTgt {
		return nil
	}
	if next, ok := coverage.NextClear(uint(minTarget)); ok && int32(next) <= maxTarget {
		return nil // hole in the tight target span
	}

	aligned := sent.AlignedTgt
	var rules []*SampledRule
	for startTarget := minTarget; startTarget >= 0 &&
		startTarget > maxTarget-maxTgt &&
		(startTarget == minTarget || !aligned.Test(uint(startTarget))); startTarget-- {
		for endTarget := maxTarget; int(endTarget) < len(sent.Target) &&
			endTarget < startTarget+maxTgt &&
			(endTarget == maxTarget || !aligned.Test(uint(endTarget))); endTarget++ {
			rules = append(rules, &SampledRule{
				SrcStart:   int32(start),
				SrcEnd:     int32(end),
				TgtStart:   startTarget,
				TgtEnd:     endTarget + 1,
				SentenceID: sentenceID,
				Src:        sent.Source[start:end:end],
				Tgt:        sent.Target[startTarget : endTarget+1 : endTarget+1],
			})
		}
	}
	return rules
}
