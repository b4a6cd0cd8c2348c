// Package index implements the parallel suffix array over a word-aligned
// bilingual corpus, with exact phrase location and bounded uniform sampling
// on either side, plus the persisted binary format.
package index

import (
	"encoding/binary"
	"math/rand"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/phrasekit/phrasekit/internal/corpus"
	"github.com/phrasekit/phrasekit/internal/vocab"
	pkgerrors "github.com/phrasekit/phrasekit/pkg/errors"
)

// QueryResult is one occurrence of a queried phrase: the sentence it occurs
// in and the word position where the phrase begins.
type QueryResult struct {
	SentenceID int32
	WordPos    int32
}

// SampleResult is a bounded uniform sample of a phrase's occurrences.
// NumHits is the total occurrence count in the corpus; Samples holds
// min(k, NumHits) distinct occurrences.
type SampleResult struct {
	Samples []QueryResult
	NumHits int
}

// side is one half of the parallel index: the concatenated token ids of every
// sentence, a prefix sum of sentence lengths, and the sorted suffix array.
// Suffixes are compared per sentence: a suffix ends at its sentence boundary,
// and the boundary sorts below every token id, so no match can cross it.
type side struct {
	tokens []int32
	starts []int32
	sa     []int32
}

// ParallelSuffixArray indexes both sides of an aligned parallel corpus. It is
// immutable after Build or Load.
type ParallelSuffixArray struct {
	vocab     *vocab.Vocabulary
	sentences []corpus.AlignedSentence
	src       side
	tgt       side
	seed      uint64
}

// Build constructs the index over the given sentences. The vocabulary must be
// the one the sentences were interned with.
func Build(sentences []corpus.AlignedSentence, v *vocab.Vocabulary) *ParallelSuffixArray {
	sa := &ParallelSuffixArray{
		vocab:     v,
		sentences: sentences,
		seed:      1,
	}
	sa.src = buildSide(sentences, func(s *corpus.AlignedSentence) []int32 { return s.Source })
	sa.tgt = buildSide(sentences, func(s *corpus.AlignedSentence) []int32 { return s.Target })
	return sa
}

func buildSide(sentences []corpus.AlignedSentence, tokensOf func(*corpus.AlignedSentence) []int32) side {
	total := 0
	for i := range sentences {
		total += len(tokensOf(&sentences[i]))
	}
	s := side{
		tokens: make([]int32, 0, total),
		starts: make([]int32, 1, len(sentences)+1),
	}
	for i := range sentences {
		s.tokens = append(s.tokens, tokensOf(&sentences[i])...)
		s.starts = append(s.starts, int32(len(s.tokens)))
	}
	s.sa = sortSuffixes(s.tokens, s.starts)
	return s
}

// sortSuffixes sorts all suffix start offsets lexicographically. ends[i] is
// the end of the sentence containing offset i, precomputed so each comparison
// runs without a boundary search.
func sortSuffixes(tokens []int32, starts []int32) []int32 {
	ends := make([]int32, len(tokens))
	for s := 0; s+1 < len(starts); s++ {
		for i := starts[s]; i < starts[s+1]; i++ {
			ends[i] = starts[s+1]
		}
	}
	sa := make([]int32, len(tokens))
	for i := range sa {
		sa[i] = int32(i)
	}
	sort.Slice(sa, func(x, y int) bool {
		a, b := sa[x], sa[y]
		aEnd, bEnd := ends[a], ends[b]
		for a < aEnd && b < bEnd {
			if tokens[a] != tokens[b] {
				return tokens[a] < tokens[b]
			}
			a++
			b++
		}
		la, lb := aEnd-a, bEnd-b
		if la != lb {
			return la < lb
		}
		// Equal suffix content; order by offset for a reproducible array.
		return sa[x] < sa[y]
	})
	return sa
}

func (s *side) sentenceOf(offset int32) int32 {
	// First start strictly greater than offset, minus one.
	i := sort.Search(len(s.starts), func(i int) bool { return s.starts[i] > offset })
	return int32(i - 1)
}

// cmpPattern compares the suffix at offset against pattern, treating pattern
// as a prefix: 0 means the suffix begins with pattern inside one sentence.
func (s *side) cmpPattern(offset int32, pattern []int32) int {
	end := s.starts[s.sentenceOf(offset)+1]
	for _, p := range pattern {
		if offset == end {
			return -1 // suffix exhausted at the sentence boundary
		}
		if t := s.tokens[offset]; t != p {
			if t < p {
				return -1
			}
			return 1
		}
		offset++
	}
	return 0
}

func (p *ParallelSuffixArray) sideFor(onSource bool) *side {
	if onSource {
		return &p.src
	}
	return &p.tgt
}

// SetSeed fixes the global sampling seed. The per-pattern stream is derived
// from this seed and the pattern content, so results are reproducible.
func (p *ParallelSuffixArray) SetSeed(seed uint64) {
	p.seed = seed
}

// Locate returns the half-open suffix-array range [lo, hi) of occurrences of
// pattern on the requested side. An empty or out-of-vocabulary pattern yields
// an empty range.
func (p *ParallelSuffixArray) Locate(pattern []int32, onSource bool) (lo, hi int) {
	if len(pattern) == 0 {
		return 0, 0
	}
	s := p.sideFor(onSource)
	n := len(s.sa)
	lo = sort.Search(n, func(i int) bool { return s.cmpPattern(s.sa[i], pattern) >= 0 })
	hi = lo + sort.Search(n-lo, func(i int) bool { return s.cmpPattern(s.sa[lo+i], pattern) > 0 })
	return lo, hi
}

// Count returns the number of occurrences of pattern on the requested side.
func (p *ParallelSuffixArray) Count(pattern []int32, onSource bool) int {
	lo, hi := p.Locate(pattern, onSource)
	return hi - lo
}

// Query materialises every occurrence of pattern on the requested side.
func (p *ParallelSuffixArray) Query(pattern []int32, onSource bool) ([]QueryResult, error) {
	if len(pattern) == 0 {
		return nil, pkgerrors.ErrEmptyPattern
	}
	lo, hi := p.Locate(pattern, onSource)
	s := p.sideFor(onSource)
	results := make([]QueryResult, 0, hi-lo)
	for i := lo; i < hi; i++ {
		results = append(results, s.resultAt(s.sa[i]))
	}
	return results, nil
}

func (s *side) resultAt(offset int32) QueryResult {
	sent := s.sentenceOf(offset)
	return QueryResult{SentenceID: sent, WordPos: offset - s.starts[sent]}
}

// Sample draws a uniform sample without replacement of up to k occurrences of
// pattern. The draw is a partial Fisher-Yates over the hit range, seeded from
// the pattern content and the global seed, so two calls with the same inputs
// return the same occurrences.
func (p *ParallelSuffixArray) Sample(pattern []int32, onSource bool, k int) (SampleResult, error) {
	if len(pattern) == 0 {
		return SampleResult{}, pkgerrors.ErrEmptyPattern
	}
	lo, hi := p.Locate(pattern, onSource)
	n := hi - lo
	if n == 0 {
		return SampleResult{}, nil
	}
	s := p.sideFor(onSource)
	if k >= n {
		samples := make([]QueryResult, 0, n)
		for i := lo; i < hi; i++ {
			samples = append(samples, s.resultAt(s.sa[i]))
		}
		return SampleResult{Samples: samples, NumHits: n}, nil
	}
	rng := rand.New(rand.NewSource(int64(p.patternSeed(pattern, onSource))))
	swapped := make(map[int]int, 2*k)
	at := func(i int) int {
		if v, ok := swapped[i]; ok {
			return v
		}
		return i
	}
	samples := make([]QueryResult, 0, k)
	for i := 0; i < k; i++ {
		j := i + rng.Intn(n-i)
		pick := at(j)
		swapped[j] = at(i)
		samples = append(samples, s.resultAt(s.sa[lo+pick]))
	}
	return SampleResult{Samples: samples, NumHits: n}, nil
}

func (p *ParallelSuffixArray) patternSeed(pattern []int32, onSource bool) uint64 {
	h := xxhash.New()
	var buf [4]byte
	for _, id := range pattern {
		binary.LittleEndian.PutUint32(buf[:], uint32(id))
		h.Write(buf[:])
	}
	if onSource {
		h.Write([]byte{0})
	} else {
		h.Write([]byte{1})
	}
	return h.Sum64() ^ p.seed
}

// Vocab returns the vocabulary the corpus was interned with.
func (p *ParallelSuffixArray) Vocab() *vocab.Vocabulary {
	return p.vocab
}

// NumSentences returns the number of sentence pairs in the corpus.
func (p *ParallelSuffixArray) NumSentences() int {
	return len(p.sentences)
}

// Sentence returns the aligned sentence with the given id. The returned
// pointer is shared and must be treated as read-only.
func (p *ParallelSuffixArray) Sentence(id int32) *corpus.AlignedSentence {
	return &p.sentences[id]
}
