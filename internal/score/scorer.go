// Package score turns a histogram of extracted phrase pairs into dense
// feature vectors: phrase translation probabilities in both directions,
// lexical translation probabilities in both directions, and optional count
// features. Reverse phrase probabilities use Germann's sampling
// approximation.
package score

import (
	"math"

	"github.com/phrasekit/phrasekit/internal/cooc"
	"github.com/phrasekit/phrasekit/internal/corpus"
	"github.com/phrasekit/phrasekit/internal/extract"
	"github.com/phrasekit/phrasekit/internal/index"
)

// MinLexProb floors any zero lexical factor so products stay positive.
const MinLexProb = 1e-5

// Rule is one scored phrase pair. Scores are natural logs, laid out per the
// Template.
type Rule struct {
	Src    []int32
	Tgt    []int32
	Scores []float32
}

// Scorer scores rule histograms against the corpus-wide co-occurrence
// statistics and target-side phrase counts.
type Scorer struct {
	sa       *index.ParallelSuffixArray
	cooc     *cooc.Table
	template Template
}

func NewScorer(sa *index.ParallelSuffixArray, table *cooc.Table, template Template) *Scorer {
	return &Scorer{sa: sa, cooc: table, template: template}
}

type histEntry struct {
	rule  *extract.SampledRule
	count int
}

// Histogram is a multiset of extracted rules keyed by phrase-pair content.
// Insertion order is kept so scoring output is reproducible.
type Histogram struct {
	entries map[string]*histEntry
	order   []string
}

func NewHistogram() *Histogram {
	return &Histogram{entries: make(map[string]*histEntry)}
}

// Size returns the number of distinct phrase pairs observed.
func (h *Histogram) Size() int {
	return len(h.order)
}

// Observe adds one extracted occurrence to the histogram. The occurrence's
// lexical probabilities are computed against the co-occurrence table; the
// retained (LexEF, LexFE) pair for a phrase pair is replaced only when both
// candidate values strictly exceed the stored ones.
func (s *Scorer) Observe(h *Histogram, r *extract.SampledRule, sent *corpus.AlignedSentence) {
	lexEF, lexFE := s.scoreLex(r, sent)
	key := r.Key()
	entry, ok := h.entries[key]
	if !ok {
		r.LexEF = lexEF
		r.LexFE = lexFE
		h.entries[key] = &histEntry{rule: r, count: 1}
		h.order = append(h.order, key)
		return
	}
	entry.count++
	if entry.rule.LexEF < lexEF && entry.rule.LexFE < lexFE {
		entry.rule.LexEF = lexEF
		entry.rule.LexFE = lexFE
	}
}

// scoreLex computes the forward and backward lexical probabilities of one
// rule occurrence: per source word, the average over its aligned target words
// of joint/marginal (pairing with NullID when unaligned), multiplied across
// the span; and symmetrically for the target side.
func (s *Scorer) scoreLex(r *extract.SampledRule, sent *corpus.AlignedSentence) (lexEF, lexFE float64) {
	lexEF = 1.0
	for i := r.SrcStart; i < r.SrcEnd; i++ {
		srcID := sent.Source[i]
		tgtAlign := sent.F2E[i]
		var efSum float64
		if cF := s.cooc.SrcMarginal(srcID); cF > 0 {
			if len(tgtAlign) > 0 {
				for _, j := range tgtAlign {
					cEF := s.cooc.Joint(srcID, sent.Target[j])
					efSum += float64(cEF) / float64(cF)
				}
				efSum /= float64(len(tgtAlign))
			} else {
				cEF := s.cooc.Joint(srcID, cooc.NullID)
				efSum = float64(cEF) / float64(cF)
			}
		}
		if efSum == 0 {
			efSum = MinLexProb
		}
		lexEF *= efSum
	}

	lexFE = 1.0
	for i := r.TgtStart; i < r.TgtEnd; i++ {
		tgtID := sent.Target[i]
		srcAlign := sent.E2F[i]
		var feSum float64
		if cE := s.cooc.TgtMarginal(tgtID); cE > 0 {
			if len(srcAlign) > 0 {
				for _, j := range srcAlign {
					cFE := s.cooc.Joint(tgtID, sent.Source[j])
					feSum += float64(cFE) / float64(cE)
				}
				feSum /= float64(len(srcAlign))
			} else {
				cFE := s.cooc.Joint(tgtID, cooc.NullID)
				feSum = float64(cFE) / float64(cE)
			}
		}
		if feSum == 0 {
			feSum = MinLexProb
		}
		lexFE *= feSum
	}
	return lexEF, lexFE
}

// Score converts the histogram into feature vectors. sampleRate is the
// fraction of the source phrase's corpus occurrences that were sampled; it
// scales observed counts up to expected corpus counts in the reverse-phrase
// estimate.
func (s *Scorer) Score(h *Histogram, sampleRate float64) []Rule {
	if len(h.order) == 0 {
		return nil
	}
	var total float64
	for _, key := range h.order {
		total += float64(h.entries[key].count)
	}
	logTotal := math.Log(total)

	rules := make([]Rule, 0, len(h.order))
	for _, key := range h.order {
		entry := h.entries[key]
		r := entry.rule
		c := float64(entry.count)
		logC := math.Log(c)

		scores := make([]float32, s.template.NumFeatures())
		scores[0] = float32(logC - logTotal)
		scores[1] = float32(math.Log(r.LexFE))
		// Germann's approximation: estimate how often the target phrase
		// occurs with other source phrases from its corpus count. Sampling
		// noise can push the estimate below zero; clamp so the log stays
		// finite.
		cnt := s.sa.Count(r.Tgt, false)
		num := float64(cnt) - c*sampleRate
		if num < 0 {
			num = 0
		}
		scores[2] = float32(logC - math.Log(c+num))
		scores[3] = float32(math.Log(r.LexEF))
		if s.template == DenseExt {
			scores[4] = float32(logC)
			if entry.count == 1 {
				scores[5] = 1
			}
		}
		rules = append(rules, Rule{Src: r.Src, Tgt: r.Tgt, Scores: scores})
	}
	return rules
}
