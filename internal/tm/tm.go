// Package tm is the public facade of the dynamic translation model: it owns
// the suffix-array index, the lexical co-occurrence cache, and the unigram
// rule cache, and answers rule queries for source sentences.
package tm

import (
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/phrasekit/phrasekit/internal/cooc"
	"github.com/phrasekit/phrasekit/internal/extract"
	"github.com/phrasekit/phrasekit/internal/index"
	"github.com/phrasekit/phrasekit/internal/score"
	"github.com/phrasekit/phrasekit/internal/vocab"
	pkgerrors "github.com/phrasekit/phrasekit/pkg/errors"
	"github.com/phrasekit/phrasekit/pkg/metrics"
)

const (
	// Name identifies rules produced by this model to the decoder.
	Name = "dynamic-tm"

	defaultMaxPhraseLen   = 7
	defaultSampleSize     = 100
	defaultCacheThreshold = 1000
)

// ConcreteRule is a scored rule anchored to its source span within the query
// sentence.
type ConcreteRule struct {
	Rule        score.Rule
	SourceStart int
	SourceEnd   int
	InputID     int
}

// Featurizer consumes each rule's feature vector as it is produced. It is a
// pure sink with no return path into the extractor.
type Featurizer interface {
	Score(features []float32, names []string)
}

// QueryStats counts per-query extraction work, exposed for instrumentation.
type QueryStats struct {
	SpansSampled int64
	SpansPruned  int64
	SpansEmpty   int64
	CacheHits    int64
}

// DynamicTM samples phrase occurrences from a parallel suffix array and
// scores the extracted rules on the fly. Configure it before Init; it is
// immutable and safe for concurrent queries afterwards.
type DynamicTM struct {
	sa *index.ParallelSuffixArray

	maxSourcePhrase int
	maxTargetPhrase int
	sampleSize      int
	cacheThreshold  int
	template        score.Template
	parallelism     int
	useSystemVocab  bool

	coocCache *cooc.Table
	ruleCache map[int32][]score.Rule
	extractor *extract.Extractor

	initialized bool
	featurizer  Featurizer
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// New wraps an index in a model with default parameters. Caches are not
// built until Init.
func New(sa *index.ParallelSuffixArray) *DynamicTM {
	return &DynamicTM{
		sa:              sa,
		maxSourcePhrase: defaultMaxPhraseLen,
		maxTargetPhrase: defaultMaxPhraseLen,
		sampleSize:      defaultSampleSize,
		cacheThreshold:  defaultCacheThreshold,
		template:        score.Dense,
		logger:          slog.Default().With("component", "dynamic-tm"),
	}
}

// Load reads a persisted index and wraps it in a model with default
// parameters.
func Load(path string) (*DynamicTM, error) {
	sa, err := index.Load(path)
	if err != nil {
		return nil, err
	}
	return New(sa), nil
}

// SetFeatureTemplate selects the dense feature set. It must be called before
// Init so the cached unigram rules carry the right vector shape.
func (t *DynamicTM) SetFeatureTemplate(template score.Template) error {
	if !template.Valid() {
		return pkgerrors.Newf(pkgerrors.ErrUnknownTemplate, "%d", int(template))
	}
	if t.initialized {
		return pkgerrors.New(pkgerrors.ErrInvalidConfig, "feature template must be set before Init")
	}
	t.template = template
	return nil
}

func (t *DynamicTM) SetMaxSourcePhrase(n int) error {
	if n <= 0 {
		return pkgerrors.Newf(pkgerrors.ErrInvalidConfig, "max source phrase must be positive, got %d", n)
	}
	t.maxSourcePhrase = n
	return nil
}

func (t *DynamicTM) SetMaxTargetPhrase(n int) error {
	if n <= 0 {
		return pkgerrors.Newf(pkgerrors.ErrInvalidConfig, "max target phrase must be positive, got %d", n)
	}
	t.maxTargetPhrase = n
	return nil
}

// SetCacheThreshold sets the raw hit count above which a source unigram's
// rules are precomputed at Init.
func (t *DynamicTM) SetCacheThreshold(n int) error {
	if n <= 0 {
		return pkgerrors.Newf(pkgerrors.ErrInvalidConfig, "cache threshold must be positive, got %d", n)
	}
	if t.initialized {
		return pkgerrors.New(pkgerrors.ErrInvalidConfig, "cache threshold must be set before Init")
	}
	t.cacheThreshold = n
	return nil
}

// SetParallelism bounds the extraction worker count. Zero means GOMAXPROCS;
// one forces the deterministic sequential mode.
func (t *DynamicTM) SetParallelism(n int) {
	t.parallelism = n
}

// SetSeed fixes the sampling seed for reproducible queries.
func (t *DynamicTM) SetSeed(seed uint64) {
	t.sa.SetSeed(seed)
}

// SetFeaturizer attaches a decoder-side feature sink, invoked once per rule
// wrapped by a query. Optional.
func (t *DynamicTM) SetFeaturizer(f Featurizer) {
	t.featurizer = f
}

// SetMetrics attaches Prometheus collectors. Optional.
func (t *DynamicTM) SetMetrics(m *metrics.Metrics) {
	t.metrics = m
	if m != nil {
		m.IndexSentences.Set(float64(t.sa.NumSentences()))
		m.VocabularySize.Set(float64(t.sa.Vocab().Size()))
	}
}

// FeatureNames returns the dense feature names for the active template.
func (t *DynamicTM) FeatureNames() []string {
	return t.template.FeatureNames()
}

// Vocab returns the index vocabulary.
func (t *DynamicTM) Vocab() *vocab.Vocabulary {
	return t.sa.Vocab()
}

// MaxLengthSource returns the longest source phrase the model will match.
func (t *DynamicTM) MaxLengthSource() int { return t.maxSourcePhrase }

// MaxLengthTarget returns the longest target phrase the model will extract.
func (t *DynamicTM) MaxLengthTarget() int { return t.maxTargetPhrase }

// Init builds the lexical co-occurrence cache and then the unigram rule
// cache. When useSystemVocab is set, the index vocabulary is installed as the
// process-wide vocabulary so the decoder can pass ids through unchanged. Init
// must complete before the first query.
func (t *DynamicTM) Init(useSystemVocab bool, sampleSize int) error {
	if sampleSize <= 0 {
		return pkgerrors.Newf(pkgerrors.ErrInvalidConfig, "sample size must be positive, got %d", sampleSize)
	}
	t.sampleSize = sampleSize
	t.useSystemVocab = useSystemVocab
	if useSystemVocab {
		vocab.SetSystem(t.sa.Vocab())
	}
	t.extractor = extract.NewExtractor(t.maxTargetPhrase)

	start := time.Now()
	t.createLexCache()
	lexDone := time.Now()
	t.createRuleCache()
	t.initialized = true
	t.logger.Info("caches built",
		"lex_cache", lexDone.Sub(start),
		"rule_cache", time.Since(lexDone),
		"cached_unigrams", len(t.ruleCache),
	)
	return nil
}

// createLexCache walks every occurrence of every vocabulary item on both
// sides, accumulating joint counts with aligned partners (NullID when
// unaligned) and the matching marginals.
func (t *DynamicTM) createLexCache() {
	t.coocCache = cooc.NewTable()
	var g errgroup.Group
	g.SetLimit(t.workers())
	for id := int32(0); id < int32(t.sa.Vocab().Size()); id++ {
		g.Go(func() error {
			query := []int32{id}

			occurrences, _ := t.sa.Query(query, true)
			for _, q := range occurrences {
				sent := t.sa.Sentence(q.SentenceID)
				srcID := sent.Source[q.WordPos]
				tgtAlign := sent.F2E[q.WordPos]
				if len(tgtAlign) > 0 {
					t.coocCache.IncrSrcMarginal(srcID, int64(len(tgtAlign)))
					for _, j := range tgtAlign {
						t.coocCache.AddCooc(srcID, sent.Target[j])
					}
				} else {
					t.coocCache.AddCooc(srcID, cooc.NullID)
					t.coocCache.IncrSrcMarginal(srcID, 1)
				}
			}

			occurrences, _ = t.sa.Query(query, false)
			for _, q := range occurrences {
				sent := t.sa.Sentence(q.SentenceID)
				tgtID := sent.Target[q.WordPos]
				srcAlign := sent.E2F[q.WordPos]
				if len(srcAlign) > 0 {
					t.coocCache.IncrTgtMarginal(tgtID, int64(len(srcAlign)))
					for _, j := range srcAlign {
						t.coocCache.AddCooc(tgtID, sent.Source[j])
					}
				} else {
					t.coocCache.AddCooc(tgtID, cooc.NullID)
					t.coocCache.IncrTgtMarginal(tgtID, 1)
				}
			}
			return nil
		})
	}
	g.Wait()
}

// createRuleCache precomputes scored rules for source unigrams frequent
// enough that sampling them per query would dominate latency.
func (t *DynamicTM) createRuleCache() {
	ruleCache := make(map[int32][]score.Rule)
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(t.workers())
	for id := int32(0); id < int32(t.sa.Vocab().Size()); id++ {
		g.Go(func() error {
			samples, _ := t.sa.Query([]int32{id}, true)
			if len(samples) <= t.cacheThreshold {
				return nil
			}
			rules := t.samplesToRules(samples, 1, 1.0)
			mu.Lock()
			ruleCache[id] = rules
			mu.Unlock()
			return nil
		})
	}
	g.Wait()
	t.ruleCache = ruleCache
}

func (t *DynamicTM) workers() int {
	if t.parallelism > 0 {
		return t.parallelism
	}
	return runtime.GOMAXPROCS(0)
}

// GetRules returns every scored rule matching a span of the source sentence.
// Out-of-vocabulary words and spans without corpus hits contribute no rules.
func (t *DynamicTM) GetRules(source []string, inputID int) []ConcreteRule {
	rules, _ := t.GetRulesWithStats(source, inputID)
	return rules
}

// GetRulesWithStats is GetRules plus the per-query extraction counters.
func (t *DynamicTM) GetRulesWithStats(source []string, inputID int) ([]ConcreteRule, QueryStats) {
	if len(source) == 0 || !t.initialized {
		return nil, QueryStats{}
	}
	start := time.Now()
	var stats QueryStats

	sourceIDs := t.toIDs(source)
	misses := newAtomicBitset(len(source))
	longest := min(t.maxSourcePhrase, len(source))

	var concrete []ConcreteRule
	for length := 1; length <= longest; length++ {
		newMisses := newAtomicBitset(len(source))
		spans := len(source) - length + 1
		results := make([][]ConcreteRule, spans)

		process := func(i int) {
			j := i + length
			if next := misses.nextSet(i); next >= 0 && next < j {
				// A zero-hit subphrase rules out every enclosing span.
				newMisses.setRange(i, j)
				atomic.AddInt64(&stats.SpansPruned, 1)
				return
			}
			if length == 1 {
				if cached, ok := t.ruleCache[sourceIDs[i]]; ok {
					atomic.AddInt64(&stats.CacheHits, 1)
					results[i] = t.wrapRules(cached, i, j, inputID)
					return
				}
			}
			sample, err := t.sa.Sample(sourceIDs[i:j], true, t.sampleSize)
			if err != nil || sample.NumHits == 0 {
				newMisses.setRange(i, j)
				atomic.AddInt64(&stats.SpansEmpty, 1)
				return
			}
			atomic.AddInt64(&stats.SpansSampled, 1)
			sampleRate := float64(len(sample.Samples)) / float64(sample.NumHits)
			rules := t.samplesToRules(sample.Samples, length, sampleRate)
			results[i] = t.wrapRules(rules, i, j, inputID)
		}

		if workers := t.workers(); workers <= 1 {
			for i := 0; i < spans; i++ {
				process(i)
			}
		} else {
			var g errgroup.Group
			g.SetLimit(workers)
			for i := 0; i < spans; i++ {
				g.Go(func() error {
					process(i)
					return nil
				})
			}
			g.Wait()
		}

		misses = newMisses
		for _, r := range results {
			concrete = append(concrete, r...)
		}
	}

	t.observeQuery(len(concrete), &stats, time.Since(start))
	return concrete, stats
}

func (t *DynamicTM) observeQuery(numRules int, stats *QueryStats, elapsed time.Duration) {
	if t.metrics == nil {
		return
	}
	t.metrics.QueriesTotal.Inc()
	t.metrics.QueryLatency.Observe(elapsed.Seconds())
	t.metrics.RulesReturned.Observe(float64(numRules))
	t.metrics.SpansSampledTotal.Add(float64(stats.SpansSampled))
	t.metrics.SpansPrunedTotal.Add(float64(stats.SpansPruned))
	t.metrics.RuleCacheHitsTotal.Add(float64(stats.CacheHits))
	t.metrics.SampleExhausted.Add(float64(stats.SpansEmpty))
	t.metrics.VocabularySize.Set(float64(t.sa.Vocab().Size()))
}

// toIDs translates the query words to corpus ids, interning unseen words so
// concurrent queries agree on their ids. Words outside the corpus simply
// never match.
func (t *DynamicTM) toIDs(source []string) []int32 {
	v := t.sa.Vocab()
	if t.useSystemVocab {
		if sys := vocab.System(); sys != nil {
			v = sys
		}
	}
	ids := make([]int32, len(source))
	for i, w := range source {
		ids[i] = v.Add(w)
	}
	return ids
}

func (t *DynamicTM) wrapRules(rules []score.Rule, start, end, inputID int) []ConcreteRule {
	var names []string
	if t.featurizer != nil {
		names = t.template.FeatureNames()
	}
	wrapped := make([]ConcreteRule, len(rules))
	for i, r := range rules {
		wrapped[i] = ConcreteRule{
			Rule:        r,
			SourceStart: start,
			SourceEnd:   end,
			InputID:     inputID,
		}
		if t.featurizer != nil {
			t.featurizer.Score(r.Scores, names)
		}
	}
	return wrapped
}

// samplesToRules extracts rules from every sampled occurrence, accumulates
// them into a histogram, and scores the distinct phrase pairs.
func (t *DynamicTM) samplesToRules(samples []index.QueryResult, order int, sampleRate float64) []score.Rule {
	scorer := score.NewScorer(t.sa, t.coocCache, t.template)
	h := score.NewHistogram()
	for _, q := range samples {
		sent := t.sa.Sentence(q.SentenceID)
		for _, r := range t.extractor.Extract(sent, q.SentenceID, int(q.WordPos), order) {
			scorer.Observe(h, r, sent)
		}
	}
	return scorer.Score(h, sampleRate)
}
