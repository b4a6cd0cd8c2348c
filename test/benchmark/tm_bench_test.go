// Package benchmark contains Go benchmarks for the suffix-array index and
// the dynamic translation model, measuring query throughput and allocation
// behaviour.
package benchmark

import (
	"fmt"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/phrasekit/phrasekit/internal/corpus"
	"github.com/phrasekit/phrasekit/internal/index"
	"github.com/phrasekit/phrasekit/internal/tm"
	"github.com/phrasekit/phrasekit/internal/vocab"
)

// synthCorpus builds a synthetic aligned corpus of n sentences over a small
// vocabulary so phrases repeat with realistic frequency.
func synthCorpus(n int) ([]corpus.AlignedSentence, *vocab.Vocabulary) {
	rng := rand.New(rand.NewSource(1))
	v := vocab.New()
	words := make([]int32, 50)
	uppers := make([]int32, 50)
	for i := range words {
		words[i] = v.Add(fmt.Sprintf("w%d", i))
		uppers[i] = v.Add(fmt.Sprintf("W%d", i))
	}
	sentences := make([]corpus.AlignedSentence, n)
	for s := range sentences {
		length := 5 + rng.Intn(15)
		src := make([]int32, length)
		tgt := make([]int32, length)
		links := make([][2]int32, 0, length)
		for i := range src {
			w := rng.Intn(len(words))
			src[i] = words[w]
			tgt[i] = uppers[w]
			links = append(links, [2]int32{int32(i), int32(i)})
		}
		sent, err := corpus.NewAlignedSentence(src, tgt, links)
		if err != nil {
			panic(err)
		}
		sentences[s] = sent
	}
	return sentences, v
}

// BenchmarkBuild measures suffix-array construction at various corpus sizes.
func BenchmarkBuild(b *testing.B) {
	sizes := []int{100, 1000, 5000}
	for _, n := range sizes {
		b.Run(fmt.Sprintf("sentences_%d", n), func(b *testing.B) {
			sentences, v := synthCorpus(n)
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				sa := index.Build(sentences, v)
				_ = sa
			}
		})
	}
}

// BenchmarkLocate measures exact phrase location latency.
func BenchmarkLocate(b *testing.B) {
	sentences, v := synthCorpus(2000)
	sa := index.Build(sentences, v)
	pattern := []int32{v.Lookup("w3"), v.Lookup("w7")}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		sa.Count(pattern, true)
	}
}

// BenchmarkSample measures bounded uniform sampling of a frequent unigram.
func BenchmarkSample(b *testing.B) {
	sentences, v := synthCorpus(2000)
	sa := index.Build(sentences, v)
	pattern := []int32{v.Lookup("w3")}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := sa.Sample(pattern, true, 100); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkSaveLoad measures index persistence round trips.
func BenchmarkSaveLoad(b *testing.B) {
	sentences, v := synthCorpus(500)
	sa := index.Build(sentences, v)
	path := filepath.Join(b.TempDir(), "model.bin")
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := sa.Save(path); err != nil {
			b.Fatal(err)
		}
		if _, err := index.Load(path); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkGetRules measures full rule extraction for a ten-word source
// sentence, sequentially and in parallel.
func BenchmarkGetRules(b *testing.B) {
	sentences, v := synthCorpus(2000)
	sa := index.Build(sentences, v)
	source := []string{"w1", "w2", "w3", "w4", "w5", "w6", "w7", "w8", "w9", "w10"}

	for _, workers := range []int{1, 0} {
		name := "sequential"
		if workers == 0 {
			name = "parallel"
		}
		b.Run(name, func(b *testing.B) {
			model := tm.New(sa)
			model.SetParallelism(workers)
			if err := model.Init(false, 100); err != nil {
				b.Fatal(err)
			}
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				rules := model.GetRules(source, i)
				_ = rules
			}
		})
	}
}

// BenchmarkInit measures cache construction over the whole vocabulary.
func BenchmarkInit(b *testing.B) {
	sentences, v := synthCorpus(2000)
	sa := index.Build(sentences, v)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		model := tm.New(sa)
		if err := model.Init(false, 100); err != nil {
			b.Fatal(err)
		}
	}
}
