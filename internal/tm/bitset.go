package tm

import (
	"math/bits"
	"sync/atomic"
)

// atomicBitset is a fixed-size bitset whose writes are set-bit-only, so
// concurrent extraction workers can mark misses without coordination.
type atomicBitset struct {
	words []atomic.Uint64
	n     int
}

func newAtomicBitset(n int) *atomicBitset {
	return &atomicBitset{
		words: make([]atomic.Uint64, (n+63)/64),
		n:     n,
	}
}

// setRange sets bits [lo, hi).
func (b *atomicBitset) setRange(lo, hi int) {
	for i := lo; i < hi; i++ {
		b.words[i/64].Or(1 << uint(i%64))
	}
}

// nextSet returns the index of the first set bit at or after from, or -1.
func (b *atomicBitset) nextSet(from int) int {
	if from >= b.n {
		return -1
	}
	w := from / 64
	word := b.words[w].Load() >> uint(from%64)
	if word != 0 {
		i := from + bits.TrailingZeros64(word)
		if i < b.n {
			return i
		}
		return -1
	}
	for w++; w < len(b.words); w++ {
		word := b.words[w].Load()
		if word != 0 {
			i := w*64 + bits.TrailingZeros64(word)
			if i < b.n {
				return i
			}
			return -1
		}
	}
	return -1
}
