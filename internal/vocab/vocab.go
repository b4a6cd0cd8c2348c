// Package vocab maps word strings to dense non-negative integer ids. Ids are
// assigned in insertion order and never reused. The vocabulary is populated
// during index construction and mostly read-only afterwards, but queries may
// introduce unseen words concurrently, so growth is lock-free for readers.
package vocab

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Unknown is returned by Lookup for words absent from the vocabulary.
const Unknown int32 = -1

// Vocabulary is a bidirectional string<->id mapping safe for concurrent use.
//
// The id->string table is published through an atomic pointer and grown by
// doubling-copy, so readers never block. Writers serialize on a mutex, with a
// singleflight group in front so concurrent Adds of the same word do not
// duplicate work.
type Vocabulary struct {
	mu    sync.Mutex
	words atomic.Pointer[[]string]
	ids   sync.Map // string -> int32
	size  atomic.Int32
	group singleflight.Group
}

func New() *Vocabulary {
	v := &Vocabulary{}
	words := make([]string, 0, 16)
	v.words.Store(&words)
	return v
}

// Size returns the number of words currently in the vocabulary.
func (v *Vocabulary) Size() int {
	return int(v.size.Load())
}

// Get returns the word for id. It returns the empty string for ids outside
// [0, Size()).
func (v *Vocabulary) Get(id int32) string {
	words := *v.words.Load()
	if id < 0 || int(id) >= len(words) {
		return ""
	}
	return words[id]
}

// Lookup returns the id for word, or Unknown if absent.
func (v *Vocabulary) Lookup(word string) int32 {
	if id, ok := v.ids.Load(word); ok {
		return id.(int32)
	}
	return Unknown
}

// Add returns the id for word, inserting it if absent. Safe for concurrent
// callers; all callers racing on the same word observe the same id.
func (v *Vocabulary) Add(word string) int32 {
	if id, ok := v.ids.Load(word); ok {
		return id.(int32)
	}
	id, _, _ := v.group.Do(word, func() (any, error) {
		return v.add(word), nil
	})
	return id.(int32)
}

func (v *Vocabulary) add(word string) int32 {
	v.mu.Lock()
	defer v.mu.Unlock()
	if id, ok := v.ids.Load(word); ok {
		return id.(int32)
	}
	old := *v.words.Load()
	n := len(old)
	var next []string
	if n < cap(old) {
		next = old[:n+1]
	} else {
		next = make([]string, n+1, 2*(n+1))
		copy(next, old)
	}
	next[n] = word
	id := int32(n)
	v.words.Store(&next)
	v.ids.Store(word, id)
	v.size.Store(id + 1)
	return id
}

// ToIDs maps words through Lookup, producing Unknown for absent words.
func (v *Vocabulary) ToIDs(words []string) []int32 {
	ids := make([]int32, len(words))
	for i, w := range words {
		ids[i] = v.Lookup(w)
	}
	return ids
}

// ToWords maps ids back to strings via Get.
func (v *Vocabulary) ToWords(ids []int32) []string {
	words := make([]string, len(ids))
	for i, id := range ids {
		words[i] = v.Get(id)
	}
	return words
}

// system is the process-wide vocabulary slot, used only for zero-copy id
// sharing with an embedding decoder. All internal paths receive the
// vocabulary by parameter.
var system atomic.Pointer[Vocabulary]

// SetSystem installs v as the process-wide system vocabulary. Only the first
// call takes effect; it reports whether v was installed.
func SetSystem(v *Vocabulary) bool {
	return system.CompareAndSwap(nil, v)
}

// System returns the process-wide vocabulary, or nil if none was set.
func System() *Vocabulary {
	return system.Load()
}

// ResetSystem clears the process-wide slot. Intended for tests.
func ResetSystem() {
	system.Store(nil)
}
