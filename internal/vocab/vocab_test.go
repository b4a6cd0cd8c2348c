package vocab

import (
	"fmt"
	"sync"
	"testing"
)

func TestAddAssignsDenseIDs(t *testing.T) {
	v := New()
	words := []string{"the", "quick", "brown", "fox"}
	for i, w := range words {
		id := v.Add(w)
		if id != int32(i) {
			t.Fatalf("Add(%q) = %d, want %d", w, id, i)
		}
	}
	if v.Size() != len(words) {
		t.Fatalf("Size() = %d, want %d", v.Size(), len(words))
	}
	for i, w := range words {
		if got := v.Get(int32(i)); got != w {
			t.Errorf("Get(%d) = %q, want %q", i, got, w)
		}
		if got := v.Lookup(w); got != int32(i) {
			t.Errorf("Lookup(%q) = %d, want %d", w, got, i)
		}
	}
}

func TestAddIsIdempotent(t *testing.T) {
	v := New()
	first := v.Add("word")
	second := v.Add("word")
	if first != second {
		t.Fatalf("repeated Add returned %d then %d", first, second)
	}
	if v.Size() != 1 {
		t.Fatalf("Size() = %d after duplicate Add, want 1", v.Size())
	}
}

func TestLookupMissing(t *testing.T) {
	v := New()
	v.Add("present")
	if got := v.Lookup("absent"); got != Unknown {
		t.Fatalf("Lookup(absent) = %d, want %d", got, Unknown)
	}
	if got := v.Get(5); got != "" {
		t.Fatalf("Get(5) = %q, want empty", got)
	}
	if got := v.Get(-1); got != "" {
		t.Fatalf("Get(-1) = %q, want empty", got)
	}
}

func TestToIDsAndBack(t *testing.T) {
	v := New()
	for _, w := range []string{"a", "b", "c"} {
		v.Add(w)
	}
	ids := v.ToIDs([]string{"b", "a", "zzz", "c"})
	want := []int32{1, 0, Unknown, 2}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ToIDs[%d] = %d, want %d", i, ids[i], want[i])
		}
	}
	words := v.ToWords([]int32{2, 0})
	if words[0] != "c" || words[1] != "a" {
		t.Fatalf("ToWords = %v", words)
	}
}

// Concurrent Adds of overlapping word sets must converge on one consistent
// table: every word gets exactly one id and the table is exactly as large as
// the distinct word count.
func TestConcurrentGrowth(t *testing.T) {
	v := New()
	for i := 0; i < 100; i++ {
		v.Add(fmt.Sprintf("base-%d", i))
	}

	const goroutines = 8
	const wordsPerGoroutine = 200
	ids := make([][]int32, goroutines)
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids[g] = make([]int32, wordsPerGoroutine)
			for i := 0; i < wordsPerGoroutine; i++ {
				// Half the words are shared across goroutines.
				var w string
				if i%2 == 0 {
					w = fmt.Sprintf("shared-%d", i)
				} else {
					w = fmt.Sprintf("own-%d-%d", g, i)
				}
				ids[g][i] = v.Add(w)
			}
		}()
	}
	wg.Wait()

	distinct := 100 + wordsPerGoroutine/2 + goroutines*wordsPerGoroutine/2
	if v.Size() != distinct {
		t.Fatalf("Size() = %d, want %d", v.Size(), distinct)
	}
	// All goroutines must agree on shared-word ids.
	for i := 0; i < wordsPerGoroutine; i += 2 {
		w := fmt.Sprintf("shared-%d", i)
		want := v.Lookup(w)
		for g := 0; g < goroutines; g++ {
			if ids[g][i] != want {
				t.Fatalf("goroutine %d saw id %d for %q, table has %d", g, ids[g][i], w, want)
			}
		}
	}
	// Ids must round-trip through the published table.
	for id := int32(0); id < int32(v.Size()); id++ {
		if v.Lookup(v.Get(id)) != id {
			t.Fatalf("id %d does not round-trip", id)
		}
	}
}

func TestSystemSlot(t *testing.T) {
	ResetSystem()
	t.Cleanup(ResetSystem)

	if System() != nil {
		t.Fatal("System() non-nil before SetSystem")
	}
	a, b := New(), New()
	if !SetSystem(a) {
		t.Fatal("first SetSystem rejected")
	}
	if SetSystem(b) {
		t.Fatal("second SetSystem accepted")
	}
	if System() != a {
		t.Fatal("System() did not return first vocabulary")
	}
}
