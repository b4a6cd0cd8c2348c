package corpus

import (
	"errors"
	"testing"

	pkgerrors "github.com/phrasekit/phrasekit/pkg/errors"
)

func TestNewAlignedSentence(t *testing.T) {
	s, err := NewAlignedSentence(
		[]int32{10, 11, 12},
		[]int32{20, 21},
		[][2]int32{{2, 0}, {0, 1}, {0, 0}},
	)
	if err != nil {
		t.Fatal(err)
	}
	// F2E rows sorted ascending.
	if got := s.F2E[0]; len(got) != 2 || got[0] != 0 || got[1] != 1 {
		t.Fatalf("F2E[0] = %v, want [0 1]", got)
	}
	if len(s.F2E[1]) != 0 {
		t.Fatalf("F2E[1] = %v, want empty", s.F2E[1])
	}
	// E2F is the transpose.
	if got := s.E2F[0]; len(got) != 2 || got[0] != 0 || got[1] != 2 {
		t.Fatalf("E2F[0] = %v, want [0 2]", got)
	}
	if got := s.E2F[1]; len(got) != 1 || got[0] != 0 {
		t.Fatalf("E2F[1] = %v, want [0]", got)
	}
	if !s.AlignedTgt.Test(0) || !s.AlignedTgt.Test(1) {
		t.Fatal("aligned target positions not set in bitset")
	}
}

func TestNewAlignedSentenceUnalignedTarget(t *testing.T) {
	s, err := NewAlignedSentence(
		[]int32{1, 2},
		[]int32{3, 4, 5},
		[][2]int32{{0, 0}, {1, 2}},
	)
	if err != nil {
		t.Fatal(err)
	}
	if s.AlignedTgt.Test(1) {
		t.Fatal("position 1 should be unaligned")
	}
	if !s.AlignedTgt.Test(0) || !s.AlignedTgt.Test(2) {
		t.Fatal("positions 0 and 2 should be aligned")
	}
}

func TestNewAlignedSentenceRejectsOutOfRange(t *testing.T) {
	cases := [][2]int32{{2, 0}, {0, 2}, {-1, 0}, {0, -1}}
	for _, link := range cases {
		_, err := NewAlignedSentence([]int32{1, 2}, []int32{3, 4}, [][2]int32{link})
		if !errors.Is(err, pkgerrors.ErrMalformedBitext) {
			t.Errorf("link %v: err = %v, want ErrMalformedBitext", link, err)
		}
	}
}

func TestRebuildRestoresDerivedState(t *testing.T) {
	orig, err := NewAlignedSentence(
		[]int32{1, 2, 3},
		[]int32{4, 5},
		[][2]int32{{0, 1}, {2, 0}, {2, 1}},
	)
	if err != nil {
		t.Fatal(err)
	}
	stripped := AlignedSentence{Source: orig.Source, Target: orig.Target, F2E: orig.F2E}
	if err := stripped.Rebuild(); err != nil {
		t.Fatal(err)
	}
	for j := range orig.E2F {
		if len(stripped.E2F[j]) != len(orig.E2F[j]) {
			t.Fatalf("E2F[%d] = %v, want %v", j, stripped.E2F[j], orig.E2F[j])
		}
		for k := range orig.E2F[j] {
			if stripped.E2F[j][k] != orig.E2F[j][k] {
				t.Fatalf("E2F[%d] = %v, want %v", j, stripped.E2F[j], orig.E2F[j])
			}
		}
	}
	if stripped.AlignedTgt.Count() != orig.AlignedTgt.Count() {
		t.Fatal("aligned bitset differs after Rebuild")
	}
}

func TestRebuildRejectsBadIndices(t *testing.T) {
	s := AlignedSentence{
		Source: []int32{1},
		Target: []int32{2},
		F2E:    [][]int32{{3}},
	}
	if err := s.Rebuild(); !errors.Is(err, pkgerrors.ErrCorruptIndex) {
		t.Fatalf("err = %v, want ErrCorruptIndex", err)
	}
}
