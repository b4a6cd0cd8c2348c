package corpus

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"

	"github.com/phrasekit/phrasekit/internal/vocab"
	pkgerrors "github.com/phrasekit/phrasekit/pkg/errors"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func writeGzip(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	gz := gzip.NewWriter(f)
	if _, err := gz.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadBitext(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "corpus.fr", "le chat noir\nun chien\n")
	tgt := writeFile(t, dir, "corpus.en", "the black cat\na dog\n")
	align := writeFile(t, dir, "corpus.align", "0-0 1-2 2-1\n0-0 1-1\n")

	v := vocab.New()
	sentences, err := ReadBitext(src, tgt, align, v)
	if err != nil {
		t.Fatal(err)
	}
	if len(sentences) != 2 {
		t.Fatalf("got %d sentences, want 2", len(sentences))
	}
	if len(sentences[0].Source) != 3 || len(sentences[0].Target) != 3 {
		t.Fatalf("sentence 0 has %dx%d tokens", len(sentences[0].Source), len(sentences[0].Target))
	}
	// "chat" aligned to "cat".
	chat := v.Lookup("chat")
	cat := v.Lookup("cat")
	if chat == vocab.Unknown || cat == vocab.Unknown {
		t.Fatal("words not interned")
	}
	s0 := sentences[0]
	if s0.Source[1] != chat {
		t.Fatalf("Source[1] = %d, want %d", s0.Source[1], chat)
	}
	if got := s0.F2E[1]; len(got) != 1 || s0.Target[got[0]] != cat {
		t.Fatalf("chat not aligned to cat: F2E[1]=%v", got)
	}
	// 10 distinct words across both sides.
	if v.Size() != 10 {
		t.Fatalf("vocabulary size = %d, want 10", v.Size())
	}
}

func TestReadBitextGzip(t *testing.T) {
	dir := t.TempDir()
	src := writeGzip(t, dir, "corpus.fr.gz", "bonjour monde\n")
	tgt := writeGzip(t, dir, "corpus.en.gz", "hello world\n")
	align := writeGzip(t, dir, "corpus.align.gz", "0-0 1-1\n")

	v := vocab.New()
	sentences, err := ReadBitext(src, tgt, align, v)
	if err != nil {
		t.Fatal(err)
	}
	if len(sentences) != 1 {
		t.Fatalf("got %d sentences, want 1", len(sentences))
	}
	if v.Size() != 4 {
		t.Fatalf("vocabulary size = %d, want 4", v.Size())
	}
}

func TestReadBitextErrors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name          string
		src, tgt, al  string
		wantMalformed bool
	}{
		{"target too short", "a\nb\n", "A\n", "0-0\n0-0\n", true},
		{"target too long", "a\n", "A\nB\n", "0-0\n", true},
		{"alignment too short", "a\nb\n", "A\nB\n", "0-0\n", true},
		{"bad pair syntax", "a\n", "A\n", "0:0\n", true},
		{"pair out of range", "a\n", "A\n", "0-7\n", true},
		{"non-numeric pair", "a\n", "A\n", "x-0\n", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			src := writeFile(t, dir, "s_"+tc.name, tc.src)
			tgt := writeFile(t, dir, "t_"+tc.name, tc.tgt)
			align := writeFile(t, dir, "a_"+tc.name, tc.al)
			_, err := ReadBitext(src, tgt, align, vocab.New())
			if tc.wantMalformed && !errors.Is(err, pkgerrors.ErrMalformedBitext) {
				t.Fatalf("err = %v, want ErrMalformedBitext", err)
			}
		})
	}
}

func TestReadBitextMissingFile(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "src", "a\n")
	tgt := writeFile(t, dir, "tgt", "A\n")
	_, err := ReadBitext(src, tgt, filepath.Join(dir, "nope"), vocab.New())
	if err == nil {
		t.Fatal("expected error for missing alignment file")
	}
}
