package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// Build then query through the command tree: the round trip must produce
// scored rules for a corpus phrase.
func TestBuildAndQuery(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "corpus.fr", "le chat\nle chien\n")
	tgt := writeFile(t, dir, "corpus.en", "the cat\nthe dog\n")
	align := writeFile(t, dir, "corpus.align", "0-0 1-1\n0-0 1-1\n")
	input := writeFile(t, dir, "input.txt", "le chat\n")
	model := filepath.Join(dir, "model.bin.gz")

	c := New("test")
	c.rootCmd.SetArgs([]string{"build", "--source", src, "--target", tgt, "--align", align, "--out", model})
	if err := c.Run(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(model); err != nil {
		t.Fatalf("model not written: %v", err)
	}

	var out bytes.Buffer
	c = New("test")
	c.rootCmd.SetOut(&out)
	c.rootCmd.SetArgs([]string{"query", "--model", model, "--input", input})
	if err := c.Run(); err != nil {
		t.Fatal(err)
	}
	text := out.String()
	if !strings.Contains(text, "# features: TM.0") {
		t.Fatalf("missing feature header in output:\n%s", text)
	}
	if !strings.Contains(text, "le chat ||| the cat |||") {
		t.Fatalf("expected rule missing from output:\n%s", text)
	}
}

func TestBuildRequiresPaths(t *testing.T) {
	c := New("test")
	c.rootCmd.SetArgs([]string{"build"})
	if err := c.Run(); err == nil {
		t.Fatal("build without inputs should fail")
	}
}

func TestQueryRequiresModel(t *testing.T) {
	c := New("test")
	c.rootCmd.SetArgs([]string{"query"})
	if err := c.Run(); err == nil {
		t.Fatal("query without --model should fail")
	}
}
