package corpus

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/phrasekit/phrasekit/internal/vocab"
	pkgerrors "github.com/phrasekit/phrasekit/pkg/errors"
)

// maxLineBytes bounds a single bitext line. Sentences longer than this are a
// data error, not a corpus.
const maxLineBytes = 1 << 20

// ReadBitext reads a word-aligned parallel corpus from three line-aligned
// text files: tokenized source, tokenized target, and Pharaoh-format "i-j"
// alignment pairs. Files ending in .gz are transparently decompressed. All
// words are interned into v.
func ReadBitext(srcPath, tgtPath, alignPath string, v *vocab.Vocabulary) ([]AlignedSentence, error) {
	src, err := openMaybeGzip(srcPath)
	if err != nil {
		return nil, err
	}
	defer src.Close()
	tgt, err := openMaybeGzip(tgtPath)
	if err != nil {
		return nil, err
	}
	defer tgt.Close()
	align, err := openMaybeGzip(alignPath)
	if err != nil {
		return nil, err
	}
	defer align.Close()

	logger := slog.Default().With("component", "bitext-reader")

	srcScan := newLineScanner(src)
	tgtScan := newLineScanner(tgt)
	alignScan := newLineScanner(align)

	var sentences []AlignedSentence
	line := 0
	for srcScan.Scan() {
		line++
		if !tgtScan.Scan() {
			return nil, pkgerrors.Newf(pkgerrors.ErrMalformedBitext, "%s ends before %s at line %d", tgtPath, srcPath, line)
		}
		if !alignScan.Scan() {
			return nil, pkgerrors.Newf(pkgerrors.ErrMalformedBitext, "%s ends before %s at line %d", alignPath, srcPath, line)
		}
		srcIDs := internTokens(srcScan.Text(), v)
		tgtIDs := internTokens(tgtScan.Text(), v)
		links, err := parseAlignment(alignScan.Text())
		if err != nil {
			return nil, pkgerrors.Newf(pkgerrors.ErrMalformedBitext, "line %d: %v", line, err)
		}
		sent, err := NewAlignedSentence(srcIDs, tgtIDs, links)
		if err != nil {
			return nil, pkgerrors.Newf(pkgerrors.ErrMalformedBitext, "line %d: %v", line, err)
		}
		sentences = append(sentences, sent)
	}
	if err := srcScan.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", srcPath, err)
	}
	if tgtScan.Scan() {
		return nil, pkgerrors.Newf(pkgerrors.ErrMalformedBitext, "%s has more lines than %s", tgtPath, srcPath)
	}
	logger.Info("bitext read", "sentences", len(sentences), "vocabulary", v.Size())
	return sentences, nil
}

func internTokens(line string, v *vocab.Vocabulary) []int32 {
	fields := strings.Fields(line)
	ids := make([]int32, len(fields))
	for i, w := range fields {
		ids[i] = v.Add(w)
	}
	return ids
}

func parseAlignment(line string) ([][2]int32, error) {
	fields := strings.Fields(line)
	links := make([][2]int32, 0, len(fields))
	for _, f := range fields {
		dash := strings.IndexByte(f, '-')
		if dash <= 0 || dash == len(f)-1 {
			return nil, fmt.Errorf("bad alignment pair %q", f)
		}
		src, err := strconv.ParseInt(f[:dash], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("bad alignment pair %q: %v", f, err)
		}
		tgt, err := strconv.ParseInt(f[dash+1:], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("bad alignment pair %q: %v", f, err)
		}
		links = append(links, [2]int32{int32(src), int32(tgt)})
	}
	return links, nil
}

func newLineScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	return sc
}

type readCloser struct {
	io.Reader
	closers []io.Closer
}

func (rc *readCloser) Close() error {
	var first error
	for _, c := range rc.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func openMaybeGzip(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening bitext file: %w", err)
	}
	if !strings.HasSuffix(path, ".gz") {
		return f, nil
	}
	gz, err := gzip.NewReader(bufio.NewReaderSize(f, 1<<16))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("opening gzip bitext file %s: %w", path, err)
	}
	return &readCloser{Reader: gz, closers: []io.Closer{gz, f}}, nil
}
