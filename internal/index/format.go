package index

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/phrasekit/phrasekit/internal/corpus"
	"github.com/phrasekit/phrasekit/internal/vocab"
	pkgerrors "github.com/phrasekit/phrasekit/pkg/errors"
)

// Index file layout, all little-endian. Header, then the payload sections in
// a fixed order, then a crc32 (IEEE) of the payload. A .gz extension wraps
// the whole stream in gzip.
const (
	magicBytes    uint32 = 0x50484B31 // "PHK1"
	formatVersion uint32 = 1
	headerSize           = 32
)

// maxStringLen bounds a single vocabulary entry on load.
const maxStringLen = 1 << 20

type fileHeader struct {
	Magic     uint32
	Version   uint32
	VocabSize uint32
	Sentences uint32
	SrcTokens uint32
	TgtTokens uint32
}

// Save writes the index to path atomically (temp file plus rename). Paths
// ending in .gz are gzip-compressed.
func (p *ParallelSuffixArray) Save(path string) error {
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating index file: %w", err)
	}
	defer f.Close()

	var w io.Writer = f
	var gz *gzip.Writer
	if strings.HasSuffix(path, ".gz") {
		gz = gzip.NewWriter(f)
		w = gz
	}
	bw := bufio.NewWriterSize(w, 1<<16)

	header := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(header[0:4], magicBytes)
	binary.LittleEndian.PutUint32(header[4:8], formatVersion)
	binary.LittleEndian.PutUint32(header[8:12], uint32(p.vocab.Size()))
	binary.LittleEndian.PutUint32(header[12:16], uint32(len(p.sentences)))
	binary.LittleEndian.PutUint32(header[16:20], uint32(len(p.src.tokens)))
	binary.LittleEndian.PutUint32(header[20:24], uint32(len(p.tgt.tokens)))
	if _, err := bw.Write(header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	crc := crc32.NewIEEE()
	pw := io.MultiWriter(bw, crc)
	if err := p.writePayload(pw); err != nil {
		return fmt.Errorf("writing payload: %w", err)
	}
	var footer [4]byte
	binary.LittleEndian.PutUint32(footer[:], crc.Sum32())
	if _, err := bw.Write(footer[:]); err != nil {
		return fmt.Errorf("writing footer: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flushing index file: %w", err)
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return fmt.Errorf("closing gzip stream: %w", err)
		}
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing index file: %w", err)
	}
	f.Close()
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming index file: %w", err)
	}
	return nil
}

func (p *ParallelSuffixArray) writePayload(w io.Writer) error {
	var scratch [binary.MaxVarintLen64]byte
	for id := int32(0); id < int32(p.vocab.Size()); id++ {
		word := p.vocab.Get(id)
		n := binary.PutUvarint(scratch[:], uint64(len(word)))
		if _, err := w.Write(scratch[:n]); err != nil {
			return err
		}
		if _, err := io.WriteString(w, word); err != nil {
			return err
		}
	}
	for _, s := range []*side{&p.src, &p.tgt} {
		if err := writeInt32s(w, s.starts); err != nil {
			return err
		}
		if err := writeInt32s(w, s.tokens); err != nil {
			return err
		}
	}
	if err := p.writeAlignments(w, true); err != nil {
		return err
	}
	if err := p.writeAlignments(w, false); err != nil {
		return err
	}
	if err := writeInt32s(w, p.src.sa); err != nil {
		return err
	}
	return writeInt32s(w, p.tgt.sa)
}

// writeAlignments packs F2E (or E2F) as CSR: per-token degree, then the
// sentence-local partner positions.
func (p *ParallelSuffixArray) writeAlignments(w io.Writer, forward bool) error {
	var scratch [binary.MaxVarintLen64]byte
	for i := range p.sentences {
		rows := p.sentences[i].F2E
		if !forward {
			rows = p.sentences[i].E2F
		}
		for _, row := range rows {
			n := binary.PutUvarint(scratch[:], uint64(len(row)))
			if _, err := w.Write(scratch[:n]); err != nil {
				return err
			}
			if err := writeInt32Data(w, row); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeInt32s(w io.Writer, v []int32) error {
	var scratch [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(scratch[:], uint64(len(v)))
	if _, err := w.Write(scratch[:n]); err != nil {
		return err
	}
	return writeInt32Data(w, v)
}

func writeInt32Data(w io.Writer, v []int32) error {
	var buf [4]byte
	for _, x := range v {
		binary.LittleEndian.PutUint32(buf[:], uint32(x))
		if _, err := w.Write(buf[:]); err != nil {
			return err
		}
	}
	return nil
}

// Load reads an index previously written by Save. It validates the magic
// number, format version, checksum, and structural invariants.
func Load(path string) (*ParallelSuffixArray, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening index file: %w", err)
	}
	defer f.Close()

	var r io.Reader = bufio.NewReaderSize(f, 1<<16)
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("opening gzip index %s: %w", path, err)
		}
		defer gz.Close()
		r = bufio.NewReaderSize(gz, 1<<16)
	}

	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, truncated("header", err)
	}
	h := fileHeader{
		Magic:     binary.LittleEndian.Uint32(header[0:4]),
		Version:   binary.LittleEndian.Uint32(header[4:8]),
		VocabSize: binary.LittleEndian.Uint32(header[8:12]),
		Sentences: binary.LittleEndian.Uint32(header[12:16]),
		SrcTokens: binary.LittleEndian.Uint32(header[16:20]),
		TgtTokens: binary.LittleEndian.Uint32(header[20:24]),
	}
	if h.Magic != magicBytes {
		return nil, pkgerrors.Newf(pkgerrors.ErrCorruptIndex, "bad magic bytes %08x", h.Magic)
	}
	if h.Version != formatVersion {
		return nil, pkgerrors.Newf(pkgerrors.ErrCorruptIndex, "unsupported format version %d", h.Version)
	}

	crc := crc32.NewIEEE()
	p, err := readPayload(&payloadReader{r: io.TeeReader(r, crc)}, h)
	if err != nil {
		return nil, err
	}
	var footer [4]byte
	if _, err := io.ReadFull(r, footer[:]); err != nil {
		return nil, truncated("footer", err)
	}
	if sum := binary.LittleEndian.Uint32(footer[:]); sum != crc.Sum32() {
		return nil, pkgerrors.Newf(pkgerrors.ErrCorruptIndex,
			"checksum mismatch: file %08x, computed %08x", sum, crc.Sum32())
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	slog.Default().With("component", "index").Info("index loaded",
		"path", path,
		"sentences", p.NumSentences(),
		"vocabulary", p.vocab.Size(),
		"source_tokens", len(p.src.tokens),
		"target_tokens", len(p.tgt.tokens),
	)
	return p, nil
}

// payloadReader adapts the checksummed stream to io.ByteReader for uvarints
// without losing the Tee.
type payloadReader struct {
	r   io.Reader
	buf [1]byte
}

func (pr *payloadReader) Read(p []byte) (int, error) {
	return pr.r.Read(p)
}

func (pr *payloadReader) ReadByte() (byte, error) {
	if _, err := io.ReadFull(pr.r, pr.buf[:]); err != nil {
		return 0, err
	}
	return pr.buf[0], nil
}

func readPayload(r *payloadReader, h fileHeader) (*ParallelSuffixArray, error) {
	v := vocab.New()
	for i := uint32(0); i < h.VocabSize; i++ {
		n, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, truncated("vocabulary", err)
		}
		if n > maxStringLen {
			return nil, pkgerrors.Newf(pkgerrors.ErrCorruptIndex, "vocabulary entry of %d bytes", n)
		}
		word := make([]byte, n)
		if _, err := io.ReadFull(r, word); err != nil {
			return nil, truncated("vocabulary", err)
		}
		v.Add(string(word))
	}
	if v.Size() != int(h.VocabSize) {
		return nil, pkgerrors.Newf(pkgerrors.ErrCorruptIndex,
			"vocabulary has duplicate entries: %d read, %d unique", h.VocabSize, v.Size())
	}

	p := &ParallelSuffixArray{vocab: v, seed: 1}
	for _, s := range []*side{&p.src, &p.tgt} {
		var err error
		if s.starts, err = readInt32s(r, "sentence starts"); err != nil {
			return nil, err
		}
		if s.tokens, err = readInt32s(r, "corpus tokens"); err != nil {
			return nil, err
		}
	}

	p.sentences = make([]corpus.AlignedSentence, h.Sentences)
	for i := range p.sentences {
		p.sentences[i].Source = sliceSentence(&p.src, int32(i))
		p.sentences[i].Target = sliceSentence(&p.tgt, int32(i))
	}
	if err := readAlignments(r, p, true); err != nil {
		return nil, err
	}
	if err := readAlignments(r, p, false); err != nil {
		return nil, err
	}
	var err error
	if p.src.sa, err = readInt32s(r, "source suffix array"); err != nil {
		return nil, err
	}
	if p.tgt.sa, err = readInt32s(r, "target suffix array"); err != nil {
		return nil, err
	}
	return p, nil
}

func sliceSentence(s *side, id int32) []int32 {
	if int(id)+1 >= len(s.starts) {
		return nil
	}
	lo, hi := s.starts[id], s.starts[id+1]
	if lo < 0 || hi < lo || int(hi) > len(s.tokens) {
		return nil
	}
	return s.tokens[lo:hi:hi]
}

func readAlignments(r *payloadReader, p *ParallelSuffixArray, forward bool) error {
	for i := range p.sentences {
		sent := &p.sentences[i]
		length := len(sent.Source)
		if !forward {
			length = len(sent.Target)
		}
		rows := make([][]int32, length)
		for t := range rows {
			n, err := binary.ReadUvarint(r)
			if err != nil {
				return truncated("alignments", err)
			}
			if n > uint64(len(sent.Source)+len(sent.Target)) {
				return pkgerrors.Newf(pkgerrors.ErrCorruptIndex, "alignment row of %d links", n)
			}
			row := make([]int32, n)
			if err := readInt32Data(r, row); err != nil {
				return truncated("alignments", err)
			}
			rows[t] = row
		}
		if forward {
			sent.F2E = rows
		} else {
			sent.E2F = rows
		}
	}
	return nil
}

func readInt32s(r *payloadReader, section string) ([]int32, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, truncated(section, err)
	}
	if n > 1<<31 {
		return nil, pkgerrors.Newf(pkgerrors.ErrCorruptIndex, "%s of %d entries", section, n)
	}
	v := make([]int32, n)
	if err := readInt32Data(r, v); err != nil {
		return nil, truncated(section, err)
	}
	return v, nil
}

func readInt32Data(r io.Reader, v []int32) error {
	var buf [4]byte
	for i := range v {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return err
		}
		v[i] = int32(binary.LittleEndian.Uint32(buf[:]))
	}
	return nil
}

func truncated(section string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return pkgerrors.Newf(pkgerrors.ErrTruncatedIndex, "while reading %s", section)
	}
	return fmt.Errorf("reading %s: %w", section, err)
}

// validate checks the structural invariants of a loaded index: monotone
// prefix sums, suffix arrays that are in-range permutations, and alignment
// indices inside their sentences. It also restores each sentence's derived
// alignment state.
func (p *ParallelSuffixArray) validate() error {
	for name, s := range map[string]*side{"source": &p.src, "target": &p.tgt} {
		if len(s.starts) != len(p.sentences)+1 {
			return pkgerrors.Newf(pkgerrors.ErrCorruptIndex,
				"%s prefix sums: %d entries for %d sentences", name, len(s.starts), len(p.sentences))
		}
		if s.starts[0] != 0 || int(s.starts[len(s.starts)-1]) != len(s.tokens) {
			return pkgerrors.Newf(pkgerrors.ErrCorruptIndex, "%s prefix sums do not span the corpus", name)
		}
		for i := 1; i < len(s.starts); i++ {
			if s.starts[i] < s.starts[i-1] {
				return pkgerrors.Newf(pkgerrors.ErrCorruptIndex, "%s prefix sums not monotone at %d", name, i)
			}
		}
		if len(s.sa) != len(s.tokens) {
			return pkgerrors.Newf(pkgerrors.ErrCorruptIndex,
				"%s suffix array has %d entries for %d tokens", name, len(s.sa), len(s.tokens))
		}
		seen := make([]bool, len(s.tokens))
		for _, off := range s.sa {
			if off < 0 || int(off) >= len(s.tokens) {
				return pkgerrors.Newf(pkgerrors.ErrCorruptIndex, "%s suffix offset %d out of range", name, off)
			}
			if seen[off] {
				return pkgerrors.Newf(pkgerrors.ErrCorruptIndex, "%s suffix offset %d repeated", name, off)
			}
			seen[off] = true
		}
		for _, id := range s.tokens {
			if id < 0 || int(id) >= p.vocab.Size() {
				return pkgerrors.Newf(pkgerrors.ErrCorruptIndex, "%s token id %d outside vocabulary", name, id)
			}
		}
	}
	for i := range p.sentences {
		sent := &p.sentences[i]
		for _, row := range sent.F2E {
			for _, j := range row {
				if j < 0 || int(j) >= len(sent.Target) {
					return pkgerrors.Newf(pkgerrors.ErrCorruptIndex,
						"sentence %d: f2e index %d out of range", i, j)
				}
			}
		}
		for _, row := range sent.E2F {
			for _, j := range row {
				if j < 0 || int(j) >= len(sent.Source) {
					return pkgerrors.Newf(pkgerrors.ErrCorruptIndex,
						"sentence %d: e2f index %d out of range", i, j)
				}
			}
		}
		if err := restoreAligned(sent); err != nil {
			return pkgerrors.Newf(pkgerrors.ErrCorruptIndex, "sentence %d: %v", i, err)
		}
	}
	return nil
}

// restoreAligned rebuilds E2F and the aligned-target bitset from F2E and
// cross-checks the persisted E2F against the rebuilt transpose.
func restoreAligned(sent *corpus.AlignedSentence) error {
	persisted := sent.E2F
	if err := sent.Rebuild(); err != nil {
		return err
	}
	if len(persisted) != len(sent.E2F) {
		return fmt.Errorf("e2f has %d rows for %d target tokens", len(persisted), len(sent.E2F))
	}
	for j, row := range sent.E2F {
		if len(persisted[j]) != len(row) {
			return fmt.Errorf("f2e and e2f are not transposes at target %d", j)
		}
		for k := range row {
			if persisted[j][k] != row[k] {
				return fmt.Errorf("f2e and e2f are not transposes at target %d", j)
			}
		}
	}
	return nil
}
