// Package chunker splits document text into overlapping passages for indexing.
//
// Chunks are exact substrings of the input. Lengths are measured in runes.
// The splitter prefers sentence and paragraph boundaries, falls back to
// word boundaries, and finally cuts at the size limit, so any text can be
// rebuilt from its chunks by dropping each chunk's overlap with its
// predecessor.
package chunker

import (
	"sort"
	"unicode"

	"github.com/fyrsmithlabs/ragd/internal/errdefs"
)

const (
	// DefaultSize is the default chunk length in runes.
	DefaultSize = 1000
	// DefaultOverlap is the default overlap between neighbors in runes.
	DefaultOverlap = 200
)

// Config holds chunking parameters.
type Config struct {
	Size    int `koanf:"size"`
	Overlap int `koanf:"overlap"`
}

// DefaultConfig returns the default chunking parameters.
func DefaultConfig() Config {
	return Config{Size: DefaultSize, Overlap: DefaultOverlap}
}

// Validate checks that overlap is non-negative and strictly below size.
func (c Config) Validate() error {
	if c.Size <= 0 {
		return errdefs.Configf("chunking.size", "must be positive, got %d", c.Size)
	}
	if c.Overlap < 0 {
		return errdefs.Configf("chunking.overlap", "must not be negative, got %d", c.Overlap)
	}
	if c.Overlap >= c.Size {
		return errdefs.Configf("chunking.overlap", "must be less than size (%d >= %d)", c.Overlap, c.Size)
	}
	return nil
}

// Chunk is one passage of the source text. Start and End are byte offsets
// into the source, so Text == source[Start:End].
type Chunk struct {
	Text  string
	Start int
	End   int
}

// Split cuts text into chunks of at most size runes overlapping their
// predecessor by at most overlap runes. Empty text yields no chunks.
func Split(text string, size, overlap int) ([]Chunk, error) {
	if err := (Config{Size: size, Overlap: overlap}).Validate(); err != nil {
		return nil, err
	}
	if text == "" {
		return nil, nil
	}

	idx := index(text)
	n := idx.runes()

	var chunks []Chunk
	start := 0
	for {
		if n-start <= size {
			chunks = append(chunks, idx.chunk(text, start, n))
			return chunks, nil
		}

		// A chunk must extend past start+overlap or the next start
		// would not advance.
		limit := start + size
		end := lastIn(idx.sentences, start+overlap, limit)
		if end < 0 {
			end = lastIn(idx.words, start+overlap, limit)
		}
		if end < 0 {
			end = limit
		}
		chunks = append(chunks, idx.chunk(text, start, end))

		next := end
		if overlap > 0 {
			lo := end - overlap
			next = firstIn(idx.sentences, lo, end)
			if next < 0 {
				next = firstIn(idx.words, lo, end)
			}
			if next < 0 {
				next = lo
			}
		}
		start = next
	}
}

// Texts is Split returning only the chunk strings.
func Texts(text string, size, overlap int) ([]string, error) {
	chunks, err := Split(text, size, overlap)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Text
	}
	return out, nil
}

// textIndex maps rune positions to byte offsets and records candidate
// break positions, all as rune indices.
type textIndex struct {
	offsets   []int // byte offset of each rune, plus len(text)
	sentences []int // first rune after a sentence or paragraph end
	words     []int // first rune after a whitespace run
}

func (t *textIndex) runes() int { return len(t.offsets) - 1 }

func (t *textIndex) chunk(text string, from, to int) Chunk {
	s, e := t.offsets[from], t.offsets[to]
	return Chunk{Text: text[s:e], Start: s, End: e}
}

func index(text string) *textIndex {
	var (
		offsets []int
		rs      []rune
	)
	for i, r := range text {
		offsets = append(offsets, i)
		rs = append(rs, r)
	}
	offsets = append(offsets, len(text))

	t := &textIndex{offsets: offsets}
	n := len(rs)
	for i := 0; i < n; {
		if !unicode.IsSpace(rs[i]) {
			i++
			continue
		}
		runStart := i
		newlines := 0
		for i < n && unicode.IsSpace(rs[i]) {
			if rs[i] == '\n' {
				newlines++
			}
			i++
		}
		if runStart == 0 || i == n {
			continue
		}
		t.words = append(t.words, i)
		if newlines >= 2 || isTerminator(rs[runStart-1]) {
			t.sentences = append(t.sentences, i)
		}
	}
	return t
}

func isTerminator(r rune) bool {
	switch r {
	case '.', '!', '?', '…', '。', '！', '？':
		return true
	}
	return false
}

// lastIn returns the largest b in sorted with lo < b <= hi, or -1.
func lastIn(sorted []int, lo, hi int) int {
	i := sort.SearchInts(sorted, hi+1) - 1
	if i >= 0 && sorted[i] > lo {
		return sorted[i]
	}
	return -1
}

// firstIn returns the smallest b in sorted with lo <= b < hi, or -1.
func firstIn(sorted []int, lo, hi int) int {
	i := sort.SearchInts(sorted, lo)
	if i < len(sorted) && sorted[i] < hi {
		return sorted[i]
	}
	return -1
}
