package chunker

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/yungbote/ragdesk-backend/internal/domain"
)

type Unit string

const (
	UnitChars  Unit = "chars"
	UnitTokens Unit = "tokens"

	DefaultSize     = 1000
	DefaultOverlap  = 200
	DefaultEncoding = "cl100k_base"
)

type Config struct {
	Size    int
	Overlap int
	Unit    Unit
	// Encoding names the tiktoken encoding used when Unit is tokens.
	Encoding string
}

func DefaultConfig() Config {
	return Config{Size: DefaultSize, Overlap: DefaultOverlap, Unit: UnitChars, Encoding: DefaultEncoding}
}

// Validate rejects configurations that would not advance or would produce
// empty windows.
func (c Config) Validate() error {
	if c.Size <= 0 {
		return &domain.ConfigError{Field: "chunk_size", Message: fmt.Sprintf("must be positive, got %d", c.Size)}
	}
	if c.Overlap < 0 {
		return &domain.ConfigError{Field: "chunk_overlap", Message: fmt.Sprintf("must not be negative, got %d", c.Overlap)}
	}
	if c.Overlap >= c.Size {
		return &domain.ConfigError{Field: "chunk_overlap", Message: fmt.Sprintf("must be smaller than chunk_size (%d >= %d)", c.Overlap, c.Size)}
	}
	switch c.Unit {
	case "", UnitChars, UnitTokens:
	default:
		return &domain.ConfigError{Field: "chunk_unit", Message: fmt.Sprintf("unknown unit %q", c.Unit)}
	}
	return nil
}

// Tokenizer converts between text and token ids.
type Tokenizer interface {
	Encode(text string) []int
	Decode(tokens []int) string
}

type Chunker struct {
	cfg Config
	tok Tokenizer
}

// New validates cfg and, for token windows, loads the tiktoken encoding.
func New(cfg Config) (*Chunker, error) {
	if cfg.Unit == "" {
		cfg.Unit = UnitChars
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Chunker{cfg: cfg}
	if cfg.Unit == UnitTokens {
		tok, err := tiktokenFor(cfg.Encoding)
		if err != nil {
			return nil, &domain.ConfigError{Field: "chunk_encoding", Message: err.Error()}
		}
		c.tok = tok
	}
	return c, nil
}

// NewWithTokenizer builds a token-window chunker over a caller-supplied tokenizer.
func NewWithTokenizer(cfg Config, tok Tokenizer) (*Chunker, error) {
	cfg.Unit = UnitTokens
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if tok == nil {
		return nil, &domain.ConfigError{Field: "chunk_encoding", Message: "tokenizer is nil"}
	}
	return &Chunker{cfg: cfg, tok: tok}, nil
}

func (c *Chunker) Config() Config { return c.cfg }

// Split cuts doc into overlapping windows. Empty text yields no chunks.
func (c *Chunker) Split(doc domain.Document) []domain.Chunk {
	if c.cfg.Unit == UnitTokens {
		return c.splitTokens(doc)
	}
	runes := []rune(doc.Text)
	spans := windows(len(runes), c.cfg.Size, c.cfg.Overlap)
	out := make([]domain.Chunk, 0, len(spans))
	for i, w := range spans {
		out = append(out, domain.Chunk{
			DocumentID: doc.ID,
			Ordinal:    i,
			Start:      w[0],
			End:        w[1],
			Text:       string(runes[w[0]:w[1]]),
		})
	}
	return out
}

func (c *Chunker) splitTokens(doc domain.Document) []domain.Chunk {
	if doc.Text == "" {
		return []domain.Chunk{}
	}
	ids := c.tok.Encode(doc.Text)
	spans := windows(len(ids), c.cfg.Size, c.cfg.Overlap)
	out := make([]domain.Chunk, 0, len(spans))
	for i, w := range spans {
		out = append(out, domain.Chunk{
			DocumentID: doc.ID,
			Ordinal:    i,
			Start:      w[0],
			End:        w[1],
			Text:       c.tok.Decode(ids[w[0]:w[1]]),
		})
	}
	return out
}

// Split is the one-shot form: validate, then chunk.
func Split(doc domain.Document, size, overlap int) ([]domain.Chunk, error) {
	c, err := New(Config{Size: size, Overlap: overlap, Unit: UnitChars})
	if err != nil {
		return nil, err
	}
	return c.Split(doc), nil
}

// windows returns [start,end) spans. A sequence no longer than size is one
// window; otherwise every start k*(size-overlap) below n opens a window.
func windows(n, size, overlap int) [][2]int {
	if n == 0 {
		return nil
	}
	if n <= size {
		return [][2]int{{0, n}}
	}
	stride := size - overlap
	out := make([][2]int, 0, n/stride+1)
	for start := 0; start < n; start += stride {
		end := start + size
		if end > n {
			end = n
		}
		out = append(out, [2]int{start, end})
	}
	return out
}

// Reconstruct joins character-unit chunks back into the source text by
// dropping each chunk's overlap with its predecessor.
func Reconstruct(chunks []domain.Chunk) string {
	var b strings.Builder
	covered := 0
	for _, ch := range chunks {
		runes := []rune(ch.Text)
		skip := covered - ch.Start
		if skip < 0 {
			skip = 0
		}
		if skip < len(runes) {
			b.WriteString(string(runes[skip:]))
		}
		if ch.End > covered {
			covered = ch.End
		}
	}
	return b.String()
}

type tiktokenizer struct {
	enc *tiktoken.Tiktoken
}

func (t tiktokenizer) Encode(text string) []int   { return t.enc.Encode(text, nil, nil) }
func (t tiktokenizer) Decode(tokens []int) string { return t.enc.Decode(tokens) }

var (
	encMu    sync.Mutex
	encCache = map[string]Tokenizer{}
)

func tiktokenFor(name string) (Tokenizer, error) {
	if strings.TrimSpace(name) == "" {
		name = DefaultEncoding
	}
	encMu.Lock()
	defer encMu.Unlock()
	if tok, ok := encCache[name]; ok {
		return tok, nil
	}
	enc, err := tiktoken.GetEncoding(name)
	if err != nil {
		return nil, fmt.Errorf("load tiktoken encoding %q: %w", name, err)
	}
	tok := tiktokenizer{enc: enc}
	encCache[name] = tok
	return tok, nil
}
