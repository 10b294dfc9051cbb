package chunker

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/yungbote/ragdesk-backend/internal/domain"
)

func TestSplitRepeatedCharacters(t *testing.T) {
	doc := domain.Document{ID: "a.pdf", Text: strings.Repeat("A", 2600)}
	chunks, err := Split(doc, 1000, 200)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	wantLens := []int{1000, 1000, 1000, 200}
	if len(chunks) != len(wantLens) {
		t.Fatalf("chunk count: want=%d got=%d", len(wantLens), len(chunks))
	}
	for i, ch := range chunks {
		if got := len([]rune(ch.Text)); got != wantLens[i] {
			t.Fatalf("chunk %d len: want=%d got=%d", i, wantLens[i], got)
		}
		if ch.Ordinal != i {
			t.Fatalf("chunk %d ordinal: got=%d", i, ch.Ordinal)
		}
		if i > 0 && ch.Start-chunks[i-1].Start != 800 {
			t.Fatalf("chunk %d stride: want=800 got=%d", i, ch.Start-chunks[i-1].Start)
		}
	}
}

func TestSplitEdgeCases(t *testing.T) {
	chunks, err := Split(domain.Document{ID: "empty"}, 1000, 200)
	if err != nil {
		t.Fatalf("empty: %v", err)
	}
	if len(chunks) != 0 {
		t.Fatalf("empty: want=0 chunks got=%d", len(chunks))
	}

	short := "a short policy summary"
	chunks, err = Split(domain.Document{ID: "short", Text: short}, 1000, 200)
	if err != nil {
		t.Fatalf("short: %v", err)
	}
	if len(chunks) != 1 || chunks[0].Text != short {
		t.Fatalf("short: want single chunk %q got=%v", short, chunks)
	}
}

func TestSplitRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name          string
		size, overlap int
	}{
		{"overlap equals size", 100, 100},
		{"overlap exceeds size", 100, 150},
		{"zero size", 0, 0},
		{"negative overlap", 100, -1},
	}
	for _, tc := range cases {
		_, err := Split(domain.Document{ID: "x", Text: "abc"}, tc.size, tc.overlap)
		var cfgErr *domain.ConfigError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("%s: want ConfigError got=%v", tc.name, err)
		}
	}
}

func TestSplitIsDeterministicAndReconstructs(t *testing.T) {
	text := strings.Repeat("Coverage applies to water damage; ünïcödé 保险 included. ", 97)
	doc := domain.Document{ID: "policy.pdf", Text: text}
	for _, cfg := range [][2]int{{1000, 200}, {64, 0}, {50, 49}, {7, 3}} {
		first, err := Split(doc, cfg[0], cfg[1])
		if err != nil {
			t.Fatalf("Split(%v): %v", cfg, err)
		}
		second, _ := Split(doc, cfg[0], cfg[1])
		if !reflect.DeepEqual(first, second) {
			t.Fatalf("Split(%v): not deterministic", cfg)
		}
		if got := Reconstruct(first); got != text {
			t.Fatalf("Reconstruct(%v): mismatch (len want=%d got=%d)", cfg, len(text), len(got))
		}
		for i := 1; i < len(first); i++ {
			overlap := first[i-1].End - first[i].Start
			if overlap < 0 || overlap >= cfg[0] {
				t.Fatalf("Split(%v): chunk %d overlap %d out of range", cfg, i, overlap)
			}
		}
	}
}

type byteTokenizer struct{}

func (byteTokenizer) Encode(text string) []int {
	out := make([]int, 0, len(text))
	for _, b := range []byte(text) {
		out = append(out, int(b))
	}
	return out
}

func (byteTokenizer) Decode(tokens []int) string {
	b := make([]byte, 0, len(tokens))
	for _, t := range tokens {
		b = append(b, byte(t))
	}
	return string(b)
}

func TestTokenWindows(t *testing.T) {
	c, err := NewWithTokenizer(Config{Size: 4, Overlap: 1}, byteTokenizer{})
	if err != nil {
		t.Fatalf("NewWithTokenizer: %v", err)
	}
	chunks := c.Split(domain.Document{ID: "t", Text: "abcdefghij"})
	want := []string{"abcd", "defg", "ghij", "j"}
	if len(chunks) != len(want) {
		t.Fatalf("chunk count: want=%d got=%d", len(want), len(chunks))
	}
	for i, ch := range chunks {
		if ch.Text != want[i] {
			t.Fatalf("chunk %d: want=%q got=%q", i, want[i], ch.Text)
		}
	}
}
