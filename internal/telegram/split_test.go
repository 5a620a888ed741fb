package telegram

import (
	"strings"
	"testing"
	"unicode"
)

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func TestSplitTextShortIsSingleChunk(t *testing.T) {
	got := SplitText("  hello  ", 100)
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("unexpected chunks %#v", got)
	}
	if got := SplitText(" \n ", 100); len(got) != 0 {
		t.Fatalf("blank text should yield no chunks, got %#v", got)
	}
}

func TestSplitTextBoundaryPreference(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		limit int
		want  []string
	}{
		{
			name:  "blank lines first",
			text:  "aaaa\nbbbb\n\ncccc",
			limit: 10,
			want:  []string{"aaaa\nbbbb", "cccc"},
		},
		{
			name:  "blocks are packed",
			text:  "aa\n\nbb\n\ncc\n\ndd",
			limit: 6,
			want:  []string{"aa\n\nbb", "cc\n\ndd"},
		},
		{
			name:  "newline inside oversized block",
			text:  "aaaa\nbbbb\ncccc",
			limit: 9,
			want:  []string{"aaaa\nbbbb", "cccc"},
		},
		{
			name:  "hard cut for long line",
			text:  "abcdefghijkl",
			limit: 5,
			want:  []string{"abcde", "fghij", "kl"},
		},
		{
			name:  "hard cut keeps spaces",
			text:  "aaaa bbbb",
			limit: 5,
			want:  []string{"aaaa ", "bbbb"},
		},
		{
			name:  "hard cut inside oversized block",
			text:  "xx\nabc defgh",
			limit: 4,
			want:  []string{"xx", "abc ", "defg", "h"},
		},
		{
			name:  "cyrillic counts characters not bytes",
			text:  "привет мир",
			limit: 6,
			want:  []string{"привет", " мир"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := SplitText(tc.text, tc.limit)
			if strings.Join(got, "|") != strings.Join(tc.want, "|") {
				t.Fatalf("SplitText(%q, %d) = %#v, want %#v", tc.text, tc.limit, got, tc.want)
			}
		})
	}
}

func TestSplitTextProperties(t *testing.T) {
	para := strings.Repeat("word ", 150) // 750 chars
	inputs := []string{
		strings.Repeat(para+"\n\n", 12),
		strings.Repeat(para+"\n", 12),
		strings.Repeat("x", 9000),
		strings.Repeat("строка\n", 1500),
		strings.Repeat(para, 3) + "\n\n" + strings.Repeat("y", 5000) + "\n" + para,
	}
	for i, text := range inputs {
		chunks := SplitText(text, SafeLimit)
		if len(chunks) < 2 {
			t.Fatalf("input %d: expected several chunks, got %d", i, len(chunks))
		}
		for j, c := range chunks {
			if n := runeLen(c); n > SafeLimit {
				t.Fatalf("input %d chunk %d has %d chars", i, j, n)
			}
			if strings.TrimSpace(c) == "" {
				t.Fatalf("input %d chunk %d is blank", i, j)
			}
		}
		if stripSpace(strings.Join(chunks, "")) != stripSpace(text) {
			t.Fatalf("input %d: concatenation does not reproduce the text", i)
		}
		total := runeLen(stripSpace(text))
		if min := (total + SafeLimit - 1) / SafeLimit; len(chunks) > 2*min+1 {
			t.Fatalf("input %d: %d chunks for %d chars", i, len(chunks), total)
		}
	}
}

func TestSplitTextMinimalForPackedBlocks(t *testing.T) {
	block := strings.Repeat("z", 1000)
	text := strings.Repeat(block+"\n\n", 7) // 7 blocks, 3 fit per chunk
	if got := SplitText(text, SafeLimit); len(got) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(got))
	}
}
