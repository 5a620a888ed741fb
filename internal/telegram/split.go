package telegram

import "strings"

const (
	// MessageLimit is the Bot API hard cap on message length.
	MessageLimit = 4096
	// SafeLimit leaves headroom below MessageLimit for entity encoding.
	SafeLimit = 3900
)

// SplitText cuts text into ordered chunks of at most limit characters,
// preferring blank-line boundaries, then line boundaries, then hard cuts.
// Joined chunks are trimmed; hard-cut pieces keep their whitespace. Blank
// chunks are dropped.
func SplitText(text string, limit int) []string {
	if limit <= 0 {
		limit = SafeLimit
	}
	if runeLen(text) <= limit {
		if strings.TrimSpace(text) == "" {
			return nil
		}
		return []string{strings.TrimSpace(text)}
	}

	s := splitter{limit: limit}
	for _, block := range strings.Split(text, "\n\n") {
		if s.tryAppend(block, "\n\n") {
			continue
		}
		s.flush()
		if runeLen(block) <= limit {
			s.buf = block
			continue
		}
		for _, line := range strings.Split(block, "\n") {
			if s.tryAppend(line, "\n") {
				continue
			}
			s.flush()
			if runeLen(line) <= limit {
				s.buf = line
				continue
			}
			for r := []rune(line); len(r) > 0; {
				n := min(limit, len(r))
				s.parts = append(s.parts, chunk{text: string(r[:n]), cut: true})
				r = r[n:]
			}
		}
	}
	s.flush()

	out := make([]string, 0, len(s.parts))
	for _, p := range s.parts {
		text := p.text
		if !p.cut {
			text = strings.TrimSpace(text)
		}
		if strings.TrimSpace(text) != "" {
			out = append(out, text)
		}
	}
	return out
}

type chunk struct {
	text string
	cut  bool
}

type splitter struct {
	limit int
	buf   string
	parts []chunk
}

// tryAppend joins piece onto the buffer with sep if the result fits.
func (s *splitter) tryAppend(piece, sep string) bool {
	candidate := piece
	if s.buf != "" {
		candidate = s.buf + sep + piece
	}
	if runeLen(candidate) > s.limit {
		return false
	}
	s.buf = candidate
	return true
}

func (s *splitter) flush() {
	if s.buf != "" {
		s.parts = append(s.parts, chunk{text: s.buf})
		s.buf = ""
	}
}

func runeLen(s string) int {
	return len([]rune(s))
}
