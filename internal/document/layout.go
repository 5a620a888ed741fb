package document

import (
	"regexp"
	"strings"
)

type blockKind int

const (
	blockHeadline blockKind = iota
	blockBullet
	blockParagraph
)

type block struct {
	kind blockKind
	text string
}

var (
	bulletPrefix = regexp.MustCompile(`^\s*(?:[-*•–]|\d+[.)])\s+`)
	markdownNoise = strings.NewReplacer("**", "", "__", "", "`", "")
)

// parseBlocks turns LLM output into a headline, bullet items and paragraphs.
// The first non-list line becomes the headline; consecutive plain lines are
// joined into one paragraph.
func parseBlocks(text string) []block {
	var blocks []block
	var para []string
	haveHeadline := false

	flush := func() {
		if len(para) > 0 {
			blocks = append(blocks, block{kind: blockParagraph, text: strings.Join(para, " ")})
			para = nil
		}
	}

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(markdownNoise.Replace(raw))
		if line == "" {
			flush()
			continue
		}
		if loc := bulletPrefix.FindStringIndex(line); loc != nil {
			flush()
			blocks = append(blocks, block{kind: blockBullet, text: strings.TrimSpace(line[loc[1]:])})
			continue
		}
		line = strings.TrimSpace(strings.TrimLeft(line, "#"))
		if !haveHeadline {
			haveHeadline = true
			blocks = append(blocks, block{kind: blockHeadline, text: line})
			continue
		}
		para = append(para, line)
	}
	flush()
	return blocks
}
