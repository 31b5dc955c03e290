// Package chunker splits documents into token-bounded, overlapping windows.
package chunker

import (
	"regexp"
	"strings"

	"github.com/timmy/portdesk/internal/logger"
)

var (
	blankLines = regexp.MustCompile(`\n{2,}`)
	hspace     = regexp.MustCompile(`[\t ]+`)
)

// Chunker is safe for concurrent use; it holds no per-call state.
type Chunker struct {
	counter TokenCounter
}

// New returns a Chunker using counter. Nil selects WordCounter.
func New(counter TokenCounter) *Chunker {
	if counter == nil {
		counter = WordCounter{}
	}
	return &Chunker{counter: counter}
}

// NewDefault prefers the cl100k_base encoder and falls back to word counting
// when the encoding cannot be loaded.
func NewDefault() *Chunker {
	tc, err := NewTiktokenCounter("cl100k_base")
	if err != nil {
		logger.Warn("tiktoken unavailable, counting words instead: %v", err)
		return New(WordCounter{})
	}
	return New(tc)
}

// Normalize collapses carriage returns, runs of blank lines and horizontal
// whitespace, then trims.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r", "\n")
	text = blankLines.ReplaceAllString(text, "\n\n")
	text = hspace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// Chunk splits text into windows of at most maxTokens tokens. Windows after
// the first are prefixed with the last overlapTokens tokens of the previous
// window. The window budget is reduced by the overlap, and the overlap
// shrinks further when the joined chunk would not fit. A single sentence
// longer than the budget is emitted whole.
func (c *Chunker) Chunk(text string, maxTokens, overlapTokens int) []string {
	text = Normalize(text)
	if text == "" {
		return []string{}
	}
	if maxTokens <= 0 || c.counter.Count(text) <= maxTokens {
		return []string{text}
	}
	if overlapTokens < 0 || overlapTokens >= maxTokens {
		overlapTokens = 0
	}

	windows := c.window(text, maxTokens-overlapTokens)
	if overlapTokens == 0 {
		return windows
	}

	out := make([]string, len(windows))
	out[0] = windows[0]
	for i := 1; i < len(windows); i++ {
		out[i] = c.prefix(windows[i-1], windows[i], overlapTokens, maxTokens)
	}
	return out
}

// prefix prepends up to overlap tokens from the end of prev to window,
// shrinking the overlap until the joined chunk fits maxTokens.
func (c *Chunker) prefix(prev, window string, overlap, maxTokens int) string {
	for n := overlap; n > 0; n-- {
		tail := c.counter.Tail(prev, n)
		if tail == "" {
			break
		}
		if joined := tail + "\n" + window; c.counter.Count(joined) <= maxTokens {
			return joined
		}
	}
	return window
}

// window greedily packs paragraphs, or the sentences of oversized
// paragraphs, into windows of at most budget tokens. Fit is measured on the
// joined window so separators count against the budget.
func (c *Chunker) window(text string, budget int) []string {
	var (
		windows []string
		current string
	)
	flush := func() {
		if joined := strings.TrimSpace(current); joined != "" {
			windows = append(windows, joined)
		}
		current = ""
	}
	add := func(unit string) {
		if current == "" {
			current = unit
			return
		}
		if candidate := current + "\n" + unit; c.counter.Count(candidate) <= budget {
			current = candidate
			return
		}
		flush()
		current = unit
	}

	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if c.counter.Count(para) <= budget {
			add(para)
			continue
		}
		for _, sent := range SplitSentences(para) {
			add(sent)
		}
	}
	flush()
	return windows
}

// SplitSentences cuts after '.', '!' or '?' when followed by whitespace.
func SplitSentences(para string) []string {
	var out []string
	start := 0
	for i := 0; i < len(para)-1; i++ {
		switch para[i] {
		case '.', '!', '?':
		default:
			continue
		}
		if !isSpace(para[i+1]) {
			continue
		}
		if s := strings.TrimSpace(para[start : i+1]); s != "" {
			out = append(out, s)
		}
		start = i + 1
	}
	if s := strings.TrimSpace(para[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\n' || b == '\t'
}

// NonEmpty drops whitespace-only chunks.
func NonEmpty(chunks []string) []string {
	out := chunks[:0:0]
	for _, ch := range chunks {
		if strings.TrimSpace(ch) != "" {
			out = append(out, ch)
		}
	}
	return out
}
