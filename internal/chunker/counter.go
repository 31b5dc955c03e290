package chunker

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

var offlineBPE sync.Once

// TokenCounter measures text in tokens and can cut a token suffix.
type TokenCounter interface {
	Count(text string) int
	Tail(text string, n int) string
}

// WordCounter counts whitespace-delimited words. Non-empty text counts as
// at least one token.
type WordCounter struct{}

func (WordCounter) Count(text string) int {
	n := len(strings.Fields(text))
	if n == 0 {
		return 1
	}
	return n
}

func (WordCounter) Tail(text string, n int) string {
	words := strings.Fields(text)
	if n <= 0 || len(words) == 0 {
		return ""
	}
	if n > len(words) {
		n = len(words)
	}
	return strings.Join(words[len(words)-n:], " ")
}

// TiktokenCounter counts BPE tokens with a tiktoken encoding.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenCounter loads the named encoding, e.g. "cl100k_base", from the
// dictionaries embedded in the binary.
func NewTiktokenCounter(encoding string) (*TiktokenCounter, error) {
	offlineBPE.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	})
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, err
	}
	return &TiktokenCounter{enc: enc}, nil
}

func (c *TiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

func (c *TiktokenCounter) Tail(text string, n int) string {
	ids := c.enc.Encode(text, nil, nil)
	if n <= 0 || len(ids) == 0 {
		return ""
	}
	if n > len(ids) {
		n = len(ids)
	}
	return strings.TrimSpace(c.enc.Decode(ids[len(ids)-n:]))
}
