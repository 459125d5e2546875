package lm

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer counts the tokens a text encodes to.
type Tokenizer interface {
	Count(text string) int
}

// Tiktoken is a BPE tokenizer backed by tiktoken-go.
type Tiktoken struct {
	enc *tiktoken.Tiktoken
}

// NewTiktoken loads the named encoding, e.g. "r50k_base" for GPT-2.
// tiktoken-go fetches the BPE ranks on first use and caches them in
// TIKTOKEN_CACHE_DIR when that is set.
func NewTiktoken(encoding string) (*Tiktoken, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrTokenizer, encoding, err)
	}
	return &Tiktoken{enc: enc}, nil
}

// Count returns the number of BPE tokens in text.
func (t *Tiktoken) Count(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}

// FieldsTokenizer counts whitespace-separated words. It stands in for a BPE
// tokenizer where only emptiness matters.
type FieldsTokenizer struct{}

// Count returns the number of whitespace-separated words in text.
func (FieldsTokenizer) Count(text string) int {
	return len(strings.Fields(text))
}
