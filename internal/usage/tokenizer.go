package usage

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// defaultTokenRatio approximates tokens per word when exact tokenization is
// unavailable.
const defaultTokenRatio = 1.5

// Tokenizer counts tokens with the cl100k_base encoding, degrading to a
// word-count estimate when the encoding cannot be loaded.
type Tokenizer struct {
	enc *tiktoken.Tiktoken
}

// NewTokenizer builds a tokenizer. Failure to load the encoding is not an
// error; the estimate path takes over.
func NewTokenizer() *Tokenizer {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return &Tokenizer{}
	}
	return &Tokenizer{enc: enc}
}

// Count returns the token count of a text.
func (t *Tokenizer) Count(text string) int {
	if t.enc != nil {
		return len(t.enc.Encode(text, nil, nil))
	}
	return int(float64(len(strings.Fields(text))) * defaultTokenRatio)
}

// Exact reports whether exact tokenization is in use.
func (t *Tokenizer) Exact() bool {
	return t.enc != nil
}
