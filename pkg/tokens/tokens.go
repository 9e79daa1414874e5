package tokens

import (
	"log"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// fallbackCharsPerToken approximates one token as four characters when no
// tokenizer is available for the configured model.
const fallbackCharsPerToken = 4

const defaultModel = "gpt-3.5-turbo"

// Counter estimates token counts for a fixed model. When the tokenizer for
// the model cannot be loaded it degrades silently to a character-based
// approximation; the degradation is logged once.
type Counter struct {
	model string

	once     sync.Once
	encoding *tiktoken.Tiktoken
}

func NewCounter(model string) *Counter {
	if model == "" {
		model = defaultModel
	}
	return &Counter{model: model}
}

// Count returns the token length of text. It never fails: with no tokenizer
// the count is the rune length divided by four, floor division.
func (c *Counter) Count(text string) int {
	c.once.Do(func() {
		enc, err := tiktoken.EncodingForModel(c.model)
		if err != nil {
			log.Printf("tokens: no tokenizer for model %q, falling back to character approximation: %v", c.model, err)
			return
		}
		c.encoding = enc
	})

	if c.encoding == nil {
		return utf8.RuneCountInString(text) / fallbackCharsPerToken
	}
	return len(c.encoding.Encode(text, nil, nil))
}
