package instrument

import (
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// tokenCounter estimates token counts with the o200k_base encoding. The
// codec is loaded on first use; if it cannot be loaded the count falls back
// to one token per four bytes.
type tokenCounter struct {
	once  sync.Once
	codec tokenizer.Codec
	err   error
}

func (c *tokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	c.once.Do(func() {
		c.codec, c.err = tokenizer.Get(tokenizer.O200kBase)
	})
	if c.err == nil && c.codec != nil {
		if count, err := c.codec.Count(text); err == nil {
			return count
		}
	}
	return (len(text) + 3) / 4
}
