package instrument

import (
	"strings"
	"unicode/utf8"
)

// textBuffer accumulates streamed content up to maxBytes. Bytes past the
// bound are dropped and flagged; cuts land on rune boundaries. A token-like
// run split by the cut is dropped whole so a partial credential cannot slip
// under the redaction patterns.
type textBuffer struct {
	maxBytes  int
	body      strings.Builder
	truncated bool
}

func newTextBuffer(maxBytes int) textBuffer {
	if maxBytes < 0 {
		maxBytes = 0
	}
	return textBuffer{maxBytes: maxBytes}
}

func (b *textBuffer) Add(text string) {
	if text == "" || b.truncated {
		return
	}

	remaining := b.maxBytes - b.body.Len()
	if len(text) <= remaining {
		b.body.WriteString(text)
		return
	}

	kept := cutRunes(text, remaining)
	b.body.WriteString(kept)
	b.truncated = true
	if isTokenByte(text[len(kept)]) {
		b.dropTrailingRun()
	}
}

func (b *textBuffer) dropTrailingRun() {
	body := b.body.String()
	trimmed := trimTokenRun(body)
	if len(trimmed) == len(body) {
		return
	}
	b.body.Reset()
	b.body.WriteString(trimmed)
}

func (b *textBuffer) String() string {
	return b.body.String()
}

func (b *textBuffer) Truncated() bool {
	return b.truncated
}

// cutRunes returns the longest prefix of text that is at most n bytes and
// does not split a UTF-8 sequence.
func cutRunes(text string, n int) string {
	if n >= len(text) {
		return text
	}
	for n > 0 && !utf8.RuneStart(text[n]) {
		n--
	}
	return text[:n]
}

// trimTokenRun removes the trailing run of key-alphabet bytes.
func trimTokenRun(text string) string {
	end := len(text)
	for end > 0 && isTokenByte(text[end-1]) {
		end--
	}
	return text[:end]
}

// isTokenByte reports whether c can appear inside an API key, token or JWT.
func isTokenByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	}
	switch c {
	case '-', '_', '.', '+', '/', '=':
		return true
	}
	return false
}

// boundText applies the byte bound to a complete text.
func boundText(text string, maxBytes int) (string, bool) {
	if len(text) <= maxBytes {
		return text, false
	}
	return cutRunes(text, maxBytes), true
}
