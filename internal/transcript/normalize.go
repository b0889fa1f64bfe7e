// Package transcript cleans streamed conversation text for display.
package transcript

import (
	"strings"

	"github.com/theirongolddev/voxdeck/internal/model"
)

// Normalize returns display text for a message.
//
// Messages without parts are returned as-is. Fragmented messages are joined,
// an utterance emitted twice back-to-back is collapsed to one copy, and then
// the repeat cleanups run in a fixed order: glued word repeats, spaced word
// repeats, repeated terminal punctuation, comma runs. If nothing survives the
// raw Content is returned instead.
func Normalize(msg model.Message) string {
	if len(msg.Parts) == 0 {
		return msg.Content
	}

	texts := make([]string, len(msg.Parts))
	for i, p := range msg.Parts {
		texts[i] = p.Text
	}
	text := collapseDoubled(strings.Join(texts, " "))

	text = collapseGluedRepeats(text)
	text = collapseSpacedRepeats(text)
	text = collapsePunctuationRuns(text)
	text = collapseCommaRuns(text)
	text = strings.Join(strings.Fields(text), " ")

	if text == "" {
		return msg.Content
	}
	return text
}

// NormalizeAll returns display text for each message, in order.
func NormalizeAll(msgs []model.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = Normalize(m)
	}
	return out
}

// collapseDoubled undoes an utterance that arrived twice concatenated:
// when the word list splits into two identical halves only the first is kept.
func collapseDoubled(joined string) string {
	words := strings.Fields(joined)
	n := len(words)
	if n < 2 || n%2 != 0 {
		return joined
	}
	first := strings.Join(words[:n/2], " ")
	if first == strings.Join(words[n/2:], " ") {
		return first
	}
	return joined
}

func isWordByte(c byte) bool {
	return c == '_' ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9')
}

// wordEnd returns the index just past the word-character run starting at i.
func wordEnd(s string, i int) int {
	for i < len(s) && isWordByte(s[i]) {
		i++
	}
	return i
}

// collapseGluedRepeats replaces a word-character sequence immediately
// followed by itself with a single copy. The scan is leftmost-first, tries
// the longest unit first and never revisits replaced text, so "BBlala"
// becomes "Bla".
func collapseGluedRepeats(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	i := 0
	for i < len(s) {
		if !isWordByte(s[i]) {
			b.WriteByte(s[i])
			i++
			continue
		}
		end := wordEnd(s, i)
		matched := 0
		for l := (end - i) / 2; l >= 1; l-- {
			if s[i:i+l] == s[i+l:i+2*l] {
				matched = l
				break
			}
		}
		if matched == 0 {
			b.WriteByte(s[i])
			i++
			continue
		}
		b.WriteString(s[i : i+matched])
		i += 2 * matched
	}
	return b.String()
}

// collapseSpacedRepeats replaces "word<whitespace>word" with "word" when both
// are whole words. Replacements do not chain: "a a a" becomes "a a".
func collapseSpacedRepeats(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	i := 0
	for i < len(s) {
		atBoundary := i == 0 || !isWordByte(s[i-1])
		if !atBoundary || !isWordByte(s[i]) {
			b.WriteByte(s[i])
			i++
			continue
		}

		end := wordEnd(s, i)
		word := s[i:end]

		j := end
		for j < len(s) && isSpace(s[j]) {
			j++
		}
		if j > end && strings.HasPrefix(s[j:], word) {
			k := j + len(word)
			if k == len(s) || !isWordByte(s[k]) {
				b.WriteString(word)
				i = k
				continue
			}
		}

		b.WriteString(word)
		i = end
	}
	return b.String()
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}

// collapsePunctuationRuns turns "!!!", "??" or "..." into a single mark.
// Mixed runs such as "?!" are left alone.
func collapsePunctuationRuns(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c == '!' || c == '?' || c == '.') && i > 0 && s[i-1] == c {
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func collapseCommaRuns(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == ',' && i > 0 && s[i-1] == ',' {
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
