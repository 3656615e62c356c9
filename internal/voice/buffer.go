package voice

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// FlushChars is the buffered length at which text is spoken even mid-sentence.
const FlushChars = 140

var sentenceEnd = regexp.MustCompile(`[.!?。！？]\s*$`)

// SpeechBuffer collects reply text into utterances.
type SpeechBuffer struct {
	buf strings.Builder
}

// Add appends chunk and returns the trimmed utterance when the buffer
// should be spoken: at FlushChars, after sentence-final punctuation, or when
// flush is set. Whitespace-only utterances are dropped.
func (b *SpeechBuffer) Add(chunk string, flush bool) (string, bool) {
	b.buf.WriteString(chunk)
	text := b.buf.String()
	if !flush && utf8.RuneCountInString(text) < FlushChars && !sentenceEnd.MatchString(text) {
		return "", false
	}
	b.buf.Reset()
	text = strings.TrimSpace(text)
	return text, text != ""
}

func (b *SpeechBuffer) Pending() bool {
	return strings.TrimSpace(b.buf.String()) != ""
}

func (b *SpeechBuffer) Reset() { b.buf.Reset() }
