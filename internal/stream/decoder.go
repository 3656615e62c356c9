// Package stream decodes chat completion event streams and splits the
// accumulated reply into a visible answer and an optional reasoning segment.
package stream

import (
	"encoding/json"
	"errors"
	"io"
	"strings"
	"unicode/utf8"
)

const (
	dataPrefix   = "data:"
	doneSentinel = "[DONE]"
	readSize     = 4096
)

// ErrMalformedFrame marks a frame whose payload was not valid JSON. Such
// frames are skipped; Malformed reports how many were seen.
var ErrMalformedFrame = errors.New("malformed stream frame")

type deltaFrame struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Decoder pulls text deltas out of a server-sent event stream. Reads may split
// frames and multi-byte characters anywhere; both are reassembled.
type Decoder struct {
	r         io.Reader
	buf       []byte
	carry     []byte
	pending   string
	queue     []string
	eof       bool
	done      bool
	malformed int
	lastErr   error
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r, buf: make([]byte, readSize)}
}

// Next returns the next non-empty delta. It returns io.EOF after [DONE] or
// the end of the body, and the read error if the body fails mid-stream.
func (d *Decoder) Next() (string, error) {
	for {
		if len(d.queue) > 0 {
			delta := d.queue[0]
			d.queue = d.queue[1:]
			return delta, nil
		}
		if d.done {
			return "", io.EOF
		}
		if d.eof {
			d.finish()
			continue
		}

		n, err := d.r.Read(d.buf)
		if n > 0 {
			d.feed(d.buf[:n])
		}
		if errors.Is(err, io.EOF) {
			d.eof = true
		} else if err != nil {
			return "", err
		}
	}
}

// Malformed is the number of frames skipped because of bad JSON.
func (d *Decoder) Malformed() int { return d.malformed }

// LastMalformed is the decode error of the most recent skipped frame.
func (d *Decoder) LastMalformed() error { return d.lastErr }

func (d *Decoder) feed(b []byte) {
	data := append(d.carry, b...)
	cut := completeRunes(data)
	d.carry = append([]byte(nil), data[cut:]...)
	d.appendText(string(data[:cut]))
}

// completeRunes is the length of the longest prefix of b that does not end
// inside a multi-byte character.
func completeRunes(b []byte) int {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if utf8.FullRune(b[i:]) {
				return len(b)
			}
			return i
		}
	}
	return len(b)
}

func (d *Decoder) appendText(text string) {
	d.pending = strings.ReplaceAll(d.pending+text, "\r\n", "\n")
	for !d.done {
		i := strings.Index(d.pending, "\n\n")
		if i < 0 {
			return
		}
		frame := d.pending[:i]
		d.pending = d.pending[i+2:]
		d.decodeFrame(frame)
	}
}

func (d *Decoder) finish() {
	if len(d.carry) > 0 {
		// A truncated character at the very end decodes to U+FFFD.
		d.pending += string(d.carry)
		d.carry = nil
	}
	if !d.done && strings.TrimSpace(d.pending) != "" {
		d.decodeFrame(d.pending)
	}
	d.pending = ""
	d.done = true
}

func (d *Decoder) decodeFrame(frame string) {
	for _, line := range strings.Split(frame, "\n") {
		if !strings.HasPrefix(line, dataPrefix) {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, dataPrefix))
		if payload == "" {
			continue
		}
		if payload == doneSentinel {
			d.done = true
			return
		}

		var f deltaFrame
		if err := json.Unmarshal([]byte(payload), &f); err != nil {
			d.malformed++
			d.lastErr = errors.Join(ErrMalformedFrame, err)
			continue
		}
		if len(f.Choices) == 0 || f.Choices[0].Delta.Content == "" {
			continue
		}
		d.queue = append(d.queue, f.Choices[0].Delta.Content)
	}
}
