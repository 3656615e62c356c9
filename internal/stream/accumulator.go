package stream

import "strings"

const (
	openTag  = "<think>"
	closeTag = "</think>"
)

// State tracks the first <think> region of a reply.
type State int

const (
	NotStarted State = iota
	InThink
	AfterThink
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case InThink:
		return "in_think"
	case AfterThink:
		return "after_think"
	}
	return "unknown"
}

// Snapshot is the accumulated reply after a delta.
type Snapshot struct {
	Raw       string
	Answer    string
	Reasoning string
	State     State
}

// Accumulator assembles one assistant reply from stream deltas. Tags are
// tracked incrementally, so a tag split across deltas is still recognised.
//
// With reasoning enabled, the first complete <think>...</think> region
// becomes Reasoning and the text around it the Answer. Until that region
// closes, Answer is the text before it and Reasoning is empty. With reasoning
// disabled, every <think> region is removed from Answer, as is an unclosed
// one through the end of the text.
type Accumulator struct {
	reasoning bool
	raw       strings.Builder
	region    firstRegion
	stripped  stripper
	finished  bool
}

func NewAccumulator(reasoning bool) *Accumulator {
	return &Accumulator{reasoning: reasoning}
}

func (a *Accumulator) Append(delta string) Snapshot {
	if delta != "" && !a.finished {
		a.raw.WriteString(delta)
		a.region.feed(delta)
		a.stripped.feed(delta)
	}
	return a.Snapshot()
}

// Finish releases text held back as a possible partial tag. Later deltas
// are ignored.
func (a *Accumulator) Finish() Snapshot {
	if !a.finished {
		a.region.flush()
		a.stripped.flush()
		a.finished = true
	}
	return a.Snapshot()
}

func (a *Accumulator) Raw() string { return a.raw.String() }

func (a *Accumulator) Answer() string {
	if !a.reasoning {
		return strings.TrimSpace(a.stripped.out.String())
	}
	if a.region.state == AfterThink {
		return strings.TrimSpace(a.region.before.String() + a.region.after.String())
	}
	return strings.TrimSpace(a.region.before.String())
}

func (a *Accumulator) Reasoning() string {
	if !a.reasoning || a.region.state != AfterThink {
		return ""
	}
	return strings.TrimSpace(a.region.inner.String())
}

// SpeechSafe is the reply with every think region removed, untrimmed. It
// only ever grows, so callers can speak it by suffix.
func (a *Accumulator) SpeechSafe() string { return a.stripped.out.String() }

func (a *Accumulator) State() State { return a.region.state }

func (a *Accumulator) Snapshot() Snapshot {
	return Snapshot{
		Raw:       a.Raw(),
		Answer:    a.Answer(),
		Reasoning: a.Reasoning(),
		State:     a.region.state,
	}
}

// firstRegion splits text around the first <think>...</think> region.
type firstRegion struct {
	state                State
	held                 string
	before, inner, after strings.Builder
}

func (r *firstRegion) feed(delta string) {
	s := r.held + delta
	r.held = ""
	for s != "" {
		switch r.state {
		case NotStarted:
			head, rest, held, found := cutTag(s, openTag)
			r.before.WriteString(head)
			if !found {
				r.held = held
				return
			}
			r.state, s = InThink, rest
		case InThink:
			head, rest, held, found := cutTag(s, closeTag)
			r.inner.WriteString(head)
			if !found {
				r.held = held
				return
			}
			r.state, s = AfterThink, rest
		case AfterThink:
			r.after.WriteString(s)
			return
		}
	}
}

func (r *firstRegion) flush() {
	switch r.state {
	case NotStarted:
		r.before.WriteString(r.held)
	case InThink:
		r.inner.WriteString(r.held)
	}
	r.held = ""
}

// stripper drops every think region, including an unclosed trailing one.
type stripper struct {
	inside bool
	held   string
	out    strings.Builder
}

func (p *stripper) feed(delta string) {
	s := p.held + delta
	p.held = ""
	for s != "" {
		if !p.inside {
			head, rest, held, found := cutTag(s, openTag)
			p.out.WriteString(head)
			if !found {
				p.held = held
				return
			}
			p.inside, s = true, rest
			continue
		}
		_, rest, held, found := cutTag(s, closeTag)
		if !found {
			p.held = held
			return
		}
		p.inside, s = false, rest
	}
}

func (p *stripper) flush() {
	if !p.inside {
		p.out.WriteString(p.held)
	}
	p.held = ""
}

// cutTag splits s at the first ASCII case-insensitive match of tag. When
// there is no match, held is the longest tail of s that could still become
// tag once more text arrives, and head is everything before it.
func cutTag(s, tag string) (head, rest, held string, found bool) {
	if i := indexFold(s, tag); i >= 0 {
		return s[:i], s[i+len(tag):], "", true
	}
	n := partialSuffix(s, tag)
	return s[:len(s)-n], "", s[len(s)-n:], false
}

func indexFold(s, tag string) int {
	for i := 0; i+len(tag) <= len(s); i++ {
		if equalFoldASCII(s[i:i+len(tag)], tag) {
			return i
		}
	}
	return -1
}

func partialSuffix(s, tag string) int {
	for n := min(len(tag)-1, len(s)); n > 0; n-- {
		if equalFoldASCII(s[len(s)-n:], tag[:n]) {
			return n
		}
	}
	return 0
}

func equalFoldASCII(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		if lowerASCII(a[i]) != lowerASCII(b[i]) {
			return false
		}
	}
	return true
}

func lowerASCII(c byte) byte {
	if 'A' <= c && c <= 'Z' {
		return c + 'a' - 'A'
	}
	return c
}
