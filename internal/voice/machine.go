// Package voice arbitrates speech input and output for a conversation.
package voice

import (
	"errors"
	"fmt"
	"log"
	"sync"
)

type State int

const (
	Idle State = iota
	Listening
	Speaking
	// AwaitingUserTurn is conversation mode with neither the microphone nor
	// the speaker active.
	AwaitingUserTurn
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Listening:
		return "listening"
	case Speaking:
		return "speaking"
	case AwaitingUserTurn:
		return "awaiting_user_turn"
	}
	return "unknown"
}

type Event int

const (
	// EventListen means the recognizer has started.
	EventListen Event = iota
	// EventHeard means recognition ended with a final transcript.
	EventHeard
	// EventSilence means recognition ended without one, or failed.
	EventSilence
	// EventSpeak means the first queued utterance started playing.
	EventSpeak
	// EventDrained means the reply has been spoken in full.
	EventDrained
	EventStop
)

func (e Event) String() string {
	switch e {
	case EventListen:
		return "listen"
	case EventHeard:
		return "heard"
	case EventSilence:
		return "silence"
	case EventSpeak:
		return "speak"
	case EventDrained:
		return "drained"
	case EventStop:
		return "stop"
	}
	return "unknown"
}

var ErrIllegalTransition = errors.New("illegal voice transition")

// Recognizer is a speech-to-text session source. Start begins one session;
// the owner reports its lifecycle back with EventListen and EventHeard or
// EventSilence.
type Recognizer interface {
	Start() error
	Stop()
}

// Transition returns the state reached from s on ev. The microphone may not
// open while the speaker is active.
func Transition(s State, ev Event, conversation bool) (State, error) {
	rest := Idle
	if conversation {
		rest = AwaitingUserTurn
	}
	switch ev {
	case EventListen:
		if s == Speaking {
			return s, fmt.Errorf("%w: %s on %s", ErrIllegalTransition, ev, s)
		}
		return Listening, nil
	case EventHeard, EventSilence:
		if s != Listening {
			return s, nil
		}
		return rest, nil
	case EventSpeak:
		return Speaking, nil
	case EventDrained:
		if s != Speaking {
			return s, nil
		}
		return rest, nil
	case EventStop:
		return Idle, nil
	}
	return s, fmt.Errorf("%w: unknown event %d", ErrIllegalTransition, ev)
}

// Machine tracks the voice state of one conversation and restarts
// recognition when a spoken reply drains in conversation mode.
type Machine struct {
	rec      Recognizer
	onChange func(State)

	mu           sync.Mutex
	state        State
	conversation bool
	starting     bool
}

// NewMachine accepts a nil Recognizer; conversation mode then only tracks
// speaking.
func NewMachine(rec Recognizer, onChange func(State)) *Machine {
	return &Machine{rec: rec, onChange: onChange}
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Machine) Conversation() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conversation
}

// SetConversation turns conversation mode on or off. Turning it on starts
// listening when idle; turning it off stops the recognizer.
func (m *Machine) SetConversation(on bool) {
	m.mu.Lock()
	m.conversation = on
	m.mu.Unlock()

	if on {
		m.mu.Lock()
		var changed func()
		if m.state == Idle {
			changed = m.setLocked(AwaitingUserTurn)
		}
		m.mu.Unlock()
		if changed != nil {
			changed()
		}
		m.startIfIdle()
		return
	}
	if m.rec != nil {
		m.rec.Stop()
	}
	m.Fire(EventStop)
}

// Fire applies ev. An illegal transition leaves the state unchanged.
func (m *Machine) Fire(ev Event) error {
	m.mu.Lock()
	next, err := Transition(m.state, ev, m.conversation)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	switch ev {
	case EventListen, EventHeard, EventSilence, EventStop:
		m.starting = false
	}
	changed := m.setLocked(next)
	restart := ev == EventDrained && m.conversation
	m.mu.Unlock()

	if changed != nil {
		changed()
	}
	if restart {
		m.startIfIdle()
	}
	return nil
}

func (m *Machine) setLocked(next State) func() {
	if next == m.state {
		return nil
	}
	m.state = next
	if m.onChange == nil {
		return nil
	}
	return func() { m.onChange(next) }
}

// startIfIdle starts a recognition session unless one is open or already
// starting.
func (m *Machine) startIfIdle() {
	m.mu.Lock()
	if m.rec == nil || m.starting || m.state == Listening || m.state == Speaking {
		m.mu.Unlock()
		return
	}
	m.starting = true
	m.mu.Unlock()

	if err := m.rec.Start(); err != nil {
		log.Printf("Starting recognition failed: %v", err)
		m.mu.Lock()
		m.starting = false
		m.mu.Unlock()
	}
}

// StatusText is the line shown to the user for a state.
func StatusText(s State, conversation bool) string {
	switch s {
	case Listening:
		return "Listening…"
	case Speaking:
		return "Speaking…"
	case AwaitingUserTurn:
		if conversation {
			return "Ready to respond…"
		}
	}
	return ""
}
