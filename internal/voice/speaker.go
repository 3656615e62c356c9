package voice

import (
	"context"
	"log"
	"sync"
)

// Synthesizer speaks one utterance, returning when playback ends.
type Synthesizer interface {
	Speak(ctx context.Context, text string) error
}

type utterance struct {
	text string
	gen  int
}

// Speaker turns a growing think-free reply into utterances and plays them
// one at a time. It reports EventSpeak and EventDrained to the machine.
type Speaker struct {
	synth   Synthesizer
	machine *Machine
	onError func(error)

	queue chan utterance
	done  chan struct{}

	mu       sync.Mutex
	buffer   SpeechBuffer
	spoken   int
	pending  int
	ended    bool
	gen      int
	ctx      context.Context
	cancel   context.CancelFunc
	speaking bool
}

// NewSpeaker starts the playback worker. machine and onError may be nil.
func NewSpeaker(synth Synthesizer, machine *Machine, onError func(error)) *Speaker {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Speaker{
		synth:   synth,
		machine: machine,
		onError: onError,
		queue:   make(chan utterance, 64),
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
		ended:   true,
	}
	go s.run()
	return s
}

// BeginReply starts tracking a new reply from an empty spoken prefix.
func (s *Speaker) BeginReply() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffer.Reset()
	s.spoken = 0
	s.ended = false
}

// Say takes the whole speech-safe text so far and queues the part not yet
// handed to the buffer.
func (s *Speaker) Say(speechSafe string) {
	s.mu.Lock()
	if len(speechSafe) < s.spoken {
		s.spoken = len(speechSafe)
	}
	delta := speechSafe[s.spoken:]
	s.spoken = len(speechSafe)
	text, ok := s.buffer.Add(delta, false)
	gen := s.gen
	if ok {
		s.pending++
	}
	s.mu.Unlock()

	if ok {
		s.queue <- utterance{text: text, gen: gen}
	}
}

// EndReply flushes the buffer. EventDrained fires once the queue empties.
func (s *Speaker) EndReply() {
	s.mu.Lock()
	text, ok := s.buffer.Add("", true)
	s.ended = true
	gen := s.gen
	if ok {
		s.pending++
	}
	drained := !ok && s.pending == 0
	s.mu.Unlock()

	if ok {
		s.queue <- utterance{text: text, gen: gen}
	}
	if drained {
		s.finish()
	}
}

// Cancel drops queued utterances and stops the one playing.
func (s *Speaker) Cancel() {
	s.mu.Lock()
	s.gen++
	s.cancel()
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.buffer.Reset()
	s.ended = true
	s.mu.Unlock()
}

// Close stops the worker after the queue is played.
func (s *Speaker) Close() {
	close(s.queue)
	<-s.done
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()
}

func (s *Speaker) run() {
	defer close(s.done)
	for u := range s.queue {
		s.mu.Lock()
		stale := u.gen != s.gen
		ctx := s.ctx
		start := !stale && !s.speaking
		if start {
			s.speaking = true
		}
		s.mu.Unlock()

		if start && s.machine != nil {
			s.machine.Fire(EventSpeak)
		}
		if !stale {
			if err := s.synth.Speak(ctx, u.text); err != nil && ctx.Err() == nil {
				log.Printf("Speech output failed: %v", err)
				if s.onError != nil {
					s.onError(err)
				}
			}
		}

		s.mu.Lock()
		s.pending--
		drained := s.pending == 0 && s.ended
		s.mu.Unlock()
		if drained {
			s.finish()
		}
	}
}

func (s *Speaker) finish() {
	s.mu.Lock()
	was := s.speaking
	s.speaking = false
	s.mu.Unlock()
	switch {
	case s.machine == nil:
	case was:
		s.machine.Fire(EventDrained)
	case s.machine.Conversation():
		s.machine.startIfIdle()
	}
}
