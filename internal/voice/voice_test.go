package voice

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		from         State
		ev           Event
		conversation bool
		want         State
		illegal      bool
	}{
		{Idle, EventListen, false, Listening, false},
		{AwaitingUserTurn, EventListen, true, Listening, false},
		{Speaking, EventListen, true, Speaking, true},
		{Listening, EventHeard, true, AwaitingUserTurn, false},
		{Listening, EventSilence, false, Idle, false},
		{Idle, EventHeard, false, Idle, false},
		{Listening, EventSpeak, true, Speaking, false},
		{Speaking, EventDrained, true, AwaitingUserTurn, false},
		{Speaking, EventDrained, false, Idle, false},
		{Listening, EventDrained, true, Listening, false},
		{Speaking, EventStop, true, Idle, false},
	}
	for _, tt := range tests {
		got, err := Transition(tt.from, tt.ev, tt.conversation)
		name := tt.from.String() + "+" + tt.ev.String()
		if tt.illegal {
			assert.ErrorIs(t, err, ErrIllegalTransition, name)
		} else {
			assert.NoError(t, err, name)
		}
		assert.Equal(t, tt.want, got, name)
	}
}

type fakeRecognizer struct {
	mu      sync.Mutex
	starts  int
	stops   int
	failing bool
}

func (r *fakeRecognizer) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts++
	if r.failing {
		return errors.New("no microphone")
	}
	return nil
}

func (r *fakeRecognizer) Stop() {
	r.mu.Lock()
	r.stops++
	r.mu.Unlock()
}

func (r *fakeRecognizer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.starts
}

func TestMachine_ConversationRestartsAfterDrain(t *testing.T) {
	rec := &fakeRecognizer{}
	var states []State
	m := NewMachine(rec, func(s State) { states = append(states, s) })

	m.SetConversation(true)
	assert.Equal(t, 1, rec.count())
	m.SetConversation(true)
	assert.Equal(t, 1, rec.count(), "no second start while one is starting")

	require.NoError(t, m.Fire(EventListen))
	require.NoError(t, m.Fire(EventHeard))
	assert.Equal(t, AwaitingUserTurn, m.State())

	require.NoError(t, m.Fire(EventSpeak))
	assert.ErrorIs(t, m.Fire(EventListen), ErrIllegalTransition)
	assert.Equal(t, Speaking, m.State())

	require.NoError(t, m.Fire(EventDrained))
	assert.Equal(t, 2, rec.count())
	assert.Equal(t, AwaitingUserTurn, m.State())

	m.SetConversation(false)
	assert.Equal(t, Idle, m.State())
	assert.Equal(t, 1, rec.stops)
	assert.Equal(t, []State{AwaitingUserTurn, Listening, AwaitingUserTurn, Speaking, AwaitingUserTurn, Idle}, states)
}

func TestMachine_StartFailureAllowsRetry(t *testing.T) {
	rec := &fakeRecognizer{failing: true}
	m := NewMachine(rec, nil)
	m.SetConversation(true)
	m.SetConversation(true)
	assert.Equal(t, 2, rec.count())
}

func TestMachine_NoRestartOutsideConversation(t *testing.T) {
	rec := &fakeRecognizer{}
	m := NewMachine(rec, nil)
	require.NoError(t, m.Fire(EventSpeak))
	require.NoError(t, m.Fire(EventDrained))
	assert.Zero(t, rec.count())
	assert.Equal(t, Idle, m.State())
}

func TestStatusText(t *testing.T) {
	assert.Equal(t, "Listening…", StatusText(Listening, true))
	assert.Equal(t, "Speaking…", StatusText(Speaking, false))
	assert.Equal(t, "Ready to respond…", StatusText(AwaitingUserTurn, true))
	assert.Empty(t, StatusText(Idle, true))
}

func TestSpeechBuffer(t *testing.T) {
	var b SpeechBuffer

	_, ok := b.Add("Hello there", false)
	assert.False(t, ok)
	assert.True(t, b.Pending())

	text, ok := b.Add(", friend. ", false)
	require.True(t, ok)
	assert.Equal(t, "Hello there, friend.", text)
	assert.False(t, b.Pending())

	text, ok = b.Add("你好。", false)
	require.True(t, ok)
	assert.Equal(t, "你好。", text)

	long := strings.Repeat("a", FlushChars)
	text, ok = b.Add(long, false)
	require.True(t, ok)
	assert.Equal(t, long, text)

	_, ok = b.Add("tail", false)
	assert.False(t, ok)
	text, ok = b.Add("", true)
	require.True(t, ok)
	assert.Equal(t, "tail", text)

	_, ok = b.Add("   ", true)
	assert.False(t, ok)
}

type recordingSynth struct {
	mu    sync.Mutex
	said  []string
	delay time.Duration
}

func (r *recordingSynth) Speak(ctx context.Context, text string) error {
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.mu.Lock()
	r.said = append(r.said, text)
	r.mu.Unlock()
	return nil
}

func (r *recordingSynth) utterances() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.said...)
}

func TestSpeaker_SpeaksSuffixesInOrder(t *testing.T) {
	synth := &recordingSynth{delay: 5 * time.Millisecond}
	rec := &fakeRecognizer{}
	m := NewMachine(rec, nil)
	m.SetConversation(true)
	require.NoError(t, m.Fire(EventSilence))
	startsBefore := rec.count()

	s := NewSpeaker(synth, m, nil)
	s.BeginReply()
	s.Say("First sentence.")
	s.Say("First sentence. Second")
	s.Say("First sentence. Second part!")
	s.Say("First sentence. Second part! trailing")
	s.EndReply()

	require.Eventually(t, func() bool { return rec.count() == startsBefore+1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"First sentence.", "Second part!", "trailing"}, synth.utterances())
	assert.Equal(t, AwaitingUserTurn, m.State())
	s.Close()
}

func TestSpeaker_EmptyReplyRestartsRecognition(t *testing.T) {
	rec := &fakeRecognizer{}
	m := NewMachine(rec, nil)
	m.SetConversation(true)
	require.NoError(t, m.Fire(EventSilence))

	s := NewSpeaker(&recordingSynth{}, m, nil)
	defer s.Close()
	s.BeginReply()
	s.EndReply()
	assert.Equal(t, 2, rec.count())
}

func TestSpeaker_Cancel(t *testing.T) {
	synth := &recordingSynth{delay: 50 * time.Millisecond}
	s := NewSpeaker(synth, nil, nil)
	s.BeginReply()
	s.Say("One. ")
	s.Say("One. Two. ")
	s.Say("One. Two. Three.")
	s.Cancel()
	s.Close()
	assert.Empty(t, synth.utterances())
}

func TestExecSynthesizer(t *testing.T) {
	_, err := NewExecSynthesizer("  ")
	assert.Error(t, err)
	_, err = NewExecSynthesizer("definitely-not-a-command-xyz")
	assert.Error(t, err)

	dir := t.TempDir()
	out := filepath.Join(dir, "spoken.txt")
	tee, err := NewExecSynthesizer("tee " + out)
	require.NoError(t, err)
	require.NoError(t, tee.Speak(context.Background(), "hello"))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))

	touch, err := NewExecSynthesizer("touch {}")
	require.NoError(t, err)
	marker := filepath.Join(dir, "marker")
	require.NoError(t, touch.Speak(context.Background(), marker))
	assert.FileExists(t, marker)

	fail, err := NewExecSynthesizer("false")
	require.NoError(t, err)
	assert.Error(t, fail.Speak(context.Background(), "x"))
}
