package client

import (
	"context"
	"errors"
	"io"
	"log"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/localchat/ragchat/internal/core"
	"github.com/localchat/ragchat/internal/store"
	"github.com/localchat/ragchat/internal/stream"
)

const (
	FallbackReply = "Sorry, I couldn't reach the local model. Is LM Studio running?"

	StatusHistoryUnavailable = "Unable to save this chat to history."
	StatusReplyNotSaved      = "Assistant reply was not saved."

	reasoningPrompt   = "Include a <think>...</think> section with concise reasoning, followed by the final answer."
	noReasoningPrompt = "Respond with only the final answer. Do not include <think> tags or hidden reasoning. /no_think"

	maxTitleChars = 80
)

var (
	ErrEmptyInput = errors.New("message is empty")
	ErrBusy       = errors.New("a reply is still streaming")
)

// Turn is one message in the visible conversation.
type Turn struct {
	ID        string
	Role      string
	Text      string
	Reasoning string
	Pending   bool
}

// Update reports the assistant turn after one stream step.
type Update struct {
	Turn   Turn
	Done   bool
	Failed bool
}

// Speech receives the think-free reply text as it grows.
type Speech interface {
	BeginReply()
	Say(speechSafe string)
	EndReply()
}

type Option func(*Conversation)

func WithStatusHandler(fn func(string)) Option {
	return func(c *Conversation) { c.onStatus = fn }
}

func WithSpeech(s Speech) Option {
	return func(c *Conversation) { c.speech = s }
}

// WithStreaming off makes document-less sends use the non-streaming endpoint.
func WithStreaming(on bool) Option {
	return func(c *Conversation) { c.streaming = on }
}

func WithReasoning(on bool) Option {
	return func(c *Conversation) { c.reasoning = on }
}

// Conversation is the state of one chat view. Only one send may be in flight.
type Conversation struct {
	api       API
	persister *Persister
	speech    Speech
	onStatus  func(string)

	mu        sync.Mutex
	turns     []Turn
	sessionID int64
	reasoning bool
	voice     bool
	streaming bool
	sending   bool
	docName   string
	docText   string
	status    string
}

func NewConversation(api API, opts ...Option) *Conversation {
	c := &Conversation{api: api, streaming: true}
	for _, opt := range opts {
		opt(c)
	}
	c.persister = NewPersister(api, func(err *PersistenceError) {
		log.Printf("Persistence failed: %v", err)
		c.setStatus(err.Status)
	})
	return c
}

// Begin starts a send. The returned Exchange is advanced with Step until it
// reports Done.
func (c *Conversation) Begin(ctx context.Context, input string) (*Exchange, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return nil, ErrEmptyInput
	}

	c.mu.Lock()
	if c.sending {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	c.sending = true
	c.status = ""
	c.turns = append(c.turns,
		Turn{ID: uuid.NewString(), Role: core.RoleUser, Text: trimmed},
		Turn{ID: uuid.NewString(), Role: core.RoleAssistant, Pending: true},
	)
	assistant := len(c.turns) - 1
	payload := c.payloadLocked()
	reasoning, docText, streaming := c.reasoning, c.docText, c.streaming
	speak := c.voice && c.speech != nil
	sessionID := c.sessionID
	c.mu.Unlock()

	c.notifyStatus("")

	if sessionID == 0 {
		session, err := c.api.CreateSession(ctx, sessionTitle(trimmed))
		if err != nil {
			log.Printf("Creating session failed: %v", err)
			c.setStatus(StatusHistoryUnavailable)
		} else {
			sessionID = session.ID
			c.mu.Lock()
			c.sessionID = sessionID
			c.mu.Unlock()
		}
	}
	if sessionID != 0 {
		if err := c.persister.Enqueue(sessionID, core.RoleUser, trimmed, StatusHistoryUnavailable); err != nil {
			c.setStatus(StatusHistoryUnavailable)
		}
	}

	ex := &Exchange{
		conv:      c,
		index:     assistant,
		sessionID: sessionID,
		acc:       stream.NewAccumulator(reasoning),
		speak:     speak,
	}
	if speak {
		c.speech.BeginReply()
	}

	if !streaming && docText == "" {
		reply, err := c.api.Complete(ctx, payload)
		if err != nil {
			ex.startErr = err
		} else {
			ex.source = &oneShot{text: reply}
		}
		return ex, nil
	}

	body, err := c.api.StreamChat(ctx, payload, docText)
	if err != nil {
		ex.startErr = err
		return ex, nil
	}
	ex.body = body
	ex.source = stream.NewDecoder(body)
	return ex, nil
}

// Send runs a whole exchange, reporting every step to onUpdate.
func (c *Conversation) Send(ctx context.Context, input string, onUpdate func(Update)) (Turn, error) {
	ex, err := c.Begin(ctx, input)
	if err != nil {
		return Turn{}, err
	}
	for {
		update, err := ex.Step()
		if onUpdate != nil {
			onUpdate(update)
		}
		if update.Done {
			return update.Turn, err
		}
	}
}

// payloadLocked is the system prompt followed by every turn that has text.
func (c *Conversation) payloadLocked() []core.ChatTurn {
	prompt := noReasoningPrompt
	if c.reasoning {
		prompt = reasoningPrompt
	}
	messages := []core.ChatTurn{{Role: core.RoleSystem, Content: prompt}}
	for _, t := range c.turns {
		if t.Role == core.RoleAssistant && t.Text == "" {
			continue
		}
		messages = append(messages, core.ChatTurn{Role: t.Role, Content: t.Text})
	}
	return messages
}

func sessionTitle(input string) string {
	runes := []rune(input)
	if len(runes) > maxTitleChars {
		return string(runes[:maxTitleChars]) + "…"
	}
	return input
}

func (c *Conversation) setStatus(status string) {
	c.mu.Lock()
	c.status = status
	c.mu.Unlock()
	c.notifyStatus(status)
}

func (c *Conversation) notifyStatus(status string) {
	if c.onStatus != nil {
		c.onStatus(status)
	}
}

func (c *Conversation) updateTurn(index int, fn func(*Turn)) Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.turns[index])
	return c.turns[index]
}

func (c *Conversation) finishSend() {
	c.mu.Lock()
	c.sending = false
	c.mu.Unlock()
}

type deltaSource interface {
	Next() (string, error)
}

type oneShot struct {
	text string
	done bool
}

func (o *oneShot) Next() (string, error) {
	if o.done || o.text == "" {
		return "", io.EOF
	}
	o.done = true
	return o.text, nil
}

// Exchange is one in-flight assistant reply. Each Step consumes one delta,
// including any speech it triggers, before the next read happens.
type Exchange struct {
	conv      *Conversation
	index     int
	sessionID int64
	acc       *stream.Accumulator
	source    deltaSource
	body      io.Closer
	startErr  error
	speak     bool
	final     *Update
}

func (e *Exchange) Step() (Update, error) {
	if e.final != nil {
		return *e.final, nil
	}
	if e.startErr != nil {
		return e.fail(e.startErr)
	}

	delta, err := e.source.Next()
	if errors.Is(err, io.EOF) {
		return e.succeed()
	}
	if err != nil {
		return e.fail(err)
	}

	snap := e.acc.Append(delta)
	turn := e.conv.updateTurn(e.index, func(t *Turn) {
		t.Text, t.Reasoning = snap.Answer, snap.Reasoning
	})
	if e.speak {
		e.conv.speech.Say(e.acc.SpeechSafe())
	}
	return Update{Turn: turn}, nil
}

// Close abandons the exchange; the turn keeps whatever arrived so far.
func (e *Exchange) Close() {
	if e.final == nil {
		e.succeed()
	}
}

func (e *Exchange) succeed() (Update, error) {
	snap := e.acc.Finish()
	e.closeBody()
	turn := e.conv.updateTurn(e.index, func(t *Turn) {
		t.Text, t.Reasoning, t.Pending = snap.Answer, snap.Reasoning, false
	})
	if e.speak {
		e.conv.speech.Say(e.acc.SpeechSafe())
		e.conv.speech.EndReply()
	}
	if e.sessionID != 0 && snap.Answer != "" {
		if err := e.conv.persister.Enqueue(e.sessionID, core.RoleAssistant, snap.Answer, StatusReplyNotSaved); err != nil {
			e.conv.setStatus(StatusReplyNotSaved)
		}
	}
	e.conv.finishSend()
	e.final = &Update{Turn: turn, Done: true}
	return *e.final, nil
}

func (e *Exchange) fail(err error) (Update, error) {
	log.Printf("Chat request failed: %v", err)
	e.acc.Finish()
	e.closeBody()
	turn := e.conv.updateTurn(e.index, func(t *Turn) {
		t.Text, t.Reasoning, t.Pending = FallbackReply, "", false
	})
	if e.speak {
		e.conv.speech.EndReply()
	}
	e.conv.finishSend()
	e.final = &Update{Turn: turn, Done: true, Failed: true}
	return *e.final, err
}

func (e *Exchange) closeBody() {
	if e.body != nil {
		e.body.Close()
		e.body = nil
	}
}

// NewChat clears the view and detaches from the current session.
func (c *Conversation) NewChat() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sending {
		return ErrBusy
	}
	c.turns = nil
	c.sessionID = 0
	c.status = ""
	return nil
}

// LoadSession replaces the view with a stored session. System messages are
// not shown.
func (c *Conversation) LoadSession(ctx context.Context, sessionID int64) error {
	c.mu.Lock()
	busy := c.sending
	c.mu.Unlock()
	if busy {
		return ErrBusy
	}

	messages, err := c.api.GetMessages(ctx, sessionID)
	if err != nil {
		return err
	}
	turns := make([]Turn, 0, len(messages))
	for _, m := range messages {
		if m.Role == core.RoleSystem {
			continue
		}
		turns = append(turns, Turn{ID: strconv.FormatInt(m.ID, 10), Role: m.Role, Text: m.Content})
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// A send may have begun while the messages were loading.
	if c.sending {
		return ErrBusy
	}
	c.turns = turns
	c.sessionID = sessionID
	c.status = ""
	return nil
}

// DeleteSession removes a stored session and clears the view if it was the
// active one.
func (c *Conversation) DeleteSession(ctx context.Context, sessionID int64) error {
	if err := c.api.DeleteSession(ctx, sessionID); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessionID == sessionID && !c.sending {
		c.turns = nil
		c.sessionID = 0
	}
	return nil
}

// SessionLine is a stored session as listed to the user.
type SessionLine struct {
	store.SessionSummary
	Active bool
}

func (c *Conversation) Sessions(ctx context.Context) ([]SessionLine, error) {
	sessions, err := c.api.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	active := c.sessionID
	c.mu.Unlock()

	lines := make([]SessionLine, len(sessions))
	for i, s := range sessions {
		lines[i] = SessionLine{SessionSummary: s, Active: s.ID == active}
	}
	return lines, nil
}

func (c *Conversation) AttachDocument(name, text string) {
	c.mu.Lock()
	c.docName, c.docText = name, text
	c.mu.Unlock()
}

func (c *Conversation) ClearDocument() {
	c.AttachDocument("", "")
}

// Document reports the attached document, if any.
func (c *Conversation) Document() (name string, chars int, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.docName, len([]rune(c.docText)), c.docText != ""
}

func (c *Conversation) SetReasoning(on bool) {
	c.mu.Lock()
	c.reasoning = on
	c.mu.Unlock()
}

func (c *Conversation) Reasoning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reasoning
}

// SetVoice turns spoken replies on or off. It has no effect without a
// Speech sink.
func (c *Conversation) SetVoice(on bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.voice = on && c.speech != nil
	return c.voice
}

func (c *Conversation) Voice() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.voice
}

func (c *Conversation) Sending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sending
}

func (c *Conversation) Turns() []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Turn(nil), c.turns...)
}

func (c *Conversation) SessionID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Conversation) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Flush waits for queued history writes.
func (c *Conversation) Flush() { c.persister.Flush() }

func (c *Conversation) Close() { c.persister.Close() }
