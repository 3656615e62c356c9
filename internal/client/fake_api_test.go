package client

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/localchat/ragchat/internal/core"
	"github.com/localchat/ragchat/internal/store"
)

type streamCall struct {
	messages []core.ChatTurn
	document string
}

type appendCall struct {
	sessionID     int64
	role, content string
}

type fakeAPI struct {
	mu sync.Mutex

	streamBody    string
	streamReader  func() io.Reader
	streamErr     error
	completeReply string
	createErr     error
	appendErr     func(role string) error
	appendDelay   func(content string) time.Duration
	beforeLoad    func()

	nextID      int64
	titles      map[int64]string
	stored      map[int64][]store.Message
	streamCalls []streamCall
	completes   [][]core.ChatTurn
	appended    []appendCall
	deleted     []int64
}

func newFakeAPI(reply string) *fakeAPI {
	return &fakeAPI{
		streamBody: sseBody(reply),
		titles:     map[int64]string{},
		stored:     map[int64][]store.Message{},
	}
}

func sseBody(deltas ...string) string {
	var sb strings.Builder
	for _, d := range deltas {
		sb.WriteString(`data: {"choices":[{"delta":{"content":"` + d + `"}}]}` + "\n\n")
	}
	sb.WriteString("data: [DONE]\n\n")
	return sb.String()
}

func (f *fakeAPI) StreamChat(ctx context.Context, messages []core.ChatTurn, documentText string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streamCalls = append(f.streamCalls, streamCall{messages: messages, document: documentText})
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	if f.streamReader != nil {
		return io.NopCloser(f.streamReader()), nil
	}
	return io.NopCloser(strings.NewReader(f.streamBody)), nil
}

func (f *fakeAPI) Complete(ctx context.Context, messages []core.ChatTurn) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completes = append(f.completes, messages)
	return f.completeReply, nil
}

func (f *fakeAPI) CreateSession(ctx context.Context, title string) (*store.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextID++
	f.titles[f.nextID] = title
	return &store.Session{ID: f.nextID, Title: title, CreatedAt: time.Now()}, nil
}

func (f *fakeAPI) ListSessions(ctx context.Context) ([]store.SessionSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.SessionSummary
	for id := f.nextID; id > 0; id-- {
		if title, ok := f.titles[id]; ok {
			out = append(out, store.SessionSummary{Session: store.Session{ID: id, Title: title}})
		}
	}
	return out, nil
}

func (f *fakeAPI) GetMessages(ctx context.Context, sessionID int64) ([]store.Message, error) {
	if f.beforeLoad != nil {
		f.beforeLoad()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.titles[sessionID]; !ok {
		return nil, &APIError{Status: 404, Message: "Session not found."}
	}
	return append([]store.Message(nil), f.stored[sessionID]...), nil
}

func (f *fakeAPI) AppendMessage(ctx context.Context, sessionID int64, role, content string) (*store.Message, error) {
	if f.appendDelay != nil {
		time.Sleep(f.appendDelay(content))
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		if err := f.appendErr(role); err != nil {
			return nil, err
		}
	}
	f.appended = append(f.appended, appendCall{sessionID: sessionID, role: role, content: content})
	msg := store.Message{ID: int64(len(f.appended)), SessionID: sessionID, Role: role, Content: content}
	f.stored[sessionID] = append(f.stored[sessionID], msg)
	return &msg, nil
}

func (f *fakeAPI) DeleteSession(ctx context.Context, sessionID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, sessionID)
	delete(f.titles, sessionID)
	delete(f.stored, sessionID)
	return nil
}

func (f *fakeAPI) appends() []appendCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]appendCall(nil), f.appended...)
}

func (f *fakeAPI) streams() []streamCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]streamCall(nil), f.streamCalls...)
}

var errDown = errors.New("connection refused")

type fakeSpeech struct {
	mu    sync.Mutex
	begun int
	ended int
	said  []string
}

func (s *fakeSpeech) BeginReply() { s.mu.Lock(); s.begun++; s.mu.Unlock() }
func (s *fakeSpeech) EndReply()   { s.mu.Lock(); s.ended++; s.mu.Unlock() }
func (s *fakeSpeech) Say(text string) {
	s.mu.Lock()
	s.said = append(s.said, text)
	s.mu.Unlock()
}
