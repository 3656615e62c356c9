// Package client is the terminal side of the chat: an HTTP client for the
// server API and the conversation flow built on it.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/localchat/ragchat/internal/core"
	"github.com/localchat/ragchat/internal/store"
)

// API is the server surface the conversation needs.
type API interface {
	StreamChat(ctx context.Context, messages []core.ChatTurn, documentText string) (io.ReadCloser, error)
	Complete(ctx context.Context, messages []core.ChatTurn) (string, error)
	CreateSession(ctx context.Context, title string) (*store.Session, error)
	ListSessions(ctx context.Context) ([]store.SessionSummary, error)
	GetMessages(ctx context.Context, sessionID int64) ([]store.Message, error)
	AppendMessage(ctx context.Context, sessionID int64, role, content string) (*store.Message, error)
	DeleteSession(ctx context.Context, sessionID int64) error
}

// APIError is a non-success answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = 2 * time.Minute
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Transport: transport},
	}
}

type chatPayload struct {
	Messages     []core.ChatTurn `json:"messages"`
	DocumentText string          `json:"documentText,omitempty"`
}

// StreamChat posts to /api/rag when documentText is set and to /api/chat
// otherwise. The caller closes the returned event stream.
func (c *Client) StreamChat(ctx context.Context, messages []core.ChatTurn, documentText string) (io.ReadCloser, error) {
	path := "/api/chat"
	if documentText != "" {
		path = "/api/rag"
	}
	resp, err := c.do(ctx, http.MethodPost, path, chatPayload{Messages: messages, DocumentText: documentText})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (c *Client) Complete(ctx context.Context, messages []core.ChatTurn) (string, error) {
	var out struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/complete", chatPayload{Messages: messages}, &out); err != nil {
		return "", err
	}
	return out.Message.Content, nil
}

func (c *Client) CreateSession(ctx context.Context, title string) (*store.Session, error) {
	var session store.Session
	if err := c.doJSON(ctx, http.MethodPost, "/api/sessions", map[string]string{"title": title}, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *Client) ListSessions(ctx context.Context) ([]store.SessionSummary, error) {
	var out struct {
		Sessions []store.SessionSummary `json:"sessions"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/sessions", nil, &out); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

func (c *Client) GetMessages(ctx context.Context, sessionID int64) ([]store.Message, error) {
	var out struct {
		Messages []store.Message `json:"messages"`
	}
	if err := c.doJSON(ctx, http.MethodGet, sessionPath(sessionID), nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

func (c *Client) AppendMessage(ctx context.Context, sessionID int64, role, content string) (*store.Message, error) {
	var msg store.Message
	body := map[string]string{"role": role, "content": content}
	if err := c.doJSON(ctx, http.MethodPost, sessionPath(sessionID)+"/messages", body, &msg); err != nil {
		return nil, err
	}
	msg.SessionID, msg.Role, msg.Content = sessionID, role, strings.TrimSpace(content)
	return &msg, nil
}

func (c *Client) DeleteSession(ctx context.Context, sessionID int64) error {
	return c.doJSON(ctx, http.MethodDelete, sessionPath(sessionID), nil, nil)
}

// UploadDocument has the server extract text from a file.
func (c *Client) UploadDocument(ctx context.Context, name string, data []byte) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return "", fmt.Errorf("building upload: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("building upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("building upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/documents", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.send(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out struct {
		Name string `json:"name"`
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding upload response: %w", err)
	}
	return out.Text, nil
}

func sessionPath(id int64) string {
	return "/api/sessions/" + strconv.FormatInt(id, 10)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding %s %s request: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req)
}

func (c *Client) send(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	apiErr := &APIError{Status: resp.StatusCode, Message: resp.Status}
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&payload); err == nil && payload.Error != "" {
		apiErr.Message = payload.Error
	}
	return nil, apiErr
}
