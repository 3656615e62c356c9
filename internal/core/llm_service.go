package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/localchat/ragchat/internal/config"
)

const (
	defaultChatModelName = "qwen3-4b"
	chatFailedMessage    = "Chat request failed."

	// Generation can take long; only the wait for response headers is bounded.
	responseHeaderTimeout = 2 * time.Minute
)

// LLMService talks to an OpenAI-compatible chat completion endpoint.
type LLMService struct {
	baseURL string
	model   string
	client  *http.Client
}

func NewLLMService(cfg config.LLMConfig) *LLMService {
	model := cfg.ChatModel
	if model == "" {
		model = defaultChatModelName
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = responseHeaderTimeout

	return &LLMService{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   model,
		client:  &http.Client{Transport: transport},
	}
}

type chatRequest struct {
	Model       string     `json:"model"`
	Messages    []ChatTurn `json:"messages"`
	Temperature *float64   `json:"temperature,omitempty"`
	Stream      bool       `json:"stream"`
}

// StreamChat starts a streaming completion and hands back the raw event
// stream body. The caller owns closing it.
func (s *LLMService) StreamChat(ctx context.Context, messages []ChatTurn, temperature float64) (io.ReadCloser, error) {
	resp, err := s.post(ctx, chatRequest{
		Model:       s.model,
		Messages:    messages,
		Temperature: &temperature,
		Stream:      true,
	})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

type completionResponse struct {
	Message *struct {
		Content string `json:"content"`
	} `json:"message"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete runs a non-streaming completion and returns the reply text.
// Both the {message:{content}} and the {choices:[{message}]} shapes are read.
func (s *LLMService) Complete(ctx context.Context, messages []ChatTurn) (string, error) {
	resp, err := s.post(ctx, chatRequest{Model: s.model, Messages: messages, Stream: false})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &Failure{
			Kind:    KindUpstream,
			Status:  http.StatusBadGateway,
			Message: chatFailedMessage,
			Err:     fmt.Errorf("failed to decode completion response: %w", err),
		}
	}
	if out.Message != nil {
		return out.Message.Content, nil
	}
	if len(out.Choices) > 0 {
		return out.Choices[0].Message.Content, nil
	}
	log.Println("Completion response carried no message content.")
	return "", nil
}

func (s *LLMService) post(ctx context.Context, payload chatRequest) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if payload.Stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, transportFailure(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &Failure{
			Kind:    KindUpstream,
			Status:  resp.StatusCode,
			Message: chatFailedMessage,
			Err:     fmt.Errorf("chat endpoint returned %s: %s", resp.Status, strings.TrimSpace(string(snippet))),
		}
	}
	return resp, nil
}
