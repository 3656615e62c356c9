package core

import (
	"context"
	"io"
)

const DefaultChatTemperature = 0.7

// Completer runs a non-streaming completion.
type Completer interface {
	Complete(ctx context.Context, messages []ChatTurn) (string, error)
}

// LanguageModel is what the chat and RAG paths need from the model server.
type LanguageModel interface {
	ChatStreamer
	Completer
}

// ChatService forwards a conversation to the model without retrieval.
type ChatService struct {
	llm         LanguageModel
	temperature float64
}

func NewChatService(llm LanguageModel, temperature float64) *ChatService {
	return &ChatService{llm: llm, temperature: temperature}
}

func (s *ChatService) Stream(ctx context.Context, messages []ChatTurn) (io.ReadCloser, error) {
	if len(messages) == 0 {
		return nil, validationFailure("Messages are required.")
	}
	return s.llm.StreamChat(ctx, messages, s.temperature)
}

func (s *ChatService) Complete(ctx context.Context, messages []ChatTurn) (string, error) {
	if len(messages) == 0 {
		return "", validationFailure("Messages are required.")
	}
	return s.llm.Complete(ctx, messages)
}
