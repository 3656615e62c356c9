package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/tmc/langchaingo/llms/ollama"
)

const (
	defaultOllamaModel = "nomic-embed-text:latest"
	defaultOllamaURL   = "http://localhost:11434"
)

// OllamaEmbedder embeds through a local Ollama server.
type OllamaEmbedder struct {
	llm *ollama.LLM
}

func NewOllamaEmbedder(baseURL, model string) (*OllamaEmbedder, error) {
	if model == "" {
		model = defaultOllamaModel
	}
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	llm, err := ollama.New(ollama.WithModel(model), ollama.WithServerURL(baseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ollama embedder: %w", err)
	}
	return &OllamaEmbedder{llm: llm}, nil
}

func (o *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vectors, err := o.llm.CreateEmbedding(ctx, texts)
	if err != nil {
		return nil, ollamaFailure(err)
	}
	if err := checkVectors(vectors, len(texts)); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (o *OllamaEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := o.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func ollamaFailure(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return transportFailure(err)
	}
	return &Failure{Kind: KindEmbedding, Status: http.StatusBadGateway, Message: embeddingFailedMessage, Err: err}
}
