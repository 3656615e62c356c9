package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Embedder turns text into vectors. Embed returns one vector per input, in
// input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

const (
	embeddingFailedMessage  = "Embedding request failed."
	noEmbeddingsMessage     = "No embeddings returned."
	defaultEmbeddingTimeout = 60 * time.Second
)

type HTTPEmbedderConfig struct {
	BaseURL string
	Model   string
	// RateLimit is requests per second; 0 means unlimited.
	RateLimit float64
	Timeout   time.Duration
}

// HTTPEmbedder talks to an OpenAI-compatible /v1/embeddings endpoint.
type HTTPEmbedder struct {
	baseURL string
	model   string
	timeout time.Duration
	limiter *rate.Limiter
	client  *http.Client
}

func NewHTTPEmbedder(cfg HTTPEmbedderConfig) *HTTPEmbedder {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultEmbeddingTimeout
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	return &HTTPEmbedder{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		timeout: timeout,
		limiter: rate.NewLimiter(limit, 1),
		client:  &http.Client{},
	}
}

type embeddingRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (e *HTTPEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vectors, err := e.do(ctx, texts)
	if err != nil {
		return nil, err
	}
	if err := checkVectors(vectors, len(texts)); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (e *HTTPEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.do(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := checkVectors(vectors, 1); err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// do sends input as-is, so a single string goes out as a JSON string and a
// batch as a JSON array.
func (e *HTTPEmbedder) do(ctx context.Context, input any) ([][]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, transportFailure(fmt.Errorf("waiting for embedding rate limiter: %w", err))
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	body, err := json.Marshal(embeddingRequest{Model: e.model, Input: input})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, transportFailure(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &Failure{
			Kind:    KindEmbedding,
			Status:  resp.StatusCode,
			Message: embeddingFailedMessage,
			Err:     fmt.Errorf("embedding endpoint returned %s: %s", resp.Status, strings.TrimSpace(string(snippet))),
		}
	}

	var out embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, emptyEmbeddingFailure(noEmbeddingsMessage, fmt.Errorf("failed to decode embedding response: %w", err))
	}

	vectors := make([][]float32, len(out.Data))
	for i, item := range out.Data {
		vectors[i] = item.Embedding
	}
	return vectors, nil
}

// checkVectors rejects a response that is short, has an empty vector, or
// mixes dimensions.
func checkVectors(vectors [][]float32, want int) error {
	if len(vectors) == 0 {
		return emptyEmbeddingFailure(noEmbeddingsMessage, nil)
	}
	if len(vectors) != want {
		return emptyEmbeddingFailure(noEmbeddingsMessage, fmt.Errorf("got %d embeddings for %d inputs", len(vectors), want))
	}
	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) == 0 {
			return emptyEmbeddingFailure(noEmbeddingsMessage, fmt.Errorf("embedding %d is empty", i))
		}
		if len(v) != dim {
			return emptyEmbeddingFailure(noEmbeddingsMessage, fmt.Errorf("embedding %d has dimension %d, want %d", i, len(v), dim))
		}
	}
	return nil
}
