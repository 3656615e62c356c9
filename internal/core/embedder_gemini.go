package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const defaultGeminiEmbeddingModel = "text-embedding-004"

// GeminiEmbedder embeds through the Gemini API in a single batch call.
type GeminiEmbedder struct {
	client *genai.Client
	model  string
}

func NewGeminiEmbedder(ctx context.Context, apiKey, model string) (*GeminiEmbedder, error) {
	if model == "" {
		model = defaultGeminiEmbeddingModel
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiEmbedder{client: client, model: model}, nil
}

func (g *GeminiEmbedder) Close() {
	if err := g.client.Close(); err != nil {
		log.Printf("Error closing GenAI client: %v", err)
	}
}

func (g *GeminiEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	em := g.client.EmbeddingModel(g.model)
	batch := em.NewBatch()
	for _, text := range texts {
		batch.AddContent(genai.Text(text))
	}

	res, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, geminiFailure(err)
	}

	vectors := make([][]float32, len(res.Embeddings))
	for i, e := range res.Embeddings {
		if e != nil {
			vectors[i] = e.Values
		}
	}
	if err := checkVectors(vectors, len(texts)); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (g *GeminiEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	res, err := g.client.EmbeddingModel(g.model).EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, geminiFailure(err)
	}
	if res == nil || res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, emptyEmbeddingFailure(noEmbeddingsMessage, errors.New("no embedding data received from gemini"))
	}
	return res.Embedding.Values, nil
}

// geminiFailure keeps the HTTP status of an API error and treats anything
// else as a transport fault.
func geminiFailure(err error) error {
	var apiErr interface{ HTTPCode() int }
	if errors.As(err, &apiErr) {
		status := apiErr.HTTPCode()
		if status <= 0 {
			status = http.StatusBadGateway
		}
		return &Failure{Kind: KindEmbedding, Status: status, Message: embeddingFailedMessage, Err: err}
	}
	return transportFailure(fmt.Errorf("gemini embedding request failed: %w", err))
}
