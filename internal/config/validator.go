package config

import (
	"fmt"
	"net/url"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	if u, err := url.Parse(c.LLM.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "llm.base_url",
			Message: "a valid language model server URL is required",
		})
	}

	switch c.LLM.EmbeddingProvider {
	case ProviderOpenAI, ProviderOllama:
	case ProviderGemini:
		if c.LLM.GeminiAPIKey == "" {
			errors = append(errors, ValidationError{
				Field:   "llm.gemini_api_key",
				Message: "GEMINI_API_KEY is required for the gemini embedding provider",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "llm.embedding_provider",
			Message: fmt.Sprintf("unknown embedding provider: %s", c.LLM.EmbeddingProvider),
		})
	}

	if c.LLM.EmbeddingRateLimit < 0 {
		errors = append(errors, ValidationError{
			Field:   "llm.embedding_rate_limit",
			Message: "embedding_rate_limit must not be negative",
		})
	}

	if c.LLM.EmbeddingTimeoutSecs < 0 {
		errors = append(errors, ValidationError{
			Field:   "llm.embedding_timeout_secs",
			Message: "embedding_timeout_secs must not be negative",
		})
	}

	if c.Chat.Temperature < 0 || c.Chat.Temperature > 2 {
		errors = append(errors, ValidationError{
			Field:   "chat.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}

	if c.RAG.Temperature < 0 || c.RAG.Temperature > 2 {
		errors = append(errors, ValidationError{
			Field:   "rag.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}

	if c.RAG.MaxChars < 1 {
		errors = append(errors, ValidationError{
			Field:   "rag.max_chars",
			Message: "max_chars must be positive",
		})
	}

	if c.RAG.ChunkSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "rag.chunk_size",
			Message: "chunk_size must be positive",
		})
	}

	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		errors = append(errors, ValidationError{
			Field:   "rag.chunk_overlap",
			Message: "chunk_overlap must be non-negative and less than chunk_size",
		})
	}

	if c.RAG.TopK < 1 {
		errors = append(errors, ValidationError{
			Field:   "rag.top_k",
			Message: "top_k must be positive",
		})
	}

	if c.Documents.MaxBytes < 1 {
		errors = append(errors, ValidationError{
			Field:   "documents.max_bytes",
			Message: "max_bytes must be positive",
		})
	}

	return errors
}
