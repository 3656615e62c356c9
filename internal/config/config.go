package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type LLMConfig struct {
	BaseURL              string  `yaml:"base_url"`
	ChatModel            string  `yaml:"chat_model"`
	EmbeddingModel       string  `yaml:"embedding_model"`
	EmbeddingBaseURL     string  `yaml:"embedding_base_url"`
	EmbeddingProvider    string  `yaml:"embedding_provider"`
	GeminiAPIKey         string  `yaml:"gemini_api_key"`
	EmbeddingRateLimit   float64 `yaml:"embedding_rate_limit"`
	EmbeddingTimeoutSecs int     `yaml:"embedding_timeout_secs"`
}

type ChatConfig struct {
	Temperature float64 `yaml:"temperature"`
}

type RAGConfig struct {
	Temperature  float64 `yaml:"temperature"`
	MaxChars     int     `yaml:"max_chars"`
	ChunkSize    int     `yaml:"chunk_size"`
	ChunkOverlap int     `yaml:"chunk_overlap"`
	TopK         int     `yaml:"top_k"`
}

type DocumentsConfig struct {
	MaxBytes int64 `yaml:"max_bytes"`
}

type Config struct {
	HTTPPort    string          `yaml:"http_port"`
	LogLevel    string          `yaml:"log_level"`
	DatabaseURL string          `yaml:"database_url"`
	LLM         LLMConfig       `yaml:"llm"`
	Chat        ChatConfig      `yaml:"chat"`
	RAG         RAGConfig       `yaml:"rag"`
	Documents   DocumentsConfig `yaml:"documents"`
}

// Debug reports whether verbose request diagnostics are enabled.
func (c *Config) Debug() bool {
	return c.LogLevel == "DEBUG"
}

// LoadConfig reads an optional YAML file, then overlays the environment
// (including a .env file when present) and fills defaults for anything unset.
// An empty path falls back to CONFIG_FILE.
func LoadConfig(path string) (*Config, error) {
	err := godotenv.Load() // Load .env file if it exists
	if err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	if path == "" {
		path = getEnv("CONFIG_FILE", "")
	}

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("error parsing config file: %w", err)
			}
		} else {
			log.Printf("Config file %s not found, using environment and defaults", path)
		}
	}

	mergeWithEnv(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

func mergeWithEnv(cfg *Config) {
	cfg.HTTPPort = getEnv("HTTP_PORT", cfg.HTTPPort)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)

	cfg.LLM.BaseURL = getEnv("LLM_BASE_URL", cfg.LLM.BaseURL)
	cfg.LLM.ChatModel = getEnv("CHAT_MODEL", cfg.LLM.ChatModel)
	cfg.LLM.EmbeddingModel = getEnv("EMBEDDING_MODEL", cfg.LLM.EmbeddingModel)
	cfg.LLM.EmbeddingBaseURL = getEnv("EMBEDDING_BASE_URL", cfg.LLM.EmbeddingBaseURL)
	cfg.LLM.EmbeddingProvider = getEnv("EMBEDDING_PROVIDER", cfg.LLM.EmbeddingProvider)
	cfg.LLM.GeminiAPIKey = getEnv("GEMINI_API_KEY", cfg.LLM.GeminiAPIKey)
	cfg.LLM.EmbeddingRateLimit = getEnvAsFloat("EMBEDDING_RATE_LIMIT", cfg.LLM.EmbeddingRateLimit)
	cfg.LLM.EmbeddingTimeoutSecs = getEnvAsInt("EMBEDDING_TIMEOUT_SECS", cfg.LLM.EmbeddingTimeoutSecs)

	cfg.Chat.Temperature = getEnvAsFloat("CHAT_TEMPERATURE", cfg.Chat.Temperature)

	cfg.RAG.Temperature = getEnvAsFloat("RAG_TEMPERATURE", cfg.RAG.Temperature)
	cfg.RAG.MaxChars = getEnvAsInt("RAG_MAX_CHARS", cfg.RAG.MaxChars)
	cfg.RAG.ChunkSize = getEnvAsInt("RAG_CHUNK_SIZE", cfg.RAG.ChunkSize)
	cfg.RAG.ChunkOverlap = getEnvAsInt("RAG_CHUNK_OVERLAP", cfg.RAG.ChunkOverlap)
	cfg.RAG.TopK = getEnvAsInt("RAG_TOP_K", cfg.RAG.TopK)

	cfg.Documents.MaxBytes = int64(getEnvAsInt("DOCUMENT_MAX_BYTES", int(cfg.Documents.MaxBytes)))
}

func applyDefaults(cfg *Config) {
	if cfg.HTTPPort == "" {
		cfg.HTTPPort = "8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "INFO"
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "ragchat.db"
	}

	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "http://localhost:1234"
	}
	if cfg.LLM.ChatModel == "" {
		cfg.LLM.ChatModel = "qwen3-4b"
	}
	if cfg.LLM.EmbeddingProvider == "" {
		cfg.LLM.EmbeddingProvider = ProviderOpenAI
	}
	if cfg.LLM.EmbeddingModel == "" {
		switch cfg.LLM.EmbeddingProvider {
		case ProviderGemini:
			cfg.LLM.EmbeddingModel = "text-embedding-004"
		case ProviderOllama:
			cfg.LLM.EmbeddingModel = "nomic-embed-text:latest"
		default:
			cfg.LLM.EmbeddingModel = "nomic-ai/nomic-embed-text-v1.5-GGUF"
		}
	}
	if cfg.LLM.EmbeddingBaseURL == "" {
		if cfg.LLM.EmbeddingProvider == ProviderOllama {
			cfg.LLM.EmbeddingBaseURL = "http://localhost:11434"
		} else {
			cfg.LLM.EmbeddingBaseURL = cfg.LLM.BaseURL
		}
	}
	if cfg.LLM.EmbeddingTimeoutSecs == 0 {
		cfg.LLM.EmbeddingTimeoutSecs = 60
	}

	if cfg.Chat.Temperature == 0 {
		cfg.Chat.Temperature = 0.7
	}

	if cfg.RAG.Temperature == 0 {
		cfg.RAG.Temperature = 0.2
	}
	if cfg.RAG.MaxChars == 0 {
		cfg.RAG.MaxChars = 12000
	}
	if cfg.RAG.ChunkSize == 0 {
		cfg.RAG.ChunkSize = 800
	}
	if cfg.RAG.ChunkOverlap == 0 {
		cfg.RAG.ChunkOverlap = 120
	}
	if cfg.RAG.TopK == 0 {
		cfg.RAG.TopK = 4
	}

	if cfg.Documents.MaxBytes == 0 {
		cfg.Documents.MaxBytes = 2_000_000
	}
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}
