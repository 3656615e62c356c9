package core

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
)

const (
	DefaultRAGTemperature = 0.2

	questionEmbeddingFailedMessage = "Question embedding failed."
	noQuestionEmbeddingMessage     = "No question embedding returned."
)

// ChatStreamer opens a streaming chat completion.
type ChatStreamer interface {
	StreamChat(ctx context.Context, messages []ChatTurn, temperature float64) (io.ReadCloser, error)
}

type RAGOptions struct {
	MaxChars     int
	ChunkSize    int
	ChunkOverlap int
	TopK         int
	Temperature  float64
	Debug        bool
}

func DefaultRAGOptions() RAGOptions {
	return RAGOptions{
		MaxChars:     DefaultMaxChars,
		ChunkSize:    DefaultChunkSize,
		ChunkOverlap: DefaultChunkOverlap,
		TopK:         DefaultTopK,
		Temperature:  DefaultRAGTemperature,
	}
}

// RAGService answers a conversation against one document. The index is
// built per call and dropped when the call returns.
type RAGService struct {
	embedder Embedder
	llm      ChatStreamer
	opts     RAGOptions
}

func NewRAGService(embedder Embedder, llm ChatStreamer, opts RAGOptions) *RAGService {
	return &RAGService{embedder: embedder, llm: llm, opts: opts}
}

// AnswerWithContext retrieves the chunks of documentText closest to the last
// turn and streams a completion grounded on them. Every failure is reported
// before the stream is returned.
func (s *RAGService) AnswerWithContext(ctx context.Context, conversation []ChatTurn, documentText string) (io.ReadCloser, error) {
	if len(conversation) == 0 {
		return nil, validationFailure("Messages are required.")
	}
	if strings.TrimSpace(documentText) == "" {
		return nil, validationFailure("Document text is required.")
	}

	chunks, err := ChunkText(TruncateChars(documentText, s.opts.MaxChars), s.opts.ChunkSize, s.opts.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("chunking document: %w", err)
	}
	if len(chunks) == 0 {
		return nil, &Failure{Kind: KindEmptyDocument, Status: http.StatusBadRequest, Message: "Document text is empty."}
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	chunkVectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}

	question := conversation[len(conversation)-1].Content
	queryVector, err := s.embedder.EmbedOne(ctx, question)
	if err != nil {
		return nil, relabel(err)
	}

	ranked, err := Rank(chunks, chunkVectors, queryVector, s.opts.TopK)
	if err != nil {
		return nil, emptyEmbeddingFailure(noQuestionEmbeddingMessage, err)
	}

	if s.opts.Debug {
		log.Printf("RAG: %d chunks, %d selected", len(chunks), len(ranked))
		for i, sc := range ranked {
			log.Printf("RAG: source %d is chunk %d (score %.4f)", i+1, sc.Chunk.Index, sc.Score)
		}
	}

	return s.llm.StreamChat(ctx, ComposeMessages(ranked, conversation), s.opts.Temperature)
}

// relabel gives question-embedding failures their own message.
func relabel(err error) error {
	f, ok := AsFailure(err)
	if !ok {
		return err
	}
	switch f.Kind {
	case KindEmbedding:
		return &Failure{Kind: f.Kind, Status: f.Status, Message: questionEmbeddingFailedMessage, Err: f.Err}
	case KindEmptyEmbedding:
		return &Failure{Kind: f.Kind, Status: f.Status, Message: noQuestionEmbeddingMessage, Err: f.Err}
	}
	return err
}
