package core

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/localchat/ragchat/internal/config"
)

// fakeModelServer is an OpenAI-compatible server whose embedding vectors come
// from a caller-supplied function.
type fakeModelServer struct {
	t      *testing.T
	server *httptest.Server

	mu             sync.Mutex
	embedInputs    []any
	chatRequests   []chatRequest
	embedStatus    int
	chatStatus     int
	vectorFor      func(text string) []float32
	dropEmbeddings bool
	streamBody     string
}

func newFakeModelServer(t *testing.T) *fakeModelServer {
	f := &fakeModelServer{
		t:          t,
		vectorFor:  keywordVector("cat"),
		streamBody: "data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n\ndata: [DONE]\n\n",
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/embeddings", f.handleEmbeddings)
	mux.HandleFunc("/v1/chat/completions", f.handleChat)
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

// keywordVector maps text mentioning word to [1,0] and everything else to [0,1].
func keywordVector(word string) func(string) []float32 {
	return func(text string) []float32 {
		if strings.Contains(text, word) {
			return []float32{1, 0}
		}
		return []float32{0, 1}
	}
}

func (f *fakeModelServer) handleEmbeddings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Model string `json:"model"`
		Input any    `json:"input"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		f.t.Errorf("bad embedding request: %v", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.embedInputs = append(f.embedInputs, req.Input)
	status, drop, vectorFor := f.embedStatus, f.dropEmbeddings, f.vectorFor
	f.mu.Unlock()

	if status != 0 {
		http.Error(w, "embedding failed", status)
		return
	}

	var texts []string
	switch in := req.Input.(type) {
	case string:
		texts = []string{in}
	case []any:
		for _, v := range in {
			s, _ := v.(string)
			texts = append(texts, s)
		}
	}

	type item struct {
		Embedding []float32 `json:"embedding"`
	}
	data := []item{}
	if !drop {
		for _, text := range texts {
			data = append(data, item{Embedding: vectorFor(text)})
		}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"data": data})
}

func (f *fakeModelServer) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		f.t.Errorf("bad chat request: %v", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.chatRequests = append(f.chatRequests, req)
	status := f.chatStatus
	f.mu.Unlock()

	if status != 0 {
		http.Error(w, "chat failed", status)
		return
	}

	if !req.Stream {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"message": map[string]string{"content": "complete reply"}})
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Write([]byte(f.streamBody))
}

func (f *fakeModelServer) embedCalls() []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]any(nil), f.embedInputs...)
}

func (f *fakeModelServer) chatCalls() []chatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]chatRequest(nil), f.chatRequests...)
}

func (f *fakeModelServer) llmConfig() config.LLMConfig {
	return config.LLMConfig{BaseURL: f.server.URL, ChatModel: "test-chat", EmbeddingModel: "test-embed"}
}

func (f *fakeModelServer) embedder() *HTTPEmbedder {
	return NewHTTPEmbedder(HTTPEmbedderConfig{BaseURL: f.server.URL, Model: "test-embed", Timeout: 5 * time.Second})
}
