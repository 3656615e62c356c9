package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/localchat/ragchat/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return New(srv.URL + "/")
}

func TestStreamChat_Routing(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	mux := http.NewServeMux()
	handler := func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, sseBody("hi"))
	}
	mux.HandleFunc("/api/chat", handler)
	mux.HandleFunc("/api/rag", handler)
	c := newTestServer(t, mux)

	msgs := []core.ChatTurn{{Role: core.RoleUser, Content: "q"}}

	body, err := c.StreamChat(context.Background(), msgs, "")
	require.NoError(t, err)
	data, _ := io.ReadAll(body)
	body.Close()
	assert.Equal(t, "/api/chat", gotPath)
	assert.NotContains(t, gotBody, "documentText")
	assert.Contains(t, string(data), `"content":"hi"`)

	body, err = c.StreamChat(context.Background(), msgs, "doc")
	require.NoError(t, err)
	body.Close()
	assert.Equal(t, "/api/rag", gotPath)
	assert.Equal(t, "doc", gotBody["documentText"])
}

func TestClient_APIError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"error":"Unable to reach the language model server."}`)
	})
	mux.HandleFunc("/api/sessions", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, "not json")
	})
	c := newTestServer(t, mux)

	_, err := c.StreamChat(context.Background(), nil, "")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
	assert.Equal(t, "Unable to reach the language model server.", apiErr.Message)

	_, err = c.ListSessions(context.Background())
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Equal(t, "502 Bad Gateway", apiErr.Message)
}

func TestClient_Sessions(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/sessions", func(w http.ResponseWriter, r *http.Request) {
		var in map[string]string
		json.NewDecoder(r.Body).Decode(&in)
		io.WriteString(w, `{"id":5,"title":"`+in["title"]+`","createdAt":"2026-01-02T03:04:05Z"}`)
	})
	mux.HandleFunc("GET /api/sessions", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"sessions":[{"id":5,"title":"t","createdAt":"2026-01-02T03:04:05Z","lastMessageAt":"2026-01-02T03:05:05Z"}]}`)
	})
	mux.HandleFunc("GET /api/sessions/5", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"messages":[{"id":1,"role":"user","content":"hi","createdAt":"2026-01-02T03:04:05Z"}]}`)
	})
	mux.HandleFunc("POST /api/sessions/5/messages", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"id":2,"createdAt":"2026-01-02T03:04:06Z"}`)
	})
	var deleted bool
	mux.HandleFunc("DELETE /api/sessions/5", func(w http.ResponseWriter, r *http.Request) {
		deleted = true
		io.WriteString(w, `{"ok":true}`)
	})
	c := newTestServer(t, mux)
	ctx := context.Background()

	session, err := c.CreateSession(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, int64(5), session.ID)
	assert.Equal(t, 2026, session.CreatedAt.Year())

	list, err := c.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 5, list[0].LastMessageAt.Minute())

	msgs, err := c.GetMessages(ctx, 5)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi", msgs[0].Content)

	msg, err := c.AppendMessage(ctx, 5, "assistant", " reply ")
	require.NoError(t, err)
	assert.Equal(t, int64(2), msg.ID)
	assert.Equal(t, "reply", msg.Content)

	require.NoError(t, c.DeleteSession(ctx, 5))
	assert.True(t, deleted)
}

func TestClient_CompleteAndUpload(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/complete", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"message":{"role":"assistant","content":"done"}}`)
	})
	mux.HandleFunc("/api/documents", func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		data, _ := io.ReadAll(file)
		json.NewEncoder(w).Encode(map[string]any{"name": header.Filename, "text": string(data), "chars": len(data)})
	})
	c := newTestServer(t, mux)

	reply, err := c.Complete(context.Background(), []core.ChatTurn{{Role: core.RoleUser, Content: "q"}})
	require.NoError(t, err)
	assert.Equal(t, "done", reply)

	text, err := c.UploadDocument(context.Background(), "notes.txt", []byte("file body"))
	require.NoError(t, err)
	assert.Equal(t, "file body", text)
}
