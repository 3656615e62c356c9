package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/localchat/ragchat/internal/core"
	"github.com/localchat/ragchat/internal/extract"
	"github.com/localchat/ragchat/internal/store"
)

const multipartOverhead = 64 << 10

type APIHandler struct {
	chatService *core.ChatService
	ragService  *core.RAGService
	sessions    store.SessionStore
	extractor   extract.Extractor
}

func NewAPIHandler(cs *core.ChatService, rs *core.RAGService, sessions store.SessionStore, extractor extract.Extractor) *APIHandler {
	return &APIHandler{chatService: cs, ragService: rs, sessions: sessions, extractor: extractor}
}

type ChatRequest struct {
	Messages     []core.ChatTurn `json:"messages"`
	DocumentText string          `json:"documentText"`
}

// decodeChatRequest leaves req empty on a bad body so the services reject it
// with their own validation message.
func decodeChatRequest(r *http.Request) ChatRequest {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		log.Printf("Invalid chat request body: %v", err)
		return ChatRequest{}
	}
	return req
}

func (h *APIHandler) ChatHandler(w http.ResponseWriter, r *http.Request) {
	req := decodeChatRequest(r)
	body, err := h.chatService.Stream(r.Context(), req.Messages)
	if err != nil {
		writeFailure(w, err, "Chat request failed.")
		return
	}
	proxyStream(w, body)
}

func (h *APIHandler) RAGHandler(w http.ResponseWriter, r *http.Request) {
	req := decodeChatRequest(r)
	body, err := h.ragService.AnswerWithContext(r.Context(), req.Messages, req.DocumentText)
	if err != nil {
		writeFailure(w, err, "Chat request failed.")
		return
	}
	proxyStream(w, body)
}

type CompleteResponse struct {
	Message core.ChatTurn `json:"message"`
}

func (h *APIHandler) CompleteHandler(w http.ResponseWriter, r *http.Request) {
	req := decodeChatRequest(r)
	content, err := h.chatService.Complete(r.Context(), req.Messages)
	if err != nil {
		writeFailure(w, err, "Chat request failed.")
		return
	}
	writeJSON(w, http.StatusOK, CompleteResponse{Message: core.ChatTurn{Role: core.RoleAssistant, Content: content}})
}

// proxyStream relays an upstream event stream, flushing after every read.
func proxyStream(w http.ResponseWriter, body io.ReadCloser) {
	defer body.Close()

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache, no-transform")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	// Generations outlive the server write timeout.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		log.Printf("Clearing write deadline failed: %v", err)
	}

	buf := make([]byte, 4096)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				log.Printf("Client went away mid-stream: %v", werr)
				return
			}
			if ferr := rc.Flush(); ferr != nil && !errors.Is(ferr, http.ErrNotSupported) {
				log.Printf("Flushing stream failed: %v", ferr)
				return
			}
		}
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			log.Printf("Upstream stream failed: %v", err)
			return
		}
	}
}

type SessionsResponse struct {
	Sessions []store.SessionSummary `json:"sessions"`
}

func (h *APIHandler) ListSessionsHandler(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.sessions.ListSessions(r.Context())
	if err != nil {
		log.Printf("Error listing sessions: %v", err)
		writeError(w, http.StatusInternalServerError, "Unable to load sessions.")
		return
	}
	if sessions == nil {
		sessions = []store.SessionSummary{}
	}
	writeJSON(w, http.StatusOK, SessionsResponse{Sessions: sessions})
}

type CreateSessionRequest struct {
	Title string `json:"title"`
}

func (h *APIHandler) CreateSessionHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		req = CreateSessionRequest{}
	}

	session, err := h.sessions.CreateSession(r.Context(), req.Title)
	if err != nil {
		log.Printf("Error creating session: %v", err)
		writeError(w, http.StatusInternalServerError, "Unable to create session.")
		return
	}
	writeJSON(w, http.StatusOK, session)
}

type MessagesResponse struct {
	Messages []store.Message `json:"messages"`
}

func (h *APIHandler) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionIDParam(w, r)
	if !ok {
		return
	}
	messages, err := h.sessions.GetMessages(r.Context(), sessionID)
	if err != nil {
		log.Printf("Error loading messages for session %d: %v", sessionID, err)
		writeError(w, http.StatusInternalServerError, "Unable to load session messages.")
		return
	}
	if messages == nil {
		messages = []store.Message{}
	}
	writeJSON(w, http.StatusOK, MessagesResponse{Messages: messages})
}

func (h *APIHandler) DeleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionIDParam(w, r)
	if !ok {
		return
	}
	if err := h.sessions.DeleteSession(r.Context(), sessionID); err != nil {
		log.Printf("Error deleting session %d: %v", sessionID, err)
		writeError(w, http.StatusInternalServerError, "Unable to delete session.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type AppendMessageRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type AppendMessageResponse struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}

func (h *APIHandler) AppendMessageHandler(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionIDParam(w, r)
	if !ok {
		return
	}
	var req AppendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Role and content are required.")
		return
	}

	msg, err := h.sessions.AppendMessage(r.Context(), sessionID, req.Role, req.Content)
	switch {
	case errors.Is(err, store.ErrInvalidMessage):
		writeError(w, http.StatusBadRequest, "Role and content are required.")
	case errors.Is(err, store.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "Session not found.")
	case err != nil:
		log.Printf("Error saving message to session %d: %v", sessionID, err)
		writeError(w, http.StatusInternalServerError, "Unable to save message.")
	default:
		writeJSON(w, http.StatusOK, AppendMessageResponse{ID: msg.ID, CreatedAt: msg.CreatedAt})
	}
}

type DocumentResponse struct {
	Name  string `json:"name"`
	Text  string `json:"text"`
	Chars int    `json:"chars"`
}

func (h *APIHandler) UploadDocumentHandler(w http.ResponseWriter, r *http.Request) {
	limit := h.extractor.MaxBytes
	if limit <= 0 {
		limit = extract.MaxDocumentBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusBadRequest, "File too large. Please use a file under 2MB.")
			return
		}
		writeError(w, http.StatusBadRequest, "A file is required.")
		return
	}
	defer file.Close()

	if header.Size > limit {
		writeError(w, http.StatusBadRequest, "File too large. Please use a file under 2MB.")
		return
	}
	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		log.Printf("Error reading upload %s: %v", header.Filename, err)
		writeError(w, http.StatusBadRequest, "Unable to read this file.")
		return
	}

	text, err := h.extractor.Extract(header.Filename, header.Header.Get("Content-Type"), data)
	switch {
	case errors.Is(err, extract.ErrTooLarge):
		writeError(w, http.StatusBadRequest, "File too large. Please use a file under 2MB.")
	case errors.Is(err, extract.ErrNoText):
		writeError(w, http.StatusBadRequest, "No readable text found in this file.")
	case err != nil:
		log.Printf("Error extracting %s: %v", header.Filename, err)
		writeError(w, http.StatusBadRequest, "Unable to read this file.")
	default:
		writeJSON(w, http.StatusOK, DocumentResponse{Name: header.Filename, Text: text, Chars: len([]rune(text))})
	}
}

func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func sessionIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := store.ParseSessionID(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid session id.")
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeFailure answers with a core.Failure's status and message, or 500 and
// fallback for anything else.
func writeFailure(w http.ResponseWriter, err error, fallback string) {
	if f, ok := core.AsFailure(err); ok {
		if f.Kind != core.KindValidation {
			log.Printf("Request failed: %v", f)
		}
		writeError(w, f.Status, f.Message)
		return
	}
	log.Printf("Request failed: %v", err)
	writeError(w, http.StatusInternalServerError, fallback)
}
