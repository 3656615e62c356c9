package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(apiHandler *APIHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", apiHandler.HealthHandler)

		// Model routes
		r.Post("/chat", apiHandler.ChatHandler)
		r.Post("/rag", apiHandler.RAGHandler)
		r.Post("/complete", apiHandler.CompleteHandler)
		r.Post("/documents", apiHandler.UploadDocumentHandler)

		// History routes
		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", apiHandler.ListSessionsHandler)
			r.Post("/", apiHandler.CreateSessionHandler)
			r.Get("/{sessionID}", apiHandler.GetSessionHandler)
			r.Delete("/{sessionID}", apiHandler.DeleteSessionHandler)
			r.Post("/{sessionID}/messages", apiHandler.AppendMessageHandler)
		})
	})

	return r
}
