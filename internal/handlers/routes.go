package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Router wires the picker API. metrics may be nil.
func (h *Handler) Router(metrics http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Route("/api/sessions", func(r chi.Router) {
		r.Get("/", h.HandleSessions)
		r.Post("/", h.HandleCreateSession)

		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", h.HandleSessionDetail)
			r.Delete("/", h.HandleDeleteSession)
			r.Post("/file", h.HandleFile)
			r.Post("/url", h.HandleURL)
			r.Post("/drop", h.HandleDrop)
			r.Post("/paste", h.HandlePaste)
			r.Post("/submit", h.HandleSubmit)
			r.Get("/preview", h.HandlePreview)
		})
	})

	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			slog.Error("Unable to write healthcheck", "err", err)
		}
	})
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	return r
}
