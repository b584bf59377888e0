package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lehigh-university-libraries/imagepicker/internal/logging"
	"github.com/lehigh-university-libraries/imagepicker/internal/models"
	"github.com/lehigh-university-libraries/imagepicker/internal/preview"
	"github.com/lehigh-university-libraries/imagepicker/internal/storage"
	"github.com/lehigh-university-libraries/imagepicker/internal/submit"
)

// maxUploadBytes bounds multipart and JSON request bodies when no limit
// is configured.
const maxUploadBytes = 10 * 1024 * 1024

type Handler struct {
	sessionStore *storage.SessionStore
	newResolver  func() *preview.Resolver
	forwarder    *submit.Forwarder
	maxBytes     int64
}

// New builds a handler. newResolver is called once per session; forwarder
// may be nil, in which case submissions are only reported back.
func New(store *storage.SessionStore, newResolver func() *preview.Resolver, forwarder *submit.Forwarder, maxBytes int64) *Handler {
	if maxBytes <= 0 {
		maxBytes = maxUploadBytes
	}
	return &Handler{
		sessionStore: store,
		newResolver:  newResolver,
		forwarder:    forwarder,
		maxBytes:     maxBytes,
	}
}

// Response helpers
func (h *Handler) writeJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Unable to encode JSON response", "err", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, message string, code int) {
	logging.FromContext(r.Context()).Error(message, "path", r.URL.Path, "status", code)
	http.Error(w, message, code)
}

// Session helpers
func (h *Handler) getSessionOrError(w http.ResponseWriter, r *http.Request) (*models.PickerSession, bool) {
	sessionID := chi.URLParam(r, "sessionID")
	session, exists := h.sessionStore.Get(sessionID)
	if !exists {
		h.writeError(w, r, "Session not found", http.StatusNotFound)
		return nil, false
	}
	return session, true
}

func (h *Handler) createSession() *models.PickerSession {
	session := &models.PickerSession{
		ID:        uuid.NewString(),
		Resolver:  h.newResolver(),
		CreatedAt: time.Now(),
	}
	h.sessionStore.Set(session.ID, session)
	return session
}

// respondWithState answers an intake event. Intake is asynchronous, so the
// state is reported as accepted unless the caller asked to wait for
// background work with ?wait=true.
func (h *Handler) respondWithState(w http.ResponseWriter, r *http.Request, session *models.PickerSession) {
	code := http.StatusAccepted
	if r.URL.Query().Get("wait") == "true" {
		session.Resolver.Wait()
		code = http.StatusOK
	}
	h.writeJSON(w, code, session.View())
}
