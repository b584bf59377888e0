package handlers

import (
	"net/http"
	"sort"

	"github.com/lehigh-university-libraries/imagepicker/internal/logging"
	"github.com/lehigh-university-libraries/imagepicker/internal/models"
)

func (h *Handler) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	session := h.createSession()
	logging.FromContext(r.Context()).Info("Session created", "session_id", session.ID)
	h.writeJSON(w, http.StatusCreated, session.View())
}

func (h *Handler) HandleSessions(w http.ResponseWriter, r *http.Request) {
	sessions := h.sessionStore.GetAll()
	sessionList := make([]models.SessionView, 0, len(sessions))
	for _, session := range sessions {
		sessionList = append(sessionList, session.View())
	}
	sort.Slice(sessionList, func(i, j int) bool {
		return sessionList[i].CreatedAt.Before(sessionList[j].CreatedAt)
	})
	h.writeJSON(w, http.StatusOK, sessionList)
}

func (h *Handler) HandleSessionDetail(w http.ResponseWriter, r *http.Request) {
	session, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, session.View())
}

func (h *Handler) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	session, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}
	h.sessionStore.Delete(session.ID)
	logging.FromContext(r.Context()).Info("Session deleted", "session_id", session.ID)
	w.WriteHeader(http.StatusNoContent)
}
