package handlers

import (
	"net/http"

	"github.com/lehigh-university-libraries/imagepicker/internal/logging"
	"github.com/lehigh-university-libraries/imagepicker/internal/models"
)

// HandleSubmit is the submit trigger. Without an accepted source nothing is
// submitted and the session's banner carries the error.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	session, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}
	log := logging.FromContext(r.Context()).With("session_id", session.ID)

	sub, err := session.Resolver.Submit()
	if err != nil {
		log.Info("Submit rejected", "err", err)
		h.writeJSON(w, http.StatusUnprocessableEntity, session.View())
		return
	}

	result := models.SubmitResult{
		Source:     sub.Kind.String(),
		URL:        sub.URL,
		ImageBytes: len(sub.ImageData),
	}
	if sub.File != nil {
		result.FileName = sub.File.Name
	}

	if h.forwarder != nil {
		code, err := h.forwarder.Forward(r.Context(), sub)
		result.ForwardCode = code
		if err != nil {
			log.Error("Failed to forward submission", "action", h.forwarder.Action, "err", err)
			h.writeJSON(w, http.StatusBadGateway, result)
			return
		}
		result.Forwarded = true
	}

	log.Info("Form submitted", "source", result.Source, "forwarded", result.Forwarded)
	h.writeJSON(w, http.StatusOK, result)
}
