package handlers

import (
	"net/http"
	"strconv"

	"github.com/lehigh-university-libraries/imagepicker/internal/logging"
)

// HandlePreview serves the displayed preview as a JPEG thumbnail, or the
// original bytes with ?full=true.
func (h *Handler) HandlePreview(w http.ResponseWriter, r *http.Request) {
	session, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}

	img, ok := session.Resolver.Displayed()
	if !ok {
		h.writeError(w, r, "No preview displayed", http.StatusNotFound)
		return
	}

	data, contentType := img.Thumbnail, "image/jpeg"
	if r.URL.Query().Get("full") == "true" {
		data, contentType = img.Data, img.ContentType
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Image-Width", strconv.Itoa(img.Width))
	w.Header().Set("X-Image-Height", strconv.Itoa(img.Height))
	if _, err := w.Write(data); err != nil {
		logging.FromContext(r.Context()).Error("Unable to write preview", "err", err)
	}
}
