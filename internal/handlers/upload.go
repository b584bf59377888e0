package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/lehigh-university-libraries/imagepicker/internal/models"
	"github.com/lehigh-university-libraries/imagepicker/internal/source"
)

// HandleFile is the file picker channel. The declared content type of the
// first "file" (or "files") part is what validation sees.
func (h *Handler) HandleFile(w http.ResponseWriter, r *http.Request) {
	session, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+1024*1024)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		h.writeError(w, r, "Failed to read multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}

	headers := r.MultipartForm.File["file"]
	if len(headers) == 0 {
		headers = r.MultipartForm.File["files"]
	}

	var files []*source.Blob
	if len(headers) > 0 {
		header := headers[0]
		if header.Size > h.maxBytes {
			h.writeError(w, r, "File too large", http.StatusRequestEntityTooLarge)
			return
		}
		file, err := header.Open()
		if err != nil {
			h.writeError(w, r, "Failed to read file: "+err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			h.writeError(w, r, "Failed to read file contents: "+err.Error(), http.StatusInternalServerError)
			return
		}
		files = append(files, &source.Blob{
			Name:        header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Data:        data,
		})
	}

	session.Resolver.SelectFiles(files)
	h.respondWithState(w, r, session)
}

// HandleURL is the URL field channel. JSON bodies may report the client's
// own field validity; otherwise it is computed here.
func (h *Handler) HandleURL(w http.ResponseWriter, r *http.Request) {
	session, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}

	var change models.URLChange
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		if !h.decodeJSON(w, r, h.maxBytes, &change) {
			return
		}
	} else {
		change.Value = r.FormValue("url")
	}

	valid := source.URLFieldValid(change.Value)
	if change.Valid != nil {
		valid = *change.Valid
	}

	session.Resolver.ChangeURL(change.Value, valid)
	h.respondWithState(w, r, session)
}

// HandleDrop is the drag-and-drop channel.
func (h *Handler) HandleDrop(w http.ResponseWriter, r *http.Request) {
	h.handlePayload(w, r, "drop")
}

// HandlePaste is the clipboard channel.
func (h *Handler) HandlePaste(w http.ResponseWriter, r *http.Request) {
	h.handlePayload(w, r, "paste")
}

func (h *Handler) handlePayload(w http.ResponseWriter, r *http.Request, channel string) {
	session, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}

	var payload models.Payload
	// base64 inflates file data by a third
	if !h.decodeJSON(w, r, h.maxBytes*4/3+64*1024, &payload) {
		return
	}

	p := toSourcePayload(payload)
	if channel == "drop" {
		session.Resolver.Drop(p)
	} else {
		session.Resolver.Paste(p)
	}
	h.respondWithState(w, r, session)
}

// decodeJSON reads a JSON body of at most limit bytes into dst, answering
// the request itself when that fails.
func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil {
		return true
	}

	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		h.writeError(w, r, "Request body too large", http.StatusRequestEntityTooLarge)
	case errors.Is(err, io.EOF):
		h.writeError(w, r, "Empty payload", http.StatusBadRequest)
	default:
		h.writeError(w, r, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
	}
	return false
}

// toSourcePayload converts the wire payload. Items of kind "file" are not
// string entries and are skipped; files travel in Files.
func toSourcePayload(p models.Payload) source.Payload {
	var out source.Payload
	for _, f := range p.Files {
		out.Files = append(out.Files, &source.Blob{Name: f.Name, ContentType: f.Type, Data: f.Data})
	}
	for _, item := range p.Items {
		if item.Kind != "" && item.Kind != "string" {
			continue
		}
		out.Items = append(out.Items, source.TextItem(item.Type, item.Data))
	}
	return out
}
