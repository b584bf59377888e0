// Package submit delivers a resolved submission to the form's action URL.
package submit

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/lehigh-university-libraries/imagepicker/internal/preview"
	"github.com/lehigh-university-libraries/imagepicker/internal/source"
)

// Form field names used for the canonical fields.
const (
	FieldFile      = "file"
	FieldURL       = "url"
	FieldImageData = "image_data"
)

// Forwarder posts submissions as multipart forms.
type Forwarder struct {
	Action     string
	HTTPClient *http.Client
}

func NewForwarder(action string, timeout time.Duration) *Forwarder {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Forwarder{
		Action:     action,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// Forward posts sub to the action URL and returns the response status.
// Only one of the file and url fields is written.
func (f *Forwarder) Forward(ctx context.Context, sub *preview.Submission) (int, error) {
	body, contentType, err := Encode(sub)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.Action, body)
	if err != nil {
		return 0, fmt.Errorf("failed to build form request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to submit form: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return resp.StatusCode, fmt.Errorf("form action returned status %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

// Encode renders sub as a multipart form body.
func Encode(sub *preview.Submission) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	switch sub.Kind {
	case source.KindFile:
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, FieldFile, sub.File.Name))
		h.Set("Content-Type", sub.File.ContentType)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create file part: %w", err)
		}
		if _, err := part.Write(sub.File.Data); err != nil {
			return nil, "", fmt.Errorf("failed to write file part: %w", err)
		}
	case source.KindURL:
		if err := w.WriteField(FieldURL, sub.URL); err != nil {
			return nil, "", fmt.Errorf("failed to write url field: %w", err)
		}
	default:
		return nil, "", source.NewError(source.NoSourceProvided, nil)
	}

	if len(sub.ImageData) > 0 {
		encoded := "data:" + sub.ImageContentType + ";base64," + base64.StdEncoding.EncodeToString(sub.ImageData)
		if err := w.WriteField(FieldImageData, encoded); err != nil {
			return nil, "", fmt.Errorf("failed to write image data field: %w", err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finish form: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}
