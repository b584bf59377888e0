package models

import (
	"time"

	"github.com/lehigh-university-libraries/imagepicker/internal/preview"
)

// PickerSession is the server-side state of one image picker form
type PickerSession struct {
	ID        string
	Resolver  *preview.Resolver
	CreatedAt time.Time
}

// SessionView is the JSON representation of a session
type SessionView struct {
	ID        string           `json:"id"`
	CreatedAt time.Time        `json:"created_at"`
	State     preview.Snapshot `json:"state"`
}

func (s *PickerSession) View() SessionView {
	return SessionView{
		ID:        s.ID,
		CreatedAt: s.CreatedAt,
		State:     s.Resolver.State(),
	}
}

// URLChange is the body of a URL field change event. Valid overrides the
// server-side format check when the client reports its own field validity.
type URLChange struct {
	Value string `json:"value"`
	Valid *bool  `json:"valid,omitempty"`
}

// PayloadFile is a file entry of a drop or paste payload
type PayloadFile struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Data []byte `json:"data"` // base64 in JSON
}

// PayloadItem is a typed string entry of a drop or paste payload
type PayloadItem struct {
	Kind string `json:"kind"` // "string" or "file"
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
}

// Payload is a drop or paste event body
type Payload struct {
	Files []PayloadFile `json:"files,omitempty"`
	Items []PayloadItem `json:"items,omitempty"`
}

// SubmitResult reports a successful submission
type SubmitResult struct {
	Source      string `json:"source"`
	FileName    string `json:"file_name,omitempty"`
	URL         string `json:"url,omitempty"`
	ImageBytes  int    `json:"image_bytes,omitempty"`
	Forwarded   bool   `json:"forwarded"`
	ForwardCode int    `json:"forward_status,omitempty"`
}
