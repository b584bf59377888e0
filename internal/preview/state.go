package preview

import (
	"github.com/lehigh-university-libraries/imagepicker/internal/source"
)

// LoadingMessage is shown while a preview is being materialized.
const LoadingMessage = "Loading image preview ..."

// Status is the materialization state of the most recent attempt.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusDisplayed
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusDisplayed:
		return "displayed"
	case StatusFailed:
		return "failed"
	default:
		return "idle"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Feedback is the info banner. Only showInfo and clearInfo change it.
type Feedback struct {
	Message string `json:"message" yaml:"message"`
	IsError bool   `json:"is_error" yaml:"is_error"`
	Visible bool   `json:"visible" yaml:"visible"`

	// attempt that owns the banner; 0 when it belongs to no attempt.
	owner uint64
}

// FormState mirrors the current source onto the submittable fields. File
// and URL are mutually exclusive.
type FormState struct {
	File *source.Blob
	URL  string
}

// Image is a materialized, displayable preview.
type Image struct {
	Address     string
	Format      string
	Width       int
	Height      int
	ContentType string
	Data        []byte
	Thumbnail   []byte
}

// handle is a pending image address. Owned handles point at an object URL
// that must be revoked exactly once.
type handle struct {
	address  string
	owned    bool
	released bool
}

// Snapshot is a read-only view of a resolver.
type Snapshot struct {
	Status    Status       `json:"status" yaml:"status"`
	Attempt   uint64       `json:"attempt" yaml:"attempt"`
	Feedback  Feedback     `json:"feedback" yaml:"feedback"`
	Form      FormView     `json:"form" yaml:"form"`
	Preview   *PreviewView `json:"preview,omitempty" yaml:"preview,omitempty"`
	LastError string       `json:"last_error,omitempty" yaml:"last_error,omitempty"`
}

// FormView describes the canonical fields without exposing file bytes.
type FormView struct {
	FileName string `json:"file_name,omitempty" yaml:"file_name,omitempty"`
	FileType string `json:"file_type,omitempty" yaml:"file_type,omitempty"`
	FileSize int    `json:"file_size,omitempty" yaml:"file_size,omitempty"`
	URL      string `json:"url,omitempty" yaml:"url,omitempty"`
}

// PreviewView describes the displayed image.
type PreviewView struct {
	Address string `json:"address" yaml:"address"`
	Format  string `json:"format" yaml:"format"`
	Width   int    `json:"width" yaml:"width"`
	Height  int    `json:"height" yaml:"height"`
}

// Submission is what the submit trigger hands to the form action.
type Submission struct {
	Kind source.Kind
	File *source.Blob
	URL  string

	// ImageData carries the resolved image bytes when embedding is enabled
	// and the displayed preview belongs to the submitted source.
	ImageData        []byte
	ImageContentType string
}
