package source

import "errors"

// ErrorKind classifies a pipeline failure. Every kind is terminal for the
// current attempt.
type ErrorKind int

const (
	InvalidURL ErrorKind = iota + 1
	ForbiddenScheme
	UnsupportedFileType
	UnrecognizedSourceKind
	PreviewLoadFailed
	NoSourceProvided
)

var kindNames = map[ErrorKind]string{
	InvalidURL:             "invalid_url",
	ForbiddenScheme:        "forbidden_scheme",
	UnsupportedFileType:    "unsupported_file_type",
	UnrecognizedSourceKind: "unrecognized_source_kind",
	PreviewLoadFailed:      "preview_load_failed",
	NoSourceProvided:       "no_source_provided",
}

// Banner texts shown to the user for each kind.
var kindMessages = map[ErrorKind]string{
	InvalidURL:             "Invalid URL",
	ForbiddenScheme:        "Blob URLs are not allowed",
	UnsupportedFileType:    "File must be either JPEG, GIF, PNG, BMP, TIF or WebP",
	UnrecognizedSourceKind: "Couldn't recognize resource type",
	PreviewLoadFailed:      "Couldn't load image preview",
	NoSourceProvided:       "No valid image provided",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Message returns the user-visible banner text for the kind.
func (k ErrorKind) Message() string {
	return kindMessages[k]
}

// Error is a classified pipeline failure. Err carries the underlying cause,
// if any.
type Error struct {
	Kind ErrorKind
	Err  error
}

func NewError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Kind.String() + ": " + e.Err.Error()
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so sentinel comparisons like
// errors.Is(err, source.ErrInvalidURL) work regardless of cause.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrInvalidURL             = &Error{Kind: InvalidURL}
	ErrForbiddenScheme        = &Error{Kind: ForbiddenScheme}
	ErrUnsupportedFileType    = &Error{Kind: UnsupportedFileType}
	ErrUnrecognizedSourceKind = &Error{Kind: UnrecognizedSourceKind}
	ErrPreviewLoadFailed      = &Error{Kind: PreviewLoadFailed}
	ErrNoSourceProvided       = &Error{Kind: NoSourceProvided}
)

// KindOf returns the kind of err, or 0 when err is not a pipeline error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// MessageOf returns the banner text for err. Unclassified errors are
// reported as preview load failures.
func MessageOf(err error) string {
	if k := KindOf(err); k != 0 {
		return k.Message()
	}
	return PreviewLoadFailed.Message()
}
