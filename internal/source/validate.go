package source

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// fileTypePattern matches the allowed raster formats as a prefix of the
// declared content type, so parameter suffixes are tolerated.
var fileTypePattern = regexp.MustCompile(`^image/(jpeg|gif|png|bmp|tiff|webp)`)

// DefaultForbiddenSchemes lists schemes that only name session-local
// resources and must never be accepted from user input.
var DefaultForbiddenSchemes = []string{"blob"}

// Validator checks candidates before any load is attempted.
type Validator struct {
	forbidden map[string]bool
}

// NewValidator builds a validator rejecting DefaultForbiddenSchemes plus
// any extra schemes given. The defaults cannot be lifted.
func NewValidator(extraSchemes ...string) *Validator {
	v := &Validator{forbidden: make(map[string]bool, len(DefaultForbiddenSchemes)+len(extraSchemes))}
	for _, s := range append(append([]string(nil), DefaultForbiddenSchemes...), extraSchemes...) {
		s = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(s), ":"))
		if s != "" {
			v.forbidden[s] = true
		}
	}
	return v
}

// Validate accepts or rejects a candidate. The returned error is always a
// *Error.
func (v *Validator) Validate(c Candidate) (ImageSource, error) {
	switch c.Kind {
	case CandidateFile:
		if c.File == nil {
			return ImageSource{}, NewError(UnrecognizedSourceKind, fmt.Errorf("file candidate without a file"))
		}
		if !AllowedFileType(c.File.ContentType) {
			return ImageSource{}, NewError(UnsupportedFileType, fmt.Errorf("content type %q", c.File.ContentType))
		}
		return FileSource(c.File), nil
	case CandidateText:
		href, err := v.validateURL(c.Text)
		if err != nil {
			return ImageSource{}, err
		}
		return URLSource(href), nil
	default:
		return ImageSource{}, NewError(UnrecognizedSourceKind, nil)
	}
}

func (v *Validator) validateURL(raw string) (string, error) {
	u, err := ParseAbsoluteURL(raw)
	if err != nil {
		return "", NewError(InvalidURL, err)
	}
	if v.forbidden[u.Scheme] {
		return "", NewError(ForbiddenScheme, fmt.Errorf("scheme %q", u.Scheme))
	}
	return u.String(), nil
}

// AllowedFileType reports whether a declared content type is one of the
// accepted raster image formats.
func AllowedFileType(contentType string) bool {
	return fileTypePattern.MatchString(contentType)
}

// ParseAbsoluteURL parses raw as an absolute URL. Surrounding whitespace is
// ignored and the scheme is lower-cased.
func ParseAbsoluteURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty url")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse url: %w", err)
	}
	if !u.IsAbs() {
		return nil, fmt.Errorf("url %q is not absolute", raw)
	}
	if u.Opaque == "" && u.Host == "" && u.Path == "" {
		return nil, fmt.Errorf("url %q has nothing after the scheme", raw)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	return u, nil
}

// URLFieldValid mirrors the built-in validity of a URL input: an empty
// value is valid, anything else must be an absolute URL.
func URLFieldValid(value string) bool {
	if strings.TrimSpace(value) == "" {
		return true
	}
	_, err := ParseAbsoluteURL(value)
	return err == nil
}
