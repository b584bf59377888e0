// Package source models the candidate image sources a user can supply and
// reduces heterogeneous channel payloads to a single validated ImageSource.
package source

import (
	"context"
	"fmt"
)

// Kind tags an ImageSource.
type Kind int

const (
	KindFile Kind = iota + 1
	KindURL
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindURL:
		return "url"
	default:
		return "unknown"
	}
}

// MarshalText lets kinds render as "file"/"url" in JSON and YAML.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Blob is a locally held binary file with its declared content type.
type Blob struct {
	Name        string
	ContentType string
	Data        []byte
}

// Size returns the number of bytes held by the blob.
func (b *Blob) Size() int {
	if b == nil {
		return 0
	}
	return len(b.Data)
}

// ImageSource is the accepted, canonical image source. Exactly one of File
// or Href is meaningful, selected by Kind.
type ImageSource struct {
	Kind Kind
	File *Blob
	Href string
}

func FileSource(b *Blob) ImageSource {
	return ImageSource{Kind: KindFile, File: b}
}

func URLSource(href string) ImageSource {
	return ImageSource{Kind: KindURL, Href: href}
}

func (s ImageSource) String() string {
	switch s.Kind {
	case KindFile:
		return fmt.Sprintf("file(%s, %s)", s.File.Name, s.File.ContentType)
	case KindURL:
		return fmt.Sprintf("url(%s)", s.Href)
	default:
		return "none"
	}
}

// CandidateKind tags a not-yet-validated candidate.
type CandidateKind int

const (
	CandidateUnknown CandidateKind = iota
	CandidateFile
	CandidateText
)

// Candidate is what an intake channel extracted, before validation.
type Candidate struct {
	Kind CandidateKind
	File *Blob
	Text string
}

func FileCandidate(b *Blob) Candidate {
	return Candidate{Kind: CandidateFile, File: b}
}

func TextCandidate(s string) Candidate {
	return Candidate{Kind: CandidateText, Text: s}
}

// String item types recognized in drag/drop and clipboard payloads.
const (
	TypeURIList   = "text/uri-list"
	TypePlainText = "text/plain"
)

// StringItem is a typed string entry of a payload. Its content is only
// available through Get, which may block until the platform delivers it.
type StringItem struct {
	Type string
	Get  func(ctx context.Context) (string, error)
}

// TextItem returns a StringItem whose content is the literal value.
func TextItem(typ, value string) StringItem {
	return StringItem{
		Type: typ,
		Get: func(context.Context) (string, error) {
			return value, nil
		},
	}
}

// Payload is the multi-item bundle delivered by a drop or paste.
type Payload struct {
	Files []*Blob
	Items []StringItem
}
