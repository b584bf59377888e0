package source

import (
	"bufio"
	"strings"
)

// Selection is the outcome of reducing a payload to one candidate. At most
// one of File or Item is set; when neither is, the payload yields nothing.
type Selection struct {
	File *Blob
	Item *StringItem
}

// Empty reports whether the payload yielded no candidate.
func (s Selection) Empty() bool {
	return s.File == nil && s.Item == nil
}

// Normalize reduces a drop or paste payload to a single candidate.
//
// A file wins whenever one is present. Otherwise the first text/uri-list
// item is chosen regardless of its position, falling back to the first
// text/plain item. Anything else yields an empty selection.
func Normalize(p Payload) Selection {
	for _, f := range p.Files {
		if f != nil {
			return Selection{File: f}
		}
	}

	var text *StringItem
	for i := range p.Items {
		item := &p.Items[i]
		if item.Get == nil {
			continue
		}
		switch mediaType(item.Type) {
		case TypeURIList:
			return Selection{Item: item}
		case TypePlainText:
			if text == nil {
				text = item
			}
		}
	}

	if text != nil {
		return Selection{Item: text}
	}
	return Selection{}
}

// ExtractedCandidate turns the extracted content of a selected item into a
// candidate. A uri-list body contributes its first URI.
func ExtractedCandidate(itemType, content string) Candidate {
	if mediaType(itemType) == TypeURIList {
		return TextCandidate(FromURIList(content))
	}
	return TextCandidate(content)
}

// FromURIList returns the first URI of a text/uri-list body, skipping
// comment lines. A body with no URI lines is returned unchanged so that
// validation reports it.
func FromURIList(body string) string {
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		return line
	}
	return body
}

func mediaType(t string) string {
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = t[:i]
	}
	return strings.ToLower(strings.TrimSpace(t))
}
