package attachment

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PreviewChars is how much of each file a preview shows.
const PreviewChars = 500

type Attachment struct {
	Path      string
	Name      string
	Text      string
	SizeBytes int64
}

// Extractor is satisfied by Reader.
type Extractor interface {
	Extract(path string) string
}

// Set is the current selection of files. It is only replaced wholesale.
type Set struct {
	reader Extractor
	items  []Attachment
}

func NewSet(reader Extractor) *Set {
	if reader == nil {
		reader = Reader{}
	}
	return &Set{reader: reader}
}

// Replace drops the previous selection and extracts every path afresh.
func (s *Set) Replace(paths []string) []Attachment {
	items := make([]Attachment, 0, len(paths))
	for _, p := range paths {
		a := Attachment{Path: p, Name: filepath.Base(p), Text: s.reader.Extract(p)}
		if info, err := os.Stat(p); err == nil {
			a.SizeBytes = info.Size()
		}
		items = append(items, a)
	}
	s.items = items
	return s.Items()
}

func (s *Set) Clear() { s.items = nil }

func (s *Set) Items() []Attachment {
	out := make([]Attachment, len(s.items))
	copy(out, s.items)
	return out
}

func (s *Set) Len() int { return len(s.items) }

// Preview renders each file's name and the head of its text.
func (s *Set) Preview() string {
	rule := strings.Repeat("=", 60)
	var sb strings.Builder
	for _, a := range s.items {
		fmt.Fprintf(&sb, "%s\n%s\n%s\n%s\n", rule, a.Name, rule, truncateRunes(a.Text, PreviewChars))
	}
	return sb.String()
}
