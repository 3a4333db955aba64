package attachment

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

const (
	DefaultMaxBytes = 5 << 20
	DefaultMaxChars = 50000
	DefaultMaxPages = 5
)

var textExtensions = map[string]bool{
	".txt": true, ".md": true, ".py": true, ".js": true, ".java": true, ".cpp": true,
	".json": true, ".csv": true, ".go": true, ".yaml": true, ".yml": true,
	".html": true, ".css": true, ".xml": true, ".log": true,
}

var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true, ".webp": true,
}

// Reader turns a file on disk into prompt text. Zero fields take the defaults.
type Reader struct {
	MaxBytes int64
	MaxChars int
	MaxPages int
}

func (r Reader) limits() (int64, int, int) {
	maxBytes, maxChars, maxPages := r.MaxBytes, r.MaxChars, r.MaxPages
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	return maxBytes, maxChars, maxPages
}

// Extract never fails: problems come back as a bracketed placeholder.
func (r Reader) Extract(path string) string {
	maxBytes, maxChars, maxPages := r.limits()
	name := filepath.Base(path)

	info, err := os.Stat(path)
	if err != nil {
		return placeholderError(err)
	}
	if info.IsDir() {
		return fmt.Sprintf("[File: %s]", name)
	}
	if info.Size() > maxBytes {
		return fmt.Sprintf("[File too large: %.1fMB]", float64(info.Size())/(1<<20))
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case textExtensions[ext]:
		b, err := os.ReadFile(path)
		if err != nil {
			return placeholderError(err)
		}
		return truncateRunes(string(bytes.ToValidUTF8(b, []byte("�"))), maxChars)

	case ext == ".pdf":
		text, err := readPDF(path, maxPages)
		if err != nil {
			return placeholderError(err)
		}
		return truncateRunes(text, maxChars)

	case imageExtensions[ext]:
		return fmt.Sprintf("[Image: %s]", name)

	default:
		return fmt.Sprintf("[File: %s]", name)
	}
}

func readPDF(path string, maxPages int) (text string, err error) {
	// the parser panics on some malformed documents
	defer func() {
		if rec := recover(); rec != nil {
			text, err = "", fmt.Errorf("malformed pdf: %v", rec)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var sb strings.Builder
	n := r.NumPage()
	if n > maxPages {
		n = maxPages
	}
	for i := 1; i <= n; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		s, err := p.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		sb.WriteString(s)
	}
	return sb.String(), nil
}

func placeholderError(err error) string {
	return fmt.Sprintf("[Error: %v]", err)
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
