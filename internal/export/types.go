// Package export renders dated note logs to binary document formats.
package export

import (
	"errors"
	"strings"
	"time"
)

type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

var mimeTypes = map[Format]string{
	FormatPDF:  "application/pdf",
	FormatDOCX: "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

var (
	ErrUnsupportedFormat = errors.New("unsupported export format")
	// ErrPDFDependencyMissing means no Chrome or Chromium binary is on PATH.
	ErrPDFDependencyMissing = errors.New("pdf export needs chromium")
	// ErrDOCXDependencyMissing means pandoc is not on PATH.
	ErrDOCXDependencyMissing = errors.New("docx export needs pandoc")
)

// Document is the content handed to a renderer.
type Document struct {
	Title       string
	GeneratedAt time.Time
	Entries     []Entry
}

// Entry is one dated line of a document.
type Entry struct {
	Timestamp string
	Note      string
	Refs      []string
}

// Result is a rendered download.
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

func newResult(format Format, title string, data []byte) *Result {
	return &Result{Data: data, Filename: sanitizeFilename(title) + "." + string(format), MimeType: mimeTypes[format]}
}

// sanitizeFilename keeps ASCII letters, digits, '-' and '_', turns spaces
// into dashes and caps the result at 50 bytes.
func sanitizeFilename(title string) string {
	var b strings.Builder
	for _, r := range title {
		if b.Len() >= 50 {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('-')
		}
	}
	if b.Len() == 0 {
		return "export"
	}
	return b.String()
}
