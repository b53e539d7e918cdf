package export

import (
	"context"
	"fmt"
)

// Service renders documents to PDF or DOCX.
type Service struct {
	pdf  func(ctx context.Context, html, title string) (*Result, error)
	docx func(ctx context.Context, html, title string) (*Result, error)
}

func NewService() *Service {
	return &Service{pdf: chromePDF, docx: pandocDOCX}
}

// Export renders doc to HTML and converts it to format.
func (s *Service) Export(ctx context.Context, format Format, doc Document) (*Result, error) {
	html, err := RenderHTML(doc)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}
	switch format {
	case FormatPDF:
		return s.pdf(ctx, html, doc.Title)
	case FormatDOCX:
		return s.docx(ctx, html, doc.Title)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}
