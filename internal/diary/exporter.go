package diary

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"supernova/api/internal/export"
	"supernova/api/internal/logging"
)

const (
	FormatMarkdown = "md"
	FormatJSON     = "json"
)

// Renderer turns a document into a binary format.
type Renderer interface {
	Export(ctx context.Context, format export.Format, doc export.Document) (*export.Result, error)
}

// Exporter produces diary downloads and archives a copy when object storage
// is configured.
type Exporter struct {
	renderer Renderer
	archive  *Archive
	logger   *zap.Logger
	now      func() time.Time
}

func NewExporter(renderer Renderer, archive *Archive, logger *zap.Logger) *Exporter {
	return &Exporter{renderer: renderer, archive: archive, logger: logging.OrNop(logger), now: time.Now}
}

// Export renders entries in format (md, json, pdf or docx).
func (e *Exporter) Export(ctx context.Context, user string, entries []Entry, format string) (*export.Result, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = FormatMarkdown
	}

	var result *export.Result
	switch format {
	case FormatMarkdown:
		result = &export.Result{Data: []byte(Markdown(entries)), Filename: "diary.md", MimeType: "text/markdown; charset=utf-8"}
	case FormatJSON:
		data, err := JSON(entries)
		if err != nil {
			return nil, err
		}
		result = &export.Result{Data: data, Filename: "diary.json", MimeType: "application/json"}
	case string(export.FormatPDF), string(export.FormatDOCX):
		if e.renderer == nil {
			return nil, fmt.Errorf("%w: %s", export.ErrUnsupportedFormat, format)
		}
		rendered, err := e.renderer.Export(ctx, export.Format(format), e.document(user, entries))
		if err != nil {
			return nil, err
		}
		result = rendered
	default:
		return nil, fmt.Errorf("%w: %s", export.ErrUnsupportedFormat, format)
	}

	e.archiveCopy(ctx, user, result)
	return result, nil
}

func (e *Exporter) document(user string, entries []Entry) export.Document {
	doc := export.Document{
		Title:       "Harmony Diary",
		GeneratedAt: e.now().UTC(),
		Entries:     make([]export.Entry, 0, len(entries)),
	}
	if user != "" {
		doc.Title = "Harmony Diary of " + user
	}
	for _, entry := range entries {
		doc.Entries = append(doc.Entries, export.Entry{Timestamp: entry.Timestamp, Note: entry.Note, Refs: entry.RFCIDs})
	}
	return doc
}

// archiveCopy uploads the export; failures are logged and never fail the
// download.
func (e *Exporter) archiveCopy(ctx context.Context, user string, result *export.Result) {
	if e.archive == nil {
		return
	}
	if user == "" {
		user = "guest"
	}
	name := fmt.Sprintf("diary/%s/%s-%s", user, e.now().UTC().Format("20060102T150405Z"), result.Filename)
	if _, err := e.archive.Put(ctx, name, result.Data, result.MimeType); err != nil {
		e.logger.Warn("archive diary export failed", zap.String("object", name), zap.Error(err))
		return
	}
	e.logger.Debug("archived diary export", zap.String("object", name))
}
